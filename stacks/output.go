package stacks

import (
	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/aws-cdk-go/awscdk/v2/awscodebuild"
	"github.com/aws/aws-cdk-go/awscdk/v2/awscodepipeline"
	"github.com/aws/aws-cdk-go/awscdk/v2/awslambda"
	"github.com/aws/jsii-runtime-go"
)

// export publishes value under a stack export name that sibling stacks
// import with Fn::ImportValue.
func export(stack awscdk.Stack, name string, value *string, description string) awscdk.CfnOutput {
	return awscdk.NewCfnOutput(stack, jsii.String(name), &awscdk.CfnOutputProps{
		Value:       value,
		Description: jsii.String(description),
		ExportName:  jsii.String(name),
	})
}

func importValue(name string) *string {
	return awscdk.Fn_ImportValue(jsii.String(name))
}

func createStackOutputs(stack awscdk.Stack, pipeline awscodepipeline.Pipeline,
	codeBuildProject awscodebuild.IProject, lambdaFunction awslambda.IFunction) {
	awscdk.NewCfnOutput(stack, jsii.String("codePipelineNameOutput"), &awscdk.CfnOutputProps{
		Value: pipeline.PipelineName(),
	})

	awscdk.NewCfnOutput(stack, jsii.String("CodeBuildProjectOutput"), &awscdk.CfnOutputProps{
		Value: codeBuildProject.ProjectName(),
	})

	if lambdaFunction != nil {
		awscdk.NewCfnOutput(stack, jsii.String("LambdaFunctionNameOutput"), &awscdk.CfnOutputProps{
			Value: lambdaFunction.FunctionName(),
		})
	}
}
