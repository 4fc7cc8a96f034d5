package stacks

import (
	"fmt"

	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/aws-cdk-go/awscdk/v2/awscloudwatch"
	"github.com/aws/aws-cdk-go/awscdk/v2/awscloudwatchactions"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsiam"
	"github.com/aws/aws-cdk-go/awscdk/v2/awslambda"
	"github.com/aws/aws-cdk-go/awscdk/v2/awss3assets"
	"github.com/aws/aws-cdk-go/awscdk/v2/awssqs"
	"github.com/aws/jsii-runtime-go"
)

// createLambdaResources builds the digest verifier invoked by the Verify
// stage. The handler lives in bin/lambda and is deployed from the
// prebuilt bootstrap in the configured asset directory.
func createLambdaResources(res *pipelineResources) (awslambda.Function, awslambda.Alias) {
	// Create DLQ
	deadLetterQueue := createDeadLetterQueue(res.stack, res.prefix)

	// Create Lambda role
	role := configureLambdaIAM(res)

	// Create Lambda function
	fn := createLambdaFunction(res, role, deadLetterQueue)

	// Create Lambda alias
	alias := awslambda.NewAlias(res.stack, jsii.String(res.prefix+"-verifier-live"), &awslambda.AliasProps{
		AliasName:   jsii.String("Live"),
		Description: jsii.String("Digest verifier alias"),
		Version:     fn.CurrentVersion(),
	})

	errorsAlarm := createLambdaErrorAlarm(res.stack, res.prefix, fn)
	errorsAlarm.AddAlarmAction(awscloudwatchactions.NewSnsAction(res.topic))

	return fn, alias
}

func createDeadLetterQueue(stack awscdk.Stack, prefix string) awssqs.IQueue {
	return awssqs.NewQueue(stack, jsii.String(prefix+"-verifier-dlq"), &awssqs.QueueProps{
		QueueName:       jsii.String(prefix + "-verifier-dlq"),
		RetentionPeriod: awscdk.Duration_Days(jsii.Number(7)),
		EnforceSSL:      jsii.Bool(true),
	})
}

func createLambdaFunction(res *pipelineResources, role awsiam.IRole, dlq awssqs.IQueue) awslambda.Function {
	return awslambda.NewFunction(res.stack, jsii.String(res.prefix+"-verifier"), &awslambda.FunctionProps{
		FunctionName:    jsii.String(res.prefix + "-verifier"),
		Runtime:         awslambda.Runtime_PROVIDED_AL2(),
		Handler:         jsii.String("bootstrap"),
		Role:            role,
		RetryAttempts:   jsii.Number(2),
		MemorySize:      jsii.Number(1024),
		Timeout:         awscdk.Duration_Minutes(jsii.Number(6)),
		Architecture:    awslambda.Architecture_X86_64(),
		DeadLetterQueue: dlq,
		CurrentVersionOptions: &awslambda.VersionOptions{
			RemovalPolicy: awscdk.RemovalPolicy_RETAIN,
			Description:   jsii.String("Automated Version"),
		},
		Code: awslambda.Code_FromAsset(jsii.String(res.props.Settings.VerifierAssetDir), &awss3assets.AssetOptions{}),
		Environment: &map[string]*string{
			"LOG_LEVEL": jsii.String(res.props.Settings.LogLevel),
		},
		Tracing: awslambda.Tracing_ACTIVE,
	})
}

func createLambdaErrorAlarm(stack awscdk.Stack, prefix string, fn awslambda.IFunction) awscloudwatch.Alarm {
	return alarm(stack, prefix+"-verifier-errors", awscloudwatch.NewMetric(&awscloudwatch.MetricProps{
		Namespace:  jsii.String("AWS/Lambda"),
		MetricName: jsii.String("Errors"),
		Statistic:  jsii.String("Sum"),
		Period:     awscdk.Duration_Minutes(jsii.Number(1)),
		DimensionsMap: &map[string]*string{
			"FunctionName": fn.FunctionName(),
		},
	}))
}

// configureLambdaIAM lets the verifier report job results and read the
// service through the task role of the target account.
func configureLambdaIAM(res *pipelineResources) awsiam.Role {
	stack := res.stack
	role := awsiam.NewRole(stack, jsii.String(res.prefix+"-verifier-role"), &awsiam.RoleProps{
		AssumedBy: awsiam.NewServicePrincipal(jsii.String("lambda.amazonaws.com"), nil),
	})

	role.AddToPrincipalPolicy(awsiam.NewPolicyStatement(&awsiam.PolicyStatementProps{
		Effect: awsiam.Effect_ALLOW,
		Actions: jsii.Strings(
			"codepipeline:PutJobSuccessResult",
			"codepipeline:PutJobFailureResult",
		),
		Resources: jsii.Strings("*"),
	}))

	role.AddToPrincipalPolicy(awsiam.NewPolicyStatement(&awsiam.PolicyStatementProps{
		Effect:    awsiam.Effect_ALLOW,
		Actions:   jsii.Strings("sts:AssumeRole"),
		Resources: jsii.Strings(res.props.RoleARN),
	}))

	// Grant CloudWatch permissions
	role.AddToPrincipalPolicy(awsiam.NewPolicyStatement(&awsiam.PolicyStatementProps{
		Effect: awsiam.Effect_ALLOW,
		Actions: jsii.Strings(
			"logs:CreateLogGroup",
			"logs:CreateLogStream",
			"logs:PutLogEvents",
		),
		Resources: jsii.Strings(
			fmt.Sprintf("arn:aws:logs:%s:%s:log-group:/aws/lambda/%s-verifier:*",
				*stack.Region(), *stack.Account(), res.prefix),
		),
	}))

	return role
}
