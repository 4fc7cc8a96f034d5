package stacks

import (
	"fmt"

	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/aws-cdk-go/awscdk/v2/awscloudwatch"
	"github.com/aws/aws-cdk-go/awscdk/v2/awscodebuild"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsec2"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsiam"
	"github.com/aws/aws-cdk-go/awscdk/v2/awslogs"
	"github.com/aws/aws-cdk-go/awscdk/v2/awssecretsmanager"
	"github.com/aws/jsii-runtime-go"
	"github.com/ov3r/infra-aws-base-cdk/lib/buildspec"
	"github.com/ov3r/infra-aws-base-cdk/lib/naming"
	"github.com/samber/lo"
)

// createPipelineRole is shared by the pipeline, its actions and its build
// projects.
func createPipelineRole(stack awscdk.Stack, prefix string, props *PipelineStackProps) awsiam.Role {
	role := awsiam.NewRole(stack, jsii.String(prefix+"-pipeline-role"), &awsiam.RoleProps{
		AssumedBy: awsiam.NewCompositePrincipal(
			awsiam.NewServicePrincipal(jsii.String("codepipeline.amazonaws.com"), nil),
			awsiam.NewServicePrincipal(jsii.String("codebuild.amazonaws.com"), nil),
			awsiam.NewAccountRootPrincipal(),
		),
		RoleName: jsii.String(prefix + "-pipeline-role"),
	})

	role.AddToPolicy(awsiam.NewPolicyStatement(&awsiam.PolicyStatementProps{
		Effect:    awsiam.Effect_ALLOW,
		Resources: jsii.Strings("*"),
		Actions: jsii.Strings(
			"codebuild:*",
			"codepipeline:*",
			"codestar-connections:UseConnection",
			"logs:*",
			"s3:*",
			"kms:*",
			"ecr:*",
			"secretsmanager:*",
			"lambda:*",
		),
	}))

	// Deploys assume the service task role in the workload account.
	role.AddToPolicy(awsiam.NewPolicyStatement(&awsiam.PolicyStatementProps{
		Effect: awsiam.Effect_ALLOW,
		Resources: jsii.Strings(
			fmt.Sprintf("arn:aws:iam::%s:role/*", props.Env.Account),
			props.RoleARN,
		),
		Actions: jsii.Strings("sts:AssumeRole"),
	}))

	return role
}

// createBuildProject builds and pushes the service image. Services built
// with NextJS read their build args from the pipeline secret.
func createBuildProject(res *pipelineResources, vpc awsec2.IVpc, sg awsec2.ISecurityGroup, secret awssecretsmanager.ISecret) awscodebuild.PipelineProject {
	p := res.props
	mgmt := p.Settings.Management()

	spec := buildspec.ForService(p.Service.Name, buildspec.Params{
		ImageTag: p.Env.Name(),
		ECRURI:   naming.RepositoryURI(mgmt.Account, p.Settings.PrimaryRegion, p.Project.Name, p.Service.Name),
		Region:   p.Settings.PrimaryRegion,
		Secrets:  p.Service.Secrets,
	})

	var variables *map[string]*awscodebuild.BuildEnvironmentVariable
	if buildspec.UsesBuildSecrets(p.Service.Name) && len(p.Service.Secrets) > 0 {
		m := lo.SliceToMap(p.Service.Secrets, func(name string) (string, *awscodebuild.BuildEnvironmentVariable) {
			return name, &awscodebuild.BuildEnvironmentVariable{
				Type:  awscodebuild.BuildEnvironmentVariableType_SECRETS_MANAGER,
				Value: jsii.String(fmt.Sprintf("%s:%s::", *secret.SecretArn(), name)),
			}
		})
		variables = &m
	}

	return awscodebuild.NewPipelineProject(res.stack, jsii.String(res.prefix+"-codebuild-project"), &awscodebuild.PipelineProjectProps{
		ProjectName:     jsii.String(res.prefix + "-docker"),
		Description:     jsii.String("Build project for " + res.prefix),
		Role:            res.role,
		Vpc:             vpc,
		SubnetSelection: &awsec2.SubnetSelection{SubnetType: awsec2.SubnetType_PRIVATE_WITH_EGRESS},
		SecurityGroups:  &[]awsec2.ISecurityGroup{sg},
		Cache:           awscodebuild.Cache_Local(awscodebuild.LocalCacheMode_CUSTOM, awscodebuild.LocalCacheMode_DOCKER_LAYER),
		BuildSpec:       spec.BuildSpec(),
		Environment: &awscodebuild.BuildEnvironment{
			ComputeType:          awscodebuild.ComputeType_SMALL,
			BuildImage:           awscodebuild.LinuxBuildImage_STANDARD_7_0(),
			Privileged:           jsii.Bool(true),
			EnvironmentVariables: variables,
		},
		Logging: &awscodebuild.LoggingOptions{
			CloudWatch: &awscodebuild.CloudWatchLoggingOptions{
				LogGroup: awslogs.NewLogGroup(res.stack, jsii.String(res.prefix+"-codebuild-build-log-group"), &awslogs.LogGroupProps{
					LogGroupName:  jsii.String(fmt.Sprintf("codebuild/%s-build", res.prefix)),
					Retention:     awslogs.RetentionDays_ONE_DAY,
					RemovalPolicy: awscdk.RemovalPolicy_DESTROY,
				}),
			},
		},
		Timeout: awscdk.Duration_Minutes(jsii.Number(15)),
	})
}

// createDeployProjects returns one digest pinning deploy per region, the
// primary first.
func createDeployProjects(res *pipelineResources) []awscodebuild.PipelineProject {
	p := res.props
	mgmt := p.Settings.Management()

	logGroup := awslogs.NewLogGroup(res.stack, jsii.String(res.prefix+"-codebuild-deploy-log-group"), &awslogs.LogGroupProps{
		LogGroupName:  jsii.String(fmt.Sprintf("codebuild/%s-deploy", res.prefix)),
		Retention:     awslogs.RetentionDays_ONE_DAY,
		RemovalPolicy: awscdk.RemovalPolicy_DESTROY,
	})

	regions := deployRegions(p.Settings)
	projects := make([]awscodebuild.PipelineProject, 0, len(regions))
	for i, region := range regions {
		spec := buildspec.ECSDeploy(buildspec.DeployParams{
			Cluster:      p.Project.Name,
			Service:      p.Service.Name,
			RoleARN:      p.RoleARN,
			DesiredCount: p.DesiredCount,
			Region:       region,
			ECRURI:       naming.RepositoryURI(mgmt.Account, p.Settings.PrimaryRegion, p.Project.Name, p.Service.Name),
			ImageTag:     p.Env.Name(),
			RepoName:     naming.RepositoryName(p.Project.Name, p.Service.Name),
			Environment:  p.Env.Name(),
		})

		n := fmt.Sprintf("%02d", i+1)
		projects = append(projects, awscodebuild.NewPipelineProject(res.stack, jsii.String(res.prefix+"-codebuild-deploy-project-"+n), &awscodebuild.PipelineProjectProps{
			ProjectName: jsii.String(res.prefix + "-deploy-" + n),
			Description: jsii.String(fmt.Sprintf("Deployment project for %s %s", res.prefix, region)),
			Role:        res.role,
			BuildSpec:   spec.BuildSpec(),
			Environment: &awscodebuild.BuildEnvironment{
				ComputeType: awscodebuild.ComputeType_SMALL,
				BuildImage:  awscodebuild.LinuxBuildImage_STANDARD_7_0(),
				Privileged:  jsii.Bool(true),
			},
			Logging: &awscodebuild.LoggingOptions{
				CloudWatch: &awscodebuild.CloudWatchLoggingOptions{LogGroup: logGroup},
			},
			Timeout: awscdk.Duration_Minutes(jsii.Number(15)),
		}))
	}
	return projects
}

func createCodeBuildAlarm(stack awscdk.Stack, prefix string, project awscodebuild.IProject) awscloudwatch.Alarm {
	return alarm(stack, prefix+"-build-failed", awscloudwatch.NewMetric(&awscloudwatch.MetricProps{
		Namespace:  jsii.String("AWS/CodeBuild"),
		MetricName: jsii.String("FailedBuilds"),
		Statistic:  jsii.String("Sum"),
		Period:     awscdk.Duration_Minutes(jsii.Number(5)),
		DimensionsMap: &map[string]*string{
			"ProjectName": project.ProjectName(),
		},
		Unit: awscloudwatch.Unit_COUNT,
	}))
}
