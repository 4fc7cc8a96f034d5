package stacks

import (
	"fmt"

	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/aws-cdk-go/awscdk/v2/awscloudwatchactions"
	"github.com/aws/aws-cdk-go/awscdk/v2/awscodebuild"
	"github.com/aws/aws-cdk-go/awscdk/v2/awscodepipeline"
	"github.com/aws/aws-cdk-go/awscdk/v2/awscodepipelineactions"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsec2"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsiam"
	"github.com/aws/aws-cdk-go/awscdk/v2/awslambda"
	"github.com/aws/aws-cdk-go/awscdk/v2/awss3"
	"github.com/aws/aws-cdk-go/awscdk/v2/awssecretsmanager"
	"github.com/aws/aws-cdk-go/awscdk/v2/awssns"
	"github.com/aws/constructs-go/constructs/v10"
	"github.com/aws/jsii-runtime-go"
	"github.com/ov3r/infra-aws-base-cdk/config"
	"github.com/ov3r/infra-aws-base-cdk/lib/naming"
	"github.com/ov3r/infra-aws-base-cdk/lib/tagging"
	"github.com/ov3r/infra-aws-base-cdk/properties"
	"go.uber.org/zap"
)

type PipelineStackProps struct {
	awscdk.StackProps
	Deps
	Project properties.Project
	// Env is the environment the pipeline deploys to. The stack itself
	// lives in the management account.
	Env          config.Environment
	Service      properties.Service
	DesiredCount int
	// RoleARN is the task role the deploy step assumes in the target account.
	RoleARN string
}

// PipelineStack builds and rolls out one service from its source branch.
type PipelineStack struct {
	awscdk.Stack
	Pipeline       awscodepipeline.Pipeline
	Build          awscodebuild.PipelineProject
	Deploys        []awscodebuild.PipelineProject
	ArtifactBucket awss3.IBucket
	// Verifier is nil unless a verifier asset directory is configured.
	Verifier awslambda.Function
}

// pipelineResources are the constructs shared by the stage builders.
type pipelineResources struct {
	stack  awscdk.Stack
	props  *PipelineStackProps
	prefix string
	role   awsiam.Role
	topic  awssns.ITopic
}

func NewPipelineStack(scope constructs.Construct, id string, props *PipelineStackProps) *PipelineStack {
	stack := newStack(scope, id, props.StackProps)

	env := props.Env.Name()
	project := props.Project.Name
	svc := props.Service
	prefix := naming.Prefix(env, project, svc.Name)

	tagging.Apply(stack, tagging.Props{
		Project:     project,
		Service:     svc.Name,
		Environment: env,
		Custom:      map[string]string{"Stack": "pipeline"},
	})

	vpc := lookupVpc(stack, project+"-imported-vpc", props.Settings.MgmtVPC)

	res := &pipelineResources{
		stack:  stack,
		props:  props,
		prefix: prefix,
		role:   createPipelineRole(stack, prefix, props),
		topic:  awssns.Topic_FromTopicArn(stack, jsii.String("import-"+project+"-"+svc.Name+"-sns-topic-arn"), importValue(naming.TopicExport(project))),
	}

	sg := awsec2.NewSecurityGroup(stack, jsii.String(prefix+"-code-pipeline-security-group"), &awsec2.SecurityGroupProps{
		Vpc:               vpc,
		SecurityGroupName: jsii.String(prefix + "-code-pipeline"),
		AllowAllOutbound:  jsii.Bool(true),
	})

	secret := awssecretsmanager.Secret_FromSecretAttributes(stack, jsii.String("import-"+prefix+"-pipeline-environment-variables"), &awssecretsmanager.SecretAttributes{
		SecretPartialArn: jsii.String(fmt.Sprintf("arn:aws:secretsmanager:%s:%s:secret:%s",
			*stack.Region(), *stack.Account(), naming.PipelineSecretName(project))),
	})
	secret.GrantRead(res.role, nil)

	build := createBuildProject(res, vpc, sg, secret)
	deploys := createDeployProjects(res)

	artifactBucket := createArtifactBucket(stack, prefix, props.Settings.ArtifactBucketName)

	sourceArtifact := awscodepipeline.NewArtifact(jsii.String("SourceArtifact"), nil)
	buildArtifact := awscodepipeline.NewArtifact(jsii.String("BuildArtifact"), nil)

	stages := []*awscodepipeline.StageProps{
		createSourceStage(res, sourceArtifact),
		createBuildStage(res, build, sourceArtifact, buildArtifact),
	}
	// Production rollouts wait for a human.
	if props.Env.Key == config.Prod {
		stages = append(stages, createApprovalStage(res))
	}
	stages = append(stages, createDeployStage(res, deploys, sourceArtifact))
	if len(deploys) > 1 {
		props.Log.Info("secondary deploy project built outside the pipeline",
			zap.String("pipeline", prefix),
			zap.String("region", props.Settings.SecondaryRegion))
	}

	var verifier awslambda.Function
	if props.Settings.VerifierAssetDir != "" {
		var alias awslambda.Alias
		verifier, alias = createLambdaResources(res)
		stages = append(stages, createVerifyStage(res, alias))
	} else {
		props.Log.Info("no verifier asset directory, skipping verify stage", zap.String("pipeline", prefix))
	}

	pipeline := awscodepipeline.NewPipeline(stack, jsii.String(prefix+"-pipeline"), &awscodepipeline.PipelineProps{
		PipelineName:             jsii.String(prefix),
		Role:                     res.role,
		ArtifactBucket:           artifactBucket,
		CrossAccountKeys:         jsii.Bool(false),
		RestartExecutionOnUpdate: jsii.Bool(true),
		Stages:                   &stages,
	})

	createNotificationRules(res, pipeline, build, deploys)

	buildAlarm := createCodeBuildAlarm(stack, prefix, build)
	buildAlarm.AddAlarmAction(awscloudwatchactions.NewSnsAction(res.topic))

	createStackOutputs(stack, pipeline, build, verifier)

	tagging.Environment(env, res.role, sg, build, pipeline, artifactBucket)
	for _, d := range deploys {
		tagging.Environment(env, d)
	}

	props.Log.Debug("pipeline stack",
		zap.String("pipeline", prefix),
		zap.Int("stages", len(stages)),
		zap.Int("deploys", len(deploys)))

	return &PipelineStack{
		Stack:          stack,
		Pipeline:       pipeline,
		Build:          build,
		Deploys:        deploys,
		ArtifactBucket: artifactBucket,
		Verifier:       verifier,
	}
}

func createSourceStage(res *pipelineResources, output awscodepipeline.Artifact) *awscodepipeline.StageProps {
	p := res.props
	return &awscodepipeline.StageProps{
		StageName: jsii.String("Source"),
		Actions: &[]awscodepipeline.IAction{
			awscodepipelineactions.NewCodeStarConnectionsSourceAction(&awscodepipelineactions.CodeStarConnectionsSourceActionProps{
				ActionName:    jsii.String("github"),
				Owner:         jsii.String(p.Project.OwnerOr(p.Settings.GithubOwner)),
				Repo:          jsii.String(p.Service.Repository),
				Branch:        jsii.String(p.Env.Name()),
				ConnectionArn: jsii.String(p.Project.ConnectionOr(p.Settings.ConnectionARN)),
				Output:        output,
				Role:          res.role,
				TriggerOnPush: jsii.Bool(true),
			}),
		},
	}
}

func createBuildStage(res *pipelineResources, project awscodebuild.IProject, input, output awscodepipeline.Artifact) *awscodepipeline.StageProps {
	return &awscodepipeline.StageProps{
		StageName: jsii.String("Build"),
		Actions: &[]awscodepipeline.IAction{
			awscodepipelineactions.NewCodeBuildAction(&awscodepipelineactions.CodeBuildActionProps{
				ActionName: jsii.String("docker"),
				Project:    project,
				Input:      input,
				Outputs:    &[]awscodepipeline.Artifact{output},
				Role:       res.role,
			}),
		},
	}
}

func createApprovalStage(res *pipelineResources) *awscodepipeline.StageProps {
	return &awscodepipeline.StageProps{
		StageName: jsii.String("Approve"),
		Actions: &[]awscodepipeline.IAction{
			awscodepipelineactions.NewManualApprovalAction(&awscodepipelineactions.ManualApprovalActionProps{
				ActionName:            jsii.String("approve"),
				Role:                  res.role,
				NotificationTopic:     res.topic,
				AdditionalInformation: jsii.String("Approve the rollout of " + res.prefix),
			}),
		},
	}
}

// createDeployStage rolls out to the primary region. Secondary region
// projects stay outside the stage until services are composed there.
func createDeployStage(res *pipelineResources, projects []awscodebuild.PipelineProject, input awscodepipeline.Artifact) *awscodepipeline.StageProps {
	return &awscodepipeline.StageProps{
		StageName: jsii.String("Deploy"),
		Actions: &[]awscodepipeline.IAction{
			awscodepipelineactions.NewCodeBuildAction(&awscodepipelineactions.CodeBuildActionProps{
				ActionName: jsii.String(res.props.Settings.PrimaryRegion),
				Project:    projects[0],
				Input:      input,
				Type:       awscodepipelineactions.CodeBuildActionType_BUILD,
				Role:       res.role,
			}),
		},
	}
}

func createVerifyStage(res *pipelineResources, fn awslambda.IFunction) *awscodepipeline.StageProps {
	p := res.props
	return &awscodepipeline.StageProps{
		StageName: jsii.String("Verify"),
		Actions: &[]awscodepipeline.IAction{
			awscodepipelineactions.NewLambdaInvokeAction(&awscodepipelineactions.LambdaInvokeActionProps{
				ActionName: jsii.String("digest"),
				Lambda:     fn,
				Role:       res.role,
				UserParameters: &map[string]interface{}{
					"cluster": p.Project.Name,
					"service": p.Service.Name,
					"region":  p.Settings.PrimaryRegion,
					"roleArn": p.RoleARN,
				},
			}),
		},
	}
}

// deployRegions lists the primary region, then the secondary when set.
func deployRegions(s *config.Settings) []string {
	regions := []string{s.PrimaryRegion}
	if s.SecondaryRegion != "" {
		regions = append(regions, s.SecondaryRegion)
	}
	return regions
}
