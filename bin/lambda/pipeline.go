// Command lambda is the digest verifier invoked by the Verify stage of a
// service pipeline. It fails the job unless the running task definition
// references its image by digest.
package main

import (
	"context"
	"encoding/json"
	"os"
	"strings"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/codepipeline"
	"github.com/aws/aws-sdk-go-v2/service/codepipeline/types"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/ov3r/infra-aws-base-cdk/config"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// CodePipelineEvent is the structure of the event received from CodePipeline
type CodePipelineEvent struct {
	CodePipelineJob struct {
		ID   string  `json:"id"`
		Data JobData `json:"data"`
	} `json:"CodePipeline.job"`
}

type JobData struct {
	ActionConfiguration struct {
		Configuration struct {
			FunctionName   string `json:"FunctionName"`
			UserParameters string `json:"UserParameters"`
		} `json:"configuration"`
	} `json:"actionConfiguration"`
}

// params are the user parameters set on the Verify action.
type params struct {
	Cluster string `json:"cluster"`
	Service string `json:"service"`
	Region  string `json:"region"`
	RoleARN string `json:"roleArn"`
}

func (p params) validate() error {
	missing := lo.Filter([]lo.Tuple2[string, string]{
		lo.T2("cluster", p.Cluster),
		lo.T2("service", p.Service),
		lo.T2("region", p.Region),
		lo.T2("roleArn", p.RoleARN),
	}, func(f lo.Tuple2[string, string], _ int) bool { return f.B == "" })
	if len(missing) > 0 {
		return errors.Errorf("missing user parameter %s", missing[0].A)
	}
	return nil
}

type jobReporter interface {
	PutJobSuccessResult(ctx context.Context, in *codepipeline.PutJobSuccessResultInput, opts ...func(*codepipeline.Options)) (*codepipeline.PutJobSuccessResultOutput, error)
	PutJobFailureResult(ctx context.Context, in *codepipeline.PutJobFailureResultInput, opts ...func(*codepipeline.Options)) (*codepipeline.PutJobFailureResultOutput, error)
}

type serviceDescriber interface {
	DescribeServices(ctx context.Context, in *ecs.DescribeServicesInput, opts ...func(*ecs.Options)) (*ecs.DescribeServicesOutput, error)
	DescribeTaskDefinition(ctx context.Context, in *ecs.DescribeTaskDefinitionInput, opts ...func(*ecs.Options)) (*ecs.DescribeTaskDefinitionOutput, error)
}

type verifier struct {
	pipeline jobReporter
	// ecsFor returns an ECS client acting as the task role of the target
	// account.
	ecsFor func(p params) serviceDescriber
	log    *zap.Logger
}

func (v *verifier) handle(ctx context.Context, event CodePipelineEvent) error {
	jobID := event.CodePipelineJob.ID
	if jobID == "" {
		return errors.New("job ID not found in event")
	}
	log := v.log.With(zap.String("job", jobID))

	var p params
	raw := event.CodePipelineJob.Data.ActionConfiguration.Configuration.UserParameters
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return v.reportFailure(ctx, log, jobID, errors.Wrap(err, "decoding user parameters"))
	}
	if err := p.validate(); err != nil {
		return v.reportFailure(ctx, log, jobID, err)
	}

	image, err := v.runningImage(ctx, p)
	if err != nil {
		return v.reportFailure(ctx, log, jobID, err)
	}
	if !pinned(image) {
		return v.reportFailure(ctx, log, jobID, errors.Errorf("image %s is not pinned to a digest", image))
	}

	log.Info("image pinned", zap.String("service", p.Service), zap.String("image", image))
	return v.reportSuccess(ctx, log, jobID)
}

// runningImage is the first container image of the service's current task
// definition.
func (v *verifier) runningImage(ctx context.Context, p params) (string, error) {
	client := v.ecsFor(p)

	services, err := client.DescribeServices(ctx, &ecs.DescribeServicesInput{
		Cluster:  aws.String(p.Cluster),
		Services: []string{p.Service},
	})
	if err != nil {
		return "", errors.Wrapf(err, "describing service %s/%s", p.Cluster, p.Service)
	}
	if len(services.Services) == 0 {
		return "", errors.Errorf("service %s not found in cluster %s", p.Service, p.Cluster)
	}

	taskDef := aws.ToString(services.Services[0].TaskDefinition)
	described, err := client.DescribeTaskDefinition(ctx, &ecs.DescribeTaskDefinitionInput{
		TaskDefinition: aws.String(taskDef),
	})
	if err != nil {
		return "", errors.Wrapf(err, "describing task definition %s", taskDef)
	}
	if described.TaskDefinition == nil || len(described.TaskDefinition.ContainerDefinitions) == 0 {
		return "", errors.Errorf("task definition %s has no containers", taskDef)
	}
	return aws.ToString(described.TaskDefinition.ContainerDefinitions[0].Image), nil
}

func pinned(image string) bool {
	return strings.Contains(image, "@sha256:")
}

func (v *verifier) reportSuccess(ctx context.Context, log *zap.Logger, jobID string) error {
	_, err := v.pipeline.PutJobSuccessResult(ctx, &codepipeline.PutJobSuccessResultInput{
		JobId: aws.String(jobID),
	})
	if err != nil {
		return errors.Wrap(err, "reporting success to CodePipeline")
	}
	log.Debug("reported job success")
	return nil
}

// reportFailure fails the job. The invocation itself only errors when
// CodePipeline could not be told.
func (v *verifier) reportFailure(ctx context.Context, log *zap.Logger, jobID string, cause error) error {
	log.Warn("verification failed", zap.Error(cause))
	_, err := v.pipeline.PutJobFailureResult(ctx, &codepipeline.PutJobFailureResultInput{
		JobId: aws.String(jobID),
		FailureDetails: &types.FailureDetails{
			Type:    types.FailureTypeJobFailed,
			Message: aws.String(cause.Error()),
		},
	})
	if err != nil {
		return errors.Wrap(err, "reporting failure to CodePipeline")
	}
	return nil
}

func main() {
	level, _ := lo.Coalesce(os.Getenv("LOG_LEVEL"), "info")
	log, err := config.NewLogger(level)
	if err != nil {
		panic(err)
	}

	cfg, err := awsconfig.LoadDefaultConfig(context.Background())
	if err != nil {
		log.Fatal("loading AWS config", zap.Error(err))
	}
	stsClient := sts.NewFromConfig(cfg)

	v := &verifier{
		pipeline: codepipeline.NewFromConfig(cfg),
		ecsFor: func(p params) serviceDescriber {
			return ecs.NewFromConfig(cfg, func(o *ecs.Options) {
				o.Region = p.Region
				o.Credentials = aws.NewCredentialsCache(stscreds.NewAssumeRoleProvider(stsClient, p.RoleARN))
			})
		},
		log: log,
	}

	lambda.Start(v.handle)
}
