package stacks

import (
	"fmt"
	"strings"

	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsapplicationautoscaling"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsec2"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsecr"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsecs"
	elbv2 "github.com/aws/aws-cdk-go/awscdk/v2/awselasticloadbalancingv2"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsiam"
	"github.com/aws/aws-cdk-go/awscdk/v2/awslogs"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsroute53"
	"github.com/aws/aws-cdk-go/awscdk/v2/awss3"
	"github.com/aws/aws-cdk-go/awscdk/v2/awssecretsmanager"
	"github.com/aws/constructs-go/constructs/v10"
	"github.com/aws/jsii-runtime-go"
	"github.com/ov3r/infra-aws-base-cdk/config"
	"github.com/ov3r/infra-aws-base-cdk/lib/naming"
	"github.com/ov3r/infra-aws-base-cdk/lib/tagging"
	"github.com/ov3r/infra-aws-base-cdk/properties"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

type FargateStackProps struct {
	awscdk.StackProps
	Deps
	Project  properties.Project
	Env      config.Environment
	Workload properties.Workload
	ImageTag string
	// DocumentStorage adds a per service bucket exposed as S3_BUCKET_NAME.
	DocumentStorage bool
	// Management is the stack owning the image repository and the
	// notification topic. The service pipeline deploys after it.
	Management awscdk.Stack
}

// FargateStack runs one HTTP service behind the shared HTTPS listener.
type FargateStack struct {
	awscdk.Stack
	Service  awsecs.FargateService
	TaskRole awsiam.Role
	Secret   awssecretsmanager.Secret
	Bucket   awss3.Bucket
	// Pipeline is nil outside the primary region and for services built
	// elsewhere.
	Pipeline *PipelineStack

	workload properties.Workload
}

func (s *FargateStack) Workload() properties.Workload {
	return s.workload
}

func NewFargateStack(scope constructs.Construct, id string, props *FargateStackProps) *FargateStack {
	stack := newStack(scope, id, props.StackProps)

	env := props.Env.Name()
	project := props.Project.Name
	svc := props.Workload.Service
	sizing := props.Workload.Properties
	prefix := naming.Prefix(env, project, svc.Name)
	mgmt := props.Settings.Management()

	tags := tagging.Props{
		Project:     project,
		Service:     svc.Name,
		Environment: env,
		Prefix:      prefix,
		Custom:      map[string]string{"Stack": "fargate"},
	}
	tagging.Apply(stack, tags)

	secret := awssecretsmanager.NewSecret(stack, jsii.String(prefix+"-secret"), &awssecretsmanager.SecretProps{
		SecretName:        jsii.String(prefix),
		SecretObjectValue: secretPlaceholders(svc.Secrets),
		Description:       jsii.String("Environment variables for " + svc.Name),
	})
	secret.ApplyRemovalPolicy(awscdk.RemovalPolicy_DESTROY)

	// Imports
	vpc := lookupVpc(stack, "importing-"+prefix+"-vpc", props.Env.VPC)

	cluster := awsecs.Cluster_FromClusterAttributes(stack, jsii.String("import-"+prefix+"-fargate-cluster"), &awsecs.ClusterAttributes{
		ClusterName:    jsii.String(project),
		Vpc:            vpc,
		SecurityGroups: &[]awsec2.ISecurityGroup{},
	})

	repository := awsecr.Repository_FromRepositoryArn(stack, jsii.String("import-"+prefix+"-ecr-repository"),
		jsii.String(naming.RepositoryARN(mgmt.Account, mgmt.Region, project, svc.Name)))

	// IAM
	taskRole := awsiam.NewRole(stack, jsii.String(prefix+"-ecs-task-role"), &awsiam.RoleProps{
		AssumedBy: awsiam.NewCompositePrincipal(
			awsiam.NewAccountPrincipal(jsii.String(mgmt.Account)),
			awsiam.NewServicePrincipal(jsii.String("ecs-tasks.amazonaws.com"), nil),
		),
		RoleName: jsii.String(naming.TaskRoleName(env, project, svc.Name)),
	})
	taskRole.AddManagedPolicy(awsiam.ManagedPolicy_FromAwsManagedPolicyName(jsii.String("service-role/AmazonECSTaskExecutionRolePolicy")))
	secret.GrantRead(taskRole, nil)
	repository.GrantPull(taskRole)

	// The pipeline assumes this role to roll out new task definitions.
	taskRole.AddToPrincipalPolicy(awsiam.NewPolicyStatement(&awsiam.PolicyStatementProps{
		Effect: awsiam.Effect_ALLOW,
		Actions: jsii.Strings(
			"ecs:DescribeServices",
			"ecs:DescribeTaskDefinition",
			"ecs:RegisterTaskDefinition",
			"ecs:UpdateService",
			"ecr:DescribeImages",
		),
		Resources: jsii.Strings("*"),
	}))
	taskRole.AddToPrincipalPolicy(awsiam.NewPolicyStatement(&awsiam.PolicyStatementProps{
		Effect:    awsiam.Effect_ALLOW,
		Actions:   jsii.Strings("iam:PassRole"),
		Resources: jsii.Strings(naming.TaskRoleARN(props.Env.Account, env, project, svc.Name)),
	}))

	logGroup := awslogs.NewLogGroup(stack, jsii.String(prefix+"-container-log-group"), &awslogs.LogGroupProps{
		LogGroupName:  jsii.String(fmt.Sprintf("ecs/container/%s/%s/%s", project, env, svc.Name)),
		Retention:     awslogs.RetentionDays_ONE_WEEK,
		RemovalPolicy: awscdk.RemovalPolicy_DESTROY,
	})

	// Security
	sg := awsec2.NewSecurityGroup(stack, jsii.String(prefix+"-fargate-security-group"), &awsec2.SecurityGroupProps{
		Vpc:               vpc,
		SecurityGroupName: jsii.String(prefix + "-fargate"),
		AllowAllOutbound:  jsii.Bool(true),
	})
	tagging.Apply(sg, tags)
	allowVpc(sg, vpc, awsec2.Port_Tcp(jsii.Number(80)), awsec2.Port_AllIcmp())
	allowWhitelist(sg, awsec2.Port_Tcp(jsii.Number(80)), awsec2.Port_AllIcmp())

	environment := map[string]*string{
		"REGION":      stack.Region(),
		"PORT":        jsii.String("80"),
		"HOST_HEADER": jsii.String(lo.FirstOr(sizing.HostHeaders, "")),
		"NODE_ENV":    jsii.String(lo.Ternary(props.Env.Key == config.Prod, "production", "development")),
	}

	var bucket awss3.Bucket
	if props.DocumentStorage {
		bucket = awss3.NewBucket(stack, jsii.String(prefix+"-document-storage"), &awss3.BucketProps{
			BucketName:        jsii.String(prefix + "-document-storage"),
			RemovalPolicy:     awscdk.RemovalPolicy_DESTROY,
			AutoDeleteObjects: jsii.Bool(true),
			ObjectOwnership:   awss3.ObjectOwnership_BUCKET_OWNER_ENFORCED,
			BlockPublicAccess: awss3.BlockPublicAccess_BLOCK_ALL(),
			EnforceSSL:        jsii.Bool(true),
		})
		bucket.GrantReadWrite(taskRole, nil)
		environment["S3_BUCKET_NAME"] = bucket.BucketName()
	}

	// Fargate
	taskDef := awsecs.NewFargateTaskDefinition(stack, jsii.String(prefix+"-fargate-task-definition"), &awsecs.FargateTaskDefinitionProps{
		Family:         jsii.String(prefix),
		ExecutionRole:  taskRole,
		TaskRole:       taskRole,
		MemoryLimitMiB: jsii.Number(float64(sizing.MemoryLimitMiB)),
		Cpu:            jsii.Number(float64(sizing.CPU)),
	})

	taskDef.AddContainer(jsii.String(prefix+"-fargate-container"), &awsecs.ContainerDefinitionOptions{
		Image:          awsecs.ContainerImage_FromEcrRepository(repository, jsii.String(props.ImageTag)),
		MemoryLimitMiB: jsii.Number(float64(sizing.MemoryLimitMiB)),
		Cpu:            jsii.Number(float64(sizing.CPU)),
		Essential:      jsii.Bool(true),
		Logging: awsecs.NewAwsLogDriver(&awsecs.AwsLogDriverProps{
			StreamPrefix:     jsii.String("ecs"),
			LogGroup:         logGroup,
			MultilinePattern: jsii.String("^(INFO|DEBUG|WARN|ERROR|CRITICAL)"),
		}),
		HealthCheck: &awsecs.HealthCheck{
			Command:     jsii.Strings("CMD-SHELL", "curl -f http://localhost:80/ || exit 1"),
			Interval:    awscdk.Duration_Seconds(jsii.Number(15)),
			Retries:     jsii.Number(5),
			StartPeriod: awscdk.Duration_Seconds(jsii.Number(15)),
			Timeout:     awscdk.Duration_Seconds(jsii.Number(10)),
		},
		PortMappings: &[]*awsecs.PortMapping{{
			ContainerPort: jsii.Number(80),
			HostPort:      jsii.Number(80),
			Protocol:      awsecs.Protocol_TCP,
		}},
		Secrets:     containerSecrets(secret, svc.Secrets),
		Environment: &environment,
	})

	serviceProps := &awsecs.FargateServiceProps{
		ServiceName:     jsii.String(svc.Name),
		DesiredCount:    jsii.Number(float64(sizing.DesiredCount)),
		Cluster:         cluster,
		TaskDefinition:  taskDef,
		PlatformVersion: awsecs.FargatePlatformVersion_LATEST,
		DeploymentController: &awsecs.DeploymentController{
			Type: awsecs.DeploymentControllerType_ECS,
		},
		VpcSubnets: &awsec2.SubnetSelection{
			SubnetType: awsec2.SubnetType_PRIVATE_WITH_EGRESS,
			OnePerAz:   jsii.Bool(true),
		},
		AssignPublicIp:    jsii.Bool(false),
		SecurityGroups:    &[]awsec2.ISecurityGroup{sg},
		MinHealthyPercent: jsii.Number(50),
		MaxHealthyPercent: jsii.Number(200),
		CapacityProviderStrategies: &[]*awsecs.CapacityProviderStrategy{{
			CapacityProvider: jsii.String("FARGATE_SPOT"),
			Weight:           jsii.Number(float64(lo.Ternary(sizing.DesiredCount == 0, 1, sizing.DesiredCount))),
		}},
	}
	// A grace period is only accepted for services behind a load balancer.
	if sizing.Routed() {
		serviceProps.HealthCheckGracePeriod = awscdk.Duration_Seconds(jsii.Number(15))
	}
	service := awsecs.NewFargateService(stack, jsii.String(prefix+"-fargate-service"), serviceProps)
	service.ApplyRemovalPolicy(awscdk.RemovalPolicy_DESTROY)

	autoscale(service, prefix, ScalingBounds(sizing.DesiredCount))

	if sizing.Routed() {
		route(stack, props, prefix, vpc, service)
	}

	fs := &FargateStack{
		Stack:    stack,
		Service:  service,
		TaskRole: taskRole,
		Secret:   secret,
		Bucket:   bucket,
		workload: props.Workload,
	}

	if *stack.Region() == props.Settings.PrimaryRegion && svc.Pipelined() {
		fs.Pipeline = NewPipelineStack(stack, naming.PipelineStackName(env, project, svc.Name), &PipelineStackProps{
			StackProps: awscdk.StackProps{
				Env:         mgmt.CDK(),
				Description: jsii.String("Codepipeline resources for " + svc.Name),
			},
			Deps:         props.Deps,
			Project:      props.Project,
			Env:          props.Env,
			Service:      svc,
			DesiredCount: sizing.DesiredCount,
			RoleARN:      naming.TaskRoleARN(props.Env.Account, env, project, svc.Name),
		})
		if props.Management != nil {
			fs.Pipeline.AddDependency(props.Management, jsii.String("image repository and notification topic"))
		}
	} else {
		props.Log.Info("skipping service pipeline",
			zap.String("service", prefix),
			zap.String("region", *stack.Region()),
			zap.Bool("pipelined", svc.Pipelined()))
	}

	return fs
}

func autoscale(service awsecs.FargateService, prefix string, bounds Bounds) {
	scaling := service.AutoScaleTaskCount(&awsapplicationautoscaling.EnableScalingProps{
		MinCapacity: jsii.Number(float64(bounds.Min)),
		MaxCapacity: jsii.Number(float64(bounds.Max)),
	})
	scaling.ScaleOnCpuUtilization(jsii.String(prefix+"-cpu-autoscaling"), &awsecs.CpuUtilizationScalingProps{
		TargetUtilizationPercent: jsii.Number(80),
		ScaleInCooldown:          awscdk.Duration_Seconds(jsii.Number(300)),
		ScaleOutCooldown:         awscdk.Duration_Seconds(jsii.Number(60)),
		PolicyName:               jsii.String(prefix + "-cpu-autoscaling"),
	})
	scaling.ScaleOnMemoryUtilization(jsii.String(prefix+"-memory-autoscaling"), &awsecs.MemoryUtilizationScalingProps{
		TargetUtilizationPercent: jsii.Number(80),
		ScaleInCooldown:          awscdk.Duration_Seconds(jsii.Number(300)),
		ScaleOutCooldown:         awscdk.Duration_Seconds(jsii.Number(60)),
		PolicyName:               jsii.String(prefix + "-memory-autoscaling"),
	})
}

// route attaches the service to the shared HTTPS listener and points each
// host header that lives in the environment zone at the load balancer.
func route(stack awscdk.Stack, props *FargateStackProps, prefix string, vpc awsec2.IVpc, service awsecs.FargateService) {
	env := props.Env.Name()
	project := props.Project.Name
	sizing := props.Workload.Properties

	targetGroup := elbv2.NewApplicationTargetGroup(stack, jsii.String(prefix+"-target-group"), &elbv2.ApplicationTargetGroupProps{
		Port:     jsii.Number(80),
		Vpc:      vpc,
		Protocol: elbv2.ApplicationProtocol_HTTP,
		HealthCheck: &elbv2.HealthCheck{
			Interval:                awscdk.Duration_Seconds(jsii.Number(15)),
			Path:                    jsii.String(props.Workload.Service.HealthCheck),
			HealthyHttpCodes:        jsii.String("200"),
			Timeout:                 awscdk.Duration_Seconds(jsii.Number(10)),
			UnhealthyThresholdCount: jsii.Number(5),
			HealthyThresholdCount:   jsii.Number(2),
		},
		TargetGroupName:     jsii.String(naming.Truncate(prefix, naming.MaxLoadBalancerName)),
		Targets:             &[]elbv2.IApplicationLoadBalancerTarget{service},
		DeregistrationDelay: awscdk.Duration_Seconds(jsii.Number(10)),
	})

	listener := elbv2.ApplicationListener_FromApplicationListenerAttributes(stack, jsii.String(prefix+"-https-listener"), &elbv2.ApplicationListenerAttributes{
		ListenerArn: importValue(naming.ListenerExport(env, project)),
		SecurityGroup: awsec2.SecurityGroup_FromSecurityGroupId(stack, jsii.String("imported-"+prefix+"-load-balancer-sg-id"),
			importValue(naming.LoadBalancerSGExport(env, project)),
			&awsec2.SecurityGroupImportOptions{
				AllowAllOutbound: jsii.Bool(true),
				Mutable:          jsii.Bool(true),
			}),
	})

	listener.AddAction(jsii.String(prefix+"-https-listener-action"), &elbv2.AddApplicationActionProps{
		Priority:   jsii.Number(float64(sizing.Priority)),
		Conditions: &[]elbv2.ListenerCondition{elbv2.ListenerCondition_HostHeaders(jsii.Strings(sizing.HostHeaders...))},
		Action: elbv2.ListenerAction_WeightedForward(&[]*elbv2.WeightedTargetGroup{{
			TargetGroup: targetGroup,
			Weight:      jsii.Number(1),
		}}, nil),
	})

	zoneName := naming.EnvZone(env, props.Project.DomainOr(props.Settings.Domain))
	var zone awsroute53.IHostedZone
	for i, host := range sizing.HostHeaders {
		if host != zoneName && !strings.HasSuffix(host, "."+zoneName) {
			props.Log.Info("host header outside environment zone, no record created",
				zap.String("host", host), zap.String("zone", zoneName))
			continue
		}
		if zone == nil {
			zone = awsroute53.HostedZone_FromHostedZoneAttributes(stack, jsii.String("imported-"+prefix+"-hosted-zone"), &awsroute53.HostedZoneAttributes{
				HostedZoneId: importValue(naming.HostedZoneExport(env, project)),
				ZoneName:     jsii.String(zoneName),
			})
		}
		awsroute53.NewCnameRecord(stack, jsii.String(fmt.Sprintf("%s-cname-%d", prefix, i)), &awsroute53.CnameRecordProps{
			Zone:       zone,
			RecordName: jsii.String(host),
			DomainName: importValue(naming.LoadBalancerDNSExport(env, project)),
			Ttl:        awscdk.Duration_Minutes(jsii.Number(30)),
		})
	}
}

func secretPlaceholders(names []string) *map[string]awscdk.SecretValue {
	if len(names) == 0 {
		return nil
	}
	m := lo.SliceToMap(names, func(name string) (string, awscdk.SecretValue) {
		return name, awscdk.SecretValue_UnsafePlainText(jsii.String(""))
	})
	return &m
}

func containerSecrets(secret awssecretsmanager.ISecret, names []string) *map[string]awsecs.Secret {
	if len(names) == 0 {
		return nil
	}
	m := lo.SliceToMap(names, func(name string) (string, awsecs.Secret) {
		return name, awsecs.Secret_FromSecretsManager(secret, jsii.String(name))
	})
	return &m
}
