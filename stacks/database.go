package stacks

import (
	"fmt"

	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsec2"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsecs"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsefs"
	elbv2 "github.com/aws/aws-cdk-go/awscdk/v2/awselasticloadbalancingv2"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsevents"
	"github.com/aws/aws-cdk-go/awscdk/v2/awseventstargets"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsiam"
	"github.com/aws/aws-cdk-go/awscdk/v2/awslogs"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsroute53"
	"github.com/aws/aws-cdk-go/awscdk/v2/awssecretsmanager"
	"github.com/aws/constructs-go/constructs/v10"
	"github.com/aws/jsii-runtime-go"
	"github.com/ov3r/infra-aws-base-cdk/config"
	"github.com/ov3r/infra-aws-base-cdk/lib/naming"
	"github.com/ov3r/infra-aws-base-cdk/lib/tagging"
	"github.com/ov3r/infra-aws-base-cdk/properties"
)

const (
	postgresImage = "public.ecr.aws/docker/library/postgres:17.4"
	postgresPort  = 5432
	postgresUser  = "postgres"
	postgresData  = "/var/lib/postgresql/data"
	efsVolume     = "efs-volume"
)

type DatabaseStackProps struct {
	awscdk.StackProps
	Deps
	Project  properties.Project
	Env      config.Environment
	Workload properties.Workload
}

// DatabaseStack runs a single postgres task on EFS behind an internal
// network load balancer.
type DatabaseStack struct {
	awscdk.Stack
	Service      awsecs.FargateService
	Secret       awssecretsmanager.Secret
	FileSystem   awsefs.FileSystem
	LoadBalancer elbv2.NetworkLoadBalancer

	workload properties.Workload
}

func (s *DatabaseStack) Workload() properties.Workload {
	return s.workload
}

func NewDatabaseStack(scope constructs.Construct, id string, props *DatabaseStackProps) *DatabaseStack {
	stack := newStack(scope, id, props.StackProps)

	env := props.Env.Name()
	project := props.Project.Name
	svc := props.Workload.Service
	sizing := props.Workload.Properties
	prefix := naming.Prefix(env, project, svc.Name)
	zoneName := naming.EnvZone(env, props.Project.DomainOr(props.Settings.Domain))
	host := fmt.Sprintf("%s.%s", sizing.Subdomain, zoneName)

	tags := tagging.Props{
		Project:     project,
		Service:     svc.Name,
		Environment: env,
		Prefix:      prefix,
		Custom:      map[string]string{"Stack": "database"},
	}
	tagging.Apply(stack, tags)

	vpc := lookupVpc(stack, "importing-"+prefix+"-vpc", props.Env.VPC)

	template := fmt.Sprintf(`{"POSTGRES_DB":%q,"POSTGRES_HOST":%q,"POSTGRES_PORT":"%d","POSTGRES_USER":%q}`,
		postgresUser, host, postgresPort, postgresUser)
	secret := awssecretsmanager.NewSecret(stack, jsii.String(prefix+"-secret"), &awssecretsmanager.SecretProps{
		SecretName:  jsii.String(prefix),
		Description: jsii.String("Connection settings for " + svc.Name),
		GenerateSecretString: &awssecretsmanager.SecretStringGenerator{
			SecretStringTemplate: jsii.String(template),
			GenerateStringKey:    jsii.String("POSTGRES_PASSWORD"),
			ExcludePunctuation:   jsii.Bool(true),
		},
	})
	secret.ApplyRemovalPolicy(awscdk.RemovalPolicy_DESTROY)

	role := awsiam.NewRole(stack, jsii.String(prefix+"-role"), &awsiam.RoleProps{
		AssumedBy: awsiam.NewCompositePrincipal(
			awsiam.NewServicePrincipal(jsii.String("ecs-tasks.amazonaws.com"), nil),
			awsiam.NewServicePrincipal(jsii.String("ecs.amazonaws.com"), nil),
		),
		RoleName: jsii.String(prefix + "-role"),
	})
	role.AddManagedPolicy(awsiam.ManagedPolicy_FromAwsManagedPolicyName(jsii.String("service-role/AmazonECSTaskExecutionRolePolicy")))
	secret.GrantRead(role, nil)

	cluster := awsecs.Cluster_FromClusterAttributes(stack, jsii.String("import-"+prefix+"-fargate-cluster"), &awsecs.ClusterAttributes{
		ClusterName:    jsii.String(project),
		Vpc:            vpc,
		SecurityGroups: &[]awsec2.ISecurityGroup{},
	})

	// Security
	sg := awsec2.NewSecurityGroup(stack, jsii.String(prefix+"-sg"), &awsec2.SecurityGroupProps{
		Vpc:               vpc,
		Description:       jsii.String("Security group for postgres in " + env),
		AllowAllOutbound:  jsii.Bool(true),
		SecurityGroupName: jsii.String(prefix),
	})
	tagging.Apply(sg, tags)
	allowVpc(sg, vpc, awsec2.Port_Tcp(jsii.Number(80)), awsec2.Port_Tcp(jsii.Number(postgresPort)), awsec2.Port_AllIcmp())
	sg.AddIngressRule(sg, awsec2.Port_Tcp(jsii.Number(postgresPort)), jsii.String("Allow postgres from self"), nil)
	allowWhitelist(sg, awsec2.Port_Tcp(jsii.Number(postgresPort)), awsec2.Port_AllIcmp())

	efsSG := awsec2.NewSecurityGroup(stack, jsii.String(prefix+"-efs-security-group"), &awsec2.SecurityGroupProps{
		Vpc:               vpc,
		SecurityGroupName: jsii.String(prefix + "-efs"),
		Description:       jsii.String("Security group for EFS mount targets in " + env),
	})
	awscdk.Tags_Of(efsSG).Add(jsii.String("Name"), jsii.String(prefix+"-efs"), nil)
	efsSG.AddIngressRule(sg, awsec2.Port_Tcp(jsii.Number(2049)), jsii.String("Allow NFS from Fargate tasks"), nil)
	allowVpc(efsSG, vpc, awsec2.Port_Tcp(jsii.Number(2049)))

	// Storage
	fileSystem := awsefs.NewFileSystem(stack, jsii.String(prefix+"-efs"), &awsefs.FileSystemProps{
		Vpc:                    vpc,
		VpcSubnets:             &awsec2.SubnetSelection{SubnetType: awsec2.SubnetType_PRIVATE_WITH_EGRESS},
		Encrypted:              jsii.Bool(true),
		RemovalPolicy:          awscdk.RemovalPolicy_RETAIN,
		FileSystemName:         jsii.String(prefix),
		SecurityGroup:          efsSG,
		EnableAutomaticBackups: jsii.Bool(true),
		PerformanceMode:        awsefs.PerformanceMode_GENERAL_PURPOSE,
		ThroughputMode:         awsefs.ThroughputMode_BURSTING,
	})
	fileSystem.Grant(role, jsii.String("elasticfilesystem:ClientMount"), jsii.String("elasticfilesystem:ClientWrite"))

	accessPoint := fileSystem.AddAccessPoint(jsii.String(prefix+"-access-point"), &awsefs.AccessPointOptions{
		Path: jsii.String("/postgresql"),
		CreateAcl: &awsefs.Acl{
			OwnerGid:    jsii.String("999"),
			OwnerUid:    jsii.String("999"),
			Permissions: jsii.String("755"),
		},
		PosixUser: &awsefs.PosixUser{
			Gid: jsii.String("999"),
			Uid: jsii.String("999"),
		},
	})

	logGroup := awslogs.NewLogGroup(stack, jsii.String(prefix+"-logs"), &awslogs.LogGroupProps{
		LogGroupName:  jsii.String("/ecs/" + prefix),
		Retention:     awslogs.RetentionDays_TWO_MONTHS,
		RemovalPolicy: awscdk.RemovalPolicy_DESTROY,
	})

	// Fargate
	taskDef := awsecs.NewFargateTaskDefinition(stack, jsii.String(prefix+"-task-definition"), &awsecs.FargateTaskDefinitionProps{
		Family:         jsii.String(prefix),
		ExecutionRole:  role,
		TaskRole:       role,
		MemoryLimitMiB: jsii.Number(float64(sizing.MemoryLimitMiB)),
		Cpu:            jsii.Number(float64(sizing.CPU)),
		Volumes: &[]*awsecs.Volume{{
			Name: jsii.String(efsVolume),
			EfsVolumeConfiguration: &awsecs.EfsVolumeConfiguration{
				FileSystemId:      fileSystem.FileSystemId(),
				TransitEncryption: jsii.String("ENABLED"),
				AuthorizationConfig: &awsecs.AuthorizationConfig{
					AccessPointId: accessPoint.AccessPointId(),
					Iam:           jsii.String("ENABLED"),
				},
			},
		}},
	})

	container := taskDef.AddContainer(jsii.String(prefix+"-fargate-container"), &awsecs.ContainerDefinitionOptions{
		Image:          awsecs.ContainerImage_FromRegistry(jsii.String(postgresImage), nil),
		MemoryLimitMiB: jsii.Number(float64(sizing.MemoryLimitMiB)),
		Cpu:            jsii.Number(float64(sizing.CPU)),
		Essential:      jsii.Bool(true),
		StopTimeout:    awscdk.Duration_Seconds(jsii.Number(120)),
		Environment: &map[string]*string{
			"POSTGRES_USER":             jsii.String(postgresUser),
			"POSTGRES_DB":               jsii.String(postgresUser),
			"PGDATA":                    jsii.String(postgresData + "/pgdata"),
			"POSTGRES_INITDB_ARGS":      jsii.String("--auth-host=scram-sha-256"),
			"POSTGRES_HOST_AUTH_METHOD": jsii.String("scram-sha-256"),
		},
		Secrets: &map[string]awsecs.Secret{
			"POSTGRES_PASSWORD": awsecs.Secret_FromSecretsManager(secret, jsii.String("POSTGRES_PASSWORD")),
		},
		LinuxParameters: awsecs.NewLinuxParameters(stack, jsii.String(prefix+"-linux-parameters"), &awsecs.LinuxParametersProps{
			InitProcessEnabled: jsii.Bool(true),
		}),
		Logging: awsecs.NewAwsLogDriver(&awsecs.AwsLogDriverProps{
			StreamPrefix:     jsii.String("ecs"),
			LogGroup:         logGroup,
			MultilinePattern: jsii.String("^(INFO|DEBUG|WARN|ERROR|CRITICAL)"),
		}),
		HealthCheck: &awsecs.HealthCheck{
			Command:     jsii.Strings("CMD-SHELL", "pg_isready -U "+postgresUser+" || exit 1"),
			Interval:    awscdk.Duration_Seconds(jsii.Number(30)),
			Timeout:     awscdk.Duration_Seconds(jsii.Number(5)),
			Retries:     jsii.Number(3),
			StartPeriod: awscdk.Duration_Seconds(jsii.Number(60)),
		},
		PortMappings: &[]*awsecs.PortMapping{{
			Name:          jsii.String("postgresql"),
			HostPort:      jsii.Number(postgresPort),
			ContainerPort: jsii.Number(postgresPort),
			Protocol:      awsecs.Protocol_TCP,
		}},
	})
	container.AddMountPoints(&awsecs.MountPoint{
		ContainerPath: jsii.String(postgresData),
		ReadOnly:      jsii.Bool(false),
		SourceVolume:  jsii.String(efsVolume),
	})
	container.AddUlimits(
		&awsecs.Ulimit{Name: awsecs.UlimitName_NOFILE, SoftLimit: jsii.Number(65536), HardLimit: jsii.Number(65536)},
		&awsecs.Ulimit{Name: awsecs.UlimitName_NPROC, SoftLimit: jsii.Number(65536), HardLimit: jsii.Number(65536)},
	)

	service := awsecs.NewFargateService(stack, jsii.String(prefix+"-fargate-service"), &awsecs.FargateServiceProps{
		Cluster:              cluster,
		TaskDefinition:       taskDef,
		AssignPublicIp:       jsii.Bool(false),
		DesiredCount:         jsii.Number(float64(sizing.DesiredCount)),
		SecurityGroups:       &[]awsec2.ISecurityGroup{sg},
		VpcSubnets:           &awsec2.SubnetSelection{SubnetType: awsec2.SubnetType_PRIVATE_WITH_EGRESS},
		EnableExecuteCommand: jsii.Bool(true),
		ServiceName:          jsii.String(svc.Name),
	})
	service.Node().AddDependency(fileSystem)

	// Off hours schedule, created disabled.
	scheduleService(stack, prefix, "start", "14", 1, cluster, service)
	scheduleService(stack, prefix, "stop", "2", 0, cluster, service)

	// Network load balancer
	nlb := elbv2.NewNetworkLoadBalancer(stack, jsii.String(prefix+"-nlb"), &elbv2.NetworkLoadBalancerProps{
		Vpc:              vpc,
		InternetFacing:   jsii.Bool(false),
		LoadBalancerName: jsii.String(naming.Truncate(prefix+"-nlb", naming.MaxLoadBalancerName)),
		SecurityGroups:   &[]awsec2.ISecurityGroup{sg},
		VpcSubnets:       &awsec2.SubnetSelection{SubnetType: awsec2.SubnetType_PRIVATE_WITH_EGRESS},
	})

	targetGroup := elbv2.NewNetworkTargetGroup(stack, jsii.String(prefix+"-nlb-target-group"), &elbv2.NetworkTargetGroupProps{
		Vpc:             vpc,
		Port:            jsii.Number(postgresPort),
		Protocol:        elbv2.Protocol_TCP,
		TargetType:      elbv2.TargetType_IP,
		TargetGroupName: jsii.String(naming.Truncate(prefix+"-nlb-tg", naming.MaxLoadBalancerName)),
		Targets:         &[]elbv2.INetworkLoadBalancerTarget{service},
		HealthCheck: &elbv2.HealthCheck{
			Protocol:                elbv2.Protocol_TCP,
			Port:                    jsii.String(fmt.Sprint(postgresPort)),
			Interval:                awscdk.Duration_Seconds(jsii.Number(6)),
			Timeout:                 awscdk.Duration_Seconds(jsii.Number(5)),
			HealthyThresholdCount:   jsii.Number(2),
			UnhealthyThresholdCount: jsii.Number(2),
		},
	})

	nlb.AddListener(jsii.String(prefix+"-nlb-listener"), &elbv2.BaseNetworkListenerProps{
		Port:                jsii.Number(postgresPort),
		Protocol:            elbv2.Protocol_TCP,
		DefaultTargetGroups: &[]elbv2.INetworkTargetGroup{targetGroup},
	})

	// DNS
	zone := awsroute53.HostedZone_FromHostedZoneAttributes(stack, jsii.String("imported-"+prefix+"-hosted-zone"), &awsroute53.HostedZoneAttributes{
		HostedZoneId: importValue(naming.HostedZoneExport(env, project)),
		ZoneName:     jsii.String(zoneName),
	})
	awsroute53.NewCnameRecord(stack, jsii.String(prefix+"-cname"), &awsroute53.CnameRecordProps{
		Zone:       zone,
		RecordName: jsii.String(host),
		DomainName: nlb.LoadBalancerDnsName(),
		Ttl:        awscdk.Duration_Minutes(jsii.Number(30)),
	})

	internalZone := awsroute53.HostedZone_FromHostedZoneAttributes(stack, jsii.String("imported-"+prefix+"-internal-zone"), &awsroute53.HostedZoneAttributes{
		HostedZoneId: importValue(naming.InternalZoneExport(env, project)),
		ZoneName:     jsii.String(naming.InternalZone(project)),
	})
	awsroute53.NewCnameRecord(stack, jsii.String(prefix+"-internal-cname"), &awsroute53.CnameRecordProps{
		Zone:       internalZone,
		RecordName: jsii.String(naming.InternalRecord(svc.Name, project)),
		DomainName: nlb.LoadBalancerDnsName(),
		Ttl:        awscdk.Duration_Minutes(jsii.Number(30)),
	})

	tagging.Environment(env, secret, role, fileSystem, service, nlb)

	return &DatabaseStack{
		Stack:        stack,
		Service:      service,
		Secret:       secret,
		FileSystem:   fileSystem,
		LoadBalancer: nlb,
		workload:     props.Workload,
	}
}

// scheduleService adds a disabled daily rule setting the service's desired
// count at the given UTC hour.
func scheduleService(stack awscdk.Stack, prefix, action, hour string, desired int, cluster awsecs.ICluster, service awsecs.FargateService) awsevents.Rule {
	return awsevents.NewRule(stack, jsii.String(fmt.Sprintf("%s-%s-ecs-service-rule", prefix, action)), &awsevents.RuleProps{
		RuleName:    jsii.String(fmt.Sprintf("%s-%s-ecs-service", prefix, action)),
		Description: jsii.String(fmt.Sprintf("Set %s desired count to %d at %s:00 UTC", prefix, desired, hour)),
		Enabled:     jsii.Bool(false),
		Schedule: awsevents.Schedule_Cron(&awsevents.CronOptions{
			Minute: jsii.String("0"),
			Hour:   jsii.String(hour),
			Month:  jsii.String("*"),
			Day:    jsii.String("*"),
		}),
		Targets: &[]awsevents.IRuleTarget{
			awseventstargets.NewAwsApi(&awseventstargets.AwsApiProps{
				Service: jsii.String("ECS"),
				Action:  jsii.String("updateService"),
				Parameters: map[string]interface{}{
					"cluster":      cluster.ClusterName(),
					"service":      service.ServiceName(),
					"desiredCount": jsii.Number(float64(desired)),
				},
				CatchErrorPattern: jsii.String("ServiceNotFoundException"),
				PolicyStatement: awsiam.NewPolicyStatement(&awsiam.PolicyStatementProps{
					Actions:   jsii.Strings("ecs:UpdateService"),
					Resources: &[]*string{service.ServiceArn()},
				}),
			}),
		},
	})
}
