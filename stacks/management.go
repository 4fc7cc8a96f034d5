package stacks

import (
	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/aws-cdk-go/awscdk/v2/awschatbot"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsecr"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsiam"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsroute53"
	"github.com/aws/aws-cdk-go/awscdk/v2/awssns"
	"github.com/aws/constructs-go/constructs/v10"
	"github.com/aws/jsii-runtime-go"
	"github.com/ov3r/infra-aws-base-cdk/lib/naming"
	"github.com/ov3r/infra-aws-base-cdk/lib/tagging"
	"github.com/ov3r/infra-aws-base-cdk/properties"
	"go.uber.org/zap"
)

const sharedEnvironment = "shared"

type ManagementStackProps struct {
	awscdk.StackProps
	Deps
	Project properties.Project
}

// ManagementStack owns the per project resources of the management
// account: image repositories and pipeline notifications.
type ManagementStack struct {
	awscdk.Stack
	Repositories   map[string]awsecr.Repository
	Topic          awssns.Topic
	// DelegationRole lets the workload accounts delegate {env}.{domain}
	// from the project's parent zone.
	DelegationRole awsiam.Role
}

func NewManagementStack(scope constructs.Construct, id string, props *ManagementStackProps) *ManagementStack {
	stack := newStack(scope, id, props.StackProps)
	project := props.Project.Name

	tagging.Apply(stack, tagging.Props{
		Project:     project,
		Service:     "devops",
		Environment: sharedEnvironment,
		Custom:      map[string]string{"Stack": "management"},
	})

	// ECR
	repositories := make(map[string]awsecr.Repository)
	for _, svc := range props.Project.RegistryServices() {
		repositories[svc.Name] = createRepository(stack, props, svc)
	}

	// Chatbot
	chatbotRole := awsiam.NewRole(stack, jsii.String(project+"-chatbot-slack-role"), &awsiam.RoleProps{
		AssumedBy: awsiam.NewServicePrincipal(jsii.String("chatbot.amazonaws.com"), nil),
		RoleName:  jsii.String(project + "-chatbot-slack-role"),
	})

	// SNS
	topic := createNotificationTopic(stack, project)
	export(stack, naming.TopicExport(project), topic.TopicArn(), "The ARN for the SNS Topic")

	if slack := props.Project.Slack; slack != nil {
		channel := awschatbot.NewSlackChannelConfiguration(stack, jsii.String(project+"-codepipeline-slack-channel-configuration"), &awschatbot.SlackChannelConfigurationProps{
			SlackChannelConfigurationName: jsii.String(slack.ChannelID),
			SlackWorkspaceId:              jsii.String(slack.WorkspaceID),
			SlackChannelId:                jsii.String(slack.ChannelID),
			Role:                          chatbotRole,
		})
		channel.ApplyRemovalPolicy(awscdk.RemovalPolicy_DESTROY)
		channel.AddNotificationTopic(topic)
		tagging.Environment(sharedEnvironment, channel)
	} else {
		props.Log.Info("no slack channel configured", zap.String("project", project))
	}

	// DNS
	delegationRole := createZoneDelegationRole(stack, props)

	tagging.Environment(sharedEnvironment, chatbotRole, topic, delegationRole)

	props.Log.Debug("management stack",
		zap.String("project", project),
		zap.Int("repositories", len(repositories)))

	return &ManagementStack{
		Stack:          stack,
		Repositories:   repositories,
		Topic:          topic,
		DelegationRole: delegationRole,
	}
}

// createZoneDelegationRole grants the dev and prod accounts the right to
// write NS records into the parent zone, which lives in the management account.
func createZoneDelegationRole(stack awscdk.Stack, props *ManagementStackProps) awsiam.Role {
	project := props.Project.Name
	domain := props.Project.DomainOr(props.Settings.Domain)

	parent := awsroute53.HostedZone_FromLookup(stack, jsii.String(project+"-parent-hosted-zone"), &awsroute53.HostedZoneProviderProps{
		DomainName: jsii.String(domain),
	})
	role := awsiam.NewRole(stack, jsii.String(project+"-zone-delegation-role"), &awsiam.RoleProps{
		AssumedBy: awsiam.NewCompositePrincipal(
			awsiam.NewAccountPrincipal(jsii.String(props.Settings.DevAccount)),
			awsiam.NewAccountPrincipal(jsii.String(props.Settings.ProdAccount)),
		),
		RoleName: jsii.String(naming.ZoneDelegationRoleName(project)),
	})
	parent.GrantDelegation(role)

	props.Log.Debug("zone delegation role", zap.String("project", project), zap.String("domain", domain))
	return role
}

// createRepository keeps one image per tracked branch tag and lets the
// management, dev and prod accounts push and pull.
func createRepository(stack awscdk.Stack, props *ManagementStackProps, svc properties.Service) awsecr.Repository {
	name := naming.RepositoryName(props.Project.Name, svc.Name)
	repository := awsecr.NewRepository(stack, jsii.String(name+"-repository"), &awsecr.RepositoryProps{
		RepositoryName:  jsii.String(name),
		ImageScanOnPush: jsii.Bool(true),
		RemovalPolicy:   awscdk.RemovalPolicy_DESTROY,
	})

	repository.AddLifecycleRule(&awsecr.LifecycleRule{
		TagPrefixList: jsii.Strings("dev", "stage", "master"),
		MaxImageCount: jsii.Number(1),
	})
	repository.AddLifecycleRule(&awsecr.LifecycleRule{
		TagPrefixList: jsii.Strings("dev", "stage"),
		MaxImageAge:   awscdk.Duration_Days(jsii.Number(90)),
	})
	repository.AddLifecycleRule(&awsecr.LifecycleRule{
		TagStatus:     awsecr.TagStatus_UNTAGGED,
		MaxImageCount: jsii.Number(1),
	})

	repository.GrantPullPush(awsiam.NewAccountRootPrincipal())
	repository.GrantPullPush(awsiam.NewAccountPrincipal(jsii.String(props.Settings.DevAccount)))
	repository.GrantPullPush(awsiam.NewAccountPrincipal(jsii.String(props.Settings.ProdAccount)))
	repository.GrantPullPush(awsiam.NewServicePrincipal(jsii.String("ecs-tasks.amazonaws.com"), nil))

	tagging.Environment(sharedEnvironment, repository)
	return repository
}
