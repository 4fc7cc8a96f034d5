package stacks

import (
	"github.com/aws/aws-cdk-go/awscdk/v2/awscodebuild"
	"github.com/aws/aws-cdk-go/awscdk/v2/awscodepipeline"
	"github.com/aws/aws-cdk-go/awscdk/v2/awscodestarnotifications"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsiam"
	"github.com/aws/aws-cdk-go/awscdk/v2/awssns"
	"github.com/aws/constructs-go/constructs/v10"
	"github.com/aws/jsii-runtime-go"
)

var pipelineEvents = []string{
	"codepipeline-pipeline-manual-approval-needed",
	"codepipeline-pipeline-pipeline-execution-failed",
	"codepipeline-pipeline-action-execution-failed",
	"codepipeline-pipeline-stage-execution-failed",
	"codepipeline-pipeline-pipeline-execution-started",
}

// createNotificationTopic is the per project topic every pipeline of the
// project publishes to.
func createNotificationTopic(scope constructs.Construct, project string) awssns.Topic {
	topic := awssns.NewTopic(scope, jsii.String(project+"-codepipeline-sns-topic"), &awssns.TopicProps{
		TopicName:   jsii.String(project + "-codepipeline"),
		DisplayName: jsii.String(project + " pipeline notifications"),
	})
	topic.GrantPublish(awsiam.NewAccountRootPrincipal())
	topic.GrantPublish(awsiam.NewServicePrincipal(jsii.String("codestar-notifications.amazonaws.com"), nil))
	return topic
}

// createNotificationRules forwards pipeline progress and build or deploy
// failures to the project topic.
func createNotificationRules(res *pipelineResources, pipeline awscodepipeline.IPipeline, build awscodebuild.IProject, deploys []awscodebuild.PipelineProject) {
	rules := []awscodestarnotifications.NotificationRule{
		notificationRule(res, "codepipeline", pipeline, awscodestarnotifications.DetailType_FULL, pipelineEvents...),
		notificationRule(res, "codebuild", build, awscodestarnotifications.DetailType_BASIC, "codebuild-project-build-state-failed"),
	}
	for i, deploy := range deploys {
		name := "codedeploy"
		if i > 0 {
			name = "codedeploy-" + deployRegions(res.props.Settings)[i]
		}
		rules = append(rules, notificationRule(res, name, deploy, awscodestarnotifications.DetailType_BASIC, "codebuild-project-build-state-failed"))
	}

	for _, rule := range rules {
		res.topic.GrantPublish(awsiam.NewArnPrincipal(rule.NotificationRuleArn()))
	}
}

func notificationRule(res *pipelineResources, name string, source awscodestarnotifications.INotificationRuleSource, detail awscodestarnotifications.DetailType, events ...string) awscodestarnotifications.NotificationRule {
	return awscodestarnotifications.NewNotificationRule(res.stack, jsii.String(res.prefix+"-"+name+"-notifications-rule"), &awscodestarnotifications.NotificationRuleProps{
		NotificationRuleName: jsii.String(res.prefix + "-" + name),
		Source:               source,
		Events:               jsii.Strings(events...),
		Targets:              &[]awscodestarnotifications.INotificationRuleTarget{res.topic},
		Enabled:              jsii.Bool(true),
		DetailType:           detail,
	})
}
