package stacks

import (
	"testing"

	"github.com/aws/aws-cdk-go/awscdk/v2/assertions"
	"github.com/aws/jsii-runtime-go"
	"github.com/stretchr/testify/require"
)

// ov3r in dev runs postgres behind an internal network load balancer.
func TestDatabaseScenario(t *testing.T) {
	infra := newInfra(t, testSettings(), embeddedCatalog(t), "ov3r")

	main := mainStack(t, infra, "ov3r-dev-cdk")
	require.NotNil(t, main.Shared)
	require.Equal(t, "dev-ov3r-shared-services-cdk", *main.Shared.StackName())

	shared := 0
	for _, s := range childStacks(main.Stack) {
		if *s.StackName() == "dev-ov3r-shared-services-cdk" {
			shared++
		}
	}
	require.Equal(t, 1, shared)

	svc := serviceStack(t, main, "postgres")
	db, ok := svc.(*DatabaseStack)
	require.True(t, ok)
	require.Empty(t, childStacks(db.Stack), "database services have no pipeline")

	template := assertions.Template_FromStack(db.Stack, nil)
	template.ResourceCountIs(jsii.String("AWS::ElasticLoadBalancingV2::LoadBalancer"), jsii.Number(1))
	template.HasResourceProperties(jsii.String("AWS::ElasticLoadBalancingV2::LoadBalancer"), &map[string]interface{}{
		"Type":   "network",
		"Scheme": "internal",
	})
	template.HasResourceProperties(jsii.String("AWS::ElasticLoadBalancingV2::Listener"), &map[string]interface{}{
		"Port":     jsii.Number(5432),
		"Protocol": "TCP",
	})
	template.HasResourceProperties(jsii.String("AWS::Route53::RecordSet"), &map[string]interface{}{
		"Type": "CNAME",
		"Name": assertions.Match_StringLikeRegexp(jsii.String(`postgres\.dev\.ov3r\.tech`)),
	})
	template.HasResourceProperties(jsii.String("AWS::Route53::RecordSet"), &map[string]interface{}{
		"Type": "CNAME",
		"Name": assertions.Match_StringLikeRegexp(jsii.String(`postgres\.ov3r\.internal`)),
	})
	template.ResourceCountIs(jsii.String("AWS::EFS::FileSystem"), jsii.Number(1))
	template.HasResourceProperties(jsii.String("AWS::EFS::AccessPoint"), &map[string]interface{}{
		"RootDirectory": map[string]interface{}{
			"Path": "/postgresql",
		},
	})
	template.HasResourceProperties(jsii.String("AWS::SecretsManager::Secret"), &map[string]interface{}{
		"GenerateSecretString": map[string]interface{}{
			"SecretStringTemplate": `{"POSTGRES_DB":"postgres","POSTGRES_HOST":"postgres.dev.ov3r.tech","POSTGRES_PORT":"5432","POSTGRES_USER":"postgres"}`,
			"GenerateStringKey":    "POSTGRES_PASSWORD",
		},
	})
	template.ResourceCountIs(jsii.String("AWS::Events::Rule"), jsii.Number(2))
	template.HasResourceProperties(jsii.String("AWS::Events::Rule"), &map[string]interface{}{
		"Name":               "dev-ov3r-postgres-start-ecs-service",
		"State":              "DISABLED",
		"ScheduleExpression": "cron(0 14 * * ? *)",
	})
	template.HasResourceProperties(jsii.String("AWS::Events::Rule"), &map[string]interface{}{
		"Name":               "dev-ov3r-postgres-stop-ecs-service",
		"State":              "DISABLED",
		"ScheduleExpression": "cron(0 2 * * ? *)",
	})
}
