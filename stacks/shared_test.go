package stacks

import (
	"testing"

	"github.com/aws/aws-cdk-go/awscdk/v2/assertions"
	"github.com/aws/jsii-runtime-go"
	"github.com/stretchr/testify/require"
)

func TestSharedServicesStack(t *testing.T) {
	infra := newInfra(t, testSettings(), embeddedCatalog(t), "ov3r")
	shared := mainStack(t, infra, "ov3r-dev-cdk").Shared

	template := assertions.Template_FromStack(shared.Stack, nil)
	template.HasResourceProperties(jsii.String("AWS::ECS::Cluster"), &map[string]interface{}{
		"ClusterName": "ov3r",
	})
	template.ResourceCountIs(jsii.String("AWS::ElasticLoadBalancingV2::LoadBalancer"), jsii.Number(1))
	template.HasResourceProperties(jsii.String("AWS::ElasticLoadBalancingV2::LoadBalancer"), &map[string]interface{}{
		"Name":   "dev-ov3r",
		"Scheme": "internet-facing",
	})
	template.ResourceCountIs(jsii.String("AWS::ElasticLoadBalancingV2::Listener"), jsii.Number(2))
	template.HasResourceProperties(jsii.String("AWS::ElasticLoadBalancingV2::Listener"), &map[string]interface{}{
		"Port":     jsii.Number(443),
		"Protocol": "HTTPS",
		"Certificates": []interface{}{
			map[string]interface{}{"CertificateArn": "arn:aws:acm:us-east-1:896502667345:certificate/e4634438-8a7d-46ff-b06e-1790f5a46460"},
		},
	})
	template.HasResourceProperties(jsii.String("AWS::ElasticLoadBalancingV2::ListenerRule"), &map[string]interface{}{
		"Priority": jsii.Number(30),
	})
	template.ResourceCountIs(jsii.String("AWS::CertificateManager::Certificate"), jsii.Number(0))
	template.ResourceCountIs(jsii.String("AWS::Route53::HostedZone"), jsii.Number(2))
	template.HasResourceProperties(jsii.String("AWS::Route53::HostedZone"), &map[string]interface{}{
		"Name": "dev.ov3r.tech.",
	})
	template.HasResourceProperties(jsii.String("AWS::Route53::HostedZone"), &map[string]interface{}{
		"Name": "ov3r.internal.",
	})
	template.HasResourceProperties(jsii.String("AWS::EC2::SecurityGroup"), &map[string]interface{}{
		"GroupName": "dev-ov3r-load-balancer",
	})
	template.HasResourceProperties(jsii.String("AWS::ECS::Cluster"), &map[string]interface{}{
		"ClusterSettings": []interface{}{
			map[string]interface{}{"Name": "containerInsights", "Value": "enabled"},
		},
	})
	template.HasResourceProperties(jsii.String("AWS::ElasticLoadBalancingV2::Listener"), &map[string]interface{}{
		"Port": jsii.Number(443),
		"DefaultActions": []interface{}{
			assertions.Match_ObjectLike(&map[string]interface{}{
				"FixedResponseConfig": map[string]interface{}{
					"MessageBody": `{"message":"dev-ov3r","response":200}`,
				},
			}),
		},
	})

	for _, export := range []string{
		"dev-ov3r-https-listener-arn",
		"dev-ov3r-load-balancer-sg-id",
		"dev-ov3r-load-balancer-dns",
		"dev-ov3r-hosted-zone-id",
		"dev-ov3r-internal-zone-id",
	} {
		template.HasOutput(jsii.String("*"), &map[string]interface{}{
			"Export": map[string]interface{}{"Name": export},
		})
	}
}

func TestSharedServicesStackRequestsCertificate(t *testing.T) {
	infra := newInfra(t, testSettings(), embeddedCatalog(t), "mostrom")
	shared := mainStack(t, infra, "mostrom-dev-cdk").Shared

	template := assertions.Template_FromStack(shared.Stack, nil)
	template.HasResourceProperties(jsii.String("AWS::CertificateManager::Certificate"), &map[string]interface{}{
		"DomainName":              "*.dev.mostrom.ai",
		"SubjectAlternativeNames": []interface{}{"dev.mostrom.ai"},
		"ValidationMethod":        "DNS",
	})
}

func TestSharedServicesStackDelegatesZone(t *testing.T) {
	infra := newInfra(t, testSettings(), embeddedCatalog(t))

	for _, tt := range []struct {
		main, parent, zone, role, devops string
	}{
		{"ov3r-dev-cdk", "ov3r.tech", "dev.ov3r.tech", "arn:aws:iam::111111111111:role/ov3r-zone-delegation-role", "ov3r-devops-stack-cdk"},
		{"mostrom-dev-cdk", "mostrom.ai", "dev.mostrom.ai", "arn:aws:iam::111111111111:role/mostrom-zone-delegation-role", "mostrom-devops-stack-cdk"},
	} {
		t.Run(tt.main, func(t *testing.T) {
			shared := mainStack(t, infra, tt.main).Shared

			template := assertions.Template_FromStack(shared.Stack, nil)
			template.ResourceCountIs(jsii.String("Custom::CrossAccountZoneDelegation"), jsii.Number(1))
			template.HasResourceProperties(jsii.String("Custom::CrossAccountZoneDelegation"), &map[string]interface{}{
				"AssumeRoleArn":     tt.role,
				"ParentZoneName":    tt.parent,
				"DelegatedZoneName": tt.zone,
			})

			deps := *shared.Dependencies()
			require.Len(t, deps, 1)
			require.Equal(t, tt.devops, *deps[0].StackName())
		})
	}
}
