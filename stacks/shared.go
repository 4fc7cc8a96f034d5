package stacks

import (
	"fmt"

	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/aws-cdk-go/awscdk/v2/awscertificatemanager"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsec2"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsecs"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsiam"
	elbv2 "github.com/aws/aws-cdk-go/awscdk/v2/awselasticloadbalancingv2"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsroute53"
	"github.com/aws/constructs-go/constructs/v10"
	"github.com/aws/jsii-runtime-go"
	"github.com/ov3r/infra-aws-base-cdk/config"
	"github.com/ov3r/infra-aws-base-cdk/lib/naming"
	"github.com/ov3r/infra-aws-base-cdk/lib/tagging"
	"github.com/ov3r/infra-aws-base-cdk/properties"
	"go.uber.org/zap"
)

type SharedServicesStackProps struct {
	awscdk.StackProps
	Deps
	Project    properties.Project
	Env        config.Environment
	// Management is the project's management stack holding the delegation
	// role, nil when the assembly has none.
	Management awscdk.Stack
}

// SharedServicesStack holds what every service of one project environment
// shares: the cluster, the public load balancer and the DNS zones.
type SharedServicesStack struct {
	awscdk.Stack
	Cluster      awsecs.Cluster
	LoadBalancer elbv2.ApplicationLoadBalancer
	Listener     elbv2.ApplicationListener
	Zone         awsroute53.PublicHostedZone
	InternalZone awsroute53.PrivateHostedZone
}

func NewSharedServicesStack(scope constructs.Construct, id string, props *SharedServicesStackProps) *SharedServicesStack {
	stack := newStack(scope, id, props.StackProps)

	env := props.Env.Name()
	project := props.Project.Name
	prefix := naming.EnvPrefix(env, project)
	domain := props.Project.DomainOr(props.Settings.Domain)
	zoneName := naming.EnvZone(env, domain)

	tagging.Apply(stack, tagging.Props{Project: project, Service: "shared", Environment: env})

	vpc := lookupVpc(stack, prefix+"-imported-vpc", props.Env.VPC)

	// ECS
	cluster := awsecs.NewCluster(stack, jsii.String(prefix+"-ecs-cluster"), &awsecs.ClusterProps{
		Vpc:                            vpc,
		EnableFargateCapacityProviders: jsii.Bool(true),
		ContainerInsightsV2:            awsecs.ContainerInsights_ENABLED,
		ClusterName:                    jsii.String(project),
	})

	// DNS
	zone := awsroute53.NewPublicHostedZone(stack, jsii.String(prefix+"-hosted-zone"), &awsroute53.PublicHostedZoneProps{
		ZoneName: jsii.String(zoneName),
		Comment:  jsii.String("Delegated sub-zone for " + prefix),
	})
	internalZone := awsroute53.NewPrivateHostedZone(stack, jsii.String(prefix+"-internal-zone"), &awsroute53.PrivateHostedZoneProps{
		ZoneName: jsii.String(naming.InternalZone(project)),
		Vpc:      vpc,
	})
	delegateZone(stack, props, prefix, domain, zone)

	var certificate awscertificatemanager.ICertificate
	if arn := props.Project.Certificates[env]; arn != "" {
		certificate = awscertificatemanager.Certificate_FromCertificateArn(stack, jsii.String(env+"-imported-wildcard-certificate-arn"), jsii.String(arn))
	} else {
		certificate = awscertificatemanager.NewCertificate(stack, jsii.String(prefix+"-wildcard-certificate"), &awscertificatemanager.CertificateProps{
			DomainName:              jsii.String("*." + zoneName),
			SubjectAlternativeNames: jsii.Strings(zoneName),
			Validation:              awscertificatemanager.CertificateValidation_FromDns(zone),
		})
		props.Log.Info("requesting dns validated certificate", zap.String("zone", zoneName))
	}

	// Load balancer
	sg := awsec2.NewSecurityGroup(stack, jsii.String(prefix+"-alb-security-group"), &awsec2.SecurityGroupProps{
		Vpc:               vpc,
		SecurityGroupName: jsii.String(prefix + "-load-balancer"),
		AllowAllOutbound:  jsii.Bool(true),
	})
	sg.ApplyRemovalPolicy(awscdk.RemovalPolicy_DESTROY)
	awscdk.Tags_Of(sg).Add(jsii.String("Name"), jsii.String(prefix+"-load-balancer"), nil)

	if props.Env.Key == config.Prod {
		sg.AddIngressRule(awsec2.Peer_AnyIpv4(), awsec2.Port_AllTraffic(), jsii.String("Allow all traffic"), nil)
	}
	allowWhitelist(sg, awsec2.Port_AllIcmp(), awsec2.Port_AllTraffic())

	lb := elbv2.NewApplicationLoadBalancer(stack, jsii.String(prefix+"-application-load-balancer"), &elbv2.ApplicationLoadBalancerProps{
		Vpc:                vpc,
		InternetFacing:     jsii.Bool(true),
		LoadBalancerName:   jsii.String(naming.Truncate(prefix, naming.MaxLoadBalancerName)),
		DeletionProtection: jsii.Bool(false),
		VpcSubnets:         &awsec2.SubnetSelection{SubnetType: awsec2.SubnetType_PUBLIC},
		IpAddressType:      elbv2.IpAddressType_IPV4,
		SecurityGroup:      sg,
		IdleTimeout:        awscdk.Duration_Seconds(jsii.Number(30)),
	})
	awscdk.Tags_Of(lb).Add(jsii.String("Name"), jsii.String(prefix), nil)

	lb.AddRedirect(&elbv2.ApplicationLoadBalancerRedirectConfig{
		SourceProtocol: elbv2.ApplicationProtocol_HTTP,
		SourcePort:     jsii.Number(80),
		TargetProtocol: elbv2.ApplicationProtocol_HTTPS,
		TargetPort:     jsii.Number(443),
	})

	listener := lb.AddListener(jsii.String(prefix+"-https-listener"), &elbv2.BaseApplicationListenerProps{
		Port:          jsii.Number(443),
		Protocol:      elbv2.ApplicationProtocol_HTTPS,
		Certificates:  &[]elbv2.IListenerCertificate{elbv2.ListenerCertificate_FromCertificateManager(certificate)},
		Open:          jsii.Bool(true),
		DefaultAction: fixedResponse(prefix),
	})
	listener.Connections().AllowFrom(lb, awsec2.Port_Tcp(jsii.Number(80)), jsii.String("Allow connections from "+prefix+" load balancer on port 80"))
	listener.Connections().AllowFrom(lb, awsec2.Port_Tcp(jsii.Number(443)), jsii.String("Allow connections from "+prefix+" load balancer on port 443"))

	listener.AddAction(jsii.String("Fixed"), &elbv2.AddApplicationActionProps{
		Priority:   jsii.Number(30),
		Conditions: &[]elbv2.ListenerCondition{elbv2.ListenerCondition_PathPatterns(jsii.Strings("/healthcheck"))},
		Action:     fixedResponse("healthy"),
	})

	export(stack, naming.LoadBalancerSGExport(env, project), sg.SecurityGroupId(), "The id for the load balancer security group")
	export(stack, naming.ListenerExport(env, project), listener.ListenerArn(), "The ARN for the HTTPS Listener")
	export(stack, naming.LoadBalancerDNSExport(env, project), lb.LoadBalancerDnsName(), "The DNS name of the load balancer")
	export(stack, naming.HostedZoneExport(env, project), zone.HostedZoneId(), "The id of the "+zoneName+" hosted zone")
	export(stack, naming.InternalZoneExport(env, project), internalZone.HostedZoneId(), "The id of the internal hosted zone")

	tagging.Environment(env, sg, lb, listener)

	return &SharedServicesStack{
		Stack:        stack,
		Cluster:      cluster,
		LoadBalancer: lb,
		Listener:     listener,
		Zone:         zone,
		InternalZone: internalZone,
	}
}

// delegateZone writes the NS records of zone into the parent zone held by
// the management account.
func delegateZone(stack awscdk.Stack, props *SharedServicesStackProps, prefix, domain string, zone awsroute53.IHostedZone) {
	project := props.Project.Name
	role := awsiam.Role_FromRoleArn(stack, jsii.String(prefix+"-zone-delegation-role"),
		jsii.String(naming.ZoneDelegationRoleARN(props.Settings.Management().Account, project)), nil)

	awsroute53.NewCrossAccountZoneDelegationRecord(stack, jsii.String(prefix+"-zone-delegation"), &awsroute53.CrossAccountZoneDelegationRecordProps{
		DelegatedZone:        zone,
		ParentHostedZoneName: jsii.String(domain),
		DelegationRole:       role,
		RemovalPolicy:        awscdk.RemovalPolicy_DESTROY,
	})
	if props.Management != nil {
		stack.AddDependency(props.Management, jsii.String("zone delegation role"))
	}
}

func fixedResponse(message string) elbv2.ListenerAction {
	return elbv2.ListenerAction_FixedResponse(jsii.Number(200), &elbv2.FixedResponseOptions{
		ContentType: jsii.String("application/json"),
		MessageBody: jsii.String(fmt.Sprintf(`{"message":%q,"response":200}`, message)),
	})
}
