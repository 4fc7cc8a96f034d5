package stacks

import (
	"fmt"

	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsec2"
	"github.com/aws/constructs-go/constructs/v10"
	"github.com/aws/jsii-runtime-go"
	"github.com/ov3r/infra-aws-base-cdk/config"
	"go.uber.org/zap"
)

// Deps are the process wide values every composer receives explicitly.
type Deps struct {
	Settings *config.Settings
	Log      *zap.Logger
}

func newStack(scope constructs.Construct, id string, props awscdk.StackProps) awscdk.Stack {
	if props.StackName == nil {
		props.StackName = jsii.String(id)
	}
	return awscdk.NewStack(scope, &id, &props)
}

func lookupVpc(scope constructs.Construct, id, vpcID string) awsec2.IVpc {
	return awsec2.Vpc_FromLookup(scope, jsii.String(id), &awsec2.VpcLookupOptions{
		IsDefault: jsii.Bool(false),
		VpcId:     jsii.String(vpcID),
	})
}

// allowWhitelist opens each port to every whitelisted network.
func allowWhitelist(sg awsec2.SecurityGroup, ports ...awsec2.Port) {
	for _, ip := range config.Whitelist {
		for _, port := range ports {
			sg.AddIngressRule(
				awsec2.Peer_Ipv4(jsii.String(ip.CIDR)),
				port,
				jsii.String(fmt.Sprintf("Allow %s for %s", *port.ToString(), ip.Description)),
				nil,
			)
		}
	}
}

// allowVpc opens each port to the whole VPC range.
func allowVpc(sg awsec2.SecurityGroup, vpc awsec2.IVpc, ports ...awsec2.Port) {
	for _, port := range ports {
		sg.AddIngressRule(
			awsec2.Peer_Ipv4(vpc.VpcCidrBlock()),
			port,
			jsii.String(fmt.Sprintf("Allow %s from within VPC", *port.ToString())),
			nil,
		)
	}
}
