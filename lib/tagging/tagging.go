package tagging

import (
	"sort"

	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsec2"
	"github.com/aws/constructs-go/constructs/v10"
	"github.com/aws/jsii-runtime-go"
	"github.com/samber/lo"
)

type Props struct {
	Project     string
	Service     string
	Environment string
	// Prefix enables the Name tag on security groups.
	Prefix string
	Custom map[string]string
}

// Apply adds the standard label set to construct and everything below it.
// Tags are keyed, so applying the same Props again changes nothing.
func Apply(construct constructs.IConstruct, props Props) {
	tags := awscdk.Tags_Of(construct)
	tags.Add(jsii.String("Project"), jsii.String(props.Project), nil)
	tags.Add(jsii.String("Service"), jsii.String(props.Service), nil)
	tags.Add(jsii.String("Environment"), jsii.String(props.Environment), nil)

	if _, ok := construct.(awsec2.SecurityGroup); ok && props.Prefix != "" {
		tags.Add(jsii.String("Name"), jsii.String(props.Prefix+"-fargate"), nil)
	}

	keys := lo.Keys(props.Custom)
	sort.Strings(keys)
	for _, k := range keys {
		tags.Add(jsii.String(k), jsii.String(props.Custom[k]), nil)
	}
}

// Environment tags each construct with its environment only.
func Environment(env string, resources ...constructs.IConstruct) {
	for _, r := range resources {
		awscdk.Tags_Of(r).Add(jsii.String("Environment"), jsii.String(env), nil)
	}
}
