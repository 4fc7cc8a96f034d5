package stacks

import (
	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/constructs-go/constructs/v10"
	"github.com/aws/jsii-runtime-go"
	"github.com/ov3r/infra-aws-base-cdk/lib/naming"
	"github.com/ov3r/infra-aws-base-cdk/properties"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

type InfraStackProps struct {
	awscdk.StackProps
	Deps
	Catalog *properties.Catalog
	// Projects limits the assembly to the named projects. Empty means every
	// project in the catalog.
	Projects []string
}

// InfraStack is the root of an assembly: one management stack per project
// and one main stack per project environment.
type InfraStack struct {
	awscdk.Stack
	Management map[string]*ManagementStack
	Main       []*MainStack
}

// NewInfraStack resolves the whole catalog before creating anything, so a
// malformed entry leaves scope untouched.
func NewInfraStack(scope constructs.Construct, id string, props *InfraStackProps) (*InfraStack, error) {
	catalog, err := selectProjects(props.Catalog, props.Projects)
	if err != nil {
		return nil, err
	}

	deployments, err := catalog.Resolve(props.Settings.Lookup)
	if err != nil {
		return nil, errors.Wrap(err, "resolving catalog")
	}

	stack := newStack(scope, id, props.StackProps)
	infra := &InfraStack{
		Stack:      stack,
		Management: make(map[string]*ManagementStack),
	}

	mgmt := props.Settings.Management()
	for _, p := range catalog.Projects {
		name := naming.ManagementStackName(p.Name)
		infra.Management[p.Name] = NewManagementStack(stack, name, &ManagementStackProps{
			StackProps: awscdk.StackProps{
				StackName:   jsii.String(name),
				Env:         mgmt.CDK(),
				Description: jsii.String("Devops stack for " + p.Name + " contains ECR repositories for services"),
			},
			Deps:    props.Deps,
			Project: p,
		})
	}

	for _, d := range deployments {
		devops := infra.Management[d.Project.Name]
		name := naming.MainStackName(d.Env.Name(), d.Project.Name)
		main, err := NewMainStack(stack, name, &MainStackProps{
			StackProps: awscdk.StackProps{StackName: jsii.String(name)},
			Deps:       props.Deps,
			Deployment: d,
			Management: devops.Stack,
		})
		if err != nil {
			return nil, err
		}
		main.AddDependency(devops.Stack, jsii.String("image repositories"))
		infra.Main = append(infra.Main, main)

		props.Log.Debug("main stack",
			zap.String("stack", name),
			zap.Int("services", len(main.Services)))
	}

	return infra, nil
}

func selectProjects(c *properties.Catalog, names []string) (*properties.Catalog, error) {
	if len(names) == 0 {
		return c, nil
	}
	selected := &properties.Catalog{}
	for _, name := range names {
		p, ok := c.Project(name)
		if !ok {
			return nil, errors.Errorf("unknown project: %s", name)
		}
		selected.Projects = append(selected.Projects, p)
	}
	known := lo.Map(selected.Projects, func(p properties.Project, _ int) string { return p.Name })
	if dups := lo.FindDuplicates(known); len(dups) > 0 {
		return nil, errors.Errorf("project %s selected more than once", dups[0])
	}
	return selected, nil
}
