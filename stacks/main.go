package stacks

import (
	"fmt"

	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/constructs-go/constructs/v10"
	"github.com/aws/jsii-runtime-go"
	"github.com/ov3r/infra-aws-base-cdk/lib/naming"
	"github.com/ov3r/infra-aws-base-cdk/lib/tagging"
	"github.com/ov3r/infra-aws-base-cdk/properties"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// ServiceStack is the stack composed for one workload.
type ServiceStack interface {
	awscdk.Stack
	Workload() properties.Workload
}

type MainStackProps struct {
	awscdk.StackProps
	Deps
	Deployment properties.Deployment
	// Management is the project's management stack, nil when the assembly
	// has none.
	Management awscdk.Stack
}

// MainStack composes one project in one environment.
type MainStack struct {
	awscdk.Stack
	Shared   *SharedServicesStack
	Services []ServiceStack
}

func NewMainStack(scope constructs.Construct, id string, props *MainStackProps) (*MainStack, error) {
	d := props.Deployment
	env := d.Env.Name()
	project := d.Project.Name

	if props.StackProps.Env == nil {
		props.StackProps.Env = d.Env.CDK()
	}
	if props.StackProps.Description == nil {
		props.StackProps.Description = jsii.String(fmt.Sprintf("Stack for %s in %s environment", project, env))
	}
	stack := newStack(scope, id, props.StackProps)

	tagging.Apply(stack, tagging.Props{
		Project:     project,
		Service:     "main",
		Environment: env,
		Custom:      map[string]string{"Stack": "main"},
	})

	childProps := func(name, description string) awscdk.StackProps {
		return awscdk.StackProps{
			StackName:   jsii.String(name),
			Env:         d.Env.CDK(),
			Description: jsii.String(description),
		}
	}

	shared := NewSharedServicesStack(stack, naming.SharedStackName(env, project), &SharedServicesStackProps{
		StackProps: childProps(naming.SharedStackName(env, project), "Shared cluster, load balancer and DNS for "+naming.EnvPrefix(env, project)),
		Deps:       props.Deps,
		Project:    d.Project,
		Env:        d.Env,
		Management: props.Management,
	})

	main := &MainStack{Stack: stack, Shared: shared}

	for _, w := range d.Workloads {
		name := naming.StackName(env, project, w.Service.Name)

		var svc ServiceStack
		switch w.Service.Category {
		case properties.Database:
			svc = NewDatabaseStack(stack, name, &DatabaseStackProps{
				StackProps: childProps(name, "Postgres database running on fargate"),
				Deps:       props.Deps,
				Project:    d.Project,
				Env:        d.Env,
				Workload:   w,
			})
		case properties.Platform, properties.API:
			svc = NewFargateStack(stack, name, &FargateStackProps{
				StackProps:      childProps(name, fmt.Sprintf("%s service %s", w.Service.Category, w.Service.Name)),
				Deps:            props.Deps,
				Project:         d.Project,
				Env:             d.Env,
				Workload:        w,
				ImageTag:        env,
				DocumentStorage: w.Service.Category == properties.API,
				Management:      props.Management,
			})
		default:
			return nil, errors.Errorf("project %s: service %s has unsupported category %q", project, w.Service.Name, w.Service.Category)
		}

		svc.AddDependency(shared.Stack, jsii.String("shared cluster and listener"))
		main.Services = append(main.Services, svc)

		props.Log.Debug("service stack",
			zap.String("stack", name),
			zap.String("category", string(w.Service.Category)))
	}

	return main, nil
}
