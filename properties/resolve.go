package properties

import (
	"github.com/ov3r/infra-aws-base-cdk/config"
	"github.com/pkg/errors"
	"github.com/samber/lo"
)

// Workload is a service with the properties of one environment applied.
type Workload struct {
	Service    Service
	Properties Properties
}

// Deployment is everything one MainStack composes: a project in one
// environment.
type Deployment struct {
	Project   Project
	Env       config.Environment
	Workloads []Workload
}

type EnvLookup func(name string) (config.Environment, error)

// Resolve expands the catalog into one Deployment per project and declared
// environment. Any malformed entry fails the whole resolution.
func (c *Catalog) Resolve(lookup EnvLookup) ([]Deployment, error) {
	var out []Deployment
	for _, p := range c.Projects {
		deployments, err := p.Resolve(lookup)
		if err != nil {
			return nil, err
		}
		out = append(out, deployments...)
	}
	return out, nil
}

func (p Project) Resolve(lookup EnvLookup) ([]Deployment, error) {
	deployments := make([]Deployment, 0, len(p.Envs))
	for _, name := range p.Envs {
		env, err := lookup(name)
		if err != nil {
			return nil, errors.Wrapf(err, "project %s", p.Name)
		}

		workloads := make([]Workload, 0, len(p.Services))
		for _, svc := range p.Services {
			props, ok := svc.Properties[name]
			if !ok {
				return nil, errors.Errorf("project %s: service %s has no properties for environment %s", p.Name, svc.Name, name)
			}
			workloads = append(workloads, Workload{Service: svc, Properties: props})
		}

		routed := lo.Filter(workloads, func(w Workload, _ int) bool {
			return w.Service.Category != Database && w.Properties.Routed()
		})
		if dups := lo.FindDuplicatesBy(routed, func(w Workload) int { return w.Properties.Priority }); len(dups) > 0 {
			return nil, errors.Errorf("project %s: listener priority %d used more than once in %s", p.Name, dups[0].Properties.Priority, name)
		}

		deployments = append(deployments, Deployment{Project: p, Env: env, Workloads: workloads})
	}
	return deployments, nil
}
