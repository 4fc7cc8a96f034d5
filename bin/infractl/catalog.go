package main

import (
	"github.com/ov3r/infra-aws-base-cdk/lib/naming"
	"github.com/ov3r/infra-aws-base-cdk/properties"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

type deploymentView struct {
	Stack    string         `yaml:"stack"`
	Account  string         `yaml:"account"`
	Region   string         `yaml:"region"`
	Services []workloadView `yaml:"services"`
}

type workloadView struct {
	Name         string   `yaml:"name"`
	Category     string   `yaml:"category"`
	DesiredCount int      `yaml:"desiredCount"`
	Priority     int      `yaml:"priority,omitempty"`
	Hosts        []string `yaml:"hosts,omitempty"`
	Pipeline     string   `yaml:"pipeline,omitempty"`
}

func viewDeployments(deployments []properties.Deployment, primaryRegion string) []deploymentView {
	return lo.Map(deployments, func(d properties.Deployment, _ int) deploymentView {
		env := d.Env.Name()
		return deploymentView{
			Stack:   naming.MainStackName(env, d.Project.Name),
			Account: d.Env.Account,
			Region:  d.Env.Region,
			Services: lo.Map(d.Workloads, func(w properties.Workload, _ int) workloadView {
				v := workloadView{
					Name:         w.Service.Name,
					Category:     string(w.Service.Category),
					DesiredCount: w.Properties.DesiredCount,
					Hosts:        w.Properties.HostHeaders,
				}
				if w.Properties.Routed() {
					v.Priority = w.Properties.Priority
				}
				if w.Service.Pipelined() && d.Env.Region == primaryRegion {
					v.Pipeline = naming.Prefix(env, d.Project.Name, w.Service.Name)
				}
				return v
			}),
		}
	})
}

func newCatalogCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "catalog [project]",
		Short: "Print the resolved deployments of the catalog",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			deployments, err := c.deployments(lo.FirstOr(args, ""))
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(viewDeployments(deployments, c.settings.PrimaryRegion)); err != nil {
				return errors.Wrap(err, "encoding deployments")
			}
			return enc.Close()
		},
	}
}
