package main

import (
	"github.com/ov3r/infra-aws-base-cdk/lib/buildspec"
	"github.com/ov3r/infra-aws-base-cdk/lib/naming"
	"github.com/ov3r/infra-aws-base-cdk/properties"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

// findService locates a service of a project in the catalog.
func findService(catalog *properties.Catalog, project, service string) (properties.Project, properties.Service, error) {
	p, ok := catalog.Project(project)
	if !ok {
		return properties.Project{}, properties.Service{}, errors.Errorf("unknown project: %s", project)
	}
	svc, ok := lo.Find(p.Services, func(s properties.Service) bool { return s.Name == service })
	if !ok {
		return p, properties.Service{}, errors.Errorf("project %s has no service %s", project, service)
	}
	return p, svc, nil
}

func newBuildspecCmd(c *cli) *cobra.Command {
	var env, region string
	var deploy bool

	cmd := &cobra.Command{
		Use:   "buildspec <project> <service>",
		Short: "Render the build or deploy spec of a service pipeline",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			project, svc, err := findService(c.catalog, args[0], args[1])
			if err != nil {
				return err
			}
			if !svc.Pipelined() {
				return errors.Errorf("service %s has no pipeline", svc.Name)
			}
			target, err := c.settings.Lookup(env)
			if err != nil {
				return err
			}
			props, ok := svc.Properties[target.Name()]
			if !ok {
				return errors.Errorf("service %s has no properties for environment %s", svc.Name, env)
			}

			mgmt := c.settings.Management()
			ecrURI := naming.RepositoryURI(mgmt.Account, c.settings.PrimaryRegion, project.Name, svc.Name)
			if region == "" {
				region = c.settings.PrimaryRegion
			}

			var spec *buildspec.Spec
			if deploy {
				spec = buildspec.ECSDeploy(buildspec.DeployParams{
					Cluster:      project.Name,
					Service:      svc.Name,
					RoleARN:      naming.TaskRoleARN(target.Account, env, project.Name, svc.Name),
					DesiredCount: props.DesiredCount,
					Region:       region,
					ECRURI:       ecrURI,
					ImageTag:     env,
					RepoName:     naming.RepositoryName(project.Name, svc.Name),
					Environment:  env,
				})
			} else {
				spec = buildspec.ForService(svc.Name, buildspec.Params{
					ImageTag: env,
					ECRURI:   ecrURI,
					Region:   c.settings.PrimaryRegion,
					Secrets:  svc.Secrets,
				})
			}

			out, err := spec.YAML()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
	cmd.Flags().StringVar(&env, "env", "dev", "target environment")
	cmd.Flags().StringVar(&region, "region", "", "deploy region (defaults to the primary pipeline region)")
	cmd.Flags().BoolVar(&deploy, "deploy", false, "render the deploy spec instead of the build spec")
	return cmd
}
