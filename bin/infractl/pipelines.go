package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/codepipeline"
	"github.com/ov3r/infra-aws-base-cdk/lib/naming"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

type pipelineStater interface {
	GetPipelineState(ctx context.Context, in *codepipeline.GetPipelineStateInput, opts ...func(*codepipeline.Options)) (*codepipeline.GetPipelineStateOutput, error)
}

// pipelineNames are the pipelines the catalog composes: pipelined services
// of environments in the primary region.
func (c *cli) pipelineNames(project string) ([]string, error) {
	deployments, err := c.deployments(project)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, d := range deployments {
		if d.Env.Region != c.settings.PrimaryRegion {
			continue
		}
		for _, w := range d.Workloads {
			if w.Service.Pipelined() {
				names = append(names, naming.Prefix(d.Env.Name(), d.Project.Name, w.Service.Name))
			}
		}
	}
	return names, nil
}

func newPipelinesCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "pipelines [project]",
		Short: "Show the latest stage status of every service pipeline",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			names, err := c.pipelineNames(lo.FirstOr(args, ""))
			if err != nil {
				return err
			}
			client, err := c.pipelines(cmd.Context())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "PIPELINE\tSTAGE\tSTATUS")
			for _, name := range names {
				state, err := client.GetPipelineState(cmd.Context(), &codepipeline.GetPipelineStateInput{
					Name: aws.String(name),
				})
				if err != nil {
					return errors.Wrapf(err, "reading state of pipeline %s", name)
				}
				for _, stage := range state.StageStates {
					status := "-"
					if stage.LatestExecution != nil {
						status = string(stage.LatestExecution.Status)
					}
					fmt.Fprintf(w, "%s\t%s\t%s\n", name, aws.ToString(stage.StageName), status)
				}
			}
			return w.Flush()
		},
	}
}
