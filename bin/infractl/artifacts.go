package main

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/ov3r/infra-aws-base-cdk/lib/naming"
	"github.com/ov3r/infra-aws-base-cdk/stacks"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// newestObjects pages through the bucket and keeps the limit most recently
// modified objects, newest first.
func newestObjects(ctx context.Context, client s3.ListObjectsV2APIClient, bucket string, limit int) ([]types.Object, error) {
	var objects []types.Object
	pages := s3.NewListObjectsV2Paginator(client, &s3.ListObjectsV2Input{Bucket: aws.String(bucket)})
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, errors.Wrapf(err, "listing bucket %s", bucket)
		}
		objects = append(objects, page.Contents...)
	}
	sort.SliceStable(objects, func(i, j int) bool {
		return aws.ToTime(objects[i].LastModified).After(aws.ToTime(objects[j].LastModified))
	})
	if limit > 0 && len(objects) > limit {
		objects = objects[:limit]
	}
	return objects, nil
}

func newArtifactsCmd(c *cli) *cobra.Command {
	var env string
	var limit int

	cmd := &cobra.Command{
		Use:   "artifacts <project> <service>",
		Short: "List the newest objects in a service pipeline artifact bucket",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if c.settings.ArtifactBucketName == "" {
				return errors.New("PIPELINE_ARTIFACT_BUCKET_NAME is not set, artifact buckets have generated names")
			}
			project, svc, err := findService(c.catalog, args[0], args[1])
			if err != nil {
				return err
			}
			bucket := stacks.ArtifactBucketName(c.settings.ArtifactBucketName, naming.Prefix(env, project.Name, svc.Name))

			client, err := c.objects(cmd.Context())
			if err != nil {
				return err
			}
			objects, err := newestObjects(cmd.Context(), client, bucket, limit)
			if err != nil {
				return err
			}
			for _, o := range objects {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %10d  %s\n",
					aws.ToTime(o.LastModified).UTC().Format(time.RFC3339), aws.ToInt64(o.Size), aws.ToString(o.Key))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&env, "env", "dev", "target environment")
	cmd.Flags().IntVar(&limit, "limit", 10, "number of objects to list, 0 for all")
	return cmd
}
