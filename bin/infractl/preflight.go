package main

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/ov3r/infra-aws-base-cdk/lib/naming"
	"github.com/ov3r/infra-aws-base-cdk/properties"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

type secretGetter interface {
	GetSecretValue(ctx context.Context, in *secretsmanager.GetSecretValueInput, opts ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// requiredKeys are the secret names declared by the project's pipelined
// services, sorted and without duplicates.
func requiredKeys(p properties.Project) []string {
	pipelined := lo.Filter(p.Services, func(s properties.Service, _ int) bool { return s.Pipelined() })
	keys := lo.Uniq(lo.FlatMap(pipelined, func(s properties.Service, _ int) []string { return s.Secrets }))
	sort.Strings(keys)
	return keys
}

// missingKeys lists the required keys absent from a JSON secret object.
func missingKeys(secret string, required []string) ([]string, error) {
	var values map[string]interface{}
	if err := json.Unmarshal([]byte(secret), &values); err != nil {
		return nil, errors.Wrap(err, "secret is not a JSON object")
	}
	return lo.Filter(required, func(key string, _ int) bool {
		_, ok := values[key]
		return !ok
	}), nil
}

func newPreflightCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "preflight <project>",
		Short: "Check the pipeline secret holds every declared secret key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, ok := c.catalog.Project(args[0])
			if !ok {
				return errors.Errorf("unknown project: %s", args[0])
			}
			required := requiredKeys(p)
			if len(required) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "%s declares no secrets\n", p.Name)
				return nil
			}

			client, err := c.secrets(cmd.Context())
			if err != nil {
				return err
			}
			name := naming.PipelineSecretName(p.Name)
			out, err := client.GetSecretValue(cmd.Context(), &secretsmanager.GetSecretValueInput{
				SecretId: aws.String(name),
			})
			if err != nil {
				return errors.Wrapf(err, "reading secret %s", name)
			}

			missing, err := missingKeys(aws.ToString(out.SecretString), required)
			if err != nil {
				return errors.Wrapf(err, "checking secret %s", name)
			}
			if len(missing) > 0 {
				for _, key := range missing {
					fmt.Fprintf(cmd.OutOrStdout(), "missing %s\n", key)
				}
				return errors.Errorf("secret %s is missing %d of %d keys", name, len(missing), len(required))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s holds all %d keys\n", name, len(required))
			return nil
		},
	}
}
