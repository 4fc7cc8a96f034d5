// Command infractl inspects the catalog and the pipelines it produces.
package main

import (
	"context"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/codepipeline"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/ov3r/infra-aws-base-cdk/config"
	"github.com/ov3r/infra-aws-base-cdk/properties"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// cli carries what every command needs. Fields left nil are filled on first
// use from the environment.
type cli struct {
	settings *config.Settings
	catalog  *properties.Catalog
	log      *zap.Logger

	catalogFile string
	profile     string

	secrets   func(ctx context.Context) (secretGetter, error)
	pipelines func(ctx context.Context) (pipelineStater, error)
	objects   func(ctx context.Context) (s3.ListObjectsV2APIClient, error)
}

func newCLI() *cli {
	c := &cli{}
	c.secrets = func(ctx context.Context) (secretGetter, error) {
		cfg, err := c.awsConfig(ctx)
		if err != nil {
			return nil, err
		}
		return secretsmanager.NewFromConfig(cfg), nil
	}
	c.pipelines = func(ctx context.Context) (pipelineStater, error) {
		cfg, err := c.awsConfig(ctx)
		if err != nil {
			return nil, err
		}
		return codepipeline.NewFromConfig(cfg), nil
	}
	c.objects = func(ctx context.Context) (s3.ListObjectsV2APIClient, error) {
		cfg, err := c.awsConfig(ctx)
		if err != nil {
			return nil, err
		}
		return s3.NewFromConfig(cfg), nil
	}
	return c
}

// awsConfig targets the management account, where pipelines, artifacts and
// pipeline secrets live.
func (c *cli) awsConfig(ctx context.Context) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(c.settings.Management().Region),
	}
	if c.profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(c.profile))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, errors.Wrap(err, "loading AWS config")
	}
	return cfg, nil
}

func (c *cli) load() error {
	if c.log == nil {
		level, ok := os.LookupEnv("LOG_LEVEL")
		if !ok {
			level = "warn"
		}
		log, err := config.NewLogger(level)
		if err != nil {
			return err
		}
		c.log = log
	}
	if c.settings == nil {
		settings, err := config.Load(c.log)
		if err != nil {
			return err
		}
		c.settings = settings
	}
	if c.catalog == nil {
		file := c.catalogFile
		if file == "" {
			file = c.settings.CatalogFile
		}
		catalog, err := properties.Load(file)
		if err != nil {
			return err
		}
		c.catalog = catalog
	}
	return nil
}

// deployments resolves the catalog, optionally limited to one project.
func (c *cli) deployments(project string) ([]properties.Deployment, error) {
	catalog := c.catalog
	if project != "" {
		p, ok := catalog.Project(project)
		if !ok {
			return nil, errors.Errorf("unknown project: %s", project)
		}
		catalog = &properties.Catalog{Projects: []properties.Project{p}}
	}
	return catalog.Resolve(c.settings.Lookup)
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:           "infractl",
		Short:         "Inspect the service catalog and its pipelines",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.load()
		},
	}
	root.PersistentFlags().StringVar(&c.catalogFile, "catalog", "", "catalog file (defaults to CATALOG_FILE or the embedded catalog)")
	root.PersistentFlags().StringVar(&c.profile, "profile", "", "shared AWS config profile for the management account")

	root.AddCommand(
		newCatalogCmd(c),
		newBuildspecCmd(c),
		newPreflightCmd(c),
		newPipelinesCmd(c),
		newArtifactsCmd(c),
	)
	return root
}

func main() {
	c := newCLI()
	if err := newRootCmd(c).Execute(); err != nil {
		if c.log != nil {
			c.log.Error("command failed", zap.Error(err))
		}
		os.Stderr.WriteString("infractl: " + err.Error() + "\n")
		os.Exit(1)
	}
}
