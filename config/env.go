package config

import (
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Settings is the immutable configuration threaded through every composer.
// It is read once per process and never re-read from the environment.
type Settings struct {
	MgmtAccount   string `env:"CDK_DEFAULT_ACCOUNT"`
	DefaultRegion string `env:"CDK_DEFAULT_REGION" envDefault:"us-east-1"`
	DevAccount    string `env:"CDK_DEV_ACCOUNT"`
	ProdAccount   string `env:"CDK_PROD_ACCOUNT"`

	// Pipelines are only composed from stacks deployed in PrimaryRegion.
	PrimaryRegion   string `env:"PIPELINE_PRIMARY_REGION" envDefault:"us-east-1"`
	SecondaryRegion string `env:"PIPELINE_SECONDARY_REGION"`

	DevVPC  string `env:"DEV_VPC"`
	ProdVPC string `env:"PROD_VPC"`
	MgmtVPC string `env:"MGMT_VPC"`

	Domain        string `env:"DOMAIN"`
	ConnectionARN string `env:"CDK_CODESTAR_CONNECTION_ARN"`
	GithubOwner   string `env:"GITHUB_SOURCE_OWNER"`

	ArtifactBucketName string `env:"PIPELINE_ARTIFACT_BUCKET_NAME"`
	VerifierAssetDir   string `env:"DIGEST_VERIFIER_ASSET_DIR"`
	CatalogFile        string `env:"CATALOG_FILE"`
	LogLevel           string `env:"LOG_LEVEL" envDefault:"info"`
}

// Load reads .env (if present) and the process environment.
func Load(log *zap.Logger) (*Settings, error) {
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, errors.Wrap(err, "loading .env")
		}
		log.Debug(".env file not found, using process environment only")
	}
	return parse(env.Options{}, log)
}

// LoadFrom builds Settings from an explicit variable set instead of the
// process environment.
func LoadFrom(vars map[string]string, log *zap.Logger) (*Settings, error) {
	return parse(env.Options{Environment: vars}, log)
}

func parse(opts env.Options, log *zap.Logger) (*Settings, error) {
	var s Settings
	if err := env.ParseWithOptions(&s, opts); err != nil {
		return nil, errors.Wrap(err, "parsing environment")
	}
	s.deferMissing(log)
	return &s, nil
}

// Placeholder is substituted for required variables that are not set. The
// value flows into generated templates and fails when the deployment tool
// tries to resolve it.
func Placeholder(key string) string {
	return "MISSING_" + key
}

func (s *Settings) deferMissing(log *zap.Logger) {
	required := []struct {
		key   string
		value *string
	}{
		{"CDK_DEFAULT_ACCOUNT", &s.MgmtAccount},
		{"CDK_DEV_ACCOUNT", &s.DevAccount},
		{"CDK_PROD_ACCOUNT", &s.ProdAccount},
		{"DEV_VPC", &s.DevVPC},
		{"PROD_VPC", &s.ProdVPC},
		{"MGMT_VPC", &s.MgmtVPC},
		{"CDK_CODESTAR_CONNECTION_ARN", &s.ConnectionARN},
		{"GITHUB_SOURCE_OWNER", &s.GithubOwner},
	}
	for _, r := range required {
		*r.value = checkEnv(log, r.key, *r.value)
	}
}

func checkEnv(log *zap.Logger, key, value string) string {
	if value == "" {
		log.Warn("environment variable not set, deploy will fail on this reference", zap.String("key", key))
		return Placeholder(key)
	}
	return value
}
