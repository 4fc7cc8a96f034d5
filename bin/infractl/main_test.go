package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/ov3r/infra-aws-base-cdk/config"
	"github.com/ov3r/infra-aws-base-cdk/properties"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func testCLI(t *testing.T) *cli {
	t.Helper()
	catalog, err := properties.Load("")
	require.NoError(t, err)

	c := newCLI()
	c.log = zaptest.NewLogger(t)
	c.catalog = catalog
	c.settings = &config.Settings{
		MgmtAccount:   "111111111111",
		DefaultRegion: "us-east-1",
		DevAccount:    "222222222222",
		ProdAccount:   "333333333333",
		PrimaryRegion: "us-east-1",
	}
	c.secrets = func(context.Context) (secretGetter, error) {
		t.Fatal("unexpected secrets manager client")
		return nil, nil
	}
	c.pipelines = func(context.Context) (pipelineStater, error) {
		t.Fatal("unexpected codepipeline client")
		return nil, nil
	}
	c.objects = func(context.Context) (s3.ListObjectsV2APIClient, error) {
		t.Fatal("unexpected s3 client")
		return nil, nil
	}
	return c
}

func run(t *testing.T, c *cli, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(c)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCatalogCommand(t *testing.T) {
	out, err := run(t, testCLI(t), "catalog", "ov3r")
	require.NoError(t, err)
	require.Contains(t, out, "stack: ov3r-dev-cdk")
	require.Contains(t, out, "account: \"222222222222\"")
	require.Contains(t, out, "name: postgres")
	require.Contains(t, out, "pipeline: dev-ov3r-comprehend-query")
	require.NotContains(t, out, "mostrom")

	_, err = run(t, testCLI(t), "catalog", "nope")
	require.EqualError(t, err, "unknown project: nope")
}

func TestCatalogCommandSkipsPipelinesOutsidePrimaryRegion(t *testing.T) {
	c := testCLI(t)
	c.settings.DefaultRegion = "us-west-1"

	out, err := run(t, c, "catalog", "mostrom")
	require.NoError(t, err)
	require.Contains(t, out, "region: us-west-1")
	require.NotContains(t, out, "pipeline:")
}

func TestBuildspecCommand(t *testing.T) {
	out, err := run(t, testCLI(t), "buildspec", "mostrom", "ai-chatbot")
	require.NoError(t, err)
	require.Contains(t, out, "version:")
	require.Contains(t, out, "111111111111.dkr.ecr.us-east-1.amazonaws.com/mostrom-ai-chatbot:dev")

	out, err = run(t, testCLI(t), "buildspec", "mostrom", "ai-chatbot", "--deploy")
	require.NoError(t, err)
	require.Contains(t, out, "arn:aws:iam::222222222222:role/dev-mostrom-ai-chatbot-ecs-task-role")

	_, err = run(t, testCLI(t), "buildspec", "ov3r", "postgres")
	require.EqualError(t, err, "service postgres has no pipeline")

	_, err = run(t, testCLI(t), "buildspec", "mostrom", "ai-chatbot", "--env", "prod")
	require.EqualError(t, err, "service ai-chatbot has no properties for environment prod")

	_, err = run(t, testCLI(t), "buildspec", "mostrom", "missing")
	require.EqualError(t, err, "project mostrom has no service missing")
}
