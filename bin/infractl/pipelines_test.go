package main

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/codepipeline"
	"github.com/aws/aws-sdk-go-v2/service/codepipeline/types"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

type fakePipelines map[string][]types.StageState

func (f fakePipelines) GetPipelineState(_ context.Context, in *codepipeline.GetPipelineStateInput, _ ...func(*codepipeline.Options)) (*codepipeline.GetPipelineStateOutput, error) {
	stages, ok := f[aws.ToString(in.Name)]
	if !ok {
		return nil, errors.New("PipelineNotFoundException")
	}
	return &codepipeline.GetPipelineStateOutput{PipelineName: in.Name, StageStates: stages}, nil
}

func TestPipelinesCommand(t *testing.T) {
	c := testCLI(t)
	c.pipelines = func(context.Context) (pipelineStater, error) {
		return fakePipelines{
			"dev-mostrom-ai-chatbot": {
				{StageName: aws.String("Source"), LatestExecution: &types.StageExecution{Status: types.StageExecutionStatusSucceeded}},
				{StageName: aws.String("Deploy")},
			},
		}, nil
	}

	out, err := run(t, c, "pipelines", "mostrom")
	require.NoError(t, err)
	require.Contains(t, out, "PIPELINE")
	require.Regexp(t, `dev-mostrom-ai-chatbot\s+Source\s+Succeeded`, out)
	require.Regexp(t, `dev-mostrom-ai-chatbot\s+Deploy\s+-`, out)

	_, err = run(t, c, "pipelines", "ov3r")
	require.ErrorContains(t, err, "reading state of pipeline dev-ov3r-comprehend-query")
}

func TestPipelineNames(t *testing.T) {
	c := testCLI(t)

	names, err := c.pipelineNames("")
	require.NoError(t, err)
	require.Equal(t, []string{
		"dev-ov3r-comprehend-query",
		"dev-ov3r-comprehend-web-svc",
		"dev-mostrom-ai-chatbot",
	}, names)

	c.settings.DefaultRegion = "us-west-1"
	names, err = c.pipelineNames("")
	require.NoError(t, err)
	require.Empty(t, names)
}
