package buildspec

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const uri = "111111111111.dkr.ecr.us-east-1.amazonaws.com/mostrom-ai-chatbot"

func deployParams() DeployParams {
	return DeployParams{
		Cluster:      "mostrom",
		Service:      "ai-chatbot",
		RoleARN:      "arn:aws:iam::222222222222:role/dev-mostrom-ai-chatbot-ecs-task-role",
		DesiredCount: 0,
		Region:       "us-east-1",
		ECRURI:       uri,
		ImageTag:     "dev",
		RepoName:     "mostrom-ai-chatbot",
		Environment:  "dev",
	}
}

func TestECSDeployPinsDigest(t *testing.T) {
	spec := ECSDeploy(deployParams())
	require.Nil(t, spec.Phases.Install)
	require.Equal(t, []string{"aws --version"}, spec.Phases.PreBuild.Commands)

	cmds := spec.Phases.Build.Commands
	require.Len(t, cmds, 17)

	// the digest is resolved from the tag before anything is registered
	require.Contains(t, cmds[1], "--repository-name mostrom-ai-chatbot --image-ids imageTag=dev")
	require.Equal(t, `TASK_FAMILY="dev-mostrom-ai-chatbot"`, cmds[8])

	var patch, register int
	for i, c := range cmds {
		if strings.Contains(c, ".containerDefinitions[0].image = $IMAGE") {
			patch = i
			require.Contains(t, c, `"`+uri+`@$IMAGE_SHA"`)
			require.NotContains(t, c, uri+":dev")
		}
		if strings.Contains(c, "register-task-definition") {
			register = i
		}
	}
	require.Positive(t, patch)
	require.Greater(t, register, patch)

	require.Equal(t,
		"aws ecs update-service --cluster mostrom --service ai-chatbot --desired-count 0 --force-new-deployment --region us-east-1 --task-definition $NEW_TASK_DEF_ARN",
		cmds[15])
	require.Equal(t, "aws ecs wait services-stable --cluster mostrom --service ai-chatbot --region us-east-1", cmds[16])

	for _, c := range cmds {
		require.NotContains(t, c, uri+":")
	}
}

func TestDocker(t *testing.T) {
	spec := Docker(Params{ImageTag: "dev", ECRURI: uri, Region: "us-east-1", Secrets: []string{"IGNORED"}})

	require.Equal(t, "20", spec.Phases.Install.RuntimeVersions["nodejs"])
	require.Equal(t,
		"aws ecr get-login-password --region us-east-1 | docker login --username AWS --password-stdin "+uri,
		spec.Phases.PreBuild.Commands[2])
	require.Equal(t, "docker build . -t "+uri+":dev", spec.Phases.Build.Commands[2])
	require.Equal(t, "docker push "+uri+":dev", spec.Phases.PostBuild.Commands[2])
}

func TestNextJS(t *testing.T) {
	spec := NextJS(Params{ImageTag: "dev", ECRURI: uri, Region: "us-east-1", Secrets: []string{"A", "B"}})
	require.Equal(t, "22", spec.Phases.Install.RuntimeVersions["nodejs"])
	require.Equal(t, "node --version", spec.Phases.PreBuild.Commands[2])
	require.Equal(t,
		"docker build --build-arg A=$A --build-arg B=$B . -t "+uri+":dev --no-cache",
		spec.Phases.Build.Commands[2])

	plain := NextJS(Params{ImageTag: "dev", ECRURI: uri, Region: "us-east-1"})
	require.Equal(t, "docker build . -t "+uri+":dev --no-cache", plain.Phases.Build.Commands[2])
}

func TestForService(t *testing.T) {
	p := Params{ImageTag: "dev", ECRURI: uri, Region: "us-east-1"}
	require.Equal(t, "22", ForService("comprehend-web-svc", p).Phases.Install.RuntimeVersions["nodejs"])
	require.Equal(t, "20", ForService("comprehend-query", p).Phases.Install.RuntimeVersions["nodejs"])
}

func TestObject(t *testing.T) {
	obj, err := ECSDeploy(deployParams()).Object()
	require.NoError(t, err)
	require.Equal(t, "0.2", obj["version"])

	phases := obj["phases"].(map[string]interface{})
	require.NotContains(t, phases, "install")
	require.NotContains(t, phases, "post_build")

	build := phases["build"].(map[string]interface{})
	require.Len(t, build["commands"].([]interface{}), 17)
}

func TestYAML(t *testing.T) {
	out, err := Docker(Params{ImageTag: "dev", ECRURI: uri, Region: "us-east-1"}).YAML()
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, yaml.Unmarshal(out, &decoded))
	phases := decoded["phases"].(map[string]interface{})
	require.Contains(t, phases, "pre_build")
	require.Equal(t, "20", phases["install"].(map[string]interface{})["runtime-versions"].(map[string]interface{})["nodejs"])
}
