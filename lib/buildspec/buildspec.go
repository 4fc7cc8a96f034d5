// Package buildspec generates the CodeBuild command sequences used by the
// service pipelines. The emitted command strings are consumed verbatim by
// CodeBuild and by tooling that parses the deploy output, so their flags and
// field names are part of the contract.
package buildspec

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-cdk-go/awscdk/v2/awscodebuild"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"
)

const Version = "0.2"

type Spec struct {
	Version string `json:"version" yaml:"version"`
	Phases  Phases `json:"phases" yaml:"phases"`
}

type Phases struct {
	Install   *Phase `json:"install,omitempty" yaml:"install,omitempty"`
	PreBuild  *Phase `json:"pre_build,omitempty" yaml:"pre_build,omitempty"`
	Build     *Phase `json:"build,omitempty" yaml:"build,omitempty"`
	PostBuild *Phase `json:"post_build,omitempty" yaml:"post_build,omitempty"`
}

type Phase struct {
	RuntimeVersions map[string]string `json:"runtime-versions,omitempty" yaml:"runtime-versions,omitempty"`
	Commands        []string          `json:"commands,omitempty" yaml:"commands,omitempty"`
}

// Params parameterize the image build.
type Params struct {
	ImageTag string
	ECRURI   string
	Region   string
	// Secrets are passed to docker build as build args of the same name.
	Secrets []string
}

func (p Params) image() string {
	return fmt.Sprintf("%s:%s", p.ECRURI, p.ImageTag)
}

func (p Params) login() string {
	return fmt.Sprintf("aws ecr get-login-password --region %s | docker login --username AWS --password-stdin %s", p.Region, p.ECRURI)
}

func (p Params) push() *Phase {
	return &Phase{Commands: []string{
		"echo Build completed on `date`",
		"echo Pushing the Docker images...",
		"docker push " + p.image(),
	}}
}

// Docker builds and pushes a plain container image.
func Docker(p Params) *Spec {
	return &Spec{
		Version: Version,
		Phases: Phases{
			Install: &Phase{RuntimeVersions: map[string]string{"nodejs": "20"}},
			PreBuild: &Phase{Commands: []string{
				"echo Logging in to Amazon ECR...",
				"aws --version",
				p.login(),
			}},
			Build: &Phase{Commands: []string{
				"echo Build started on `date`",
				"echo Building the Docker image...",
				fmt.Sprintf("docker build . -t %s", p.image()),
			}},
			PostBuild: p.push(),
		},
	}
}

// NextJS builds without layer cache and injects the secrets as build args,
// since NEXT_PUBLIC_ values are inlined at build time.
func NextJS(p Params) *Spec {
	args := lo.Map(p.Secrets, func(s string, _ int) string {
		return fmt.Sprintf("--build-arg %s=$%s", s, s)
	})
	build := strings.Join(append(append([]string{"docker build"}, args...), ".", "-t", p.image(), "--no-cache"), " ")

	return &Spec{
		Version: Version,
		Phases: Phases{
			Install: &Phase{RuntimeVersions: map[string]string{"nodejs": "22"}},
			PreBuild: &Phase{Commands: []string{
				"echo Logging in to Amazon ECR...",
				"aws --version",
				"node --version",
				p.login(),
			}},
			Build: &Phase{Commands: []string{
				"echo Build started on `date`",
				"echo Building the Docker image...",
				build,
			}},
			PostBuild: p.push(),
		},
	}
}

// UsesBuildSecrets reports whether service is built with NextJS.
func UsesBuildSecrets(service string) bool {
	return strings.Contains(service, "web")
}

func ForService(service string, p Params) *Spec {
	if UsesBuildSecrets(service) {
		return NextJS(p)
	}
	return Docker(p)
}

type DeployParams struct {
	Cluster      string
	Service      string
	RoleARN      string
	DesiredCount int
	Region       string
	ECRURI       string
	ImageTag     string
	RepoName     string
	Environment  string
}

// ECSDeploy resolves the pushed tag to its digest and registers a task
// definition revision that references {uri}@{digest}, then rolls the service
// onto it and waits for it to stabilize.
func ECSDeploy(p DeployParams) *Spec {
	return &Spec{
		Version: Version,
		Phases: Phases{
			PreBuild: &Phase{Commands: []string{"aws --version"}},
			Build: &Phase{Commands: []string{
				`echo "===== Get the SHA of the image we just pushed ====="`,
				fmt.Sprintf(`IMAGE_SHA=$(aws ecr describe-images --repository-name %s --image-ids imageTag=%s --query 'imageDetails[0].imageDigest' --output text)`, p.RepoName, p.ImageTag),
				`echo "New image SHA: $IMAGE_SHA"`,
				fmt.Sprintf(`OUT=$(aws sts assume-role --role-arn %s --role-session-name AWSCLI-Session)`, p.RoleARN),
				`export AWS_ACCESS_KEY_ID=$(echo $OUT | jq -r '.Credentials''.AccessKeyId')`,
				`export AWS_SECRET_ACCESS_KEY=$(echo $OUT | jq -r '.Credentials''.SecretAccessKey')`,
				`export AWS_SESSION_TOKEN=$(echo $OUT | jq -r '.Credentials''.SessionToken')`,
				`echo "===== Updating ECS task definition to reference exact image SHA ====="`,
				fmt.Sprintf(`TASK_FAMILY="%s-%s"`, p.Environment, p.RepoName),
				fmt.Sprintf(`TASK_DEF=$(aws ecs describe-task-definition --task-definition $TASK_FAMILY --region %s --query 'taskDefinition' --output json)`, p.Region),
				fmt.Sprintf(`NEW_TASK_DEF=$(echo $TASK_DEF | jq --arg IMAGE "%s@$IMAGE_SHA" '.containerDefinitions[0].image = $IMAGE')`, p.ECRURI),
				`NEW_TASK_DEF=$(echo $NEW_TASK_DEF | jq 'del(.taskDefinitionArn, .revision, .status, .requiresAttributes, .compatibilities, .registeredAt, .registeredBy)')`,
				fmt.Sprintf(`NEW_TASK_DEF_ARN=$(aws ecs register-task-definition --cli-input-json "$NEW_TASK_DEF" --region %s --query 'taskDefinition.taskDefinitionArn' --output text)`, p.Region),
				`echo "Registered new task definition: $NEW_TASK_DEF_ARN"`,
				`echo "===== Updating ECS service in dev account ====="`,
				fmt.Sprintf(`aws ecs update-service --cluster %s --service %s --desired-count %d --force-new-deployment --region %s --task-definition $NEW_TASK_DEF_ARN`, p.Cluster, p.Service, p.DesiredCount, p.Region),
				fmt.Sprintf(`aws ecs wait services-stable --cluster %s --service %s --region %s`, p.Cluster, p.Service, p.Region),
			}},
		},
	}
}

// Object converts the spec to the generic form BuildSpec_FromObject takes.
func (s *Spec) Object() (map[string]interface{}, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, errors.Wrap(err, "encoding buildspec")
	}
	var obj map[string]interface{}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, errors.Wrap(err, "decoding buildspec")
	}
	return obj, nil
}

// BuildSpec panics if the spec cannot be encoded.
func (s *Spec) BuildSpec() awscodebuild.BuildSpec {
	obj, err := s.Object()
	if err != nil {
		panic(err)
	}
	return awscodebuild.BuildSpec_FromObject(&obj)
}

func (s *Spec) YAML() ([]byte, error) {
	out, err := yaml.Marshal(s)
	if err != nil {
		return nil, errors.Wrap(err, "rendering buildspec")
	}
	return out, nil
}
