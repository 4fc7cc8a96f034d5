// Package naming derives resource identifiers from environment, project and
// service names. The derived names are the keys that correlate resources
// across stacks, so changing any format here breaks existing exports.
package naming

import (
	"fmt"
	"strings"
)

// MaxLoadBalancerName is the limit for load balancer and target group names.
const MaxLoadBalancerName = 32

// Prefix is the per service key, {env}-{project}-{service}.
func Prefix(env, project, service string) string {
	return fmt.Sprintf("%s-%s-%s", env, project, service)
}

// EnvPrefix is the per environment key, {env}-{project}.
func EnvPrefix(env, project string) string {
	return fmt.Sprintf("%s-%s", env, project)
}

func StackName(env, project, service string) string {
	return Prefix(env, project, service) + "-cdk"
}

func SharedStackName(env, project string) string {
	return EnvPrefix(env, project) + "-shared-services-cdk"
}

func MainStackName(env, project string) string {
	return fmt.Sprintf("%s-%s-cdk", project, env)
}

func ManagementStackName(project string) string {
	return fmt.Sprintf("%s-devops-stack-cdk", project)
}

func PipelineStackName(env, project, service string) string {
	return Prefix(env, project, service) + "-pipeline-cdk"
}

// RepositoryName is the image repository in the management account.
func RepositoryName(project, service string) string {
	return fmt.Sprintf("%s-%s", project, service)
}

func RepositoryURI(account, region, project, service string) string {
	return fmt.Sprintf("%s.dkr.ecr.%s.amazonaws.com/%s", account, region, RepositoryName(project, service))
}

func RepositoryARN(account, region, project, service string) string {
	return fmt.Sprintf("arn:aws:ecr:%s:%s:repository/%s", region, account, RepositoryName(project, service))
}

func TaskRoleName(env, project, service string) string {
	return Prefix(env, project, service) + "-ecs-task-role"
}

func TaskRoleARN(account, env, project, service string) string {
	return fmt.Sprintf("arn:aws:iam::%s:role/%s", account, TaskRoleName(env, project, service))
}

// ZoneDelegationRoleName is assumed by workload accounts to write NS records
// for their sub-zones into the project's parent zone.
func ZoneDelegationRoleName(project string) string {
	return project + "-zone-delegation-role"
}

func ZoneDelegationRoleARN(account, project string) string {
	return fmt.Sprintf("arn:aws:iam::%s:role/%s", account, ZoneDelegationRoleName(project))
}

// EnvZone is the public sub-zone of an environment, {env}.{domain}.
func EnvZone(env, domain string) string {
	return fmt.Sprintf("%s.%s", env, domain)
}

// InternalZone is the private zone shared by a project's services.
func InternalZone(project string) string {
	return project + ".internal"
}

func InternalRecord(service, project string) string {
	return fmt.Sprintf("%s.%s", service, InternalZone(project))
}

// Exported values of the shared services stack.
func ListenerExport(env, project string) string {
	return EnvPrefix(env, project) + "-https-listener-arn"
}

func LoadBalancerSGExport(env, project string) string {
	return EnvPrefix(env, project) + "-load-balancer-sg-id"
}

func LoadBalancerDNSExport(env, project string) string {
	return EnvPrefix(env, project) + "-load-balancer-dns"
}

func HostedZoneExport(env, project string) string {
	return EnvPrefix(env, project) + "-hosted-zone-id"
}

func InternalZoneExport(env, project string) string {
	return EnvPrefix(env, project) + "-internal-zone-id"
}

// TopicExport is exported by the management stack.
func TopicExport(project string) string {
	return project + "-codepipeline-sns-topic-arn"
}

func PipelineSecretName(project string) string {
	return project + "-pipeline-environment-variables"
}

// Truncate cuts name to max characters without leaving a trailing hyphen.
func Truncate(name string, max int) string {
	if len(name) <= max {
		return name
	}
	return strings.TrimRight(name[:max], "-")
}
