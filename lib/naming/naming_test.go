package naming

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDerivedNames(t *testing.T) {
	require.Equal(t, "dev-ov3r-postgres", Prefix("dev", "ov3r", "postgres"))
	require.Equal(t, "dev-ov3r-postgres-cdk", StackName("dev", "ov3r", "postgres"))
	require.Equal(t, "dev-ov3r-shared-services-cdk", SharedStackName("dev", "ov3r"))
	require.Equal(t, "ov3r-dev-cdk", MainStackName("dev", "ov3r"))
	require.Equal(t, "dev-ov3r-https-listener-arn", ListenerExport("dev", "ov3r"))
	require.Equal(t, "dev-ov3r-load-balancer-sg-id", LoadBalancerSGExport("dev", "ov3r"))
	require.Equal(t, "ov3r-codepipeline-sns-topic-arn", TopicExport("ov3r"))
	require.Equal(t, "postgres.ov3r.internal", InternalRecord("postgres", "ov3r"))
	require.Equal(t, "dev.ov3r.tech", EnvZone("dev", "ov3r.tech"))
	require.Equal(t,
		"111111111111.dkr.ecr.us-east-1.amazonaws.com/mostrom-ai-chatbot",
		RepositoryURI("111111111111", "us-east-1", "mostrom", "ai-chatbot"))
	require.Equal(t,
		"arn:aws:ecr:us-east-1:111111111111:repository/ov3r-comprehend-query",
		RepositoryARN("111111111111", "us-east-1", "ov3r", "comprehend-query"))
	require.Equal(t,
		"arn:aws:iam::222222222222:role/dev-mostrom-ai-chatbot-ecs-task-role",
		TaskRoleARN("222222222222", "dev", "mostrom", "ai-chatbot"))
	require.Equal(t,
		"arn:aws:iam::111111111111:role/ov3r-zone-delegation-role",
		ZoneDelegationRoleARN("111111111111", "ov3r"))
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{in: "dev-ov3r-postgres-nlb", max: 32, want: "dev-ov3r-postgres-nlb"},
		{in: "prod-ov3r-comprehend-web-svc-nlb-tg", max: 32, want: "prod-ov3r-comprehend-web-svc-nlb"},
		{in: "abcd-efgh", max: 5, want: "abcd"},
		{in: "", max: 32, want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := Truncate(tt.in, tt.max)
			require.Equal(t, tt.want, got)
			require.LessOrEqual(t, len(got), tt.max)
		})
	}
}
