package properties

import (
	"testing"

	"github.com/ov3r/infra-aws-base-cdk/config"
	"github.com/stretchr/testify/require"
)

func testSettings() *config.Settings {
	return &config.Settings{
		MgmtAccount:   "111111111111",
		DevAccount:    "222222222222",
		ProdAccount:   "333333333333",
		DefaultRegion: "us-east-1",
	}
}

func TestEmbeddedCatalog(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)

	ov3r, ok := c.Project("ov3r")
	require.True(t, ok)
	require.Equal(t, "ov3r.tech", ov3r.Domain)
	require.Len(t, ov3r.Services, 3)
	require.Len(t, ov3r.RegistryServices(), 2)
	require.Equal(t, Database, ov3r.Services[0].Category)

	mostrom, ok := c.Project("mostrom")
	require.True(t, ok)
	require.Nil(t, mostrom.Slack)
	require.Equal(t, 0, mostrom.Services[0].Properties["dev"].DesiredCount)

	_, ok = c.Project("unknown")
	require.False(t, ok)
}

func TestResolve(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)

	deployments, err := c.Resolve(testSettings().Lookup)
	require.NoError(t, err)
	require.Len(t, deployments, 2)

	for _, d := range deployments {
		require.Equal(t, config.Dev, d.Env.Key)
		require.Equal(t, "222222222222", d.Env.Account)
		require.Len(t, d.Workloads, len(d.Project.Services))
	}

	chatbot := deployments[1].Workloads[0]
	require.Equal(t, "ai-chatbot", chatbot.Service.Name)
	require.Equal(t, 1, chatbot.Properties.Priority)
	require.True(t, chatbot.Properties.Routed())
	require.True(t, chatbot.Service.Pipelined())
}

const validService = `
      - name: api
        category: platform
        registry: true
        repository: api
        healthCheck: /health
        properties:
          dev: {hostHeaders: [api.dev.example.com], priority: 2, desiredCount: 1, memoryLimitMiB: 512, cpu: 256}
`

func TestResolveFailures(t *testing.T) {
	tests := []struct {
		name    string
		catalog string
		want    string
	}{
		{
			name: "unknown environment",
			catalog: `
projects:
  - name: p
    envs: [dev, qa]
    services:` + validService,
			want: "invalid environment: qa",
		},
		{
			name: "missing environment properties",
			catalog: `
projects:
  - name: p
    envs: [dev, prod]
    services:` + validService,
			want: "no properties for environment prod",
		},
		{
			name: "duplicate listener priority",
			catalog: `
projects:
  - name: p
    envs: [dev]
    services:` + validService + `
      - name: web
        category: api
        registry: true
        healthCheck: /
        properties:
          dev: {hostHeaders: [web.dev.example.com], priority: 2, desiredCount: 1, memoryLimitMiB: 512, cpu: 256}
`,
			want: "listener priority 2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := Parse([]byte(tt.catalog))
			require.NoError(t, err)

			deployments, err := c.Resolve(testSettings().Lookup)
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.want)
			require.Nil(t, deployments)
		})
	}
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name    string
		catalog string
		want    string
	}{
		{
			name: "unknown category",
			catalog: `
projects:
  - name: p
    envs: [dev]
    services:
      - name: s
        category: fargate
        properties:
          dev: {memoryLimitMiB: 512, cpu: 256}
`,
			want: `unknown service category "fargate"`,
		},
		{
			name: "host headers without health check",
			catalog: `
projects:
  - name: p
    envs: [dev]
    services:
      - name: s
        category: platform
        properties:
          dev: {hostHeaders: [s.dev.example.com], priority: 1, memoryLimitMiB: 512, cpu: 256}
`,
			want: "required_with_host_headers",
		},
		{
			name: "compute service without registry",
			catalog: `
projects:
  - name: p
    envs: [dev]
    services:
      - name: s
        category: api
        properties:
          dev: {memoryLimitMiB: 512, cpu: 256}
`,
			want: "registry_required",
		},
		{
			name: "routed without priority",
			catalog: `
projects:
  - name: p
    envs: [dev]
    services:
      - name: s
        category: platform
        registry: true
        healthCheck: /
        properties:
          dev: {hostHeaders: [s.dev.example.com], memoryLimitMiB: 512, cpu: 256}
`,
			want: "routed_priority",
		},
		{
			name: "flat properties",
			catalog: `
projects:
  - name: p
    envs: [dev]
    services:
      - name: s
        category: database
        properties: {priority: 1, memoryLimitMiB: 512, cpu: 256}
`,
			want: "decoding catalog",
		},
		{
			name: "no services",
			catalog: `
projects:
  - name: p
    envs: [dev]
`,
			want: "Services",
		},
		{
			name: "unknown field",
			catalog: `
projects:
  - name: p
    envs: [dev]
    region: us-east-1
    services:` + validService,
			want: "field region not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.catalog))
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestDatabaseWithoutHealthCheck(t *testing.T) {
	c, err := Parse([]byte(`
projects:
  - name: p
    envs: [dev]
    services:
      - name: db
        category: database
        properties:
          dev: {subdomain: db, memoryLimitMiB: 512, cpu: 256}
`))
	require.NoError(t, err)
	require.False(t, c.Projects[0].Services[0].Pipelined())
}
