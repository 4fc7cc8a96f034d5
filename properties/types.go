package properties

import (
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"
)

// Category selects the compute composer used for a service.
type Category string

const (
	Database Category = "database"
	Platform Category = "platform"
	API      Category = "api"
)

func (c *Category) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	switch Category(s) {
	case Database, Platform, API:
		*c = Category(s)
		return nil
	}
	return errors.Errorf("line %d: unknown service category %q", value.Line, s)
}

type Catalog struct {
	Projects []Project `yaml:"projects" validate:"required,min=1,dive"`
}

type Project struct {
	Name   string   `yaml:"name" validate:"required"`
	Domain string   `yaml:"domain" validate:"omitempty,fqdn"`
	Envs   []string `yaml:"envs" validate:"required,min=1,dive,required"`

	// Owner and ConnectionARN override the source settings for this project.
	Owner         string `yaml:"owner"`
	ConnectionARN string `yaml:"connectionArn"`

	Slack *Slack `yaml:"slack"`

	// Certificates maps an environment to an existing ACM certificate ARN.
	// Environments without one get a DNS validated certificate.
	Certificates map[string]string `yaml:"certificates"`

	Services []Service `yaml:"services" validate:"required,min=1,dive"`
}

type Slack struct {
	WorkspaceID string `yaml:"workspaceId" validate:"required"`
	ChannelID   string `yaml:"channelId" validate:"required"`
}

type Service struct {
	Name     string   `yaml:"name" validate:"required"`
	Category Category `yaml:"category" validate:"required"`

	// Registry requests an image repository in the management account.
	Registry   bool   `yaml:"registry"`
	Repository string `yaml:"repository"`

	Properties  map[string]Properties `yaml:"properties" validate:"required,min=1,dive"`
	Secrets     []string              `yaml:"secrets" validate:"dive,required"`
	HealthCheck string                `yaml:"healthCheck" validate:"omitempty,startswith=/"`
}

// Properties are the per environment sizing and routing values of a service.
type Properties struct {
	Subdomain      string   `yaml:"subdomain"`
	HostHeaders    []string `yaml:"hostHeaders" validate:"dive,required"`
	Priority       int      `yaml:"priority" validate:"gte=0,lte=50000"`
	DesiredCount   int      `yaml:"desiredCount" validate:"gte=0"`
	MemoryLimitMiB int      `yaml:"memoryLimitMiB" validate:"required,gt=0"`
	CPU            int      `yaml:"cpu" validate:"required,gt=0"`
}

func (p Properties) Routed() bool {
	return len(p.HostHeaders) > 0
}

// Pipelined reports whether the service is built from source into its own
// image repository.
func (s Service) Pipelined() bool {
	return s.Registry && s.Repository != ""
}

func (p Project) DomainOr(fallback string) string {
	if p.Domain != "" {
		return p.Domain
	}
	return fallback
}

func (p Project) OwnerOr(fallback string) string {
	if p.Owner != "" {
		return p.Owner
	}
	return fallback
}

func (p Project) ConnectionOr(fallback string) string {
	if p.ConnectionARN != "" {
		return p.ConnectionARN
	}
	return fallback
}

// RegistryServices are the services that need an image repository.
func (p Project) RegistryServices() []Service {
	return lo.Filter(p.Services, func(s Service, _ int) bool {
		return s.Registry
	})
}
