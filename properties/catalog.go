package properties

import (
	"bytes"
	_ "embed"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var embedded []byte

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterStructValidation(serviceStructLevel, Service{})
	return v
}

// Compute services pull their image from the management registry, and a
// routed service must declare the path its target group probes and a
// listener rule priority.
func serviceStructLevel(sl validator.StructLevel) {
	svc := sl.Current().Interface().(Service)
	if svc.Category == Database {
		return
	}
	if !svc.Registry {
		sl.ReportError(svc.Registry, "Registry", "registry", "registry_required", "")
	}
	for env, p := range svc.Properties {
		if !p.Routed() {
			continue
		}
		if svc.HealthCheck == "" {
			sl.ReportError(svc.HealthCheck, "HealthCheck", "healthCheck", "required_with_host_headers", "")
		}
		if p.Priority < 1 {
			sl.ReportError(p.Priority, "Priority", "priority", "routed_priority", env)
		}
	}
}

// Load returns the embedded catalog, or the file at path when it is set.
func Load(path string) (*Catalog, error) {
	data := embedded
	if path != "" {
		var err error
		if data, err = os.ReadFile(path); err != nil {
			return nil, errors.Wrapf(err, "reading catalog %s", path)
		}
	}
	return Parse(data)
}

func Parse(data []byte) (*Catalog, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var c Catalog
	if err := dec.Decode(&c); err != nil {
		return nil, errors.Wrap(err, "decoding catalog")
	}
	if err := validate.Struct(&c); err != nil {
		return nil, errors.Wrap(err, "invalid catalog")
	}
	return &c, nil
}

func (c *Catalog) Project(name string) (Project, bool) {
	return lo.Find(c.Projects, func(p Project) bool {
		return p.Name == name
	})
}
