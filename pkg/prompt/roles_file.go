package prompt

import (
	"os"

	"github.com/consilium-health/consilium/pkg/errors"
	"gopkg.in/yaml.v3"
)

// rolesFile is the on-disk shape of a custom roles file.
type rolesFile struct {
	Roles []customRole `yaml:"roles"`
}

type customRole struct {
	Name     string `yaml:"name"`
	System   string `yaml:"system"`
	Template string `yaml:"template"`
}

// LoadFile merges custom role definitions from a YAML file over the
// built-ins. Existing roles with the same name are replaced.
func (r *Registry) LoadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return errors.New(errors.CodeInvalidInput, "cannot read roles file", err).
			WithContext("path", path)
	}

	var rf rolesFile
	if err := yaml.Unmarshal(raw, &rf); err != nil {
		return errors.New(errors.CodeInvalidInput, "cannot parse roles file", err).
			WithContext("path", path)
	}

	for _, cr := range rf.Roles {
		if err := r.Register(Role(cr.Name), cr.System, cr.Template); err != nil {
			return err
		}
	}
	return nil
}
