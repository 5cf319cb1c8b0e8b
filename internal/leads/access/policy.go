package access

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Policy names the roles the guard consults. Role names are compared case-insensitively.
type Policy struct {
	CrossTerritoryRoles []string `yaml:"cross_territory_roles"`
	ManagerRole         string   `yaml:"manager_role"`
	AdminRole           string   `yaml:"admin_role"`
	StopClockPermission string   `yaml:"stop_clock_permission"`
	ExtendPermission    string   `yaml:"extend_permission"`
}

// DefaultPolicy is used when no policy file is configured.
func DefaultPolicy() Policy {
	return Policy{
		CrossTerritoryRoles: []string{"admin"},
		ManagerRole:         "manager",
		AdminRole:           "admin",
		StopClockPermission: "lead:stop-clock",
		ExtendPermission:    "lead:extend",
	}
}

// LoadPolicy reads a YAML policy file. Missing keys keep their defaults; an
// empty path returns DefaultPolicy.
func LoadPolicy(path string) (Policy, error) {
	policy := DefaultPolicy()
	if strings.TrimSpace(path) == "" {
		return policy, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("reading access policy: %w", err)
	}
	return ParsePolicy(raw)
}

// ParsePolicy decodes a YAML policy over the defaults.
func ParsePolicy(raw []byte) (Policy, error) {
	policy := DefaultPolicy()
	if err := yaml.Unmarshal(raw, &policy); err != nil {
		return Policy{}, fmt.Errorf("parsing access policy: %w", err)
	}
	if err := policy.validate(); err != nil {
		return Policy{}, err
	}
	return policy, nil
}

func (p Policy) validate() error {
	if strings.TrimSpace(p.ManagerRole) == "" || strings.TrimSpace(p.AdminRole) == "" {
		return fmt.Errorf("access policy: manager_role and admin_role are required")
	}
	if strings.EqualFold(p.ManagerRole, p.AdminRole) {
		return fmt.Errorf("access policy: manager_role and admin_role must differ")
	}
	return nil
}
