// Package leads assembles the lead protection bounded context. The api process
// mounts it through NewModule; the scheduler combines NewLifecycle with the
// sweep package.
package leads

import (
	"lead_protection_backend/internal/leads/access"
	"lead_protection_backend/internal/leads/adapters/fsm"
	"lead_protection_backend/internal/leads/lifecycle"
	"lead_protection_backend/platform/config"
)

// ModuleConfig is the configuration the leads context reads.
type ModuleConfig interface {
	config.ProtectionConfig
	config.SweepConfig
	config.AccessPolicyConfig
}

// NewLifecycle returns the lifecycle engine backed by the lead status machine.
func NewLifecycle() *lifecycle.Lifecycle {
	return lifecycle.New(fsm.New())
}

// NewGuard loads the access policy file when one is configured and falls back
// to the built-in policy otherwise.
func NewGuard(cfg config.AccessPolicyConfig) (*access.Guard, error) {
	policy, err := access.LoadPolicy(cfg.GetAccessPolicyFile())
	if err != nil {
		return nil, err
	}
	return access.NewGuard(policy), nil
}
