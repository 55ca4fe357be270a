package config

import "os"

// CapabilityConfig gates developer/test tooling that must not leak
// into production behaviour.
type CapabilityConfig interface {
	// DemoModeEnabled reports whether demo-only storage keys may be
	// persisted. When off such keys live in memory only.
	DemoModeEnabled() bool
	// RoleOverrideEnabled reports whether the local role simulation
	// escape hatch is available. Never true outside DEV.
	RoleOverrideEnabled() bool
}

type Capabilities struct{}

var _ CapabilityConfig = Capabilities{}

func (Capabilities) DemoModeEnabled() bool {
	return os.Getenv("DEMO_MODE") == "true"
}

func (c Capabilities) RoleOverrideEnabled() bool {
	if (EnvVars{}).GetEnv() != "DEV" {
		return false
	}
	return os.Getenv("ROLE_OVERRIDE") == "true"
}
