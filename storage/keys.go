package storage

import (
	"fmt"
	"strings"
)

// Key identifies a logical storage entry. Every key is declared once
// in the registry below together with its scope and schema; callers
// never choose the scope themselves.
type Key string

const (
	// KeyAuthEvent is the reserved cross-tab marker. Rewritten on
	// every session-affecting event; sibling processes watch it and
	// re-hydrate.
	KeyAuthEvent Key = "auth.event"

	// KeyTenantConfig caches the last resolved tenant configuration
	// under that tenant's own namespace.
	KeyTenantConfig Key = "tenant.config"

	// KeyLastActiveTenant points at the schema name of the most
	// recently active tenant. Lives under the default namespace so
	// the cached config can be found again on a cold start.
	KeyLastActiveTenant Key = "tenant.lastActive"

	// KeyViewPreference stores the user's preferred list rendering.
	KeyViewPreference Key = "ui.view"

	// KeyWorkOrderDraft holds an unsaved work-order form.
	KeyWorkOrderDraft Key = "workorders.draft"

	// KeyOnboardingProgress and KeyTourProgress survive a session
	// purge so a user does not replay onboarding after every logout.
	KeyOnboardingProgress Key = "onboarding.progress"
	KeyTourProgress       Key = "tour.progress"

	// KeyDemoCredentials is demo-only. It never persists outside demo
	// mode.
	KeyDemoCredentials Key = "demo.credentials"
)

// Scope selects the namespace segments of a physical key.
type Scope int

const (
	// ScopeTenant namespaces by tenant only.
	ScopeTenant Scope = iota
	// ScopeTenantUser namespaces by tenant and user.
	ScopeTenantUser
)

// Definition declares the fixed scope and schema of a logical key.
type Definition struct {
	Scope Scope
	// New returns a pointer to a zero value of the key's payload
	// type, used as the decode target during validation.
	New func() any
	// Validate checks a decoded payload. A non-nil error marks the
	// value invalid: reads self-heal, writes are dropped.
	Validate func(any) error
	// DemoOnly values are redirected to process memory whenever demo
	// mode is off, and any persisted copy is purged.
	DemoOnly bool
	// KeepOnPurge entries survive PurgeTenant (logout, forced clear).
	KeepOnPurge bool
}

// AuthEvent is the payload of KeyAuthEvent.
type AuthEvent struct {
	TS     int64  `json:"ts"`
	ID     string `json:"id"`
	Reason string `json:"reason,omitempty"`
}

// TenantRecord is the persisted form of a resolved tenant config.
type TenantRecord struct {
	ID         string   `json:"id"`
	SchemaName string   `json:"schema_name"`
	Slug       string   `json:"slug"`
	Name       string   `json:"name"`
	Role       string   `json:"role,omitempty"`
	Features   []string `json:"features"`
}

// LastActiveTenant is the payload of KeyLastActiveTenant.
type LastActiveTenant struct {
	SchemaName string `json:"schema_name"`
}

// ViewPreference is the payload of KeyViewPreference.
type ViewPreference struct {
	Mode string `json:"mode"`
}

// WorkOrderDraft is the payload of KeyWorkOrderDraft.
type WorkOrderDraft struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Priority    string `json:"priority,omitempty"`
}

// OnboardingProgress is the payload of KeyOnboardingProgress.
type OnboardingProgress struct {
	CompletedSteps []string `json:"completed_steps"`
	DismissedAt    int64    `json:"dismissed_at,omitempty"`
}

// TourProgress is the payload of KeyTourProgress.
type TourProgress struct {
	SeenTours []string `json:"seen_tours"`
}

// DemoCredentials is the payload of KeyDemoCredentials.
type DemoCredentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

var viewModes = map[string]bool{"list": true, "kanban": true, "calendar": true}

var definitions = map[Key]Definition{
	KeyAuthEvent: {
		Scope: ScopeTenant,
		New:   func() any { return &AuthEvent{} },
		Validate: func(v any) error {
			ev := v.(*AuthEvent)
			if ev.TS <= 0 {
				return fmt.Errorf("auth event timestamp must be positive")
			}
			if ev.ID == "" {
				return fmt.Errorf("auth event id is required")
			}
			return nil
		},
	},
	KeyTenantConfig: {
		Scope: ScopeTenant,
		New:   func() any { return &TenantRecord{} },
		Validate: func(v any) error {
			rec := v.(*TenantRecord)
			if strings.TrimSpace(rec.SchemaName) == "" {
				return fmt.Errorf("tenant schema name is required")
			}
			if rec.SchemaName != strings.ToLower(rec.SchemaName) {
				return fmt.Errorf("tenant schema name must be normalized")
			}
			return nil
		},
	},
	KeyLastActiveTenant: {
		Scope: ScopeTenant,
		New:   func() any { return &LastActiveTenant{} },
		Validate: func(v any) error {
			rec := v.(*LastActiveTenant)
			if strings.TrimSpace(rec.SchemaName) == "" {
				return fmt.Errorf("schema name is required")
			}
			return nil
		},
	},
	KeyViewPreference: {
		Scope: ScopeTenantUser,
		New:   func() any { return &ViewPreference{} },
		Validate: func(v any) error {
			pref := v.(*ViewPreference)
			if !viewModes[pref.Mode] {
				return fmt.Errorf("unknown view mode %q", pref.Mode)
			}
			return nil
		},
	},
	KeyWorkOrderDraft: {
		Scope: ScopeTenantUser,
		New:   func() any { return &WorkOrderDraft{} },
		Validate: func(v any) error {
			draft := v.(*WorkOrderDraft)
			if strings.TrimSpace(draft.Title) == "" {
				return fmt.Errorf("draft title is required")
			}
			return nil
		},
	},
	KeyOnboardingProgress: {
		Scope:       ScopeTenantUser,
		KeepOnPurge: true,
		New:         func() any { return &OnboardingProgress{} },
		Validate: func(v any) error {
			progress := v.(*OnboardingProgress)
			if progress.CompletedSteps == nil {
				return fmt.Errorf("completed steps must be present")
			}
			return nil
		},
	},
	KeyTourProgress: {
		Scope:       ScopeTenantUser,
		KeepOnPurge: true,
		New:         func() any { return &TourProgress{} },
		Validate: func(v any) error {
			progress := v.(*TourProgress)
			if progress.SeenTours == nil {
				return fmt.Errorf("seen tours must be present")
			}
			return nil
		},
	},
	KeyDemoCredentials: {
		Scope:    ScopeTenantUser,
		DemoOnly: true,
		New:      func() any { return &DemoCredentials{} },
		Validate: func(v any) error {
			creds := v.(*DemoCredentials)
			if creds.Email == "" || creds.Password == "" {
				return fmt.Errorf("demo credentials require email and password")
			}
			return nil
		},
	},
}

// DefinitionFor returns the declared definition of a logical key.
func DefinitionFor(key Key) (Definition, bool) {
	def, ok := definitions[key]
	return def, ok
}
