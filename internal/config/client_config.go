package config

import (
	"time"
)

// ClientConfig describes how outbound requests resolve their base URL
// and tenancy for the active deployment.
type ClientConfig interface {
	// GetDevBaseURL returns the fixed base URL used by the DEV profile.
	// Keeping a single fixed origin in development keeps requests
	// proxy-friendly and same-origin for cookies.
	GetDevBaseURL() string
	// GetTenantURLPattern returns a fmt pattern with a single %s verb
	// that expands to a tenant-specific origin, e.g.
	// "https://%s.maintboard.app".
	GetTenantURLPattern() string
	// GetBaseURLOverride returns a fixed origin that, when set, wins
	// over the pattern and subdomain convention.
	GetBaseURLOverride() string
	// GetAPIDomain returns the apex domain used by the subdomain
	// convention (<slug>.<apex>).
	GetAPIDomain() string
	GetDefaultTenant() string
	GetRequestTimeout() time.Duration
}

type Client struct{}

var _ ClientConfig = Client{}

func (Client) GetDevBaseURL() string {
	return GetEnv("DEV_BASE_URL", "http://localhost:8080")
}

func (Client) GetTenantURLPattern() string {
	return GetEnv("TENANT_URL_PATTERN", "")
}

func (Client) GetBaseURLOverride() string {
	return GetEnv("BASE_URL_OVERRIDE", "")
}

func (Client) GetAPIDomain() string {
	return GetEnv("API_DOMAIN", "maintboard.app")
}

func (Client) GetDefaultTenant() string {
	return GetEnv("DEFAULT_TENANT", "default")
}

func (Client) GetRequestTimeout() time.Duration {
	timeout := GetEnv("REQUEST_TIMEOUT", "15s")
	d, err := time.ParseDuration(timeout)
	if err != nil {
		return 15 * time.Second
	}
	return d
}
