package tenants

import (
	"regexp"
	"strings"
)

// Tenant represents one customer organization. Every piece of
// persisted and session state is namespaced by its SchemaName, so at
// most one tenant is active in a client at a time.
type Tenant struct {
	ID         string   `json:"id"`
	SchemaName string   `json:"schema_name"` // normalized storage namespace
	Slug       string   `json:"slug"`        // subdomain label
	Name       string   `json:"name"`
	Role       string   `json:"role,omitempty"` // caller's role within the tenant
	Features   []string `json:"features"`
}

var separators = regexp.MustCompile(`[\s\-./]+`)

// NormalizeSchemaName lowercases a tenant identifier and collapses
// separator runs to single underscores. Namespaces and mismatch
// comparisons always use the normalized form.
func NormalizeSchemaName(name string) string {
	normalized := strings.ToLower(strings.TrimSpace(name))
	normalized = separators.ReplaceAllString(normalized, "_")
	return strings.Trim(normalized, "_")
}

// HasFeature reports whether a feature flag is enabled for the tenant.
func (t Tenant) HasFeature(feature string) bool {
	for _, f := range t.Features {
		if f == feature {
			return true
		}
	}
	return false
}

// SlugFromHost extracts the tenant slug from a host under the apex
// domain. Hosts outside the apex (localhost, IPs, the apex itself)
// carry no tenant.
func SlugFromHost(host, apexDomain string) string {
	host = strings.ToLower(host)
	if i := strings.IndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}
	suffix := "." + strings.ToLower(apexDomain)
	if !strings.HasSuffix(host, suffix) {
		return ""
	}
	sub := strings.TrimSuffix(host, suffix)
	if sub == "" || strings.Contains(sub, ".") {
		return ""
	}
	if sub == "www" || sub == "app" {
		return ""
	}
	return sub
}
