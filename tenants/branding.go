package tenants

// Brand is the per-tenant presentation identity.
type Brand struct {
	Name         string
	SupportEmail string
	AccentColor  string
}

var defaultBrand = Brand{
	Name:         "MaintBoard",
	SupportEmail: "support@maintboard.app",
	AccentColor:  "#2563eb",
}

// brands maps known tenant slugs to their branding. Unknown slugs get
// the default brand.
var brands = map[string]Brand{
	"acme": {
		Name:         "Acme Facilities",
		SupportEmail: "maintenance@acme.example",
		AccentColor:  "#dc2626",
	},
	"northwind": {
		Name:         "Northwind Plant Services",
		SupportEmail: "helpdesk@northwind.example",
		AccentColor:  "#0f766e",
	},
	"demo": {
		Name:         "MaintBoard Demo",
		SupportEmail: "demo@maintboard.app",
		AccentColor:  "#7c3aed",
	},
}

// BrandForSlug resolves branding for a tenant slug, falling back to
// the default brand for unknown slugs.
func BrandForSlug(slug string) Brand {
	if brand, ok := brands[slug]; ok {
		return brand
	}
	return defaultBrand
}
