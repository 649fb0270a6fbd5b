package shared

// PermissionDef describes one entry in the static permission catalog.
// Sensitive entries have their authorization outcomes written to the audit
// sink; routine checks are not audited individually.
type PermissionDef struct {
	Name        string
	Description string
	Category    string
	Sensitive   bool
}

// Catalog returns the full permission catalog. The catalog is seeded at
// build time; adding a permission is a deployment-time change.
func Catalog() []PermissionDef {
	var defs []PermissionDef
	defs = append(defs, AdminPermissions()...)
	defs = append(defs, UserPermissions()...)
	defs = append(defs, ServerPermissions()...)
	defs = append(defs, MonitorPermissions()...)
	defs = append(defs, SecurityPermissions()...)
	defs = append(defs, PlayerPermissions()...)
	return defs
}
