package shared

// Game server management permissions.
const (
	PermServerCreate       = "server.create"
	PermServerEdit         = "server.edit"
	PermServerDelete       = "server.delete"
	PermServerStartStop    = "server.start_stop"
	PermServerViewAll      = "server.view_all"
	PermServerViewAssigned = "server.view_assigned"
	PermServerRCON         = "server.rcon"
)

// ServerPermissions lists catalog entries in the server category.
func ServerPermissions() []PermissionDef {
	return []PermissionDef{
		{Name: PermServerCreate, Description: "Create new game servers", Category: "server"},
		{Name: PermServerEdit, Description: "Edit server configurations", Category: "server"},
		{Name: PermServerDelete, Description: "Delete game servers", Category: "server", Sensitive: true},
		{Name: PermServerStartStop, Description: "Start/stop game servers", Category: "server"},
		{Name: PermServerViewAll, Description: "View all servers", Category: "server"},
		{Name: PermServerViewAssigned, Description: "View assigned servers", Category: "server"},
		{Name: PermServerRCON, Description: "Execute RCON commands", Category: "server", Sensitive: true},
	}
}
