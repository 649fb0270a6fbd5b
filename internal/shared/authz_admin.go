package shared

// System administration permissions.
const (
	PermAdminFullAccess     = "admin.full_access"
	PermAdminUserManagement = "admin.user_management"
	PermAdminSystemConfig   = "admin.system_config"
	PermAdminViewLogs       = "admin.view_logs"
	PermAdminBackupRestore  = "admin.backup_restore"
)

// AdminPermissions lists catalog entries in the admin category.
func AdminPermissions() []PermissionDef {
	return []PermissionDef{
		{Name: PermAdminFullAccess, Description: "Full system administration access", Category: "admin", Sensitive: true},
		{Name: PermAdminUserManagement, Description: "Manage users and roles", Category: "admin", Sensitive: true},
		{Name: PermAdminSystemConfig, Description: "Modify system configuration", Category: "admin", Sensitive: true},
		{Name: PermAdminViewLogs, Description: "View system logs and audit trails", Category: "admin", Sensitive: true},
		{Name: PermAdminBackupRestore, Description: "Perform backups and restores", Category: "admin", Sensitive: true},
	}
}
