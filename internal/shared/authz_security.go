package shared

// Security permissions.
const (
	PermSecurityViewAudit      = "security.view_audit"
	PermSecurityManageSessions = "security.manage_sessions"
	PermSecurityManageAPIKeys  = "security.manage_api_keys"
	PermSecurityTwoFactor      = "security.two_factor"
)

// SecurityPermissions lists catalog entries in the security category.
func SecurityPermissions() []PermissionDef {
	return []PermissionDef{
		{Name: PermSecurityViewAudit, Description: "View audit logs", Category: "security", Sensitive: true},
		{Name: PermSecurityManageSessions, Description: "Manage user sessions", Category: "security", Sensitive: true},
		{Name: PermSecurityManageAPIKeys, Description: "Manage API keys", Category: "security", Sensitive: true},
		{Name: PermSecurityTwoFactor, Description: "Manage two-factor authentication", Category: "security"},
	}
}
