package shared

// User management permissions.
const (
	PermUserCreate         = "user.create"
	PermUserEdit           = "user.edit"
	PermUserDelete         = "user.delete"
	PermUserViewAll        = "user.view_all"
	PermUserViewOwn        = "user.view_own"
	PermUserChangePassword = "user.change_password"
)

// UserPermissions lists catalog entries in the user category.
func UserPermissions() []PermissionDef {
	return []PermissionDef{
		{Name: PermUserCreate, Description: "Create new users", Category: "user", Sensitive: true},
		{Name: PermUserEdit, Description: "Edit user profiles", Category: "user"},
		{Name: PermUserDelete, Description: "Delete users", Category: "user", Sensitive: true},
		{Name: PermUserViewAll, Description: "View all user profiles", Category: "user"},
		{Name: PermUserViewOwn, Description: "View own profile", Category: "user"},
		{Name: PermUserChangePassword, Description: "Change user passwords", Category: "user", Sensitive: true},
	}
}
