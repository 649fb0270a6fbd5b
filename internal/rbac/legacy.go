package rbac

import "github.com/questdeck/questdeck/internal/shared"

// Legacy simple-role values retained on the user row for accounts not yet
// migrated to RBAC assignments.
const (
	LegacySystemAdmin = "system_admin"
	LegacyServerAdmin = "server_admin"
	LegacyServerMod   = "server_mod"
)

// LegacyPermissions maps a legacy simple role to its fixed permission set.
// Consulted only when a user has zero RBAC assignments and zero overrides;
// once RBAC data exists the simple-role field no longer influences
// decisions, so migration cannot be silently undone by stale legacy data.
func LegacyPermissions(simpleRole string) map[string]struct{} {
	switch simpleRole {
	case LegacySystemAdmin:
		return setOf(fullAdministrativeSet())
	case LegacyServerAdmin:
		return setOf(serverAdminSet())
	case LegacyServerMod:
		return setOf(serverModSet())
	default:
		return setOf(authenticatedSet())
	}
}

// fullAdministrativeSet is everything in the catalog, audit view included.
func fullAdministrativeSet() []string {
	var perms []string
	for _, def := range shared.Catalog() {
		perms = append(perms, def.Name)
	}
	return perms
}

// serverAdminSet covers server and user management without audit view or
// system administration.
func serverAdminSet() []string {
	return []string{
		shared.PermUserCreate,
		shared.PermUserEdit,
		shared.PermUserViewAll,
		shared.PermUserViewOwn,
		shared.PermUserChangePassword,
		shared.PermServerCreate,
		shared.PermServerEdit,
		shared.PermServerDelete,
		shared.PermServerStartStop,
		shared.PermServerViewAll,
		shared.PermServerViewAssigned,
		shared.PermServerRCON,
		shared.PermMonitorViewSystem,
		shared.PermMonitorViewMetrics,
		shared.PermPlayerView,
		shared.PermPlayerBan,
		shared.PermPlayerKick,
		shared.PermPlayerModerate,
	}
}

// serverModSet is the server-management subset plus player moderation.
func serverModSet() []string {
	return []string{
		shared.PermUserViewOwn,
		shared.PermServerViewAssigned,
		shared.PermServerStartStop,
		shared.PermMonitorViewSystem,
		shared.PermPlayerView,
		shared.PermPlayerKick,
		shared.PermPlayerModerate,
	}
}

// authenticatedSet is the minimal set every signed-in account holds.
func authenticatedSet() []string {
	return []string{
		shared.PermUserViewOwn,
		shared.PermServerViewAssigned,
	}
}

func setOf(perms []string) map[string]struct{} {
	set := make(map[string]struct{}, len(perms))
	for _, p := range perms {
		set[p] = struct{}{}
	}
	return set
}
