package rbac

import (
	"context"
	"errors"
	"fmt"

	"github.com/questdeck/questdeck/internal/shared"
)

// defaultRoles are the built-in roles every installation starts with.
// System roles cannot be deleted; the two manager tiers are ordinary roles
// operators may reshape or remove.
var defaultRoles = []Role{
	{
		Name:        "Super Administrator",
		Description: "Full system access",
		IsSystem:    true,
		Permissions: []string{shared.PermAdminFullAccess},
	},
	{
		Name:        "Administrator",
		Description: "System administration with limited access",
		IsSystem:    true,
		Permissions: []string{
			shared.PermAdminUserManagement, shared.PermAdminViewLogs, shared.PermAdminBackupRestore,
			shared.PermUserCreate, shared.PermUserEdit, shared.PermUserDelete,
			shared.PermUserViewAll, shared.PermUserChangePassword,
			shared.PermServerCreate, shared.PermServerEdit, shared.PermServerDelete,
			shared.PermServerStartStop, shared.PermServerViewAll, shared.PermServerRCON,
			shared.PermMonitorViewSystem, shared.PermMonitorViewMetrics, shared.PermMonitorViewLogs,
			shared.PermSecurityViewAudit, shared.PermSecurityManageSessions, shared.PermSecurityManageAPIKeys,
			shared.PermPlayerView, shared.PermPlayerBan, shared.PermPlayerKick, shared.PermPlayerModerate,
		},
	},
	{
		Name:        "Server Manager",
		Description: "Game server management",
		Permissions: []string{
			shared.PermUserViewOwn,
			shared.PermServerCreate, shared.PermServerEdit, shared.PermServerStartStop,
			shared.PermServerViewAssigned, shared.PermServerRCON,
			shared.PermMonitorViewSystem, shared.PermMonitorViewMetrics,
			shared.PermPlayerView, shared.PermPlayerKick, shared.PermPlayerModerate,
		},
	},
	{
		Name:        "Moderator",
		Description: "Player and chat moderation",
		Permissions: []string{
			shared.PermUserViewOwn,
			shared.PermServerViewAssigned,
			shared.PermMonitorViewSystem,
			shared.PermPlayerView, shared.PermPlayerKick, shared.PermPlayerModerate,
		},
	},
	{
		Name:        "User",
		Description: "Basic user access",
		IsSystem:    true,
		Permissions: []string{shared.PermUserViewOwn, shared.PermServerViewAssigned},
	},
}

// SeedDefaultRoles creates the built-in roles that are missing. Roles that
// already exist are left exactly as operators configured them, so the seed
// is safe to run on every deploy.
func SeedDefaultRoles(ctx context.Context, repo RepositoryPort, registry *Registry) error {
	for _, def := range defaultRoles {
		if err := registry.Validate(def.Permissions...); err != nil {
			return fmt.Errorf("rbac: seed %s: %w", def.Name, err)
		}
	}
	return repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for _, def := range defaultRoles {
			_, err := tx.GetRole(ctx, def.Name)
			if err == nil {
				continue
			}
			if !errors.Is(err, ErrRoleNotFound) {
				return err
			}
			if _, err := tx.InsertRole(ctx, def); err != nil {
				return err
			}
		}
		return nil
	})
}
