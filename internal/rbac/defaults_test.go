package rbac

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/questdeck/questdeck/internal/shared"
)

func TestSeedDefaultRolesCreatesBuiltins(t *testing.T) {
	_, repo, _, _ := newTestService(t)
	registry, err := DefaultRegistry()
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, SeedDefaultRoles(ctx, repo, registry))

	roles, err := repo.ListRoles(ctx)
	require.NoError(t, err)
	require.Len(t, roles, 5)

	system := map[string]bool{}
	for _, role := range roles {
		system[role.Name] = role.IsSystem
	}
	require.True(t, system["Super Administrator"])
	require.True(t, system["Administrator"])
	require.True(t, system["User"])
	require.False(t, system["Server Manager"])
	require.False(t, system["Moderator"])

	admin, err := repo.GetRole(ctx, "Administrator")
	require.NoError(t, err)
	require.Contains(t, admin.Permissions, shared.PermServerRCON)
	require.Contains(t, admin.Permissions, shared.PermSecurityViewAudit)
	require.NotContains(t, admin.Permissions, shared.PermAdminFullAccess)

	basic, err := repo.GetRole(ctx, "User")
	require.NoError(t, err)
	require.ElementsMatch(t,
		[]string{shared.PermUserViewOwn, shared.PermServerViewAssigned},
		basic.Permissions)
}

func TestSeedDefaultRolesKeepsExistingRoles(t *testing.T) {
	svc, repo, _, _ := newTestService(t)
	registry, err := DefaultRegistry()
	require.NoError(t, err)
	ctx := context.Background()

	// An operator already reshaped Moderator; the seed must not undo that.
	_, err = svc.CreateRole(ctx, RoleInput{
		Name:        "Moderator",
		Permissions: []string{shared.PermPlayerBan},
	})
	require.NoError(t, err)

	require.NoError(t, SeedDefaultRoles(ctx, repo, registry))
	require.NoError(t, SeedDefaultRoles(ctx, repo, registry), "seed reruns cleanly")

	roles, err := repo.ListRoles(ctx)
	require.NoError(t, err)
	require.Len(t, roles, 5)

	mod, err := repo.GetRole(ctx, "Moderator")
	require.NoError(t, err)
	require.Equal(t, []string{shared.PermPlayerBan}, mod.Permissions)
	require.False(t, mod.IsSystem)
}

func TestDeleteSystemRoleAlwaysRejected(t *testing.T) {
	svc, repo, _, _ := newTestService(t)
	registry, err := DefaultRegistry()
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, SeedDefaultRoles(ctx, repo, registry))

	err = svc.DeleteRole(ctx, "User", false)
	require.ErrorIs(t, err, ErrSystemRole)
	err = svc.DeleteRole(ctx, "User", true)
	require.ErrorIs(t, err, ErrSystemRole, "cascade does not bypass the guard")

	_, err = repo.GetRole(ctx, "User")
	require.NoError(t, err, "role survived both attempts")

	// Non-system builtins stay deletable.
	require.NoError(t, svc.DeleteRole(ctx, "Moderator", false))
}
