package rbac

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/questdeck/questdeck/internal/audit"
	"github.com/questdeck/questdeck/internal/shared"
)

type memoryRepo struct {
	roles       map[int64]Role
	nextID      int64
	assignments map[int64]map[int64]Assignment
	overrides   map[int64]map[string]Override
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		roles:       make(map[int64]Role),
		assignments: make(map[int64]map[int64]Assignment),
		overrides:   make(map[int64]map[string]Override),
	}
}

func (r *memoryRepo) GetRole(ctx context.Context, name string) (Role, error) {
	for _, role := range r.roles {
		if role.Name == name {
			return role, nil
		}
	}
	return Role{}, fmt.Errorf("%w: %s", ErrRoleNotFound, name)
}

func (r *memoryRepo) GetRoleByID(ctx context.Context, id int64) (Role, error) {
	role, ok := r.roles[id]
	if !ok {
		return Role{}, fmt.Errorf("%w: id %d", ErrRoleNotFound, id)
	}
	return role, nil
}

func (r *memoryRepo) ListRoles(ctx context.Context) ([]Role, error) {
	out := make([]Role, 0, len(r.roles))
	for _, role := range r.roles {
		out = append(out, role)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *memoryRepo) RolesOf(ctx context.Context, userID int64) ([]Role, error) {
	out := make([]Role, 0)
	for roleID := range r.assignments[userID] {
		out = append(out, r.roles[roleID])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *memoryRepo) OverridesOf(ctx context.Context, userID int64) ([]Override, error) {
	out := make([]Override, 0)
	for _, o := range r.overrides[userID] {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Permission < out[j].Permission })
	return out, nil
}

func (r *memoryRepo) CountAssignments(ctx context.Context, roleID int64) (int, error) {
	count := 0
	for _, byRole := range r.assignments {
		if _, ok := byRole[roleID]; ok {
			count++
		}
	}
	return count, nil
}

func (r *memoryRepo) CountChildren(ctx context.Context, roleID int64) (int, error) {
	count := 0
	for _, role := range r.roles {
		if role.ParentID != nil && *role.ParentID == roleID {
			count++
		}
	}
	return count, nil
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryTx{repo: r})
}

func (tx *memoryTx) GetRole(ctx context.Context, name string) (Role, error) {
	return tx.repo.GetRole(ctx, name)
}

func (tx *memoryTx) GetRoleByID(ctx context.Context, id int64) (Role, error) {
	return tx.repo.GetRoleByID(ctx, id)
}

func (tx *memoryTx) ListRoles(ctx context.Context) ([]Role, error) {
	return tx.repo.ListRoles(ctx)
}

func (tx *memoryTx) RolesOf(ctx context.Context, userID int64) ([]Role, error) {
	return tx.repo.RolesOf(ctx, userID)
}

func (tx *memoryTx) OverridesOf(ctx context.Context, userID int64) ([]Override, error) {
	return tx.repo.OverridesOf(ctx, userID)
}

func (tx *memoryTx) CountAssignments(ctx context.Context, roleID int64) (int, error) {
	return tx.repo.CountAssignments(ctx, roleID)
}

func (tx *memoryTx) CountChildren(ctx context.Context, roleID int64) (int, error) {
	return tx.repo.CountChildren(ctx, roleID)
}

func (tx *memoryTx) InsertRole(ctx context.Context, role Role) (Role, error) {
	for _, existing := range tx.repo.roles {
		if existing.Name == role.Name {
			return Role{}, fmt.Errorf("%w: %s", ErrDuplicateRole, role.Name)
		}
	}
	tx.repo.nextID++
	role.ID = tx.repo.nextID
	role.CreatedAt = time.Now()
	role.UpdatedAt = role.CreatedAt
	tx.repo.roles[role.ID] = role
	return role, nil
}

func (tx *memoryTx) UpdateRole(ctx context.Context, role Role) error {
	if _, ok := tx.repo.roles[role.ID]; !ok {
		return fmt.Errorf("%w: id %d", ErrRoleNotFound, role.ID)
	}
	role.UpdatedAt = time.Now()
	tx.repo.roles[role.ID] = role
	return nil
}

func (tx *memoryTx) DeleteRole(ctx context.Context, roleID int64) error {
	delete(tx.repo.roles, roleID)
	return nil
}

func (tx *memoryTx) ReplaceRolePermissions(ctx context.Context, roleID int64, permissions []string) error {
	role, ok := tx.repo.roles[roleID]
	if !ok {
		return fmt.Errorf("%w: id %d", ErrRoleNotFound, roleID)
	}
	role.Permissions = permissions
	tx.repo.roles[roleID] = role
	return nil
}

func (tx *memoryTx) DeleteAssignmentsForRole(ctx context.Context, roleID int64) error {
	for userID := range tx.repo.assignments {
		delete(tx.repo.assignments[userID], roleID)
	}
	return nil
}

func (tx *memoryTx) UpsertAssignment(ctx context.Context, a Assignment) error {
	if tx.repo.assignments[a.UserID] == nil {
		tx.repo.assignments[a.UserID] = make(map[int64]Assignment)
	}
	if _, ok := tx.repo.assignments[a.UserID][a.RoleID]; ok {
		return nil
	}
	a.AssignedAt = time.Now()
	tx.repo.assignments[a.UserID][a.RoleID] = a
	return nil
}

func (tx *memoryTx) DeleteAssignment(ctx context.Context, userID, roleID int64) error {
	delete(tx.repo.assignments[userID], roleID)
	return nil
}

func (tx *memoryTx) UpsertOverride(ctx context.Context, o Override) error {
	if tx.repo.overrides[o.UserID] == nil {
		tx.repo.overrides[o.UserID] = make(map[string]Override)
	}
	o.GrantedAt = time.Now()
	tx.repo.overrides[o.UserID][o.Permission] = o
	return nil
}

func (tx *memoryTx) DeleteOverride(ctx context.Context, userID int64, permission string) error {
	delete(tx.repo.overrides[userID], permission)
	return nil
}

type captureSink struct {
	entries []audit.Entry
	fail    bool
}

func (s *captureSink) Record(ctx context.Context, entry audit.Entry) error {
	if s.fail {
		return errors.New("sink down")
	}
	s.entries = append(s.entries, entry)
	return nil
}

type captureMetrics struct {
	decisions []string
	failures  int
}

func (m *captureMetrics) ObserveDecision(allowed bool, reason string) {
	m.decisions = append(m.decisions, reason)
}

func (m *captureMetrics) AuditWriteFailure() {
	m.failures++
}

func newTestService(t *testing.T) (*Service, *memoryRepo, *captureSink, *captureMetrics) {
	t.Helper()
	registry, err := DefaultRegistry()
	require.NoError(t, err)
	repo := newMemoryRepo()
	sink := &captureSink{}
	metrics := &captureMetrics{}
	return NewService(repo, registry, sink, nil, metrics, nil), repo, sink, metrics
}

func TestCreateRoleRejectsUnknownPermission(t *testing.T) {
	svc, repo, _, _ := newTestService(t)

	_, err := svc.CreateRole(context.Background(), RoleInput{
		Name:        "operators",
		Permissions: []string{shared.PermServerEdit, "server.reboot_gracefully"},
	})
	require.ErrorIs(t, err, ErrUnknownPermission)
	require.Empty(t, repo.roles, "nothing persisted on validation failure")
}

func TestCreateRoleDuplicateName(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateRole(ctx, RoleInput{Name: "operators"})
	require.NoError(t, err)

	_, err = svc.CreateRole(ctx, RoleInput{Name: "operators"})
	require.ErrorIs(t, err, ErrDuplicateRole)
}

func TestCreateRoleDedupesPermissions(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	created, err := svc.CreateRole(context.Background(), RoleInput{
		Name:        "operators",
		Permissions: []string{shared.PermServerEdit, " " + shared.PermServerEdit + " ", shared.PermPlayerKick},
	})
	require.NoError(t, err)
	require.Equal(t, []string{shared.PermServerEdit, shared.PermPlayerKick}, created.Permissions)
}

func TestUpdateRoleRejectsSelfParent(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateRole(ctx, RoleInput{Name: "operators"})
	require.NoError(t, err)

	_, err = svc.UpdateRole(ctx, "operators", RoleInput{Name: "operators", Parent: "operators"})
	require.ErrorIs(t, err, ErrCyclicInheritance)
}

func TestUpdateRoleRejectsCycleThroughChain(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	// base <- mid <- top, then try to make base inherit from top.
	_, err := svc.CreateRole(ctx, RoleInput{Name: "base"})
	require.NoError(t, err)
	_, err = svc.CreateRole(ctx, RoleInput{Name: "mid", Parent: "base"})
	require.NoError(t, err)
	_, err = svc.CreateRole(ctx, RoleInput{Name: "top", Parent: "mid"})
	require.NoError(t, err)

	_, err = svc.UpdateRole(ctx, "base", RoleInput{Name: "base", Parent: "top"})
	require.ErrorIs(t, err, ErrCyclicInheritance)
}

func TestUpdateRoleRejectsDeepCycle(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	names := []string{"tier1", "tier2", "tier3", "tier4", "tier5"}
	parent := ""
	for _, name := range names {
		_, err := svc.CreateRole(ctx, RoleInput{Name: name, Parent: parent})
		require.NoError(t, err)
		parent = name
	}

	_, err := svc.UpdateRole(ctx, "tier1", RoleInput{Name: "tier1", Parent: "tier5"})
	require.ErrorIs(t, err, ErrCyclicInheritance)
}

func TestRoleEffectivePermissionsIncludeAncestors(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateRole(ctx, RoleInput{
		Name:        "viewer",
		Permissions: []string{shared.PermServerViewAll, shared.PermMonitorViewSystem},
	})
	require.NoError(t, err)
	_, err = svc.CreateRole(ctx, RoleInput{
		Name:        "operator",
		Parent:      "viewer",
		Permissions: []string{shared.PermServerStartStop, shared.PermServerViewAll},
	})
	require.NoError(t, err)

	perms, err := svc.RoleEffectivePermissions(ctx, "operator")
	require.NoError(t, err)
	require.Equal(t, []string{
		shared.PermMonitorViewSystem,
		shared.PermServerStartStop,
		shared.PermServerViewAll,
	}, perms)
}

func TestDeleteRoleWithAssignmentsRequiresCascade(t *testing.T) {
	svc, repo, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateRole(ctx, RoleInput{Name: "operators"})
	require.NoError(t, err)
	require.NoError(t, svc.AssignRole(ctx, 42, "operators"))

	err = svc.DeleteRole(ctx, "operators", false)
	require.ErrorIs(t, err, ErrRoleInUse)

	require.NoError(t, svc.DeleteRole(ctx, "operators", true))
	require.Empty(t, repo.roles)
	roles, err := svc.RolesOf(ctx, 42)
	require.NoError(t, err)
	require.Empty(t, roles)
}

func TestDeleteRoleWithChildrenAlwaysRejected(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateRole(ctx, RoleInput{Name: "base"})
	require.NoError(t, err)
	_, err = svc.CreateRole(ctx, RoleInput{Name: "derived", Parent: "base"})
	require.NoError(t, err)

	err = svc.DeleteRole(ctx, "base", true)
	require.ErrorIs(t, err, ErrRoleInUse)
}

func TestAssignRoleIdempotent(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateRole(ctx, RoleInput{Name: "operators"})
	require.NoError(t, err)

	require.NoError(t, svc.AssignRole(ctx, 7, "operators"))
	require.NoError(t, svc.AssignRole(ctx, 7, "operators"))

	roles, err := svc.RolesOf(ctx, 7)
	require.NoError(t, err)
	require.Len(t, roles, 1)
}

func TestRevokeUnheldRoleIsNoop(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateRole(ctx, RoleInput{Name: "operators"})
	require.NoError(t, err)

	require.NoError(t, svc.RevokeRole(ctx, 7, "operators"))
}

func TestSetOverrideReplacesExisting(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.SetOverride(ctx, 7, shared.PermServerRCON, OutcomeDeny, "incident"))
	require.NoError(t, svc.SetOverride(ctx, 7, shared.PermServerRCON, OutcomeGrant, "resolved"))

	overrides, err := svc.OverridesOf(ctx, 7)
	require.NoError(t, err)
	require.Len(t, overrides, 1)
	require.Equal(t, OutcomeGrant, overrides[shared.PermServerRCON].Outcome)
	require.Equal(t, "resolved", overrides[shared.PermServerRCON].Reason)
}

func TestSetOverrideRejectsInvalidOutcome(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	err := svc.SetOverride(context.Background(), 7, shared.PermServerRCON, Outcome("maybe"), "")
	require.Error(t, err)
}

func TestSetOverrideRejectsUnknownPermission(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	err := svc.SetOverride(context.Background(), 7, "server.teleport", OutcomeGrant, "")
	require.ErrorIs(t, err, ErrUnknownPermission)
}

func TestMutationsWriteAuditRecords(t *testing.T) {
	svc, _, sink, _ := newTestService(t)
	ctx := shared.ContextWithActor(context.Background(), 99)

	_, err := svc.CreateRole(ctx, RoleInput{Name: "operators"})
	require.NoError(t, err)
	require.NoError(t, svc.AssignRole(ctx, 7, "operators"))
	require.NoError(t, svc.SetOverride(ctx, 7, shared.PermServerRCON, OutcomeDeny, "incident"))

	require.Len(t, sink.entries, 3)
	require.Equal(t, audit.ActionRoleCreated, sink.entries[0].Action)
	require.Equal(t, audit.ActionRoleAssigned, sink.entries[1].Action)
	require.Equal(t, audit.ActionOverrideSet, sink.entries[2].Action)
	for _, entry := range sink.entries {
		require.Equal(t, int64(99), entry.ActorID)
	}
}

func TestAuditFailureDoesNotBlockMutation(t *testing.T) {
	svc, repo, sink, metrics := newTestService(t)
	sink.fail = true

	_, err := svc.CreateRole(context.Background(), RoleInput{Name: "operators"})
	require.NoError(t, err)
	require.Len(t, repo.roles, 1)
	require.Equal(t, 1, metrics.failures)
}
