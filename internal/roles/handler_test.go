package roles

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/questdeck/questdeck/internal/rbac"
	"github.com/questdeck/questdeck/internal/shared"
)

// fakeRepo backs the rbac service in-memory. It doubles as its own
// transaction view; handler tests do not exercise rollback behavior.
type fakeRepo struct {
	roles       map[int64]rbac.Role
	nextID      int64
	assignments map[int64]map[int64]struct{}
	overrides   map[int64]map[string]rbac.Override
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		roles:       make(map[int64]rbac.Role),
		assignments: make(map[int64]map[int64]struct{}),
		overrides:   make(map[int64]map[string]rbac.Override),
	}
}

func (f *fakeRepo) GetRole(ctx context.Context, name string) (rbac.Role, error) {
	for _, role := range f.roles {
		if role.Name == name {
			return role, nil
		}
	}
	return rbac.Role{}, fmt.Errorf("%w: %s", rbac.ErrRoleNotFound, name)
}

func (f *fakeRepo) GetRoleByID(ctx context.Context, id int64) (rbac.Role, error) {
	role, ok := f.roles[id]
	if !ok {
		return rbac.Role{}, fmt.Errorf("%w: id %d", rbac.ErrRoleNotFound, id)
	}
	return role, nil
}

func (f *fakeRepo) ListRoles(ctx context.Context) ([]rbac.Role, error) {
	out := make([]rbac.Role, 0, len(f.roles))
	for _, role := range f.roles {
		out = append(out, role)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *fakeRepo) RolesOf(ctx context.Context, userID int64) ([]rbac.Role, error) {
	out := make([]rbac.Role, 0)
	for roleID := range f.assignments[userID] {
		out = append(out, f.roles[roleID])
	}
	return out, nil
}

func (f *fakeRepo) OverridesOf(ctx context.Context, userID int64) ([]rbac.Override, error) {
	out := make([]rbac.Override, 0)
	for _, o := range f.overrides[userID] {
		out = append(out, o)
	}
	return out, nil
}

func (f *fakeRepo) CountAssignments(ctx context.Context, roleID int64) (int, error) {
	count := 0
	for _, byRole := range f.assignments {
		if _, ok := byRole[roleID]; ok {
			count++
		}
	}
	return count, nil
}

func (f *fakeRepo) CountChildren(ctx context.Context, roleID int64) (int, error) {
	count := 0
	for _, role := range f.roles {
		if role.ParentID != nil && *role.ParentID == roleID {
			count++
		}
	}
	return count, nil
}

func (f *fakeRepo) WithTx(ctx context.Context, fn func(context.Context, rbac.TxRepository) error) error {
	return fn(ctx, f)
}

func (f *fakeRepo) InsertRole(ctx context.Context, role rbac.Role) (rbac.Role, error) {
	for _, existing := range f.roles {
		if existing.Name == role.Name {
			return rbac.Role{}, fmt.Errorf("%w: %s", rbac.ErrDuplicateRole, role.Name)
		}
	}
	f.nextID++
	role.ID = f.nextID
	f.roles[role.ID] = role
	return role, nil
}

func (f *fakeRepo) UpdateRole(ctx context.Context, role rbac.Role) error {
	f.roles[role.ID] = role
	return nil
}

func (f *fakeRepo) DeleteRole(ctx context.Context, roleID int64) error {
	delete(f.roles, roleID)
	return nil
}

func (f *fakeRepo) ReplaceRolePermissions(ctx context.Context, roleID int64, permissions []string) error {
	role := f.roles[roleID]
	role.Permissions = permissions
	f.roles[roleID] = role
	return nil
}

func (f *fakeRepo) DeleteAssignmentsForRole(ctx context.Context, roleID int64) error {
	for userID := range f.assignments {
		delete(f.assignments[userID], roleID)
	}
	return nil
}

func (f *fakeRepo) UpsertAssignment(ctx context.Context, a rbac.Assignment) error {
	if f.assignments[a.UserID] == nil {
		f.assignments[a.UserID] = make(map[int64]struct{})
	}
	f.assignments[a.UserID][a.RoleID] = struct{}{}
	return nil
}

func (f *fakeRepo) DeleteAssignment(ctx context.Context, userID, roleID int64) error {
	delete(f.assignments[userID], roleID)
	return nil
}

func (f *fakeRepo) UpsertOverride(ctx context.Context, o rbac.Override) error {
	if f.overrides[o.UserID] == nil {
		f.overrides[o.UserID] = make(map[string]rbac.Override)
	}
	f.overrides[o.UserID][o.Permission] = o
	return nil
}

func (f *fakeRepo) DeleteOverride(ctx context.Context, userID int64, permission string) error {
	delete(f.overrides[userID], permission)
	return nil
}

const adminUser int64 = 1

func newTestRouter(t *testing.T) (http.Handler, *rbac.Service, *fakeRepo) {
	t.Helper()
	registry, err := rbac.DefaultRegistry()
	require.NoError(t, err)
	repo := newFakeRepo()
	svc := rbac.NewService(repo, registry, nil, nil, nil, nil)
	resolver := rbac.NewResolver(repo, registry, nil, nil, nil, nil, nil)
	mw := rbac.Middleware{Resolver: resolver}

	require.NoError(t, svc.SetOverride(context.Background(), adminUser, shared.PermAdminUserManagement, rbac.OutcomeGrant, "test admin"))

	handler := NewHandler(nil, svc, mw)
	r := chi.NewRouter()
	r.Route("/roles", handler.MountRoutes)
	return r, svc, repo
}

func do(t *testing.T, router http.Handler, method, target, body string, actor int64) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if actor != 0 {
		req = req.WithContext(shared.ContextWithActor(req.Context(), actor))
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestCreateRole(t *testing.T) {
	router, _, _ := newTestRouter(t)

	rec := do(t, router, http.MethodPost, "/roles",
		`{"name":"operators","description":"Server operators","permissions":["server.start_stop","server.view_all"]}`, adminUser)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Contains(t, rec.Body.String(), `"operators"`)
}

func TestCreateRoleUnknownPermission(t *testing.T) {
	router, _, _ := newTestRouter(t)

	rec := do(t, router, http.MethodPost, "/roles",
		`{"name":"operators","permissions":["server.reboot"]}`, adminUser)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateRoleDuplicate(t *testing.T) {
	router, _, _ := newTestRouter(t)

	body := `{"name":"operators","permissions":["server.view_all"]}`
	rec := do(t, router, http.MethodPost, "/roles", body, adminUser)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, router, http.MethodPost, "/roles", body, adminUser)
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestCreateRoleValidation(t *testing.T) {
	router, _, _ := newTestRouter(t)

	rec := do(t, router, http.MethodPost, "/roles", `{"description":"missing name"}`, adminUser)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetRoleNotFound(t *testing.T) {
	router, _, _ := newTestRouter(t)

	rec := do(t, router, http.MethodGet, "/roles/ghost", "", adminUser)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateRoleCycleRejected(t *testing.T) {
	router, svc, _ := newTestRouter(t)
	ctx := context.Background()

	_, err := svc.CreateRole(ctx, rbac.RoleInput{Name: "base"})
	require.NoError(t, err)
	_, err = svc.CreateRole(ctx, rbac.RoleInput{Name: "derived", Parent: "base"})
	require.NoError(t, err)

	rec := do(t, router, http.MethodPut, "/roles/base", `{"name":"base","parent":"derived"}`, adminUser)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestDeleteRoleInUse(t *testing.T) {
	router, svc, _ := newTestRouter(t)
	ctx := context.Background()

	_, err := svc.CreateRole(ctx, rbac.RoleInput{Name: "operators"})
	require.NoError(t, err)
	require.NoError(t, svc.AssignRole(ctx, 42, "operators"))

	rec := do(t, router, http.MethodDelete, "/roles/operators", "", adminUser)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, router, http.MethodDelete, "/roles/operators?cascade=true", "", adminUser)
	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestDeleteSystemRoleConflict(t *testing.T) {
	router, _, repo := newTestRouter(t)

	_, err := repo.InsertRole(context.Background(), rbac.Role{Name: "User", IsSystem: true})
	require.NoError(t, err)

	rec := do(t, router, http.MethodDelete, "/roles/User?cascade=true", "", adminUser)
	require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())

	rec = do(t, router, http.MethodGet, "/roles/User", "", adminUser)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRoleViewRoundTripsParentByName(t *testing.T) {
	router, svc, _ := newTestRouter(t)
	ctx := context.Background()

	_, err := svc.CreateRole(ctx, rbac.RoleInput{Name: "base", Permissions: []string{shared.PermServerViewAll}})
	require.NoError(t, err)
	_, err = svc.CreateRole(ctx, rbac.RoleInput{Name: "derived", Parent: "base"})
	require.NoError(t, err)

	rec := do(t, router, http.MethodGet, "/roles/derived", "", adminUser)
	require.Equal(t, http.StatusOK, rec.Code)

	var view struct {
		Name        string   `json:"name"`
		Description string   `json:"description"`
		Permissions []string `json:"permissions"`
		Parent      string   `json:"parent"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	require.Equal(t, "base", view.Parent)

	// The GET body is a valid PUT body; no extra lookup needed.
	body, err := json.Marshal(view)
	require.NoError(t, err)
	rec = do(t, router, http.MethodPut, "/roles/derived", string(body), adminUser)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Contains(t, rec.Body.String(), `"parent":"base"`)
}

func TestAssignAndRevoke(t *testing.T) {
	router, svc, _ := newTestRouter(t)

	_, err := svc.CreateRole(context.Background(), rbac.RoleInput{Name: "operators"})
	require.NoError(t, err)

	rec := do(t, router, http.MethodPost, "/roles/operators/assignments", `{"user_id":42}`, adminUser)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, router, http.MethodDelete, "/roles/operators/assignments/42", "", adminUser)
	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestForbiddenWithoutPermission(t *testing.T) {
	router, _, _ := newTestRouter(t)

	rec := do(t, router, http.MethodGet, "/roles", "", 2)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, router, http.MethodGet, "/roles", "", 0)
	require.Equal(t, http.StatusForbidden, rec.Code)
}
