package rbac

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

// querier abstracts pgxpool.Pool and pgx.Tx for the shared read queries.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
	reads
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool, reads: reads{q: pool}}
}

// WithTx runs fn inside a RepeatableRead transaction. The validation reads
// and the writes they guard share one snapshot.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return fmt.Errorf("rbac: begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	if err := fn(ctx, &txRepository{tx: tx, reads: reads{q: tx}}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("rbac: commit tx: %w", err)
	}
	return nil
}

type txRepository struct {
	tx pgx.Tx
	reads
}

func (t *txRepository) InsertRole(ctx context.Context, role Role) (Role, error) {
	row := t.tx.QueryRow(ctx, `
		INSERT INTO rbac_roles (name, description, parent_id, is_system)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at`,
		role.Name, role.Description, role.ParentID, role.IsSystem)
	if err := row.Scan(&role.ID, &role.CreatedAt, &role.UpdatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return Role{}, fmt.Errorf("%w: %s", ErrDuplicateRole, role.Name)
		}
		return Role{}, fmt.Errorf("rbac: insert role: %w", err)
	}
	if err := t.ReplaceRolePermissions(ctx, role.ID, role.Permissions); err != nil {
		return Role{}, err
	}
	return role, nil
}

func (t *txRepository) UpdateRole(ctx context.Context, role Role) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE rbac_roles SET description = $2, parent_id = $3, updated_at = NOW()
		WHERE id = $1`,
		role.ID, role.Description, role.ParentID)
	if err != nil {
		return fmt.Errorf("rbac: update role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRoleNotFound
	}
	return t.ReplaceRolePermissions(ctx, role.ID, role.Permissions)
}

func (t *txRepository) DeleteRole(ctx context.Context, roleID int64) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM rbac_roles WHERE id = $1`, roleID)
	if err != nil {
		return fmt.Errorf("rbac: delete role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRoleNotFound
	}
	return nil
}

func (t *txRepository) ReplaceRolePermissions(ctx context.Context, roleID int64, permissions []string) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM rbac_role_permissions WHERE role_id = $1`, roleID); err != nil {
		return fmt.Errorf("rbac: clear role permissions: %w", err)
	}
	for _, perm := range permissions {
		if _, err := t.tx.Exec(ctx, `
			INSERT INTO rbac_role_permissions (role_id, permission) VALUES ($1, $2)`,
			roleID, perm); err != nil {
			return fmt.Errorf("rbac: attach permission: %w", err)
		}
	}
	return nil
}

func (t *txRepository) DeleteAssignmentsForRole(ctx context.Context, roleID int64) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM rbac_user_roles WHERE role_id = $1`, roleID); err != nil {
		return fmt.Errorf("rbac: cascade assignments: %w", err)
	}
	return nil
}

func (t *txRepository) UpsertAssignment(ctx context.Context, a Assignment) error {
	// Assigning an already-held role is a no-op, not an error.
	if _, err := t.tx.Exec(ctx, `
		INSERT INTO rbac_user_roles (user_id, role_id, assigned_by)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, role_id) DO NOTHING`,
		a.UserID, a.RoleID, a.AssignedBy); err != nil {
		return fmt.Errorf("rbac: assign role: %w", err)
	}
	return nil
}

func (t *txRepository) DeleteAssignment(ctx context.Context, userID, roleID int64) error {
	if _, err := t.tx.Exec(ctx, `
		DELETE FROM rbac_user_roles WHERE user_id = $1 AND role_id = $2`,
		userID, roleID); err != nil {
		return fmt.Errorf("rbac: revoke role: %w", err)
	}
	return nil
}

func (t *txRepository) UpsertOverride(ctx context.Context, o Override) error {
	// Second write for the same (user, permission) replaces the prior row.
	if _, err := t.tx.Exec(ctx, `
		INSERT INTO rbac_overrides (user_id, permission, outcome, reason, granted_by, granted_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (user_id, permission)
		DO UPDATE SET outcome = EXCLUDED.outcome, reason = EXCLUDED.reason,
			granted_by = EXCLUDED.granted_by, granted_at = NOW()`,
		o.UserID, o.Permission, string(o.Outcome), o.Reason, o.GrantedBy); err != nil {
		return fmt.Errorf("rbac: set override: %w", err)
	}
	return nil
}

func (t *txRepository) DeleteOverride(ctx context.Context, userID int64, permission string) error {
	if _, err := t.tx.Exec(ctx, `
		DELETE FROM rbac_overrides WHERE user_id = $1 AND permission = $2`,
		userID, permission); err != nil {
		return fmt.Errorf("rbac: clear override: %w", err)
	}
	return nil
}

// reads implements Reader over either the pool or a transaction.
type reads struct {
	q querier
}

const roleColumns = `r.id, r.name, r.description, r.parent_id, p.name, r.is_system, r.created_at, r.updated_at`

const roleFrom = ` FROM rbac_roles r LEFT JOIN rbac_roles p ON p.id = r.parent_id`

func (s reads) GetRole(ctx context.Context, name string) (Role, error) {
	return s.fetchRole(ctx, `SELECT `+roleColumns+roleFrom+` WHERE r.name = $1`, name)
}

func (s reads) GetRoleByID(ctx context.Context, id int64) (Role, error) {
	return s.fetchRole(ctx, `SELECT `+roleColumns+roleFrom+` WHERE r.id = $1`, id)
}

func (s reads) fetchRole(ctx context.Context, query string, arg any) (Role, error) {
	var role Role
	var parent *string
	row := s.q.QueryRow(ctx, query, arg)
	if err := row.Scan(&role.ID, &role.Name, &role.Description, &role.ParentID, &parent, &role.IsSystem,
		&role.CreatedAt, &role.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, ErrRoleNotFound
		}
		return Role{}, fmt.Errorf("rbac: get role: %w", err)
	}
	if parent != nil {
		role.Parent = *parent
	}
	perms, err := s.rolePermissions(ctx, role.ID)
	if err != nil {
		return Role{}, err
	}
	role.Permissions = perms
	return role, nil
}

func (s reads) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := s.q.Query(ctx, `SELECT `+roleColumns+roleFrom+` ORDER BY r.name`)
	if err != nil {
		return nil, fmt.Errorf("rbac: list roles: %w", err)
	}
	defer rows.Close()
	roles, err := scanRoles(rows)
	if err != nil {
		return nil, err
	}
	for i := range roles {
		perms, err := s.rolePermissions(ctx, roles[i].ID)
		if err != nil {
			return nil, err
		}
		roles[i].Permissions = perms
	}
	return roles, nil
}

func (s reads) RolesOf(ctx context.Context, userID int64) ([]Role, error) {
	rows, err := s.q.Query(ctx, `
		SELECT `+roleColumns+roleFrom+`
		JOIN rbac_user_roles ur ON ur.role_id = r.id
		WHERE ur.user_id = $1 ORDER BY r.name`, userID)
	if err != nil {
		return nil, fmt.Errorf("rbac: roles of user: %w", err)
	}
	defer rows.Close()
	roles, err := scanRoles(rows)
	if err != nil {
		return nil, err
	}
	for i := range roles {
		perms, err := s.rolePermissions(ctx, roles[i].ID)
		if err != nil {
			return nil, err
		}
		roles[i].Permissions = perms
	}
	return roles, nil
}

func (s reads) OverridesOf(ctx context.Context, userID int64) ([]Override, error) {
	rows, err := s.q.Query(ctx, `
		SELECT user_id, permission, outcome, reason, granted_by, granted_at
		FROM rbac_overrides WHERE user_id = $1 ORDER BY permission`, userID)
	if err != nil {
		return nil, fmt.Errorf("rbac: overrides of user: %w", err)
	}
	defer rows.Close()
	var overrides []Override
	for rows.Next() {
		var o Override
		var outcome string
		if err := rows.Scan(&o.UserID, &o.Permission, &outcome, &o.Reason, &o.GrantedBy, &o.GrantedAt); err != nil {
			return nil, fmt.Errorf("rbac: scan override: %w", err)
		}
		o.Outcome = Outcome(outcome)
		overrides = append(overrides, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return overrides, nil
}

func (s reads) CountAssignments(ctx context.Context, roleID int64) (int, error) {
	var count int
	row := s.q.QueryRow(ctx, `SELECT COUNT(*) FROM rbac_user_roles WHERE role_id = $1`, roleID)
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("rbac: count assignments: %w", err)
	}
	return count, nil
}

func (s reads) CountChildren(ctx context.Context, roleID int64) (int, error) {
	var count int
	row := s.q.QueryRow(ctx, `SELECT COUNT(*) FROM rbac_roles WHERE parent_id = $1`, roleID)
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("rbac: count children: %w", err)
	}
	return count, nil
}

func (s reads) rolePermissions(ctx context.Context, roleID int64) ([]string, error) {
	rows, err := s.q.Query(ctx, `
		SELECT permission FROM rbac_role_permissions WHERE role_id = $1 ORDER BY permission`, roleID)
	if err != nil {
		return nil, fmt.Errorf("rbac: role permissions: %w", err)
	}
	defer rows.Close()
	var perms []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("rbac: scan permission: %w", err)
		}
		perms = append(perms, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return perms, nil
}

func scanRoles(rows pgx.Rows) ([]Role, error) {
	var roles []Role
	for rows.Next() {
		var role Role
		var parent *string
		if err := rows.Scan(&role.ID, &role.Name, &role.Description, &role.ParentID, &parent, &role.IsSystem,
			&role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, fmt.Errorf("rbac: scan role: %w", err)
		}
		if parent != nil {
			role.Parent = *parent
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return roles, nil
}
