package rbac

import "context"

// Reader groups the read operations shared by the pooled repository and the
// in-transaction view. Mutating flows do their reads through the
// transaction so a cycle check and the write it protects see the same
// snapshot.
type Reader interface {
	GetRole(ctx context.Context, name string) (Role, error)
	GetRoleByID(ctx context.Context, id int64) (Role, error)
	ListRoles(ctx context.Context) ([]Role, error)
	RolesOf(ctx context.Context, userID int64) ([]Role, error)
	OverridesOf(ctx context.Context, userID int64) ([]Override, error)
	CountAssignments(ctx context.Context, roleID int64) (int, error)
	CountChildren(ctx context.Context, roleID int64) (int, error)
}

// RepositoryPort defines data access for roles, assignments and overrides.
type RepositoryPort interface {
	Reader
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository is the repository view inside a single transaction. Every
// mutation the service performs runs through one of these so concurrent
// resolution reads never observe a half-applied edit.
type TxRepository interface {
	Reader
	InsertRole(ctx context.Context, role Role) (Role, error)
	UpdateRole(ctx context.Context, role Role) error
	DeleteRole(ctx context.Context, roleID int64) error
	ReplaceRolePermissions(ctx context.Context, roleID int64, permissions []string) error
	DeleteAssignmentsForRole(ctx context.Context, roleID int64) error
	UpsertAssignment(ctx context.Context, a Assignment) error
	DeleteAssignment(ctx context.Context, userID, roleID int64) error
	UpsertOverride(ctx context.Context, o Override) error
	DeleteOverride(ctx context.Context, userID int64, permission string) error
}
