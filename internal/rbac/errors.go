package rbac

import "errors"

var (
	// ErrUnknownPermission indicates a referenced permission identifier is
	// not in the registry. Always a caller or configuration bug, never a
	// user-triggered condition.
	ErrUnknownPermission = errors.New("rbac: unknown permission")
	// ErrRoleNotFound indicates the requested role does not exist.
	ErrRoleNotFound = errors.New("rbac: role not found")
	// ErrDuplicateRole indicates a role with the same name already exists.
	ErrDuplicateRole = errors.New("rbac: duplicate role")
	// ErrCyclicInheritance indicates the requested parent would make the
	// role graph non-acyclic.
	ErrCyclicInheritance = errors.New("rbac: cyclic inheritance")
	// ErrRoleInUse indicates a delete without cascade while assignments or
	// child roles still reference the role.
	ErrRoleInUse = errors.New("rbac: role in use")
	// ErrSystemRole indicates a delete of a built-in role. System roles are
	// seeded at install time and never deletable, cascade or not.
	ErrSystemRole = errors.New("rbac: system role")
)
