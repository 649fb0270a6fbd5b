package audit

import (
	"time"

	"github.com/google/uuid"
)

// Entry is one append-only audit record: an authorization decision of
// consequence, or an administrative mutation to roles, permissions,
// assignments or overrides. Entries are never updated or deleted by the
// application; retention is an operational concern.
type Entry struct {
	ID         uuid.UUID
	ActorID    int64
	TargetUser int64
	Action     string
	Entity     string
	EntityID   string
	Outcome    string
	Reason     string
	Meta       map[string]any
	At         time.Time
}

// Mutation actions recorded by the role and assignment stores.
const (
	ActionRoleCreated     = "rbac.role.created"
	ActionRoleUpdated     = "rbac.role.updated"
	ActionRoleDeleted     = "rbac.role.deleted"
	ActionRoleAssigned    = "rbac.role.assigned"
	ActionRoleRevoked     = "rbac.role.revoked"
	ActionOverrideSet     = "rbac.override.set"
	ActionOverrideCleared = "rbac.override.cleared"
	// ActionDecision records a sensitive authorization check.
	ActionDecision = "authz.decision"
)

// Filters narrows audit queries.
type Filters struct {
	From       time.Time
	To         time.Time
	Actor      int64
	TargetUser int64
	Action     string
	Entity     string
	Page       int
	PageSize   int
}

// PagingInfo carries pagination metadata for the reporting UI.
type PagingInfo struct {
	Page     int
	PageSize int
	HasNext  bool
	PrevPage int
	NextPage int
}

// Result bundles one page of records with paging metadata.
type Result struct {
	Rows   []Entry
	Paging PagingInfo
}
