package rbac

import "time"

// Role is a named, inheritable bundle of permissions. A role holds its
// directly assigned permissions; effective permissions additionally include
// everything inherited through the parent chain.
type Role struct {
	ID          int64
	Name        string
	Description string
	ParentID    *int64
	// Parent is the parent role's name, empty for top-level roles. Carried
	// alongside ParentID so API clients can round-trip a role without a
	// second lookup.
	Parent      string
	Permissions []string
	IsSystem    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Assignment links a user to a role.
type Assignment struct {
	UserID     int64
	RoleID     int64
	AssignedBy int64
	AssignedAt time.Time
}

// Outcome is the tri-state result carried by a permission override. An
// absent override defers to the role-derived result.
type Outcome string

const (
	// OutcomeGrant forces the permission regardless of role membership.
	OutcomeGrant Outcome = "grant"
	// OutcomeDeny blocks the permission regardless of role membership.
	OutcomeDeny Outcome = "deny"
)

// Override is a per-user, per-permission exception. At most one override
// exists per (user, permission) pair; writing a second one replaces it.
type Override struct {
	UserID     int64
	Permission string
	Outcome    Outcome
	Reason     string
	GrantedBy  int64
	GrantedAt  time.Time
}

// Reason identifies the rule that decided an authorization check. It is
// recorded in the audit sink and never exposed to end users.
type Reason string

const (
	ReasonDenyOverride  Reason = "deny_override"
	ReasonGrantOverride Reason = "grant_override"
	ReasonRoleGrant     Reason = "role_grant"
	ReasonLegacyGrant   Reason = "legacy_grant"
	ReasonNoGrant       Reason = "no_grant"
)

// Decision is the outcome of a single authorization check.
type Decision struct {
	Allowed bool
	Reason  Reason
}
