package rbac

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/questdeck/questdeck/internal/audit"
	"github.com/questdeck/questdeck/internal/shared"
)

// AuditRecorder receives mutation and decision records. Write failures are
// surfaced to monitoring but never roll back the mutation or flip an
// already-made decision.
type AuditRecorder interface {
	Record(ctx context.Context, entry audit.Entry) error
}

// CacheInvalidator drops cached effective-permission sets after mutations.
type CacheInvalidator interface {
	InvalidateUser(ctx context.Context, userID int64) error
	InvalidateAll(ctx context.Context) error
}

// AuditFailureCounter counts audit writes that could not be persisted.
type AuditFailureCounter interface {
	AuditWriteFailure()
}

// Service orchestrates role, assignment and override mutations. Every
// mutation validates eagerly against the registry, runs in one
// transaction, writes an audit record and invalidates affected cache
// entries.
type Service struct {
	repo     RepositoryPort
	registry *Registry
	sink     AuditRecorder
	cache    CacheInvalidator
	metrics  AuditFailureCounter
	logger   *slog.Logger
}

// NewService constructs a Service.
func NewService(repo RepositoryPort, registry *Registry, sink AuditRecorder, cache CacheInvalidator, metrics AuditFailureCounter, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, registry: registry, sink: sink, cache: cache, metrics: metrics, logger: logger}
}

// RoleInput carries the writable fields of a role. Parent is a role name;
// empty means no parent.
type RoleInput struct {
	Name        string
	Description string
	Permissions []string
	Parent      string
}

// CreateRole inserts a new role after validating its permissions against
// the registry and the proposed parent chain for cycles.
func (s *Service) CreateRole(ctx context.Context, input RoleInput) (Role, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return Role{}, fmt.Errorf("rbac: role name required")
	}
	if err := s.registry.Validate(input.Permissions...); err != nil {
		return Role{}, err
	}
	var created Role
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		parentID, err := s.resolveParent(ctx, tx, input.Parent)
		if err != nil {
			return err
		}
		// A new role cannot be its own ancestor, but the proposed chain must
		// itself be walkable.
		if err := checkAncestry(ctx, tx, 0, parentID); err != nil {
			return err
		}
		created, err = tx.InsertRole(ctx, Role{
			Name:        name,
			Description: strings.TrimSpace(input.Description),
			ParentID:    parentID,
			Parent:      strings.TrimSpace(input.Parent),
			Permissions: dedupe(input.Permissions),
		})
		return err
	})
	if err != nil {
		return Role{}, err
	}
	s.record(ctx, audit.Entry{
		Action:   audit.ActionRoleCreated,
		Entity:   "role",
		EntityID: created.Name,
		Outcome:  "applied",
		Meta:     map[string]any{"permissions": created.Permissions, "parent": input.Parent},
	})
	s.invalidateAll(ctx)
	return created, nil
}

// UpdateRole replaces a role's direct permissions and parent, with the
// same validation as CreateRole. The cycle check walks the proposed
// parent's ancestor chain inside the update transaction.
func (s *Service) UpdateRole(ctx context.Context, name string, input RoleInput) (Role, error) {
	if err := s.registry.Validate(input.Permissions...); err != nil {
		return Role{}, err
	}
	var updated Role
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		role, err := tx.GetRole(ctx, name)
		if err != nil {
			return err
		}
		parentID, err := s.resolveParent(ctx, tx, input.Parent)
		if err != nil {
			return err
		}
		if err := checkAncestry(ctx, tx, role.ID, parentID); err != nil {
			return err
		}
		role.Description = strings.TrimSpace(input.Description)
		role.ParentID = parentID
		role.Parent = strings.TrimSpace(input.Parent)
		role.Permissions = dedupe(input.Permissions)
		if err := tx.UpdateRole(ctx, role); err != nil {
			return err
		}
		updated = role
		return nil
	})
	if err != nil {
		return Role{}, err
	}
	s.record(ctx, audit.Entry{
		Action:   audit.ActionRoleUpdated,
		Entity:   "role",
		EntityID: updated.Name,
		Outcome:  "applied",
		Meta:     map[string]any{"permissions": updated.Permissions, "parent": input.Parent},
	})
	s.invalidateAll(ctx)
	return updated, nil
}

// DeleteRole removes a role. Without cascade the delete fails with
// ErrRoleInUse while assignments exist; with cascade the role and all its
// assignments go atomically. System roles and roles other roles inherit
// from are never deletable; re-parent the children first.
func (s *Service) DeleteRole(ctx context.Context, name string, cascade bool) error {
	var deleted Role
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		role, err := tx.GetRole(ctx, name)
		if err != nil {
			return err
		}
		if role.IsSystem {
			return fmt.Errorf("%w: %s cannot be deleted", ErrSystemRole, role.Name)
		}
		children, err := tx.CountChildren(ctx, role.ID)
		if err != nil {
			return err
		}
		if children > 0 {
			return fmt.Errorf("%w: %d child roles inherit from %s", ErrRoleInUse, children, role.Name)
		}
		assigned, err := tx.CountAssignments(ctx, role.ID)
		if err != nil {
			return err
		}
		if assigned > 0 {
			if !cascade {
				return fmt.Errorf("%w: %d assignments reference %s", ErrRoleInUse, assigned, role.Name)
			}
			if err := tx.DeleteAssignmentsForRole(ctx, role.ID); err != nil {
				return err
			}
		}
		deleted = role
		return tx.DeleteRole(ctx, role.ID)
	})
	if err != nil {
		return err
	}
	s.record(ctx, audit.Entry{
		Action:   audit.ActionRoleDeleted,
		Entity:   "role",
		EntityID: deleted.Name,
		Outcome:  "applied",
		Meta:     map[string]any{"cascade": cascade},
	})
	s.invalidateAll(ctx)
	return nil
}

// GetRole fetches a role by name.
func (s *Service) GetRole(ctx context.Context, name string) (Role, error) {
	return s.repo.GetRole(ctx, name)
}

// ListRoles returns all roles ordered by name.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.repo.ListRoles(ctx)
}

// RoleEffectivePermissions returns the role's direct permissions unioned
// with its parent chain, sorted.
func (s *Service) RoleEffectivePermissions(ctx context.Context, name string) ([]string, error) {
	role, err := s.repo.GetRole(ctx, name)
	if err != nil {
		return nil, err
	}
	set, err := effectiveRolePermissions(ctx, s.repo, role)
	if err != nil {
		return nil, err
	}
	return sortedSet(set), nil
}

// AssignRole grants a role to a user. Assigning an already-held role is a
// no-op.
func (s *Service) AssignRole(ctx context.Context, userID int64, roleName string) error {
	actor, _ := shared.ActorFromContext(ctx)
	var role Role
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		role, err = tx.GetRole(ctx, roleName)
		if err != nil {
			return err
		}
		return tx.UpsertAssignment(ctx, Assignment{UserID: userID, RoleID: role.ID, AssignedBy: actor})
	})
	if err != nil {
		return err
	}
	s.record(ctx, audit.Entry{
		Action:     audit.ActionRoleAssigned,
		Entity:     "assignment",
		EntityID:   role.Name + "/" + strconv.FormatInt(userID, 10),
		TargetUser: userID,
		Outcome:    "applied",
	})
	s.invalidateUser(ctx, userID)
	return nil
}

// RevokeRole removes a role from a user. Revoking an unheld role is a
// no-op.
func (s *Service) RevokeRole(ctx context.Context, userID int64, roleName string) error {
	var role Role
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		role, err = tx.GetRole(ctx, roleName)
		if err != nil {
			return err
		}
		return tx.DeleteAssignment(ctx, userID, role.ID)
	})
	if err != nil {
		return err
	}
	s.record(ctx, audit.Entry{
		Action:     audit.ActionRoleRevoked,
		Entity:     "assignment",
		EntityID:   role.Name + "/" + strconv.FormatInt(userID, 10),
		TargetUser: userID,
		Outcome:    "applied",
	})
	s.invalidateUser(ctx, userID)
	return nil
}

// RolesOf returns the roles directly assigned to the user.
func (s *Service) RolesOf(ctx context.Context, userID int64) ([]Role, error) {
	return s.repo.RolesOf(ctx, userID)
}

// SetOverride upserts a per-user permission exception. Writing a second
// override for the same (user, permission) pair replaces the first.
func (s *Service) SetOverride(ctx context.Context, userID int64, permission string, outcome Outcome, reason string) error {
	if err := s.registry.Validate(permission); err != nil {
		return err
	}
	if outcome != OutcomeGrant && outcome != OutcomeDeny {
		return fmt.Errorf("rbac: invalid override outcome %q", outcome)
	}
	actor, _ := shared.ActorFromContext(ctx)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpsertOverride(ctx, Override{
			UserID:     userID,
			Permission: permission,
			Outcome:    outcome,
			Reason:     strings.TrimSpace(reason),
			GrantedBy:  actor,
		})
	})
	if err != nil {
		return err
	}
	s.record(ctx, audit.Entry{
		Action:     audit.ActionOverrideSet,
		Entity:     "override",
		EntityID:   permission,
		TargetUser: userID,
		Outcome:    string(outcome),
		Reason:     reason,
	})
	s.invalidateUser(ctx, userID)
	return nil
}

// ClearOverride removes an override; absent overrides are a no-op.
func (s *Service) ClearOverride(ctx context.Context, userID int64, permission string) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.DeleteOverride(ctx, userID, permission)
	})
	if err != nil {
		return err
	}
	s.record(ctx, audit.Entry{
		Action:     audit.ActionOverrideCleared,
		Entity:     "override",
		EntityID:   permission,
		TargetUser: userID,
		Outcome:    "applied",
	})
	s.invalidateUser(ctx, userID)
	return nil
}

// OverridesOf returns the user's overrides keyed by permission.
func (s *Service) OverridesOf(ctx context.Context, userID int64) (map[string]Override, error) {
	overrides, err := s.repo.OverridesOf(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]Override, len(overrides))
	for _, o := range overrides {
		out[o.Permission] = o
	}
	return out, nil
}

func (s *Service) resolveParent(ctx context.Context, tx TxRepository, parent string) (*int64, error) {
	parent = strings.TrimSpace(parent)
	if parent == "" {
		return nil, nil
	}
	role, err := tx.GetRole(ctx, parent)
	if err != nil {
		return nil, err
	}
	id := role.ID
	return &id, nil
}

func (s *Service) record(ctx context.Context, entry audit.Entry) {
	if s.sink == nil {
		return
	}
	if entry.ActorID == 0 {
		if actor, ok := shared.ActorFromContext(ctx); ok {
			entry.ActorID = actor
		}
	}
	if err := s.sink.Record(ctx, entry); err != nil {
		if s.metrics != nil {
			s.metrics.AuditWriteFailure()
		}
		s.logger.Error("audit write failed",
			slog.String("action", entry.Action),
			slog.String("entity_id", entry.EntityID),
			slog.Any("error", err))
	}
}

func (s *Service) invalidateUser(ctx context.Context, userID int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateUser(ctx, userID); err != nil {
		s.logger.Warn("cache invalidate user", slog.Int64("user_id", userID), slog.Any("error", err))
	}
}

func (s *Service) invalidateAll(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateAll(ctx); err != nil {
		s.logger.Warn("cache invalidate all", slog.Any("error", err))
	}
}

func dedupe(perms []string) []string {
	seen := make(map[string]struct{}, len(perms))
	out := make([]string, 0, len(perms))
	for _, p := range perms {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}
