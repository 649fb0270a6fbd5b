package rbac

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/questdeck/questdeck/internal/audit"
	"github.com/questdeck/questdeck/internal/shared"
)

// IdentityPort supplies the legacy simple-role field for the fallback
// path. User identity itself is owned by the external auth component.
type IdentityPort interface {
	LegacyRole(ctx context.Context, userID int64) (string, error)
}

// UnionCache caches the role-derived permission union per user. Overrides
// are always read fresh so an explicit deny can never be masked by a stale
// cache entry.
type UnionCache interface {
	GetOrCompute(ctx context.Context, userID int64, compute func(context.Context) ([]string, error)) ([]string, error)
}

// DecisionObserver receives decision outcomes for metrics.
type DecisionObserver interface {
	ObserveDecision(allowed bool, reason string)
	AuditWriteFailure()
}

// Resolver is the resolution engine: it answers, for a (user, permission)
// pair, whether the action is permitted, with a fixed precedence order:
//
//  1. undefined permission is a caller error, not a denial
//  2. deny override wins over everything, inherited grants included
//  3. grant override wins without requiring any role
//  4. role-derived union via single-parent inheritance
//  5. legacy simple-role fallback when the user has no RBAC data at all
type Resolver struct {
	repo     RepositoryPort
	registry *Registry
	identity IdentityPort
	sink     AuditRecorder
	cache    UnionCache
	metrics  DecisionObserver
	logger   *slog.Logger
}

// NewResolver constructs a Resolver. cache, sink and metrics may be nil.
func NewResolver(repo RepositoryPort, registry *Registry, identity IdentityPort, sink AuditRecorder, cache UnionCache, metrics DecisionObserver, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{repo: repo, registry: registry, identity: identity, sink: sink, cache: cache, metrics: metrics, logger: logger}
}

// HasPermission reports whether the user may perform the permission, along
// with the deciding rule.
func (r *Resolver) HasPermission(ctx context.Context, userID int64, permission string) (Decision, error) {
	if !r.registry.Exists(permission) {
		return Decision{}, fmt.Errorf("%w: %s", ErrUnknownPermission, permission)
	}
	overrides, err := r.repo.OverridesOf(ctx, userID)
	if err != nil {
		return Decision{}, err
	}
	var decision Decision
	if o, ok := findOverride(overrides, permission); ok {
		if o.Outcome == OutcomeDeny {
			decision = Decision{Allowed: false, Reason: ReasonDenyOverride}
		} else {
			decision = Decision{Allowed: true, Reason: ReasonGrantOverride}
		}
		return r.finish(ctx, userID, permission, decision), nil
	}
	roles, err := r.repo.RolesOf(ctx, userID)
	if err != nil {
		return Decision{}, err
	}
	if len(roles) == 0 && len(overrides) == 0 {
		allowed, err := r.legacyAllows(ctx, userID, permission)
		if err != nil {
			return Decision{}, err
		}
		decision = Decision{Allowed: allowed, Reason: ReasonNoGrant}
		if allowed {
			decision.Reason = ReasonLegacyGrant
		}
		return r.finish(ctx, userID, permission, decision), nil
	}
	union, err := r.roleUnion(ctx, userID, roles)
	if err != nil {
		return Decision{}, err
	}
	decision = Decision{Allowed: false, Reason: ReasonNoGrant}
	if _, ok := union[permission]; ok {
		decision = Decision{Allowed: true, Reason: ReasonRoleGrant}
	}
	return r.finish(ctx, userID, permission, decision), nil
}

// EffectivePermissions computes the full permission set the user holds
// after inheritance and overrides, sorted. For every permission P in the
// registry, membership here matches HasPermission(user, P).
func (r *Resolver) EffectivePermissions(ctx context.Context, userID int64) ([]string, error) {
	overrides, err := r.repo.OverridesOf(ctx, userID)
	if err != nil {
		return nil, err
	}
	roles, err := r.repo.RolesOf(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(roles) == 0 && len(overrides) == 0 {
		legacyRole, err := r.legacyRole(ctx, userID)
		if err != nil {
			return nil, err
		}
		return sortedSet(LegacyPermissions(legacyRole)), nil
	}
	union, err := r.roleUnion(ctx, userID, roles)
	if err != nil {
		return nil, err
	}
	for _, o := range overrides {
		switch o.Outcome {
		case OutcomeDeny:
			delete(union, o.Permission)
		case OutcomeGrant:
			union[o.Permission] = struct{}{}
		}
	}
	return sortedSet(union), nil
}

func (r *Resolver) roleUnion(ctx context.Context, userID int64, roles []Role) (map[string]struct{}, error) {
	if r.cache != nil {
		perms, err := r.cache.GetOrCompute(ctx, userID, func(ctx context.Context) ([]string, error) {
			union, err := r.computeUnion(ctx, roles)
			if err != nil {
				return nil, err
			}
			return sortedSet(union), nil
		})
		if err == nil {
			return setOf(perms), nil
		}
		// A broken cache degrades to a direct computation, never to a wrong
		// answer.
		r.logger.Warn("role union cache", slog.Int64("user_id", userID), slog.Any("error", err))
	}
	return r.computeUnion(ctx, roles)
}

func (r *Resolver) computeUnion(ctx context.Context, roles []Role) (map[string]struct{}, error) {
	union := make(map[string]struct{})
	for _, role := range roles {
		perms, err := effectiveRolePermissions(ctx, r.repo, role)
		if err != nil {
			return nil, err
		}
		for p := range perms {
			union[p] = struct{}{}
		}
	}
	return union, nil
}

func (r *Resolver) legacyAllows(ctx context.Context, userID int64, permission string) (bool, error) {
	legacyRole, err := r.legacyRole(ctx, userID)
	if err != nil {
		return false, err
	}
	_, ok := LegacyPermissions(legacyRole)[permission]
	return ok, nil
}

func (r *Resolver) legacyRole(ctx context.Context, userID int64) (string, error) {
	if r.identity == nil {
		return "", nil
	}
	return r.identity.LegacyRole(ctx, userID)
}

// finish emits metrics and, for sensitive permissions, the audit record.
// The decision stands even when the audit write fails; the failure is
// logged and counted instead.
func (r *Resolver) finish(ctx context.Context, userID int64, permission string, decision Decision) Decision {
	if r.metrics != nil {
		r.metrics.ObserveDecision(decision.Allowed, string(decision.Reason))
	}
	if r.sink != nil && r.registry.Sensitive(permission) {
		outcome := "deny"
		if decision.Allowed {
			outcome = "allow"
		}
		actor, _ := shared.ActorFromContext(ctx)
		entry := audit.Entry{
			ActorID:    actor,
			TargetUser: userID,
			Action:     audit.ActionDecision,
			Entity:     "permission",
			EntityID:   permission,
			Outcome:    outcome,
			Reason:     string(decision.Reason),
			Meta:       map[string]any{"user_id": strconv.FormatInt(userID, 10)},
		}
		if err := r.sink.Record(ctx, entry); err != nil {
			if r.metrics != nil {
				r.metrics.AuditWriteFailure()
			}
			r.logger.Error("audit decision write failed",
				slog.String("permission", permission),
				slog.Int64("user_id", userID),
				slog.Any("error", err))
		}
	}
	return decision
}

func findOverride(overrides []Override, permission string) (Override, bool) {
	for _, o := range overrides {
		if o.Permission == permission {
			return o, true
		}
	}
	return Override{}, false
}
