package rbac

import (
	"context"
	"fmt"
	"sort"
)

// effectiveRolePermissions unions a role's direct permissions with its
// parent chain. The walk is iterative with a visited guard: cycles are
// rejected at save time, but a cycle that slipped in through external data
// surfaces here as an error instead of an infinite loop.
func effectiveRolePermissions(ctx context.Context, r Reader, role Role) (map[string]struct{}, error) {
	perms := make(map[string]struct{})
	visited := make(map[int64]struct{})
	current := role
	for {
		if _, seen := visited[current.ID]; seen {
			return nil, fmt.Errorf("%w: role %s revisited", ErrCyclicInheritance, current.Name)
		}
		visited[current.ID] = struct{}{}
		for _, p := range current.Permissions {
			perms[p] = struct{}{}
		}
		if current.ParentID == nil {
			return perms, nil
		}
		parent, err := r.GetRoleByID(ctx, *current.ParentID)
		if err != nil {
			return nil, err
		}
		current = parent
	}
}

// checkAncestry walks upward from the proposed parent and rejects the edit
// when the role being saved already sits in that chain. Run inside the
// same transaction as the write it protects.
func checkAncestry(ctx context.Context, r Reader, roleID int64, parentID *int64) error {
	if parentID == nil {
		return nil
	}
	visited := make(map[int64]struct{})
	next := parentID
	for next != nil {
		id := *next
		if id == roleID {
			return ErrCyclicInheritance
		}
		if _, seen := visited[id]; seen {
			return ErrCyclicInheritance
		}
		visited[id] = struct{}{}
		ancestor, err := r.GetRoleByID(ctx, id)
		if err != nil {
			return err
		}
		next = ancestor.ParentID
	}
	return nil
}

func sortedSet(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
