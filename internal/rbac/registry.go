package rbac

import (
	"fmt"
	"sort"

	"github.com/questdeck/questdeck/internal/shared"
)

// Registry is the closed catalog of permission identifiers. It is built
// once at startup and read-only afterwards, so unsynchronized concurrent
// reads are safe. Tests construct fixture registries via NewRegistry.
type Registry struct {
	ordered []shared.PermissionDef
	byName  map[string]shared.PermissionDef
	groups  map[string][]string
}

// NewRegistry builds a registry from catalog entries. Duplicate identifiers
// are a configuration error.
func NewRegistry(defs []shared.PermissionDef) (*Registry, error) {
	r := &Registry{
		ordered: make([]shared.PermissionDef, 0, len(defs)),
		byName:  make(map[string]shared.PermissionDef, len(defs)),
		groups:  make(map[string][]string),
	}
	for _, def := range defs {
		if def.Name == "" {
			return nil, fmt.Errorf("rbac: registry entry with empty name")
		}
		if _, ok := r.byName[def.Name]; ok {
			return nil, fmt.Errorf("rbac: duplicate permission %q", def.Name)
		}
		r.byName[def.Name] = def
		r.ordered = append(r.ordered, def)
		if def.Category != "" {
			r.groups[def.Category] = append(r.groups[def.Category], def.Name)
		}
	}
	sort.Slice(r.ordered, func(i, j int) bool { return r.ordered[i].Name < r.ordered[j].Name })
	for _, names := range r.groups {
		sort.Strings(names)
	}
	return r, nil
}

// DefaultRegistry builds the registry from the static platform catalog.
func DefaultRegistry() (*Registry, error) {
	return NewRegistry(shared.Catalog())
}

// Permissions returns all catalog entries ordered lexicographically by
// identifier.
func (r *Registry) Permissions() []shared.PermissionDef {
	out := make([]shared.PermissionDef, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// Groups maps group name to the sorted permission identifiers it contains.
// Groups are flat and presentation-only; they carry no resolution
// semantics.
func (r *Registry) Groups() map[string][]string {
	out := make(map[string][]string, len(r.groups))
	for name, perms := range r.groups {
		cp := make([]string, len(perms))
		copy(cp, perms)
		out[name] = cp
	}
	return out
}

// Exists reports whether the identifier is registered.
func (r *Registry) Exists(name string) bool {
	_, ok := r.byName[name]
	return ok
}

// Sensitive reports whether decisions on the permission must be audited.
// Unknown identifiers report false; callers validate with Exists first.
func (r *Registry) Sensitive(name string) bool {
	return r.byName[name].Sensitive
}

// Validate checks every identifier against the catalog, returning
// ErrUnknownPermission on the first miss. Called eagerly at role-save and
// override-set time so resolution never encounters an undefined
// identifier.
func (r *Registry) Validate(names ...string) error {
	for _, name := range names {
		if !r.Exists(name) {
			return fmt.Errorf("%w: %s", ErrUnknownPermission, name)
		}
	}
	return nil
}
