package rbac

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/questdeck/questdeck/internal/platform/httpx"
	"github.com/questdeck/questdeck/internal/shared"
)

// PermissionsHandler serves the read-only permission catalog.
type PermissionsHandler struct {
	logger   *slog.Logger
	registry *Registry
	rbac     Middleware
}

// NewPermissionsHandler builds PermissionsHandler instance.
func NewPermissionsHandler(logger *slog.Logger, registry *Registry, rbac Middleware) *PermissionsHandler {
	return &PermissionsHandler{logger: logger, registry: registry, rbac: rbac}
}

// MountRoutes registers permission routes.
func (h *PermissionsHandler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermAdminUserManagement))
		r.Get("/", h.listPermissions)
		r.Get("/groups", h.listGroups)
	})
}

type permissionView struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Sensitive   bool   `json:"sensitive"`
}

func (h *PermissionsHandler) listPermissions(w http.ResponseWriter, r *http.Request) {
	defs := h.registry.Permissions()
	views := make([]permissionView, 0, len(defs))
	for _, def := range defs {
		views = append(views, permissionView{
			Name:        def.Name,
			Description: def.Description,
			Category:    def.Category,
			Sensitive:   def.Sensitive,
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"permissions": views})
}

func (h *PermissionsHandler) listGroups(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, map[string]any{"groups": h.registry.Groups()})
}
