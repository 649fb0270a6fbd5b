package roles

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/questdeck/questdeck/internal/platform/httpx"
	"github.com/questdeck/questdeck/internal/rbac"
	"github.com/questdeck/questdeck/internal/shared"
)

// Handler exposes the role management API to the external admin UI.
type Handler struct {
	logger   *slog.Logger
	service  *rbac.Service
	validate *validator.Validate
	rbac     rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *rbac.Service, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:   logger,
		service:  service,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		rbac:     rbac,
	}
}

// MountRoutes registers role management routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermAdminUserManagement))
		r.Get("/", h.listRoles)
		r.Get("/{name}", h.getRole)
		r.Get("/{name}/effective", h.effectivePermissions)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermAdminUserManagement))
		r.Post("/", h.createRole)
		r.Put("/{name}", h.updateRole)
		r.Delete("/{name}", h.deleteRole)
		r.Post("/{name}/assignments", h.assignRole)
		r.Delete("/{name}/assignments/{userID}", h.revokeRole)
	})
}

type roleRequest struct {
	Name        string   `json:"name" validate:"required,min=1,max=64"`
	Description string   `json:"description" validate:"max=255"`
	Permissions []string `json:"permissions" validate:"dive,required"`
	Parent      string   `json:"parent" validate:"omitempty,max=64"`
}

// roleView mirrors roleRequest so a client can GET a role, edit a field
// and PUT it straight back. Parent is the parent role's name.
type roleView struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Permissions []string `json:"permissions"`
	Parent      string   `json:"parent,omitempty"`
	IsSystem    bool     `json:"is_system"`
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.ListRoles(r.Context())
	if err != nil {
		h.respondError(w, "list roles", err)
		return
	}
	views := make([]roleView, 0, len(roles))
	for _, role := range roles {
		views = append(views, toView(role))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": views})
}

func (h *Handler) getRole(w http.ResponseWriter, r *http.Request) {
	role, err := h.service.GetRole(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		h.respondError(w, "get role", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toView(role))
}

func (h *Handler) effectivePermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.service.RoleEffectivePermissions(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		h.respondError(w, "role effective permissions", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"permissions": perms})
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Malformed Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	role, err := h.service.CreateRole(r.Context(), rbac.RoleInput{
		Name:        req.Name,
		Description: req.Description,
		Permissions: req.Permissions,
		Parent:      req.Parent,
	})
	if err != nil {
		h.respondError(w, "create role", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toView(role))
}

func (h *Handler) updateRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Malformed Request", "invalid JSON body")
		return
	}
	req.Name = chi.URLParam(r, "name")
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	role, err := h.service.UpdateRole(r.Context(), req.Name, rbac.RoleInput{
		Name:        req.Name,
		Description: req.Description,
		Permissions: req.Permissions,
		Parent:      req.Parent,
	})
	if err != nil {
		h.respondError(w, "update role", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toView(role))
}

func (h *Handler) deleteRole(w http.ResponseWriter, r *http.Request) {
	cascade := r.URL.Query().Get("cascade") == "true"
	if err := h.service.DeleteRole(r.Context(), chi.URLParam(r, "name"), cascade); err != nil {
		h.respondError(w, "delete role", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type assignRequest struct {
	UserID int64 `json:"user_id" validate:"required,gt=0"`
}

func (h *Handler) assignRole(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Malformed Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.service.AssignRole(r.Context(), req.UserID, chi.URLParam(r, "name")); err != nil {
		h.respondError(w, "assign role", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) revokeRole(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Malformed Request", "invalid user id")
		return
	}
	if err := h.service.RevokeRole(r.Context(), userID, chi.URLParam(r, "name")); err != nil {
		h.respondError(w, "revoke role", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, rbac.ErrRoleNotFound):
		httpx.Problem(w, http.StatusNotFound, "Role Not Found", err.Error())
	case errors.Is(err, rbac.ErrDuplicateRole):
		httpx.Problem(w, http.StatusConflict, "Duplicate Role", err.Error())
	case errors.Is(err, rbac.ErrRoleInUse):
		httpx.Problem(w, http.StatusConflict, "Role In Use", err.Error())
	case errors.Is(err, rbac.ErrSystemRole):
		httpx.Problem(w, http.StatusConflict, "System Role", err.Error())
	case errors.Is(err, rbac.ErrCyclicInheritance):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Cyclic Inheritance", err.Error())
	case errors.Is(err, rbac.ErrUnknownPermission):
		httpx.Problem(w, http.StatusBadRequest, "Unknown Permission", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func toView(role rbac.Role) roleView {
	return roleView{
		Name:        role.Name,
		Description: role.Description,
		Permissions: role.Permissions,
		Parent:      role.Parent,
		IsSystem:    role.IsSystem,
	}
}
