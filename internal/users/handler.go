package users

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

// Handler exposes user listing, per-user effective permissions and
// override management.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	rbacSvc  *rbac.Service
	resolver *rbac.Resolver
	validate *validator.Validate
	rbac     rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbacSvc *rbac.Service, resolver *rbac.Resolver, mw rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:   logger,
		service:  service,
		rbacSvc:  rbacSvc,
		resolver: resolver,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		rbac:     mw,
	}
}

// MountRoutes registers user routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermUserViewAll, shared.PermAdminUserManagement))
		r.Get("/", h.listUsers)
		r.Get("/{userID}/roles", h.listUserRoles)
		r.Get("/{userID}/permissions", h.effectivePermissions)
		r.Get("/{userID}/overrides", h.listOverrides)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermAdminUserManagement))
		r.Put("/{userID}/overrides/{permission}", h.setOverride)
		r.Delete("/{userID}/overrides/{permission}", h.clearOverride)
	})
}

type userView struct {
	ID         int64  `json:"id"`
	Email      string `json:"email"`
	Name       string `json:"name"`
	IsActive   bool   `json:"is_active"`
	LegacyRole string `json:"legacy_role,omitempty"`
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListUsers(r.Context())
	if err != nil {
		h.respondError(w, "list users", err)
		return
	}
	views := make([]userView, 0, len(list))
	for _, u := range list {
		views = append(views, userView{ID: u.ID, Email: u.Email, Name: u.Name, IsActive: u.IsActive, LegacyRole: u.LegacyRole})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"users": views})
}

func (h *Handler) listUserRoles(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.parseUserID(w, r)
	if !ok {
		return
	}
	roles, err := h.rbacSvc.RolesOf(r.Context(), userID)
	if err != nil {
		h.respondError(w, "list user roles", err)
		return
	}
	names := make([]string, 0, len(roles))
	for _, role := range roles {
		names = append(names, role.Name)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": names})
}

func (h *Handler) effectivePermissions(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.parseUserID(w, r)
	if !ok {
		return
	}
	perms, err := h.resolver.EffectivePermissions(r.Context(), userID)
	if err != nil {
		h.respondError(w, "effective permissions", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"permissions": perms})
}

func (h *Handler) listOverrides(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.parseUserID(w, r)
	if !ok {
		return
	}
	overrides, err := h.rbacSvc.OverridesOf(r.Context(), userID)
	if err != nil {
		h.respondError(w, "list overrides", err)
		return
	}
	out := make(map[string]string, len(overrides))
	for perm, o := range overrides {
		out[perm] = string(o.Outcome)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"overrides": out})
}

type overrideRequest struct {
	Outcome string `json:"outcome" validate:"required,oneof=grant deny"`
	Reason  string `json:"reason" validate:"max=255"`
}

func (h *Handler) setOverride(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.parseUserID(w, r)
	if !ok {
		return
	}
	var req overrideRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Malformed Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	permission := chi.URLParam(r, "permission")
	if err := h.rbacSvc.SetOverride(r.Context(), userID, permission, rbac.Outcome(req.Outcome), req.Reason); err != nil {
		h.respondError(w, "set override", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) clearOverride(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.parseUserID(w, r)
	if !ok {
		return
	}
	if err := h.rbacSvc.ClearOverride(r.Context(), userID, chi.URLParam(r, "permission")); err != nil {
		h.respondError(w, "clear override", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) parseUserID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil || userID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Malformed Request", "invalid user id")
		return 0, false
	}
	return userID, true
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "User Not Found", err.Error())
	case errors.Is(err, rbac.ErrRoleNotFound):
		httpx.Problem(w, http.StatusNotFound, "Role Not Found", err.Error())
	case errors.Is(err, rbac.ErrUnknownPermission):
		httpx.Problem(w, http.StatusBadRequest, "Unknown Permission", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
