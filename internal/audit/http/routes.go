package audithttp

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/questdeck/questdeck/internal/rbac"
	"github.com/questdeck/questdeck/internal/shared"
)

// MountRoutes registers the audit reporting routes. Viewing requires the
// audit permission; the export endpoint is additionally rate limited
// because full exports are expensive.
func (h *Handler) MountRoutes(r chi.Router, mw rbac.Middleware) {
	r.Group(func(r chi.Router) {
		r.Use(mw.RequireAny(shared.PermSecurityViewAudit, shared.PermAdminViewLogs))
		r.Get("/", h.handleQuery)
		r.Group(func(r chi.Router) {
			r.Use(httprate.LimitByIP(5, time.Minute))
			r.Get("/export.csv", h.handleExport)
		})
	})
}
