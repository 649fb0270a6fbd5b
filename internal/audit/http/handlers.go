package audithttp

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/questdeck/questdeck/internal/audit"
	"github.com/questdeck/questdeck/internal/platform/httpx"
)

const (
	defaultDateRange = 7 * 24 * time.Hour
	maxDateRange     = 90 * 24 * time.Hour
)

// QueryService defines the reporting contract this handler consumes.
type QueryService interface {
	Query(ctx context.Context, filters audit.Filters) (audit.Result, error)
	Export(ctx context.Context, filters audit.Filters) ([]audit.Entry, error)
}

// Exporter renders audit exports.
type Exporter interface {
	WriteCSV(rows []audit.Entry) ([]byte, error)
}

// Handler serves the read-only audit reporting endpoints.
type Handler struct {
	logger   *slog.Logger
	service  QueryService
	exporter Exporter
	now      func() time.Time
}

// NewHandler builds a Handler.
func NewHandler(logger *slog.Logger, service QueryService, exporter Exporter) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, exporter: exporter, now: time.Now}
}

type entryView struct {
	ID         string         `json:"id"`
	At         time.Time      `json:"at"`
	ActorID    int64          `json:"actor_id"`
	TargetUser int64          `json:"target_user_id,omitempty"`
	Action     string         `json:"action"`
	Entity     string         `json:"entity"`
	EntityID   string         `json:"entity_id"`
	Outcome    string         `json:"outcome"`
	Reason     string         `json:"reason,omitempty"`
	Meta       map[string]any `json:"meta,omitempty"`
}

func (h *Handler) handleQuery(w http.ResponseWriter, r *http.Request) {
	filters, err := h.parseFilters(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Filters", err.Error())
		return
	}
	result, err := h.service.Query(r.Context(), filters)
	if err != nil {
		h.logger.Error("audit query", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	views := make([]entryView, 0, len(result.Rows))
	for _, row := range result.Rows {
		views = append(views, toEntryView(row))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"rows":   views,
		"paging": result.Paging,
	})
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	filters, err := h.parseFilters(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Filters", err.Error())
		return
	}
	rows, err := h.service.Export(r.Context(), filters)
	if err != nil {
		h.logger.Error("audit export", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	data, err := h.exporter.WriteCSV(rows)
	if err != nil {
		h.logger.Error("audit export render", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	filename := fmt.Sprintf("audit-%s.csv", h.now().UTC().Format("20060102-150405"))
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *Handler) parseFilters(r *http.Request) (audit.Filters, error) {
	q := r.URL.Query()
	filters := audit.Filters{
		Action: q.Get("action"),
		Entity: q.Get("entity"),
	}
	var err error
	if filters.Actor, err = parseID(q.Get("actor")); err != nil {
		return audit.Filters{}, fmt.Errorf("invalid actor filter")
	}
	if filters.TargetUser, err = parseID(q.Get("target")); err != nil {
		return audit.Filters{}, fmt.Errorf("invalid target filter")
	}
	if filters.Page, err = parsePositive(q.Get("page")); err != nil {
		return audit.Filters{}, fmt.Errorf("invalid page")
	}
	if filters.PageSize, err = parsePositive(q.Get("page_size")); err != nil {
		return audit.Filters{}, fmt.Errorf("invalid page_size")
	}
	now := h.now()
	filters.From, err = parseDate(q.Get("from"))
	if err != nil {
		return audit.Filters{}, fmt.Errorf("invalid from date")
	}
	filters.To, err = parseDate(q.Get("to"))
	if err != nil {
		return audit.Filters{}, fmt.Errorf("invalid to date")
	}
	if filters.From.IsZero() && filters.To.IsZero() {
		filters.To = now
		filters.From = now.Add(-defaultDateRange)
	}
	if !filters.From.IsZero() && !filters.To.IsZero() {
		if filters.To.Before(filters.From) {
			return audit.Filters{}, fmt.Errorf("date range inverted")
		}
		if filters.To.Sub(filters.From) > maxDateRange {
			return audit.Filters{}, fmt.Errorf("date range exceeds %d days", int(maxDateRange.Hours()/24))
		}
	}
	return filters, nil
}

func parseID(raw string) (int64, error) {
	if raw == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 0 {
		return 0, fmt.Errorf("invalid id")
	}
	return id, nil
}

func parsePositive(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid number")
	}
	return n, nil
}

func parseDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", raw)
}

func toEntryView(e audit.Entry) entryView {
	return entryView{
		ID:         e.ID.String(),
		At:         e.At,
		ActorID:    e.ActorID,
		TargetUser: e.TargetUser,
		Action:     e.Action,
		Entity:     e.Entity,
		EntityID:   e.EntityID,
		Outcome:    e.Outcome,
		Reason:     e.Reason,
		Meta:       e.Meta,
	}
}
