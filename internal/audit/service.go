package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

const (
	defaultPageSize = 20
	maxPageSize     = 50
)

// Service coordinates audit record writes and reporting queries.
type Service struct {
	repo RepositoryPort
	now  func() time.Time
}

// NewService constructs an audit service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Record appends one entry. Entries with no action or entity are rejected;
// a sink that silently accepted empty records would be useless as evidence.
func (s *Service) Record(ctx context.Context, entry Entry) error {
	if s == nil || s.repo == nil {
		return errors.New("audit: recorder not configured")
	}
	if entry.Action == "" || entry.Entity == "" {
		return errors.New("audit: entry requires action and entity")
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.At.IsZero() {
		entry.At = s.now()
	}
	return s.repo.Insert(ctx, entry)
}

// Query returns one page of records with paging metadata.
func (s *Service) Query(ctx context.Context, filters Filters) (Result, error) {
	if s.repo == nil {
		return Result{}, errors.New("audit: repository not configured")
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * pageSize
	rows, err := s.repo.Window(ctx, filters, offset, pageSize+1)
	if err != nil {
		return Result{}, err
	}
	hasNext := len(rows) > pageSize
	if hasNext {
		rows = rows[:pageSize]
	}
	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	return Result{Rows: rows, Paging: paging}, nil
}

// Export returns every matching record without paging, for the CSV export.
func (s *Service) Export(ctx context.Context, filters Filters) ([]Entry, error) {
	if s.repo == nil {
		return nil, errors.New("audit: repository not configured")
	}
	return s.repo.All(ctx, filters)
}

// PurgeBefore removes records older than the horizon. Exposed for the
// retention sweep job only.
func (s *Service) PurgeBefore(ctx context.Context, horizon time.Time) (int64, error) {
	if s.repo == nil {
		return 0, errors.New("audit: repository not configured")
	}
	return s.repo.DeleteOlderThan(ctx, horizon)
}
