package audit

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"
)

// Exporter renders audit records for download.
type Exporter struct{}

// NewExporter constructs an exporter.
func NewExporter() *Exporter {
	return &Exporter{}
}

// WriteCSV renders records as CSV, newest first, header included.
func (e *Exporter) WriteCSV(rows []Entry) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	header := []string{"occurred_at", "actor_id", "target_user_id", "action", "entity", "entity_id", "outcome", "reason"}
	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("audit: write csv header: %w", err)
	}
	for _, row := range rows {
		record := []string{
			row.At.UTC().Format(time.RFC3339),
			strconv.FormatInt(row.ActorID, 10),
			strconv.FormatInt(row.TargetUser, 10),
			row.Action,
			row.Entity,
			row.EntityID,
			row.Outcome,
			row.Reason,
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("audit: write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
