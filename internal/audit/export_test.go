package audit

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"
)

func TestWriteCSV(t *testing.T) {
	rows := []Entry{
		{
			ActorID:    99,
			TargetUser: 7,
			Action:     ActionOverrideSet,
			Entity:     "override",
			EntityID:   "server.rcon",
			Outcome:    "deny",
			Reason:     "incident",
			At:         time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC),
		},
	}

	data, err := NewExporter().WriteCSV(rows)
	if err != nil {
		t.Fatalf("write csv: %v", err)
	}

	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected header plus 1 row, got %d records", len(records))
	}
	if records[0][0] != "occurred_at" || records[0][7] != "reason" {
		t.Fatalf("unexpected header: %v", records[0])
	}
	row := records[1]
	if row[0] != "2026-03-10T10:00:00Z" {
		t.Fatalf("unexpected timestamp: %s", row[0])
	}
	if row[1] != "99" || row[2] != "7" || row[3] != ActionOverrideSet || row[6] != "deny" {
		t.Fatalf("unexpected row: %v", row)
	}
}

func TestWriteCSVEmptyStillHasHeader(t *testing.T) {
	data, err := NewExporter().WriteCSV(nil)
	if err != nil {
		t.Fatalf("write csv: %v", err)
	}
	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected header only, got %d records", len(records))
	}
}
