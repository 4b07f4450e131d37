package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/natefinch/atomic"

	"github.com/rhuss/aython/pkg/api"
)

// ExportFileName returns the default export file name for t, in the form
// aython_history_YYYYmmdd_HHMMSS.json.
func ExportFileName(t time.Time) string {
	return "aython_history_" + t.Format("20060102_150405") + ".json"
}

// Export is the document written by ExportJSON.
type Export struct {
	ExportedAt time.Time        `json:"exported_at"`
	Runs       []*api.RunRecord `json:"runs"`
}

// ExportJSON writes every run visible in ctx to path, oldest first.
// The file is replaced atomically so a crash never leaves a partial export.
// It returns the number of runs written.
func ExportJSON(ctx context.Context, store HistoryStore, path string) (int, error) {
	runs, err := store.List(ctx, ListOptions{Limit: -1, Order: "asc"})
	if err != nil {
		return 0, fmt.Errorf("listing history: %w", err)
	}
	if runs == nil {
		runs = []*api.RunRecord{}
	}

	data, err := json.MarshalIndent(Export{ExportedAt: time.Now().UTC(), Runs: runs}, "", "  ")
	if err != nil {
		return 0, fmt.Errorf("encoding history: %w", err)
	}
	data = append(data, '\n')

	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return 0, fmt.Errorf("writing %s: %w", path, err)
	}
	return len(runs), nil
}
