package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"alexaudit/internal/audit"
	"alexaudit/internal/history"
	"alexaudit/internal/store"
)

// fetchAndStore pulls the record range from the host API and stores it as a
// new run. A pagination failure is reported with the partial record count
// instead of being swallowed.
func fetchAndStore(cfg Config, db *sql.DB, start, end time.Time) (int64, []audit.Record, error) {
	sess, err := history.LoadSession(cfg.SessionPath)
	if err != nil {
		return 0, nil, err
	}

	client := history.NewClient(time.Duration(cfg.FetchTimeoutSeconds) * time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log.Printf("fetch range %s - %s", start.Format("2006-01-02"), end.Format("2006-01-02"))
	records, stats, err := client.FetchRange(ctx, sess, start, end)
	if err != nil {
		var fetchErr *history.FetchError
		if errors.As(err, &fetchErr) {
			return 0, nil, fmt.Errorf("fetch aborted with %d records retrieved over %d pages: %w",
				fetchErr.Fetched, fetchErr.Pages, fetchErr.Err)
		}
		return 0, nil, err
	}

	runID, err := store.SaveRun(db, start, end, records)
	if err != nil {
		return 0, nil, fmt.Errorf("storing run: %w", err)
	}
	log.Printf("fetch stored run=%d records=%d pages=%d", runID, stats.Records, stats.Pages)
	return runID, records, nil
}

// formatFetchSummary returns a human-readable summary of a completed fetch.
func formatFetchSummary(runID int64, records []audit.Record) string {
	perDevice := make(map[string]int)
	for _, rec := range records {
		perDevice[audit.Normalize(rec).DeviceName]++
	}
	devices := make([]string, 0, len(perDevice))
	for name := range perDevice {
		devices = append(devices, name)
	}
	sort.Strings(devices)

	var parts []string
	for _, name := range devices {
		parts = append(parts, fmt.Sprintf("%s: %d", name, perDevice[name]))
	}
	msg := fmt.Sprintf("Fetched %d utterances into run %d", len(records), runID)
	if len(parts) > 0 {
		msg += fmt.Sprintf(" (%s)", strings.Join(parts, ", "))
	}
	return msg
}

// loadAuditSession rebuilds the classification session for a stored run,
// restoring persisted device settings and overrides. runID 0 means the most
// recent run.
func loadAuditSession(cfg Config, db *sql.DB, runID int64) (*audit.Session, int64, error) {
	if runID == 0 {
		latest, err := store.LatestRunID(db)
		if err != nil {
			return nil, 0, err
		}
		runID = latest
	}
	records, err := store.LoadRun(db, runID)
	if err != nil {
		return nil, 0, fmt.Errorf("loading run %d: %w", runID, err)
	}
	if len(records) == 0 {
		return nil, 0, fmt.Errorf("run %d holds no records", runID)
	}
	settings, err := store.LoadSettings(db)
	if err != nil {
		return nil, 0, fmt.Errorf("loading device settings: %w", err)
	}
	overrides, err := store.LoadOverrides(db)
	if err != nil {
		return nil, 0, fmt.Errorf("loading overrides: %w", err)
	}
	return audit.NewSessionWith(records, cfg.Rules(), settings, overrides), runID, nil
}

// persistSession writes the session's settings and overrides back to the
// database after a mutation.
func persistSession(db *sql.DB, sess *audit.Session) error {
	if err := store.SaveSettings(db, sess.Settings()); err != nil {
		return fmt.Errorf("saving device settings: %w", err)
	}
	if err := store.SaveOverrides(db, sess.RecordIDs(), sess.Overrides()); err != nil {
		return fmt.Errorf("saving overrides: %w", err)
	}
	return nil
}

// writeReportFile stores a generated report under the output dir, named by
// run and date.
func writeReportFile(content, outputDir string, runID int64, now time.Time) (string, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", err
	}
	filename := fmt.Sprintf("audit_run%d_%s.md", runID, now.Format("20060102"))
	path := filepath.Join(outputDir, filename)
	return path, os.WriteFile(path, []byte(content), 0644)
}
