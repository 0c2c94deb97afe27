package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"alexaudit/internal/audit"
)

// InitDB opens (creating if needed) the audit database. Runs and their
// records are immutable snapshots of what a fetch returned; device settings
// and overrides are global so they survive across fetches.
func InitDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		fetched_at   DATETIME DEFAULT CURRENT_TIMESTAMP,
		range_start  INTEGER NOT NULL,
		range_end    INTEGER NOT NULL,
		record_count INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS records (
		id             TEXT PRIMARY KEY,
		run_id         INTEGER NOT NULL,
		ts             INTEGER NOT NULL,
		device_name    TEXT NOT NULL DEFAULT '',
		utterance_type TEXT NOT NULL DEFAULT '',
		domain         TEXT NOT NULL DEFAULT '',
		intent         TEXT NOT NULL DEFAULT '',
		items          TEXT NOT NULL DEFAULT '[]'
	);
	CREATE INDEX IF NOT EXISTS idx_records_run ON records(run_id);
	CREATE INDEX IF NOT EXISTS idx_records_ts ON records(ts);

	CREATE TABLE IF NOT EXISTS device_settings (
		device_name TEXT PRIMARY KEY,
		assigned    INTEGER NOT NULL DEFAULT 1,
		text_based  INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS overrides (
		record_id          TEXT PRIMARY KEY,
		wake_word          INTEGER NOT NULL DEFAULT 0,
		short              INTEGER NOT NULL DEFAULT 0,
		system_replacement INTEGER NOT NULL DEFAULT 0,
		duplicate          INTEGER NOT NULL DEFAULT 0,
		sr_manual          INTEGER NOT NULL DEFAULT 0
	);
	`
	if _, err = db.Exec(schema); err != nil {
		return nil, err
	}
	return db, nil
}

// SaveRun stores a fetched record set as a new run and returns its id.
func SaveRun(db *sql.DB, start, end time.Time, records []audit.Record) (int64, error) {
	tx, err := db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		`INSERT INTO runs (range_start, range_end, record_count) VALUES (?, ?, ?)`,
		start.UnixMilli(), end.UnixMilli(), len(records),
	)
	if err != nil {
		return 0, err
	}
	runID, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	stmt, err := tx.Prepare(
		`INSERT INTO records (id, run_id, ts, device_name, utterance_type, domain, intent, items)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	for _, rec := range records {
		items, err := json.Marshal(rec.Items)
		if err != nil {
			return 0, fmt.Errorf("marshaling items for record %s: %w", rec.ID, err)
		}
		if _, err := stmt.Exec(rec.ID, runID, rec.Timestamp, rec.DeviceName,
			rec.UtteranceType, rec.Domain, rec.Intent, string(items)); err != nil {
			return 0, err
		}
	}

	return runID, tx.Commit()
}

// LoadRun returns the records of one run in timestamp order.
func LoadRun(db *sql.DB, runID int64) ([]audit.Record, error) {
	rows, err := db.Query(
		`SELECT id, ts, device_name, utterance_type, domain, intent, items
		 FROM records WHERE run_id = ? ORDER BY ts, id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []audit.Record
	for rows.Next() {
		var rec audit.Record
		var items string
		if err := rows.Scan(&rec.ID, &rec.Timestamp, &rec.DeviceName,
			&rec.UtteranceType, &rec.Domain, &rec.Intent, &items); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(items), &rec.Items); err != nil {
			return nil, fmt.Errorf("parsing items for record %s: %w", rec.ID, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// LatestRunID returns the most recent run id, or an error when no run has
// been stored yet.
func LatestRunID(db *sql.DB) (int64, error) {
	var id int64
	err := db.QueryRow(`SELECT id FROM runs ORDER BY id DESC LIMIT 1`).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("no runs stored yet; run a fetch first")
	}
	return id, err
}

// Run describes one stored fetch.
type Run struct {
	ID          int64
	FetchedAt   time.Time
	RangeStart  time.Time
	RangeEnd    time.Time
	RecordCount int
}

func ListRuns(db *sql.DB) ([]Run, error) {
	rows, err := db.Query(
		`SELECT id, fetched_at, range_start, range_end, record_count FROM runs ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		var startMs, endMs int64
		if err := rows.Scan(&r.ID, &r.FetchedAt, &startMs, &endMs, &r.RecordCount); err != nil {
			return nil, err
		}
		r.RangeStart = time.UnixMilli(startMs).UTC()
		r.RangeEnd = time.UnixMilli(endMs).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

// LoadSettings returns all persisted device settings.
func LoadSettings(db *sql.DB) (map[string]audit.DeviceSetting, error) {
	rows, err := db.Query(`SELECT device_name, assigned, text_based FROM device_settings`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]audit.DeviceSetting)
	for rows.Next() {
		var name string
		var assigned, textBased bool
		if err := rows.Scan(&name, &assigned, &textBased); err != nil {
			return nil, err
		}
		out[name] = audit.DeviceSetting{Assigned: assigned, TextBased: textBased}
	}
	return out, rows.Err()
}

// SaveSettings upserts device settings. Settings for devices absent from
// the map are left alone: a device's setting outlives the runs it was
// sighted in.
func SaveSettings(db *sql.DB, settings map[string]audit.DeviceSetting) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT OR REPLACE INTO device_settings (device_name, assigned, text_based) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for name, s := range settings {
		if _, err := stmt.Exec(name, s.Assigned, s.TextBased); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// LoadOverrides returns all persisted per-record overrides.
func LoadOverrides(db *sql.DB) (map[string]audit.Override, error) {
	rows, err := db.Query(
		`SELECT record_id, wake_word, short, system_replacement, duplicate, sr_manual FROM overrides`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]audit.Override)
	for rows.Next() {
		var id string
		var ov audit.Override
		if err := rows.Scan(&id, &ov.WakeWord, &ov.Short, &ov.SystemReplacement,
			&ov.Duplicate, &ov.SRManual); err != nil {
			return nil, err
		}
		out[id] = ov
	}
	return out, rows.Err()
}

// SaveOverrides replaces the persisted overrides for the given record set.
// Records whose overrides were cleared in the session get their rows
// deleted; overrides belonging to other runs are untouched.
func SaveOverrides(db *sql.DB, recordIDs []string, overrides map[string]audit.Override) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	del, err := tx.Prepare(`DELETE FROM overrides WHERE record_id = ?`)
	if err != nil {
		return err
	}
	defer del.Close()
	for _, id := range recordIDs {
		if _, err := del.Exec(id); err != nil {
			return err
		}
	}
	stmt, err := tx.Prepare(
		`INSERT INTO overrides (record_id, wake_word, short, system_replacement, duplicate, sr_manual)
		 VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for id, ov := range overrides {
		if _, err := stmt.Exec(id, ov.WakeWord, ov.Short, ov.SystemReplacement,
			ov.Duplicate, ov.SRManual); err != nil {
			return err
		}
	}
	return tx.Commit()
}
