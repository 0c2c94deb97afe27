package main

import (
	"database/sql"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"alexaudit/internal/audit"
)

// runWatch blocks, fetching the configured window and posting a fresh audit
// report on every cron tick. The schedule is a standard 5-field cron
// expression (minute hour day-of-month month day-of-week).
// Examples: "0 9 * * *" (daily 9am), "0 9 * * 1" (Mondays 9am).
func runWatch(cfg Config, db *sql.DB) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(strings.TrimSpace(cfg.WatchSchedule))
	if err != nil {
		return fmt.Errorf("invalid watch_schedule '%s': %w", cfg.WatchSchedule, err)
	}

	log.Printf("Watch scheduled (cron: %s), fetching last %d days each tick", cfg.WatchSchedule, cfg.WatchDays)

	for {
		now := time.Now().In(cfg.Location)
		next := sched.Next(now)
		wait := next.Sub(now)
		log.Printf("Next audit at %s (in %s)", next.Format("Mon Jan 2 15:04"), wait.Round(time.Minute))

		time.Sleep(wait)

		if err := watchTick(cfg, db); err != nil {
			log.Printf("Watch tick error: %v", err)
		}
	}
}

func watchTick(cfg Config, db *sql.DB) error {
	end := time.Now().In(cfg.Location)
	start := end.AddDate(0, 0, -cfg.WatchDays)

	runID, records, err := fetchAndStore(cfg, db, start, end)
	if err != nil {
		return err
	}
	log.Printf("Watch fetch complete: %s", formatFetchSummary(runID, records))

	sess, _, err := loadAuditSession(cfg, db, runID)
	if err != nil {
		return err
	}
	report := audit.GenerateReport(sess.Visible(""))

	path, err := writeReportFile(report, cfg.ReportOutputDir, runID, end)
	if err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	log.Printf("Watch report written to %s", path)

	if cfg.SlackConfigured() {
		if err := postReport(cfg, report); err != nil {
			return fmt.Errorf("posting report: %w", err)
		}
		log.Printf("Watch report posted to channel %s", cfg.ReportChannelID)
	}
	return nil
}
