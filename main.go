package main

import (
	"database/sql"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"alexaudit/internal/audit"
	"alexaudit/internal/store"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "alexaudit",
		Short:         "Audit a voice assistant's interaction history",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.AddCommand(fetchCmd())
	rootCmd.AddCommand(runsCmd())
	rootCmd.AddCommand(recordsCmd())
	rootCmd.AddCommand(summaryCmd())
	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(devicesCmd())
	rootCmd.AddCommand(overrideCmd())
	rootCmd.AddCommand(watchCmd())
	rootCmd.AddCommand(insightsCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func openDB(cfg Config) (*sql.DB, error) {
	db, err := store.InitDB(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database %s: %w", cfg.DBPath, err)
	}
	return db, nil
}

func fetchCmd() *cobra.Command {
	var startStr, endStr string
	var days int

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch interaction history and store it as a new run",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := LoadConfig()
			if cfg.SessionPath == "" {
				return fmt.Errorf("session_path is not configured (config.yaml or SESSION_PATH)")
			}
			start, end, err := resolveRange(cfg, startStr, endStr, days)
			if err != nil {
				return err
			}

			db, err := openDB(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			runID, records, err := fetchAndStore(cfg, db, start, end)
			if err != nil {
				return err
			}
			fmt.Println(formatFetchSummary(runID, records))
			return nil
		},
	}

	cmd.Flags().StringVar(&startStr, "start", "", "range start (YYYY-MM-DD)")
	cmd.Flags().StringVar(&endStr, "end", "", "range end (YYYY-MM-DD, exclusive)")
	cmd.Flags().IntVar(&days, "days", 0, "fetch the last N days (default from watch_days)")
	return cmd
}

// resolveRange turns the --start/--end/--days flags into a concrete window.
// Explicit dates win; otherwise the window is the last N days ending now.
func resolveRange(cfg Config, startStr, endStr string, days int) (time.Time, time.Time, error) {
	if days == 0 {
		days = cfg.WatchDays
	}
	end := time.Now().In(cfg.Location)
	start := end.AddDate(0, 0, -days)

	if endStr != "" {
		parsed, err := time.ParseInLocation("2006-01-02", endStr, cfg.Location)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --end %q: %w", endStr, err)
		}
		end = parsed
		start = end.AddDate(0, 0, -days)
	}
	if startStr != "" {
		parsed, err := time.ParseInLocation("2006-01-02", startStr, cfg.Location)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --start %q: %w", startStr, err)
		}
		start = parsed
	}
	if !start.Before(end) {
		return time.Time{}, time.Time{}, fmt.Errorf("range start %s is not before end %s",
			start.Format("2006-01-02"), end.Format("2006-01-02"))
	}
	return start, end, nil
}

func runsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "runs",
		Short: "List stored fetch runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := LoadConfig()
			db, err := openDB(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			runs, err := store.ListRuns(db)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Println("No runs stored yet. Use 'alexaudit fetch' to create one.")
				return nil
			}
			for _, r := range runs {
				fmt.Printf("%d  %s  %s - %s  %d records\n",
					r.ID, r.FetchedAt.Format("2006-01-02 15:04"),
					r.RangeStart.Format("2006-01-02"), r.RangeEnd.Format("2006-01-02"),
					r.RecordCount)
			}
			return nil
		},
	}
}

func recordsCmd() *cobra.Command {
	var runID int64
	var device string
	var flaggedOnly bool

	cmd := &cobra.Command{
		Use:   "records",
		Short: "List classified records with their IDs and flags",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := LoadConfig()
			db, err := openDB(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			sess, _, err := loadAuditSession(cfg, db, runID)
			if err != nil {
				return err
			}
			for _, a := range sess.Visible(device) {
				if flaggedOnly && !a.Excluded() && !a.Flags.WakeWord {
					continue
				}
				fmt.Printf("%s  [%s] %s (%s)%s: %s\n",
					a.Record.ID,
					time.UnixMilli(a.Record.Timestamp).In(cfg.Location).Format("2006-01-02 15:04:05"),
					a.Record.DeviceName, a.Record.UtteranceType,
					flagList(a.Flags), a.Transcript)
			}
			return nil
		},
	}

	cmd.Flags().Int64Var(&runID, "run", 0, "run id (default: latest)")
	cmd.Flags().StringVar(&device, "device", "", "only records from this device")
	cmd.Flags().BoolVar(&flaggedOnly, "flagged", false, "only records carrying a flag")
	return cmd
}

func flagList(f audit.Flags) string {
	var flags []string
	for _, c := range []audit.Category{
		audit.CategoryWakeWord, audit.CategoryShort,
		audit.CategorySystemReplacement, audit.CategoryDuplicate,
	} {
		if f.Has(c) {
			flags = append(flags, c.String())
		}
	}
	if len(flags) == 0 {
		return ""
	}
	return " [" + strings.Join(flags, ",") + "]"
}

func summaryCmd() *cobra.Command {
	var runID int64
	var device string

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Print aggregate counts for a run",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := LoadConfig()
			db, err := openDB(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			sess, id, err := loadAuditSession(cfg, db, runID)
			if err != nil {
				return err
			}
			sum := audit.Summarize(sess.Visible(device))
			fmt.Printf("Run %d\n", id)
			fmt.Printf("Total: %d\n", sum.Total)
			fmt.Printf("Wake Word: %d\n", sum.WakeWord)
			fmt.Printf("Short Utterances: %d\n", sum.Short)
			fmt.Printf("System Replacement: %d\n", sum.SystemReplacement)
			fmt.Printf("Duplicates: %d\n", sum.Duplicate)
			fmt.Printf("Estimated Valid: %d\n", sum.EstimatedValid)

			devices := make([]string, 0, len(sum.PerDevice))
			for name := range sum.PerDevice {
				devices = append(devices, name)
			}
			sort.Strings(devices)
			for _, name := range devices {
				dc := sum.PerDevice[name]
				fmt.Printf("  %s: %d total, %d valid\n", name, dc.Total, dc.Valid)
			}
			return nil
		},
	}

	cmd.Flags().Int64Var(&runID, "run", 0, "run id (default: latest)")
	cmd.Flags().StringVar(&device, "device", "", "only records from this device")
	return cmd
}

func reportCmd() *cobra.Command {
	var runID int64
	var device, outPath string
	var save, post bool

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Generate the audit report for a run",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := LoadConfig()
			db, err := openDB(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			sess, id, err := loadAuditSession(cfg, db, runID)
			if err != nil {
				return err
			}
			report := audit.GenerateReport(sess.Visible(device))

			switch {
			case outPath != "":
				if err := os.WriteFile(outPath, []byte(report), 0644); err != nil {
					return err
				}
				fmt.Printf("Report written to %s\n", outPath)
			case save:
				path, err := writeReportFile(report, cfg.ReportOutputDir, id, time.Now().In(cfg.Location))
				if err != nil {
					return err
				}
				fmt.Printf("Report written to %s\n", path)
			default:
				fmt.Print(report)
			}

			if post {
				if !cfg.SlackConfigured() {
					return fmt.Errorf("slack_bot_token and report_channel_id must be configured for --post")
				}
				if err := postReport(cfg, report); err != nil {
					return fmt.Errorf("posting report: %w", err)
				}
				fmt.Println("Report posted to Slack.")
			}
			return nil
		},
	}

	cmd.Flags().Int64Var(&runID, "run", 0, "run id (default: latest)")
	cmd.Flags().StringVar(&device, "device", "", "only records from this device")
	cmd.Flags().StringVar(&outPath, "out", "", "write the report to this file")
	cmd.Flags().BoolVar(&save, "save", false, "write the report under report_output_dir")
	cmd.Flags().BoolVar(&post, "post", false, "post the report to the Slack report channel")
	return cmd
}

func devicesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "devices",
		Short: "Inspect and change per-device settings",
	}

	var runID int64
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List devices seen in a run with their settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := LoadConfig()
			db, err := openDB(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			sess, _, err := loadAuditSession(cfg, db, runID)
			if err != nil {
				return err
			}
			settings := sess.Settings()
			names := make([]string, 0, len(settings))
			for name := range settings {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				s := settings[name]
				fmt.Printf("%s  assigned=%t text-based=%t\n", name, s.Assigned, s.TextBased)
			}
			return nil
		},
	}
	listCmd.Flags().Int64Var(&runID, "run", 0, "run id (default: latest)")
	cmd.AddCommand(listCmd)

	cmd.AddCommand(deviceToggleCmd("assign", "Count (or stop counting) a device's records in totals",
		(*audit.Session).SetDeviceAssigned))
	cmd.AddCommand(deviceToggleCmd("text-based", "Treat a device's routine/tap records as human text input",
		(*audit.Session).SetDeviceTextBased))
	return cmd
}

func deviceToggleCmd(name, short string, set func(*audit.Session, string, bool) error) *cobra.Command {
	return &cobra.Command{
		Use:   name + " <device> <true|false>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := strconv.ParseBool(args[1])
			if err != nil {
				return fmt.Errorf("invalid value %q: %w", args[1], err)
			}
			cfg := LoadConfig()
			db, err := openDB(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			sess, _, err := loadAuditSession(cfg, db, 0)
			if err != nil {
				return err
			}
			if err := set(sess, args[0], value); err != nil {
				return err
			}
			if err := persistSession(db, sess); err != nil {
				return err
			}
			fmt.Printf("Device %q %s=%t\n", args[0], name, value)
			return nil
		},
	}
}

func overrideCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "override",
		Short: "Manually include or exclude records from a category",
	}

	setOverride := func(value bool) func(cmd *cobra.Command, args []string) error {
		return func(cmd *cobra.Command, args []string) error {
			category, err := audit.ParseCategory(args[1])
			if err != nil {
				return err
			}
			cfg := LoadConfig()
			db, err := openDB(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			sess, _, err := loadAuditSession(cfg, db, 0)
			if err != nil {
				return err
			}
			if err := sess.SetOverride(args[0], category, value); err != nil {
				return err
			}
			if err := persistSession(db, sess); err != nil {
				return err
			}
			fmt.Printf("Override %s=%t for record %s\n", category, value, args[0])
			return nil
		}
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "set <record-id> <category>",
		Short: "Suppress a record's automatic flag (short, sr, duplicate, wake-word)",
		Args:  cobra.ExactArgs(2),
		RunE:  setOverride(true),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "clear <record-id> <category>",
		Short: "Let a record's automatic flag apply again",
		Args:  cobra.ExactArgs(2),
		RunE:  setOverride(false),
	})

	var device string
	resetCmd := &cobra.Command{
		Use:   "reset <category>",
		Short: "Clear one category's overrides across visible records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			category, err := audit.ParseCategory(args[0])
			if err != nil {
				return err
			}
			cfg := LoadConfig()
			db, err := openDB(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			sess, _, err := loadAuditSession(cfg, db, 0)
			if err != nil {
				return err
			}
			cleared := sess.ResetOverrides(category, device)
			if err := persistSession(db, sess); err != nil {
				return err
			}
			fmt.Printf("Cleared %d %s override(s)\n", cleared, category)
			return nil
		},
	}
	resetCmd.Flags().StringVar(&device, "device", "", "only records from this device")
	cmd.AddCommand(resetCmd)
	return cmd
}

func watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Periodically fetch, classify and report on a cron schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := LoadConfig()
			if cfg.WatchSchedule == "" {
				return fmt.Errorf("watch_schedule is not configured (config.yaml or WATCH_SCHEDULE)")
			}
			db, err := openDB(cfg)
			if err != nil {
				return err
			}
			defer db.Close()
			return runWatch(cfg, db)
		},
	}
}

func insightsCmd() *cobra.Command {
	var runID int64
	var device string

	cmd := &cobra.Command{
		Use:   "insights",
		Short: "Summarize the audit report in plain language via the LLM",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := LoadConfig()
			if cfg.AnthropicAPIKey == "" {
				return fmt.Errorf("anthropic_api_key is not configured")
			}
			db, err := openDB(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			sess, _, err := loadAuditSession(cfg, db, runID)
			if err != nil {
				return err
			}
			report := audit.GenerateReport(sess.Visible(device))
			insights, err := buildInsights(cfg, report)
			if err != nil {
				return err
			}
			fmt.Println(insights)
			return nil
		},
	}

	cmd.Flags().Int64Var(&runID, "run", 0, "run id (default: latest)")
	cmd.Flags().StringVar(&device, "device", "", "only records from this device")
	return cmd
}
