package audit

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

const reportTimeLayout = "2006-01-02 15:04:05"

// GenerateReport renders the audit of a visible record set as a plain text
// block: headline counts, then one itemized section per exclusion category,
// then a per-device breakdown. Output is deterministic for identical input
// (timestamps are rendered in UTC), so it can be golden-tested and diffed
// between runs.
func GenerateReport(visible []Annotated) string {
	sum := Summarize(visible)

	var short, sr, dup []Annotated
	for _, a := range visible {
		if a.Flags.Short {
			short = append(short, a)
		}
		if a.Flags.SystemReplacement {
			sr = append(sr, a)
		}
		if a.Flags.Duplicate {
			dup = append(dup, a)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "**Total Utterances**: %d\n", sum.Total)
	fmt.Fprintf(&b, "**Short Utterances**: %d\n", sum.Short)
	fmt.Fprintf(&b, "**System Replacement (SR)**: %d\n", sum.SystemReplacement)
	fmt.Fprintf(&b, "**Duplicates (DUP)**: %d\n", sum.Duplicate)
	fmt.Fprintf(&b, "**Estimated Valid**: %d\n\n", sum.EstimatedValid)

	writeBlock(&b, "Short Utterances", short)
	writeBlock(&b, "System Replacement", sr)
	writeBlock(&b, "Duplicates", dup)

	b.WriteString("**Device Breakdown**:\n")
	if len(sum.PerDevice) == 0 {
		b.WriteString("_None_\n")
	} else {
		devices := make([]string, 0, len(sum.PerDevice))
		for name := range sum.PerDevice {
			devices = append(devices, name)
		}
		sort.Strings(devices)
		for _, name := range devices {
			dc := sum.PerDevice[name]
			fmt.Fprintf(&b, "- %s: %d total, %d valid\n", name, dc.Total, dc.Valid)
		}
	}

	return b.String()
}

func writeBlock(b *strings.Builder, label string, items []Annotated) {
	fmt.Fprintf(b, "**%s**:\n", label)
	if len(items) == 0 {
		b.WriteString("_None_\n\n")
		return
	}
	for _, a := range items {
		fmt.Fprintf(b, "- [%s] %s (%s): %s\n",
			formatReportTime(a.Record.Timestamp), a.Record.DeviceName,
			a.Record.UtteranceType, a.Transcript)
	}
	b.WriteString("\n")
}

func formatReportTime(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(reportTimeLayout)
}
