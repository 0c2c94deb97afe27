package audit

// DeviceCount is a per-device total/valid pair.
type DeviceCount struct {
	Total int
	Valid int
}

// Summary holds the aggregate counts for a visible record set. The
// per-category counts are independent (a record flagged short and duplicate
// appears in both), but EstimatedValid subtracts each excluded record
// exactly once.
type Summary struct {
	Total             int
	WakeWord          int
	Short             int
	SystemReplacement int
	Duplicate         int
	EstimatedValid    int
	PerDevice         map[string]DeviceCount
}

// Summarize reduces an annotated record set to its counts.
func Summarize(visible []Annotated) Summary {
	sum := Summary{PerDevice: make(map[string]DeviceCount)}
	for _, a := range visible {
		sum.Total++
		if a.Flags.WakeWord {
			sum.WakeWord++
		}
		if a.Flags.Short {
			sum.Short++
		}
		if a.Flags.SystemReplacement {
			sum.SystemReplacement++
		}
		if a.Flags.Duplicate {
			sum.Duplicate++
		}
		dc := sum.PerDevice[a.Record.DeviceName]
		dc.Total++
		if !a.Excluded() {
			dc.Valid++
			sum.EstimatedValid++
		}
		sum.PerDevice[a.Record.DeviceName] = dc
	}
	return sum
}
