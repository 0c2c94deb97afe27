package audit

import (
	"sort"
	"strings"
)

// DeviceSetting controls how one device's records are treated. Zero value is
// not the default: new devices start Assigned.
type DeviceSetting struct {
	// Assigned devices count toward visible totals.
	Assigned bool
	// TextBased devices treat routine/tap interactions as legitimate human
	// input instead of system noise.
	TextBased bool
}

func DefaultDeviceSetting() DeviceSetting {
	return DeviceSetting{Assigned: true}
}

// Override records a manual per-record decision. A true field suppresses the
// corresponding automatic flag on every later classification pass.
type Override struct {
	WakeWord          bool
	Short             bool
	SystemReplacement bool
	Duplicate         bool

	// SRManual marks that a human has explicitly decided the
	// system-replacement question for this record. While set, bulk
	// device-level text-based toggles leave the record alone.
	SRManual bool
}

func (o Override) IsZero() bool {
	return o == Override{}
}

func (o Override) Has(c Category) bool {
	switch c {
	case CategoryWakeWord:
		return o.WakeWord
	case CategoryShort:
		return o.Short
	case CategorySystemReplacement:
		return o.SystemReplacement
	case CategoryDuplicate:
		return o.Duplicate
	}
	return false
}

// Flags are the active (non-overridden) classification results for a record.
type Flags struct {
	WakeWord          bool
	Short             bool
	SystemReplacement bool
	Duplicate         bool
}

func (f Flags) Has(c Category) bool {
	switch c {
	case CategoryWakeWord:
		return f.WakeWord
	case CategoryShort:
		return f.Short
	case CategorySystemReplacement:
		return f.SystemReplacement
	case CategoryDuplicate:
		return f.Duplicate
	}
	return false
}

// Annotated is one classified record. Recomputed on every pass, never stored.
type Annotated struct {
	Record     Record
	Transcript string
	Response   string
	Flags      Flags
}

// Excluded reports whether the record is dropped from the valid count.
// Wake-word detection alone never excludes.
func (a Annotated) Excluded() bool {
	return a.Flags.Short || a.Flags.SystemReplacement || a.Flags.Duplicate
}

// Classify annotates every record with its exclusion flags. It is pure: the
// same records, settings and overrides always produce the same output, and
// none of the inputs are mutated. Records come back in ascending timestamp
// order (ties broken by ID so reruns are stable).
func Classify(records []Record, settings map[string]DeviceSetting, overrides map[string]Override, rules Rules) []Annotated {
	sorted := make([]Record, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Timestamp != sorted[j].Timestamp {
			return sorted[i].Timestamp < sorted[j].Timestamp
		}
		return sorted[i].ID < sorted[j].ID
	})

	out := make([]Annotated, 0, len(sorted))
	for _, rec := range sorted {
		out = append(out, classifyOne(Normalize(rec), settings, overrides, rules))
	}
	markDuplicates(out, overrides, rules)
	return out
}

func classifyOne(rec Record, settings map[string]DeviceSetting, overrides map[string]Override, rules Rules) Annotated {
	a := Annotated{
		Record:     rec,
		Transcript: Transcript(rec),
		Response:   Response(rec),
	}
	ov := overrides[rec.ID]

	// System replacement: anything that is not a general voice interaction,
	// except routine/tap records on devices the user marked text-based. A
	// record with a manual SR decision ignores the text-based exception.
	if rec.UtteranceType != TypeGeneral {
		setting, known := settings[rec.DeviceName]
		if !known {
			setting = DefaultDeviceSetting()
		}
		textInput := rec.UtteranceType == TypeRoutinesOrTap && setting.TextBased && !ov.SRManual
		if !textInput && !ov.SystemReplacement {
			a.Flags.SystemReplacement = true
		}
	}

	// Wake word: detected on the lowercased transcript head; the matched
	// phrase is dropped before the word count below.
	counted := a.Transcript
	if remainder, found := matchWakeWord(a.Transcript, rules.WakeWords); found && !ov.WakeWord {
		a.Flags.WakeWord = true
		if !rules.CountWakeWord {
			counted = remainder
		}
	}

	// Short utterance. Skipped once SR is flagged unless configured
	// otherwise, so one record is not subtracted from both categories.
	if !a.Flags.SystemReplacement || rules.EvaluateShortForSR {
		max := rules.ShortWordMax
		if max < 1 {
			max = 1
		}
		if wordCount(counted) <= max && !ov.Short {
			a.Flags.Short = true
		}
	}

	return a
}

// markDuplicates flags records whose transcript repeats the same device's
// previous chronological record. Records with empty transcripts neither get
// flagged nor advance the per-device chain.
func markDuplicates(annotated []Annotated, overrides map[string]Override, rules Rules) {
	type prev struct {
		transcript string
		timestamp  int64
	}
	lastByDevice := make(map[string]prev)

	for i := range annotated {
		a := &annotated[i]
		normalized := strings.ToLower(strings.TrimSpace(a.Transcript))
		if normalized == "" {
			continue
		}
		device := a.Record.DeviceName
		if p, ok := lastByDevice[device]; ok && p.transcript == normalized {
			inWindow := rules.DuplicateWindow <= 0 ||
				a.Record.Timestamp-p.timestamp <= rules.DuplicateWindow.Milliseconds()
			if inWindow && !overrides[a.Record.ID].Duplicate {
				a.Flags.Duplicate = true
			}
		}
		lastByDevice[device] = prev{transcript: normalized, timestamp: a.Record.Timestamp}
	}
}
