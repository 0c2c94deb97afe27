package audit

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Category is one of the exclusion/annotation buckets a record can land in.
type Category int

const (
	CategoryWakeWord Category = iota
	CategoryShort
	CategorySystemReplacement
	CategoryDuplicate
)

func (c Category) String() string {
	switch c {
	case CategoryWakeWord:
		return "wake-word"
	case CategoryShort:
		return "short"
	case CategorySystemReplacement:
		return "system-replacement"
	case CategoryDuplicate:
		return "duplicate"
	}
	return fmt.Sprintf("category(%d)", int(c))
}

func ParseCategory(s string) (Category, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "wake-word", "wakeword", "wake":
		return CategoryWakeWord, nil
	case "short":
		return CategoryShort, nil
	case "system-replacement", "sr":
		return CategorySystemReplacement, nil
	case "duplicate", "dup":
		return CategoryDuplicate, nil
	}
	return 0, fmt.Errorf("unknown category %q", s)
}

// Rules are the classification thresholds. The defaults follow the most
// refined behavior; every knob is configurable because earlier revisions of
// the audit disagreed on each of them.
type Rules struct {
	// WakeWords are matched longest-first against the lowercased,
	// punctuation-stripped head of the transcript.
	WakeWords []string

	// ShortWordMax flags a record as short when the transcript holds this
	// many words or fewer after wake-word stripping.
	ShortWordMax int

	// CountWakeWord keeps the wake word in the short-utterance word count
	// (earlier revisions counted the full transcript).
	CountWakeWord bool

	// EvaluateShortForSR also runs short detection on records already
	// flagged as system replacements. Off by default so a record is not
	// subtracted from two categories at once.
	EvaluateShortForSR bool

	// DuplicateWindow limits duplicate detection to records this close in
	// time. Zero disables the window and compares adjacency only.
	DuplicateWindow time.Duration
}

func DefaultRules() Rules {
	return Rules{
		WakeWords:    DefaultWakeWords(),
		ShortWordMax: 1,
	}
}

func DefaultWakeWords() []string {
	return []string{
		"hey alexa",
		"ok alexa",
		"alexa",
		"amazon",
		"computer",
		"echo",
		"ziggy",
	}
}

// matchWakeWord reports the wake phrase prefixing the transcript and the
// remainder after it, or ok=false. Matching is case-insensitive and ignores
// leading punctuation; longer phrases win over their prefixes.
func matchWakeWord(transcript string, wakeWords []string) (remainder string, ok bool) {
	head := strings.ToLower(strings.TrimLeft(transcript, " \t.,!?;:'\"-"))
	if head == "" {
		return "", false
	}

	phrases := append([]string(nil), wakeWords...)
	sort.Slice(phrases, func(i, j int) bool { return len(phrases[i]) > len(phrases[j]) })

	for _, phrase := range phrases {
		phrase = strings.ToLower(strings.TrimSpace(phrase))
		if phrase == "" || !strings.HasPrefix(head, phrase) {
			continue
		}
		rest := head[len(phrase):]
		// The phrase must end at a word boundary: "echo" must not match "echoes".
		if rest != "" && !strings.HasPrefix(rest, " ") && !isLeadingPunct(rest[0]) {
			continue
		}
		return strings.TrimLeft(rest, " \t.,!?;:'\"-"), true
	}
	return "", false
}

func isLeadingPunct(b byte) bool {
	switch b {
	case '.', ',', '!', '?', ';', ':', '\'', '"', '-':
		return true
	}
	return false
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}
