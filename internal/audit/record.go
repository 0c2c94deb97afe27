package audit

import "strings"

// Utterance types after normalization.
const (
	TypeGeneral       = "GENERAL"
	TypeRoutinesOrTap = "ROUTINES_OR_TAP_TO_ALEXA"
	TypeUnknown       = "UNKNOWN"
)

const UnknownDevice = "Unknown Device"

// Transcript item types, in extraction priority order.
const (
	ItemCustomerTranscript = "CUSTOMER_TRANSCRIPT"
	ItemASRReplacement     = "ASR_REPLACEMENT_TEXT"
	ItemAlexaResponse      = "ALEXA_RESPONSE"
	ItemTTSReplacement     = "TTS_REPLACEMENT_TEXT"
)

type TranscriptItem struct {
	ItemType string
	Text     string
}

// Record is one logged interaction as handed to the classifier. It carries
// the raw transcript items; the classifier decides which one is the
// customer transcript.
type Record struct {
	ID            string
	Timestamp     int64 // epoch milliseconds
	DeviceName    string
	UtteranceType string
	Domain        string
	Intent        string
	Items         []TranscriptItem
}

// Normalize fills defaults for partial records and folds routine/automation
// interactions into ROUTINES_OR_TAP_TO_ALEXA. Malformed records degrade,
// they never fail.
func Normalize(r Record) Record {
	if strings.TrimSpace(r.DeviceName) == "" {
		r.DeviceName = UnknownDevice
	}
	switch {
	case r.UtteranceType == TypeGeneral && (r.Domain == "Routine" || r.Domain == "Automation"):
		r.UtteranceType = TypeRoutinesOrTap
	case r.UtteranceType == "":
		r.UtteranceType = TypeUnknown
	}
	return r
}

var responseItemTypes = map[string]bool{
	ItemAlexaResponse:  true,
	ItemTTSReplacement: true,
}

// Transcript returns the customer-side transcript for a record: the first
// CUSTOMER_TRANSCRIPT item, then the first ASR_REPLACEMENT_TEXT item, then
// the first non-response item with non-empty text. Empty string when
// nothing matches.
func Transcript(r Record) string {
	for _, want := range []string{ItemCustomerTranscript, ItemASRReplacement} {
		for _, item := range r.Items {
			if item.ItemType == want && item.Text != "" {
				return item.Text
			}
		}
	}
	for _, item := range r.Items {
		if !responseItemTypes[item.ItemType] && strings.TrimSpace(item.Text) != "" {
			return item.Text
		}
	}
	return ""
}

// Response returns the assistant-side response text. Display only; the
// classifier never looks at it.
func Response(r Record) string {
	for _, item := range r.Items {
		if responseItemTypes[item.ItemType] && strings.TrimSpace(item.Text) != "" {
			return item.Text
		}
	}
	return ""
}
