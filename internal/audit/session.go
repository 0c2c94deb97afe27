package audit

import "fmt"

// UnknownDeviceError is returned when a settings mutation names a device no
// record has ever been seen from. Settings are never materialized for
// phantom devices.
type UnknownDeviceError struct {
	Device string
}

func (e *UnknownDeviceError) Error() string {
	return fmt.Sprintf("unknown device %q", e.Device)
}

// UnknownRecordError is returned when an override mutation names a record
// that is not part of the session.
type UnknownRecordError struct {
	ID string
}

func (e *UnknownRecordError) Error() string {
	return fmt.Sprintf("unknown record %q", e.ID)
}

// Session owns the fetched records together with the mutable device settings
// and per-record overrides, and keeps the classification pass current. All
// mutation goes through explicit setters; each setter re-runs the full pass
// (record counts are small enough that nothing incremental is needed).
type Session struct {
	rules     Rules
	records   []Record
	settings  map[string]DeviceSetting
	overrides map[string]Override
	annotated []Annotated
}

// NewSession builds a session over a fetched record set. A DeviceSetting is
// created for every device sighted in the records and survives for the
// session's lifetime, even when later filtering hides the device.
func NewSession(records []Record, rules Rules) *Session {
	return NewSessionWith(records, rules, nil, nil)
}

// NewSessionWith restores a session from previously persisted settings and
// overrides. Settings for devices absent from the maps are created with
// defaults; overrides for records that no longer exist are dropped.
func NewSessionWith(records []Record, rules Rules, settings map[string]DeviceSetting, overrides map[string]Override) *Session {
	s := &Session{
		rules:     rules,
		records:   make([]Record, 0, len(records)),
		settings:  make(map[string]DeviceSetting),
		overrides: make(map[string]Override),
	}
	known := make(map[string]bool, len(records))
	for _, rec := range records {
		rec = Normalize(rec)
		s.records = append(s.records, rec)
		known[rec.ID] = true
		if _, ok := s.settings[rec.DeviceName]; !ok {
			if setting, ok := settings[rec.DeviceName]; ok {
				s.settings[rec.DeviceName] = setting
			} else {
				s.settings[rec.DeviceName] = DefaultDeviceSetting()
			}
		}
	}
	for id, ov := range overrides {
		if known[id] {
			s.overrides[id] = ov
		}
	}
	s.Reclassify()
	return s
}

// Reclassify re-runs the classification pass over all records. Idempotent
// for unchanged settings and overrides.
func (s *Session) Reclassify() {
	s.annotated = Classify(s.records, s.settings, s.overrides, s.rules)
}

// Records returns the current classification pass, all devices included.
func (s *Session) Records() []Annotated {
	return s.annotated
}

// RecordIDs returns the IDs of every record in the session.
func (s *Session) RecordIDs() []string {
	out := make([]string, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec.ID)
	}
	return out
}

// Settings returns a copy of the per-device settings.
func (s *Session) Settings() map[string]DeviceSetting {
	out := make(map[string]DeviceSetting, len(s.settings))
	for k, v := range s.settings {
		out[k] = v
	}
	return out
}

// Overrides returns a copy of the non-empty per-record overrides.
func (s *Session) Overrides() map[string]Override {
	out := make(map[string]Override, len(s.overrides))
	for k, v := range s.overrides {
		if !v.IsZero() {
			out[k] = v
		}
	}
	return out
}

func (s *Session) SetDeviceAssigned(device string, assigned bool) error {
	setting, ok := s.settings[device]
	if !ok {
		return &UnknownDeviceError{Device: device}
	}
	setting.Assigned = assigned
	s.settings[device] = setting
	s.Reclassify()
	return nil
}

// SetDeviceTextBased toggles the routine/tap exception for a device. Manual
// SR decisions on that device's records are cleared so the next pass
// recomputes their natural classification instead of carrying stale forced
// overrides.
func (s *Session) SetDeviceTextBased(device string, textBased bool) error {
	setting, ok := s.settings[device]
	if !ok {
		return &UnknownDeviceError{Device: device}
	}
	setting.TextBased = textBased
	s.settings[device] = setting

	for _, rec := range s.records {
		if rec.DeviceName != device {
			continue
		}
		ov, ok := s.overrides[rec.ID]
		if !ok || !ov.SRManual {
			continue
		}
		ov.SRManual = false
		ov.SystemReplacement = false
		if ov.IsZero() {
			delete(s.overrides, rec.ID)
		} else {
			s.overrides[rec.ID] = ov
		}
	}
	s.Reclassify()
	return nil
}

// SetOverride sets or clears one category's manual override for a record.
// Touching the system-replacement override marks the record as manually
// decided (see Override.SRManual).
func (s *Session) SetOverride(recordID string, c Category, value bool) error {
	if !s.hasRecord(recordID) {
		return &UnknownRecordError{ID: recordID}
	}
	ov := s.overrides[recordID]
	switch c {
	case CategoryWakeWord:
		ov.WakeWord = value
	case CategoryShort:
		ov.Short = value
	case CategorySystemReplacement:
		ov.SystemReplacement = value
		ov.SRManual = true
	case CategoryDuplicate:
		ov.Duplicate = value
	default:
		return fmt.Errorf("unknown category %v", c)
	}
	if ov.IsZero() {
		delete(s.overrides, recordID)
	} else {
		s.overrides[recordID] = ov
	}
	s.Reclassify()
	return nil
}

// ResetOverrides clears one category's overrides across the currently
// visible records and returns how many were cleared.
func (s *Session) ResetOverrides(c Category, deviceFilter string) int {
	cleared := 0
	for _, a := range s.Visible(deviceFilter) {
		ov, ok := s.overrides[a.Record.ID]
		if !ok || !ov.Has(c) {
			continue
		}
		switch c {
		case CategoryWakeWord:
			ov.WakeWord = false
		case CategoryShort:
			ov.Short = false
		case CategorySystemReplacement:
			ov.SystemReplacement = false
			ov.SRManual = false
		case CategoryDuplicate:
			ov.Duplicate = false
		}
		if ov.IsZero() {
			delete(s.overrides, a.Record.ID)
		} else {
			s.overrides[a.Record.ID] = ov
		}
		cleared++
	}
	if cleared > 0 {
		s.Reclassify()
	}
	return cleared
}

// Visible returns the record set summaries and reports operate on. With a
// device filter it is that device's records; without one it is every record
// from an assigned device.
func (s *Session) Visible(deviceFilter string) []Annotated {
	var out []Annotated
	for _, a := range s.annotated {
		if deviceFilter != "" {
			if a.Record.DeviceName == deviceFilter {
				out = append(out, a)
			}
			continue
		}
		if s.settings[a.Record.DeviceName].Assigned {
			out = append(out, a)
		}
	}
	return out
}

func (s *Session) hasRecord(id string) bool {
	for _, rec := range s.records {
		if rec.ID == id {
			return true
		}
	}
	return false
}
