package audit

import (
	"errors"
	"testing"
)

func newTestSession(t *testing.T) *Session {
	t.Helper()
	records := []Record{
		rec("r1", 100, "Kitchen Echo", TypeGeneral, "turn on the kitchen lights"),
		rec("r2", 200, "Kitchen Echo", TypeGeneral, "stop"),
		rec("r3", 300, "Bedroom Echo", TypeRoutinesOrTap, "good morning routine"),
		rec("r4", 400, "Bedroom Echo", TypeGeneral, "what is the weather today"),
	}
	return NewSession(records, DefaultRules())
}

func TestSessionCreatesSettingsForEveryDevice(t *testing.T) {
	sess := newTestSession(t)

	settings := sess.Settings()
	for _, device := range []string{"Kitchen Echo", "Bedroom Echo"} {
		s, ok := settings[device]
		if !ok {
			t.Fatalf("no setting created for %q", device)
		}
		if !s.Assigned || s.TextBased {
			t.Errorf("default setting for %q = %+v, want assigned and not text-based", device, s)
		}
	}
}

func TestSessionDeviceAssignmentFiltersVisible(t *testing.T) {
	sess := newTestSession(t)

	if err := sess.SetDeviceAssigned("Bedroom Echo", false); err != nil {
		t.Fatalf("SetDeviceAssigned failed: %v", err)
	}

	for _, a := range sess.Visible("") {
		if a.Record.DeviceName == "Bedroom Echo" {
			t.Fatalf("unassigned device's record %s is still visible", a.Record.ID)
		}
	}
	sum := Summarize(sess.Visible(""))
	if sum.Total != 2 {
		t.Errorf("visible total = %d, want 2", sum.Total)
	}

	// Setting survives even though the device is filtered out.
	if _, ok := sess.Settings()["Bedroom Echo"]; !ok {
		t.Error("setting for filtered device disappeared")
	}

	// An explicit device filter shows the device regardless of assignment.
	if got := len(sess.Visible("Bedroom Echo")); got != 2 {
		t.Errorf("explicit filter returned %d records, want 2", got)
	}
}

func TestSessionUnknownDevice(t *testing.T) {
	sess := newTestSession(t)

	err := sess.SetDeviceAssigned("Garage Echo", true)
	var unknownDevice *UnknownDeviceError
	if !errors.As(err, &unknownDevice) {
		t.Fatalf("SetDeviceAssigned(unknown) error = %v, want UnknownDeviceError", err)
	}
	if _, ok := sess.Settings()["Garage Echo"]; ok {
		t.Error("failed mutation must not materialize a phantom device")
	}

	if err := sess.SetDeviceTextBased("Garage Echo", true); !errors.As(err, &unknownDevice) {
		t.Fatalf("SetDeviceTextBased(unknown) error = %v, want UnknownDeviceError", err)
	}
}

func TestSessionUnknownRecord(t *testing.T) {
	sess := newTestSession(t)

	err := sess.SetOverride("nope", CategoryShort, true)
	var unknownRecord *UnknownRecordError
	if !errors.As(err, &unknownRecord) {
		t.Fatalf("SetOverride(unknown) error = %v, want UnknownRecordError", err)
	}
}

func TestSessionOverrideSuppressionAndSRManual(t *testing.T) {
	sess := newTestSession(t)

	if f := flagsOf(t, sess.Records(), "r3"); !f.SystemReplacement {
		t.Fatal("routine record should start flagged as system replacement")
	}

	if err := sess.SetOverride("r3", CategorySystemReplacement, true); err != nil {
		t.Fatalf("SetOverride failed: %v", err)
	}
	if f := flagsOf(t, sess.Records(), "r3"); f.SystemReplacement {
		t.Error("override did not suppress the SR flag on the next pass")
	}
	if ov := sess.Overrides()["r3"]; !ov.SRManual {
		t.Error("setting the SR override should mark the record as manually decided")
	}
}

func TestSessionTextBasedToggleRecomputesNaturally(t *testing.T) {
	sess := newTestSession(t)

	// Manually decide r3, then toggle the device to text-based: the manual
	// decision is dropped and the natural (unflagged) classification wins.
	if err := sess.SetOverride("r3", CategorySystemReplacement, true); err != nil {
		t.Fatalf("SetOverride failed: %v", err)
	}
	if err := sess.SetDeviceTextBased("Bedroom Echo", true); err != nil {
		t.Fatalf("SetDeviceTextBased failed: %v", err)
	}

	if _, ok := sess.Overrides()["r3"]; ok {
		t.Error("text-based toggle should clear the device's manual SR decisions")
	}
	if f := flagsOf(t, sess.Records(), "r3"); f.SystemReplacement {
		t.Error("text-based routine record should not be flagged after the toggle")
	}

	// Toggling back restores the natural SR flag.
	if err := sess.SetDeviceTextBased("Bedroom Echo", false); err != nil {
		t.Fatalf("SetDeviceTextBased failed: %v", err)
	}
	if f := flagsOf(t, sess.Records(), "r3"); !f.SystemReplacement {
		t.Error("routine record should be flagged again once text-based is off")
	}
}

func TestSessionResetOverridesOnlyVisible(t *testing.T) {
	sess := newTestSession(t)

	if err := sess.SetOverride("r2", CategoryShort, true); err != nil {
		t.Fatalf("SetOverride failed: %v", err)
	}
	if err := sess.SetOverride("r4", CategoryShort, true); err != nil {
		t.Fatalf("SetOverride failed: %v", err)
	}
	if err := sess.SetDeviceAssigned("Bedroom Echo", false); err != nil {
		t.Fatalf("SetDeviceAssigned failed: %v", err)
	}

	cleared := sess.ResetOverrides(CategoryShort, "")
	if cleared != 1 {
		t.Fatalf("ResetOverrides cleared %d, want 1 (only the visible record)", cleared)
	}
	if _, ok := sess.Overrides()["r4"]; !ok {
		t.Error("override on the hidden device's record should survive the reset")
	}
	if _, ok := sess.Overrides()["r2"]; ok {
		t.Error("override on the visible record should have been cleared")
	}
}

func TestSummarizeCountsExcludedRecordsOnce(t *testing.T) {
	// r2 repeats r1 and is also short: two flags, one exclusion.
	records := []Record{
		rec("r1", 100, "A", TypeGeneral, "stop"),
		rec("r2", 200, "A", TypeGeneral, "stop"),
		rec("r3", 300, "A", TypeGeneral, "turn on the porch lights"),
	}
	sess := NewSession(records, DefaultRules())

	sum := Summarize(sess.Visible(""))
	if sum.Short != 2 || sum.Duplicate != 1 {
		t.Errorf("per-category counts = short %d dup %d, want 2 and 1", sum.Short, sum.Duplicate)
	}
	if sum.EstimatedValid != 1 {
		t.Errorf("EstimatedValid = %d, want 1 (each excluded record subtracted once)", sum.EstimatedValid)
	}
	if dc := sum.PerDevice["A"]; dc.Total != 3 || dc.Valid != 1 {
		t.Errorf("PerDevice[A] = %+v, want 3 total 1 valid", dc)
	}
}

func TestSessionRestoresPersistedState(t *testing.T) {
	records := []Record{
		rec("r1", 100, "Kitchen Echo", TypeGeneral, "stop"),
		rec("r2", 200, "Bedroom Echo", TypeRoutinesOrTap, "good morning routine"),
	}
	settings := map[string]DeviceSetting{
		"Bedroom Echo": {Assigned: true, TextBased: true},
		"Gone Device":  {Assigned: false},
	}
	overrides := map[string]Override{
		"r1":   {Short: true},
		"gone": {Duplicate: true},
	}

	sess := NewSessionWith(records, DefaultRules(), settings, overrides)

	if f := flagsOf(t, sess.Records(), "r1"); f.Short {
		t.Error("restored short override was not applied")
	}
	if f := flagsOf(t, sess.Records(), "r2"); f.SystemReplacement {
		t.Error("restored text-based setting was not applied")
	}
	if _, ok := sess.Overrides()["gone"]; ok {
		t.Error("override for a record that no longer exists should be dropped")
	}
}
