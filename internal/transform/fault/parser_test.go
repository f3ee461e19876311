package fault

import (
	"testing"

	"faultgate/pkg/models"
)

func TestParseFullPayload(t *testing.T) {
	payload := []byte(`{
		"exception_type": "NullPointerException",
		"exception_message": "Cannot invoke method on null object",
		"location": "BatteryService.java:234",
		"level": "ERROR",
		"root_cause": "battery_data is null",
		"stacktrace": "at com.bms.BatteryService.update(BatteryService.java:234)",
		"device_id": "YJP00000000321"
	}`)

	f, err := Parse(payload)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if f.ExceptionType != "NullPointerException" {
		t.Fatalf("unexpected type: %q", f.ExceptionType)
	}
	if f.Severity != models.SeverityError {
		t.Fatalf("unexpected severity: %v", f.Severity)
	}
	if f.Location != "BatteryService.java:234" || f.DeviceID != "YJP00000000321" {
		t.Fatalf("unexpected fields: %+v", f)
	}
}

func TestParseAliasesAndDefaults(t *testing.T) {
	f, err := Parse([]byte(`{"type": "OutOfMemoryError", "msg": "heap space", "severity": "fatal"}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if f.ExceptionType != "OutOfMemoryError" || f.Message != "heap space" {
		t.Fatalf("aliases not honored: %+v", f)
	}
	if f.Severity != models.SeverityFatal {
		t.Fatalf("expected FATAL, got %v", f.Severity)
	}

	f, err = Parse([]byte(`{"type": "SQLException"}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if f.Severity != models.SeverityError {
		t.Fatalf("missing level must default to ERROR, got %v", f.Severity)
	}
}

func TestParseRejectsBadPayloads(t *testing.T) {
	if _, err := Parse([]byte(`{`)); err == nil {
		t.Fatalf("malformed JSON must fail")
	}
	if _, err := Parse([]byte(`{"message": "no type"}`)); err == nil {
		t.Fatalf("missing exception type must fail")
	}
	if _, err := Parse([]byte(`{"type": "X", "level": "panic"}`)); err == nil {
		t.Fatalf("unknown severity must fail")
	}
}
