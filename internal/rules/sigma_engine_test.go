package rules

import (
	"os"
	"path/filepath"
	"testing"

	"faultgate/pkg/models"
)

const npeRule = `title: Null pointer faults
id: fg-npe
level: high
logsource:
  category: null-pointer
detection:
  selection:
    ExceptionType: NullPointerException
  condition: selection
`

const timeoutRule = `title: Network timeouts
id: fg-timeout
level: medium
logsource:
  category: network-timeout
detection:
  selection:
    ExceptionType|contains: Timeout
  condition: selection
`

func writeRules(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0644); err != nil {
			t.Fatalf("write rule %s: %v", name, err)
		}
	}
	return dir
}

func TestSigmaEngineTagsMatchingFaults(t *testing.T) {
	dir := writeRules(t, map[string]string{
		"npe.yml":     npeRule,
		"timeout.yml": timeoutRule,
	})

	engine, stats, err := NewSigmaEngine(dir)
	if err != nil {
		t.Fatalf("load rules: %v", err)
	}
	if stats.Loaded != 2 {
		t.Fatalf("expected 2 loaded rules, got %+v", stats)
	}

	tags := engine.Apply(&models.Fault{
		ExceptionType: "NullPointerException",
		Location:      "BatteryService.java:234",
		Severity:      models.SeverityError,
	})
	if len(tags) != 1 {
		t.Fatalf("expected 1 tag, got %+v", tags)
	}
	if tags[0].ID != "fg-npe" || tags[0].Category != "null-pointer" || tags[0].Level != "high" {
		t.Fatalf("unexpected tag: %+v", tags[0])
	}

	tags = engine.Apply(&models.Fault{
		ExceptionType: "SocketTimeoutException",
		Severity:      models.SeverityWarn,
	})
	if len(tags) != 1 || tags[0].ID != "fg-timeout" {
		t.Fatalf("expected the timeout rule to match, got %+v", tags)
	}

	if tags := engine.Apply(&models.Fault{ExceptionType: "IllegalStateException"}); tags != nil {
		t.Fatalf("expected no tags for an unclassified fault, got %+v", tags)
	}
}

func TestSigmaEngineSkipsInvalidRules(t *testing.T) {
	dir := writeRules(t, map[string]string{
		"ok.yml":     npeRule,
		"broken.yml": "detection: [not a rule",
	})

	_, stats, err := NewSigmaEngine(dir)
	if err != nil {
		t.Fatalf("load rules: %v", err)
	}
	if stats.Loaded != 1 || stats.SkippedInvalid != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}
