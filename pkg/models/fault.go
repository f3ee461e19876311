package models

import (
	"fmt"
	"strings"
)

// Severity classifies a submitted fault.
type Severity int

const (
	SeverityWarn Severity = iota
	SeverityError
	SeverityFatal
)

// ParseSeverity converts a level string into a Severity.
func ParseSeverity(s string) (Severity, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "WARN", "WARNING", "P2":
		return SeverityWarn, nil
	case "ERROR", "ERR", "P1":
		return SeverityError, nil
	case "FATAL", "CRITICAL", "P0":
		return SeverityFatal, nil
	default:
		return SeverityWarn, fmt.Errorf("unknown severity %q", s)
	}
}

// String returns the canonical level name.
func (s Severity) String() string {
	switch s {
	case SeverityFatal:
		return "FATAL"
	case SeverityError:
		return "ERROR"
	default:
		return "WARN"
	}
}

// MarshalJSON renders the severity as its level name.
func (s Severity) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// UnmarshalJSON accepts level names and common aliases.
func (s *Severity) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(string(data), `"`)
	parsed, err := ParseSeverity(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Fault is one occurrence of a failure reported by a producer.
type Fault struct {
	ExceptionType string        `json:"exception_type"`
	Message       string        `json:"exception_message,omitempty"`
	Location      string        `json:"location,omitempty"`
	Severity      Severity      `json:"level"`
	RootCause     string        `json:"root_cause,omitempty"`
	StackExcerpt  string        `json:"stacktrace,omitempty"`
	DeviceID      string        `json:"device_id,omitempty"`
	Tags          []CategoryTag `json:"tags,omitempty"`
}

// CategoryTag labels a fault with a matched classification rule.
type CategoryTag struct {
	ID       string `json:"id,omitempty"`
	Name     string `json:"name,omitempty"`
	Category string `json:"category,omitempty"`
	Level    string `json:"severity,omitempty"`
}
