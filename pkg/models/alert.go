package models

import "time"

// Alert is an emitted notification for a fault fingerprint.
//
// The aggregator keeps the representative Alert of a buffered fingerprint
// alive and updates its Count and LastOccurrence while the window is open;
// copies handed to callers are detached snapshots.
type Alert struct {
	ID              string        `json:"id"`
	ExceptionType   string        `json:"exception_type"`
	Message         string        `json:"exception_message,omitempty"`
	Location        string        `json:"location,omitempty"`
	Severity        Severity      `json:"level"`
	RootCause       string        `json:"root_cause,omitempty"`
	StackExcerpt    string        `json:"stacktrace,omitempty"`
	DeviceID        string        `json:"device_id,omitempty"`
	Count           int           `json:"count"`
	FirstOccurrence time.Time     `json:"first_occurrence"`
	LastOccurrence  time.Time     `json:"last_occurrence"`
	Occurrences     []time.Time   `json:"occurrences,omitempty"`
	ShouldSend      bool          `json:"should_send"`
	IsAggregated    bool          `json:"is_aggregated"`
	Tags            []CategoryTag `json:"tags,omitempty"`
}

// Clone returns a detached copy of the alert.
func (a *Alert) Clone() *Alert {
	if a == nil {
		return nil
	}
	cp := *a
	if len(a.Occurrences) > 0 {
		cp.Occurrences = append([]time.Time(nil), a.Occurrences...)
	}
	if len(a.Tags) > 0 {
		cp.Tags = append([]CategoryTag(nil), a.Tags...)
	}
	return &cp
}

// SuppressedSummary describes a fingerprint still folding occurrences
// inside its buffer window.
type SuppressedSummary struct {
	ID               string      `json:"id"`
	ExceptionType    string      `json:"exception_type"`
	Location         string      `json:"location,omitempty"`
	Count            int         `json:"count"`
	RemainingSeconds float64     `json:"time_remaining_seconds"`
	Occurrences      []time.Time `json:"occurrences,omitempty"`
}
