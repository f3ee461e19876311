package buffer

import (
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"faultgate/pkg/models"
)

// Config controls aggregation behavior.
type Config struct {
	Window time.Duration
}

// Aggregator folds repeated occurrences of the same fault into one pending
// alert per rolling window. FATAL faults bypass the buffer entirely.
type Aggregator struct {
	mu      sync.Mutex
	window  time.Duration
	entries map[string]*bufferEntry
	pending []*models.Alert
	now     func() time.Time
}

type bufferEntry struct {
	count       int
	firstSeen   time.Time
	lastSeen    time.Time
	occurrences []time.Time
	alert       *models.Alert
}

// Stats summarizes the buffer state.
type Stats struct {
	BufferedExceptions  int `json:"buffered_unique_exceptions"`
	BufferedOccurrences int `json:"total_buffered_occurrences"`
	PendingAlerts       int `json:"pending_alerts"`
}

// New creates an aggregator.
func New(cfg Config) *Aggregator {
	if cfg.Window <= 0 {
		cfg.Window = 5 * time.Minute
	}
	return &Aggregator{
		window:  cfg.Window,
		entries: make(map[string]*bufferEntry),
		now:     time.Now,
	}
}

// Fingerprint derives the dedup key for a fault. Unrelated (type, location)
// pairs map to distinct keys for any realistic fault cardinality.
func Fingerprint(exceptionType, location string) string {
	if location == "" {
		location = "unknown"
	}
	h := fnv.New64a()
	h.Write([]byte(exceptionType))
	h.Write([]byte{':'})
	h.Write([]byte(location))
	return fmt.Sprintf("%016x", h.Sum64())
}

// Submit records one fault occurrence and decides whether the caller must
// notify now. It returns (false, nil, nil) when the occurrence was folded
// into an open window.
func (a *Aggregator) Submit(fault models.Fault) (bool, *models.Alert, error) {
	if fault.ExceptionType == "" {
		return false, nil, fmt.Errorf("exception type is required")
	}
	if fault.Severity < models.SeverityWarn || fault.Severity > models.SeverityFatal {
		return false, nil, fmt.Errorf("invalid severity %d", fault.Severity)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	id := Fingerprint(fault.ExceptionType, fault.Location)

	// FATAL is never buffered and never touches existing entries.
	if fault.Severity == models.SeverityFatal {
		alert := newAlert(id, fault, now, false)
		a.pending = append(a.pending, alert)
		return true, alert.Clone(), nil
	}

	entry, ok := a.entries[id]
	if ok && now.Sub(entry.firstSeen) < a.window {
		entry.count++
		entry.lastSeen = now
		entry.occurrences = append(entry.occurrences, now)
		entry.alert.Count = entry.count
		entry.alert.LastOccurrence = now
		entry.alert.Occurrences = entry.occurrences
		return false, nil, nil
	}

	// First occurrence, or the prior window elapsed: emit and re-arm.
	alert := newAlert(id, fault, now, ok)
	a.entries[id] = &bufferEntry{
		count:       1,
		firstSeen:   now,
		lastSeen:    now,
		occurrences: alert.Occurrences,
		alert:       alert,
	}
	a.pending = append(a.pending, alert)
	return true, alert.Clone(), nil
}

// DrainPending returns snapshots of every alert queued since the last drain
// and clears the queue. Counts reflect occurrences folded up to the drain.
func (a *Aggregator) DrainPending() []*models.Alert {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.pending) == 0 {
		return nil
	}
	out := make([]*models.Alert, 0, len(a.pending))
	for _, alert := range a.pending {
		out = append(out, alert.Clone())
	}
	a.pending = nil
	return out
}

// PendingSuppressed snapshots the fingerprints still inside their window.
func (a *Aggregator) PendingSuppressed() []models.SuppressedSummary {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	out := make([]models.SuppressedSummary, 0, len(a.entries))
	for id, entry := range a.entries {
		remaining := a.window - now.Sub(entry.firstSeen)
		if remaining <= 0 {
			continue
		}
		out = append(out, models.SuppressedSummary{
			ID:               id,
			ExceptionType:    entry.alert.ExceptionType,
			Location:         entry.alert.Location,
			Count:            entry.count,
			RemainingSeconds: remaining.Seconds(),
			Occurrences:      append([]time.Time(nil), entry.occurrences...),
		})
	}
	return out
}

// Sweep evicts entries whose window has fully elapsed at the given time and
// returns the number removed. Safe to call repeatedly.
func (a *Aggregator) Sweep(now time.Time) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	evicted := 0
	for id, entry := range a.entries {
		if now.Sub(entry.firstSeen) >= a.window {
			delete(a.entries, id)
			evicted++
		}
	}
	return evicted
}

// Stats reports buffer counters after evicting expired entries.
func (a *Aggregator) Stats() Stats {
	a.Sweep(a.clock())

	a.mu.Lock()
	defer a.mu.Unlock()

	total := 0
	for _, entry := range a.entries {
		total += entry.count
	}
	return Stats{
		BufferedExceptions:  len(a.entries),
		BufferedOccurrences: total,
		PendingAlerts:       len(a.pending),
	}
}

// Reset clears the buffer and the pending queue.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = make(map[string]*bufferEntry)
	a.pending = nil
}

// SetNow overrides the time source.
func (a *Aggregator) SetNow(now func() time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.now = now
}

func (a *Aggregator) clock() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.now()
}

func newAlert(id string, fault models.Fault, now time.Time, rearmed bool) *models.Alert {
	return &models.Alert{
		ID:              id,
		ExceptionType:   fault.ExceptionType,
		Message:         fault.Message,
		Location:        fault.Location,
		Severity:        fault.Severity,
		RootCause:       fault.RootCause,
		StackExcerpt:    fault.StackExcerpt,
		DeviceID:        fault.DeviceID,
		Count:           1,
		FirstOccurrence: now,
		LastOccurrence:  now,
		Occurrences:     []time.Time{now},
		ShouldSend:      true,
		IsAggregated:    rearmed,
		Tags:            fault.Tags,
	}
}
