// Package analyzer detects devices reporting at anomalous rates by scanning
// protocol logs backward over a bounded time window.
package analyzer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"

	"faultgate/internal/logger"
	"faultgate/internal/logscan"
	"faultgate/pkg/models"
)

// Classification labels for ranked devices. Thresholds are domain policy
// (a "superhigh-frequency device" reports more than 30 times a minute),
// not configuration.
const (
	ClassAnomalous = "anomalous"
	ClassElevated  = "elevated"
	ClassNormal    = "normal"

	anomalousPeakPerMinute = 30
	elevatedPeakPerMinute  = 15
)

const (
	// DefaultWindowMinutes is the lookback used when the caller passes 0.
	DefaultWindowMinutes = 300
	// DefaultTopN is the ranking size used when the caller passes 0.
	DefaultTopN = 3
)

// Timestamps must be minute-precision, zero-padded and fixed-width: the
// backward-stop comparison is a plain string compare and breaks on any
// variable-width format.
var timestampPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2} \d{2}:\d{2}`)

// Lines carry a device identifier and a source IP token.
var deviceInfoPattern = regexp.MustCompile(`设备\(([^)]+)\)\s+IP\(([^)]+)\)`)

var sentinelDeviceIDs = map[string]struct{}{
	"":        {},
	"未知":      {},
	"unknown": {},
	"null":    {},
}

const minuteLayout = "2006-01-02 15:04"

// Config controls the analyzer's log source and scan bounds.
type Config struct {
	// LogDir is the directory holding protocol logs.
	LogDir string
	// Files are the base log file names; rotated siblings (name.*, including
	// .gz) are picked up automatically.
	Files []string
	// MaxLines bounds the total number of lines scanned across all files.
	MaxLines int
	// BlockSize is passed through to the backward scanner.
	BlockSize int
}

// Analyzer ranks devices by report volume over a recent window. It holds no
// cross-call state; concurrent Analyze calls are independent.
type Analyzer struct {
	cfg Config
	now func() time.Time
}

// New creates an analyzer.
func New(cfg Config) *Analyzer {
	if len(cfg.Files) == 0 {
		cfg.Files = []string{"protocol-message-tcp1801.log"}
	}
	if cfg.MaxLines <= 0 {
		cfg.MaxLines = logscan.DefaultMaxLines
	}
	return &Analyzer{cfg: cfg, now: time.Now}
}

// SetNow overrides the time source.
func (a *Analyzer) SetNow(now func() time.Time) {
	a.now = now
}

type deviceCounters struct {
	totals    map[string]int
	perMinute map[string]map[string]int
	lastIP    map[string]string
}

// Analyze scans the configured logs backward until windowMinutes have been
// covered and returns the topN devices ranked by total report volume.
// A missing log source yields an empty report with a Reason, not an error.
func (a *Analyzer) Analyze(ctx context.Context, windowMinutes, topN int) (*models.DeviceReport, error) {
	if windowMinutes <= 0 {
		windowMinutes = DefaultWindowMinutes
	}
	if topN <= 0 {
		topN = DefaultTopN
	}

	now := a.now()
	windowStart := now.Add(-time.Duration(windowMinutes) * time.Minute).Truncate(time.Minute)
	startPrefix := windowStart.Format(minuteLayout)

	report := &models.DeviceReport{
		WindowStart:   windowStart,
		WindowEnd:     now,
		WindowMinutes: windowMinutes,
		TopN:          topN,
	}

	files := a.resolveFiles()
	if len(files) == 0 {
		report.Reason = fmt.Sprintf("no log source found under %s (%v)", a.cfg.LogDir, a.cfg.Files)
		return report, nil
	}

	counters := &deviceCounters{
		totals:    make(map[string]int),
		perMinute: make(map[string]map[string]int),
		lastIP:    make(map[string]string),
	}

	boundaryReached := false
	for _, path := range files {
		if boundaryReached || report.LinesScanned >= a.cfg.MaxLines {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		scanned, stopped, err := a.scanFile(ctx, path, startPrefix, a.cfg.MaxLines-report.LinesScanned, counters)
		report.LinesScanned += scanned
		if err != nil {
			// One unreadable file never fails the whole run.
			logger.Warnf("Skipping unreadable log file %s: %v", path, err)
			report.Notes = append(report.Notes, fmt.Sprintf("skipped %s: %v", filepath.Base(path), err))
			continue
		}
		// Files are processed newest-first; once one crosses the window
		// boundary everything older is out of range too.
		if stopped {
			boundaryReached = true
		}
	}

	a.rank(counters, report)
	return report, nil
}

// scanFile feeds one file's in-window lines into the counters. It returns
// the number of lines read and whether the window boundary was crossed.
func (a *Analyzer) scanFile(ctx context.Context, path, startPrefix string, maxLines int, counters *deviceCounters) (int, bool, error) {
	stop := func(line string) bool {
		m := timestampPattern.FindString(line)
		return m != "" && m < startPrefix
	}

	s, err := logscan.Open(path, logscan.Options{
		MaxLines:  maxLines,
		BlockSize: a.cfg.BlockSize,
		Stop:      stop,
	})
	if err != nil {
		return 0, false, err
	}
	defer s.Close()

	for s.Next() {
		if s.LinesRead()%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return s.LinesRead(), s.Stopped(), err
			}
		}

		line := s.Line()
		minute := timestampPattern.FindString(line)
		if minute == "" || minute < startPrefix {
			continue
		}

		info := deviceInfoPattern.FindStringSubmatch(line)
		if info == nil {
			continue
		}
		deviceID := info[1]
		if _, skip := sentinelDeviceIDs[deviceID]; skip {
			continue
		}

		counters.totals[deviceID]++
		bucket := counters.perMinute[minute]
		if bucket == nil {
			bucket = make(map[string]int)
			counters.perMinute[minute] = bucket
		}
		bucket[deviceID]++
		// Scan order is newest-first, so the first IP seen is the latest.
		if _, ok := counters.lastIP[deviceID]; !ok {
			counters.lastIP[deviceID] = info[2]
		}
	}
	return s.LinesRead(), s.Stopped(), s.Err()
}

func (a *Analyzer) rank(counters *deviceCounters, report *models.DeviceReport) {
	type devStat struct {
		id    string
		total int
		peak  int
	}

	stats := make([]devStat, 0, len(counters.totals))
	for id, total := range counters.totals {
		report.TotalMessages += total
		peak := 0
		for _, bucket := range counters.perMinute {
			if n := bucket[id]; n > peak {
				peak = n
			}
		}
		stats = append(stats, devStat{id: id, total: total, peak: peak})
	}

	if report.WindowMinutes > 0 {
		report.TPS = float64(report.TotalMessages) / float64(report.WindowMinutes*60)
	}

	sort.Slice(stats, func(i, j int) bool {
		if stats[i].total != stats[j].total {
			return stats[i].total > stats[j].total
		}
		return stats[i].id < stats[j].id
	})
	if len(stats) > report.TopN {
		stats = stats[:report.TopN]
	}

	for _, st := range stats {
		report.Devices = append(report.Devices, models.DeviceActivity{
			DeviceID:       st.id,
			IP:             counters.lastIP[st.id],
			Total:          st.total,
			PeakPerMinute:  st.peak,
			Classification: classify(st.peak),
		})
	}
}

func classify(peak int) string {
	switch {
	case peak > anomalousPeakPerMinute:
		return ClassAnomalous
	case peak > elevatedPeakPerMinute:
		return ClassElevated
	default:
		return ClassNormal
	}
}

// resolveFiles expands the configured base names into existing paths,
// including rotated siblings. The base file is newest and goes first.
func (a *Analyzer) resolveFiles() []string {
	var out []string
	for _, name := range a.cfg.Files {
		base := filepath.Join(a.cfg.LogDir, name)
		if _, err := os.Stat(base); err == nil {
			out = append(out, base)
		}
		rotated, err := filepath.Glob(base + ".*")
		if err != nil {
			continue
		}
		sort.Strings(rotated)
		out = append(out, rotated...)
	}
	return out
}
