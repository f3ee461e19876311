package models

import "time"

// DeviceActivity is one ranked device in a frequency report.
type DeviceActivity struct {
	DeviceID       string `json:"device_id"`
	IP             string `json:"ip,omitempty"`
	Total          int    `json:"total"`
	PeakPerMinute  int    `json:"peak_per_minute"`
	Classification string `json:"classification"`
}

// DeviceReport is the result of one frequency analysis run.
//
// A missing log source is not an error: the report comes back with zero
// devices and Reason explaining why.
type DeviceReport struct {
	WindowStart   time.Time        `json:"window_start"`
	WindowEnd     time.Time        `json:"window_end"`
	WindowMinutes int              `json:"window_minutes"`
	TopN          int              `json:"top_n"`
	Devices       []DeviceActivity `json:"devices"`
	TotalMessages int              `json:"total_messages"`
	TPS           float64          `json:"tps"`
	LinesScanned  int              `json:"lines_scanned"`
	Reason        string           `json:"reason,omitempty"`
	Notes         []string         `json:"notes,omitempty"`
}
