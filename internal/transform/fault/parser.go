// Package fault normalizes fault payloads submitted by producers.
package fault

import (
	"encoding/json"
	"fmt"
	"strings"

	"faultgate/pkg/models"
)

// Parse converts a JSON fault payload into a normalized Fault.
//
// Producers are not uniform: field aliases from older reporters are
// accepted, the severity defaults to ERROR when absent.
func Parse(data []byte) (*models.Fault, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode fault payload: %w", err)
	}

	f := &models.Fault{
		ExceptionType: getString(raw, "exception_type", "type", "exception"),
		Message:       getString(raw, "exception_message", "message", "msg"),
		Location:      getString(raw, "location", "source"),
		RootCause:     getString(raw, "root_cause", "cause"),
		StackExcerpt:  getString(raw, "stacktrace", "stack_excerpt", "stack"),
		DeviceID:      getString(raw, "device_id", "device"),
	}

	if f.ExceptionType == "" {
		return nil, fmt.Errorf("fault payload has no exception type")
	}

	levelStr := getString(raw, "level", "severity")
	if levelStr == "" {
		f.Severity = models.SeverityError
	} else {
		sev, err := models.ParseSeverity(levelStr)
		if err != nil {
			return nil, err
		}
		f.Severity = sev
	}

	return f, nil
}

func getString(root map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		v, ok := root[key]
		if !ok {
			continue
		}
		switch val := v.(type) {
		case string:
			if trimmed := strings.TrimSpace(val); trimmed != "" {
				return trimmed
			}
		case float64:
			if val == float64(int64(val)) {
				return fmt.Sprintf("%d", int64(val))
			}
			return fmt.Sprintf("%f", val)
		case bool:
			if val {
				return "true"
			}
			return "false"
		}
	}
	return ""
}
