package pipeline

import "faultgate/pkg/models"

// AlertWriter delivers alert batches to a notification sink.
type AlertWriter interface {
	WriteAlerts(alerts []*models.Alert) error
	Close() error
}
