package rules

import "faultgate/pkg/models"

// Engine classifies faults into failure categories.
type Engine interface {
	Apply(fault *models.Fault) []models.CategoryTag
}

// NoopEngine returns no tags.
type NoopEngine struct{}

// Apply returns an empty tag list.
func (n *NoopEngine) Apply(fault *models.Fault) []models.CategoryTag {
	return nil
}
