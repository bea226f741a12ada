package adapter

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"copytrade/internal/domain"
)

// MultiPublisher forwards every copy result to each configured sink
type MultiPublisher struct {
	sinks []domain.EventPublisher
}

var _ domain.EventPublisher = (*MultiPublisher)(nil)

// NewMultiPublisher combines sinks. It returns nil when no sink is given.
func NewMultiPublisher(sinks ...domain.EventPublisher) domain.EventPublisher {
	var live []domain.EventPublisher
	for _, s := range sinks {
		if s != nil {
			live = append(live, s)
		}
	}
	switch len(live) {
	case 0:
		return nil
	case 1:
		return live[0]
	}
	return &MultiPublisher{sinks: live}
}

// PublishCopyResult publishes to every sink; one failing sink does not stop the others
func (m *MultiPublisher) PublishCopyResult(ctx context.Context, brokerID uuid.UUID, result domain.CopyResult) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.PublishCopyResult(ctx, brokerID, result); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink
func (m *MultiPublisher) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
