// Package review publishes merge corrections to a Kafka topic so a human
// review queue can pick them up. Delivery is best effort: a correction is
// already persisted in the event row and the run's audit record before it is
// published, so losing the broker loses a notification, not the data.
package review

import (
	"context"

	"github.com/google/uuid"

	"calsync/internal/calendar/reconcile"
)

// Publisher delivers correction flags to the review queue.
type Publisher interface {
	Publish(ctx context.Context, runID uuid.UUID, jobName string, corrections []reconcile.Correction) error
	Close()
}

// Noop discards corrections. Used when no broker is configured.
type Noop struct{}

func (Noop) Publish(context.Context, uuid.UUID, string, []reconcile.Correction) error {
	return nil
}

func (Noop) Close() {}
