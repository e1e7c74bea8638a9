// Package notify delivers moderation notifications. Delivery is best effort:
// callers log and count failures but never undo a committed transition.
package notify

import (
	"context"
	"errors"
	"time"

	"github.com/jmerrifield20/marketplace-console/internal/moderation/model"
	"go.uber.org/zap"
)

// Notice is one notification about an entity.
type Notice struct {
	Event     model.EventType
	Kind      model.Kind
	EntityID  string
	Recipient model.Recipient
	Data      map[string]string
	Reason    string
	Timestamp time.Time
}

// Dispatcher delivers notices.
type Dispatcher interface {
	Dispatch(ctx context.Context, n Notice) error
}

// Waiter is a Dispatcher that can hold a notice until it has room for it.
type Waiter interface {
	Dispatcher
	DispatchWait(ctx context.Context, n Notice) error
}

// MetricsRecorder is an optional callback for recording delivery outcomes.
type MetricsRecorder func(event model.EventType, success bool)

// LogDispatcher only logs notices. Use in development or when no
// notification endpoint is configured.
type LogDispatcher struct {
	logger *zap.Logger
}

// NewLogDispatcher creates a LogDispatcher.
func NewLogDispatcher(logger *zap.Logger) *LogDispatcher {
	return &LogDispatcher{logger: logger}
}

func (d *LogDispatcher) Dispatch(_ context.Context, n Notice) error {
	d.logger.Info("notification (log only)",
		zap.String("event", string(n.Event)),
		zap.String("kind", string(n.Kind)),
		zap.String("entity_id", n.EntityID),
		zap.String("to", n.Recipient.Email),
	)
	return nil
}

// Multi sends every notice to all dispatchers and joins their errors.
type Multi []Dispatcher

func (m Multi) Dispatch(ctx context.Context, n Notice) error {
	var errs []error
	for _, d := range m {
		if err := d.Dispatch(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
