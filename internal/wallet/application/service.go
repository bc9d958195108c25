package application

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock uses time.Now in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// EventPublisher emits ledger events after a commit.
type EventPublisher interface {
	Publish(ctx context.Context, event any) error
}

// Option configures the wallet services.
type Option func(*options)

type options struct {
	newID  func() string
	logger *zap.Logger
}

// WithIDGenerator overrides the uuid generator.
func WithIDGenerator(fn func() string) Option {
	return func(o *options) {
		if fn != nil {
			o.newID = fn
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{newID: uuid.NewString, logger: zap.NewNop()}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// publish emits an event and only logs failures: the ledger is already
// committed at this point.
func publish(ctx context.Context, publisher EventPublisher, logger *zap.Logger, event any) {
	if publisher == nil {
		return
	}
	if err := publisher.Publish(ctx, event); err != nil {
		logger.Warn("ledger event publish failed", zap.String("event", eventName(event)), zap.Error(err))
	}
}
