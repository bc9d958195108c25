package eventing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"wastefee-cloud/internal/observability/metrics"
)

// DefaultSubjectPrefix prefixes forwarded event subjects.
const DefaultSubjectPrefix = "wastefee."

// MessagePublisher is the part of a NATS connection the forwarder uses.
type MessagePublisher interface {
	Publish(subject string, data []byte) error
}

// ConnectNATS dials the NATS server at url.
func ConnectNATS(url string, log *zap.Logger) (*nats.Conn, error) {
	nc, err := nats.Connect(url, nats.Name("wastefee-cloud"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	if log != nil {
		log.Info("connected to NATS", zap.String("url", url))
	}
	return nc, nil
}

// NATSForwarder publishes envelopes to NATS subjects behind a circuit
// breaker.
type NATSForwarder struct {
	conn    MessagePublisher
	breaker *gobreaker.CircuitBreaker
	prefix  string
	log     *zap.Logger
}

// NewNATSForwarder constructs a forwarder; an empty prefix uses
// DefaultSubjectPrefix.
func NewNATSForwarder(conn MessagePublisher, prefix string, log *zap.Logger) (*NATSForwarder, error) {
	if conn == nil {
		return nil, errors.New("nats forwarder: nil connection")
	}
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	if log == nil {
		log = zap.NewNop()
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "nats-forwarder",
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return &NATSForwarder{conn: conn, breaker: breaker, prefix: prefix, log: log}, nil
}

// Subject returns the subject an event type is forwarded to.
func (f *NATSForwarder) Subject(eventType string) string {
	return f.prefix + eventType
}

// Handle forwards one event. It is an EventHandler.
func (f *NATSForwarder) Handle(ctx context.Context, event any) error {
	env, ok := EnvelopeFromContext(ctx)
	if !ok {
		built, err := BuildEnvelope(event, MetaFromContext(ctx))
		if err != nil {
			return err
		}
		env = built
	}
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	subject := f.Subject(env.EventType)

	_, err = f.breaker.Execute(func() (interface{}, error) {
		return nil, f.conn.Publish(subject, data)
	})
	switch {
	case err == nil:
		metrics.IncEventForward(subject, metrics.ResultSuccess)
		return nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.IncEventForward(subject, metrics.ResultRejected)
	default:
		metrics.IncEventForward(subject, metrics.ResultError)
	}
	f.log.Warn("event forward failed",
		zap.String("subject", subject),
		zap.String("event_id", env.EventID),
		zap.Error(err),
	)
	return fmt.Errorf("forward %s: %w", subject, err)
}

// State reports the breaker state.
func (f *NATSForwarder) State() gobreaker.State {
	return f.breaker.State()
}
