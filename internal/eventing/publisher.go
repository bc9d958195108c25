package eventing

import (
	"context"
	"errors"
)

// Publisher wraps events in an envelope and hands them to the bus.
type Publisher struct {
	bus EventBus
}

// NewPublisher constructs a publisher.
func NewPublisher(bus EventBus) (*Publisher, error) {
	if bus == nil {
		return nil, errors.New("eventing publisher: nil bus")
	}
	return &Publisher{bus: bus}, nil
}

// Publish builds the envelope and delivers the event with it in context.
func (p *Publisher) Publish(ctx context.Context, event any) error {
	env, err := BuildEnvelope(event, MetaFromContext(ctx))
	if err != nil {
		return err
	}
	return p.bus.Publish(WithEnvelope(ctx, env), event)
}

// Subscribe delegates to the underlying bus.
func (p *Publisher) Subscribe(eventType string, handler EventHandler) {
	p.bus.Subscribe(eventType, handler)
}
