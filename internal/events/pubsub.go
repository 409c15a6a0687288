package events

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"
)

// PubSubPublisher publishes lifecycle events to a Google Pub/Sub topic.
type PubSubPublisher struct {
	client    *pubsub.Client
	publisher *pubsub.Publisher
	topic     string
	logger    zerolog.Logger
}

// PubSubConfig holds configuration for the Pub/Sub publisher.
type PubSubConfig struct {
	ProjectID string
	Topic     string
	Logger    zerolog.Logger
}

// NewPubSubPublisher creates a new Pub/Sub publisher.
func NewPubSubPublisher(ctx context.Context, cfg PubSubConfig) (*PubSubPublisher, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	return &PubSubPublisher{
		client:    client,
		publisher: client.Publisher(cfg.Topic),
		topic:     cfg.Topic,
		logger:    cfg.Logger,
	}, nil
}

// Publish serializes the event and hands it to the topic publisher. The
// publish result is checked in the background; a failure is logged and the
// event dropped. Request handling never blocks on the broker.
func (p *PubSubPublisher) Publish(ctx context.Context, event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		p.logger.Error().Err(err).Str("type", event.Type).Msg("failed to serialize event")
		return
	}

	result := p.publisher.Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"type":      event.Type,
			"tenant_id": event.TenantID,
		},
	})

	go func() {
		// Detach from the request context so in-flight publishes survive the
		// response.
		id, err := result.Get(context.Background())
		if err != nil {
			p.logger.Error().Err(err).
				Str("type", event.Type).
				Str("terminal_id", event.TerminalID).
				Msg("failed to publish event")
			return
		}
		p.logger.Debug().
			Str("type", event.Type).
			Str("message_id", id).
			Msg("event published")
	}()
}

// Close flushes pending publishes and closes the client.
func (p *PubSubPublisher) Close() error {
	p.publisher.Stop()
	return p.client.Close()
}

// Ensure PubSubPublisher implements Publisher.
var _ Publisher = (*PubSubPublisher)(nil)
