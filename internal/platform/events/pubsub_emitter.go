package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/pubsub"

	"github.com/tablehub/api/internal/services"
)

// PubSubOrderEmitter publishes order lifecycle events to a Pub/Sub topic.
type PubSubOrderEmitter struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

// NewPubSubOrderEmitter constructs a Pub/Sub backed order event emitter.
func NewPubSubOrderEmitter(topic *pubsub.Topic) (*PubSubOrderEmitter, error) {
	if topic == nil {
		return nil, errors.New("pubsub order emitter: topic is required")
	}
	return &PubSubOrderEmitter{
		topic:   topic,
		marshal: json.Marshal,
	}, nil
}

// EmitOrderEvent publishes the event on the configured topic. Tenant and
// event type travel as attributes so subscribers can filter without decoding
// the payload.
func (p *PubSubOrderEmitter) EmitOrderEvent(ctx context.Context, msg services.OrderEventMessage) error {
	if p == nil || p.topic == nil {
		return errors.New("pubsub order emitter: not initialised")
	}

	data, err := p.marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal order event: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "type", msg.Type)
	setAttr(attrs, "tenantId", msg.TenantID)
	setAttr(attrs, "orderId", msg.OrderID)
	setAttr(attrs, "status", msg.Status)

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish order event: %w", err)
	}
	return nil
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
