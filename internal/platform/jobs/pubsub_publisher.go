// Package jobs pushes asynchronous work to Pub/Sub for downstream consumers.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/pubsub"

	"github.com/lumalingua/api/internal/services"
)

// PubSubCommentPublisher publishes comment lifecycle events to the topic
// consumed by the moderation digest and notification jobs.
type PubSubCommentPublisher struct {
	topic *pubsub.Topic
}

// NewPubSubCommentPublisher wraps the given topic.
func NewPubSubCommentPublisher(topic *pubsub.Topic) (*PubSubCommentPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub comment publisher: topic is required")
	}
	return &PubSubCommentPublisher{topic: topic}, nil
}

// PublishCommentEvent enqueues the event and waits for the server ack. The
// JSON body carries the full event; attributes duplicate the fields consumers
// filter on.
func (p *PubSubCommentPublisher) PublishCommentEvent(ctx context.Context, event services.CommentEvent) error {
	if p == nil || p.topic == nil {
		return errors.New("pubsub comment publisher: not initialised")
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal comment event: %w", err)
	}

	attrs := make(map[string]string, 4)
	for key, value := range map[string]string{
		"type":      event.Type,
		"commentId": event.CommentID,
		"pageRef":   event.PageRef,
		"status":    string(event.Status),
	} {
		if v := strings.TrimSpace(value); v != "" {
			attrs[key] = v
		}
	}

	result := p.topic.Publish(ctx, &pubsub.Message{Data: data, Attributes: attrs})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish comment event: %w", err)
	}
	return nil
}
