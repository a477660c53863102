package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Event is what connected clients receive on their personal channel.
type Event struct {
	Type          string         `json:"type"`
	Title         string         `json:"title"`
	Message       string         `json:"message"`
	ReferenceType string         `json:"referenceType,omitempty"`
	ReferenceID   string         `json:"referenceId,omitempty"`
	Data          map[string]any `json:"data,omitempty"`
}

// Publisher pushes events onto per-user Redis channels. Socket gateways
// subscribe to the channels of their connected users and forward events.
type Publisher struct {
	client *redis.Client
}

func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{client: client}
}

func UserChannel(userID string) string {
	return "user:" + userID
}

func (p *Publisher) PublishToUser(ctx context.Context, userID string, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal realtime event: %w", err)
	}
	if err := p.client.Publish(ctx, UserChannel(userID), payload).Err(); err != nil {
		return fmt.Errorf("publish realtime event: %w", err)
	}
	return nil
}
