package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// EventType represents the type of event being broadcast
type EventType string

const (
	EventTypeSessionStarted EventType = "session.started"
	EventTypeTurnCompleted  EventType = "turn.completed"
	EventTypeTurnFailed     EventType = "turn.failed"
	EventTypeLevelUp        EventType = "session.level_up"
	EventTypeSaveFailed     EventType = "session.save_failed"
)

// Event represents a generic event structure
type Event struct {
	Type     EventType              `json:"type"`
	Username string                 `json:"username"`
	Data     map[string]interface{} `json:"data,omitempty"`
}

// Broadcaster publishes session events to Redis Pub/Sub for SSE distribution
type Broadcaster struct {
	redisClient *redis.Client
	logger      *slog.Logger
}

// NewBroadcaster creates a new event broadcaster
func NewBroadcaster(redisClient *redis.Client, logger *slog.Logger) *Broadcaster {
	return &Broadcaster{
		redisClient: redisClient,
		logger:      logger,
	}
}

// Channel is the pub/sub channel carrying one user's events.
func Channel(username string) string {
	return "session-events:" + username
}

// PublishSessionStarted publishes a session.started event
func (b *Broadcaster) PublishSessionStarted(ctx context.Context, username string, level int) error {
	return b.publish(ctx, Event{
		Type:     EventTypeSessionStarted,
		Username: username,
		Data: map[string]interface{}{
			"level": level,
		},
	})
}

// PublishTurnCompleted publishes a turn.completed event, followed by
// session.level_up when the turn raised the level.
func (b *Broadcaster) PublishTurnCompleted(ctx context.Context, username string, narratorLine string, level int, leveledUp bool) error {
	err := b.publish(ctx, Event{
		Type:     EventTypeTurnCompleted,
		Username: username,
		Data: map[string]interface{}{
			"narrator_line": narratorLine,
			"level":         level,
			"leveled_up":    leveledUp,
		},
	})
	if err != nil || !leveledUp {
		return err
	}
	return b.publish(ctx, Event{
		Type:     EventTypeLevelUp,
		Username: username,
		Data: map[string]interface{}{
			"level": level,
		},
	})
}

// PublishTurnFailed publishes a turn.failed event
func (b *Broadcaster) PublishTurnFailed(ctx context.Context, username string, errorMsg string) error {
	return b.publish(ctx, Event{
		Type:     EventTypeTurnFailed,
		Username: username,
		Data: map[string]interface{}{
			"error": errorMsg,
		},
	})
}

// PublishSaveFailed publishes a session.save_failed event
func (b *Broadcaster) PublishSaveFailed(ctx context.Context, username string, errorMsg string) error {
	return b.publish(ctx, Event{
		Type:     EventTypeSaveFailed,
		Username: username,
		Data: map[string]interface{}{
			"error": errorMsg,
		},
	})
}

// Subscribe opens a subscription to one user's events. The caller closes it.
func (b *Broadcaster) Subscribe(ctx context.Context, username string) *redis.PubSub {
	return b.redisClient.Subscribe(ctx, Channel(username))
}

func (b *Broadcaster) publish(ctx context.Context, event Event) error {
	channel := Channel(event.Username)

	data, err := json.Marshal(event)
	if err != nil {
		b.logger.Error("Failed to marshal event", "error", err, "event", event)
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := b.redisClient.Publish(ctx, channel, data).Err(); err != nil {
		b.logger.Error("Failed to publish event", "error", err, "channel", channel)
		return fmt.Errorf("failed to publish event: %w", err)
	}

	b.logger.Debug("Event published",
		"channel", channel,
		"event_type", event.Type,
	)

	return nil
}
