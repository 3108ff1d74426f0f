package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/vendorhub/ticket-sync/internal/events"
)

// remoteEvent is the payload exchanged between relay processes.
type remoteEvent struct {
	Type           events.EventType `json:"type"`
	ConversationID string           `json:"conversationId"`
	OwnerID        string           `json:"ownerId,omitempty"`
	At             time.Time        `json:"at"`
}

// RedisBridge publishes events on a Redis channel and delivers whatever
// arrives on that channel to the local hub, so every relay process sees
// events raised by the others.
type RedisBridge struct {
	client  *redis.Client
	channel string
	hub     *Hub
	logger  *zap.Logger
}

// NewRedisBridge wires the hub to a Redis channel.
func NewRedisBridge(client *redis.Client, channel string, hub *Hub, logger *zap.Logger) *RedisBridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisBridge{client: client, channel: channel, hub: hub, logger: logger.Named("redis-bridge")}
}

// Broadcast publishes the event. Local clients receive it through Run.
func (b *RedisBridge) Broadcast(ctx context.Context, event events.Event) error {
	payload, err := encodeRemote(event)
	if err != nil {
		return err
	}
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", b.channel, err)
	}
	return nil
}

// Run subscribes to the channel and feeds the hub until ctx is done.
func (b *RedisBridge) Run(ctx context.Context) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", b.channel, err)
	}
	b.logger.Info("bridge subscribed", zap.String("channel", b.channel))

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			event, err := decodeRemote([]byte(msg.Payload))
			if err != nil {
				b.logger.Warn("dropping bridge payload", zap.Error(err))
				continue
			}
			if _, err := b.hub.Deliver(event); err != nil {
				b.logger.Warn("bridge delivery failed", zap.Error(err))
			}
		}
	}
}

func encodeRemote(event events.Event) ([]byte, error) {
	return json.Marshal(remoteEvent{
		Type:           event.Type,
		ConversationID: event.ConversationID,
		OwnerID:        event.OwnerID,
		At:             event.ReceivedAt,
	})
}

func decodeRemote(payload []byte) (events.Event, error) {
	var remote remoteEvent
	if err := json.Unmarshal(payload, &remote); err != nil {
		return events.Event{}, fmt.Errorf("decode bridge payload: %w", err)
	}
	if !remote.Type.Known() || remote.ConversationID == "" {
		return events.Event{}, fmt.Errorf("%w: bridge payload %q", events.ErrMalformedEvent, remote.Type)
	}
	return events.Event{
		Type:           remote.Type,
		ConversationID: remote.ConversationID,
		OwnerID:        remote.OwnerID,
		ReceivedAt:     remote.At,
	}, nil
}

func encodeFrame(frame events.Frame) ([]byte, error) {
	data, err := json.Marshal(frame)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	return data, nil
}
