package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"rescuedispatch/models"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

const EventsChannel = "sos:events"

// RedisEventBus publishes alert events on a Redis pub/sub channel so every
// API instance can forward them to its own websocket clients.
type RedisEventBus struct {
	client  *redis.Client
	channel string
}

func NewRedisEventBus(client *redis.Client) *RedisEventBus {
	return &RedisEventBus{client: client, channel: EventsChannel}
}

func (eb *RedisEventBus) Publish(ctx context.Context, event models.AlertEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode alert event: %w", err)
	}
	return eb.client.Publish(ctx, eb.channel, payload).Err()
}

// Subscribe blocks, handing every decoded event to handle until ctx is done.
func (eb *RedisEventBus) Subscribe(ctx context.Context, handle func(models.AlertEvent)) error {
	sub := eb.client.Subscribe(ctx, eb.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", eb.channel, err)
	}

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			var event models.AlertEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				logrus.WithError(err).Warn("Dropping malformed alert event")
				continue
			}
			handle(event)
		}
	}
}

// LocalEventBus delivers events in process. It backs single-instance
// deployments that run without Redis.
type LocalEventBus struct {
	mu       sync.RWMutex
	handlers map[int]func(models.AlertEvent)
	nextID   int
}

func NewLocalEventBus() *LocalEventBus {
	return &LocalEventBus{handlers: make(map[int]func(models.AlertEvent))}
}

func (lb *LocalEventBus) Publish(ctx context.Context, event models.AlertEvent) error {
	lb.mu.RLock()
	defer lb.mu.RUnlock()
	for _, handle := range lb.handlers {
		handle(event)
	}
	return nil
}

func (lb *LocalEventBus) Subscribe(ctx context.Context, handle func(models.AlertEvent)) error {
	lb.mu.Lock()
	id := lb.nextID
	lb.nextID++
	lb.handlers[id] = handle
	lb.mu.Unlock()

	<-ctx.Done()

	lb.mu.Lock()
	delete(lb.handlers, id)
	lb.mu.Unlock()
	return nil
}
