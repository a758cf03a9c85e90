package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"
	"github.com/servicehub/backend/internal/models"
)

// EventPublisher is the notification channel boundary. Publishing is
// best-effort: a failed publish is logged and never fails the operation that
// produced the event.
type EventPublisher interface {
	PublishChange(ctx context.Context, event *models.WorkflowChangeEvent)
}

type redisEventPublisher struct {
	client  *redis.Client
	channel string
}

func NewRedisEventPublisher(client *redis.Client, channel string) EventPublisher {
	return &redisEventPublisher{client: client, channel: channel}
}

func (p *redisEventPublisher) PublishChange(ctx context.Context, event *models.WorkflowChangeEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("Failed to marshal workflow event for %s: %v", event.InstanceID, err)
		return
	}

	// Firehose channel plus a per-instance channel for targeted subscribers.
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		log.Printf("Failed to publish workflow event for %s: %v", event.InstanceID, err)
	}
	instanceChannel := fmt.Sprintf("%s:%s", p.channel, event.InstanceID)
	if err := p.client.Publish(ctx, instanceChannel, payload).Err(); err != nil {
		log.Printf("Failed to publish workflow event for %s: %v", event.InstanceID, err)
	}
}

// noopEventPublisher is used when no notification channel is configured.
type noopEventPublisher struct{}

func NewNoopEventPublisher() EventPublisher {
	return &noopEventPublisher{}
}

func (p *noopEventPublisher) PublishChange(ctx context.Context, event *models.WorkflowChangeEvent) {}
