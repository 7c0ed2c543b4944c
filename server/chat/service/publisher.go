package service

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	commonlog "voicechat_server/server/common/log"
)

const eventsExchange = "chat.events"

// Pipeline event routing keys.
const (
	EventMessageCreated  = "message.created"
	EventMessageEnriched = "message.enriched"
	EventMessageDeleted  = "message.deleted"
)

// EventPublisher emits pipeline events on a topic exchange. A nil
// publisher is valid and silently discards, so the pipeline runs the
// same with or without a broker.
type EventPublisher struct {
	channel *amqp.Channel
}

func NewEventPublisher(conn *amqp.Connection) (*EventPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	if err := ch.ExchangeDeclare(eventsExchange, "topic", true, false, false, false, nil); err != nil {
		return nil, err
	}
	return &EventPublisher{channel: ch}, nil
}

func (p *EventPublisher) Publish(ctx context.Context, key string, payload any) {
	if p == nil {
		return
	}
	body, err := json.Marshal(payload)
	if err != nil {
		commonlog.Errorf("event=mq action=publish status=failed key=%s error=%v", key, err)
		return
	}
	err = p.channel.PublishWithContext(ctx, eventsExchange, key, false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
		Timestamp:   time.Now(),
	})
	if err != nil {
		commonlog.Errorf("event=mq action=publish status=failed key=%s error=%v", key, err)
	}
}

func (p *EventPublisher) Close() {
	if p == nil || p.channel == nil {
		return
	}
	_ = p.channel.Close()
}
