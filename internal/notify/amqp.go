package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/cenkalti/backoff/v4"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	publishTimeout    = 2 * time.Second
	maxPublishRetries = 3
)

// Publisher mirrors dispatch events onto a RabbitMQ topic exchange so
// downstream consumers (billing, analytics, push delivery) see the same
// stream the websocket clients do. Routing key is events.<role>.<type>.
type Publisher struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
}

// NewPublisher connects and declares the exchange.
func NewPublisher(url, exchange string) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	log.Printf("[amqp] connected, exchange %s declared", exchange)
	return &Publisher{conn: conn, channel: ch, exchange: exchange}, nil
}

// Notify publishes the event with bounded retry. Failures are logged and
// swallowed; the broker being down never blocks dispatch.
func (p *Publisher) Notify(ctx context.Context, ev Event) {
	body, err := json.Marshal(struct {
		Type        string `json:"type"`
		RecipientID string `json:"recipient_id"`
		Role        string `json:"role"`
		Payload     any    `json:"payload"`
	}{ev.Type, ev.RecipientID, ev.Role, ev.Payload})
	if err != nil {
		log.Printf("[amqp] marshal event type=%s: %v", ev.Type, err)
		return
	}

	key := fmt.Sprintf("events.%s.%s", ev.Role, ev.Type)
	publish := func() error {
		pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
		defer cancel()
		return p.channel.PublishWithContext(pubCtx, p.exchange, key, false, false, amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
			Body:         body,
		})
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxPublishRetries), ctx)
	if err := backoff.Retry(publish, policy); err != nil {
		log.Printf("[amqp] publish %s failed: %v", key, err)
	}
}

// Close shuts the channel and connection down.
func (p *Publisher) Close() error {
	if err := p.channel.Close(); err != nil {
		p.conn.Close()
		return err
	}
	return p.conn.Close()
}
