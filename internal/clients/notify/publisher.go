// Package notify publishes user notifications to a RabbitMQ topic exchange.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/bobmcallan/accrue/internal/common"
	"github.com/bobmcallan/accrue/internal/interfaces"
	"github.com/bobmcallan/accrue/internal/models"
)

// Compile-time interface check
var _ interfaces.NotificationSink = (*Publisher)(nil)

// Publisher implements interfaces.NotificationSink over AMQP. The connection
// is opened lazily and re-dialled on the next Notify after it drops.
// Messages are routed as <routing key>.<category>.
type Publisher struct {
	url        string
	exchange   string
	routingKey string
	clock      interfaces.Clock
	logger     *common.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewPublisher creates a publisher. No connection is made until the first Notify.
func NewPublisher(cfg common.NotificationsConfig, clock interfaces.Clock, logger *common.Logger) *Publisher {
	return &Publisher{
		url:        cfg.AMQPURL,
		exchange:   cfg.Exchange,
		routingKey: cfg.RoutingKey,
		clock:      clock,
		logger:     logger,
	}
}

// Notify publishes one persistent JSON message.
func (p *Publisher) Notify(ctx context.Context, userID, title, message string, category models.NotificationCategory) error {
	body, err := encode(models.Notification{
		UserID:    userID,
		Title:     title,
		Message:   message,
		Category:  category,
		CreatedAt: p.clock.Now(),
	})
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.channel()
	if err != nil {
		return err
	}

	err = ch.PublishWithContext(ctx, p.exchange, p.routingKeyFor(category), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.New().String(),
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		p.reset()
		return fmt.Errorf("failed to publish notification: %w", err)
	}

	p.logger.Debug().
		Str("user_id", userID).
		Str("category", string(category)).
		Msg("Notification published")
	return nil
}

func (p *Publisher) routingKeyFor(category models.NotificationCategory) string {
	if p.routingKey == "" {
		return string(category)
	}
	return p.routingKey + "." + string(category)
}

// channel returns an open channel, dialling if needed. Caller holds p.mu.
func (p *Publisher) channel() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() && p.conn != nil && !p.conn.IsClosed() {
		return p.ch, nil
	}
	p.reset()

	conn, err := amqp.Dial(p.url)
	if err != nil {
		return nil, fmt.Errorf("failed to dial RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(
		p.exchange,
		amqp.ExchangeTopic,
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,   // arguments
	); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	p.conn = conn
	p.ch = ch
	p.logger.Info().Str("exchange", p.exchange).Msg("Connected to RabbitMQ")
	return ch, nil
}

// reset drops the current connection. Caller holds p.mu.
func (p *Publisher) reset() {
	if p.ch != nil {
		p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		p.conn.Close()
		p.conn = nil
	}
}

// Close closes the AMQP connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reset()
	return nil
}

func encode(n models.Notification) ([]byte, error) {
	body, err := json.Marshal(n)
	if err != nil {
		return nil, fmt.Errorf("failed to encode notification: %w", err)
	}
	return body, nil
}

// LogSink writes notifications to the log. Used when publishing is disabled.
type LogSink struct {
	Logger *common.Logger
}

var _ interfaces.NotificationSink = LogSink{}

func (s LogSink) Notify(_ context.Context, userID, title, message string, category models.NotificationCategory) error {
	s.Logger.Info().
		Str("user_id", userID).
		Str("category", string(category)).
		Str("title", title).
		Msg(message)
	return nil
}
