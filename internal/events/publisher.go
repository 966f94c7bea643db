// Package events publishes update cycle notifications to RabbitMQ.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ad-tracker/youtube-view-tracker-go/internal/config"
	"github.com/ad-tracker/youtube-view-tracker-go/internal/service"
	"github.com/ad-tracker/youtube-view-tracker-go/pkg/logger"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const confirmTimeout = 5 * time.Second

// Publisher sends a confirmed message to a topic exchange for every
// completed update cycle.
type Publisher struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	config  *config.EventsConfig
	mu      sync.RWMutex
}

// NewPublisher connects to the broker and declares the exchange.
func NewPublisher(cfg *config.EventsConfig) (*Publisher, error) {
	p := &Publisher{config: cfg}

	if err := p.connect(); err != nil {
		return nil, err
	}

	return p, nil
}

// URL returns the AMQP connection URL for cfg.
func URL(cfg *config.EventsConfig) string {
	return fmt.Sprintf("amqp://%s:%s@%s:%d/", cfg.User, cfg.Password, cfg.Host, cfg.Port)
}

func (p *Publisher) connect() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	conn, err := amqp.Dial(URL(p.config))
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}

	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("failed to enable publisher confirms: %w", err)
	}

	if err := ch.ExchangeDeclare(
		p.config.Exchange, // name
		"topic",           // type
		true,              // durable
		false,             // auto-deleted
		false,             // internal
		false,             // no-wait
		nil,               // arguments
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	p.conn = conn
	p.channel = ch

	logger.Get().Info("Connected to RabbitMQ",
		zap.String("exchange", p.config.Exchange),
		zap.String("routingKey", p.config.RoutingKey),
	)

	return nil
}

// newPublishing builds the persistent JSON message for a cycle summary.
func newPublishing(summary *service.CycleSummary, now time.Time) (amqp.Publishing, error) {
	if summary == nil {
		return amqp.Publishing{}, errors.New("cycle summary is nil")
	}

	body, err := json.Marshal(summary)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("failed to marshal cycle summary: %w", err)
	}

	return amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    now,
		MessageId:    uuid.New().String(),
		Type:         "cycle.completed",
	}, nil
}

// NotifyCycleCompleted publishes summary and waits for the broker ack.
func (p *Publisher) NotifyCycleCompleted(ctx context.Context, summary *service.CycleSummary) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.channel == nil {
		return errors.New("channel is not initialized")
	}

	msg, err := newPublishing(summary, time.Now())
	if err != nil {
		return err
	}

	confirmCtx, cancel := context.WithTimeout(ctx, confirmTimeout)
	defer cancel()

	confirmation, err := p.channel.PublishWithDeferredConfirmWithContext(
		confirmCtx,
		p.config.Exchange,
		p.config.RoutingKey,
		false, // mandatory: no consumer is required
		false, // immediate
		msg,
	)
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	if confirmation == nil {
		return errors.New("channel is not in confirm mode")
	}

	acked, err := confirmation.WaitContext(confirmCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return errors.New("timeout waiting for publish confirmation")
		}
		return err
	}
	if !acked {
		return errors.New("message was not acknowledged by broker")
	}

	logger.Get().Debug("Published cycle event",
		zap.String("messageId", msg.MessageId),
		zap.Int64("cycleTs", summary.Timestamp),
		zap.Int("totalVideos", summary.TotalVideos),
	)

	return nil
}

// Close closes the channel and the connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	if p.channel != nil {
		if err := p.channel.Close(); err != nil {
			errs = append(errs, err)
		}
		p.channel = nil
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil {
			errs = append(errs, err)
		}
		p.conn = nil
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors closing publisher: %w", errors.Join(errs...))
	}

	logger.Get().Info("RabbitMQ publisher closed")
	return nil
}

// IsHealthy reports whether the connection and channel are open.
func (p *Publisher) IsHealthy() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.conn != nil && !p.conn.IsClosed() && p.channel != nil
}
