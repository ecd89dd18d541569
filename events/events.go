// Package events publishes domain events to a RabbitMQ topic exchange.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const DefaultExchange = "fixmyarea.events"

// Routing keys.
const (
	IssueReported      = "issue.reported"
	IssueStatusChanged = "issue.status_changed"
	IssueUpvoted       = "issue.upvoted"
	UserRoleChanged    = "user.role_changed"
	UserDeleted        = "user.deleted"
)

type IssueReportedEvent struct {
	IssueID    string `json:"issueId"`
	ReporterID string `json:"reporterId"`
	Category   string `json:"category"`
	Images     int    `json:"images"`
	Requested  int    `json:"requested"`
	Timestamp  int64  `json:"timestamp"`
}

type IssueStatusChangedEvent struct {
	IssueID   string `json:"issueId"`
	From      string `json:"from"`
	To        string `json:"to"`
	ActorID   string `json:"actorId"`
	Timestamp int64  `json:"timestamp"`
}

type IssueUpvotedEvent struct {
	IssueID string `json:"issueId"`
	UserID  string `json:"userId"`
	Voted   bool   `json:"voted"`
}

type UserRoleChangedEvent struct {
	UserID  string `json:"userId"`
	Role    string `json:"role"`
	ActorID string `json:"actorId"`
}

type UserDeletedEvent struct {
	UserID  string `json:"userId"`
	ActorID string `json:"actorId"`
}

// Publisher sends an event payload under a routing key.
type Publisher interface {
	Publish(ctx context.Context, key string, payload any) error
}

// AMQPPublisher publishes JSON messages to a durable topic exchange.
type AMQPPublisher struct {
	conn     *amqp.Connection
	mu       sync.Mutex
	ch       *amqp.Channel
	exchange string
}

func NewAMQPPublisher(url, exchange string) (*AMQPPublisher, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &AMQPPublisher{conn: conn, ch: ch, exchange: exchange}, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, key string, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	// amqp channels are not safe for concurrent publishing
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ch.PublishWithContext(ctx, p.exchange, key, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         b,
	})
}

func (p *AMQPPublisher) Close() error {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// LogPublisher records events in the log only. Used when no broker is configured.
type LogPublisher struct {
	log *slog.Logger
}

func NewLogPublisher(log *slog.Logger) *LogPublisher {
	if log == nil {
		log = slog.Default()
	}
	return &LogPublisher{log: log}
}

func (l *LogPublisher) Publish(_ context.Context, key string, payload any) error {
	l.log.Debug("event", "key", key, "payload", payload)
	return nil
}

// Emit publishes and logs a failure instead of returning it. Events are notifications;
// the write they describe has already happened.
func Emit(ctx context.Context, p Publisher, log *slog.Logger, key string, payload any) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, key, payload); err != nil {
		log.Warn("failed to publish event", "key", key, "error", err)
	}
}
