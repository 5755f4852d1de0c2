package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// messageType is the AMQP type property of escalation notifications.
const messageType = "waste.escalation"

// AMQP publishes each Message as persistent JSON to a durable fanout
// exchange. The connection is opened on first use; after a failed dial the
// sender refuses further attempts until the backoff delay has passed.
type AMQP struct {
	url        string
	exchange   string
	routingKey string

	mu      sync.Mutex
	conn    *amqp.Connection
	ch      *amqp.Channel
	bo      *backoff
	retryAt time.Time
	now     func() time.Time
}

// NewAMQP returns an AMQP sender. No connection is made until the first Send.
func NewAMQP(url, exchange, routingKey string) *AMQP {
	return &AMQP{
		url:        url,
		exchange:   exchange,
		routingKey: routingKey,
		bo:         newBackoff(),
		now:        time.Now,
	}
}

func (a *AMQP) Name() string { return "amqp" }

func (a *AMQP) Send(ctx context.Context, m Message) error {
	body, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("notify: amqp: marshal: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	ch, err := a.channel()
	if err != nil {
		return fmt.Errorf("notify: amqp: %w", err)
	}

	err = ch.PublishWithContext(ctx, a.exchange, a.routingKey, false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		MessageId:    m.ID,
		Type:         messageType,
		Timestamp:    a.now().UTC(),
		Headers:      amqp.Table{"branch": m.Branch, "severity": m.Severity},
		Body:         body,
	})
	if err != nil {
		a.closeLocked()
		return fmt.Errorf("notify: amqp: publish: %w", err)
	}
	return nil
}

// channel returns an open channel, dialing when needed. Caller holds a.mu.
func (a *AMQP) channel() (*amqp.Channel, error) {
	if a.ch != nil && !a.ch.IsClosed() {
		return a.ch, nil
	}
	a.closeLocked()

	now := a.now()
	if now.Before(a.retryAt) {
		return nil, fmt.Errorf("broker unavailable, next attempt in %s", a.retryAt.Sub(now).Round(time.Millisecond))
	}

	conn, err := amqp.Dial(a.url)
	if err != nil {
		a.retryAt = now.Add(a.bo.next())
		return nil, fmt.Errorf("dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		a.retryAt = now.Add(a.bo.next())
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(a.exchange, "fanout", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		a.retryAt = now.Add(a.bo.next())
		return nil, fmt.Errorf("declare exchange %q: %w", a.exchange, err)
	}

	a.bo.reset()
	a.retryAt = time.Time{}
	a.conn, a.ch = conn, ch
	return ch, nil
}

// Close shuts down the broker connection.
func (a *AMQP) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closeLocked()
	return nil
}

func (a *AMQP) closeLocked() {
	if a.ch != nil {
		_ = a.ch.Close()
		a.ch = nil
	}
	if a.conn != nil {
		_ = a.conn.Close()
		a.conn = nil
	}
}
