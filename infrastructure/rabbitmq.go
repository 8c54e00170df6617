package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Queue names. Both are durable; delivery is at-least-once with explicit
// acknowledgement.
const (
	QueueExtract  = "extract_jobs"
	QueueEvaluate = "evaluation_jobs"
)

const redialDelay = 5 * time.Second

// Broker owns the RabbitMQ connection. It is constructed once at startup and
// injected into the producer and the workers; consumers run on dedicated
// channels with prefetch 1 so a message is in flight on exactly one consumer
// at a time.
type Broker struct {
	url string
	log *zap.Logger

	mu    sync.Mutex
	conn  *amqp.Connection
	pubCh *amqp.Channel
}

func NewBroker(url string, log *zap.Logger) (*Broker, error) {
	b := &Broker{url: url, log: log}
	if err := b.connect(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *Broker) connect() error {
	conn, err := amqp.Dial(b.url)
	if err != nil {
		return fmt.Errorf("connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	for _, queue := range []string{QueueExtract, QueueEvaluate} {
		if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
			conn.Close()
			return fmt.Errorf("declare queue %s: %w", queue, err)
		}
	}

	b.conn = conn
	b.pubCh = ch
	return nil
}

// reconnect re-dials after a dropped connection. Callers hold no lock.
func (b *Broker) reconnect() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.conn != nil && !b.conn.IsClosed() {
		return nil
	}
	return b.connect()
}

// Publish sends a JSON message to the named queue with the persistent
// delivery mode, so it survives a broker restart. A dropped connection is
// redialed here, not only on the consume side; the producer process has no
// other path back to a live channel.
func (b *Broker) Publish(ctx context.Context, queue string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	if err := b.reconnect(); err != nil {
		return fmt.Errorf("publish to %s: %w", queue, err)
	}

	b.mu.Lock()
	ch := b.pubCh
	b.mu.Unlock()

	pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = ch.PublishWithContext(pubCtx, "", queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", queue, err)
	}
	return nil
}

// Consume runs handler for every delivery on the named queue until ctx is
// done. The handler acknowledges or rejects each delivery itself; an
// unacknowledged message is redelivered by the broker after the consumer
// drops. A closed channel triggers a redial loop.
func (b *Broker) Consume(ctx context.Context, queue, consumerTag string, handler func(context.Context, amqp.Delivery)) {
	for {
		if err := b.consumeOnce(ctx, queue, consumerTag, handler); err != nil {
			b.log.Warn("consumer stopped, redialing",
				zap.String("queue", queue),
				zap.String("consumer", consumerTag),
				zap.Error(err),
			)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(redialDelay):
		}

		if err := b.reconnect(); err != nil {
			b.log.Warn("rabbitmq reconnect failed", zap.Error(err))
		}
	}
}

func (b *Broker) consumeOnce(ctx context.Context, queue, consumerTag string, handler func(context.Context, amqp.Delivery)) error {
	b.mu.Lock()
	conn := b.conn
	b.mu.Unlock()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open consumer channel: %w", err)
	}
	defer ch.Close()

	// One unacked message per consumer keeps a slow evaluation from
	// starving redelivery of the rest of the queue.
	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}

	deliveries, err := ch.Consume(queue, consumerTag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("register consumer: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel closed for %s", queue)
			}
			handler(ctx, d)
		}
	}
}

// Close shuts the connection down; in-flight unacked deliveries return to
// the queue.
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.conn == nil {
		return nil
	}
	return b.conn.Close()
}
