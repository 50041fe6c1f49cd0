package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// Publisher is the API side of the queue.
type Publisher interface {
	PublishTask(ctx context.Context, msg TaskMessage) error
}

func declare(ch *amqp.Channel, queue string) error {
	_, err := ch.QueueDeclare(
		queue,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("queue: declare %s: %w", queue, err)
	}
	return nil
}

func open(url, queue string) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("queue: dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("queue: open channel: %w", err)
	}
	if err := declare(ch, queue); err != nil {
		ch.Close()
		conn.Close()
		return nil, nil, err
	}
	return conn, ch, nil
}

// RabbitPublisher publishes persistent JSON task messages.
type RabbitPublisher struct {
	mu    sync.Mutex
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
}

// NewRabbitPublisher connects and declares the durable task queue.
func NewRabbitPublisher(url, queue string) (*RabbitPublisher, error) {
	conn, ch, err := open(url, queue)
	if err != nil {
		return nil, err
	}
	return &RabbitPublisher{conn: conn, ch: ch, queue: queue}, nil
}

// PublishTask sends one message. Channels are not safe for concurrent publishing.
func (p *RabbitPublisher) PublishTask(ctx context.Context, msg TaskMessage) error {
	body, err := EncodeTask(msg)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	err = p.ch.PublishWithContext(ctx, "", p.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.TaskID,
		Timestamp:    msg.SubmittedAt,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("queue: publish %s: %w", msg.TaskID, err)
	}
	return nil
}

// Close releases the channel and connection.
func (p *RabbitPublisher) Close() error {
	return errors.Join(p.ch.Close(), p.conn.Close())
}

// Handler processes one task message. A returned error asks for redelivery.
type Handler func(ctx context.Context, msg TaskMessage) error

// Consumer delivers task messages to a Handler with manual acknowledgement.
type Consumer struct {
	conn   *amqp.Connection
	ch     *amqp.Channel
	queue  string
	logger zerolog.Logger
}

// NewConsumer connects, declares the queue and limits unacknowledged
// deliveries to prefetch.
func NewConsumer(url, queue string, prefetch int, logger zerolog.Logger) (*Consumer, error) {
	conn, ch, err := open(url, queue)
	if err != nil {
		return nil, err
	}
	if prefetch <= 0 {
		prefetch = 1
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("queue: set qos: %w", err)
	}
	return &Consumer{conn: conn, ch: ch, queue: queue, logger: logger}, nil
}

// Run consumes until ctx is cancelled or the broker closes the channel.
// Each of the workers goroutines handles one delivery at a time.
func (c *Consumer) Run(ctx context.Context, workers int, h Handler) error {
	const tag = "tryon-worker"
	deliveries, err := c.ch.Consume(c.queue, tag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue: consume: %w", err)
	}
	if workers <= 0 {
		workers = 1
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for d := range deliveries {
				c.handle(ctx, d, h)
			}
		}()
	}

	<-ctx.Done()
	// stop new deliveries, in-flight ones finish and settle
	if err := c.ch.Cancel(tag, false); err != nil {
		c.logger.Warn().Err(err).Msg("queue: cancel consumer")
	}
	wg.Wait()
	return ctx.Err()
}

func (c *Consumer) handle(ctx context.Context, d amqp.Delivery, h Handler) {
	msg, err := DecodeTask(d.Body)
	if err != nil {
		c.logger.Error().Err(err).Str("message_id", d.MessageId).Msg("queue: dropping malformed message")
		_ = d.Nack(false, false)
		return
	}
	herr := h(ctx, msg)
	switch settle(herr, d.Redelivered) {
	case ack:
		_ = d.Ack(false)
	case requeue:
		c.logger.Warn().Err(herr).Str("task_id", msg.TaskID).Msg("queue: requeue task")
		_ = d.Nack(false, true)
	default:
		c.logger.Error().Err(herr).Str("task_id", msg.TaskID).Msg("queue: giving up on task")
		_ = d.Nack(false, false)
	}
}

// Close releases the channel and connection.
func (c *Consumer) Close() error {
	return errors.Join(c.ch.Close(), c.conn.Close())
}

type settlement int

const (
	ack settlement = iota
	requeue
	drop
)

// settle requeues a failed message once; a second failure drops it.
func settle(err error, redelivered bool) settlement {
	switch {
	case err == nil:
		return ack
	case !redelivered:
		return requeue
	default:
		return drop
	}
}
