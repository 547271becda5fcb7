package source

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/nextrole/conveyor/internal/model"
)

const (
	partnerConsumerTag = "conveyor-partner-feed"
	partnerPrefetch    = 50
	partnerDrainWindow = 500 * time.Millisecond
)

// AMQPFeed consumes partner postings from a queue. Partners publish their
// full feed each cycle, so each Fetch drains whatever is queued and stops
// once the queue goes quiet. Messages are acked on receipt; an unreadable
// message is dropped, not requeued.
type AMQPFeed struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   string
	logger  *slog.Logger
}

var _ model.SourceAdapter = (*AMQPFeed)(nil)

// NewAMQPFeed dials the broker, declares the durable queue and bounds the
// prefetch window.
func NewAMQPFeed(amqpURL, queue string, logger *slog.Logger) (*AMQPFeed, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("partner feed: connecting to broker: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("partner feed: opening channel: %w", err)
	}

	_, err = channel.QueueDeclare(
		queue, // name
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("partner feed: declaring queue %s: %w", queue, err)
	}

	if err := channel.Qos(partnerPrefetch, 0, false); err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("partner feed: setting qos: %w", err)
	}

	return &AMQPFeed{conn: conn, channel: channel, queue: queue, logger: logger}, nil
}

func (f *AMQPFeed) Source() model.JobSource {
	return model.SourcePartnerFeed
}

func (f *AMQPFeed) Fetch(ctx context.Context) ([]model.RawPosting, error) {
	deliveries, err := f.channel.Consume(
		f.queue,            // queue
		partnerConsumerTag, // consumer tag
		false,              // auto-ack
		false,              // exclusive
		false,              // no-local
		false,              // no-wait
		nil,                // args
	)
	if err != nil {
		return nil, fmt.Errorf("partner feed: consuming from %s: %w", f.queue, err)
	}
	defer f.channel.Cancel(partnerConsumerTag, false)

	var postings []model.RawPosting
	idle := time.NewTimer(partnerDrainWindow)
	defer idle.Stop()

	for {
		select {
		case d, ok := <-deliveries:
			if !ok {
				return postings, nil
			}
			if p, ok := f.accept(d); ok {
				postings = append(postings, p)
			}
			idle.Reset(partnerDrainWindow)
		case <-idle.C:
			return postings, nil
		case <-ctx.Done():
			return postings, ctx.Err()
		}
	}
}

// accept turns one delivery into a raw posting. The external id comes from
// the message id property, falling back to an external_id field in the
// body.
func (f *AMQPFeed) accept(d amqp.Delivery) (model.RawPosting, bool) {
	id := d.MessageId
	if id == "" {
		var probe struct {
			ExternalID json.RawMessage `json:"external_id"`
		}
		if err := json.Unmarshal(d.Body, &probe); err == nil {
			id = rawID(probe.ExternalID)
		}
	}
	if id == "" {
		f.logger.Warn("partner message without an id dropped", "queue", f.queue)
		if err := d.Nack(false, false); err != nil {
			f.logger.Warn("nack failed", "queue", f.queue, "error", err)
		}
		return model.RawPosting{}, false
	}

	body := make([]byte, len(d.Body))
	copy(body, d.Body)
	if err := d.Ack(false); err != nil {
		f.logger.Warn("ack failed", "queue", f.queue, "message_id", id, "error", err)
	}
	return model.RawPosting{
		Source:     model.SourcePartnerFeed,
		ExternalID: id,
		Payload:    body,
		FetchedAt:  time.Now().UTC(),
	}, true
}

func (f *AMQPFeed) Close() error {
	if err := f.channel.Close(); err != nil {
		f.conn.Close()
		return fmt.Errorf("partner feed: closing channel: %w", err)
	}
	return f.conn.Close()
}
