package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/cppla/classifieds/utils"
)

// Rabbit publishes mail to a durable RabbitMQ queue and can consume it.
type Rabbit struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   string
	log     *zap.Logger
}

// NewRabbit connects and declares the mail queue.
func NewRabbit(url, queueName string, log *zap.Logger) (*Rabbit, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	_, err = channel.QueueDeclare(
		queueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}
	log.Info("connected to RabbitMQ", zap.String("queue", queueName))
	return &Rabbit{conn: conn, channel: channel, queue: queueName, log: log}, nil
}

// Dispatch publishes m as a persistent JSON message.
func (r *Rabbit) Dispatch(ctx context.Context, m utils.Mail) error {
	if len(m.To) == 0 {
		return nil
	}
	body, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal mail: %w", err)
	}
	err = r.channel.PublishWithContext(ctx,
		"",      // default exchange
		r.queue, // routing key
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		r.log.Error("failed to publish mail", zap.String("queue", r.queue), zap.Error(err))
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

// Consume delivers queued mail through sender until ctx is done.
func (r *Rabbit) Consume(ctx context.Context, sender Sender) error {
	ch, err := r.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open consumer channel: %w", err)
	}
	if err := ch.Qos(1, 0, false); err != nil {
		ch.Close()
		return err
	}
	msgs, err := ch.Consume(r.queue, "", false, false, false, false, nil)
	if err != nil {
		ch.Close()
		return fmt.Errorf("failed to register consumer: %w", err)
	}
	go func() {
		<-ctx.Done()
		ch.Close()
	}()
	go func() {
		for msg := range msgs {
			result, err := handle(ctx, sender, msg.Body)
			switch result {
			case ack:
				_ = msg.Ack(false)
			case drop:
				r.log.Error("dropping mail message", zap.Error(err))
				_ = msg.Nack(false, false)
			case retry:
				r.log.Warn("mail delivery failed, requeueing", zap.Error(err))
				_ = msg.Nack(false, true)
				time.Sleep(time.Second)
			}
		}
	}()
	return nil
}

func (r *Rabbit) Close() error {
	if r.channel != nil {
		r.channel.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}
