// Package queue hands outgoing mail to RabbitMQ, or sends it in the
// background when no broker is configured.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/cppla/classifieds/utils"
)

// Sender delivers one message synchronously.
type Sender interface {
	Send(ctx context.Context, m utils.Mail) error
}

// Dispatcher accepts mail for asynchronous delivery.
type Dispatcher interface {
	Dispatch(ctx context.Context, m utils.Mail) error
	Close() error
}

const sendTimeout = 30 * time.Second

// Inline sends each message on its own goroutine.
type Inline struct {
	sender Sender
	log    *zap.Logger
}

func NewInline(sender Sender, log *zap.Logger) *Inline {
	return &Inline{sender: sender, log: log}
}

func (d *Inline) Dispatch(_ context.Context, m utils.Mail) error {
	if len(m.To) == 0 {
		return nil
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()
		if err := d.sender.Send(ctx, m); err != nil {
			d.log.Warn("mail send failed", zap.Strings("to", m.To), zap.String("subject", m.Subject), zap.Error(err))
		}
	}()
	return nil
}

func (d *Inline) Close() error { return nil }

// outcome of handling one queued message
type outcome int

const (
	ack outcome = iota
	drop
	retry
)

// handle decodes and delivers one queued message.
func handle(ctx context.Context, sender Sender, body []byte) (outcome, error) {
	var m utils.Mail
	if err := json.Unmarshal(body, &m); err != nil {
		return drop, err
	}
	if len(m.To) == 0 {
		return ack, nil
	}
	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	if err := sender.Send(ctx, m); err != nil {
		if errors.Is(err, utils.ErrMailNotConfigured) {
			return drop, err
		}
		return retry, err
	}
	return ack, nil
}
