package eventbus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/openride/dispatch/pkg/logger"
	"go.uber.org/zap"
)

// Subjects for dispatch events.
const (
	SubjectRideRequested       = "rider.ride.requested"
	SubjectNoDriversAvailable  = "rider.ride.no_drivers_available"
	SubjectDriverAssigned      = "driver.ride.assigned"
	SubjectDriverAccepted      = "driver.ride.accepted"
	SubjectDriverRejected      = "driver.ride.rejected"
	SubjectAvailabilityChanged = "driver.availability.changed"
)

// ErrNotConnected reports a bus whose underlying connection is down.
var ErrNotConnected = errors.New("event bus not connected")

// subscribeBuffer bounds the per-subject inbox. Subscriptions live for the
// whole process, so a slow handler backs up here before the broker drops.
const subscribeBuffer = 1024

// Message is a raw message received from the bus.
type Message struct {
	Subject string
	Data    []byte
}

// Publisher is the capability services use to emit events.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// SubjectStream is the capability services use to receive events.
type SubjectStream interface {
	Subscribe(subject string) (<-chan Message, error)
}

// Bus wraps a core NATS connection. Delivery is at-least-once with no broker
// persistence; every subscription instance receives every message on its
// subject.
type Bus struct {
	conn *nats.Conn

	mu   sync.Mutex
	subs []*nats.Subscription
}

// Connect dials NATS with reconnect enabled.
func Connect(url, name string) (*Bus, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	logger.Info("NATS event bus connected", zap.String("url", url), zap.String("name", name))

	return &Bus{conn: nc}, nil
}

// Publish sends raw bytes to the given subject, fire-and-forget. Callers
// decide whether a failure rolls back their local side effect.
func (b *Bus) Publish(_ context.Context, subject string, data []byte) error {
	if err := b.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publish to %s: %w", subject, err)
	}

	logger.Debug("event published", zap.String("subject", subject), zap.Int("bytes", len(data)))
	return nil
}

// Subscribe returns an ordered stream of messages for the subject. The stream
// ends only when the connection is closed.
func (b *Bus) Subscribe(subject string) (<-chan Message, error) {
	inbox := make(chan *nats.Msg, subscribeBuffer)
	sub, err := b.conn.ChanSubscribe(subject, inbox)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}

	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	out := make(chan Message, subscribeBuffer)
	go func() {
		defer close(out)
		for msg := range inbox {
			out <- Message{Subject: msg.Subject, Data: msg.Data}
		}
	}()

	logger.Info("subscribed to subject", zap.String("subject", subject))
	return out, nil
}

// Request performs a synchronous request/reply round trip.
func (b *Bus) Request(ctx context.Context, subject string, data []byte) (Message, error) {
	msg, err := b.conn.RequestWithContext(ctx, subject, data)
	if err != nil {
		return Message{}, fmt.Errorf("request %s: %w", subject, err)
	}
	return Message{Subject: msg.Subject, Data: msg.Data}, nil
}

// AnswerHealth registers a responder on health.<service> that replies "ok" to
// bus-level health pokes.
func (b *Bus) AnswerHealth(service string) error {
	subject := "health." + service
	sub, err := b.conn.Subscribe(subject, func(msg *nats.Msg) {
		_ = msg.Respond([]byte("ok"))
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subject, err)
	}

	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()
	return nil
}

// Close drains subscriptions and closes the NATS connection.
func (b *Bus) Close() {
	b.mu.Lock()
	for _, sub := range b.subs {
		_ = sub.Unsubscribe()
	}
	b.subs = nil
	b.mu.Unlock()

	if b.conn != nil {
		_ = b.conn.Drain()
	}
	logger.Info("NATS event bus closed")
}

// Connected returns true if the NATS connection is active.
func (b *Bus) Connected() bool {
	return b.conn != nil && b.conn.IsConnected()
}
