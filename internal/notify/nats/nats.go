// Package nats publishes notifications on a NATS subject.
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"

	"echodoc/internal/domain"
)

// Event is the JSON payload of every published message.
type Event struct {
	Message string    `json:"message"`
	SentAt  time.Time `json:"sent_at"`
}

type publisher interface {
	PublishMsg(msg *nats.Msg) error
}

type Notifier struct {
	conn    *nats.Conn
	pub     publisher
	subject string
	now     func() time.Time
}

// Connect dials url and returns a Notifier publishing on subject.
func Connect(url, subject string) (*Notifier, error) {
	if subject == "" {
		return nil, fmt.Errorf("%w: nats subject is required", domain.ErrInvalidConfig)
	}
	nc, err := nats.Connect(url, nats.Name("echodoc"))
	if err != nil {
		return nil, fmt.Errorf("nats: connect %s: %w", url, err)
	}
	n := newNotifier(nc, subject)
	n.conn = nc
	return n, nil
}

func newNotifier(pub publisher, subject string) *Notifier {
	return &Notifier{pub: pub, subject: subject, now: time.Now}
}

// Notify publishes an Event. Trace context from ctx travels in the headers.
func (n *Notifier) Notify(ctx context.Context, message string) error {
	data, err := json.Marshal(Event{Message: message, SentAt: n.now().UTC()})
	if err != nil {
		return err
	}
	msg := &nats.Msg{Subject: n.subject, Data: data, Header: nats.Header{}}
	otel.GetTextMapPropagator().Inject(ctx, headerCarrier(msg.Header))
	if err := n.pub.PublishMsg(msg); err != nil {
		return fmt.Errorf("nats: publish %s: %w", n.subject, err)
	}
	return nil
}

// Close drains the connection opened by Connect.
func (n *Notifier) Close() error {
	if n.conn == nil {
		return nil
	}
	return n.conn.Drain()
}

type headerCarrier nats.Header

func (c headerCarrier) Get(key string) string { return nats.Header(c).Get(key) }

func (c headerCarrier) Set(key, val string) { nats.Header(c).Set(key, val) }

func (c headerCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}
