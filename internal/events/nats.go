package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
)

type envelope struct {
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Data       Event     `json:"data"`
}

// NATSPublisher publishes each event on <prefix>.<event type>.
type NATSPublisher struct {
	nc     *nats.Conn
	prefix string
}

func NewNATSPublisher(nc *nats.Conn, prefix string) *NATSPublisher {
	return &NATSPublisher{nc: nc, prefix: prefix}
}

// Connect dials url with reconnects enabled.
func Connect(url, name string) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	return nc, errors.Wrap(err, "connect nats")
}

func (p *NATSPublisher) Subject(e Event) string { return p.prefix + "." + e.Type() }

func (p *NATSPublisher) Publish(_ context.Context, e Event) error {
	data, err := json.Marshal(envelope{Type: e.Type(), OccurredAt: time.Now().UTC(), Data: e})
	if err != nil {
		return errors.Wrap(err, "marshal event")
	}
	return errors.Wrap(p.nc.Publish(p.Subject(e), data), "nats publish")
}
