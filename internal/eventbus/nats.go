package eventbus

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
)

// NATSEventBus mirrors events onto a real NATS server, for deployments that
// run more than one clawden process against the same fleet. Subject
// patterns are passed straight through to NATS, which understands the same
// "*"/">" tokens as matchSubject.
type NATSEventBus struct {
	conn *nats.Conn
}

// NewNATS connects to url (e.g. "nats://localhost:4222") and returns a
// ready-to-use NATSEventBus.
func NewNATS(url string) (*NATSEventBus, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("eventbus: connect to nats at %s: %w", url, err)
	}
	return &NATSEventBus{conn: conn}, nil
}

// Publish marshals ev as JSON and publishes it to subject.
func (b *NATSEventBus) Publish(subject string, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("eventbus: marshal event: %w", err)
	}
	return b.conn.Publish(subject, data)
}

// Subscribe registers h against a NATS subscription on subjectPattern.
func (b *NATSEventBus) Subscribe(subjectPattern string, h Handler) (Unsubscribe, error) {
	sub, err := b.conn.Subscribe(subjectPattern, func(msg *nats.Msg) {
		var ev Event
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			return
		}
		h(msg.Subject, ev)
	})
	if err != nil {
		return nil, fmt.Errorf("eventbus: subscribe to %s: %w", subjectPattern, err)
	}
	return func() { _ = sub.Unsubscribe() }, nil
}

// Close drains and closes the underlying NATS connection.
func (b *NATSEventBus) Close() error {
	b.conn.Close()
	return nil
}
