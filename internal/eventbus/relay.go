package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// OriginHeader identifies the relay that published a message.
const OriginHeader = "Cartsync-Origin"

// Conn is the subset of *nats.Conn the relay uses.
type Conn interface {
	PublishMsg(m *nats.Msg) error
	Subscribe(subj string, cb nats.MsgHandler) (*nats.Subscription, error)
}

type remoteKey struct{}

// FromRelay reports whether ev arrived from another process through a Relay.
func FromRelay(ctx context.Context) bool {
	v, _ := ctx.Value(remoteKey{}).(bool)
	return v
}

// Relay mirrors a Bus onto NATS subjects "<prefix>.<topic>" so that other
// processes sharing the subject prefix see the same notifications.
type Relay struct {
	bus    *Bus
	conn   Conn
	prefix string
	origin string
	logger *slog.Logger

	mu     sync.Mutex
	unsubs []func()
	sub    *nats.Subscription
}

// NewRelay creates a relay; call Start to begin forwarding.
func NewRelay(bus *Bus, conn Conn, prefix string, logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{
		bus:    bus,
		conn:   conn,
		prefix: strings.TrimSuffix(prefix, "."),
		origin: uuid.NewString(),
		logger: logger,
	}
}

// Subject returns the NATS subject for topic.
func (r *Relay) Subject(topic Topic) string {
	return r.prefix + "." + string(topic)
}

// Start subscribes to local topics and to the remote subjects.
func (r *Relay) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.unsubs != nil {
		return errors.New("relay already started")
	}

	sub, err := r.conn.Subscribe(r.prefix+".*", r.receive)
	if err != nil {
		return err
	}
	r.sub = sub

	for _, topic := range Topics {
		r.unsubs = append(r.unsubs, r.bus.Subscribe(topic, r.forward))
	}
	return nil
}

// Close stops forwarding in both directions.
func (r *Relay) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.unsubs {
		u()
	}
	r.unsubs = nil

	if r.sub != nil {
		err := r.sub.Unsubscribe()
		r.sub = nil
		return err
	}
	return nil
}

func (r *Relay) forward(ctx context.Context, ev Event) {
	if FromRelay(ctx) {
		return
	}

	data, err := json.Marshal(ev)
	if err != nil {
		r.logger.Error("failed to encode event", "topic", string(ev.Topic), "error", err)
		return
	}

	msg := &nats.Msg{
		Subject: r.Subject(ev.Topic),
		Header:  nats.Header{},
		Data:    data,
	}
	msg.Header.Set(OriginHeader, r.origin)

	if err := r.conn.PublishMsg(msg); err != nil {
		r.logger.Warn("failed to relay event", "subject", msg.Subject, "error", err)
	}
}

func (r *Relay) receive(m *nats.Msg) {
	if m.Header.Get(OriginHeader) == r.origin {
		return
	}

	var ev Event
	if err := json.Unmarshal(m.Data, &ev); err != nil {
		r.logger.Debug("dropping malformed relayed event", "subject", m.Subject, "error", err)
		return
	}
	if ev.Topic == "" {
		ev.Topic = Topic(strings.TrimPrefix(m.Subject, r.prefix+"."))
	}

	r.bus.Publish(context.WithValue(context.Background(), remoteKey{}, true), ev)
}
