// Package events forwards reminder engine events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"remindbot/internal/eventbus"
	logx "remindbot/pkg/logx"
)

// KindHeader carries the event type on every record.
const KindHeader = "kind"

// DefaultPrefixes selects the events worth shipping off-host.
var DefaultPrefixes = []string{"reminder.", "persistence."}

type Config struct {
	Brokers  []string
	Topic    string
	ClientID string
	Timeout  time.Duration
}

// Producer is the subset of *kgo.Client the sink needs.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// NewClient builds a franz-go client for cfg.
func NewClient(cfg Config) (*kgo.Client, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka: no brokers configured")
	}
	if strings.TrimSpace(cfg.Topic) == "" {
		return nil, errors.New("kafka: topic is empty")
	}
	id := cfg.ClientID
	if id == "" {
		id = "remindbot"
	}
	return kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ClientID(id),
		kgo.DefaultProduceTopic(cfg.Topic),
	)
}

type Sink struct {
	producer Producer
	topic    string
	timeout  time.Duration
	log      logx.Logger
}

func NewSink(p Producer, cfg Config, log logx.Logger) *Sink {
	if log.IsZero() {
		log = logx.Nop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Sink{
		producer: p,
		topic:    cfg.Topic,
		timeout:  timeout,
		log:      log.With(logx.String("comp", "events.kafka")),
	}
}

type envelope struct {
	Type string    `json:"type"`
	Time time.Time `json:"time"`
	Data any       `json:"data,omitempty"`
}

// Record encodes e. Events of one conversation share a key so they land on
// one partition in order.
func (s *Sink) Record(e eventbus.Event) (*kgo.Record, error) {
	value, err := json.Marshal(envelope{Type: e.Type, Time: e.Time, Data: e.Data})
	if err != nil {
		return nil, fmt.Errorf("encode event %s: %w", e.Type, err)
	}
	return &kgo.Record{
		Topic:   s.topic,
		Key:     []byte(conversationOf(e.Data)),
		Value:   value,
		Headers: []kgo.RecordHeader{{Key: KindHeader, Value: []byte(e.Type)}},
	}, nil
}

func conversationOf(data any) string {
	switch d := data.(type) {
	case eventbus.TaskChange:
		return d.ConversationID
	case eventbus.Delivery:
		return d.ConversationID
	case eventbus.Notify:
		return d.ConversationID
	}
	return ""
}

// Publish produces one event synchronously.
func (s *Sink) Publish(ctx context.Context, e eventbus.Event) error {
	rec, err := s.Record(e)
	if err != nil {
		return err
	}
	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.producer.ProduceSync(cctx, rec).FirstErr(); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// Run ships bus events until ctx is done. Broker failures are logged and
// the event is dropped.
func (s *Sink) Run(ctx context.Context, bus eventbus.Bus, prefixes ...string) error {
	if len(prefixes) == 0 {
		prefixes = DefaultPrefixes
	}
	ch, unsubscribe := bus.Subscribe(512, prefixes...)
	defer unsubscribe()
	s.log.Info("kafka sink started", logx.String("topic", s.topic))
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-ch:
			if !ok {
				return nil
			}
			if err := s.Publish(ctx, e); err != nil {
				s.log.Warn("event not shipped", logx.String("type", e.Type), logx.Err(err))
			}
		}
	}
}
