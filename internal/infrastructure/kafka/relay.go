// Package kafka forwards domain events from the in-process bus to a Kafka
// topic for downstream consumers.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	domoutbox "github.com/Zhima-Mochi/minishop-inventory/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-inventory/internal/observability"
	"github.com/Zhima-Mochi/minishop-inventory/internal/observability/logctx"
)

const (
	HeaderEventName = "event_name"

	peerKafka    = "kafka"
	writeTimeout = 5 * time.Second
)

// Producer is the part of *kafka.Writer the relay needs.
type Producer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

func NewWriter(brokers []string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireAll,
	}
}

// Envelope is the message value written for every event.
type Envelope struct {
	Name      string          `json:"name"`
	Key       string          `json:"key,omitempty"`
	Payload   json.RawMessage `json:"payload"`
	RelayedAt time.Time       `json:"relayed_at"`
}

// Relay subscribes to every event on the bus and writes it to one topic,
// keyed by aggregate id so events of one aggregate stay ordered.
type Relay struct {
	producer Producer
	topic    string
	log      observability.Logger
	requests observability.Counter   // external_requests_total{peer,endpoint,outcome}
	duration observability.Histogram // external_request_duration_seconds{peer,endpoint}
}

func NewRelay(producer Producer, topic string, tel observability.Observability) *Relay {
	if tel == nil {
		tel = observability.Nop()
	}
	return &Relay{
		producer: producer,
		topic:    topic,
		log:      tel.Logger().With(observability.F("component", "kafka_relay"), observability.F("topic", topic)),
		requests: tel.Metrics().Counter(observability.MExternalRequests),
		duration: tel.Metrics().Histogram(observability.MExternalRequestDuration),
	}
}

// Attach registers the relay as a wildcard subscriber.
func (r *Relay) Attach(sub domoutbox.Subscriber) {
	sub.Subscribe(domoutbox.AllEvents, r.Forward)
}

// Forward writes e to the topic. Write failures are logged and returned to
// the bus, which does not redeliver.
func (r *Relay) Forward(ctx context.Context, e domoutbox.Event) error {
	msg, err := r.message(ctx, e)
	if err != nil {
		return err
	}

	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	start := time.Now()
	err = r.producer.WriteMessages(writeCtx, msg)
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	r.requests.Add(1,
		observability.L("peer", peerKafka),
		observability.L("endpoint", e.EventName()),
		observability.L("outcome", outcome),
	)
	r.duration.Observe(time.Since(start).Seconds(),
		observability.L("peer", peerKafka),
		observability.L("endpoint", e.EventName()),
	)

	logger := logctx.FromOr(ctx, r.log).With(observability.F("event", e.EventName()))
	if err != nil {
		logger.Error("event_relay_failed", observability.F("error", err.Error()))
		return fmt.Errorf("kafka relay: write %s: %w", e.EventName(), err)
	}
	logger.Debug("event_relayed", observability.F("key", string(msg.Key)))
	return nil
}

func (r *Relay) message(ctx context.Context, e domoutbox.Event) (kafka.Message, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("kafka relay: encode %s: %w", e.EventName(), err)
	}
	var key string
	if k, ok := e.(domoutbox.Keyed); ok {
		key = k.AggregateID()
	}
	value, err := json.Marshal(Envelope{
		Name:      e.EventName(),
		Key:       key,
		Payload:   payload,
		RelayedAt: time.Now().UTC(),
	})
	if err != nil {
		return kafka.Message{}, fmt.Errorf("kafka relay: encode envelope: %w", err)
	}

	headers := []kafka.Header{{Key: HeaderEventName, Value: []byte(e.EventName())}}
	return kafka.Message{
		Topic:   r.topic,
		Key:     []byte(key),
		Value:   value,
		Headers: InjectHeaders(ctx, headers),
	}, nil
}

// InjectHeaders appends the W3C trace context of ctx to headers.
func InjectHeaders(ctx context.Context, headers []kafka.Header) []kafka.Header {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	for k, v := range carrier {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	return headers
}

// ExtractHeaders restores the trace context carried by headers.
func ExtractHeaders(ctx context.Context, headers []kafka.Header) context.Context {
	carrier := propagation.MapCarrier{}
	for _, h := range headers {
		carrier[h.Key] = string(h.Value)
	}
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}
