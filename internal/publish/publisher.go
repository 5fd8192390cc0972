package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"TrioMint/internal/event"
	"TrioMint/internal/observability"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

// StreamName holds all outbound market events.
const StreamName = "TRIO_MARKET_EVENTS"

// StreamPublisher is the slice of the JetStream API the publisher needs.
type StreamPublisher interface {
	Publish(ctx context.Context, subject string, data []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// Publisher drains market events from the engines and publishes them to NATS
// JetStream. Publication is best-effort: a failed publish is logged and
// counted, never retried against the engine. Consumers that need a complete
// view read the ledger.
// Subjects follow the pattern: trio.market.events.{event_type}
type Publisher struct {
	js        StreamPublisher
	inputChan <-chan event.MarketEvent
	metrics   *observability.Metrics
	log       zerolog.Logger
}

func NewPublisher(
	js StreamPublisher,
	inputChan <-chan event.MarketEvent,
	metrics *observability.Metrics,
	log zerolog.Logger,
) *Publisher {
	return &Publisher{
		js:        js,
		inputChan: inputChan,
		metrics:   metrics,
		log:       log,
	}
}

// Run starts the publisher loop. On cancellation it flushes events already
// buffered in the input channel before returning; the channel itself is never
// closed, so engines finishing in-flight work during shutdown can still emit
// safely.
func (p *Publisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			p.flush()
			return ctx.Err()

		case evt, ok := <-p.inputChan:
			if !ok {
				return nil
			}
			p.dispatch(ctx, evt)
		}
	}
}

// flush publishes whatever is buffered at shutdown under its own deadline.
// Events emitted after the buffer empties are dropped.
func (p *Publisher) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for {
		select {
		case evt, ok := <-p.inputChan:
			if !ok {
				return
			}
			p.dispatch(ctx, evt)
		default:
			return
		}
	}
}

func (p *Publisher) dispatch(ctx context.Context, evt event.MarketEvent) {
	if err := p.publish(ctx, evt); err != nil {
		p.metrics.PublishErrors.Inc()
		p.log.Warn().
			Int64("coin_id", evt.CoinID).
			Str("event_type", evt.EventType).
			Err(err).
			Msg("outbound publish failed")
		return
	}
	p.metrics.EventsPublished.Inc()
}

func (p *Publisher) publish(ctx context.Context, evt event.MarketEvent) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	subject := fmt.Sprintf("trio.market.events.%s", strings.ToLower(evt.EventType))
	_, err = p.js.Publish(ctx, subject, data)
	return err
}

// Connect opens a NATS connection and a JetStream context.
func Connect(url string) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream context: %w", err)
	}
	return nc, js, nil
}

// EnsureStream creates or updates the outbound events stream.
func EnsureStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      StreamName,
		Subjects:  []string{"trio.market.events.>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create outbound stream: %w", err)
	}
	return nil
}
