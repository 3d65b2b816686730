package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/salonbook/libs/kafkax"
	"github.com/segmentio/kafka-go"
)

// Writer is the subset of *kafka.Writer the publisher uses.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Observer receives one call per event with outcome published, dropped
// or failed.
type Observer func(eventType, outcome string)

type PublisherConfig struct {
	Brokers string
	// Topic receives every event. Empty means one topic per event type.
	Topic     string
	Source    string
	Buffer    int
	BatchSize int
	Retries   int
	Backoff   time.Duration
}

// Publisher is a bounded in-process outbox drained to Kafka by Run.
type Publisher struct {
	logger    *slog.Logger
	brokers   []string
	topic     string
	source    string
	batchSize int
	retries   int
	backoff   time.Duration
	queue     chan kafka.Message
	observe   Observer
	newWriter func(brokers []string) Writer
}

func NewPublisher(logger *slog.Logger, cfg PublisherConfig, observe Observer) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 1024
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 500 * time.Millisecond
	}
	if observe == nil {
		observe = func(string, string) {}
	}
	return &Publisher{
		logger:    logger,
		brokers:   kafkax.SplitBrokers(cfg.Brokers),
		topic:     cfg.Topic,
		source:    cfg.Source,
		batchSize: cfg.BatchSize,
		retries:   cfg.Retries,
		backoff:   cfg.Backoff,
		queue:     make(chan kafka.Message, cfg.Buffer),
		observe:   observe,
		newWriter: func(brokers []string) Writer {
			return &kafka.Writer{
				Addr:         kafka.TCP(brokers...),
				Balancer:     &kafka.Hash{},
				RequiredAcks: kafka.RequireOne,
			}
		},
	}
}

func (p *Publisher) Enabled() bool { return len(p.brokers) > 0 }

// Enqueue hands ev to the background loop. It never blocks: events are
// dropped when publishing is disabled or the buffer is full.
func (p *Publisher) Enqueue(ctx context.Context, ev Event) {
	if !p.Enabled() {
		p.logger.Debug("event dropped (no kafka brokers configured)", "event_type", ev.EventType, "aggregate_id", ev.AggregateID)
		p.observe(ev.EventType, "dropped")
		return
	}
	meta := kafkax.EventMeta{EventID: uuid.NewString(), EventType: ev.EventType, Source: p.source}
	msg := kafka.Message{
		Topic:   p.topicFor(ev.EventType),
		Key:     []byte(ev.AggregateID),
		Value:   ev.Payload,
		Headers: kafkax.InjectTraceHeaders(ctx, meta.Headers()),
	}
	select {
	case p.queue <- msg:
	default:
		p.logger.Warn("event dropped (outbox full)", "event_type", ev.EventType, "aggregate_id", ev.AggregateID)
		p.observe(ev.EventType, "dropped")
	}
}

func (p *Publisher) topicFor(eventType string) string {
	if p.topic != "" {
		return p.topic
	}
	return eventType
}

// Run drains the outbox until ctx is done. Events still queued at shutdown
// are flushed with a short grace period.
func (p *Publisher) Run(ctx context.Context) {
	if !p.Enabled() {
		p.logger.Warn("event publisher disabled (no kafka brokers configured)")
		return
	}
	writer := p.newWriter(p.brokers)
	defer writer.Close()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			p.flush(flushCtx, writer)
			cancel()
			return
		case msg := <-p.queue:
			batch := p.collect(msg)
			p.publishBatch(ctx, writer, batch)
		}
	}
}

// collect gathers msg plus whatever is already buffered, up to batchSize.
func (p *Publisher) collect(first kafka.Message) []kafka.Message {
	batch := []kafka.Message{first}
	for len(batch) < p.batchSize {
		select {
		case m := <-p.queue:
			batch = append(batch, m)
		default:
			return batch
		}
	}
	return batch
}

func (p *Publisher) flush(ctx context.Context, writer Writer) {
	for {
		select {
		case msg := <-p.queue:
			p.publishBatch(ctx, writer, p.collect(msg))
		default:
			return
		}
	}
}

func (p *Publisher) publishBatch(ctx context.Context, writer Writer, batch []kafka.Message) {
	var err error
	for attempt := 0; attempt <= p.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(p.backoff * time.Duration(attempt)):
			}
		}
		if err = writer.WriteMessages(ctx, batch...); err == nil {
			for _, m := range batch {
				p.observe(kafkax.HeaderValue(m.Headers, "event_type"), "published")
			}
			return
		}
		if ctx.Err() != nil {
			break
		}
	}
	p.logger.Error("event publish failed", "err", err, "events", len(batch))
	for _, m := range batch {
		p.observe(kafkax.HeaderValue(m.Headers, "event_type"), "failed")
	}
}
