package deadletter

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/BrendanGleason/cloud-bigtable-client/types"
)

// NATSSinkConfig configures the NATS JetStream dead-letter sink.
type NATSSinkConfig struct {
	// StreamName is the JetStream stream that stores entries.
	// Default: "bigtable-dead-letter"
	StreamName string

	// SubjectPrefix is the prefix for subjects. Entries are published to
	// "{SubjectPrefix}.{table}" with subject-reserved characters in the
	// table name replaced by '_'.
	// Default: "bigtable.deadletter"
	SubjectPrefix string

	// ConsumerName is the durable pull consumer used by Fetch.
	// Default: "bigtable-dead-letter-worker"
	ConsumerName string

	// MaxAge is the maximum age of entries in the stream.
	// Default: 72 hours
	MaxAge time.Duration

	// MaxMsgs is the maximum number of entries in the stream.
	// Default: 1,000,000
	MaxMsgs int64

	// MaxBytes is the maximum total size of the stream in bytes.
	// Default: 1GB
	MaxBytes int64

	// Replicas is the number of stream replicas.
	// Default: 1 (use 3 for production clusters)
	Replicas int

	// DuplicateWindow is how long JetStream remembers entry IDs for deduplication.
	// Default: 2 minutes
	DuplicateWindow time.Duration

	// MaxDeliver is how many times an entry is handed to a worker before
	// JetStream stops redelivering it.
	// Default: 10
	MaxDeliver int

	// PublishTimeout is the timeout for publishing an entry.
	// Default: 5 seconds
	PublishTimeout time.Duration

	// FetchMaxWait bounds how long Fetch waits for entries.
	// Default: 1 second
	FetchMaxWait time.Duration
}

// DefaultNATSSinkConfig returns the default configuration.
//
// Returns:
//   - NATSSinkConfig: Default configuration with reasonable defaults
func DefaultNATSSinkConfig() NATSSinkConfig {
	return NATSSinkConfig{
		StreamName:      "bigtable-dead-letter",
		SubjectPrefix:   "bigtable.deadletter",
		ConsumerName:    "bigtable-dead-letter-worker",
		MaxAge:          72 * time.Hour,
		MaxMsgs:         1_000_000,
		MaxBytes:        1 << 30, // 1GB
		Replicas:        1,
		DuplicateWindow: 2 * time.Minute,
		MaxDeliver:      10,
		PublishTimeout:  5 * time.Second,
		FetchMaxWait:    time.Second,
	}
}

// NATSSinkOption configures a NATSSink.
type NATSSinkOption func(*NATSSinkConfig)

// WithStreamName sets the JetStream stream name.
func WithStreamName(name string) NATSSinkOption {
	return func(c *NATSSinkConfig) {
		c.StreamName = name
	}
}

// WithSubjectPrefix sets the subject prefix for entries.
func WithSubjectPrefix(prefix string) NATSSinkOption {
	return func(c *NATSSinkConfig) {
		c.SubjectPrefix = prefix
	}
}

// WithConsumerName sets the durable consumer name used by Fetch.
func WithConsumerName(name string) NATSSinkOption {
	return func(c *NATSSinkConfig) {
		c.ConsumerName = name
	}
}

// WithMaxAge sets the maximum age of entries in the stream.
func WithMaxAge(d time.Duration) NATSSinkOption {
	return func(c *NATSSinkConfig) {
		c.MaxAge = d
	}
}

// WithReplicas sets the number of stream replicas.
//
// Parameters:
//   - n: Number of replicas (1 for dev, 3 for production)
//
// Returns:
//   - NATSSinkOption: Configuration option
func WithReplicas(n int) NATSSinkOption {
	return func(c *NATSSinkConfig) {
		c.Replicas = n
	}
}

// WithMaxDeliver sets how many times an entry is delivered before it is abandoned.
func WithMaxDeliver(n int) NATSSinkOption {
	return func(c *NATSSinkConfig) {
		c.MaxDeliver = n
	}
}

// WithPublishTimeout sets the timeout for publishing entries.
func WithPublishTimeout(d time.Duration) NATSSinkOption {
	return func(c *NATSSinkConfig) {
		c.PublishTimeout = d
	}
}

// WithFetchMaxWait sets how long Fetch waits for entries.
func WithFetchMaxWait(d time.Duration) NATSSinkOption {
	return func(c *NATSSinkConfig) {
		c.FetchMaxWait = d
	}
}

// NATSSink is a durable dead-letter queue on NATS JetStream.
//
// Entries survive process restarts. Each entry is published with its ID as
// the JetStream message ID, so publishing the same entry twice inside the
// duplicate window stores it once.
type NATSSink struct {
	js     jetstream.JetStream
	stream jetstream.Stream
	config NATSSinkConfig

	mu       sync.RWMutex
	consumer jetstream.Consumer
	closed   bool
}

// Compile-time assertion that NATSSink implements Sink.
var _ Sink = (*NATSSink)(nil)

// NewNATSSink creates or updates the dead-letter stream and returns a sink for it.
//
// The caller owns the NATS connection behind js.
//
// Parameters:
//   - ctx: Context bounding stream creation
//   - js: A JetStream context (created via jetstream.New(conn))
//   - opts: Optional configuration options
//
// Returns:
//   - *NATSSink: A new sink
//   - error: Error if js is nil or the stream cannot be created
//
// Example:
//
//	nc, _ := nats.Connect("nats://localhost:4222")
//	js, _ := jetstream.New(nc)
//	sink, _ := deadletter.NewNATSSink(ctx, js)
func NewNATSSink(ctx context.Context, js jetstream.JetStream, opts ...NATSSinkOption) (*NATSSink, error) {
	if js == nil {
		return nil, fmt.Errorf("%w: JetStream context is nil", types.ErrInvalidConfig)
	}

	config := DefaultNATSSinkConfig()
	for _, opt := range opts {
		opt(&config)
	}

	stream, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        config.StreamName,
		Description: "Bigtable client dead-lettered mutations",
		Subjects:    []string{config.SubjectPrefix + ".>"},
		Retention:   jetstream.WorkQueuePolicy,
		MaxAge:      config.MaxAge,
		MaxMsgs:     config.MaxMsgs,
		MaxBytes:    config.MaxBytes,
		Replicas:    config.Replicas,
		Duplicates:  config.DuplicateWindow,
		Storage:     jetstream.FileStorage,
		Discard:     jetstream.DiscardOld,
	})
	if err != nil {
		return nil, fmt.Errorf("bigtable: create dead letter stream: %w", err)
	}

	return &NATSSink{
		js:     js,
		stream: stream,
		config: config,
	}, nil
}

// Subject returns the subject an entry for table is published to.
func (n *NATSSink) Subject(table string) string {
	return n.config.SubjectPrefix + "." + subjectToken(table)
}

// subjectToken replaces characters NATS treats as token separators or wildcards.
func subjectToken(s string) string {
	if s == "" {
		return "_"
	}

	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\r', '\n':
			return '_'
		default:
			return r
		}
	}, s)
}

// Publish stores e in the stream.
//
// Parameters:
//   - ctx: Context for cancellation; PublishTimeout is applied on top
//   - e: The entry to store
//
// Returns:
//   - error: ErrDeadLetterClosed after Close, or the publish error
func (n *NATSSink) Publish(ctx context.Context, e Entry) error {
	n.mu.RLock()
	closed := n.closed
	n.mu.RUnlock()
	if closed {
		return types.ErrDeadLetterClosed
	}

	data, err := e.MarshalMsg(nil)
	if err != nil {
		return fmt.Errorf("bigtable: marshal dead letter entry: %w", err)
	}

	pubCtx, cancel := context.WithTimeout(ctx, n.config.PublishTimeout)
	defer cancel()

	if _, err := n.js.Publish(pubCtx, n.Subject(e.Table), data, jetstream.WithMsgID(e.ID.String())); err != nil {
		return fmt.Errorf("bigtable: publish dead letter entry: %w", err)
	}

	return nil
}

// Delivery is an entry handed out by Fetch. Exactly one of Ack, Retry or
// Drop must be called once the entry is handled.
type Delivery struct {
	// Entry is the decoded entry.
	Entry Entry

	// NumDelivered is how many times JetStream has delivered this entry,
	// starting at 1.
	NumDelivered int

	msg jetstream.Msg
}

// Ack removes the entry from the stream.
func (d *Delivery) Ack() error {
	return d.msg.Ack()
}

// Retry asks JetStream to redeliver the entry after delay.
func (d *Delivery) Retry(delay time.Duration) error {
	return d.msg.NakWithDelay(delay)
}

// Drop removes the entry without redelivery.
func (d *Delivery) Drop() error {
	return d.msg.Term()
}

func (n *NATSSink) getConsumer(ctx context.Context) (jetstream.Consumer, error) {
	n.mu.RLock()
	c, closed := n.consumer, n.closed
	n.mu.RUnlock()
	if closed {
		return nil, types.ErrDeadLetterClosed
	}
	if c != nil {
		return c, nil
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.consumer != nil {
		return n.consumer, nil
	}

	c, err := n.stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Name:          n.config.ConsumerName,
		Durable:       n.config.ConsumerName,
		FilterSubject: n.config.SubjectPrefix + ".>",
		AckPolicy:     jetstream.AckExplicitPolicy,
		DeliverPolicy: jetstream.DeliverAllPolicy,
		MaxDeliver:    n.config.MaxDeliver,
	})
	if err != nil {
		return nil, fmt.Errorf("bigtable: create dead letter consumer: %w", err)
	}
	n.consumer = c

	return c, nil
}

// Fetch pulls up to batchSize entries from the stream.
//
// Malformed messages are terminated and skipped. An empty result with a nil
// error means no entries were available within FetchMaxWait.
//
// Parameters:
//   - ctx: Context used to create the consumer on first use
//   - batchSize: Maximum number of entries to return
//
// Returns:
//   - []*Delivery: Fetched entries
//   - error: Error if the consumer cannot be created or the fetch fails
func (n *NATSSink) Fetch(ctx context.Context, batchSize int) ([]*Delivery, error) {
	consumer, err := n.getConsumer(ctx)
	if err != nil {
		return nil, err
	}

	msgs, err := consumer.Fetch(batchSize, jetstream.FetchMaxWait(n.config.FetchMaxWait))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, jetstream.ErrNoMessages) {
			return nil, nil
		}

		return nil, fmt.Errorf("bigtable: fetch dead letter entries: %w", err)
	}

	result := make([]*Delivery, 0, batchSize)
	for msg := range msgs.Messages() {
		var e Entry
		if _, err := e.UnmarshalMsg(msg.Data()); err != nil {
			// Redelivery cannot fix a malformed entry.
			_ = msg.Term()

			continue
		}

		delivered := 1
		if md, err := msg.Metadata(); err == nil {
			delivered = int(md.NumDelivered) //nolint:gosec // bounded by MaxDeliver
		}

		result = append(result, &Delivery{Entry: e, NumDelivered: delivered, msg: msg})
	}

	if err := msgs.Error(); err != nil && !errors.Is(err, jetstream.ErrNoMessages) {
		return result, fmt.Errorf("bigtable: fetch dead letter entries: %w", err)
	}

	return result, nil
}

// MaxDeliver returns the configured redelivery limit.
func (n *NATSSink) MaxDeliver() int {
	return n.config.MaxDeliver
}

// Close rejects further publishes and fetches. The NATS connection stays open.
func (n *NATSSink) Close() {
	n.mu.Lock()
	n.closed = true
	n.mu.Unlock()
}
