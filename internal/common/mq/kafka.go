package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"contestjudge/pkg/utils/logger"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// deliveryHeader carries the retry bookkeeping of a judge message so a
// redelivered or dead-lettered task keeps its attempt count.
const deliveryHeader = "cj-delivery"

const fetchBackoff = 200 * time.Millisecond

type deliveryMeta struct {
	ID           string    `json:"id,omitempty"`
	Published    time.Time `json:"ts"`
	Retry        int       `json:"retry,omitempty"`
	MaxRetries   int       `json:"max,omitempty"`
	ExpirationMs int64     `json:"exp,omitempty"`
}

// KafkaConfig holds the broker settings the judge server exposes in yaml.
type KafkaConfig struct {
	Brokers      []string
	ClientID     string
	RequiredAcks kafka.RequiredAcks
	BatchSize    int
	BatchTimeout time.Duration
	Compression  kafka.Compression
	MinBytes     int
	MaxBytes     int
	MaxWait      time.Duration
	DialTimeout  time.Duration
}

func (c KafkaConfig) withDefaults() KafkaConfig {
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.BatchTimeout <= 0 {
		c.BatchTimeout = 10 * time.Millisecond
	}
	if c.MinBytes <= 0 {
		c.MinBytes = 1
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = 10 << 20
	}
	if c.MaxWait <= 0 {
		c.MaxWait = time.Second
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 10 * time.Second
	}
	if c.RequiredAcks == kafka.RequireNone {
		c.RequiredAcks = kafka.RequireAll
	}
	return c
}

// KafkaQueue is the MessageQueue used when judge workers run in separate
// processes. Messages are keyed by id so all attempts for one submission
// land on the same partition.
type KafkaQueue struct {
	cfg    KafkaConfig
	dialer *kafka.Dialer
	writer *kafka.Writer

	mu      sync.Mutex
	subs    []*kafkaConsumer
	running bool
	closed  bool
}

type kafkaConsumer struct {
	topic   string
	handler HandlerFunc
	opts    SubscribeOptions
	parent  context.Context

	reader *kafka.Reader
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewKafkaQueue builds the producer. Consumers start on Start.
func NewKafkaQueue(cfg KafkaConfig) (*KafkaQueue, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	cfg = cfg.withDefaults()
	dialer := &kafka.Dialer{ClientID: cfg.ClientID, Timeout: cfg.DialTimeout, DualStack: true}
	q := &KafkaQueue{cfg: cfg, dialer: dialer}
	q.writer = &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: cfg.RequiredAcks,
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchTimeout,
		Compression:  cfg.Compression,
		Transport: &kafka.Transport{
			ClientID: cfg.ClientID,
			Dial: func(ctx context.Context, network, addr string) (net.Conn, error) {
				return dialer.DialContext(ctx, network, addr)
			},
		},
	}
	return q, nil
}

func (q *KafkaQueue) Publish(ctx context.Context, topic string, message *Message) error {
	if topic == "" {
		return errors.New("topic is required")
	}
	if message == nil {
		return errors.New("message is nil")
	}
	return q.writer.WriteMessages(ctx, encodeKafka(topic, message))
}

func (q *KafkaQueue) Subscribe(ctx context.Context, topic string, handler HandlerFunc) error {
	return q.SubscribeWithOptions(ctx, topic, handler, nil)
}

// SubscribeWithOptions registers a consumer group reader for topic. The group
// defaults to one per topic so every judge process shares the task stream.
func (q *KafkaQueue) SubscribeWithOptions(ctx context.Context, topic string, handler HandlerFunc, opts *SubscribeOptions) error {
	if topic == "" || handler == nil {
		return errors.New("topic and handler are required")
	}
	var o SubscribeOptions
	if opts != nil {
		o = *opts
	}
	o.SetDefaults()
	if o.ConsumerGroup == "" {
		o.ConsumerGroup = "contestjudge-" + topic
	}
	if ctx == nil {
		ctx = context.Background()
	}
	c := &kafkaConsumer{topic: topic, handler: handler, opts: o, parent: ctx}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	q.subs = append(q.subs, c)
	if q.running {
		c.start(q)
	}
	return nil
}

func (q *KafkaQueue) Start() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	if !q.running {
		for _, c := range q.subs {
			c.start(q)
		}
		q.running = true
	}
	return nil
}

// Stop cancels every consumer and waits for in-flight handlers.
func (q *KafkaQueue) Stop() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, c := range q.subs {
		c.stop()
	}
	q.running = false
	return nil
}

// Ping succeeds when any configured broker accepts a connection.
func (q *KafkaQueue) Ping(ctx context.Context) error {
	var errs []error
	for _, broker := range q.cfg.Brokers {
		conn, err := q.dialer.DialContext(ctx, "tcp", broker)
		if err == nil {
			return conn.Close()
		}
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (q *KafkaQueue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	q.mu.Unlock()
	_ = q.Stop()
	return q.writer.Close()
}

// start runs one fetch loop feeding opts.Concurrency handlers. An offset is
// committed only after its handler settled and the consumer is still live.
func (c *kafkaConsumer) start(q *KafkaQueue) {
	c.reader = kafka.NewReader(kafka.ReaderConfig{
		Brokers:     q.cfg.Brokers,
		GroupID:     c.opts.ConsumerGroup,
		Topic:       c.topic,
		Dialer:      q.dialer,
		MinBytes:    q.cfg.MinBytes,
		MaxBytes:    q.cfg.MaxBytes,
		MaxWait:     q.cfg.MaxWait,
		StartOffset: kafka.FirstOffset,
	})
	ctx, cancel := context.WithCancel(c.parent)
	c.cancel = cancel

	inbox := make(chan kafka.Message, c.opts.Concurrency*c.opts.PrefetchCount)
	c.wg.Add(1 + c.opts.Concurrency)
	go func() {
		defer c.wg.Done()
		defer close(inbox)
		c.fetch(ctx, inbox)
	}()
	for i := 0; i < c.opts.Concurrency; i++ {
		go func() {
			defer c.wg.Done()
			for msg := range inbox {
				deliver(ctx, c.topic, c.handler, decodeKafka(msg), c.opts, q.Publish)
				if ctx.Err() != nil {
					continue
				}
				if err := c.reader.CommitMessages(ctx, msg); err != nil {
					logger.Warn(ctx, "kafka commit failed", zap.String("topic", c.topic), zap.Error(err))
				}
			}
		}()
	}
}

func (c *kafkaConsumer) fetch(ctx context.Context, inbox chan<- kafka.Message) {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn(ctx, "kafka fetch failed", zap.String("topic", c.topic), zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(fetchBackoff):
			}
			continue
		}
		select {
		case inbox <- msg:
		case <-ctx.Done():
			return
		}
	}
}

func (c *kafkaConsumer) stop() {
	if c.cancel == nil {
		return
	}
	c.cancel()
	c.wg.Wait()
	_ = c.reader.Close()
	c.cancel, c.reader = nil, nil
}

func encodeKafka(topic string, m *Message) kafka.Message {
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now()
	}
	meta, _ := json.Marshal(deliveryMeta{
		ID:           m.ID,
		Published:    m.Timestamp,
		Retry:        m.RetryCount,
		MaxRetries:   m.MaxRetries,
		ExpirationMs: m.Expiration.Milliseconds(),
	})
	headers := make([]kafka.Header, 0, len(m.Headers)+1)
	for k, v := range m.Headers {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	headers = append(headers, kafka.Header{Key: deliveryHeader, Value: meta})
	return kafka.Message{Topic: topic, Key: []byte(m.ID), Value: m.Body, Headers: headers, Time: m.Timestamp}
}

// decodeKafka restores a Message. A missing or corrupt delivery header falls
// back to the record key and broker timestamp.
func decodeKafka(msg kafka.Message) *Message {
	m := &Message{ID: string(msg.Key), Body: msg.Value, Headers: map[string]string{}, Timestamp: msg.Time}
	for _, h := range msg.Headers {
		if h.Key != deliveryHeader {
			m.Headers[h.Key] = string(h.Value)
			continue
		}
		var meta deliveryMeta
		if err := json.Unmarshal(h.Value, &meta); err != nil {
			continue
		}
		if meta.ID != "" {
			m.ID = meta.ID
		}
		if !meta.Published.IsZero() {
			m.Timestamp = meta.Published
		}
		m.RetryCount = max(meta.Retry, 0)
		m.MaxRetries = max(meta.MaxRetries, 0)
		if meta.ExpirationMs > 0 {
			m.Expiration = time.Duration(meta.ExpirationMs) * time.Millisecond
		}
	}
	return m
}

// ParseCompression maps a config string to a kafka codec.
func ParseCompression(name string) (kafka.Compression, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "none":
		return 0, nil
	case "gzip":
		return kafka.Gzip, nil
	case "snappy":
		return kafka.Snappy, nil
	case "lz4":
		return kafka.Lz4, nil
	case "zstd":
		return kafka.Zstd, nil
	default:
		return 0, fmt.Errorf("unsupported kafka compression %q", name)
	}
}
