package mq

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrQueueClosed is returned by operations on a closed queue.
	ErrQueueClosed = errors.New("message queue is closed")

	errPanic = errors.New("handler panic")
)

// MemoryConfig configures the in-process driver.
type MemoryConfig struct {
	// Buffer is the capacity of each topic channel. Publish blocks when it is full.
	Buffer int `yaml:"buffer"`
}

// MemoryQueue is a single-process MessageQueue: one bounded channel per topic
// drained by a fixed pool of handler goroutines.
type MemoryQueue struct {
	buffer int

	mu            sync.Mutex
	topics        map[string]chan *Message
	subscriptions []*memorySubscription
	started       bool
	closed        bool
	done          chan struct{}
}

type memorySubscription struct {
	topic   string
	handler HandlerFunc
	opts    SubscribeOptions
	baseCtx context.Context

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewMemoryQueue creates an in-process queue.
func NewMemoryQueue(cfg MemoryConfig) *MemoryQueue {
	if cfg.Buffer <= 0 {
		cfg.Buffer = 1024
	}
	return &MemoryQueue{
		buffer: cfg.Buffer,
		topics: make(map[string]chan *Message),
		done:   make(chan struct{}),
	}
}

func (q *MemoryQueue) topicChan(topic string) chan *Message {
	ch, ok := q.topics[topic]
	if !ok {
		ch = make(chan *Message, q.buffer)
		q.topics[topic] = ch
	}
	return ch
}

// Publish enqueues a copy of message, blocking while the topic buffer is full.
func (q *MemoryQueue) Publish(ctx context.Context, topic string, message *Message) error {
	if message == nil {
		return errors.New("message is nil")
	}
	if topic == "" {
		return errors.New("topic is required")
	}
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	ch := q.topicChan(topic)
	q.mu.Unlock()

	clone := cloneMessage(message)
	select {
	case ch <- clone:
		return nil
	case <-q.done:
		return ErrQueueClosed
	case <-ctx.Done():
		return fmt.Errorf("publish to %s: %w", topic, ctx.Err())
	}
}

// Subscribe subscribes to a topic with default options.
func (q *MemoryQueue) Subscribe(ctx context.Context, topic string, handler HandlerFunc) error {
	return q.SubscribeWithOptions(ctx, topic, handler, nil)
}

// SubscribeWithOptions registers a handler pool. Each topic accepts one subscription.
func (q *MemoryQueue) SubscribeWithOptions(ctx context.Context, topic string, handler HandlerFunc, opts *SubscribeOptions) error {
	if topic == "" {
		return errors.New("topic is required")
	}
	if handler == nil {
		return errors.New("handler is required")
	}
	var options SubscribeOptions
	if opts != nil {
		options = *opts
	}
	options.SetDefaults()
	if ctx == nil {
		ctx = context.Background()
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	for _, sub := range q.subscriptions {
		if sub.topic == topic {
			return fmt.Errorf("topic %s already has a subscription", topic)
		}
	}
	sub := &memorySubscription{topic: topic, handler: handler, opts: options, baseCtx: ctx}
	q.subscriptions = append(q.subscriptions, sub)
	if q.started {
		q.startSubscription(sub)
	}
	return nil
}

// Start starts consuming messages for all subscriptions.
func (q *MemoryQueue) Start() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	if q.started {
		return nil
	}
	for _, sub := range q.subscriptions {
		q.startSubscription(sub)
	}
	q.started = true
	return nil
}

func (q *MemoryQueue) startSubscription(sub *memorySubscription) {
	ch := q.topicChan(sub.topic)
	ctx, cancel := context.WithCancel(sub.baseCtx)
	sub.cancel = cancel
	for i := 0; i < sub.opts.Concurrency; i++ {
		sub.wg.Add(1)
		go func() {
			defer sub.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case m := <-ch:
					deliver(ctx, sub.topic, sub.handler, m, sub.opts, q.Publish)
				}
			}
		}()
	}
}

// Stop cancels handler pools and waits for in-flight messages.
func (q *MemoryQueue) Stop() error {
	q.mu.Lock()
	subs := append([]*memorySubscription(nil), q.subscriptions...)
	q.started = false
	q.mu.Unlock()

	for _, sub := range subs {
		if sub.cancel != nil {
			sub.cancel()
		}
	}
	for _, sub := range subs {
		sub.wg.Wait()
	}
	return nil
}

// Pending reports buffered, undelivered messages for topic.
func (q *MemoryQueue) Pending(topic string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	if ch, ok := q.topics[topic]; ok {
		return len(ch)
	}
	return 0
}

func (q *MemoryQueue) Ping(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	return nil
}

// Close stops consumers; buffered messages are discarded.
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.done)
	q.mu.Unlock()
	return q.Stop()
}

func cloneMessage(m *Message) *Message {
	clone := *m
	clone.Headers = make(map[string]string, len(m.Headers))
	for k, v := range m.Headers {
		clone.Headers[k] = v
	}
	if clone.Body != nil {
		clone.Body = append([]byte(nil), m.Body...)
	}
	return &clone
}
