package stream

import (
	"context"
	"sync"
	"time"

	"chanlun/internal/engine"
)

// HubConfig holds configuration for the Hub.
type HubConfig struct {
	// BufferSize is the size of the internal envelope channel buffer.
	BufferSize int
	// SubscriberBufferSize is the size of each subscriber's channel buffer.
	SubscriberBufferSize int
}

// DefaultHubConfig returns the default hub configuration.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		BufferSize:           1000,
		SubscriberBufferSize: 100,
	}
}

// Hub fans envelopes out to channel subscribers and registered consumers.
// Channel sends never block: a full subscriber loses the envelope and the
// drop is counted. Consumers run on the broadcast goroutine in publish order.
type Hub struct {
	config      HubConfig
	mu          sync.RWMutex
	subscribers map[string][]*Subscriber
	envChan     chan Envelope
	done        chan struct{}
	stopped     chan struct{}
	started     bool
	consumers   []Consumer
	consumersMu sync.RWMutex

	received  uint64
	broadcast uint64
	dropped   uint64
	metricsMu sync.RWMutex
}

// Subscriber is a channel subscriber for one stream.
type Subscriber struct {
	ID           string
	Channel      chan Envelope
	DroppedCount int
	CreatedAt    time.Time
}

// NewHub creates a hub with the default configuration.
func NewHub() *Hub {
	return NewHubWithConfig(DefaultHubConfig())
}

// NewHubWithConfig creates a hub with a custom configuration.
func NewHubWithConfig(config HubConfig) *Hub {
	return &Hub{
		config:      config,
		subscribers: make(map[string][]*Subscriber),
		envChan:     make(chan Envelope, config.BufferSize),
	}
}

// Start begins the distribution loop.
func (h *Hub) Start(ctx context.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.started {
		return
	}
	h.started = true
	h.done = make(chan struct{})
	h.stopped = make(chan struct{})
	go h.broadcastLoop(ctx, h.done, h.stopped)
}

func (h *Hub) broadcastLoop(ctx context.Context, done, stopped chan struct{}) {
	defer close(stopped)
	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			h.drain()
			return
		case env := <-h.envChan:
			h.deliver(env)
		}
	}
}

// drain delivers whatever was queued before Stop.
func (h *Hub) drain() {
	for {
		select {
		case env := <-h.envChan:
			h.deliver(env)
		default:
			return
		}
	}
}

func (h *Hub) deliver(env Envelope) {
	h.metricsMu.Lock()
	h.received++
	h.metricsMu.Unlock()

	h.fanOut(env)
	h.notifyConsumers(env)
}

// Stop flushes queued envelopes, waits for the loop to exit and closes all
// subscriber channels.
func (h *Hub) Stop() {
	h.mu.Lock()
	if !h.started {
		h.mu.Unlock()
		return
	}
	h.started = false
	close(h.done)
	stopped := h.stopped
	h.mu.Unlock()

	<-stopped

	h.mu.Lock()
	defer h.mu.Unlock()
	for stream, subs := range h.subscribers {
		for _, sub := range subs {
			close(sub.Channel)
		}
		delete(h.subscribers, stream)
	}
}

// Subscribe returns a channel receiving the envelopes of streamID.
func (h *Hub) Subscribe(streamID string) <-chan Envelope {
	return h.SubscribeWithID(streamID, "")
}

// SubscribeWithID adds a named subscriber for streamID.
func (h *Hub) SubscribeWithID(streamID, id string) <-chan Envelope {
	ch := make(chan Envelope, h.config.SubscriberBufferSize)
	sub := &Subscriber{
		ID:        id,
		Channel:   ch,
		CreatedAt: time.Now(),
	}

	h.mu.Lock()
	h.subscribers[streamID] = append(h.subscribers[streamID], sub)
	h.mu.Unlock()
	return ch
}

// Unsubscribe removes and closes a subscriber channel.
func (h *Hub) Unsubscribe(streamID string, ch <-chan Envelope) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs := h.subscribers[streamID]
	for i, sub := range subs {
		if sub.Channel == ch {
			close(sub.Channel)
			h.subscribers[streamID] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(h.subscribers[streamID]) == 0 {
		delete(h.subscribers, streamID)
	}
}

// Publish queues env for distribution. It never blocks: when the internal
// buffer is full the envelope is dropped and counted.
func (h *Hub) Publish(env Envelope) {
	select {
	case h.envChan <- env:
	default:
		h.metricsMu.Lock()
		h.dropped++
		h.metricsMu.Unlock()
	}
}

// PublishWait queues env, waiting for buffer space. It returns false when the
// hub is not running, or when Stop or the Start context ends the loop before
// the envelope is queued.
func (h *Hub) PublishWait(env Envelope) bool {
	h.mu.RLock()
	started, done, stopped := h.started, h.done, h.stopped
	h.mu.RUnlock()
	if !started {
		return false
	}
	select {
	case <-stopped:
		return false
	default:
	}
	select {
	case h.envChan <- env:
		return true
	case <-done:
		return false
	case <-stopped:
		return false
	}
}

func (h *Hub) fanOut(env Envelope) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.subscribers[env.StreamID.String()] {
		select {
		case sub.Channel <- env:
			h.metricsMu.Lock()
			h.broadcast++
			h.metricsMu.Unlock()
		default:
			sub.DroppedCount++
			h.metricsMu.Lock()
			h.dropped++
			h.metricsMu.Unlock()
		}
	}
}

// SubscriberCount returns the number of subscribers of a stream.
func (h *Hub) SubscriberCount(streamID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[streamID])
}

// HubMetrics contains hub counters.
type HubMetrics struct {
	Received    uint64
	Broadcast   uint64
	Dropped     uint64
	Subscribers int
	Streams     int
}

// Metrics returns the hub counters.
func (h *Hub) Metrics() HubMetrics {
	h.mu.RLock()
	subs := 0
	for _, s := range h.subscribers {
		subs += len(s)
	}
	streams := len(h.subscribers)
	h.mu.RUnlock()

	h.metricsMu.RLock()
	defer h.metricsMu.RUnlock()
	return HubMetrics{
		Received:    h.received,
		Broadcast:   h.broadcast,
		Dropped:     h.dropped,
		Subscribers: subs,
		Streams:     streams,
	}
}

// IsStarted returns whether the hub is running.
func (h *Hub) IsStarted() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.started
}

// Consumer processes every envelope of the streams it selects.
type Consumer interface {
	OnEnvelope(env Envelope)
	// Streams returns the stream IDs of interest; empty means all.
	Streams() []string
}

// RegisterConsumer adds a consumer.
func (h *Hub) RegisterConsumer(consumer Consumer) {
	h.consumersMu.Lock()
	h.consumers = append(h.consumers, consumer)
	h.consumersMu.Unlock()
}

// UnregisterConsumer removes a consumer.
func (h *Hub) UnregisterConsumer(consumer Consumer) {
	h.consumersMu.Lock()
	defer h.consumersMu.Unlock()

	for i, c := range h.consumers {
		if c == consumer {
			h.consumers = append(h.consumers[:i], h.consumers[i+1:]...)
			break
		}
	}
}

func (h *Hub) notifyConsumers(env Envelope) {
	h.consumersMu.RLock()
	consumers := make([]Consumer, len(h.consumers))
	copy(consumers, h.consumers)
	h.consumersMu.RUnlock()

	id := env.StreamID.String()
	for _, consumer := range consumers {
		if streams := consumer.Streams(); len(streams) == 0 || containsStream(streams, id) {
			consumer.OnEnvelope(env)
		}
	}
}

func containsStream(streams []string, id string) bool {
	for _, s := range streams {
		if s == id {
			return true
		}
	}
	return false
}

// ConsumerFunc adapts a function to Consumer.
type ConsumerFunc struct {
	streams []string
	fn      func(Envelope)
}

// NewConsumerFunc creates a ConsumerFunc.
func NewConsumerFunc(streams []string, fn func(Envelope)) *ConsumerFunc {
	return &ConsumerFunc{streams: streams, fn: fn}
}

// OnEnvelope implements Consumer.
func (c *ConsumerFunc) OnEnvelope(env Envelope) {
	if c.fn != nil {
		c.fn(env)
	}
}

// Streams implements Consumer.
func (c *ConsumerFunc) Streams() []string {
	return c.streams
}

// Publisher publishes every processed bar of one chain to a hub.
type Publisher struct {
	hub  *Hub
	id   Identity
	wait bool
}

// NewPublisher returns an engine observer feeding hub under id. Envelopes
// are dropped when the hub is saturated.
func NewPublisher(hub *Hub, id Identity) *Publisher {
	return &Publisher{hub: hub, id: id}
}

// NewWaitingPublisher is like NewPublisher but applies backpressure to the
// chain instead of dropping, for consumers that must see every bar.
func NewWaitingPublisher(hub *Hub, id Identity) *Publisher {
	return &Publisher{hub: hub, id: id, wait: true}
}

// ObserveBar implements engine.Observer.
func (p *Publisher) ObserveBar(snap *engine.Snapshot, _ time.Duration) {
	env := NewEnvelope(p.id, snap)
	if !p.wait {
		p.hub.Publish(env)
		return
	}
	if !p.hub.PublishWait(env) {
		p.hub.metricsMu.Lock()
		p.hub.dropped++
		p.hub.metricsMu.Unlock()
	}
}
