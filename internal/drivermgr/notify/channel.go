package notify

import (
	"context"
	"errors"
	"fmt"
	"path"
	"slices"
	"sync"

	"github.com/autopeer-io/drivermgr/internal/pkg/metrics"
	"github.com/autopeer-io/drivermgr/pkg/log"
)

// ErrClosed is returned by a closed channel.
var ErrClosed = errors.New("notification channel closed")

const (
	defaultBufferSize = 64

	// maxHeld bounds how many notifications of one vehicle wait for a missing
	// predecessor. Beyond it the gap is skipped.
	maxHeld = 64

	// backlogWarn is the queue length at which a slow subscriber is reported.
	backlogWarn = 1024
)

// Delivery outcomes recorded in metrics.
const (
	outcomeDelivered = "delivered"
	outcomeDropped   = "dropped"
	outcomeDeferred  = "deferred"
	outcomeDuplicate = "duplicate"
)

// Option configures a Channel.
type Option func(*Channel)

// WithBufferSize sets the per-subscriber buffer. Subscribers that do not drop slow
// deliveries queue the overflow without bound.
func WithBufferSize(n int) Option {
	return func(c *Channel) {
		if n > 0 {
			c.bufferSize = n
		}
	}
}

// WithDropSlow drops notifications for subscribers whose buffer is full instead of
// waiting for them.
func WithDropSlow(drop bool) Option {
	return func(c *Channel) { c.dropSlow = drop }
}

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(c *Channel) { c.logger = l }
}

// Channel fans entry change notifications out to subscribers in per-vehicle
// sequence order.
type Channel struct {
	bufferSize int
	dropSlow   bool
	logger     log.Logger

	mu     sync.Mutex
	closed bool
	subs   map[*Subscription]struct{}

	// next is the sequence number expected next, per vehicle.
	next map[string]uint64
	// held are notifications that arrived ahead of their predecessor.
	held map[string]map[uint64]Notification
}

// NewChannel creates an open channel.
func NewChannel(opts ...Option) *Channel {
	c := &Channel{
		bufferSize: defaultBufferSize,
		logger:     log.Std(),
		subs:       make(map[*Subscription]struct{}),
		next:       make(map[string]uint64),
		held:       make(map[string]map[uint64]Notification),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.WithName("notify")
	return c
}

// Publish hands n to every matching subscriber once all earlier notifications of the
// same vehicle have been handed out. Duplicates are discarded. Publish never waits for
// a subscriber and ignores cancellation of ctx, as n records a change that already
// happened.
func (c *Channel) Publish(_ context.Context, n Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}

	next, seen := c.next[n.Vehicle]
	if !seen {
		next = 1
	}

	switch {
	case n.Seq < next:
		metrics.NotificationsTotal.WithLabelValues(outcomeDuplicate).Inc()
		c.logger.Debug("Dropping duplicate notification", "vehicle", n.Vehicle, "seq", n.Seq)
		return nil
	case n.Seq > next:
		c.hold(n)
		if len(c.held[n.Vehicle]) <= maxHeld {
			metrics.NotificationsTotal.WithLabelValues(outcomeDeferred).Inc()
			return nil
		}
		// Give up on the gap and resume at the oldest held notification.
		seqs := make([]uint64, 0, len(c.held[n.Vehicle]))
		for s := range c.held[n.Vehicle] {
			seqs = append(seqs, s)
		}
		next = slices.Min(seqs)
		c.logger.Warn("Skipping missing notifications", "vehicle", n.Vehicle, "from", c.next[n.Vehicle], "to", next)
	default:
		c.hold(n)
	}

	for {
		held, ok := c.held[n.Vehicle][next]
		if !ok {
			break
		}
		delete(c.held[n.Vehicle], next)
		next++
		c.next[n.Vehicle] = next
		c.deliver(held)
	}
	if len(c.held[n.Vehicle]) == 0 {
		delete(c.held, n.Vehicle)
	}
	return nil
}

func (c *Channel) hold(n Notification) {
	m, ok := c.held[n.Vehicle]
	if !ok {
		m = make(map[uint64]Notification)
		c.held[n.Vehicle] = m
	}
	m[n.Seq] = n
}

// deliver hands n to every matching subscriber without blocking. Caller holds c.mu.
func (c *Channel) deliver(n Notification) {
	for sub := range c.subs {
		if !sub.filter.Match(n.Vehicle) {
			continue
		}

		if c.dropSlow {
			select {
			case sub.ch <- n:
				metrics.NotificationsTotal.WithLabelValues(outcomeDelivered).Inc()
			case <-sub.done:
			default:
				metrics.NotificationsTotal.WithLabelValues(outcomeDropped).Inc()
				c.logger.Warn("Subscriber too slow, notification dropped", "vehicle", n.Vehicle, "seq", n.Seq)
			}
			continue
		}

		if backlog := sub.enqueue(n); backlog == backlogWarn {
			c.logger.Warn("Subscriber falling behind", "backlog", backlog, "vehicle", n.Vehicle, "seq", n.Seq)
		}
	}
}

// Subscribe registers a new subscriber for the vehicles matching filter.
func (c *Channel) Subscribe(filter Filter) (*Subscription, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}
	sub := &Subscription{
		ch:     make(chan Notification, c.bufferSize),
		done:   make(chan struct{}),
		filter: filter,
		owner:  c,
	}
	if !c.dropSlow {
		sub.wake = make(chan struct{}, 1)
		go sub.pump()
	}
	c.subs[sub] = struct{}{}
	return sub, nil
}

// Close ends every subscription. Later calls to Publish and Subscribe fail.
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	for sub := range c.subs {
		sub.stop()
		c.release(sub)
	}
}

func (c *Channel) remove(sub *Subscription) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.subs[sub]; ok {
		c.release(sub)
	}
}

// release forgets a stopped subscription. A pumped stream is closed by its pump.
// Caller holds c.mu.
func (c *Channel) release(sub *Subscription) {
	delete(c.subs, sub)
	if sub.wake == nil {
		close(sub.ch)
	}
}

// Subscription receives notifications until it or its channel is closed.
type Subscription struct {
	ch     chan Notification
	done   chan struct{}
	once   sync.Once
	filter Filter
	owner  *Channel

	// wake is nil when slow deliveries are dropped and there is no pump.
	wake  chan struct{}
	mu    sync.Mutex
	queue []Notification
}

// Events returns the notification stream. It is closed when the subscription ends.
func (s *Subscription) Events() <-chan Notification { return s.ch }

// Close ends the subscription. It is safe to call more than once.
func (s *Subscription) Close() {
	s.stop()
	s.owner.remove(s)
}

func (s *Subscription) stop() {
	s.once.Do(func() { close(s.done) })
}

// enqueue appends n for the pump and returns the queue length.
func (s *Subscription) enqueue(n Notification) int {
	s.mu.Lock()
	s.queue = append(s.queue, n)
	backlog := len(s.queue)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return backlog
}

// pump moves queued notifications into the stream in order and closes the stream
// once the subscription stops. Undelivered notifications are discarded.
func (s *Subscription) pump() {
	defer close(s.ch)
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			select {
			case <-s.wake:
				continue
			case <-s.done:
				return
			}
		}
		n := s.queue[0]
		s.queue[0] = Notification{}
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.ch <- n:
			metrics.NotificationsTotal.WithLabelValues(outcomeDelivered).Inc()
		case <-s.done:
			s.discard(1)
			return
		}
	}
}

func (s *Subscription) discard(extra int) {
	s.mu.Lock()
	dropped := len(s.queue) + extra
	s.queue = nil
	s.mu.Unlock()
	metrics.NotificationsTotal.WithLabelValues(outcomeDropped).Add(float64(dropped))
}

// Filter selects vehicles by name. An empty filter matches every vehicle.
type Filter struct {
	// Vehicles are glob patterns as understood by path.Match.
	Vehicles []string
}

// Validate rejects malformed patterns.
func (f Filter) Validate() error {
	for _, p := range f.Vehicles {
		if _, err := path.Match(p, ""); err != nil {
			return fmt.Errorf("invalid vehicle pattern %q: %w", p, err)
		}
	}
	return nil
}

// Match reports whether vehicle is selected.
func (f Filter) Match(vehicle string) bool {
	if len(f.Vehicles) == 0 {
		return true
	}
	for _, p := range f.Vehicles {
		if ok, _ := path.Match(p, vehicle); ok {
			return true
		}
	}
	return false
}
