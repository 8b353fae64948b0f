// Package broadcast fans computed totals out to connected subscribers.
package broadcast

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"toggl-earnings/internal/metrics"
)

// Message is the payload pushed to subscribers. Month is nil until a total
// has been computed.
type Message struct {
	Month *string `json:"month"`
}

// Subscriber is one live connection.
type Subscriber interface {
	ID() string
	Send(ctx context.Context, msg Message) error
}

// Broadcaster tracks connected subscribers.
type Broadcaster struct {
	mu   sync.Mutex
	subs map[string]Subscriber

	sendTimeout time.Duration
	log         *slog.Logger
	metrics     *metrics.Metrics
}

// New returns an empty Broadcaster. m may be nil.
func New(log *slog.Logger, m *metrics.Metrics, sendTimeout time.Duration) *Broadcaster {
	if sendTimeout <= 0 {
		sendTimeout = 5 * time.Second
	}
	return &Broadcaster{
		subs:        make(map[string]Subscriber),
		sendTimeout: sendTimeout,
		log:         log,
		metrics:     m,
	}
}

// Connect registers sub and delivers current() to it. The initial send
// happens under the lock, so a concurrent Broadcast can never reach sub
// before its initial value. If that send fails sub is not kept.
func (b *Broadcaster) Connect(ctx context.Context, sub Subscriber, current func() Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.send(ctx, sub, current()); err != nil {
		return err
	}
	b.subs[sub.ID()] = sub
	b.gauge()
	b.log.Info("subscriber connected", slog.String("id", sub.ID()), slog.Int("subscribers", len(b.subs)))
	return nil
}

// Disconnect forgets sub. Unknown subscribers are ignored.
func (b *Broadcaster) Disconnect(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.remove(sub.ID())
}

// Broadcast delivers msg to every connected subscriber and returns how many
// accepted it. Each send is independent: a failing subscriber is dropped
// and the others still receive msg.
func (b *Broadcaster) Broadcast(ctx context.Context, msg Message) int {
	b.mu.Lock()
	subs := make([]Subscriber, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		delivered int
		failed    []Subscriber
	)
	for _, s := range subs {
		wg.Add(1)
		go func(s Subscriber) {
			defer wg.Done()
			err := b.send(ctx, s, msg)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed = append(failed, s)
				return
			}
			delivered++
		}(s)
	}
	wg.Wait()

	if len(failed) > 0 {
		b.mu.Lock()
		for _, s := range failed {
			b.remove(s.ID())
		}
		b.mu.Unlock()
	}
	if b.metrics != nil {
		b.metrics.Broadcasts.Inc()
	}
	return delivered
}

// Len reports the number of connected subscribers.
func (b *Broadcaster) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func (b *Broadcaster) send(ctx context.Context, s Subscriber, msg Message) error {
	ctx, cancel := context.WithTimeout(ctx, b.sendTimeout)
	defer cancel()
	if err := s.Send(ctx, msg); err != nil {
		b.log.Warn("delivery failed", slog.String("id", s.ID()), slog.String("error", err.Error()))
		if b.metrics != nil {
			b.metrics.DeliveryFailures.Inc()
		}
		return err
	}
	return nil
}

// remove must be called with mu held.
func (b *Broadcaster) remove(id string) {
	if _, ok := b.subs[id]; !ok {
		return
	}
	delete(b.subs, id)
	b.gauge()
	b.log.Info("subscriber disconnected", slog.String("id", id), slog.Int("subscribers", len(b.subs)))
}

func (b *Broadcaster) gauge() {
	if b.metrics != nil {
		b.metrics.Subscribers.Set(float64(len(b.subs)))
	}
}
