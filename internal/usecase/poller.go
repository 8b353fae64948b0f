package usecase

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/coder/quartz"
	"github.com/shopspring/decimal"

	"toggl-earnings/internal/broadcast"
	"toggl-earnings/internal/domain"
	"toggl-earnings/internal/metrics"
	"toggl-earnings/internal/ports"
)

// EarningsComputer computes the total for the month containing ref.
type EarningsComputer interface {
	ComputeMonthlyEarnings(ctx context.Context, ref time.Time) (decimal.Decimal, error)
}

// Poller recomputes the monthly total in a loop and pushes it to subscribers
// whenever it changes. It owns the last known value; connection handlers
// reach it through Subscribe and Current.
type Poller struct {
	Log      *slog.Logger
	Earnings EarningsComputer
	Hub      *broadcast.Broadcaster
	Sink     ports.SnapshotSink // optional
	Metrics  *metrics.Metrics   // optional
	Clock    quartz.Clock       // defaults to the real clock
	Location *time.Location     // month boundaries for snapshots
	// Interval is the pause after a successful cycle. Zero recomputes
	// immediately; the API client's rate limit is then the only throttle.
	Interval time.Duration
	// MaxErrorDelay caps the exponential pause after failed cycles.
	MaxErrorDelay time.Duration

	last atomic.Pointer[string]
}

// Current returns the last broadcast value, with a nil Month before the first
// successful cycle.
func (p *Poller) Current() broadcast.Message {
	return broadcast.Message{Month: p.last.Load()}
}

// Subscribe connects sub and sends it the current value.
func (p *Poller) Subscribe(ctx context.Context, sub broadcast.Subscriber) error {
	return p.Hub.Connect(ctx, sub, p.Current)
}

func (p *Poller) Unsubscribe(sub broadcast.Subscriber) {
	p.Hub.Disconnect(sub)
}

// RunOnce performs one compute/compare/broadcast cycle and reports whether
// the value changed.
func (p *Poller) RunOnce(ctx context.Context) (bool, error) {
	now := p.clock().Now()
	total, err := p.Earnings.ComputeMonthlyEarnings(ctx, now)
	if err != nil {
		p.cycle("error")
		return false, err
	}

	s := total.String()
	if prev := p.last.Load(); prev != nil && *prev == s {
		p.cycle("unchanged")
		return false, nil
	}
	p.last.Store(&s)
	p.cycle("changed")
	if p.Metrics != nil {
		p.Metrics.MonthTotal.Set(total.InexactFloat64())
	}

	n := p.Hub.Broadcast(ctx, broadcast.Message{Month: &s})
	p.Log.Info("monthly earnings changed", slog.String("month", s), slog.Int("delivered", n))

	if p.Sink != nil {
		ref := now
		if p.Location != nil {
			ref = ref.In(p.Location)
		}
		first, _ := MonthBounds(ref)
		snap := domain.Snapshot{Month: first, Total: total, ComputedAt: now.UTC()}
		if err := p.Sink.RecordSnapshot(ctx, snap); err != nil {
			p.Log.Error("failed to record snapshot", slog.String("error", err.Error()))
		}
	}
	return true, nil
}

// Run cycles until ctx is done. A failed cycle is logged and retried after
// an exponential pause; it never stops the loop.
func (p *Poller) Run(ctx context.Context) error {
	p.Log.Info("starting earnings poller", slog.Duration("interval", p.Interval))
	eb := p.errorBackOff()
	for {
		if err := ctx.Err(); err != nil {
			p.Log.Info("earnings poller stopped")
			return err
		}

		wait := p.Interval
		if _, err := p.RunOnce(ctx); err != nil {
			if ctx.Err() != nil {
				continue
			}
			wait = eb.NextBackOff()
			p.Log.Error("earnings cycle failed",
				slog.String("error", err.Error()),
				slog.Duration("retry_in", wait),
			)
		} else {
			eb.Reset()
		}

		if wait > 0 {
			p.sleep(ctx, wait)
		}
	}
}

func (p *Poller) sleep(ctx context.Context, d time.Duration) {
	t := p.clock().NewTimer(d, "poller", "sleep")
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func (p *Poller) errorBackOff() *backoff.ExponentialBackOff {
	ceiling := p.MaxErrorDelay
	if ceiling <= 0 {
		ceiling = time.Minute
	}
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = min(time.Second, ceiling)
	eb.MaxInterval = ceiling
	eb.MaxElapsedTime = 0
	eb.Reset()
	return eb
}

func (p *Poller) clock() quartz.Clock {
	if p.Clock == nil {
		return quartz.NewReal()
	}
	return p.Clock
}

func (p *Poller) cycle(result string) {
	if p.Metrics != nil {
		p.Metrics.Cycles.WithLabelValues(result).Inc()
	}
}
