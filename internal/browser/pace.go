package browser

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Sleeper waits for d or until ctx is done.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// RealSleeper waits on the wall clock.
type RealSleeper struct{}

func (RealSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// NoDelay returns immediately. Cancellation is still honored.
type NoDelay struct{}

func (NoDelay) Sleep(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}

// Pacer produces human-like pauses between simulated steps.
type Pacer struct {
	sleeper Sleeper
	min     time.Duration
	max     time.Duration

	mu  sync.Mutex
	rng *rand.Rand
}

// NewPacer creates a pacer that pauses for a random duration in [min, max].
func NewPacer(sleeper Sleeper, min, max time.Duration, seed int64) *Pacer {
	if sleeper == nil {
		sleeper = RealSleeper{}
	}
	if max < min {
		max = min
	}
	return &Pacer{
		sleeper: sleeper,
		min:     min,
		max:     max,
		rng:     rand.New(rand.NewSource(seed)),
	}
}

// Instant returns a pacer that never waits.
func Instant() *Pacer {
	return NewPacer(NoDelay{}, 0, 0, 1)
}

// Pause waits for a human-like interval.
func (p *Pacer) Pause(ctx context.Context) error {
	return p.sleeper.Sleep(ctx, p.next())
}

// PauseUpTo waits like Pause but never longer than limit.
func (p *Pacer) PauseUpTo(ctx context.Context, limit time.Duration) error {
	d := p.next()
	if limit > 0 && d > limit {
		d = limit
	}
	return p.sleeper.Sleep(ctx, d)
}

func (p *Pacer) next() time.Duration {
	if p.max == p.min {
		return p.min
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.min + time.Duration(p.rng.Int63n(int64(p.max-p.min)))
}
