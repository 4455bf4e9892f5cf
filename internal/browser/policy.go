package browser

import (
	"errors"
	"hash/fnv"
	"math/rand"
	"sync"
)

// ErrUnstableDOM is the cause reported by flaky interactions.
var ErrUnstableDOM = errors.New("simulated DOM instability")

// Policy decides the outcome of simulated lookups and interactions.
type Policy interface {
	// Resolve reports whether sel is present on provider's page.
	Resolve(provider string, sel Selector) bool
	// Interact returns nil when action on sel succeeds.
	Interact(provider string, sel Selector, action Action) error
}

// Reliable resolves every selector and lets every interaction succeed.
type Reliable struct{}

func (Reliable) Resolve(string, Selector) bool { return true }
func (Reliable) Interact(string, Selector, Action) error { return nil }

// Flaky misses selectors and fails interactions at fixed rates. Each
// provider draws from its own source derived from the seed and the provider
// name, so a given seed always produces the same outcome for a provider no
// matter which providers ran before it.
type Flaky struct {
	seed     int64
	missRate float64
	failRate float64

	mu      sync.Mutex
	sources map[string]*rand.Rand
}

// NewFlaky creates a seeded policy. Rates are clamped to [0, 1].
func NewFlaky(seed int64, missRate, failRate float64) *Flaky {
	return &Flaky{
		seed:     seed,
		missRate: clamp(missRate),
		failRate: clamp(failRate),
		sources:  make(map[string]*rand.Rand),
	}
}

func (f *Flaky) Resolve(provider string, _ Selector) bool {
	return !f.roll(provider, f.missRate)
}

func (f *Flaky) Interact(provider string, _ Selector, _ Action) error {
	if f.roll(provider, f.failRate) {
		return ErrUnstableDOM
	}
	return nil
}

func (f *Flaky) roll(provider string, rate float64) bool {
	if rate <= 0 {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	rng, ok := f.sources[provider]
	if !ok {
		h := fnv.New64a()
		_, _ = h.Write([]byte(provider))
		rng = rand.New(rand.NewSource(f.seed ^ int64(h.Sum64())))
		f.sources[provider] = rng
	}
	return rng.Float64() < rate
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// Scripted resolves only the listed selectors and fails the listed
// interactions. Unlisted selectors do not resolve.
type Scripted struct {
	Present map[Selector]bool
	Broken  map[Selector]bool
}

func (s Scripted) Resolve(_ string, sel Selector) bool {
	return s.Present[sel]
}

func (s Scripted) Interact(_ string, sel Selector, _ Action) error {
	if s.Broken[sel] {
		return ErrUnstableDOM
	}
	return nil
}
