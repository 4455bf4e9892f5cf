// Package browser is a simulated automation surface with the shape of a real
// browser driver: pages navigate, resolve selectors into elements, and
// elements are clicked and filled. Nothing touches the network;
// whether a selector resolves or an interaction succeeds is decided by a
// Policy so runs are reproducible.
package browser

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/vaultsandbox/vsb-agent/internal/logger"
)

// Allowed URL schemes for navigation
var allowedSchemes = map[string]bool{
	"http":  true,
	"https": true,
}

var (
	ErrElementNotFound = errors.New("element not found")
	ErrInteraction     = errors.New("interaction failed")
	ErrPageClosed      = errors.New("page is closed")
)

// Selector is a single element lookup strategy (CSS or text selector).
type Selector string

// SelectorSet is an ordered list of selectors for one logical target.
// The first selector is preferred; the rest are fallbacks.
type SelectorSet []Selector

// NewSelectorSet builds a set from a primary selector and its fallbacks.
func NewSelectorSet(primary Selector, fallbacks ...Selector) SelectorSet {
	return append(SelectorSet{primary}, fallbacks...)
}

// Validate reports whether the set is usable.
func (s SelectorSet) Validate() error {
	if len(s) == 0 {
		return errors.New("selector set is empty")
	}
	for i, sel := range s {
		if strings.TrimSpace(string(sel)) == "" {
			return fmt.Errorf("selector %d is blank", i)
		}
	}
	return nil
}

func (s SelectorSet) String() string {
	parts := make([]string, len(s))
	for i, sel := range s {
		parts[i] = string(sel)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// ElementNotFoundError is returned when no selector of a set resolves.
type ElementNotFoundError struct {
	Set SelectorSet
}

func (e *ElementNotFoundError) Error() string {
	return fmt.Sprintf("element not found: %s", e.Set)
}

func (e *ElementNotFoundError) Unwrap() error { return ErrElementNotFound }

// Action names a DOM interaction.
type Action string

const (
	ActionClick Action = "click"
	ActionFill  Action = "fill"
	ActionPress Action = "press"
)

// InteractionError is a transient click/fill/press failure.
type InteractionError struct {
	Selector Selector
	Action   Action
	Err      error
}

func (e *InteractionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s on %s failed", e.Action, e.Selector)
	}
	return fmt.Sprintf("%s on %s failed: %v", e.Action, e.Selector, e.Err)
}

func (e *InteractionError) Unwrap() error { return ErrInteraction }

// Element is a resolved DOM node.
type Element interface {
	Selector() Selector
	Click(ctx context.Context) error
	Fill(ctx context.Context, text string) error
}

// Keyboard sends key combinations to the focused element.
type Keyboard interface {
	Press(ctx context.Context, combo string) error
}

// Page is one tab of the automation surface.
type Page interface {
	Navigate(ctx context.Context, rawURL string) error
	// FindElement tries each selector of set in order and returns the first
	// that resolves.
	FindElement(ctx context.Context, set SelectorSet, timeout time.Duration) (Element, error)
	Keyboard() Keyboard
	// Screenshot captures the page for diagnostics and returns the artifact
	// path or identifier. It never fails.
	Screenshot(label string) string
	Close()
}

// Launcher opens fresh pages, one per provider run.
type Launcher interface {
	NewPage(provider string) Page
}

// ScreenshotSink stores captured screenshots.
type ScreenshotSink interface {
	Capture(provider, label string) (string, error)
}

// Mock is the simulated browser.
type Mock struct {
	policy Policy
	pacer  *Pacer
	shots  ScreenshotSink
	log    *logger.Logger
}

// Option configures a Mock.
type Option func(*Mock)

func WithPolicy(p Policy) Option { return func(m *Mock) { m.policy = p } }
func WithPacer(p *Pacer) Option { return func(m *Mock) { m.pacer = p } }
func WithScreenshots(s ScreenshotSink) Option { return func(m *Mock) { m.shots = s } }
func WithLogger(l *logger.Logger) Option { return func(m *Mock) { m.log = l } }

// NewMock creates a simulated browser. By default every selector resolves,
// every interaction succeeds and nothing waits.
func NewMock(opts ...Option) *Mock {
	m := &Mock{
		policy: Reliable{},
		pacer:  Instant(),
		log:    logger.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// NewPage opens a new page for provider.
func (m *Mock) NewPage(provider string) Page {
	m.log.Debug().Str("provider", provider).Msg("opening page")
	return &mockPage{
		provider: provider,
		browser:  m,
		log:      m.log.WithProvider(provider),
	}
}

// Close shuts the browser down.
func (m *Mock) Close() {
	m.log.Debug().Msg("closing browser")
}

type mockPage struct {
	provider string
	browser  *Mock
	log      *logger.Logger
	closed   bool
}

func (p *mockPage) Navigate(ctx context.Context, rawURL string) error {
	if p.closed {
		return ErrPageClosed
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	scheme := strings.ToLower(parsed.Scheme)
	if !allowedSchemes[scheme] {
		return fmt.Errorf("URL scheme %q not allowed", scheme)
	}

	p.log.Debug().Str("url", rawURL).Msg("navigating")
	if err := p.browser.pacer.Pause(ctx); err != nil {
		return err
	}
	return nil
}

func (p *mockPage) FindElement(ctx context.Context, set SelectorSet, timeout time.Duration) (Element, error) {
	for _, sel := range set {
		el, err := p.query(ctx, sel, timeout)
		if err == nil {
			return el, nil
		}
		if !errors.Is(err, ErrElementNotFound) {
			return nil, err
		}
	}
	return nil, &ElementNotFoundError{Set: set}
}

func (p *mockPage) query(ctx context.Context, sel Selector, timeout time.Duration) (Element, error) {
	if p.closed {
		return nil, ErrPageClosed
	}
	if err := p.browser.pacer.PauseUpTo(ctx, timeout); err != nil {
		return nil, err
	}
	if !p.browser.policy.Resolve(p.provider, sel) {
		p.log.Debug().Str("selector", string(sel)).Dur("timeout", timeout).Msg("selector did not resolve")
		return nil, &ElementNotFoundError{Set: SelectorSet{sel}}
	}
	return &mockElement{page: p, sel: sel}, nil
}

func (p *mockPage) Keyboard() Keyboard {
	return &mockKeyboard{page: p}
}

func (p *mockPage) Screenshot(label string) string {
	id := fmt.Sprintf("screenshot://%s/%s", p.provider, label)
	if p.browser.shots == nil {
		return id
	}
	path, err := p.browser.shots.Capture(p.provider, label)
	if err != nil {
		p.log.Warn().Err(err).Str("label", label).Msg("screenshot capture failed")
		return id
	}
	p.log.Info().Str("label", label).Str("path", path).Msg("screenshot captured")
	return path
}

func (p *mockPage) Close() {
	if p.closed {
		return
	}
	p.closed = true
	p.log.Debug().Msg("closing page")
}

// interact runs action against sel under the page's policy.
func (p *mockPage) interact(ctx context.Context, sel Selector, action Action) error {
	if p.closed {
		return ErrPageClosed
	}
	if err := p.browser.pacer.Pause(ctx); err != nil {
		return err
	}
	if err := p.browser.policy.Interact(p.provider, sel, action); err != nil {
		return &InteractionError{Selector: sel, Action: action, Err: err}
	}
	return nil
}

type mockElement struct {
	page *mockPage
	sel  Selector
}

func (e *mockElement) Selector() Selector { return e.sel }

func (e *mockElement) Click(ctx context.Context) error {
	e.page.log.Debug().Str("selector", string(e.sel)).Msg("clicking element")
	return e.page.interact(ctx, e.sel, ActionClick)
}

func (e *mockElement) Fill(ctx context.Context, text string) error {
	e.page.log.Debug().Str("selector", string(e.sel)).Int("length", len(text)).Msg("filling element")
	return e.page.interact(ctx, e.sel, ActionFill)
}

// KeyboardSelector is the pseudo-selector policies see for keyboard input.
const KeyboardSelector Selector = "keyboard"

type mockKeyboard struct {
	page *mockPage
}

func (k *mockKeyboard) Press(ctx context.Context, combo string) error {
	k.page.log.Debug().Str("keys", combo).Msg("pressing keys")
	return k.page.interact(ctx, KeyboardSelector, ActionPress)
}
