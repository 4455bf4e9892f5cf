package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/vaultsandbox/vsb-agent/internal/browser"
	"github.com/vaultsandbox/vsb-agent/internal/interpret"
	"github.com/vaultsandbox/vsb-agent/internal/logger"
)

// Selector-level retry budgets. Fill targets are structurally more stable
// than clickable controls, so they get fewer attempts.
const (
	DefaultClickRetries = 3
	DefaultFillRetries  = 2
)

// DefaultElementTimeout bounds a single selector lookup.
const DefaultElementTimeout = 5 * time.Second

var (
	ErrSend       = errors.New("send failed")
	ErrNavigation = errors.New("navigation failed")
)

// SendError is terminal for one provider session after compose or submit
// could not complete.
type SendError struct {
	Step   string
	Target Target
	Err    error
}

func (e *SendError) Error() string {
	return "Send failed: could not " + e.Step
}

func (e *SendError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrSend}
	}
	return []error{ErrSend, e.Err}
}

// NavigationError reports that the provider URL could not be opened.
type NavigationError struct {
	URL string
	Err error
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("Navigation failed: %s: %v", e.URL, e.Err)
}

func (e *NavigationError) Unwrap() []error { return []error{ErrNavigation, e.Err} }

// Session is one provider's run against one page. It is not reused.
type Session struct {
	def      Definition
	page     browser.Page
	log      *logger.Logger
	pacer    *browser.Pacer
	timeout  time.Duration
	observer Observer
	now      func() time.Time

	state      State
	err        error
	screenshot string
}

// SessionOption configures a Session.
type SessionOption func(*Session)

func WithLogger(l *logger.Logger) SessionOption { return func(s *Session) { s.log = l } }
func WithPacer(p *browser.Pacer) SessionOption { return func(s *Session) { s.pacer = p } }
func WithObserver(o Observer) SessionOption { return func(s *Session) { s.observer = o } }
func WithClock(now func() time.Time) SessionOption { return func(s *Session) { s.now = now } }

func WithElementTimeout(d time.Duration) SessionOption {
	return func(s *Session) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// NewSession creates a session in the Idle state.
func NewSession(def Definition, page browser.Page, opts ...SessionOption) *Session {
	s := &Session{
		def:     def,
		page:    page,
		log:     logger.Nop(),
		pacer:   browser.Instant(),
		timeout: DefaultElementTimeout,
		now:     time.Now,
		state:   StateIdle,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current lifecycle state.
func (s *Session) State() State { return s.state }

// Err returns the failure cause once the session is Failed.
func (s *Session) Err() error { return s.err }

// Screenshot returns the failure screenshot, if one was taken.
func (s *Session) Screenshot() string { return s.screenshot }

// Definition returns the provider the session drives.
func (s *Session) Definition() Definition { return s.def }

// Run drives the session from Idle to Sent or Failed.
func (s *Session) Run(ctx context.Context, fields interpret.Fields, creds Credentials) error {
	if err := s.Navigate(ctx); err != nil {
		return err
	}
	if err := s.Login(ctx, creds); err != nil {
		return err
	}
	return s.ExecuteSendEmail(ctx, fields)
}

// Navigate opens the provider's URL.
func (s *Session) Navigate(ctx context.Context) error {
	if err := s.expect(StateIdle, StateNavigated); err != nil {
		return err
	}
	s.log.Info().Str("url", s.def.URL).Msgf("Navigating to %s", s.def.Name)
	if err := s.page.Navigate(ctx, s.def.URL); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return s.fail("navigate-failed", fmt.Errorf("navigation interrupted: %w", ctxErr))
		}
		return s.fail("navigate-failed", &NavigationError{URL: s.def.URL, Err: err})
	}
	return s.transition(StateNavigated, nil)
}

// Login walks the provider's login steps and consults its auth policy at the
// checkpoint. Credentials are entered just before the checkpoint when given.
func (s *Session) Login(ctx context.Context, creds Credentials) error {
	if err := s.expect(StateNavigated, StateAuthenticated); err != nil {
		return err
	}

	for i, step := range s.def.LoginSteps {
		s.step(step)
		if err := s.pacer.Pause(ctx); err != nil {
			return s.fail("auth-failed", fmt.Errorf("login interrupted: %w", err))
		}
		if i != s.def.Checkpoint {
			continue
		}

		if !creds.Empty() {
			if err := s.enterCredentials(ctx, creds); err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return s.fail("auth-failed", fmt.Errorf("login interrupted: %w", ctxErr))
				}
				return s.fail("auth-failed", &AuthenticationError{Reason: ReasonLoginUnavailable})
			}
		}

		req := AuthRequest{Provider: s.def.Kind, Credentials: creds}
		if err := s.def.Auth.Authenticate(ctx, req); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return s.fail("auth-failed", fmt.Errorf("login interrupted: %w", ctxErr))
			}
			return s.fail("auth-failed", err)
		}
	}

	return s.transition(StateAuthenticated, nil)
}

func (s *Session) enterCredentials(ctx context.Context, creds Credentials) error {
	if err := s.SafeFill(ctx, TargetLogin, creds.Username, DefaultFillRetries); err != nil {
		return err
	}
	if err := s.SafeClick(ctx, TargetNext, DefaultClickRetries); err != nil {
		return err
	}
	if err := s.SafeFill(ctx, TargetPassword, creds.Password, DefaultFillRetries); err != nil {
		return err
	}
	return s.SafeClick(ctx, TargetNext, DefaultClickRetries)
}

// ExecuteSendEmail composes the message and submits it.
func (s *Session) ExecuteSendEmail(ctx context.Context, fields interpret.Fields) error {
	if err := s.expect(StateAuthenticated, StateComposed); err != nil {
		return err
	}

	if err := s.SafeClick(ctx, TargetCompose, DefaultClickRetries); err != nil {
		return s.composeFailed(ctx, "open the compose window", TargetCompose, err)
	}
	if err := s.SafeFill(ctx, TargetRecipient, fields.To, DefaultFillRetries); err != nil {
		return s.composeFailed(ctx, "fill the recipient", TargetRecipient, err)
	}
	if key := s.def.SuggestionKey; key != "" {
		if err := s.page.Keyboard().Press(ctx, key); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return s.fail("compose-failed", fmt.Errorf("compose interrupted: %w", ctxErr))
			}
			s.log.Warn().Err(err).Str("key", key).Msg("Could not accept recipient suggestion")
		}
	}
	if fields.Subject != "" {
		if err := s.SafeFill(ctx, TargetSubject, fields.Subject, DefaultFillRetries); err != nil {
			return s.composeFailed(ctx, "fill the subject", TargetSubject, err)
		}
	}
	if fields.Body != "" {
		if err := s.SafeFill(ctx, TargetBody, fields.Body, DefaultFillRetries); err != nil {
			return s.composeFailed(ctx, "fill the body", TargetBody, err)
		}
	}
	if err := s.transition(StateComposed, nil); err != nil {
		return err
	}

	return s.submit(ctx)
}

func (s *Session) submit(ctx context.Context) error {
	if combo := s.def.SendShortcut; combo != "" {
		err := s.page.Keyboard().Press(ctx, combo)
		if err == nil {
			s.log.Info().Str("keys", combo).Msg("Submitted with keyboard shortcut")
			return s.transition(StateSent, nil)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return s.fail("send-failed", fmt.Errorf("send interrupted: %w", ctxErr))
		}
		s.log.Warn().Err(err).Str("keys", combo).Msg("Send shortcut failed, falling back to send button")
	}

	if err := s.SafeClick(ctx, TargetSend, DefaultClickRetries); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return s.fail("send-failed", fmt.Errorf("send interrupted: %w", ctxErr))
		}
		return s.fail("send-failed", &SendError{Step: "submit the message", Target: TargetSend, Err: err})
	}
	return s.transition(StateSent, nil)
}

func (s *Session) composeFailed(ctx context.Context, step string, target Target, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return s.fail("compose-failed", fmt.Errorf("compose interrupted: %w", ctxErr))
	}
	return s.fail("compose-failed", &SendError{Step: step, Target: target, Err: err})
}

// SafeClick clicks target, trying each of its selectors in order for up to
// retries rounds. It returns nil on the first selector that resolves and
// clicks. A non-nil result is for the caller to treat as fatal or not.
func (s *Session) SafeClick(ctx context.Context, target Target, retries int) error {
	return s.attempt(ctx, target, retries, browser.ActionClick, func(el browser.Element) error {
		return el.Click(ctx)
	})
}

// SafeFill fills target with value under the same policy as SafeClick.
func (s *Session) SafeFill(ctx context.Context, target Target, value string, retries int) error {
	return s.attempt(ctx, target, retries, browser.ActionFill, func(el browser.Element) error {
		return el.Fill(ctx, value)
	})
}

func (s *Session) attempt(ctx context.Context, target Target, retries int, action browser.Action, do func(browser.Element) error) error {
	set, ok := s.def.Selectors[target]
	if !ok || len(set) == 0 {
		return fmt.Errorf("%s has no selectors for %s", s.def.Kind, target)
	}
	if retries < 1 {
		retries = 1
	}

	var last error = &browser.ElementNotFoundError{Set: set}
	for round := 1; round <= retries; round++ {
		for i := 0; i < len(set); {
			if err := ctx.Err(); err != nil {
				return err
			}
			el, err := s.page.FindElement(ctx, set[i:], s.timeout)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}
				s.logAttempts(target, set[i:], round, action)
				break
			}

			// Selectors before the one found were looked up and missed.
			j := position(set, el.Selector(), i)
			s.logAttempts(target, set[i:j+1], round, action)
			if err := do(el); err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}
				s.log.Debug().Err(err).Str("selector", string(el.Selector())).Msg("interaction failed")
				last = err
				i = j + 1
				continue
			}
			return nil
		}
		if round < retries {
			if err := s.pacer.Pause(ctx); err != nil {
				return err
			}
		}
	}

	s.log.Error().
		Str("event", "exhausted").
		Str("target", string(target)).
		Int("retries", retries).
		Int("selectors", len(set)).
		Err(last).
		Msgf("All selectors for %s exhausted", target)
	return fmt.Errorf("%s %s: %w", action, target, last)
}

// position returns the index of sel in set at or after from.
func position(set browser.SelectorSet, sel browser.Selector, from int) int {
	for i := from; i < len(set); i++ {
		if set[i] == sel {
			return i
		}
	}
	return len(set) - 1
}

func (s *Session) logAttempts(target Target, tried browser.SelectorSet, round int, action browser.Action) {
	for _, sel := range tried {
		s.logAttempt(target, sel, round, action)
	}
}

func (s *Session) logAttempt(target Target, sel browser.Selector, round int, action browser.Action) {
	s.log.Info().
		Str("event", "attempt").
		Str("target", string(target)).
		Str("selector", string(sel)).
		Int("attempt", round).
		Msgf("%s %s attempt on %s", humanize.Ordinal(round), action, target)
	s.emit(Event{
		Kind:     EventAttempt,
		Target:   target,
		Selector: string(sel),
		Attempt:  round,
	})
}

func (s *Session) step(message string) {
	s.log.Info().Str("event", "step").Msg(message)
	s.emit(Event{Kind: EventStep, Message: message})
}

// expect guards an operation that starts in from and advances to to.
func (s *Session) expect(from, to State) error {
	if s.state != from {
		return &TransitionError{From: s.state, To: to}
	}
	return nil
}

func (s *Session) transition(to State, cause error) error {
	from := s.state
	if !isAllowedTransition(from, to) {
		return &TransitionError{From: from, To: to}
	}
	s.state = to
	s.log.Transition(string(from), string(to))

	ev := Event{Kind: EventTransition, From: from, To: to}
	if cause != nil {
		ev.Message = cause.Error()
	}
	s.emit(ev)
	return nil
}

// fail captures a screenshot, moves to Failed and returns cause.
func (s *Session) fail(label string, cause error) error {
	s.screenshot = s.page.Screenshot(label)
	s.log.Error().Err(cause).Str("screenshot", s.screenshot).Msg("Session failed")
	s.err = cause
	if err := s.transition(StateFailed, cause); err != nil {
		return err
	}
	return cause
}

func (s *Session) emit(ev Event) {
	if s.observer == nil {
		return
	}
	ev.Provider = string(s.def.Kind)
	ev.Time = s.now()
	s.observer(ev)
}
