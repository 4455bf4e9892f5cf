// Package agent fans one instruction out across email providers and
// aggregates their outcomes into a Report.
package agent

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/vaultsandbox/vsb-agent/internal/browser"
	"github.com/vaultsandbox/vsb-agent/internal/interpret"
	"github.com/vaultsandbox/vsb-agent/internal/logger"
	"github.com/vaultsandbox/vsb-agent/internal/provider"
)

// DefaultProviders is used when a task names none.
var DefaultProviders = []string{string(provider.KindGmail), string(provider.KindOutlook)}

var ErrUnsupportedProvider = errors.New("unsupported provider")

// UnsupportedProviderError is recorded for a provider name with no
// registered definition.
type UnsupportedProviderError struct {
	Name string
}

func (e *UnsupportedProviderError) Error() string {
	return "Unsupported provider: " + e.Name
}

func (e *UnsupportedProviderError) Unwrap() error { return ErrUnsupportedProvider }

// Observer follows a task as it runs. Methods are called synchronously from
// the task's goroutine.
type Observer interface {
	ProviderStarted(name string)
	SessionEvent(ev provider.Event)
	ProviderFinished(o Outcome)
}

type nopObserver struct{}

func (nopObserver) ProviderStarted(string)      {}
func (nopObserver) SessionEvent(provider.Event) {}
func (nopObserver) ProviderFinished(Outcome)    {}

// Agent runs tasks. Providers within a task run sequentially, each on its
// own page.
type Agent struct {
	registry *provider.Registry
	launcher browser.Launcher
	log      *logger.Logger
	observer Observer
	creds    map[provider.Kind]provider.Credentials
	pacer    *browser.Pacer
	timeout  time.Duration
	now      func() time.Time
	newID    func() string
}

// Option configures an Agent.
type Option func(*Agent)

func WithRegistry(r *provider.Registry) Option { return func(a *Agent) { a.registry = r } }
func WithLauncher(l browser.Launcher) Option { return func(a *Agent) { a.launcher = l } }
func WithLogger(l *logger.Logger) Option { return func(a *Agent) { a.log = l } }
func WithObserver(o Observer) Option { return func(a *Agent) { a.observer = o } }
func WithPacer(p *browser.Pacer) Option { return func(a *Agent) { a.pacer = p } }
func WithClock(now func() time.Time) Option { return func(a *Agent) { a.now = now } }
func WithIDs(newID func() string) Option { return func(a *Agent) { a.newID = newID } }

func WithElementTimeout(d time.Duration) Option {
	return func(a *Agent) { a.timeout = d }
}

// WithCredentials sets mock login details per provider name.
func WithCredentials(creds map[string]provider.Credentials) Option {
	return func(a *Agent) {
		for name, c := range creds {
			a.creds[provider.Kind(provider.Normalize(name))] = c
		}
	}
}

// New creates an agent over the built-in providers and a reliable, instant
// mock browser unless options say otherwise.
func New(opts ...Option) *Agent {
	a := &Agent{
		log:      logger.Nop(),
		observer: nopObserver{},
		creds:    make(map[provider.Kind]provider.Credentials),
		pacer:    browser.Instant(),
		timeout:  provider.DefaultElementTimeout,
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.registry == nil {
		a.registry = provider.DefaultRegistry()
	}
	if a.launcher == nil {
		a.launcher = browser.NewMock(browser.WithPacer(a.pacer), browser.WithLogger(a.log))
	}
	return a
}

// Registry returns the providers the agent can dispatch to.
func (a *Agent) Registry() *provider.Registry { return a.registry }

// ExecuteTask interprets instruction once and runs it against each provider
// in order. Only an interpretation failure is returned as an error; every
// provider failure is recorded in the report instead.
func (a *Agent) ExecuteTask(ctx context.Context, instruction string, providers []string) (*Report, error) {
	fields, err := interpret.Interpret(instruction)
	if err != nil {
		a.log.Error().Err(err).Msg("Could not interpret instruction")
		return nil, err
	}

	report := &Report{
		ID:        a.newID(),
		Fields:    fields,
		StartedAt: a.now(),
	}
	log := a.log.WithRun(report.ID)
	log.Info().
		Str("event", "interpreted").
		Str("to", fields.To).
		Int("subject_length", len(fields.Subject)).
		Int("body_length", len(fields.Body)).
		Msg("Instruction interpreted")

	names := Dedupe(providers)
	if len(names) == 0 {
		names = DefaultProviders
	}

	for i, name := range names {
		if ctx.Err() != nil {
			for _, rest := range names[i:] {
				o := Outcome{Provider: rest, Status: StatusCancelled, Reason: ReasonCancelled, ErrorDetail: "task cancelled before start"}
				report.add(o)
				a.observer.ProviderFinished(o)
			}
			log.Warn().Int("skipped", len(names)-i).Msg("Task cancelled")
			break
		}
		o := a.runProvider(ctx, log, name, fields)
		report.add(o)
		a.observer.ProviderFinished(o)
	}

	report.FinishedAt = a.now()
	log.Info().
		Str("event", "finished").
		Int("providers", len(report.Outcomes)).
		Bool("all_succeeded", report.AllSucceeded()).
		Dur("duration", report.Duration()).
		Msg("Task finished")
	return report, nil
}

func (a *Agent) runProvider(ctx context.Context, log *logger.Logger, name string, fields interpret.Fields) Outcome {
	start := a.now()
	plog := log.WithProvider(name)
	plog.Info().Str("event", "start").Msg("Starting provider")
	a.observer.ProviderStarted(name)

	def, ok := a.registry.Lookup(name)
	if !ok {
		err := &UnsupportedProviderError{Name: name}
		plog.Error().Err(err).Msg("Provider not registered")
		return a.outcome(plog, name, start, err, "")
	}

	page := a.launcher.NewPage(string(def.Kind))
	defer page.Close()

	session := provider.NewSession(def, page,
		provider.WithLogger(plog),
		provider.WithPacer(a.pacer),
		provider.WithElementTimeout(a.timeout),
		provider.WithObserver(a.observer.SessionEvent),
		provider.WithClock(a.now),
	)
	err := session.Run(ctx, fields, a.creds[def.Kind])
	return a.outcome(plog, name, start, err, session.Screenshot())
}

func (a *Agent) outcome(log *logger.Logger, name string, start time.Time, err error, screenshot string) Outcome {
	o := Outcome{
		Provider:   name,
		Status:     StatusSuccess,
		Screenshot: screenshot,
		Duration:   a.now().Sub(start),
	}
	if err != nil {
		o.Status = StatusFailure
		o.Reason = Classify(err)
		o.ErrorDetail = err.Error()
	}

	ev := log.Info()
	if err != nil {
		ev = log.Warn()
	}
	ev.Str("event", "outcome").
		Str("status", string(o.Status)).
		Str("reason", string(o.Reason)).
		Dur("duration", o.Duration).
		Msg(o.Summary())
	return o
}

// Classify maps a session error to an outcome reason.
func Classify(err error) Reason {
	var authErr *provider.AuthenticationError
	switch {
	case err == nil:
		return ReasonNone
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ReasonCancelled
	case errors.As(err, &authErr):
		switch authErr.Reason {
		case provider.ReasonBotDetection:
			return ReasonBotDetection
		case provider.ReasonInvalidCredentials:
			return ReasonInvalidCredentials
		default:
			return ReasonLoginUnavailable
		}
	case errors.Is(err, provider.ErrSend):
		return ReasonSendError
	case errors.Is(err, provider.ErrNavigation):
		return ReasonNavigationError
	case errors.Is(err, ErrUnsupportedProvider):
		return ReasonUnsupportedProvider
	default:
		return ReasonInternal
	}
}

// Dedupe normalizes provider names and drops repeats, keeping the first
// occurrence. Blank names are dropped.
func Dedupe(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, name := range names {
		n := provider.Normalize(name)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}
