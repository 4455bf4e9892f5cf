package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultsandbox/vsb-agent/internal/browser"
	"github.com/vaultsandbox/vsb-agent/internal/interpret"
	"github.com/vaultsandbox/vsb-agent/internal/logger"
	"github.com/vaultsandbox/vsb-agent/internal/provider"
)

const scenario = "Send email to test@example.com about 'Meeting' saying 'Hello there'"

// countingLauncher wraps a Mock and records opened and closed pages.
type countingLauncher struct {
	mock   *browser.Mock
	opened []string
	closed int
}

func (l *countingLauncher) NewPage(name string) browser.Page {
	l.opened = append(l.opened, name)
	return &closeCounter{Page: l.mock.NewPage(name), launcher: l}
}

type closeCounter struct {
	browser.Page
	launcher *countingLauncher
}

func (c *closeCounter) Close() {
	c.launcher.closed++
	c.Page.Close()
}

// recorder is an Observer that keeps everything it sees.
type recorder struct {
	started  []string
	events   []provider.Event
	finished []Outcome
	onEvent  func(provider.Event)
}

func (r *recorder) ProviderStarted(name string) { r.started = append(r.started, name) }
func (r *recorder) ProviderFinished(o Outcome)  { r.finished = append(r.finished, o) }

func (r *recorder) SessionEvent(ev provider.Event) {
	r.events = append(r.events, ev)
	if r.onEvent != nil {
		r.onEvent(ev)
	}
}

// ============================================================================
// ExecuteTask
// ============================================================================

func TestExecuteTask_DefaultScenario(t *testing.T) {
	a := New()

	report, err := a.ExecuteTask(context.Background(), scenario, []string{"gmail", "outlook"})
	require.NoError(t, err)

	assert.Equal(t, interpret.Fields{To: "test@example.com", Subject: "Meeting", Body: "Hello there"}, report.Fields)
	assert.Equal(t, []string{"gmail", "outlook"}, report.Providers())

	gmail, ok := report.Outcome("gmail")
	require.True(t, ok)
	assert.Equal(t, StatusSuccess, gmail.Status)
	assert.Equal(t, "Success", gmail.Summary())
	assert.Empty(t, gmail.ErrorDetail)

	outlook, ok := report.Outcome("outlook")
	require.True(t, ok)
	assert.Equal(t, StatusFailure, outlook.Status)
	assert.Equal(t, ReasonBotDetection, outlook.Reason)
	assert.Equal(t, "Failed: Authentication failed: Bot detection triggered", outlook.Summary())
	assert.Equal(t, "screenshot://outlook/auth-failed", outlook.Screenshot)

	assert.False(t, report.AllSucceeded())
	assert.Equal(t, "gmail: Success\noutlook: Failed: Authentication failed: Bot detection triggered\n", report.String())
}

func TestExecuteTask_PreservesOrder(t *testing.T) {
	a := New()

	report, err := a.ExecuteTask(context.Background(), scenario, []string{"outlook", "yahoo", "gmail"})
	require.NoError(t, err)
	assert.Equal(t, []string{"outlook", "yahoo", "gmail"}, report.Providers())
}

func TestExecuteTask_UnsupportedProvider(t *testing.T) {
	launcher := &countingLauncher{mock: browser.NewMock()}
	a := New(WithLauncher(launcher))

	report, err := a.ExecuteTask(context.Background(), scenario, []string{"yahoo", "gmail"})
	require.NoError(t, err)
	require.Len(t, report.Outcomes, 2)

	yahoo := report.Outcomes[0]
	assert.Equal(t, StatusFailure, yahoo.Status)
	assert.Equal(t, ReasonUnsupportedProvider, yahoo.Reason)
	assert.Equal(t, "Failed: Unsupported provider: yahoo", yahoo.Summary())

	assert.Equal(t, StatusSuccess, report.Outcomes[1].Status, "siblings are unaffected")
	assert.Equal(t, []string{"gmail"}, launcher.opened, "no page for an unknown provider")
}

func TestExecuteTask_FreshPagePerProvider(t *testing.T) {
	launcher := &countingLauncher{mock: browser.NewMock()}
	a := New(WithLauncher(launcher))

	_, err := a.ExecuteTask(context.Background(), scenario, []string{"gmail", "outlook"})
	require.NoError(t, err)
	assert.Equal(t, []string{"gmail", "outlook"}, launcher.opened)
	assert.Equal(t, 2, launcher.closed)
}

func TestExecuteTask_ParseErrorAborts(t *testing.T) {
	tests := []struct {
		name        string
		instruction string
		kind        error
	}{
		{"no recipient", "Send an email about 'Lunch'", interpret.ErrMissingRecipient},
		{"blank instruction", "   ", interpret.ErrMalformedInstruction},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			launcher := &countingLauncher{mock: browser.NewMock()}
			a := New(WithLauncher(launcher))

			report, err := a.ExecuteTask(context.Background(), tt.instruction, []string{"gmail"})
			assert.Nil(t, report)

			var parseErr *interpret.ParseError
			require.ErrorAs(t, err, &parseErr)
			assert.ErrorIs(t, err, tt.kind)
			assert.Empty(t, launcher.opened)
		})
	}
}

func TestExecuteTask_DeduplicatesProviders(t *testing.T) {
	a := New()

	report, err := a.ExecuteTask(context.Background(), scenario, []string{"Gmail", " gmail ", "outlook", "GMAIL"})
	require.NoError(t, err)
	assert.Equal(t, []string{"gmail", "outlook"}, report.Providers())
}

func TestExecuteTask_DefaultProviders(t *testing.T) {
	a := New()

	report, err := a.ExecuteTask(context.Background(), scenario, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultProviders, report.Providers())
}

func TestExecuteTask_BlankProvidersUseDefaults(t *testing.T) {
	a := New()

	report, err := a.ExecuteTask(context.Background(), scenario, []string{" ", ""})
	require.NoError(t, err)
	assert.Equal(t, DefaultProviders, report.Providers())
}

func TestExecuteTask_SeededProvidersAreIsolated(t *testing.T) {
	run := func(seed int64, providers ...string) Outcome {
		registry := provider.DefaultRegistry()
		require.NoError(t, registry.SetAuthPolicy("outlook", provider.Allow()))
		mock := browser.NewMock(browser.WithPolicy(browser.NewFlaky(seed, 0.6, 0.3)))
		a := New(WithRegistry(registry), WithLauncher(mock))

		report, err := a.ExecuteTask(context.Background(), scenario, providers)
		require.NoError(t, err)
		o, ok := report.Outcome("outlook")
		require.True(t, ok)
		return o
	}

	for seed := int64(1); seed <= 50; seed++ {
		alone := run(seed, "outlook")
		after := run(seed, "gmail", "outlook")
		assert.Equal(t, alone.Status, after.Status, "seed %d", seed)
		assert.Equal(t, alone.Reason, after.Reason, "seed %d", seed)
		assert.Equal(t, alone.ErrorDetail, after.ErrorDetail, "seed %d", seed)
	}
}

func TestExecuteTask_AuthPolicyOverride(t *testing.T) {
	registry := provider.DefaultRegistry()
	require.NoError(t, registry.SetAuthPolicy("outlook", provider.Allow()))
	require.NoError(t, registry.SetAuthPolicy("gmail", provider.RefuseCredentials()))
	a := New(WithRegistry(registry))

	report, err := a.ExecuteTask(context.Background(), scenario, []string{"gmail", "outlook"})
	require.NoError(t, err)

	gmail, _ := report.Outcome("gmail")
	assert.Equal(t, ReasonInvalidCredentials, gmail.Reason)
	outlook, _ := report.Outcome("outlook")
	assert.Equal(t, StatusSuccess, outlook.Status)
}

func TestExecuteTask_SendError(t *testing.T) {
	// Nothing resolves: compose cannot open.
	mock := browser.NewMock(browser.WithPolicy(browser.Scripted{}))
	a := New(WithLauncher(mock))

	report, err := a.ExecuteTask(context.Background(), scenario, []string{"gmail"})
	require.NoError(t, err)

	gmail, _ := report.Outcome("gmail")
	assert.Equal(t, StatusFailure, gmail.Status)
	assert.Equal(t, ReasonSendError, gmail.Reason)
	assert.Equal(t, "screenshot://gmail/compose-failed", gmail.Screenshot)
}

func TestExecuteTask_CredentialsReachLogin(t *testing.T) {
	// Only the login form is missing, so entering credentials fails.
	present := map[browser.Selector]bool{}
	for _, set := range provider.Gmail().Selectors {
		for _, sel := range set {
			present[sel] = true
		}
	}
	for _, target := range []provider.Target{provider.TargetLogin, provider.TargetPassword} {
		for _, sel := range provider.Gmail().Selectors[target] {
			delete(present, sel)
		}
	}
	mock := browser.NewMock(browser.WithPolicy(browser.Scripted{Present: present}))

	a := New(WithLauncher(mock), WithCredentials(map[string]provider.Credentials{
		"GMail": {Username: "me@example.com", Password: "secret"},
	}))
	report, err := a.ExecuteTask(context.Background(), scenario, []string{"gmail"})
	require.NoError(t, err)

	gmail, _ := report.Outcome("gmail")
	assert.Equal(t, ReasonLoginUnavailable, gmail.Reason)
}

// ============================================================================
// Cancellation
// ============================================================================

func TestExecuteTask_CancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := New().ExecuteTask(ctx, scenario, []string{"gmail", "outlook"})
	require.NoError(t, err)
	require.Len(t, report.Outcomes, 2)
	for _, o := range report.Outcomes {
		assert.Equal(t, StatusCancelled, o.Status)
		assert.Equal(t, ReasonCancelled, o.Reason)
		assert.Equal(t, "Cancelled", o.Summary())
	}
}

func TestExecuteTask_CancelledMidProvider(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rec := &recorder{onEvent: func(ev provider.Event) {
		if ev.Kind == provider.EventTransition && ev.To == provider.StateAuthenticated {
			cancel()
		}
	}}
	report, err := New(WithObserver(rec)).ExecuteTask(ctx, scenario, []string{"gmail", "outlook"})
	require.NoError(t, err)

	gmail, _ := report.Outcome("gmail")
	assert.Equal(t, StatusFailure, gmail.Status)
	assert.Equal(t, ReasonCancelled, gmail.Reason)

	outlook, _ := report.Outcome("outlook")
	assert.Equal(t, StatusCancelled, outlook.Status)
	assert.Equal(t, []string{"gmail"}, rec.started)
	assert.Len(t, rec.finished, 2)
}

// ============================================================================
// Observability
// ============================================================================

func TestExecuteTask_Observer(t *testing.T) {
	rec := &recorder{}
	_, err := New(WithObserver(rec)).ExecuteTask(context.Background(), scenario, []string{"gmail", "outlook"})
	require.NoError(t, err)

	assert.Equal(t, []string{"gmail", "outlook"}, rec.started)
	require.Len(t, rec.finished, 2)

	var outlookSteps []string
	for _, ev := range rec.events {
		if ev.Provider == "outlook" && ev.Kind == provider.EventStep {
			outlookSteps = append(outlookSteps, ev.Message)
		}
	}
	assert.Equal(t, []string{
		"Loading Office 365 login page",
		"Checking existing sessions",
		"Detecting automation patterns",
	}, outlookSteps)
}

func TestExecuteTask_LogOrdering(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New("debug", "json", &buf)

	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	a := New(WithLogger(log), WithIDs(func() string { return "run-1" }), WithClock(func() time.Time { return now }))
	_, err := a.ExecuteTask(context.Background(), scenario, []string{"gmail", "outlook"})
	require.NoError(t, err)

	var trail []string
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))

		event, _ := entry["event"].(string)
		name, _ := entry["provider"].(string)
		switch event {
		case "interpreted", "finished":
			assert.Equal(t, "run-1", entry["run_id"])
			trail = append(trail, event)
		case "start", "outcome":
			trail = append(trail, name+":"+event)
		case "transition":
			trail = append(trail, name+":"+entry["to"].(string))
		}
	}

	assert.Equal(t, []string{
		"interpreted",
		"gmail:start",
		"gmail:Navigated",
		"gmail:Authenticated",
		"gmail:Composed",
		"gmail:Sent",
		"gmail:outcome",
		"outlook:start",
		"outlook:Navigated",
		"outlook:Failed",
		"outlook:outcome",
		"finished",
	}, trail)
}

// ============================================================================
// Helpers
// ============================================================================

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Reason
	}{
		{"nil", nil, ReasonNone},
		{"bot detection", &provider.AuthenticationError{Reason: provider.ReasonBotDetection}, ReasonBotDetection},
		{"invalid credentials", &provider.AuthenticationError{Reason: provider.ReasonInvalidCredentials}, ReasonInvalidCredentials},
		{"login unavailable", &provider.AuthenticationError{Reason: provider.ReasonLoginUnavailable}, ReasonLoginUnavailable},
		{"send", &provider.SendError{Step: "submit"}, ReasonSendError},
		{"navigation", &provider.NavigationError{URL: "x", Err: errors.New("boom")}, ReasonNavigationError},
		{"unsupported", &UnsupportedProviderError{Name: "yahoo"}, ReasonUnsupportedProvider},
		{"cancelled", context.Canceled, ReasonCancelled},
		{"deadline", context.DeadlineExceeded, ReasonCancelled},
		{"anything else", errors.New("boom"), ReasonInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestDedupe(t *testing.T) {
	assert.Equal(t, []string{"gmail", "outlook"}, Dedupe([]string{"gmail", "", "Outlook", "GMAIL", "  "}))
	assert.Empty(t, Dedupe(nil))
}

func TestReport(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r := &Report{StartedAt: start, FinishedAt: start.Add(3 * time.Second)}
	assert.False(t, r.AllSucceeded(), "an empty report has not succeeded")
	assert.Equal(t, 3*time.Second, r.Duration())

	r.add(Outcome{Provider: "gmail", Status: StatusSuccess})
	assert.True(t, r.AllSucceeded())

	_, ok := r.Outcome("outlook")
	assert.False(t, ok)
}
