package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/vaultsandbox/vsb-agent/internal/agent"
	"github.com/vaultsandbox/vsb-agent/internal/browser"
	"github.com/vaultsandbox/vsb-agent/internal/cliutil"
	"github.com/vaultsandbox/vsb-agent/internal/config"
	"github.com/vaultsandbox/vsb-agent/internal/files"
	"github.com/vaultsandbox/vsb-agent/internal/interpret"
	"github.com/vaultsandbox/vsb-agent/internal/logger"
	"github.com/vaultsandbox/vsb-agent/internal/output"
	"github.com/vaultsandbox/vsb-agent/internal/provider"
	"github.com/vaultsandbox/vsb-agent/internal/styles"
	"github.com/vaultsandbox/vsb-agent/internal/tui/watch"
)

// newRegistry returns the built-in providers with configured auth overrides.
func newRegistry(c *config.Config) (*provider.Registry, error) {
	registry := provider.DefaultRegistry()
	policies, err := c.AuthPolicies()
	if err != nil {
		return nil, err
	}
	for name, policy := range policies {
		if err := registry.SetAuthPolicy(name, policy); err != nil {
			return nil, fmt.Errorf("auth.%s: %w", name, err)
		}
	}
	return registry, nil
}

// newAgent wires the registry, mock browser, pacing and screenshots from c.
// The returned func shuts the browser down.
func newAgent(c *config.Config, l *logger.Logger, obs agent.Observer) (*agent.Agent, func(), error) {
	registry, err := newRegistry(c)
	if err != nil {
		return nil, nil, err
	}

	pacer := browser.Instant()
	if !c.Timing.Instant {
		seed := c.Surface.Seed
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		pacer = browser.NewPacer(browser.RealSleeper{}, c.Timing.MinDelay, c.Timing.MaxDelay, seed)
	}

	var policy browser.Policy = browser.Reliable{}
	if c.Surface.Seed != 0 {
		policy = browser.NewFlaky(c.Surface.Seed, c.Surface.MissRate, c.Surface.FailRate)
	}

	mockOpts := []browser.Option{
		browser.WithPolicy(policy),
		browser.WithPacer(pacer),
		browser.WithLogger(l.WithComponent("browser")),
	}
	if c.Screenshots.Enabled && c.Screenshots.Dir != "" {
		mockOpts = append(mockOpts, browser.WithScreenshots(files.NewScreenshots(c.Screenshots.Dir)))
	}

	mock := browser.NewMock(mockOpts...)
	opts := []agent.Option{
		agent.WithRegistry(registry),
		agent.WithLauncher(mock),
		agent.WithLogger(l),
		agent.WithPacer(pacer),
		agent.WithElementTimeout(c.Timing.ElementTimeout),
		agent.WithCredentials(c.Credentials()),
	}
	if obs != nil {
		opts = append(opts, agent.WithObserver(obs))
	}
	return agent.New(opts...), mock.Close, nil
}

func runPlain(ctx context.Context, c *config.Config, instruction string, providers []string) (*agent.Report, error) {
	a, closeBrowser, err := newAgent(c, appLog, nil)
	if err != nil {
		return nil, err
	}
	defer closeBrowser()
	return a.ExecuteTask(ctx, instruction, providers)
}

// runWatch runs the task behind the live view. Logs go to the log file only
// so they do not draw over the view.
func runWatch(ctx context.Context, c *config.Config, instruction string, providers []string) (*agent.Report, error) {
	fields, err := interpret.Interpret(instruction)
	if err != nil {
		return nil, err
	}

	l, closer, err := logger.Open(logger.Options{
		Level:  c.Log.Level,
		Format: "json",
		Out:    io.Discard,
		File:   c.Log.File,
	})
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	names := agent.Dedupe(providers)
	if len(names) == 0 {
		names = agent.DefaultProviders
	}
	p := tea.NewProgram(watch.NewModel(fields.To, names, cancel))

	a, closeBrowser, err := newAgent(c, l, watch.NewObserver(p))
	if err != nil {
		return nil, err
	}
	defer closeBrowser()

	go func() {
		report, err := a.ExecuteTask(ctx, instruction, providers)
		p.Send(watch.DoneMsg{Report: report, Err: err})
	}()

	final, err := p.Run()
	if err != nil {
		return nil, fmt.Errorf("TUI error: %w", err)
	}
	m, ok := final.(watch.Model)
	if !ok || (m.Report() == nil && m.Err() == nil) {
		return nil, fmt.Errorf("task interrupted")
	}
	return m.Report(), m.Err()
}

func recordHistory(c *config.Config, r *agent.Report) error {
	path, err := config.HistoryPath()
	if err != nil {
		return err
	}
	h, err := config.LoadHistory(path, c.History.Limit)
	if err != nil {
		return fmt.Errorf("failed to load history: %w", err)
	}
	return h.Add(historyEntry(r))
}

func historyEntry(r *agent.Report) config.HistoryEntry {
	entry := config.HistoryEntry{
		ID:        r.ID,
		StartedAt: r.StartedAt,
		Duration:  r.Duration(),
		To:        r.Fields.To,
		Subject:   r.Fields.Subject,
		Outcomes:  make([]config.HistoryOutcome, 0, len(r.Outcomes)),
	}
	for _, o := range r.Outcomes {
		entry.Outcomes = append(entry.Outcomes, config.HistoryOutcome{
			Provider: o.Provider,
			Status:   string(o.Status),
			Reason:   string(o.Reason),
			Summary:  o.Summary(),
		})
	}
	return entry
}

// printReport writes the per-provider summary, one "<provider>: <summary>"
// line each.
func printReport(w io.Writer, r *agent.Report) {
	var b strings.Builder
	fmt.Fprintf(&b, "%s%s\n", styles.LabelStyle.Render("To:"), r.Fields.To)
	if r.Fields.Subject != "" {
		fmt.Fprintf(&b, "%s%s\n", styles.LabelStyle.Render("Subject:"), r.Fields.Subject)
	}
	b.WriteString("\n")

	for _, o := range r.Outcomes {
		line := fmt.Sprintf("%s: %s", o.Provider, o.Summary())
		switch o.Status {
		case agent.StatusSuccess:
			b.WriteString(output.PrintSuccess(line))
		case agent.StatusCancelled:
			b.WriteString(output.PrintWarning(line))
		default:
			b.WriteString(output.PrintError(line))
		}
		b.WriteString("\n")
		if o.Screenshot != "" {
			b.WriteString("  " + output.PrintInfo("screenshot: "+o.Screenshot) + "\n")
		}
	}

	box := styles.WarningBoxStyle
	if r.AllSucceeded() {
		box = styles.SuccessBoxStyle
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, box.Render(strings.TrimRight(b.String(), "\n")))
	fmt.Fprintln(w, styles.MutedStyle.Render(fmt.Sprintf("Run %s finished in %s", r.ID, cliutil.FormatDuration(r.Duration()))))
}
