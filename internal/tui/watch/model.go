// Package watch is the live progress view for a running task.
package watch

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/vaultsandbox/vsb-agent/internal/agent"
	"github.com/vaultsandbox/vsb-agent/internal/provider"
	"github.com/vaultsandbox/vsb-agent/internal/styles"
)

// maxActivity is how many recent activity lines stay on screen.
const maxActivity = 8

// Messages
type providerStartedMsg struct{ name string }

type sessionEventMsg struct{ event provider.Event }

type providerFinishedMsg struct{ outcome agent.Outcome }

// DoneMsg ends the view when the task returns.
type DoneMsg struct {
	Report *agent.Report
	Err    error
}

// Sender delivers messages into a running program. *tea.Program satisfies it.
type Sender interface {
	Send(msg tea.Msg)
}

// Observer forwards task progress into the program.
type Observer struct {
	p Sender
}

// NewObserver creates an agent.Observer that feeds p.
func NewObserver(p Sender) *Observer {
	return &Observer{p: p}
}

func (o *Observer) ProviderStarted(name string) { o.p.Send(providerStartedMsg{name: name}) }

func (o *Observer) SessionEvent(ev provider.Event) { o.p.Send(sessionEventMsg{event: ev}) }

func (o *Observer) ProviderFinished(oc agent.Outcome) { o.p.Send(providerFinishedMsg{outcome: oc}) }

// row is one provider line
type row struct {
	name     string
	state    string
	step     string
	attempts int
	outcome  *agent.Outcome
}

// KeyMap defines the keybindings
type KeyMap struct {
	Quit key.Binding
}

var DefaultKeyMap = KeyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c", "esc"),
		key.WithHelp("q", "cancel"),
	),
}

// Model is the Bubble Tea model for the live view
type Model struct {
	spinner  spinner.Model
	to       string
	rows     []*row
	activity []string

	cancelling bool
	done       bool
	report     *agent.Report
	err        error

	cancel func()
	width  int
}

// NewModel creates the view for a task sending to the given recipient
// across providers. cancel is called when the user quits early.
func NewModel(to string, providers []string, cancel func()) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(styles.Primary)

	rows := make([]*row, 0, len(providers))
	for _, name := range agent.Dedupe(providers) {
		rows = append(rows, &row{name: name, state: "Pending"})
	}
	if cancel == nil {
		cancel = func() {}
	}
	return Model{
		spinner: s,
		to:      to,
		rows:    rows,
		cancel:  cancel,
	}
}

// Report returns the finished report, if the task completed.
func (m Model) Report() *agent.Report { return m.report }

// Err returns the task error, if any.
func (m Model) Err() error { return m.err }

func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if key.Matches(msg, DefaultKeyMap.Quit) {
			if m.done {
				return m, tea.Quit
			}
			if !m.cancelling {
				m.cancelling = true
				m.cancel()
				m.addActivity("Cancelling…")
			}
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case providerStartedMsg:
		r := m.row(msg.name)
		r.state = string(provider.StateIdle)
		m.addActivity(fmt.Sprintf("%s: starting", msg.name))
		return m, nil

	case sessionEventMsg:
		m.applyEvent(msg.event)
		return m, nil

	case providerFinishedMsg:
		o := msg.outcome
		r := m.row(o.Provider)
		r.outcome = &o
		m.addActivity(fmt.Sprintf("%s: %s", o.Provider, o.Summary()))
		return m, nil

	case DoneMsg:
		m.done = true
		m.report = msg.Report
		m.err = msg.Err
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m *Model) applyEvent(ev provider.Event) {
	r := m.row(ev.Provider)
	switch ev.Kind {
	case provider.EventTransition:
		r.state = string(ev.To)
		line := fmt.Sprintf("%s: %s → %s", ev.Provider, ev.From, ev.To)
		if ev.Message != "" {
			line += " (" + ev.Message + ")"
		}
		m.addActivity(line)
	case provider.EventStep:
		r.step = ev.Message
		m.addActivity(fmt.Sprintf("%s: %s", ev.Provider, ev.Message))
	case provider.EventAttempt:
		r.attempts++
		r.step = fmt.Sprintf("%s via %s", ev.Target, ev.Selector)
	}
}

// row returns the row for name, adding one for providers not known upfront.
func (m *Model) row(name string) *row {
	for _, r := range m.rows {
		if r.name == name {
			return r
		}
	}
	r := &row{name: name, state: "Pending"}
	m.rows = append(m.rows, r)
	return r
}

func (m *Model) addActivity(line string) {
	m.activity = append(m.activity, line)
	if len(m.activity) > maxActivity {
		m.activity = m.activity[len(m.activity)-maxActivity:]
	}
}

func (m Model) View() string {
	var sb strings.Builder

	sb.WriteString(styles.HeaderStyle.Render("vsb-agent"))
	sb.WriteString("\n")
	if m.to != "" {
		sb.WriteString(styles.LabelStyle.Render("To:"))
		sb.WriteString(styles.EmailBoxStyle.Render(m.to))
		sb.WriteString("\n\n")
	}

	for _, r := range m.rows {
		sb.WriteString(m.renderRow(r))
		sb.WriteString("\n")
	}

	if len(m.activity) > 0 {
		sb.WriteString("\n")
		for _, line := range m.activity {
			sb.WriteString(styles.HelpStyle.Render("  " + line))
			sb.WriteString("\n")
		}
	}

	status := DefaultKeyMap.Quit.Help().Key + " " + DefaultKeyMap.Quit.Help().Desc
	if m.cancelling {
		status = "cancelling…"
	}
	sb.WriteString(styles.StatusBarStyle.Render(status))

	return styles.AppStyle.Render(sb.String())
}

func (m Model) renderRow(r *row) string {
	name := styles.ProviderStyle.Render(fmt.Sprintf("%-10s", r.name))

	if r.outcome != nil {
		line := name + " " + styles.FormatStatus(string(r.outcome.Status))
		if r.outcome.ErrorDetail != "" {
			line += " " + styles.MutedStyle.Render(r.outcome.ErrorDetail)
		}
		return line
	}

	icon := " "
	if r.state != "Pending" {
		icon = m.spinner.View()
	}
	line := fmt.Sprintf("%s %s %s", name, icon, styles.StatusStyle(r.state).Render(r.state))
	if r.step != "" {
		line += " " + styles.MutedStyle.Render(r.step)
	}
	if r.attempts > 0 {
		line += styles.MutedStyle.Render(fmt.Sprintf(" [%d lookups]", r.attempts))
	}
	return line
}
