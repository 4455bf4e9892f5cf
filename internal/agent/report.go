package agent

import (
	"fmt"
	"strings"
	"time"

	"github.com/vaultsandbox/vsb-agent/internal/interpret"
)

// Status is the result class of one provider run.
type Status string

const (
	StatusSuccess   Status = "Success"
	StatusFailure   Status = "Failure"
	StatusCancelled Status = "Cancelled"
)

// Reason classifies a non-successful outcome.
type Reason string

const (
	ReasonNone                Reason = ""
	ReasonBotDetection        Reason = "BotDetection"
	ReasonInvalidCredentials  Reason = "InvalidCredentials"
	ReasonLoginUnavailable    Reason = "LoginUnavailable"
	ReasonSendError           Reason = "SendError"
	ReasonNavigationError     Reason = "NavigationError"
	ReasonUnsupportedProvider Reason = "UnsupportedProvider"
	ReasonCancelled           Reason = "Cancelled"
	ReasonInternal            Reason = "Internal"
)

// Outcome is the immutable result of one provider within a task.
type Outcome struct {
	Provider    string        `json:"provider"`
	Status      Status        `json:"status"`
	Reason      Reason        `json:"reason,omitempty"`
	ErrorDetail string        `json:"errorDetail,omitempty"`
	Screenshot  string        `json:"screenshot,omitempty"`
	Duration    time.Duration `json:"durationNs"`
}

// Summary is the human-readable one-liner for the outcome.
func (o Outcome) Summary() string {
	switch o.Status {
	case StatusSuccess:
		return "Success"
	case StatusCancelled:
		return "Cancelled"
	default:
		return "Failed: " + o.ErrorDetail
	}
}

// Report is the ordered result of one task run.
type Report struct {
	ID         string           `json:"id"`
	Fields     interpret.Fields `json:"fields"`
	StartedAt  time.Time        `json:"startedAt"`
	FinishedAt time.Time        `json:"finishedAt"`
	Outcomes   []Outcome        `json:"outcomes"`
}

// Outcome returns the outcome recorded for provider.
func (r *Report) Outcome(provider string) (Outcome, bool) {
	for _, o := range r.Outcomes {
		if o.Provider == provider {
			return o, true
		}
	}
	return Outcome{}, false
}

// Providers returns provider names in execution order.
func (r *Report) Providers() []string {
	names := make([]string, len(r.Outcomes))
	for i, o := range r.Outcomes {
		names[i] = o.Provider
	}
	return names
}

// AllSucceeded reports whether every provider sent the message.
func (r *Report) AllSucceeded() bool {
	for _, o := range r.Outcomes {
		if o.Status != StatusSuccess {
			return false
		}
	}
	return len(r.Outcomes) > 0
}

// Duration is the wall time of the whole task.
func (r *Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

func (r *Report) add(o Outcome) {
	r.Outcomes = append(r.Outcomes, o)
}

// String renders the summary, one provider per line.
func (r *Report) String() string {
	var b strings.Builder
	for _, o := range r.Outcomes {
		fmt.Fprintf(&b, "%s: %s\n", o.Provider, o.Summary())
	}
	return b.String()
}
