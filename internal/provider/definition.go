// Package provider drives one email provider's web UI through the simulated
// automation surface: navigate, authenticate, compose and send. Each provider
// is a Definition registered under its Kind; sessions are built from a
// definition and a fresh page.
package provider

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/vaultsandbox/vsb-agent/internal/browser"
)

// Kind identifies a provider variant.
type Kind string

const (
	KindGmail   Kind = "gmail"
	KindOutlook Kind = "outlook"
)

// Target is a logical UI element a session interacts with.
type Target string

const (
	TargetCompose   Target = "compose"
	TargetRecipient Target = "recipient-field"
	TargetSubject   Target = "subject-field"
	TargetBody      Target = "body-field"
	TargetSend      Target = "send-button"
	TargetLogin     Target = "login-field"
	TargetPassword  Target = "password-field"
	TargetNext      Target = "next-button"
)

// requiredTargets must be present in every definition.
var requiredTargets = []Target{TargetCompose, TargetRecipient, TargetSubject, TargetBody, TargetSend}

// credentialTargets are needed only when a login uses credentials.
var credentialTargets = []Target{TargetLogin, TargetPassword, TargetNext}

// Definition describes how to automate one provider.
type Definition struct {
	Kind Kind
	Name string
	URL  string

	Selectors map[Target]browser.SelectorSet

	// SuggestionKey accepts the autocomplete suggestion after the recipient
	// is filled. Empty skips the keypress.
	SuggestionKey string
	// SendShortcut submits the message. Empty goes straight to the send
	// button.
	SendShortcut string

	// LoginSteps narrate the provider's login flow. The auth policy is
	// consulted at LoginSteps[Checkpoint].
	LoginSteps []string
	Checkpoint int
	Auth       AuthPolicy
}

// Validate checks that the definition can drive a session.
func (d Definition) Validate() error {
	if d.Kind == "" {
		return errors.New("provider kind is required")
	}
	if d.URL == "" {
		return fmt.Errorf("%s: URL is required", d.Kind)
	}
	if d.Auth == nil {
		return fmt.Errorf("%s: auth policy is required", d.Kind)
	}
	if len(d.LoginSteps) == 0 {
		return fmt.Errorf("%s: at least one login step is required", d.Kind)
	}
	if d.Checkpoint < 0 || d.Checkpoint >= len(d.LoginSteps) {
		return fmt.Errorf("%s: checkpoint %d outside login steps", d.Kind, d.Checkpoint)
	}
	for _, target := range requiredTargets {
		set, ok := d.Selectors[target]
		if !ok {
			return fmt.Errorf("%s: missing selectors for %s", d.Kind, target)
		}
		if err := set.Validate(); err != nil {
			return fmt.Errorf("%s: %s: %w", d.Kind, target, err)
		}
	}
	for _, target := range credentialTargets {
		if set, ok := d.Selectors[target]; ok {
			if err := set.Validate(); err != nil {
				return fmt.Errorf("%s: %s: %w", d.Kind, target, err)
			}
		}
	}
	return nil
}

// Targets returns the definition's targets in a stable order.
func (d Definition) Targets() []Target {
	targets := make([]Target, 0, len(d.Selectors))
	for t := range d.Selectors {
		targets = append(targets, t)
	}
	sort.Slice(targets, func(i, j int) bool { return targets[i] < targets[j] })
	return targets
}

// Registry maps provider names to definitions. It is the single place a new
// provider is added.
type Registry struct {
	defs  map[Kind]Definition
	order []Kind
}

// NewRegistry creates a registry holding defs.
func NewRegistry(defs ...Definition) (*Registry, error) {
	r := &Registry{defs: make(map[Kind]Definition)}
	for _, def := range defs {
		if err := r.Register(def); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// DefaultRegistry holds the built-in providers.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(Gmail(), Outlook())
	if err != nil {
		panic(fmt.Sprintf("invalid built-in provider: %v", err))
	}
	return r
}

// Register adds or replaces a definition.
func (r *Registry) Register(def Definition) error {
	if err := def.Validate(); err != nil {
		return err
	}
	if _, exists := r.defs[def.Kind]; !exists {
		r.order = append(r.order, def.Kind)
	}
	r.defs[def.Kind] = def
	return nil
}

// Lookup finds a definition by name, ignoring case and surrounding space.
func (r *Registry) Lookup(name string) (Definition, bool) {
	def, ok := r.defs[Kind(Normalize(name))]
	return def, ok
}

// SetAuthPolicy overrides the auth policy of a registered provider.
func (r *Registry) SetAuthPolicy(name string, policy AuthPolicy) error {
	def, ok := r.Lookup(name)
	if !ok {
		return fmt.Errorf("unknown provider %q", name)
	}
	if policy == nil {
		return fmt.Errorf("%s: auth policy is required", name)
	}
	def.Auth = policy
	r.defs[def.Kind] = def
	return nil
}

// Definitions returns all definitions in registration order.
func (r *Registry) Definitions() []Definition {
	out := make([]Definition, 0, len(r.order))
	for _, k := range r.order {
		out = append(out, r.defs[k])
	}
	return out
}

// Names returns the registered provider names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	for i, k := range r.order {
		out[i] = string(k)
	}
	return out
}

// Normalize canonicalizes a provider name.
func Normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
