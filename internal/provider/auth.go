package provider

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

var ErrAuthentication = errors.New("authentication failed")

// AuthReason classifies an authentication refusal.
type AuthReason string

const (
	ReasonBotDetection       AuthReason = "BotDetection"
	ReasonInvalidCredentials AuthReason = "InvalidCredentials"
	ReasonLoginUnavailable   AuthReason = "LoginUnavailable"
)

var reasonText = map[AuthReason]string{
	ReasonBotDetection:       "Bot detection triggered",
	ReasonInvalidCredentials: "Invalid credentials",
	ReasonLoginUnavailable:   "Login form unavailable",
}

// AuthenticationError is terminal for one provider session.
type AuthenticationError struct {
	Reason AuthReason
}

func (e *AuthenticationError) Error() string {
	text, ok := reasonText[e.Reason]
	if !ok {
		text = string(e.Reason)
	}
	return "Authentication failed: " + text
}

func (e *AuthenticationError) Unwrap() error { return ErrAuthentication }

// Credentials are optional mock login details.
type Credentials struct {
	Username string
	Password string
}

// Empty reports whether no credentials were supplied.
func (c Credentials) Empty() bool {
	return c.Username == "" && c.Password == ""
}

// AuthRequest is what a policy sees when deciding a login.
type AuthRequest struct {
	Provider    Kind
	Credentials Credentials
}

// AuthPolicy decides whether the simulated provider lets a login through.
type AuthPolicy interface {
	Name() string
	Authenticate(ctx context.Context, req AuthRequest) error
}

const (
	PolicyAllow              = "allow"
	PolicyBotDetection       = "bot-detection"
	PolicyInvalidCredentials = "invalid-credentials"
)

type allowPolicy struct{}

func (allowPolicy) Name() string { return PolicyAllow }

func (allowPolicy) Authenticate(ctx context.Context, _ AuthRequest) error {
	return ctx.Err()
}

type refusePolicy struct {
	name   string
	reason AuthReason
}

func (p refusePolicy) Name() string { return p.name }

func (p refusePolicy) Authenticate(ctx context.Context, _ AuthRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return &AuthenticationError{Reason: p.reason}
}

// Allow lets every login through.
func Allow() AuthPolicy { return allowPolicy{} }

// RefuseBotDetection models a provider whose bot detection always blocks
// automated sessions.
func RefuseBotDetection() AuthPolicy {
	return refusePolicy{name: PolicyBotDetection, reason: ReasonBotDetection}
}

// RefuseCredentials models a provider that rejects the supplied credentials.
func RefuseCredentials() AuthPolicy {
	return refusePolicy{name: PolicyInvalidCredentials, reason: ReasonInvalidCredentials}
}

var policies = map[string]func() AuthPolicy{
	PolicyAllow:              Allow,
	PolicyBotDetection:       RefuseBotDetection,
	PolicyInvalidCredentials: RefuseCredentials,
}

// ParseAuthPolicy returns the policy registered under name.
func ParseAuthPolicy(name string) (AuthPolicy, error) {
	ctor, ok := policies[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("unknown auth policy %q (valid: %s)", name, strings.Join(PolicyNames(), ", "))
	}
	return ctor(), nil
}

// PolicyNames lists the accepted policy names.
func PolicyNames() []string {
	names := make([]string, 0, len(policies))
	for name := range policies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
