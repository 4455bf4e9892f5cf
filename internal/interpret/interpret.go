// Package interpret turns a free-text instruction into the fields of an email.
//
// Extraction is pattern based and deterministic: the same text always yields
// the same Fields. The recipient is mandatory; subject and body default to
// the empty string.
package interpret

import (
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"strings"
)

var (
	ErrMissingRecipient     = errors.New("missing recipient")
	ErrMalformedInstruction = errors.New("malformed instruction")
)

// ParseError reports why an instruction could not be interpreted.
type ParseError struct {
	Kind  error
	Input string
}

func (e *ParseError) Error() string {
	if e == nil {
		return ""
	}
	switch e.Kind {
	case ErrMissingRecipient:
		return "instruction has no recipient email address"
	case ErrMalformedInstruction:
		return "instruction is empty"
	default:
		return e.Kind.Error()
	}
}

func (e *ParseError) Unwrap() error { return e.Kind }

// Fields is the structured form of an instruction. Subject and Body are
// always present in JSON, empty when the instruction did not provide them.
type Fields struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

const emailPattern = `([a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,})`

// quotedValue matches a value enclosed in either double or single quotes
// at the start of the input.
var quotedValue = regexp.MustCompile(`^(?:"([^"]*)"|'([^']*)')`)

// field describes how one of subject or body is introduced. A quoted value
// belongs to the first keyword before it unless a keyword of the other
// field sits in between.
type field struct {
	keyword  *regexp.Regexp
	stop     *regexp.Regexp
	unquoted *regexp.Regexp
}

var (
	recipientPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(?:to|for|recipient)\b.*?` + emailPattern),
		regexp.MustCompile(emailPattern),
	}

	subjectKeyword = regexp.MustCompile(`(?i)\b(?:subject|about|re)\b`)
	bodyKeyword    = regexp.MustCompile(`(?i)\b(?:body|content|saying)\b`)

	subjectField = field{
		keyword:  subjectKeyword,
		stop:     bodyKeyword,
		unquoted: regexp.MustCompile(`(?i)\b(?:subject|about|re)\b:?\s+([^"']+?)(?:\s+(?:body|saying|content)\b|\s*$)`),
	}
	bodyField = field{
		keyword:  bodyKeyword,
		stop:     subjectKeyword,
		unquoted: regexp.MustCompile(`(?i)\b(?:body|content|saying)\b:?\s+([^"']+?)\s*$`),
	}
)

// Interpret extracts the recipient, subject and body from text.
func Interpret(text string) (Fields, error) {
	if strings.TrimSpace(text) == "" {
		return Fields{}, &ParseError{Kind: ErrMalformedInstruction, Input: text}
	}

	to := firstMatch(recipientPatterns, text)
	if to == "" || !isAddress(to) {
		return Fields{}, &ParseError{Kind: ErrMissingRecipient, Input: text}
	}

	return Fields{
		To:      to,
		Subject: subjectField.extract(text),
		Body:    bodyField.extract(text),
	}, nil
}

// firstMatch returns the first non-empty capture of the first pattern that
// matches, trimmed.
func firstMatch(patterns []*regexp.Regexp, text string) string {
	for _, re := range patterns {
		if v := firstGroup(re.FindStringSubmatch(text)); v != "" {
			return v
		}
	}
	return ""
}

func firstGroup(m []string) string {
	if m == nil {
		return ""
	}
	for _, group := range m[1:] {
		if v := strings.TrimSpace(group); v != "" {
			return v
		}
	}
	return ""
}

// extract returns the quoted value following a keyword, or the unquoted
// form when no keyword owns a quoted value.
func (f field) extract(text string) string {
	for _, loc := range f.keyword.FindAllStringIndex(text, -1) {
		if v, ok := f.quotedAfter(text, loc[1]); ok {
			return v
		}
	}
	return firstMatch([]*regexp.Regexp{f.unquoted}, text)
}

// quotedAfter scans from start for the next opening quote. A quote that
// follows a letter or digit is an apostrophe and is skipped.
func (f field) quotedAfter(text string, start int) (string, bool) {
	for i := start; i < len(text); i++ {
		c := text[i]
		if c != '"' && c != '\'' {
			continue
		}
		if i > 0 && isWordByte(text[i-1]) {
			continue
		}
		m := quotedValue.FindStringSubmatch(text[i:])
		if m == nil {
			continue
		}
		if f.stop.MatchString(text[start:i]) {
			return "", false
		}
		v := firstGroup(m)
		return v, v != ""
	}
	return "", false
}

func isWordByte(c byte) bool {
	return c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

func isAddress(s string) bool {
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s
}

// String renders the fields for log lines.
func (f Fields) String() string {
	return fmt.Sprintf("to=%s subject=%q body=%q", f.To, f.Subject, f.Body)
}
