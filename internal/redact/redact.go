// Package redact implements the single chokepoint that scrubs known-secret
// values and pattern-matched credentials from any string leaving the
// sandbox, in either direction: tool output flowing into the conversation
// history or the outbound user channel, and raw user input flowing in.
package redact

import (
	"regexp"
	"strings"
	"sync"
)

// builtinPatterns are always applied, independent of the loaded credential
// file. They catch well-known token shapes even when the value itself was
// never registered as a known secret.
var builtinPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(api[_-]?key|apikey)\s*[:=]\s*['"]?[\w-]{20,}['"]?`),
	regexp.MustCompile(`(?i)bearer\s+[\w\-.]+`),
	regexp.MustCompile(`(?i)(aws|amazon).{0,20}?(key|secret|token)\s*[:=]\s*['"]?[\w/+=]{20,}['"]?`),
	regexp.MustCompile(`(?i)(password|passwd|secret|token)\s*[:=]\s*['"]?[^\s'"]{8,}['"]?`),
	regexp.MustCompile(`-----BEGIN (RSA |EC |DSA |OPENSSH )?PRIVATE KEY-----[\s\S]*?-----END (RSA |EC |DSA |OPENSSH )?PRIVATE KEY-----`),
	regexp.MustCompile(`\bntn_[A-Za-z0-9]{20,}\b`),
	regexp.MustCompile(`\bsk-[A-Za-z0-9]{20,}\b`),
	regexp.MustCompile(`\bgh[pousr]_[A-Za-z0-9]{20,}\b`),
	regexp.MustCompile(`\beyJ[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{10,}\b`), // JWT-shaped
}

const placeholder = "[REDACTED]"

// Redactor is a pure function from string to string, configured once at
// startup from the loaded credentials file. It must never be bypassable:
// every path from executor output to the conversation history or the
// outbound user channel passes through Scrub.
type Redactor struct {
	mu      sync.RWMutex
	secrets []string // exact values loaded from the credentials file, longest first
}

// New builds a Redactor from the credential values present in the
// environment file at startup. Values are sorted longest-first so that a
// secret that is a substring of another is never left partially exposed.
func New(credentialValues []string) *Redactor {
	r := &Redactor{}
	r.SetSecrets(credentialValues)
	return r
}

// SetSecrets replaces the set of exact-match secret values. Safe to call
// concurrently with Scrub; a reader observes either the old or new set in
// full, never a partial swap.
func (r *Redactor) SetSecrets(values []string) {
	clean := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		clean = append(clean, v)
	}
	// Longest first so overlapping secrets redact fully.
	for i := 1; i < len(clean); i++ {
		for j := i; j > 0 && len(clean[j]) > len(clean[j-1]); j-- {
			clean[j], clean[j-1] = clean[j-1], clean[j]
		}
	}
	r.mu.Lock()
	r.secrets = clean
	r.mu.Unlock()
}

// Scrub applies both passes: exact substring replacement of credential
// values, then regex replacement of known secret shapes. It is safe for
// concurrent use.
func (r *Redactor) Scrub(s string) string {
	if s == "" {
		return s
	}
	r.mu.RLock()
	secrets := r.secrets
	r.mu.RUnlock()

	out := s
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		out = strings.ReplaceAll(out, secret, placeholder)
	}
	for _, re := range builtinPatterns {
		out = re.ReplaceAllString(out, placeholder)
	}
	return out
}

// InboundDecision is the result of screening a raw user message before it
// enters the pipeline.
type InboundDecision struct {
	// Blocked is true when the message was predominantly a credential
	// pattern and was dropped outright.
	Blocked bool
	// Content is the (possibly redacted) message to carry forward when
	// not blocked.
	Content string
}

// ScreenInbound applies the redactor to a raw inbound user message. If more
// than half of the message's characters are consumed by a credential
// pattern match, the message is dropped rather than partially redacted and
// the caller should tell the user to use the credentials file instead.
// Otherwise the offending span is replaced in place.
func (r *Redactor) ScreenInbound(raw string) InboundDecision {
	if raw == "" {
		return InboundDecision{Content: raw}
	}

	matched := 0
	for _, re := range builtinPatterns {
		for _, m := range re.FindAllString(raw, -1) {
			matched += len(m)
		}
	}
	r.mu.RLock()
	for _, secret := range r.secrets {
		matched += strings.Count(raw, secret) * len(secret)
	}
	r.mu.RUnlock()

	if float64(matched) > 0.5*float64(len(raw)) {
		return InboundDecision{Blocked: true}
	}

	return InboundDecision{Content: r.Scrub(raw)}
}

// DetectedPatterns reports which builtin pattern categories matched, for
// logging or alerting on potential secret exposure without reproducing the
// secret itself.
func DetectedPatterns(content string) []string {
	if content == "" {
		return nil
	}
	names := []string{
		"api_key", "bearer_token", "aws_key", "generic_secret",
		"private_key", "notion_token", "openai_key", "github_token", "jwt",
	}
	var hits []string
	for i, re := range builtinPatterns {
		if re.MatchString(content) {
			hits = append(hits, names[i])
		}
	}
	return hits
}
