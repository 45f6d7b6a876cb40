// Package policy implements the policy gate: a pure function deciding, for
// each proposed tool invocation, one of {allow, require-approval, deny}.
package policy

import (
	"strings"
)

// Decision is the gate's verdict.
type Decision string

const (
	Allow           Decision = "allow"
	RequireApproval Decision = "require_approval"
	Deny            Decision = "deny"
)

// Verdict carries the decision plus the reason a human or the model can be
// shown.
type Verdict struct {
	Decision Decision
	Reason   string
}

// ExecutorVariant distinguishes the container and direct executor modes;
// rule 4 below is evaluated differently per variant.
type ExecutorVariant string

const (
	VariantContainer ExecutorVariant = "container"
	VariantDirect    ExecutorVariant = "direct"
)

// Invocation is the subset of a proposed tool call the gate needs to
// decide. Fields are populated by the caller from the tool call and its
// static metadata; the gate itself never inspects tool implementations.
type Invocation struct {
	ToolName string

	// OutboundDomain is set when this invocation initiates network traffic
	// to a specific domain (e.g. a "fetch_url" tool call), empty otherwise.
	OutboundDomain string

	// ContainerImagePull is set when this invocation is a container-image
	// pull naming Image.
	ContainerImagePull bool
	Image               string

	// DestructivePath/OutsideSandboxRoot apply only to the direct executor
	// variant's risk predicate (rule 4).
	DestructivePath    bool
	OutsideSandboxRoot bool
}

// TrustLedgerSnapshot is the read-only view of the trust ledger and static
// configuration the gate consults. It must reflect durable state: a domain
// only appears here once its approval has been committed through the
// memory store's writer, per the ordering guarantee in the concurrency
// model.
type TrustLedgerSnapshot struct {
	BlockList       map[string]bool
	StaticAllowlist map[string]bool
	Trusted         map[string]bool
	PulledImages    map[string]bool
}

// Allowed reports whether domain is covered by the static allowlist or the
// trust ledger.
func (t TrustLedgerSnapshot) Allowed(domain string) bool {
	domain = strings.ToLower(domain)
	return t.StaticAllowlist[domain] || t.Trusted[domain]
}

// Blocked reports whether domain is in the configured block list.
func (t TrustLedgerSnapshot) Blocked(domain string) bool {
	return t.BlockList[strings.ToLower(domain)]
}

// Decide is the gate: a pure function of (invocation, trust ledger
// snapshot, executor variant). Rules are evaluated in order; the first
// matching rule wins.
func Decide(inv Invocation, ledger TrustLedgerSnapshot, variant ExecutorVariant) Verdict {
	// 1. Deny known-bad actions.
	if inv.OutboundDomain != "" && ledger.Blocked(inv.OutboundDomain) {
		return Verdict{Deny, "outbound domain is block-listed"}
	}

	// 2. Require approval for traffic to a domain outside both the static
	// allowlist and the trust ledger.
	if inv.OutboundDomain != "" && !ledger.Allowed(inv.OutboundDomain) {
		return Verdict{RequireApproval, "outbound domain not in allowlist or trust ledger"}
	}

	// 3. Require approval for a never-before-pulled container image.
	if inv.ContainerImagePull && !ledger.PulledImages[inv.Image] {
		return Verdict{RequireApproval, "container image has not been pulled before"}
	}

	// 4. Require approval for executor-variant-specific risk predicates.
	if variant == VariantDirect {
		if inv.DestructivePath {
			return Verdict{RequireApproval, "destructive path operation in direct executor mode"}
		}
		if inv.OutsideSandboxRoot {
			return Verdict{RequireApproval, "path outside sandboxed roots in direct executor mode"}
		}
	}

	// 5. Otherwise allow.
	return Verdict{Allow, "no matching restriction"}
}
