package egress

import "testing"

type fakeLedger struct {
	trusted map[string]bool
}

func (f fakeLedger) IsTrusted(domain string) bool { return f.trusted[domain] }

func TestAllowedStaticRegistry(t *testing.T) {
	p := New(nil)
	if !p.Allowed("pypi.org") {
		t.Fatalf("expected default registry to be allowed")
	}
}

func TestAllowedConfiguredDomain(t *testing.T) {
	p := New([]string{"Example.com"})
	if !p.Allowed("example.com") {
		t.Fatalf("expected configured domain to be allowed case-insensitively")
	}
}

func TestDeniedUnknownDomain(t *testing.T) {
	p := New(nil)
	if p.Allowed("evil.example.net") {
		t.Fatalf("expected unknown domain to be denied")
	}
}

func TestAllowedViaTrustLedger(t *testing.T) {
	p := New(nil, WithTrustLedger(fakeLedger{trusted: map[string]bool{"trusted.example.com": true}}))
	if !p.Allowed("trusted.example.com") {
		t.Fatalf("expected trust-ledger domain to be allowed")
	}
	if p.Allowed("untrusted.example.com") {
		t.Fatalf("expected non-ledger domain to remain denied")
	}
}

func TestSetStaticAllowlistReplacesConfig(t *testing.T) {
	p := New([]string{"old.example.com"})
	p.SetStaticAllowlist([]string{"new.example.com"})
	if p.Allowed("old.example.com") {
		t.Fatalf("expected replaced allowlist to drop old domain")
	}
	if !p.Allowed("new.example.com") {
		t.Fatalf("expected replaced allowlist to include new domain")
	}
	if !p.Allowed("pypi.org") {
		t.Fatalf("expected default registries to survive allowlist replacement")
	}
}
