// Package egress implements the forward proxy the sandbox's network
// namespace is pointed at via HTTP_PROXY/HTTPS_PROXY. It enforces a domain
// allowlist union: static configuration, a fixed set of package registries,
// and the trust ledger; everything else is rejected before a byte reaches
// the upstream.
package egress

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/wintermute-run/wintermute/internal/net/ssrf"
)

// defaultRegistries are always allowed regardless of configuration: the
// sandbox must be able to install packages even before any user-authored
// allowlist entry exists.
var defaultRegistries = []string{
	"pypi.org",
	"files.pythonhosted.org",
	"registry.npmjs.org",
	"proxy.golang.org",
	"sum.golang.org",
	"github.com",
	"raw.githubusercontent.com",
	"codeload.github.com",
	"crates.io",
	"static.crates.io",
}

// TrustLedger is the subset of the memory store's trust-ledger contract the
// proxy needs: a read-only view of user/config-approved domains.
type TrustLedger interface {
	IsTrusted(domain string) bool
}

// Proxy is an HTTP forward proxy (plain GET/POST passthrough and CONNECT
// tunneling for TLS) enforcing the domain allowlist. A denied request gets
// an HTTP 4xx and a structured outbound-denied log line; no attempt is made
// to inspect request or response content.
type Proxy struct {
	mu       sync.RWMutex
	static   map[string]bool
	ledger   TrustLedger
	logger   *slog.Logger
	client   *http.Client
	dialTO   time.Duration

	limMu      sync.Mutex
	limiters   map[string]*rate.Limiter
	limitRPS   rate.Limit
	limitBurst int
}

// defaultDomainRPS and defaultDomainBurst bound how often the sandbox may
// hit any single allowed domain, supplementing the allowlist itself: a
// runaway agent-authored script looping a fetch can still be throttled
// without being denied outright.
const (
	defaultDomainRPS   = 5.0
	defaultDomainBurst = 10
)

// Option configures a Proxy.
type Option func(*Proxy)

// WithLogger overrides the structured logger used for allow/deny events.
func WithLogger(l *slog.Logger) Option {
	return func(p *Proxy) { p.logger = l }
}

// WithTrustLedger wires the memory store's trust-ledger read path into the
// proxy's allowlist union.
func WithTrustLedger(t TrustLedger) Option {
	return func(p *Proxy) { p.ledger = t }
}

// WithDialTimeout overrides the upstream dial timeout, default 10s.
func WithDialTimeout(d time.Duration) Option {
	return func(p *Proxy) { p.dialTO = d }
}

// WithDomainRateLimit overrides the per-domain requests-per-second and
// burst size applied on top of the allowlist.
func WithDomainRateLimit(rps float64, burst int) Option {
	return func(p *Proxy) {
		p.limitRPS = rate.Limit(rps)
		p.limitBurst = burst
	}
}

// limiterFor returns the token-bucket limiter for domain, creating one
// lazily on first use.
func (p *Proxy) limiterFor(domain string) *rate.Limiter {
	p.limMu.Lock()
	defer p.limMu.Unlock()
	l, ok := p.limiters[domain]
	if !ok {
		l = rate.NewLimiter(p.limitRPS, p.limitBurst)
		p.limiters[domain] = l
	}
	return l
}

// New builds a Proxy with the given static allowlist (in addition to the
// fixed package-registry set).
func New(staticAllowlist []string, opts ...Option) *Proxy {
	p := &Proxy{
		static:     make(map[string]bool),
		logger:     slog.Default(),
		dialTO:     10 * time.Second,
		limiters:   make(map[string]*rate.Limiter),
		limitRPS:   rate.Limit(defaultDomainRPS),
		limitBurst: defaultDomainBurst,
	}
	for _, d := range defaultRegistries {
		p.static[d] = true
	}
	for _, d := range staticAllowlist {
		p.static[normalizeDomain(d)] = true
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

func normalizeDomain(d string) string {
	return strings.ToLower(strings.TrimSpace(d))
}

// SetStaticAllowlist replaces the configured (non-registry) portion of the
// allowlist, e.g. on config reload.
func (p *Proxy) SetStaticAllowlist(domains []string) {
	next := make(map[string]bool, len(domains)+len(defaultRegistries))
	for _, d := range defaultRegistries {
		next[d] = true
	}
	for _, d := range domains {
		next[normalizeDomain(d)] = true
	}
	p.mu.Lock()
	p.static = next
	p.mu.Unlock()
}

// Allowed reports whether domain is reachable under the current allowlist
// union: static config, fixed registries, or the trust ledger.
func (p *Proxy) Allowed(domain string) bool {
	domain = normalizeDomain(domain)
	p.mu.RLock()
	ok := p.static[domain]
	p.mu.RUnlock()
	if ok {
		return true
	}
	if p.ledger != nil && p.ledger.IsTrusted(domain) {
		return true
	}
	return false
}

// ServeHTTP implements http.Handler: CONNECT requests are tunneled after an
// allowlist and SSRF check; plain requests are reverse-proxied the same way.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	host := r.URL.Hostname()
	if host == "" {
		host = hostOnly(r.Host)
	}

	if !p.Allowed(host) {
		p.deny(w, host, "domain not in allowlist")
		return
	}
	if err := ssrf.ValidatePublicHostname(host); err != nil {
		p.deny(w, host, err.Error())
		return
	}
	if !p.limiterFor(host).Allow() {
		p.logger.Warn("outbound-denied",
			slog.String("event", "outbound-denied"),
			slog.String("domain", host),
			slog.String("reason", "rate limit exceeded"),
		)
		http.Error(w, "egress blocked: rate limit exceeded for domain", http.StatusTooManyRequests)
		return
	}

	if r.Method == http.MethodConnect {
		p.handleConnect(w, r)
		return
	}
	p.handleForward(w, r)
}

func hostOnly(hostport string) string {
	h, _, err := net.SplitHostPort(hostport)
	if err != nil {
		return hostport
	}
	return h
}

func (p *Proxy) deny(w http.ResponseWriter, domain, reason string) {
	p.logger.Warn("outbound-denied",
		slog.String("event", "outbound-denied"),
		slog.String("domain", domain),
		slog.String("reason", reason),
	)
	http.Error(w, fmt.Sprintf("egress blocked: %s", reason), http.StatusForbidden)
}

func (p *Proxy) handleConnect(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), p.dialTO)
	defer cancel()

	dialer := &net.Dialer{}
	upstream, err := dialer.DialContext(ctx, "tcp", r.Host)
	if err != nil {
		http.Error(w, "unable to reach upstream", http.StatusBadGateway)
		return
	}
	defer upstream.Close()

	hijacker, ok := w.(http.Hijacker)
	if !ok {
		http.Error(w, "proxy does not support hijacking", http.StatusInternalServerError)
		return
	}
	client, _, err := hijacker.Hijack()
	if err != nil {
		http.Error(w, "hijack failed", http.StatusInternalServerError)
		return
	}
	defer client.Close()

	if _, err := client.Write([]byte("HTTP/1.1 200 Connection Established\r\n\r\n")); err != nil {
		return
	}

	p.logger.Info("outbound-allowed",
		slog.String("event", "outbound-allowed"),
		slog.String("domain", hostOnly(r.Host)),
	)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); io.Copy(upstream, client) }()
	go func() { defer wg.Done(); io.Copy(client, upstream) }()
	wg.Wait()
}

func (p *Proxy) handleForward(w http.ResponseWriter, r *http.Request) {
	outReq := r.Clone(r.Context())
	outReq.RequestURI = ""

	if p.client == nil {
		p.client = &http.Client{Timeout: 60 * time.Second}
	}

	resp, err := p.client.Do(outReq)
	if err != nil {
		http.Error(w, "upstream request failed", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	p.logger.Info("outbound-allowed",
		slog.String("event", "outbound-allowed"),
		slog.String("domain", hostOnly(r.Host)),
	)

	for k, vv := range resp.Header {
		for _, v := range vv {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	io.Copy(w, resp.Body)
}

// Serve starts the proxy listening on addr, blocking until ctx is
// cancelled or the listener errors.
func Serve(ctx context.Context, addr string, p *Proxy) error {
	srv := &http.Server{
		Addr:    addr,
		Handler: p,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

// ParsePort extracts the numeric port from a host:port string, returning
// ok=false if absent or malformed.
func ParsePort(hostport string) (int, bool) {
	_, portStr, err := net.SplitHostPort(hostport)
	if err != nil {
		return 0, false
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return 0, false
	}
	return port, true
}
