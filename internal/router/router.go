// Package router implements the model router: resolution of a logical
// role/skill/default to a concrete provider instance, and delegation of
// completion calls with fallback to the default provider.
package router

import (
	"context"
	"fmt"
	"sync"

	"github.com/wintermute-run/wintermute/internal/backoff"
	"github.com/wintermute-run/wintermute/pkg/models"
)

// maxProviderAttempts bounds the in-place retries against the resolved
// provider before the router gives up and falls back to the default.
const maxProviderAttempts = 3

// Message is one entry in a completion request's conversation.
type Message struct {
	Role    models.Role
	Content string
}

// CompletionRequest carries a sequence of messages, available tool
// descriptors, and sampling parameters.
type CompletionRequest struct {
	Model       string
	System      string
	Messages    []Message
	Tools       []models.ToolDescriptor
	MaxTokens   int
	Temperature float64
}

// CompletionResponse carries either an assistant message or one or more
// tool calls.
type CompletionResponse struct {
	Text      string
	ToolCalls []models.ToolCall
	Usage     Usage
}

// Usage is the token accounting for one completion call, fed into the
// budget tracker by the session runtime.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Provider is the capability-set interface every model backend
// implements. Streaming may additionally be supported by a provider but
// is not part of the required contract.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)
}

// Role names the fixed set of role overrides the router supports.
type Role string

const (
	RoleObserver  Role = "observer"
	RoleEmbedding Role = "embedding"
	RoleOracle    Role = "oracle"
)

// Router maintains the provider-model map, a default, role overrides, and
// skill overrides.
type Router struct {
	mu       sync.RWMutex
	byKey    map[string]Provider // "provider/model" -> instance
	def      Provider
	roles    map[Role]Provider
	skills   map[string]Provider // tool/skill name -> instance
}

// New builds a Router with the given default provider.
func New(def Provider) *Router {
	return &Router{
		byKey:  make(map[string]Provider),
		def:    def,
		roles:  make(map[Role]Provider),
		skills: make(map[string]Provider),
	}
}

// Register adds a provider reachable by "provider/model" key.
func (r *Router) Register(key string, p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byKey[key] = p
}

// SetRole assigns a provider to a role override.
func (r *Router) SetRole(role Role, p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.roles[role] = p
}

// SetSkill assigns a provider to a per-tool skill override.
func (r *Router) SetSkill(skill string, p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.skills[skill] = p
}

// Resolve picks a provider: skill override (if skill is non-empty and
// registered) -> role override (if role is non-empty and registered) ->
// default.
func (r *Router) Resolve(skill string, role Role) Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if skill != "" {
		if p, ok := r.skills[skill]; ok {
			return p
		}
	}
	if role != "" {
		if p, ok := r.roles[role]; ok {
			return p
		}
	}
	return r.def
}

// Complete resolves a provider and delegates the call, retrying the
// resolved provider with bounded exponential backoff. If every attempt
// fails, falls back to the default provider once; if the default is also
// unavailable the error is returned for the session to surface to the
// user.
func (r *Router) Complete(ctx context.Context, skill string, role Role, req CompletionRequest) (CompletionResponse, error) {
	provider := r.Resolve(skill, role)
	if provider == nil {
		return CompletionResponse{}, fmt.Errorf("router: no provider configured")
	}

	result, err := backoff.RetryWithBackoff(ctx, backoff.DefaultPolicy(), maxProviderAttempts,
		func(_ int) (CompletionResponse, error) {
			return provider.Complete(ctx, req)
		})
	if err == nil {
		return result.Value, nil
	}

	r.mu.RLock()
	def := r.def
	r.mu.RUnlock()
	if def == nil || def == provider {
		return CompletionResponse{}, fmt.Errorf("router: provider %s failed after %d attempts and no default available: %w", provider.Name(), result.Attempts, err)
	}

	resp, err2 := def.Complete(ctx, req)
	if err2 != nil {
		return CompletionResponse{}, fmt.Errorf("router: provider %s failed after %d attempts (%v), default %s also failed: %w", provider.Name(), result.Attempts, err, def.Name(), err2)
	}
	return resp, nil
}
