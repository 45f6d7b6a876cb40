package router

import (
	"context"
	"errors"
	"testing"
)

type fakeProvider struct {
	name string
	err  error
	resp CompletionResponse
}

func (f fakeProvider) Name() string { return f.name }
func (f fakeProvider) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	if f.err != nil {
		return CompletionResponse{}, f.err
	}
	return f.resp, nil
}

func TestResolveSkillOverride(t *testing.T) {
	def := fakeProvider{name: "default"}
	skillP := fakeProvider{name: "skill-provider"}
	r := New(def)
	r.SetSkill("web_search", skillP)

	got := r.Resolve("web_search", "")
	if got.Name() != "skill-provider" {
		t.Fatalf("expected skill override, got %s", got.Name())
	}
}

func TestResolveRoleOverride(t *testing.T) {
	def := fakeProvider{name: "default"}
	roleP := fakeProvider{name: "observer-provider"}
	r := New(def)
	r.SetRole(RoleObserver, roleP)

	got := r.Resolve("", RoleObserver)
	if got.Name() != "observer-provider" {
		t.Fatalf("expected role override, got %s", got.Name())
	}
}

func TestResolveFallsBackToDefault(t *testing.T) {
	def := fakeProvider{name: "default"}
	r := New(def)
	got := r.Resolve("unknown-skill", "")
	if got.Name() != "default" {
		t.Fatalf("expected default, got %s", got.Name())
	}
}

func TestCompleteFallsBackOnProviderError(t *testing.T) {
	def := fakeProvider{name: "default", resp: CompletionResponse{Text: "ok"}}
	bad := fakeProvider{name: "oracle", err: errors.New("unavailable")}
	r := New(def)
	r.SetRole(RoleOracle, bad)

	resp, err := r.Complete(context.Background(), "", RoleOracle, CompletionRequest{})
	if err != nil {
		t.Fatalf("expected fallback to succeed, got %v", err)
	}
	if resp.Text != "ok" {
		t.Fatalf("expected default provider's response, got %q", resp.Text)
	}
}

func TestCompleteErrorsWhenDefaultAlsoFails(t *testing.T) {
	def := fakeProvider{name: "default", err: errors.New("down")}
	r := New(def)
	_, err := r.Complete(context.Background(), "", "", CompletionRequest{})
	if err == nil {
		t.Fatalf("expected error when default provider fails")
	}
}
