package google

import "testing"

func TestName(t *testing.T) {
	a := &Adapter{defaultModel: "gemini-2.0-flash"}
	if a.Name() != "google" {
		t.Fatalf("expected google, got %s", a.Name())
	}
}
