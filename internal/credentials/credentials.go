// Package credentials loads the human-maintained .env credentials file at
// startup. Values read here never enter the sandbox directly; they are
// handed to the redactor as the exact-match secret set and consulted by
// provider adapters for API keys.
package credentials

import (
	"os"
	"sort"

	"github.com/joho/godotenv"
)

// Store is the set of credential values loaded from .env, keyed by name.
// It is read once at startup and never written by the running agent.
type Store struct {
	values map[string]string
}

// Load reads the .env file at path. A missing file is not an error — a
// fresh install has no credentials yet — but a malformed one is, since a
// broken credentials file silently starving the redactor of secrets to
// scrub is worse than refusing to start.
func Load(path string) (*Store, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return &Store{values: map[string]string{}}, nil
	}
	values, err := godotenv.Read(path)
	if err != nil {
		return nil, err
	}
	return &Store{values: values}, nil
}

// Get returns the named credential and whether it was present.
func (s *Store) Get(name string) (string, bool) {
	v, ok := s.values[name]
	return v, ok
}

// Values returns every non-empty credential value, longest-first, ready
// to seed redact.New's exact-match secret set.
func (s *Store) Values() []string {
	out := make([]string, 0, len(s.values))
	for _, v := range s.values {
		if v != "" {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return len(out[i]) > len(out[j]) })
	return out
}
