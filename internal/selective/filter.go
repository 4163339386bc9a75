// Package selective implements the per-device selective-sync filter from
// spec §4.10: an ordered rule list evaluated highest-priority-first, first
// match wins, default include. Patterns are compiled with
// github.com/sabhiram/go-gitignore, the same library the retrieved
// delta-archiving reference uses to compile .gitignore files into
// matchers, here compiling one rule's pattern at a time instead of a whole
// file.
package selective

import (
	"context"
	"fmt"
	"sort"

	ignore "github.com/sabhiram/go-gitignore"

	"github.com/entanglement/entanglement/internal/store"
)

// Rule is a compiled selective-sync rule ready for evaluation.
type Rule struct {
	Kind     string // include | exclude
	Priority int
	matcher  *ignore.GitIgnore
}

// Filter evaluates a user's ordered rule set against paths.
type Filter struct {
	rules []Rule
}

// Compile builds a Filter from a user's active rules, highest priority
// first (spec §4.10).
func Compile(rules []store.SelectiveRule) (*Filter, error) {
	sorted := make([]store.SelectiveRule, len(rules))
	copy(sorted, rules)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Priority > sorted[j].Priority })

	compiled := make([]Rule, 0, len(sorted))
	for _, r := range sorted {
		if !r.IsActive {
			continue
		}
		m := ignore.CompileIgnoreLines(r.Pattern)
		compiled = append(compiled, Rule{Kind: r.Kind, Priority: r.Priority, matcher: m})
	}
	return &Filter{rules: compiled}, nil
}

// Matches reports whether path should sync for this device: rules are
// evaluated in descending-priority order, first match wins, and a path
// matching no rule defaults to include (spec §4.10). Total and
// deterministic for any input path.
func (f *Filter) Matches(path string) bool {
	for _, r := range f.rules {
		if r.matcher.MatchesPath(path) {
			return r.Kind == "include"
		}
	}
	return true
}

// Store persists and compiles per-user selective-sync rule sets, caching
// nothing itself — callers that evaluate many paths should Compile once
// and reuse the Filter.
type Store struct {
	db *store.DB
}

func NewStore(db *store.DB) *Store {
	return &Store{db: db}
}

// FilterForUser loads and compiles the active rule set for a user.
func (s *Store) FilterForUser(ctx context.Context, userID string) (*Filter, error) {
	rules, err := s.db.Selective.ForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load selective rules: %w", err)
	}
	return Compile(rules)
}
