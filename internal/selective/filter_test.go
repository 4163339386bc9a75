package selective

import (
	"testing"

	"github.com/entanglement/entanglement/internal/store"
)

func TestDefaultIncludeWhenNoRuleMatches(t *testing.T) {
	f, err := Compile(nil)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if !f.Matches("/anything/at/all.txt") {
		t.Fatal("expected default include")
	}
}

func TestExcludePattern(t *testing.T) {
	f, err := Compile([]store.SelectiveRule{
		{Kind: "exclude", Pattern: "*.tmp", Priority: 10, IsActive: true},
	})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if f.Matches("/a/b/file.tmp") {
		t.Fatal("expected *.tmp to be excluded")
	}
	if !f.Matches("/a/b/file.txt") {
		t.Fatal("expected .txt to remain included")
	}
}

func TestHighestPriorityWins(t *testing.T) {
	f, err := Compile([]store.SelectiveRule{
		{Kind: "exclude", Pattern: "**/node_modules/**", Priority: 1, IsActive: true},
		{Kind: "include", Pattern: "**/node_modules/keep-me/**", Priority: 10, IsActive: true},
	})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if !f.Matches("/proj/node_modules/keep-me/index.js") {
		t.Fatal("expected higher-priority include rule to win")
	}
	if f.Matches("/proj/node_modules/other/index.js") {
		t.Fatal("expected lower-priority exclude rule to apply when include doesn't match")
	}
}

func TestInactiveRulesAreIgnored(t *testing.T) {
	f, err := Compile([]store.SelectiveRule{
		{Kind: "exclude", Pattern: "*.log", Priority: 5, IsActive: false},
	})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if !f.Matches("/x.log") {
		t.Fatal("expected inactive rule to have no effect")
	}
}
