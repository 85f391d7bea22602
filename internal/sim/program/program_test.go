package program

import (
	"os"
	"path/filepath"
	"testing"
)

func TestPreprocessLexicalForms(t *testing.T) {
	src, err := ParseText(`
# comment
conditions = FLU   # trailing comment
FLU.transmissibility = 1.0 ; FLU.exposed_state = E
Household.contacts = \
  2.5
`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if v, _ := src.Get("conditions"); v != "FLU" {
		t.Fatalf("conditions = %q", v)
	}
	if got := src.Number("FLU.transmissibility", 0); got != 1.0 {
		t.Fatalf("transmissibility = %f", got)
	}
	if v, _ := src.Get("FLU.exposed_state"); v != "E" {
		t.Fatalf("exposed_state = %q (semicolon split failed)", v)
	}
	if got := src.Number("Household.contacts", 0); got != 2.5 {
		t.Fatalf("continuation join failed: contacts = %f", got)
	}
}

func TestBlockExpansion(t *testing.T) {
	src, err := ParseText(`
condition FLU {
  states = E I R
  state E {
    wait(48)
    next(I)
  }
  state I {
    if age > 65 then sus(0)
    wait(96)
    next(R)
  }
  state R { is_dormant = 1 }
}
place Gym { contacts = 3 }
network Friends { undirected = 1 }
`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(src.BlockConditions) != 1 || src.BlockConditions[0] != "FLU" {
		t.Fatalf("block conditions = %v", src.BlockConditions)
	}
	if v, _ := src.Get("FLU.states"); v != "E I R" {
		t.Fatalf("FLU.states = %q", v)
	}
	if !src.Bool("FLU.R.is_dormant") {
		t.Fatalf("state-block property not flattened")
	}
	want := map[string]bool{
		"if state(FLU.E) then wait(48)":            true,
		"if state(FLU.E) then next(I)":             true,
		"if state(FLU.I) and age > 65 then sus(0)": true,
		"if state(FLU.I) then wait(96)":            true,
		"if state(FLU.I) then next(R)":             true,
	}
	for _, r := range src.Rules {
		delete(want, r)
	}
	if len(want) != 0 {
		t.Fatalf("missing rules: %v (got %v)", want, src.Rules)
	}
	if !src.Bool("Friends.is_network") {
		t.Fatalf("network block did not mark is_network")
	}
	if src.Number("Gym.contacts", 0) != 3 {
		t.Fatalf("place block property missing")
	}
}

func TestEmptyStateBlockDefaults(t *testing.T) {
	src, err := ParseText(`
condition C {
  states = S
  state S { }
}
`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	found := false
	for _, r := range src.Rules {
		if r == "if state(C.S) then wait()" {
			found = true
		}
	}
	if !found {
		t.Fatalf("empty state block should default to wait(): %v", src.Rules)
	}
}

func TestInclude(t *testing.T) {
	dir := t.TempDir()
	inc := filepath.Join(dir, "common.epi")
	if err := os.WriteFile(inc, []byte("shared = 7\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	main := filepath.Join(dir, "main.epi")
	if err := os.WriteFile(main, []byte("include common.epi\nown = 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	src, err := Parse(main, "")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if src.Int("shared", 0) != 7 || src.Int("own", 0) != 1 {
		t.Fatalf("include not applied: %v", src.Props)
	}
}

func TestLastAssignmentWins(t *testing.T) {
	src, err := ParseText("x = 1\nx = 2\n")
	if err != nil {
		t.Fatal(err)
	}
	if src.Int("x", 0) != 2 {
		t.Fatalf("last assignment should win")
	}
	if got := len(src.GetAll("x")); got != 2 {
		t.Fatalf("GetAll should keep both, got %d", got)
	}
}

func TestClauseNotMistakenForAssignment(t *testing.T) {
	src, err := ParseText("if my_var == 3 then set(flag, 1)\n")
	if err != nil {
		t.Fatal(err)
	}
	if len(src.Rules) != 1 {
		t.Fatalf("rule with == parsed as property: %v / %v", src.Props, src.Rules)
	}
}
