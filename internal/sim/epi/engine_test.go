package epi

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"episim.ai/internal/sim/program"
)

// testEngine builds an engine from an in-memory program and synthetic
// population rows (household file format; gqRows use the group-quarters
// format).
func testEngine(t *testing.T, text string, rows, gqRows []string) *Engine {
	t.Helper()
	cfg := program.RunConfig{
		Seed:                   12345,
		Days:                   10,
		StartDate:              "2020-01-01",
		RunNumber:              1,
		OutputDir:              t.TempDir(),
		FrequencyReferenceSize: 10,
	}
	dir := t.TempDir()
	if len(rows) > 0 {
		path := filepath.Join(dir, "people.txt")
		content := "sp_id hh_id age sex race relate school_id work_id\n" +
			strings.Join(rows, "\n") + "\n"
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write population: %v", err)
		}
		cfg.Households = path
	}
	if len(gqRows) > 0 {
		path := filepath.Join(dir, "gq.txt")
		content := "sp_id gq_id age sex\n" + strings.Join(gqRows, "\n") + "\n"
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write group quarters: %v", err)
		}
		cfg.GroupQuarters = path
	}
	src, err := program.ParseText(text)
	if err != nil {
		t.Fatalf("parse program: %v", err)
	}
	eng, err := New(cfg, src, nil)
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	return eng
}

func fourPersonHousehold() []string {
	return []string{
		"1 H1 30 1 0 0 X X",
		"2 H1 28 2 0 0 X X",
		"3 H1 8 2 0 0 X X",
		"4 H1 65 1 0 0 X X",
	}
}

const chainProgram = `
condition PROG {
	states = A B
	state A { wait(24); next(B) }
	state B { wait() }
}
`

func TestStateChain(t *testing.T) {
	eng := testEngine(t, chainProgram, fourPersonHousehold(), nil)
	if err := eng.Run(); err != nil {
		t.Fatalf("run: %v", err)
	}

	c := eng.conditions[0]
	b := c.States.Index("B")
	for _, p := range eng.people {
		if p.State(c.ID) != b {
			t.Fatalf("person %d in state %s, want B", p.ID, c.States.Name(p.State(c.ID)))
		}
	}
	if got := c.Epi.Current(b); got != 4 {
		t.Fatalf("current B = %d, want 4", got)
	}
	if got := c.Epi.Total(c.States.Index("A")); got != 4 {
		t.Fatalf("total A = %d, want 4", got)
	}

	// The current counters across all states must cover exactly the living
	// population.
	sum := 0
	for s := 0; s < c.States.Size(); s++ {
		sum += c.Epi.Current(s)
	}
	if sum != eng.PopulationSize() {
		t.Fatalf("sum of current counts = %d, want %d", sum, eng.PopulationSize())
	}
}

// A zero-wait self-transition cycles until the loop cap fires a warning; the
// run itself must carry on.
func TestInstantLoopCap(t *testing.T) {
	const loopProgram = `
condition LOOP {
	states = S1
	state S1 { wait(0); next(S1) }
}
`
	eng := testEngine(t, loopProgram, fourPersonHousehold(), nil)
	if err := eng.Run(); err != nil {
		t.Fatalf("run: %v", err)
	}

	var capped bool
	for _, w := range eng.Warnings() {
		if strings.Contains(w, "instant transition loop") {
			capped = true
		}
	}
	if !capped {
		t.Fatalf("missing loop-cap warning, got %v", eng.Warnings())
	}
	c := eng.conditions[0]
	if got := c.Epi.Current(c.States.Index("S1")); got != 4 {
		t.Fatalf("current S1 = %d, want 4", got)
	}
}

// A set_state fired from another condition's transition must cancel the
// target condition's scheduled transition, or the stale event replays the
// entry later and inflates the totals.
func TestCrossConditionSetState(t *testing.T) {
	const cancelProgram = `
condition A {
	states = Arm On
	state Arm { wait(24); next(On) }
	state On { wait() }
}
condition B {
	states = Idle Off
	state Idle { wait(48); next(Off) }
	state Off { wait() }
}
if state(A.On) then set_state(B.Off)
`
	eng := testEngine(t, cancelProgram, fourPersonHousehold(), nil)
	if err := eng.Run(); err != nil {
		t.Fatalf("run: %v", err)
	}

	b := eng.conditions[1]
	off := b.States.Index("Off")
	if got := b.Epi.Current(off); got != 4 {
		t.Fatalf("current Off = %d, want 4", got)
	}
	if got := b.Epi.Total(off); got != 4 {
		t.Fatalf("total Off = %d, want 4: each person enters Off exactly once", got)
	}
	for _, p := range eng.people {
		if next := p.NextTransitionStep(b.ID); next != -1 {
			t.Fatalf("person %d still has a scheduled transition at step %d", p.ID, next)
		}
	}
}

// Entering a fatal state counts a fatality and removes the person from the
// population at the end of the hour.
func TestFatalState(t *testing.T) {
	const fatalProgram = `
condition FAT {
	states = Sick Dead
	state Sick { wait(24); next(Dead) }
	state Dead { is_fatal = 1; wait() }
}
`
	eng := testEngine(t, fatalProgram, fourPersonHousehold(), nil)
	if err := eng.Run(); err != nil {
		t.Fatalf("run: %v", err)
	}

	if got := eng.conditions[0].Epi.CaseFatalities; got != 4 {
		t.Fatalf("fatalities = %d, want 4", got)
	}
	if got := eng.PopulationSize(); got != 0 {
		t.Fatalf("population size = %d, want 0", got)
	}
}

// An absent action keeps people in the flagged state home from the group
// type, which here stops the index case from infecting the household.
func TestAbsentKeepsInfectorHome(t *testing.T) {
	text := siProgram + `
if state(INF.Infectious) then absent(Household)
`
	eng := testEngine(t, text, fourPersonHousehold(), nil)
	if err := eng.Run(); err != nil {
		t.Fatalf("run: %v", err)
	}

	c := eng.conditions[0]
	if !c.NH.absentFromGroup(c.States.Index("Infectious"), TypeHousehold) {
		t.Fatalf("absent rule not recorded for Infectious")
	}
	if got := c.Epi.TotalCases; got != 1 {
		t.Fatalf("total cases = %d, want only the seed", got)
	}
	if got := c.Epi.Current(c.States.Index("Susceptible")); got != 3 {
		t.Fatalf("still susceptible = %d, want 3", got)
	}
}

// A close action on an administered group type shuts its groups for as long
// as the administrator holds the closing state.
func TestCloseActionShutsGroups(t *testing.T) {
	text := siProgram + `
Household.has_administrator = 1
condition CTRL {
	admin_start_state = Lockdown
	states = Lockdown
	state Lockdown { close(Household); wait() }
}
`
	eng := testEngine(t, text, fourPersonHousehold(), nil)
	if err := eng.Run(); err != nil {
		t.Fatalf("run: %v", err)
	}

	hh := eng.people[0].Household()
	if hh == nil {
		t.Fatalf("person 1 has no household")
	}
	if hh.Admin == nil {
		t.Fatalf("administered type has no administrator")
	}
	if !hh.isClosed() {
		t.Fatalf("household should be closed while the administrator is in Lockdown")
	}
	if got := eng.conditions[0].Epi.TotalCases; got != 1 {
		t.Fatalf("total cases = %d, want only the seed: closed groups must not transmit", got)
	}
}

// A program-supplied default successor for the entry state must survive
// prepare, which otherwise routes entry to the first interior state.
func TestStartDefaultOverride(t *testing.T) {
	const pickRule = `
condition PICK {
	states = A B C
	state A { wait() }
	state B { wait() }
	state C { wait() }
}
if state(PICK.Start) then default(C)
`
	const pickProp = `
condition PICK {
	states = A B C
	state A { wait() }
	state B { wait() }
	state C { wait() }
}
PICK.Start.default_next_state = C
`
	for _, text := range []string{pickRule, pickProp} {
		eng := testEngine(t, text, fourPersonHousehold(), nil)
		if err := eng.Run(); err != nil {
			t.Fatalf("run: %v", err)
		}
		c := eng.conditions[0]
		if got := c.Epi.Current(c.States.Index("C")); got != 4 {
			t.Fatalf("current C = %d, want 4", got)
		}
		if got := c.Epi.Current(c.States.Index("A")); got != 0 {
			t.Fatalf("current A = %d, want 0", got)
		}
	}
}

func TestRuleCompileWarnings(t *testing.T) {
	text := chainProgram + `
if state(PROG.Missing) then wait(1)
if state(PROG.A) then frobnicate(2)
`
	eng := testEngine(t, text, fourPersonHousehold(), nil)

	var unknownState, unknownAction bool
	for _, w := range eng.Warnings() {
		if strings.Contains(w, "unknown state") {
			unknownState = true
		}
		if strings.Contains(w, "unknown action") {
			unknownAction = true
		}
	}
	if !unknownState || !unknownAction {
		t.Fatalf("missing expected warnings, got %v", eng.Warnings())
	}

	// The bad rules must never fire; the run still completes.
	if err := eng.Run(); err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestExpressionEval(t *testing.T) {
	eng := testEngine(t, chainProgram, fourPersonHousehold(), nil)
	p := eng.people[0]

	cases := []struct {
		text string
		want float64
	}{
		{"2 * (3 + 4)", 14},
		{"10 - 2 - 3", 5},
		{"5 / 0", 0}, // guarded division
		{"1 < 2 and 3 >= 3", 1},
		{"1 == 2 or 2 == 2", 1},
		{"not (1 == 2)", 1},
		{"-3 + 4", 1},
	}
	for _, tc := range cases {
		x := eng.compileExpression(tc.text)
		if x.Err() != nil {
			t.Fatalf("compile %q: %v", tc.text, x.Err())
		}
		if got := x.Value(eng, p, nil); got != tc.want {
			t.Fatalf("%q = %v, want %v", tc.text, got, tc.want)
		}
	}

	// Demographic factor against a loaded person.
	x := eng.compileExpression("age >= 18")
	if x.Err() != nil {
		t.Fatalf("compile age: %v", x.Err())
	}
	if got := x.Value(eng, p, nil); got != 1 {
		t.Fatalf("age >= 18 = %v for 30-year-old", got)
	}

	for _, bad := range []string{"", "wibble", "2 +", "uniform(1)"} {
		if x := eng.compileExpression(bad); x.Err() == nil {
			t.Fatalf("expected compile error for %q", bad)
		}
	}
}

func TestScheduleDefaults(t *testing.T) {
	eng := testEngine(t, chainProgram+`
Workplace.starts_at_hour_9_on_weekdays = 4
`, fourPersonHousehold(), nil)

	hh := eng.groupTypes[TypeHousehold]
	if hh.TimeBlock(3, 0) != 24 {
		t.Fatalf("household block = %d, want 24", hh.TimeBlock(3, 0))
	}
	school := eng.groupTypes[TypeSchool]
	if school.TimeBlock(3, 8) != 7 {
		t.Fatalf("school weekday block = %d, want 7", school.TimeBlock(3, 8))
	}
	if school.TimeBlock(0, 8) != 0 {
		t.Fatalf("school should be closed on Sundays")
	}

	// An explicit schedule property replaces the default.
	wp := eng.groupTypes[TypeWorkplace]
	if wp.TimeBlock(3, 9) != 4 {
		t.Fatalf("workplace block = %d, want 4", wp.TimeBlock(3, 9))
	}
	if wp.TimeBlock(3, 10) != 0 {
		t.Fatalf("no second block should start at hour 10")
	}
	if !wp.OpenAt(3, 12) {
		t.Fatalf("workplace should be open mid-block")
	}
	if wp.OpenAt(3, 13) {
		t.Fatalf("workplace should be closed after the block ends")
	}
}
