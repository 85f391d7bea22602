package epi

import "testing"

const siProgram = `
condition INF {
	transmission_mode = proximity
	transmissibility = 1.0
	exposed_state = Exposed
	states = Susceptible Exposed Infectious Recovered
	state Susceptible { susceptibility = 1; wait() }
	state Exposed { susceptibility = 0; wait(24); next(Infectious) }
	state Infectious { transmissibility = 1; wait(72); next(Recovered) }
	state Recovered { wait() }
}
Household.contact_count_for_INF = 50
Household.can_transmit_INF = 1
Household.density_contact_prob_for_INF = 1
Household.deterministic_contacts_for_INF = 1
if state(INF.Start) and id == 1 then set_state(INF.Exposed)
`

// One seeded case in a four-person household with a very high contact count
// infects the whole household within the run with overwhelming probability.
func TestHouseholdTransmission(t *testing.T) {
	eng := testEngine(t, siProgram, fourPersonHousehold(), nil)
	if err := eng.Run(); err != nil {
		t.Fatalf("run: %v", err)
	}

	c := eng.conditions[0]
	ep := c.Epi
	if ep.TotalCases != 4 {
		t.Fatalf("total cases = %d, want 4", ep.TotalCases)
	}
	if ep.ImportedCases != 1 {
		t.Fatalf("imported cases = %d, want 1 (the seeded case)", ep.ImportedCases)
	}
	if got := ep.Current(c.States.Index("Susceptible")); got != 0 {
		t.Fatalf("still susceptible: %d", got)
	}
	if got := ep.Current(c.States.Index("Recovered")); got != 4 {
		t.Fatalf("recovered = %d, want 4", got)
	}

	// The seed was exposed on day 0, so its secondary cases land in the
	// day-0 cohort.
	if rr := ep.RR(0); rr < 1 {
		t.Fatalf("day-0 reproduction rate = %v, want >= 1", rr)
	}
	if rr := ep.RR(9); rr != -1 {
		t.Fatalf("empty cohort should report -1, got %v", rr)
	}

	// Group-level counters track the household roster.
	hh := eng.people[0].Household()
	if hh == nil {
		t.Fatalf("person 1 has no household")
	}
	rec := c.States.Index("Recovered")
	if got := ep.groupStateCountOf("total", rec, hh); got != 4 {
		t.Fatalf("household total recovered = %d, want 4", got)
	}

	// The household is the only place that hosted transmissible visitors,
	// starting the day the seed turned infectious.
	sites, first, last := eng.transmissionSites()
	if sites != 1 {
		t.Fatalf("transmission sites = %d, want 1", sites)
	}
	if first != 1 || last < 4 {
		t.Fatalf("transmissible days %d..%d, want 1..4", first, last)
	}
}

// Two runs with the same seed must produce identical trajectories.
func TestRunDeterminism(t *testing.T) {
	final := func() map[int]int {
		eng := testEngine(t, siProgram, fourPersonHousehold(), nil)
		if err := eng.Run(); err != nil {
			t.Fatalf("run: %v", err)
		}
		out := map[int]int{}
		for _, p := range eng.people {
			out[p.ID] = p.State(0)
		}
		out[-1] = eng.conditions[0].Epi.TotalCases
		return out
	}

	a, b := final(), final()
	if len(a) != len(b) {
		t.Fatalf("population size diverged: %d vs %d", len(a), len(b))
	}
	for id, s := range a {
		if b[id] != s {
			t.Fatalf("person %d diverged: %d vs %d", id, s, b[id])
		}
	}
}

func sixPersonRows() []string {
	return []string{
		"1 H1 30 1 0 0 X X",
		"2 H1 28 2 0 0 X X",
		"3 H1 8 2 0 0 X X",
		"4 H2 45 1 0 0 X X",
		"5 H2 44 2 0 0 X X",
		"6 H2 70 2 0 0 X X",
	}
}

const importProgram = `
condition SEED {
	transmission_mode = proximity
	exposed_state = Exposed
	states = Susceptible Pulse Exposed
	state Susceptible { susceptibility = 1; wait(24); next(Pulse) }
	state Pulse { import_count(3); wait() }
	state Exposed { susceptibility = 0; wait() }
}
`

// The import agent walks the same state machine as everyone else; its entry
// into Pulse fires before the ordinary transitions that hour, so the pulse
// still finds the whole population susceptible.
func TestImportPulse(t *testing.T) {
	eng := testEngine(t, importProgram, sixPersonRows(), nil)
	if err := eng.Run(); err != nil {
		t.Fatalf("run: %v", err)
	}

	c := eng.conditions[0]
	ep := c.Epi
	if ep.ImportedCases != 3 {
		t.Fatalf("imported cases = %d, want 3", ep.ImportedCases)
	}
	if ep.TotalCases != 3 {
		t.Fatalf("total cases = %d, want 3", ep.TotalCases)
	}
	if ep.ImportAttempts != 3 {
		t.Fatalf("import attempts = %d, want 3", ep.ImportAttempts)
	}
	if got := ep.Current(c.States.Index("Exposed")); got != 3 {
		t.Fatalf("current Exposed = %d, want 3", got)
	}
	// The three who escaped the pulse completed their scheduled transition.
	if got := ep.Current(c.States.Index("Pulse")); got != 3 {
		t.Fatalf("current Pulse = %d, want 3", got)
	}
}

const perCapitaProgram = `
condition SEED {
	transmission_mode = proximity
	exposed_state = Exposed
	states = Susceptible Pulse Exposed
	state Susceptible { susceptibility = 1; wait(24); next(Pulse) }
	state Pulse { import_per_capita(0.5); wait() }
	state Exposed { susceptibility = 0; wait() }
}
`

// The per-capita rate scales the count of people currently susceptible: half
// of six susceptibles is exactly three cases, with no fractional remainder to
// randomize.
func TestImportPerCapita(t *testing.T) {
	eng := testEngine(t, perCapitaProgram, sixPersonRows(), nil)
	if err := eng.Run(); err != nil {
		t.Fatalf("run: %v", err)
	}

	ep := eng.conditions[0].Epi
	if ep.ImportedCases != 3 {
		t.Fatalf("imported cases = %d, want 3", ep.ImportedCases)
	}
	if ep.TotalCases != 3 {
		t.Fatalf("total cases = %d, want 3", ep.TotalCases)
	}
}

const selectiveImportProgram = `
condition SEL {
	transmission_mode = proximity
	exposed_state = Exposed
	states = Susceptible Pulse Exposed
	state Susceptible { susceptibility = 1; wait(24); next(Pulse) }
	state Pulse { import_count(4); wait() }
	state Exposed { susceptibility = 0; wait() }
}
if state(SEL.Susceptible) and id <= 2 then sus(0.000000000001)
`

// An import pulse challenges each drawn person and exposes them with
// probability equal to their susceptibility, so near-zero susceptibility
// deflects the seed.
func TestImportRespectsSusceptibility(t *testing.T) {
	rows := []string{
		"1 H1 30 1 0 0 X X",
		"2 H1 28 2 0 0 X X",
		"3 H2 45 1 0 0 X X",
		"4 H2 44 2 0 0 X X",
	}
	eng := testEngine(t, selectiveImportProgram, rows, nil)
	if err := eng.Run(); err != nil {
		t.Fatalf("run: %v", err)
	}

	c := eng.conditions[0]
	ep := c.Epi
	if ep.ImportedCases != 2 {
		t.Fatalf("imported cases = %d, want 2", ep.ImportedCases)
	}
	if ep.ImportAttempts != 2 {
		t.Fatalf("import attempts = %d, want the 2 accepted cases", ep.ImportAttempts)
	}
	if got := ep.Current(c.States.Index("Exposed")); got != 2 {
		t.Fatalf("current Exposed = %d, want 2", got)
	}
	pulse := c.States.Index("Pulse")
	for _, id := range []int{1, 2} {
		if got := eng.personByID[id].State(c.ID); got != pulse {
			t.Fatalf("person %d in state %d, want Pulse: the pulse must respect susceptibility", id, got)
		}
	}
}
