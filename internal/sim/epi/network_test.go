package epi

import "testing"

const triangleProgram = `
network Friends {
	undirected = 1
	can_transmit_NET = 1
	starts_at_hour_0_on_all = 24
}
condition NET {
	transmission_mode = network
	transmission_network = Friends
	transmissibility = 1.0
	exposed_state = Exposed
	states = Susceptible Exposed Infectious Recovered
	state Susceptible { susceptibility = 1; wait() }
	state Exposed { susceptibility = 0; wait(24); next(Infectious) }
	state Infectious { transmissibility = 1; wait(48); next(Recovered) }
	state Recovered { wait() }
}
if state(NET.Start) and id == 1 then add_edge_to(Friends, 2)
if state(NET.Start) and id == 2 then add_edge_to(Friends, 3)
if state(NET.Start) and id == 3 then add_edge_to(Friends, 1)
if state(NET.Start) and id == 1 then set_state(NET.Exposed)
`

// A seeded case on an undirected triangle with unit edge weights infects both
// neighbors and, through them, the whole component.
func TestNetworkTransmission(t *testing.T) {
	rows := []string{
		"1 H1 30 1 0 0 X X",
		"2 H2 30 1 0 0 X X",
		"3 H3 30 1 0 0 X X",
	}
	eng := testEngine(t, triangleProgram, rows, nil)
	if err := eng.Run(); err != nil {
		t.Fatalf("run: %v", err)
	}

	c := eng.conditions[0]
	ep := c.Epi
	if ep.TotalCases != 3 {
		t.Fatalf("total cases = %d, want 3", ep.TotalCases)
	}
	if got := ep.Current(c.States.Index("Recovered")); got != 3 {
		t.Fatalf("recovered = %d, want 3", got)
	}

	// Undirected edges are mirrored on both endpoints.
	friends, ok := eng.groupTypeByName["Friends"]
	if !ok {
		t.Fatalf("network type not registered")
	}
	p1, p2 := eng.personByID[1], eng.personByID[2]
	if p1.linkFor(friends).outwardIndex(p2) < 0 || p2.linkFor(friends).outwardIndex(p1) < 0 {
		t.Fatalf("edge 1-2 not mirrored")
	}
	if p1.linkFor(friends).inwardIndex(p2) < 0 || p2.linkFor(friends).inwardIndex(p1) < 0 {
		t.Fatalf("inward records missing for edge 1-2")
	}
}

// Without can_transmit and an open block for the network type, no network
// transmission rounds run at all.
func TestNetworkTransmissionRequiresSchedule(t *testing.T) {
	const ungated = `
network Friends {
	undirected = 1
}
condition NET {
	transmission_mode = network
	transmission_network = Friends
	transmissibility = 1.0
	exposed_state = Exposed
	states = Susceptible Exposed Infectious Recovered
	state Susceptible { susceptibility = 1; wait() }
	state Exposed { susceptibility = 0; wait(24); next(Infectious) }
	state Infectious { transmissibility = 1; wait(48); next(Recovered) }
	state Recovered { wait() }
}
if state(NET.Start) and id == 1 then add_edge_to(Friends, 2)
if state(NET.Start) and id == 1 then set_state(NET.Exposed)
`
	rows := []string{
		"1 H1 30 1 0 0 X X",
		"2 H2 30 1 0 0 X X",
	}
	eng := testEngine(t, ungated, rows, nil)
	if err := eng.Run(); err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := eng.conditions[0].Epi.TotalCases; got != 1 {
		t.Fatalf("total cases = %d, want only the seeded case", got)
	}
}

// A person whose state chain passes through a transmissible state straight
// into a dormant one must come off the active-case roster, even though the
// dormant state leaves their transmissibility untouched.
func TestDormantLeavesTransmissibleRoster(t *testing.T) {
	const fadeProgram = `
network Friends {
	undirected = 1
	can_transmit_DOR = 1
	starts_at_hour_0_on_all = 24
}
condition DOR {
	transmission_mode = network
	transmission_network = Friends
	transmissibility = 1.0
	exposed_state = Exposed
	states = Susceptible Exposed Infectious Faded
	state Susceptible { susceptibility = 1; wait() }
	state Exposed { susceptibility = 0; wait(24); next(Infectious) }
	state Infectious { transmissibility = 1; wait(0); next(Faded) }
	state Faded { is_dormant = 1; wait() }
}
if state(DOR.Start) and id == 1 then add_edge_to(Friends, 2)
if state(DOR.Start) and id == 1 then set_state(DOR.Exposed)
`
	rows := []string{
		"1 H1 30 1 0 0 X X",
		"2 H2 30 1 0 0 X X",
	}
	eng := testEngine(t, fadeProgram, rows, nil)
	if err := eng.Run(); err != nil {
		t.Fatalf("run: %v", err)
	}

	c := eng.conditions[0]
	p1 := eng.personByID[1]
	if got := p1.State(c.ID); got != c.States.Index("Faded") {
		t.Fatalf("person 1 in state %d, want Faded", got)
	}
	if c.Epi.transmissible.contains(p1) {
		t.Fatalf("dormant person still on the active-case roster")
	}
	if c.Epi.TotalCases != 1 {
		t.Fatalf("total cases = %d, want 1: dormant people must not transmit", c.Epi.TotalCases)
	}
}

func TestEdgeAddDeleteRoundTrip(t *testing.T) {
	rows := []string{
		"1 H1 30 1 0 0 X X",
		"2 H2 30 1 0 0 X X",
	}
	eng := testEngine(t, `
network Friends {
	undirected = 1
}
condition NET {
	states = A
	state A { wait() }
}
`, rows, nil)

	friends := eng.groupTypeByName["Friends"]
	p1, p2 := eng.personByID[1], eng.personByID[2]

	eng.addEdge(p1, p2, friends)
	if p1.linkFor(friends).outwardIndex(p2) < 0 || p2.linkFor(friends).outwardIndex(p1) < 0 {
		t.Fatalf("undirected add should create both directions")
	}
	eng.addEdge(p1, p2, friends) // refresh, not duplicate
	if n := len(p1.linkFor(friends).Outward); n != 1 {
		t.Fatalf("outward edges = %d, want 1", n)
	}

	eng.setEdgeWeight(p1, p2, friends, 0.25)
	if w := p1.linkFor(friends).OutWeight[0]; w != 0.25 {
		t.Fatalf("edge weight = %v, want 0.25", w)
	}

	eng.deleteEdge(p1, p2, friends)
	l1, l2 := p1.linkFor(friends), p2.linkFor(friends)
	if len(l1.Outward) != 0 || len(l1.Inward) != 0 || len(l2.Outward) != 0 || len(l2.Inward) != 0 {
		t.Fatalf("delete left stale edges: %d %d %d %d",
			len(l1.Outward), len(l1.Inward), len(l2.Outward), len(l2.Inward))
	}

	// Self and meta edges are rejected.
	eng.addEdge(p1, p1, friends)
	if len(p1.linkFor(friends).Outward) != 0 {
		t.Fatalf("self edge should be ignored")
	}
}
