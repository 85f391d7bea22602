package epi

import (
	"strings"
	"testing"
)

func mixedPopulation(t *testing.T) *Engine {
	t.Helper()
	rows := []string{
		"1 H1 35 1 0 0 X W1",
		"2 H1 33 2 0 0 X X",
		"3 H1 8 2 0 0 S1 X",
		"4 H2 95 1 0 0 X X",
		"5 X 40 1 0 0 X X", // no household, dropped
		"6 H2 40",          // short row, dropped
	}
	gq := []string{
		"10 P9 40 1",
		"11 N7 88 2",
		"12 C3 20 1",
	}
	return testEngine(t, chainProgram, rows, gq)
}

func TestPopulationLoad(t *testing.T) {
	eng := mixedPopulation(t)

	if got := eng.PopulationSize(); got != 7 {
		t.Fatalf("population = %d, want 7", got)
	}

	var noHousehold, shortRow bool
	for _, w := range eng.Warnings() {
		if strings.Contains(w, "no household") {
			noHousehold = true
		}
		if strings.Contains(w, "expected 8 fields") {
			shortRow = true
		}
	}
	if !noHousehold || !shortRow {
		t.Fatalf("missing load warnings, got %v", eng.Warnings())
	}

	p1 := eng.personByID[1]
	if p1 == nil || p1.Sex != 'M' {
		t.Fatalf("person 1 not loaded as male")
	}
	if wp := p1.GroupOfType(TypeWorkplace); wp == nil || wp.Label != "W1" {
		t.Fatalf("person 1 workplace: %+v", wp)
	}
	if of := p1.GroupOfType(TypeOffice); of == nil || of.Label != "W1.0" {
		t.Fatalf("person 1 office: %+v", of)
	}
	if p1.Profile != ProfileWorker {
		t.Fatalf("person 1 profile = %v, want worker", p1.Profile)
	}

	p2 := eng.personByID[2]
	if p2.Sex != 'F' || p2.Profile != ProfileUnemployed {
		t.Fatalf("person 2: sex %c profile %v", p2.Sex, p2.Profile)
	}

	p3 := eng.personByID[3]
	if p3.Profile != ProfileStudent {
		t.Fatalf("person 3 profile = %v, want student", p3.Profile)
	}
	if s := p3.GroupOfType(TypeSchool); s == nil || s.Label != "S1" {
		t.Fatalf("person 3 school: %+v", s)
	}
	if cr := p3.GroupOfType(TypeClassroom); cr == nil || cr.Label != "S1.8" {
		t.Fatalf("person 3 classroom: %+v", cr)
	}

	// Reported ages above 89 are redrawn into the 90..110 band.
	p4 := eng.personByID[4]
	if age := p4.Age(0); age < 89 || age > 110 {
		t.Fatalf("person 4 age = %d, want 90..110", age)
	}

	// Group-quarters residents get a synthetic household and facility
	// workplace, and a sticky institutional profile.
	p10 := eng.personByID[10]
	if p10.Profile != ProfilePrisoner {
		t.Fatalf("person 10 profile = %v, want prisoner", p10.Profile)
	}
	if hh := p10.Household(); hh == nil || hh.Label != "GH-P9" {
		t.Fatalf("person 10 household: %+v", hh)
	}
	if wp := p10.GroupOfType(TypeWorkplace); wp == nil || wp.Label != "GW-P9" {
		t.Fatalf("person 10 workplace: %+v", wp)
	}
	if eng.personByID[11].Profile != ProfileNursingHome {
		t.Fatalf("person 11 profile = %v", eng.personByID[11].Profile)
	}
	if eng.personByID[12].Profile != ProfileCollegeStudent {
		t.Fatalf("person 12 profile = %v", eng.personByID[12].Profile)
	}

	// Everyone shares the single neighborhood built over the households.
	for _, p := range eng.people {
		nb := p.GroupOfType(TypeNeighborhood)
		if nb == nil || nb.Label != "N-0" {
			t.Fatalf("person %d neighborhood: %+v", p.ID, nb)
		}
	}
}

func TestUpdateActivities(t *testing.T) {
	eng := mixedPopulation(t)

	// The run starts on Wednesday 2020-01-01; day 3 is Saturday.
	const wednesday, saturday = 0, 3

	p3 := eng.personByID[3]
	eng.updateActivities(p3, wednesday)
	if !p3.schedule[TypeHousehold] || !p3.schedule[TypeSchool] || !p3.schedule[TypeClassroom] {
		t.Fatalf("student weekday schedule: %v", p3.schedule)
	}
	eng.updateActivities(p3, saturday)
	if p3.schedule[TypeSchool] || p3.schedule[TypeClassroom] {
		t.Fatalf("student should not attend school on Saturday")
	}
	if !p3.schedule[TypeHousehold] || !p3.schedule[TypeNeighborhood] {
		t.Fatalf("household and neighborhood are everyday groups")
	}

	p1 := eng.personByID[1]
	eng.updateActivities(p1, wednesday)
	if !p1.schedule[TypeWorkplace] || !p1.schedule[TypeOffice] {
		t.Fatalf("worker weekday schedule: %v", p1.schedule)
	}
	eng.updateActivities(p1, saturday)
	if p1.schedule[TypeWorkplace] {
		t.Fatalf("worker should be off on Saturday")
	}

	// Institutionalized people attend only their facility.
	p10 := eng.personByID[10]
	eng.updateActivities(p10, wednesday)
	if p10.schedule[TypeNeighborhood] || p10.schedule[TypeSchool] {
		t.Fatalf("prisoner schedule too broad: %v", p10.schedule)
	}
	if !p10.schedule[TypeHousehold] || !p10.schedule[TypeWorkplace] {
		t.Fatalf("prisoner should attend cell block and facility: %v", p10.schedule)
	}
}
