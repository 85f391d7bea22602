package epi

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

const maxAge = 110

// neighborhoodSize is the number of households folded into one neighborhood
// group, in file order.
const neighborhoodSize = 500

// loadPopulation reads the household and group-quarters person files and
// builds the group layer around them.
func (e *Engine) loadPopulation() error {
	if e.cfg.Households != "" {
		if err := e.loadPeopleFile(e.cfg.Households, false); err != nil {
			return fmt.Errorf("households: %w", err)
		}
	}
	if e.cfg.GroupQuarters != "" {
		if err := e.loadPeopleFile(e.cfg.GroupQuarters, true); err != nil {
			return fmt.Errorf("group quarters: %w", err)
		}
	}
	e.buildNeighborhoods()
	for _, p := range e.people {
		e.assignProfile(p, 0)
	}
	e.logf("population loaded: %d people, %d households",
		len(e.people), len(e.groupTypes[TypeHousehold].Groups))
	return nil
}

// loadPeopleFile reads one whitespace-separated person file. Household rows:
// sp_id hh_label age sex race relationship school_label work_label, with X
// marking an absent label. Group-quarters rows: sp_id gq_label age sex.
func (e *Engine) loadPeopleFile(path string, gq bool) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") || strings.HasPrefix(text, "sp_id") {
			continue
		}
		fields := strings.Fields(text)
		if err := e.addPersonRow(fields, gq); err != nil {
			e.warnf("%s line %d: %v", path, line, err)
		}
	}
	return sc.Err()
}

func (e *Engine) addPersonRow(fields []string, gq bool) error {
	min := 8
	if gq {
		min = 4
	}
	if len(fields) < min {
		return fmt.Errorf("expected %d fields, got %d", min, len(fields))
	}

	id, err := strconv.Atoi(fields[0])
	if err != nil {
		return fmt.Errorf("bad sp_id %q", fields[0])
	}
	hhLabel := fields[1]
	workLabel, schoolLabel := "X", "X"
	relationship, race := 0, 0
	ageField, sexField := fields[2], fields[3]
	if gq {
		hhLabel = "GH-" + fields[1]
		workLabel = "GW-" + fields[1]
	} else {
		race, _ = strconv.Atoi(fields[4])
		relationship, _ = strconv.Atoi(fields[5])
		schoolLabel = fields[6]
		workLabel = fields[7]
	}
	if hhLabel == "X" || hhLabel == "" {
		return fmt.Errorf("person %d has no household; dropped", id)
	}

	age, err := strconv.Atoi(ageField)
	if err != nil || age < 0 {
		return fmt.Errorf("bad age %q", ageField)
	}
	if age > 89 {
		age = e.resampleOldAge()
	}

	p := e.newPerson(id)
	p.Index = len(e.people)
	p.Race = race
	p.HouseholdRelationship = relationship
	p.Sex = parseSex(sexField)
	// Spread birthdays uniformly within the birth year.
	p.BirthSimDay = -(age*365 + e.rng.Int(0, 364))
	e.people = append(e.people, p)
	e.personByID[id] = p
	if id >= e.nextPersonID {
		e.nextPersonID = id + 1
	}

	hh := e.placeWithLabel(TypeHousehold, hhLabel)
	e.joinGroup(p, hh)
	p.setStoredGroup(TypeHousehold, hh)

	if schoolLabel != "X" && schoolLabel != "" {
		e.joinSchool(p, schoolLabel, age)
	}
	if workLabel != "X" && workLabel != "" {
		e.joinWorkplace(p, workLabel)
	} else if e.cfg.EnableLocalWorkplaceAssignment && age >= 18 && age < 67 && schoolLabel == "X" {
		e.assignRandomWorkplace(p)
	}
	if gq {
		p.Profile = gqProfile(fields[1])
	}
	return nil
}

// resampleOldAge redraws a reported age above 89, decaying geometrically
// toward the maximum age.
func (e *Engine) resampleOldAge() int {
	age := 90
	for age < maxAge && e.rng.Uniform() < 0.5 {
		age++
	}
	return age
}

func parseSex(s string) byte {
	switch s {
	case "1", "M", "m":
		return 'M'
	case "2", "F", "f":
		return 'F'
	}
	return 'M'
}

// gqProfile maps a group-quarters label prefix to an activity profile.
func gqProfile(label string) Profile {
	switch {
	case strings.HasPrefix(label, "P"):
		return ProfilePrisoner
	case strings.HasPrefix(label, "N"):
		return ProfileNursingHome
	case strings.HasPrefix(label, "C"):
		return ProfileCollegeStudent
	case strings.HasPrefix(label, "M"):
		return ProfileMilitary
	}
	return ProfileUnknown
}

func (e *Engine) joinSchool(p *Person, label string, age int) {
	school := e.placeWithLabel(TypeSchool, label)
	e.joinGroup(p, school)
	p.setStoredGroup(TypeSchool, school)
	// Classrooms partition a school by student age.
	grade := age
	if grade > 20 {
		grade = 20
	}
	room := e.placeWithLabel(TypeClassroom, fmt.Sprintf("%s.%d", label, grade))
	e.joinGroup(p, room)
	p.setStoredGroup(TypeClassroom, room)
}

// officeSize caps the office sub-places a workplace is carved into.
const officeSize = 50

func (e *Engine) joinWorkplace(p *Person, label string) {
	wp := e.placeWithLabel(TypeWorkplace, label)
	e.joinGroup(p, wp)
	p.setStoredGroup(TypeWorkplace, wp)
	office := e.placeWithLabel(TypeOffice, fmt.Sprintf("%s.%d", label, wp.Size()/officeSize))
	e.joinGroup(p, office)
	p.setStoredGroup(TypeOffice, office)
}

func (e *Engine) assignRandomWorkplace(p *Person) {
	wps := e.groupTypes[TypeWorkplace].Groups
	if len(wps) == 0 {
		return
	}
	wp := wps[e.rng.Int(0, len(wps)-1)]
	e.joinWorkplace(p, wp.Label)
}

// buildNeighborhoods folds households into neighborhood groups in file order.
func (e *Engine) buildNeighborhoods() {
	households := e.groupTypes[TypeHousehold].Groups
	for i, hh := range households {
		label := fmt.Sprintf("N-%d", i/neighborhoodSize)
		nb := e.placeWithLabel(TypeNeighborhood, label)
		for _, p := range hh.Members {
			e.joinGroup(p, nb)
			p.setStoredGroup(TypeNeighborhood, nb)
		}
	}
}

// newGroup creates and registers a group of a type.
func (e *Engine) newGroup(t *GroupType, label string) *Group {
	id := e.nextGroupID
	e.nextGroupID++
	if label == "" {
		label = fmt.Sprintf("%s-%d", t.Name, id)
	}
	g := &Group{ID: id, Type: t, Label: label, ContactFactor: 1}
	if t.Kind == KindPlace {
		g.Place = &PlaceInfo{firstTransmissibleDay: -1, lastTransmissibleDay: -1}
	}
	t.Groups = append(t.Groups, g)
	t.ByLabel[label] = g
	e.groupByID[id] = g
	return g
}

func (e *Engine) placeWithLabel(typeID int, label string) *Group {
	t := e.groupTypes[typeID]
	if g := t.groupWithLabel(label); g != nil {
		return g
	}
	return e.newGroup(t, label)
}

// Demographic driver: deaths and births are queued by rule actions and
// applied between event dispatch and transmission, never mid-dispatch.

func (e *Engine) scheduleDeath(p *Person) {
	if p.IsMeta() || p.pendingDeath {
		return
	}
	p.pendingDeath = true
	e.pendingDeaths = append(e.pendingDeaths, p)
}

func (e *Engine) scheduleBirth(mother *Person) {
	if mother.IsMeta() {
		return
	}
	e.pendingBirths = append(e.pendingBirths, mother)
}

func (e *Engine) processDemographics() {
	for _, mother := range e.pendingBirths {
		e.addNewborn(mother)
	}
	e.pendingBirths = e.pendingBirths[:0]

	for _, p := range e.pendingDeaths {
		e.removePerson(p)
	}
	e.pendingDeaths = e.pendingDeaths[:0]
}

func (e *Engine) addNewborn(mother *Person) {
	id := e.nextPersonID
	e.nextPersonID++
	baby := e.newPerson(id)
	baby.Index = len(e.people)
	baby.BirthSimDay = e.day
	baby.Profile = ProfileInfant
	if e.rng.Uniform() < 0.5 {
		baby.Sex = 'F'
	} else {
		baby.Sex = 'M'
	}
	e.people = append(e.people, baby)
	e.personByID[id] = baby

	if hh := mother.Household(); hh != nil {
		e.joinGroup(baby, hh)
		baby.setStoredGroup(TypeHousehold, hh)
	}
	if nb := mother.storedGroup(TypeNeighborhood); nb != nil {
		e.joinGroup(baby, nb)
		baby.setStoredGroup(TypeNeighborhood, nb)
	}
	mother.NumberOfChildren++
	for c := range e.conditions {
		e.updateState(baby, c, 0)
	}
}

// removePerson takes a person out of the simulation entirely.
func (e *Engine) removePerson(p *Person) {
	for _, c := range e.conditions {
		c.Epi.terminate(p)
		if s := p.State(c.ID); s >= 0 {
			c.Epi.current[s]--
		}
	}
	for t := range p.links {
		e.quitGroup(p, t)
	}
	delete(e.personByID, p.ID)

	i := p.Index
	last := len(e.people) - 1
	if i >= 0 && i <= last && e.people[i] == p {
		moved := e.people[last]
		e.people[i] = moved
		moved.Index = i
		e.people = e.people[:last]
	}
	p.Index = -1
}
