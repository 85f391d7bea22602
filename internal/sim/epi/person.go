package epi

import "fmt"

// Activity profiles. Assigned at load from age, school/work links and group
// quarters; re-assigned on the annual rollover.
type Profile int

const (
	ProfileUnknown Profile = iota
	ProfileInfant
	ProfilePreschool
	ProfileStudent
	ProfileTeacher
	ProfileWorker
	ProfileWeekendWorker
	ProfileUnemployed
	ProfileRetired
	ProfilePrisoner
	ProfileCollegeStudent
	ProfileMilitary
	ProfileNursingHome
)

var profileNames = map[Profile]string{
	ProfileUnknown:        "unknown",
	ProfileInfant:         "infant",
	ProfilePreschool:      "preschool",
	ProfileStudent:        "student",
	ProfileTeacher:        "teacher",
	ProfileWorker:         "worker",
	ProfileWeekendWorker:  "weekend_worker",
	ProfileUnemployed:     "unemployed",
	ProfileRetired:        "retired",
	ProfilePrisoner:       "prisoner",
	ProfileCollegeStudent: "college_student",
	ProfileMilitary:       "military",
	ProfileNursingHome:    "nursing_home",
}

func (p Profile) String() string { return profileNames[p] }

// Person is one agent. Ordinary agents have ids >= 0; the import agent is -1
// and admin agents are -2, -3, ... Meta agents never join groups.
type Person struct {
	Index int // dense index into the population vector, -1 for meta agents
	ID    int

	BirthSimDay           int
	Sex                   byte
	Race                  int
	HouseholdRelationship int
	NumberOfChildren      int
	Profile               Profile
	Traveling             bool

	links        []Link
	schedule     []bool
	scheduleDay  int
	storedGroups []*Group

	status []conditionStatus

	vars  []float64
	lists [][]float64

	engine       *Engine
	meta         bool
	pendingDeath bool
}

// Per-condition health status.
type conditionStatus struct {
	state              int
	lastTransitionStep int
	nextTransitionStep int

	susceptibility   float64
	transmissibility float64

	exposureDay   int
	source        *Person
	exposureGroup *Group
	numberOfHosts int

	firstEntryStep []int
	caseFatal      bool
}

func (e *Engine) newPerson(id int) *Person {
	p := &Person{
		Index:       -1,
		ID:          id,
		engine:      e,
		scheduleDay: -1,
	}
	p.links = make([]Link, len(e.groupTypes))
	for i := range p.links {
		p.links[i].MemberIndex = -1
	}
	p.schedule = make([]bool, len(e.groupTypes))
	p.status = make([]conditionStatus, len(e.conditions))
	for c := range p.status {
		n := e.conditions[c].States.Size()
		st := &p.status[c]
		st.state = -1
		st.lastTransitionStep = -1
		st.nextTransitionStep = -1
		st.exposureDay = -1
		st.firstEntryStep = make([]int, n)
		for i := range st.firstEntryStep {
			st.firstEntryStep[i] = -1
		}
	}
	p.vars = make([]float64, e.vars.numPersonal)
	p.lists = make([][]float64, e.vars.numPersonalLists)
	return p
}

func (p *Person) IsMeta() bool { return p.meta }

func (p *Person) linkFor(typeID int) *Link {
	for len(p.links) <= typeID {
		p.links = append(p.links, Link{MemberIndex: -1})
		p.schedule = append(p.schedule, false)
	}
	return &p.links[typeID]
}

// storedGroup returns the remembered group of a type: the one the person
// belongs to on paper even while absent or traveling.
func (p *Person) storedGroup(typeID int) *Group {
	if typeID < 0 || typeID >= len(p.storedGroups) {
		return nil
	}
	return p.storedGroups[typeID]
}

func (p *Person) setStoredGroup(typeID int, g *Group) {
	for len(p.storedGroups) <= typeID {
		p.storedGroups = append(p.storedGroups, nil)
	}
	p.storedGroups[typeID] = g
}

// GroupOfType returns the person's current group of the given type, or nil.
func (p *Person) GroupOfType(typeID int) *Group {
	if typeID < 0 || typeID >= len(p.links) {
		return nil
	}
	return p.links[typeID].Group
}

// RealAge returns the person's age in fractional years on a simulation day.
func (p *Person) RealAge(day int) float64 {
	return float64(day-p.BirthSimDay) / 365.25
}

func (p *Person) Age(day int) int { return int(p.RealAge(day)) }

// Condition status accessors.

func (p *Person) State(cond int) int { return p.status[cond].state }

func (p *Person) setState(cond, state, step int) {
	st := &p.status[cond]
	st.state = state
	st.lastTransitionStep = step
	if state >= 0 && state < len(st.firstEntryStep) && st.firstEntryStep[state] < 0 {
		st.firstEntryStep[state] = step
	}
}

func (p *Person) NextTransitionStep(cond int) int { return p.status[cond].nextTransitionStep }

func (p *Person) setNextTransitionStep(cond, s int) { p.status[cond].nextTransitionStep = s }

func (p *Person) Susceptibility(cond int) float64 { return p.status[cond].susceptibility }
func (p *Person) IsSusceptible(cond int) bool     { return p.status[cond].susceptibility > 0 }

func (p *Person) Transmissibility(cond int) float64 { return p.status[cond].transmissibility }
func (p *Person) IsTransmissible(cond int) bool     { return p.status[cond].transmissibility > 0 }

func (p *Person) setSusceptibility(cond int, v float64) {
	if v < 0 {
		v = 0
	}
	p.status[cond].susceptibility = v
}

func (p *Person) setTransmissibility(cond int, v float64) {
	if v < 0 {
		v = 0
	}
	p.status[cond].transmissibility = v
}

func (p *Person) ExposureDay(cond int) int        { return p.status[cond].exposureDay }
func (p *Person) ExposureSource(cond int) *Person { return p.status[cond].source }
func (p *Person) NumberOfHosts(cond int) int      { return p.status[cond].numberOfHosts }
func (p *Person) IsCaseFatal(cond int) bool       { return p.status[cond].caseFatal }

// FirstEntryStep returns the step the person first entered a state, -1 never.
func (p *Person) FirstEntryStep(cond, state int) int {
	st := &p.status[cond]
	if state < 0 || state >= len(st.firstEntryStep) {
		return -1
	}
	return st.firstEntryStep[state]
}

// closesGroupType reports whether any current condition state of p closes
// groups of the given type (used for administrator-driven closures).
func (p *Person) closesGroupType(typeID int) bool {
	for c, cond := range p.engine.conditions {
		if cond.NH.closesGroup(p.status[c].state, typeID) {
			return true
		}
	}
	return false
}

// absentFromGroupType reports whether any current condition state marks the
// person absent from groups of the given type.
func (p *Person) absentFromGroupType(typeID int) bool {
	for c, cond := range p.engine.conditions {
		if cond.NH.absentFromGroup(p.status[c].state, typeID) {
			return true
		}
	}
	return false
}

// Household returns the person's household, or nil for meta agents.
func (p *Person) Household() *Group { return p.GroupOfType(TypeHousehold) }

// recordString is the prefix of health-record lines for this person.
func (p *Person) recordString(day int) string {
	hh := "-"
	if h := p.Household(); h != nil {
		hh = h.Label
	}
	return fmt.Sprintf("day %d person %d age %d sex %c hh %s", day, p.ID, p.Age(day), p.Sex, hh)
}

// Personal variables.

func (p *Person) getVar(id int) float64 {
	if id < 0 || id >= len(p.vars) {
		return 0
	}
	return p.vars[id]
}

func (p *Person) setVar(id int, v float64) {
	if id < 0 {
		return
	}
	for len(p.vars) <= id {
		p.vars = append(p.vars, 0)
	}
	p.vars[id] = v
}

func (p *Person) getList(id int) []float64 {
	if id < 0 || id >= len(p.lists) {
		return nil
	}
	return p.lists[id]
}

func (p *Person) setList(id int, v []float64) {
	if id < 0 {
		return
	}
	for len(p.lists) <= id {
		p.lists = append(p.lists, nil)
	}
	p.lists[id] = v
}
