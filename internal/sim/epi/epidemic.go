package epi

// personSet is an order-insensitive set of people with O(1) add, remove and
// uniform sampling by index.
type personSet struct {
	people []*Person
	pos    map[*Person]int
}

func newPersonSet() *personSet {
	return &personSet{pos: map[*Person]int{}}
}

func (s *personSet) add(p *Person) {
	if _, ok := s.pos[p]; ok {
		return
	}
	s.pos[p] = len(s.people)
	s.people = append(s.people, p)
}

func (s *personSet) remove(p *Person) {
	i, ok := s.pos[p]
	if !ok {
		return
	}
	last := len(s.people) - 1
	if i != last {
		moved := s.people[last]
		s.people[i] = moved
		s.pos[moved] = i
	}
	s.people = s.people[:last]
	delete(s.pos, p)
}

func (s *personSet) contains(p *Person) bool { _, ok := s.pos[p]; return ok }
func (s *personSet) size() int               { return len(s.people) }
func (s *personSet) get(i int) *Person       { return s.people[i] }

type groupCounts struct {
	incidence []int
	current   []int
	total     []int
}

// Epidemic tracks the population-level bookkeeping of one condition: who is
// susceptible or transmissible, scheduled transitions, and per-state counts
// at population and group granularity.
type Epidemic struct {
	cond *Condition

	// Ordinary-agent transitions; meta agents (import, admins) go through
	// their own queue, dispatched first each step.
	events     *EventQueue
	metaEvents *EventQueue

	susceptible   *personSet
	transmissible *personSet

	incidence []int // new entries today, reset daily
	current   []int
	total     []int // ever entered

	groups map[*Group]*groupCounts

	// Exposure cohorts for the reproduction-rate series, indexed by the
	// exposure day of the infector.
	cohortSize       []int
	cohortInfections []int

	TotalCases     int
	CaseFatalities int
	ImportedCases  int
	ImportAttempts int

	// Accumulated by report() action rules.
	ReportSum float64
}

func newEpidemic(e *Engine, c *Condition) *Epidemic {
	n := c.States.Size()
	return &Epidemic{
		cond:          c,
		events:        NewEventQueue(),
		metaEvents:    NewEventQueue(),
		susceptible:   newPersonSet(),
		transmissible: newPersonSet(),
		incidence:     make([]int, n),
		current:       make([]int, n),
		total:         make([]int, n),
		groups:        map[*Group]*groupCounts{},
	}
}

func (ep *Epidemic) prepare(e *Engine) {
	days := e.cfg.Days
	ep.cohortSize = make([]int, days+1)
	ep.cohortInfections = make([]int, days+1)
}

// prepareForNewDay resets the daily incidence counters.
func (ep *Epidemic) prepareForNewDay(day int) {
	for i := range ep.incidence {
		ep.incidence[i] = 0
	}
	for _, gc := range ep.groups {
		for i := range gc.incidence {
			gc.incidence[i] = 0
		}
	}
}

func (ep *Epidemic) countsFor(g *Group) *groupCounts {
	gc := ep.groups[g]
	if gc == nil {
		n := ep.cond.States.Size()
		gc = &groupCounts{
			incidence: make([]int, n),
			current:   make([]int, n),
			total:     make([]int, n),
		}
		ep.groups[g] = gc
	}
	return gc
}

// countStateEntry moves one person from old to state in every counter. Called
// exactly once per committed transition, after the person's state is set.
// Meta agents are bookkeeping devices and never counted.
func (ep *Epidemic) countStateEntry(p *Person, old, state int) {
	if p.IsMeta() {
		return
	}
	if old >= 0 {
		ep.current[old]--
	}
	ep.current[state]++
	ep.incidence[state]++
	ep.total[state]++
	for t := range p.links {
		g := p.links[t].Group
		if g == nil {
			continue
		}
		gc := ep.countsFor(g)
		if old >= 0 {
			gc.current[old]--
		}
		gc.current[state]++
		gc.incidence[state]++
		gc.total[state]++
	}
}

// adjustGroupCounts shifts the person's current-state tally when they join or
// leave a group mid-run.
func (ep *Epidemic) adjustGroupCounts(p *Person, g *Group, delta int) {
	if p.IsMeta() || g == nil {
		return
	}
	s := p.State(ep.cond.ID)
	if s < 0 {
		// Membership established before state initialization.
		return
	}
	gc := ep.countsFor(g)
	gc.current[s] += delta
	if delta > 0 {
		gc.total[s] += delta
	}
}

func (ep *Epidemic) stateCount(counter string, state int) int {
	if state < 0 || state >= len(ep.current) {
		return 0
	}
	switch counter {
	case "incidence":
		return ep.incidence[state]
	case "total":
		return ep.total[state]
	}
	return ep.current[state]
}

func (ep *Epidemic) groupStateCountOf(counter string, state int, g *Group) int {
	gc := ep.groups[g]
	if gc == nil || state < 0 || state >= len(gc.current) {
		return 0
	}
	switch counter {
	case "incidence":
		return gc.incidence[state]
	case "total":
		return gc.total[state]
	}
	return gc.current[state]
}

// becomeExposed records a new case of this condition. The source is the
// import agent for seeded cases.
func (ep *Epidemic) becomeExposed(e *Engine, p, source *Person, g *Group, day int) {
	st := &p.status[ep.cond.ID]
	st.exposureDay = day
	st.source = source
	st.exposureGroup = g

	ep.TotalCases++
	if day >= 0 && day < len(ep.cohortSize) {
		ep.cohortSize[day]++
	}
	if source == nil || source.IsMeta() {
		ep.ImportedCases++
		return
	}
	source.status[ep.cond.ID].numberOfHosts++
	sd := source.status[ep.cond.ID].exposureDay
	if sd >= 0 && sd < len(ep.cohortInfections) {
		ep.cohortInfections[sd]++
	}
}

// updateSusceptible keeps the susceptible roster in sync with the person's
// current susceptibility.
func (ep *Epidemic) updateSusceptible(p *Person) {
	if p.IsMeta() {
		return
	}
	if p.IsSusceptible(ep.cond.ID) {
		ep.susceptible.add(p)
	} else {
		ep.susceptible.remove(p)
	}
}

// updateTransmissible keeps the active-case roster in sync with the person's
// current transmissibility. Dormant states withdraw the person from
// circulation regardless of any transmissibility still set on them.
func (ep *Epidemic) updateTransmissible(e *Engine, p *Person) {
	if p.IsMeta() {
		return
	}
	if s := p.State(ep.cond.ID); s >= 0 && ep.cond.NH.IsDormant[s] {
		ep.transmissible.remove(p)
		return
	}
	if p.IsTransmissible(ep.cond.ID) {
		ep.transmissible.add(p)
	} else {
		ep.transmissible.remove(p)
	}
}

func (ep *Epidemic) countFatality() { ep.CaseFatalities++ }

// terminate removes a person from all rosters and cancels any scheduled
// transition, on death or travel departure.
func (ep *Epidemic) terminate(p *Person) {
	ep.susceptible.remove(p)
	ep.transmissible.remove(p)
	if next := p.NextTransitionStep(ep.cond.ID); next >= 0 {
		ep.events.Delete(next, p)
		ep.metaEvents.Delete(next, p)
		p.setNextTransitionStep(ep.cond.ID, -1)
	}
}

func (ep *Epidemic) queueFor(p *Person) *EventQueue {
	if p.IsMeta() {
		return ep.metaEvents
	}
	return ep.events
}

// Exported counter accessors for the reporting layer.

func (ep *Epidemic) Incidence(state int) int { return ep.stateCount("incidence", state) }
func (ep *Epidemic) Current(state int) int   { return ep.stateCount("current", state) }
func (ep *Epidemic) Total(state int) int     { return ep.stateCount("total", state) }

// RR returns the mean number of secondary cases caused by the cohort exposed
// on a day, or -1 when the cohort is empty.
func (ep *Epidemic) RR(day int) float64 {
	if day < 0 || day >= len(ep.cohortSize) || ep.cohortSize[day] == 0 {
		return -1
	}
	return float64(ep.cohortInfections[day]) / float64(ep.cohortSize[day])
}

func (ep *Epidemic) finish(e *Engine) {
	e.logf("condition %s: total cases %d, imported %d, fatalities %d",
		ep.cond.Name, ep.TotalCases, ep.ImportedCases, ep.CaseFatalities)
}
