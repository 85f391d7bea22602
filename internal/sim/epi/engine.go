// Package epi is the simulation core: conditions as per-person state
// machines, rule-driven transitions over an hourly event queue, and
// transmission through places and networks.
package epi

import (
	"fmt"
	"log"
	"strings"

	"episim.ai/internal/sim/clock"
	"episim.ai/internal/sim/program"
	"episim.ai/internal/sim/rng"
)

// Engine owns the whole simulation: population, group layer, conditions and
// the run loop. Single-threaded; all state changes happen on the caller's
// goroutine in deterministic order.
type Engine struct {
	cfg    program.RunConfig
	src    *program.Source
	logger *log.Logger

	cal  *clock.Calendar
	rng  *rng.RNG
	vars *varTable

	day, hour int
	maxLoops  int

	conditions      []*Condition
	conditionByName map[string]int
	groupTypes      []*GroupType
	groupTypeByName map[string]int

	people     []*Person
	personByID map[int]*Person
	groupByID  map[int]*Group

	nextPersonID int
	nextGroupID  int

	importAgent *Person
	adminAgents []*Person

	pendingDeaths []*Person
	pendingBirths []*Person

	rules    []*Rule
	warnings []string

	// RecordFn receives one health-record line per report() action when set.
	RecordFn func(line string)

	// OnDayEnd runs after the last hour of each day, before the day counter
	// advances. Report writers hook in here.
	OnDayEnd func(day int)
}

// New builds an engine from a run configuration and a preprocessed program.
func New(cfg program.RunConfig, src *program.Source, logger *log.Logger) (*Engine, error) {
	cal, err := clock.NewCalendar(cfg.StartDate)
	if err != nil {
		return nil, fmt.Errorf("start date: %w", err)
	}
	e := &Engine{
		cfg:             cfg,
		src:             src,
		logger:          logger,
		cal:             cal,
		rng:             rng.New(cfg.Seed),
		vars:            newVarTable(),
		conditionByName: map[string]int{},
		groupTypeByName: map[string]int{},
		personByID:      map[int]*Person{},
		groupByID:       map[int]*Group{},
	}
	for _, w := range src.Warnings {
		e.warnf("%s", w)
	}

	e.registerVariables()
	if err := e.setupGroupTypes(); err != nil {
		return nil, err
	}
	if err := e.setupConditions(); err != nil {
		return nil, err
	}
	e.loadGroupTypeParams()
	for _, c := range e.conditions {
		c.setup(e)
	}
	e.compileRules()
	for _, c := range e.conditions {
		c.prepare(e)
	}

	if err := e.loadPopulation(); err != nil {
		return nil, err
	}
	e.maxLoops = cfg.MaxLoops
	if e.maxLoops <= 0 {
		e.maxLoops = len(e.people)
		if e.maxLoops < 1 {
			e.maxLoops = 1
		}
	}
	e.createMetaAgents()
	return e, nil
}

func (e *Engine) registerVariables() {
	for _, name := range e.src.Words("variables") {
		e.vars.personalID(name, true)
	}
	for _, name := range e.src.Words("global_variables") {
		e.vars.globalID(name, true)
	}
	for _, name := range e.src.Words("list_variables") {
		e.vars.personalListID(name, true)
	}
	for _, name := range e.src.Words("global_list_variables") {
		e.vars.globalListID(name, true)
	}
}

func (e *Engine) addGroupType(name string, kind GroupKind, builtIn bool) (*GroupType, error) {
	if _, dup := e.groupTypeByName[name]; dup {
		return nil, fmt.Errorf("duplicate group type %q", name)
	}
	t := newGroupType(len(e.groupTypes), name, kind, builtIn)
	e.groupTypes = append(e.groupTypes, t)
	e.groupTypeByName[name] = t.ID
	return t, nil
}

func (e *Engine) setupGroupTypes() error {
	for _, name := range builtinTypeNames {
		if _, err := e.addGroupType(name, KindPlace, true); err != nil {
			return err
		}
	}
	for _, name := range append(e.src.BlockPlaces, e.src.Words("place_types")...) {
		if _, ok := e.groupTypeByName[name]; ok {
			continue
		}
		if _, err := e.addGroupType(name, KindPlace, false); err != nil {
			return err
		}
	}
	for _, name := range append(e.src.BlockNetworks, e.src.Words("network_types")...) {
		if _, ok := e.groupTypeByName[name]; ok {
			continue
		}
		if _, err := e.addGroupType(name, KindNetwork, false); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) setupConditions() error {
	names := append(append([]string(nil), e.src.BlockConditions...), e.src.Words("conditions")...)
	for _, name := range names {
		if _, dup := e.conditionByName[name]; dup {
			continue
		}
		c, err := newCondition(e, len(e.conditions), name)
		if err != nil {
			return err
		}
		e.conditions = append(e.conditions, c)
		e.conditionByName[name] = c.ID
	}
	if len(e.conditions) == 0 {
		return fmt.Errorf("program declares no conditions")
	}
	return nil
}

// loadGroupTypeParams reads the per-type and per-type-per-condition contact
// parameters and open-hour schedules.
func (e *Engine) loadGroupTypeParams() {
	src := e.src
	n := len(e.conditions)
	for _, t := range e.groupTypes {
		t.sizeConditions(n)

		t.SameAgeBias = src.Number(t.Name+".same_age_bias", 0)
		t.HasAdministrator = src.Bool(t.Name + ".has_administrator")
		t.Undirected = src.Bool(t.Name + ".undirected")
		t.MeanDegree = src.Int(t.Name+".mean_degree", 0)
		t.MaxDegree = src.Int(t.Name+".max_degree", 0)

		baseContacts := src.Number(t.Name+".contacts", 0)
		baseDensity := src.Number(t.Name+".density_contact_prob", 0)
		for c, cond := range e.conditions {
			t.ContactCount[c] = src.Number(
				fmt.Sprintf("%s.contact_count_for_%s", t.Name, cond.Name), baseContacts)
			t.ContactRate[c] = src.Number(
				fmt.Sprintf("%s.contact_rate_for_%s", t.Name, cond.Name), 0)
			t.DensityContactProb[c] = src.Number(
				fmt.Sprintf("%s.density_contact_prob_for_%s", t.Name, cond.Name), baseDensity)
			t.CanTransmit[c] = src.Bool(
				fmt.Sprintf("%s.can_transmit_%s", t.Name, cond.Name))
			t.Deterministic[c] = src.Bool(
				fmt.Sprintf("%s.deterministic_contacts_for_%s", t.Name, cond.Name))
			t.DensityTransmission[c] = src.Bool(
				fmt.Sprintf("%s.density_transmission_for_%s", t.Name, cond.Name))
		}

		e.loadSchedule(t)
	}
}

// loadSchedule parses GT.starts_at_hour_H_on_DAYS = duration properties,
// falling back to the built-in defaults when a type declares none.
func (e *Engine) loadSchedule(t *GroupType) {
	prefix := t.Name + ".starts_at_hour_"
	found := false
	for _, prop := range e.src.HasPrefix(prefix) {
		spec := strings.TrimPrefix(prop.Name, prefix)
		i := strings.Index(spec, "_on_")
		if i < 0 {
			e.warnf("bad schedule property %q", prop.Name)
			continue
		}
		var hour int
		if _, err := fmt.Sscanf(spec[:i], "%d", &hour); err != nil {
			e.warnf("bad schedule hour in %q", prop.Name)
			continue
		}
		dur := e.src.Int(prop.Name, 0)
		if !t.setOpenBlock(spec[i+len("_on_"):], hour, dur) {
			e.warnf("bad schedule days in %q", prop.Name)
			continue
		}
		found = true
	}
	if found || t.Kind == KindNetwork {
		return
	}
	switch t.ID {
	case TypeHousehold, TypeHospital:
		t.setOpenBlock("all", 0, 24)
	case TypeNeighborhood:
		t.setOpenBlock("all", 17, 2)
	case TypeSchool, TypeClassroom:
		t.setOpenBlock("weekdays", 8, 7)
	case TypeWorkplace, TypeOffice:
		t.setOpenBlock("weekdays", 9, 8)
	}
}

func (e *Engine) compileRules() {
	for _, line := range e.src.Rules {
		r := e.parseRuleLine(line)
		e.rules = append(e.rules, r)
		if r.Warned {
			continue
		}
		e.conditions[r.Cond].NH.addRule(e, r)
	}
}

// createMetaAgents builds the import agent (id -1) and one admin agent per
// group of an administered type (ids -2, -3, ...).
func (e *Engine) createMetaAgents() {
	e.importAgent = e.newPerson(-1)
	e.importAgent.meta = true

	next := -2
	for _, t := range e.groupTypes {
		if !t.HasAdministrator {
			continue
		}
		for _, g := range t.Groups {
			a := e.newPerson(next)
			next--
			a.meta = true
			g.Admin = a
			e.adminAgents = append(e.adminAgents, a)
		}
	}
}

// Run executes the full simulation.
func (e *Engine) Run() error {
	e.day, e.hour = 0, 0
	e.initializeStates()

	for d := 0; d < e.cfg.Days; d++ {
		e.day = d
		e.prepareForNewDay(d)
		for h := 0; h < 24; h++ {
			e.hour = h
			e.step()
		}
		if e.OnDayEnd != nil {
			e.OnDayEnd(d)
		}
	}
	e.finish()
	return nil
}

// initializeStates pushes every agent through the Start state of every
// condition at step 0, meta agents first.
func (e *Engine) initializeStates() {
	for c := range e.conditions {
		e.updateState(e.importAgent, c, 0)
		adminStart := e.conditions[c].AdminStartState
		if adminStart < 0 {
			adminStart = 0
		}
		for _, a := range e.adminAgents {
			e.updateState(a, c, adminStart)
		}
	}
	for c := range e.conditions {
		// Snapshot: initialization rules may add newborns.
		people := append([]*Person(nil), e.people...)
		for _, p := range people {
			e.updateState(p, c, 0)
		}
	}
	e.processDemographics()
}

func (e *Engine) prepareForNewDay(day int) {
	for _, c := range e.conditions {
		c.Epi.prepareForNewDay(day)
	}
	e.advanceSchoolYear(day)
}

// step dispatches one hour: meta transitions, ordinary transitions,
// demographics, then transmission.
func (e *Engine) step() {
	step := clock.Step(e.day, e.hour)

	for ci, c := range e.conditions {
		for {
			p := c.Epi.metaEvents.Pop(step)
			if p == nil {
				break
			}
			e.updateState(p, ci, -1)
		}
		c.Epi.metaEvents.Clear(step)
	}
	for ci, c := range e.conditions {
		for {
			p := c.Epi.events.Pop(step)
			if p == nil {
				break
			}
			e.updateState(p, ci, -1)
		}
		c.Epi.events.Clear(step)
	}

	e.processDemographics()

	for _, c := range e.conditions {
		switch c.Mode {
		case ModeProximity, ModeRespiratory:
			e.spreadProximity(c)
		case ModeNetwork:
			e.spreadNetwork(c)
		}
	}
	e.processDemographics()
}

func (e *Engine) finish() {
	for _, c := range e.conditions {
		c.finish(e)
	}
	if sites, first, last := e.transmissionSites(); sites > 0 {
		e.logf("transmission occurred at %d places between day %d and day %d",
			sites, first, last)
	}
	e.logf("run complete: %d days, %d people remaining, %d warnings",
		e.cfg.Days, len(e.people), len(e.warnings))
}

// transmissionSites summarizes the places that hosted transmissible visitors
// and the span of days they did.
func (e *Engine) transmissionSites() (sites, first, last int) {
	first, last = -1, -1
	for _, t := range e.groupTypes {
		for _, g := range t.Groups {
			if g.Place == nil || g.Place.firstTransmissibleDay < 0 {
				continue
			}
			sites++
			if first < 0 || g.Place.firstTransmissibleDay < first {
				first = g.Place.firstTransmissibleDay
			}
			if g.Place.lastTransmissibleDay > last {
				last = g.Place.lastTransmissibleDay
			}
		}
	}
	return sites, first, last
}

// report handles a report() action: accumulate the value and emit a health
// record line when records are enabled.
func (e *Engine) report(p *Person, c *Condition, v float64) {
	c.Epi.ReportSum += v
	if e.RecordFn != nil {
		e.RecordFn(fmt.Sprintf("%s cond %s state %s value %g",
			p.recordString(e.day), c.Name, c.States.Name(p.State(c.ID)), v))
	}
}

func (e *Engine) logf(format string, args ...any) {
	if e.logger != nil {
		e.logger.Printf(format, args...)
	}
}

func (e *Engine) warnf(format string, args ...any) {
	e.warnings = append(e.warnings, fmt.Sprintf(format, args...))
	if e.logger != nil {
		e.logger.Printf("warning: "+format, args...)
	}
}

// Accessors used by the reporting and monitoring layers.

func (e *Engine) Day() int                  { return e.day }
func (e *Engine) Hour() int                 { return e.hour }
func (e *Engine) Calendar() *clock.Calendar { return e.cal }
func (e *Engine) Conditions() []*Condition  { return e.conditions }
func (e *Engine) PopulationSize() int       { return len(e.people) }
func (e *Engine) Warnings() []string        { return e.warnings }
func (e *Engine) Config() program.RunConfig { return e.cfg }
