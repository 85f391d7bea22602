package epi

import (
	"fmt"
	"math"

	"episim.ai/internal/sim/clock"
)

// NaturalHistory owns the per-state rule vectors and state flags of one
// condition, and answers the two questions at the heart of every transition:
// which state comes next, and when.
type NaturalHistory struct {
	cond *Condition
	n    int

	ConditionToTransmit []int
	IsDormant           []bool
	IsFatal             []bool
	IsMaternity         []bool
	StartHosting        []bool
	DefaultNextState    []int

	// Per-state base values applied on entry; -1 leaves the person's
	// current value unchanged.
	Susceptibility   []float64
	Transmissibility []float64

	// [state][group type] bitmaps.
	absentGroups [][]bool
	closeGroups  [][]bool

	// Import parameters, settable by properties and overridden by rules.
	ImportCount            []int
	ImportPerCapita        []float64
	ImportLat              []float64
	ImportLon              []float64
	ImportRadius           []float64
	ImportAdminCode        []int64
	ImportMinAge           []float64
	ImportMaxAge           []float64
	CountAllImportAttempts []bool

	// True once the program names a default successor for Start, which
	// suppresses the built-in first-interior-state fallback.
	startDefaultSet bool

	actionRules [][]*Rule
	waitRules   [][]*Rule
	nextRules   [][][]*Rule

	importCountRule     []*Rule
	importPerCapitaRule []*Rule
	importLocationRule  []*Rule
	importAdminCodeRule []*Rule
	importAgesRule      []*Rule
	importListRule      []*Rule
}

const probEpsilon = 1e-20

func newNaturalHistory(e *Engine, cond *Condition) *NaturalHistory {
	n := cond.States.Size()
	nh := &NaturalHistory{cond: cond, n: n}

	nh.ConditionToTransmit = make([]int, n)
	nh.IsDormant = make([]bool, n)
	nh.IsFatal = make([]bool, n)
	nh.IsMaternity = make([]bool, n)
	nh.StartHosting = make([]bool, n)
	nh.DefaultNextState = make([]int, n)
	nh.Susceptibility = make([]float64, n)
	nh.Transmissibility = make([]float64, n)

	nh.absentGroups = make([][]bool, n)
	nh.closeGroups = make([][]bool, n)

	nh.ImportCount = make([]int, n)
	nh.ImportPerCapita = make([]float64, n)
	nh.ImportLat = make([]float64, n)
	nh.ImportLon = make([]float64, n)
	nh.ImportRadius = make([]float64, n)
	nh.ImportAdminCode = make([]int64, n)
	nh.ImportMinAge = make([]float64, n)
	nh.ImportMaxAge = make([]float64, n)
	nh.CountAllImportAttempts = make([]bool, n)

	nh.actionRules = make([][]*Rule, n)
	nh.waitRules = make([][]*Rule, n)
	nh.nextRules = make([][][]*Rule, n)

	nh.importCountRule = make([]*Rule, n)
	nh.importPerCapitaRule = make([]*Rule, n)
	nh.importLocationRule = make([]*Rule, n)
	nh.importAdminCodeRule = make([]*Rule, n)
	nh.importAgesRule = make([]*Rule, n)
	nh.importListRule = make([]*Rule, n)

	nGT := len(e.groupTypes)
	for s := 0; s < n; s++ {
		nh.ConditionToTransmit[s] = cond.ID
		nh.DefaultNextState[s] = s
		nh.ImportMaxAge[s] = 999
		nh.Susceptibility[s] = -1
		nh.Transmissibility[s] = -1
		nh.absentGroups[s] = make([]bool, nGT)
		nh.closeGroups[s] = make([]bool, nGT)
		nh.nextRules[s] = make([][]*Rule, n)
	}
	nh.DefaultNextState[0] = 1
	return nh
}

// loadProperties reads per-state properties such as C.S.is_dormant = 1.
func (nh *NaturalHistory) loadProperties(e *Engine) {
	src := e.src
	c := nh.cond
	for s := 0; s < nh.n; s++ {
		prefix := c.Name + "." + c.States.Name(s) + "."
		nh.Susceptibility[s] = src.Number(prefix+"susceptibility", -1)
		nh.Transmissibility[s] = src.Number(prefix+"transmissibility", -1)
		nh.IsDormant[s] = src.Bool(prefix + "is_dormant")
		nh.IsFatal[s] = src.Bool(prefix + "is_fatal")
		nh.IsMaternity[s] = src.Bool(prefix + "is_maternity")
		nh.StartHosting[s] = src.Bool(prefix + "start_hosting")
		if v, ok := src.Get(prefix + "condition_to_transmit"); ok {
			if id, found := e.resolveCondition(v); found {
				nh.ConditionToTransmit[s] = id
			} else {
				e.warnf("%s: unknown condition_to_transmit %q", c.Name, v)
			}
		}
		if v, ok := src.Get(prefix + "default_next_state"); ok {
			if i := c.States.Index(v); i >= 0 {
				nh.DefaultNextState[s] = i
				if s == 0 {
					nh.startDefaultSet = true
				}
			} else {
				e.warnf("%s: unknown default_next_state %q", c.Name, v)
			}
		}
		nh.ImportCount[s] = src.Int(prefix+"import_max_cases", 0)
		nh.ImportPerCapita[s] = src.Number(prefix+"import_per_capita", 0)
		nh.ImportLat[s] = src.Number(prefix+"import_latitude", 0)
		nh.ImportLon[s] = src.Number(prefix+"import_longitude", 0)
		nh.ImportRadius[s] = src.Number(prefix+"import_radius", 0)
		nh.ImportAdminCode[s] = int64(src.Number(prefix+"import_admin_code", 0))
		nh.ImportMinAge[s] = src.Number(prefix+"import_min_age", 0)
		nh.ImportMaxAge[s] = src.Number(prefix+"import_max_age", 999)
		if src.Bool(prefix + "import_count_all_attempts") {
			nh.CountAllImportAttempts[s] = true
		}
	}
}

// addRule routes a compiled rule into the proper per-state vector.
func (nh *NaturalHistory) addRule(e *Engine, r *Rule) {
	if r.Warned {
		return
	}
	s := r.State
	switch r.Action {
	case ActWait, ActWaitUntil:
		nh.waitRules[s] = append(nh.waitRules[s], r)

	case ActNext:
		if r.NextState < 0 {
			return // bare next(): keep the default path
		}
		nh.nextRules[s][r.NextState] = append(nh.nextRules[s][r.NextState], r)

	case ActDefault:
		if r.NextState >= 0 {
			nh.DefaultNextState[s] = r.NextState
			if s == 0 {
				nh.startDefaultSet = true
			}
		}

	case ActAbsent:
		nh.absentGroups[s][r.GroupTypeID] = true
	case ActPresent:
		nh.absentGroups[s][r.GroupTypeID] = false
	case ActClose:
		nh.closeGroups[s][r.GroupTypeID] = true

	case ActImportCount:
		nh.importCountRule[s] = r
	case ActImportPerCapita:
		nh.importPerCapitaRule[s] = r
	case ActImportLocation:
		nh.importLocationRule[s] = r
	case ActImportAdminCode:
		nh.importAdminCodeRule[s] = r
	case ActImportAges:
		nh.importAgesRule[s] = r
	case ActImportList:
		nh.importListRule[s] = r
	case ActCountAllImportAttempts:
		nh.CountAllImportAttempts[s] = true

	default:
		nh.hideOverridden(s, r)
		nh.actionRules[s] = append(nh.actionRules[s], r)
	}
}

// hideOverridden marks earlier action rules with the same (state, action,
// target) tuple as hidden: later declaration wins.
func (nh *NaturalHistory) hideOverridden(s int, r *Rule) {
	for _, prev := range nh.actionRules[s] {
		if prev.Action != r.Action {
			continue
		}
		if prev.VarID != r.VarID || prev.ListID != r.ListID {
			continue
		}
		if prev.GroupTypeID != r.GroupTypeID {
			continue
		}
		if prev.DestCond != r.DestCond || prev.DestState != r.DestState {
			continue
		}
		prev.hiddenBy = r
	}
}

// prepare validates the rule vectors after program load.
func (nh *NaturalHistory) prepare(e *Engine) {
	// Start's default successor: first interior state if any exist, unless
	// the program named one itself.
	if !nh.startDefaultSet {
		if nh.n > 2 {
			nh.DefaultNextState[0] = 1
		} else {
			nh.DefaultNextState[0] = nh.cond.States.Excluded()
		}
	}

	// Every interior state needs an unconditional wait rule.
	for s := 1; s < nh.n-1; s++ {
		unconditional := false
		for _, r := range nh.waitRules[s] {
			if r.Clause == nil {
				unconditional = true
				break
			}
		}
		if !unconditional {
			e.warnf("condition %s state %s has no unconditional wait rule; state will self-transition with zero wait",
				nh.cond.Name, nh.cond.States.Name(s))
		}
	}
}

func (nh *NaturalHistory) closesGroup(state, typeID int) bool {
	if state < 0 || state >= nh.n || typeID >= len(nh.closeGroups[state]) {
		return false
	}
	return nh.closeGroups[state][typeID]
}

func (nh *NaturalHistory) absentFromGroup(state, typeID int) bool {
	if state < 0 || state >= nh.n || typeID >= len(nh.absentGroups[state]) {
		return false
	}
	return nh.absentGroups[state][typeID]
}

func (nh *NaturalHistory) actionRulesFor(state int) []*Rule { return nh.actionRules[state] }

// getNextState selects the successor of state for p. Per-successor weights
// take the maximum applying next-rule value; the residual mass goes to the
// default next state.
func (nh *NaturalHistory) getNextState(e *Engine, p *Person, state int) int {
	probs := make([]float64, nh.n)
	total := 0.0
	for next := 0; next < nh.n; next++ {
		maxVal := 0.0
		for _, r := range nh.nextRules[state][next] {
			if !r.Applies(e, p) {
				continue
			}
			if v := r.Value(e, p); v > maxVal {
				maxVal = v
			}
		}
		if maxVal < probEpsilon {
			maxVal = 0
		}
		probs[next] = maxVal
		total += maxVal
	}

	if total >= 1-1e-9 {
		for next := range probs {
			probs[next] /= total
		}
	} else {
		probs[nh.DefaultNextState[state]] += 1 - total
	}

	// Deterministic transition short-circuits the draw.
	for next, pr := range probs {
		if pr == 1.0 {
			return next
		}
	}

	r := e.rng.Uniform()
	sum := 0.0
	for next, pr := range probs {
		sum += pr
		if r < sum {
			return next
		}
	}
	return nh.DefaultNextState[state]
}

// getNextTransitionStep returns the step of the next scheduled transition
// out of state, entered at (day, hour). Start transitions immediately;
// Excluded never transitions. Wait rules are scanned in declaration order
// and the first whose guard applies wins.
func (nh *NaturalHistory) getNextTransitionStep(e *Engine, p *Person, state, day, hour int) int {
	step := clock.Step(day, hour)
	if state == 0 {
		return step
	}
	if state == nh.n-1 {
		return -1
	}

	for _, r := range nh.waitRules[state] {
		if !r.Applies(e, p) {
			continue
		}
		switch {
		case r.Action == ActWait && r.Expr != nil:
			return step + int(math.Round(r.Expr.Value(e, p, nil)))
		case r.Action == ActWait:
			return -1 // absorbing wait()
		case r.WaitUntil != nil:
			return nh.waitUntilStep(e, r.WaitUntil, day, hour)
		}
	}

	// No wait rule matched: zero-duration self transition, bounded by the
	// instant-transition loop cap.
	return step
}

func (nh *NaturalHistory) waitUntilStep(e *Engine, w *waitUntilSpec, day, hour int) int {
	step := clock.Step(day, hour)
	target := step
	switch {
	case w.Days >= 0:
		target = clock.Step(day+w.Days, w.Hour)
	case w.Weekday >= 0:
		days := w.Weekday - e.cal.DayOfWeek(day)
		if days < 0 {
			days += 7
		} else if days == 0 && w.Hour < hour {
			days += 7
		}
		target = clock.Step(day+days, w.Hour)
	case w.Date != "":
		target = step + e.cal.HoursUntil(day, hour, w.Date, w.Hour)
	}
	if target < step {
		return step
	}
	return target
}

// summary is used in finish reports.
func (nh *NaturalHistory) summary() string {
	return fmt.Sprintf("%s: %d states", nh.cond.Name, nh.n)
}
