package epi

import (
	"fmt"
	"sort"
	"strings"

	"episim.ai/internal/sim/clock"
)

// The factor catalogue. Every bare identifier in an expression is resolved
// here, once, at compile time. Unrecognized factors fail the compile and the
// containing rule is marked as a warning.

// resolveConditionState parses a "C.S" reference.
func (e *Engine) resolveConditionState(ref string) (cond, state int, err error) {
	i := strings.IndexByte(ref, '.')
	if i < 0 {
		return 0, 0, fmt.Errorf("expected C.S reference, got %q", ref)
	}
	cname, sname := ref[:i], ref[i+1:]
	c, ok := e.conditionByName[cname]
	if !ok {
		return 0, 0, fmt.Errorf("unknown condition %q", cname)
	}
	s := e.conditions[c].States.Index(sname)
	if s < 0 {
		return 0, 0, fmt.Errorf("unknown state %q in condition %s", sname, cname)
	}
	return c, s, nil
}

func (e *Engine) resolveCondition(name string) (int, bool) {
	c, ok := e.conditionByName[name]
	return c, ok
}

func (e *Engine) resolveGroupType(name string) (int, bool) {
	t, ok := e.groupTypeByName[name]
	return t, ok
}

// listVarFn returns a list accessor when text names a list variable.
func (e *Engine) listVarFn(text string) func(*Engine, *Person, *Person) []float64 {
	if id := e.vars.personalListID(text, false); id >= 0 {
		return func(_ *Engine, p, _ *Person) []float64 { return p.getList(id) }
	}
	if id := e.vars.globalListID(text, false); id >= 0 {
		return func(e *Engine, _, _ *Person) []float64 { return e.vars.getGlobalList(id) }
	}
	return nil
}

func (e *Engine) resolveFactor(name string) (evalFn, error) {
	// Time and date.
	switch name {
	case "sim_day":
		return func(e *Engine, _, _ *Person) float64 { return float64(e.day) }, nil
	case "sim_week":
		return func(e *Engine, _, _ *Person) float64 { return float64(e.day / 7) }, nil
	case "epi_week":
		return func(e *Engine, _, _ *Person) float64 { return float64(e.cal.EpiWeek(e.day)) }, nil
	case "day_of_week":
		return func(e *Engine, _, _ *Person) float64 { return float64(e.cal.DayOfWeek(e.day)) }, nil
	case "hour":
		return func(e *Engine, _, _ *Person) float64 { return float64(e.hour) }, nil
	case "year":
		return func(e *Engine, _, _ *Person) float64 { return float64(e.cal.Year(e.day)) }, nil
	case "month":
		return func(e *Engine, _, _ *Person) float64 { return float64(e.cal.Month(e.day)) }, nil
	case "date":
		// MMDD form, e.g. 801 for August 1.
		return func(e *Engine, _, _ *Person) float64 {
			return float64(e.cal.Month(e.day)*100 + e.cal.DayOfMonth(e.day))
		}, nil
	}

	// Randomness.
	switch name {
	case "uniform":
		return func(e *Engine, _, _ *Person) float64 { return e.rng.Uniform() }, nil
	case "normal":
		return func(e *Engine, _, _ *Person) float64 { return e.rng.Normal(0, 1) }, nil
	case "exponential":
		return func(e *Engine, _, _ *Person) float64 { return e.rng.Exponential(1) }, nil
	}

	// Demographics.
	switch name {
	case "id":
		return func(_ *Engine, p, _ *Person) float64 { return float64(p.ID) }, nil
	case "birth_year":
		return func(e *Engine, p, _ *Person) float64 { return float64(e.cal.Year(p.BirthSimDay)) }, nil
	case "age":
		return func(e *Engine, p, _ *Person) float64 { return float64(p.Age(e.day)) }, nil
	case "age_in_days":
		return func(e *Engine, p, _ *Person) float64 { return float64(e.day - p.BirthSimDay) }, nil
	case "age_in_weeks":
		return func(e *Engine, p, _ *Person) float64 { return float64(e.day-p.BirthSimDay) / 7 }, nil
	case "age_in_months":
		return func(e *Engine, p, _ *Person) float64 { return p.RealAge(e.day) * 12 }, nil
	case "age_in_years":
		return func(e *Engine, p, _ *Person) float64 { return p.RealAge(e.day) }, nil
	case "sex":
		return func(_ *Engine, p, _ *Person) float64 {
			if p.Sex == 'M' {
				return 1
			}
			return 0
		}, nil
	case "race":
		return func(_ *Engine, p, _ *Person) float64 { return float64(p.Race) }, nil
	case "profile":
		return func(_ *Engine, p, _ *Person) float64 { return float64(p.Profile) }, nil
	case "household_relationship":
		return func(_ *Engine, p, _ *Person) float64 { return float64(p.HouseholdRelationship) }, nil
	case "number_of_children":
		return func(_ *Engine, p, _ *Person) float64 { return float64(p.NumberOfChildren) }, nil
	}

	// Condition status factors.
	if rest, ok := cutPrefix(name, "current_state_in_"); ok {
		if c, ok := e.resolveCondition(rest); ok {
			return func(_ *Engine, p, _ *Person) float64 { return float64(p.State(c)) }, nil
		}
		return nil, fmt.Errorf("unknown condition in factor %q", name)
	}
	if rest, ok := cutPrefix(name, "time_since_entering_"); ok {
		c, s, err := e.resolveConditionState(rest)
		if err != nil {
			return nil, fmt.Errorf("factor %q: %w", name, err)
		}
		return func(e *Engine, p, _ *Person) float64 {
			entered := p.FirstEntryStep(c, s)
			if entered < 0 {
				return -1
			}
			return float64(clock.Step(e.day, e.hour) - entered)
		}, nil
	}
	if rest, ok := cutPrefix(name, "susceptibility_to_"); ok {
		if c, ok := e.resolveCondition(rest); ok {
			return func(_ *Engine, p, _ *Person) float64 { return p.Susceptibility(c) }, nil
		}
		return nil, fmt.Errorf("unknown condition in factor %q", name)
	}
	if rest, ok := cutPrefix(name, "transmissibility_of_"); ok {
		if c, ok := e.resolveCondition(rest); ok {
			return func(_ *Engine, p, _ *Person) float64 { return p.Transmissibility(c) }, nil
		}
		return nil, fmt.Errorf("unknown condition in factor %q", name)
	}
	if rest, ok := cutPrefix(name, "transmissions_of_"); ok {
		if c, ok := e.resolveCondition(rest); ok {
			return func(_ *Engine, p, _ *Person) float64 { return float64(p.NumberOfHosts(c)) }, nil
		}
		return nil, fmt.Errorf("unknown condition in factor %q", name)
	}
	if rest, ok := cutPrefix(name, "id_of_source_of_"); ok {
		if c, ok := e.resolveCondition(rest); ok {
			return func(_ *Engine, p, _ *Person) float64 {
				if src := p.ExposureSource(c); src != nil {
					return float64(src.ID)
				}
				return -1
			}, nil
		}
		return nil, fmt.Errorf("unknown condition in factor %q", name)
	}

	// Cross-agent state counts.
	if fn, ok, err := e.resolveCountFactor(name); ok {
		return fn, err
	}

	// Network metrics and edge lookups.
	if fn, ok, err := e.resolveNetworkFactor(name); ok {
		return fn, err
	}

	// Group membership factors.
	if fn, ok, err := e.resolveGroupFactor(name); ok {
		return fn, err
	}

	// Variables.
	if id := e.vars.personalID(name, false); id >= 0 {
		return func(_ *Engine, p, _ *Person) float64 { return p.getVar(id) }, nil
	}
	if id := e.vars.globalID(name, false); id >= 0 {
		return func(e *Engine, _, _ *Person) float64 { return e.vars.getGlobal(id) }, nil
	}
	if rest, ok := cutPrefix(name, "size_of_"); ok {
		if id := e.vars.personalListID(rest, false); id >= 0 {
			return func(_ *Engine, p, _ *Person) float64 { return float64(len(p.getList(id))) }, nil
		}
		if id := e.vars.globalListID(rest, false); id >= 0 {
			return func(e *Engine, _, _ *Person) float64 {
				return float64(len(e.vars.getGlobalList(id)))
			}, nil
		}
	}

	return nil, fmt.Errorf("unrecognized factor %q", name)
}

// resolveGroupFactor handles group_id_of_GT, admin_of_GT, size_of_PT and the
// geographic/economic attributes of the person's current place of a type.
func (e *Engine) resolveGroupFactor(name string) (evalFn, bool, error) {
	type attr struct {
		prefix string
		get    func(e *Engine, g *Group) float64
	}
	attrs := []attr{
		{"group_id_of_", func(_ *Engine, g *Group) float64 { return float64(g.ID) }},
		{"size_of_", func(_ *Engine, g *Group) float64 { return float64(g.Size()) }},
		{"income_of_", func(_ *Engine, g *Group) float64 { return g.Income }},
		{"elevation_of_", func(_ *Engine, g *Group) float64 { return placeAttr(g, func(pi *PlaceInfo) float64 { return pi.Elevation }) }},
		{"latitude_of_", func(_ *Engine, g *Group) float64 { return placeAttr(g, func(pi *PlaceInfo) float64 { return pi.Lat }) }},
		{"longitude_of_", func(_ *Engine, g *Group) float64 { return placeAttr(g, func(pi *PlaceInfo) float64 { return pi.Lon }) }},
		{"adi_state_rank_of_", func(_ *Engine, g *Group) float64 { return placeAttr(g, func(pi *PlaceInfo) float64 { return pi.ADIStateRank }) }},
		{"adi_national_rank_of_", func(_ *Engine, g *Group) float64 { return placeAttr(g, func(pi *PlaceInfo) float64 { return pi.ADINationalRank }) }},
		{"block_group_of_", func(_ *Engine, g *Group) float64 { return placeAttr(g, func(pi *PlaceInfo) float64 { return float64(pi.BlockGroup) }) }},
		{"census_tract_of_", func(_ *Engine, g *Group) float64 { return placeAttr(g, func(pi *PlaceInfo) float64 { return float64(pi.CensusTract) }) }},
		{"county_of_", func(_ *Engine, g *Group) float64 { return placeAttr(g, func(pi *PlaceInfo) float64 { return float64(pi.County) }) }},
		{"state_of_", func(_ *Engine, g *Group) float64 { return placeAttr(g, func(pi *PlaceInfo) float64 { return float64(pi.StateAdmin) }) }},
		{"income_quartile_of_", func(e *Engine, g *Group) float64 { return float64(e.groupQuantile(g, "income", 4)) }},
		{"income_quintile_of_", func(e *Engine, g *Group) float64 { return float64(e.groupQuantile(g, "income", 5)) }},
		{"size_quartile_of_", func(e *Engine, g *Group) float64 { return float64(e.groupQuantile(g, "size", 4)) }},
		{"size_quintile_of_", func(e *Engine, g *Group) float64 { return float64(e.groupQuantile(g, "size", 5)) }},
	}

	if rest, ok := cutPrefix(name, "admin_of_"); ok {
		if t, ok := e.resolveGroupType(rest); ok {
			return func(_ *Engine, p, _ *Person) float64 {
				g := p.GroupOfType(t)
				return boolTo(g != nil && g.Admin == p)
			}, true, nil
		}
		return nil, true, fmt.Errorf("unknown group type in factor %q", name)
	}

	for _, a := range attrs {
		rest, ok := cutPrefix(name, a.prefix)
		if !ok {
			continue
		}
		t, ok := e.resolveGroupType(rest)
		if !ok {
			// size_of_<list> is handled by the variable resolver.
			if a.prefix == "size_of_" {
				return nil, false, nil
			}
			return nil, true, fmt.Errorf("unknown group type in factor %q", name)
		}
		get := a.get
		return func(e *Engine, p, _ *Person) float64 {
			g := p.GroupOfType(t)
			if g == nil {
				return -1
			}
			return get(e, g)
		}, true, nil
	}
	return nil, false, nil
}

func placeAttr(g *Group, get func(*PlaceInfo) float64) float64 {
	if g.Place == nil {
		return -1
	}
	return get(g.Place)
}

// groupQuantile ranks a group among all groups of its type by income or
// snapshot size, returning the 1-based quantile bucket.
func (e *Engine) groupQuantile(g *Group, by string, buckets int) int {
	t := g.Type
	vals := make([]float64, 0, len(t.Groups))
	var mine float64
	for _, other := range t.Groups {
		v := other.Income
		if by == "size" {
			v = float64(len(other.Members))
		}
		vals = append(vals, v)
		if other == g {
			mine = v
		}
	}
	if len(vals) == 0 {
		return 1
	}
	sort.Float64s(vals)
	rank := sort.SearchFloat64s(vals, mine)
	q := rank * buckets / len(vals)
	if q >= buckets {
		q = buckets - 1
	}
	return q + 1
}

// resolveNetworkFactor handles degree factors and edge lookups.
func (e *Engine) resolveNetworkFactor(name string) (evalFn, bool, error) {
	netType := func(rest string) (int, error) {
		t, ok := e.resolveGroupType(rest)
		if !ok || e.groupTypes[t].Kind != KindNetwork {
			return -1, fmt.Errorf("unknown network type in factor %q", name)
		}
		return t, nil
	}
	if rest, ok := cutPrefix(name, "out_degree_of_"); ok {
		t, err := netType(rest)
		if err != nil {
			return nil, true, err
		}
		return func(_ *Engine, p, _ *Person) float64 {
			return float64(len(p.linkFor(t).Outward))
		}, true, nil
	}
	if rest, ok := cutPrefix(name, "in_degree_of_"); ok {
		t, err := netType(rest)
		if err != nil {
			return nil, true, err
		}
		return func(_ *Engine, p, _ *Person) float64 {
			return float64(len(p.linkFor(t).Inward))
		}, true, nil
	}
	if rest, ok := cutPrefix(name, "degree_of_"); ok {
		t, err := netType(rest)
		if err != nil {
			return nil, true, err
		}
		return func(_ *Engine, p, _ *Person) float64 {
			l := p.linkFor(t)
			return float64(len(l.Outward) + len(l.Inward))
		}, true, nil
	}
	edge := func(rest string, pick func(l *Link) *Person) (evalFn, bool, error) {
		t, err := netType(rest)
		if err != nil {
			return nil, true, err
		}
		return func(_ *Engine, p, _ *Person) float64 {
			if q := pick(p.linkFor(t)); q != nil {
				return float64(q.ID)
			}
			return -1
		}, true, nil
	}
	if rest, ok := cutPrefix(name, "id_of_max_weight_edge_in_"); ok {
		return edge(rest, func(l *Link) *Person {
			var best *Person
			bestW := 0.0
			for i, q := range l.Outward {
				if best == nil || l.OutWeight[i] > bestW {
					best, bestW = q, l.OutWeight[i]
				}
			}
			return best
		})
	}
	if rest, ok := cutPrefix(name, "id_of_min_weight_edge_in_"); ok {
		return edge(rest, func(l *Link) *Person {
			var best *Person
			bestW := 0.0
			for i, q := range l.Outward {
				if best == nil || l.OutWeight[i] < bestW {
					best, bestW = q, l.OutWeight[i]
				}
			}
			return best
		})
	}
	if rest, ok := cutPrefix(name, "id_of_last_edge_in_"); ok {
		return edge(rest, func(l *Link) *Person {
			var best *Person
			bestT := -1
			for i, q := range l.Outward {
				if l.OutStamp[i] >= bestT {
					best, bestT = q, l.OutStamp[i]
				}
			}
			return best
		})
	}
	return nil, false, nil
}

// resolveCountFactor handles
// {incidence,current,total}_{count,percent}_of_C.S[_in_GT][_excluding_me].
func (e *Engine) resolveCountFactor(name string) (evalFn, bool, error) {
	var kind string
	var rest string
	for _, k := range []string{"incidence", "current", "total"} {
		if r, ok := cutPrefix(name, k+"_count_of_"); ok {
			kind, rest = k+"_count", r
			break
		}
		if r, ok := cutPrefix(name, k+"_percent_of_"); ok {
			kind, rest = k+"_percent", r
			break
		}
	}
	if kind == "" {
		return nil, false, nil
	}

	excludingMe := false
	if r, ok := cutSuffix(rest, "_excluding_me"); ok {
		excludingMe = true
		rest = r
	}

	groupType := -1
	if i := strings.LastIndex(rest, "_in_"); i >= 0 {
		if t, ok := e.resolveGroupType(rest[i+len("_in_"):]); ok {
			groupType = t
			rest = rest[:i]
		}
	}

	cond, state, err := e.resolveConditionState(rest)
	if err != nil {
		return nil, true, fmt.Errorf("factor %q: %w", name, err)
	}

	percent := strings.HasSuffix(kind, "percent")
	counter := strings.SplitN(kind, "_", 2)[0]

	return func(e *Engine, p, _ *Person) float64 {
		epi := e.conditions[cond].Epi
		var count, base float64
		if groupType < 0 {
			count = float64(epi.stateCount(counter, state))
			base = float64(len(e.people))
		} else {
			g := p.GroupOfType(groupType)
			if g == nil {
				return -1
			}
			count = float64(epi.groupStateCountOf(counter, state, g))
			base = float64(g.Size())
		}
		if excludingMe {
			if p.State(cond) == state {
				count--
			}
			base--
		}
		if !percent {
			return count
		}
		if base <= 0 {
			return 0
		}
		return 100 * count / base
	}, true, nil
}

func cutPrefix(s, prefix string) (string, bool) {
	if strings.HasPrefix(s, prefix) {
		return s[len(prefix):], true
	}
	return s, false
}

func cutSuffix(s, suffix string) (string, bool) {
	if strings.HasSuffix(s, suffix) {
		return s[:len(s)-len(suffix)], true
	}
	return s, false
}
