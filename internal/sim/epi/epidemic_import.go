package epi

import "math"

// importSpec is the resolved parameter set for one import pulse: how many
// cases to seed and which people are eligible.
type importSpec struct {
	count      float64
	perCapita  float64
	lat, lon   float64
	radius     float64
	adminCode  int64
	minAge     float64
	maxAge     float64
	listVals   []float64
	countAll   bool
	restricted bool
}

// processImports runs when the import agent enters a state of a condition,
// seeding new cases into the population.
func (e *Engine) processImports(c *Condition, state int) {
	spec := e.resolveImportSpec(c, state)

	if spec.listVals != nil {
		attempts, successes := 0, 0
		for _, v := range spec.listVals {
			p := e.personByNumericID(v)
			attempts++
			if p != nil && p.IsSusceptible(c.ID) {
				e.expose(p, e.importAgent, nil, c.ID)
				successes++
			}
		}
		e.countImportAttempts(c, spec, attempts, successes)
		return
	}

	if spec.count <= 0 && spec.perCapita <= 0 {
		return
	}

	var candidates []*Person
	susceptibles := c.Epi.susceptible.size()
	if spec.restricted {
		candidates = e.eligibleImportTargets(c, spec)
		susceptibles = len(candidates)
	}

	target := spec.count
	if spec.perCapita > 0 {
		target = spec.perCapita * float64(susceptibles)
	}
	n := int(target)
	if frac := target - float64(n); frac > 0 && e.rng.Uniform() < frac {
		n++
	}
	if n <= 0 {
		return
	}

	var attempts, successes int
	if spec.restricted {
		attempts, successes = e.importFromCandidates(c, candidates, n)
	} else {
		attempts, successes = e.importFromSusceptibles(c, n)
	}
	e.countImportAttempts(c, spec, attempts, successes)
}

func (e *Engine) resolveImportSpec(c *Condition, state int) importSpec {
	nh := c.NH
	imp := e.importAgent
	spec := importSpec{
		count:     float64(nh.ImportCount[state]),
		perCapita: nh.ImportPerCapita[state],
		lat:       nh.ImportLat[state],
		lon:       nh.ImportLon[state],
		radius:    nh.ImportRadius[state],
		adminCode: nh.ImportAdminCode[state],
		minAge:    nh.ImportMinAge[state],
		maxAge:    nh.ImportMaxAge[state],
		countAll:  nh.CountAllImportAttempts[state],
	}
	if r := nh.importCountRule[state]; r != nil && r.Applies(e, imp) {
		spec.count = r.Value(e, imp)
	}
	if r := nh.importPerCapitaRule[state]; r != nil && r.Applies(e, imp) {
		spec.perCapita = r.Value(e, imp)
	}
	if r := nh.importLocationRule[state]; r != nil && r.Applies(e, imp) {
		spec.lat = r.Expr.Value(e, imp, nil)
		spec.lon = r.Expr2.Value(e, imp, nil)
		spec.radius = r.Expr3.Value(e, imp, nil)
	}
	if r := nh.importAdminCodeRule[state]; r != nil && r.Applies(e, imp) {
		spec.adminCode = int64(r.Value(e, imp))
	}
	if r := nh.importAgesRule[state]; r != nil && r.Applies(e, imp) {
		spec.minAge = r.Expr.Value(e, imp, nil)
		spec.maxAge = r.Expr2.Value(e, imp, nil)
	}
	if r := nh.importListRule[state]; r != nil && r.Applies(e, imp) && r.Expr.listFn != nil {
		spec.listVals = r.Expr.ListValue(e, imp, nil)
	}
	spec.restricted = spec.radius > 0 || spec.adminCode > 0 ||
		spec.minAge > 0 || spec.maxAge < 999
	return spec
}

// importFromSusceptibles seeds up to n cases drawn uniformly from the
// susceptible roster, by rejection sampling against repeats. Each draw is a
// challenge that succeeds with probability equal to the person's current
// susceptibility.
func (e *Engine) importFromSusceptibles(c *Condition, n int) (attempts, successes int) {
	ep := c.Epi
	if ep.susceptible.size() <= n {
		// Challenge everyone still susceptible.
		people := append([]*Person(nil), ep.susceptible.people...)
		for _, p := range people {
			attempts++
			if e.challengeImport(c, p) {
				successes++
			}
		}
		return attempts, successes
	}

	chosen := map[*Person]bool{}
	maxAttempts := 20 * n
	for successes < n && attempts < maxAttempts && ep.susceptible.size() > 0 {
		attempts++
		p := ep.susceptible.get(e.rng.Int(0, ep.susceptible.size()-1))
		if chosen[p] {
			continue
		}
		chosen[p] = true
		if e.challengeImport(c, p) {
			successes++
		}
	}
	return attempts, successes
}

// challengeImport exposes p with probability equal to their susceptibility.
func (e *Engine) challengeImport(c *Condition, p *Person) bool {
	if s := p.Susceptibility(c.ID); s < 1.0 && e.rng.Uniform() >= s {
		return false
	}
	e.expose(p, e.importAgent, nil, c.ID)
	return true
}

// eligibleImportTargets enumerates households and filters members by the
// spec's admin code, radius and age bounds.
func (e *Engine) eligibleImportTargets(c *Condition, spec importSpec) []*Person {
	var out []*Person
	hhType := e.groupTypes[TypeHousehold]
	for _, hh := range hhType.Groups {
		if !e.householdEligible(hh, spec) {
			continue
		}
		for _, p := range hh.Members {
			if !p.IsSusceptible(c.ID) {
				continue
			}
			age := p.RealAge(e.day)
			if age < spec.minAge || age > spec.maxAge {
				continue
			}
			out = append(out, p)
		}
	}
	return out
}

func (e *Engine) householdEligible(hh *Group, spec importSpec) bool {
	pi := hh.Place
	if pi == nil {
		return false
	}
	if spec.adminCode > 0 && !adminMatches(pi, spec.adminCode) {
		return false
	}
	if spec.radius > 0 && haversineKM(spec.lat, spec.lon, pi.Lat, pi.Lon) > spec.radius {
		return false
	}
	return true
}

func adminMatches(pi *PlaceInfo, code int64) bool {
	return pi.StateAdmin == code || pi.County == code ||
		pi.CensusTract == code || pi.BlockGroup == code
}

func (e *Engine) importFromCandidates(c *Condition, candidates []*Person, n int) (attempts, successes int) {
	if len(candidates) <= n {
		for _, p := range candidates {
			attempts++
			if e.challengeImport(c, p) {
				successes++
			}
		}
		return attempts, successes
	}
	e.rng.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})
	for _, p := range candidates {
		if successes >= n {
			break
		}
		attempts++
		if e.challengeImport(c, p) {
			successes++
		}
	}
	return attempts, successes
}

func (e *Engine) countImportAttempts(c *Condition, spec importSpec, attempts, successes int) {
	if spec.countAll {
		c.Epi.ImportAttempts += attempts
	} else {
		c.Epi.ImportAttempts += successes
	}
}

const earthRadiusKM = 6371.0

func haversineKM(lat1, lon1, lat2, lon2 float64) float64 {
	const rad = math.Pi / 180
	dLat := (lat2 - lat1) * rad
	dLon := (lon2 - lon1) * rad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKM * math.Asin(math.Sqrt(a))
}
