package epi

import "math"

// spreadProximity runs one hour of proximity transmission for a condition.
// Only group types whose open block starts this hour transmit, and the block
// duration scales the expected contact volume.
func (e *Engine) spreadProximity(c *Condition) {
	wd := e.cal.DayOfWeek(e.day)

	// Collect groups hosting transmissible visitors, in first-seen order
	// so that draws stay reproducible.
	var active []*Group
	infectors := map[*Group][]*Person{}
	blocks := map[*Group]int{}

	// Snapshot: exposures later this hour must not disturb the scan.
	transmissible := append([]*Person(nil), c.Epi.transmissible.people...)
	for _, p := range transmissible {
		if p.Traveling {
			continue
		}
		for _, t := range e.groupTypes {
			if t.Kind != KindPlace || !t.CanTransmit[c.ID] {
				continue
			}
			block := t.TimeBlock(wd, e.hour)
			if block == 0 {
				continue
			}
			g := p.GroupOfType(t.ID)
			if g == nil || g.isClosed() || !p.isPresent(e, t.ID) {
				continue
			}
			if _, seen := infectors[g]; !seen {
				active = append(active, g)
				blocks[g] = block
			}
			infectors[g] = append(infectors[g], p)
		}
	}

	for _, g := range active {
		e.transmitInGroup(c, g, infectors[g], blocks[g])
	}
}

// transmitInGroup draws contacts for each infector, with replacement from the
// group roster, and exposes susceptible hosts.
//
// Each contact succeeds with trans(infector) * sus(host) * density_factor.
// Under density transmission the factor is the raw per-contact probability;
// under frequency transmission it is rescaled by the reference group size so
// that the per-person risk is independent of group size.
func (e *Engine) transmitInGroup(c *Condition, g *Group, infectors []*Person, block int) {
	t := g.Type
	n := g.Size()
	if n < 2 {
		return
	}
	g.recordTransmissibleDay(e.day)

	densityFactor := t.DensityContactProb[c.ID]
	if !t.DensityTransmission[c.ID] {
		ref := float64(e.cfg.FrequencyReferenceSize)
		if ref <= 0 {
			ref = 1
		}
		densityFactor *= ref / math.Max(1, float64(n-1))
	}
	if densityFactor <= 0 {
		return
	}

	perBlock := t.ContactCount[c.ID]
	if perBlock <= 0 {
		perBlock = t.ContactRate[c.ID]
	}

	for _, inf := range infectors {
		mean := perBlock * g.contactFactor() * float64(block) / 24.0
		var contacts int
		if t.Deterministic[c.ID] {
			contacts = int(math.Round(mean))
		} else {
			contacts = e.rng.Poisson(mean)
		}
		if contacts <= 0 {
			continue
		}
		destCond := c.NH.ConditionToTransmit[inf.State(c.ID)]
		if e.conditions[destCond].ExposedState < 0 {
			continue
		}
		for i := 0; i < contacts; i++ {
			host := g.Members[e.rng.Int(0, n-1)]
			if host == inf || host.IsMeta() || host.Traveling {
				continue
			}
			if bias := t.SameAgeBias; bias > 0 {
				diff := math.Abs(host.RealAge(e.day) - inf.RealAge(e.day))
				if e.rng.Uniform() > math.Exp(-bias*diff) {
					continue
				}
			}
			if !host.isPresent(e, t.ID) || !host.IsSusceptible(destCond) {
				continue
			}
			prob := c.Transmissibility * inf.Transmissibility(c.ID) *
				host.Susceptibility(destCond) * densityFactor
			if prob > 0 && e.rng.Uniform() < prob {
				e.expose(host, inf, g, destCond)
			}
		}
	}
}
