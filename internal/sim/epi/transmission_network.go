package epi

// spreadNetwork runs one hour of network transmission for a condition: each
// transmissible person challenges its outward neighbors, with the per-edge
// probability scaled by the edge weight. The network type must allow the
// condition, and the round runs once per scheduled block, at its start hour,
// the same convention proximity transmission uses.
func (e *Engine) spreadNetwork(c *Condition) {
	typeID := c.NetworkTypeID
	if typeID < 0 {
		return
	}
	t := e.groupTypes[typeID]
	if !t.CanTransmit[c.ID] || t.TimeBlock(e.cal.DayOfWeek(e.day), e.hour) == 0 {
		return
	}
	net := e.networkGroup(typeID)
	if net.isClosed() {
		return
	}

	transmissible := append([]*Person(nil), c.Epi.transmissible.people...)
	for _, inf := range transmissible {
		if inf.Traveling {
			continue
		}
		l := inf.linkFor(typeID)
		if len(l.Outward) == 0 {
			continue
		}
		destCond := c.NH.ConditionToTransmit[inf.State(c.ID)]
		if e.conditions[destCond].ExposedState < 0 {
			continue
		}
		prob := c.Transmissibility * inf.Transmissibility(c.ID)
		// Snapshot the edges: exposure can fire rules that rewire them.
		hosts := append([]*Person(nil), l.Outward...)
		weights := append([]float64(nil), l.OutWeight...)
		for i, host := range hosts {
			if host.Traveling || !host.IsSusceptible(destCond) {
				continue
			}
			p := prob * weights[i] * host.Susceptibility(destCond)
			if p > 0 && e.rng.Uniform() < p {
				e.expose(host, inf, e.networkGroup(typeID), destCond)
			}
		}
	}
}

// networkGroup returns the single shared group of a network type, creating
// it on first use.
func (e *Engine) networkGroup(typeID int) *Group {
	t := e.groupTypes[typeID]
	if len(t.Groups) > 0 {
		return t.Groups[0]
	}
	g := e.newGroup(t, t.Name)
	return g
}

// randomizeNetwork rewires a network to an Erdos-Renyi draw over the current
// population with the given mean out-degree.
func (e *Engine) randomizeNetwork(typeID int, meanDegree float64) {
	g := e.networkGroup(typeID)
	if g.Size() == 0 {
		for _, p := range e.people {
			e.joinGroup(p, g)
		}
	}
	n := g.Size()
	if n < 2 {
		return
	}

	for _, p := range g.Members {
		l := p.linkFor(typeID)
		l.Outward, l.OutWeight, l.OutStamp = nil, nil, nil
		l.Inward, l.InWeight, l.InStamp = nil, nil, nil
	}

	t := e.groupTypes[typeID]
	for _, p := range g.Members {
		k := e.rng.Poisson(meanDegree)
		if t.MaxDegree > 0 && k > t.MaxDegree {
			k = t.MaxDegree
		}
		for j := 0; j < k; j++ {
			other := g.Members[e.rng.Int(0, n-1)]
			if other != p {
				e.addEdge(p, other, typeID)
			}
		}
	}
}
