package epi

import "episim.ai/internal/sim/clock"

// updateState commits one state transition of p for a condition and chains
// through any instant follow-up transitions. forced >= 0 selects the target
// state directly (set_state, exposure, initialization into Start); otherwise
// the successor comes from the next rules.
//
// The ordering inside the loop is load-bearing: cancel the pending event,
// commit the state and counters, apply per-state effects, run action rules,
// then schedule the next transition.
func (e *Engine) updateState(p *Person, condID, forced int) {
	c := e.conditions[condID]
	nh := c.NH
	ep := c.Epi
	day, hour := e.day, e.hour
	step := clock.Step(day, hour)

	loops := 0
	for {
		old := p.State(condID)
		next := forced
		forced = -1
		if next < 0 {
			next = nh.getNextState(e, p, old)
		}

		if pending := p.NextTransitionStep(condID); pending >= 0 {
			ep.queueFor(p).Delete(pending, p)
			p.setNextTransitionStep(condID, -1)
		}

		p.setState(condID, next, step)
		ep.countStateEntry(p, old, next)

		if p == e.importAgent {
			e.processImports(c, next)
		} else if !p.IsMeta() {
			if s := nh.Susceptibility[next]; s >= 0 {
				p.setSusceptibility(condID, s)
			}
			if tr := nh.Transmissibility[next]; tr >= 0 {
				p.setTransmissibility(condID, tr)
			}

			// Entering the exposed state by rule rather than by
			// transmission still counts as a case, once.
			if next == c.ExposedState && p.ExposureDay(condID) < 0 {
				ep.becomeExposed(e, p, nil, nil, day)
			}

			if old >= 0 && nh.IsDormant[next] != nh.IsDormant[old] {
				e.updateActivities(p, day)
			}
			if nh.IsFatal[next] && !p.IsCaseFatal(condID) {
				p.status[condID].caseFatal = true
				ep.countFatality()
				e.scheduleDeath(p)
			}
			if nh.StartHosting[next] {
				if h := p.Household(); h != nil {
					h.Host = p
				}
			}

			e.runActionRules(p, c, next)

			// An action rule may have moved us again; the inner call
			// owns the rest of the transition chain.
			if p.State(condID) != next {
				return
			}

			ep.updateSusceptible(p)
			ep.updateTransmissible(e, p)
		}

		nextStep := nh.getNextTransitionStep(e, p, next, day, hour)
		if nextStep < 0 {
			return
		}
		if nextStep > step {
			ep.queueFor(p).Add(nextStep, p)
			p.setNextTransitionStep(condID, nextStep)
			return
		}

		loops++
		if loops >= e.maxLoops {
			e.warnf("condition %s: instant transition loop capped at %d in state %s",
				c.Name, e.maxLoops, c.States.Name(next))
			return
		}
	}
}

// expose infects host with a condition, attributing the case to source and
// the group where transmission occurred. No-op when the host is no longer
// susceptible or the condition has no exposed state.
func (e *Engine) expose(host, source *Person, g *Group, condID int) {
	c := e.conditions[condID]
	state := c.ExposedState
	if source == e.importAgent {
		state = c.ImportStartState
	}
	if state < 0 || !host.IsSusceptible(condID) {
		return
	}
	c.Epi.becomeExposed(e, host, source, g, e.day)

	// A declared transmission network records the infection tree as edges.
	if c.NetworkTypeID >= 0 && source != nil && !source.IsMeta() {
		e.addEdge(source, host, c.NetworkTypeID)
	}
	if c.PlaceTypeToTransmit >= 0 {
		e.attachTransmissionPlace(host, source, c)
	}

	e.updateState(host, condID, state)
}

// attachTransmissionPlace puts the new case in the source's place of the
// condition's transmission place type, or a fresh place when the source is
// the import agent or the place is at capacity.
func (e *Engine) attachTransmissionPlace(host, source *Person, c *Condition) {
	t := e.groupTypes[c.PlaceTypeToTransmit]
	var g *Group
	if source != nil && !source.IsMeta() {
		g = source.GroupOfType(t.ID)
		if g != nil && g.Place != nil && g.Place.MaxCapacity > 0 && g.Size() >= g.Place.MaxCapacity {
			g = nil
		}
	}
	if g == nil {
		g = e.newGroup(t, "")
	}
	e.joinGroup(host, g)
}
