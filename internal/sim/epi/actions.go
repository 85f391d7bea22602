package epi

import (
	"math"

	"episim.ai/internal/sim/clock"
)

// runActionRules fires the action rules of a state, in declaration order,
// right after the person enters it.
func (e *Engine) runActionRules(p *Person, c *Condition, state int) {
	for _, r := range c.NH.actionRulesFor(state) {
		if !r.Applies(e, p) {
			continue
		}
		e.runAction(p, c, r)
	}
}

func (e *Engine) runAction(p *Person, c *Condition, r *Rule) {
	switch r.Action {
	case ActSus:
		p.setSusceptibility(c.ID, r.Value(e, p))
		c.Epi.updateSusceptible(p)

	case ActTrans:
		p.setTransmissibility(c.ID, r.Value(e, p))
		c.Epi.updateTransmissible(e, p)

	case ActDie, ActDieOld:
		e.scheduleDeath(p)

	case ActGiveBirth:
		e.scheduleBirth(p)

	case ActJoin:
		e.runJoin(p, r)

	case ActQuit:
		e.quitGroup(p, r.GroupTypeID)

	case ActAddEdgeTo, ActAddEdgeFrom, ActDeleteEdgeTo, ActDeleteEdgeFrom:
		e.runEdgeAction(p, r)

	case ActSetWeight:
		if other := e.personByNumericID(r.Value(e, p)); other != nil {
			e.setEdgeWeight(p, other, r.GroupTypeID, r.Expr2.Value(e, p, nil))
		}

	case ActSet:
		v := r.Value(e, p)
		if r.Global {
			e.vars.setGlobal(r.VarID, v)
		} else {
			p.setVar(r.VarID, v)
		}

	case ActSetList:
		e.runSetList(p, r)

	case ActSetState:
		e.updateState(p, r.DestCond, r.DestState)

	case ActReport:
		v := 1.0
		if r.Expr != nil {
			v = r.Value(e, p)
		}
		e.report(p, c, v)

	case ActSetContacts:
		t := e.groupTypes[r.GroupTypeID]
		t.sizeConditions(len(e.conditions))
		t.ContactRate[c.ID] = r.Value(e, p)

	case ActRandomizeNetwork:
		degree := float64(e.groupTypes[r.GroupTypeID].MeanDegree)
		if r.Expr != nil {
			degree = r.Value(e, p)
		}
		e.randomizeNetwork(r.GroupTypeID, degree)
	}
}

// runJoin places p in a group of the rule's type. With an id expression the
// target group is looked up by id; otherwise a network type joins its shared
// group and a place type rejoins the person's stored group.
func (e *Engine) runJoin(p *Person, r *Rule) {
	t := e.groupTypes[r.GroupTypeID]
	if r.Expr != nil {
		id := int(math.Round(r.Expr.Value(e, p, nil)))
		if g := e.groupByID[id]; g != nil && g.Type == t {
			e.joinGroup(p, g)
		} else {
			e.warnf("join: no group %d of type %s", id, t.Name)
		}
		return
	}
	if t.Kind == KindNetwork {
		e.joinGroup(p, e.networkGroup(r.GroupTypeID))
		return
	}
	if g := p.storedGroup(r.GroupTypeID); g != nil {
		e.joinGroup(p, g)
	}
}

func (e *Engine) runEdgeAction(p *Person, r *Rule) {
	other := e.personByNumericID(r.Value(e, p))
	if other == nil {
		return
	}
	t := r.GroupTypeID
	switch r.Action {
	case ActAddEdgeTo:
		e.addEdge(p, other, t)
	case ActAddEdgeFrom:
		e.addEdge(other, p, t)
	case ActDeleteEdgeTo:
		e.deleteEdge(p, other, t)
	case ActDeleteEdgeFrom:
		e.deleteEdge(other, p, t)
	}
}

func (e *Engine) runSetList(p *Person, r *Rule) {
	get := func() []float64 {
		if r.Global {
			return e.vars.getGlobalList(r.ListID)
		}
		return p.getList(r.ListID)
	}
	put := func(l []float64) {
		if r.Global {
			e.vars.setGlobalList(r.ListID, l)
		} else {
			p.setList(r.ListID, l)
		}
	}

	// One expression appends; two set an indexed element, growing the list
	// with zeros as needed.
	if r.Expr2 == nil {
		if r.Expr.listFn != nil {
			src := r.Expr.ListValue(e, p, nil)
			put(append(get(), src...))
			return
		}
		put(append(get(), r.Expr.Value(e, p, nil)))
		return
	}
	i := int(math.Round(r.Expr.Value(e, p, nil)))
	if i < 0 {
		return
	}
	l := get()
	for len(l) <= i {
		l = append(l, 0)
	}
	l[i] = r.Expr2.Value(e, p, nil)
	put(l)
}

func (e *Engine) personByNumericID(v float64) *Person {
	return e.personByID[int(math.Round(v))]
}

// addEdge creates or refreshes the directed edge from -> to, mirroring the
// inward record on the peer. Undirected networks add the reverse edge too.
func (e *Engine) addEdge(from, to *Person, typeID int) {
	if from == to || from.IsMeta() || to.IsMeta() {
		return
	}
	g := e.networkGroup(typeID)
	e.joinGroup(from, g)
	e.joinGroup(to, g)
	stamp := clock.Step(e.day, e.hour)
	from.linkFor(typeID).addOutward(to, 1.0, stamp)
	to.linkFor(typeID).addInward(from, 1.0, stamp)
	if e.groupTypes[typeID].Undirected {
		to.linkFor(typeID).addOutward(from, 1.0, stamp)
		from.linkFor(typeID).addInward(to, 1.0, stamp)
	}
}

func (e *Engine) deleteEdge(from, to *Person, typeID int) {
	from.linkFor(typeID).deleteOutward(to)
	to.linkFor(typeID).deleteInward(from)
	if e.groupTypes[typeID].Undirected {
		to.linkFor(typeID).deleteOutward(from)
		from.linkFor(typeID).deleteInward(to)
	}
}

func (e *Engine) setEdgeWeight(from, to *Person, typeID int, w float64) {
	l := from.linkFor(typeID)
	if i := l.outwardIndex(to); i >= 0 {
		l.OutWeight[i] = w
	}
	il := to.linkFor(typeID)
	if i := il.inwardIndex(from); i >= 0 {
		il.InWeight[i] = w
	}
}

// joinGroup wraps Group.AddMember with epidemic count maintenance.
func (e *Engine) joinGroup(p *Person, g *Group) {
	if g == nil || p.IsMeta() {
		return
	}
	old := p.GroupOfType(g.Type.ID)
	if old == g {
		return
	}
	if old != nil {
		for _, c := range e.conditions {
			c.Epi.adjustGroupCounts(p, old, -1)
		}
	}
	g.AddMember(p)
	for _, c := range e.conditions {
		c.Epi.adjustGroupCounts(p, g, +1)
	}
}

// quitGroup wraps Group.RemoveMember with epidemic count maintenance.
func (e *Engine) quitGroup(p *Person, typeID int) {
	g := p.GroupOfType(typeID)
	if g == nil {
		return
	}
	for _, c := range e.conditions {
		c.Epi.adjustGroupCounts(p, g, -1)
	}
	g.RemoveMember(p)
}
