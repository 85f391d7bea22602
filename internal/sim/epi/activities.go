package epi

// isPresent reports whether the person attends groups of a type today:
// the daily schedule bit is set and no current condition state marks the
// type as absent.
func (p *Person) isPresent(e *Engine, typeID int) bool {
	if p.meta {
		return false
	}
	if p.scheduleDay != e.day {
		e.updateActivities(p, e.day)
	}
	return typeID < len(p.schedule) && p.schedule[typeID] && !p.absentFromGroupType(typeID)
}

// isDormant reports whether any current condition state withdraws the person
// from all activity.
func (p *Person) isDormant() bool {
	for c, cond := range p.engine.conditions {
		s := p.status[c].state
		if s >= 0 && cond.NH.IsDormant[s] {
			return true
		}
	}
	return false
}

func (p *Person) transmissibleAny() bool {
	for c := range p.status {
		if p.status[c].transmissibility > 0 {
			return true
		}
	}
	return false
}

// updateActivities rebuilds the person's daily schedule bitmap. Idempotent
// within a day: calling it twice for the same day only repeats the
// neighborhood selection, which is stable for non-transmissible people.
func (e *Engine) updateActivities(p *Person, day int) {
	if p.meta {
		return
	}
	p.scheduleDay = day
	for i := range p.schedule {
		p.schedule[i] = false
	}
	if p.Traveling || p.isDormant() {
		return
	}

	p.schedule[TypeHousehold] = true

	// User-defined types are included whenever the person is a member.
	for t := numBuiltinTypes; t < len(p.schedule); t++ {
		p.schedule[t] = p.links[t].IsMember()
	}

	// Institutionalized people attend only their facility workplace.
	if p.Profile == ProfilePrisoner || p.Profile == ProfileNursingHome {
		p.schedule[TypeWorkplace] = p.links[TypeWorkplace].IsMember()
		p.schedule[TypeOffice] = p.links[TypeOffice].IsMember()
		return
	}

	p.schedule[TypeNeighborhood] = true
	e.selectNeighborhood(p)

	weekday := e.cal.IsWeekday(day)
	if weekday && p.links[TypeSchool].IsMember() {
		p.schedule[TypeSchool] = true
		p.schedule[TypeClassroom] = p.links[TypeClassroom].IsMember()
	}
	if p.links[TypeWorkplace].IsMember() &&
		(weekday || p.Profile == ProfileWeekendWorker || p.Profile == ProfileStudent) {
		p.schedule[TypeWorkplace] = true
		p.schedule[TypeOffice] = p.links[TypeOffice].IsMember()
		p.schedule[TypeHospital] = p.links[TypeHospital].IsMember()
	}
}

// selectNeighborhood sets today's neighborhood: home by default, a gravity
// draw over the neighborhood layer for people carrying any transmissible
// condition.
func (e *Engine) selectNeighborhood(p *Person) {
	home := p.storedGroup(TypeNeighborhood)
	if home == nil {
		home = p.GroupOfType(TypeNeighborhood)
		if home == nil {
			return
		}
		p.setStoredGroup(TypeNeighborhood, home)
	}
	dest := home
	if p.transmissibleAny() {
		dest = e.gravityNeighborhood(home)
	}
	if dest != nil && dest != p.GroupOfType(TypeNeighborhood) {
		e.joinGroup(p, dest)
	}
}

// gravityNeighborhood draws a destination neighborhood with weight
// size / (1 + distance_km) relative to home.
func (e *Engine) gravityNeighborhood(home *Group) *Group {
	hoods := e.groupTypes[TypeNeighborhood].Groups
	if len(hoods) < 2 {
		return home
	}
	weights := make([]float64, len(hoods))
	total := 0.0
	for i, g := range hoods {
		w := float64(g.Size())
		if home.Place != nil && g.Place != nil {
			d := haversineKM(home.Place.Lat, home.Place.Lon, g.Place.Lat, g.Place.Lon)
			w /= 1 + d
		}
		weights[i] = w
		total += w
	}
	if total <= 0 {
		return home
	}
	r := e.rng.Uniform() * total
	sum := 0.0
	for i, w := range weights {
		sum += w
		if r < sum {
			return hoods[i]
		}
	}
	return home
}

// advanceSchoolYear fires the annual age transitions: students leave school
// on July 31 and every profile is reassessed on August 1.
func (e *Engine) advanceSchoolYear(day int) {
	m, dom := e.cal.Month(day), e.cal.DayOfMonth(day)
	if m == 7 && dom == 31 {
		for _, p := range e.people {
			if p.Profile == ProfileStudent {
				e.quitGroup(p, TypeClassroom)
				e.quitGroup(p, TypeSchool)
			}
		}
	}
	if m == 8 && dom == 1 {
		for _, p := range e.people {
			e.assignProfile(p, day)
			p.scheduleDay = -1
		}
	}
}

// assignProfile derives the activity profile from age and memberships.
// Institutional profiles assigned at load are sticky.
func (e *Engine) assignProfile(p *Person, day int) {
	switch p.Profile {
	case ProfilePrisoner, ProfileNursingHome, ProfileMilitary, ProfileCollegeStudent:
		return
	}
	age := p.Age(day)
	switch {
	case age < 2:
		p.Profile = ProfileInfant
	case age < 5:
		p.Profile = ProfilePreschool
	case age < 18:
		p.Profile = ProfileStudent
	case age < 67:
		switch {
		case p.links[TypeSchool].IsMember():
			p.Profile = ProfileTeacher
		case p.links[TypeWorkplace].IsMember():
			p.Profile = ProfileWorker
		default:
			p.Profile = ProfileUnemployed
		}
	default:
		p.Profile = ProfileRetired
	}
}
