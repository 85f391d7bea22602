package epi

// GroupKind distinguishes the two group variants.
type GroupKind int

const (
	KindPlace GroupKind = iota
	KindNetwork
)

// Group is a membership container. Groups borrow persons: a person's slot in
// Members is mirrored by link[type].MemberIndex and kept consistent on every
// rearrangement.
type Group struct {
	ID    int
	Type  *GroupType
	Label string

	Members []*Person

	Host          *Person
	Admin         *Person
	ContactFactor float64
	AdminClosed   bool
	Income        float64

	Place *PlaceInfo // set iff Type.Kind == KindPlace
}

// PlaceInfo carries the geographic attributes of a Place group.
type PlaceInfo struct {
	Lat, Lon  float64
	Elevation float64

	CensusTract int64
	County      int64
	StateAdmin  int64
	BlockGroup  int64

	ADIStateRank    float64
	ADINationalRank float64

	MaxCapacity int

	firstTransmissibleDay int
	lastTransmissibleDay  int
}

func (g *Group) Size() int { return len(g.Members) }

func (g *Group) IsPlace() bool   { return g.Type.Kind == KindPlace }
func (g *Group) IsNetwork() bool { return g.Type.Kind == KindNetwork }

// AddMember appends p and records the slot in p's link for this group type.
// A person already in another group of this type is moved.
func (g *Group) AddMember(p *Person) {
	link := p.linkFor(g.Type.ID)
	if link.Group == g {
		return
	}
	if link.Group != nil {
		link.Group.RemoveMember(p)
	}
	link.Group = g
	link.MemberIndex = len(g.Members)
	g.Members = append(g.Members, p)
}

// RemoveMember swap-removes p, repairing the moved member's index.
func (g *Group) RemoveMember(p *Person) {
	link := p.linkFor(g.Type.ID)
	if link.Group != g {
		return
	}
	i := link.MemberIndex
	last := len(g.Members) - 1
	if i != last {
		moved := g.Members[last]
		g.Members[i] = moved
		moved.linkFor(g.Type.ID).MemberIndex = i
	}
	g.Members = g.Members[:last]
	link.reset()
}

// recordTransmissibleDay tracks the first and last day a place hosted a
// transmissible visitor, for the end-of-run summary.
func (g *Group) recordTransmissibleDay(day int) {
	if g.Place == nil {
		return
	}
	if g.Place.firstTransmissibleDay < 0 {
		g.Place.firstTransmissibleDay = day
	}
	g.Place.lastTransmissibleDay = day
}

// isClosed reports an administrative closure: either the explicit flag or an
// administrator whose current condition states close this group type.
func (g *Group) isClosed() bool {
	if g.AdminClosed {
		return true
	}
	if g.Admin != nil && g.Admin.closesGroupType(g.Type.ID) {
		return true
	}
	return false
}

func (g *Group) contactFactor() float64 {
	if g.ContactFactor > 0 {
		return g.ContactFactor
	}
	return 1.0
}
