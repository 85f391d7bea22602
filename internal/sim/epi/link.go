package epi

// Link is a person's per-group-type membership record: the current group,
// the member slot inside it, and (for networks) directed edges with weights
// and timestamps. Edges are owned by the originating person's Link; the
// mirror edge on the peer is kept consistent by AddEdge/DeleteEdge.
type Link struct {
	Group       *Group
	MemberIndex int

	Outward   []*Person
	OutWeight []float64
	OutStamp  []int

	Inward   []*Person
	InWeight []float64
	InStamp  []int
}

func (l *Link) reset() {
	l.Group = nil
	l.MemberIndex = -1
}

func (l *Link) IsMember() bool { return l.Group != nil }

func (l *Link) outwardIndex(p *Person) int {
	for i, q := range l.Outward {
		if q == p {
			return i
		}
	}
	return -1
}

func (l *Link) inwardIndex(p *Person) int {
	for i, q := range l.Inward {
		if q == p {
			return i
		}
	}
	return -1
}

func (l *Link) addOutward(p *Person, weight float64, stamp int) {
	if i := l.outwardIndex(p); i >= 0 {
		l.OutWeight[i] = weight
		l.OutStamp[i] = stamp
		return
	}
	l.Outward = append(l.Outward, p)
	l.OutWeight = append(l.OutWeight, weight)
	l.OutStamp = append(l.OutStamp, stamp)
}

func (l *Link) addInward(p *Person, weight float64, stamp int) {
	if i := l.inwardIndex(p); i >= 0 {
		l.InWeight[i] = weight
		l.InStamp[i] = stamp
		return
	}
	l.Inward = append(l.Inward, p)
	l.InWeight = append(l.InWeight, weight)
	l.InStamp = append(l.InStamp, stamp)
}

func (l *Link) deleteOutward(p *Person) {
	if i := l.outwardIndex(p); i >= 0 {
		l.Outward = append(l.Outward[:i], l.Outward[i+1:]...)
		l.OutWeight = append(l.OutWeight[:i], l.OutWeight[i+1:]...)
		l.OutStamp = append(l.OutStamp[:i], l.OutStamp[i+1:]...)
	}
}

func (l *Link) deleteInward(p *Person) {
	if i := l.inwardIndex(p); i >= 0 {
		l.Inward = append(l.Inward[:i], l.Inward[i+1:]...)
		l.InWeight = append(l.InWeight[:i], l.InWeight[i+1:]...)
		l.InStamp = append(l.InStamp[:i], l.InStamp[i+1:]...)
	}
}
