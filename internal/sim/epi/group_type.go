package epi

// Built-in group type ids, in fixed declaration order. User-defined place
// and network types follow.
const (
	TypeHousehold = iota
	TypeNeighborhood
	TypeSchool
	TypeClassroom
	TypeWorkplace
	TypeOffice
	TypeHospital
	numBuiltinTypes
)

var builtinTypeNames = [numBuiltinTypes]string{
	"Household", "Neighborhood", "School", "Classroom", "Workplace", "Office", "Hospital",
}

// GroupType is the static parameterization shared by all groups of a kind.
// The per-condition slices are sized during engine prepare.
type GroupType struct {
	ID      int
	Name    string
	Kind    GroupKind
	BuiltIn bool

	Groups  []*Group
	ByLabel map[string]*Group

	// Per-condition contact parameters.
	ContactRate         []float64
	ContactCount        []float64
	DensityContactProb  []float64
	CanTransmit         []bool
	Deterministic       []bool
	DensityTransmission []bool

	SameAgeBias      float64
	HasAdministrator bool

	// StartsAtHour[weekday][hour] is the open-block duration in hours
	// starting at that hour (0 = no block starts there).
	StartsAtHour [7][24]int

	// Network types only.
	Undirected bool
	MeanDegree int
	MaxDegree  int
}

func newGroupType(id int, name string, kind GroupKind, builtIn bool) *GroupType {
	return &GroupType{
		ID:      id,
		Name:    name,
		Kind:    kind,
		BuiltIn: builtIn,
		ByLabel: map[string]*Group{},
	}
}

func (t *GroupType) sizeConditions(n int) {
	t.ContactRate = make([]float64, n)
	t.ContactCount = make([]float64, n)
	t.DensityContactProb = make([]float64, n)
	t.CanTransmit = make([]bool, n)
	t.Deterministic = make([]bool, n)
	t.DensityTransmission = make([]bool, n)
}

// TimeBlock returns the duration of the open block starting exactly at the
// given weekday/hour, 0 when none starts there.
func (t *GroupType) TimeBlock(weekday, hour int) int {
	if weekday < 0 || weekday > 6 || hour < 0 || hour > 23 {
		return 0
	}
	return t.StartsAtHour[weekday][hour]
}

// OpenAt reports whether any open block covers the given weekday/hour.
func (t *GroupType) OpenAt(weekday, hour int) bool {
	if weekday < 0 || weekday > 6 || hour < 0 || hour > 23 {
		return false
	}
	for h := 0; h <= hour; h++ {
		if d := t.StartsAtHour[weekday][h]; d > 0 && hour < h+d {
			return true
		}
	}
	return false
}

// setOpenBlock records a block of dur hours starting at hour on the given
// weekdays ("Sun".."Sat", "weekdays", "weekends", or "all").
func (t *GroupType) setOpenBlock(days string, hour, dur int) bool {
	if hour < 0 || hour > 23 || dur < 0 {
		return false
	}
	set := func(wd int) { t.StartsAtHour[wd][hour] = dur }
	switch days {
	case "weekdays":
		for wd := 1; wd <= 5; wd++ {
			set(wd)
		}
	case "weekends":
		set(0)
		set(6)
	case "all":
		for wd := 0; wd < 7; wd++ {
			set(wd)
		}
	default:
		wd := weekdayIndex(days)
		if wd < 0 {
			return false
		}
		set(wd)
	}
	return true
}

var weekdayNames = [7]string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}

func weekdayIndex(name string) int {
	for i, n := range weekdayNames {
		if n == name {
			return i
		}
	}
	return -1
}

// groupWithLabel returns the existing group with the label, or nil.
func (t *GroupType) groupWithLabel(label string) *Group {
	return t.ByLabel[label]
}
