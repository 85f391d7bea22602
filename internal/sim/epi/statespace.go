package epi

import "fmt"

// StateSpace names the ordered states of one condition. Index 0 is always
// Start and the last index is always Excluded; user states sit in between.
type StateSpace struct {
	names []string
	index map[string]int
}

const (
	StartStateName    = "Start"
	ExcludedStateName = "Excluded"
)

// NewStateSpace brackets the given interior state names with Start and
// Excluded. Duplicates are dropped with a warning returned to the caller.
func NewStateSpace(interior []string) (*StateSpace, []string) {
	s := &StateSpace{index: map[string]int{}}
	var warnings []string
	add := func(name string) {
		if _, dup := s.index[name]; dup {
			warnings = append(warnings, fmt.Sprintf("duplicate state name %q ignored", name))
			return
		}
		s.index[name] = len(s.names)
		s.names = append(s.names, name)
	}
	add(StartStateName)
	for _, n := range interior {
		add(n)
	}
	add(ExcludedStateName)
	return s, warnings
}

func (s *StateSpace) Size() int { return len(s.names) }

func (s *StateSpace) Excluded() int { return len(s.names) - 1 }

// Index returns the state index for a name, or -1 when unknown.
func (s *StateSpace) Index(name string) int {
	if i, ok := s.index[name]; ok {
		return i
	}
	return -1
}

// Name returns the state name for an index; out-of-range yields "-1".
func (s *StateSpace) Name(i int) string {
	if i < 0 || i >= len(s.names) {
		return "-1"
	}
	return s.names[i]
}
