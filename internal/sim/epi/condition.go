package epi

import "fmt"

// TransmissionMode selects how a condition spreads between people.
type TransmissionMode int

const (
	ModeNone TransmissionMode = iota
	ModeProximity
	ModeRespiratory
	ModeNetwork
)

func (m TransmissionMode) String() string {
	switch m {
	case ModeProximity:
		return "proximity"
	case ModeRespiratory:
		return "respiratory"
	case ModeNetwork:
		return "network"
	}
	return "none"
}

// Condition is one state machine shared by the whole population, together
// with its transmission settings and epidemic bookkeeping.
type Condition struct {
	ID   int
	Name string

	Mode             TransmissionMode
	Transmissibility float64
	ExposedState     int
	ImportStartState int
	AdminStartState  int

	// Network transmission runs over this group type.
	NetworkTypeID int

	// Exposure moves the new case into the source's place of this type.
	PlaceTypeToTransmit int

	States *StateSpace
	NH     *NaturalHistory
	Epi    *Epidemic
}

func newCondition(e *Engine, id int, name string) (*Condition, error) {
	c := &Condition{
		ID: id, Name: name,
		ExposedState: -1, ImportStartState: -1, AdminStartState: -1,
		NetworkTypeID: -1, PlaceTypeToTransmit: -1,
	}

	names := e.src.Words(name + ".states")
	if len(names) == 0 {
		return nil, fmt.Errorf("condition %s declares no states", name)
	}
	space, dups := NewStateSpace(names)
	for _, d := range dups {
		e.warnf("condition %s: duplicate state %s", name, d)
	}
	c.States = space
	return c, nil
}

// setup reads the condition-level properties. Called after every condition
// has a state space, so cross-condition references resolve.
func (c *Condition) setup(e *Engine) {
	src := e.src

	switch mode, _ := src.Get(c.Name + ".transmission_mode"); mode {
	case "", "none":
		c.Mode = ModeNone
	case "proximity":
		c.Mode = ModeProximity
	case "respiratory":
		c.Mode = ModeRespiratory
	case "network":
		c.Mode = ModeNetwork
	default:
		e.warnf("condition %s: unknown transmission_mode %q", c.Name, mode)
	}

	c.Transmissibility = src.Number(c.Name+".transmissibility", 1.0)
	if r0 := src.Number(c.Name+".R0", -1); r0 >= 0 {
		a := src.Number(c.Name+".R0_a", 0)
		b := src.Number(c.Name+".R0_b", 0)
		if a != 0 || b != 0 {
			c.Transmissibility = a*r0*r0 + b*r0
		}
	}

	if v, ok := src.Get(c.Name + ".exposed_state"); ok {
		if s := c.States.Index(v); s >= 0 {
			c.ExposedState = s
		} else {
			e.warnf("condition %s: unknown exposed_state %q", c.Name, v)
		}
	}
	if c.ExposedState < 0 && c.Mode != ModeNone {
		// Conventional second state when the author did not name one.
		if s := c.States.Index("Exposed"); s >= 0 {
			c.ExposedState = s
		} else if c.States.Size() > 2 {
			c.ExposedState = 1
		}
	}

	if v, ok := src.Get(c.Name + ".import_start_state"); ok {
		if s := c.States.Index(v); s >= 0 {
			c.ImportStartState = s
		} else {
			e.warnf("condition %s: unknown import_start_state %q", c.Name, v)
		}
	}
	if c.ImportStartState < 0 {
		c.ImportStartState = c.ExposedState
	}

	if v, ok := src.Get(c.Name + ".admin_start_state"); ok {
		if s := c.States.Index(v); s >= 0 {
			c.AdminStartState = s
		} else {
			e.warnf("condition %s: unknown admin_start_state %q", c.Name, v)
		}
	}

	if v, ok := src.Get(c.Name + ".place_type_to_transmit"); ok {
		if t, found := e.resolveGroupType(v); found && e.groupTypes[t].Kind == KindPlace {
			c.PlaceTypeToTransmit = t
		} else {
			e.warnf("condition %s: unknown place_type_to_transmit %q", c.Name, v)
		}
	}

	if c.Mode == ModeNetwork {
		label, _ := src.Get(c.Name + ".transmission_network")
		if label == "" {
			label = "Network"
		}
		if t, ok := e.resolveGroupType(label); ok {
			c.NetworkTypeID = t
		} else {
			e.warnf("condition %s: unknown transmission_network %q", c.Name, label)
			c.Mode = ModeNone
		}
	}

	c.NH = newNaturalHistory(e, c)
	c.NH.loadProperties(e)
	c.Epi = newEpidemic(e, c)
}

// prepare finalizes the rule vectors once every rule has been routed.
func (c *Condition) prepare(e *Engine) {
	c.NH.prepare(e)
	c.Epi.prepare(e)
}

func (c *Condition) finish(e *Engine) {
	c.Epi.finish(e)
}

// IsTransmissible reports whether this condition spreads at all.
func (c *Condition) IsTransmissible() bool { return c.Mode != ModeNone }
