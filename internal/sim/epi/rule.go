package epi

import (
	"fmt"
	"strconv"
	"strings"
)

// ActionID tags the closed action vocabulary. Unknown tags are rejected at
// load and the rule is skipped with a warning.
type ActionID int

const (
	ActNone ActionID = iota
	ActWait
	ActWaitUntil
	ActNext
	ActDefault
	ActGiveBirth
	ActDie
	ActDieOld
	ActSus
	ActTrans
	ActJoin
	ActQuit
	ActAddEdgeTo
	ActAddEdgeFrom
	ActDeleteEdgeTo
	ActDeleteEdgeFrom
	ActSetWeight
	ActSet
	ActSetList
	ActSetState
	ActReport
	ActAbsent
	ActPresent
	ActClose
	ActSetContacts
	ActRandomizeNetwork
	ActImportCount
	ActImportPerCapita
	ActImportLocation
	ActImportAdminCode
	ActImportAges
	ActImportList
	ActCountAllImportAttempts
)

var actionNames = map[string]ActionID{
	"wait":                      ActWait,
	"wait_until":                ActWaitUntil,
	"next":                      ActNext,
	"default":                   ActDefault,
	"give_birth":                ActGiveBirth,
	"die":                       ActDie,
	"die_old":                   ActDieOld,
	"sus":                       ActSus,
	"set_sus":                   ActSus,
	"trans":                     ActTrans,
	"set_trans":                 ActTrans,
	"join":                      ActJoin,
	"quit":                      ActQuit,
	"add_edge_to":               ActAddEdgeTo,
	"add_edge_from":             ActAddEdgeFrom,
	"delete_edge_to":            ActDeleteEdgeTo,
	"delete_edge_from":          ActDeleteEdgeFrom,
	"set_weight":                ActSetWeight,
	"set":                       ActSet,
	"set_list":                  ActSetList,
	"set_state":                 ActSetState,
	"report":                    ActReport,
	"absent":                    ActAbsent,
	"present":                   ActPresent,
	"close":                     ActClose,
	"set_contacts":              ActSetContacts,
	"randomize_network":         ActRandomizeNetwork,
	"import_count":              ActImportCount,
	"import_per_capita":         ActImportPerCapita,
	"import_location":           ActImportLocation,
	"import_admin_code":         ActImportAdminCode,
	"import_ages":               ActImportAges,
	"import_list":               ActImportList,
	"count_all_import_attempts": ActCountAllImportAttempts,
}

// Rule is one compiled program rule, bound to a (condition, state) pair by
// the leading state(C.S) term of its clause.
type Rule struct {
	Cond  int
	State int

	Action ActionID
	Clause *Clause // guard with the binding term stripped; nil = unconditional

	Expr  *Expression
	Expr2 *Expression
	Expr3 *Expression

	// next() target; -1 for the bare default form.
	NextState int

	// set_state destination.
	DestCond  int
	DestState int

	// set / set_list target.
	Global bool
	VarID  int
	ListID int

	// join/quit/absent/present/close/edge/network target type.
	GroupTypeID int

	WaitUntil *waitUntilSpec

	hiddenBy *Rule
	Warned   bool
	Text     string
}

// Applies reports whether the rule's guard holds for p. Hidden and warned
// rules never apply.
func (r *Rule) Applies(e *Engine, p *Person) bool {
	if r.Warned || r.hiddenBy != nil {
		return false
	}
	return r.Clause.Applies(e, p, nil)
}

// Value evaluates the rule's primary expression for p.
func (r *Rule) Value(e *Engine, p *Person) float64 {
	if r.Expr == nil {
		return 1.0
	}
	return r.Expr.Value(e, p, nil)
}

// waitUntilSpec is the parsed form of a wait_until token.
type waitUntilSpec struct {
	Days    int    // >= 0 for Today/Tomorrow/N_days forms, else -1
	Weekday int    // 0..6 for day-of-week forms, else -1
	Date    string // YYYY-MM-DD, else ""
	Hour    int    // transition hour of day
}

func parseWaitUntil(token string) (*waitUntilSpec, error) {
	spec := &waitUntilSpec{Days: -1, Weekday: -1}

	if i := strings.LastIndex(token, "_at_"); i >= 0 {
		hs := token[i+len("_at_"):]
		token = token[:i]
		h, err := parseHourToken(hs)
		if err != nil {
			return nil, err
		}
		spec.Hour = h
	}

	switch {
	case token == "Today" || token == "today":
		spec.Days = 0
	case token == "Tomorrow" || token == "tomorrow":
		spec.Days = 1
	case strings.HasSuffix(token, "_days") || strings.HasSuffix(token, "_day"):
		n := strings.TrimSuffix(strings.TrimSuffix(token, "_days"), "_day")
		d, err := strconv.Atoi(n)
		if err != nil || d < 0 {
			return nil, fmt.Errorf("bad day count in wait_until token %q", token)
		}
		spec.Days = d
	default:
		if wd := weekdayIndex(token); wd >= 0 {
			spec.Weekday = wd
		} else if len(token) == 10 && token[4] == '-' && token[7] == '-' {
			spec.Date = token
		} else {
			return nil, fmt.Errorf("bad wait_until token %q", token)
		}
	}
	return spec, nil
}

// parseHourToken parses HHam/HHpm; 12am = 0, 12pm = 12.
func parseHourToken(s string) (int, error) {
	var pm bool
	switch {
	case strings.HasSuffix(s, "am"):
		s = strings.TrimSuffix(s, "am")
	case strings.HasSuffix(s, "pm"):
		pm = true
		s = strings.TrimSuffix(s, "pm")
	default:
		return 0, fmt.Errorf("hour token %q must end in am or pm", s)
	}
	h, err := strconv.Atoi(s)
	if err != nil || h < 1 || h > 12 {
		return 0, fmt.Errorf("bad hour token %q", s)
	}
	if h == 12 {
		h = 0
	}
	if pm {
		h += 12
	}
	return h, nil
}

// parseRuleLine compiles one "if <clause> then <action>(<args>)" line into a
// Rule. Lines that cannot be compiled return a rule with Warned set and the
// problem recorded in the engine's warning list: the rule never fires and the
// run continues.
func (e *Engine) parseRuleLine(line string) *Rule {
	r := &Rule{Text: line, NextState: -1, DestCond: -1, DestState: -1, VarID: -1, ListID: -1, GroupTypeID: -1}

	warn := func(format string, args ...any) *Rule {
		r.Warned = true
		e.warnf("rule %q: "+format, append([]any{line}, args...)...)
		return r
	}

	if !strings.HasPrefix(line, "if ") {
		return warn("missing 'if'")
	}
	body := strings.TrimPrefix(line, "if ")
	i := strings.Index(body, " then ")
	if i < 0 {
		return warn("missing 'then'")
	}
	clauseText := strings.TrimSpace(body[:i])
	actionText := strings.TrimSpace(body[i+len(" then "):])

	// The leading state(C.S) term binds the rule; the rest is the guard.
	binding, guard, ok := splitBinding(clauseText)
	if !ok {
		return warn("clause must begin with state(C.S)")
	}
	cond, state, err := e.resolveConditionState(binding)
	if err != nil {
		return warn("%v", err)
	}
	r.Cond, r.State = cond, state

	if guard != "" {
		r.Clause = e.compileClause(guard)
		if err := r.Clause.Err(); err != nil {
			return warn("%v", err)
		}
	}

	name, args, err := splitCall(actionText)
	if err != nil {
		return warn("%v", err)
	}
	act, ok := actionNames[name]
	if !ok {
		return warn("unknown action %q", name)
	}
	r.Action = act

	if err := e.bindActionArgs(r, args); err != nil {
		return warn("%v", err)
	}
	return r
}

// splitBinding peels the leading "state(C.S)" term plus its joining
// "and"/"&" off a clause.
func splitBinding(clause string) (binding, guard string, ok bool) {
	if !strings.HasPrefix(clause, "state(") {
		return "", "", false
	}
	rest := clause[len("state("):]
	j := strings.IndexByte(rest, ')')
	if j < 0 {
		return "", "", false
	}
	binding = strings.TrimSpace(rest[:j])
	guard = strings.TrimSpace(rest[j+1:])
	switch {
	case guard == "":
	case strings.HasPrefix(guard, "and "):
		guard = strings.TrimSpace(guard[4:])
	case strings.HasPrefix(guard, "& "):
		guard = strings.TrimSpace(guard[2:])
	default:
		return "", "", false
	}
	return binding, guard, true
}

// splitCall parses "name(arg, arg, ...)" with top-level comma splitting.
func splitCall(s string) (name string, args []string, err error) {
	i := strings.IndexByte(s, '(')
	if i < 0 || !strings.HasSuffix(s, ")") {
		return "", nil, fmt.Errorf("action must be a call, got %q", s)
	}
	name = strings.TrimSpace(s[:i])
	inner := s[i+1 : len(s)-1]
	depth := 0
	start := 0
	for j := 0; j < len(inner); j++ {
		switch inner[j] {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				args = append(args, strings.TrimSpace(inner[start:j]))
				start = j + 1
			}
		}
	}
	if tail := strings.TrimSpace(inner[start:]); tail != "" {
		args = append(args, tail)
	}
	return name, args, nil
}

// bindActionArgs compiles action arguments according to the action's shape.
func (e *Engine) bindActionArgs(r *Rule, args []string) error {
	compileArg := func(i int) (*Expression, error) {
		x := e.compileExpression(args[i])
		if x.Err() != nil {
			return nil, x.Err()
		}
		return x, nil
	}
	numeric := func(n int) error {
		if len(args) != n {
			return fmt.Errorf("expected %d args, got %d", n, len(args))
		}
		var err error
		if n >= 1 {
			if r.Expr, err = compileArg(0); err != nil {
				return err
			}
		}
		if n >= 2 {
			if r.Expr2, err = compileArg(1); err != nil {
				return err
			}
		}
		if n >= 3 {
			if r.Expr3, err = compileArg(2); err != nil {
				return err
			}
		}
		return nil
	}
	groupTypeArg := func(i int) error {
		t, ok := e.resolveGroupType(args[i])
		if !ok {
			return fmt.Errorf("unknown group type %q", args[i])
		}
		r.GroupTypeID = t
		return nil
	}

	switch r.Action {
	case ActWait:
		switch len(args) {
		case 0:
			// wait(): absorbing; no expression means no scheduled transition.
			return nil
		case 1:
			var err error
			r.Expr, err = compileArg(0)
			return err
		}
		return fmt.Errorf("wait expects 0 or 1 args")

	case ActWaitUntil:
		if len(args) != 1 {
			return fmt.Errorf("wait_until expects 1 arg")
		}
		spec, err := parseWaitUntil(args[0])
		if err != nil {
			return err
		}
		r.WaitUntil = spec
		return nil

	case ActNext, ActDefault:
		if len(args) == 0 {
			return nil
		}
		s := e.conditions[r.Cond].States.Index(args[0])
		if s < 0 {
			return fmt.Errorf("unknown state %q", args[0])
		}
		r.NextState = s
		if len(args) == 2 {
			var err error
			r.Expr, err = compileArg(1)
			return err
		}
		if len(args) > 2 {
			return fmt.Errorf("next expects at most 2 args")
		}
		return nil

	case ActGiveBirth, ActDie, ActDieOld, ActCountAllImportAttempts:
		if len(args) != 0 {
			return fmt.Errorf("expected no args")
		}
		return nil

	case ActSus, ActTrans, ActImportCount, ActImportPerCapita, ActImportAdminCode:
		return numeric(1)

	case ActImportAges:
		return numeric(2)

	case ActImportLocation:
		return numeric(3)

	case ActImportList:
		if len(args) != 1 {
			return fmt.Errorf("import_list expects 1 arg")
		}
		var err error
		r.Expr, err = compileArg(0)
		return err

	case ActJoin:
		if len(args) < 1 || len(args) > 2 {
			return fmt.Errorf("join expects 1 or 2 args")
		}
		if err := groupTypeArg(0); err != nil {
			return err
		}
		if len(args) == 2 {
			var err error
			r.Expr, err = compileArg(1)
			return err
		}
		return nil

	case ActQuit, ActAbsent, ActPresent, ActClose:
		if len(args) != 1 {
			return fmt.Errorf("expected a group type arg")
		}
		return groupTypeArg(0)

	case ActAddEdgeTo, ActAddEdgeFrom, ActDeleteEdgeTo, ActDeleteEdgeFrom:
		if len(args) != 2 {
			return fmt.Errorf("edge actions expect (network, id)")
		}
		if err := groupTypeArg(0); err != nil {
			return err
		}
		var err error
		r.Expr, err = compileArg(1)
		return err

	case ActSetWeight:
		if len(args) != 3 {
			return fmt.Errorf("set_weight expects (network, id, weight)")
		}
		if err := groupTypeArg(0); err != nil {
			return err
		}
		var err error
		if r.Expr, err = compileArg(1); err != nil {
			return err
		}
		r.Expr2, err = compileArg(2)
		return err

	case ActSet:
		if len(args) != 2 {
			return fmt.Errorf("set expects (var, expr)")
		}
		name := args[0]
		if id := e.vars.globalID(name, false); id >= 0 {
			r.Global = true
			r.VarID = id
		} else {
			r.VarID = e.vars.personalID(name, true)
		}
		var err error
		r.Expr, err = compileArg(1)
		return err

	case ActSetList:
		if len(args) < 2 {
			return fmt.Errorf("set_list expects (list, expr...)")
		}
		name := args[0]
		if id := e.vars.globalListID(name, false); id >= 0 {
			r.Global = true
			r.ListID = id
		} else {
			r.ListID = e.vars.personalListID(name, true)
		}
		var err error
		if r.Expr, err = compileArg(1); err != nil {
			return err
		}
		if len(args) >= 3 {
			if r.Expr2, err = compileArg(2); err != nil {
				return err
			}
		}
		return nil

	case ActSetState:
		if len(args) != 1 {
			return fmt.Errorf("set_state expects C.S")
		}
		c, s, err := e.resolveConditionState(args[0])
		if err != nil {
			return err
		}
		r.DestCond, r.DestState = c, s
		return nil

	case ActReport:
		if len(args) > 1 {
			return fmt.Errorf("report expects 0 or 1 args")
		}
		if len(args) == 1 {
			var err error
			r.Expr, err = compileArg(0)
			return err
		}
		return nil

	case ActSetContacts:
		if len(args) != 2 {
			return fmt.Errorf("set_contacts expects (group type, expr)")
		}
		if err := groupTypeArg(0); err != nil {
			return err
		}
		var err error
		r.Expr, err = compileArg(1)
		return err

	case ActRandomizeNetwork:
		if len(args) < 1 || len(args) > 2 {
			return fmt.Errorf("randomize_network expects (network[, mean degree])")
		}
		if err := groupTypeArg(0); err != nil {
			return err
		}
		if len(args) == 2 {
			var err error
			r.Expr, err = compileArg(1)
			return err
		}
		return nil
	}
	return fmt.Errorf("unhandled action")
}
