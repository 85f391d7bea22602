// Package program reads the line-oriented model program: properties,
// rule lines, and block forms that the preprocessor flattens into both.
package program

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Property is a single flattened `name = value` assignment.
type Property struct {
	Name  string
	Value string
}

// Source is a fully preprocessed program: flattened properties, normalized
// `if ... then ...` rule lines, and the entities declared by block forms.
type Source struct {
	Props []Property
	Rules []string

	// Declared via block forms, in declaration order.
	BlockConditions []string
	BlockPlaces     []string
	BlockNetworks   []string

	Warnings []string

	byName        map[string][]string
	stack         []blockCtx
	pendingHeader string
}

const maxIncludeDepth = 16

// Parse reads and preprocesses a program file. libraryDir resolves
// `use <Name>` pastes; include paths are relative to the including file.
func Parse(path, libraryDir string) (*Source, error) {
	src := &Source{byName: map[string][]string{}}
	if err := src.readFile(path, libraryDir, 0); err != nil {
		return nil, err
	}
	return src, nil
}

// ParseText preprocesses an in-memory program, for tests and embedding.
func ParseText(text string) (*Source, error) {
	src := &Source{byName: map[string][]string{}}
	if err := src.consume(text, ".", "", 0); err != nil {
		return nil, err
	}
	return src, nil
}

func (s *Source) readFile(path, libraryDir string, depth int) error {
	if depth > maxIncludeDepth {
		return fmt.Errorf("include depth exceeded at %s", path)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return s.consume(string(b), filepath.Dir(path), libraryDir, depth)
}

func (s *Source) consume(text, dir, libraryDir string, depth int) error {
	for _, stmt := range preprocess(text) {
		switch {
		case strings.HasPrefix(stmt, "include "):
			p := strings.TrimSpace(strings.TrimPrefix(stmt, "include "))
			if !filepath.IsAbs(p) {
				p = filepath.Join(dir, p)
			}
			if err := s.readFile(p, libraryDir, depth+1); err != nil {
				return fmt.Errorf("include %s: %w", p, err)
			}
		case strings.HasPrefix(stmt, "use "):
			name := strings.TrimSpace(strings.TrimPrefix(stmt, "use "))
			p := filepath.Join(libraryDir, name+".epi")
			if err := s.readFile(p, libraryDir, depth+1); err != nil {
				return fmt.Errorf("use %s: %w", name, err)
			}
		default:
			s.expand(stmt)
		}
	}
	if err := s.drainBlocks(); err != nil {
		return err
	}
	return nil
}

// preprocess applies the lexical pipeline: comment strip, continuation join,
// semicolon split, bracket split, whitespace normalize.
func preprocess(text string) []string {
	lines := strings.Split(text, "\n")

	// Strip comments and join continuations.
	var joined []string
	cont := ""
	for _, ln := range lines {
		if i := strings.IndexByte(ln, '#'); i >= 0 {
			ln = ln[:i]
		}
		ln = strings.TrimSpace(ln)
		if strings.HasSuffix(ln, "\\") {
			cont += strings.TrimSuffix(ln, "\\") + " "
			continue
		}
		if cont != "" {
			ln = cont + ln
			cont = ""
		}
		if ln != "" {
			joined = append(joined, ln)
		}
	}
	if cont != "" {
		joined = append(joined, strings.TrimSpace(cont))
	}

	// Bracket split and semicolon split.
	var out []string
	for _, ln := range joined {
		ln = strings.ReplaceAll(ln, "{", "\n{\n")
		ln = strings.ReplaceAll(ln, "}", "\n}\n")
		for _, part := range strings.Split(ln, "\n") {
			for _, stmt := range strings.Split(part, ";") {
				stmt = normalizeSpace(stmt)
				if stmt != "" {
					out = append(out, stmt)
				}
			}
		}
	}
	return out
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

type blockCtx struct {
	kind string // "condition", "place", "network", "state"
	name string
	// for state blocks
	condName  string
	stateName string
	nStmts    int
}

// expand flattens one preprocessed statement, tracking block context.
func (s *Source) expand(stmt string) {
	switch stmt {
	case "{":
		if s.pendingHeader != "" {
			s.openBlock(s.pendingHeader)
			s.pendingHeader = ""
		} else {
			s.warnf("stray '{'")
		}
		return
	case "}":
		s.closeBlock()
		return
	}
	if s.pendingHeader != "" {
		s.warnf("block header %q without body", s.pendingHeader)
		s.pendingHeader = ""
	}

	// A block header arrives as e.g. "condition FLU" with the brace split off.
	if blockHeader(stmt) != "" {
		s.pendingHeader = stmt
		return
	}

	s.emit(stmt)
}

func blockHeader(stmt string) string {
	f := strings.Fields(stmt)
	if len(f) != 2 {
		return ""
	}
	switch f[0] {
	case "condition", "place", "network", "state":
		return f[0]
	}
	return ""
}

func (s *Source) openBlock(header string) {
	f := strings.Fields(header)
	kind, name := f[0], f[1]
	ctx := blockCtx{kind: kind, name: name}
	switch kind {
	case "condition":
		s.BlockConditions = append(s.BlockConditions, name)
	case "place":
		s.BlockPlaces = append(s.BlockPlaces, name)
	case "network":
		s.BlockNetworks = append(s.BlockNetworks, name)
		s.addProp(name+".is_network", "1")
	case "state":
		if n := len(s.stack); n > 0 && s.stack[n-1].kind == "condition" {
			ctx.condName = s.stack[n-1].name
		} else {
			s.warnf("state block %s outside a condition block", name)
		}
		ctx.stateName = name
	}
	s.stack = append(s.stack, ctx)
}

func (s *Source) closeBlock() {
	n := len(s.stack)
	if n == 0 {
		s.warnf("stray '}'")
		return
	}
	top := s.stack[n-1]
	s.stack = s.stack[:n-1]
	// An empty state block defaults to an absorbing wait.
	if top.kind == "state" && top.nStmts == 0 && top.condName != "" {
		s.addRule(fmt.Sprintf("if state(%s.%s) then wait()", top.condName, top.stateName))
	}
}

func (s *Source) emit(stmt string) {
	if n := len(s.stack); n > 0 {
		top := &s.stack[n-1]
		top.nStmts++
		switch top.kind {
		case "condition", "place", "network":
			if name, val, ok := splitAssignment(stmt); ok {
				s.addProp(top.name+"."+name, val)
				return
			}
			s.warnf("unexpected statement in %s block %s: %q", top.kind, top.name, stmt)
			return
		case "state":
			s.emitStateStmt(top, stmt)
			return
		}
	}

	if name, val, ok := splitAssignment(stmt); ok {
		s.addProp(name, val)
		return
	}
	if strings.HasPrefix(stmt, "if ") {
		s.addRule(stmt)
		return
	}
	s.warnf("unrecognized statement: %q", stmt)
}

func (s *Source) emitStateStmt(top *blockCtx, stmt string) {
	guard := fmt.Sprintf("state(%s.%s)", top.condName, top.stateName)
	if name, val, ok := splitAssignment(stmt); ok {
		s.addProp(top.condName+"."+top.stateName+"."+name, val)
		return
	}
	if strings.HasPrefix(stmt, "if ") {
		// "if X then Y" -> "if state(C.S) and X then Y"
		rest := strings.TrimPrefix(stmt, "if ")
		if i := strings.Index(rest, " then "); i >= 0 {
			s.addRule("if " + guard + " and " + rest[:i] + " then " + rest[i+len(" then "):])
			return
		}
		s.warnf("malformed rule in state block: %q", stmt)
		return
	}
	// Bare action call.
	s.addRule("if " + guard + " then " + stmt)
}

// splitAssignment recognizes "name = value"; names contain no comparison
// characters, so "a == b" style clauses are not mistaken for assignments.
func splitAssignment(stmt string) (name, val string, ok bool) {
	i := strings.IndexByte(stmt, '=')
	if i <= 0 {
		return "", "", false
	}
	if stmt[i-1] == '!' || stmt[i-1] == '<' || stmt[i-1] == '>' {
		return "", "", false
	}
	if i+1 < len(stmt) && stmt[i+1] == '=' {
		return "", "", false
	}
	name = strings.TrimSpace(stmt[:i])
	if strings.ContainsAny(name, "<>!()") || strings.Contains(name, " ") {
		return "", "", false
	}
	return name, strings.TrimSpace(stmt[i+1:]), true
}

func (s *Source) addProp(name, val string) {
	s.Props = append(s.Props, Property{Name: name, Value: val})
	s.byName[name] = append(s.byName[name], val)
}

func (s *Source) addRule(line string) {
	s.Rules = append(s.Rules, line)
}

func (s *Source) warnf(format string, args ...any) {
	s.Warnings = append(s.Warnings, fmt.Sprintf(format, args...))
}

func (s *Source) drainBlocks() error {
	if len(s.stack) != 0 {
		return fmt.Errorf("unclosed %s block %q", s.stack[len(s.stack)-1].kind, s.stack[len(s.stack)-1].name)
	}
	if s.pendingHeader != "" {
		return fmt.Errorf("block header %q without body", s.pendingHeader)
	}
	return nil
}

// Get returns the last value assigned to a property.
func (s *Source) Get(name string) (string, bool) {
	vs := s.byName[name]
	if len(vs) == 0 {
		return "", false
	}
	return vs[len(vs)-1], true
}

// GetAll returns every value assigned to a property, in order.
func (s *Source) GetAll(name string) []string { return s.byName[name] }

// Words splits the property's value on whitespace; missing yields nil.
func (s *Source) Words(name string) []string {
	v, ok := s.Get(name)
	if !ok {
		return nil
	}
	return strings.Fields(v)
}

// Number returns the property as a float, or def when absent or malformed.
func (s *Source) Number(name string, def float64) float64 {
	v, ok := s.Get(name)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		s.warnf("property %s: bad number %q", name, v)
		return def
	}
	return f
}

// Int returns the property as an int, or def when absent or malformed.
func (s *Source) Int(name string, def int) int {
	return int(s.Number(name, float64(def)))
}

// Bool treats any nonzero numeric value as true.
func (s *Source) Bool(name string) bool {
	return s.Number(name, 0) != 0
}

// HasPrefix reports property names with the given prefix, in order.
func (s *Source) HasPrefix(prefix string) []Property {
	var out []Property
	for _, p := range s.Props {
		if strings.HasPrefix(p.Name, prefix) {
			out = append(out, p)
		}
	}
	return out
}
