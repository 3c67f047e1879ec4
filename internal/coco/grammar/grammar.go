// Package grammar implements the grammar store: the owner of every Symbol,
// syntax-graph Node, and CharClass that the meta-parser populates and the
// analysis and automaton packages consume. It is the Go equivalent of the
// Coco/R "Tab" object, with one deliberate departure: cyclic references
// between graph nodes are represented as integer indices into owned
// vectors, not pointers, so the whole structure can be copied and hashed
// without pointer-identity games.
package grammar

import (
	"fmt"
	"unicode"

	"github.com/finback/coco/internal/coco/charset"
	"github.com/finback/coco/internal/util"
)

// Symbol kinds.
const (
	SymTerminal = iota
	SymPragma
	SymNonterminal
)

// Token kinds, recorded on terminal Symbols once the token DFA is built.
const (
	FixedToken = iota
	ClassToken
	LitToken
	ClassLitToken
)

// Position records a source span and line/column for error reporting and
// trace output.
type Position struct {
	Beg, End, Col, Line int
}

// NoRef is the sentinel for "no node"/"no symbol" index references,
// standing in for the source's use of nil.
const NoRef = -1

// Symbol is a terminal, pragma, or nonterminal of the grammar.
type Symbol struct {
	Kind int
	Name string
	Line int

	// N is the dense index of this symbol within its own kind's vector
	// (Terminals, Pragmas, or Nonterminals), assigned at creation time.
	// Pragmas are renumbered into the terminal index space once token
	// construction completes (see RenumberPragmas).
	N int

	// Graph is the root node of this symbol's syntax graph: the production
	// of a nonterminal, or the token pattern of a terminal/pragma declared
	// with `= TokenExpr`. It is NoRef for a terminal/pragma declared without
	// one and for an as-yet-undeclared nonterminal reference.
	Graph int

	TokenKind int
	Deletable bool
	FirstReady bool

	First  util.KeySet[int]
	Follow util.KeySet[int]
	Nts    util.KeySet[int]

	AttrPos *Position
	SemPos  *Position

	RetType string
	RetVar  string
}

// Node kinds of the syntax graph.
const (
	NTerm = iota + 1
	NPragma
	NNonterm
	NClass
	NChar
	NWeakTerm
	NAny
	NEps
	NSync
	NSem
	NAlt
	NIter
	NOpt
	NResolver
)

// Transition contexts for chr/clas nodes.
const (
	NormalTrans = iota
	ContextTrans
)

// Node is one node of the syntax graph. Next/Down/Sub are node indices
// (NoRef when absent); pointer-valued fields in the original representation
// become index fields here.
type Node struct {
	N    int
	Typ  int
	Next int
	Down int
	Sub  int
	Up   bool

	// Sym is the referenced symbol index, or NoRef.
	Sym int
	// Val carries a character-class index (NClass) or literal code point
	// (NChar).
	Val int

	Code int
	// AnySet holds the narrowed terminal-index set for NAny/NSync nodes;
	// nil until the analysis package computes it.
	AnySet util.KeySet[int]
	Pos    *Position
	Line   int

	// State is initialised to NoRef by NewNode; the automaton package does
	// not write it back when the token DFA is built.
	State int
}

// CharClass is a named, declared character set (from a CHARACTERS section).
type CharClass struct {
	N    int
	Name string
	Set  *charset.CharSet
}

// Graph is the transient left/right-end handle used while building syntax
// graphs out of Nodes; it never outlives grammar construction.
type Graph struct {
	L, R int
}

// CommentSpec is one COMMENTS FROM start TO stop [NESTED] declaration; start
// and stop hold the literal delimiter text (quotes and escapes already
// resolved).
type CommentSpec struct {
	Start, Stop string
	Nested      bool
}

// Store owns every Symbol, Node, and CharClass created while parsing a
// grammar description, plus the bookkeeping the analysis passes need.
type Store struct {
	terminals    []*Symbol
	pragmas      []*Symbol
	nonterminals []*Symbol
	nodes        []*Node
	classes      []*CharClass

	// Literals maps a quoted-string literal spelling to the terminal
	// Symbol it resolves to, for the scanner's literal/keyword table.
	Literals map[string]*Symbol

	GramSy *Symbol
	EofSy  *Symbol
	NoSym  *Symbol

	Ignored      *charset.CharSet
	IgnoreCase   bool
	AllSyncSets  util.KeySet[int]

	// Comments records each COMMENTS FROM ... TO ... [NESTED] declaration
	// in source order, for the scanner-construction phase to wire up
	// comment recognition ahead of the token DFA.
	Comments []CommentSpec

	dummyNode int
	dummyName rune

	onSemErr func(line int, msg string)
	onWarn   func(msg string)
}

// NewStore creates an empty grammar store. onSemErr and onWarn are called
// for semantic errors and warnings raised during graph construction
// (duplicate/empty literal names, etc.); either may be nil.
func NewStore(onSemErr func(line int, msg string), onWarn func(msg string)) *Store {
	s := &Store{
		Literals:    map[string]*Symbol{},
		AllSyncSets: util.NewKeySet[int](),
		dummyName:   'A',
		onSemErr:    onSemErr,
		onWarn:      onWarn,
	}
	s.EofSy = s.NewSym(SymTerminal, "EOF", 0)
	s.dummyNode = s.NewNode(NEps, NoRef, NoRef, 0)
	return s
}

func (s *Store) semErr(line int, msg string) {
	if s.onSemErr != nil {
		s.onSemErr(line, msg)
	}
}

func (s *Store) warn(msg string) {
	if s.onWarn != nil {
		s.onWarn(msg)
	}
}

// Terminals, Pragmas, Nonterminals, Nodes, Classes expose the owned
// vectors. Callers must not retain these across further Store mutation.
func (s *Store) Terminals() []*Symbol    { return s.terminals }
func (s *Store) Pragmas() []*Symbol      { return s.pragmas }
func (s *Store) Nonterminals() []*Symbol { return s.nonterminals }
func (s *Store) Nodes() []*Node          { return s.nodes }
func (s *Store) Classes() []*CharClass   { return s.classes }

// NodeAt returns the node at index n, or nil for NoRef.
func (s *Store) NodeAt(n int) *Node {
	if n == NoRef {
		return nil
	}
	return s.nodes[n]
}

// NewSym creates a new Symbol of the given kind and registers it in the
// appropriate vector. A terminal name of exactly `""` (an empty literal) is
// rejected with a semantic error and replaced with a placeholder name, as
// the original tool does.
func (s *Store) NewSym(kind int, name string, line int) *Symbol {
	if len(name) == 2 && name[0] == '"' {
		s.semErr(line, "empty token not allowed")
		name = "???"
	}

	sym := &Symbol{Kind: kind, Name: name, Line: line, Graph: NoRef}

	switch kind {
	case SymTerminal:
		sym.N = len(s.terminals)
		s.terminals = append(s.terminals, sym)
	case SymPragma:
		s.pragmas = append(s.pragmas, sym)
	case SymNonterminal:
		sym.N = len(s.nonterminals)
		s.nonterminals = append(s.nonterminals, sym)
	}

	return sym
}

// FindSym looks up a previously-created terminal or nonterminal by name.
func (s *Store) FindSym(name string) *Symbol {
	for _, sym := range s.terminals {
		if sym.Name == name {
			return sym
		}
	}
	for _, sym := range s.nonterminals {
		if sym.Name == name {
			return sym
		}
	}
	return nil
}

// RenumberPragmas assigns pragma symbols numbers continuing on from the
// terminal index space, once the terminal set is finalized; pragmas behave
// like terminals from that point on for set/table purposes.
func (s *Store) RenumberPragmas() {
	n := len(s.terminals)
	for _, sym := range s.pragmas {
		sym.N = n
		n++
	}
}

// ---------------------------------------------------------------------
// Syntax graph construction
// ---------------------------------------------------------------------

// NewNode allocates a node of the given type bound to sym (a symbol index,
// or NoRef), with val (a class index or literal code point, or NoRef)
// recorded in Val; Sub is left NoRef. Call NewNodeForSym,
// NewNodeForSub, or NewNodeForVal instead of this directly for clarity at
// call sites; NewNode is the shared allocator they use.
func (s *Store) NewNode(typ int, sym int, val int, line int) int {
	n := &Node{
		N:    len(s.nodes),
		Typ:  typ,
		Next: NoRef,
		Down: NoRef,
		Sub:  NoRef,
		Sym:  sym,
		Val:  val,
		Line: line,
		State: NoRef,
	}
	s.nodes = append(s.nodes, n)
	return n.N
}

// NewNodeForSym allocates a node referencing a symbol (a terminal,
// nonterminal, or pragma reference within a production).
func (s *Store) NewNodeForSym(typ int, sym *Symbol, line int) int {
	symIdx := NoRef
	if sym != nil {
		symIdx = symRef(sym)
	}
	return s.NewNode(typ, symIdx, NoRef, line)
}

// NewNodeForSub allocates a node whose Sub points at an existing subgraph
// root (alt/iter/opt bodies).
func (s *Store) NewNodeForSub(typ int, sub int, line int) int {
	n := s.NewNode(typ, NoRef, NoRef, line)
	s.nodes[n].Sub = sub
	return n
}

// NewNodeForVal allocates a node carrying a plain integer operand (a
// character-class index or literal code point).
func (s *Store) NewNodeForVal(typ int, val int, line int) int {
	return s.NewNode(typ, NoRef, val, line)
}

// symRef packs a *Symbol into the flat index space node.Sym expects. Since
// terminals, pragmas, and nonterminals are stored in separate vectors but
// Node.Sym is a single int field, references are resolved back to a
// *Symbol via the kind recorded on the node's type rather than via the
// index alone; grammar code that needs the Symbol back uses SymbolFor.
func symRef(sym *Symbol) int {
	return sym.N
}

// SymbolFor resolves a node's Sym reference back to a *Symbol, given the
// node's type to disambiguate which vector to search. Terminal and
// nonterminal references index their vector directly; pragma references
// are rare enough in hot paths that a linear scan is acceptable; callers on a hot path should cache the *Symbol at
// construction time instead (as the meta-parser does).
func (s *Store) SymbolFor(n *Node) *Symbol {
	if n.Sym == NoRef {
		return nil
	}
	switch n.Typ {
	case NTerm, NWeakTerm:
		if n.Sym < len(s.terminals) {
			return s.terminals[n.Sym]
		}
	case NPragma:
		for _, p := range s.pragmas {
			if p.N == n.Sym {
				return p
			}
		}
	case NNonterm:
		if n.Sym < len(s.nonterminals) {
			return s.nonterminals[n.Sym]
		}
	}
	return nil
}

// MakeFirstAlt wraps g into the first alternative of what will become a
// chain of alternatives.
func (s *Store) MakeFirstAlt(g Graph) Graph {
	l := s.NewNodeForSub(NAlt, g.L, s.nodes[g.L].Line)
	s.nodes[g.R].Up = true
	s.nodes[l].Next = g.R
	return Graph{L: l, R: l}
}

// MakeAlternative appends g2 as another alternative of g1; the result is
// stored in (and returned as) g1.
func (s *Store) MakeAlternative(g1, g2 Graph) Graph {
	g2l := s.NewNodeForSub(NAlt, g2.L, s.nodes[g2.L].Line)
	s.nodes[g2l].Up = true
	s.nodes[g2.R].Up = true

	p := g1.L
	for s.nodes[p].Down != NoRef {
		p = s.nodes[p].Down
	}
	s.nodes[p].Down = g2l

	p = g1.R
	for s.nodes[p].Next != NoRef {
		p = s.nodes[p].Next
	}
	s.nodes[p].Next = g2l

	s.nodes[g2l].Next = g2.R

	return g1
}

// MakeSequence concatenates g2 after g1; the result is stored in (and
// returned as) g1.
func (s *Store) MakeSequence(g1, g2 Graph) Graph {
	p := s.nodes[g1.R].Next
	s.nodes[g1.R].Next = g2.L

	for p != NoRef {
		q := s.nodes[p].Next
		s.nodes[p].Next = g2.L
		p = q
	}

	g1.R = g2.R
	return g1
}

// MakeIteration wraps g as a `{ ... }` iteration.
func (s *Store) MakeIteration(g Graph) Graph {
	l := s.NewNodeForSub(NIter, g.L, 0)
	s.nodes[g.R].Up = true

	p := g.R
	for p != NoRef {
		q := s.nodes[p].Next
		s.nodes[p].Next = l
		p = q
	}

	return Graph{L: l, R: l}
}

// MakeOption wraps g as a `[ ... ]` option.
func (s *Store) MakeOption(g Graph) Graph {
	l := s.NewNodeForSub(NOpt, g.L, 0)
	s.nodes[g.R].Up = true
	s.nodes[l].Next = g.R
	return Graph{L: l, R: l}
}

// Finish severs the trailing Next chain left over from graph construction,
// terminating the rightmost alternative's end list.
func (s *Store) Finish(g Graph) {
	p := g.R
	for p != NoRef {
		q := s.nodes[p].Next
		s.nodes[p].Next = NoRef
		p = q
	}
}

// StrToGraph builds a node chain matching the literal characters of a
// quoted string (quotes stripped, escapes resolved). Under IGNORECASE each
// character is folded to lowercase, the same point at which the original
// tool folds literal-pattern matching.
func (s *Store) StrToGraph(lit string) Graph {
	unquoted := lit
	if len(lit) >= 2 {
		unquoted = lit[1 : len(lit)-1]
	}

	str := s.Unescape(unquoted)
	if str == "" {
		s.semErr(0, "empty token not allowed")
	}

	g := Graph{R: s.dummyNode}
	for _, c := range str {
		if s.IgnoreCase {
			c = unicode.ToLower(c)
		}
		p := s.NewNodeForVal(NChar, int(c), 0)
		s.nodes[g.R].Next = p
		g.R = p
	}

	g.L = s.nodes[s.dummyNode].Next
	s.nodes[s.dummyNode].Next = NoRef
	return g
}

// SetContextTrans marks every chr/clas node reachable from p (without
// crossing an Up boundary) as a context transition, for CONTEXT(...)
// productions.
func (s *Store) SetContextTrans(p int) {
	for p != NoRef {
		n := s.nodes[p]
		switch n.Typ {
		case NChar, NClass:
			n.Code = ContextTrans
		case NOpt, NIter:
			s.SetContextTrans(n.Sub)
		case NAlt:
			s.SetContextTrans(n.Sub)
			s.SetContextTrans(n.Down)
		}

		if n.Up {
			break
		}
		p = n.Next
	}
}

// ---------------------------------------------------------------------
// Deletability
// ---------------------------------------------------------------------

// DelGraph reports whether the entire chain starting at p can derive the
// empty string.
func (s *Store) DelGraph(p int) bool {
	if p == NoRef {
		return true
	}
	return s.DelNode(p) && s.DelGraph(s.nodes[p].Next)
}

// DelSubGraph reports whether the chain starting at p can derive the empty
// string, stopping at the first Up boundary (used for alternative bodies,
// which must not look past their own end).
func (s *Store) DelSubGraph(p int) bool {
	if p == NoRef {
		return true
	}
	n := s.nodes[p]
	if !s.DelNode(p) {
		return false
	}
	if n.Up {
		return true
	}
	return s.DelSubGraph(n.Next)
}

// DelNode reports whether the single node p can derive the empty string on
// its own (without considering Next).
func (s *Store) DelNode(p int) bool {
	n := s.nodes[p]

	switch n.Typ {
	case NNonterm:
		sym := s.SymbolFor(n)
		return sym != nil && sym.Deletable
	case NAlt:
		if s.DelSubGraph(n.Sub) {
			return true
		}
		return n.Down != NoRef && s.DelSubGraph(n.Down)
	case NIter, NOpt, NSem, NEps, NSync, NResolver:
		return true
	default:
		return false
	}
}

// CompDeletableSymbols runs the fixed point marking every nonterminal whose
// graph can derive the empty string.
func (s *Store) CompDeletableSymbols() {
	changed := true
	for changed {
		changed = false
		for _, sym := range s.nonterminals {
			if !sym.Deletable && sym.Graph != NoRef && s.DelGraph(sym.Graph) {
				sym.Deletable = true
				changed = true
			}
		}
	}

	for _, sym := range s.nonterminals {
		if sym.Deletable {
			s.warn(fmt.Sprintf(" %s deletable", sym.Name))
		}
	}
}

// ---------------------------------------------------------------------
// Character classes
// ---------------------------------------------------------------------

// NewCharClass declares a new named character class. The name "#" requests
// an auto-generated dummy name (used for anonymous inline classes).
func (s *Store) NewCharClass(name string, set *charset.CharSet) *CharClass {
	if name == "#" {
		name = "#" + string(s.dummyName)
		s.dummyName++
	}

	c := &CharClass{N: len(s.classes), Name: name, Set: set}
	s.classes = append(s.classes, c)
	return c
}

// FindCharClassByName looks up a declared class by name.
func (s *Store) FindCharClassByName(name string) *CharClass {
	for _, c := range s.classes {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// FindCharClassBySet looks up a class whose set is already exactly equal to
// set, so repeated inline uses of the same set share a single class.
func (s *Store) FindCharClassBySet(set *charset.CharSet) *CharClass {
	for _, c := range s.classes {
		if set.Equal(c.Set) {
			return c
		}
	}
	return nil
}

// ---------------------------------------------------------------------
// String handling
// ---------------------------------------------------------------------

// Hex2Char parses a hex digit string (as used in \uXXXX / \xXX escapes)
// into a code point, masked to the valid range.
func (s *Store) Hex2Char(hex string) rune {
	var val int64
	_, err := fmt.Sscanf(hex, "%x", &val)
	if err != nil || val > charset.WCharMax {
		s.semErr(0, "bad escape sequence in string or character")
	}
	return rune(val & charset.WCharMax)
}

// Char2Hex renders a code point as a \uXXXX escape.
func Char2Hex(ch rune) string {
	return fmt.Sprintf("\\u%04X", ch)
}

var simpleEscapes = map[byte]rune{
	'\\': '\\',
	'\'': '\'',
	'"':  '"',
	'r':  '\r',
	'n':  '\n',
	't':  '\t',
	'v':  '\v',
	'0':  0,
	'b':  '\b',
	'f':  '\f',
	'a':  '\a',
}

// Unescape resolves backslash escapes in a grammar string/char literal body
// (quotes already stripped). Unlike the source this is ported from, the
// scan position always advances past whatever it consumed, including plain
// single-character escapes; the source's loop never advanced outside the
// \u/\x branch and would spin forever on an escape like \n.
func (s *Store) Unescape(str string) string {
	var buf []rune
	runes := []rune(str)
	i := 0

	for i < len(runes) {
		c := runes[i]
		if c != '\\' {
			buf = append(buf, c)
			i++
			continue
		}

		if i+1 >= len(runes) {
			s.semErr(0, "bad escape sequence in string or character")
			break
		}

		esc := runes[i+1]
		if esc == 'u' || esc == 'x' {
			if i+6 <= len(runes) {
				buf = append(buf, s.Hex2Char(string(runes[i+2:i+6])))
				i += 6
				continue
			}
			s.semErr(0, "bad escape sequence in string or character")
			break
		}

		if esc > 127 {
			s.semErr(0, "bad escape sequence in string or character")
			break
		}

		cc, ok := simpleEscapes[byte(esc)]
		if !ok {
			s.semErr(0, "bad escape sequence in string or character")
			break
		}

		buf = append(buf, cc)
		i += 2
	}

	return string(buf)
}

// Escape renders str back into grammar-source escaped form, the inverse of
// Unescape, for trace/error output.
func Escape(str string) string {
	var buf []byte
	for _, c := range str {
		switch c {
		case '\\':
			buf = append(buf, '\\', '\\')
		case '\'':
			buf = append(buf, '\\', '\'')
		case '"':
			buf = append(buf, '\\', '"')
		case '\t':
			buf = append(buf, '\\', 't')
		case '\r':
			buf = append(buf, '\\', 'r')
		case '\n':
			buf = append(buf, '\\', 'n')
		default:
			if c >= ' ' && c <= 0x7f {
				buf = append(buf, byte(c))
			} else {
				buf = append(buf, []byte(Char2Hex(c))...)
			}
		}
	}
	return string(buf)
}
