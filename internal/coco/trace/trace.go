// Package trace writes the compiler-compiler's trace.txt output: symbol
// table, character classes, syntax graph, automaton states, cross
// reference, and statistics sections, each gated behind one digit of the
// `-trace` flag the way the original tool gates them behind its ddt
// ("debug and diagnostic trace") digit string.
package trace

import (
	"fmt"
	"io"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/finback/coco/internal/coco/automaton"
	"github.com/finback/coco/internal/coco/cocoerr"
	"github.com/finback/coco/internal/coco/grammar"
	"github.com/finback/coco/internal/util"
)

// Trace digit positions, matching the `-trace` CLI flag's documented
// digits (spec.md §6): 0 DFA states, 1 FIRST/FOLLOW, 2 syntax graph nodes,
// 3 FIRST-computation trace, 4 ANY/SYNC sets, 6 symbol table, 7 cross
// reference, 8 statistics. Digit 5 is reserved (unused by this tool, as in
// the original digit layout).
const (
	DigitStates = iota
	DigitFirstFollow
	DigitNodes
	DigitFirstTrace
	DigitAnySync
	_ // reserved
	DigitSymbolTable
	DigitXRef
	DigitStatistics
	digitCount
)

// lineWidth is the column at which set listings wrap, matching the
// original tool's 80-column trace output.
const lineWidth = 76

// Writer renders trace sections to w, gated by which digits were requested.
type Writer struct {
	w    io.Writer
	ddt  [digitCount]bool
	runID string
}

// New parses a ddt digit string (e.g. "068") into a Writer over w. An
// unrecognized digit is ignored rather than rejected, matching the
// original tool's tolerant ddt parsing.
func New(w io.Writer, ddt string) *Writer {
	tw := &Writer{w: w, runID: uuid.NewString()}
	for _, c := range ddt {
		d := int(c - '0')
		if d >= 0 && d < digitCount {
			tw.ddt[d] = true
		}
	}
	return tw
}

// Enabled reports whether the given trace digit was requested.
func (tw *Writer) Enabled(digit int) bool {
	return tw.ddt[digit]
}

func (tw *Writer) section(title string) {
	fmt.Fprintf(tw.w, "\n%s\n%s\n", title, underline(title))
}

func underline(s string) string {
	b := make([]byte, len(s))
	for i := range b {
		b[i] = '-'
	}
	return string(b)
}

// Header writes the run identification banner, always emitted regardless
// of which ddt digits are set.
func (tw *Writer) Header(grammarName string) {
	fmt.Fprintf(tw.w, "Coco trace  run=%s  grammar=%s\n", tw.runID, grammarName)
}

// WriteSymbolTable writes the symbol table (digit 6): every terminal,
// pragma, and nonterminal with its kind, deletability, and FIRST/FOLLOW
// set sizes.
func (tw *Writer) WriteSymbolTable(g *grammar.Store) {
	if !tw.Enabled(DigitSymbolTable) {
		return
	}
	tw.section("Symbol Table")

	writeRow := func(sym *grammar.Symbol, kind string) {
		fmt.Fprintf(tw.w, "%-4d %-20s %-12s del=%-5v first=%-4d follow=%-4d\n",
			sym.N, sym.Name, kind, sym.Deletable, sym.First.Len(), sym.Follow.Len())
	}

	for _, sym := range g.Terminals() {
		writeRow(sym, "terminal")
	}
	for _, sym := range g.Pragmas() {
		writeRow(sym, "pragma")
	}
	for _, sym := range g.Nonterminals() {
		writeRow(sym, "nonterminal")
	}
}

// WriteCharClasses writes the declared character classes (folded into the
// symbol-table digit, matching how the original tool emits them from the
// same `print_sym`-adjacent pass).
func (tw *Writer) WriteCharClasses(g *grammar.Store) {
	if !tw.Enabled(DigitSymbolTable) {
		return
	}
	tw.section("Character Classes")

	usb := &util.UndoableStringBuilder{}
	for _, c := range g.Classes() {
		usb.Reset()
		usb.WriteString(c.Name)
		usb.WriteString(" = ")
		tw.writeWrapped(usb, c.Set.String())
		fmt.Fprintln(tw.w, usb.String())
	}
}

// writeWrapped appends text to usb word-by-word, inserting a newline and
// eight-space continuation indent whenever the running line would exceed
// lineWidth, undoing the offending write and redoing it past the break —
// the same undo-then-rewrap trick print_set uses its string buffer for.
func (tw *Writer) writeWrapped(usb *util.UndoableStringBuilder, text string) {
	lineStart := 0
	for _, word := range splitKeepDelim(text) {
		before := usb.Len()
		usb.WriteString(word)
		if usb.Len()-lineStart > lineWidth && before > lineStart {
			usb.Undo()
			usb.WriteString("\n        ")
			lineStart = before + 1
			usb.WriteString(word)
		}
	}
}

func splitKeepDelim(s string) []string {
	var out []string
	var cur []byte
	for i := 0; i < len(s); i++ {
		cur = append(cur, s[i])
		if s[i] == ',' {
			out = append(out, string(cur))
			cur = nil
		}
	}
	if len(cur) > 0 {
		out = append(out, string(cur))
	}
	return out
}

// WriteFirstFollow writes FIRST/FOLLOW sets for every nonterminal (digit
// 1), each rendered as the names of its terminals in ascending index order.
func (tw *Writer) WriteFirstFollow(g *grammar.Store) {
	if !tw.Enabled(DigitFirstFollow) {
		return
	}
	tw.section("FIRST and FOLLOW sets")

	for _, sym := range g.Nonterminals() {
		fmt.Fprintf(tw.w, "%s\n  first:  %s\n  follow: %s\n",
			sym.Name, formatTermSet(g, sym.First), formatTermSet(g, sym.Follow))
	}
}

func formatTermSet(g *grammar.Store, set util.KeySet[int]) string {
	terms := g.Terminals()
	idxs := set.Elements()
	sort.Ints(idxs)

	names := make([]string, 0, len(idxs))
	for _, i := range idxs {
		if i < len(terms) {
			names = append(names, terms[i].Name)
		}
	}
	return "{" + joinComma(names) + "}"
}

func joinComma(ss []string) string {
	out := ""
	for i, s := range ss {
		if i > 0 {
			out += ", "
		}
		out += s
	}
	return out
}

// WriteNodes writes the syntax-graph node dump (digit 2): one line per
// node with its type, Next/Down/Sub links.
func (tw *Writer) WriteNodes(g *grammar.Store) {
	if !tw.Enabled(DigitNodes) {
		return
	}
	tw.section("Syntax Graph Nodes")

	for _, n := range g.Nodes() {
		fmt.Fprintf(tw.w, "%-4d typ=%-3d next=%-4d down=%-4d sub=%-4d up=%-5v line=%d\n",
			n.N, n.Typ, n.Next, n.Down, n.Sub, n.Up, n.Line)
	}
}

// WriteAnySync writes the narrowed ANY/SYNC sets (digit 4) recorded on
// every NAny/NSync node.
func (tw *Writer) WriteAnySync(g *grammar.Store) {
	if !tw.Enabled(DigitAnySync) {
		return
	}
	tw.section("ANY/SYNC sets")

	for _, n := range g.Nodes() {
		if n.Typ == grammar.NAny || n.Typ == grammar.NSync {
			fmt.Fprintf(tw.w, "node %d: %s\n", n.N, formatTermSet(g, n.AnySet))
		}
	}
}

// WriteAutomaton writes the compiled scanner DFA (digit 0): every state's
// actions and whether it accepts.
func (tw *Writer) WriteAutomaton(a *automaton.Automaton, g *grammar.Store) {
	if !tw.Enabled(DigitStates) {
		return
	}
	tw.section("Automaton States")

	for _, s := range a.States() {
		accept := "-"
		if s.EndOf != grammar.NoRef {
			accept = fmt.Sprintf("accepts sym %d", s.EndOf)
		}
		fmt.Fprintf(tw.w, "state %d (%s)\n", s.Nr, accept)
		for _, act := range s.Actions {
			fmt.Fprintf(tw.w, "    on %s -> %v\n", act.Symbols(g), act.Target)
		}
	}
}

// WriteXRef writes the cross-reference table (digit 7): every symbol and
// the line numbers its name appears on throughout the syntax graph.
func (tw *Writer) WriteXRef(g *grammar.Store) {
	if !tw.Enabled(DigitXRef) {
		return
	}
	tw.section("Cross Reference")

	refs := map[string][]int{}
	for _, n := range g.Nodes() {
		sym := g.SymbolFor(n)
		if sym != nil {
			refs[sym.Name] = append(refs[sym.Name], n.Line)
		}
	}

	names := make([]string, 0, len(refs))
	for name := range refs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		lines := refs[name]
		sort.Ints(lines)
		fmt.Fprintf(tw.w, "%-20s %v\n", name, lines)
	}
}

// WriteStatistics writes the summary counts (digit 8): symbol, node, and
// state counts plus any accumulated errors/warnings, using go-humanize for
// readable thousands separators on larger grammars.
func (tw *Writer) WriteStatistics(g *grammar.Store, a *automaton.Automaton, errs *cocoerr.Counter) {
	if !tw.Enabled(DigitStatistics) {
		return
	}
	tw.section("Statistics")

	fmt.Fprintf(tw.w, "terminals:     %s\n", humanize.Comma(int64(len(g.Terminals()))))
	fmt.Fprintf(tw.w, "pragmas:       %s\n", humanize.Comma(int64(len(g.Pragmas()))))
	fmt.Fprintf(tw.w, "nonterminals:  %s\n", humanize.Comma(int64(len(g.Nonterminals()))))
	fmt.Fprintf(tw.w, "syntax nodes:  %s\n", humanize.Comma(int64(len(g.Nodes()))))
	fmt.Fprintf(tw.w, "char classes:  %s\n", humanize.Comma(int64(len(g.Classes()))))
	if a != nil {
		fmt.Fprintf(tw.w, "automaton states: %s\n", humanize.Comma(int64(len(a.States()))))
	}
	fmt.Fprintf(tw.w, "errors:        %s\n", humanize.Comma(int64(errs.Count)))
	fmt.Fprintf(tw.w, "warnings:      %s\n", humanize.Comma(int64(errs.Warnings())))
}

// WriteAll runs every enabled section in a fixed, readable order.
func (tw *Writer) WriteAll(grammarName string, g *grammar.Store, a *automaton.Automaton, errs *cocoerr.Counter) {
	tw.Header(grammarName)
	tw.WriteSymbolTable(g)
	tw.WriteCharClasses(g)
	tw.WriteNodes(g)
	tw.WriteFirstFollow(g)
	tw.WriteAnySync(g)
	if a != nil {
		tw.WriteAutomaton(a, g)
	}
	tw.WriteXRef(g)
	tw.WriteStatistics(g, a, errs)
}
