// Package analysis implements the fixed-point computations that run over a
// populated grammar store once the meta-parser has finished building the
// syntax graph: deletability, FIRST, ANY-narrowing, FOLLOW, SYNC, LL(1)
// conflict detection, circular-production detection, reachability, and
// resolver-placement validation.
//
// The five set computations must run in this order, each depending on the
// previous: deletability feeds FIRST, FIRST feeds ANY-narrowing and FOLLOW,
// and FOLLOW feeds SYNC. RunAll performs that ordering.
package analysis

import (
	"fmt"

	"github.com/finback/coco/internal/coco/cocoerr"
	"github.com/finback/coco/internal/coco/grammar"
	"github.com/finback/coco/internal/util"
)

// Analyzer runs the grammar-wide fixed points and checks over a Store,
// recording errors and warnings through the given Counter.
type Analyzer struct {
	g    *grammar.Store
	errs *cocoerr.Counter

	visited util.KeySet[int]
	curSy   *grammar.Symbol
}

// New returns an Analyzer bound to g, reporting through errs.
func New(g *grammar.Store, errs *cocoerr.Counter) *Analyzer {
	return &Analyzer{g: g, errs: errs}
}

// RunAll seeds the ANY sets (SetupAnys) and then performs deletability,
// FIRST, ANY-narrowing, FOLLOW, and SYNC in the required order. Call this
// before GrammarOK.
func (a *Analyzer) RunAll() {
	a.SetupAnys()
	a.g.CompDeletableSymbols()
	a.CompFirstSets()
	a.CompAnySets()
	a.CompFollowSets()
	a.CompSyncSets()
}

// ---------------------------------------------------------------------
// FIRST
// ---------------------------------------------------------------------

// First0 computes the FIRST set of the graph chain starting at p, guarding
// against revisiting a node already seen via mark (shared across the
// recursive alternatives of a single top-level First call).
func (a *Analyzer) First0(p int, mark util.KeySet[int]) util.KeySet[int] {
	fs := util.NewKeySet[int]()

	for p != grammar.NoRef {
		node := a.g.NodeAt(p)
		if mark.Has(node.N) {
			break
		}
		mark.Add(node.N)

		switch node.Typ {
		case grammar.NNonterm:
			sym := a.g.SymbolFor(node)
			if sym.FirstReady {
				fs.AddAll(sym.First)
			} else {
				fs.AddAll(a.First0(sym.Graph, mark))
			}
		case grammar.NTerm, grammar.NWeakTerm:
			sym := a.g.SymbolFor(node)
			fs.Add(sym.N)
		case grammar.NAny:
			fs.AddAll(setFromCharset(node))
		case grammar.NAlt:
			fs.AddAll(a.First0(node.Sub, mark))
			fs.AddAll(a.First0(node.Down, mark))
		case grammar.NIter, grammar.NOpt:
			fs.AddAll(a.First0(node.Sub, mark))
		}

		if !a.g.DelNode(p) {
			break
		}
		p = node.Next
	}

	return fs
}

// First computes the FIRST set of the graph chain starting at p.
func (a *Analyzer) First(p int) util.KeySet[int] {
	return a.First0(p, util.NewKeySet[int]())
}

// CompFirstSets computes FIRST for every nonterminal.
func (a *Analyzer) CompFirstSets() {
	for _, sym := range a.g.Nonterminals() {
		sym.First = util.NewKeySet[int]()
		sym.FirstReady = false
	}

	for _, sym := range a.g.Nonterminals() {
		sym.First = a.First(sym.Graph)
		sym.FirstReady = true
	}
}

// ---------------------------------------------------------------------
// FOLLOW
// ---------------------------------------------------------------------

// compFollow walks the chain at p, adding to each nonterminal reference's
// Follow set the FIRST of what comes after it, and recording (in Nts) which
// other nonterminal's FOLLOW set must eventually be folded in because the
// reference occurs at the very end of curSy's graph.
//
// The node-visited guard below reads "not yet visited" (visit each node
// exactly once per top-level call), matching the equivalent guard in
// First0 and CompSync. A transcription of the source this is grounded on
// reads backwards (visits only already-visited nodes, which degenerates
// into visiting nothing); this is the corrected polarity.
func (a *Analyzer) compFollow(p int) {
	for p != grammar.NoRef {
		node := a.g.NodeAt(p)
		if a.visited.Has(node.N) {
			break
		}
		a.visited.Add(node.N)

		switch node.Typ {
		case grammar.NNonterm:
			sym := a.g.SymbolFor(node)
			s := a.First(node.Next)
			sym.Follow.AddAll(s)
			if a.g.DelGraph(node.Next) {
				sym.Nts.Add(a.curSy.N)
			}
		case grammar.NOpt, grammar.NIter:
			a.compFollow(node.Sub)
		case grammar.NAlt:
			a.compFollow(node.Sub)
			a.compFollow(node.Down)
		}

		p = node.Next
	}
}

// complete recursively folds the FOLLOW sets of every nonterminal recorded
// in sym.Nts into sym.Follow, so that end-of-production FOLLOW dependencies
// propagate transitively.
func (a *Analyzer) complete(sym *grammar.Symbol) {
	if a.visited.Has(sym.N) {
		return
	}
	a.visited.Add(sym.N)

	for _, s := range a.g.Nonterminals() {
		if sym.Nts.Has(s.N) {
			a.complete(s)
			sym.Follow.AddAll(s.Follow)
			if sym == a.curSy {
				sym.Nts.Remove(s.N)
			}
		}
	}
}

// CompFollowSets computes FOLLOW for every nonterminal.
func (a *Analyzer) CompFollowSets() {
	for _, sym := range a.g.Nonterminals() {
		sym.Follow = util.NewKeySet[int]()
		sym.Nts = util.NewKeySet[int]()
	}

	a.g.GramSy.Follow.Add(a.g.EofSy.N)

	a.visited = util.NewKeySet[int]()
	for _, sym := range a.g.Nonterminals() {
		a.curSy = sym
		a.compFollow(sym.Graph)
	}

	for _, sym := range a.g.Nonterminals() {
		a.curSy = sym
		a.visited = util.NewKeySet[int]()
		a.complete(sym)
	}
}

// ---------------------------------------------------------------------
// ANY-narrowing
// ---------------------------------------------------------------------

// leadingAny returns the node index of the leading ANY node reachable from
// p without consuming any other symbol first, or NoRef if there is none.
func (a *Analyzer) leadingAny(p int) int {
	if p == grammar.NoRef {
		return grammar.NoRef
	}

	node := a.g.NodeAt(p)
	found := grammar.NoRef

	switch node.Typ {
	case grammar.NAny:
		found = p
	case grammar.NAlt:
		found = a.leadingAny(node.Sub)
		if found == grammar.NoRef {
			found = a.leadingAny(node.Down)
		}
	case grammar.NOpt, grammar.NIter:
		found = a.leadingAny(node.Sub)
	}

	if found == grammar.NoRef && a.g.DelNode(p) && !node.Up {
		found = a.leadingAny(node.Next)
	}

	return found
}

// findAs narrows every ANY node's set reachable from p by subtracting out
// whatever else could appear in the same position, so that an ANY node
// never matches a symbol that a sibling alternative or a following node
// already claims.
func (a *Analyzer) findAs(p int) {
	for p != grammar.NoRef {
		node := a.g.NodeAt(p)

		switch node.Typ {
		case grammar.NOpt, grammar.NIter:
			a.findAs(node.Sub)
			if any := a.leadingAny(node.Sub); any != grammar.NoRef {
				a.subtractFromAny(any, a.First(node.Next))
			}
		case grammar.NAlt:
			s1 := util.NewKeySet[int]()
			q := p
			for q != grammar.NoRef {
				qn := a.g.NodeAt(q)
				a.findAs(qn.Sub)
				if any := a.leadingAny(qn.Sub); any != grammar.NoRef {
					h := a.First(qn.Down)
					h.AddAll(s1)
					a.subtractFromAny(any, h)
				} else {
					s1.AddAll(a.First(qn.Sub))
				}
				q = qn.Down
			}
		}

		// Alternatives preceding an ANY must be excluded from its set: in
		// [a] ANY, {a|b} ANY, [a][b] ANY, (a|) ANY, or A = [a]. A ANY, a
		// (and b) must be removed from the ANY set.
		if a.g.DelNode(p) {
			if any := a.leadingAny(node.Next); any != grammar.NoRef {
				var q int
				if node.Typ == grammar.NNonterm {
					q = a.g.SymbolFor(node).Graph
				} else {
					q = node.Sub
				}
				a.subtractFromAny(any, a.First(q))
			}
		}

		if node.Up {
			break
		}
		p = node.Next
	}
}

func (a *Analyzer) subtractFromAny(anyNodeIdx int, remove util.KeySet[int]) {
	node := a.g.NodeAt(anyNodeIdx)
	set := setFromCharset(node)
	for _, t := range remove.Elements() {
		set.Remove(t)
	}
	writeCharsetSet(node, set)
}

// CompAnySets narrows every ANY node's terminal set for every nonterminal's
// graph.
func (a *Analyzer) CompAnySets() {
	for _, sym := range a.g.Nonterminals() {
		a.findAs(sym.Graph)
	}
}

// SetupAnys seeds every ANY node's candidate set with every terminal index
// except EOF, ready for CompAnySets to narrow. The source this is grounded
// on seeds only {0, len(terminals)} minus EOF, which is almost certainly a
// transcription error: find_as only ever subtracts from the set, so a
// two-element seed could never grow into "every terminal not otherwise
// claimed" the way the scenario it supports requires. Seeding with every
// terminal index is the only reading under which narrowing produces a
// useful ANY set.
func (a *Analyzer) SetupAnys() {
	terminalCount := len(a.g.Terminals())
	for _, node := range a.g.Nodes() {
		if node.Typ == grammar.NAny {
			set := util.NewKeySet[int]()
			for i := 0; i < terminalCount; i++ {
				set.Add(i)
			}
			set.Remove(a.g.EofSy.N)
			writeCharsetSet(node, set)
		}
	}
}

// ---------------------------------------------------------------------
// SYNC
// ---------------------------------------------------------------------

// Expected computes the terminals that may legally follow p: FIRST(p), plus
// curSy's FOLLOW set if p's whole chain is deletable.
func (a *Analyzer) Expected(p int, curSy *grammar.Symbol) util.KeySet[int] {
	s := a.First(p)
	if a.g.DelGraph(p) {
		s.AddAll(curSy.Follow)
	}
	return s
}

// expected0 is Expected, except a resolver node contributes nothing (a
// semantic-predicate node has no terminal content of its own).
func (a *Analyzer) expected0(p int, curSy *grammar.Symbol) util.KeySet[int] {
	if p != grammar.NoRef && a.g.NodeAt(p).Typ == grammar.NResolver {
		return util.NewKeySet[int]()
	}
	return a.Expected(p, curSy)
}

func (a *Analyzer) compSync(p int) {
	for p != grammar.NoRef {
		node := a.g.NodeAt(p)
		if a.visited.Has(node.N) {
			break
		}
		a.visited.Add(node.N)

		switch node.Typ {
		case grammar.NSync:
			s := a.Expected(node.Next, a.curSy)
			s.Add(a.g.EofSy.N)
			a.g.AllSyncSets.AddAll(s)
			writeCharsetSet(node, s)
		case grammar.NAlt:
			a.compSync(node.Sub)
			a.compSync(node.Down)
		case grammar.NOpt, grammar.NIter:
			a.compSync(node.Sub)
		}

		p = node.Next
	}
}

// CompSyncSets computes the resynchronization sets attached to every SYNC
// node, and the union of all of them in Store.AllSyncSets.
func (a *Analyzer) CompSyncSets() {
	a.g.AllSyncSets = util.NewKeySet[int]()
	a.g.AllSyncSets.Add(a.g.EofSy.N)
	a.visited = util.NewKeySet[int]()

	for _, sym := range a.g.Nonterminals() {
		a.curSy = sym
		a.compSync(sym.Graph)
	}
}

// ---------------------------------------------------------------------
// Grammar-wide checks
// ---------------------------------------------------------------------

// GrammarOK runs the structural checks (every nonterminal has a
// production, no circular productions) and, if those pass, the advisory
// checks (reachability, resolver placement, LL(1) conflicts). It reports
// whether the grammar is sound enough to proceed to scanner/parser
// construction.
func (a *Analyzer) GrammarOK() bool {
	ok := a.ntsComplete() && a.NoCircularProductions()
	if ok {
		a.AllNtReached()
		a.CheckResolvers()
		a.CheckLL1()
	}
	return ok
}

func (a *Analyzer) ntsComplete() bool {
	complete := true
	for _, sym := range a.g.Nonterminals() {
		if sym.Graph == grammar.NoRef {
			complete = false
			a.errs.SemanticErr(sym.Line, 0, fmt.Sprintf("  No production for %s", sym.Name))
		}
	}
	return complete
}

// cnode records one single-production dependency edge found by getSingles:
// left derives right via a chain of nothing but deletable material.
type cnode struct {
	left, right *grammar.Symbol
}

func (a *Analyzer) getSingles(p int, singles *[]*grammar.Symbol) {
	if p == grammar.NoRef {
		return
	}
	node := a.g.NodeAt(p)

	switch node.Typ {
	case grammar.NNonterm:
		if node.Up || a.g.DelGraph(node.Next) {
			*singles = append(*singles, a.g.SymbolFor(node))
		}
	case grammar.NAlt, grammar.NIter, grammar.NOpt:
		if node.Up || a.g.DelGraph(node.Next) {
			a.getSingles(node.Sub, singles)
			if node.Typ == grammar.NAlt {
				a.getSingles(node.Down, singles)
			}
		}
	}

	if !node.Up && a.g.DelNode(p) {
		a.getSingles(node.Next, singles)
	}
}

// NoCircularProductions reports whether the grammar has no nonterminal that
// can derive itself through a chain of single-nonterminal productions
// (A -> B, B -> A), reporting every such cycle found as a semantic error.
func (a *Analyzer) NoCircularProductions() bool {
	var list []cnode

	for _, sym := range a.g.Nonterminals() {
		var singles []*grammar.Symbol
		a.getSingles(sym.Graph, &singles)
		for _, s := range singles {
			list = append(list, cnode{left: sym, right: s})
		}
	}

	changed := true
	for changed {
		changed = false
		filtered := list[:0:0]
		for _, n := range list {
			onLeft, onRight := false, false
			for _, m := range list {
				if n.left == m.right {
					onRight = true
				}
				if n.right == m.left {
					onLeft = true
				}
			}
			if onLeft && onRight {
				filtered = append(filtered, n)
			} else {
				changed = true
			}
		}
		list = filtered
	}

	ok := true
	for _, n := range list {
		ok = false
		a.errs.SemanticErr(0, 0, fmt.Sprintf(" %s --> %s", n.left.Name, n.right.Name))
	}

	return ok
}

// ---------------------------------------------------------------------
// LL(1) conflict detection
// ---------------------------------------------------------------------

var ll1Messages = []string{
	"start of several alternatives",
	"start & successor of deletable structure",
	"an ANY node that matches no symbol",
	"contents of [...] or {...} must not be deletable",
}

func (a *Analyzer) ll1Error(cond int, sym *grammar.Symbol) {
	msg := fmt.Sprintf("  LL1 warning in %s: ", a.curSy.Name)
	if sym != nil {
		msg += sym.Name + " is "
	}
	msg += ll1Messages[cond]
	a.errs.Warn(0, 0, msg)
}

func (a *Analyzer) checkOverlap(s1, s2 util.KeySet[int], cond int) {
	for _, sym := range a.g.Terminals() {
		if s1.Has(sym.N) && s2.Has(sym.N) {
			a.ll1Error(cond, sym)
		}
	}
}

func (a *Analyzer) checkAlts(p int) {
	for p != grammar.NoRef {
		node := a.g.NodeAt(p)

		switch node.Typ {
		case grammar.NAlt:
			q := p
			s1 := util.NewKeySet[int]()
			for q != grammar.NoRef {
				qn := a.g.NodeAt(q)
				s2 := a.expected0(qn.Sub, a.curSy)
				a.checkOverlap(s1, s2, 0)
				s1.AddAll(s2)
				a.checkAlts(qn.Sub)
				q = qn.Down
			}
		case grammar.NOpt, grammar.NIter:
			if a.g.DelSubGraph(node.Sub) {
				// Off-by-one correction: the source this is grounded on
				// indexes this case as message 4 into a 4-entry (0-3)
				// table; the intended entry is index 3.
				a.ll1Error(3, nil)
			} else {
				s1 := a.expected0(node.Sub, a.curSy)
				s2 := a.Expected(node.Next, a.curSy)
				a.checkOverlap(s1, s2, 1)
			}
			a.checkAlts(node.Sub)
		case grammar.NAny:
			if setFromCharset(node).Empty() {
				a.ll1Error(2, nil)
			}
		}

		if node.Up {
			break
		}
		p = node.Next
	}
}

// CheckLL1 runs the LL(1) conflict checks over every nonterminal's graph.
func (a *Analyzer) CheckLL1() {
	for _, sym := range a.g.Nonterminals() {
		a.curSy = sym
		a.checkAlts(sym.Graph)
	}
}

// ---------------------------------------------------------------------
// Resolver placement
// ---------------------------------------------------------------------

func (a *Analyzer) resErr(p int, msg string) {
	node := a.g.NodeAt(p)
	line := node.Line
	col := 0
	if node.Pos != nil {
		col = node.Pos.Col
	}
	a.errs.Warn(line, col, msg)
}

func (a *Analyzer) checkRes(p int, rslvAllowed bool) {
	for p != grammar.NoRef {
		node := a.g.NodeAt(p)

		switch node.Typ {
		case grammar.NAlt:
			expected := util.NewKeySet[int]()
			for q := p; q != grammar.NoRef; q = a.g.NodeAt(q).Down {
				expected.AddAll(a.expected0(a.g.NodeAt(q).Sub, a.curSy))
			}

			soFar := util.NewKeySet[int]()
			for q := p; q != grammar.NoRef; q = a.g.NodeAt(q).Down {
				qn := a.g.NodeAt(q)
				sub := a.g.NodeAt(qn.Sub)

				if sub.Typ == grammar.NResolver {
					fs := a.Expected(sub.Next, a.curSy)
					if intersects(fs, soFar) {
						a.resErr(qn.Sub, "Warning: Resolver will never be evaluated. Place it at previous conflicting alternative.")
					}
					if !intersects(fs, expected) {
						a.resErr(qn.Sub, "Warning: Misplaced resolver: no LL(1) conflict.")
					}
				} else {
					soFar.AddAll(a.Expected(qn.Sub, a.curSy))
				}

				a.checkRes(qn.Sub, true)
			}
		case grammar.NIter, grammar.NOpt:
			sub := a.g.NodeAt(node.Sub)
			if sub.Typ == grammar.NResolver {
				fs := a.First(sub.Next)
				fsNext := a.Expected(node.Next, a.curSy)
				if !intersects(fs, fsNext) {
					a.resErr(node.Sub, "Warning: Misplaced resolver: no LL(1) conflict.")
				}
			}
			a.checkRes(node.Sub, true)
		case grammar.NResolver:
			if !rslvAllowed {
				a.resErr(p, "Warning: Misplaced resolver: no alternative.")
			}
		}

		if node.Up {
			break
		}
		p = node.Next
		rslvAllowed = false
	}
}

// CheckResolvers validates that every resolver (`IF(...)`) node actually
// resolves an LL(1) conflict and would be evaluated, warning otherwise.
func (a *Analyzer) CheckResolvers() {
	for _, sym := range a.g.Nonterminals() {
		a.curSy = sym
		a.checkRes(sym.Graph, false)
	}
}

// ---------------------------------------------------------------------
// Reachability
// ---------------------------------------------------------------------

func (a *Analyzer) markReachedNts(p int, visited util.KeySet[int]) {
	for p != grammar.NoRef {
		node := a.g.NodeAt(p)

		switch node.Typ {
		case grammar.NNonterm:
			sym := a.g.SymbolFor(node)
			if !visited.Has(sym.N) {
				visited.Add(sym.N)
				a.markReachedNts(sym.Graph, visited)
			}
		case grammar.NAlt, grammar.NIter, grammar.NOpt:
			a.markReachedNts(node.Sub, visited)
			if node.Typ == grammar.NAlt {
				a.markReachedNts(node.Down, visited)
			}
		}

		if node.Up {
			break
		}
		p = node.Next
	}
}

// AllNtReached reports whether every nonterminal is reachable from the
// grammar's start symbol, warning about any that are not. Unlike the
// source this is grounded on, reachability is tracked through a single
// threaded visited set rather than a receiver field that a same-named local
// variable shadows.
func (a *Analyzer) AllNtReached() bool {
	ok := true
	visited := util.NewKeySet[int]()
	visited.Add(a.g.GramSy.N)
	a.markReachedNts(a.g.GramSy.Graph, visited)

	for _, sym := range a.g.Nonterminals() {
		if !visited.Has(sym.N) {
			ok = false
			a.errs.Warn(sym.Line, 0, fmt.Sprintf(" %s cannot be reached", sym.Name))
		}
	}

	return ok
}

// ---------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------

func intersects(a, b util.KeySet[int]) bool {
	for _, e := range a.Elements() {
		if b.Has(e) {
			return true
		}
	}
	return false
}

// setFromCharset reads an ANY/SYNC node's attached terminal-index set.
func setFromCharset(n *grammar.Node) util.KeySet[int] {
	if n.AnySet == nil {
		return util.NewKeySet[int]()
	}
	return n.AnySet
}

func writeCharsetSet(n *grammar.Node, set util.KeySet[int]) {
	n.AnySet = set
}
