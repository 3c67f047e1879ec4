package analysis

import (
	"testing"

	"github.com/finback/coco/internal/coco/cocoerr"
	"github.com/finback/coco/internal/coco/grammar"
	"github.com/stretchr/testify/assert"
)

// buildABAC builds the grammar:
//
//	S = A .
//	A = a b | a c .
//
// which has an LL(1) conflict: both alternatives of A start with `a`.
func buildABAC(t *testing.T) (*grammar.Store, *grammar.Symbol, *grammar.Symbol) {
	t.Helper()

	g := grammar.NewStore(nil, nil)

	a := g.NewSym(grammar.SymTerminal, "a", 1)
	b := g.NewSym(grammar.SymTerminal, "b", 1)
	c := g.NewSym(grammar.SymTerminal, "c", 1)

	symA := g.NewSym(grammar.SymNonterminal, "A", 1)
	symS := g.NewSym(grammar.SymNonterminal, "S", 1)
	g.GramSy = symS

	// A = a b | a c .
	n1 := g.NewNodeForSym(grammar.NTerm, a, 1)
	n2 := g.NewNodeForSym(grammar.NTerm, b, 1)
	seq1 := g.MakeSequence(grammar.Graph{L: n1, R: n1}, grammar.Graph{L: n2, R: n2})

	n3 := g.NewNodeForSym(grammar.NTerm, a, 1)
	n4 := g.NewNodeForSym(grammar.NTerm, c, 1)
	seq2 := g.MakeSequence(grammar.Graph{L: n3, R: n3}, grammar.Graph{L: n4, R: n4})

	alt := g.MakeFirstAlt(seq1)
	alt = g.MakeAlternative(alt, seq2)
	g.Finish(alt)
	symA.Graph = alt.L

	// S = A .
	ns := g.NewNodeForSym(grammar.NNonterm, symA, 1)
	sGraph := grammar.Graph{L: ns, R: ns}
	g.Finish(sGraph)
	symS.Graph = sGraph.L

	return g, symS, symA
}

func Test_Analyzer_LL1Conflict_S4(t *testing.T) {
	assert := assert.New(t)

	g, _, symA := buildABAC(t)
	errs := &cocoerr.Counter{}
	an := New(g, errs)
	an.RunAll()

	an.CheckLL1()

	assert.Equal(1, errs.Warnings())
	assert.True(symA.First.Has(findTerminal(g, "a").N))
}

func Test_Analyzer_CompFirstSets_isFixedPoint(t *testing.T) {
	assert := assert.New(t)

	g, _, _ := buildABAC(t)
	errs := &cocoerr.Counter{}
	an := New(g, errs)
	an.RunAll()

	first := map[string][]int{}
	for _, sym := range g.Nonterminals() {
		first[sym.Name] = sym.First.Elements()
	}

	// running again must produce identical FIRST sets
	an.CompFirstSets()
	for _, sym := range g.Nonterminals() {
		assert.ElementsMatch(first[sym.Name], sym.First.Elements())
	}
}

func Test_Analyzer_CompFollowSets_startIncludesEOF(t *testing.T) {
	assert := assert.New(t)

	g, symS, _ := buildABAC(t)
	errs := &cocoerr.Counter{}
	an := New(g, errs)
	an.RunAll()

	assert.True(symS.Follow.Has(g.EofSy.N))
}

func Test_Analyzer_DeletableIteration_S2(t *testing.T) {
	assert := assert.New(t)

	g := grammar.NewStore(nil, nil)

	// ident = eps (deletable placeholder) ; tok = { ident } .
	ident := g.NewSym(grammar.SymNonterminal, "ident", 1)
	eps := g.NewNodeForSub(grammar.NEps, grammar.NoRef, 1)
	identGraph := grammar.Graph{L: eps, R: eps}
	g.Finish(identGraph)
	ident.Graph = identGraph.L

	tok := g.NewSym(grammar.SymNonterminal, "tok", 1)
	g.GramSy = tok

	refIdent := g.NewNodeForSym(grammar.NNonterm, ident, 1)
	identRefGraph := grammar.Graph{L: refIdent, R: refIdent}
	iter := g.MakeIteration(identRefGraph)
	g.Finish(iter)
	tok.Graph = iter.L

	errs := &cocoerr.Counter{}
	an := New(g, errs)
	an.RunAll()
	an.curSy = tok
	an.checkAlts(tok.Graph)

	assert.Equal(1, errs.Warnings())
}

func Test_Analyzer_AnyNarrowing_S6(t *testing.T) {
	assert := assert.New(t)

	g := grammar.NewStore(nil, nil)

	ifSym := g.NewSym(grammar.SymTerminal, "if", 1)
	cond := g.NewSym(grammar.SymNonterminal, "Cond", 1)
	condBody := g.NewNodeForSub(grammar.NEps, grammar.NoRef, 1)
	condGraph := grammar.Graph{L: condBody, R: condBody}
	g.Finish(condGraph)
	cond.Graph = condGraph.L

	stmt := g.NewSym(grammar.SymNonterminal, "Stmt", 1)
	g.GramSy = stmt

	nIf := g.NewNodeForSym(grammar.NTerm, ifSym, 1)
	nCond := g.NewNodeForSym(grammar.NNonterm, cond, 1)
	seq := g.MakeSequence(grammar.Graph{L: nIf, R: nIf}, grammar.Graph{L: nCond, R: nCond})

	nAny := g.NewNodeForVal(grammar.NAny, grammar.NoRef, 1)
	anyGraph := grammar.Graph{L: nAny, R: nAny}

	alt := g.MakeFirstAlt(seq)
	alt = g.MakeAlternative(alt, anyGraph)
	g.Finish(alt)
	stmt.Graph = alt.L

	errs := &cocoerr.Counter{}
	an := New(g, errs)
	an.SetupAnys()
	an.RunAll()

	anyNode := g.NodeAt(nAny)
	assert.False(anyNode.AnySet.Has(ifSym.N), "if must be excluded from the ANY set")
	assert.False(anyNode.AnySet.Has(g.EofSy.N), "EOF must be excluded from the ANY set")
}

func findTerminal(g *grammar.Store, name string) *grammar.Symbol {
	for _, s := range g.Terminals() {
		if s.Name == name {
			return s
		}
	}
	return nil
}
