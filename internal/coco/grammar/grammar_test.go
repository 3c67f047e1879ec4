package grammar

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_Unescape_Escape_roundTrip(t *testing.T) {
	assert := assert.New(t)

	g := NewStore(nil, nil)
	cases := []string{
		`hello`,
		`line\nbreak`,
		`tab\there`,
		`quote\"inside`,
		`back\\slash`,
		`ABC`,
	}

	for _, c := range cases {
		resolved := g.Unescape(c)
		reescaped := Escape(resolved)
		assert.Equal(resolved, g.Unescape(reescaped), "escape(unescape(s)) must re-unescape to the same text for %q", c)
	}
}

func Test_Unescape_reportsMalformedEscape(t *testing.T) {
	assert := assert.New(t)

	var msgs []string
	g := NewStore(func(line int, msg string) { msgs = append(msgs, msg) }, nil)

	g.Unescape(`bad\qescape`)
	assert.NotEmpty(msgs)
}

func Test_Unescape_advancesPastSimpleEscapes(t *testing.T) {
	assert := assert.New(t)

	g := NewStore(nil, nil)
	// a source bug this is grounded on never advanced the scan index
	// outside the \u/\x branch, which would spin forever on input like
	// this; a plain return proves termination.
	result := g.Unescape(`a\nb\tc`)
	assert.Equal("a\nb\tc", result)
}

func Test_Store_MakeAlternative_buildsDownChain(t *testing.T) {
	assert := assert.New(t)

	g := NewStore(nil, nil)
	a := g.NewSym(SymTerminal, "a", 1)
	b := g.NewSym(SymTerminal, "b", 1)

	n1 := g.NewNodeForSym(NTerm, a, 1)
	n2 := g.NewNodeForSym(NTerm, b, 1)

	alt := g.MakeFirstAlt(Graph{L: n1, R: n1})
	alt = g.MakeAlternative(alt, Graph{L: n2, R: n2})
	g.Finish(alt)

	root := g.NodeAt(alt.L)
	assert.Equal(NAlt, root.Typ)
	assert.NotEqual(NoRef, root.Down)
	assert.Equal(n1, root.Sub)
}

func Test_Store_CompDeletableSymbols(t *testing.T) {
	assert := assert.New(t)

	g := NewStore(nil, nil)
	empty := g.NewSym(SymNonterminal, "Empty", 1)
	eps := g.NewNodeForSub(NEps, NoRef, 1)
	epsGraph := Graph{L: eps, R: eps}
	g.Finish(epsGraph)
	empty.Graph = epsGraph.L

	g.CompDeletableSymbols()
	assert.True(empty.Deletable)
}
