package automaton

import (
	"testing"

	"github.com/finback/coco/internal/coco/grammar"
	"github.com/stretchr/testify/assert"
)

// buildIfThen builds two fixed tokens, "if" and "then", as sibling token
// definitions sharing one NFA, the way the scanner generator assembles the
// whole token set into a single automaton before subset construction.
func buildIfThen(t *testing.T) (*grammar.Store, *Automaton, *grammar.Symbol, *grammar.Symbol) {
	t.Helper()

	g := grammar.NewStore(nil, nil)
	ifSym := g.NewSym(grammar.SymTerminal, "if", 1)
	thenSym := g.NewSym(grammar.SymTerminal, "then", 1)

	ifGraph := g.StrToGraph(`"if"`)
	g.Finish(ifGraph)
	ifSym.Graph = ifGraph.L

	thenGraph := g.StrToGraph(`"then"`)
	g.Finish(thenGraph)
	thenSym.Graph = thenGraph.L

	nfa := New()
	b := NewBuilder(g, nfa)
	b.AddToken(0, ifSym.Graph, ifSym)
	b.AddToken(0, thenSym.Graph, thenSym)

	return g, nfa, ifSym, thenSym
}

func Test_ToDFA_isDeterministic(t *testing.T) {
	assert := assert.New(t)

	g, nfa, _, _ := buildIfThen(t)
	dfa, _ := ToDFA(g, nfa)

	for _, s := range dfa.States() {
		seen := map[int]bool{}
		for _, act := range s.Actions {
			for _, c := range act.Symbols(g).Ranges() {
				for sym := c.From; sym <= c.To; sym++ {
					assert.False(seen[sym], "state %d has more than one outgoing action for code point %d", s.Nr, sym)
					seen[sym] = true
				}
			}
		}
	}
}

func Test_MatchLiteral_acceptsDeclaredLiterals(t *testing.T) {
	assert := assert.New(t)

	g, nfa, ifSym, thenSym := buildIfThen(t)
	dfa, _ := ToDFA(g, nfa)

	assert.Equal(ifSym.N, dfa.MatchLiteral("if", g))
	assert.Equal(thenSym.N, dfa.MatchLiteral("then", g))
	assert.Equal(grammar.NoRef, dfa.MatchLiteral("ifx", g))
	assert.Equal(grammar.NoRef, dfa.MatchLiteral("th", g))
}

func Test_DeleteRedundantStates_keepsOnlyReachable(t *testing.T) {
	assert := assert.New(t)

	a := New()
	s1 := a.newState()
	_ = a.newState() // unreachable
	act := &Action{Typ: ActChar, Sym: 'x'}
	act.AddTarget(Target{State: s1.Nr})
	a.StateAt(0).AddAction(act)

	before := len(a.States())
	a.DeleteRedundantStates()
	assert.Less(len(a.States()), before)
}
