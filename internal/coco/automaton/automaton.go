// Package automaton builds the scanner's token-recognition DFA: it walks
// the token subgraphs of a populated grammar store to build an NFA (one
// state per graph node, epsilon transitions threading alt/iter/opt
// structure), performs subset construction into a DFA (dragon-book
// algorithm 3.20), then minimises it by melting equivalent states,
// removing states that are unreachable from the start state, and combining
// actions that share a target into a single ranged action.
package automaton

import (
	"fmt"
	"sort"

	"github.com/finback/coco/internal/coco/charset"
	"github.com/finback/coco/internal/coco/grammar"
	"github.com/finback/coco/internal/util"
)

// Action kinds.
const (
	ActChar = iota
	ActClass
)

// Target is one element of an Action's target-state vector. Targets are
// kept as a sorted vector (see spec's Open Questions: vector chosen over a
// linked list) so combine_shifts can compare `a.Target[0].State ==
// b.Target[0].State` by index.
type Target struct {
	State int
}

// Action is one outgoing transition of a DFA/NFA state: either a single
// character or a character class, leading to one or more target states
// (more than one only transiently, before subset construction collapses
// them).
type Action struct {
	Typ    int
	Sym    int // character code point, when Typ == ActChar
	Class  int // character-class index, when Typ == ActClass
	Target []Target
	// Ctx marks a transition that consumes appendix context
	// (`CONTEXT(...)`) which must not be included in the matched lexeme.
	Ctx bool
}

// AddTarget inserts t into Action's target vector, keeping it sorted by
// state number and free of duplicates.
func (a *Action) AddTarget(t Target) {
	for _, existing := range a.Target {
		if existing.State == t.State {
			return
		}
	}
	a.Target = append(a.Target, t)
	sort.Slice(a.Target, func(i, j int) bool { return a.Target[i].State < a.Target[j].State })
}

// Symbols returns the set of code points this action matches, resolving a
// class-typed action against the grammar store's declared classes.
func (a *Action) Symbols(g *grammar.Store) *charset.CharSet {
	if a.Typ == ActChar {
		cs := charset.New()
		cs.Set(a.Sym)
		return cs
	}
	return g.Classes()[a.Class].Set.Clone()
}

// ShiftWith narrows this action to only the code points in s, converting a
// class-typed action into a char-typed action if s reduces to a single
// code point.
func (a *Action) ShiftWith(s *charset.CharSet, g *grammar.Store) {
	if s.Elements() == 1 {
		a.Typ = ActChar
		a.Sym = s.First()
	} else if cls := g.FindCharClassBySet(s); cls != nil {
		a.Typ = ActClass
		a.Class = cls.N
	} else {
		name := fmt.Sprintf("#%d", len(g.Classes()))
		cls := g.NewCharClass(name, s)
		a.Typ = ActClass
		a.Class = cls.N
	}
}

// Comment describes one `COMMENTS FROM ... TO ...` declaration.
type Comment struct {
	Start, Stop string
	Nested      bool
}

// State is one state of the NFA (during construction) or DFA (after subset
// construction/minimisation). EndOf is the terminal symbol index accepted
// here, or grammar.NoRef if this state is non-accepting.
type State struct {
	Nr      int
	Actions []*Action
	EndOf   int
	Ctx     bool
	// NFA-only: epsilon successor states, populated while building from
	// the syntax graph and consumed (then discarded) by subset
	// construction.
	Epsilon []int
}

// AddAction appends act to the state's action list.
func (s *State) AddAction(act *Action) {
	s.Actions = append(s.Actions, act)
}

// DetachAction removes act from the state's action list, if present.
func (s *State) DetachAction(act *Action) {
	for i, a := range s.Actions {
		if a == act {
			s.Actions = append(s.Actions[:i], s.Actions[i+1:]...)
			return
		}
	}
}

// MeltWith merges the actions of other into s, used when two DFA states
// are combined during subset construction via a Melted record.
func (s *State) MeltWith(other *State) {
	for _, act := range other.Actions {
		cp := *act
		cp.Target = append([]Target(nil), act.Target...)
		s.Actions = append(s.Actions, &cp)
	}
	if other.EndOf != grammar.NoRef {
		s.EndOf = other.EndOf
	}
	if other.Ctx {
		s.Ctx = true
	}
}

// Melted records that DFA state State represents the NFA state subset Set,
// found during subset construction; it lets later lookups reuse an
// already-built DFA state for an equal subset instead of building a
// duplicate.
type Melted struct {
	Set   util.KeySet[int]
	State int
}

// Automaton owns the vector of NFA or DFA states built for one token
// definition (or, after combination, for the whole scanner).
type Automaton struct {
	states  []*State
	melted  []*Melted
	lastNr  int
}

// New returns an empty Automaton with just the start state (number 0).
func New() *Automaton {
	a := &Automaton{}
	a.newState()
	return a
}

// States returns the owned state vector. The returned slice must not be
// retained across further mutation.
func (a *Automaton) States() []*State { return a.states }

// StateAt returns the state with number nr.
func (a *Automaton) StateAt(nr int) *State { return a.states[nr] }

// LastStateNr returns the highest assigned state number.
func (a *Automaton) LastStateNr() int { return a.lastNr }

func (a *Automaton) newState() *State {
	s := &State{Nr: len(a.states), EndOf: grammar.NoRef}
	a.states = append(a.states, s)
	a.lastNr = s.Nr
	return s
}

// ---------------------------------------------------------------------
// NFA construction from a token's syntax graph
// ---------------------------------------------------------------------

// Builder constructs an NFA by walking token subgraphs node-by-node,
// allocating one NFA state per graph node position the way the scanner
// generator's `number_nodes`/`find_trans` pair does, threaded through
// epsilon transitions for alt/iter/opt structure.
type Builder struct {
	g *grammar.Store
	a *Automaton
}

// NewBuilder returns a Builder that will add states to a, resolving
// node/class references against g.
func NewBuilder(g *grammar.Store, a *Automaton) *Builder {
	return &Builder{g: g, a: a}
}

// AddToken walks the token's graph starting at root and wires its
// transitions from `from`, then marks every state reached once the whole
// chain is consumed as accepting sym. It returns nothing.
func (b *Builder) AddToken(from int, root int, sym *grammar.Symbol) {
	ends := b.step(from, root)
	for _, e := range ends {
		b.a.StateAt(e).EndOf = sym.N
	}
}

// step walks the chain starting at node p, wiring transitions out of
// `from`, and returns the set of state numbers reached once the chain
// (stopping at an Up boundary) is exhausted.
func (b *Builder) step(from int, p int) []int {
	if p == grammar.NoRef {
		return []int{from}
	}

	node := b.g.NodeAt(p)

	switch node.Typ {
	case grammar.NChar:
		to := b.a.newState()
		act := &Action{Typ: ActChar, Sym: node.Val, Ctx: node.Code == grammar.ContextTrans}
		act.AddTarget(Target{State: to.Nr})
		b.a.StateAt(from).AddAction(act)
		return b.continueChain(to.Nr, node)

	case grammar.NClass:
		to := b.a.newState()
		act := &Action{Typ: ActClass, Class: node.Val, Ctx: node.Code == grammar.ContextTrans}
		act.AddTarget(Target{State: to.Nr})
		b.a.StateAt(from).AddAction(act)
		return b.continueChain(to.Nr, node)

	case grammar.NAlt:
		var ends []int
		ends = append(ends, b.step(from, node.Sub)...)
		if node.Down != grammar.NoRef {
			ends = append(ends, b.step(from, node.Down)...)
		}
		if !node.Up {
			var chained []int
			for _, e := range ends {
				chained = append(chained, b.step(e, node.Next)...)
			}
			return chained
		}
		return ends

	case grammar.NIter:
		subEnds := b.step(from, node.Sub)
		for _, e := range subEnds {
			b.mergeState(e, from)
		}
		if node.Up {
			return append([]int{from}, subEnds...)
		}
		return b.step(from, node.Next)

	case grammar.NOpt:
		ends := append([]int{from}, b.step(from, node.Sub)...)
		if node.Up {
			return ends
		}
		var chained []int
		for _, e := range ends {
			chained = append(chained, b.step(e, node.Next)...)
		}
		return chained

	default:
		// eps, sem, sync, rslv nodes carry no transition of their own.
		return b.step(from, node.Next)
	}
}

func (b *Builder) continueChain(at int, node *grammar.Node) []int {
	if node.Up {
		return []int{at}
	}
	return b.step(at, node.Next)
}

// mergeState folds all outgoing actions of state src into dst, used to
// thread an iteration's body back to its own entry state.
func (b *Builder) mergeState(src, dst int) {
	if src == dst {
		return
	}
	from := b.a.StateAt(src)
	to := b.a.StateAt(dst)
	for _, act := range from.Actions {
		to.AddAction(act)
	}
}

// ---------------------------------------------------------------------
// Subset construction (dragon-book algorithm 3.20)
// ---------------------------------------------------------------------

// ToDFA performs subset construction over the NFA nfa (rooted at state 0),
// returning a new deterministic Automaton whose states are each labelled
// with the NFA-state subset they represent via the returned Melted list.
func ToDFA(g *grammar.Store, nfa *Automaton) (*Automaton, []*Melted) {
	dfa := &Automaton{}

	startSet := util.NewKeySet[int]()
	startSet.Add(0)

	var melted []*Melted
	dfaStart := dfa.newState()
	melted = append(melted, &Melted{Set: startSet, State: dfaStart.Nr})

	worklist := []util.KeySet[int]{startSet}

	for len(worklist) > 0 {
		cur := worklist[0]
		worklist = worklist[1:]

		curDFAState := findMelted(melted, cur).State

		// Gather every distinct code point mentioned by an outgoing
		// action of any NFA state in cur.
		inputs := charset.New()
		for _, nr := range cur.Elements() {
			for _, act := range nfa.StateAt(nr).Actions {
				inputs.Or(act.Symbols(g))
			}
		}

		for _, r := range inputs.Ranges() {
			for sym := r.From; sym <= r.To; sym++ {
				target := util.NewKeySet[int]()
				ctx := false
				for _, nr := range cur.Elements() {
					for _, act := range nfa.StateAt(nr).Actions {
						if act.Symbols(g).Get(sym) {
							for _, t := range act.Target {
								target.Add(t.State)
							}
							if act.Ctx {
								ctx = true
							}
						}
					}
				}

				if target.Empty() {
					continue
				}

				m := findMelted(melted, target)
				var toState *State
				if m != nil {
					toState = dfa.StateAt(m.State)
				} else {
					toState = dfa.newState()
					melted = append(melted, &Melted{Set: target, State: toState.Nr})
					worklist = append(worklist, target)

					for _, nr := range target.Elements() {
						if end := nfa.StateAt(nr).EndOf; end != grammar.NoRef {
							toState.EndOf = end
						}
					}
				}

				act := findOrNewAction(dfa.StateAt(curDFAState), sym, ctx)
				act.AddTarget(Target{State: toState.Nr})
			}
		}
	}

	dfa.combineShifts(g)
	return dfa, melted
}

func findMelted(melted []*Melted, set util.KeySet[int]) *Melted {
	for _, m := range melted {
		if keySetEqual(m.Set, set) {
			return m
		}
	}
	return nil
}

func keySetEqual(a, b util.KeySet[int]) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b.Has(k) {
			return false
		}
	}
	return true
}

func findOrNewAction(s *State, sym int, ctx bool) *Action {
	for _, a := range s.Actions {
		if a.Typ == ActChar && a.Sym == sym {
			return a
		}
	}
	act := &Action{Typ: ActChar, Sym: sym, Ctx: ctx}
	s.AddAction(act)
	return act
}

// ---------------------------------------------------------------------
// Minimisation
// ---------------------------------------------------------------------

// combineShifts merges actions of a state that lead to the same target
// state into a single action over the union of their code points,
// converting the action to a class-typed action backed by a freshly
// declared (or reused) character class when the union is not a single
// code point.
func (a *Automaton) combineShifts(g *grammar.Store) {
	for _, s := range a.states {
		for i := 0; i < len(s.Actions); i++ {
			for j := i + 1; j < len(s.Actions); j++ {
				ai, aj := s.Actions[i], s.Actions[j]
				if len(ai.Target) > 0 && len(aj.Target) > 0 && ai.Target[0].State == aj.Target[0].State {
					merged := ai.Symbols(g)
					merged.Or(aj.Symbols(g))
					ai.ShiftWith(merged, g)
					s.DetachAction(aj)
					j--
				}
			}
		}
	}
}

// DeleteRedundantStates removes DFA states that are unreachable from state
// 0 and renumbers the survivors contiguously, rewriting every action target
// to the new numbers. A state that duplicates another reachable state (same
// accept status, same outgoing actions) is kept; duplicates are not merged.
// The reachability bitmap is sized LastStateNr()+1: the
// array-literal precedent this is grounded on reads as ambiguous
// precedence between multiplication and addition; sizing by
// lastStateNr+1 is the only reading that yields a valid bitmap covering
// every assigned state number.
func (a *Automaton) DeleteRedundantStates() {
	n := a.LastStateNr() + 1
	reachable := make([]bool, n)
	reachable[0] = true

	changed := true
	for changed {
		changed = false
		for _, s := range a.states {
			if !reachable[s.Nr] {
				continue
			}
			for _, act := range s.Actions {
				for _, t := range act.Target {
					if !reachable[t.State] {
						reachable[t.State] = true
						changed = true
					}
				}
			}
		}
	}

	newNr := make([]int, n)
	kept := a.states[:0]
	for _, s := range a.states {
		if reachable[s.Nr] {
			newNr[s.Nr] = len(kept)
			kept = append(kept, s)
		}
	}
	renumbered := map[*Action]bool{}
	for _, s := range kept {
		s.Nr = newNr[s.Nr]
		for _, act := range s.Actions {
			if !renumbered[act] {
				renumbered[act] = true
				for i := range act.Target {
					act.Target[i].State = newNr[act.Target[i].State]
				}
			}
		}
	}
	a.states = kept
	a.lastNr = len(kept) - 1
}

// MatchLiteral walks the string s through the DFA from state 0 and reports
// the accepting symbol index reached, or grammar.NoRef if s is not
// accepted. Only the first target of a matching action is followed. The
// pipeline in cmd/coco does not call it: literal graphs are folded into the
// NFA before subset construction instead.
func (a *Automaton) MatchLiteral(s string, g *grammar.Store) int {
	cur := 0
	for _, r := range s {
		next := grammar.NoRef
		for _, act := range a.StateAt(cur).Actions {
			if act.Symbols(g).Get(int(r)) && len(act.Target) > 0 {
				next = act.Target[0].State
				break
			}
		}
		if next == grammar.NoRef {
			return grammar.NoRef
		}
		cur = next
	}
	return a.StateAt(cur).EndOf
}
