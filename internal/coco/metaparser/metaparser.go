// Package metaparser implements the recursive-descent parser for the
// grammar-description language: the Coco production and everything it
// reaches (character classes, token declarations, comment declarations,
// and the production graph grammar of Expression/Term/Factor). It drives
// the grammar store (internal/coco/grammar) the same way the original
// tool's own parser drives its Tab object, one declaration at a time. A
// syntax error is recorded and parsing goes on from the current token
// instead of aborting the run; no input is skipped to resynchronize.
package metaparser

import (
	"strings"
	"unicode"

	"github.com/finback/coco/internal/coco/charset"
	"github.com/finback/coco/internal/coco/cocoerr"
	"github.com/finback/coco/internal/coco/grammar"
	"github.com/finback/coco/internal/coco/scanner"
)

// Parser holds the state of one parse of a single grammar-description
// source: the scanner it reads tokens from, the grammar store it
// populates, and the one-token lookahead the grammar rules below consume.
type Parser struct {
	s    *scanner.Scanner
	g    *grammar.Store
	errs *cocoerr.Counter

	cur scanner.Token
	la  scanner.Token
}

// New creates a Parser reading tokens from s and populating g. Syntax and
// semantic diagnostics are recorded on errs.
func New(s *scanner.Scanner, g *grammar.Store, errs *cocoerr.Counter) *Parser {
	p := &Parser{s: s, g: g, errs: errs}
	p.la = s.Scan()
	return p
}

func (p *Parser) get() {
	p.cur = p.la
	p.la = p.s.Scan()
}

// expect consumes la if it matches kind, recording a syntax error (using
// kind itself as the standard message-table index, since Kind constants
// and message-table indices share the same ordering) otherwise.
func (p *Parser) expect(kind int) scanner.Token {
	if p.la.Kind == kind {
		t := p.la
		p.get()
		return t
	}
	p.errs.SyntaxErr(p.la.Line, p.la.Col, kind)
	return p.la
}

func (p *Parser) at(kind int) bool {
	return p.la.Kind == kind
}

// skipTo resynchronizes by discarding tokens until one in stop (or EOF) is
// reached. None of the grammar rules below calls it.
func (p *Parser) skipTo(stop ...int) {
	for {
		for _, k := range stop {
			if p.la.Kind == k || p.la.Kind == scanner.KindEOF {
				return
			}
		}
		p.get()
	}
}

// Parse runs the Coco production once over the input and returns when it
// completes; the number of syntax errors does not stop it early.
func (p *Parser) Parse() {
	p.coco()
}

// Coco = "COMPILER" ident SemTextOpt
//
//	["IGNORECASE"]
//	["CHARACTERS" {SetDecl}]
//	["TOKENS" {TokenDecl}]
//	["PRAGMAS" {TokenDecl}]
//	{"COMMENTS" "FROM" TokenExpr "TO" TokenExpr ["NESTED"]}
//	{"IGNORE" Set}
//	"PRODUCTIONS" {Production}
//	"END" ident "." .
func (p *Parser) coco() {
	p.expect(scanner.KindCompiler)
	name := p.expect(scanner.KindIdent).Value
	p.g.GramSy = p.g.NewSym(grammar.SymNonterminal, name, p.cur.Line)

	if p.at(scanner.KindSemOpen) {
		p.get()
		p.s.ScanSemText()
	}

	if p.at(scanner.KindIgnoreCase) {
		p.get()
		p.g.IgnoreCase = true
	}

	if p.at(scanner.KindCharacters) {
		p.get()
		for p.at(scanner.KindIdent) {
			p.setDecl()
		}
	}

	if p.at(scanner.KindTokens) {
		p.get()
		for p.at(scanner.KindIdent) || p.at(scanner.KindString) || p.at(scanner.KindChar) {
			p.tokenDecl(grammar.SymTerminal)
		}
	}

	if p.at(scanner.KindPragmas) {
		p.get()
		for p.at(scanner.KindIdent) || p.at(scanner.KindString) || p.at(scanner.KindChar) {
			p.tokenDecl(grammar.SymPragma)
		}
	}
	p.g.RenumberPragmas()

	for p.at(scanner.KindComments) {
		p.get()
		p.expect(scanner.KindFrom)
		from := p.tokenExprLiteral()
		p.expect(scanner.KindTo)
		to := p.tokenExprLiteral()
		nested := false
		if p.at(scanner.KindNested) {
			p.get()
			nested = true
		}
		p.g.Comments = append(p.g.Comments, grammar.CommentSpec{Start: from, Stop: to, Nested: nested})
	}

	ignored := charset.New()
	for p.at(scanner.KindIgnore) {
		p.get()
		ignored.Or(p.set())
	}
	if !ignored.Empty() {
		p.g.Ignored = ignored
	}

	p.expect(scanner.KindProductions)
	for p.at(scanner.KindIdent) {
		p.production()
	}

	p.expect(scanner.KindEnd)
	endName := p.expect(scanner.KindIdent).Value
	if endName != name {
		p.errs.SemanticErr(p.cur.Line, p.cur.Col, "identifier after END must match the COMPILER name")
	}
	p.expect(scanner.KindDot)
}

// ---------------------------------------------------------------------
// Character classes
// ---------------------------------------------------------------------

// SetDecl = ident "=" Set "." .
func (p *Parser) setDecl() {
	name := p.expect(scanner.KindIdent).Value
	line := p.cur.Line
	p.expect(scanner.KindEq)
	set := p.set()
	p.expect(scanner.KindDot)

	if p.g.FindCharClassByName(name) != nil {
		// first definition wins; report without replacing, matching how
		// a duplicate declaration of any other kind is handled.
		p.errs.SemanticErr(line, 0, "name "+name+" declared twice")
		return
	}
	p.g.NewCharClass(name, set)
}

// Set = SimSet {("+" | "-") SimSet} .
func (p *Parser) set() *charset.CharSet {
	result := p.simSet()
	for p.at(scanner.KindPlus) || p.at(scanner.KindMinus) {
		minus := p.at(scanner.KindMinus)
		p.get()
		other := p.simSet()
		if minus {
			result.Subtract(other)
		} else {
			result.Or(other)
		}
	}
	return result
}

// SimSet = ident | string | char [".." char] .
func (p *Parser) simSet() *charset.CharSet {
	result := charset.New()

	switch {
	case p.at(scanner.KindIdent):
		name := p.expect(scanner.KindIdent).Value
		if cc := p.g.FindCharClassByName(name); cc != nil {
			return cc.Set.Clone()
		}
		p.errs.SemanticErr(p.cur.Line, p.cur.Col, "undefined character class "+name)
		return result

	case p.at(scanner.KindString):
		lit := p.expect(scanner.KindString).Value
		for _, c := range p.g.Unescape(unquote(lit)) {
			result.Set(p.fold(int(c)))
		}
		return result

	case p.at(scanner.KindChar):
		lo := p.parseChar()
		if p.at(scanner.KindDotDot) {
			p.get()
			hi := p.parseChar()
			for c := lo; c <= hi; c++ {
				result.Set(c)
			}
		} else {
			result.Set(lo)
		}
		return result

	default:
		p.errs.SyntaxErr(p.la.Line, p.la.Col, 53) // invalid SimSet
		p.get()
		return result
	}
}

func (p *Parser) parseChar() int {
	tok := p.expect(scanner.KindChar)
	body := unquote(tok.Value)
	resolved := p.g.Unescape(body)
	if resolved == "" {
		return 0
	}
	return p.fold(int([]rune(resolved)[0]))
}

func unquote(lit string) string {
	if len(lit) >= 2 {
		return lit[1 : len(lit)-1]
	}
	return lit
}

// fold lowercases a code point when the grammar was declared IGNORECASE,
// the point at which the original tool folds single-character and
// character-set literal matching to one case; outside IGNORECASE it is
// the identity.
func (p *Parser) fold(ch int) int {
	if !p.g.IgnoreCase {
		return ch
	}
	return int(unicode.ToLower(rune(ch)))
}

// ---------------------------------------------------------------------
// Token and pragma declarations
// ---------------------------------------------------------------------

// TokenDecl(kind) = Sym ["=" TokenExpr "."] SemTextOpt .
func (p *Parser) tokenDecl(kind int) *grammar.Symbol {
	name, line := p.symName()
	sym := p.g.FindSym(name)
	if sym == nil {
		sym = p.g.NewSym(kind, name, line)
	}

	if p.at(scanner.KindEq) {
		p.get()
		expr, isLiteral, litSpelling := p.tokenExpr()
		p.expect(scanner.KindDot)
		p.g.Finish(expr)
		sym.Graph = expr.L

		if isLiteral {
			sym.TokenKind = grammar.FixedToken
			p.registerLiteral(litSpelling, sym)
		} else {
			sym.TokenKind = grammar.ClassToken
		}
	} else {
		sym.TokenKind = grammar.FixedToken
		p.registerLiteral("\""+name+"\"", sym)
	}

	if p.at(scanner.KindSemOpen) {
		p.get()
		p.s.ScanSemText()
	}

	return sym
}

func (p *Parser) symName() (string, int) {
	switch {
	case p.at(scanner.KindIdent):
		t := p.expect(scanner.KindIdent)
		return t.Value, t.Line
	case p.at(scanner.KindString), p.at(scanner.KindChar):
		t := p.get2()
		return t.Value, t.Line
	default:
		p.errs.SyntaxErr(p.la.Line, p.la.Col, 54) // invalid Sym
		p.get()
		return "???", p.cur.Line
	}
}

// get2 consumes and returns la (used where the accepted kind was already
// checked by the caller via at()).
func (p *Parser) get2() scanner.Token {
	t := p.la
	p.get()
	return t
}

func (p *Parser) registerLiteral(spelling string, sym *grammar.Symbol) {
	// Folded so that under IGNORECASE two spellings differing only in case,
	// e.g. "if" and "IF", are registered as the one literal the DFA actually
	// matches and collide the same way two identical spellings would.
	key := spelling
	if p.g.IgnoreCase {
		key = strings.ToLower(spelling)
	}

	if existing, ok := p.g.Literals[key]; ok && existing != sym {
		p.errs.SemanticErr(p.cur.Line, p.cur.Col, "tokens "+existing.Name+" and "+sym.Name+" cannot be distinguished")
		return
	}
	p.g.Literals[key] = sym
	p.s.DeclareLiteral(unquote(key), sym.Name)
}

// tokenExpr parses the pattern grammar used by TOKENS/PRAGMAS declarations
// (COMMENTS delimiters go through tokenExprLiteral instead): the same Expression grammar productions use, but it also
// reports whether the entire expression reduced to a single quoted-string
// literal (no alternation, no repetition), the condition under which the
// original tool promotes a token to fixed/literal status rather than
// building it into the scanner's DFA as a pattern.
func (p *Parser) tokenExpr() (grammar.Graph, bool, string) {
	if p.at(scanner.KindString) && p.s.Peek().Kind == scanner.KindDot {
		lit := p.expect(scanner.KindString)
		return p.g.StrToGraph(lit.Value), true, lit.Value
	}
	return p.tokenExpression(), false, ""
}

// tokenExpression/tokenTerm/tokenFactor mirror Expression/Term/Factor but
// range over character-level alternatives: a token pattern's Sym can name
// a declared character class (producing a clas node) in addition to
// string and char literals, where a production body's Sym instead names a
// terminal or nonterminal symbol. Keeping these as separate productions,
// as the grammar itself does, avoids conflating "name refers to a
// character class" with "name refers to a grammar symbol".
func (p *Parser) tokenExpression() grammar.Graph {
	g := p.tokenTerm()
	for p.at(scanner.KindPipe) {
		p.get()
		g2 := p.tokenTerm()
		if p.g.NodeAt(g.L).Typ != grammar.NAlt {
			g = p.g.MakeFirstAlt(g)
		}
		g = p.g.MakeAlternative(g, g2)
	}
	return g
}

func startsTokenFactor(kind int) bool {
	switch kind {
	case scanner.KindIdent, scanner.KindString, scanner.KindChar,
		scanner.KindLParen, scanner.KindLBracket, scanner.KindLBrace:
		return true
	default:
		return false
	}
}

func (p *Parser) tokenTerm() grammar.Graph {
	if !startsTokenFactor(p.la.Kind) {
		eps := p.g.NewNodeForSub(grammar.NEps, grammar.NoRef, p.la.Line)
		return grammar.Graph{L: eps, R: eps}
	}

	g := p.tokenFactor()
	for startsTokenFactor(p.la.Kind) {
		g2 := p.tokenFactor()
		g = p.g.MakeSequence(g, g2)
	}
	return g
}

func (p *Parser) tokenFactor() grammar.Graph {
	line := p.la.Line

	switch {
	case p.at(scanner.KindIdent):
		name := p.expect(scanner.KindIdent).Value
		cc := p.g.FindCharClassByName(name)
		if cc == nil {
			p.errs.SemanticErr(line, 0, "undefined character class "+name)
			n := p.g.NewNodeForSub(grammar.NEps, grammar.NoRef, line)
			return grammar.Graph{L: n, R: n}
		}
		n := p.g.NewNodeForVal(grammar.NClass, cc.N, line)
		return grammar.Graph{L: n, R: n}

	case p.at(scanner.KindString):
		lit := p.expect(scanner.KindString)
		return p.g.StrToGraph(lit.Value)

	case p.at(scanner.KindChar):
		tok := p.expect(scanner.KindChar)
		resolved := p.g.Unescape(unquote(tok.Value))
		ch := 0
		if resolved != "" {
			ch = p.fold(int([]rune(resolved)[0]))
		}
		n := p.g.NewNodeForVal(grammar.NChar, ch, line)
		return grammar.Graph{L: n, R: n}

	case p.at(scanner.KindLParen):
		p.get()
		g := p.tokenExpression()
		p.expect(scanner.KindRParen)
		return g

	case p.at(scanner.KindLBracket):
		p.get()
		g := p.tokenExpression()
		p.expect(scanner.KindRBracket)
		return p.g.MakeOption(g)

	case p.at(scanner.KindLBrace):
		p.get()
		g := p.tokenExpression()
		p.expect(scanner.KindRBrace)
		return p.g.MakeIteration(g)

	default:
		p.errs.SyntaxErr(p.la.Line, p.la.Col, 62) // invalid TokenFactor
		p.get()
		n := p.g.NewNodeForSub(grammar.NEps, grammar.NoRef, line)
		return grammar.Graph{L: n, R: n}
	}
}

// tokenExprLiteral parses a TokenExpr used in a COMMENTS declaration,
// where only a literal (possibly multi-character) delimiter string is
// meaningful; returns its unescaped text.
func (p *Parser) tokenExprLiteral() string {
	var lit string
	switch {
	case p.at(scanner.KindString):
		lit = p.g.Unescape(unquote(p.expect(scanner.KindString).Value))
	case p.at(scanner.KindChar):
		lit = p.g.Unescape(unquote(p.expect(scanner.KindChar).Value))
	default:
		p.errs.SyntaxErr(p.la.Line, p.la.Col, 3)
		p.get()
		return ""
	}
	if p.g.IgnoreCase {
		lit = strings.ToLower(lit)
	}
	return lit
}

// ---------------------------------------------------------------------
// Productions
// ---------------------------------------------------------------------

// Production = ident SemTextOpt "=" Expression "." .
func (p *Parser) production() {
	name := p.expect(scanner.KindIdent).Value
	line := p.cur.Line

	sym := p.g.FindSym(name)
	if sym == nil {
		sym = p.g.NewSym(grammar.SymNonterminal, name, line)
	} else if sym.Graph != grammar.NoRef {
		p.errs.SemanticErr(line, 0, "name "+name+" declared twice")
	}

	if p.at(scanner.KindSemOpen) {
		p.get()
		p.s.ScanSemText()
	}

	p.expect(scanner.KindEq)
	g := p.expression()
	p.expect(scanner.KindDot)
	p.g.Finish(g)
	sym.Graph = g.L
}

// Expression = Term {"|" Term} .
func (p *Parser) expression() grammar.Graph {
	g := p.term()
	for p.at(scanner.KindPipe) {
		p.get()
		g2 := p.term()
		if p.g.NodeAt(g.L).Typ != grammar.NAlt {
			g = p.g.MakeFirstAlt(g)
		}
		g = p.g.MakeAlternative(g, g2)
	}
	return g
}

// startsFactor reports whether kind can begin a Factor, the production's
// own FIRST set used to decide when a Term has run out of Factors.
func startsFactor(kind int) bool {
	switch kind {
	case scanner.KindIdent, scanner.KindString, scanner.KindChar,
		scanner.KindLParen, scanner.KindLBracket, scanner.KindLBrace,
		scanner.KindSemOpen, scanner.KindAny, scanner.KindSync,
		scanner.KindWeak, scanner.KindIf:
		return true
	default:
		return false
	}
}

// Term = Factor {Factor} | /* empty */ .
func (p *Parser) term() grammar.Graph {
	if !startsFactor(p.la.Kind) {
		eps := p.g.NewNodeForSub(grammar.NEps, grammar.NoRef, p.la.Line)
		return grammar.Graph{L: eps, R: eps}
	}

	g := p.factor()
	for startsFactor(p.la.Kind) {
		g2 := p.factor()
		g = p.g.MakeSequence(g, g2)
	}
	return g
}

// Factor = Sym [Attribs]
//
//	| "(" Expression ")"
//	| "[" Expression "]"
//	| "{" Expression "}"
//	| SemText
//	| "ANY"
//	| "SYNC"
//	| "WEAK" Sym
//	| "IF" "(" anything ")" .
func (p *Parser) factor() grammar.Graph {
	line := p.la.Line

	switch {
	case p.at(scanner.KindIdent):
		return p.symbolFactor(line)

	case p.at(scanner.KindString):
		lit := p.expect(scanner.KindString)
		return p.g.StrToGraph(lit.Value)

	case p.at(scanner.KindChar):
		tok := p.expect(scanner.KindChar)
		resolved := p.g.Unescape(unquote(tok.Value))
		ch := 0
		if resolved != "" {
			ch = p.fold(int([]rune(resolved)[0]))
		}
		n := p.g.NewNodeForVal(grammar.NChar, ch, line)
		return grammar.Graph{L: n, R: n}

	case p.at(scanner.KindLParen):
		p.get()
		g := p.expression()
		p.expect(scanner.KindRParen)
		return g

	case p.at(scanner.KindLBracket):
		p.get()
		g := p.expression()
		p.expect(scanner.KindRBracket)
		return p.g.MakeOption(g)

	case p.at(scanner.KindLBrace):
		p.get()
		g := p.expression()
		p.expect(scanner.KindRBrace)
		return p.g.MakeIteration(g)

	case p.at(scanner.KindSemOpen):
		p.get()
		p.s.ScanSemText()
		n := p.g.NewNodeForSub(grammar.NSem, grammar.NoRef, line)
		return grammar.Graph{L: n, R: n}

	case p.at(scanner.KindAny):
		p.get()
		n := p.g.NewNodeForVal(grammar.NAny, grammar.NoRef, line)
		return grammar.Graph{L: n, R: n}

	case p.at(scanner.KindSync):
		p.get()
		n := p.g.NewNodeForVal(grammar.NSync, grammar.NoRef, line)
		return grammar.Graph{L: n, R: n}

	case p.at(scanner.KindWeak):
		p.get()
		g := p.symbolFactor(line)
		if n := p.g.NodeAt(g.L); n.Typ == grammar.NTerm {
			n.Typ = grammar.NWeakTerm
		}
		return g

	case p.at(scanner.KindIf):
		p.get()
		p.expect(scanner.KindLParen)
		p.skipBalancedCondition()
		n := p.g.NewNodeForSub(grammar.NResolver, grammar.NoRef, line)
		return grammar.Graph{L: n, R: n}

	default:
		p.errs.SyntaxErr(p.la.Line, p.la.Col, 56) // invalid Factor
		p.get()
		n := p.g.NewNodeForSub(grammar.NEps, grammar.NoRef, line)
		return grammar.Graph{L: n, R: n}
	}
}

// symbolFactor resolves an identifier reference to a terminal or
// nonterminal, declaring a forward-referenced nonterminal (no Graph yet)
// if it hasn't been seen before; the production body that actually
// defines it may appear later in the PRODUCTIONS section.
func (p *Parser) symbolFactor(line int) grammar.Graph {
	name := p.expect(scanner.KindIdent).Value

	sym := p.g.FindSym(name)
	if sym == nil {
		sym = p.g.NewSym(grammar.SymNonterminal, name, line)
	}

	var n int
	if sym.Kind == grammar.SymNonterminal {
		n = p.g.NewNodeForSym(grammar.NNonterm, sym, line)
	} else {
		n = p.g.NewNodeForSym(grammar.NTerm, sym, line)
	}

	// optional attribute list; attribute code generation is outside this
	// tool's scope, so its text is discarded after being scanned past.
	if p.at(scanner.KindLt) {
		p.get()
		p.skipBalancedAttribs(scanner.KindGt)
	} else if p.at(scanner.KindAngleOpenDot) {
		p.get()
		p.skipBalancedAttribs(scanner.KindDotAngleClose)
	}

	return grammar.Graph{L: n, R: n}
}

// skipBalancedAttribs discards tokens up to the matching close delimiter,
// respecting nested "(" "[" "{" so a close token inside a parameter list
// doesn't end the attribute text early.
func (p *Parser) skipBalancedAttribs(closeKind int) {
	depth := 0
	for {
		if p.la.Kind == scanner.KindEOF {
			return
		}
		if depth == 0 && p.la.Kind == closeKind {
			p.get()
			return
		}
		switch p.la.Kind {
		case scanner.KindLParen, scanner.KindLBracket, scanner.KindLBrace:
			depth++
		case scanner.KindRParen, scanner.KindRBracket, scanner.KindRBrace:
			if depth > 0 {
				depth--
			}
		}
		p.get()
	}
}

// skipBalancedCondition discards an IF(...) resolver's condition tokens up
// to its matching ")", which this parser treats as opaque (target-language
// boolean expressions aren't evaluated by this tool).
func (p *Parser) skipBalancedCondition() {
	depth := 0
	for {
		if p.la.Kind == scanner.KindEOF {
			return
		}
		if p.la.Kind == scanner.KindLParen {
			depth++
		}
		if p.la.Kind == scanner.KindRParen {
			if depth == 0 {
				p.get()
				return
			}
			depth--
		}
		p.get()
	}
}
