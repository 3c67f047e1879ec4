package metaparser

import (
	"strings"
	"testing"

	"github.com/finback/coco/internal/coco/cocoerr"
	"github.com/finback/coco/internal/coco/grammar"
	"github.com/finback/coco/internal/coco/scanner"
	"github.com/finback/coco/internal/coco/srcbuf"
	"github.com/stretchr/testify/assert"
)

func parseSource(t *testing.T, src string) (*grammar.Store, *cocoerr.Counter) {
	t.Helper()

	errs := &cocoerr.Counter{}
	g := grammar.NewStore(
		func(line int, msg string) { errs.SemanticErr(line, 0, msg) },
		func(msg string) { errs.Warn(0, 0, msg) },
	)

	buf := srcbuf.NewBuffer(strings.NewReader(src))
	sc := scanner.New(buf, errs)
	p := New(sc, g, errs)
	p.Parse()

	return g, errs
}

// Test_Parser_HelloGrammar_S1 parses:
//
//	COMPILER G
//	CHARACTERS letter = 'a'..'z'.
//	TOKENS ident = letter { letter }.
//	PRODUCTIONS G = ident.
//	END G.
func Test_Parser_HelloGrammar_S1(t *testing.T) {
	assert := assert.New(t)

	src := `
COMPILER G
CHARACTERS
	letter = 'a'..'z'.
TOKENS
	ident = letter { letter }.
PRODUCTIONS
	G = ident.
END G.
`
	g, errs := parseSource(t, src)

	assert.Equal(0, errs.Count)
	assert.NotNil(g.FindCharClassByName("letter"))
	assert.Equal(26, g.FindCharClassByName("letter").Set.Elements())

	ident := g.FindSym("ident")
	if assert.NotNil(ident) {
		assert.Equal(grammar.SymTerminal, ident.Kind)
		assert.NotEqual(grammar.NoRef, ident.Graph)
	}

	gramSy := g.FindSym("G")
	if assert.NotNil(gramSy) {
		assert.NotEqual(grammar.NoRef, gramSy.Graph)
	}
}

// Test_Parser_AmbiguousFixedTokens_S3 parses two distinct terminals that
// both spell the fixed token "if", which must be reported as
// indistinguishable.
func Test_Parser_AmbiguousFixedTokens_S3(t *testing.T) {
	assert := assert.New(t)

	src := `
COMPILER G
TOKENS
	a = "if".
	b = "if".
PRODUCTIONS
	G = a.
END G.
`
	_, errs := parseSource(t, src)
	assert.Greater(errs.Count, 0)
}

func Test_Parser_NestedComments_S5_declaration(t *testing.T) {
	assert := assert.New(t)

	src := `
COMPILER G
COMMENTS FROM "/*" TO "*/" NESTED
PRODUCTIONS
	G = "x".
END G.
`
	g, errs := parseSource(t, src)
	assert.Equal(0, errs.Count)
	if assert.Len(g.Comments, 1) {
		assert.Equal("/*", g.Comments[0].Start)
		assert.Equal("*/", g.Comments[0].Stop)
		assert.True(g.Comments[0].Nested)
	}
}

func Test_Parser_LL1ConflictGrammar_S4(t *testing.T) {
	assert := assert.New(t)

	src := `
COMPILER G
TOKENS
	a = "a".
	b = "b".
	c = "c".
PRODUCTIONS
	A = a b | a c.
	G = A.
END G.
`
	_, errs := parseSource(t, src)
	assert.Equal(0, errs.Count, "parsing itself should not fail; LL(1) conflicts are reported by the analysis pass")
}

func Test_Parser_IgnoreSet(t *testing.T) {
	assert := assert.New(t)

	src := `
COMPILER G
IGNORE " " + '\t'
PRODUCTIONS
	G = "x".
END G.
`
	g, errs := parseSource(t, src)
	assert.Equal(0, errs.Count)
	if assert.NotNil(g.Ignored) {
		assert.True(g.Ignored.Get(' '))
		assert.True(g.Ignored.Get('\t'))
	}
}
