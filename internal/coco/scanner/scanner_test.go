package scanner

import (
	"strings"
	"testing"

	"github.com/finback/coco/internal/coco/cocoerr"
	"github.com/finback/coco/internal/coco/srcbuf"
	"github.com/stretchr/testify/assert"
)

func newScanner(t *testing.T, src string) (*Scanner, *cocoerr.Counter) {
	t.Helper()
	errs := &cocoerr.Counter{}
	buf := srcbuf.NewBuffer(strings.NewReader(src))
	return New(buf, errs), errs
}

func Test_Scanner_Keywords(t *testing.T) {
	assert := assert.New(t)

	s, errs := newScanner(t, `COMPILER TOKENS PRODUCTIONS END`)
	kinds := []int{}
	for {
		tok := s.Scan()
		if tok.Kind == KindEOF {
			break
		}
		kinds = append(kinds, tok.Kind)
	}

	assert.Equal([]int{KindCompiler, KindTokens, KindProductions, KindEnd}, kinds)
	assert.Equal(0, errs.Count)
}

func Test_Scanner_IdentAndNumber(t *testing.T) {
	assert := assert.New(t)

	s, _ := newScanner(t, `foo_1 42`)
	tok1 := s.Scan()
	tok2 := s.Scan()

	assert.Equal(KindIdent, tok1.Kind)
	assert.Equal("foo_1", tok1.Value)
	assert.Equal(KindNumber, tok2.Kind)
	assert.Equal("42", tok2.Value)
}

func Test_Scanner_StringAndChar(t *testing.T) {
	assert := assert.New(t)

	s, errs := newScanner(t, `"hello\n" 'a' '\''`)
	str := s.Scan()
	ch1 := s.Scan()
	ch2 := s.Scan()

	assert.Equal(KindString, str.Kind)
	assert.Equal(KindChar, ch1.Kind)
	assert.Equal(KindChar, ch2.Kind)
	assert.Equal(0, errs.Count)
}

func Test_Scanner_SkipsBlockComments(t *testing.T) {
	assert := assert.New(t)

	s, errs := newScanner(t, "/* a comment */ ident")
	tok := s.Scan()

	assert.Equal(KindIdent, tok.Kind)
	assert.Equal("ident", tok.Value)
	assert.Equal(0, errs.Count)
}

func Test_Scanner_NestedBlockComments(t *testing.T) {
	assert := assert.New(t)

	s, errs := newScanner(t, "/* a /* b */ c */ ident")
	tok := s.Scan()

	assert.Equal(KindIdent, tok.Kind)
	assert.Equal(0, errs.Count)
}

func Test_Scanner_PunctuationSymbols(t *testing.T) {
	assert := assert.New(t)

	s, _ := newScanner(t, `= . .. <. .> | { } ( )`)
	var got []int
	for {
		tok := s.Scan()
		if tok.Kind == KindEOF {
			break
		}
		got = append(got, tok.Kind)
	}

	assert.Equal([]int{
		KindEq, KindDot, KindDotDot, KindAngleOpenDot, KindDotAngleClose,
		KindPipe, KindLBrace, KindRBrace, KindLParen, KindRParen,
	}, got)
}

func Test_Scanner_Peek_doesNotConsume(t *testing.T) {
	assert := assert.New(t)

	s, _ := newScanner(t, `ident1 ident2`)
	peeked := s.Peek()
	scanned := s.Scan()

	assert.Equal(peeked.Value, scanned.Value)
	assert.Equal("ident2", s.Scan().Value)
}

func Test_Scanner_ScanSemText_stopsAtMatchingDelimiter(t *testing.T) {
	assert := assert.New(t)

	s, _ := newScanner(t, `(. x := "a.)b"; .) REST`)
	tok := s.Scan()
	assert.Equal(KindSemOpen, tok.Kind)

	body := s.ScanSemText()
	assert.Contains(body, `"a.)b"`)

	rest := s.Scan()
	assert.Equal(KindIdent, rest.Kind)
	assert.Equal("REST", rest.Value)
}
