// Package emit defines the thin contracts between the core (grammar store,
// analysis results, and the constructed scanner automaton) and the
// target-language code generators that turn those results into scanner and
// parser source files. Per spec.md §1, the generators' mechanical
// frame-splicing work has no interesting algorithmic content and is treated
// as an external collaborator; this package only owns the interfaces a
// generator implements and the frame-file reader every generator needs,
// grounded on the teacher's interface-segregation style in
// internal/ictiobus/ictiobus.go (Lexer/Parser/SDD as small single-purpose
// interfaces composed by a Frontend).
package emit

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/finback/coco/internal/coco/analysis"
	"github.com/finback/coco/internal/coco/automaton"
	"github.com/finback/coco/internal/coco/grammar"
)

// Result bundles everything a back-end needs to print a scanner and parser
// for one grammar: the populated store, its automaton, and confirmation
// that analysis passed (emission only happens when GrammarOK was true, per
// spec.md §7).
type Result struct {
	Grammar  *grammar.Store
	Scanner  *automaton.Automaton
	Analyzer *analysis.Analyzer
	Namespace string
}

// ScannerEmitter prints a target-language scanner from a frame file plus
// the constructed automaton.
type ScannerEmitter interface {
	EmitScanner(w io.Writer, frame *Frame, r Result) error
}

// ParserEmitter prints a target-language recursive-descent parser from a
// frame file plus the grammar's production graph and analysis sets.
type ParserEmitter interface {
	EmitParser(w io.Writer, frame *Frame, r Result) error
}

// Marker is one sentinel line in a frame file (e.g. "-->declarations").
// Unknown markers are passed through opaquely by ReadFrame — the core has
// no opinion on what a back-end's own markers mean.
type Marker struct {
	Name string
	// Line is the 1-based source line the marker occupies, used by back-ends
	// that report errors against the frame file itself.
	Line int
}

// Frame is a parsed frame file: a sequence of literal text chunks
// interleaved with markers, in file order. A generator walks Chunks,
// copying each Text verbatim and interpolating generated code whenever it
// recognizes a Marker by name.
type Frame struct {
	Chunks []Chunk
}

// Chunk is one element of a parsed Frame: either a literal text span (Marker
// unset) or a marker occurrence (Text empty).
type Chunk struct {
	Text   string
	Marker *Marker
}

// markerPrefix is the sentinel that introduces a frame marker line, per
// spec.md §6.
const markerPrefix = "-->"

// ReadFrame reads a frame file from r, splitting it into literal-text
// chunks and marker chunks at each line beginning with "-->". The core
// does not validate marker names; it is pure mechanical splitting, leaving
// interpretation to the back-end driving emission.
func ReadFrame(r io.Reader) (*Frame, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	f := &Frame{}
	var text strings.Builder
	line := 0

	flush := func() {
		if text.Len() > 0 {
			f.Chunks = append(f.Chunks, Chunk{Text: text.String()})
			text.Reset()
		}
	}

	for scanner.Scan() {
		line++
		raw := scanner.Text()
		if strings.HasPrefix(raw, markerPrefix) {
			flush()
			name := strings.TrimSpace(strings.TrimPrefix(raw, markerPrefix))
			f.Chunks = append(f.Chunks, Chunk{Marker: &Marker{Name: name, Line: line}})
			continue
		}
		text.WriteString(raw)
		text.WriteByte('\n')
	}
	flush()

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read frame: %w", err)
	}
	return f, nil
}

// CopyUntil writes literal chunks verbatim to w, stopping and returning the
// marker name as soon as a marker chunk is reached at or after index
// `from`. It returns the index immediately after the consumed marker, and
// an empty marker name plus an index past the end once no marker remains —
// exactly the "copy until next marker, then interpolate, then resume"
// contract of spec.md §6.
func CopyUntil(w io.Writer, f *Frame, from int) (markerName string, next int, err error) {
	for i := from; i < len(f.Chunks); i++ {
		c := f.Chunks[i]
		if c.Marker != nil {
			return c.Marker.Name, i + 1, nil
		}
		if _, err := io.WriteString(w, c.Text); err != nil {
			return "", i, err
		}
	}
	return "", len(f.Chunks), nil
}
