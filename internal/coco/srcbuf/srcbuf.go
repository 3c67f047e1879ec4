// Package srcbuf implements the scanner's seekable source buffer: a
// growable byte window over an io.Reader with random access by byte
// position, and a UTF-8 decoding overlay that presents the same window as
// a stream of code points with BOM detection.
package srcbuf

import (
	"bufio"
	"io"

	"github.com/finback/coco/internal/coco/cocoerr"
	"golang.org/x/text/width"
)

// EOF is returned by Read/Peek once the underlying stream is exhausted. It
// sits one past 0xFFFF, the largest code point the character sets cover, so
// it never collides with a byte or a BMP code point.
const EOF = 0x10000

const (
	minBufferLength = 1024
	maxBufferLength = minBufferLength * 64
)

// Buffer is a seekable window over an io.Reader. Sequential reads grow the
// window on demand, for any stream. A SetPos outside the window re-reads a
// window of up to maxBufferLength bytes from a seekable stream, and fails
// for a non-seekable one (network, console).
type Buffer struct {
	r    io.Reader
	seek io.Seeker // non-nil if r also implements io.Seeker

	buf      []byte
	bufStart int // position of buf[0] in the overall stream
	bufPos   int // current read position within buf
	fileLen  int // known length of the stream so far

	closed bool
}

// NewBuffer wraps r. If r implements io.Seeker, random access seeks
// directly; otherwise the buffer grows to absorb everything read so far,
// matching the original tool's handling of non-seekable streams such as
// network sockets or console input.
func NewBuffer(r io.Reader) *Buffer {
	b := &Buffer{r: r}
	if s, ok := r.(io.Seeker); ok {
		b.seek = s
		if end, err := s.Seek(0, io.SeekEnd); err == nil {
			b.fileLen = int(end)
			s.Seek(0, io.SeekStart)
		}
	}

	initial := minBufferLength
	if b.seek != nil && b.fileLen < initial {
		initial = b.fileLen
	}
	b.buf = make([]byte, 0, initial)
	return b
}

// Copy returns a Buffer sharing the same underlying stream position and
// contents as b, the way a scanner clones its buffer to look ahead without
// disturbing the caller's position.
func (b *Buffer) Copy() *Buffer {
	cp := &Buffer{
		r:        b.r,
		seek:     b.seek,
		buf:      append([]byte(nil), b.buf...),
		bufStart: b.bufStart,
		bufPos:   b.bufPos,
		fileLen:  b.fileLen,
	}
	return cp
}

// Read returns the next byte (0-255) from the stream, or EOF.
func (b *Buffer) Read() int {
	if b.bufPos < len(b.buf) {
		v := b.buf[b.bufPos]
		b.bufPos++
		return int(v)
	}

	if n := b.readNextChunk(); n > 0 {
		v := b.buf[b.bufPos]
		b.bufPos++
		return int(v)
	}

	return EOF
}

// Peek returns the next byte without advancing the read position.
func (b *Buffer) Peek() int {
	cur := b.GetPos()
	ch := b.Read()
	b.SetPos(cur)
	return ch
}

// GetPos returns the absolute stream position of the next byte Read()
// would return.
func (b *Buffer) GetPos() int {
	return b.bufStart + b.bufPos
}

// SetPos seeks to an absolute stream position. For a seekable stream this
// re-fills the window around pos; for a non-seekable stream pos must not
// exceed what has already been read into the buffer.
func (b *Buffer) SetPos(pos int) error {
	if pos < 0 {
		return cocoerr.NewFatal("buffer out of bounds access", nil)
	}

	if b.bufStart <= pos && pos <= b.bufStart+len(b.buf) {
		b.bufPos = pos - b.bufStart
		return nil
	}

	if b.seek == nil {
		return cocoerr.NewFatal("buffer out of bounds access: stream is not seekable", nil)
	}

	readLen := maxBufferLength
	if b.fileLen > 0 && pos+readLen > b.fileLen {
		readLen = b.fileLen - pos
	}
	if readLen < 0 {
		readLen = 0
	}

	if _, err := b.seek.Seek(int64(pos), io.SeekStart); err != nil {
		return cocoerr.NewFatal("seek failed", err)
	}

	newBuf := make([]byte, readLen)
	n, err := io.ReadFull(b.r, newBuf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return cocoerr.NewFatal("read failed", err)
	}

	b.buf = newBuf[:n]
	b.bufStart = pos
	b.bufPos = 0
	return nil
}

func (b *Buffer) readNextChunk() int {
	free := cap(b.buf) - len(b.buf)
	if free == 0 {
		grown := make([]byte, len(b.buf), cap(b.buf)*2+minBufferLength)
		copy(grown, b.buf)
		b.buf = grown
		free = cap(b.buf) - len(b.buf)
	}

	chunk := make([]byte, free)
	n, _ := b.r.Read(chunk)
	if n > 0 {
		b.buf = append(b.buf, chunk[:n]...)
		b.fileLen = b.bufStart + len(b.buf)
	}
	return n
}

// GetString returns the decoded (UTF-8) text between absolute byte
// positions [beg, end), restoring the caller's read position afterward.
func (b *Buffer) GetString(beg, end int) string {
	old := b.GetPos()
	defer b.SetPos(old)

	b.SetPos(beg)
	buf := make([]byte, 0, end-beg)
	for b.GetPos() < end {
		ch := b.Read()
		if ch == EOF {
			break
		}
		buf = append(buf, byte(ch))
	}
	return string(buf)
}

// Close releases any resources held for a seekable file-backed stream.
func (b *Buffer) Close() error {
	if closer, ok := b.r.(io.Closer); ok && !b.closed {
		b.closed = true
		return closer.Close()
	}
	return nil
}

// UTF8Buffer decodes the underlying byte Buffer's contents as UTF-8,
// returning whole code points from Read/Peek instead of raw bytes. It
// embeds the byte-level Buffer rather than duplicating its windowing logic.
type UTF8Buffer struct {
	*Buffer
}

// NewUTF8Buffer wraps base, consuming a leading UTF-8 BOM (EF BB BF) if
// present so its absolute byte positions start after the BOM.
func NewUTF8Buffer(base *Buffer) *UTF8Buffer {
	u := &UTF8Buffer{Buffer: base}
	u.skipBOM()
	return u
}

func (u *UTF8Buffer) skipBOM() {
	start := u.GetPos()
	b0 := u.Buffer.Read()
	b1 := u.Buffer.Read()
	b2 := u.Buffer.Read()
	if b0 == 0xEF && b1 == 0xBB && b2 == 0xBF {
		return
	}
	u.Buffer.SetPos(start)
}

// Read decodes and returns the next UTF-8 code point, or EOF.
func (u *UTF8Buffer) Read() int {
	ch := u.Buffer.Read()
	for ch >= 128 && (ch&0xC0) != 0xC0 && ch != EOF {
		ch = u.Buffer.Read()
	}

	switch {
	case ch < 128 || ch == EOF:
		return ch
	case ch&0xF0 == 0xF0:
		c1 := ch & 0x07
		c2 := u.Buffer.Read() & 0x3F
		c3 := u.Buffer.Read() & 0x3F
		c4 := u.Buffer.Read() & 0x3F
		return (((((c1 << 6) | c2) << 6) | c3) << 6) | c4
	case ch&0xE0 == 0xE0:
		c1 := ch & 0x0F
		c2 := u.Buffer.Read() & 0x3F
		c3 := u.Buffer.Read() & 0x3F
		return (((c1 << 6) | c2) << 6) | c3
	case ch&0xC0 == 0xC0:
		c1 := ch & 0x1F
		c2 := u.Buffer.Read() & 0x3F
		return (c1 << 6) | c2
	default:
		return ch
	}
}

// Peek decodes the next UTF-8 code point without advancing the read
// position.
func (u *UTF8Buffer) Peek() int {
	cur := u.GetPos()
	ch := u.Read()
	u.SetPos(cur)
	return ch
}

// RuneWidth reports the terminal display width of r: 2 columns for East
// Asian wide and fullwidth runes, 1 for every other rune, combining runes
// included. The scanner does not call it; its column counter advances by
// one per code point.
func RuneWidth(r rune) int {
	switch width.LookupRune(r).Kind() {
	case width.EastAsianWide, width.EastAsianFullwidth:
		return 2
	case width.EastAsianNarrow, width.Neutral, width.EastAsianAmbiguous, width.EastAsianHalfwidth:
		return 1
	default:
		return 1
	}
}

// BufferedReaderFrom adapts any io.Reader into a *bufio.Reader sized to
// minBufferLength, the same starting window size Buffer itself uses; scanner
// callers that need direct rune-at-a-time access to a non-seekable console
// stream (rather than Buffer's own chunked growth) can use this instead.
func BufferedReaderFrom(r io.Reader) *bufio.Reader {
	return bufio.NewReaderSize(r, minBufferLength)
}
