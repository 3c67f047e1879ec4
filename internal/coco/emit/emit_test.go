package emit

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_ReadFrame_SplitsTextAndMarkers(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	src := "package foo\n\n-->declarations\n\nfunc bar() {\n-->begin\n}\n"
	f, err := ReadFrame(strings.NewReader(src))
	require.NoError(err)

	require.Len(f.Chunks, 5)
	assert.Equal("package foo\n\n", f.Chunks[0].Text)
	assert.Nil(f.Chunks[0].Marker)

	require.NotNil(f.Chunks[1].Marker)
	assert.Equal("declarations", f.Chunks[1].Marker.Name)

	assert.Equal("\nfunc bar() {\n", f.Chunks[2].Text)

	require.NotNil(f.Chunks[3].Marker)
	assert.Equal("begin", f.Chunks[3].Marker.Name)
}

func Test_ReadFrame_NoMarkers(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	f, err := ReadFrame(strings.NewReader("just text\nmore text\n"))
	require.NoError(err)
	require.Len(f.Chunks, 1)
	assert.Equal("just text\nmore text\n", f.Chunks[0].Text)
}

func Test_CopyUntil_StopsAtMarkerAndResumes(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	src := "A\n-->one\nB\n-->two\nC\n"
	f, err := ReadFrame(strings.NewReader(src))
	require.NoError(err)

	var out strings.Builder
	name, next, err := CopyUntil(&out, f, 0)
	require.NoError(err)
	assert.Equal("one", name)
	assert.Equal("A\n", out.String())

	out.Reset()
	name, next, err = CopyUntil(&out, f, next)
	require.NoError(err)
	assert.Equal("two", name)
	assert.Equal("B\n", out.String())

	out.Reset()
	name, _, err = CopyUntil(&out, f, next)
	require.NoError(err)
	assert.Equal("", name)
	assert.Equal("C\n", out.String())
}

func Test_CopyUntil_UnknownMarkerIsOpaque(t *testing.T) {
	require := require.New(t)
	assert := assert.New(t)

	f, err := ReadFrame(strings.NewReader("x\n-->whatever-the-backend-calls-it\ny\n"))
	require.NoError(err)

	var out strings.Builder
	name, next, err := CopyUntil(&out, f, 0)
	require.NoError(err)
	assert.Equal("whatever-the-backend-calls-it", name)

	out.Reset()
	_, _, err = CopyUntil(&out, f, next)
	require.NoError(err)
	assert.Equal("y\n", out.String())
}
