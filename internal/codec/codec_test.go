package codec

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	header := &Header{
		Version:         Version,
		CheckVisibility: true,
		ScanRoot:        "/",
		Config:          []byte("prune_paths=/proc\x00"),
	}
	require.NoError(t, w.WriteHeader(header))

	require.NoError(t, w.WriteDirectory("/", 100, 0))
	require.NoError(t, w.WriteEntry("a", true))
	require.NoError(t, w.WriteEntry("a.b", false))
	require.NoError(t, w.EndDirectory())

	require.NoError(t, w.WriteDirectory("/a", 200, 500))
	require.NoError(t, w.WriteEntry("x", false))
	require.NoError(t, w.EndDirectory())

	require.NoError(t, w.Flush())

	r := NewReader(&buf)
	gotHeader, err := r.ReadHeader()
	require.NoError(t, err)
	require.Equal(t, header.ScanRoot, gotHeader.ScanRoot)
	require.Equal(t, header.CheckVisibility, gotHeader.CheckVisibility)
	require.Equal(t, header.Config, gotHeader.Config)

	dh, err := r.ReadDirectoryHeader()
	require.NoError(t, err)
	require.Equal(t, "/", dh.Path)
	require.Equal(t, uint64(100), dh.Sec)
	require.Equal(t, uint32(0), dh.Nsec)

	name, isDir, ok, err := r.ReadEntry()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "a", name)
	require.True(t, isDir)

	name, isDir, ok, err = r.ReadEntry()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "a.b", name)
	require.False(t, isDir)

	_, _, ok, err = r.ReadEntry()
	require.NoError(t, err)
	require.False(t, ok)

	dh, err = r.ReadDirectoryHeader()
	require.NoError(t, err)
	require.Equal(t, "/a", dh.Path)
	require.Equal(t, uint64(200), dh.Sec)
	require.Equal(t, uint32(500), dh.Nsec)

	name, isDir, ok, err = r.ReadEntry()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "x", name)
	require.False(t, isDir)

	_, _, ok, err = r.ReadEntry()
	require.NoError(t, err)
	require.False(t, ok)

	_, err = r.ReadDirectoryHeader()
	require.ErrorIs(t, err, io.EOF)
}

func TestBadMagic(t *testing.T) {
	r := NewReader(bytes.NewReader([]byte("not-a-db-00000000")))
	_, err := r.ReadHeader()
	require.ErrorIs(t, err, ErrBadMagic)
}

func TestUnknownVersion(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(Magic[:])
	buf.WriteByte(0xFF)
	buf.WriteByte(0)
	buf.Write([]byte{0, 0, 0, 0})
	buf.WriteByte(0)
	r := NewReader(&buf)
	_, err := r.ReadHeader()
	require.ErrorIs(t, err, ErrUnknownVersion)
}

func TestNameContainingNULRejected(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.WriteHeader(&Header{ScanRoot: "/"}))
	require.NoError(t, w.WriteDirectory("/", 0, 0))
	err := w.WriteEntry("bad\x00name", false)
	require.ErrorIs(t, err, ErrNameContainsNUL)
}

func TestEmptyConfigAccepted(t *testing.T) {
	w := NewWriter(&bytes.Buffer{})
	err := w.WriteHeader(&Header{ScanRoot: "/", Config: make([]byte, 0)})
	require.NoError(t, err)
}
