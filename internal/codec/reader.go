package codec

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/pkg/errors"
)

// readerBufferSize is the minimum buffer size spec §4.2 requires ("at least
// 4 KiB"); we use a larger default for the same reason as the writer.
const readerBufferSize = 64 * 1024

// maxNameLength bounds a single NUL-terminated name or path to guard against
// a corrupt or hostile database running the reader out of memory. Names or
// paths longer than this abort with PathTooLarge (spec §7) rather than
// growing unboundedly.
const maxNameLength = 1 << 20

// ErrPathTooLarge is returned when a name or path exceeds maxNameLength.
var ErrPathTooLarge = errors.New("codec: name or path exceeds buffer limit")

// Reader streams a database from an underlying io.Reader. It reports at
// most one I/O error per stream (spec §4.2 "Reader contract"): once Err
// returns non-nil, every subsequent call fails fast with the same error.
type Reader struct {
	r         *bufio.Reader
	seeker    io.Seeker
	bytesRead int64
	err       error
}

// NewReader wraps r in a buffered, streaming database reader. If r also
// implements io.Seeker, Skip uses Seek instead of discarding bytes by
// reading them.
func NewReader(r io.Reader) *Reader {
	rr := &Reader{r: bufio.NewReaderSize(r, readerBufferSize)}
	if s, ok := r.(io.Seeker); ok {
		rr.seeker = s
	}
	return rr
}

// Err returns the first I/O error encountered, if any.
func (r *Reader) Err() error {
	return r.err
}

// BytesRead returns a running total of bytes consumed, for statistics.
func (r *Reader) BytesRead() int64 {
	return r.bytesRead
}

func (r *Reader) fail(err error) error {
	if r.err == nil {
		r.err = err
	}
	return err
}

// readFixed reads exactly n bytes.
func (r *Reader) readFixed(n int) ([]byte, error) {
	if r.err != nil {
		return nil, r.err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r.r, buf); err != nil {
		return nil, r.fail(err)
	}
	r.bytesRead += int64(n)
	return buf, nil
}

// readNULTerminatedName reads bytes up to (and consuming, but not
// including) the next NUL byte.
func (r *Reader) readNULTerminatedName() ([]byte, error) {
	if r.err != nil {
		return nil, r.err
	}
	var out []byte
	for {
		b, err := r.r.ReadByte()
		if err != nil {
			return nil, r.fail(err)
		}
		r.bytesRead++
		if b == 0 {
			return out, nil
		}
		if len(out) >= maxNameLength {
			return nil, r.fail(ErrPathTooLarge)
		}
		out = append(out, b)
	}
}

// skip discards n bytes, using Seek when the underlying reader supports it
// and nothing is currently buffered (so the seek lands exactly where the
// buffered reader's next Read would have started).
func (r *Reader) skip(n int64) error {
	if r.err != nil {
		return r.err
	}
	if n == 0 {
		return nil
	}
	if r.seeker != nil && r.r.Buffered() == 0 {
		if _, err := r.seeker.Seek(n, io.SeekCurrent); err != nil {
			return r.fail(err)
		}
		r.bytesRead += n
		return nil
	}
	if _, err := io.CopyN(io.Discard, r.r, n); err != nil {
		return r.fail(err)
	}
	r.bytesRead += n
	return nil
}

// ReadHeader reads and validates the fixed header, scan root, and
// configuration block.
func (r *Reader) ReadHeader() (*Header, error) {
	magic, err := r.readFixed(8)
	if err != nil {
		return nil, errors.Wrap(err, "unable to read magic")
	}
	for i := range Magic {
		if magic[i] != Magic[i] {
			return nil, r.fail(ErrBadMagic)
		}
	}

	fixed, err := r.readFixed(2)
	if err != nil {
		return nil, errors.Wrap(err, "unable to read version/visibility flag")
	}
	if fixed[0] != Version {
		return nil, r.fail(fmt.Errorf("%w: %d", ErrUnknownVersion, fixed[0]))
	}
	var checkVisibility bool
	switch fixed[1] {
	case 0:
		checkVisibility = false
	case 1:
		checkVisibility = true
	default:
		return nil, r.fail(ErrBadVisibilityFlag)
	}

	lenBuf, err := r.readFixed(4)
	if err != nil {
		return nil, errors.Wrap(err, "unable to read configuration length")
	}
	configLen := binary.BigEndian.Uint32(lenBuf)

	scanRoot, err := r.readNULTerminatedName()
	if err != nil {
		return nil, errors.Wrap(err, "unable to read scan root")
	}

	config, err := r.readFixed(int(configLen))
	if err != nil {
		return nil, errors.Wrap(err, "unable to read configuration block")
	}

	return &Header{
		Version:         fixed[0],
		CheckVisibility: checkVisibility,
		ScanRoot:        string(scanRoot),
		Config:          config,
	}, nil
}

// DirectoryHeader is the fixed portion of one directory record.
type DirectoryHeader struct {
	Path string
	Sec  uint64
	Nsec uint32
}

// ReadDirectoryHeader reads one directory's timestamp and path. It returns
// io.EOF (via Err after propagation by the caller) when the stream is
// exhausted, matching the "EOF-terminated sequence" contract of spec §4.2.
func (r *Reader) ReadDirectoryHeader() (*DirectoryHeader, error) {
	ts, err := r.readFixed(12)
	if err != nil {
		return nil, err
	}
	path, err := r.readNULTerminatedName()
	if err != nil {
		return nil, errors.Wrap(err, "unable to read directory path")
	}
	return &DirectoryHeader{
		Path: string(path),
		Sec:  binary.BigEndian.Uint64(ts[0:8]),
		Nsec: binary.BigEndian.Uint32(ts[8:12]),
	}, nil
}

// ReadEntry reads one entry record. It returns ok=false, with no error, when
// it reads the END sentinel, signaling the caller to stop reading entries
// for the current directory.
func (r *Reader) ReadEntry() (name string, isDirectory bool, ok bool, err error) {
	typBuf, err := r.readFixed(1)
	if err != nil {
		return "", false, false, err
	}
	switch EntryType(typBuf[0]) {
	case EntryEnd:
		return "", false, false, nil
	case EntryNormal, EntryDirectory:
		nameBytes, err := r.readNULTerminatedName()
		if err != nil {
			return "", false, false, errors.Wrap(err, "unable to read entry name")
		}
		return string(nameBytes), EntryType(typBuf[0]) == EntryDirectory, true, nil
	default:
		return "", false, false, r.fail(fmt.Errorf("codec: unknown entry type %d", typBuf[0]))
	}
}

// SkipDirectoryBody skips the remainder of a directory's entry sequence
// without returning names. The match engine uses it to drop the rest of a
// directory once the result cap is reached.
func (r *Reader) SkipDirectoryBody() error {
	for {
		typBuf, err := r.readFixed(1)
		if err != nil {
			return err
		}
		if EntryType(typBuf[0]) == EntryEnd {
			return nil
		}
		if _, err := r.readNULTerminatedName(); err != nil {
			return err
		}
	}
}
