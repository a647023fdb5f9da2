package codec

import (
	"bufio"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// writerBufferSize matches the teacher's scannerCopyBufferSize convention of
// sizing I/O buffers generously rather than at the bare minimum spec allows
// (spec §4.2 requires "at least 4 KiB").
const writerBufferSize = 64 * 1024

// Writer streams a database to an underlying io.Writer: one Header, then one
// WriteDirectory/WriteEntry/EndDirectory sequence per directory, in
// ascending pathorder.Compare order (spec §4.6 "Invariant").
type Writer struct {
	w         *bufio.Writer
	bytesOut  int64
	headerOut bool
}

// NewWriter wraps w in a buffered, streaming database writer.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriterSize(w, writerBufferSize)}
}

// WriteHeader writes the fixed header, scan root, and configuration block.
// It must be called exactly once, before any directory is written.
func (w *Writer) WriteHeader(h *Header) error {
	if w.headerOut {
		return errors.New("codec: header already written")
	}
	if len(h.Config) > 0xFFFFFFFF {
		return ErrConfigTooLarge
	}

	n, err := w.w.Write(Magic[:])
	w.bytesOut += int64(n)
	if err != nil {
		return errors.Wrap(err, "unable to write magic")
	}

	var fixed [2]byte
	fixed[0] = h.Version
	if h.CheckVisibility {
		fixed[1] = 1
	}
	if n, err := w.w.Write(fixed[:]); err != nil {
		w.bytesOut += int64(n)
		return errors.Wrap(err, "unable to write version/visibility flag")
	} else {
		w.bytesOut += int64(n)
	}

	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(h.Config)))
	if n, err := w.w.Write(lenBuf[:]); err != nil {
		w.bytesOut += int64(n)
		return errors.Wrap(err, "unable to write configuration length")
	} else {
		w.bytesOut += int64(n)
	}

	if err := w.writeNULTerminated(h.ScanRoot); err != nil {
		return errors.Wrap(err, "unable to write scan root")
	}

	if n, err := w.w.Write(h.Config); err != nil {
		w.bytesOut += int64(n)
		return errors.Wrap(err, "unable to write configuration block")
	} else {
		w.bytesOut += int64(n)
	}

	w.headerOut = true
	return nil
}

func (w *Writer) writeNULTerminated(name string) error {
	if containsNUL(name) {
		return ErrNameContainsNUL
	}
	n, err := w.w.WriteString(name)
	w.bytesOut += int64(n)
	if err != nil {
		return err
	}
	if err := w.w.WriteByte(0); err != nil {
		return err
	}
	w.bytesOut++
	return nil
}

func containsNUL(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] == 0 {
			return true
		}
	}
	return false
}

// WriteDirectory writes a directory record's header (timestamp and path).
// The caller must follow it with zero or more WriteEntry calls and exactly
// one EndDirectory call.
func (w *Writer) WriteDirectory(path string, sec uint64, nsec uint32) error {
	var ts [12]byte
	binary.BigEndian.PutUint64(ts[0:8], sec)
	binary.BigEndian.PutUint32(ts[8:12], nsec)
	if n, err := w.w.Write(ts[:]); err != nil {
		w.bytesOut += int64(n)
		return errors.Wrap(err, "unable to write directory timestamp")
	} else {
		w.bytesOut += int64(n)
	}
	if err := w.writeNULTerminated(path); err != nil {
		return errors.Wrap(err, "unable to write directory path")
	}
	return nil
}

// WriteEntry writes one directory entry.
func (w *Writer) WriteEntry(name string, isDirectory bool) error {
	typ := EntryNormal
	if isDirectory {
		typ = EntryDirectory
	}
	if err := w.w.WriteByte(byte(typ)); err != nil {
		return errors.Wrap(err, "unable to write entry type")
	}
	w.bytesOut++
	if err := w.writeNULTerminated(name); err != nil {
		return errors.Wrap(err, "unable to write entry name")
	}
	return nil
}

// EndDirectory writes the sentinel entry-type byte that terminates a
// directory's entry sequence.
func (w *Writer) EndDirectory() error {
	if err := w.w.WriteByte(byte(EntryEnd)); err != nil {
		return errors.Wrap(err, "unable to write end-of-directory sentinel")
	}
	w.bytesOut++
	return nil
}

// Flush flushes any buffered output to the underlying writer. Callers must
// call Flush (or Close on whatever wraps the underlying writer) before
// relying on all bytes having reached storage.
func (w *Writer) Flush() error {
	return w.w.Flush()
}

// BytesWritten returns a running total of bytes written, for statistics.
func (w *Writer) BytesWritten() int64 {
	return w.bytesOut
}
