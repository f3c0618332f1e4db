// Package buffer provides the eager Response's body accumulator. Unlike a
// plain bytes.Buffer, it never grows past a configured memory ceiling, not
// even transiently: Reserve decides whether the next hint-sized chunk fits
// before anything is appended, and once growing further would cross the
// ceiling it spills what it already holds to a temp file and every byte
// after that goes straight to disk. A server advertising a bogus
// multi-gigabyte Content-Length therefore never forces one large
// allocation; the hint it can influence is already capped upstream.
package buffer

import (
	"bytes"
	"io"
	"os"
	"sync"

	"github.com/arvidnet/minireq/pkg/errors"
)

// DefaultMemoryLimit is the default in-memory ceiling before spilling to disk.
const DefaultMemoryLimit = 4 * 1024 * 1024 // 4MB

// Buffer accumulates bytes in memory up to limit, then on a file.
type Buffer struct {
	mu     sync.Mutex
	mem    bytes.Buffer
	file   *os.File
	path   string
	total  int64
	limit  int64
	closed bool
}

// New returns a Buffer that spills past limit bytes (DefaultMemoryLimit if
// limit <= 0).
func New(limit int64) *Buffer {
	if limit <= 0 {
		limit = DefaultMemoryLimit
	}
	return &Buffer{limit: limit}
}

// Reserve is called with the BodyDecoder hint for the byte about to be
// written (already capped at 16 KiB by the caller). If appending hint more
// bytes would cross the memory ceiling and the buffer hasn't spilled yet,
// Reserve spills the in-memory contents to disk right now, before the
// caller's next WriteByte/Write call. Past that point every future write
// goes straight to the file, so Reserve becomes a no-op. It never fails:
// a spill error is dropped here, the bytes keep going to memory, and
// Write/WriteByte retry the spill (returning its error) only once a write
// itself would cross the memory ceiling.
func (b *Buffer) Reserve(hint int) {
	if hint <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed || b.file != nil {
		return
	}
	if int64(b.mem.Len())+int64(hint) <= b.limit {
		b.mem.Grow(hint)
		return
	}
	_ = b.spillLocked()
}

// WriteByte appends a single byte, the hot path for ResponseLazy.Eager's
// Reserve(hint); WriteByte(b) pairing.
func (b *Buffer) WriteByte(c byte) error {
	_, err := b.Write([]byte{c})
	return err
}

// Write appends p, spilling to disk first if it hasn't already and p alone
// would cross the memory ceiling (the fallback path for a caller that
// writes without calling Reserve first).
func (b *Buffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0, errors.NewIOError("buffer_write", nil)
	}

	if b.file == nil && int64(b.mem.Len()+len(p)) > b.limit {
		if err := b.spillLocked(); err != nil {
			return 0, err
		}
	}

	b.total += int64(len(p))

	if b.file != nil {
		n, err := b.file.Write(p)
		if err != nil {
			return n, errors.NewIOError("buffer_spill_write", err)
		}
		return n, nil
	}
	return b.mem.Write(p)
}

// spillLocked moves whatever is currently in memory onto a fresh temp file
// and clears the in-memory buffer; b.mu must already be held. A no-op if
// already spilled.
func (b *Buffer) spillLocked() error {
	if b.file != nil {
		return nil
	}
	tmp, err := os.CreateTemp("", "minireq-buffer-*.tmp")
	if err != nil {
		return errors.NewIOError("buffer_spill_create", err)
	}
	if b.mem.Len() > 0 {
		if _, err := tmp.Write(b.mem.Bytes()); err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
			return errors.NewIOError("buffer_spill_write", err)
		}
	}
	b.file = tmp
	b.path = tmp.Name()
	b.mem.Reset()
	return nil
}

// Bytes returns the in-memory contents; empty once spilled to disk.
func (b *Buffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.file != nil {
		return nil
	}
	return b.mem.Bytes()
}

// Path returns the backing temp file's path, or "" if not spilled.
func (b *Buffer) Path() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.path
}

// Size returns the total number of bytes written so far.
func (b *Buffer) Size() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.total
}

// IsSpilled reports whether the buffer has moved to disk.
func (b *Buffer) IsSpilled() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.file != nil
}

// Reader returns a fresh reader over the accumulated data, from disk if
// spilled or from the in-memory contents otherwise.
func (b *Buffer) Reader() (io.ReadCloser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, errors.NewIOError("buffer_reader", nil)
	}

	if b.file == nil {
		return io.NopCloser(bytes.NewReader(b.mem.Bytes())), nil
	}

	if err := b.file.Sync(); err != nil {
		return nil, errors.NewIOError("buffer_sync", err)
	}
	f, err := os.Open(b.path)
	if err != nil {
		return nil, errors.NewIOError("buffer_reopen", err)
	}
	return f, nil
}

// Close releases the backing temp file, if any. Idempotent and safe to
// call more than once.
func (b *Buffer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	if b.file == nil {
		return nil
	}
	closeErr := b.file.Close()
	removeErr := os.Remove(b.path)
	b.file = nil
	b.path = ""
	if closeErr != nil {
		return errors.NewIOError("buffer_close", closeErr)
	}
	if removeErr != nil {
		return errors.NewIOError("buffer_close", removeErr)
	}
	return nil
}

// Reset closes any backing file and prepares the Buffer for reuse.
func (b *Buffer) Reset() error {
	if err := b.Close(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.mem.Reset()
	b.total = 0
	b.closed = false
	return nil
}
