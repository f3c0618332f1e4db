package protocol

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/arvidnet/minireq/pkg/errors"
)

// maxHint caps the advisory remaining-length hint BodyDecoder.Next returns.
// The cap keeps a hostile Content-Length from steering the eager wrapper
// into one huge allocation; it is a DoS guard, not a performance setting.
const maxHint = 16 * 1024

// BodyDecoder is minireq's lazy response-body iterator: one byte at a time,
// plus an advisory hint of how many more bytes are likely to follow. A nil
// error with ok==false means the body is exhausted; a non-nil error means
// the exchange failed and must not be retried transparently.
type BodyDecoder interface {
	// Next returns the next body byte. ok is false (err nil) at normal body
	// end. Trailers, if any, have already been merged into Headers by the
	// time Next returns ok==false for a chunked body.
	Next() (b byte, hint int, ok bool, err error)
}

// NewBodyDecoder builds the decoder matching meta.Framing.
func NewBodyDecoder(r *bufio.Reader, meta *Metadata) BodyDecoder {
	switch meta.Framing {
	case FramingContentLength:
		return &contentLengthDecoder{r: r, remaining: meta.ContentLength}
	case FramingChunked:
		return &chunkedDecoder{
			r:             r,
			headers:       meta.Headers,
			expectingMore: true,
			budget:        meta.TrailerBudget,
		}
	default:
		return &endOnCloseDecoder{r: r}
	}
}

// endOnCloseDecoder yields every byte with hint 1; EOF on the connection is
// the only termination signal.
type endOnCloseDecoder struct {
	r *bufio.Reader
}

func (d *endOnCloseDecoder) Next() (byte, int, bool, error) {
	b, err := d.r.ReadByte()
	if err != nil {
		if err == io.EOF {
			return 0, 0, false, nil
		}
		return 0, 0, false, errors.NewIOError("read", err)
	}
	return b, 1, true, nil
}

// contentLengthDecoder yields up to remaining bytes. remaining is decremented
// BEFORE the byte is read, and the hint reflects the remaining count after
// that decrement, capped at maxHint, plus one for the byte just yielded. A
// connection that closes before remaining hits zero is not an error: the
// short body is delivered as-is and iteration ends.
type contentLengthDecoder struct {
	r         *bufio.Reader
	remaining int
}

func (d *contentLengthDecoder) Next() (byte, int, bool, error) {
	if d.remaining <= 0 {
		return 0, 0, false, nil
	}
	d.remaining--
	b, err := d.r.ReadByte()
	if err != nil {
		if err == io.EOF {
			return 0, 0, false, nil
		}
		return 0, 0, false, errors.NewIOError("read", err)
	}
	hint := d.remaining
	if hint > maxHint {
		hint = maxHint
	}
	return b, hint + 1, true, nil
}

// chunkedDecoder walks the chunked framing: hex chunk-size lines capped at
// 1024 bytes (chunk extensions after ';' ignored, an empty line tolerated as
// length 0), a zero-length chunk triggers trailer reading, removal of
// Transfer-Encoding, and a synthesized Content-Length matching the bytes
// actually delivered. The CRLF terminating a chunk body is verified in the
// same Next call that reads the chunk's final byte, so on a missing
// terminator that byte is discarded and the call returns
// MalformedChunkEnd instead of yielding it.
type chunkedDecoder struct {
	r             *bufio.Reader
	headers       Headers
	expectingMore bool
	chunkLength   int
	totalContent  int
	budget        int // trailer header budget; < 0 means unlimited
}

const maxChunkSizeLineLen = 1024

func (d *chunkedDecoder) Next() (byte, int, bool, error) {
	if !d.expectingMore && d.chunkLength == 0 {
		return 0, 0, false, nil
	}

	if d.chunkLength == 0 {
		line, err := ReadLine(d.r, maxChunkSizeLineLen, func() error {
			return errors.NewMalformedChunkLengthError("")
		})
		if err != nil {
			return 0, 0, false, err
		}

		var incoming int
		if line == "" {
			incoming = 0
		} else {
			sizeText := line
			if idx := strings.IndexByte(sizeText, ';'); idx >= 0 {
				sizeText = sizeText[:idx]
			}
			sizeText = strings.TrimSpace(sizeText)
			n, err := strconv.ParseUint(sizeText, 16, 64)
			if err != nil {
				return 0, 0, false, errors.NewMalformedChunkLengthError(line)
			}
			incoming = int(n)
		}

		if incoming == 0 {
			if err := d.readTrailers(); err != nil {
				return 0, 0, false, err
			}
			d.expectingMore = false
			if d.headers != nil {
				d.headers.Set("Content-Length", strconv.Itoa(d.totalContent))
				d.headers.Del("Transfer-Encoding")
			}
			return 0, 0, false, nil
		}

		d.chunkLength = incoming
		d.totalContent += incoming
	}

	d.chunkLength--
	b, err := d.r.ReadByte()
	if err != nil {
		return 0, 0, false, errors.NewIOError("read", err)
	}

	if d.chunkLength == 0 {
		if err := d.readChunkEnd(); err != nil {
			return 0, 0, false, err
		}
	}

	hint := d.chunkLength
	if hint > maxHint {
		hint = maxHint
	}
	return b, hint + 1, true, nil
}

// readChunkEnd consumes the CRLF terminating a chunk body.
func (d *chunkedDecoder) readChunkEnd() error {
	var crlf [2]byte
	if _, err := io.ReadFull(d.r, crlf[:]); err != nil {
		return errors.NewMalformedChunkEndError()
	}
	if crlf[0] != '\r' || crlf[1] != '\n' {
		return errors.NewMalformedChunkEndError()
	}
	return nil
}

// readTrailers consumes trailer header lines after the zero-length chunk,
// merging them into the response header map under whatever budget the header
// block left unspent.
func (d *chunkedDecoder) readTrailers() error {
	for {
		line, err := ReadLine(d.r, d.budget, func() error {
			return errors.NewHeadersOverflowError(d.budget)
		})
		if err != nil {
			return err
		}
		if line == "" {
			return nil
		}
		if d.budget >= 0 {
			d.budget -= len(line) + 2
			if d.budget < 0 {
				d.budget = 0
			}
		}
		name, value, ok := ParseHeaderLine(line)
		if !ok {
			return nil
		}
		if d.headers != nil {
			d.headers.Add(name, value)
		}
	}
}
