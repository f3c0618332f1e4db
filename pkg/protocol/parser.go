// Package protocol implements the wire-level pieces of minireq's HTTP/1.1
// engine: request-line/header serialization, status-line/header parsing and
// framing classification, and the three body-framing byte iterators.
package protocol

import (
	"bufio"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/arvidnet/minireq/pkg/errors"
)

// ReadLine reads one line terminated by LF, tolerating an optional preceding
// CR. maxLen < 0 means unlimited; otherwise the accumulated length is checked
// before every byte, so a line whose content fits but whose CR pushes it to
// exactly maxLen still overflows on the trailing LF. overflowErr is invoked
// only when the cap is exceeded.
func ReadLine(r *bufio.Reader, maxLen int, overflowErr func() error) (string, error) {
	buf := make([]byte, 0, 32)
	for {
		if maxLen >= 0 && len(buf) >= maxLen {
			return "", overflowErr()
		}
		b, err := r.ReadByte()
		if err != nil {
			return "", errors.NewIOError("read", err)
		}
		if b == '\n' {
			if len(buf) > 0 && buf[len(buf)-1] == '\r' {
				buf = buf[:len(buf)-1]
			}
			break
		}
		buf = append(buf, b)
	}
	if !utf8.Valid(buf) {
		return "", errors.NewInvalidUTF8InResponseError(nil)
	}
	return string(buf), nil
}

// ParseStatusLine parses "HTTP/x.y SP <code> SP <reason...>": the status code
// is the text strictly between the first and second space, the reason phrase
// everything after the second space. A status code that fails to parse as an
// integer substitutes 503 with a synthesized reason phrase, rather than
// failing the exchange.
func ParseStatusLine(line string) (statusCode int, reasonPhrase string) {
	var code, reason strings.Builder
	spaces := 0
	for _, c := range line {
		if spaces >= 2 {
			reason.WriteRune(c)
		}
		if c == ' ' {
			spaces++
		} else if spaces == 1 {
			code.WriteRune(c)
		}
	}
	if n, err := strconv.Atoi(code.String()); err == nil {
		return n, reason.String()
	}
	return 503, "Server did not provide a status line"
}

// ParseHeaderLine locates the first ':' in line, strips exactly one optional
// leading space from the value, and lowercases the name. It reports ok=false
// (not an error) for a line with no colon; such lines are dropped.
func ParseHeaderLine(line string) (name, value string, ok bool) {
	idx := strings.IndexByte(line, ':')
	if idx < 0 {
		return "", "", false
	}
	if idx+1 < len(line) && line[idx+1] == ' ' {
		value = line[idx+2:]
	} else {
		value = line[idx+1:]
	}
	return strings.ToLower(line[:idx]), value, true
}

// Framing identifies which of the three body framings a response uses.
type Framing int

const (
	FramingEndOnClose Framing = iota
	FramingContentLength
	FramingChunked
)

// Metadata is the parsed status line, header block, and framing
// classification for one response.
type Metadata struct {
	StatusCode    int
	ReasonPhrase  string
	Headers       Headers
	Framing       Framing
	ContentLength int // valid only when Framing == FramingContentLength
	TrailerBudget int // header budget left over for chunked trailers; < 0 means unlimited
}

// ReadMetadata reads the status line and header block from r, respecting
// maxStatusLineLen and maxHeadersSize (0 or negative means unlimited for
// both), and classifies the body framing. Chunked wins over Content-Length,
// which wins over end-on-close. The header budget shrinks by line length + 2
// per line and never goes negative: once exhausted, the next line — even the
// blank terminator — overflows.
func ReadMetadata(r *bufio.Reader, maxHeadersSize, maxStatusLineLen int) (Metadata, error) {
	statusLineMax := maxStatusLineLen
	if statusLineMax <= 0 {
		statusLineMax = -1
	}
	statusLine, err := ReadLine(r, statusLineMax, func() error {
		return errors.NewStatusLineOverflowError(maxStatusLineLen)
	})
	if err != nil {
		return Metadata{}, err
	}
	statusCode, reasonPhrase := ParseStatusLine(statusLine)

	headers := make(Headers)
	budget := maxHeadersSize
	if budget <= 0 {
		budget = -1
	}
	for {
		line, err := ReadLine(r, budget, func() error {
			return errors.NewHeadersOverflowError(maxHeadersSize)
		})
		if err != nil {
			return Metadata{}, err
		}
		if line == "" {
			break
		}
		if budget >= 0 {
			budget -= len(line) + 2
			if budget < 0 {
				budget = 0
			}
		}
		if name, value, ok := ParseHeaderLine(line); ok {
			headers.Add(name, value)
		}
	}

	framing := FramingEndOnClose
	contentLength := 0

	if isChunked(headers) {
		framing = FramingChunked
	} else if cl := headers.Get("content-length"); cl != "" {
		n, err := strconv.Atoi(strings.TrimSpace(cl))
		if err != nil || n < 0 {
			return Metadata{}, errors.NewMalformedContentLengthError(cl)
		}
		framing = FramingContentLength
		contentLength = n
	}

	return Metadata{
		StatusCode:    statusCode,
		ReasonPhrase:  reasonPhrase,
		Headers:       headers,
		Framing:       framing,
		ContentLength: contentLength,
		TrailerBudget: budget,
	}, nil
}

func isChunked(headers Headers) bool {
	for _, v := range headers.Values("Transfer-Encoding") {
		if strings.EqualFold(strings.TrimSpace(v), "chunked") {
			return true
		}
	}
	return false
}
