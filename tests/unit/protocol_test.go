package unit

import (
	"bufio"
	"strings"
	"testing"

	"github.com/arvidnet/minireq/pkg/errors"
	"github.com/arvidnet/minireq/pkg/protocol"
)

func TestParseStatusLine(t *testing.T) {
	code, reason := protocol.ParseStatusLine("HTTP/1.1 404 Not Found")
	if code != 404 || reason != "Not Found" {
		t.Fatalf("code=%d reason=%q", code, reason)
	}
}

func TestParseStatusLineUnparsableCodeSubstitutes503(t *testing.T) {
	code, reason := protocol.ParseStatusLine("HTTP/1.1 ??? Whatever")
	if code != 503 || reason != "Server did not provide a status line" {
		t.Fatalf("code=%d reason=%q", code, reason)
	}
}

func TestParseHeaderLine(t *testing.T) {
	name, value, ok := protocol.ParseHeaderLine("Content-Type: text/plain")
	if !ok || name != "content-type" || value != "text/plain" {
		t.Fatalf("name=%q value=%q ok=%v", name, value, ok)
	}
}

func TestParseHeaderLineNoLeadingSpace(t *testing.T) {
	name, value, ok := protocol.ParseHeaderLine("X-Foo:bar")
	if !ok || name != "x-foo" || value != "bar" {
		t.Fatalf("name=%q value=%q ok=%v", name, value, ok)
	}
}

func TestParseHeaderLineNoColonIsDropped(t *testing.T) {
	_, _, ok := protocol.ParseHeaderLine("not a header")
	if ok {
		t.Fatal("expected ok=false for a line with no colon")
	}
}

func TestReadMetadataContentLength(t *testing.T) {
	raw := "HTTP/1.1 200 OK\r\nContent-Length: 5\r\n\r\nhello"
	r := bufio.NewReader(strings.NewReader(raw))
	meta, err := protocol.ReadMetadata(r, 0, 0)
	if err != nil {
		t.Fatalf("read metadata: %v", err)
	}
	if meta.StatusCode != 200 || meta.Framing != protocol.FramingContentLength || meta.ContentLength != 5 {
		t.Fatalf("meta = %+v", meta)
	}
}

func TestReadMetadataChunkedTakesPrecedence(t *testing.T) {
	raw := "HTTP/1.1 200 OK\r\nContent-Length: 5\r\nTransfer-Encoding: chunked\r\n\r\n"
	r := bufio.NewReader(strings.NewReader(raw))
	meta, err := protocol.ReadMetadata(r, 0, 0)
	if err != nil {
		t.Fatalf("read metadata: %v", err)
	}
	if meta.Framing != protocol.FramingChunked {
		t.Fatalf("framing = %v, want chunked", meta.Framing)
	}
}

func TestReadMetadataHeaderKeysAreLowercaseOnTheRawMap(t *testing.T) {
	raw := "HTTP/1.1 200 OK\r\nContent-Type: text/plain\r\nX-Custom-Header: value\r\n\r\n"
	r := bufio.NewReader(strings.NewReader(raw))
	meta, err := protocol.ReadMetadata(r, 0, 0)
	if err != nil {
		t.Fatalf("read metadata: %v", err)
	}
	// Inspect the map's own keys directly, not through Get (which would mask
	// canonicalization happening underneath): callers are promised a
	// lowercased map, not just a case-insensitive accessor.
	if _, ok := meta.Headers["content-type"]; !ok {
		t.Fatalf("expected raw key \"content-type\", got keys %v", headerKeys(meta.Headers))
	}
	if _, ok := meta.Headers["x-custom-header"]; !ok {
		t.Fatalf("expected raw key \"x-custom-header\", got keys %v", headerKeys(meta.Headers))
	}
	if _, ok := meta.Headers["Content-Type"]; ok {
		t.Fatalf("raw map must not carry a title-cased key, found %v", headerKeys(meta.Headers))
	}
}

func headerKeys(h protocol.Headers) []string {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	return keys
}

func TestReadMetadataEndOnClose(t *testing.T) {
	raw := "HTTP/1.1 200 OK\r\n\r\n"
	r := bufio.NewReader(strings.NewReader(raw))
	meta, err := protocol.ReadMetadata(r, 0, 0)
	if err != nil {
		t.Fatalf("read metadata: %v", err)
	}
	if meta.Framing != protocol.FramingEndOnClose {
		t.Fatalf("framing = %v, want end-on-close", meta.Framing)
	}
}

func TestReadMetadataMalformedContentLength(t *testing.T) {
	raw := "HTTP/1.1 200 OK\r\nContent-Length: notanumber\r\n\r\n"
	r := bufio.NewReader(strings.NewReader(raw))
	_, err := protocol.ReadMetadata(r, 0, 0)
	if errors.GetErrorType(err) != errors.ErrorTypeMalformedContentLength {
		t.Fatalf("err = %v, want MalformedContentLength", err)
	}
}

func TestReadMetadataHeadersOverflow(t *testing.T) {
	raw := "HTTP/1.1 200 OK\r\nX-Long: " + strings.Repeat("a", 200) + "\r\n\r\n"
	r := bufio.NewReader(strings.NewReader(raw))
	_, err := protocol.ReadMetadata(r, 50, 0)
	if errors.GetErrorType(err) != errors.ErrorTypeHeadersOverflow {
		t.Fatalf("err = %v, want HeadersOverflow", err)
	}
}

func TestReadMetadataStatusLineOverflow(t *testing.T) {
	raw := "HTTP/1.1 200 OK\r\n\r\n"
	r := bufio.NewReader(strings.NewReader(raw))
	_, err := protocol.ReadMetadata(r, 0, 5)
	if errors.GetErrorType(err) != errors.ErrorTypeStatusLineOverflow {
		t.Fatalf("err = %v, want StatusLineOverflow", err)
	}
}

func TestBodyDecoderContentLength(t *testing.T) {
	raw := "HTTP/1.1 200 OK\r\nContent-Length: 5\r\n\r\nhello"
	r := bufio.NewReader(strings.NewReader(raw))
	meta, err := protocol.ReadMetadata(r, 0, 0)
	if err != nil {
		t.Fatalf("read metadata: %v", err)
	}
	dec := protocol.NewBodyDecoder(r, &meta)
	var got []byte
	for {
		b, _, ok, err := dec.Next()
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		if !ok {
			break
		}
		got = append(got, b)
	}
	if string(got) != "hello" {
		t.Fatalf("body = %q", got)
	}
}

func TestBodyDecoderChunked(t *testing.T) {
	raw := "HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n" +
		"5\r\nhello\r\n0\r\n\r\n"
	r := bufio.NewReader(strings.NewReader(raw))
	meta, err := protocol.ReadMetadata(r, 0, 0)
	if err != nil {
		t.Fatalf("read metadata: %v", err)
	}
	dec := protocol.NewBodyDecoder(r, &meta)
	var got []byte
	for {
		b, _, ok, err := dec.Next()
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		if !ok {
			break
		}
		got = append(got, b)
	}
	if string(got) != "hello" {
		t.Fatalf("body = %q", got)
	}
	if meta.Headers.Get("Content-Length") != "5" {
		t.Fatalf("synthesized content-length = %q", meta.Headers.Get("Content-Length"))
	}
}

func TestBodyDecoderChunkedWithTrailers(t *testing.T) {
	raw := "HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n" +
		"3\r\nabc\r\n0\r\nX-Trailer: late\r\n\r\n"
	r := bufio.NewReader(strings.NewReader(raw))
	meta, err := protocol.ReadMetadata(r, 0, 0)
	if err != nil {
		t.Fatalf("read metadata: %v", err)
	}
	dec := protocol.NewBodyDecoder(r, &meta)
	for {
		_, _, ok, err := dec.Next()
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		if !ok {
			break
		}
	}
	if meta.Headers.Get("X-Trailer") != "late" {
		t.Fatalf("trailer not merged: %v", meta.Headers)
	}
}

func TestBodyDecoderEndOnClose(t *testing.T) {
	raw := "HTTP/1.1 200 OK\r\n\r\nabc"
	r := bufio.NewReader(strings.NewReader(raw))
	meta, err := protocol.ReadMetadata(r, 0, 0)
	if err != nil {
		t.Fatalf("read metadata: %v", err)
	}
	dec := protocol.NewBodyDecoder(r, &meta)
	var got []byte
	for {
		b, _, ok, err := dec.Next()
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		if !ok {
			break
		}
		got = append(got, b)
	}
	if string(got) != "abc" {
		t.Fatalf("body = %q", got)
	}
}

func TestMalformedChunkLength(t *testing.T) {
	raw := "HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\nZZZ\r\n"
	r := bufio.NewReader(strings.NewReader(raw))
	meta, err := protocol.ReadMetadata(r, 0, 0)
	if err != nil {
		t.Fatalf("read metadata: %v", err)
	}
	dec := protocol.NewBodyDecoder(r, &meta)
	_, _, _, err = dec.Next()
	if errors.GetErrorType(err) != errors.ErrorTypeMalformedChunkLength {
		t.Fatalf("err = %v, want MalformedChunkLength", err)
	}
}

func TestBodyDecoderContentLengthShortRead(t *testing.T) {
	// The server advertises 10 bytes but the stream ends after 5; the short
	// body is delivered as-is and iteration ends without an error.
	raw := "HTTP/1.1 200 OK\r\nContent-Length: 10\r\n\r\nhello"
	r := bufio.NewReader(strings.NewReader(raw))
	meta, err := protocol.ReadMetadata(r, 0, 0)
	if err != nil {
		t.Fatalf("read metadata: %v", err)
	}
	dec := protocol.NewBodyDecoder(r, &meta)
	var got []byte
	for {
		b, _, ok, err := dec.Next()
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		if !ok {
			break
		}
		got = append(got, b)
	}
	if string(got) != "hello" {
		t.Fatalf("body = %q, want the bytes delivered before the close", got)
	}
}

func TestMalformedChunkEnd(t *testing.T) {
	// The chunk body is followed by "XX" instead of CRLF; the decoder fails
	// with MalformedChunkEnd instead of yielding the chunk's final byte.
	raw := "HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n" +
		"5\r\nhelloXX0\r\n\r\n"
	r := bufio.NewReader(strings.NewReader(raw))
	meta, err := protocol.ReadMetadata(r, 0, 0)
	if err != nil {
		t.Fatalf("read metadata: %v", err)
	}
	dec := protocol.NewBodyDecoder(r, &meta)
	var last error
	for {
		_, _, ok, err := dec.Next()
		if err != nil {
			last = err
			break
		}
		if !ok {
			break
		}
	}
	if errors.GetErrorType(last) != errors.ErrorTypeMalformedChunkEnd {
		t.Fatalf("err = %v, want MalformedChunkEnd", last)
	}
}

func TestReadMetadataHeaderBudgetIsCumulative(t *testing.T) {
	// No single line exceeds the budget, but together (at line length + 2
	// apiece) they do.
	raw := "HTTP/1.1 200 OK\r\nX-A: aaaaaaaaaa\r\nX-B: bbbbbbbbbb\r\nX-C: cccccccccc\r\n\r\n"
	r := bufio.NewReader(strings.NewReader(raw))
	_, err := protocol.ReadMetadata(r, 40, 0)
	if errors.GetErrorType(err) != errors.ErrorTypeHeadersOverflow {
		t.Fatalf("err = %v, want HeadersOverflow", err)
	}
}

func TestBodyDecoderChunkedIgnoresExtensions(t *testing.T) {
	raw := "HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n" +
		"5;ext=1\r\nhello\r\n0\r\n\r\n"
	r := bufio.NewReader(strings.NewReader(raw))
	meta, err := protocol.ReadMetadata(r, 0, 0)
	if err != nil {
		t.Fatalf("read metadata: %v", err)
	}
	dec := protocol.NewBodyDecoder(r, &meta)
	var got []byte
	for {
		b, _, ok, err := dec.Next()
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		if !ok {
			break
		}
		got = append(got, b)
	}
	if string(got) != "hello" {
		t.Fatalf("body = %q", got)
	}
}
