package unit

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/arvidnet/minireq/pkg/errors"
)

func TestErrorTaxonomyTypes(t *testing.T) {
	cases := []struct {
		name string
		err  *errors.Error
		want errors.ErrorType
	}{
		{"InvalidURL", errors.NewInvalidURLError("bad"), errors.ErrorTypeInvalidURL},
		{"HTTPSFeatureNotEnabled", errors.NewHTTPSFeatureNotEnabledError("h"), errors.ErrorTypeHTTPSFeatureNotEnabled},
		{"PunycodeFeatureNotEnabled", errors.NewPunycodeFeatureNotEnabledError("h"), errors.ErrorTypePunycodeFeatureNotEnabled},
		{"PunycodeConversionFailed", errors.NewPunycodeConversionFailedError("h", nil), errors.ErrorTypePunycodeConversionFailed},
		{"StatusLineOverflow", errors.NewStatusLineOverflowError(10), errors.ErrorTypeStatusLineOverflow},
		{"HeadersOverflow", errors.NewHeadersOverflowError(10), errors.ErrorTypeHeadersOverflow},
		{"MalformedContentLength", errors.NewMalformedContentLengthError("x"), errors.ErrorTypeMalformedContentLength},
		{"MalformedChunkLength", errors.NewMalformedChunkLengthError("x"), errors.ErrorTypeMalformedChunkLength},
		{"MalformedChunkEnd", errors.NewMalformedChunkEndError(), errors.ErrorTypeMalformedChunkEnd},
		{"RedirectLocationMissing", errors.NewRedirectLocationMissingError(301), errors.ErrorTypeRedirectLocationMissing},
		{"InfiniteRedirectionLoop", errors.NewInfiniteRedirectionLoopError("x"), errors.ErrorTypeInfiniteRedirectionLoop},
		{"TooManyRedirections", errors.NewTooManyRedirectionsError(5), errors.ErrorTypeTooManyRedirections},
		{"InvalidUTF8InResponse", errors.NewInvalidUTF8InResponseError(nil), errors.ErrorTypeInvalidUTF8InResponse},
		{"InvalidUTF8InBody", errors.NewInvalidUTF8InBodyError(nil), errors.ErrorTypeInvalidUTF8InBody},
		{"IO", errors.NewIOError("dial", nil), errors.ErrorTypeIO},
		{"Other", errors.NewOtherError("x"), errors.ErrorTypeOther},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if c.err.Type != c.want {
				t.Fatalf("type = %q, want %q", c.err.Type, c.want)
			}
			if errors.GetErrorType(c.err) != c.want {
				t.Fatalf("GetErrorType = %q, want %q", errors.GetErrorType(c.err), c.want)
			}
			if c.err.Error() == "" {
				t.Fatal("Error() returned empty string")
			}
		})
	}
}

func TestErrorIsMatchesByType(t *testing.T) {
	a := errors.NewInvalidURLError("one")
	b := errors.NewInvalidURLError("two")
	if !a.Is(b) {
		t.Fatal("expected two InvalidURL errors to match via Is")
	}
	c := errors.NewIOError("dial", nil)
	if a.Is(c) {
		t.Fatal("expected different error types not to match")
	}
}

func TestIsTimeoutErrorWrappedNetError(t *testing.T) {
	netErr := &net.DNSError{IsTimeout: true}
	err := errors.NewIOError("dial", netErr)
	if !errors.IsTimeoutError(err) {
		t.Fatal("expected timeout net.Error cause to be detected")
	}
}

func TestIsTimeoutErrorContextDeadline(t *testing.T) {
	err := errors.NewIOError("dial", context.DeadlineExceeded)
	if !errors.IsTimeoutError(err) {
		t.Fatal("expected context.DeadlineExceeded cause to be detected")
	}
}

func TestIsTimeoutErrorNonIOType(t *testing.T) {
	err := errors.NewInvalidURLError("bad")
	if errors.IsTimeoutError(err) {
		t.Fatal("non-IO error type should never report as a timeout")
	}
}

func TestIOErrorAddr(t *testing.T) {
	err := errors.NewIOErrorAddr("dial", "example.com", 443, nil)
	if err.Host != "example.com" || err.Port != 443 || err.Addr != "example.com:443" {
		t.Fatalf("err = %+v", err)
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := context.DeadlineExceeded
	err := errors.NewIOError("read", cause)
	if err.Unwrap() != cause {
		t.Fatal("Unwrap did not return the wrapped cause")
	}
}

func TestErrorTimestampSet(t *testing.T) {
	before := time.Now().Add(-time.Second)
	err := errors.NewOtherError("x")
	if err.Timestamp.Before(before) {
		t.Fatal("Timestamp was not set to roughly now")
	}
}
