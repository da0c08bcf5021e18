package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDomainErrorFormat(t *testing.T) {
	err := NewDomainError("Registry.Get", ErrEngineNotFound, "engine 'foo'")
	want := "Registry.Get: engine 'foo': engine not found"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}

func TestDomainErrorFormatNoDetail(t *testing.T) {
	err := NewDomainError("Search", ErrNoEngines, "")
	want := "Search: no engine selected"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}

func TestDomainErrorUnwrap(t *testing.T) {
	err := NewDomainError("Network.Get", ErrNetworkNotFound, "tor")
	if !errors.Is(err, ErrNetworkNotFound) {
		t.Error("errors.Is should match ErrNetworkNotFound")
	}
}

func TestErrorCodeOf(t *testing.T) {
	assert.Equal(t, CodeUnknown, ErrorCodeOf(nil))
	assert.Equal(t, CodeEngineNotFound, ErrorCodeOf(ErrEngineNotFound))
	assert.Equal(t, CodeRateLimit, ErrorCodeOf(fmt.Errorf("wrapped: %w", ErrRateLimit)))
	assert.Equal(t, CodeEmptyQuery, ErrorCodeOf(NewDomainError("httpapi.search", ErrEmptyQuery, "")))
	assert.Equal(t, CodeCircuitOpen, ErrorCodeOf(fmt.Errorf("%w: %w", ErrRateLimit, ErrCircuitOpen)), "table order decides between two sentinels")
	assert.Equal(t, CodeUnknown, ErrorCodeOf(errors.New("something else")))
}

func TestErrorCodeOf_SubSystem(t *testing.T) {
	tests := []struct {
		subsystem string
		sentinel  error
		want      ErrorCode
	}{
		{"network", ErrTimeout, CodeNetworkTimeout},
		{"engine", ErrTimeout, CodeEngineTimeout},
		{"checker", ErrTimeout, CodeCheckerTimeout},
		{"engine", ErrNotFound, CodeEngineNotFound},
		{"bang", ErrConfigLoad, CodeBangsLoad},
		{"other", ErrTimeout, CodeTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.subsystem+"/"+string(tt.want), func(t *testing.T) {
			err := NewSubSystemError(tt.subsystem, "op", tt.sentinel, "")
			assert.Equal(t, tt.want, ErrorCodeOf(err))
			assert.Equal(t, tt.want, err.Code())
		})
	}
}

func TestErrorKindSuspends(t *testing.T) {
	tests := []struct {
		kind     ErrorKind
		suspends bool
		reason   string
	}{
		{KindTimeout, false, "timeout"},
		{KindUnexpected, false, "unexpected crash"},
		{KindHTTP, true, "HTTP error"},
		{KindTooManyRequests, true, "too many requests"},
		{KindAccessDenied, true, "blocked"},
		{KindCaptcha, true, "CAPTCHA required"},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			assert.Equal(t, tt.suspends, tt.kind.Suspends())
			assert.Equal(t, tt.reason, tt.kind.UnresponsiveReason())
		})
	}
}

func TestEngineErrorReasonAndUnwrap(t *testing.T) {
	inner := errors.New("boom")
	err := NewHTTPError("", 0, inner)
	assert.Equal(t, "HTTP error", err.Reason())
	assert.ErrorIs(t, err, inner)

	captcha := NewCaptchaError("Cloudflare CAPTCHA", 403, 15*24*time.Hour)
	assert.Equal(t, "Cloudflare CAPTCHA", captcha.Reason())
	assert.Equal(t, "captcha: Cloudflare CAPTCHA", captcha.Error())

	var ee *EngineError
	require.True(t, errors.As(fmt.Errorf("wrap: %w", captcha), &ee))
	assert.Equal(t, KindCaptcha, ee.Kind)
}
