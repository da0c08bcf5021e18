package processor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"

	"metasearch/internal/domain"
)

// httpStatusPattern matches "HTTP error <status>" and "status <status>" in
// transport error messages.
var httpStatusPattern = regexp.MustCompile(`(?i)(?:HTTP error|status)[ :]+(\d{3})\b`)

// panicError carries a recovered adapter panic.
type panicError struct {
	value any
}

func (e *panicError) Error() string { return fmt.Sprintf("panic: %v", e.value) }

// transportError marks a failure raised while sending the upstream request.
// Only these are matched against status codes and known message fragments.
type transportError struct {
	err error
}

func (e *transportError) Error() string { return e.err.Error() }
func (e *transportError) Unwrap() error { return e.err }

// ClassifyEngineError reduces any engine failure to the engine error
// taxonomy. Classified errors pass through and sentinels are matched next.
// Transport failures are then matched by an embedded HTTP status and by
// message; any other error, such as an adapter failing to parse a reply, is
// Unexpected.
func ClassifyEngineError(err error) *domain.EngineError {
	if err == nil {
		return nil
	}
	var ee *domain.EngineError
	if errors.As(err, &ee) {
		return ee
	}
	if classified := classifyBySentinel(err); classified != nil {
		return classified
	}
	var te *transportError
	if !errors.As(err, &te) {
		return domain.NewUnexpectedError(err)
	}
	if m := httpStatusPattern.FindStringSubmatch(te.Error()); len(m) == 2 {
		code, _ := strconv.Atoi(m[1])
		return classifyByStatus(err, code)
	}
	return classifyByString(err)
}

func classifyBySentinel(err error) *domain.EngineError {
	var pe *panicError
	var netErr net.Error
	switch {
	case errors.As(err, &pe):
		return domain.NewUnexpectedError(err)
	case errors.Is(err, context.DeadlineExceeded):
		return domain.NewTimeoutError(err)
	case errors.Is(err, domain.ErrTimeout):
		return domain.NewTimeoutError(err)
	case errors.Is(err, domain.ErrCircuitOpen):
		return domain.NewHTTPError("circuit open", 0, err)
	case errors.Is(err, domain.ErrRateLimit):
		return &domain.EngineError{Kind: domain.KindTooManyRequests, Err: err}
	case errors.As(err, &netErr) && netErr.Timeout():
		return domain.NewTimeoutError(err)
	case errors.As(err, &netErr):
		return domain.NewHTTPError("HTTP error", 0, err)
	}
	return nil
}

func classifyByStatus(err error, code int) *domain.EngineError {
	switch {
	case code == 429:
		return &domain.EngineError{Kind: domain.KindTooManyRequests, StatusCode: code, Err: err}
	case code == 402 || code == 403:
		return &domain.EngineError{Kind: domain.KindAccessDenied, Message: fmt.Sprintf("HTTP error %d", code), StatusCode: code, Err: err}
	case code >= 400 && code < 600:
		return domain.NewHTTPError(fmt.Sprintf("HTTP error %d", code), code, err)
	}
	return domain.NewUnexpectedError(err)
}

func classifyByString(err error) *domain.EngineError {
	lower := strings.ToLower(err.Error())

	for _, p := range []string{"rate limit", "too many requests"} {
		if strings.Contains(lower, p) {
			return &domain.EngineError{Kind: domain.KindTooManyRequests, Err: err}
		}
	}

	if strings.Contains(lower, "captcha") {
		return &domain.EngineError{Kind: domain.KindCaptcha, Err: err}
	}

	for _, p := range []string{"timeout", "deadline exceeded"} {
		if strings.Contains(lower, p) {
			return domain.NewTimeoutError(err)
		}
	}

	for _, p := range []string{"connection refused", "no such host", "connection reset", "tls:"} {
		if strings.Contains(lower, p) {
			return domain.NewHTTPError("HTTP error", 0, err)
		}
	}

	return domain.NewUnexpectedError(err)
}
