package domain

import (
	"errors"
	"fmt"
)

// Category sentinels. Subsystems tag them through NewSubSystemError.
var (
	ErrNotFound      = errors.New("not found")
	ErrDuplicate     = errors.New("duplicate")
	ErrTimeout       = errors.New("operation timed out")
	ErrInvalidInput  = errors.New("invalid input")
	ErrConfigLoad    = errors.New("failed to load configuration")
	ErrRateLimit     = errors.New("rate limit exceeded")
	ErrCircuitOpen   = errors.New("circuit open")
	ErrTorCheck      = errors.New("tor proxy check failed")
	ErrEmptyQuery    = errors.New("empty query")
	ErrNoEngines     = errors.New("no engine selected")
	ErrUnknownEngine = errors.New("unknown engine type")
)

// Sentinels for the search core.
var (
	ErrEngineNotFound  = errors.New("engine not found")
	ErrNetworkNotFound = errors.New("network not found")
	ErrInvalidResult   = errors.New("invalid result")
)

// DomainError attaches the failing operation, and optionally the subsystem
// that raised it, to a sentinel.
type DomainError struct {
	Op        string // e.g. "Registry.Get"
	Err       error
	Detail    string
	SubSystem string // "engine", "network", "checker", ...
}

func (e *DomainError) Error() string {
	if e.Detail == "" {
		return e.Op + ": " + e.Err.Error()
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Detail, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// NewSubSystemError is NewDomainError tagged with the raising subsystem, which
// refines the error's code.
func NewSubSystemError(subsystem, op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail, SubSystem: subsystem}
}

// ErrorCode is the stable, machine-readable form of an error, reported in API
// error bodies.
type ErrorCode string

const (
	CodeUnknown         ErrorCode = "UNKNOWN"
	CodeNotFound        ErrorCode = "NOT_FOUND"
	CodeDuplicate       ErrorCode = "DUPLICATE"
	CodeTimeout         ErrorCode = "TIMEOUT"
	CodeInvalidInput    ErrorCode = "INVALID_INPUT"
	CodeConfigLoad      ErrorCode = "CONFIG_LOAD"
	CodeRateLimit       ErrorCode = "RATE_LIMIT"
	CodeCircuitOpen     ErrorCode = "CIRCUIT_OPEN"
	CodeTorCheck        ErrorCode = "TOR_CHECK"
	CodeEmptyQuery      ErrorCode = "EMPTY_QUERY"
	CodeNoEngines       ErrorCode = "NO_ENGINES"
	CodeUnknownEngine   ErrorCode = "UNKNOWN_ENGINE_TYPE"
	CodeEngineNotFound  ErrorCode = "ENGINE_NOT_FOUND"
	CodeNetworkNotFound ErrorCode = "NETWORK_NOT_FOUND"
	CodeInvalidResult   ErrorCode = "INVALID_RESULT"

	CodeNetworkTimeout ErrorCode = "NETWORK_TIMEOUT"
	CodeEngineTimeout  ErrorCode = "ENGINE_TIMEOUT"
	CodeCheckerTimeout ErrorCode = "CHECKER_TIMEOUT"
	CodeBangsLoad      ErrorCode = "BANGS_LOAD"
)

// codes is searched in order; the first sentinel in an error's chain wins.
var codes = []struct {
	err  error
	code ErrorCode
}{
	{ErrEngineNotFound, CodeEngineNotFound},
	{ErrNetworkNotFound, CodeNetworkNotFound},
	{ErrInvalidResult, CodeInvalidResult},
	{ErrEmptyQuery, CodeEmptyQuery},
	{ErrNoEngines, CodeNoEngines},
	{ErrUnknownEngine, CodeUnknownEngine},
	{ErrTorCheck, CodeTorCheck},
	{ErrCircuitOpen, CodeCircuitOpen},
	{ErrRateLimit, CodeRateLimit},
	{ErrConfigLoad, CodeConfigLoad},
	{ErrInvalidInput, CodeInvalidInput},
	{ErrTimeout, CodeTimeout},
	{ErrDuplicate, CodeDuplicate},
	{ErrNotFound, CodeNotFound},
}

type subsystemKey struct {
	err       error
	subsystem string
}

var subsystemCodes = map[subsystemKey]ErrorCode{
	{ErrTimeout, "network"}:  CodeNetworkTimeout,
	{ErrTimeout, "engine"}:   CodeEngineTimeout,
	{ErrTimeout, "checker"}:  CodeCheckerTimeout,
	{ErrNotFound, "engine"}:  CodeEngineNotFound,
	{ErrNotFound, "network"}: CodeNetworkNotFound,
	{ErrConfigLoad, "bang"}:  CodeBangsLoad,
}

// ErrorCodeOf returns the code of the first DomainError or known sentinel in
// err's chain, or CodeUnknown.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}
	var de *DomainError
	if errors.As(err, &de) {
		if code := de.Code(); code != CodeUnknown {
			return code
		}
	}
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return CodeUnknown
}

// Code resolves the subsystem-specific code first, then the sentinel's.
func (e *DomainError) Code() ErrorCode {
	if code, ok := subsystemCodes[subsystemKey{e.Err, e.SubSystem}]; ok {
		return code
	}
	for _, c := range codes {
		if errors.Is(e.Err, c.err) {
			return c.code
		}
	}
	return CodeUnknown
}
