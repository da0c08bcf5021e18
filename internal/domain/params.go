package domain

import (
	"net/http"
	"net/url"
	"time"
)

// LangInfo is a language code with its English display name.
type LangInfo struct {
	Code string
	Name string
}

// RequestParams is the per-engine, per-call request description. It is
// owned by the processor that created it for the duration of one call.
type RequestParams struct {
	Category   string
	PageNo     int
	SafeSearch int
	TimeRange  TimeRange
	Language   string
	EngineData map[string]string

	// Online engines.
	Method            string
	URL               string // empty means "do not call"
	Headers           http.Header
	Data              url.Values
	Body              []byte
	Cookies           map[string]string
	Verify            bool
	AllowRedirects    bool
	MaxRedirects      int
	SoftMaxRedirects  int
	RaiseForHTTPError bool

	// Dictionary engines.
	FromLang LangInfo
	ToLang   LangInfo
	Query    string

	// Currency engines.
	Amount   float64
	From     string
	To       string
	FromName string
	ToName   string
}

// Response is the upstream reply handed to an online adapter.
type Response struct {
	StatusCode int
	Header     http.Header
	URL        *url.URL
	Body       []byte
	// Redirects is the number of redirects followed.
	Redirects int
	Params    *RequestParams
}

// Text returns the body as a string.
func (r *Response) Text() string { return string(r.Body) }

// HTTPRequest describes one outgoing HTTP call made by an online engine.
type HTTPRequest struct {
	Method  string
	URL     string
	Header  http.Header
	Body    []byte
	Form    url.Values
	Cookies map[string]string
	// Timeout is the caller's timeout; the task deadline may shorten it.
	Timeout        time.Duration
	AllowRedirects bool
	// Verify and MaxRedirects override the network defaults when set.
	Verify       *bool
	MaxRedirects *int
}
