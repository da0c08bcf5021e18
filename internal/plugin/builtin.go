package plugin

import (
	"context"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"hash"
	"net/url"
	"regexp"
	"strings"

	"metasearch/internal/domain"
	"metasearch/internal/usecase/search"
)

// nopHooks lets a plugin implement only the hooks it needs.
type nopHooks struct{}

func (nopHooks) PreSearch(context.Context, *search.Request) bool                { return true }
func (nopHooks) PostSearch(context.Context, *search.Request)                    {}
func (nopHooks) OnResult(context.Context, *search.Request, *domain.Result) bool { return true }

// Hash answers "<algorithm> <text>" with the hex digest of text.
type Hash struct{ nopHooks }

var hashQuery = regexp.MustCompile(`(?i)^(md5|sha1|sha224|sha256|sha384|sha512) (.*)`)

var hashFuncs = map[string]func() hash.Hash{
	"md5":    md5.New,
	"sha1":   sha1.New,
	"sha224": sha256.New224,
	"sha256": sha256.New,
	"sha384": sha512.New384,
	"sha512": sha512.New,
}

func (Hash) Name() string { return "hash" }

func (Hash) Description() string { return "Converts strings to different hash digests." }

func (Hash) PostSearch(_ context.Context, req *search.Request) {
	if req.Query.PageNo > 1 {
		return
	}
	m := hashQuery.FindStringSubmatch(req.Query.Query)
	if m == nil {
		return
	}
	algo, text := m[1], strings.TrimSpace(m[2])
	if text == "" {
		return
	}
	h := hashFuncs[strings.ToLower(algo)]()
	h.Write([]byte(text))

	req.Container.ClearAnswers()
	req.Container.AddAnswer(domain.Result{
		Answer: algo + " hash digest: " + hex.EncodeToString(h.Sum(nil)),
		Engine: "hash",
	})
}

// TrackerURLRemover strips tracking parameters from result URLs.
type TrackerURLRemover struct{ nopHooks }

func (TrackerURLRemover) Name() string { return "tracker_url_remover" }

func (TrackerURLRemover) Description() string { return "Remove trackers arguments from the returned URL" }

func isTrackerParam(key string) bool {
	return strings.HasPrefix(key, "utm_") || strings.HasPrefix(key, "wkey") || strings.HasPrefix(key, "wemail")
}

func (TrackerURLRemover) OnResult(_ context.Context, _ *search.Request, r *domain.Result) bool {
	if r.URL == "" {
		return true
	}
	u, err := url.Parse(r.URL)
	if err != nil || u.RawQuery == "" {
		return true
	}
	var kept []string
	for _, part := range strings.Split(u.RawQuery, "&") {
		key, _, _ := strings.Cut(part, "=")
		if part == "" || isTrackerParam(key) {
			continue
		}
		kept = append(kept, part)
	}
	rawQuery := strings.Join(kept, "&")
	if rawQuery == u.RawQuery {
		return true
	}
	u.RawQuery = rawQuery
	r.URL = u.String()
	r.ParsedURL = u
	return true
}

// SelfInfo answers "ip" with the client address and queries mentioning a
// user agent with the client's user agent.
type SelfInfo struct{ nopHooks }

var userAgentQuery = regexp.MustCompile(`(?i)user[ -]agent`)

func (SelfInfo) Name() string { return "self_info" }

func (SelfInfo) Description() string {
	return `Displays your IP if the query is "ip" and your user agent if the query contains "user agent".`
}

func (SelfInfo) PostSearch(_ context.Context, req *search.Request) {
	var answer string
	switch {
	case req.Query.Query == "ip":
		answer = req.Info.RemoteAddr
	case userAgentQuery.MatchString(req.Query.Query):
		answer = req.Info.UserAgent
	}
	if answer == "" {
		return
	}
	req.Container.ClearAnswers()
	req.Container.AddAnswer(domain.Result{Answer: answer, Engine: "self_info"})
}
