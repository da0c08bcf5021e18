// Package logger builds the service's slog loggers.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"metasearch/internal/domain"
	"metasearch/internal/infra/config"
)

// New returns a logger for cfg and the function that releases its output.
// Records logged with a context carrying a search ID get a search_id
// attribute.
func New(cfg config.LoggerConfig) (*slog.Logger, func() error, error) {
	w, closeOutput, err := openOutput(cfg.Output)
	if err != nil {
		return nil, nil, fmt.Errorf("open log output: %w", err)
	}

	level := ParseLevel(cfg.Level)
	opts := &slog.HandlerOptions{Level: level, AddSource: level <= slog.LevelDebug}

	var h slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(searchIDHandler{h}).With("service", "metasearch"), closeOutput, nil
}

// ParseLevel accepts slog level names, including offsets such as "warn+2",
// and "warning". Anything else is info.
func ParseLevel(s string) slog.Level {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "warning") {
		return slog.LevelWarn
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// searchIDHandler tags records with the search ID found in their context.
type searchIDHandler struct {
	slog.Handler
}

func (h searchIDHandler) Handle(ctx context.Context, r slog.Record) error {
	if id := domain.SearchIDFromContext(ctx); id != "" {
		r = r.Clone()
		r.AddAttrs(slog.String("search_id", id))
	}
	return h.Handler.Handle(ctx, r)
}

func (h searchIDHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return searchIDHandler{h.Handler.WithAttrs(attrs)}
}

func (h searchIDHandler) WithGroup(name string) slog.Handler {
	return searchIDHandler{h.Handler.WithGroup(name)}
}

func openOutput(output string) (io.Writer, func() error, error) {
	nop := func() error { return nil }
	switch strings.ToLower(output) {
	case "", "stderr":
		return os.Stderr, nop, nil
	case "stdout":
		return os.Stdout, nop, nil
	case "discard", "none":
		return io.Discard, nop, nil
	}
	f, err := os.OpenFile(output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}
