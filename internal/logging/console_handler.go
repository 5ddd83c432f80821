package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"
)

const consoleTimestampLayout = "2006-01-02 15:04:05"

// consoleHandler renders human-oriented log lines:
//
//	2026-02-11 10:42:07 INFO  stage completed job_id=2f1c stage=analysis
type consoleHandler struct {
	mu    *sync.Mutex
	w     io.Writer
	level *slog.LevelVar
	attrs []slog.Attr
}

func newConsoleHandler(w io.Writer, level *slog.LevelVar) slog.Handler {
	return &consoleHandler{mu: &sync.Mutex{}, w: w, level: level}
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *consoleHandler) Handle(_ context.Context, record slog.Record) error {
	var b strings.Builder
	ts := record.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	b.WriteString(ts.In(time.Local).Format(consoleTimestampLayout))
	b.WriteByte(' ')
	b.WriteString(fmt.Sprintf("%-5s", levelLabel(record.Level)))
	b.WriteByte(' ')
	b.WriteString(record.Message)

	for _, attr := range h.attrs {
		appendAttr(&b, attr)
	}
	record.Attrs(func(attr slog.Attr) bool {
		appendAttr(&b, attr)
		return true
	})
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, b.String())
	return err
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &consoleHandler{mu: h.mu, w: h.w, level: h.level, attrs: merged}
}

func (h *consoleHandler) WithGroup(string) slog.Handler {
	// Groups are flattened in console output.
	return h
}

func appendAttr(b *strings.Builder, attr slog.Attr) {
	if attr.Equal(slog.Attr{}) {
		return
	}
	value := attr.Value.Resolve()
	b.WriteByte(' ')
	b.WriteString(attr.Key)
	b.WriteByte('=')
	text := value.String()
	if strings.ContainsAny(text, " \t") {
		b.WriteString(fmt.Sprintf("%q", text))
	} else {
		b.WriteString(text)
	}
}

func levelLabel(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "ERROR"
	case level >= slog.LevelWarn:
		return "WARN"
	case level >= slog.LevelInfo:
		return "INFO"
	default:
		return "DEBUG"
	}
}
