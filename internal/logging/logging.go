// Package logging builds the slog.Logger used throughout the dispatcher:
// a JSON handler to stdout, optionally mirrored to a rotated on-disk file,
// with warn-level-and-above records (the dispatcher's reconciliation
// warnings and degraded-success notices) additionally mirrored to syslog
// for sites that centralize audit trails outside the application's own
// log files.
package logging

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/RackSec/srslog"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/metabridge/catalogd/internal/config"
)

// New builds a logger from cfg. The returned close function flushes and
// closes any rotating file or syslog connection opened along the way; it
// must be called during shutdown.
func New(cfg config.LoggingConfig) (*slog.Logger, func() error, error) {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var out io.Writer = os.Stdout
	var closers []io.Closer
	if cfg.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    100, // megabytes
			MaxBackups: 7,
			MaxAge:     28, // days
			Compress:   true,
		}
		out = io.MultiWriter(os.Stdout, rotator)
		closers = append(closers, rotator)
	}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}

	if cfg.SyslogAudit {
		sink, err := srslog.New(srslog.LOG_INFO|srslog.LOG_USER, "catalogd")
		if err != nil {
			return nil, nil, fmt.Errorf("logging: dial syslog: %w", err)
		}
		handler = &auditHandler{inner: handler, sink: sink}
		closers = append(closers, sink)
	}

	logger := slog.New(handler)
	closeFn := func() error {
		var first error
		for _, c := range closers {
			if err := c.Close(); err != nil && first == nil {
				first = err
			}
		}
		return first
	}
	return logger, closeFn, nil
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// auditHandler wraps a base handler and additionally mirrors
// warn-level-and-above records to sink, so only genuinely audit-relevant
// events reach syslog rather than every info-level call trace.
type auditHandler struct {
	inner slog.Handler
	sink  io.Writer
}

func (h *auditHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *auditHandler) Handle(ctx context.Context, r slog.Record) error {
	if err := h.inner.Handle(ctx, r); err != nil {
		return err
	}
	if r.Level < slog.LevelWarn {
		return nil
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s level=%s msg=%q", r.Time.Format("2006-01-02T15:04:05Z07:00"), r.Level, r.Message)
	r.Attrs(func(a slog.Attr) bool {
		fmt.Fprintf(&buf, " %s=%v", a.Key, a.Value)
		return true
	})
	buf.WriteByte('\n')
	_, err := h.sink.Write(buf.Bytes())
	return err
}

func (h *auditHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &auditHandler{inner: h.inner.WithAttrs(attrs), sink: h.sink}
}

func (h *auditHandler) WithGroup(name string) slog.Handler {
	return &auditHandler{inner: h.inner.WithGroup(name), sink: h.sink}
}
