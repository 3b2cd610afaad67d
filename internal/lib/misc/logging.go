package misc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"log/slog"
	"runtime"
	"time"
)

func Errorf(logger *slog.Logger, format string, args ...any) {
	helperf(logger, slog.LevelError, format, args...)
}

func Warnf(logger *slog.Logger, format string, args ...any) {
	helperf(logger, slog.LevelWarn, format, args...)
}

func Infof(logger *slog.Logger, format string, args ...any) {
	helperf(logger, slog.LevelInfo, format, args...)
}

func Debugf(logger *slog.Logger, format string, args ...any) {
	helperf(logger, slog.LevelDebug, format, args...)
}

func helperf(logger *slog.Logger, level slog.Level, format string, args ...any) {
	if !logger.Enabled(context.Background(), level) {
		return
	}
	var pcs [1]uintptr
	runtime.Callers(3, pcs[:]) // skip [Callers, helperf, [info/warn/debug]f]
	r := slog.NewRecord(time.Now(), level, fmt.Sprintf(format, args...), pcs[0])
	_ = logger.Handler().Handle(context.Background(), r)
}

type MinimalHandlerOptions struct {
	SlogOpts slog.HandlerOptions
}

// MinimalHandler writes just the message (prefixed by level when above info) followed by any attributes as a
// compact json object.  Meant for interactive CLI use.
type MinimalHandler struct {
	slog.Handler
	l     *log.Logger
	attrs []slog.Attr
}

func (h *MinimalHandler) Handle(ctx context.Context, r slog.Record) error {
	var (
		extra  string
		prefix string
	)
	if r.Level > slog.LevelInfo {
		prefix = r.Level.String() + ": "
	}
	if r.NumAttrs()+len(h.attrs) > 0 {
		fields := make(map[string]any, r.NumAttrs()+len(h.attrs))
		for _, a := range h.attrs {
			fields[a.Key] = fmt.Sprintf("%v", a.Value.Any())
		}
		r.Attrs(func(a slog.Attr) bool {
			fields[a.Key] = fmt.Sprintf("%v", a.Value.Any())
			return true
		})
		b, err := json.Marshal(fields)
		if err != nil {
			return err
		}
		extra = " " + string(b)
	}

	h.l.Println(prefix + r.Message + extra)
	return nil
}

func (h *MinimalHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &MinimalHandler{
		Handler: h.Handler.WithAttrs(attrs),
		l:       h.l,
		attrs:   append(append([]slog.Attr{}, h.attrs...), attrs...),
	}
}

func NewMinimalHandler(out io.Writer, opts MinimalHandlerOptions) *MinimalHandler {
	return &MinimalHandler{
		Handler: slog.NewJSONHandler(out, &opts.SlogOpts),
		l:       log.New(out, "", 0),
	}
}

// NewJSONLogHandler returns a json handler with key names matching what google cloud logging expects.
func NewJSONLogHandler(out io.Writer, level slog.Leveler) slog.Handler {
	return slog.NewJSONHandler(out, &slog.HandlerOptions{
		AddSource: true,
		Level:     level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.MessageKey {
				a.Key = "message"
			} else if a.Key == slog.LevelKey && len(groups) == 0 {
				a.Key = "severity"
			}
			return a
		},
	})
}
