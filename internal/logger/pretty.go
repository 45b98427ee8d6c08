package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"time"
)

// maxSliceItems caps how many elements of a []float32 or []int attribute are
// printed before the rest is summarized.
const maxSliceItems = 8

// palette holds the escape sequences used by the pretty handler. The zero
// value prints no color.
type palette struct {
	reset, bold, faint, key string
	debug, info, warn, err  string
}

var ansiPalette = palette{
	reset: "\033[0m",
	bold:  "\033[1m",
	faint: "\033[90m",
	key:   "\033[36m",
	debug: "\033[90m",
	info:  "\033[34m",
	warn:  "\033[33m",
	err:   "\033[31m",
}

// PrettyHandler renders records as single human-readable lines:
//
//	[2006-01-02 15:04:05] INFO  message key=value [pkg/file.go:12]
//
// Colors are used when the writer is a terminal and NO_COLOR is unset.
type PrettyHandler struct {
	opts   slog.HandlerOptions
	w      io.Writer
	mu     *sync.Mutex
	colors palette
	group  string
	attrs  []slog.Attr
}

// NewPrettyHandler creates a new PrettyHandler.
func NewPrettyHandler(w io.Writer, opts *slog.HandlerOptions) *PrettyHandler {
	if opts == nil {
		opts = &slog.HandlerOptions{}
	}
	h := &PrettyHandler{
		opts: *opts,
		w:    w,
		mu:   new(sync.Mutex),
	}
	if wantColor(w) {
		h.colors = ansiPalette
	}
	return h
}

func wantColor(w io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := w.(*os.File)
	return ok && isTerminal(f.Fd())
}

func (h *PrettyHandler) Enabled(_ context.Context, level slog.Level) bool {
	minLevel := slog.LevelInfo
	if h.opts.Level != nil {
		minLevel = h.opts.Level.Level()
	}
	return level >= minLevel
}

func (h *PrettyHandler) Handle(_ context.Context, r slog.Record) error {
	buf := make([]byte, 0, 512)
	buf = h.appendHeader(buf, r)

	attrs := make([]slog.Attr, 0, len(h.attrs)+r.NumAttrs())
	attrs = append(attrs, h.attrs...)
	r.Attrs(func(a slog.Attr) bool {
		attrs = append(attrs, a)
		return true
	})
	for _, attr := range attrs {
		if attr.Equal(slog.Attr{}) {
			continue
		}
		buf = append(buf, ' ')
		buf = h.appendAttr(buf, attr, h.group)
	}

	if h.opts.AddSource && r.PC != 0 {
		buf = h.appendSource(buf, r.PC)
	}
	buf = append(buf, '\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.w.Write(buf)
	return err
}

func (h *PrettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := h.clone()
	c.attrs = append(c.attrs, attrs...)
	return c
}

func (h *PrettyHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	c := h.clone()
	if c.group != "" {
		c.group += "." + name
	} else {
		c.group = name
	}
	return c
}

// clone shares the writer lock so derived handlers never interleave lines.
func (h *PrettyHandler) clone() *PrettyHandler {
	return &PrettyHandler{
		opts:   h.opts,
		w:      h.w,
		mu:     h.mu,
		colors: h.colors,
		group:  h.group,
		attrs:  append([]slog.Attr(nil), h.attrs...),
	}
}

func (h *PrettyHandler) appendHeader(buf []byte, r slog.Record) []byte {
	c := h.colors
	buf = append(buf, c.faint...)
	buf = append(buf, '[')
	buf = r.Time.AppendFormat(buf, time.DateTime)
	buf = append(buf, ']')
	buf = append(buf, c.reset...)
	buf = append(buf, ' ')

	buf = append(buf, c.levelColor(r.Level)...)
	buf = append(buf, c.bold...)
	buf = append(buf, fmt.Sprintf("%-5s", r.Level.String())...)
	buf = append(buf, c.reset...)
	buf = append(buf, ' ')
	return append(buf, r.Message...)
}

func (c palette) levelColor(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return c.err
	case level >= slog.LevelWarn:
		return c.warn
	case level >= slog.LevelInfo:
		return c.info
	default:
		return c.debug
	}
}

func (h *PrettyHandler) appendAttr(buf []byte, attr slog.Attr, group string) []byte {
	attr.Value = attr.Value.Resolve()
	key := attr.Key
	if group != "" {
		key = group + "." + key
	}
	if attr.Value.Kind() == slog.KindGroup {
		for i, a := range attr.Value.Group() {
			if i > 0 {
				buf = append(buf, ' ')
			}
			buf = h.appendAttr(buf, a, key)
		}
		return buf
	}

	buf = append(buf, h.colors.key...)
	buf = append(buf, key...)
	buf = append(buf, '=')
	buf = append(buf, h.colors.reset...)
	return appendValue(buf, attr.Value)
}

func appendValue(buf []byte, v slog.Value) []byte {
	switch v.Kind() {
	case slog.KindString:
		return appendString(buf, v.String())
	case slog.KindTime:
		return v.Time().AppendFormat(buf, time.RFC3339)
	case slog.KindDuration:
		return append(buf, v.Duration().String()...)
	case slog.KindFloat64:
		return strconv.AppendFloat(buf, v.Float64(), 'g', 6, 64)
	case slog.KindInt64:
		return strconv.AppendInt(buf, v.Int64(), 10)
	case slog.KindAny:
		switch x := v.Any().(type) {
		case []float32:
			return appendSlice(buf, x, func(b []byte, f float32) []byte {
				return strconv.AppendFloat(b, float64(f), 'g', 4, 32)
			})
		case []int:
			return appendSlice(buf, x, func(b []byte, n int) []byte {
				return strconv.AppendInt(b, int64(n), 10)
			})
		case error:
			return appendString(buf, x.Error())
		}
	}
	return appendString(buf, fmt.Sprint(v.Any()))
}

// appendSlice prints at most maxSliceItems elements followed by the count of
// the rest, e.g. [0.3 0.3 0.5 …+12].
func appendSlice[T any](buf []byte, s []T, appendElem func([]byte, T) []byte) []byte {
	buf = append(buf, '[')
	for i, x := range s {
		if i == maxSliceItems {
			buf = append(buf, " …+"...)
			buf = strconv.AppendInt(buf, int64(len(s)-i), 10)
			break
		}
		if i > 0 {
			buf = append(buf, ' ')
		}
		buf = appendElem(buf, x)
	}
	return append(buf, ']')
}

func appendString(buf []byte, s string) []byte {
	if needsQuoting(s) {
		return strconv.AppendQuote(buf, s)
	}
	return append(buf, s...)
}

// appendSource renders the caller as " [dir/file.go:line]".
func (h *PrettyHandler) appendSource(buf []byte, pc uintptr) []byte {
	frames := runtime.CallersFrames([]uintptr{pc})
	f, _ := frames.Next()
	if f.File == "" {
		return buf
	}
	buf = append(buf, ' ')
	buf = append(buf, h.colors.faint...)
	buf = append(buf, '[')
	buf = append(buf, filepath.Base(filepath.Dir(f.File))...)
	buf = append(buf, '/')
	buf = append(buf, filepath.Base(f.File)...)
	buf = append(buf, ':')
	buf = strconv.AppendInt(buf, int64(f.Line), 10)
	buf = append(buf, ']')
	return append(buf, h.colors.reset...)
}

func needsQuoting(s string) bool {
	if s == "" {
		return true
	}
	for _, c := range s {
		if c == ' ' || c == '\t' || c == '\n' || c == '"' || c == '=' {
			return true
		}
	}
	return false
}
