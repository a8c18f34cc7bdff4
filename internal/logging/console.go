package logging

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"
)

// consoleHandler renders one line per record:
//
//	2026-01-02T15:04:05.000Z INF session [3f2a9c10]: polling progress=40
//
// The component and job id are lifted out of the attributes into the prefix.
type consoleHandler struct {
	mu        *sync.Mutex
	out       io.Writer
	level     slog.Leveler
	addSource bool

	component string
	jobID     string
	group     string
	attrs     []byte
}

func newConsoleHandler(w io.Writer, lvl slog.Leveler, addSource bool) *consoleHandler {
	return &consoleHandler{mu: &sync.Mutex{}, out: w, level: lvl, addSource: addSource}
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *consoleHandler) Handle(_ context.Context, record slog.Record) error {
	component, jobID := h.component, h.jobID
	var tail []byte
	record.Attrs(func(attr slog.Attr) bool {
		tail = appendAttr(tail, h.group, attr, &component, &jobID)
		return true
	})

	ts := record.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	line := make([]byte, 0, 96+len(h.attrs)+len(tail))
	line = ts.UTC().AppendFormat(line, timeLayout)
	line = append(line, ' ')
	line = append(line, levelTag(record.Level)...)
	line = append(line, ' ')

	switch {
	case component != "" && jobID != "":
		line = append(line, component...)
		line = append(line, " ["...)
		line = append(line, shortID(jobID)...)
		line = append(line, "]: "...)
	case component != "":
		line = append(line, component...)
		line = append(line, ": "...)
	case jobID != "":
		line = append(line, '[')
		line = append(line, shortID(jobID)...)
		line = append(line, "] "...)
	}

	if msg := strings.TrimSpace(record.Message); msg != "" {
		line = append(line, msg...)
	} else {
		line = append(line, "(no message)"...)
	}
	if h.addSource && record.PC != 0 {
		frame, _ := runtime.CallersFrames([]uintptr{record.PC}).Next()
		if frame.File != "" {
			line = append(line, " ["...)
			line = append(line, filepath.Base(frame.File)...)
			line = append(line, ':')
			line = strconv.AppendInt(line, int64(frame.Line), 10)
			line = append(line, ']')
		}
	}
	line = append(line, h.attrs...)
	line = append(line, tail...)
	line = append(line, '\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.out.Write(line)
	return err
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	clone := *h
	clone.attrs = append([]byte(nil), h.attrs...)
	for _, attr := range attrs {
		clone.attrs = appendAttr(clone.attrs, clone.group, attr, &clone.component, &clone.jobID)
	}
	return &clone
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.group = h.group + name + "."
	return &clone
}

// appendAttr writes " key=value" for attr. Top-level component and job id
// attributes are captured instead of written; the first value seen wins.
func appendAttr(dst []byte, group string, attr slog.Attr, component, jobID *string) []byte {
	attr.Value = attr.Value.Resolve()
	if attr.Equal(slog.Attr{}) {
		return dst
	}
	if attr.Value.Kind() == slog.KindGroup {
		nested := group
		if attr.Key != "" {
			nested = group + attr.Key + "."
		}
		for _, member := range attr.Value.Group() {
			dst = appendAttr(dst, nested, member, component, jobID)
		}
		return dst
	}
	if group == "" {
		switch attr.Key {
		case FieldComponent:
			if *component == "" {
				*component = plainText(attr.Value)
			}
			return dst
		case FieldJobID:
			if *jobID == "" {
				*jobID = plainText(attr.Value)
			}
			return dst
		}
	}
	dst = append(dst, ' ')
	dst = append(dst, group...)
	dst = append(dst, attr.Key...)
	dst = append(dst, '=')
	return appendValue(dst, attr.Value)
}

func appendValue(dst []byte, v slog.Value) []byte {
	switch v.Kind() {
	case slog.KindBool:
		return strconv.AppendBool(dst, v.Bool())
	case slog.KindInt64:
		return strconv.AppendInt(dst, v.Int64(), 10)
	case slog.KindUint64:
		return strconv.AppendUint(dst, v.Uint64(), 10)
	case slog.KindFloat64:
		return strconv.AppendFloat(dst, v.Float64(), 'f', -1, 64)
	case slog.KindDuration:
		return append(dst, v.Duration().String()...)
	case slog.KindTime:
		return v.Time().UTC().AppendFormat(dst, timeLayout)
	default:
		text := plainText(v)
		if needsQuoting(text) {
			return strconv.AppendQuote(dst, text)
		}
		return append(dst, text...)
	}
}

func plainText(v slog.Value) string {
	if v.Kind() == slog.KindAny {
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
	}
	return v.String()
}

func needsQuoting(s string) bool {
	if s == "" {
		return true
	}
	return strings.ContainsFunc(s, func(r rune) bool {
		return r <= ' ' || r == '=' || r == '"'
	})
}

// shortID trims a UUID to its first block.
func shortID(id string) string {
	if idx := strings.IndexByte(id, '-'); idx > 0 {
		return id[:idx]
	}
	return id
}

func levelTag(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "ERR"
	case level >= slog.LevelWarn:
		return "WRN"
	case level >= slog.LevelInfo:
		return "INF"
	default:
		return "DBG"
	}
}
