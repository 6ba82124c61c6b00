package logging

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Options describes logger construction parameters.
type Options struct {
	Level            string
	Format           string
	OutputPaths      []string
	ErrorOutputPaths []string
	Development      bool
}

// New constructs a slog logger using the provided options.
func New(opts Options) (*slog.Logger, error) {
	levelVar := new(slog.LevelVar)
	levelVar.Set(levelFromName(opts.Level))

	sink, err := combineSinks(opts.OutputPaths, opts.ErrorOutputPaths)
	if err != nil {
		return nil, err
	}

	addSource := opts.Development || levelVar.Level() <= slog.LevelDebug

	switch strings.ToLower(strings.TrimSpace(opts.Format)) {
	case "json":
		return slog.New(jsonHandler(sink, levelVar, addSource)), nil
	case "console", "":
		return slog.New(&consoleHandler{out: sink, level: levelVar, addSource: addSource}), nil
	default:
		return nil, fmt.Errorf("log format: unsupported value %q", opts.Format)
	}
}

func levelFromName(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// combineSinks opens every distinct path across both lists and fans writes
// out to all of them. Error paths share the same sink so a single stream
// carries the full record of a run.
func combineSinks(outputs, errorOutputs []string) (io.Writer, error) {
	if len(outputs) == 0 {
		outputs = []string{"stdout"}
	}
	if len(errorOutputs) == 0 {
		errorOutputs = []string{"stderr"}
	}

	var (
		writers []io.Writer
		opened  = map[string]bool{}
	)
	for _, path := range append(append([]string{}, outputs...), errorOutputs...) {
		path = strings.TrimSpace(path)
		if path == "" || opened[path] {
			continue
		}
		opened[path] = true
		w, err := sinkFor(path)
		if err != nil {
			return nil, err
		}
		writers = append(writers, w)
	}

	switch len(writers) {
	case 0:
		return os.Stdout, nil
	case 1:
		return writers[0], nil
	default:
		return io.MultiWriter(writers...), nil
	}
}

func sinkFor(path string) (io.Writer, error) {
	switch path {
	case "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o664)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", path, err)
	}
	return file, nil
}

func jsonHandler(w io.Writer, lvl *slog.LevelVar, addSource bool) slog.Handler {
	return slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:     lvl,
		AddSource: addSource,
		ReplaceAttr: func(_ []string, attr slog.Attr) slog.Attr {
			switch attr.Key {
			case slog.TimeKey:
				attr.Key = "ts"
				if attr.Value.Kind() == slog.KindTime {
					attr.Value = slog.StringValue(attr.Value.Time().UTC().Format(time.RFC3339))
				}
			case slog.LevelKey:
				attr.Key = "level"
				attr.Value = slog.StringValue(strings.ToLower(attr.Value.String()))
			case slog.MessageKey:
				attr.Key = "msg"
			case slog.SourceKey:
				if src, ok := attr.Value.Any().(*slog.Source); ok && src != nil {
					attr.Value = slog.StringValue(fmt.Sprintf("%s:%d", filepath.Base(src.File), src.Line))
				}
			}
			return attr
		},
	})
}

// consoleHandler renders "TIMESTAMP LEVEL component: message key=value ..."
// lines. The component field is lifted out of the attrs and used as the
// message prefix.
type consoleHandler struct {
	mu        sync.Mutex
	out       io.Writer
	level     *slog.LevelVar
	addSource bool
	preset    []slog.Attr
	group     string
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := h.derive()
	next.preset = append(next.preset, attrs...)
	return next
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	next := h.derive()
	if name != "" {
		if next.group != "" {
			next.group += "." + name
		} else {
			next.group = name
		}
	}
	return next
}

func (h *consoleHandler) derive() *consoleHandler {
	return &consoleHandler{
		out:       h.out,
		level:     h.level,
		addSource: h.addSource,
		preset:    append([]slog.Attr(nil), h.preset...),
		group:     h.group,
	}
}

func (h *consoleHandler) Handle(_ context.Context, record slog.Record) error {
	if record.Level < h.level.Level() {
		return nil
	}

	ts := record.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	var (
		component string
		fields    bytes.Buffer
	)
	for _, attr := range h.preset {
		h.emitInto(&fields, &component, h.group, attr)
	}
	record.Attrs(func(attr slog.Attr) bool {
		h.emitInto(&fields, &component, h.group, attr)
		return true
	})

	var line bytes.Buffer
	line.Grow(96 + fields.Len())
	line.WriteString(ts.UTC().Format(time.RFC3339))
	line.WriteByte(' ')
	line.WriteString(levelLabel(record.Level))
	line.WriteByte(' ')
	if component != "" {
		line.WriteString(component)
		line.WriteString(": ")
	}
	if msg := strings.TrimSpace(record.Message); msg != "" {
		line.WriteString(msg)
	} else {
		line.WriteString("(no message)")
	}
	if h.addSource && record.PC != 0 {
		frames := runtime.CallersFrames([]uintptr{record.PC})
		if frame, _ := frames.Next(); frame.File != "" {
			fmt.Fprintf(&line, " [%s:%d]", filepath.Base(frame.File), frame.Line)
		}
	}
	line.Write(fields.Bytes())
	line.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.out.Write(line.Bytes())
	return err
}

// emitInto writes one flattened attr as " key=value", capturing the first
// component field instead of printing it.
func (h *consoleHandler) emitInto(fields *bytes.Buffer, component *string, prefix string, attr slog.Attr) {
	attr.Value = attr.Value.Resolve()
	if attr.Equal(slog.Attr{}) {
		return
	}
	if attr.Value.Kind() == slog.KindGroup {
		inner := prefix
		if attr.Key != "" {
			inner = joinKey(prefix, attr.Key)
		}
		for _, member := range attr.Value.Group() {
			h.emitInto(fields, component, inner, member)
		}
		return
	}
	key := joinKey(prefix, attr.Key)
	if key == "" {
		return
	}
	if key == FieldComponent {
		if *component == "" {
			*component = rawString(attr.Value)
		}
		return
	}
	fields.WriteByte(' ')
	fields.WriteString(key)
	fields.WriteByte('=')
	fields.WriteString(renderValue(attr.Value))
}

func joinKey(prefix, key string) string {
	switch {
	case prefix == "":
		return key
	case key == "":
		return prefix
	default:
		return prefix + "." + key
	}
}

func rawString(v slog.Value) string {
	v = v.Resolve()
	switch v.Kind() {
	case slog.KindString:
		return v.String()
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
		return fmt.Sprint(v.Any())
	default:
		return renderValue(v)
	}
}

func renderValue(v slog.Value) string {
	v = v.Resolve()
	switch v.Kind() {
	case slog.KindBool:
		return strconv.FormatBool(v.Bool())
	case slog.KindInt64:
		return strconv.FormatInt(v.Int64(), 10)
	case slog.KindUint64:
		return strconv.FormatUint(v.Uint64(), 10)
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'f', -1, 64)
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindTime:
		return v.Time().UTC().Format(time.RFC3339)
	case slog.KindString:
		return quoteIfNeeded(v.String())
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return quoteIfNeeded(err.Error())
		}
		return quoteIfNeeded(fmt.Sprint(v.Any()))
	default:
		return quoteIfNeeded(v.String())
	}
}

func quoteIfNeeded(s string) string {
	if s == "" {
		return `""`
	}
	for _, r := range s {
		if r <= ' ' || r == '=' || r == '"' {
			return strconv.Quote(s)
		}
	}
	return s
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
