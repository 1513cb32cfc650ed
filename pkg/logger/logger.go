// Package logger is a small structured JSON logger used at the
// boundary of every pipeline stage. Internals (the stream broker, the
// worker pool) log through zerolog instead; this package carries the
// business-event log lines the pipeline emits: one line per
// non-trivial transition, with service/trace_id/idemp_key/
// stream_message_id fields.
package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/goccy/go-json"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelFatal:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

func ParseLevel(s string) Level {
	switch s {
	case "debug", "DEBUG":
		return LevelDebug
	case "info", "INFO":
		return LevelInfo
	case "warn", "WARN", "warning", "WARNING":
		return LevelWarn
	case "error", "ERROR":
		return LevelError
	case "fatal", "FATAL":
		return LevelFatal
	default:
		return LevelInfo
	}
}

// LogEntry is the JSON shape written to output.
type LogEntry struct {
	Timestamp       string         `json:"timestamp"`
	Level           string         `json:"level"`
	Message         string         `json:"message"`
	Service         string         `json:"service,omitempty"`
	TraceID         string         `json:"trace_id,omitempty"`
	IdempKey        string         `json:"idemp_key,omitempty"`
	StreamMessageID string         `json:"stream_message_id,omitempty"`
	File            string         `json:"file,omitempty"`
	Line            int            `json:"line,omitempty"`
	Duration        float64        `json:"duration_ms,omitempty"`
	Error           string         `json:"error,omitempty"`
	Fields          map[string]any `json:"fields,omitempty"`
}

type Logger struct {
	mu      sync.Mutex
	level   Level
	output  io.Writer
	service string
	fields  map[string]any
}

type Config struct {
	Level   Level
	Output  io.Writer
	Service string
}

var (
	defaultLogger *Logger
	once          sync.Once
)

func Init(cfg Config) {
	once.Do(func() {
		if cfg.Output == nil {
			cfg.Output = os.Stdout
		}
		if cfg.Service == "" {
			cfg.Service = "mailrouter"
		}
		defaultLogger = &Logger{level: cfg.Level, output: cfg.Output, service: cfg.Service, fields: make(map[string]any)}
	})
}

func Default() *Logger {
	if defaultLogger == nil {
		Init(Config{Level: LevelInfo, Output: os.Stdout, Service: "mailrouter"})
	}
	return defaultLogger
}

func New(cfg Config) *Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}
	return &Logger{level: cfg.Level, output: cfg.Output, service: cfg.Service, fields: make(map[string]any)}
}

func (l *Logger) clone() *Logger {
	n := &Logger{level: l.level, output: l.output, service: l.service, fields: make(map[string]any, len(l.fields))}
	for k, v := range l.fields {
		n.fields[k] = v
	}
	return n
}

func (l *Logger) WithField(key string, value any) *Logger {
	n := l.clone()
	n.fields[key] = value
	return n
}

func (l *Logger) WithFields(fields map[string]any) *Logger {
	n := l.clone()
	for k, v := range fields {
		n.fields[k] = v
	}
	return n
}

// WithContext copies trace_id out of ctx if present (stages stash it
// there when a handler starts).
func (l *Logger) WithContext(ctx context.Context) *Logger {
	n := l.clone()
	if traceID, ok := ctx.Value(traceIDKey{}).(string); ok {
		n.fields["trace_id"] = traceID
	}
	return n
}

func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.WithField("error", err.Error())
}

func (l *Logger) WithDuration(d time.Duration) *Logger {
	return l.WithField("duration_ms", float64(d.Microseconds())/1000.0)
}

func (l *Logger) log(level Level, msg string, args ...any) {
	if level < l.level {
		return
	}
	entry := LogEntry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     level.String(),
		Message:   fmt.Sprintf(msg, args...),
		Service:   l.service,
		Fields:    l.fields,
	}
	if v, ok := l.fields["trace_id"].(string); ok {
		entry.TraceID = v
		delete(entry.Fields, "trace_id")
	}
	if v, ok := l.fields["idemp_key"].(string); ok {
		entry.IdempKey = v
		delete(entry.Fields, "idemp_key")
	}
	if v, ok := l.fields["stream_message_id"].(string); ok {
		entry.StreamMessageID = v
		delete(entry.Fields, "stream_message_id")
	}
	if v, ok := l.fields["error"].(string); ok {
		entry.Error = v
		delete(entry.Fields, "error")
	}
	if v, ok := l.fields["duration_ms"].(float64); ok {
		entry.Duration = v
		delete(entry.Fields, "duration_ms")
	}
	if level >= LevelError {
		if _, file, line, ok := runtime.Caller(2); ok {
			entry.File = file
			entry.Line = line
		}
	}
	if len(entry.Fields) == 0 {
		entry.Fields = nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	data, err := json.Marshal(entry)
	if err != nil {
		fmt.Fprintf(l.output, `{"level":"ERROR","message":"failed to marshal log entry: %s"}`+"\n", err)
		return
	}
	l.output.Write(append(data, '\n'))
}

func (l *Logger) Debug(msg string, args ...any) { l.log(LevelDebug, msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.log(LevelInfo, msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.log(LevelWarn, msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.log(LevelError, msg, args...) }
func (l *Logger) Fatal(msg string, args ...any) {
	l.log(LevelFatal, msg, args...)
	os.Exit(1)
}

func Debug(msg string, args ...any) { Default().Debug(msg, args...) }
func Info(msg string, args ...any)  { Default().Info(msg, args...) }
func Warn(msg string, args ...any)  { Default().Warn(msg, args...) }
func Error(msg string, args ...any) { Default().Error(msg, args...) }
func Fatal(msg string, args ...any) { Default().Fatal(msg, args...) }

func WithField(key string, value any) *Logger  { return Default().WithField(key, value) }
func WithFields(fields map[string]any) *Logger { return Default().WithFields(fields) }
func WithContext(ctx context.Context) *Logger  { return Default().WithContext(ctx) }
func WithError(err error) *Logger              { return Default().WithError(err) }
func WithDuration(d time.Duration) *Logger     { return Default().WithDuration(d) }

type traceIDKey struct{}

// WithTraceID stashes a trace id on ctx for WithContext to pick up.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey{}, traceID)
}
