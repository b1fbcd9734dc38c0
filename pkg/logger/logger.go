// Package logger wraps slog with structured JSON output, request-scoped
// trace fields and size-based file rotation.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

var globalLogger *slog.Logger

type ctxKey string

// Context keys under which middleware stores request trace fields.
const (
	TraceIDContextKey   ctxKey = "trace_id"
	SpanIDContextKey    ctxKey = "span_id"
	RequestIDContextKey ctxKey = "request_id"
)

// Config controls log level, format and rotation.
type Config struct {
	// Level is one of: debug, info, warn, error.
	Level string `mapstructure:"level"`
	// Format is json or text.
	Format string `mapstructure:"format"`
	// Output is stdout, file or both.
	Output string `mapstructure:"output"`
	// FilePath is the log file location when Output is file or both.
	FilePath string `mapstructure:"file_path"`
	// MaxSize is the maximum file size in MB before rotation.
	MaxSize int `mapstructure:"max_size"`
	// MaxBackups is the number of rotated files to keep.
	MaxBackups int `mapstructure:"max_backups"`
	// MaxAge is the retention in days.
	MaxAge int `mapstructure:"max_age"`
	// Compress enables gzip of rotated files.
	Compress bool `mapstructure:"compress"`
	// WithCaller adds source position to every record.
	WithCaller bool `mapstructure:"with_caller"`
}

// Init builds the global logger from cfg and installs it as slog default.
func Init(cfg Config) error {
	var handler slog.Handler
	var output io.Writer

	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	fileWriter := &lumberjack.Logger{
		Filename:   cfg.FilePath,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	}

	switch cfg.Output {
	case "file":
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0o755); err != nil {
			return err
		}
		output = fileWriter
	case "both":
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0o755); err != nil {
			return err
		}
		output = io.MultiWriter(os.Stdout, fileWriter)
	default:
		output = os.Stdout
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: cfg.WithCaller,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				a.Value = slog.StringValue(a.Value.Time().Format(time.RFC3339))
			}
			return a
		},
	}

	if cfg.Format == "text" {
		handler = slog.NewTextHandler(output, opts)
	} else {
		handler = slog.NewJSONHandler(output, opts)
	}

	globalLogger = slog.New(handler)
	slog.SetDefault(globalLogger)

	return nil
}

// Get returns the global logger, falling back to slog's default before Init.
func Get() *slog.Logger {
	if globalLogger == nil {
		return slog.Default()
	}
	return globalLogger
}

// WithContext returns a logger carrying trace_id/span_id extracted from ctx.
func WithContext(ctx context.Context) *slog.Logger {
	log := Get()

	traceID := extractString(ctx, TraceIDContextKey)
	spanID := extractString(ctx, SpanIDContextKey)

	attrs := []any{}
	if traceID != "" {
		attrs = append(attrs, slog.String("trace_id", traceID))
	}
	if spanID != "" {
		attrs = append(attrs, slog.String("span_id", spanID))
	}

	if len(attrs) > 0 {
		return log.With(attrs...)
	}
	return log
}

// Debug logs at debug level with trace fields from ctx.
func Debug(ctx context.Context, msg string, args ...any) {
	WithContext(ctx).Debug(msg, args...)
}

// Info logs at info level with trace fields from ctx.
func Info(ctx context.Context, msg string, args ...any) {
	WithContext(ctx).Info(msg, args...)
}

// Warn logs at warn level with trace fields from ctx.
func Warn(ctx context.Context, msg string, args ...any) {
	WithContext(ctx).Warn(msg, args...)
}

// Error logs at error level with trace fields from ctx.
func Error(ctx context.Context, msg string, args ...any) {
	WithContext(ctx).Error(msg, args...)
}

func extractString(ctx context.Context, key ctxKey) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}
