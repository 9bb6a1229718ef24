package clog

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

// loggerImpl 是 Logger 接口的具体实现
type loggerImpl struct {
	logger    *slog.Logger
	namespace string
}

// newLogger 创建 Logger 实例（内部使用）
func newLogger(config *Config, opts *options) (Logger, error) {
	level, err := ParseLevel(config.Level)
	if err != nil {
		return nil, err
	}

	var out *os.File
	switch config.Output {
	case "stdout", "":
		out = os.Stdout
	case "stderr":
		out = os.Stderr
	default:
		f, err := os.OpenFile(config.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, err
		}
		out = f
	}

	handlerOpts := &slog.HandlerOptions{
		Level:     level,
		AddSource: config.AddSource,
	}

	var handler slog.Handler
	if strings.ToLower(config.Format) == "json" {
		handler = slog.NewJSONHandler(out, handlerOpts)
	} else {
		handler = slog.NewTextHandler(out, handlerOpts)
	}

	namespace := config.Namespace
	if len(opts.namespaceParts) > 0 {
		parts := opts.namespaceParts
		if namespace != "" {
			parts = append([]string{namespace}, parts...)
		}
		namespace = strings.Join(parts, ".")
	}

	l := &loggerImpl{
		logger:    slog.New(handler),
		namespace: namespace,
	}
	return l, nil
}

func (l *loggerImpl) log(level slog.Level, msg string, fields ...Field) {
	if l.namespace != "" {
		fields = append([]Field{slog.String("namespace", l.namespace)}, fields...)
	}
	l.logger.LogAttrs(context.Background(), level, msg, fields...)
}

func (l *loggerImpl) Debug(msg string, fields ...Field) {
	l.log(slog.LevelDebug, msg, fields...)
}

func (l *loggerImpl) Info(msg string, fields ...Field) {
	l.log(slog.LevelInfo, msg, fields...)
}

func (l *loggerImpl) Warn(msg string, fields ...Field) {
	l.log(slog.LevelWarn, msg, fields...)
}

func (l *loggerImpl) Error(msg string, fields ...Field) {
	l.log(slog.LevelError, msg, fields...)
}

// With 返回附带固定字段的子 Logger
func (l *loggerImpl) With(fields ...Field) Logger {
	args := make([]any, 0, len(fields))
	for _, f := range fields {
		args = append(args, f)
	}
	return &loggerImpl{
		logger:    l.logger.With(args...),
		namespace: l.namespace,
	}
}

// WithNamespace 返回附加命名空间的子 Logger
func (l *loggerImpl) WithNamespace(parts ...string) Logger {
	ns := strings.Join(parts, ".")
	if l.namespace != "" && ns != "" {
		ns = l.namespace + "." + ns
	} else if ns == "" {
		ns = l.namespace
	}
	return &loggerImpl{
		logger:    l.logger,
		namespace: ns,
	}
}
