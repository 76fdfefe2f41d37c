// Package log provides leveled, structured logging for builds.
//
// Logger wraps a zap.Logger. Its Options (level, color, format) are plain
// data so a forked worker can rebuild an identically configured logger from
// the values its parent sent.
//
// Use Logger.Sugar() for printf-style output in plugs.
package log

import (
	"errors"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/justapithecus/plug/failure"
)

// Logger provides leveled logging with task context.
type Logger struct {
	zap    *zap.Logger
	opts   Options
	out    io.Writer
	styles *styles
}

// SugaredLogger provides printf-style logging for plugs and CLI surfaces.
type SugaredLogger struct {
	logger *Logger
	sugar  *zap.SugaredLogger
}

// New creates a logger writing to os.Stderr.
func New(opts Options) *Logger {
	return NewWithWriter(opts, os.Stderr)
}

// NewWithWriter creates a logger writing to w.
func NewWithWriter(opts Options, w io.Writer) *Logger {
	opts = opts.normalize()
	st := newStyles(w, opts.Color && opts.Format == FormatConsole)

	var encoder zapcore.Encoder
	switch opts.Format {
	case FormatJSON:
		encoder = zapcore.NewJSONEncoder(zapcore.EncoderConfig{
			TimeKey:     "timestamp",
			LevelKey:    "level",
			MessageKey:  "message",
			EncodeTime:  zapcore.RFC3339NanoTimeEncoder,
			EncodeLevel: jsonLevelEncoder,
		})
	default:
		encoder = zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
			TimeKey:          "time",
			LevelKey:         "level",
			MessageKey:       "message",
			EncodeTime:       zapcore.TimeEncoderOfLayout("15:04:05.000"),
			EncodeLevel:      st.encodeLevel,
			ConsoleSeparator: " ",
		})
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(w), zapcore.Level(opts.Level))
	return &Logger{
		zap:    zap.New(core),
		opts:   opts,
		out:    w,
		styles: st,
	}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return NewWithWriter(Options{Level: LevelError}, io.Discard)
}

// Options returns the options the logger was built with.
func (l *Logger) Options() Options { return l.opts }

// ForTask returns a logger annotated with task identity.
func (l *Logger) ForTask(task, runID string) *Logger {
	clone := *l
	clone.zap = l.zap.With(zap.String("task", task), zap.String("run_id", runID))
	return &clone
}

// Enabled reports whether messages at level are written.
func (l *Logger) Enabled(level Level) bool {
	return level >= l.opts.Level
}

// Trace logs a trace message.
func (l *Logger) Trace(message string, fields map[string]any) {
	l.log(LevelTrace, message, fields)
}

// Debug logs a debug message.
func (l *Logger) Debug(message string, fields map[string]any) {
	l.log(LevelDebug, message, fields)
}

// Info logs an info message.
func (l *Logger) Info(message string, fields map[string]any) {
	l.log(LevelInfo, message, fields)
}

// Notice logs a notice message.
func (l *Logger) Notice(message string, fields map[string]any) {
	l.log(LevelNotice, message, fields)
}

// Warn logs a warning message.
func (l *Logger) Warn(message string, fields map[string]any) {
	l.log(LevelWarn, message, fields)
}

// Error logs an error message.
func (l *Logger) Error(message string, fields map[string]any) {
	l.log(LevelError, message, fields)
}

func (l *Logger) log(level Level, message string, fields map[string]any) {
	ce := l.zap.Check(zapcore.Level(level), message)
	if ce == nil {
		return
	}
	if len(fields) == 0 {
		ce.Write()
		return
	}
	ce.Write(zap.Any("fields", fields))
}

// Fail logs err unless it is an already-reported BuildFailure, and returns a
// reported BuildFailure. Outer boundaries call this instead of logging
// errors themselves, so each error is printed once.
func (l *Logger) Fail(err error) error {
	if err == nil {
		return nil
	}
	if failure.IsReported(err) {
		return err
	}

	var bf *failure.BuildFailure
	if errors.As(err, &bf) {
		title := wrapperPrefix(err, bf) + bf.Message
		if bf.Message == "" {
			title = strings.TrimSuffix(title, ": ")
		}
		if title != "" {
			l.Error(title, nil)
		}
		for _, cause := range bf.Causes {
			l.Error(cause.Error(), nil)
		}
		if title == "" && len(bf.Causes) == 0 {
			l.Error(bf.Error(), nil)
		}
		return bf.MarkReported()
	}

	l.Error(err.Error(), nil)
	return failure.Reported(err.Error())
}

// wrapperPrefix returns the text errors wrapping bf add in front of it, such
// as `task "site": `.
func wrapperPrefix(err error, bf *failure.BuildFailure) string {
	outer, inner := err.Error(), bf.Error()
	if outer == inner {
		return ""
	}
	if prefix, ok := strings.CutSuffix(outer, inner); ok {
		return prefix
	}
	return outer + ": "
}

// Sync flushes buffered output.
func (l *Logger) Sync() error {
	return l.zap.Sync()
}

// Sugar returns a SugaredLogger for printf-style logging.
func (l *Logger) Sugar() *SugaredLogger {
	return &SugaredLogger{logger: l, sugar: l.zap.Sugar()}
}

// Tracef logs a trace message with printf-style formatting.
func (s *SugaredLogger) Tracef(template string, args ...any) {
	s.sugar.Logf(zapcore.Level(LevelTrace), template, args...)
}

// Debugf logs a debug message with printf-style formatting.
func (s *SugaredLogger) Debugf(template string, args ...any) {
	s.sugar.Logf(zapcore.Level(LevelDebug), template, args...)
}

// Infof logs an info message with printf-style formatting.
func (s *SugaredLogger) Infof(template string, args ...any) {
	s.sugar.Logf(zapcore.Level(LevelInfo), template, args...)
}

// Noticef logs a notice message with printf-style formatting.
func (s *SugaredLogger) Noticef(template string, args ...any) {
	s.sugar.Logf(zapcore.Level(LevelNotice), template, args...)
}

// Warnf logs a warning message with printf-style formatting.
func (s *SugaredLogger) Warnf(template string, args ...any) {
	s.sugar.Logf(zapcore.Level(LevelWarn), template, args...)
}

// Errorf logs an error message with printf-style formatting.
func (s *SugaredLogger) Errorf(template string, args ...any) {
	s.sugar.Logf(zapcore.Level(LevelError), template, args...)
}

// With returns a SugaredLogger with additional context fields.
func (s *SugaredLogger) With(args ...any) *SugaredLogger {
	return &SugaredLogger{logger: s.logger, sugar: s.sugar.With(args...)}
}
