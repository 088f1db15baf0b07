package logger

import (
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel represents the severity level of a log message
type LogLevel int

const (
	// DEBUG level for detailed debugging information
	DEBUG LogLevel = iota
	// INFO level for general informational messages
	INFO
	// WARN level for warning messages
	WARN
	// ERROR level for error messages
	ERROR
)

// String returns the string representation of the log level
func (l LogLevel) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLogLevel converts a string to LogLevel
func ParseLogLevel(level string) LogLevel {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return DEBUG
	case "INFO":
		return INFO
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	default:
		return INFO
	}
}

func (l LogLevel) zapLevel() zapcore.Level {
	switch l {
	case DEBUG:
		return zapcore.DebugLevel
	case WARN:
		return zapcore.WarnLevel
	case ERROR:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Logger is a leveled logger backed by zap
type Logger struct {
	level zap.AtomicLevel
	sugar *zap.SugaredLogger
}

var (
	defaultLogger atomic.Pointer[Logger]
	once          sync.Once
)

// New creates a logger writing to stderr. Format is "json" or "text".
func New(level LogLevel, format string) *Logger {
	return newLogger(level, format, zapcore.Lock(os.Stderr))
}

func newLogger(level LogLevel, format string, out zapcore.WriteSyncer) *Logger {
	atom := zap.NewAtomicLevelAt(level.zapLevel())

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "time"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var enc zapcore.Encoder
	if format == "text" {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	} else {
		enc = zapcore.NewJSONEncoder(encCfg)
	}

	core := zapcore.NewCore(enc, out, atom)
	return &Logger{
		level: atom,
		sugar: zap.New(core).Sugar(),
	}
}

// Configure replaces the default logger, typically once the configuration is loaded
func Configure(level LogLevel, format string) {
	once.Do(func() {})
	if old := defaultLogger.Swap(New(level, format)); old != nil {
		_ = old.sugar.Sync()
	}
}

// get returns the default logger, an INFO json logger until Configure runs
func get() *Logger {
	if l := defaultLogger.Load(); l != nil {
		return l
	}
	once.Do(func() {
		defaultLogger.CompareAndSwap(nil, New(INFO, "json"))
	})
	return defaultLogger.Load()
}

// SetLevel sets the log level for the default logger
func SetLevel(level LogLevel) {
	get().level.SetLevel(level.zapLevel())
}

// GetLevel returns the current log level
func GetLevel() LogLevel {
	switch get().level.Level() {
	case zapcore.DebugLevel:
		return DEBUG
	case zapcore.WarnLevel:
		return WARN
	case zapcore.ErrorLevel, zapcore.DPanicLevel, zapcore.PanicLevel, zapcore.FatalLevel:
		return ERROR
	default:
		return INFO
	}
}

// Sync flushes buffered log entries
func Sync() {
	_ = get().sugar.Sync()
}

// Debug logs a debug message
func Debug(format string, args ...interface{}) {
	get().sugar.Debugf(format, args...)
}

// Info logs an info message
func Info(format string, args ...interface{}) {
	get().sugar.Infof(format, args...)
}

// Warn logs a warning message
func Warn(format string, args ...interface{}) {
	get().sugar.Warnf(format, args...)
}

// Error logs an error message
func Error(format string, args ...interface{}) {
	get().sugar.Errorf(format, args...)
}

// keysAndValues flattens fields in key order so output is stable
func keysAndValues(fields map[string]interface{}) []interface{} {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	kv := make([]interface{}, 0, 2*len(keys))
	for _, k := range keys {
		kv = append(kv, k, fields[k])
	}
	return kv
}

// DebugWithFields logs a debug message with structured fields
func DebugWithFields(fields map[string]interface{}, msg string) {
	get().sugar.Debugw(msg, keysAndValues(fields)...)
}

// InfoWithFields logs an info message with structured fields
func InfoWithFields(fields map[string]interface{}, msg string) {
	get().sugar.Infow(msg, keysAndValues(fields)...)
}

// WarnWithFields logs a warning message with structured fields
func WarnWithFields(fields map[string]interface{}, msg string) {
	get().sugar.Warnw(msg, keysAndValues(fields)...)
}

// ErrorWithFields logs an error message with structured fields
func ErrorWithFields(fields map[string]interface{}, msg string) {
	get().sugar.Errorw(msg, keysAndValues(fields)...)
}
