package pkg

import (
	"io"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Component identifies a subsystem for log filtering.
type Component string

// SPI engine component identifiers.
const (
	ComponentController Component = "controller"
	ComponentRegistry   Component = "registry"
	ComponentTransfer   Component = "transfer"
	ComponentPoller     Component = "poller"
	ComponentChipSelect Component = "chipselect"
	ComponentHAL        Component = "hal"
	ComponentSim        Component = "sim"
	ComponentApp        Component = "app"
)

// LogFormat specifies the output format for logging.
type LogFormat int

// Log format options.
const (
	LogFormatText LogFormat = iota // Console format (default)
	LogFormatJSON                  // JSON format
)

var (
	// DefaultLogger is the default logger used by the SPI engine.
	DefaultLogger *zap.SugaredLogger

	// logLevel controls the minimum log level of loggers built by this package.
	logLevel = zap.NewAtomicLevelAt(zapcore.WarnLevel)

	// logMutex protects logger configuration.
	logMutex sync.RWMutex
)

func init() {
	DefaultLogger = newSugared(os.Stderr, LogFormatText, logLevel)
}

// encoderConfig mirrors the zap production keys with ISO8601 timestamps and
// without stack traces.
func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      zapcore.OmitKey,
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  zapcore.OmitKey,
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
	}
}

func newSugared(w io.Writer, format LogFormat, level zapcore.LevelEnabler) *zap.SugaredLogger {
	var enc zapcore.Encoder
	switch format {
	case LogFormatJSON:
		enc = zapcore.NewJSONEncoder(encoderConfig())
	default:
		enc = zapcore.NewConsoleEncoder(encoderConfig())
	}
	core := zapcore.NewCore(enc, zapcore.AddSync(w), level)
	return zap.New(core).Sugar()
}

// SetLogLevel sets the minimum log level for all engine logging.
func SetLogLevel(level zapcore.Level) {
	logMutex.Lock()
	defer logMutex.Unlock()
	logLevel.SetLevel(level)
}

// GetLogLevel returns the current minimum log level.
func GetLogLevel() zapcore.Level {
	logMutex.RLock()
	defer logMutex.RUnlock()
	return logLevel.Level()
}

// SetLogger replaces the default logger with a custom logger.
func SetLogger(logger *zap.SugaredLogger) {
	logMutex.Lock()
	defer logMutex.Unlock()
	DefaultLogger = logger
}

// SetLogFormat configures the default logger to use the specified format.
// The logger writes to os.Stderr and uses the current log level.
func SetLogFormat(format LogFormat) {
	logMutex.Lock()
	defer logMutex.Unlock()
	DefaultLogger = newSugared(os.Stderr, format, logLevel)
}

// NewLogger creates a new console logger writing to the given writer.
// A nil level uses the package log level.
func NewLogger(w io.Writer, level zapcore.LevelEnabler) *zap.SugaredLogger {
	if level == nil {
		level = logLevel
	}
	return newSugared(w, LogFormatText, level)
}

// NewJSONLogger creates a new JSON logger writing to the given writer.
// A nil level uses the package log level.
func NewJSONLogger(w io.Writer, level zapcore.LevelEnabler) *zap.SugaredLogger {
	if level == nil {
		level = logLevel
	}
	return newSugared(w, LogFormatJSON, level)
}

func current() *zap.SugaredLogger {
	logMutex.RLock()
	defer logMutex.RUnlock()
	return DefaultLogger
}

// LogDebug logs a debug message with the given component.
func LogDebug(component Component, msg string, args ...any) {
	current().Debugw(msg, append([]any{"component", string(component)}, args...)...)
}

// LogInfo logs an info message with the given component.
func LogInfo(component Component, msg string, args ...any) {
	current().Infow(msg, append([]any{"component", string(component)}, args...)...)
}

// LogWarn logs a warning message with the given component.
func LogWarn(component Component, msg string, args ...any) {
	current().Warnw(msg, append([]any{"component", string(component)}, args...)...)
}

// LogError logs an error message with the given component.
func LogError(component Component, msg string, args ...any) {
	current().Errorw(msg, append([]any{"component", string(component)}, args...)...)
}
