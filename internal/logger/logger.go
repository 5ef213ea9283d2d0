package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"codeberg.org/mutker/mccli/internal/errors"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

var log = zerolog.Nop()

type LogLevel int8

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
)

type LogEvent struct {
	*zerolog.Event
}

func (e *LogEvent) Msg(msg string) {
	e.Event.Msg(msg)
}

func (e *LogEvent) Send() {
	e.Event.Send()
}

// ParseLevel maps a configured level name onto a LogLevel.
func ParseLevel(name string) (LogLevel, error) {
	switch strings.ToLower(name) {
	case "debug":
		return DebugLevel, nil
	case "info":
		return InfoLevel, nil
	case "warning", "warn":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	default:
		return WarnLevel, errors.New().WithData(errors.ErrInvalidLogLevel, name)
	}
}

// Init initializes the package logger. Output goes to stderr so that the
// operator console on stdout stays readable.
func Init(level LogLevel) {
	InitWithWriter(os.Stderr, level)
}

// InitWithWriter initializes the package logger on an arbitrary writer.
func InitWithWriter(w io.Writer, level LogLevel) {
	output := zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: time.RFC3339,
		NoColor:    !isTerminal(w),
	}

	log = zerolog.New(output).With().Timestamp().Logger()
	SetLogLevel(level)
}

// SetLogLevel sets the global log level
func SetLogLevel(level LogLevel) {
	zerolog.SetGlobalLevel(zerolog.Level(level))
}

// Default returns a Logger backed by the package logger.
func Default() Logger {
	return packageLogger{}
}

// With returns a Logger that tags every event with component.
func With(component string) Logger {
	return componentLogger{component: component}
}

// Debug logs a debug message
func Debug() *LogEvent {
	return &LogEvent{log.Debug()}
}

// Info logs an info message
func Info() *LogEvent {
	return &LogEvent{log.Info()}
}

// Warn logs a warning message
func Warn() *LogEvent {
	return &LogEvent{log.Warn()}
}

// Error logs an error message
func Error() *LogEvent {
	return &LogEvent{log.Error()}
}

// ErrorWithCode logs an error message with a specific error code
func ErrorWithCode(err errors.Error) *LogEvent {
	return &LogEvent{log.Error().
		Str("error_code", string(err.Code())).
		Str("error_message", err.Error()).
		AnErr("error", err.Unwrap())}
}

// Fatal logs a fatal message and exits the program
func Fatal() *LogEvent {
	return &LogEvent{log.Fatal()}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && isatty.IsTerminal(f.Fd())
}

type packageLogger struct{}

func (packageLogger) Debug() *LogEvent                         { return Debug() }
func (packageLogger) Info() *LogEvent                          { return Info() }
func (packageLogger) Warn() *LogEvent                          { return Warn() }
func (packageLogger) Error() *LogEvent                         { return Error() }
func (packageLogger) ErrorWithCode(err errors.Error) *LogEvent { return ErrorWithCode(err) }

type componentLogger struct {
	component string
}

func (c componentLogger) tag(e *LogEvent) *LogEvent {
	e.Event = e.Event.Str("component", c.component)
	return e
}

func (c componentLogger) Debug() *LogEvent { return c.tag(Debug()) }
func (c componentLogger) Info() *LogEvent  { return c.tag(Info()) }
func (c componentLogger) Warn() *LogEvent  { return c.tag(Warn()) }
func (c componentLogger) Error() *LogEvent { return c.tag(Error()) }

func (c componentLogger) ErrorWithCode(err errors.Error) *LogEvent {
	return c.tag(ErrorWithCode(err))
}
