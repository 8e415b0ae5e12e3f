package logging

import (
	"fmt"
	"io"
	"strings"

	"github.com/crytic/routerguard/logging/colors"
	"github.com/rs/zerolog"
)

// GlobalLogger describes a Logger that is disabled by default and is instantiated when the CLI starts. Each
// module/package should create its own sub-logger.
var GlobalLogger = NewLogger(zerolog.Disabled)

// Logger describes a custom logging object that can log events to any arbitrary channel in structured, unstructured,
// or unstructured-and-colorized form.
type Logger struct {
	// level describes the log level
	level zerolog.Level

	// context holds the key-value pairs added by NewSubLogger, applied to every writer
	context []contextField

	// structuredLogger describes a logger that outputs JSON to structuredWriters
	structuredLogger zerolog.Logger
	// unstructuredLogger describes a logger that outputs plain text to unstructuredWriters
	unstructuredLogger zerolog.Logger
	// unstructuredColorLogger describes a logger that outputs colorized text to unstructuredColorWriters
	unstructuredColorLogger zerolog.Logger

	structuredWriters        []io.Writer
	unstructuredWriters      []io.Writer
	unstructuredColorWriters []io.Writer
}

// contextField is a single key-value pair of sub-logger context.
type contextField struct {
	key   string
	value string
}

// LogFormat describes what format to log in
type LogFormat string

const (
	// STRUCTURED describes that logging should be done in structured JSON format
	STRUCTURED LogFormat = "structured"
	// UNSTRUCTURED describes that logging should be done in an unstructured format
	UNSTRUCTURED LogFormat = "unstructured"
)

// StructuredLogInfo describes a key-value mapping that can be used to log structured data
type StructuredLogInfo map[string]any

// NewLogger will create a new Logger object with a specific log level. The Logger outputs nothing until writers are
// added with AddWriter.
func NewLogger(level zerolog.Level) *Logger {
	l := &Logger{
		level:                    level,
		structuredWriters:        make([]io.Writer, 0),
		unstructuredWriters:      make([]io.Writer, 0),
		unstructuredColorWriters: make([]io.Writer, 0),
	}
	l.rebuild()
	return l
}

// NewSubLogger will create a new Logger with unique context in the form of a key-value pair. The expected use of this
// function is for each package to have their own unique logger so that parsing of logs is "grep-able" based on some key
func (l *Logger) NewSubLogger(key string, value string) *Logger {
	sub := &Logger{
		level:                    l.level,
		context:                  append(append([]contextField{}, l.context...), contextField{key, value}),
		structuredWriters:        l.structuredWriters,
		unstructuredWriters:      l.unstructuredWriters,
		unstructuredColorWriters: l.unstructuredColorWriters,
	}
	sub.rebuild()
	return sub
}

// AddWriter will add a writer to the list of channels where log output will be sent. Adding the same writer twice
// for the same format is a no-op.
func (l *Logger) AddWriter(writer io.Writer, format LogFormat, colored bool) {
	writers := l.writersFor(format, colored)
	for _, w := range *writers {
		if w == writer {
			return
		}
	}
	*writers = append(*writers, writer)
	l.rebuild()
}

// RemoveWriter will remove a writer from the list of writers that the logger manages. If the writer does not exist,
// this function is a no-op
func (l *Logger) RemoveWriter(writer io.Writer, format LogFormat, colored bool) {
	writers := l.writersFor(format, colored)
	for i, w := range *writers {
		if w == writer {
			*writers = append((*writers)[:i:i], (*writers)[i+1:]...)
			l.rebuild()
			return
		}
	}
}

// writersFor returns the writer list matching a format and color combination.
func (l *Logger) writersFor(format LogFormat, colored bool) *[]io.Writer {
	if format == STRUCTURED {
		return &l.structuredWriters
	}
	if colored {
		return &l.unstructuredColorWriters
	}
	return &l.unstructuredWriters
}

// rebuild recreates the underlying zerolog loggers from the current writer lists, level and context.
func (l *Logger) rebuild() {
	l.structuredLogger = l.newZerolog(l.structuredWriters, func(w io.Writer) io.Writer { return w }, true)
	l.unstructuredLogger = l.newZerolog(l.unstructuredWriters, func(w io.Writer) io.Writer {
		return setupDefaultFormatting(zerolog.ConsoleWriter{Out: w, NoColor: true}, l.level, false)
	}, false)
	l.unstructuredColorLogger = l.newZerolog(l.unstructuredColorWriters, func(w io.Writer) io.Writer {
		return setupDefaultFormatting(zerolog.ConsoleWriter{Out: w}, l.level, true)
	}, false)
}

// newZerolog creates a zerolog logger writing to all provided writers, wrapped by wrap. With no writers, the logger
// is disabled.
func (l *Logger) newZerolog(writers []io.Writer, wrap func(io.Writer) io.Writer, timestamp bool) zerolog.Logger {
	if len(writers) == 0 {
		return zerolog.Nop()
	}
	wrapped := make([]io.Writer, len(writers))
	for i, w := range writers {
		wrapped[i] = wrap(w)
	}
	ctx := zerolog.New(zerolog.MultiLevelWriter(wrapped...)).Level(l.level).With()
	if timestamp {
		ctx = ctx.Timestamp()
	}
	for _, field := range l.context {
		ctx = ctx.Str(field.key, field.value)
	}
	return ctx.Logger()
}

// Level will get the log level of the Logger
func (l *Logger) Level() zerolog.Level {
	return l.level
}

// SetLevel will update the log level of the Logger
func (l *Logger) SetLevel(level zerolog.Level) {
	l.level = level
	l.rebuild()
}

// Trace is a wrapper function that will log a trace event
func (l *Logger) Trace(args ...any) {
	l.log(zerolog.TraceLevel, args...)
}

// Debug is a wrapper function that will log a debug event
func (l *Logger) Debug(args ...any) {
	l.log(zerolog.DebugLevel, args...)
}

// Info is a wrapper function that will log an info event
func (l *Logger) Info(args ...any) {
	l.log(zerolog.InfoLevel, args...)
}

// Warn is a wrapper function that will log a warning event
func (l *Logger) Warn(args ...any) {
	l.log(zerolog.WarnLevel, args...)
}

// Error is a wrapper function that will log an error event.
func (l *Logger) Error(args ...any) {
	l.log(zerolog.ErrorLevel, args...)
}

// Panic is a wrapper function that will log a panic event and then panic.
func (l *Logger) Panic(args ...any) {
	l.log(zerolog.PanicLevel, args...)
}

// log builds the messages for an event and sends it to every logger. The structured logger is sent last so that a
// panic event still reaches every channel.
func (l *Logger) log(level zerolog.Level, args ...any) {
	colorMsg, plainMsg, err, info := buildMsgs(args...)
	withStack := level == zerolog.PanicLevel || l.level <= zerolog.DebugLevel

	events := []struct {
		event *zerolog.Event
		msg   string
	}{
		{l.unstructuredColorLogger.WithLevel(level), colorMsg},
		{l.unstructuredLogger.WithLevel(level), plainMsg},
		{l.structuredLogger.WithLevel(level), plainMsg},
	}
	for _, e := range events {
		if e.event == nil {
			continue
		}
		e.event = e.event.Err(err)
		if withStack {
			e.event = e.event.Stack()
		}
		if info != nil {
			e.event = e.event.Any("info", info)
		}
		e.event.Msg(e.msg)
	}

	if level == zerolog.PanicLevel {
		panic(plainMsg)
	}
}

// buildMsgs describes a function that takes in a variadic list of arguments of any type and returns two strings and,
// optionally, an error and a StructuredLogInfo object. The first string will be a colorized-string that can be used for
// console logging while the second string will be a non-colorized one that can be used for file/structured logging.
func buildMsgs(args ...any) (string, string, error, StructuredLogInfo) {
	if len(args) == 0 {
		return "", "", nil, nil
	}

	colorCtx := colors.Reset
	colorOutput := make([]string, 0)
	plainOutput := make([]string, 0)
	var info StructuredLogInfo
	var err error

	for _, arg := range args {
		switch t := arg.(type) {
		case colors.ColorFunc:
			// A color function switches the current color context
			colorCtx = t
		case StructuredLogInfo:
			// Only one structured log info can be provided for each log message
			info = t
		case error:
			// Only one error can be provided for each log message
			err = t
		default:
			colorOutput = append(colorOutput, colorCtx(t))
			plainOutput = append(plainOutput, fmt.Sprintf("%v", t))
		}
	}

	return strings.Join(colorOutput, ""), strings.Join(plainOutput, ""), err, info
}

// setupDefaultFormatting will update the console logger's formatting to the routerguard standard
func setupDefaultFormatting(writer zerolog.ConsoleWriter, level zerolog.Level, colored bool) zerolog.ConsoleWriter {
	// Get rid of the timestamp for console output
	writer.FormatTimestamp = func(i any) string {
		return ""
	}

	// We will define a custom format for each level
	writer.FormatLevel = func(i any) string {
		levelString, _ := i.(string)
		parsedLevel, err := zerolog.ParseLevel(levelString)
		if err != nil {
			return levelString
		}

		if !colored {
			if parsedLevel == zerolog.InfoLevel {
				return colors.LEFT_ARROW
			}
			return levelString
		}

		switch parsedLevel {
		case zerolog.TraceLevel:
			return colors.CyanBold(zerolog.LevelTraceValue)
		case zerolog.DebugLevel:
			return colors.BlueBold(zerolog.LevelDebugValue)
		case zerolog.InfoLevel:
			return colors.GreenBold(colors.LEFT_ARROW)
		case zerolog.WarnLevel:
			return colors.YellowBold(zerolog.LevelWarnValue)
		case zerolog.ErrorLevel:
			return colors.RedBold(zerolog.LevelErrorValue)
		case zerolog.FatalLevel:
			return colors.RedBold(zerolog.LevelFatalValue)
		case zerolog.PanicLevel:
			return colors.RedBold(zerolog.LevelPanicValue)
		default:
			return levelString
		}
	}

	// Messages are colorized while they are built, so the console writer must leave them untouched
	writer.FormatMessage = func(i any) string {
		if i == nil {
			return ""
		}
		return fmt.Sprintf("%v", i)
	}

	// If we are above debug level, we want to get rid of the `module` component when logging to console
	if level > zerolog.DebugLevel {
		writer.FieldsExclude = []string{"module"}
	}

	return writer
}
