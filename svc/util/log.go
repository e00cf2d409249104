package util

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var globalLog = zerolog.New(os.Stderr).With().Timestamp().Logger()

// InitLog installs the process logger. dev switches to the console writer.
func InitLog(level string, dev bool) {
	var out io.Writer = os.Stdout
	if dev {
		out = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
	}
	InitLogTo(out, level)
}

// InitLogTo is InitLog with an explicit sink; the CLI logs to stderr so
// command output stays machine readable.
func InitLogTo(out io.Writer, level string) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	globalLog = zerolog.New(out).
		With().
		Timestamp().
		Str("service", "raisu").
		Logger().
		Hook(callerHook{})
	log.Logger = globalLog
}

func Debug() *zerolog.Event { return globalLog.Debug() }
func Info() *zerolog.Event  { return globalLog.Info() }
func Warn() *zerolog.Event  { return globalLog.Warn() }
func Error() *zerolog.Event { return globalLog.Error() }
func Fatal() *zerolog.Event { return globalLog.Fatal() }

func GetLogger() zerolog.Logger {
	return globalLog
}

// callerHook attaches the call site to warnings and worse only; info lines
// are hot and the caller lookup is not free.
type callerHook struct{}

func (callerHook) Run(e *zerolog.Event, level zerolog.Level, _ string) {
	if level >= zerolog.WarnLevel {
		e.Caller(3)
	}
}
