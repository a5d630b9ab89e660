package logger

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rollbar/rollbar-go"
	"github.com/rs/zerolog"
)

var (
	mu          sync.RWMutex
	base        zerolog.Logger
	development bool
	reporting   bool
)

func init() {
	Init(os.Getenv("ENVIRONMENT"), "")
}

// Init configures the process logger. Development gets a human readable
// console writer and debug output; everything else logs JSON at info.
// A non-empty rollbarToken also forwards Error calls to Rollbar.
func Init(environment, rollbarToken string) {
	mu.Lock()
	defer mu.Unlock()

	development = environment == "" || environment == "development"

	var out io.Writer = os.Stdout
	level := zerolog.InfoLevel
	if development {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		level = zerolog.DebugLevel
	}
	base = zerolog.New(out).Level(level).With().Timestamp().CallerWithSkipFrameCount(3).Logger()

	reporting = rollbarToken != ""
	if reporting {
		rollbar.SetToken(rollbarToken)
		rollbar.SetEnvironment(environment)
		rollbar.SetServerRoot("coursehub")
	}
}

// SetOutput redirects log output, mainly for tests.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	base = base.Output(w)
}

func get() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

func Info(format string, v ...interface{}) {
	l := get()
	l.Info().Msgf(format, v...)
}

func Warn(format string, v ...interface{}) {
	l := get()
	l.Warn().Msgf(format, v...)
}

func Debug(format string, v ...interface{}) {
	l := get()
	l.Debug().Msgf(format, v...)
}

func Error(format string, v ...interface{}) {
	l := get()
	l.Error().Msgf(format, v...)

	mu.RLock()
	report := reporting
	mu.RUnlock()
	if report {
		rollbar.Error(fmt.Errorf(format, v...))
	}
}

// Close flushes pending error reports.
func Close() {
	mu.RLock()
	report := reporting
	mu.RUnlock()
	if report {
		rollbar.Close()
	}
}
