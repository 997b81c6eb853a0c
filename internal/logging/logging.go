// Package logging builds the logrus logger shared by both binaries.
//
// Logs always go to stderr, because the MCP server owns stdout for protocol
// traffic. A rotating log file can be added through [Options.File] or the
// PARTICLE_DETECT_LOG_FILE environment variable.
package logging

import (
	"fmt"
	"io"
	"os"
	"path"
	"runtime"
	"strings"

	formatter "github.com/antonfisher/nested-logrus-formatter"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Environment variables read by New.
const (
	EnvLevel = "PARTICLE_DETECT_LOG_LEVEL"
	EnvFile  = "PARTICLE_DETECT_LOG_FILE"
)

// Options configures New.
type Options struct {
	// Verbosity is the count of -v flags: 0 info, 1 debug, 2 or more trace.
	Verbosity int

	// Level overrides Verbosity when set. Any logrus level name is accepted.
	// Falls back to $PARTICLE_DETECT_LOG_LEVEL.
	Level string

	// File adds a lumberjack-rotated log file. Falls back to
	// $PARTICLE_DETECT_LOG_FILE.
	File string

	// Output replaces stderr, mostly for tests.
	Output io.Writer

	// Colors enables ANSI colours in the console formatter.
	Colors bool
}

// New returns a configured logger. It fails only on an unknown level name.
func New(opts Options) (*logrus.Logger, error) {
	level, err := resolveLevel(opts)
	if err != nil {
		return nil, err
	}

	logger := logrus.New()
	logger.SetLevel(level)
	logger.SetFormatter(&formatter.Formatter{
		NoColors:        !opts.Colors,
		TimestampFormat: "2006-01-02 15:04:05.000",
		CallerFirst:     true,
		CustomCallerFormatter: func(f *runtime.Frame) string {
			s := strings.Split(f.Function, ".")
			return fmt.Sprintf(" [%s:%d][%s()]", path.Base(f.File), f.Line, s[len(s)-1])
		},
	})

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	writers := []io.Writer{out}

	file := opts.File
	if file == "" {
		file = os.Getenv(EnvFile)
	}
	if file != "" {
		writers = append(writers, &lumberjack.Logger{
			Filename:   file,
			LocalTime:  true,
			Compress:   true,
			MaxSize:    50,
			MaxAge:     14,
			MaxBackups: 3,
		})
	}

	logger.SetOutput(io.MultiWriter(writers...))
	logger.SetReportCaller(level >= logrus.DebugLevel)
	return logger, nil
}

func resolveLevel(opts Options) (logrus.Level, error) {
	name := opts.Level
	if name == "" {
		name = os.Getenv(EnvLevel)
	}
	if name != "" {
		level, err := logrus.ParseLevel(name)
		if err != nil {
			return 0, fmt.Errorf("log level: %w", err)
		}
		return level, nil
	}

	switch {
	case opts.Verbosity >= 2:
		return logrus.TraceLevel, nil
	case opts.Verbosity == 1:
		return logrus.DebugLevel, nil
	default:
		return logrus.InfoLevel, nil
	}
}

// Discard returns a logger that drops everything.
func Discard() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}
