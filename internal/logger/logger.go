// Package logger provides leveled structured logging.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// FileConfig enables a rotating log file next to stderr output.
type FileConfig struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

var defaultLogger *zerolog.Logger

// Init initializes the default logger with the specified level and format.
// Unknown levels fall back to info; format "text" selects console output.
func Init(level string, format string, files ...FileConfig) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	var out io.Writer = os.Stderr
	if strings.ToLower(format) == "text" {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}

	writers := []io.Writer{out}
	for _, f := range files {
		if f.Path == "" {
			continue
		}
		writers = append(writers, &lumberjack.Logger{
			Filename:   f.Path,
			MaxSize:    f.MaxSizeMB,
			MaxBackups: f.MaxBackups,
			MaxAge:     f.MaxAgeDays,
		})
	}
	if len(writers) > 1 {
		out = zerolog.MultiLevelWriter(writers...)
	}

	l := zerolog.New(out).Level(lvl).With().Timestamp().Logger()
	defaultLogger = &l
}

func emit(event *zerolog.Event, format string, args []interface{}) {
	if event == nil {
		return
	}
	event.Msg(fmt.Sprintf(format, args...))
}

func Debug(format string, args ...interface{}) {
	if defaultLogger != nil {
		emit(defaultLogger.Debug(), format, args)
	}
}

func Info(format string, args ...interface{}) {
	if defaultLogger != nil {
		emit(defaultLogger.Info(), format, args)
	}
}

func Warn(format string, args ...interface{}) {
	if defaultLogger != nil {
		emit(defaultLogger.Warn(), format, args)
	}
}

func Error(format string, args ...interface{}) {
	if defaultLogger != nil {
		emit(defaultLogger.Error(), format, args)
	}
}

// Fatal logs and exits regardless of the configured level.
func Fatal(format string, args ...interface{}) {
	if defaultLogger != nil {
		defaultLogger.WithLevel(zerolog.FatalLevel).Msg(fmt.Sprintf(format, args...))
	} else {
		fmt.Fprintf(os.Stderr, "[FATAL] "+format+"\n", args...)
	}
	os.Exit(1)
}
