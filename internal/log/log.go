// Package log is the process-wide structured logger.
package log

import (
	"fmt"
	"io"
	"os"
	"path"
	"runtime"
	"strings"
	"sync"

	formatter "github.com/antonfisher/nested-logrus-formatter"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	logger *logrus.Logger
	runID  string
	once   sync.Once
)

// RunIDKey is the field every run-scoped entry carries
const RunIDKey = "run_id"

type Fields = logrus.Fields

// Options configures the logger. It only takes effect on the first call to
// Setup or Logger.
type Options struct {
	Level   string
	File    string
	NoColor bool
	// Output replaces stderr, mainly for tests
	Output io.Writer
}

// Setup builds the process logger from opts and returns it
func Setup(opts Options) *logrus.Logger {
	once.Do(func() {
		logger = build(opts)
	})
	return logger
}

// Logger returns the process logger, building it with defaults if Setup
// was never called
func Logger() *logrus.Logger {
	return Setup(Options{Level: "info"})
}

func build(opts Options) *logrus.Logger {
	l := logrus.New()

	level, err := logrus.ParseLevel(opts.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	l.SetFormatter(&formatter.Formatter{
		NoColors:        opts.NoColor,
		TimestampFormat: "02 Jan 06 - 15:04:05",
		HideKeys:        false,
		CallerFirst:     true,
		CustomCallerFormatter: func(f *runtime.Frame) string {
			s := strings.Split(f.Function, ".")
			funcName := s[len(s)-1]
			return fmt.Sprintf(" \x1b[%dm[%s:%d][%s()]", 34, path.Base(f.File), f.Line, funcName)
		},
	})

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	writers := []io.Writer{out}
	if opts.File != "" {
		writers = append(writers, &lumberjack.Logger{
			Filename:   opts.File,
			LocalTime:  true,
			Compress:   true,
			MaxSize:    50,
			MaxAge:     7,
			MaxBackups: 3,
		})
	}
	l.SetOutput(io.MultiWriter(writers...))
	l.SetReportCaller(true)

	runID = uuid.NewString()
	return l
}

// RunID identifies this process run in logs and recordings
func RunID() string {
	Logger()
	return runID
}

// WithRun returns an entry tagged with the run id
func WithRun() *logrus.Entry {
	return Logger().WithField(RunIDKey, RunID())
}

func Debug(fields Fields, msg string) {
	if fields == nil {
		fields = Fields{}
	}
	Logger().WithFields(fields).Debug(msg)
}

func Info(fields Fields, msg string) {
	if fields == nil {
		fields = Fields{}
	}
	Logger().WithFields(fields).Info(msg)
}

func Warn(fields Fields, msg string) {
	if fields == nil {
		fields = Fields{}
	}
	Logger().WithFields(fields).Warn(msg)
}

func Error(fields Fields, msg string) {
	if fields == nil {
		fields = Fields{}
	}
	Logger().WithFields(fields).Error(msg)
}

// DebugEnabled reports whether debug entries are emitted, so hot paths can
// skip building fields
func DebugEnabled() bool {
	return Logger().IsLevelEnabled(logrus.DebugLevel)
}
