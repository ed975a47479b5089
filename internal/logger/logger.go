// Package logger configures process-wide logging.
//
// Components obtain a prefixed entry with GetLogger and never touch the
// underlying logrus instance directly.
package logger

import (
	"io"
	"os"

	"github.com/natefinch/lumberjack"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

var base = newBase(os.Stderr)

func newBase(w io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(&prefixed.TextFormatter{
		DisableTimestamp: true,
		ForceFormatting:  true,
	})
	return l
}

// Options controls logger initialisation.
type Options struct {
	Verbosity int       // 0 info, 1 debug, 2+ trace
	LogFile   string    // Optional rotating log file, in addition to Output
	Output    io.Writer // Defaults to os.Stderr
}

// Init configures the shared logger. Returns a function that flushes and closes
// the log file, if any.
func Init(opts Options) func() {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	closeFn := func() {}
	if opts.LogFile != "" {
		lj := &lumberjack.Logger{
			Filename:   opts.LogFile,
			MaxSize:    5,
			MaxAge:     14,
			MaxBackups: 5,
		}
		out = io.MultiWriter(out, lj)
		closeFn = func() { _ = lj.Close() }
	}

	base.SetOutput(out)
	base.SetLevel(Level(opts.Verbosity))
	return closeFn
}

// Level maps a -v count to a log level.
func Level(verbosity int) logrus.Level {
	switch {
	case verbosity <= 0:
		return logrus.InfoLevel
	case verbosity == 1:
		return logrus.DebugLevel
	default:
		return logrus.TraceLevel
	}
}

// GetLogger returns an entry tagged with the given component prefix.
func GetLogger(prefix string) *logrus.Entry {
	return base.WithField("prefix", prefix)
}
