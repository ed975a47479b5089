package main

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/ivoronin/linkdog/internal/config"
	"github.com/ivoronin/linkdog/internal/deduper"
	"github.com/ivoronin/linkdog/internal/matcher"
)

// Process exit codes.
const (
	exitOK             = 0
	exitFailure        = 1 // Invalid settings or setup failure
	exitManualRecovery = 2 // At least one file needs manual recovery
)

// exitError carries a specific exit code out of a cobra RunE.
// A nil err exits silently with code.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

// loadSettings reads the settings file and the explicitly set flags and
// validates them into a Policy.
func loadSettings(cfgFile string, fs *pflag.FlagSet) (*config.Config, config.Policy, error) {
	cfg, err := config.Load(cfgFile, fs)
	if err != nil {
		return nil, config.Policy{}, err
	}
	p, err := cfg.Policy()
	if err != nil {
		return nil, config.Policy{}, err
	}
	return cfg, p, nil
}

// errorSink logs errors received from the pipeline until closed.
type errorSink struct {
	ch     chan error
	wg     sync.WaitGroup
	log    *logrus.Entry
	around func(func()) // Wraps each message, e.g. to keep the progress line out of the way
	count  int
}

func newErrorSink(log *logrus.Entry, around func(func())) *errorSink {
	s := &errorSink{
		ch:     make(chan error, 100),
		log:    log,
		around: around,
	}
	s.wg.Add(1)
	go s.drain()
	return s
}

func (s *errorSink) drain() {
	defer s.wg.Done()
	for err := range s.ch {
		s.count++
		if s.around == nil {
			logError(s.log, err)
			continue
		}
		s.around(func() { logError(s.log, err) })
	}
}

// Close stops accepting errors and waits until every queued one is logged.
// It returns the number of errors seen.
func (s *errorSink) Close() int {
	close(s.ch)
	s.wg.Wait()
	return s.count
}

// logError picks the log level for a pipeline error.
func logError(log *logrus.Entry, err error) {
	var re *matcher.ReplaceError
	switch {
	case errors.As(err, &re) && re.Result.State == deduper.StateRollbackFailed:
		log.Error(err)
	case errors.Is(err, deduper.ErrChanged), errors.Is(err, deduper.ErrInUse):
		log.Warn(err)
	default:
		log.Error(err)
	}
}
