package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ivoronin/linkdog/internal/journal"
	"github.com/ivoronin/linkdog/internal/logger"
)

// newRecoverCmd creates the recover subcommand.
func newRecoverCmd(cfgFile *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recover --journal FILE",
		Short: "Repair replacements interrupted by a crash",
		Long: `Reads the recovery journal and settles every replacement that did not finish:
a file left only under its temporary name is renamed back, and a temporary copy
that is provably redundant is deleted. Anything else is reported and kept.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRecover(cmd, *cfgFile)
		},
	}

	f := cmd.Flags()
	f.String("journal", "", "Path to recovery journal")
	f.BoolP("dry-run", "n", false, "Report what would be done without changing anything")
	f.CountP("verbose", "v", "Increase verbosity")
	f.String("log-file", "", "Also write logs to this file (rotated)")

	return cmd
}

func runRecover(cmd *cobra.Command, cfgFile string) error {
	cfg, policy, err := loadSettings(cfgFile, cmd.Flags())
	if err != nil {
		return &exitError{code: exitFailure, err: err}
	}
	if cfg.Journal == "" {
		return &exitError{code: exitFailure, err: errors.New("--journal is required")}
	}

	closeLog := logger.Init(logger.Options{Verbosity: policy.Verbosity, LogFile: cfg.LogFile})
	defer closeLog()

	j, err := journal.Open(cfg.Journal)
	if err != nil {
		return &exitError{code: exitFailure, err: fmt.Errorf("open journal: %w", err)}
	}
	defer func() { _ = j.Close() }()

	unresolved, err := recoverJournal(j, policy.DryRun)
	if err != nil {
		return &exitError{code: exitFailure, err: err}
	}
	if unresolved > 0 {
		return &exitError{code: exitManualRecovery, err: fmt.Errorf("%d entries need manual review", unresolved)}
	}
	return nil
}

// recoverJournal settles pending entries. Each outcome is logged by the
// journal; the count of entries left for manual review is returned.
func recoverJournal(j *journal.Journal, dryRun bool) (int, error) {
	results, err := j.Recover(dryRun)
	if err != nil {
		return 0, fmt.Errorf("recover journal: %w", err)
	}

	unresolved := 0
	for _, r := range results {
		if r.Err != nil {
			unresolved++
		}
	}
	return unresolved, nil
}
