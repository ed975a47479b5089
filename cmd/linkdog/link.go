package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ivoronin/linkdog/internal/config"
	"github.com/ivoronin/linkdog/internal/deduper"
	"github.com/ivoronin/linkdog/internal/journal"
	"github.com/ivoronin/linkdog/internal/logger"
	"github.com/ivoronin/linkdog/internal/matcher"
	"github.com/ivoronin/linkdog/internal/progress"
	"github.com/ivoronin/linkdog/internal/scanner"
	"github.com/ivoronin/linkdog/internal/stats"
	"github.com/ivoronin/linkdog/internal/types"
	"github.com/ivoronin/linkdog/internal/verifier"
)

// newLinkCmd creates the link subcommand.
func newLinkCmd(cfgFile *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "link [flags] directory...",
		Short: "Replace identical files with hard links",
		Long: `Walks the given directories and replaces every regular file whose content
equals an earlier file on the same filesystem with a hard link to that file.

Files are matched only when size, modification time, permissions and owner
agree, unless relaxed with --timestamp-ignore or --content-only. Symbolic links
are never followed or replaced.

Each replacement renames the file aside, links it and then deletes the
renamed copy, so an error never leaves a path missing. With --journal set,
replacements interrupted by a crash are repaired on the next start or with
'linkdog recover'.

Use --dry-run to preview without making changes.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLink(cmd, *cfgFile, args)
		},
	}

	// Defaults live in the config package; flag defaults are for help output only.
	f := cmd.Flags()
	f.StringP("min-size", "m", "1", "Minimum file size (e.g., 100, 1K, 10M, 1GiB)")
	f.BoolP("content-only", "c", false, "Only file contents have to match (ignore mode, owner and mtime)")
	f.BoolP("timestamp-ignore", "t", false, "Do not require modification times to match")
	f.BoolP("filenames-equal", "f", false, "Only link files with the same name")
	f.BoolP("dry-run", "n", false, "Preview changes without executing")
	f.StringArrayP("exclude", "x", nil, "Regular expression matched against full paths to skip (repeatable)")
	f.CountP("verbose", "v", "Increase verbosity (-v prints each link, -vv traces every file)")
	f.Bool("no-progress", false, "Disable progress output")
	f.BoolP("print-previous", "p", false, "List files that were already hardlinked")
	f.BoolP("no-stats", "q", false, "Do not print statistics at the end")
	f.String("journal", "", "Path to recovery journal (enables crash recovery)")
	f.String("log-file", "", "Also write logs to this file (rotated)")

	return cmd
}

// runLink executes one run: recover → walk → match → replace → report.
func runLink(cmd *cobra.Command, cfgFile string, args []string) error {
	cfg, policy, err := loadSettings(cfgFile, cmd.Flags())
	if err != nil {
		return &exitError{code: exitFailure, err: err}
	}

	closeLog := logger.Init(logger.Options{Verbosity: policy.Verbosity, LogFile: cfg.LogFile})
	defer closeLog()
	log := logger.GetLogger("linkdog")

	roots, err := config.ResolveDirectories(args)
	if err != nil {
		return &exitError{code: exitFailure, err: err}
	}

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
		log.Warnf("%d journal entries need manual review, run 'linkdog recover' for details", unresolved)
	}

	bar := progress.New(policy.ShowProgress, os.Stderr)
	sink := newErrorSink(log, bar.Interrupt)
	st := stats.New()

	onLink := func(r *deduper.LinkResult) {
		if policy.Verbosity > 0 {
			bar.Interrupt(func() { fmt.Fprintln(cmd.OutOrStdout(), r) })
		}
	}

	m := matcher.New(matcher.Options{
		Policy:   policy,
		Comparer: verifier.New(verifier.DefaultChunkSize, st),
		Replacer: deduper.New(policy.DryRun, j),
		Observer: st,
		OnLink:   onLink,
		Errors:   sink.ch,
	})

	scanner.New(scanner.Options{
		Roots:    roots,
		Policy:   policy,
		Handle:   func(f *types.FileInfo) { m.Handle(f) },
		Observer: st,
		Bar:      bar,
		Errors:   sink.ch,
	}).Run()

	if n := sink.Close(); n > 0 {
		log.Debugf("%d errors during run", n)
	}
	log.Debugf("index held %d files in %d buckets", m.Index().Records(), m.Index().Buckets())

	if cfg.PrintStats {
		if err := st.Report(cmd.OutOrStdout(), stats.ReportOptions{
			PrintPrevious: cfg.PrintPrevious,
			DryRun:        policy.DryRun,
		}); err != nil {
			return &exitError{code: exitFailure, err: err}
		}
	}

	if st.RollbackFailures > 0 {
		return &exitError{code: exitManualRecovery}
	}
	return nil
}
