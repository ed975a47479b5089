package main

import (
	"errors"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	var cfgFile string

	root := &cobra.Command{
		Use:           "linkdog",
		Short:         "Replace identical files with hard links",
		Version:       version + " (" + commit + ")",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "YAML settings file (flags take precedence)")

	root.AddCommand(newLinkCmd(&cfgFile))
	root.AddCommand(newRecoverCmd(&cfgFile))
	root.SetArgs(args)

	if err := root.Execute(); err != nil {
		var ee *exitError
		if errors.As(err, &ee) {
			if ee.err != nil {
				root.PrintErrln("Error:", ee.err)
			}
			return ee.code
		}
		root.PrintErrln("Error:", err)
		return exitFailure
	}
	return exitOK
}
