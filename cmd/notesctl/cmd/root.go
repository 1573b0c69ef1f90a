// Package cmd holds the notesctl command tree.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pterm/pterm"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	storeKind string
	debug     bool
}

// NewRootCmd builds the notesctl command tree
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "notesctl",
		Short: "Notes CLI - manage the local notes session",
		Long: `notesctl signs in to the notes backend and keeps the resulting session
in a local credential store (~/.notes by default, or $NOTES_HOME).`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if opts.debug {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&opts.storeKind, "store", storeFile, "Credential store back end (file or sqlite)")
	rootCmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(newLoginCmd(opts))
	rootCmd.AddCommand(newLogoutCmd(opts))
	rootCmd.AddCommand(newStatusCmd(opts))
	rootCmd.AddCommand(newTokenCmd(opts))
	return rootCmd
}

// Execute runs the root command
func Execute() {
	zerolog.SetGlobalLevel(zerolog.WarnLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	if err := NewRootCmd().ExecuteContext(context.Background()); err != nil {
		pterm.Error.WithWriter(os.Stderr).Println(err)
		os.Exit(1)
	}
}

// printer writes pterm output to the command's configured writer
type printer struct {
	w io.Writer
}

func newPrinter(cmd *cobra.Command) printer {
	return printer{w: cmd.OutOrStdout()}
}

func (p printer) success(format string, a ...any) {
	pterm.Success.WithWriter(p.w).Println(fmt.Sprintf(format, a...))
}

func (p printer) info(format string, a ...any) {
	pterm.Info.WithWriter(p.w).Println(fmt.Sprintf(format, a...))
}

func (p printer) warning(format string, a ...any) {
	pterm.Warning.WithWriter(p.w).Println(fmt.Sprintf(format, a...))
}
