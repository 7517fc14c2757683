// Copyright 2025 walteh LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/pterm/pterm"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/runmerge/cmd/runmerge/commands"
	"github.com/walteh/runmerge/cmd/runmerge/opts"
	"github.com/walteh/runmerge/pkg/config"
	"github.com/walteh/runmerge/pkg/merge"
)

// NewRootCmd builds the runmerge command tree writing to stdout and stderr
func NewRootCmd(stdout, stderr io.Writer) *cobra.Command {
	o := &opts.RootOpts{
		Stdout:    stdout,
		Stderr:    stderr,
		Confirmer: merge.PtermConfirmer{},
	}

	rootCmd := &cobra.Command{
		Use:   "runmerge",
		Short: "Merge experiment run files back into a project",
		Long: `runmerge copies the source code, resolved dependencies and generated files of
a completed run into a project directory without destroying uncommitted work.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			ctx := setupLogging(cmd.Context(), stderr, o.Debug)

			cfg, err := config.Load(ctx, o.ConfigFile)
			if err != nil {
				return errors.Errorf("loading config: %w", err)
			}
			o.Config = cfg
			zerolog.Ctx(ctx).Debug().Str("config", cfg.String()).Msg("loaded config")

			cmd.SetContext(ctx)
			return nil
		},
	}
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	addRootFlags(rootCmd, o)

	rootCmd.AddCommand(
		commands.NewMergeCmd(o),
		commands.NewRunsCmd(o),
		commands.NewDepsCmd(o),
		newVersionCmd(stdout),
	)

	return rootCmd
}

func addRootFlags(cmd *cobra.Command, o *opts.RootOpts) {
	cmd.PersistentFlags().StringVarP(&o.ConfigFile, "config", "c", config.DefaultFileName, "config file path")
	cmd.PersistentFlags().BoolVarP(&o.Debug, "debug", "d", false, "enable debug logging")
}

// setupLogging puts a zerolog logger in ctx. Without debug, structured logs
// are off and only console output is shown.
func setupLogging(ctx context.Context, w io.Writer, debug bool) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	level := zerolog.Disabled
	if debug {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: w, NoColor: color.NoColor}).Level(level).With().Timestamp().Logger()
	return logger.WithContext(ctx)
}

// disableStyling turns off colors for non-terminal output
func disableStyling() {
	color.NoColor = true
	pterm.DisableStyling()
}

func newVersionCmd(w io.Writer) *cobra.Command {
	var short bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		// version needs no config
		PersistentPreRun: func(cmd *cobra.Command, args []string) {},
		Run: func(cmd *cobra.Command, args []string) {
			if short {
				fmt.Fprintln(w, GetVersionInfo().Version)
				return
			}
			fmt.Fprint(w, FormatVersion())
		},
	}
	cmd.Flags().BoolVar(&short, "short", false, "print only the version")
	return cmd
}
