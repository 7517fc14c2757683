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

package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/runmerge/cmd/runmerge/opts"
	"github.com/walteh/runmerge/pkg/config"
	"github.com/walteh/runmerge/pkg/log"
	"github.com/walteh/runmerge/pkg/merge"
	"github.com/walteh/runmerge/pkg/run"
	"github.com/walteh/runmerge/pkg/vcs"
)

// ExitError ends the process with Code. Its output has already been written.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

type mergeFlags struct {
	targetDir       string
	sourceCode      bool
	all             bool
	skipSourceCode  bool
	skipDeps        bool
	preferNonSource bool
	exclude         []string
	preview         bool
	yes             bool
	replace         bool
	noReplace       bool
	json            bool
}

func NewMergeCmd(o *opts.RootOpts) *cobra.Command {
	f := &mergeFlags{}

	cmd := &cobra.Command{
		Use:   "merge RUN",
		Short: "Copy run files into a project directory",
		Long: `Merge copies source code, resolved dependencies and generated files from a
run into a target directory, by default the project directory the run's
operation was defined in.

Files the merge would replace must be committed to version control unless
--replace is given. Use --preview to see the plan without copying.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := zerolog.Ctx(cmd.Context()).With().Str("command", "merge").Logger().WithContext(cmd.Context())
			return runMerge(ctx, o, f, args[0])
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&f.targetDir, "target-dir", "t", "", "directory to copy files to (default: the run's project directory)")
	flags.BoolVar(&f.sourceCode, "sourcecode", false, "only copy source code")
	flags.BoolVarP(&f.all, "all", "a", false, "also copy files of unknown type")
	flags.BoolVar(&f.skipSourceCode, "skip-sourcecode", false, "do not copy source code")
	flags.BoolVar(&f.skipDeps, "skip-deps", false, "do not copy resolved dependencies")
	flags.BoolVar(&f.preferNonSource, "prefer-nonsource", false, "let dependencies and generated files win over source code with the same target path")
	flags.StringArrayVarP(&f.exclude, "exclude", "x", nil, "exclude run paths matching `PATTERN` (repeatable)")
	flags.BoolVarP(&f.preview, "preview", "p", false, "show what would be copied without copying")
	flags.BoolVarP(&f.yes, "yes", "y", false, "do not prompt before copying")
	flags.BoolVar(&f.replace, "replace", false, "replace files even when they are not committed")
	flags.BoolVar(&f.noReplace, "no-replace", false, "never replace existing files")
	flags.BoolVar(&f.json, "json", false, "write the result as JSON to stdout")

	cmd.MarkFlagsMutuallyExclusive("replace", "no-replace")
	cmd.MarkFlagsMutuallyExclusive("sourcecode", "skip-sourcecode")

	return cmd
}

func runMerge(ctx context.Context, o *opts.RootOpts, f *mergeFlags, runArg string) error {
	console := o.Stdout
	if f.json {
		console = o.Stderr
	}
	ctx = log.NewContext(ctx, log.New(console, *zerolog.Ctx(ctx)))

	res := mergeResult(ctx, o, f, runArg)

	if f.json {
		data, err := json.Marshal(res)
		if err != nil {
			return errors.Errorf("encoding result: %w", err)
		}
		fmt.Fprintln(o.Stdout, string(data))
	}

	zerolog.Ctx(ctx).Debug().Str("resp", string(res.Resp)).Int("exit_code", res.ExitCode()).Msg("merge finished")
	if code := res.ExitCode(); code != merge.ExitOK {
		return &ExitError{Code: code}
	}
	return nil
}

func mergeResult(ctx context.Context, o *opts.RootOpts, f *mergeFlags, runArg string) merge.Result {
	fail := func(err error) merge.Result {
		log.FromContext(ctx).Error(err.Error())
		return merge.Result{Resp: merge.RespOtherError, Err: err}
	}

	r, err := FindRun(ctx, o.Store(), runArg)
	if err != nil {
		return fail(err)
	}

	provider, err := NewVCS(o.Config)
	if err != nil {
		return fail(err)
	}

	req := merge.Request{
		Run: r,
		Options: merge.Options{
			TargetDir:       f.targetDir,
			CopyAll:         f.all,
			SkipSourceCode:  f.skipSourceCode,
			SkipDeps:        f.skipDeps || f.sourceCode,
			SkipGenerated:   f.sourceCode,
			PreferNonSource: f.preferNonSource,
			Exclude:         append(append([]string{}, f.exclude...), o.Config.Exclude...),
		},
		Replace:     replaceMode(f),
		Preview:     f.preview,
		PreviewMode: merge.PreviewMode(o.Config.Preview),
		Yes:         f.yes,
		VCS:         provider,
	}
	if !f.json {
		req.Confirmer = o.Confirmer
	}

	return merge.Run(ctx, req)
}

func replaceMode(f *mergeFlags) merge.ReplaceMode {
	switch {
	case f.replace:
		return merge.ReplaceAlways
	case f.noReplace:
		return merge.ReplaceNever
	default:
		return merge.ReplaceCheckVCS
	}
}

// 🔍 FindRun resolves a run directory path or a run id prefix
func FindRun(ctx context.Context, store *run.Store, arg string) (*run.Run, error) {
	if info, err := os.Stat(filepath.Join(arg, run.MetaDir)); err == nil && info.IsDir() {
		return run.Load(ctx, arg)
	}
	r, err := store.Find(ctx, arg)
	if err != nil {
		return nil, errors.Errorf("finding run: %w", err)
	}
	return r, nil
}

// 🗺️ NewVCS builds the VCS providers enabled in cfg. No schemes means no VCS.
func NewVCS(cfg *config.Config) (vcs.Provider, error) {
	if len(cfg.VCS) == 0 {
		return nil, nil
	}
	var providers []vcs.Provider
	for _, scheme := range cfg.VCS {
		switch scheme {
		case "git":
			providers = append(providers, vcs.NewGit(cfg.GitBinary))
		default:
			return nil, errors.Errorf("unsupported vcs scheme %q", scheme)
		}
	}
	return vcs.NewRegistry(providers...), nil
}
