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
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/walteh/runmerge/cmd/runmerge/opts"
	"github.com/walteh/runmerge/pkg/deps"
	"github.com/walteh/runmerge/pkg/log"
	"github.com/walteh/runmerge/pkg/project"
)

func NewDepsCmd(o *opts.RootOpts) *cobra.Command {
	var (
		projectDir string
		resolve    bool
		timeout    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "deps [MODEL:]OP",
		Short: "Show the order an operation's dependencies resolve in",
		Long: `Deps builds the dependency graph of an operation from the project file and
prints the steps in the order they run. With --resolve every file source is
checked on disk and every URL source is checked with a HEAD request.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := zerolog.Ctx(cmd.Context()).With().Str("command", "deps").Logger().WithContext(cmd.Context())
			console := log.New(o.Stdout, *zerolog.Ctx(ctx))

			f, err := project.Load(ctx, filepath.Join(projectDir, o.Config.ProjectFile))
			if err != nil {
				return err
			}
			reg, err := project.LoadRegistry(ctx, o.Config.PackageDirs, o.Config.ProjectFile)
			if err != nil {
				return err
			}

			model, op := splitOpSpec(args[0])
			node, err := deps.NewOpNode(f.Project, reg, model, op)
			if err != nil {
				return err
			}
			g, err := deps.Build(ctx, node)
			if err != nil {
				return err
			}

			order, err := g.PreviewOrder()
			if err != nil {
				return err
			}
			console.Header(node.Name())
			for i, n := range order {
				fmt.Fprintf(o.Stdout, "  %2d. %s\n", i+1, n.Description())
			}

			if !resolve {
				return nil
			}

			fmt.Fprintln(o.Stdout)
			r := deps.NewResolver(&http.Client{Timeout: timeout})
			if err := g.Walk(ctx, r); err != nil {
				console.Error(err.Error())
				return &ExitError{Code: 1}
			}
			console.Successf("Resolved %d %s for %s", len(r.Resolved), pluralSources(len(r.Resolved)), node.Name())
			return nil
		},
	}

	cmd.Flags().StringVar(&projectDir, "project", ".", "project `DIR` holding the project file")
	cmd.Flags().BoolVar(&resolve, "resolve", false, "check that every source can be resolved")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "timeout for each URL check")
	return cmd
}

// splitOpSpec splits "model:op"; a bare name is an operation of the anonymous model
func splitOpSpec(spec string) (string, string) {
	if model, op, ok := strings.Cut(spec, ":"); ok {
		return model, op
	}
	return "", spec
}

func pluralSources(n int) string {
	if n == 1 {
		return "source"
	}
	return "sources"
}
