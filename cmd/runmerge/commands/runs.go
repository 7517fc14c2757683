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
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/runmerge/cmd/runmerge/opts"
)

func NewRunsCmd(o *opts.RootOpts) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store := o.Store()
			runs, err := store.List(cmd.Context())
			if err != nil {
				return errors.Errorf("listing runs: %w", err)
			}
			if len(runs) == 0 {
				fmt.Fprintf(o.Stdout, "No runs in %s\n", store.Root)
				return nil
			}
			if limit > 0 && len(runs) > limit {
				runs = runs[:limit]
			}

			data := pterm.TableData{{"#", "Run", "Operation", "Started", "Status", "Label"}}
			for i, r := range runs {
				started := "-"
				if !r.Started.IsZero() {
					started = r.Started.Local().Format(time.DateTime)
				}
				data = append(data, []string{fmt.Sprint(i + 1), r.ShortID(), r.OpRef.String(), started, r.Status(), r.Label})
			}
			out, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
			if err != nil {
				return errors.Errorf("rendering runs: %w", err)
			}
			fmt.Fprintln(o.Stdout, out)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "show at most `N` runs")
	return cmd
}
