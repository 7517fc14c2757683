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

package merge

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/pterm/pterm"
	"gitlab.com/tozd/go/errors"
)

// 🔍 PreviewMode selects how skipped files are shown
type PreviewMode string

const (
	PreviewSummary PreviewMode = "summary"
	PreviewDetail  PreviewMode = "detail"
)

// 🙋 Confirmer asks the user to approve a merge
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer
type ConfirmFunc func(ctx context.Context, prompt string) (bool, error)

func (f ConfirmFunc) Confirm(ctx context.Context, prompt string) (bool, error) {
	return f(ctx, prompt)
}

// ErrInterrupted is returned when the user cancels a prompt with Ctrl-C
var ErrInterrupted = errors.Base("confirmation interrupted")

// 🙋 PtermConfirmer prompts on the terminal. The default answer is no.
type PtermConfirmer struct {
	// show displays the prompt, pterm's Show when nil
	show func(p *pterm.InteractiveConfirmPrinter, prompt string) (bool, error)
}

func (c PtermConfirmer) Confirm(ctx context.Context, prompt string) (bool, error) {
	interrupted := false
	printer := pterm.DefaultInteractiveConfirm.
		WithDefaultValue(false).
		WithOnInterruptFunc(func() { interrupted = true })

	show := c.show
	if show == nil {
		show = func(p *pterm.InteractiveConfirmPrinter, prompt string) (bool, error) {
			return p.Show(prompt)
		}
	}

	ok, err := show(printer, prompt)
	if interrupted {
		return false, errors.WithStack(ErrInterrupted)
	}
	if err != nil {
		return false, errors.Errorf("reading confirmation: %w", err)
	}
	return ok, nil
}

// 📋 RenderRunSummary writes the run the merge copies from
func RenderRunSummary(w io.Writer, m *Merge) error {
	s := NewRunSummary(m.Run)
	data := pterm.TableData{
		{"Run", s.ID},
		{"Operation", s.Operation},
		{"Started", orDash(s.Started)},
		{"Status", s.Status},
		{"Label", orDash(s.Label)},
		{"Target", m.TargetDir},
	}
	return renderTable(w, data, false)
}

// 🔍 RenderPreview writes the run summary, the files to copy and the skipped
// files, summarized per reason or listed in detail
func RenderPreview(w io.Writer, m *Merge, mode PreviewMode) error {
	if err := RenderRunSummary(w, m); err != nil {
		return err
	}

	if len(m.ToCopy) == 0 {
		fmt.Fprintln(w, "Nothing to copy.")
	} else {
		fmt.Fprintf(w, "\nFiles to copy (%d):\n", len(m.ToCopy))
		data := pterm.TableData{{"Target path", "Type", "Run path"}}
		for _, f := range m.ToCopy {
			data = append(data, []string{f.TargetPath, f.Type.String(), f.RunPath})
		}
		if err := renderTable(w, data, true); err != nil {
			return err
		}
	}

	if len(m.ToSkip) == 0 {
		return nil
	}

	if mode == PreviewDetail {
		fmt.Fprintf(w, "\nFiles skipped (%d):\n", len(m.ToSkip))
		data := pterm.TableData{{"Path", "Type", "Reason"}}
		for _, s := range m.ToSkip {
			data = append(data, []string{s.Path(), s.Type.String(), s.ReasonText()})
		}
		return renderTable(w, data, true)
	}

	fmt.Fprintf(w, "\n%s\n", SkipSummary(m.ToSkip))
	return nil
}

// SkipSummary counts skipped files per reason, e.g.
// "Skipping 3 files: 2 non-project dependency, 1 unknown file type"
func SkipSummary(skips []SkipFile) string {
	counts := map[SkipReason]int{}
	for _, s := range skips {
		counts[s.Reason]++
	}
	reasons := make([]SkipReason, 0, len(counts))
	for r := range counts {
		reasons = append(reasons, r)
	}
	sort.Slice(reasons, func(i, j int) bool { return reasons[i] < reasons[j] })

	parts := make([]string, 0, len(reasons))
	for _, r := range reasons {
		parts = append(parts, fmt.Sprintf("%d %s", counts[r], r))
	}
	return fmt.Sprintf("Skipping %d %s: %s", len(skips), plural(len(skips), "file"), strings.Join(parts, ", "))
}

func renderTable(w io.Writer, data pterm.TableData, header bool) error {
	table := pterm.DefaultTable.WithData(data)
	if header {
		table = table.WithHasHeader()
	}
	out, err := table.Srender()
	if err != nil {
		return errors.Errorf("rendering table: %w", err)
	}
	_, err = fmt.Fprintln(w, out)
	return err
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
