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
	"encoding/json"
	"time"

	"github.com/walteh/runmerge/pkg/run"
)

// 🏷️ Resp tags the outcome of a merge request
type Resp string

const (
	RespOK               Resp = "ok"
	RespPreview          Resp = "preview"
	RespReplacementPaths Resp = "replacement-paths"
	RespUnstagedPaths    Resp = "unstaged-paths"
	RespNothingToCopy    Resp = "nothing-to-copy"
	RespOtherError       Resp = "other-error"
	RespAborted          Resp = "aborted"
)

// Exit codes used by the CLI
const (
	ExitOK      = 0
	ExitFailed  = 1
	ExitAborted = 2
)

// 📋 RunSummary describes the merged run in previews
type RunSummary struct {
	ID        string `json:"id"`
	Operation string `json:"operation"`
	Started   string `json:"started,omitempty"`
	Status    string `json:"status"`
	Label     string `json:"label,omitempty"`
}

// NewRunSummary summarizes r
func NewRunSummary(r *run.Run) RunSummary {
	s := RunSummary{
		ID:        r.ID,
		Operation: r.OpRef.String(),
		Status:    r.Status(),
		Label:     r.Label,
	}
	if !r.Started.IsZero() {
		s.Started = r.Started.Format(time.RFC3339)
	}
	return s
}

// 📦 Result is the outcome of a merge request. Resp selects the outcome and
// which of the other fields are meaningful.
type Result struct {
	Resp Resp

	// Merge is the plan, set for every outcome except other-error
	Merge *Merge
	// Copied lists target paths for ok
	Copied []string
	// Paths lists offending target paths for replacement-paths and
	// unstaged-paths
	Paths []string
	// Err is set for other-error and the two path rejections
	Err error
	// Output holds console output captured before an other-error
	Output string
}

// ExitCode maps the result to a process exit code
func (r Result) ExitCode() int {
	switch r.Resp {
	case RespOK, RespPreview, RespNothingToCopy:
		return ExitOK
	case RespAborted:
		return ExitAborted
	default:
		return ExitFailed
	}
}

// Detail returns the error message for failed results
func (r Result) Detail() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

type copyEntryJSON struct {
	FileType   string `json:"fileType"`
	RunPath    string `json:"runPath"`
	TargetPath string `json:"targetPath"`
}

type skipEntryJSON struct {
	FileType   string `json:"fileType"`
	RunPath    string `json:"runPath"`
	TargetPath string `json:"targetPath,omitempty"`
	Reason     string `json:"reason"`
	Note       string `json:"note,omitempty"`
}

type previewJSON struct {
	Resp      Resp            `json:"resp"`
	Run       RunSummary      `json:"run"`
	TargetDir string          `json:"targetDir"`
	ToCopy    []copyEntryJSON `json:"toCopy"`
	ToSkip    []skipEntryJSON `json:"toSkip"`
}

// MarshalJSON encodes the result in the API response shape for its Resp
func (r Result) MarshalJSON() ([]byte, error) {
	switch r.Resp {
	case RespOK:
		copied := r.Copied
		if copied == nil {
			copied = []string{}
		}
		return json.Marshal(struct {
			Resp   Resp     `json:"resp"`
			Copied []string `json:"copied"`
		}{r.Resp, copied})
	case RespPreview:
		return json.Marshal(newPreviewJSON(r.Merge))
	case RespReplacementPaths, RespUnstagedPaths:
		paths := r.Paths
		if paths == nil {
			paths = []string{}
		}
		return json.Marshal(struct {
			Resp  Resp     `json:"resp"`
			Paths []string `json:"paths"`
		}{r.Resp, paths})
	case RespOtherError:
		return json.Marshal(struct {
			Resp     Resp   `json:"resp"`
			ExitCode int    `json:"exitCode"`
			Detail   string `json:"detail"`
			Output   string `json:"output"`
		}{r.Resp, r.ExitCode(), r.Detail(), r.Output})
	default:
		return json.Marshal(struct {
			Resp Resp `json:"resp"`
		}{r.Resp})
	}
}

func newPreviewJSON(m *Merge) previewJSON {
	out := previewJSON{
		Resp:   RespPreview,
		ToCopy: []copyEntryJSON{},
		ToSkip: []skipEntryJSON{},
	}
	if m == nil {
		return out
	}
	out.Run = NewRunSummary(m.Run)
	out.TargetDir = m.TargetDir
	for _, f := range m.ToCopy {
		out.ToCopy = append(out.ToCopy, copyEntryJSON{
			FileType:   f.Type.String(),
			RunPath:    f.RunPath,
			TargetPath: f.TargetPath,
		})
	}
	for _, s := range m.ToSkip {
		out.ToSkip = append(out.ToSkip, skipEntryJSON{
			FileType:   s.Type.String(),
			RunPath:    s.RunPath,
			TargetPath: s.TargetPath,
			Reason:     string(s.Reason),
			Note:       s.Note,
		})
	}
	return out
}
