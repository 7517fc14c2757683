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
	"bytes"
	"context"
	"strings"

	"github.com/rs/zerolog"
	"github.com/walteh/runmerge/pkg/log"
	"github.com/walteh/runmerge/pkg/run"
	"github.com/walteh/runmerge/pkg/status"
	"github.com/walteh/runmerge/pkg/vcs"
	"gitlab.com/tozd/go/errors"
)

// 📨 Request is a merge of one run into a target directory
type Request struct {
	Run     *run.Run
	Options Options

	Replace ReplaceMode
	// Preview stops after planning and reports the plan
	Preview     bool
	PreviewMode PreviewMode
	// Yes skips the confirmation prompt
	Yes bool

	// VCS reads the target directory state; nil means no VCS
	VCS       vcs.Provider
	Confirmer Confirmer
}

// 🚀 Run plans, checks, confirms and applies a merge. Console output goes to
// the log.Logger in ctx. Every outcome is reported through the returned
// Result.
func Run(ctx context.Context, req Request) Result {
	zlog := zerolog.Ctx(ctx)
	var captured bytes.Buffer
	console := log.FromContext(ctx).Tee(&captured)
	out := console.Console()

	otherError := func(err error) Result {
		console.Error(err.Error())
		zlog.Debug().Err(err).Msg("merge failed")
		return Result{Resp: RespOtherError, Err: err, Output: captured.String()}
	}

	m, err := Init(ctx, req.Run, req.Options)
	if err != nil {
		return otherError(err)
	}

	if req.Preview {
		if err := RenderPreview(out, m, req.PreviewMode); err != nil {
			return otherError(err)
		}
		return Result{Resp: RespPreview, Merge: m}
	}

	if len(m.ToCopy) == 0 {
		if err := RenderRunSummary(out, m); err != nil {
			return otherError(err)
		}
		if len(m.ToSkip) > 0 {
			console.Info(SkipSummary(m.ToSkip))
		}
		console.Warningf("Nothing to copy from run %s", m.Run.ShortID())
		return Result{Resp: RespNothingToCopy, Merge: m}
	}

	if err := Check(ctx, m, req.Replace, req.VCS); err != nil {
		var replacing *ReplacementPathsError
		if errors.As(err, &replacing) {
			console.Errorf("Files in %s would be replaced:\n  %s\nUse --replace to overwrite them.",
				m.TargetDir, strings.Join(replacing.Paths, "\n  "))
			return Result{Resp: RespReplacementPaths, Merge: m, Paths: replacing.Paths, Err: err}
		}
		var unstaged *UnstagedPathsError
		if errors.As(err, &unstaged) {
			console.Errorf("Files in %s have unstaged changes:\n  %s\nStage or stash the changes, or use --replace to overwrite them.",
				m.TargetDir, strings.Join(unstaged.Paths, "\n  "))
			return Result{Resp: RespUnstagedPaths, Merge: m, Paths: unstaged.Paths, Err: err}
		}
		return otherError(err)
	}

	if !req.Yes {
		if req.Confirmer == nil {
			return otherError(newError("confirmation required, use --yes to merge without a prompt"))
		}
		if err := RenderPreview(out, m, req.PreviewMode); err != nil {
			return otherError(err)
		}
		ok, err := req.Confirmer.Confirm(ctx, "Continue?")
		if err != nil {
			zlog.Debug().Err(err).Msg("confirmation interrupted")
		}
		if err != nil || !ok {
			console.Warning("Merge aborted")
			return Result{Resp: RespAborted, Merge: m}
		}
	}

	console.StartMergeOperation(ctx, log.MergeOperation{
		RunID:     m.Run.ShortID(),
		Operation: m.Run.OpRef.String(),
		TargetDir: m.TargetDir,
	})
	defer console.EndMergeOperation(ctx)

	_, err = Apply(ctx, m, func(m *Merge, f File, src, dest string, info status.FileInfo) {
		console.LogFileOperation(ctx, log.FileOperation{
			Path:       f.TargetPath,
			Type:       f.Type.String(),
			Status:     info.Status.String(),
			IsNew:      info.Status == status.StatusNew,
			IsModified: info.Status == status.StatusModified,
		})
	})
	if err != nil {
		return otherError(err)
	}
	logSkips(ctx, console, m.ToSkip, req.PreviewMode)

	console.Successf("Copied %d %s from run %s to %s", len(m.ToCopy), plural(len(m.ToCopy), "file"), m.Run.ShortID(), m.TargetDir)
	return Result{Resp: RespOK, Merge: m, Copied: m.TargetPaths()}
}

// logSkips reports the files left out of an applied merge, one line each in
// detail mode.
func logSkips(ctx context.Context, console *log.Logger, skips []SkipFile, mode PreviewMode) {
	if len(skips) == 0 {
		return
	}
	if mode != PreviewDetail {
		console.Info(SkipSummary(skips))
		return
	}
	for _, s := range skips {
		console.LogFileOperation(ctx, log.FileOperation{
			Path:      s.Path(),
			Type:      s.Type.String(),
			Status:    string(s.Reason),
			IsSkipped: true,
		})
	}
}
