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

	"github.com/rs/zerolog"
	"github.com/walteh/runmerge/pkg/status"
	"gitlab.com/tozd/go/errors"
)

// CopyFunc is called after each file is copied
type CopyFunc func(m *Merge, f File, src, dest string, info status.FileInfo)

// 📥 Apply copies every planned file into the target directory in plan
// order. Files copied before a failure stay in place.
func Apply(ctx context.Context, m *Merge, onCopy CopyFunc) ([]status.FileInfo, error) {
	logger := zerolog.Ctx(ctx)
	mgr := status.New(m.TargetDir, logger)

	mgr.StartOperation(ctx, len(m.ToCopy))
	defer mgr.FinishOperation(ctx)

	for i, f := range m.ToCopy {
		if err := ctx.Err(); err != nil {
			return mgr.ListFiles(ctx), errors.Errorf("copying %s: %w", f.RunPath, err)
		}
		dest := m.Dest(f)
		info, err := mgr.CopyFile(ctx, f.SrcPath, f.TargetPath)
		if err != nil {
			return mgr.ListFiles(ctx), errors.Errorf("copying %s to %s: %w", f.RunPath, dest, err)
		}
		if onCopy != nil {
			onCopy(m, f, f.SrcPath, dest, info)
		}
		mgr.UpdateProgress(ctx, i+1)
	}

	return mgr.ListFiles(ctx), nil
}
