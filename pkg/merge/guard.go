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
	"os"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"github.com/walteh/runmerge/pkg/status"
	"github.com/walteh/runmerge/pkg/vcs"
	"gitlab.com/tozd/go/errors"
)

// 🛡️ ReplaceMode selects how existing target files are treated
type ReplaceMode int

const (
	// ReplaceCheckVCS allows replacing files the VCS can restore
	ReplaceCheckVCS ReplaceMode = iota
	// ReplaceNever rejects any existing target file (--no-replace)
	ReplaceNever
	// ReplaceAlways skips the check (--replace)
	ReplaceAlways
)

// ReplacementPathsError lists existing target files that would be replaced
// without a way to recover them
type ReplacementPathsError struct {
	Paths []string
}

func (e *ReplacementPathsError) Error() string {
	return fmt.Sprintf("files in the target directory would be replaced: %s", strings.Join(e.Paths, ", "))
}

// UnstagedPathsError lists replaced files that have unstaged changes
type UnstagedPathsError struct {
	Paths []string
}

func (e *UnstagedPathsError) Error() string {
	return fmt.Sprintf("files in the target directory have unstaged changes: %s", strings.Join(e.Paths, ", "))
}

// 🛡️ Check decides whether m may overwrite existing files in its target
// directory. provider may be nil, which behaves like a directory outside any
// VCS. VCS tooling failures are returned as errors and never approve a merge.
func Check(ctx context.Context, m *Merge, mode ReplaceMode, provider vcs.Provider) error {
	logger := zerolog.Ctx(ctx)

	if mode == ReplaceAlways {
		return nil
	}
	if _, err := os.Stat(m.TargetDir); os.IsNotExist(err) {
		return nil
	} else if err != nil {
		return errors.Errorf("checking target directory: %w", err)
	}

	replacing, err := replacingPaths(ctx, m)
	if err != nil {
		return err
	}
	if len(replacing) == 0 {
		return nil
	}

	if mode == ReplaceNever || provider == nil {
		return errors.WithStack(&ReplacementPathsError{Paths: replacing})
	}

	statuses, err := provider.Status(ctx, m.TargetDir)
	if errors.Is(err, vcs.ErrUnsupportedRepo) {
		logger.Debug().Str("target_dir", m.TargetDir).Msg("target directory is not a working copy")
		return errors.WithStack(&ReplacementPathsError{Paths: replacing})
	}
	if err != nil {
		return errors.Errorf("reading VCS status for %s: %w", m.TargetDir, err)
	}
	listed, err := provider.LsFiles(ctx, m.TargetDir)
	if errors.Is(err, vcs.ErrUnsupportedRepo) {
		return errors.WithStack(&ReplacementPathsError{Paths: replacing})
	}
	if err != nil {
		return errors.Errorf("listing VCS files for %s: %w", m.TargetDir, err)
	}

	allSource := make(map[string]struct{}, len(listed)+len(statuses))
	for _, p := range listed {
		allSource[p] = struct{}{}
	}
	unstaged := map[string]struct{}{}
	for _, s := range statuses {
		allSource[s.Path] = struct{}{}
		if s.Unstaged() {
			unstaged[s.Path] = struct{}{}
		}
	}

	for _, p := range replacing {
		if _, ok := allSource[p]; !ok {
			logger.Debug().Str("path", p).Msg("replaced file is unknown to the VCS")
			return errors.WithStack(&ReplacementPathsError{Paths: replacing})
		}
	}

	var unstagedReplacing []string
	for _, p := range replacing {
		if _, ok := unstaged[p]; ok {
			unstagedReplacing = append(unstagedReplacing, p)
		}
	}
	if len(unstagedReplacing) > 0 {
		return errors.WithStack(&UnstagedPathsError{Paths: unstagedReplacing})
	}

	logger.Debug().Str("vcs", provider.Scheme()).Int("replacing", len(replacing)).Msg("replaced files are recoverable from the VCS")
	return nil
}

// replacingPaths returns the sorted target paths that already exist
func replacingPaths(ctx context.Context, m *Merge) ([]string, error) {
	mgr := status.New(m.TargetDir, zerolog.Ctx(ctx))
	var out []string
	for _, f := range m.ToCopy {
		exists, err := mgr.FileExists(ctx, f.TargetPath)
		if err != nil {
			return nil, errors.Errorf("checking %s: %w", f.TargetPath, err)
		}
		if exists {
			out = append(out, f.TargetPath)
		}
	}
	sort.Strings(out)
	return out, nil
}
