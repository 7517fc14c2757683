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
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog"
	"github.com/walteh/runmerge/pkg/classify"
	"github.com/walteh/runmerge/pkg/run"
	"gitlab.com/tozd/go/errors"
)

// 🔧 Options controls which run files a merge considers
type Options struct {
	// TargetDir defaults to the run's project directory
	TargetDir       string
	CopyAll         bool
	SkipSourceCode  bool
	SkipDeps        bool
	SkipGenerated   bool
	PreferNonSource bool
	// Exclude globs remove matching run paths before anything else
	Exclude []string
}

// candidate is a run file that passed exclusion and category filters
type candidate struct {
	file File
	skip *SkipFile
}

// 🏭 Init plans a merge of r into a target directory. It does not touch the
// target directory.
func Init(ctx context.Context, r *run.Run, opts Options) (*Merge, error) {
	logger := zerolog.Ctx(ctx)

	for _, pattern := range opts.Exclude {
		if !doublestar.ValidatePattern(pattern) {
			return nil, newError("invalid exclude pattern %q", pattern)
		}
	}

	targetDir, err := resolveTargetDir(r, opts.TargetDir)
	if err != nil {
		return nil, err
	}

	classes, err := classify.Classify(ctx, r)
	if err != nil {
		return nil, errors.Errorf("classifying run files: %w", err)
	}

	var cands []candidate
	for _, c := range classify.Sorted(classes) {
		if excluded(opts.Exclude, c.Path) {
			logger.Debug().Str("path", c.Path).Msg("excluded from merge")
			continue
		}
		cand, ok := newCandidate(r, targetDir, opts, c)
		if !ok {
			continue
		}
		cands = append(cands, cand)
	}

	m := &Merge{
		Run:       r,
		TargetDir: targetDir,
	}
	for _, cand := range resolveConflicts(cands, opts.PreferNonSource) {
		if cand.skip != nil {
			m.ToSkip = append(m.ToSkip, *cand.skip)
			continue
		}
		m.ToCopy = append(m.ToCopy, cand.file)
	}

	sort.SliceStable(m.ToCopy, func(i, j int) bool { return m.ToCopy[i].RunPath < m.ToCopy[j].RunPath })
	sort.SliceStable(m.ToSkip, func(i, j int) bool { return m.ToSkip[i].Path() < m.ToSkip[j].Path() })

	logger.Debug().
		Str("run", r.ID).
		Str("target_dir", targetDir).
		Int("to_copy", len(m.ToCopy)).
		Int("to_skip", len(m.ToSkip)).
		Msg("planned merge")

	return m, nil
}

// ProjectDir returns the project directory a run's operation was defined in.
// Only guildfile runs have one.
func ProjectDir(r *run.Run) (string, error) {
	if r.OpRef.PkgType != run.PkgGuildfile || r.OpRef.PkgName == "" {
		return "", newError("cannot determine project directory for run %s (%s operation), use --target-dir to specify a directory", r.ShortID(), orUnknown(string(r.OpRef.PkgType)))
	}
	return filepath.Dir(r.OpRef.PkgName), nil
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

func resolveTargetDir(r *run.Run, explicit string) (string, error) {
	dir := explicit
	if dir == "" {
		projectDir, err := ProjectDir(r)
		if err != nil {
			return "", err
		}
		if _, err := os.Stat(projectDir); err != nil {
			return "", newError("project directory %s for run %s does not exist, use --target-dir to specify a different directory", projectDir, r.ShortID())
		}
		dir = projectDir
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", errors.Errorf("resolving target directory: %w", err)
	}
	return abs, nil
}

func excluded(patterns []string, p string) bool {
	for _, pattern := range patterns {
		if classify.Match(pattern, p) {
			return true
		}
	}
	return false
}

// newCandidate applies the category filters. Categories the caller skipped
// never become candidates.
func newCandidate(r *run.Run, targetDir string, opts Options, c classify.Classification) (candidate, bool) {
	f := File{
		RunID:      r.ID,
		Type:       c.Type,
		RunPath:    c.Path,
		SrcPath:    r.Path(c.Path),
		TargetPath: c.Path,
	}
	skip := func(reason SkipReason, target string, note string) (candidate, bool) {
		return candidate{skip: &SkipFile{
			Type:       c.Type,
			RunPath:    c.Path,
			TargetPath: target,
			Reason:     reason,
			Note:       note,
		}}, true
	}

	switch c.Type {
	case run.FileSourceCode:
		if opts.SkipSourceCode {
			return candidate{}, false
		}
	case run.FileDependency:
		if opts.SkipDeps {
			return candidate{}, false
		}
		target, ok := dependencyTarget(targetDir, c)
		if !ok {
			return skip(SkipNonProjectDep, "", "")
		}
		f.TargetPath = target
		if sameFile(f.SrcPath, filepath.Join(targetDir, filepath.FromSlash(target))) {
			return skip(SkipUnchanged, target, "")
		}
	case run.FileGenerated:
		if opts.SkipGenerated {
			return candidate{}, false
		}
	default:
		if !opts.CopyAll {
			return skip(SkipUnknown, "", c.Origin)
		}
	}

	if !localPath(f.TargetPath) {
		return skip(SkipNonProjectDep, "", "")
	}
	return candidate{file: f}, true
}

// dependencyTarget maps a dependency to its location in the target
// directory. Dependencies resolved from URLs or from outside the target
// directory have no target.
func dependencyTarget(targetDir string, c classify.Classification) (string, bool) {
	if c.Source == "" {
		return c.Path, true
	}
	src, ok := strings.CutPrefix(c.Source, "file:")
	if !ok {
		return "", false
	}
	src = strings.TrimPrefix(src, "//")
	if !filepath.IsAbs(src) {
		src = filepath.Join(targetDir, filepath.FromSlash(src))
	}
	rel, err := filepath.Rel(targetDir, filepath.Clean(src))
	if err != nil {
		return "", false
	}
	rel = filepath.ToSlash(rel)
	if !localPath(rel) {
		return "", false
	}
	return rel, true
}

func localPath(p string) bool {
	if p == "" || path.IsAbs(p) {
		return false
	}
	clean := path.Clean(p)
	return clean != "." && clean != ".." && !strings.HasPrefix(clean, "../")
}

func sameFile(a, b string) bool {
	ai, err := os.Stat(a)
	if err != nil {
		return false
	}
	bi, err := os.Stat(b)
	if err != nil {
		return false
	}
	return os.SameFile(ai, bi)
}

// resolveConflicts keeps one file per target path. Source code wins unless
// preferNonSource is set; among equals the first run path wins. Losers are
// skipped with their category code.
func resolveConflicts(cands []candidate, preferNonSource bool) []candidate {
	winners := map[string]int{}
	for i, cand := range cands {
		if cand.skip != nil {
			continue
		}
		target := cand.file.TargetPath
		j, ok := winners[target]
		if !ok || beats(cand.file, cands[j].file, preferNonSource) {
			winners[target] = i
		}
	}

	out := make([]candidate, 0, len(cands))
	for i, cand := range cands {
		if cand.skip == nil && winners[cand.file.TargetPath] != i {
			cand = candidate{skip: &SkipFile{
				Type:       cand.file.Type,
				RunPath:    cand.file.RunPath,
				TargetPath: cand.file.TargetPath,
				Reason:     conflictReason(cand.file.Type),
			}}
		}
		out = append(out, cand)
	}
	return out
}

func beats(a, b File, preferNonSource bool) bool {
	aSource := a.Type == run.FileSourceCode
	bSource := b.Type == run.FileSourceCode
	if aSource == bSource {
		return false
	}
	if preferNonSource {
		return !aSource
	}
	return aSource
}

func conflictReason(t run.FileType) SkipReason {
	switch t {
	case run.FileSourceCode:
		return SkipSourceCode
	case run.FileDependency:
		return SkipDependency
	default:
		return SkipUnknown
	}
}
