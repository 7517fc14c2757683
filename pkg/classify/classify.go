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

// Package classify sorts the files captured by a run into source code,
// dependencies, generated outputs and unknown files.
package classify

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog"
	"github.com/walteh/runmerge/pkg/run"
	"gitlab.com/tozd/go/errors"
)

// Origin notes explaining how a file got its type
const (
	OriginManifest       = "manifest"
	OriginSelection      = "sourcecode selection"
	OriginNonProject     = "non-project file"
	originUnknownTypeFmt = "unknown type %q"
)

// 🏷️ Classification is the type assigned to one run file
type Classification struct {
	Path   string
	Type   run.FileType
	Origin string
	// Source is the recorded origin of a dependency, if any
	Source string
}

// 🔍 Classify assigns a file type to every file under the run directory.
//
// A run with a manifest is classified from it alone: files it does not list
// are unknown non-project files. The source code selection rules only apply
// to runs that recorded no manifest.
func Classify(ctx context.Context, r *run.Run) (map[string]Classification, error) {
	logger := zerolog.Ctx(ctx)

	info, err := os.Stat(r.Dir)
	if err != nil || !info.IsDir() {
		return nil, errors.Errorf("classifying run %s: %w", r.ID, run.ErrNotFound)
	}

	entries, err := r.Manifest()
	if err != nil {
		return nil, errors.Errorf("reading manifest for run %s: %w", r.ID, err)
	}
	hasManifest := r.HasManifest()
	recorded := make(map[string]run.ManifestEntry, len(entries))
	for _, e := range entries {
		recorded[e.Path] = e
	}

	files, err := listFiles(r.Dir)
	if err != nil {
		return nil, errors.Errorf("listing files for run %s: %w", r.ID, err)
	}

	result := make(map[string]Classification, len(files))
	for _, p := range files {
		if e, ok := recorded[p]; ok {
			result[p] = fromManifest(e)
			continue
		}
		if !hasManifest && Selected(r.SourceCode, p) {
			result[p] = Classification{Path: p, Type: run.FileSourceCode, Origin: OriginSelection}
			continue
		}
		result[p] = Classification{Path: p, Type: run.FileUnknown, Origin: OriginNonProject}
	}

	for p := range recorded {
		if _, ok := result[p]; !ok {
			logger.Debug().Str("run", r.ID).Str("path", p).Msg("manifest entry missing from run directory")
		}
	}

	return result, nil
}

func fromManifest(e run.ManifestEntry) Classification {
	c := Classification{Path: e.Path, Type: e.Type, Origin: OriginManifest, Source: e.Source}
	if !e.Type.Known() {
		c.Type = run.FileUnknown
		c.Origin = unknownTypeOrigin(e.Type)
	}
	return c
}

func unknownTypeOrigin(t run.FileType) string {
	return fmt.Sprintf(originUnknownTypeFmt, string(t))
}

// Sorted returns the classifications ordered by path
func Sorted(m map[string]Classification) []Classification {
	out := make([]Classification, 0, len(m))
	for _, c := range m {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// ✅ Selected applies the selection rules to a slash separated path.
func Selected(spec run.SourceCodeSpec, p string) bool {
	if spec.Disabled {
		return false
	}
	selected := true
	for _, rule := range spec.Rules {
		if Match(rule.Pattern, p) {
			selected = !rule.Exclude
		}
	}
	return selected
}

// Match reports whether a doublestar pattern matches the slash separated
// path p. A pattern without a slash also matches the base name.
func Match(pattern, p string) bool {
	if ok, err := doublestar.Match(pattern, p); err == nil && ok {
		return true
	}
	if !strings.Contains(pattern, "/") {
		ok, err := doublestar.Match(pattern, path.Base(p))
		return err == nil && ok
	}
	return false
}

// listFiles walks dir and returns slash separated file paths, skipping the
// run metadata directory. Symlinks to files count as files.
func listFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			if rel == run.MetaDir {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 {
			target, err := os.Stat(p)
			if err != nil || target.IsDir() {
				return nil
			}
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}
