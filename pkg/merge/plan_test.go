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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/walteh/runmerge/pkg/classify"
	"github.com/walteh/runmerge/pkg/run"
	"github.com/walteh/runmerge/pkg/testutils"
	"gitlab.com/tozd/go/errors"
)

// trainRun is a run with one file of each type
func trainRun(t *testing.T, projectDir string) *run.Run {
	t.Helper()
	return testutils.NewRun(t, t.TempDir(), testutils.RunFixture{
		OpRef: run.OpRef{
			PkgType:   run.PkgGuildfile,
			PkgName:   filepath.Join(projectDir, "guild.yml"),
			ModelName: "mnist",
			OpName:    "train",
		},
		Files: map[string]string{
			"train.py":  "print('train')",
			"data.csv":  "a,b\n1,2\n",
			"model.pth": "weights",
		},
		Manifest: []run.ManifestEntry{
			{Type: run.FileSourceCode, Path: "train.py"},
			{Type: run.FileDependency, Path: "data.csv"},
			{Type: run.FileGenerated, Path: "model.pth"},
		},
	})
}

type copyRow struct {
	Type       run.FileType
	RunPath    string
	TargetPath string
}

func copyRows(m *Merge) []copyRow {
	var out []copyRow
	for _, f := range m.ToCopy {
		out = append(out, copyRow{f.Type, f.RunPath, f.TargetPath})
	}
	return out
}

func skipReasons(m *Merge) map[string]SkipReason {
	out := map[string]SkipReason{}
	for _, s := range m.ToSkip {
		out[s.RunPath] = s.Reason
	}
	return out
}

func TestInitCopiesAllTypesIntoEmptyTarget(t *testing.T) {
	ctx := testutils.Context(t)
	target := t.TempDir()
	r := trainRun(t, target)

	m, err := Init(ctx, r, Options{})
	require.NoError(t, err)

	assert.Equal(t, target, m.TargetDir, "target dir defaults to the project directory")
	assert.Equal(t, []copyRow{
		{run.FileDependency, "data.csv", "data.csv"},
		{run.FileGenerated, "model.pth", "model.pth"},
		{run.FileSourceCode, "train.py", "train.py"},
	}, copyRows(m))
	assert.Empty(t, m.ToSkip)
	assert.Equal(t, []string{"data.csv", "model.pth", "train.py"}, m.TargetPaths())
	assert.Equal(t, filepath.Join(target, "train.py"), m.Dest(m.ToCopy[2]))
}

func TestInitCategoryFilters(t *testing.T) {
	tests := []struct {
		name     string
		opts     Options
		wantCopy []string
	}{
		{name: "skip_sourcecode", opts: Options{SkipSourceCode: true}, wantCopy: []string{"data.csv", "model.pth"}},
		{name: "skip_deps", opts: Options{SkipDeps: true}, wantCopy: []string{"model.pth", "train.py"}},
		{name: "sourcecode_only", opts: Options{SkipDeps: true, SkipGenerated: true}, wantCopy: []string{"train.py"}},
		{name: "exclude_pattern", opts: Options{Exclude: []string{"*.pth"}}, wantCopy: []string{"data.csv", "train.py"}},
		{name: "exclude_doublestar", opts: Options{Exclude: []string{"**/*.csv", "train.*"}}, wantCopy: []string{"model.pth"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := testutils.Context(t)
			target := t.TempDir()
			r := trainRun(t, target)

			m, err := Init(ctx, r, tt.opts)
			require.NoError(t, err)

			assert.Equal(t, tt.wantCopy, m.TargetPaths())
			assert.Empty(t, m.ToSkip, "filtered categories never appear as skips")

			for _, f := range m.ToCopy {
				for _, pattern := range tt.opts.Exclude {
					assert.False(t, classify.Match(pattern, f.RunPath), "%s matches exclude %s", f.RunPath, pattern)
				}
			}
		})
	}
}

func TestInitExcludeNestedPaths(t *testing.T) {
	ctx := testutils.Context(t)
	target := t.TempDir()
	r := testutils.NewRun(t, t.TempDir(), testutils.RunFixture{
		OpRef: run.OpRef{PkgType: run.PkgGuildfile, PkgName: filepath.Join(target, "guild.yml"), OpName: "train"},
		Files: map[string]string{
			"train.py":       "x",
			"ckpt/model.pth": "weights",
			"ckpt/notes.md":  "notes",
		},
		Manifest: []run.ManifestEntry{
			{Type: run.FileSourceCode, Path: "train.py"},
			{Type: run.FileGenerated, Path: "ckpt/model.pth"},
			{Type: run.FileGenerated, Path: "ckpt/notes.md"},
		},
	})

	tests := []struct {
		name     string
		exclude  []string
		wantCopy []string
	}{
		{name: "basename_glob_matches_nested", exclude: []string{"*.pth"}, wantCopy: []string{"ckpt/notes.md", "train.py"}},
		{name: "directory_glob", exclude: []string{"ckpt/**"}, wantCopy: []string{"train.py"}},
		{name: "slash_glob_is_anchored", exclude: []string{"other/*.pth"}, wantCopy: []string{"ckpt/model.pth", "ckpt/notes.md", "train.py"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Init(ctx, r, Options{Exclude: tt.exclude})
			require.NoError(t, err)
			assert.Equal(t, tt.wantCopy, m.TargetPaths())
			assert.Empty(t, m.ToSkip, "excluded files are removed, not skipped")
		})
	}
}

func TestInitUnlistedRunFiles(t *testing.T) {
	ctx := testutils.Context(t)
	target := t.TempDir()
	r := trainRun(t, target)
	testutils.WriteFiles(t, r.Dir, map[string]string{"events.out": "tfevents"})

	m, err := Init(ctx, r, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"data.csv", "model.pth", "train.py"}, m.TargetPaths())
	require.Len(t, m.ToSkip, 1)
	assert.Equal(t, "events.out", m.ToSkip[0].RunPath)
	assert.Equal(t, run.FileUnknown, m.ToSkip[0].Type)
	assert.Equal(t, SkipUnknown, m.ToSkip[0].Reason)
	assert.Equal(t, "unknown file type (non-project file)", m.ToSkip[0].ReasonText())

	all, err := Init(ctx, r, Options{CopyAll: true})
	require.NoError(t, err)
	assert.Contains(t, all.TargetPaths(), "events.out")
}

func TestInitInvalidExclude(t *testing.T) {
	target := t.TempDir()
	_, err := Init(testutils.Context(t), trainRun(t, target), Options{Exclude: []string{"[unclosed"}})
	require.Error(t, err)
	var merr *Error
	assert.True(t, errors.As(err, &merr))
}

func TestInitUnknownFiles(t *testing.T) {
	ctx := testutils.Context(t)
	target := t.TempDir()
	r := testutils.NewRun(t, t.TempDir(), testutils.RunFixture{
		OpRef: run.OpRef{PkgType: run.PkgGuildfile, PkgName: filepath.Join(target, "guild.yml"), OpName: "train"},
		Files: map[string]string{
			"train.py":  "x",
			"out.log":   "log",
			"strange.x": "?",
		},
		Manifest: []run.ManifestEntry{
			{Type: run.FileSourceCode, Path: "train.py"},
			{Type: run.FileType("q"), Path: "strange.x"},
		},
	})

	m, err := Init(ctx, r, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"train.py"}, m.TargetPaths())
	require.Len(t, m.ToSkip, 2)
	assert.Equal(t, "out.log", m.ToSkip[0].RunPath)
	assert.Equal(t, SkipUnknown, m.ToSkip[0].Reason)
	assert.Equal(t, "unknown file type (non-project file)", m.ToSkip[0].ReasonText())
	assert.Equal(t, `unknown file type (unknown type "q")`, m.ToSkip[1].ReasonText())

	all, err := Init(ctx, r, Options{CopyAll: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"out.log", "strange.x", "train.py"}, all.TargetPaths())
	assert.Empty(t, all.ToSkip)
}

func TestInitDependencySources(t *testing.T) {
	ctx := testutils.Context(t)
	target := t.TempDir()
	outside := t.TempDir()
	testutils.WriteFiles(t, target, map[string]string{"data/linked.csv": "linked"})
	testutils.WriteFiles(t, outside, map[string]string{"shared.csv": "shared"})

	r := testutils.NewRun(t, t.TempDir(), testutils.RunFixture{
		OpRef: run.OpRef{PkgType: run.PkgGuildfile, PkgName: filepath.Join(target, "guild.yml"), OpName: "train"},
		Files: map[string]string{
			"train.py":     "x",
			"input.csv":    "resolved from project",
			"shared.csv":   "shared",
			"mnist.npz":    "downloaded",
			"escape.csv":   "escape",
			"absolute.csv": "abs",
		},
		Manifest: []run.ManifestEntry{
			{Type: run.FileSourceCode, Path: "train.py"},
			{Type: run.FileDependency, Path: "input.csv", Source: "file:data/input.csv"},
			{Type: run.FileDependency, Path: "shared.csv", Source: "file:" + filepath.Join(outside, "shared.csv")},
			{Type: run.FileDependency, Path: "mnist.npz", Source: "https://example.com/mnist.npz"},
			{Type: run.FileDependency, Path: "escape.csv", Source: "file:../escape.csv"},
			{Type: run.FileDependency, Path: "absolute.csv", Source: "file:" + filepath.Join(target, "data", "abs.csv")},
		},
	})
	// resolved dependency links point back into the project
	if err := os.Symlink(filepath.Join(target, "data", "linked.csv"), r.Path("linked.csv")); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}
	require.NoError(t, r.WriteManifest(append(mustManifest(t, r), run.ManifestEntry{
		Type: run.FileDependency, Path: "linked.csv", Source: "file:data/linked.csv",
	})))

	m, err := Init(ctx, r, Options{})
	require.NoError(t, err)

	assert.Equal(t, []copyRow{
		{run.FileDependency, "absolute.csv", "data/abs.csv"},
		{run.FileDependency, "input.csv", "data/input.csv"},
		{run.FileSourceCode, "train.py", "train.py"},
	}, copyRows(m))
	assert.Equal(t, map[string]SkipReason{
		"escape.csv": SkipNonProjectDep,
		"linked.csv": SkipUnchanged,
		"mnist.npz":  SkipNonProjectDep,
		"shared.csv": SkipNonProjectDep,
	}, skipReasons(m))
}

func mustManifest(t *testing.T, r *run.Run) []run.ManifestEntry {
	t.Helper()
	entries, err := r.Manifest()
	require.NoError(t, err)
	return entries
}

func TestInitTargetConflicts(t *testing.T) {
	target := t.TempDir()
	newRun := func(t *testing.T) *run.Run {
		return testutils.NewRun(t, t.TempDir(), testutils.RunFixture{
			OpRef: run.OpRef{PkgType: run.PkgGuildfile, PkgName: filepath.Join(target, "guild.yml"), OpName: "train"},
			Files: map[string]string{
				"params.json":      "from source",
				"deps/params.json": "from dependency",
			},
			Manifest: []run.ManifestEntry{
				{Type: run.FileSourceCode, Path: "params.json"},
				{Type: run.FileDependency, Path: "deps/params.json", Source: "file:params.json"},
			},
		})
	}

	t.Run("source_code_wins", func(t *testing.T) {
		m, err := Init(testutils.Context(t), newRun(t), Options{})
		require.NoError(t, err)
		assert.Equal(t, []copyRow{{run.FileSourceCode, "params.json", "params.json"}}, copyRows(m))
		assert.Equal(t, map[string]SkipReason{"deps/params.json": SkipDependency}, skipReasons(m))
	})

	t.Run("prefer_nonsource", func(t *testing.T) {
		m, err := Init(testutils.Context(t), newRun(t), Options{PreferNonSource: true})
		require.NoError(t, err)
		assert.Equal(t, []copyRow{{run.FileDependency, "deps/params.json", "params.json"}}, copyRows(m))
		assert.Equal(t, map[string]SkipReason{"params.json": SkipSourceCode}, skipReasons(m))
	})
}

func TestInitPartitionsCandidates(t *testing.T) {
	ctx := testutils.Context(t)
	target := t.TempDir()
	r := testutils.NewRun(t, t.TempDir(), testutils.RunFixture{
		OpRef: run.OpRef{PkgType: run.PkgGuildfile, PkgName: filepath.Join(target, "guild.yml"), OpName: "train"},
		Files: map[string]string{
			"a.py":         "a",
			"b/c.py":       "c",
			"logs/1.txt":   "1",
			"remote.bin":   "r",
			"out/pred.csv": "p",
		},
		Manifest: []run.ManifestEntry{
			{Type: run.FileSourceCode, Path: "a.py"},
			{Type: run.FileSourceCode, Path: "b/c.py"},
			{Type: run.FileDependency, Path: "remote.bin", Source: "https://example.com/r.bin"},
			{Type: run.FileGenerated, Path: "out/pred.csv"},
		},
	})

	for _, opts := range []Options{{}, {CopyAll: true}, {SkipDeps: true}, {Exclude: []string{"b/**"}}} {
		m, err := Init(ctx, r, opts)
		require.NoError(t, err)

		seen := map[string]string{}
		for _, f := range m.ToCopy {
			_, dup := seen[f.RunPath]
			assert.False(t, dup, "%s planned twice", f.RunPath)
			seen[f.RunPath] = "copy"
		}
		for _, s := range m.ToSkip {
			_, dup := seen[s.RunPath]
			assert.False(t, dup, "%s both copied and skipped", s.RunPath)
			seen[s.RunPath] = "skip"
			assert.NotEqual(t, SkipExcluded, s.Reason, "excluded files are removed, not skipped")
		}
	}
}

func TestProjectDir(t *testing.T) {
	tests := []struct {
		name    string
		ref     run.OpRef
		want    string
		wantErr string
	}{
		{
			name: "guildfile",
			ref:  run.OpRef{PkgType: run.PkgGuildfile, PkgName: "/work/project/guild.yml"},
			want: "/work/project",
		},
		{
			name:    "script",
			ref:     run.OpRef{PkgType: run.PkgScript, PkgName: "train.py"},
			wantErr: "use --target-dir",
		},
		{
			name:    "package",
			ref:     run.OpRef{PkgType: run.PkgPackage, PkgName: "gpkg.mnist"},
			wantErr: "package operation",
		},
		{
			name:    "missing_opref",
			ref:     run.OpRef{},
			wantErr: "unknown operation",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ProjectDir(&run.Run{ID: "0123456789", OpRef: tt.ref})
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				var merr *Error
				assert.True(t, errors.As(err, &merr), "planning failures are merge errors")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, filepath.FromSlash(tt.want), got)
		})
	}
}

func TestInitMissingProjectDir(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "deleted")
	r := testutils.NewRun(t, t.TempDir(), testutils.RunFixture{
		OpRef: run.OpRef{PkgType: run.PkgGuildfile, PkgName: filepath.Join(missing, "guild.yml"), OpName: "train"},
		Files: map[string]string{"train.py": "x"},
	})

	_, err := Init(testutils.Context(t), r, Options{})
	require.Error(t, err)
	var merr *Error
	require.True(t, errors.As(err, &merr))
	assert.Contains(t, err.Error(), "does not exist")

	m, err := Init(testutils.Context(t), r, Options{TargetDir: missing})
	require.NoError(t, err, "an explicit target dir may not exist yet")
	assert.Equal(t, []string{"train.py"}, m.TargetPaths())
}
