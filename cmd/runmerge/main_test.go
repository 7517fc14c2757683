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

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/pterm/pterm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/walteh/runmerge/pkg/run"
	"github.com/walteh/runmerge/pkg/testutils"
)

type cli struct {
	t       *testing.T
	config  string
	runsDir string
}

func newCLI(t *testing.T) *cli {
	t.Helper()
	disableStyling()
	t.Cleanup(func() {
		color.NoColor = false
		pterm.EnableStyling()
	})
	t.Setenv("RUNMERGE_RUNS_DIR", "")
	t.Setenv("RUNMERGE_GIT", "")

	dir := t.TempDir()
	runsDir := filepath.Join(dir, "runs")
	config := filepath.Join(dir, "runmerge.yaml")
	require.NoError(t, os.WriteFile(config, []byte(fmt.Sprintf("runs_dir: %s\nvcs: []\n", runsDir)), 0644))
	return &cli{t: t, config: config, runsDir: runsDir}
}

func (c *cli) exec(args ...string) (int, string, string) {
	c.t.Helper()
	var stdout, stderr bytes.Buffer
	code := execute(testutils.Context(c.t), append([]string{"--config", c.config}, args...), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func (c *cli) trainRun(projectDir string) *run.Run {
	c.t.Helper()
	return testutils.NewRun(c.t, c.runsDir, testutils.RunFixture{
		OpRef: run.OpRef{
			PkgType:   run.PkgGuildfile,
			PkgName:   filepath.Join(projectDir, "guild.yml"),
			ModelName: "mnist",
			OpName:    "train",
		},
		Label: "lr=0.1",
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

func decode(t *testing.T, s string) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(s), &out), "stdout: %s", s)
	return out
}

func TestMergeCopiesWithYes(t *testing.T) {
	c := newCLI(t)
	target := t.TempDir()
	r := c.trainRun(target)

	code, stdout, stderr := c.exec("merge", r.ID[:8], "--yes")
	require.Equal(t, 0, code, "stdout: %s\nstderr: %s", stdout, stderr)
	assert.Contains(t, stdout, "Copied 3 files")
	assert.Equal(t, "print('train')", testutils.ReadFile(t, target, "train.py"))
}

func TestMergeJSON(t *testing.T) {
	tests := []struct {
		name     string
		existing map[string]string
		args     []string
		wantCode int
		wantResp string
		check    func(t *testing.T, out map[string]any)
	}{
		{
			name:     "ok",
			args:     []string{"--yes"},
			wantResp: "ok",
			check: func(t *testing.T, out map[string]any) {
				assert.Equal(t, []any{"data.csv", "model.pth", "train.py"}, out["copied"])
			},
		},
		{
			name:     "sourcecode_only",
			args:     []string{"--yes", "--sourcecode"},
			wantResp: "ok",
			check: func(t *testing.T, out map[string]any) {
				assert.Equal(t, []any{"train.py"}, out["copied"])
			},
		},
		{
			name:     "exclude",
			args:     []string{"--yes", "--exclude", "*.pth", "-x", "*.csv"},
			wantResp: "ok",
			check: func(t *testing.T, out map[string]any) {
				assert.Equal(t, []any{"train.py"}, out["copied"])
			},
		},
		{
			name:     "preview",
			args:     []string{"--preview"},
			wantResp: "preview",
			check: func(t *testing.T, out map[string]any) {
				assert.Len(t, out["toCopy"], 3)
			},
		},
		{
			name:     "replacement_without_vcs",
			existing: map[string]string{"train.py": "local edits"},
			args:     []string{"--yes"},
			wantCode: 1,
			wantResp: "replacement-paths",
			check: func(t *testing.T, out map[string]any) {
				assert.Equal(t, []any{"train.py"}, out["paths"])
			},
		},
		{
			name:     "replace_flag",
			existing: map[string]string{"train.py": "local edits"},
			args:     []string{"--yes", "--replace"},
			wantResp: "ok",
		},
		{
			name:     "no_confirmation_in_json_mode",
			args:     nil,
			wantCode: 1,
			wantResp: "other-error",
			check: func(t *testing.T, out map[string]any) {
				assert.Contains(t, out["detail"], "--yes")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newCLI(t)
			target := t.TempDir()
			testutils.WriteFiles(t, target, tt.existing)
			r := c.trainRun(target)

			args := append([]string{"merge", r.ID, "--json"}, tt.args...)
			code, stdout, stderr := c.exec(args...)
			require.Equal(t, tt.wantCode, code, "stdout: %s\nstderr: %s", stdout, stderr)

			out := decode(t, stdout)
			assert.Equal(t, tt.wantResp, out["resp"])
			if tt.check != nil {
				tt.check(t, out)
			}
		})
	}
}

func TestMergeRunDirectoryArgument(t *testing.T) {
	c := newCLI(t)
	target := t.TempDir()
	r := c.trainRun(target)

	code, stdout, stderr := c.exec("merge", r.Dir, "--preview", "--target-dir", target)
	require.Equal(t, 0, code, "stderr: %s", stderr)
	assert.Contains(t, stdout, "Files to copy (3):")
	assert.Contains(t, stdout, "mnist:train")
}

func TestMergeUnknownRun(t *testing.T) {
	c := newCLI(t)

	code, stdout, _ := c.exec("merge", "deadbeef", "--json")
	assert.Equal(t, 1, code)
	out := decode(t, stdout)
	assert.Equal(t, "other-error", out["resp"])
	assert.Contains(t, out["detail"], "run not found")
}

func TestMergeMutuallyExclusiveFlags(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "replace_and_no_replace", args: []string{"--replace", "--no-replace"}},
		{name: "sourcecode_and_skip_sourcecode", args: []string{"--sourcecode", "--skip-sourcecode"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newCLI(t)
			target := t.TempDir()
			r := c.trainRun(target)

			code, _, stderr := c.exec(append([]string{"merge", r.ID, "--yes"}, tt.args...)...)
			assert.Equal(t, 1, code)
			assert.Contains(t, stderr, "none of the others can be")

			_, err := os.Stat(filepath.Join(target, "train.py"))
			assert.True(t, os.IsNotExist(err), "nothing is copied")
		})
	}
}

func TestMergeGitGuard(t *testing.T) {
	repo := testutils.GitRepo(t)
	c := newCLI(t)
	require.NoError(t, os.WriteFile(c.config, []byte(fmt.Sprintf("runs_dir: %s\n", c.runsDir)), 0644))

	testutils.WriteFiles(t, repo, map[string]string{"train.py": "committed"})
	testutils.GitCommitAll(t, repo, "initial")
	testutils.WriteFiles(t, repo, map[string]string{"train.py": "edited"})
	r := c.trainRun(repo)

	code, stdout, _ := c.exec("merge", r.ID, "--json", "--yes")
	assert.Equal(t, 1, code)
	out := decode(t, stdout)
	assert.Equal(t, "unstaged-paths", out["resp"])
	assert.Equal(t, []any{"train.py"}, out["paths"])

	testutils.GitCommitAll(t, repo, "edits")
	code, stdout, _ = c.exec("merge", r.ID, "--json", "--yes")
	assert.Equal(t, 0, code)
	assert.Equal(t, "ok", decode(t, stdout)["resp"])
}

func TestRunsCommand(t *testing.T) {
	c := newCLI(t)

	code, stdout, _ := c.exec("runs")
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, "No runs in")

	r := c.trainRun(t.TempDir())
	code, stdout, stderr := c.exec("runs")
	require.Equal(t, 0, code, "stderr: %s", stderr)
	assert.Contains(t, stdout, r.ShortID())
	assert.Contains(t, stdout, "mnist:train")
	assert.Contains(t, stdout, "completed")
	assert.Contains(t, stdout, "lr=0.1")
}

const depsProject = `
models:
  - model: train
    operations:
      fit:
        requires: [data]
    resources:
      data:
        sources:
          - file: data.csv
`

func TestDepsCommand(t *testing.T) {
	c := newCLI(t)
	projectDir := t.TempDir()
	testutils.WriteFiles(t, projectDir, map[string]string{"guild.yml": depsProject})

	code, stdout, stderr := c.exec("deps", "train:fit", "--project", projectDir)
	require.Equal(t, 0, code, "stderr: %s", stderr)
	assert.Contains(t, stdout, " 1. initialize train:fit")
	assert.Contains(t, stdout, " 2. file data.csv for data")
	assert.Contains(t, stdout, " 3. resolve data")
	assert.Contains(t, stdout, " 4. run train:fit")

	code, stdout, _ = c.exec("deps", "train:fit", "--project", projectDir, "--resolve")
	assert.Equal(t, 1, code)
	assert.Contains(t, stdout, "cannot find source file data.csv")

	testutils.WriteFiles(t, projectDir, map[string]string{"data.csv": "a,b\n"})
	code, stdout, stderr = c.exec("deps", "train:fit", "--project", projectDir, "--resolve")
	require.Equal(t, 0, code, "stderr: %s", stderr)
	assert.Contains(t, stdout, "Resolved 1 source for train:fit")

	code, _, stderr = c.exec("deps", "train:predict", "--project", projectDir)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, `no operation "predict" in model "train"`)
}

func TestVersionCommand(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := execute(context.Background(), []string{"version"}, &stdout, &stderr)
	require.Equal(t, 0, code)
	assert.Contains(t, stdout.String(), "runmerge version info")

	stdout.Reset()
	code = execute(context.Background(), []string{"version", "--short"}, &stdout, &stderr)
	require.Equal(t, 0, code)
	assert.NotEmpty(t, stdout.String())
}

func TestBadConfig(t *testing.T) {
	c := newCLI(t)
	require.NoError(t, os.WriteFile(c.config, []byte("preview: loud\n"), 0644))

	code, _, stderr := c.exec("runs")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "loading config")
}
