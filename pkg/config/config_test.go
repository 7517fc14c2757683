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

package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testContext(t *testing.T) context.Context {
	return zerolog.New(zerolog.NewTestWriter(t)).WithContext(context.Background())
}

func clearEnv(t *testing.T) {
	t.Setenv(EnvRunsDir, "")
	t.Setenv(EnvGit, "")
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name        string
		file        string
		config      string
		wantErr     bool
		errContains string
		check       func(t *testing.T, dir string, cfg *Config)
	}{
		{
			name: "yaml_config",
			file: "runmerge.yaml",
			config: `
runs_dir: /data/runs
exclude:
  - "*.log"
preview: detail
vcs: [git]
git_binary: /usr/bin/git
project_file: project.yml
package_dirs: [pkgs]
`,
			check: func(t *testing.T, dir string, cfg *Config) {
				assert.Equal(t, "/data/runs", cfg.RunsDir, "absolute runs dir is kept")
				assert.Equal(t, []string{"*.log"}, cfg.Exclude)
				assert.Equal(t, PreviewDetail, cfg.Preview)
				assert.Equal(t, []string{"git"}, cfg.VCS)
				assert.Equal(t, "/usr/bin/git", cfg.GitBinary)
				assert.Equal(t, "project.yml", cfg.ProjectFile)
				assert.Equal(t, []string{filepath.Join(dir, "pkgs")}, cfg.PackageDirs, "relative dirs resolve against the config file")
			},
		},
		{
			name:   "empty_yaml_uses_defaults",
			file:   "runmerge.yml",
			config: "",
			check: func(t *testing.T, dir string, cfg *Config) {
				assert.Equal(t, filepath.Join(dir, "runs"), cfg.RunsDir)
				assert.Equal(t, PreviewSummary, cfg.Preview)
				assert.Equal(t, []string{"git"}, cfg.VCS)
				assert.Equal(t, "git", cfg.GitBinary)
				assert.Equal(t, "guild.yml", cfg.ProjectFile)
			},
		},
		{
			name:   "vcs_can_be_disabled",
			file:   "runmerge.yaml",
			config: "vcs: []\n",
			check: func(t *testing.T, dir string, cfg *Config) {
				assert.Empty(t, cfg.VCS)
			},
		},
		{
			name: "hcl_config",
			file: "runmerge.hcl",
			config: `
runs_dir = "experiments"
exclude  = ["*.ckpt", "data/**"]
preview  = "detail"
package_dirs = ["${home}/pkgs"]
`,
			check: func(t *testing.T, dir string, cfg *Config) {
				home, err := os.UserHomeDir()
				require.NoError(t, err)
				assert.Equal(t, filepath.Join(dir, "experiments"), cfg.RunsDir)
				assert.Equal(t, []string{"*.ckpt", "data/**"}, cfg.Exclude)
				assert.Equal(t, PreviewDetail, cfg.Preview)
				assert.Equal(t, []string{filepath.Join(home, "pkgs")}, cfg.PackageDirs)
			},
		},
		{
			name:   "json_config",
			file:   "runmerge.json",
			config: `{"runs_dir": "/r", "vcs": ["git"], "exclude": ["a/**"]}`,
			check: func(t *testing.T, dir string, cfg *Config) {
				assert.Equal(t, "/r", cfg.RunsDir)
				assert.Equal(t, []string{"a/**"}, cfg.Exclude)
			},
		},
		{
			name:        "unknown_yaml_field",
			file:        "runmerge.yaml",
			config:      "destination: x\n",
			wantErr:     true,
			errContains: "parsing YAML",
		},
		{
			name:        "unknown_json_field",
			file:        "runmerge.json",
			config:      `{"provider": {}}`,
			wantErr:     true,
			errContains: "parsing JSON",
		},
		{
			name:        "unknown_hcl_attribute",
			file:        "runmerge.hcl",
			config:      `destination = "x"`,
			wantErr:     true,
			errContains: "decoding HCL",
		},
		{
			name:        "bad_preview",
			file:        "runmerge.yaml",
			config:      "preview: verbose\n",
			wantErr:     true,
			errContains: `preview must be "summary" or "detail"`,
		},
		{
			name:        "bad_exclude",
			file:        "runmerge.yaml",
			config:      "exclude: ['[unclosed']\n",
			wantErr:     true,
			errContains: "invalid exclude pattern",
		},
		{
			name:        "duplicate_vcs",
			file:        "runmerge.yaml",
			config:      "vcs: [git, git]\n",
			wantErr:     true,
			errContains: `vcs scheme "git" listed twice`,
		},
		{
			name:        "unsupported_extension",
			file:        "runmerge.toml",
			config:      "runs_dir = 'x'",
			wantErr:     true,
			errContains: "no parser found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			ctx := testContext(t)
			dir := t.TempDir()
			path := filepath.Join(dir, tt.file)
			require.NoError(t, os.WriteFile(path, []byte(tt.config), 0644))

			cfg, err := Load(ctx, path)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errContains)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, path, cfg.Location())
			tt.check(t, dir, cfg)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	cfg, err := Load(testContext(t), filepath.Join(dir, DefaultFileName))
	require.NoError(t, err)
	assert.Empty(t, cfg.Location())
	assert.Equal(t, "runs", cfg.RunsDir)
	assert.Equal(t, []string{"git"}, cfg.VCS)
}

func TestEnvOverrides(t *testing.T) {
	t.Run("dotenv_file", func(t *testing.T) {
		clearEnv(t)
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("RUNMERGE_RUNS_DIR=/env/runs\nRUNMERGE_GIT=/opt/git\n"), 0644))
		path := filepath.Join(dir, "runmerge.yaml")
		require.NoError(t, os.WriteFile(path, []byte("runs_dir: /file/runs\n"), 0644))

		cfg, err := Load(testContext(t), path)
		require.NoError(t, err)
		assert.Equal(t, "/env/runs", cfg.RunsDir)
		assert.Equal(t, "/opt/git", cfg.GitBinary)
	})

	t.Run("process_env_wins", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("RUNMERGE_RUNS_DIR=/env/runs\n"), 0644))
		t.Setenv(EnvRunsDir, "/process/runs")
		t.Setenv(EnvGit, "")

		cfg, err := Load(testContext(t), filepath.Join(dir, DefaultFileName))
		require.NoError(t, err)
		assert.Equal(t, "/process/runs", cfg.RunsDir)
		assert.Equal(t, "git", cfg.GitBinary, "empty values do not override")
	})
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "runs", cfg.RunsDir)
	assert.Equal(t, PreviewSummary, cfg.Preview)
	assert.Equal(t, "runs=runs vcs=git preview=summary", cfg.String())
}
