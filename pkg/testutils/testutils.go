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

// Package testutils builds run, project and git fixtures for tests.
package testutils

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/walteh/runmerge/pkg/run"
	"github.com/walteh/runmerge/pkg/vcs"
)

// Context returns a context carrying a test logger
func Context(t testing.TB) context.Context {
	t.Helper()
	return zerolog.New(zerolog.NewTestWriter(t)).With().Timestamp().Logger().WithContext(context.Background())
}

// WriteFiles writes slash separated paths with their content under dir
func WriteFiles(t testing.TB, dir string, files map[string]string) {
	t.Helper()
	for p, content := range files {
		full := filepath.Join(dir, filepath.FromSlash(p))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0755), "creating parent of %s", p)
		require.NoError(t, os.WriteFile(full, []byte(content), 0644), "writing %s", p)
	}
}

// ReadFile returns the content of a slash separated path under dir
func ReadFile(t testing.TB, dir, p string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(p)))
	require.NoError(t, err, "reading %s", p)
	return string(data)
}

// 🏃 RunFixture describes a finished run to create
type RunFixture struct {
	OpRef      run.OpRef
	Label      string
	SourceCode run.SourceCodeSpec
	// Files are written into the run directory
	Files map[string]string
	// Manifest is written as the run manifest when not nil
	Manifest   []run.ManifestEntry
	ExitStatus int
	Started    time.Time
}

// NewRun records a finished run in a store rooted at root
func NewRun(t testing.TB, root string, fx RunFixture) *run.Run {
	t.Helper()
	ctx := Context(t)

	started := fx.Started
	if started.IsZero() {
		started = time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	}
	r, err := run.NewStore(root).Create(ctx, run.CreateOptions{
		OpRef:      fx.OpRef,
		Label:      fx.Label,
		SourceCode: fx.SourceCode,
		Started:    started,
	})
	require.NoError(t, err, "creating run")

	WriteFiles(t, r.Dir, fx.Files)
	if fx.Manifest != nil {
		require.NoError(t, r.WriteManifest(fx.Manifest), "writing manifest")
	}
	require.NoError(t, r.Finish(fx.ExitStatus, started.Add(time.Minute)), "finishing run")
	return r
}

// HasGit reports whether a git binary is available
func HasGit() bool {
	_, err := exec.LookPath("git")
	return err == nil
}

// Git runs git in dir and fails the test on error
func Git(t testing.TB, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", append([]string{"-C", dir}, args...)...)
	cmd.Env = append(os.Environ(),
		"GIT_TERMINAL_PROMPT=0",
		"GIT_AUTHOR_NAME=test",
		"GIT_AUTHOR_EMAIL=test@example.com",
		"GIT_COMMITTER_NAME=test",
		"GIT_COMMITTER_EMAIL=test@example.com",
		"GIT_CONFIG_NOSYSTEM=1",
		"HOME="+dir,
	)
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "git %v: %s", args, out)
	return string(out)
}

// GitRepo creates an empty git repository, skipping the test without git
func GitRepo(t testing.TB) string {
	t.Helper()
	if !HasGit() {
		t.Skip("git not installed")
	}
	dir := t.TempDir()
	Git(t, dir, "init", "-q")
	return dir
}

// GitCommitAll stages and commits everything in dir
func GitCommitAll(t testing.TB, dir, msg string) {
	t.Helper()
	Git(t, dir, "add", "-A")
	Git(t, dir, "commit", "-q", "-m", msg)
}

// 🎭 MockProvider is a testify mock of vcs.Provider
type MockProvider struct {
	mock.Mock
}

var _ vcs.Provider = (*MockProvider)(nil)

func (m *MockProvider) Scheme() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockProvider) Status(ctx context.Context, dir string) ([]vcs.FileStatus, error) {
	args := m.Called(ctx, dir)
	status, _ := args.Get(0).([]vcs.FileStatus)
	return status, args.Error(1)
}

func (m *MockProvider) LsFiles(ctx context.Context, dir string) ([]string, error) {
	args := m.Called(ctx, dir)
	files, _ := args.Get(0).([]string)
	return files, args.Error(1)
}
