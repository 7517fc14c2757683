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

package vcs

import (
	"bytes"
	"context"
	"io/fs"
	"os"
	"os/exec"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
)

// 🐙 Git reads status from a git working copy using the git binary
type Git struct {
	// Binary is the git executable, "git" when empty
	Binary string
}

// NewGit creates a git provider using binary
func NewGit(binary string) *Git {
	return &Git{Binary: binary}
}

func (g *Git) Scheme() string { return "git" }

func (g *Git) binary() string {
	if g.Binary == "" {
		return "git"
	}
	return g.Binary
}

// run executes git non-interactively in dir. Only exit code 0 is accepted.
func (g *Git) run(ctx context.Context, dir string, args ...string) ([]byte, error) {
	full := append([]string{"-C", dir, "--no-pager"}, args...)
	cmd := exec.CommandContext(ctx, g.binary(), full...)
	cmd.Env = append(os.Environ(),
		"GIT_TERMINAL_PROMPT=0",
		"GIT_PAGER=cat",
		"GIT_OPTIONAL_LOCKS=0",
		"LC_ALL=C",
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	zerolog.Ctx(ctx).Trace().Strs("args", full).Msg("running git")

	err := cmd.Run()
	if err == nil {
		return stdout.Bytes(), nil
	}
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
		return nil, errors.Errorf("%s not installed: %w", g.binary(), ErrUnsupportedRepo)
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		cerr := &CommandError{
			Scheme:   g.Scheme(),
			Args:     args,
			ExitCode: exitErr.ExitCode(),
			Stderr:   stderr.String(),
			Err:      err,
		}
		if isNotRepo(cerr) {
			return nil, errors.Errorf("%s: %w", strings.TrimSpace(cerr.Stderr), ErrUnsupportedRepo)
		}
		return nil, errors.WithStack(cerr)
	}
	return nil, errors.Errorf("running git: %w", err)
}

func isNotRepo(e *CommandError) bool {
	return e.ExitCode == 128 && strings.Contains(strings.ToLower(e.Stderr), "not a git repository")
}

// prefix returns the path of dir relative to the repository root, with a
// trailing slash, or "" at the root
func (g *Git) prefix(ctx context.Context, dir string) (string, error) {
	out, err := g.run(ctx, dir, "rev-parse", "--is-inside-work-tree", "--show-prefix")
	if err != nil {
		return "", err
	}
	lines := strings.Split(strings.TrimRight(string(out), "\n"), "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != "true" {
		return "", errors.Errorf("%s is not inside a work tree: %w", dir, ErrUnsupportedRepo)
	}
	if len(lines) > 1 {
		return strings.TrimSpace(lines[1]), nil
	}
	return "", nil
}

// 📊 Status lists non-clean paths under dir using porcelain v1 output
func (g *Git) Status(ctx context.Context, dir string) ([]FileStatus, error) {
	prefix, err := g.prefix(ctx, dir)
	if err != nil {
		return nil, err
	}
	out, err := g.run(ctx, dir, "status", "--porcelain=v1", "-z", "--untracked-files=all", "--", ".")
	if err != nil {
		return nil, err
	}
	return parsePorcelain(out, prefix), nil
}

// parsePorcelain parses NUL separated "XY path" records. Rename and copy
// records are followed by the original path, which is dropped. Paths are
// made relative to prefix; paths outside it are ignored.
func parsePorcelain(out []byte, prefix string) []FileStatus {
	var result []FileStatus
	records := strings.Split(string(out), "\x00")
	for i := 0; i < len(records); i++ {
		rec := records[i]
		if len(rec) < 4 {
			continue
		}
		code := rec[:2]
		p := rec[3:]
		if code[0] == 'R' || code[0] == 'C' {
			i++
		}
		if !strings.HasPrefix(p, prefix) {
			continue
		}
		result = append(result, FileStatus{
			Path: strings.TrimPrefix(p, prefix),
			Code: strings.ReplaceAll(code, " ", "_"),
		})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Path < result[j].Path })
	return result
}

// 📋 LsFiles lists tracked and untracked, non-ignored files under dir
func (g *Git) LsFiles(ctx context.Context, dir string) ([]string, error) {
	if _, err := g.prefix(ctx, dir); err != nil {
		return nil, err
	}
	out, err := g.run(ctx, dir, "ls-files", "-z", "--cached", "--others", "--exclude-standard")
	if err != nil {
		return nil, err
	}
	seen := map[string]struct{}{}
	var files []string
	for _, p := range strings.Split(string(out), "\x00") {
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		files = append(files, p)
	}
	sort.Strings(files)
	return files, nil
}
