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

// Package vcs reads working copy status from version control tools.
package vcs

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
)

// ErrUnsupportedRepo means no recognised VCS metadata was found for a directory.
// It is the only error that lets callers fall back to non-VCS behavior.
var ErrUnsupportedRepo = errors.Base("unsupported repository")

// 📊 FileStatus is the VCS status of one path. Code has two characters;
// the second is '_' when the working copy matches the index.
type FileStatus struct {
	Path string
	Code string
}

// Unstaged reports whether the path has changes the VCS has not recorded
func (s FileStatus) Unstaged() bool {
	return len(s.Code) < 2 || s.Code[1] != '_'
}

// 🔌 Provider queries one VCS scheme. Paths are slash separated and relative
// to the queried directory.
type Provider interface {
	// Scheme returns the VCS name, e.g. "git"
	Scheme() string
	// Status lists paths with a non-clean status
	Status(ctx context.Context, dir string) ([]FileStatus, error)
	// LsFiles lists tracked and untracked, non-ignored paths
	LsFiles(ctx context.Context, dir string) ([]string, error)
}

// ⚠️ CommandError is a VCS tool failing for a reason other than a missing repository
type CommandError struct {
	Scheme   string
	Args     []string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("%s %s exited with %d", e.Scheme, strings.Join(e.Args, " "), e.ExitCode)
	if stderr := strings.TrimSpace(e.Stderr); stderr != "" {
		msg += ": " + stderr
	}
	return msg
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// 🗺️ Registry tries an ordered list of providers and uses the first one that
// recognises the directory. It implements Provider.
type Registry struct {
	providers []Provider
}

// NewRegistry creates a registry over providers, tried in order
func NewRegistry(providers ...Provider) *Registry {
	return &Registry{providers: providers}
}

// Schemes lists registered schemes in lookup order
func (r *Registry) Schemes() []string {
	out := make([]string, 0, len(r.providers))
	for _, p := range r.providers {
		out = append(out, p.Scheme())
	}
	return out
}

func (r *Registry) Scheme() string {
	return strings.Join(r.Schemes(), ",")
}

func (r *Registry) Status(ctx context.Context, dir string) ([]FileStatus, error) {
	for _, p := range r.providers {
		status, err := p.Status(ctx, dir)
		if errors.Is(err, ErrUnsupportedRepo) {
			zerolog.Ctx(ctx).Debug().Str("scheme", p.Scheme()).Str("dir", dir).Msg("not a working copy")
			continue
		}
		if err != nil {
			return nil, errors.Errorf("%s status: %w", p.Scheme(), err)
		}
		return status, nil
	}
	return nil, errors.Errorf("%s: %w", dir, ErrUnsupportedRepo)
}

func (r *Registry) LsFiles(ctx context.Context, dir string) ([]string, error) {
	for _, p := range r.providers {
		files, err := p.LsFiles(ctx, dir)
		if errors.Is(err, ErrUnsupportedRepo) {
			continue
		}
		if err != nil {
			return nil, errors.Errorf("%s ls-files: %w", p.Scheme(), err)
		}
		return files, nil
	}
	return nil, errors.Errorf("%s: %w", dir, ErrUnsupportedRepo)
}
