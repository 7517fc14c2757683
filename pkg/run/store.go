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

package run

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
	"golang.org/x/sync/errgroup"
)

const listConcurrency = 8

// 🗄️ Store is a directory of runs, one subdirectory per run id
type Store struct {
	Root string
}

// NewStore creates a store rooted at dir
func NewStore(dir string) *Store {
	return &Store{Root: filepath.Clean(dir)}
}

// NewID returns a new run id (a dashless uuid)
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// IsID reports whether name looks like a run id
func IsID(name string) bool {
	if len(name) != 32 {
		return false
	}
	_, err := uuid.Parse(name)
	return err == nil
}

func (s *Store) ids() ([]string, error) {
	entries, err := os.ReadDir(s.Root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Errorf("reading runs directory: %w", err)
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() && IsID(e.Name()) {
			ids = append(ids, e.Name())
		}
	}
	return ids, nil
}

// 📋 List loads every run in the store, newest first
func (s *Store) List(ctx context.Context) ([]*Run, error) {
	ids, err := s.ids()
	if err != nil {
		return nil, err
	}

	runs := make([]*Run, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(listConcurrency)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			r, err := Load(gctx, filepath.Join(s.Root, id))
			if err != nil {
				return errors.Errorf("loading run %s: %w", id, err)
			}
			runs[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.SliceStable(runs, func(i, j int) bool {
		if !runs[i].Started.Equal(runs[j].Started) {
			return runs[i].Started.After(runs[j].Started)
		}
		return runs[i].ID < runs[j].ID
	})
	return runs, nil
}

// 🔍 Find resolves a run by id or unique id prefix
func (s *Store) Find(ctx context.Context, prefix string) (*Run, error) {
	if prefix == "" {
		return nil, errors.Errorf("empty run id: %w", ErrNotFound)
	}
	ids, err := s.ids()
	if err != nil {
		return nil, err
	}
	var matches []string
	for _, id := range ids {
		if strings.HasPrefix(id, prefix) {
			matches = append(matches, id)
		}
	}
	switch len(matches) {
	case 0:
		return nil, errors.Errorf("no run matching %q in %s: %w", prefix, s.Root, ErrNotFound)
	case 1:
		return Load(ctx, filepath.Join(s.Root, matches[0]))
	default:
		sort.Strings(matches)
		return nil, errors.Errorf("%q matches %d runs (%s), use a longer prefix", prefix, len(matches), strings.Join(matches, ", "))
	}
}

// CreateOptions describes a run to record
type CreateOptions struct {
	OpRef      OpRef
	Label      string
	SourceCode SourceCodeSpec
	Started    time.Time
}

// ✨ Create records a new, running run and returns it
func (s *Store) Create(ctx context.Context, opts CreateOptions) (*Run, error) {
	id := NewID()
	dir := filepath.Join(s.Root, id)
	if err := os.MkdirAll(filepath.Join(dir, MetaDir, attrsDir), 0755); err != nil {
		return nil, errors.Errorf("creating run directory: %w", err)
	}

	started := opts.Started
	if started.IsZero() {
		started = time.Now().UTC()
	}

	r := &Run{
		ID:         id,
		Dir:        dir,
		OpRef:      opts.OpRef,
		Started:    started,
		Label:      opts.Label,
		SourceCode: opts.SourceCode,
	}
	if err := r.WriteAttr("opref", r.OpRef); err != nil {
		return nil, err
	}
	if err := r.WriteAttr("started", r.Started); err != nil {
		return nil, err
	}
	if r.Label != "" {
		if err := r.WriteAttr("label", r.Label); err != nil {
			return nil, err
		}
	}
	if len(r.SourceCode.Rules) > 0 || r.SourceCode.Disabled {
		if err := r.WriteAttr("sourcecode", r.SourceCode); err != nil {
			return nil, err
		}
	}

	zerolog.Ctx(ctx).Debug().Str("run", id).Str("opref", r.OpRef.String()).Msg("created run")
	return r, nil
}

// Finish marks a run as stopped with the given exit status
func (r *Run) Finish(exitStatus int, stopped time.Time) error {
	if stopped.IsZero() {
		stopped = time.Now().UTC()
	}
	if err := r.WriteAttr("stopped", stopped); err != nil {
		return err
	}
	if err := r.WriteAttr("exit_status", exitStatus); err != nil {
		return err
	}
	r.Stopped = stopped
	r.ExitStatus = &exitStatus
	return nil
}
