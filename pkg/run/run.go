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
	"time"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
	"gopkg.in/yaml.v3"
)

// ErrNotFound is returned when a run directory or run id cannot be resolved
var ErrNotFound = errors.Base("run not found")

const (
	// MetaDir is the run-relative directory holding run metadata
	MetaDir = ".guild"

	attrsDir     = "attrs"
	manifestFile = "manifest"
)

// 📦 PkgType identifies where an operation was defined
type PkgType string

const (
	PkgGuildfile PkgType = "guildfile"
	PkgScript    PkgType = "script"
	PkgPackage   PkgType = "package"
)

// 🔗 OpRef references the operation that produced a run
type OpRef struct {
	PkgType    PkgType `yaml:"pkg_type"`
	PkgName    string  `yaml:"pkg_name"`
	PkgVersion string  `yaml:"pkg_version,omitempty"`
	ModelName  string  `yaml:"model_name,omitempty"`
	OpName     string  `yaml:"op_name"`
}

// String returns the operation as "model:op", or "op" for anonymous models
func (o OpRef) String() string {
	if o.ModelName == "" {
		return o.OpName
	}
	return o.ModelName + ":" + o.OpName
}

// 🎯 SelectRule is a single include/exclude glob of a source code selection
type SelectRule struct {
	Exclude bool   `yaml:"exclude,omitempty"`
	Pattern string `yaml:"pattern"`
}

// 🧾 SourceCodeSpec is the operation's declared source code selection.
// Rules are applied in order and the last match wins. With no matching rule
// a file is selected.
type SourceCodeSpec struct {
	Disabled bool         `yaml:"disabled,omitempty"`
	Rules    []SelectRule `yaml:"select,omitempty"`
}

// 🏃 Run is a completed or in-progress run read from disk
type Run struct {
	ID         string
	Dir        string
	OpRef      OpRef
	Started    time.Time
	Stopped    time.Time
	ExitStatus *int
	Label      string
	SourceCode SourceCodeSpec
}

// Status derives the run status from its attributes
func (r *Run) Status() string {
	switch {
	case r.Stopped.IsZero():
		return "running"
	case r.ExitStatus == nil:
		return "completed"
	case *r.ExitStatus == 0:
		return "completed"
	case *r.ExitStatus < 0:
		return "terminated"
	default:
		return "error"
	}
}

// ShortID returns the first eight characters of the run id
func (r *Run) ShortID() string {
	if len(r.ID) <= 8 {
		return r.ID
	}
	return r.ID[:8]
}

// Path returns the absolute path of a run-relative path
func (r *Run) Path(rel string) string {
	return filepath.Join(r.Dir, filepath.FromSlash(rel))
}

func (r *Run) metaPath(parts ...string) string {
	return filepath.Join(append([]string{r.Dir, MetaDir}, parts...)...)
}

// 📂 Load reads the run stored in dir. The run id is the directory name.
func Load(ctx context.Context, dir string) (*Run, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Errorf("%s: %w", dir, ErrNotFound)
		}
		return nil, errors.Errorf("reading run directory: %w", err)
	}
	if !info.IsDir() {
		return nil, errors.Errorf("%s is not a directory: %w", dir, ErrNotFound)
	}

	r := &Run{
		ID:  filepath.Base(dir),
		Dir: dir,
	}

	attrs := []struct {
		name string
		dst  any
	}{
		{"opref", &r.OpRef},
		{"started", &r.Started},
		{"stopped", &r.Stopped},
		{"exit_status", &r.ExitStatus},
		{"label", &r.Label},
		{"sourcecode", &r.SourceCode},
	}
	for _, a := range attrs {
		if err := r.readAttr(a.name, a.dst); err != nil {
			return nil, err
		}
	}

	zerolog.Ctx(ctx).Debug().Str("run", r.ID).Str("opref", r.OpRef.String()).Msg("loaded run")
	return r, nil
}

func (r *Run) readAttr(name string, dst any) error {
	data, err := os.ReadFile(r.metaPath(attrsDir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Errorf("reading attr %s: %w", name, err)
	}
	if err := yaml.Unmarshal(data, dst); err != nil {
		return errors.Errorf("parsing attr %s: %w", name, err)
	}
	return nil
}

// WriteAttr stores a YAML encoded run attribute
func (r *Run) WriteAttr(name string, v any) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return errors.Errorf("encoding attr %s: %w", name, err)
	}
	path := r.metaPath(attrsDir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Errorf("creating attrs directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.Errorf("writing attr %s: %w", name, err)
	}
	return nil
}
