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

// Package project loads project files: the models, operations and
// resources that dependency graphs are built from.
//
// A project file is YAML:
//
//	package:
//	  name: gpkg.mnist
//	  resources:
//	    images:
//	      sources:
//	        - url: https://example.com/images.gz
//	models:
//	  - model: train
//	    operations:
//	      fit:
//	        requires: [data, other:weights, mnist/images]
//	    resources:
//	      data:
//	        sources:
//	          - file: data.csv
//	            sha256: 3a7bd3e2...
package project

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
	"gopkg.in/yaml.v3"

	"github.com/walteh/runmerge/pkg/deps"
)

// DefaultFileName is the project file looked up in a project directory
const DefaultFileName = "guild.yml"

type fileSpec struct {
	Package *packageSpec `yaml:"package"`
	Models  []modelSpec  `yaml:"models"`
}

type packageSpec struct {
	Name      string                  `yaml:"name"`
	Resources map[string]resourceSpec `yaml:"resources"`
}

type modelSpec struct {
	Model      string                   `yaml:"model"`
	Operations map[string]operationSpec `yaml:"operations"`
	Resources  map[string]resourceSpec  `yaml:"resources"`
}

type operationSpec struct {
	Requires []string `yaml:"requires"`
}

type resourceSpec struct {
	Sources []sourceSpec `yaml:"sources"`
}

type sourceSpec struct {
	File   string `yaml:"file"`
	URL    string `yaml:"url"`
	SHA256 string `yaml:"sha256"`
	Target string `yaml:"target-path"`
}

// 📁 File is a loaded project file
type File struct {
	Path    string
	Project *deps.Project
	// Package is set when the file declares an installable package
	Package *deps.Package
}

// 📖 Load reads and validates the project file at path
func Load(ctx context.Context, path string) (*File, error) {
	zerolog.Ctx(ctx).Debug().Str("path", path).Msg("loading project file")

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Errorf("reading project file: %w", err)
	}

	f, err := Parse(data, filepath.Dir(path))
	if err != nil {
		return nil, errors.Errorf("loading %s: %w", path, err)
	}
	f.Path = path
	return f, nil
}

// Parse decodes a project file whose file sources resolve against dir
func Parse(data []byte, dir string) (*File, error) {
	var spec fileSpec
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&spec); err != nil {
		return nil, errors.Errorf("parsing YAML: %w", err)
	}

	dir = filepath.Clean(dir)
	f := &File{Project: &deps.Project{Dir: dir}}

	seen := map[string]bool{}
	for _, ms := range spec.Models {
		if seen[ms.Model] {
			return nil, errors.Errorf("duplicate model %q", ms.Model)
		}
		seen[ms.Model] = true

		m, err := buildModel(ms)
		if err != nil {
			return nil, err
		}
		f.Project.Models = append(f.Project.Models, m)
	}

	if spec.Package != nil {
		if spec.Package.Name == "" {
			return nil, errors.New("package has no name")
		}
		resources, err := buildResources(spec.Package.Resources)
		if err != nil {
			return nil, errors.Errorf("package %s: %w", spec.Package.Name, err)
		}
		f.Package = &deps.Package{ProjectName: spec.Package.Name, Dir: dir, Resources: resources}
	}

	return f, nil
}

func buildModel(ms modelSpec) (*deps.Model, error) {
	m := &deps.Model{Name: ms.Model}

	for _, name := range sortedKeys(ms.Operations) {
		m.Operations = append(m.Operations, &deps.Operation{
			Name:         name,
			Dependencies: ms.Operations[name].Requires,
		})
	}

	resources, err := buildResources(ms.Resources)
	if err != nil {
		return nil, errors.Errorf("model %q: %w", ms.Model, err)
	}
	m.Resources = resources
	return m, nil
}

func buildResources(specs map[string]resourceSpec) ([]*deps.Resource, error) {
	var out []*deps.Resource
	for _, name := range sortedKeys(specs) {
		r := &deps.Resource{Name: name}
		for i, ss := range specs[name].Sources {
			src, err := ss.source()
			if err != nil {
				return nil, errors.Errorf("resource %s source %d: %w", name, i, err)
			}
			r.Sources = append(r.Sources, src)
		}
		out = append(out, r)
	}
	return out, nil
}

func (s sourceSpec) source() (deps.Source, error) {
	var uri string
	switch {
	case s.File != "" && s.URL != "":
		return deps.Source{}, errors.New("source has both file and url")
	case s.File != "":
		uri = "file:" + s.File
	case s.URL != "":
		uri = s.URL
	}

	src := deps.Source{URI: uri, SHA256: s.SHA256, Target: s.Target}
	if err := src.Validate(); err != nil {
		return deps.Source{}, err
	}
	if s.URL != "" {
		if kind, _ := src.Kind(); kind != deps.SourceURL {
			return deps.Source{}, errors.Errorf("url source %q is not http(s)", s.URL)
		}
	}
	return src, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
