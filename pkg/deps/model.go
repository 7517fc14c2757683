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

// Package deps orders the resources an operation needs before it runs.
//
// A graph is built from an operation node: an implicit init node, one
// resource node per declared dependency and one file or URL node per resource
// source. Dependencies are resolved against the operation's own model, other
// models in the same project file, and installed packages.
package deps

import (
	"fmt"
	"net/url"
	"strings"

	"gitlab.com/tozd/go/errors"
)

// 📁 Project is a parsed project file
type Project struct {
	// Dir is the directory file sources resolve against
	Dir    string
	Models []*Model
}

// Model returns the named model, or nil
func (p *Project) Model(name string) *Model {
	for _, m := range p.Models {
		if m.Name == name {
			return m
		}
	}
	return nil
}

// 🧩 Model groups operations and the resources they can depend on
type Model struct {
	Name       string
	Operations []*Operation
	Resources  []*Resource
}

// Operation returns the named operation, or nil
func (m *Model) Operation(name string) *Operation {
	for _, op := range m.Operations {
		if op.Name == name {
			return op
		}
	}
	return nil
}

// Resource returns the named resource, or nil
func (m *Model) Resource(name string) *Resource {
	for _, r := range m.Resources {
		if r.Name == name {
			return r
		}
	}
	return nil
}

// ⚙️ Operation is a runnable operation with resource dependencies
type Operation struct {
	Name string
	// Dependencies are resource specs: "name", "model:name" or "pkg/name"
	Dependencies []string
}

// 📦 Resource is a named set of sources
type Resource struct {
	Name    string
	Sources []Source
}

// 🔗 Source is one location a resource is resolved from
type Source struct {
	// URI is a path ("data.csv" or "file:data.csv") or an http(s) URL
	URI    string
	SHA256 string
	// Target renames the resolved file in the run directory
	Target string
}

// SourceKind is the kind of location a source points at
type SourceKind int

const (
	SourceFile SourceKind = iota
	SourceURL
)

// Kind classifies the source by URI scheme
func (s Source) Kind() (SourceKind, error) {
	scheme, _, ok := strings.Cut(s.URI, ":")
	if !ok || len(scheme) == 1 || strings.ContainsAny(scheme, "/\\") {
		// no scheme, or a windows drive letter
		return SourceFile, nil
	}
	switch strings.ToLower(scheme) {
	case "file":
		return SourceFile, nil
	case "http", "https":
		return SourceURL, nil
	default:
		return 0, errors.Errorf("unsupported source scheme %q in %s", scheme, s.URI)
	}
}

// Path returns the file path of a file source
func (s Source) Path() string {
	p := strings.TrimPrefix(s.URI, "file:")
	return strings.TrimPrefix(p, "//")
}

// Validate checks that the URI can be resolved
func (s Source) Validate() error {
	if s.URI == "" {
		return errors.New("source has no URI")
	}
	kind, err := s.Kind()
	if err != nil {
		return err
	}
	if kind == SourceURL {
		u, err := url.Parse(s.URI)
		if err != nil || u.Host == "" {
			return errors.Errorf("invalid source URL %q", s.URI)
		}
	}
	return nil
}

// ❌ DependencyError is an operation dependency that cannot be met
type DependencyError struct {
	Op     string
	Spec   string
	Reason string
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("dependency %q of operation %s not met: %s", e.Spec, e.Op, e.Reason)
}

func newDependencyError(op, spec, reason string) error {
	return errors.WithStack(&DependencyError{Op: op, Spec: spec, Reason: reason})
}
