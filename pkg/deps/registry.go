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

package deps

import (
	"strings"
)

// 🏷️ Namespace maps installed package project names to the names used in
// dependency specs
type Namespace struct {
	Name string
	// Transform returns the spec name for a project name, or false when the
	// project does not belong to the namespace
	Transform func(projectName string) (string, bool)
}

// PrefixNamespace strips prefix from project names, e.g. "gpkg." makes
// "gpkg.mnist" available as "mnist"
func PrefixNamespace(name, prefix string) Namespace {
	return Namespace{
		Name: name,
		Transform: func(projectName string) (string, bool) {
			return strings.CutPrefix(projectName, prefix)
		},
	}
}

// IdentityNamespace uses project names unchanged
func IdentityNamespace(name string) Namespace {
	return Namespace{
		Name: name,
		Transform: func(projectName string) (string, bool) {
			return projectName, true
		},
	}
}

// DefaultNamespaces lists the gpkg namespace before plain project names
func DefaultNamespaces() []Namespace {
	return []Namespace{
		PrefixNamespace("gpkg", "gpkg."),
		IdentityNamespace("pypi"),
	}
}

// 📦 Package is an installed package exporting resources
type Package struct {
	// ProjectName is the package's declared project name
	ProjectName string
	// Dir is the directory file sources resolve against
	Dir       string
	Resources []*Resource
}

// Resource returns the named exported resource, or nil
func (p *Package) Resource(name string) *Resource {
	for _, r := range p.Resources {
		if r.Name == name {
			return r
		}
	}
	return nil
}

// 🗺️ Registry holds the installed packages and namespaces used to resolve
// package qualified dependencies
type Registry struct {
	namespaces []Namespace
	packages   []*Package
}

// NewRegistry creates a registry. Namespaces are tried in order.
func NewRegistry(namespaces ...Namespace) *Registry {
	return &Registry{namespaces: namespaces}
}

// AddPackage registers an installed package
func (r *Registry) AddPackage(p *Package) {
	r.packages = append(r.packages, p)
}

// Packages returns the registered packages in registration order
func (r *Registry) Packages() []*Package {
	return r.packages
}

// Lookup finds resource res exported by the package a spec calls pkgName
func (r *Registry) Lookup(pkgName, res string) (*Package, *Resource, bool) {
	if r == nil {
		return nil, nil, false
	}
	for _, ns := range r.namespaces {
		for _, p := range r.packages {
			name, ok := ns.Transform(p.ProjectName)
			if !ok || name != pkgName {
				continue
			}
			if found := p.Resource(res); found != nil {
				return p, found, true
			}
		}
	}
	return nil, nil, false
}
