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
	"context"
	"fmt"
	"strings"
)

// 🔘 Node is a step in a dependency graph. The set of node types is closed;
// use a Visitor to act on them.
type Node interface {
	// ID identifies the node within a graph
	ID() string
	Description() string
	// Deps lists the nodes that must run before this one
	Deps() []Node
	accept(ctx context.Context, v Visitor) error
}

// 👣 Visitor handles each node type
type Visitor interface {
	VisitInitOp(ctx context.Context, n *InitOpNode) error
	VisitOp(ctx context.Context, n *OpNode) error
	VisitResource(ctx context.Context, n *ResourceNode) error
	VisitFile(ctx context.Context, n *FileNode) error
	VisitURL(ctx context.Context, n *URLNode) error
}

// Visit dispatches n to v
func Visit(ctx context.Context, n Node, v Visitor) error {
	return n.accept(ctx, v)
}

// ResolvedResource is a resource found for a dependency spec
type ResolvedResource struct {
	Spec     string
	Owner    string
	Resource *Resource
	// Dir is the directory file sources resolve against
	Dir string
}

// ⚙️ OpNode runs an operation after its init node and resources
type OpNode struct {
	Model     string
	Op        *Operation
	Resources []ResolvedResource

	init *InitOpNode
}

// Name returns "model:op", or "op" for the anonymous model
func (n *OpNode) Name() string {
	if n.Model == "" {
		return n.Op.Name
	}
	return n.Model + ":" + n.Op.Name
}

func (n *OpNode) ID() string { return "op:" + n.Name() }

func (n *OpNode) Description() string { return "run " + n.Name() }

// Init returns the node that initializes the operation
func (n *OpNode) Init() *InitOpNode {
	if n.init == nil {
		n.init = &InitOpNode{Op: n}
	}
	return n.init
}

func (n *OpNode) Deps() []Node {
	out := []Node{n.Init()}
	for _, r := range n.Resources {
		out = append(out, &ResourceNode{Op: n, Resolved: r})
	}
	return out
}

func (n *OpNode) accept(ctx context.Context, v Visitor) error { return v.VisitOp(ctx, n) }

// 🏁 InitOpNode prepares an operation before its resources resolve
type InitOpNode struct {
	Op *OpNode
}

func (n *InitOpNode) ID() string { return "init:" + n.Op.Name() }

func (n *InitOpNode) Description() string { return "initialize " + n.Op.Name() }

func (n *InitOpNode) Deps() []Node { return nil }

func (n *InitOpNode) accept(ctx context.Context, v Visitor) error { return v.VisitInitOp(ctx, n) }

// 📦 ResourceNode resolves one dependency of an operation
type ResourceNode struct {
	Op       *OpNode
	Resolved ResolvedResource
}

func (n *ResourceNode) ID() string {
	return fmt.Sprintf("resource:%s:%s/%s", n.Op.Name(), n.Resolved.Owner, n.Resolved.Resource.Name)
}

func (n *ResourceNode) Description() string {
	return fmt.Sprintf("resolve %s", n.Resolved.Spec)
}

// Deps returns the init node followed by one node per source. Sources are
// validated when the project is loaded; an unknown scheme here is a bug.
func (n *ResourceNode) Deps() []Node {
	out := []Node{n.Op.Init()}
	for _, src := range n.Resolved.Resource.Sources {
		kind, err := src.Kind()
		if err != nil {
			panic(fmt.Sprintf("resource %s: %v", n.Resolved.Spec, err))
		}
		switch kind {
		case SourceFile:
			out = append(out, &FileNode{Resource: n, Source: src})
		case SourceURL:
			out = append(out, &URLNode{Resource: n, Source: src})
		}
	}
	return out
}

func (n *ResourceNode) accept(ctx context.Context, v Visitor) error { return v.VisitResource(ctx, n) }

// 📄 FileNode resolves a file source
type FileNode struct {
	Resource *ResourceNode
	Source   Source
}

func (n *FileNode) ID() string { return n.Resource.ID() + "|file:" + n.Source.Path() }

func (n *FileNode) Description() string {
	return fmt.Sprintf("file %s for %s", n.Source.Path(), n.Resource.Resolved.Spec)
}

func (n *FileNode) Deps() []Node { return nil }

func (n *FileNode) accept(ctx context.Context, v Visitor) error { return v.VisitFile(ctx, n) }

// 🌐 URLNode resolves a URL source
type URLNode struct {
	Resource *ResourceNode
	Source   Source
}

func (n *URLNode) ID() string { return n.Resource.ID() + "|url:" + n.Source.URI }

func (n *URLNode) Description() string {
	return fmt.Sprintf("download %s for %s", n.Source.URI, n.Resource.Resolved.Spec)
}

func (n *URLNode) Deps() []Node { return nil }

func (n *URLNode) accept(ctx context.Context, v Visitor) error { return v.VisitURL(ctx, n) }

// 🔍 NewOpNode resolves every dependency of model:op. A spec is looked up as
// a resource of the operation's own model, then as "model:resource" in the
// same project, then as "package/resource" in reg. reg may be nil.
func NewOpNode(proj *Project, reg *Registry, model, op string) (*OpNode, error) {
	m := proj.Model(model)
	if m == nil {
		return nil, newDependencyError(qualified(model, op), "", fmt.Sprintf("no model %q in project", model))
	}
	o := m.Operation(op)
	if o == nil {
		return nil, newDependencyError(qualified(model, op), "", fmt.Sprintf("no operation %q in model %q", op, model))
	}

	node := &OpNode{Model: model, Op: o}
	for _, spec := range o.Dependencies {
		res, ok := resolveSpec(proj, reg, m, spec)
		if !ok {
			return nil, newDependencyError(node.Name(), spec, "no such resource")
		}
		node.Resources = append(node.Resources, res)
	}
	return node, nil
}

func resolveSpec(proj *Project, reg *Registry, m *Model, spec string) (ResolvedResource, bool) {
	if pkgName, resName, ok := strings.Cut(spec, "/"); ok {
		pkg, res, found := reg.Lookup(pkgName, resName)
		if !found {
			return ResolvedResource{}, false
		}
		return ResolvedResource{Spec: spec, Owner: pkg.ProjectName, Resource: res, Dir: pkg.Dir}, true
	}
	if modelName, resName, ok := strings.Cut(spec, ":"); ok {
		other := proj.Model(modelName)
		if other == nil {
			return ResolvedResource{}, false
		}
		res := other.Resource(resName)
		if res == nil {
			return ResolvedResource{}, false
		}
		return ResolvedResource{Spec: spec, Owner: other.Name, Resource: res, Dir: proj.Dir}, true
	}
	res := m.Resource(spec)
	if res == nil {
		return ResolvedResource{}, false
	}
	return ResolvedResource{Spec: spec, Owner: m.Name, Resource: res, Dir: proj.Dir}, true
}

func qualified(model, op string) string {
	if model == "" {
		return op
	}
	return model + ":" + op
}
