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
	"container/heap"
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
)

// 🔁 CycleError reports one cycle found in a graph, as node ids in edge
// order with the first id repeated at the end
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle: %s", strings.Join(e.Path, " -> "))
}

// 🕸️ Graph orders nodes so that every dependency runs before its dependents.
// Nodes are deduplicated by ID and ties are broken by insertion order.
type Graph struct {
	nodes    []Node
	index    map[string]int
	outgoing [][]int // dependency -> dependents
	edges    map[[2]int]struct{}
}

// NewGraph creates an empty graph
func NewGraph() *Graph {
	return &Graph{
		index: map[string]int{},
		edges: map[[2]int]struct{}{},
	}
}

// Len returns the number of nodes
func (g *Graph) Len() int {
	return len(g.nodes)
}

// ➕ AddNode adds n. With withDeps, every transitive dependency is added too,
// with an edge from each dependency to its dependent.
func (g *Graph) AddNode(n Node, withDeps bool) {
	i := g.add(n)
	if !withDeps {
		return
	}
	for _, dep := range n.Deps() {
		_, seen := g.index[dep.ID()]
		g.AddNode(dep, !seen)
		g.addEdge(g.index[dep.ID()], i)
	}
}

// AddEdge orders dep before dependent, adding either node if missing
func (g *Graph) AddEdge(dep, dependent Node) {
	g.addEdge(g.add(dep), g.add(dependent))
}

func (g *Graph) add(n Node) int {
	if i, ok := g.index[n.ID()]; ok {
		return i
	}
	i := len(g.nodes)
	g.nodes = append(g.nodes, n)
	g.index[n.ID()] = i
	g.outgoing = append(g.outgoing, nil)
	return i
}

func (g *Graph) addEdge(from, to int) {
	key := [2]int{from, to}
	if _, ok := g.edges[key]; ok {
		return
	}
	g.edges[key] = struct{}{}
	g.outgoing[from] = append(g.outgoing[from], to)
}

// 📋 RunOrder returns every node with dependencies strictly before their
// dependents. A cycle is returned as a *CycleError.
func (g *Graph) RunOrder() ([]Node, error) {
	order := g.topoOrder()
	if len(order) != len(g.nodes) {
		return nil, errors.WithStack(&CycleError{Path: g.findCycle()})
	}
	out := make([]Node, 0, len(order))
	for _, i := range order {
		out = append(out, g.nodes[i])
	}
	return out, nil
}

// 👀 PreviewOrder returns the run order for display, with nodes sharing a
// description listed once
func (g *Graph) PreviewOrder() ([]Node, error) {
	order, err := g.RunOrder()
	if err != nil {
		return nil, err
	}
	seen := map[string]struct{}{}
	out := make([]Node, 0, len(order))
	for _, n := range order {
		if _, ok := seen[n.Description()]; ok {
			continue
		}
		seen[n.Description()] = struct{}{}
		out = append(out, n)
	}
	return out, nil
}

// Validate returns a *CycleError if the graph has a cycle
func (g *Graph) Validate() error {
	_, err := g.RunOrder()
	return err
}

// 🚶 Walk visits nodes in run order and stops at the first error
func (g *Graph) Walk(ctx context.Context, v Visitor) error {
	order, err := g.RunOrder()
	if err != nil {
		return err
	}
	for _, n := range order {
		if err := ctx.Err(); err != nil {
			return errors.WithStack(err)
		}
		zerolog.Ctx(ctx).Debug().Str("node", n.ID()).Msg(n.Description())
		if err := Visit(ctx, n, v); err != nil {
			return err
		}
	}
	return nil
}

type intMinHeap []int

func (h intMinHeap) Len() int           { return len(h) }
func (h intMinHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h intMinHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *intMinHeap) Push(x any)        { *h = append(*h, x.(int)) }
func (h *intMinHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// topoOrder is Kahn's algorithm with a min-heap over insertion index
func (g *Graph) topoOrder() []int {
	indeg := make([]int, len(g.nodes))
	for _, tos := range g.outgoing {
		for _, to := range tos {
			indeg[to]++
		}
	}

	ready := &intMinHeap{}
	for i, d := range indeg {
		if d == 0 {
			heap.Push(ready, i)
		}
	}

	out := make([]int, 0, len(g.nodes))
	for ready.Len() > 0 {
		n := heap.Pop(ready).(int)
		out = append(out, n)
		for _, m := range g.outgoing[n] {
			indeg[m]--
			if indeg[m] == 0 {
				heap.Push(ready, m)
			}
		}
	}
	return out
}

// findCycle returns one cycle found by depth first search from the lowest
// index
func (g *Graph) findCycle() []string {
	const (
		white = iota
		gray
		black
	)
	color := make([]int, len(g.nodes))
	parent := make([]int, len(g.nodes))
	for i := range parent {
		parent[i] = -1
	}

	var cycle []int
	var dfs func(u int) bool
	dfs = func(u int) bool {
		color[u] = gray
		for _, v := range g.outgoing[u] {
			switch color[v] {
			case white:
				parent[v] = u
				if dfs(v) {
					return true
				}
			case gray:
				// back edge u -> v closes v ... u -> v
				cycle = append(cycle, v)
				for cur := u; cur != -1 && cur != v; cur = parent[cur] {
					cycle = append(cycle, cur)
				}
				cycle = append(cycle, v)
				return true
			}
		}
		color[u] = black
		return false
	}

	for i := range g.nodes {
		if color[i] == white && dfs(i) {
			break
		}
	}

	out := make([]string, 0, len(cycle))
	for i := len(cycle) - 1; i >= 0; i-- {
		out = append(out, g.nodes[cycle[i]].ID())
	}
	return out
}

// 🏗️ Build creates the graph for an operation node and checks that it is
// acyclic
func Build(ctx context.Context, op *OpNode) (*Graph, error) {
	g := NewGraph()
	g.AddNode(op, true)
	if err := g.Validate(); err != nil {
		return nil, errors.Errorf("building graph for %s: %w", op.Name(), err)
	}
	zerolog.Ctx(ctx).Debug().Str("op", op.Name()).Int("nodes", g.Len()).Msg("built dependency graph")
	return g, nil
}
