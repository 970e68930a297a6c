package labels

import (
	"sort"
	"strings"
)

// Node is a label in an in-memory label forest.
type Node struct {
	Path     string
	Children []*Node
}

// Name returns the last segment of the node's path.
func (n *Node) Name() string {
	if i := strings.LastIndex(n.Path, Separator); i >= 0 {
		return n.Path[i+1:]
	}
	return n.Path
}

// BuildTree assembles label levels into a forest sorted by path. Duplicate
// levels are merged. A level whose parent is not itself listed becomes a
// root.
func BuildTree(levels []Level) []*Node {
	nodes := make(map[string]*Node, len(levels))
	parents := make(map[string]string, len(levels))
	for _, l := range levels {
		if l.Path == "" {
			continue
		}
		if _, ok := nodes[l.Path]; !ok {
			nodes[l.Path] = &Node{Path: l.Path}
		}
		if l.Parent != "" {
			parents[l.Path] = l.Parent
		}
	}

	var roots []*Node
	for path, n := range nodes {
		if p, ok := nodes[parents[path]]; ok && p != n {
			p.Children = append(p.Children, n)
			continue
		}
		roots = append(roots, n)
	}
	sortNodes(roots)
	return roots
}

func sortNodes(ns []*Node) {
	sort.Slice(ns, func(i, j int) bool { return ns[i].Path < ns[j].Path })
	for _, n := range ns {
		sortNodes(n.Children)
	}
}

// Walk visits the forest depth-first in order, passing each node's depth
// (0 for roots).
func Walk(roots []*Node, fn func(n *Node, depth int)) {
	var visit func(ns []*Node, depth int)
	visit = func(ns []*Node, depth int) {
		for _, n := range ns {
			fn(n, depth)
			visit(n.Children, depth+1)
		}
	}
	visit(roots, 0)
}
