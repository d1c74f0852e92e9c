package telemetry

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// node is owned by its Tree's arena (the children map); it never points
// back to its parent. fullPath is computed once at registration time and
// stored alongside the node instead, per the ported design's "builder
// stored alongside the node rather than via an upward pointer".
type node struct {
	name string
	fullPath string
	children map[string]*node
	leaf func() Content
}

func newNode(name, fullPath string) *node {
	return &node{name: name, fullPath: fullPath, children: make(map[string]*node)}
}

// Tree is the root of a telemetry introspection hierarchy. Safe for
// concurrent Register/Read/Aggregate calls.
type Tree struct {
	mu sync.RWMutex
	root *node
}

// NewTree builds an empty telemetry tree.
func NewTree() *Tree {
	return &Tree{root: newNode("", "")}
}

func splitPath(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

// Register installs a leaf callback at path (slash-separated segments),
// creating any missing intermediate directories. Re-registering the same
// path replaces its leaf.
func (t *Tree) Register(path string, leaf func() Content) error {
	segs := splitPath(path)
	if len(segs) == 0 {
		return fmt.Errorf("telemetry: cannot register at tree root")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	cur := t.root
	built := ""
	for i, s := range segs {
		if built == "" {
			built = s
		} else {
			built = built + "/" + s
		}
		child, ok := cur.children[s]
		if !ok {
			child = newNode(s, built)
			cur.children[s] = child
		}
		if i == len(segs)-1 {
			child.leaf = leaf
		}
		cur = child
	}
	return nil
}

// Read resolves path to a Content value: the leaf's callback result if
// path names a leaf, or a Dict built from its children's values otherwise.
func (t *Tree) Read(path string) (Content, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n := t.find(path)
	if n == nil {
		return nil, false
	}
	return t.readNode(n), true
}

func (t *Tree) find(path string) *node {
	segs := splitPath(path)
	cur := t.root
	for _, s := range segs {
		child, ok := cur.children[s]
		if !ok {
			return nil
		}
		cur = child
	}
	return cur
}

func (t *Tree) readNode(n *node) Content {
	if n.leaf != nil {
		return n.leaf()
	}
	d := make(Dict, len(n.children))
	for name, child := range n.children {
		d[name] = t.readNode(child)
	}
	return d
}

// List returns the sorted child names directly under path ("" for root).
func (t *Tree) List(path string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n := t.find(path)
	if n == nil {
		return nil
	}
	names := make([]string, 0, len(n.children))
	for name := range n.children {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
