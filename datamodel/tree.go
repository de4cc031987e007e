/*
Copyright © 2026 the AMUSE authors.
This file is part of AMUSE.

AMUSE is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

AMUSE is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with AMUSE.  If not, see <http://www.gnu.org/licenses/>.*/

package datamodel

// Attributes linking a particle to its two children in a binary tree.
const (
	Child1 = "child1"
	Child2 = "child2"
)

// Tree is the binary tree formed by the child1 and child2 references of a
// set. It is a snapshot: changes to the references after NewTree are not
// seen.
type Tree struct {
	Set *Particles

	children map[Key][]Key
	parent   map[Key]Key
	detached map[Key]bool
}

// NewTree reads the child references of s. Particles without child
// attributes form single-node trees.
func NewTree(s *Particles) (*Tree, error) {
	t := &Tree{Set: s, children: make(map[Key][]Key), parent: make(map[Key]Key), detached: make(map[Key]bool)}
	keys := s.Keys()
	if !s.HasAttribute(Child1) {
		return t, nil
	}
	c1, err := s.References(Child1)
	if err != nil {
		return nil, err
	}
	c2, err := s.References(Child2)
	if err != nil {
		return nil, err
	}
	for i, k := range keys {
		for _, c := range []Key{c1[i], c2[i]} {
			if c != 0 && s.Contains(c) {
				t.children[k] = append(t.children[k], c)
				t.parent[c] = k
			}
		}
	}
	return t, nil
}

// Roots returns the particles that are nobody's child, in set order.
func (t *Tree) Roots() []Key {
	var out []Key
	for _, k := range t.Set.Keys() {
		if _, ok := t.parent[k]; !ok && !t.detached[k] {
			out = append(out, k)
		}
	}
	return out
}

// Children returns the direct children of k.
func (t *Tree) Children(k Key) []Key { return t.children[k] }

// Parent returns the parent of k.
func (t *Tree) Parent(k Key) (Key, bool) {
	p, ok := t.parent[k]
	return p, ok
}

// IsLeaf reports whether k has no children.
func (t *Tree) IsLeaf(k Key) bool { return len(t.children[k]) == 0 }

// IsBinary reports whether k has exactly two children.
func (t *Tree) IsBinary(k Key) bool { return len(t.children[k]) == 2 }

// Descendants returns every particle below k, depth first.
func (t *Tree) Descendants(k Key) []Key {
	var out []Key
	for _, c := range t.children[k] {
		out = append(out, c)
		out = append(out, t.Descendants(c)...)
	}
	return out
}

// Leaves returns the leaves below k, or k itself if it is a leaf.
func (t *Tree) Leaves(k Key) []Key {
	if t.IsLeaf(k) {
		return []Key{k}
	}
	var out []Key
	for _, c := range t.children[k] {
		out = append(out, t.Leaves(c)...)
	}
	return out
}

// InnerNodes returns the descendants of k that have children.
func (t *Tree) InnerNodes(k Key) []Key {
	var out []Key
	for _, d := range t.Descendants(k) {
		if !t.IsLeaf(d) {
			out = append(out, d)
		}
	}
	return out
}

// Branches returns the subtrees below k that are not single leaves.
func (t *Tree) Branches(k Key) []Key {
	var out []Key
	for _, c := range t.children[k] {
		if !t.IsLeaf(c) {
			out = append(out, c)
		}
	}
	return out
}

// Detach removes k from the tree, making its children roots. The
// references stored in the set are not changed.
func (t *Tree) Detach(k Key) {
	t.detached[k] = true
	for _, c := range t.children[k] {
		delete(t.parent, c)
	}
	delete(t.children, k)
	if p, ok := t.parent[k]; ok {
		cs := t.children[p]
		for i, c := range cs {
			if c == k {
				t.children[p] = append(cs[:i:i], cs[i+1:]...)
				break
			}
		}
		delete(t.parent, k)
	}
}
