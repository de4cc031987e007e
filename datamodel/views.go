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

import (
	"fmt"

	"github.com/spatialmodel/amuse/units"
)

// view is where a set reads and writes its attributes: its own storage,
// the parent of a subset, or the members of a superset.
type view interface {
	keys() []Key
	contains(k Key) bool
	get(keys []Key, names []string) ([]units.Array, error)
	set(keys []Key, names []string, values []units.Array) error
	add(keys []Key, names []string, values []units.Array) error
	remove(keys []Key) error
	attributeNames() []string
}

type storageView struct {
	s Storage
}

func (v storageView) keys() []Key          { return v.s.Keys() }
func (v storageView) contains(k Key) bool  { return v.s.HasKey(k) }
func (v storageView) remove(k []Key) error { return v.s.Remove(k) }
func (v storageView) attributeNames() []string {
	return v.s.AttributeNames()
}
func (v storageView) get(k []Key, n []string) ([]units.Array, error) { return v.s.Get(k, n) }
func (v storageView) set(k []Key, n []string, a []units.Array) error { return v.s.Set(k, n, a) }
func (v storageView) add(k []Key, n []string, a []units.Array) error { return v.s.Add(k, n, a) }

// subsetView selects keys of a parent set. Particles removed from the
// parent silently drop out of the subset.
type subsetView struct {
	parent  *Particles
	members []Key
	in      map[Key]struct{}
}

func newSubsetView(parent *Particles, keys []Key) *subsetView {
	members := append([]Key(nil), keys...)
	return &subsetView{parent: parent, members: members, in: keySet(members)}
}

func (v *subsetView) keys() []Key {
	out := make([]Key, 0, len(v.members))
	for _, k := range v.members {
		if v.parent.view.contains(k) {
			out = append(out, k)
		}
	}
	return out
}

func (v *subsetView) contains(k Key) bool {
	_, ok := v.in[k]
	return ok && v.parent.view.contains(k)
}

func (v *subsetView) get(keys []Key, names []string) ([]units.Array, error) {
	if keys == nil {
		keys = v.keys()
	}
	return v.parent.view.get(keys, names)
}

func (v *subsetView) set(keys []Key, names []string, values []units.Array) error {
	return v.parent.view.set(keys, names, values)
}

// add stores the particles in the parent and includes them in the
// subset.
func (v *subsetView) add(keys []Key, names []string, values []units.Array) error {
	if err := v.parent.view.add(keys, names, values); err != nil {
		return err
	}
	for _, k := range keys {
		if _, ok := v.in[k]; !ok {
			v.members = append(v.members, k)
			v.in[k] = struct{}{}
		}
	}
	return nil
}

// remove excludes particles from the subset only.
func (v *subsetView) remove(keys []Key) error {
	var missing []Key
	for _, k := range keys {
		if !v.contains(k) {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return &MissingKeysError{Keys: missing}
	}
	drop := keySet(keys)
	kept := v.members[:0]
	for _, k := range v.members {
		if _, ok := drop[k]; ok {
			delete(v.in, k)
			continue
		}
		kept = append(kept, k)
	}
	v.members = kept
	return nil
}

func (v *subsetView) attributeNames() []string { return v.parent.view.attributeNames() }

// supersetView concatenates member sets without copying them.
type supersetView struct {
	members []*Particles
}

func (v *supersetView) keys() []Key {
	var out []Key
	for _, m := range v.members {
		out = append(out, m.view.keys()...)
	}
	return out
}

func (v *supersetView) contains(k Key) bool {
	for _, m := range v.members {
		if m.view.contains(k) {
			return true
		}
	}
	return false
}

// split assigns each key to the first member containing it. pos[i] holds
// the positions in keys of the keys given to member i.
func (v *supersetView) split(keys []Key) (parts [][]Key, pos [][]int, err error) {
	parts = make([][]Key, len(v.members))
	pos = make([][]int, len(v.members))
	var missing []Key
	for j, k := range keys {
		found := false
		for i, m := range v.members {
			if m.view.contains(k) {
				parts[i] = append(parts[i], k)
				pos[i] = append(pos[i], j)
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return nil, nil, &MissingKeysError{Keys: missing}
	}
	return parts, pos, nil
}

func (v *supersetView) get(keys []Key, names []string) ([]units.Array, error) {
	if keys == nil {
		keys = v.keys()
	}
	parts, pos, err := v.split(keys)
	if err != nil {
		return nil, err
	}
	out := make([]units.Array, len(names))
	for i, p := range parts {
		if len(p) == 0 {
			continue
		}
		vals, err := v.members[i].view.get(p, names)
		if err != nil {
			return nil, err
		}
		for a, col := range vals {
			if out[a].Unit == nil {
				out[a] = units.Zeros(len(keys), col.Unit)
			}
			x, err := col.In(out[a].Unit)
			if err != nil {
				return nil, fmt.Errorf("datamodel: attribute %q: %v", names[a], err)
			}
			for j, at := range pos[i] {
				out[a].Values[at] = x[j]
			}
		}
	}
	for a := range out {
		if out[a].Unit == nil {
			out[a] = units.Zeros(0, units.None)
		}
	}
	return out, nil
}

func (v *supersetView) set(keys []Key, names []string, values []units.Array) error {
	if err := checkColumns(len(keys), names, values); err != nil {
		return err
	}
	parts, pos, err := v.split(keys)
	if err != nil {
		return err
	}
	// Every member checks its values before any member is written.
	subs := make([][]units.Array, len(parts))
	old := make([]supersetUndo, len(parts))
	for i, p := range parts {
		if len(p) == 0 {
			continue
		}
		subs[i] = make([]units.Array, len(values))
		for a, col := range values {
			subs[i][a] = col.Select(pos[i])
		}
		if old[i], err = v.members[i].checkSet(p, names, subs[i]); err != nil {
			return err
		}
	}
	for i, p := range parts {
		if len(p) == 0 {
			continue
		}
		if err := v.members[i].view.set(p, names, subs[i]); err != nil {
			for j := i - 1; j >= 0; j-- {
				if len(parts[j]) > 0 && len(old[j].names) > 0 {
					v.members[j].view.set(parts[j], old[j].names, old[j].values)
				}
			}
			return err
		}
	}
	return nil
}

// supersetUndo holds the values a member had before a superset write.
type supersetUndo struct {
	names  []string
	values []units.Array
}

// checkSet returns the current values of the attributes of p that are
// already stored for keys, after checking that values can be converted to
// their units.
func (p *Particles) checkSet(keys []Key, names []string, values []units.Array) (supersetUndo, error) {
	stored := make(map[string]bool)
	for _, n := range p.view.attributeNames() {
		stored[n] = true
	}
	var u supersetUndo
	for a, name := range names {
		if !stored[name] {
			continue
		}
		cur, err := p.view.get(keys, []string{name})
		if err != nil {
			return supersetUndo{}, err
		}
		if _, err := values[a].In(cur[0].Unit); err != nil {
			return supersetUndo{}, fmt.Errorf("datamodel: attribute %q: %v", name, err)
		}
		u.names = append(u.names, name)
		u.values = append(u.values, cur[0])
	}
	return u, nil
}

func (v *supersetView) add([]Key, []string, []units.Array) error {
	return fmt.Errorf("datamodel: cannot add particles to a superset")
}

func (v *supersetView) remove(keys []Key) error {
	parts, _, err := v.split(keys)
	if err != nil {
		return err
	}
	for i, p := range parts {
		if len(p) == 0 {
			continue
		}
		if err := v.members[i].view.remove(p); err != nil {
			return err
		}
	}
	return nil
}

// attributeNames returns the attributes every member has.
func (v *supersetView) attributeNames() []string {
	if len(v.members) == 0 {
		return nil
	}
	count := make(map[string]int)
	for _, m := range v.members {
		for _, n := range m.view.attributeNames() {
			count[n]++
		}
	}
	var out []string
	for _, n := range v.members[0].view.attributeNames() {
		if count[n] == len(v.members) {
			out = append(out, n)
		}
	}
	return out
}
