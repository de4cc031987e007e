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

package legacy

import (
	"fmt"
	"sort"

	"github.com/spatialmodel/amuse/channel"
	"github.com/spatialmodel/amuse/internal/hash"
	"github.com/spatialmodel/amuse/message"
)

// FirstTag is the lowest tag available to functions; smaller tags are
// reserved by the protocol.
const FirstTag = message.TagFingerprint + 1

// Table is the explicit list of functions a worker serves. Hosts and
// workers import the same table, so both address a function by the same
// tag.
type Table struct {
	Name   string
	specs  []*Specification
	byTag  map[int32]*Specification
	byName map[string]*Specification
}

// NewTable checks that the names and tags of specs are unique and that
// no reserved tag is used.
func NewTable(name string, specs ...*Specification) (*Table, error) {
	t := &Table{
		Name:   name,
		byTag:  make(map[int32]*Specification),
		byName: make(map[string]*Specification),
	}
	for _, s := range specs {
		if s.Tag < FirstTag {
			return nil, fmt.Errorf("legacy: table %s: function %s uses reserved tag %d", name, s.Name, s.Tag)
		}
		if o, ok := t.byTag[s.Tag]; ok {
			return nil, fmt.Errorf("legacy: table %s: functions %s and %s share tag %d", name, o.Name, s.Name, s.Tag)
		}
		if _, ok := t.byName[s.Name]; ok {
			return nil, fmt.Errorf("legacy: table %s: function %s is defined twice", name, s.Name)
		}
		t.byTag[s.Tag] = s
		t.byName[s.Name] = s
		t.specs = append(t.specs, s)
	}
	sort.Slice(t.specs, func(i, j int) bool { return t.specs[i].Tag < t.specs[j].Tag })
	return t, nil
}

// MustTable is NewTable for tables defined at initialization. It panics
// on error.
func MustTable(name string, specs ...*Specification) *Table {
	t, err := NewTable(name, specs...)
	if err != nil {
		panic(err)
	}
	return t
}

// Lookup returns the function called name.
func (t *Table) Lookup(name string) (*Specification, bool) {
	s, ok := t.byName[name]
	return s, ok
}

// ByTag returns the function with the given tag.
func (t *Table) ByTag(tag int32) (*Specification, bool) {
	s, ok := t.byTag[tag]
	return s, ok
}

// Specifications returns the functions ordered by tag.
func (t *Table) Specifications() []*Specification {
	return append([]*Specification(nil), t.specs...)
}

// Fingerprint identifies the tags and signatures of the table. A worker
// returns it for message.TagFingerprint.
func (t *Table) Fingerprint() string {
	sigs := make([]string, len(t.specs))
	for i, s := range t.specs {
		sigs[i] = fmt.Sprintf("%d %s", s.Tag, s)
	}
	return hash.Fingerprint(sigs)
}

// Bind returns the functions of the table bound to c, by name.
func (t *Table) Bind(c channel.Channel) map[string]*Function {
	fs := make(map[string]*Function, len(t.specs))
	for _, s := range t.specs {
		fs[s.Name] = NewFunction(s, c)
	}
	return fs
}
