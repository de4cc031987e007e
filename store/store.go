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

// Package store saves particle sets and grids, together with their
// savepoints, in netCDF files.
//
// A file holds numbered groups, each the state of one set at one time.
// netCDF classic files are flat, so a group is a naming prefix: group 2
// of a file keeps its keys in variable "group002.keys", attribute mass in
// "group002.attributes.mass" and its description in global attributes
// starting with "group002.". Every attribute variable carries its unit in
// a "units" attribute, "none" for dimensionless values.
package store

import (
	"fmt"
	"math"
	"os"
	"sort"
	"strings"

	"github.com/ctessum/cdf"
	"github.com/spatialmodel/amuse/datamodel"
	"github.com/spatialmodel/amuse/units"
)

// FormatVersion is written to every file and checked on reading.
const FormatVersion = "1"

// The kinds of group.
const (
	KindParticles = "particles"
	KindGrid      = "grid"
)

// Group is the state of a particle set or a grid at a time, with
// collection-level attributes. Exactly one of Particles and Grid is set.
type Group struct {
	Time       units.Quantity
	Particles  *datamodel.Particles
	Grid       *datamodel.Grid
	Attributes map[string]units.Quantity
}

// Kind returns KindParticles or KindGrid.
func (g Group) Kind() string {
	if g.Grid != nil {
		return KindGrid
	}
	return KindParticles
}

func prefix(i int) string { return fmt.Sprintf("group%03d.", i+1) }

func unitString(u *units.Unit) string {
	if u == nil {
		return "none"
	}
	return u.String()
}

// column is an attribute of a group ready to be written.
type column struct {
	name   string
	values []float64
	unit   *units.Unit
}

// layout is a group flattened into dimensions and columns.
type layout struct {
	dims    []string
	lengths []int
	columns []column
	keys    []float64
}

func flatten(i int, g Group) (*layout, error) {
	pfx := prefix(i)
	l := new(layout)
	switch {
	case g.Grid != nil && g.Particles != nil:
		return nil, fmt.Errorf("store: group %d holds both particles and a grid", i+1)
	case g.Grid != nil:
		empty := false
		for axis, n := range g.Grid.Shape() {
			l.dims = append(l.dims, fmt.Sprintf("%sd%d", pfx, axis))
			l.lengths = append(l.lengths, n)
			empty = empty || n == 0
		}
		if empty {
			// Zero length dimensions are record dimensions in netCDF.
			l.dims, l.lengths = nil, nil
			return l, nil
		}
		for _, name := range g.Grid.StoredAttributeNames() {
			a, err := g.Grid.Get(name)
			if err != nil {
				return nil, err
			}
			l.columns = append(l.columns, column{name: name, values: a.Values, unit: a.Unit})
		}
	case g.Particles != nil:
		keys := g.Particles.Keys()
		if len(keys) == 0 {
			return l, nil
		}
		l.dims, l.lengths = []string{pfx + "n"}, []int{len(keys)}
		l.keys = datamodel.References(keys).Values
		names := g.Particles.StoredAttributeNames()
		values, err := g.Particles.GetValues(keys, names)
		if err != nil {
			return nil, err
		}
		for j, name := range names {
			l.columns = append(l.columns, column{name: name, values: values[j].Values, unit: values[j].Unit})
		}
	default:
		return nil, fmt.Errorf("store: group %d is empty", i+1)
	}
	return l, nil
}

// Write writes groups to w in order.
func Write(w cdf.ReaderWriterAt, groups []Group) error {
	layouts := make([]*layout, len(groups))
	var dims []string
	var lengths []int
	for i, g := range groups {
		l, err := flatten(i, g)
		if err != nil {
			return err
		}
		layouts[i] = l
		dims = append(dims, l.dims...)
		lengths = append(lengths, l.lengths...)
	}

	h := cdf.NewHeader(dims, lengths)
	h.AddAttribute("", "comment", "AMUSE particle and grid snapshots")
	h.AddAttribute("", "format_version", FormatVersion)
	h.AddAttribute("", "groups", []int32{int32(len(groups))})
	for i, g := range groups {
		pfx := prefix(i)
		l := layouts[i]
		h.AddAttribute("", pfx+"kind", g.Kind())
		if g.Grid != nil {
			h.AddAttribute("", pfx+"shape", int32s(g.Grid.Shape()))
		} else {
			h.AddAttribute("", pfx+"length", []int32{int32(g.Particles.Len())})
		}
		h.AddAttribute("", pfx+"time", []float64{g.Time.Value})
		h.AddAttribute("", pfx+"time.units", unitString(g.Time.Unit))

		// Sort the names so they write in the same order every time.
		names := make([]string, 0, len(g.Attributes))
		for n := range g.Attributes {
			names = append(names, n)
		}
		sort.Strings(names)
		for _, n := range names {
			q := g.Attributes[n]
			h.AddAttribute("", pfx+"collection."+n, []float64{q.Value})
			h.AddAttribute("", pfx+"collection."+n+".units", unitString(q.Unit))
		}

		if l.keys != nil {
			h.AddVariable(pfx+"keys", l.dims, []float64{0})
			h.AddAttribute(pfx+"keys", "units", unitString(units.ObjectKey))
		}
		for _, c := range l.columns {
			v := pfx + "attributes." + c.name
			h.AddVariable(v, l.dims, []float64{0})
			h.AddAttribute(v, "units", unitString(c.unit))
		}
	}
	h.Define()

	f, err := cdf.Create(w, h)
	if err != nil {
		return fmt.Errorf("store: %v", err)
	}
	for i, l := range layouts {
		pfx := prefix(i)
		if l.keys != nil {
			if err := writeVariable(f, pfx+"keys", l.keys); err != nil {
				return err
			}
		}
		for _, c := range l.columns {
			if err := writeVariable(f, pfx+"attributes."+c.name, c.values); err != nil {
				return err
			}
		}
	}
	return nil
}

func writeVariable(f *cdf.File, name string, data []float64) error {
	n := 1
	for _, l := range f.Header.Lengths(name) {
		n *= l
	}
	if len(data) != n {
		return fmt.Errorf("store: variable %s: dims are %d but array length is %d", name, n, len(data))
	}
	if _, err := f.Writer(name, nil, nil).Write(data); err != nil {
		return fmt.Errorf("store: writing variable %s: %v", name, err)
	}
	return nil
}

func int32s(v []int) []int32 {
	out := make([]int32, len(v))
	for i, x := range v {
		out[i] = int32(x)
	}
	return out
}

// Read reads the groups of r in order.
func Read(r cdf.ReaderWriterAt) ([]Group, error) {
	f, err := cdf.Open(r)
	if err != nil {
		return nil, fmt.Errorf("store: %v", err)
	}
	a := attrs{f.Header}
	version, err := a.str("", "format_version")
	if err != nil {
		return nil, err
	}
	if version != FormatVersion {
		return nil, fmt.Errorf("store: format version %s is incompatible with the required version %s", version, FormatVersion)
	}
	n, err := a.ints("", "groups")
	if err != nil {
		return nil, err
	}
	if len(n) != 1 {
		return nil, fmt.Errorf("store: malformed group count")
	}
	groups := make([]Group, n[0])
	for i := range groups {
		if groups[i], err = readGroup(f, i); err != nil {
			return nil, err
		}
	}
	return groups, nil
}

func readGroup(f *cdf.File, i int) (Group, error) {
	pfx := prefix(i)
	a := attrs{f.Header}
	var g Group
	var err error
	if g.Time, err = a.quantity(pfx + "time"); err != nil {
		return g, err
	}
	g.Attributes = make(map[string]units.Quantity)
	for _, name := range f.Header.Attributes("") {
		if !strings.HasPrefix(name, pfx+"collection.") || strings.HasSuffix(name, ".units") {
			continue
		}
		q, err := a.quantity(name)
		if err != nil {
			return g, err
		}
		g.Attributes[strings.TrimPrefix(name, pfx+"collection.")] = q
	}

	var names []string
	var values []units.Array
	for _, v := range f.Header.Variables() {
		if !strings.HasPrefix(v, pfx+"attributes.") {
			continue
		}
		col, err := readVariable(f, v)
		if err != nil {
			return g, err
		}
		names = append(names, strings.TrimPrefix(v, pfx+"attributes."))
		values = append(values, col)
	}

	kind, err := a.str("", pfx+"kind")
	if err != nil {
		return g, err
	}
	switch kind {
	case KindGrid:
		shape, err := a.ints("", pfx+"shape")
		if err != nil {
			return g, err
		}
		s := make([]int, len(shape))
		for j, x := range shape {
			s[j] = int(x)
		}
		g.Grid = datamodel.NewGrid(s...)
		for j, name := range names {
			if err := g.Grid.Set(name, values[j]); err != nil {
				return g, fmt.Errorf("store: group %d: %v", i+1, err)
			}
		}
	case KindParticles:
		length, err := a.ints("", pfx+"length")
		if err != nil {
			return g, err
		}
		var keys []datamodel.Key
		if len(length) == 1 && length[0] > 0 {
			k, err := readVariable(f, pfx+"keys")
			if err != nil {
				return g, err
			}
			if keys, err = datamodel.ReferencedKeys(k); err != nil {
				return g, err
			}
		}
		s := datamodel.NewInMemoryStorage()
		if err := s.Add(keys, names, values); err != nil {
			return g, fmt.Errorf("store: group %d: %v", i+1, err)
		}
		g.Particles = datamodel.NewParticlesWithStorage(s, datamodel.WithKeys(keysAfter(keys)))
	default:
		return g, fmt.Errorf("store: group %d has unknown kind %q", i+1, kind)
	}
	return g, nil
}

// keysAfter returns a generator for new particles in a set loaded with
// keys.
func keysAfter(keys []datamodel.Key) datamodel.KeyGenerator {
	var max datamodel.Key
	for _, k := range keys {
		if k > max {
			max = k
		}
	}
	if max > math.MaxUint64/2 {
		// Random keys; carry on with random ones.
		return datamodel.NewRandomKeys(int64(max))
	}
	return datamodel.NewSequentialKeys(max)
}

func readVariable(f *cdf.File, v string) (units.Array, error) {
	n := 1
	for _, l := range f.Header.Lengths(v) {
		n *= l
	}
	r := f.Reader(v, nil, nil)
	if r == nil {
		return units.Array{}, fmt.Errorf("store: missing variable %s", v)
	}
	data := make([]float64, n)
	if _, err := r.Read(data); err != nil {
		return units.Array{}, fmt.Errorf("store: reading variable %s: %v", v, err)
	}
	us, err := attrs{f.Header}.str(v, "units")
	if err != nil {
		return units.Array{}, err
	}
	u, err := units.Parse(us)
	if err != nil {
		return units.Array{}, fmt.Errorf("store: variable %s: %v", v, err)
	}
	return units.NewArray(data, u), nil
}

// attrs reads typed header attributes.
type attrs struct{ h *cdf.Header }

func (a attrs) str(v, name string) (string, error) {
	s, ok := a.h.GetAttribute(v, name).(string)
	if !ok {
		return "", fmt.Errorf("store: missing or malformed attribute %s:%s", v, name)
	}
	return s, nil
}

func (a attrs) ints(v, name string) ([]int32, error) {
	x, ok := a.h.GetAttribute(v, name).([]int32)
	if !ok {
		return nil, fmt.Errorf("store: missing or malformed attribute %s:%s", v, name)
	}
	return x, nil
}

// quantity reads the global attribute name and its unit from name.units.
func (a attrs) quantity(name string) (units.Quantity, error) {
	x, ok := a.h.GetAttribute("", name).([]float64)
	if !ok || len(x) != 1 {
		return units.Quantity{}, fmt.Errorf("store: missing or malformed attribute %s", name)
	}
	us, err := a.str("", name+".units")
	if err != nil {
		return units.Quantity{}, err
	}
	u, err := units.Parse(us)
	if err != nil {
		return units.Quantity{}, fmt.Errorf("store: attribute %s: %v", name, err)
	}
	return units.New(x[0], u), nil
}

// SaveParticles writes the savepoints of p followed by p itself, as the
// state at time t with collection-level attributes meta, to a new file
// at path.
func SaveParticles(path string, p *datamodel.Particles, t units.Quantity, meta map[string]units.Quantity) error {
	var groups []Group
	for _, s := range p.History().Snapshots() {
		groups = append(groups, Group{Time: s.Time, Particles: s.Particles})
	}
	groups = append(groups, Group{Time: t, Particles: p, Attributes: meta})
	return create(path, groups)
}

// LoadParticles reads a file written by SaveParticles. The last group
// becomes the returned set and the earlier ones its history, oldest first.
func LoadParticles(path string) (*datamodel.Particles, Group, error) {
	groups, err := open(path)
	if err != nil {
		return nil, Group{}, err
	}
	if len(groups) == 0 {
		return nil, Group{}, fmt.Errorf("store: %s holds no groups", path)
	}
	for i, g := range groups {
		if g.Particles == nil {
			return nil, Group{}, fmt.Errorf("store: group %d of %s is a %s", i+1, path, g.Kind())
		}
	}
	last := groups[len(groups)-1]
	for _, g := range groups[:len(groups)-1] {
		last.Particles.History().Append(g.Time, g.Particles)
	}
	return last.Particles, last, nil
}

// SaveGrid writes the savepoints of g followed by g itself to a new file
// at path.
func SaveGrid(path string, g *datamodel.Grid, t units.Quantity, meta map[string]units.Quantity) error {
	var groups []Group
	for _, s := range g.History() {
		groups = append(groups, Group{Time: s.Time, Grid: s.Grid})
	}
	groups = append(groups, Group{Time: t, Grid: g, Attributes: meta})
	return create(path, groups)
}

// LoadGrid reads a file written by SaveGrid.
func LoadGrid(path string) (*datamodel.Grid, Group, error) {
	groups, err := open(path)
	if err != nil {
		return nil, Group{}, err
	}
	if len(groups) == 0 {
		return nil, Group{}, fmt.Errorf("store: %s holds no groups", path)
	}
	for i, g := range groups {
		if g.Grid == nil {
			return nil, Group{}, fmt.Errorf("store: group %d of %s is a %s", i+1, path, g.Kind())
		}
	}
	last := groups[len(groups)-1]
	for _, g := range groups[:len(groups)-1] {
		last.Grid.AddSavepoint(g.Time, g.Grid)
	}
	return last.Grid, last, nil
}

func create(path string, groups []Group) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("store: %v", err)
	}
	if err := Write(f, groups); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func open(path string) ([]Group, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("store: %v", err)
	}
	defer f.Close()
	return Read(f)
}
