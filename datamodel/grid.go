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

	"github.com/ctessum/sparse"
	"github.com/spatialmodel/amuse/units"
)

// GridStorage keeps one dense array per grid attribute.
type GridStorage struct {
	shape []int
	names []string
	cols  map[string]*gridColumn
}

type gridColumn struct {
	data *sparse.DenseArray
	unit *units.Unit
}

// NewGridStorage returns a storage for a grid of the given shape.
func NewGridStorage(shape ...int) *GridStorage {
	return &GridStorage{shape: append([]int(nil), shape...), cols: make(map[string]*gridColumn)}
}

// Shape returns the grid shape.
func (s *GridStorage) Shape() []int { return append([]int(nil), s.shape...) }

// AttributeNames returns the stored attributes in definition order.
func (s *GridStorage) AttributeNames() []string { return append([]string(nil), s.names...) }

func (s *GridStorage) column(name string, u *units.Unit) *gridColumn {
	c, ok := s.cols[name]
	if !ok {
		c = &gridColumn{data: sparse.ZerosDense(s.shape...), unit: u}
		s.cols[name] = c
		s.names = append(s.names, name)
	}
	return c
}

// Copy returns a deep copy of s.
func (s *GridStorage) Copy() *GridStorage {
	c := NewGridStorage(s.shape...)
	for _, n := range s.names {
		col := s.cols[n]
		c.cols[n] = &gridColumn{data: col.data.Copy(), unit: col.unit}
		c.names = append(c.names, n)
	}
	return c
}

// Grid is a regular grid of cells, or a rectangular part of one.
type Grid struct {
	storage  *GridStorage
	offset   []int
	shape    []int
	registry *Registry
	history  []*GridSnapshot
}

// GridSnapshot is a frozen copy of a grid at a model time.
type GridSnapshot struct {
	Time units.Quantity
	Grid *Grid
}

// NewGrid returns a grid of the given shape without attributes.
func NewGrid(shape ...int) *Grid {
	return &Grid{
		storage:  NewGridStorage(shape...),
		offset:   make([]int, len(shape)),
		shape:    append([]int(nil), shape...),
		registry: NewRegistry(DefaultGrid),
	}
}

var axisNames = []string{"x", "y", "z"}

// NewRegularGrid returns a grid of the given shape spanning lengths along
// each axis, with the x, y and z attributes at the cell centres
// (i+0.5)/n*L.
func NewRegularGrid(shape []int, lengths []units.Quantity) (*Grid, error) {
	if len(shape) != len(lengths) || len(shape) == 0 || len(shape) > len(axisNames) {
		return nil, fmt.Errorf("datamodel: regular grid needs 1 to 3 axes with one length each, got %d and %d", len(shape), len(lengths))
	}
	g := NewGrid(shape...)
	for axis, l := range lengths {
		if l.Unit == nil {
			return nil, fmt.Errorf("datamodel: length of axis %d has no unit", axis)
		}
		col := g.storage.column(axisNames[axis], l.Unit)
		for i := range col.data.Elements {
			idx := col.data.IndexNd(i)
			col.data.Elements[i] = (float64(idx[axis]) + 0.5) / float64(shape[axis]) * l.Value
		}
	}
	return g, nil
}

// Shape returns the shape of the grid.
func (g *Grid) Shape() []int { return append([]int(nil), g.shape...) }

// Size returns the number of cells.
func (g *Grid) Size() int {
	n := 1
	for _, d := range g.shape {
		n *= d
	}
	return n
}

// Registry returns the derived attributes of the grid.
func (g *Grid) Registry() *Registry { return g.registry }

// StoredAttributeNames returns the attributes held in storage.
func (g *Grid) StoredAttributeNames() []string { return g.storage.AttributeNames() }

// storageIndex returns the storage index of cell i of g in row-major
// order.
func (g *Grid) storageIndex(i int) []int {
	idx := make([]int, len(g.shape))
	for d := len(g.shape) - 1; d >= 0; d-- {
		idx[d] = i%g.shape[d] + g.offset[d]
		i /= g.shape[d]
	}
	return idx
}

func (g *Grid) checkIndex(index []int) error {
	if len(index) != len(g.shape) {
		return fmt.Errorf("datamodel: index %v for a grid of shape %v", index, g.shape)
	}
	for d, i := range index {
		if i < 0 || i >= g.shape[d] {
			return fmt.Errorf("datamodel: index %v out of range for shape %v", index, g.shape)
		}
	}
	return nil
}

func (g *Grid) stored(name string) ([]float64, *units.Unit, error) {
	c, ok := g.storage.cols[name]
	if !ok {
		return nil, nil, undefined(name, fmt.Sprintf("grid of shape %v", g.shape))
	}
	out := make([]float64, g.Size())
	for i := range out {
		out[i] = c.data.Get(g.storageIndex(i)...)
	}
	return out, c.unit, nil
}

// Get returns a scalar attribute of every cell in row-major order.
func (g *Grid) Get(name string) (units.Array, error) {
	if d, ok := g.registry.Lookup(name); ok {
		if d.Kind != CalculatedAttribute {
			return units.Array{}, &AttributeError{Name: name, Owner: "grid",
				Reason: fmt.Sprintf("is a %s attribute, not a column", d.Kind)}
		}
		in := make([]units.Array, len(d.Attributes))
		for i, a := range d.Attributes {
			var err error
			if in[i], err = g.Get(a); err != nil {
				return units.Array{}, err
			}
		}
		return d.Calculate(in)
	}
	v, u, err := g.stored(name)
	if err != nil {
		return units.Array{}, err
	}
	return units.NewArray(v, u), nil
}

// GetVector returns a vector attribute of every cell.
func (g *Grid) GetVector(name string) (units.Vectors, error) {
	d, ok := g.registry.Lookup(name)
	if !ok || d.Kind != VectorAttribute {
		return units.Vectors{}, &AttributeError{Name: name, Owner: "grid", Reason: "is not a vector attribute"}
	}
	cols := make([]units.Array, len(d.Attributes))
	for i, a := range d.Attributes {
		var err error
		if cols[i], err = g.Get(a); err != nil {
			return units.Vectors{}, err
		}
	}
	return units.StackColumns(cols...)
}

// Set sets attribute name of every cell to a units.Array in row-major
// order, a units.Quantity, or a units.Vectors for a vector attribute.
func (g *Grid) Set(name string, v interface{}) error {
	if d, ok := g.registry.Lookup(name); ok {
		vs, isVec := v.(units.Vectors)
		if d.Kind != VectorAttribute || !isVec {
			return &AttributeError{Name: name, Owner: "grid",
				Reason: fmt.Sprintf("is a %s attribute and cannot be assigned a %T", d.Kind, v)}
		}
		for i, col := range vs.Columns(len(d.Attributes)) {
			if err := g.setColumn(d.Attributes[i], col); err != nil {
				return err
			}
		}
		return nil
	}
	switch x := v.(type) {
	case units.Array:
		return g.setColumn(name, x)
	case units.Quantity:
		if x.Unit == nil {
			x.Unit = units.None
		}
		return g.setColumn(name, units.Fill(g.Size(), x))
	}
	return &AttributeError{Name: name, Owner: "grid",
		Reason: fmt.Sprintf("can only be assigned quantities, not %T", v)}
}

func (g *Grid) setColumn(name string, a units.Array) error {
	if a.Len() != g.Size() {
		return fmt.Errorf("datamodel: %d values for attribute %q of a grid of %d cells", a.Len(), name, g.Size())
	}
	if a.Unit == nil {
		return &AttributeError{Name: name, Owner: "grid", Reason: "has no unit"}
	}
	u := a.Unit
	if c, ok := g.storage.cols[name]; ok {
		u = c.unit
	}
	v, err := a.In(u)
	if err != nil {
		return fmt.Errorf("datamodel: attribute %q: %v", name, err)
	}
	c := g.storage.column(name, u)
	for i, x := range v {
		c.data.Set(x, g.storageIndex(i)...)
	}
	return nil
}

// SubGrid returns the cells from start up to but not including end as a
// grid sharing storage with g.
func (g *Grid) SubGrid(start, end []int) (*Grid, error) {
	if len(start) != len(g.shape) || len(end) != len(g.shape) {
		return nil, fmt.Errorf("datamodel: sub-grid bounds %v, %v for shape %v", start, end, g.shape)
	}
	s := &Grid{storage: g.storage, registry: g.registry,
		offset: make([]int, len(g.shape)), shape: make([]int, len(g.shape))}
	for d := range g.shape {
		if start[d] < 0 || end[d] > g.shape[d] || start[d] >= end[d] {
			return nil, fmt.Errorf("datamodel: sub-grid bounds %v, %v for shape %v", start, end, g.shape)
		}
		s.offset[d] = g.offset[d] + start[d]
		s.shape[d] = end[d] - start[d]
	}
	return s, nil
}

// Cell returns the cell at index.
func (g *Grid) Cell(index ...int) (GridPoint, error) {
	if err := g.checkIndex(index); err != nil {
		return GridPoint{}, err
	}
	return GridPoint{Grid: g, Index: append([]int(nil), index...)}, nil
}

// Copy returns a grid with a copy of the cells of g.
func (g *Grid) Copy() (*Grid, error) {
	c := NewGrid(g.shape...)
	c.registry = NewRegistry(g.registry)
	for _, n := range g.storage.AttributeNames() {
		v, u, err := g.stored(n)
		if err != nil {
			return nil, err
		}
		if err := c.setColumn(n, units.NewArray(v, u)); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Savepoint stores a copy of g taken at time t and returns it.
func (g *Grid) Savepoint(t units.Quantity) (*Grid, error) {
	c, err := g.Copy()
	if err != nil {
		return nil, err
	}
	g.history = append(g.history, &GridSnapshot{Time: t, Grid: c})
	return c, nil
}

// AddSavepoint records s as the state of g at time t without copying it.
func (g *Grid) AddSavepoint(t units.Quantity, s *Grid) {
	g.history = append(g.history, &GridSnapshot{Time: t, Grid: s})
}

// Previous returns the newest savepoint of g.
func (g *Grid) Previous() (*Grid, bool) {
	if len(g.history) == 0 {
		return nil, false
	}
	return g.history[len(g.history)-1].Grid, true
}

// History returns the savepoints of g, oldest first.
func (g *Grid) History() []*GridSnapshot { return append([]*GridSnapshot(nil), g.history...) }

// GridPoint is one cell of a grid.
type GridPoint struct {
	Grid  *Grid
	Index []int
}

func (p GridPoint) storageIndex() []int {
	idx := make([]int, len(p.Index))
	for d, i := range p.Index {
		idx[d] = i + p.Grid.offset[d]
	}
	return idx
}

// Get returns stored attribute name of the cell.
func (p GridPoint) Get(name string) (units.Quantity, error) {
	c, ok := p.Grid.storage.cols[name]
	if !ok {
		return units.Quantity{}, undefined(name, fmt.Sprintf("cell %v", p.Index))
	}
	return units.New(c.data.Get(p.storageIndex()...), c.unit), nil
}

// Set sets stored attribute name of the cell, converting q to the unit of
// the attribute.
func (p GridPoint) Set(name string, q units.Quantity) error {
	if q.Unit == nil {
		q.Unit = units.None
	}
	c := p.Grid.storage.column(name, q.Unit)
	v, err := q.In(c.unit)
	if err != nil {
		return fmt.Errorf("datamodel: attribute %q: %v", name, err)
	}
	c.data.Set(v, p.storageIndex()...)
	return nil
}

// GridChannel copies attributes between grids of the same shape.
type GridChannel struct {
	From, To *Grid
}

// NewChannelTo returns a channel from g to o.
func (g *Grid) NewChannelTo(o *Grid) *GridChannel { return &GridChannel{From: g, To: o} }

// Copy copies every stored attribute of the source grid.
func (c *GridChannel) Copy() error {
	return c.CopyAttributes(c.From.StoredAttributeNames()...)
}

// CopyAttributes copies the named attributes.
func (c *GridChannel) CopyAttributes(names ...string) error {
	fs, ts := c.From.shape, c.To.shape
	if len(fs) != len(ts) {
		return fmt.Errorf("datamodel: cannot copy between grids of shape %v and %v", fs, ts)
	}
	for d := range fs {
		if fs[d] != ts[d] {
			return fmt.Errorf("datamodel: cannot copy between grids of shape %v and %v", fs, ts)
		}
	}
	for _, n := range names {
		v, err := c.From.Get(n)
		if err != nil {
			return err
		}
		if err := c.To.setColumn(n, v); err != nil {
			return err
		}
	}
	return nil
}
