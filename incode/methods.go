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

// Package incode keeps the attributes of a particle set in a worker. The
// host only holds the particle keys and the index the worker assigned to
// each of them; every read and write is a legacy function call.
package incode

import (
	"fmt"
	"strings"

	"github.com/spatialmodel/amuse/legacy"
	"github.com/spatialmodel/amuse/units"
)

// Method is a legacy function as seen by the storage. *legacy.Function
// implements it.
type Method interface {
	Call(args []interface{}, kwargs legacy.Kwargs) (*legacy.Result, error)
	Specification() *legacy.Specification
}

// attributeMethod maps the value parameters of a method to the public
// attribute names of a set. The first input parameter of the method is
// the index of the particle; it is not an attribute.
type attributeMethod struct {
	Method     Method
	Parameters []legacy.Parameter
	Attributes []string
}

func (a *attributeMethod) name() string { return a.Method.Specification().Name }

func newAttributeMethod(m Method, params []legacy.Parameter, attrs []string) (*attributeMethod, error) {
	if len(attrs) == 0 {
		for _, p := range params {
			attrs = append(attrs, p.Name)
		}
	}
	if len(attrs) != len(params) {
		return nil, fmt.Errorf("incode: %s has %d value parameters, got %d attribute names",
			m.Specification().Name, len(params), len(attrs))
	}
	return &attributeMethod{Method: m, Parameters: params, Attributes: attrs}, nil
}

// covers returns the names in attrs handled by a.
func (a *attributeMethod) covers(attrs []string) []string {
	var out []string
	for _, n := range attrs {
		if a.position(n) >= 0 {
			out = append(out, n)
		}
	}
	return out
}

func (a *attributeMethod) position(attr string) int {
	for i, n := range a.Attributes {
		if n == attr {
			return i
		}
	}
	return -1
}

// unit returns the unit of value parameter i.
func (a *attributeMethod) unit(i int) *units.Unit {
	if u := a.Parameters[i].Unit; u != nil {
		return u
	}
	return units.None
}

// Getter reads attributes through a method with the particle index as
// its input and one output per attribute.
type Getter struct{ attributeMethod }

// NewGetter returns a getter for the outputs of m. attrs names them in
// order; without attrs the parameter names are used.
func NewGetter(m Method, attrs ...string) (*Getter, error) {
	s := m.Specification()
	if len(s.Inputs()) < 1 {
		return nil, fmt.Errorf("incode: getter %s has no index parameter", s.Name)
	}
	a, err := newAttributeMethod(m, s.Outputs(), attrs)
	if err != nil {
		return nil, err
	}
	return &Getter{*a}, nil
}

// get returns the columns of the attributes names for the particles at
// index. Every name must be covered by g.
func (g *Getter) get(index []int32, names []string) ([]units.Array, error) {
	r, err := g.Method.Call([]interface{}{index}, nil)
	if err != nil {
		return nil, err
	}
	if err := checkCodes(g.name(), r); err != nil {
		return nil, err
	}
	out := make([]units.Array, len(names))
	for i, n := range names {
		j := g.position(n)
		v, _ := r.Get(g.Parameters[j].Name)
		vals, err := toFloat64s(v)
		if err != nil {
			return nil, fmt.Errorf("incode: %s: %s: %v", g.name(), n, err)
		}
		out[i] = units.NewArray(vals, g.unit(j))
	}
	return out, nil
}

// Setter writes attributes through a method with the particle index as
// its first input and one further input per attribute.
type Setter struct{ attributeMethod }

// NewSetter returns a setter for the inputs of m after the index. attrs
// names them in order; without attrs the parameter names are used.
func NewSetter(m Method, attrs ...string) (*Setter, error) {
	s := m.Specification()
	in := s.Inputs()
	if len(in) < 1 {
		return nil, fmt.Errorf("incode: setter %s has no index parameter", s.Name)
	}
	a, err := newAttributeMethod(m, in[1:], attrs)
	if err != nil {
		return nil, err
	}
	return &Setter{*a}, nil
}

// set writes every attribute of s. values holds one column per
// attribute of s, in order.
func (s *Setter) set(index []int32, values []units.Array) error {
	args := make([]interface{}, 0, len(values)+1)
	args = append(args, index)
	for i, v := range values {
		col, err := columnFor(s.Parameters[i], v)
		if err != nil {
			return fmt.Errorf("incode: %s: %s: %v", s.name(), s.Attributes[i], err)
		}
		args = append(args, col)
	}
	r, err := s.Method.Call(args, nil)
	if err != nil {
		return err
	}
	return checkCodes(s.name(), r)
}

// group is the part of a request served by one method.
type group struct {
	getter *Getter
	setter *Setter
	names  []string
}

// selectGetters partitions names over the getters, taking the first
// getter that covers each name. It fails if a name is not covered.
func selectGetters(getters []*Getter, names []string) ([]group, error) {
	var out []group
	todo := names
	for _, g := range getters {
		c := g.covers(todo)
		if len(c) == 0 {
			continue
		}
		out = append(out, group{getter: g, names: c})
		todo = without(todo, c)
	}
	if len(todo) > 0 {
		return nil, fmt.Errorf("incode: Do not have attributes [%s]", strings.Join(todo, ", "))
	}
	return out, nil
}

// selectSetters is selectGetters for setters.
func selectSetters(setters []*Setter, names []string) ([]group, error) {
	var out []group
	todo := names
	for _, s := range setters {
		c := s.covers(todo)
		if len(c) == 0 {
			continue
		}
		out = append(out, group{setter: s, names: c})
		todo = without(todo, c)
	}
	if len(todo) > 0 {
		return nil, fmt.Errorf("incode: Cannot set attributes [%s]", strings.Join(todo, ", "))
	}
	return out, nil
}

func without(names, drop []string) []string {
	var out []string
	for _, n := range names {
		found := false
		for _, d := range drop {
			if n == d {
				found = true
				break
			}
		}
		if !found {
			out = append(out, n)
		}
	}
	return out
}

// checkCodes returns an error if any result code of r is negative.
func checkCodes(name string, r *legacy.Result) error {
	for i, c := range r.Codes() {
		if c < 0 {
			return &CodeError{Function: name, Index: i, Code: c}
		}
	}
	return nil
}

// CodeError reports a negative result code for one particle.
type CodeError struct {
	Function string
	Index    int
	Code     int32
}

func (e *CodeError) Error() string {
	return fmt.Sprintf("incode: %s failed for particle %d with error code %d", e.Function, e.Index, e.Code)
}

// toFloat64s converts a result column to doubles.
func toFloat64s(v interface{}) ([]float64, error) {
	switch c := v.(type) {
	case []float64:
		return c, nil
	case []float32:
		out := make([]float64, len(c))
		for i, x := range c {
			out[i] = float64(x)
		}
		return out, nil
	case []int32:
		out := make([]float64, len(c))
		for i, x := range c {
			out[i] = float64(x)
		}
		return out, nil
	case []int64:
		out := make([]float64, len(c))
		for i, x := range c {
			out[i] = float64(x)
		}
		return out, nil
	case []bool:
		out := make([]float64, len(c))
		for i, x := range c {
			if x {
				out[i] = 1
			}
		}
		return out, nil
	}
	return nil, fmt.Errorf("cannot read %T as numbers", v)
}

// columnFor converts v to the unit and wire type of parameter p.
func columnFor(p legacy.Parameter, v units.Array) (interface{}, error) {
	u := p.Unit
	if u == nil {
		u = units.None
	}
	if v.Unit == nil {
		v.Unit = units.None
	}
	vals, err := v.In(u)
	if err != nil {
		return nil, err
	}
	switch p.Type {
	case legacy.Float64, legacy.Float32:
		return vals, nil
	case legacy.Int32:
		out := make([]int32, len(vals))
		for i, x := range vals {
			out[i] = int32(x)
		}
		return out, nil
	case legacy.Int64:
		out := make([]int64, len(vals))
		for i, x := range vals {
			out[i] = int64(x)
		}
		return out, nil
	case legacy.Bool:
		out := make([]bool, len(vals))
		for i, x := range vals {
			out[i] = x != 0
		}
		return out, nil
	}
	return nil, fmt.Errorf("cannot write numbers as %v", p.Type)
}
