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

	"github.com/Knetic/govaluate"
	"github.com/spatialmodel/amuse/units"
)

// DerivedKind says how a derived attribute is computed.
type DerivedKind int

// Derived attribute kinds.
const (
	// VectorAttribute stacks scalar attributes into one vector column.
	VectorAttribute DerivedKind = iota
	// CalculatedAttribute is recomputed from other attributes on every
	// read and cannot be set.
	CalculatedAttribute
	// FunctionAttribute is a function bound to the set.
	FunctionAttribute
)

func (k DerivedKind) String() string {
	switch k {
	case VectorAttribute:
		return "vector"
	case CalculatedAttribute:
		return "calculated"
	case FunctionAttribute:
		return "function"
	}
	return fmt.Sprintf("DerivedKind(%d)", int(k))
}

// CalculateFunc computes a column from the input columns, in the order the
// inputs were declared.
type CalculateFunc func(inputs []units.Array) (units.Array, error)

// SetFunc is a function attribute; it is called with the set it is read
// from.
type SetFunc func(s *Particles, args ...interface{}) (interface{}, error)

// Derived is a derived attribute definition.
type Derived struct {
	Name string
	Kind DerivedKind

	// Attributes are the vector components or the calculation inputs.
	Attributes []string

	Calculate CalculateFunc
	Function  SetFunc
}

// Registry is a table of derived attributes. Lookups fall back to the
// parent registry, so a set can override or extend the defaults of its
// kind without changing them for other sets.
type Registry struct {
	parent *Registry
	attrs  map[string]*Derived
}

// NewRegistry returns an empty registry that falls back to parent, which
// may be nil.
func NewRegistry(parent *Registry) *Registry {
	return &Registry{parent: parent, attrs: make(map[string]*Derived)}
}

// Add registers d, replacing any definition of the same name in r.
func (r *Registry) Add(d *Derived) {
	r.attrs[d.Name] = d
}

// AddVector registers name as the vector of the given scalar attributes.
func (r *Registry) AddVector(name string, components ...string) {
	r.Add(&Derived{Name: name, Kind: VectorAttribute, Attributes: components})
}

// AddCalculated registers name as f applied to inputs.
func (r *Registry) AddCalculated(name string, f CalculateFunc, inputs ...string) {
	r.Add(&Derived{Name: name, Kind: CalculatedAttribute, Attributes: inputs, Calculate: f})
}

// AddFunction registers a function attribute.
func (r *Registry) AddFunction(name string, f SetFunc) {
	r.Add(&Derived{Name: name, Kind: FunctionAttribute, Function: f})
}

// AddExpression registers name as an arithmetic expression of other
// attributes, for example "mass * (vx*vx + vy*vy + vz*vz) / 2". Inputs
// enter the expression in SI base units and the result is taken to be in
// unit result; nil means dimensionless.
func (r *Registry) AddExpression(name, expr string, result *units.Unit) error {
	e, err := govaluate.NewEvaluableExpression(expr)
	if err != nil {
		return fmt.Errorf("datamodel: expression for %s: %v", name, err)
	}
	inputs := e.Vars()
	if result == nil {
		result = units.None
	}
	r.AddCalculated(name, func(in []units.Array) (units.Array, error) {
		base := make([][]float64, len(in))
		n := 0
		for i, a := range in {
			v, err := a.In(a.Unit.Base())
			if err != nil {
				return units.Array{}, err
			}
			base[i] = v
			n = len(v)
		}
		out := units.Zeros(n, result)
		params := make(map[string]interface{}, len(inputs))
		for j := 0; j < n; j++ {
			for i, name := range inputs {
				params[name] = base[i][j]
			}
			v, err := e.Evaluate(params)
			if err != nil {
				return units.Array{}, fmt.Errorf("datamodel: evaluating %s: %v", name, err)
			}
			f, ok := v.(float64)
			if !ok {
				return units.Array{}, fmt.Errorf("datamodel: expression for %s returned %T, not a number", name, v)
			}
			out.Values[j] = f
		}
		return out, nil
	}, inputs...)
	return nil
}

// Lookup returns the definition of name in r or its parents.
func (r *Registry) Lookup(name string) (*Derived, bool) {
	for ; r != nil; r = r.parent {
		if d, ok := r.attrs[name]; ok {
			return d, true
		}
	}
	return nil, false
}

// Names returns every derived attribute visible through r, sorted.
func (r *Registry) Names() []string {
	seen := make(map[string]struct{})
	for ; r != nil; r = r.parent {
		for n := range r.attrs {
			seen[n] = struct{}{}
		}
	}
	return sortedNames(seen)
}

// DefaultParticles holds the derived attributes every particle set has
// unless its own registry overrides them.
var DefaultParticles = NewRegistry(nil)

func init() {
	r := DefaultParticles
	r.AddVector("position", "x", "y", "z")
	r.AddVector("velocity", "vx", "vy", "vz")
	r.AddVector("acceleration", "ax", "ay", "az")
	r.AddFunction("center_of_mass", func(s *Particles, _ ...interface{}) (interface{}, error) {
		return s.CenterOfMass()
	})
	r.AddFunction("center_of_mass_velocity", func(s *Particles, _ ...interface{}) (interface{}, error) {
		return s.CenterOfMassVelocity()
	})
	r.AddFunction("total_mass", func(s *Particles, _ ...interface{}) (interface{}, error) {
		return s.TotalMass()
	})
	r.AddFunction("kinetic_energy", func(s *Particles, _ ...interface{}) (interface{}, error) {
		return s.KineticEnergy()
	})
}

// DefaultGrid holds the derived attributes of grids.
var DefaultGrid = func() *Registry {
	r := NewRegistry(nil)
	r.AddVector("position", "x", "y", "z")
	r.AddVector("momentum", "rhovx", "rhovy", "rhovz")
	return r
}()
