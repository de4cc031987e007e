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

package codeinterface

import (
	"fmt"
	"sort"

	"github.com/spatialmodel/amuse/datamodel"
	"github.com/spatialmodel/amuse/incode"
	"github.com/spatialmodel/amuse/legacy"
	"github.com/spatialmodel/amuse/units"
)

type accessor struct {
	method string
	attrs  []string
}

type query struct {
	method, public string
}

type calculated struct {
	name, method string
	inputs       []string
}

// SetDefinition declares a particle set kept in a code.
type SetDefinition struct {
	Name string

	// IndexAttribute is the name of the output of the creation method
	// holding the particle indices.
	IndexAttribute string

	create     accessor
	delete     string
	getters    []accessor
	setters    []accessor
	queries    []query
	calculated []calculated
}

// SetNew sets the legacy function creating particles. attrs names its
// inputs; without attrs the parameter names are used.
func (d *SetDefinition) SetNew(method string, attrs ...string) *SetDefinition {
	d.create = accessor{method, attrs}
	return d
}

// SetDelete sets the legacy function removing particles.
func (d *SetDefinition) SetDelete(method string) *SetDefinition {
	d.delete = method
	return d
}

// AddGetter adds a legacy function reading attrs.
func (d *SetDefinition) AddGetter(method string, attrs ...string) *SetDefinition {
	d.getters = append(d.getters, accessor{method, attrs})
	return d
}

// AddSetter adds a legacy function writing attrs.
func (d *SetDefinition) AddSetter(method string, attrs ...string) *SetDefinition {
	d.setters = append(d.setters, accessor{method, attrs})
	return d
}

// AddQuery makes the legacy function method, which returns particle
// indices, available on the set as the function attribute public. It
// returns the subset of the particles at those indices.
func (d *SetDefinition) AddQuery(method, public string) *SetDefinition {
	if public == "" {
		public = method
	}
	d.queries = append(d.queries, query{method, public})
	return d
}

// AddAttribute defines a calculated attribute name, computed by the
// method of the code with the same name from inputs.
func (d *SetDefinition) AddAttribute(name, method string, inputs ...string) *SetDefinition {
	d.calculated = append(d.calculated, calculated{name, method, inputs})
	return d
}

type particleSet struct {
	particles *datamodel.Particles
	storage   *incode.Storage
}

// ParticlesHandler provides the particle sets of a code. A set is built
// on first use and reused afterwards.
type ParticlesHandler struct {
	code *Code
	defs map[string]*SetDefinition
	sets map[string]*particleSet
}

// Kind implements Handler.
func (h *ParticlesHandler) Kind() string { return "PARTICLES" }

// Supports implements Handler.
func (h *ParticlesHandler) Supports(name string, _ bool) bool {
	_, ok := h.defs[name]
	return ok
}

// Get implements Handler.
func (h *ParticlesHandler) Get(name string, _ interface{}) (interface{}, error) {
	s, err := h.set(name)
	if err != nil {
		return nil, err
	}
	return s.particles, nil
}

// AttributeNames implements Handler.
func (h *ParticlesHandler) AttributeNames() []string {
	out := make([]string, 0, len(h.defs))
	for n := range h.defs {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// DefineSet declares the set name. An empty indexAttribute means
// "index_of_the_particle".
func (h *ParticlesHandler) DefineSet(name, indexAttribute string) *SetDefinition {
	if indexAttribute == "" {
		indexAttribute = "index_of_the_particle"
	}
	d := &SetDefinition{
		Name:           name,
		IndexAttribute: indexAttribute,
		create:         accessor{method: "new_particle"},
		delete:         "delete_particle",
	}
	h.defs[name] = d
	delete(h.sets, name)
	return d
}

// Storage returns the storage of set name.
func (h *ParticlesHandler) Storage(name string) (*incode.Storage, error) {
	s, err := h.set(name)
	if err != nil {
		return nil, err
	}
	return s.storage, nil
}

func (h *ParticlesHandler) set(name string) (*particleSet, error) {
	if s, ok := h.sets[name]; ok {
		return s, nil
	}
	d, ok := h.defs[name]
	if !ok {
		return nil, &AttributeError{Code: h.code.Name, Name: name}
	}
	s, err := h.build(d)
	if err != nil {
		return nil, fmt.Errorf("codeinterface: particle set %s of a '%s': %v", name, h.code.Name, err)
	}
	h.sets[name] = s
	return s, nil
}

func (h *ParticlesHandler) build(d *SetDefinition) (*particleSet, error) {
	create, err := h.code.method(d.create.method)
	if err != nil {
		return nil, err
	}
	if out := create.Specification().Outputs(); len(out) > 0 && out[0].Name != d.IndexAttribute {
		return nil, fmt.Errorf("%s returns %s, not %s", d.create.method, out[0].Name, d.IndexAttribute)
	}
	remove, err := h.code.method(d.delete)
	if err != nil {
		return nil, err
	}
	st, err := incode.NewStorage(create, remove, d.create.attrs...)
	if err != nil {
		return nil, err
	}
	st.Log = h.code.Log
	for _, a := range d.getters {
		m, err := h.code.method(a.method)
		if err != nil {
			return nil, err
		}
		g, err := incode.NewGetter(m, a.attrs...)
		if err != nil {
			return nil, err
		}
		st.AddGetter(g)
	}
	for _, a := range d.setters {
		m, err := h.code.method(a.method)
		if err != nil {
			return nil, err
		}
		s, err := incode.NewSetter(m, a.attrs...)
		if err != nil {
			return nil, err
		}
		st.AddSetter(s)
	}
	p := datamodel.NewParticlesWithStorage(st)
	for _, q := range d.queries {
		q := q
		m, err := h.code.method(q.method)
		if err != nil {
			return nil, err
		}
		p.Registry().AddFunction(q.public, func(s *datamodel.Particles, args ...interface{}) (interface{}, error) {
			in, err := h.queryArgs(m.spec, d.IndexAttribute, st, s, args)
			if err != nil {
				return nil, fmt.Errorf("codeinterface: %s: %v", q.public, err)
			}
			keys, err := st.Select(m, in...)
			if err != nil {
				return nil, err
			}
			return s.Subset(keys), nil
		})
	}
	for _, c := range d.calculated {
		c := c
		p.Registry().AddCalculated(c.name, func(in []units.Array) (units.Array, error) {
			args := make([]interface{}, len(in))
			for i, a := range in {
				args[i] = a
			}
			out, err := h.code.Call(c.method, args...)
			if err != nil {
				return units.Array{}, err
			}
			if len(out) == 0 {
				return units.Array{}, fmt.Errorf("codeinterface: %s returned nothing", c.method)
			}
			a, ok := out[0].(units.Array)
			if !ok {
				return units.Array{}, fmt.Errorf("codeinterface: %s returned %T, not values with a unit", c.method, out[0])
			}
			return a, nil
		}, c.inputs...)
	}
	return &particleSet{particles: p, storage: st}, nil
}

// queryArgs prepares the arguments of a query on s. If the first input
// of the query is the index attribute it receives the indices of the
// particles in s. Quantities are converted to the units of the inputs.
func (h *ParticlesHandler) queryArgs(spec *legacy.Specification, indexAttr string, st *incode.Storage, s *datamodel.Particles, args []interface{}) ([]interface{}, error) {
	inputs := spec.Inputs()
	var out []interface{}
	if len(inputs) > 0 && inputs[0].Name == indexAttr {
		keys := s.Keys()
		idx := make([]int32, 0, len(keys))
		for _, k := range keys {
			if i, ok := st.Index(k); ok {
				idx = append(idx, i)
			}
		}
		out = append(out, idx)
		inputs = inputs[1:]
	}
	if len(args) > len(inputs) {
		return nil, fmt.Errorf("takes %d arguments, got %d", len(inputs), len(args))
	}
	conv := h.code.Units.Converter()
	for i, a := range args {
		var err error
		if conv != nil {
			switch v := a.(type) {
			case units.Quantity:
				a, err = conv.FromTargetToSource(v)
			case units.Array:
				a, err = units.ArrayToSource(conv, v)
			}
			if err != nil {
				return nil, err
			}
		}
		v, err := toPlain(a, inputs[i].Unit)
		if err != nil {
			return nil, fmt.Errorf("argument %s: %v", inputs[i].Name, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// codeMethod is a legacy function of a code looked up on every call, so
// the state machine sees each use.
type codeMethod struct {
	code *Code
	name string
	spec *legacy.Specification
}

func (c *Code) method(name string) (*codeMethod, error) {
	f, ok := c.Legacy.Function(name)
	if !ok {
		return nil, fmt.Errorf("no legacy function %s", name)
	}
	return &codeMethod{code: c, name: name, spec: f.Specification()}, nil
}

func (m *codeMethod) Call(args []interface{}, kwargs legacy.Kwargs) (*legacy.Result, error) {
	f, err := m.code.function(m.name)
	if err != nil {
		return nil, err
	}
	return f.Call(args, kwargs)
}

func (m *codeMethod) Specification() *legacy.Specification { return m.spec }

// ParticleSet returns particle set name, converted by the units handler
// if the code has a converter.
func (c *Code) ParticleSet(name string) (*datamodel.Particles, error) {
	v, err := c.Attr(name)
	if err != nil {
		return nil, err
	}
	p, ok := v.(*datamodel.Particles)
	if !ok {
		return nil, fmt.Errorf("codeinterface: %s of a '%s' is not a particle set", name, c.Name)
	}
	return p, nil
}
