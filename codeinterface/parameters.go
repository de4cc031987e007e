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
	"bytes"
	"fmt"

	"github.com/spatialmodel/amuse/legacy"
	"github.com/spatialmodel/amuse/units"
	"github.com/spf13/cast"
)

// ParameterDefinition declares a parameter of a code.
type ParameterDefinition struct {
	Name        string
	Description string

	// Unit is the unit the code uses for the value; nil means a number.
	Unit *units.Unit

	// Default is written by SetDefaults.
	Default    units.Quantity
	HasDefault bool

	// Getter and Setter are the legacy functions reading and writing a
	// method parameter. A cached parameter has neither and keeps its
	// value on the host.
	Getter, Setter string
}

func (d *ParameterDefinition) unit() *units.Unit {
	if d.Unit == nil {
		return units.None
	}
	return d.Unit
}

// ParametersHandler provides the "parameters" attribute of a code.
type ParametersHandler struct {
	code  *Code
	defs  []*ParameterDefinition
	cache map[string]units.Quantity
}

// Kind implements Handler.
func (h *ParametersHandler) Kind() string { return "PARAMETER" }

// Supports implements Handler.
func (h *ParametersHandler) Supports(name string, _ bool) bool { return name == "parameters" }

// Get implements Handler.
func (h *ParametersHandler) Get(string, interface{}) (interface{}, error) {
	return &Parameters{h: h}, nil
}

// AttributeNames implements Handler.
func (h *ParametersHandler) AttributeNames() []string { return []string{"parameters"} }

// AddMethodParameter defines a parameter read by get and written by set.
// An empty set makes the parameter read-only.
func (h *ParametersHandler) AddMethodParameter(get, set, name, description string, u *units.Unit, def units.Quantity) {
	h.defs = append(h.defs, &ParameterDefinition{
		Name:        name,
		Description: description,
		Unit:        u,
		Default:     def,
		HasDefault:  !def.IsZero(),
		Getter:      get,
		Setter:      set,
	})
}

// AddCachingParameter defines a parameter kept on the host, starting
// at its default.
func (h *ParametersHandler) AddCachingParameter(name, description string, u *units.Unit, def units.Quantity) {
	if h.cache == nil {
		h.cache = make(map[string]units.Quantity)
	}
	d := &ParameterDefinition{Name: name, Description: description, Unit: u, Default: def, HasDefault: true}
	h.defs = append(h.defs, d)
	if def.Unit == nil {
		def.Unit = d.unit()
	}
	h.cache[name] = def
}

func (h *ParametersHandler) definition(name string) (*ParameterDefinition, error) {
	for _, d := range h.defs {
		if d.Name == name {
			return d, nil
		}
	}
	return nil, fmt.Errorf("codeinterface: '%s' has no parameter %s", h.code.Name, name)
}

// Parameters reads and writes the parameters of a code. Values pass
// through the converter if one is set.
type Parameters struct {
	h         *ParametersHandler
	converter units.Converter
}

// Names returns the names of the parameters in definition order.
func (p *Parameters) Names() []string {
	out := make([]string, len(p.h.defs))
	for i, d := range p.h.defs {
		out[i] = d.Name
	}
	return out
}

// Definition returns the declaration of parameter name.
func (p *Parameters) Definition(name string) (ParameterDefinition, error) {
	d, err := p.h.definition(name)
	if err != nil {
		return ParameterDefinition{}, err
	}
	return *d, nil
}

// Get returns the value of parameter name.
func (p *Parameters) Get(name string) (units.Quantity, error) {
	d, err := p.h.definition(name)
	if err != nil {
		return units.Quantity{}, err
	}
	q, err := p.h.get(d)
	if err != nil || p.converter == nil {
		return q, err
	}
	return p.converter.FromSourceToTarget(q)
}

// Set writes parameter name.
func (p *Parameters) Set(name string, q units.Quantity) error {
	d, err := p.h.definition(name)
	if err != nil {
		return err
	}
	if p.converter != nil && (q.Unit == nil || !q.Unit.Compatible(d.unit())) {
		if q, err = p.converter.FromTargetToSource(q); err != nil {
			return err
		}
	}
	return p.h.set(d, q)
}

// SetValue writes parameter name from a quantity or anything cast can
// read as a number, which is taken to be in the unit of the parameter.
func (p *Parameters) SetValue(name string, v interface{}) error {
	if q, ok := v.(units.Quantity); ok {
		return p.Set(name, q)
	}
	d, err := p.h.definition(name)
	if err != nil {
		return err
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return fmt.Errorf("codeinterface: parameter %s: %v", name, err)
	}
	return p.h.set(d, units.New(f, d.unit()))
}

// SetDefaults writes the default of every parameter that has one and a
// setter.
func (p *Parameters) SetDefaults() error {
	for _, d := range p.h.defs {
		if !d.HasDefault || (d.Getter != "" && d.Setter == "") {
			continue
		}
		if err := p.h.set(d, d.Default); err != nil {
			return err
		}
	}
	return nil
}

// String lists the parameters with their values.
func (p *Parameters) String() string {
	var b bytes.Buffer
	for _, d := range p.h.defs {
		q, err := p.Get(d.Name)
		if err != nil {
			fmt.Fprintf(&b, "%s: <%v>\n", d.Name, err)
			continue
		}
		fmt.Fprintf(&b, "%s: %v\n", d.Name, q)
	}
	return b.String()
}

func (h *ParametersHandler) get(d *ParameterDefinition) (units.Quantity, error) {
	if d.Getter == "" {
		return h.cache[d.Name], nil
	}
	f, err := h.code.function(d.Getter)
	if err != nil {
		return units.Quantity{}, err
	}
	r, err := f.Call(nil, nil)
	if err != nil {
		return units.Quantity{}, err
	}
	if c := r.Code(); c < 0 {
		return units.Quantity{}, fmt.Errorf("codeinterface: getting parameter %s of a '%s' with %s: errorcode %d", d.Name, h.code.Name, d.Getter, c)
	}
	out := f.Specification().Outputs()
	if len(out) == 0 {
		return units.Quantity{}, fmt.Errorf("codeinterface: %s has no output for parameter %s", d.Getter, d.Name)
	}
	v, _ := r.Get(out[0].Name)
	x, err := cast.ToFloat64E(v)
	if err != nil {
		return units.Quantity{}, fmt.Errorf("codeinterface: parameter %s: %v", d.Name, err)
	}
	return units.New(x, d.unit()), nil
}

func (h *ParametersHandler) set(d *ParameterDefinition, q units.Quantity) error {
	if q.Unit == nil && d.unit().IsNone() {
		q.Unit = units.None
	}
	x, err := q.In(d.unit())
	if err != nil {
		return fmt.Errorf("codeinterface: parameter %s: %v", d.Name, err)
	}
	if d.Getter == "" {
		h.cache[d.Name] = units.New(x, d.unit())
		return nil
	}
	if d.Setter == "" {
		return fmt.Errorf("codeinterface: parameter %s of a '%s' is read-only", d.Name, h.code.Name)
	}
	f, err := h.code.function(d.Setter)
	if err != nil {
		return err
	}
	var arg interface{} = x
	if in := f.Specification().Inputs(); len(in) > 0 {
		switch in[0].Type {
		case legacy.Int32:
			arg = int32(x)
		case legacy.Int64:
			arg = int64(x)
		case legacy.Bool:
			arg = x != 0
		}
	}
	r, err := f.Call([]interface{}{arg}, nil)
	if err != nil {
		return err
	}
	if c := r.Code(); c < 0 {
		return fmt.Errorf("codeinterface: setting parameter %s of a '%s' with %s: errorcode %d", d.Name, h.code.Name, d.Setter, c)
	}
	return nil
}

// Params returns the parameters of the code, converted by the units
// handler if the code has a converter.
func (c *Code) Params() (*Parameters, error) {
	v, err := c.Attr("parameters")
	if err != nil {
		return nil, err
	}
	p, ok := v.(*Parameters)
	if !ok {
		return nil, fmt.Errorf("codeinterface: parameters of a '%s' are %T", c.Name, v)
	}
	return p, nil
}
