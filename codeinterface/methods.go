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

	"github.com/spatialmodel/amuse/incode"
	"github.com/spatialmodel/amuse/legacy"
	"github.com/spatialmodel/amuse/units"
)

// CodeError reports a negative or registered error code returned by a
// method of a code.
type CodeError struct {
	Method      string
	Code        string
	ErrorCode   int32
	Description string
}

func (e *CodeError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("Error when calling '%s' of a '%s', errorcode is %d, error is '%s'", e.Method, e.Code, e.ErrorCode, e.Description)
	}
	return fmt.Sprintf("Error when calling '%s' of a '%s', errorcode is %d", e.Method, e.Code, e.ErrorCode)
}

// MethodDefinition declares a method with units on top of a legacy
// function.
type MethodDefinition struct {
	// Function is the legacy function called.
	Function string
	// Public is the name of the method.
	Public string
	// Units holds one entry per input parameter. Quantity arguments are
	// converted to it; a nil entry passes the argument through. Without
	// Units the units declared by the function are used.
	Units []*units.Unit
	// Results holds one entry per output parameter, then optionally one
	// for the result of the function. Values get these units; nil
	// entries are returned as they are. Without Results the units
	// declared by the function are used. A result without an entry is
	// an error code.
	Results []*units.Unit
}

// MethodsHandler adds unit conversion and error code checking to legacy
// functions.
type MethodsHandler struct {
	code *Code
	defs map[string]*MethodDefinition
}

// Kind implements Handler.
func (h *MethodsHandler) Kind() string { return "METHOD" }

// Supports implements Handler.
func (h *MethodsHandler) Supports(name string, _ bool) bool {
	_, ok := h.defs[name]
	return ok
}

// Get implements Handler.
func (h *MethodsHandler) Get(name string, prev interface{}) (interface{}, error) {
	d := h.defs[name]
	var f incode.Method
	if d.Function == d.Public {
		f, _ = prev.(incode.Method)
	}
	if f == nil {
		var err error
		if f, err = h.code.function(d.Function); err != nil {
			return nil, err
		}
	}
	return &UnitMethod{def: d, code: h.code, f: f}, nil
}

// AttributeNames implements Handler.
func (h *MethodsHandler) AttributeNames() []string {
	out := make([]string, 0, len(h.defs))
	for n := range h.defs {
		out = append(out, n)
	}
	return out
}

// Add defines a method. An empty public name means the name of the
// function.
func (h *MethodsHandler) Add(d MethodDefinition) error {
	if d.Public == "" {
		d.Public = d.Function
	}
	f, ok := h.code.Legacy.Function(d.Function)
	if !ok {
		return fmt.Errorf("codeinterface: method %s: '%s' has no legacy function %s", d.Public, h.code.Name, d.Function)
	}
	s := f.Specification()
	if d.Units == nil {
		for _, p := range s.Inputs() {
			d.Units = append(d.Units, p.Unit)
		}
	}
	if d.Results == nil {
		for _, p := range s.Outputs() {
			d.Results = append(d.Results, p.Unit)
		}
		if s.HasResult && s.ResultUnit != nil {
			d.Results = append(d.Results, s.ResultUnit)
		}
	}
	if len(d.Units) != len(s.Inputs()) {
		return fmt.Errorf("codeinterface: method %s: %d units for %d inputs", d.Public, len(d.Units), len(s.Inputs()))
	}
	h.defs[d.Public] = &d
	return nil
}

// UnitMethod is a legacy function that takes and returns quantities.
type UnitMethod struct {
	def  *MethodDefinition
	code *Code
	f    incode.Method
}

// Definition returns the declaration of the method.
func (m *UnitMethod) Definition() MethodDefinition { return *m.def }

// Call converts quantity arguments to the units of the function, calls
// it, checks the error codes and attaches units to the outputs.
func (m *UnitMethod) Call(args ...interface{}) ([]interface{}, error) {
	if len(args) > len(m.def.Units) {
		return nil, fmt.Errorf("codeinterface: %s takes %d arguments, got %d", m.def.Public, len(m.def.Units), len(args))
	}
	plain := make([]interface{}, len(args))
	for i, a := range args {
		var err error
		if plain[i], err = toPlain(a, m.def.Units[i]); err != nil {
			return nil, fmt.Errorf("codeinterface: %s: argument %d: %v", m.def.Public, i, err)
		}
	}
	r, err := m.f.Call(plain, nil)
	if err != nil {
		return nil, err
	}
	spec := m.f.Specification()
	nout := len(spec.Outputs())
	out := make([]interface{}, 0, len(r.Values))
	for i, v := range r.Values {
		if r.Names[i] == legacy.ResultName && len(m.def.Results) <= nout {
			if err := m.checkCodes(r); err != nil {
				return nil, err
			}
			continue
		}
		var u *units.Unit
		if i < len(m.def.Results) {
			u = m.def.Results[i]
		}
		out = append(out, withUnit(v, u))
	}
	return out, nil
}

func (m *UnitMethod) checkCodes(r *legacy.Result) error {
	for _, c := range r.Codes() {
		desc, known := m.code.ErrorCodes.Describe(c)
		if c < 0 || known {
			return &CodeError{Method: m.def.Public, Code: m.code.Name, ErrorCode: c, Description: desc}
		}
	}
	return nil
}

// toPlain converts a quantity argument to numbers in u.
func toPlain(a interface{}, u *units.Unit) (interface{}, error) {
	switch q := a.(type) {
	case units.Quantity:
		if u == nil {
			if q.Unit == nil || q.Unit.IsNone() {
				return q.Value, nil
			}
			return nil, fmt.Errorf("expected a number, got %v", q)
		}
		return q.In(u)
	case units.Array:
		if u == nil {
			if q.Unit == nil || q.Unit.IsNone() {
				return q.Values, nil
			}
			return nil, fmt.Errorf("expected numbers, got values in %v", q.Unit)
		}
		return q.In(u)
	}
	return a, nil
}

// withUnit attaches u to a returned value.
func withUnit(v interface{}, u *units.Unit) interface{} {
	if u == nil {
		return v
	}
	switch x := v.(type) {
	case float64:
		return units.New(x, u)
	case float32:
		return units.New(float64(x), u)
	case int32:
		return units.New(float64(x), u)
	case []float64:
		return units.NewArray(x, u)
	case []float32:
		out := make([]float64, len(x))
		for i, y := range x {
			out[i] = float64(y)
		}
		return units.NewArray(out, u)
	case []int32:
		out := make([]float64, len(x))
		for i, y := range x {
			out[i] = float64(y)
		}
		return units.NewArray(out, u)
	}
	return v
}

// propertyDefinition is a read-only quantity backed by a legacy function
// without inputs.
type propertyDefinition struct {
	function string
	unit     *units.Unit
}

// PropertiesHandler exposes legacy getters as read-only quantities.
type PropertiesHandler struct {
	code *Code
	defs map[string]*propertyDefinition
}

// Kind implements Handler.
func (h *PropertiesHandler) Kind() string { return "PROPERTY" }

// Supports implements Handler.
func (h *PropertiesHandler) Supports(name string, _ bool) bool {
	_, ok := h.defs[name]
	return ok
}

// Get implements Handler.
func (h *PropertiesHandler) Get(name string, _ interface{}) (interface{}, error) {
	d := h.defs[name]
	f, err := h.code.function(d.function)
	if err != nil {
		return nil, err
	}
	r, err := f.Call(nil, nil)
	if err != nil {
		return nil, err
	}
	s := f.Specification()
	var v interface{}
	if out := s.Outputs(); len(out) > 0 {
		v, _ = r.Get(out[0].Name)
		if s.HasResult && s.ResultType == legacy.Int32 {
			if c := r.Code(); c < 0 {
				return nil, fmt.Errorf("calling '%s' to get the value for property '%s' resulted in an error (errorcode %d)", d.function, name, c)
			}
		}
	} else {
		v, _ = r.Get(legacy.ResultName)
	}
	q, ok := withUnit(v, d.unit).(units.Quantity)
	if !ok {
		return nil, fmt.Errorf("codeinterface: property %s: %s returned %T", name, d.function, v)
	}
	return q, nil
}

// AttributeNames implements Handler.
func (h *PropertiesHandler) AttributeNames() []string {
	out := make([]string, 0, len(h.defs))
	for n := range h.defs {
		out = append(out, n)
	}
	return out
}

// Add defines a property. Without a public name the function name
// without its "get_" prefix is used.
func (h *PropertiesHandler) Add(function string, u *units.Unit, public string) {
	if public == "" {
		public = function
		if len(public) > 4 && public[:4] == "get_" {
			public = public[4:]
		}
	}
	if u == nil {
		u = units.None
	}
	h.defs[public] = &propertyDefinition{function: function, unit: u}
}

// Property returns the value of property name.
func (c *Code) Property(name string) (units.Quantity, error) {
	v, err := c.Attr(name)
	if err != nil {
		return units.Quantity{}, err
	}
	q, ok := v.(units.Quantity)
	if !ok {
		return units.Quantity{}, fmt.Errorf("codeinterface: %s of a '%s' is not a quantity", name, c.Name)
	}
	return q, nil
}
