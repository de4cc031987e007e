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
	"bytes"
	"fmt"

	"github.com/spatialmodel/amuse/units"
)

// ResultName is the name under which the return value of a function is
// reported when the function also has output parameters.
const ResultName = "__result"

// Parameter describes one argument of a legacy function.
type Parameter struct {
	Name        string
	Type        DataType
	Direction   Direction
	Unit        *units.Unit
	Description string

	// Default is used when a call omits an input parameter and
	// HasDefault is true.
	Default    interface{}
	HasDefault bool
}

// ParameterOption sets optional properties of a Parameter.
type ParameterOption func(*Parameter)

// WithDefault sets the value used when the parameter is omitted.
func WithDefault(v interface{}) ParameterOption {
	return func(p *Parameter) {
		p.Default = v
		p.HasDefault = true
	}
}

// WithUnit records the physical unit of the parameter.
func WithUnit(u *units.Unit) ParameterOption {
	return func(p *Parameter) { p.Unit = u }
}

// WithDescription documents the parameter.
func WithDescription(d string) ParameterOption {
	return func(p *Parameter) { p.Description = d }
}

// Specification describes the signature of a function implemented by a
// worker.
type Specification struct {
	Name string
	Tag  int32

	Parameters []Parameter

	// HasResult is true when the function returns a value of ResultType.
	HasResult  bool
	ResultType DataType
	ResultUnit *units.Unit
	ResultDoc  string

	// CanHandleArray is true when the function accepts a batch of
	// entities per call. MustHandleArray additionally makes every reply
	// an array, also for calls with scalar arguments.
	CanHandleArray  bool
	MustHandleArray bool

	Description string
}

// NewSpecification starts the specification of the function name,
// addressed on the wire by tag.
func NewSpecification(name string, tag int32) *Specification {
	return &Specification{Name: name, Tag: tag}
}

// AddParameter appends a parameter. The order of the calls is the order
// of the arguments.
func (s *Specification) AddParameter(name string, t DataType, dir Direction, opts ...ParameterOption) *Specification {
	p := Parameter{Name: name, Type: t, Direction: dir}
	for _, o := range opts {
		o(&p)
	}
	s.Parameters = append(s.Parameters, p)
	return s
}

// Returns sets the result type of the function.
func (s *Specification) Returns(t DataType, doc string) *Specification {
	s.HasResult = true
	s.ResultType = t
	s.ResultDoc = doc
	return s
}

// Arrays marks the function as accepting batches of entities.
func (s *Specification) Arrays(must bool) *Specification {
	s.CanHandleArray = true
	s.MustHandleArray = must
	return s
}

// Describe sets the documentation of the function.
func (s *Specification) Describe(d string) *Specification {
	s.Description = d
	return s
}

// Inputs returns the parameters sent to the worker, in declaration order.
func (s *Specification) Inputs() []Parameter {
	var out []Parameter
	for _, p := range s.Parameters {
		if p.Direction.IsInput() {
			out = append(out, p)
		}
	}
	return out
}

// Outputs returns the parameters returned by the worker, in declaration
// order.
func (s *Specification) Outputs() []Parameter {
	var out []Parameter
	for _, p := range s.Parameters {
		if p.Direction.IsOutput() {
			out = append(out, p)
		}
	}
	return out
}

// Parameter returns the parameter called name.
func (s *Specification) Parameter(name string) (Parameter, bool) {
	for _, p := range s.Parameters {
		if p.Name == name {
			return p, true
		}
	}
	return Parameter{}, false
}

// ResultNames returns the names of the values in a reply: the output
// parameters followed by ResultName if the function has a result.
func (s *Specification) ResultNames() []string {
	var names []string
	for _, p := range s.Outputs() {
		names = append(names, p.Name)
	}
	if s.HasResult {
		names = append(names, ResultName)
	}
	return names
}

// String formats the signature of the function, for example
//
//	function: int get_mass(int index)
//	output: double mass, int __result
func (s *Specification) String() string {
	var b bytes.Buffer
	b.WriteString("function: ")
	if s.HasResult {
		b.WriteString(s.ResultType.cName())
	} else {
		b.WriteString("void")
	}
	fmt.Fprintf(&b, " %s(", s.Name)
	for i, p := range s.Inputs() {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s %s", p.Type.cName(), p.Name)
	}
	b.WriteString(")")
	outputs := s.Outputs()
	if len(outputs) > 0 {
		b.WriteString("\noutput: ")
		for i, p := range outputs {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s %s", p.Type.cName(), p.Name)
		}
		if s.HasResult {
			fmt.Fprintf(&b, ", %s %s", s.ResultType.cName(), ResultName)
		}
	}
	return b.String()
}
