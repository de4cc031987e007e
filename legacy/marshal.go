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

	"github.com/spatialmodel/amuse/message"
)

// The functions in this file are shared by hosts and workers, so both
// sides agree on where every parameter travels in a message.

func appendColumn(m *message.Message, col interface{}) {
	switch c := col.(type) {
	case []float64:
		m.Doubles = append(m.Doubles, c...)
	case []int32:
		m.Ints = append(m.Ints, c...)
	case []float32:
		m.Floats = append(m.Floats, c...)
	case []string:
		m.Strings = append(m.Strings, c...)
	case []bool:
		m.Booleans = append(m.Booleans, c...)
	case []int64:
		m.Longs = append(m.Longs, c...)
	}
}

// reader takes consecutive columns out of the typed arrays of a message.
type reader struct {
	m      *message.Message
	offset [6]int
}

func (r *reader) column(t DataType, n int) (interface{}, error) {
	begin := r.offset[t]
	end := begin + n
	var have int
	switch t {
	case Float64:
		have = len(r.m.Doubles)
	case Int32:
		have = len(r.m.Ints)
	case Float32:
		have = len(r.m.Floats)
	case String:
		have = len(r.m.Strings)
	case Bool:
		have = len(r.m.Booleans)
	case Int64:
		have = len(r.m.Longs)
	}
	if end > have {
		return nil, fmt.Errorf("legacy: message has %d %v values, need at least %d", have, t, end)
	}
	r.offset[t] = end
	switch t {
	case Float64:
		return append([]float64(nil), r.m.Doubles[begin:end]...), nil
	case Int32:
		return append([]int32(nil), r.m.Ints[begin:end]...), nil
	case Float32:
		return append([]float32(nil), r.m.Floats[begin:end]...), nil
	case String:
		return append([]string(nil), r.m.Strings[begin:end]...), nil
	case Bool:
		return append([]bool(nil), r.m.Booleans[begin:end]...), nil
	default:
		return append([]int64(nil), r.m.Longs[begin:end]...), nil
	}
}

// EncodeCall builds the call message for in, which must hold a column
// for every input parameter of s.
func EncodeCall(s *Specification, in *Batch) (*message.Message, error) {
	m := message.New(s.Tag, in.Length)
	for _, p := range s.Inputs() {
		col := in.Column(p.Name)
		if col == nil {
			return nil, fmt.Errorf("legacy: %s: no values for parameter %s", s.Name, p.Name)
		}
		if l, _ := columnLen(col); l != in.Length {
			return nil, fmt.Errorf("legacy: %s: parameter %s has %d values, want %d", s.Name, p.Name, l, in.Length)
		}
		appendColumn(m, col)
	}
	return m, nil
}

// DecodeCall extracts the input parameters of s from a call message.
// Each Length parameter is given the number of entities in the call.
func DecodeCall(s *Specification, m *message.Message) (*Batch, error) {
	r := &reader{m: m}
	in := NewBatch(int(m.Length))
	for _, p := range s.Parameters {
		if p.Direction == Length {
			n := make([]int32, in.Length)
			for i := range n {
				n[i] = int32(m.Length)
			}
			in.Set(p.Name, n)
			continue
		}
		if !p.Direction.IsInput() {
			continue
		}
		col, err := r.column(p.Type, in.Length)
		if err != nil {
			return nil, fmt.Errorf("%v (parameter %s of %s)", err, p.Name, s.Name)
		}
		in.Set(p.Name, col)
	}
	return in, nil
}

// NewReply returns a batch holding zeroed output columns, and the result
// column if s has a result, for the call in. Output parameters that are
// also inputs start with their input values.
func NewReply(s *Specification, in *Batch) *Batch {
	out := NewBatch(in.Length)
	for _, p := range s.Outputs() {
		col := zeroColumn(p.Type, in.Length)
		if p.Direction == InOut {
			copyColumn(col, in.Column(p.Name))
		}
		out.Set(p.Name, col)
	}
	if s.HasResult {
		out.Set(ResultName, zeroColumn(s.ResultType, in.Length))
	}
	return out
}

func copyColumn(dst, src interface{}) {
	switch d := dst.(type) {
	case []float64:
		s, _ := src.([]float64)
		copy(d, s)
	case []int32:
		s, _ := src.([]int32)
		copy(d, s)
	case []float32:
		s, _ := src.([]float32)
		copy(d, s)
	case []string:
		s, _ := src.([]string)
		copy(d, s)
	case []bool:
		s, _ := src.([]bool)
		copy(d, s)
	case []int64:
		s, _ := src.([]int64)
		copy(d, s)
	}
}

// EncodeReply builds the reply message for out. Within the array of its
// type the result comes before the output parameters.
func EncodeReply(s *Specification, out *Batch) (*message.Message, error) {
	m := message.New(s.Tag, out.Length)
	if s.HasResult {
		col := out.Column(ResultName)
		if l, ok := columnLen(col); !ok || l != out.Length {
			return nil, fmt.Errorf("legacy: %s: result has %d values, want %d", s.Name, l, out.Length)
		}
		appendColumn(m, col)
	}
	for _, p := range s.Outputs() {
		col := out.Column(p.Name)
		if l, ok := columnLen(col); !ok || l != out.Length {
			return nil, fmt.Errorf("legacy: %s: output %s has %d values, want %d", s.Name, p.Name, l, out.Length)
		}
		appendColumn(m, col)
	}
	return m, nil
}

// DecodeReply extracts the outputs and result of s from a reply message.
func DecodeReply(s *Specification, m *message.Message) (*Batch, error) {
	r := &reader{m: m}
	out := NewBatch(int(m.Length))
	if s.HasResult {
		col, err := r.column(s.ResultType, out.Length)
		if err != nil {
			return nil, fmt.Errorf("%v (result of %s)", err, s.Name)
		}
		out.Set(ResultName, col)
	}
	for _, p := range s.Outputs() {
		col, err := r.column(p.Type, out.Length)
		if err != nil {
			return nil, fmt.Errorf("%v (output %s of %s)", err, p.Name, s.Name)
		}
		out.Set(p.Name, col)
	}
	return out, nil
}
