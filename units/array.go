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

package units

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// Array is a column of values sharing one unit.
type Array struct {
	Values []float64
	Unit   *Unit
}

// NewArray returns an Array holding values in unit u. The slice is not copied.
func NewArray(values []float64, u *Unit) Array { return Array{Values: values, Unit: u} }

// Zeros returns an Array of n zeros in unit u.
func Zeros(n int, u *Unit) Array { return Array{Values: make([]float64, n), Unit: u} }

// Fill returns an Array of n copies of q.
func Fill(n int, q Quantity) Array {
	a := Array{Values: make([]float64, n), Unit: q.Unit}
	for i := range a.Values {
		a.Values[i] = q.Value
	}
	return a
}

// Len returns the number of values.
func (a Array) Len() int { return len(a.Values) }

// At returns element i.
func (a Array) At(i int) Quantity { return Quantity{Value: a.Values[i], Unit: a.Unit} }

// Copy returns a deep copy of a.
func (a Array) Copy() Array {
	v := make([]float64, len(a.Values))
	copy(v, a.Values)
	return Array{Values: v, Unit: a.Unit}
}

// In returns a new slice holding the values of a expressed in u.
func (a Array) In(u *Unit) ([]float64, error) {
	if a.Unit == nil {
		return nil, fmt.Errorf("units: array has no unit")
	}
	f, err := a.Unit.ConversionFactor(u)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(a.Values))
	copy(out, a.Values)
	if f != 1 {
		floats.Scale(f, out)
	}
	return out, nil
}

// As returns a converted to u.
func (a Array) As(u *Unit) (Array, error) {
	v, err := a.In(u)
	if err != nil {
		return Array{}, err
	}
	return Array{Values: v, Unit: u}, nil
}

func (a Array) checkLen(b Array) error {
	if len(a.Values) != len(b.Values) {
		return fmt.Errorf("units: array lengths differ (%d != %d)", len(a.Values), len(b.Values))
	}
	return nil
}

// Add returns the elementwise sum in the unit of a.
func (a Array) Add(b Array) (Array, error) {
	if err := a.checkLen(b); err != nil {
		return Array{}, err
	}
	v, err := b.In(a.Unit)
	if err != nil {
		return Array{}, err
	}
	floats.Add(v, a.Values)
	return Array{Values: v, Unit: a.Unit}, nil
}

// Sub returns the elementwise difference a-b in the unit of a.
func (a Array) Sub(b Array) (Array, error) {
	if err := a.checkLen(b); err != nil {
		return Array{}, err
	}
	v, err := b.In(a.Unit)
	if err != nil {
		return Array{}, err
	}
	out := make([]float64, len(v))
	floats.SubTo(out, a.Values, v)
	return Array{Values: out, Unit: a.Unit}, nil
}

// AddQuantity adds q to every element.
func (a Array) AddQuantity(q Quantity) (Array, error) {
	v, err := q.In(a.Unit)
	if err != nil {
		return Array{}, err
	}
	out := a.Copy()
	floats.AddConst(v, out.Values)
	return out, nil
}

// Mul returns the elementwise product; units multiply.
func (a Array) Mul(b Array) (Array, error) {
	if err := a.checkLen(b); err != nil {
		return Array{}, err
	}
	out := make([]float64, len(a.Values))
	floats.MulTo(out, a.Values, b.Values)
	return Array{Values: out, Unit: a.Unit.Mul(b.Unit)}, nil
}

// MulQuantity multiplies every element by q.
func (a Array) MulQuantity(q Quantity) Array {
	out := a.Copy()
	floats.Scale(q.Value, out.Values)
	if q.Unit != nil {
		out.Unit = a.Unit.Mul(q.Unit)
	}
	return out
}

// Scale multiplies every element by f.
func (a Array) Scale(f float64) Array {
	out := a.Copy()
	floats.Scale(f, out.Values)
	return out
}

// Sum returns the sum of the elements.
func (a Array) Sum() Quantity {
	if len(a.Values) == 0 {
		return Zero
	}
	return Quantity{Value: floats.Sum(a.Values), Unit: a.Unit}
}

// Max returns the largest element.
func (a Array) Max() Quantity { return Quantity{Value: floats.Max(a.Values), Unit: a.Unit} }

// Min returns the smallest element.
func (a Array) Min() Quantity { return Quantity{Value: floats.Min(a.Values), Unit: a.Unit} }

// Select returns the elements at the given positions.
func (a Array) Select(index []int) Array {
	out := Array{Values: make([]float64, len(index)), Unit: a.Unit}
	for i, j := range index {
		out.Values[i] = a.Values[j]
	}
	return out
}

// Concatenate joins arrays, converting each to the unit of the first
// array with a unit.
func Concatenate(arrays ...Array) (Array, error) {
	var u *Unit
	n := 0
	for _, a := range arrays {
		if u == nil && len(a.Values) > 0 {
			u = a.Unit
		}
		n += len(a.Values)
	}
	out := Array{Values: make([]float64, 0, n), Unit: u}
	for _, a := range arrays {
		if len(a.Values) == 0 {
			continue
		}
		v, err := a.In(u)
		if err != nil {
			return Array{}, err
		}
		out.Values = append(out.Values, v...)
	}
	if out.Unit == nil && len(arrays) > 0 {
		out.Unit = arrays[0].Unit
	}
	return out, nil
}

func (a Array) String() string {
	return fmt.Sprintf("%v %s", a.Values, a.Unit)
}
