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
	"math"

	"gonum.org/v1/gonum/floats"
)

// Vector is one vector quantity, such as a position.
type Vector struct {
	Values []float64
	Unit   *Unit
}

// Length returns the Euclidean norm of v.
func (v Vector) Length() Quantity {
	return Quantity{Value: floats.Norm(v.Values, 2), Unit: v.Unit}
}

// In returns the components of v in u.
func (v Vector) In(u *Unit) ([]float64, error) {
	return Array{Values: v.Values, Unit: v.Unit}.In(u)
}

// Sub returns v-w in the unit of v.
func (v Vector) Sub(w Vector) (Vector, error) {
	a, err := Array{Values: v.Values, Unit: v.Unit}.Sub(Array{Values: w.Values, Unit: w.Unit})
	return Vector(a), err
}

// Add returns v+w in the unit of v.
func (v Vector) Add(w Vector) (Vector, error) {
	a, err := Array{Values: v.Values, Unit: v.Unit}.Add(Array{Values: w.Values, Unit: w.Unit})
	return Vector(a), err
}

// Scale multiplies every component by f.
func (v Vector) Scale(f float64) Vector {
	return Vector(Array{Values: v.Values, Unit: v.Unit}.Scale(f))
}

// Vectors is a column of vectors sharing one unit, for example the
// positions of all particles in a set. Values[i] is the vector of row i.
type Vectors struct {
	Values [][]float64
	Unit   *Unit
}

// StackColumns combines scalar columns into vectors. All columns are
// converted to the unit of the first.
func StackColumns(columns ...Array) (Vectors, error) {
	if len(columns) == 0 {
		return Vectors{}, nil
	}
	u := columns[0].Unit
	n := columns[0].Len()
	out := Vectors{Values: make([][]float64, n), Unit: u}
	flat := make([]float64, n*len(columns))
	for i := range out.Values {
		out.Values[i] = flat[i*len(columns) : (i+1)*len(columns)]
	}
	for j, c := range columns {
		if c.Len() != n {
			return Vectors{}, fmt.Errorf("units: column %d has %d values, want %d", j, c.Len(), n)
		}
		v, err := c.In(u)
		if err != nil {
			return Vectors{}, err
		}
		for i, x := range v {
			out.Values[i][j] = x
		}
	}
	return out, nil
}

// Len returns the number of vectors.
func (v Vectors) Len() int { return len(v.Values) }

// At returns row i.
func (v Vectors) At(i int) Vector { return Vector{Values: v.Values[i], Unit: v.Unit} }

// Component returns column j as an Array.
func (v Vectors) Component(j int) Array {
	out := Array{Values: make([]float64, len(v.Values)), Unit: v.Unit}
	for i, row := range v.Values {
		out.Values[i] = row[j]
	}
	return out
}

// Columns splits v into its component columns.
func (v Vectors) Columns(dim int) []Array {
	out := make([]Array, dim)
	for j := range out {
		out[j] = v.Component(j)
	}
	return out
}

// Lengths returns the norm of every vector.
func (v Vectors) Lengths() Array {
	out := Array{Values: make([]float64, len(v.Values)), Unit: v.Unit}
	for i, row := range v.Values {
		out.Values[i] = floats.Norm(row, 2)
	}
	return out
}

// SubVector subtracts w from every row.
func (v Vectors) SubVector(w Vector) (Vectors, error) {
	x, err := w.In(v.Unit)
	if err != nil {
		return Vectors{}, err
	}
	out := Vectors{Values: make([][]float64, len(v.Values)), Unit: v.Unit}
	for i, row := range v.Values {
		r := make([]float64, len(row))
		floats.SubTo(r, row, x)
		out.Values[i] = r
	}
	return out, nil
}

// AddVector adds w to every row.
func (v Vectors) AddVector(w Vector) (Vectors, error) {
	return v.SubVector(w.Scale(-1))
}

// MaxLength returns the largest norm among the vectors.
func (v Vectors) MaxLength() Quantity {
	m := math.Inf(-1)
	for _, row := range v.Values {
		m = math.Max(m, floats.Norm(row, 2))
	}
	return Quantity{Value: m, Unit: v.Unit}
}
