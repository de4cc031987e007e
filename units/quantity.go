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
)

// Quantity is a scalar value with a unit. The zero Quantity has no unit
// and acts as an exact zero that adopts the unit of whatever it is
// combined with.
type Quantity struct {
	Value float64
	Unit  *Unit
}

// New returns a quantity of value v in unit u.
func New(v float64, u *Unit) Quantity { return Quantity{Value: v, Unit: u} }

// Zero is the unit-adapting zero quantity.
var Zero = Quantity{}

// IsZero reports whether q is the unit-adapting zero.
func (q Quantity) IsZero() bool { return q.Unit == nil && q.Value == 0 }

// In returns the value of q expressed in u.
func (q Quantity) In(u *Unit) (float64, error) {
	if q.Unit == nil {
		if q.Value == 0 {
			return 0, nil
		}
		return 0, fmt.Errorf("units: quantity %g has no unit", q.Value)
	}
	f, err := q.Unit.ConversionFactor(u)
	if err != nil {
		return 0, err
	}
	return q.Value * f, nil
}

// As returns q converted to u.
func (q Quantity) As(u *Unit) (Quantity, error) {
	v, err := q.In(u)
	if err != nil {
		return Quantity{}, err
	}
	return Quantity{Value: v, Unit: u}, nil
}

// SI returns the value of q in SI base units.
func (q Quantity) SI() float64 {
	if q.Unit == nil {
		return q.Value
	}
	return q.Value * q.Unit.Factor()
}

// Add returns q+o in the unit of q.
func (q Quantity) Add(o Quantity) (Quantity, error) {
	if q.IsZero() {
		return o, nil
	}
	v, err := o.In(q.Unit)
	if err != nil {
		return Quantity{}, err
	}
	return Quantity{Value: q.Value + v, Unit: q.Unit}, nil
}

// Sub returns q-o in the unit of q.
func (q Quantity) Sub(o Quantity) (Quantity, error) {
	return q.Add(o.Scale(-1))
}

// Mul returns the product of q and o.
func (q Quantity) Mul(o Quantity) Quantity {
	if q.Unit == nil || o.Unit == nil {
		return Quantity{}
	}
	return Quantity{Value: q.Value * o.Value, Unit: q.Unit.Mul(o.Unit)}
}

// Div returns q divided by o.
func (q Quantity) Div(o Quantity) Quantity {
	if q.Unit == nil {
		return Quantity{}
	}
	return Quantity{Value: q.Value / o.Value, Unit: q.Unit.Div(o.Unit)}
}

// Scale returns q multiplied by a plain number.
func (q Quantity) Scale(f float64) Quantity {
	return Quantity{Value: q.Value * f, Unit: q.Unit}
}

// Sqrt returns the square root of q. The unit must have even powers.
func (q Quantity) Sqrt() (Quantity, error) {
	if q.Unit == nil {
		return q, nil
	}
	for d, p := range q.Unit.Dimensions() {
		if p%2 != 0 {
			return Quantity{}, fmt.Errorf("units: cannot take the square root of %s (dimension %v has power %d)", q.Unit, d, p)
		}
	}
	b := q.Unit.Base()
	v, err := q.In(b)
	if err != nil {
		return Quantity{}, err
	}
	root := b
	if !b.IsNone() {
		root = sqrtUnit(b)
	}
	return Quantity{Value: math.Sqrt(v), Unit: root}, nil
}

func sqrtUnit(b *Unit) *Unit {
	terms := make([]term, len(b.terms))
	for i, t := range b.terms {
		terms[i] = term{symbol: t.symbol, pow: t.pow / 2}
	}
	var u *Unit
	for _, t := range terms {
		s, _ := Lookup(t.symbol)
		s = s.Pow(t.pow)
		if u == nil {
			u = s
		} else {
			u = u.Mul(s)
		}
	}
	return u
}

// Compare returns -1, 0 or 1 depending on whether q is less than, equal to
// or greater than o.
func (q Quantity) Compare(o Quantity) (int, error) {
	var a, b float64
	switch {
	case q.IsZero():
		b = o.Value
	case o.IsZero():
		a = q.Value
	default:
		a = q.Value
		var err error
		b, err = o.In(q.Unit)
		if err != nil {
			return 0, err
		}
	}
	switch {
	case a < b:
		return -1, nil
	case a > b:
		return 1, nil
	}
	return 0, nil
}

// Less reports whether q < o. Incompatible units compare as false.
func (q Quantity) Less(o Quantity) bool {
	c, err := q.Compare(o)
	return err == nil && c < 0
}

func (q Quantity) String() string {
	if q.Unit == nil {
		return fmt.Sprintf("%g", q.Value)
	}
	if q.Unit.IsNone() {
		return fmt.Sprintf("%g", q.Value)
	}
	return fmt.Sprintf("%g %s", q.Value, q.Unit)
}
