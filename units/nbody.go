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

	"github.com/ctessum/unit"
	"gonum.org/v1/gonum/mat"
)

// Dimensions of the generic N-body unit system, in which the
// gravitational constant is one.
var (
	NBodyLengthDim = unit.NewDimension("length")
	NBodyMassDim   = unit.NewDimension("mass")
	NBodyTimeDim   = unit.NewDimension("time")
)

// Units of the generic N-body system.
var (
	NBodyLength = Define("length", 1, unit.Dimensions{NBodyLengthDim: 1})
	NBodyMass   = Define("mass", 1, unit.Dimensions{NBodyMassDim: 1})
	NBodyTime   = Define("time", 1, unit.Dimensions{NBodyTimeDim: 1})

	NBodySpeed        = NBodyLength.Div(NBodyTime)
	NBodyAcceleration = NBodyLength.Div(NBodyTime.Pow(2))
	NBodyEnergy       = NBodyMass.Mul(NBodyLength.Pow(2)).Div(NBodyTime.Pow(2))
	NBodyPotential    = NBodyLength.Pow(2).Div(NBodyTime.Pow(2))

	// NBodyG is the gravitational constant in N-body units.
	NBodyG = New(1, NBodyLength.Pow(3).Div(NBodyMass).Div(NBodyTime.Pow(2)))
)

func init() {
	baseSymbols[NBodyLengthDim] = "length"
	baseSymbols[NBodyMassDim] = "mass"
	baseSymbols[NBodyTimeDim] = "time"
}

// Converter converts quantities between a source unit system (the one a
// code works in) and a target unit system (the one its user works in).
type Converter interface {
	FromSourceToTarget(q Quantity) (Quantity, error)
	FromTargetToSource(q Quantity) (Quantity, error)
}

// ArrayToTarget converts a from the source to the target system of c.
func ArrayToTarget(c Converter, a Array) (Array, error) {
	return convertArray(c.FromSourceToTarget, a)
}

// ArrayToSource converts a from the target to the source system of c.
func ArrayToSource(c Converter, a Array) (Array, error) {
	return convertArray(c.FromTargetToSource, a)
}

func convertArray(f func(Quantity) (Quantity, error), a Array) (Array, error) {
	if a.Unit == nil || a.Unit.kind != physical {
		return a, nil
	}
	one, err := f(Quantity{Value: 1, Unit: a.Unit})
	if err != nil {
		return Array{}, err
	}
	out := a.Scale(one.Value)
	out.Unit = one.Unit
	return out, nil
}

// NBodyConverter relates N-body units to SI units through one length,
// mass and time scale, chosen such that G is one.
type NBodyConverter struct {
	length, mass, time float64 // SI value of one N-body unit
}

// NewNBodyConverter creates a converter from two SI quantities that
// correspond to one N-body unit each, for example a mass and a length.
// The quantities must be dimensionally independent.
func NewNBodyConverter(value1, value2 Quantity) (*NBodyConverter, error) {
	a := mat.NewDense(3, 3, nil)
	b := mat.NewVecDense(3, nil)
	for i, q := range []Quantity{value1, value2} {
		if q.Unit == nil {
			return nil, fmt.Errorf("units: nbody converter: quantity %d has no unit", i)
		}
		l, m, t, ok := siPowers(q.Unit.Dimensions())
		if !ok {
			return nil, fmt.Errorf("units: nbody converter: %s is not a combination of length, mass and time", q.Unit)
		}
		a.Set(i, 0, float64(l))
		a.Set(i, 1, float64(m))
		a.Set(i, 2, float64(t))
		b.SetVec(i, math.Log(q.SI()))
	}
	// G = 1 length^3 mass^-1 time^-2
	a.Set(2, 0, 3)
	a.Set(2, 1, -1)
	a.Set(2, 2, -2)
	b.SetVec(2, math.Log(GravitationalConstant.SI()))

	var x mat.VecDense
	if err := x.SolveVec(a, b); err != nil {
		return nil, fmt.Errorf("units: nbody converter: %s and %s are not independent: %v", value1, value2, err)
	}
	return &NBodyConverter{
		length: math.Exp(x.AtVec(0)),
		mass:   math.Exp(x.AtVec(1)),
		time:   math.Exp(x.AtVec(2)),
	}, nil
}

func siPowers(d unit.Dimensions) (l, m, t int, ok bool) {
	for dim, p := range d {
		switch dim {
		case unit.LengthDim:
			l = p
		case unit.MassDim:
			m = p
		case unit.TimeDim:
			t = p
		default:
			return 0, 0, 0, false
		}
	}
	return l, m, t, true
}

func nbodyPowers(d unit.Dimensions) (l, m, t int, ok bool) {
	for dim, p := range d {
		switch dim {
		case NBodyLengthDim:
			l = p
		case NBodyMassDim:
			m = p
		case NBodyTimeDim:
			t = p
		default:
			return 0, 0, 0, false
		}
	}
	return l, m, t, true
}

func (c *NBodyConverter) scale(l, m, t int) float64 {
	return math.Pow(c.length, float64(l)) * math.Pow(c.mass, float64(m)) * math.Pow(c.time, float64(t))
}

// ToSI converts an N-body quantity to SI base units. Quantities that
// carry no N-body dimensions are returned unchanged.
func (c *NBodyConverter) ToSI(q Quantity) (Quantity, error) {
	if q.Unit == nil || q.Unit.kind != physical || len(q.Unit.Dimensions()) == 0 {
		return q, nil
	}
	l, m, t, ok := nbodyPowers(q.Unit.Dimensions())
	if !ok {
		if _, _, _, si := siPowers(q.Unit.Dimensions()); si {
			return q, nil
		}
		return Quantity{}, fmt.Errorf("units: cannot convert %s to SI: mixed unit systems", q.Unit)
	}
	v := q.Value * q.Unit.Factor() * c.scale(l, m, t)
	return Quantity{Value: v, Unit: siUnit(l, m, t)}, nil
}

// ToNBody converts an SI quantity to N-body units. Quantities that
// carry no SI dimensions are returned unchanged.
func (c *NBodyConverter) ToNBody(q Quantity) (Quantity, error) {
	if q.Unit == nil || q.Unit.kind != physical || len(q.Unit.Dimensions()) == 0 {
		return q, nil
	}
	l, m, t, ok := siPowers(q.Unit.Dimensions())
	if !ok {
		if _, _, _, nb := nbodyPowers(q.Unit.Dimensions()); nb {
			return q, nil
		}
		return Quantity{}, fmt.Errorf("units: cannot convert %s to nbody units: mixed unit systems", q.Unit)
	}
	v := q.SI() / c.scale(l, m, t)
	return Quantity{Value: v, Unit: nbodyUnit(l, m, t)}, nil
}

// FromSourceToTarget converts N-body to SI.
func (c *NBodyConverter) FromSourceToTarget(q Quantity) (Quantity, error) { return c.ToSI(q) }

// FromTargetToSource converts SI to N-body.
func (c *NBodyConverter) FromTargetToSource(q Quantity) (Quantity, error) { return c.ToNBody(q) }

func siUnit(l, m, t int) *Unit {
	return baseUnit(nonZero(unit.Dimensions{unit.LengthDim: l, unit.MassDim: m, unit.TimeDim: t}))
}

func nbodyUnit(l, m, t int) *Unit {
	return baseUnit(nonZero(unit.Dimensions{NBodyLengthDim: l, NBodyMassDim: m, NBodyTimeDim: t}))
}

func nonZero(d unit.Dimensions) unit.Dimensions {
	for k, p := range d {
		if p == 0 {
			delete(d, k)
		}
	}
	return d
}
