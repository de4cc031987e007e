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
	"math"

	"github.com/spatialmodel/amuse/units"
	"gonum.org/v1/gonum/floats"
)

// G returns the gravitational constant in the unit system of mass unit
// m: 1 for nbody masses, the SI value otherwise.
func G(m *units.Unit) units.Quantity {
	if m.Compatible(units.NBodyMass) {
		return units.NBodyG
	}
	return units.GravitationalConstant
}

// TotalMass returns the sum of the masses.
func (p *Particles) TotalMass() (units.Quantity, error) {
	m, err := p.Get("mass")
	if err != nil {
		return units.Quantity{}, err
	}
	return m.Sum(), nil
}

func (p *Particles) massWeighted(name string) (units.Vector, error) {
	m, err := p.Get("mass")
	if err != nil {
		return units.Vector{}, err
	}
	v, err := p.GetVector(name)
	if err != nil {
		return units.Vector{}, err
	}
	total := floats.Sum(m.Values)
	if total == 0 {
		return units.Vector{}, fmt.Errorf("datamodel: %s of a set without mass", name)
	}
	out := units.Vector{Values: make([]float64, 3), Unit: v.Unit}
	for i, row := range v.Values {
		floats.AddScaled(out.Values, m.Values[i]/total, row)
	}
	return out, nil
}

// CenterOfMass returns the mass-weighted mean position.
func (p *Particles) CenterOfMass() (units.Vector, error) { return p.massWeighted("position") }

// CenterOfMassVelocity returns the mass-weighted mean velocity.
func (p *Particles) CenterOfMassVelocity() (units.Vector, error) { return p.massWeighted("velocity") }

// KineticEnergy returns the sum of m v^2 / 2.
func (p *Particles) KineticEnergy() (units.Quantity, error) {
	m, err := p.Get("mass")
	if err != nil {
		return units.Quantity{}, err
	}
	v, err := p.GetVector("velocity")
	if err != nil {
		return units.Quantity{}, err
	}
	var e float64
	for i, row := range v.Values {
		e += 0.5 * m.Values[i] * floats.Dot(row, row)
	}
	return units.New(e, m.Unit.Mul(v.Unit.Pow(2))), nil
}

// PotentialEnergy returns the gravitational binding energy of the set,
// with pairwise distances softened by eps2 (a squared length, or the zero
// quantity). If g has no unit the constant for the mass unit is used.
func (p *Particles) PotentialEnergy(eps2, g units.Quantity) (units.Quantity, error) {
	m, err := p.Get("mass")
	if err != nil {
		return units.Quantity{}, err
	}
	pos, err := p.GetVector("position")
	if err != nil {
		return units.Quantity{}, err
	}
	e2, err := eps2.In(pos.Unit.Pow(2))
	if err != nil {
		return units.Quantity{}, err
	}
	if g.Unit == nil {
		g = G(m.Unit)
	}
	var sum float64
	d := make([]float64, 3)
	for i := range pos.Values {
		for j := i + 1; j < len(pos.Values); j++ {
			floats.SubTo(d, pos.Values[i], pos.Values[j])
			sum += m.Values[i] * m.Values[j] / math.Sqrt(floats.Dot(d, d)+e2)
		}
	}
	q := units.New(-sum, m.Unit.Pow(2).Div(pos.Unit))
	return g.Mul(q), nil
}

// PotentialAt returns the gravitational potential of the set at each of
// the points.
func (p *Particles) PotentialAt(eps2, g units.Quantity, points units.Vectors) (units.Array, error) {
	m, pos, e2, err := p.fieldSources(eps2, points)
	if err != nil {
		return units.Array{}, err
	}
	if g.Unit == nil {
		g = G(m.Unit)
	}
	out := make([]float64, points.Len())
	d := make([]float64, 3)
	for i, x := range points.Values {
		for j, y := range pos {
			floats.SubTo(d, x, y)
			r2 := floats.Dot(d, d) + e2
			if r2 == 0 {
				continue
			}
			out[i] -= m.Values[j] / math.Sqrt(r2)
		}
	}
	u := g.Unit.Mul(m.Unit).Div(points.Unit)
	return units.NewArray(out, u).Scale(g.Value), nil
}

// PotentialEnergyInField returns the potential energy of the set in the
// field of o: the sum over p of mass times the potential of o.
func (p *Particles) PotentialEnergyInField(o *Particles, eps2, g units.Quantity) (units.Quantity, error) {
	m, err := p.Get("mass")
	if err != nil {
		return units.Quantity{}, err
	}
	pos, err := p.GetVector("position")
	if err != nil {
		return units.Quantity{}, err
	}
	phi, err := o.PotentialAt(eps2, g, pos)
	if err != nil {
		return units.Quantity{}, err
	}
	e, err := m.Mul(phi)
	if err != nil {
		return units.Quantity{}, err
	}
	return e.Sum(), nil
}

// AccelerationAt returns the gravitational acceleration due to the set at
// each of the points, one column per axis.
func (p *Particles) AccelerationAt(eps2, g units.Quantity, points units.Vectors) ([]units.Array, error) {
	m, pos, e2, err := p.fieldSources(eps2, points)
	if err != nil {
		return nil, err
	}
	if g.Unit == nil {
		g = G(m.Unit)
	}
	u := g.Unit.Mul(m.Unit).Div(points.Unit.Pow(2))
	out := []units.Array{
		units.Zeros(points.Len(), u), units.Zeros(points.Len(), u), units.Zeros(points.Len(), u),
	}
	d := make([]float64, 3)
	for i, x := range points.Values {
		for j, y := range pos {
			floats.SubTo(d, y, x)
			r2 := floats.Dot(d, d) + e2
			if r2 == 0 {
				continue
			}
			f := g.Value * m.Values[j] / (r2 * math.Sqrt(r2))
			for k := range out {
				out[k].Values[i] += f * d[k]
			}
		}
	}
	return out, nil
}

// fieldSources returns the masses and the positions of p in the unit of
// points, and eps2 in that unit squared.
func (p *Particles) fieldSources(eps2 units.Quantity, points units.Vectors) (units.Array, [][]float64, float64, error) {
	m, err := p.Get("mass")
	if err != nil {
		return units.Array{}, nil, 0, err
	}
	v, err := p.GetVector("position")
	if err != nil {
		return units.Array{}, nil, 0, err
	}
	f, err := v.Unit.ConversionFactor(points.Unit)
	if err != nil {
		return units.Array{}, nil, 0, err
	}
	pos := make([][]float64, len(v.Values))
	for i, row := range v.Values {
		pos[i] = append([]float64(nil), row...)
		floats.Scale(f, pos[i])
	}
	e2, err := eps2.In(points.Unit.Pow(2))
	if err != nil {
		return units.Array{}, nil, 0, err
	}
	return m, pos, e2, nil
}

// MoveToCenter shifts positions and velocities so that the center of
// mass is at rest at the origin.
func (p *Particles) MoveToCenter() error {
	for _, name := range []string{"position", "velocity"} {
		c, err := p.massWeighted(name)
		if err != nil {
			return err
		}
		v, err := p.GetVector(name)
		if err != nil {
			return err
		}
		if v, err = v.SubVector(c); err != nil {
			return err
		}
		if err := p.Assign(name, v); err != nil {
			return err
		}
	}
	return nil
}

// Shift adds dx to every position and dv to every velocity.
func (p *Particles) Shift(dx, dv units.Vector) error {
	for _, s := range []struct {
		name string
		d    units.Vector
	}{{"position", dx}, {"velocity", dv}} {
		v, err := p.GetVector(s.name)
		if err != nil {
			return err
		}
		if v, err = v.AddVector(s.d); err != nil {
			return err
		}
		if err := p.Assign(s.name, v); err != nil {
			return err
		}
	}
	return nil
}
