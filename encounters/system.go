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

package encounters

import (
	"fmt"
	"math"

	"github.com/spatialmodel/amuse/datamodel"
	"github.com/spatialmodel/amuse/kepler"
	"github.com/spatialmodel/amuse/units"
	"gonum.org/v1/gonum/floats"
)

// state lists the attributes of a particle that encounter resolution
// reads and writes.
var state = []string{"mass", "x", "y", "z", "vx", "vy", "vz", "radius"}

// system is a set read into plain numbers: lengths in lu, speeds in vu and
// masses in mu. g is the gravitational constant in the same units, so
// times are in lu/vu.
type system struct {
	keys   []datamodel.Key
	mass   []float64
	pos    [][]float64
	vel    [][]float64
	radius []float64

	lu, vu, mu *units.Unit
	g          float64
}

// load reads p. A zero g selects the constant for the mass unit of p.
func load(p *datamodel.Particles, g units.Quantity) (*system, error) {
	m, err := p.Get("mass")
	if err != nil {
		return nil, err
	}
	pos, err := p.GetVector("position")
	if err != nil {
		return nil, err
	}
	vel, err := p.GetVector("velocity")
	if err != nil {
		return nil, err
	}
	s := &system{
		keys: p.Keys(),
		mass: append([]float64(nil), m.Values...),
		pos:  pos.Values,
		vel:  vel.Values,
		lu:   pos.Unit,
		vu:   vel.Unit,
		mu:   m.Unit,
	}
	if p.HasAttribute("radius") {
		r, err := p.Get("radius")
		if err != nil {
			return nil, err
		}
		if s.radius, err = r.In(s.lu); err != nil {
			return nil, err
		}
	} else {
		s.radius = make([]float64, len(s.keys))
	}
	if len(s.keys) == 0 {
		return s, nil
	}
	if g.Unit == nil {
		g = datamodel.G(m.Unit)
	}
	if s.g, err = g.In(s.vu.Pow(2).Mul(s.lu).Div(s.mu)); err != nil {
		return nil, fmt.Errorf("encounters: gravitational constant: %v", err)
	}
	return s, nil
}

func (s *system) len() int { return len(s.keys) }

// copyState returns a copy of s with its own positions and velocities.
func (s *system) copyState() *system {
	c := *s
	c.pos, c.vel = make([][]float64, len(s.pos)), make([][]float64, len(s.vel))
	for i := range s.pos {
		c.pos[i] = append([]float64(nil), s.pos[i]...)
		c.vel[i] = append([]float64(nil), s.vel[i]...)
	}
	return &c
}

// store writes the positions and velocities back to p, which must hold
// the particles s was loaded from, in the same order.
func (s *system) store(p *datamodel.Particles) error {
	if err := p.Assign("position", units.Vectors{Values: s.pos, Unit: s.lu}); err != nil {
		return err
	}
	return p.Assign("velocity", units.Vectors{Values: s.vel, Unit: s.vu})
}

func (s *system) com() (pos, vel []float64) {
	pos, vel = make([]float64, 3), make([]float64, 3)
	total := floats.Sum(s.mass)
	if total == 0 {
		return pos, vel
	}
	for i, m := range s.mass {
		floats.AddScaled(pos, m/total, s.pos[i])
		floats.AddScaled(vel, m/total, s.vel[i])
	}
	return pos, vel
}

// shift adds dp to every position and dv to every velocity.
func (s *system) shift(dp, dv []float64) {
	for i := range s.pos {
		floats.Add(s.pos[i], dp)
		floats.Add(s.vel[i], dv)
	}
}

func (s *system) kinetic() float64 {
	var e float64
	for i, v := range s.vel {
		e += 0.5 * s.mass[i] * floats.Dot(v, v)
	}
	return e
}

func (s *system) potential() float64 {
	var e float64
	for i := range s.pos {
		for j := i + 1; j < len(s.pos); j++ {
			e -= s.g * s.mass[i] * s.mass[j] / distance(s.pos[i], s.pos[j])
		}
	}
	return e
}

// closest returns the pair with the smallest distance between their
// surfaces.
func (s *system) closest() (int, int) {
	bi, bj, best := 0, 1, math.Inf(1)
	for i := range s.pos {
		for j := i + 1; j < len(s.pos); j++ {
			if d := distance(s.pos[i], s.pos[j]) - s.radius[i] - s.radius[j]; d < best {
				bi, bj, best = i, j, d
			}
		}
	}
	return bi, bj
}

// orbit returns the orbit of j relative to i.
func (s *system) orbit(i, j int) (*kepler.Orbit, error) {
	return relativeOrbit(s.g*(s.mass[i]+s.mass[j]), s.pos[i], s.vel[i], s.pos[j], s.vel[j])
}

func relativeOrbit(mu float64, p1, v1, p2, v2 []float64) (*kepler.Orbit, error) {
	r, v := make([]float64, 3), make([]float64, 3)
	floats.SubTo(r, p2, p1)
	floats.SubTo(v, v2, v1)
	return kepler.New(mu, r, v)
}

func negated(v []float64) []float64 {
	out := append([]float64(nil), v...)
	floats.Scale(-1, out)
	return out
}

func distance(a, b []float64) float64 {
	d := make([]float64, len(a))
	floats.SubTo(d, a, b)
	return floats.Norm(d, 2)
}

// stateCopy returns an in-memory copy of the state attributes of p with
// the same keys. A missing radius is zero.
func stateCopy(p *datamodel.Particles) (*datamodel.Particles, error) {
	keys := p.Keys()
	names := state
	if !p.HasAttribute("radius") {
		names = state[:len(state)-1]
	}
	values, err := p.GetValues(keys, names)
	if err != nil {
		return nil, err
	}
	if len(names) < len(state) {
		names = state
		values = append(values, units.Zeros(len(keys), values[1].Unit))
	}
	s := datamodel.NewInMemoryStorage()
	if err := s.Add(keys, names, values); err != nil {
		return nil, err
	}
	return datamodel.NewParticlesWithStorage(s), nil
}

// clearTree sets null child references on every particle of p.
func clearTree(p *datamodel.Particles) error {
	none := datamodel.References(make([]datamodel.Key, p.Len()))
	if err := p.Assign(datamodel.Child1, none); err != nil {
		return err
	}
	return p.Assign(datamodel.Child2, none.Copy())
}
