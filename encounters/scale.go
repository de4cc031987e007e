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
	"errors"
	"fmt"
	"math"

	"github.com/spatialmodel/amuse/datamodel"
	"github.com/spatialmodel/amuse/kepler"
	"github.com/spatialmodel/amuse/units"
	"gonum.org/v1/gonum/floats"
)

// ErrCannotScaleVelocities is returned when rescaling the positions of a
// system would need more kinetic energy than it has.
var ErrCannotScaleVelocities = errors.New("encounters: cannot scale the velocities")

// spanMargin keeps a rescaled pair this fraction of its periastron to
// apastron span away from either turning point.
const spanMargin = 0.01

// Scaler moves systems along their orbits to a given size while keeping
// their energy.
type Scaler struct {
	// G is the gravitational constant. The zero quantity selects it from
	// the mass unit of the particles.
	G units.Quantity
}

func (sc Scaler) pair(p *datamodel.Particles) (*system, *kepler.Orbit, error) {
	s, err := load(p, sc.G)
	if err != nil {
		return nil, nil, err
	}
	if s.len() != 2 {
		return nil, nil, fmt.Errorf("encounters: a pair has 2 particles, not %d", s.len())
	}
	o, err := s.orbit(0, 1)
	if err != nil {
		return nil, nil, err
	}
	return s, o, nil
}

// SemimajorAxis returns the semimajor axis and the eccentricity of the
// relative orbit of the two particles of p. The axis is negative for a
// hyperbolic and infinite for a parabolic orbit.
func (sc Scaler) SemimajorAxis(p *datamodel.Particles) (units.Quantity, float64, error) {
	s, o, err := sc.pair(p)
	if err != nil {
		return units.Quantity{}, 0, err
	}
	return units.New(o.SemimajorAxis(), s.lu), o.Eccentricity(), nil
}

// extremes returns the separations at periastron and apastron. For an
// open orbit the apastron is |a|·e, or the current separation for a
// parabola.
func extremes(o *kepler.Orbit) (peri, apo float64) {
	peri = o.Periastron()
	switch a := o.SemimajorAxis(); {
	case o.IsBound():
		apo = o.Apastron()
	case math.IsInf(a, 1):
		apo = math.Max(o.Separation(), peri)
	default:
		apo = -a * o.Eccentricity()
	}
	return peri, apo
}

// Compress returns the changes in position and velocity that bring the
// pair p back along its orbit to separation scale, on the outgoing
// branch. A pair already within scale is not moved. The separation is
// kept just above periastron.
func (sc Scaler) Compress(p *datamodel.Particles, scale units.Quantity) (dpos, dvel units.Vectors, err error) {
	s, o, err := sc.pair(p)
	if err != nil {
		return dpos, dvel, err
	}
	target, err := scale.In(s.lu)
	if err != nil {
		return dpos, dvel, err
	}
	dp, dv, err := compress(s, o, target)
	return units.Vectors{Values: dp, Unit: s.lu}, units.Vectors{Values: dv, Unit: s.vu}, err
}

// Expand returns the changes in position and velocity that move the pair
// p along its orbit out to separation scale, on the outgoing branch. A
// pair already beyond scale is not moved. A bound pair is kept just
// below apastron.
func (sc Scaler) Expand(p *datamodel.Particles, scale units.Quantity) (dpos, dvel units.Vectors, err error) {
	s, o, err := sc.pair(p)
	if err != nil {
		return dpos, dvel, err
	}
	target, err := scale.In(s.lu)
	if err != nil {
		return dpos, dvel, err
	}
	dp, dv, err := expand(s, o, target)
	return units.Vectors{Values: dp, Unit: s.lu}, units.Vectors{Values: dv, Unit: s.vu}, err
}

func compress(s *system, o *kepler.Orbit, target float64) (dp, dv [][]float64, err error) {
	if o.Separation() <= target {
		return zeros(2), zeros(2), nil
	}
	peri, apo := extremes(o)
	if limit := peri + spanMargin*(apo-peri); target < limit {
		target = limit
	}
	return moveAlong(s, o, target)
}

func expand(s *system, o *kepler.Orbit, target float64) (dp, dv [][]float64, err error) {
	if o.Separation() > target {
		return zeros(2), zeros(2), nil
	}
	if o.IsBound() {
		peri, apo := extremes(o)
		if limit := apo - spanMargin*(apo-peri); target > limit {
			target = limit
		}
	}
	return moveAlong(s, o, target)
}

// moveAlong moves o to separation r and returns the changes to the pair s
// that follow from it. The center of mass does not move.
func moveAlong(s *system, o *kepler.Orbit, r float64) (dp, dv [][]float64, err error) {
	if err := o.MoveToOutgoingRadius(r); err != nil {
		return nil, nil, err
	}
	rel, relv := o.Position(), o.Velocity()
	cp, cv := s.com()
	total := s.mass[0] + s.mass[1]
	frac := []float64{-s.mass[1] / total, s.mass[0] / total}
	dp, dv = zeros(2), zeros(2)
	for i, f := range frac {
		floats.AddScaled(dp[i], f, rel)
		floats.Sub(dp[i], s.pos[i])
		floats.Add(dp[i], cp)
		floats.AddScaled(dv[i], f, relv)
		floats.Sub(dv[i], s.vel[i])
		floats.Add(dv[i], cv)
	}
	return dp, dv, nil
}

func zeros(n int) [][]float64 {
	out := make([][]float64, n)
	for i := range out {
		out[i] = make([]float64, 3)
	}
	return out
}

// Move adds dpos and dvel, one row per particle, to the positions and
// velocities of p.
func Move(p *datamodel.Particles, dpos, dvel units.Vectors) error {
	for _, c := range []struct {
		name string
		d    units.Vectors
	}{{"position", dpos}, {"velocity", dvel}} {
		v, err := p.GetVector(c.name)
		if err != nil {
			return err
		}
		if c.d.Len() != v.Len() {
			return fmt.Errorf("encounters: %d %s changes for %d particles", c.d.Len(), c.name, v.Len())
		}
		f, err := c.d.Unit.ConversionFactor(v.Unit)
		if err != nil {
			return err
		}
		for i, row := range v.Values {
			floats.AddScaled(row, f, c.d.Values[i])
		}
		if err := p.Assign(c.name, v); err != nil {
			return err
		}
	}
	return nil
}

// ScaleToSphere rescales p about its center of mass so that it fits a
// sphere of the given radius, keeping the energy. A pair moves along its
// Kepler orbit. Larger systems are scaled linearly so that the closest
// pair is 2·radius apart, or just touching if that is more, with the
// velocities scaled to make up for the change in potential energy.
func (sc Scaler) ScaleToSphere(p *datamodel.Particles, radius units.Quantity) error {
	s, err := load(p, sc.G)
	if err != nil {
		return err
	}
	if s.len() < 2 {
		return nil
	}
	r, err := radius.In(s.lu)
	if err != nil {
		return err
	}
	if err := scaleToSphere(s, r); err != nil {
		return err
	}
	return s.store(p)
}

func scaleToSphere(s *system, radius float64) error {
	cp, cv := s.com()
	s.shift(negated(cp), negated(cv))
	defer s.shift(cp, cv)

	i, j := s.closest()
	dist := distance(s.pos[i], s.pos[j])
	sumRadii := s.radius[i] + s.radius[j]

	if s.len() == 2 {
		o, err := s.orbit(0, 1)
		if err != nil {
			return err
		}
		var dp, dv [][]float64
		switch {
		case dist < sumRadii:
			dp, dv, err = expand(s, o, math.Max(radius, sumRadii))
		case dist-sumRadii > radius:
			dp, dv, err = compress(s, o, math.Max(2*radius, sumRadii))
		default:
			dp, dv, err = expand(s, o, 2*radius)
		}
		if err != nil {
			return err
		}
		for k := range s.pos {
			floats.Add(s.pos[k], dp[k])
			floats.Add(s.vel[k], dv[k])
		}
		return nil
	}

	factor := 1.0
	switch {
	case dist < sumRadii:
		factor = math.Max(sumRadii, 2*radius) / dist
	case dist < 2*radius:
		factor = 2 * radius / dist
	case dist > sumRadii:
		factor = math.Max(sumRadii, 2*radius) / dist
	}
	return scaleBy(s, factor)
}

// scaleBy multiplies the positions of s, which is in its center of mass
// frame, by factor and the velocities by the factor that keeps the
// energy.
func scaleBy(s *system, factor float64) error {
	fv2 := 1.0
	if factor != 1 {
		ke := s.kinetic()
		if ke == 0 {
			return fmt.Errorf("%w: the system has no kinetic energy", ErrCannotScaleVelocities)
		}
		fv2 = 1 - (1/factor-1)*s.potential()/ke
	}
	if fv2 < 0 {
		return fmt.Errorf("%w: position factor %g needs velocity factor squared %g", ErrCannotScaleVelocities, factor, fv2)
	}
	fv := math.Sqrt(fv2)
	for k := range s.pos {
		floats.Scale(factor, s.pos[k])
		floats.Scale(fv, s.vel[k])
	}
	return nil
}
