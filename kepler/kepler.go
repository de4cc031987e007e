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

// Package kepler solves the two-body problem analytically. An Orbit holds
// the relative motion of a pair and can be moved along its conic to a given
// time, separation or anomaly, forward or backward.
//
// Quantities are plain float64 values in any consistent system of units;
// mu is the gravitational parameter G·(m1+m2) in that system.
package kepler

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

const (
	// parabolicTolerance is the distance of the eccentricity from 1 within
	// which an orbit is treated as parabolic.
	parabolicTolerance = 1e-9

	// circularTolerance is the eccentricity below which an orbit has no
	// usable periastron direction.
	circularTolerance = 1e-12

	maxIterations = 100
)

var (
	// ErrRadius is returned when a separation is not on the orbit.
	ErrRadius = errors.New("kepler: separation not reached on this orbit")

	// ErrUnbound is returned for operations that need a closed orbit.
	ErrUnbound = errors.New("kepler: orbit is not bound")
)

// Orbit is the relative orbit of a pair of bodies, the position and
// velocity of the second body relative to the first.
type Orbit struct {
	mu     float64
	e      float64 // eccentricity
	p      float64 // semi-latus rectum
	energy float64 // specific orbital energy

	// periastron direction and the direction of motion at periastron
	pHat, qHat []float64

	f float64 // true anomaly in (-π, π]
	t float64 // time elapsed since construction
}

// New returns the orbit through the relative position pos and velocity vel
// of a pair with gravitational parameter mu.
func New(mu float64, pos, vel []float64) (*Orbit, error) {
	if len(pos) != 3 || len(vel) != 3 {
		return nil, fmt.Errorf("kepler: need 3-vectors, have %d and %d components", len(pos), len(vel))
	}
	if !(mu > 0) {
		return nil, fmt.Errorf("kepler: gravitational parameter %g must be positive", mu)
	}
	r := floats.Norm(pos, 2)
	if r == 0 {
		return nil, errors.New("kepler: bodies at the same position")
	}
	h := cross(pos, vel)
	hn := floats.Norm(h, 2)
	if hn == 0 {
		return nil, errors.New("kepler: radial orbits are not supported")
	}
	v2 := floats.Dot(vel, vel)

	// e = (v×h)/mu - r̂
	ev := cross(vel, h)
	floats.Scale(1/mu, ev)
	floats.AddScaled(ev, -1/r, pos)

	o := &Orbit{
		mu:     mu,
		e:      floats.Norm(ev, 2),
		p:      hn * hn / mu,
		energy: v2/2 - mu/r,
	}
	if o.e < circularTolerance {
		// Circular: measure the anomaly from the current position.
		o.e = 0
		o.pHat = unit(pos)
	} else {
		o.pHat = unit(ev)
	}
	o.qHat = unit(cross(h, o.pHat))
	o.f = math.Atan2(floats.Dot(pos, o.qHat), floats.Dot(pos, o.pHat))
	return o, nil
}

func cross(a, b []float64) []float64 {
	return []float64{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}

func unit(a []float64) []float64 {
	u := append([]float64(nil), a...)
	floats.Scale(1/floats.Norm(u, 2), u)
	return u
}

// Eccentricity returns the eccentricity of the orbit.
func (o *Orbit) Eccentricity() float64 { return o.e }

// Energy returns the specific orbital energy, v²/2 - mu/r.
func (o *Orbit) Energy() float64 { return o.energy }

// IsBound reports whether the orbit is an ellipse.
func (o *Orbit) IsBound() bool { return o.e < 1-parabolicTolerance }

func (o *Orbit) isParabolic() bool { return math.Abs(o.e-1) <= parabolicTolerance }

// SemimajorAxis returns the semimajor axis: negative for a hyperbola and
// +Inf for a parabola.
func (o *Orbit) SemimajorAxis() float64 {
	if o.isParabolic() {
		return math.Inf(1)
	}
	return o.p / (1 - o.e*o.e)
}

// Periastron returns the smallest separation on the orbit.
func (o *Orbit) Periastron() float64 { return o.p / (1 + o.e) }

// Apastron returns the largest separation on the orbit, +Inf if the orbit
// is not bound.
func (o *Orbit) Apastron() float64 {
	if !o.IsBound() {
		return math.Inf(1)
	}
	return o.p / (1 - o.e)
}

// Period returns the orbital period, +Inf if the orbit is not bound.
func (o *Orbit) Period() float64 {
	if !o.IsBound() {
		return math.Inf(1)
	}
	a := o.SemimajorAxis()
	return 2 * math.Pi * math.Sqrt(a*a*a/o.mu)
}

// TrueAnomaly returns the angle from periastron, in (-π, π]. Negative
// values are on the incoming branch.
func (o *Orbit) TrueAnomaly() float64 { return o.f }

// MeanAnomaly returns the mean anomaly of the current position.
func (o *Orbit) MeanAnomaly() float64 { return o.meanAnomaly(o.f) }

// Time returns the time moved along the orbit since it was created.
func (o *Orbit) Time() float64 { return o.t }

// Separation returns the current distance between the bodies.
func (o *Orbit) Separation() float64 { return o.radius(o.f) }

func (o *Orbit) radius(f float64) float64 { return o.p / (1 + o.e*math.Cos(f)) }

// Position returns the position of the second body relative to the first.
func (o *Orbit) Position() []float64 {
	r := o.radius(o.f)
	pos := make([]float64, 3)
	floats.AddScaled(pos, r*math.Cos(o.f), o.pHat)
	floats.AddScaled(pos, r*math.Sin(o.f), o.qHat)
	return pos
}

// Velocity returns the velocity of the second body relative to the first.
func (o *Orbit) Velocity() []float64 {
	k := math.Sqrt(o.mu / o.p)
	vel := make([]float64, 3)
	floats.AddScaled(vel, -k*math.Sin(o.f), o.pHat)
	floats.AddScaled(vel, k*(o.e+math.Cos(o.f)), o.qHat)
	return vel
}

// meanMotion returns n such that the mean anomaly grows as n·t.
func (o *Orbit) meanMotion() float64 {
	switch {
	case o.isParabolic():
		return 2 * math.Sqrt(o.mu/(o.p*o.p*o.p))
	case o.IsBound():
		a := o.SemimajorAxis()
		return math.Sqrt(o.mu / (a * a * a))
	default:
		a := -o.SemimajorAxis()
		return math.Sqrt(o.mu / (a * a * a))
	}
}

func (o *Orbit) meanAnomaly(f float64) float64 {
	e := o.e
	switch {
	case o.isParabolic():
		d := math.Tan(f / 2)
		return d + d*d*d/3
	case o.IsBound():
		ea := 2 * math.Atan2(math.Sqrt(1-e)*math.Sin(f/2), math.Sqrt(1+e)*math.Cos(f/2))
		return ea - e*math.Sin(ea)
	default:
		h := 2 * math.Atanh(math.Sqrt((e-1)/(e+1))*math.Tan(f/2))
		return e*math.Sinh(h) - h
	}
}

// trueAnomaly inverts meanAnomaly. For an ellipse m is first reduced to
// (-π, π].
func (o *Orbit) trueAnomaly(m float64) float64 {
	e := o.e
	switch {
	case o.isParabolic():
		// Barker's equation, solved with Cardano's formula.
		s := math.Cbrt(1.5*m + math.Sqrt(2.25*m*m+1))
		return 2 * math.Atan(s-1/s)
	case o.IsBound():
		m = wrap(m)
		ea := m
		if e > 0.8 {
			ea = math.Copysign(math.Pi, m)
		}
		for i := 0; i < maxIterations; i++ {
			d := (ea - e*math.Sin(ea) - m) / (1 - e*math.Cos(ea))
			ea -= d
			if math.Abs(d) < 1e-15*math.Max(1, math.Abs(ea)) {
				break
			}
		}
		return 2 * math.Atan2(math.Sqrt(1+e)*math.Sin(ea/2), math.Sqrt(1-e)*math.Cos(ea/2))
	default:
		h := math.Asinh(m / e)
		for i := 0; i < maxIterations; i++ {
			d := (e*math.Sinh(h) - h - m) / (e*math.Cosh(h) - 1)
			h -= d
			if math.Abs(d) < 1e-15*math.Max(1, math.Abs(h)) {
				break
			}
		}
		return 2 * math.Atan(math.Sqrt((e+1)/(e-1))*math.Tanh(h/2))
	}
}

// wrap reduces an angle to (-π, π].
func wrap(a float64) float64 {
	a = math.Mod(a, 2*math.Pi)
	switch {
	case a > math.Pi:
		a -= 2 * math.Pi
	case a <= -math.Pi:
		a += 2 * math.Pi
	}
	return a
}

// Advance moves the bodies along the orbit by dt, which may be negative.
func (o *Orbit) Advance(dt float64) {
	if dt == 0 {
		return
	}
	m := o.meanAnomaly(o.f) + o.meanMotion()*dt
	o.f = o.trueAnomaly(m)
	o.t += dt
}

// timeTo returns the time to move from the current position to true
// anomaly f. Along a closed orbit the direction picks the smallest
// non-negative (dir > 0) or non-positive (dir < 0) interval.
func (o *Orbit) timeTo(f float64, dir int) float64 {
	dt := (o.meanAnomaly(f) - o.meanAnomaly(o.f)) / o.meanMotion()
	if !o.IsBound() {
		return dt
	}
	period := o.Period()
	dt = math.Mod(dt, period)
	if math.Abs(dt) < 1e-14*period {
		return 0
	}
	switch {
	case dir > 0 && dt < 0:
		dt += period
	case dir < 0 && dt > 0:
		dt -= period
	}
	return dt
}

// moveTo places the bodies at true anomaly f, accounting the time taken.
func (o *Orbit) moveTo(f, dt float64) {
	o.f = wrap(f)
	o.t += dt
}

// anomaliesAt returns the two true anomalies with separation r, the
// outgoing one first.
func (o *Orbit) anomaliesAt(r float64) (float64, float64, error) {
	if !(r > 0) {
		return 0, 0, fmt.Errorf("%w: %g", ErrRadius, r)
	}
	if o.e == 0 {
		if math.Abs(r-o.p) > 1e-12*o.p {
			return 0, 0, fmt.Errorf("%w: %g on a circle of radius %g", ErrRadius, r, o.p)
		}
		return o.f, o.f, nil
	}
	c := (o.p/r - 1) / o.e
	const slack = 1e-12
	switch {
	case c > 1 && c < 1+slack:
		c = 1
	case c < -1 && c > -1-slack:
		c = -1
	}
	if c > 1 || c < -1 {
		return 0, 0, fmt.Errorf("%w: %g outside [%g, %g]", ErrRadius, r, o.Periastron(), o.Apastron())
	}
	f := math.Acos(c)
	if !o.IsBound() {
		// Beyond the asymptotes the anomaly is not reached.
		limit := math.Acos(-1 / o.e)
		if f >= limit {
			return 0, 0, fmt.Errorf("%w: %g", ErrRadius, r)
		}
	}
	return f, -f, nil
}

func (o *Orbit) toRadius(r float64, dir int) error {
	out, in, err := o.anomaliesAt(r)
	if err != nil {
		return err
	}
	best, bestDT := 0.0, math.NaN()
	for _, f := range []float64{out, in} {
		dt := o.timeTo(f, dir)
		if dt*float64(dir) < 0 {
			continue
		}
		if math.IsNaN(bestDT) || math.Abs(dt) < math.Abs(bestDT) {
			best, bestDT = f, dt
		}
	}
	if math.IsNaN(bestDT) {
		way := "forward"
		if dir < 0 {
			way = "backward"
		}
		return fmt.Errorf("%w: %g going %s", ErrRadius, r, way)
	}
	o.moveTo(best, bestDT)
	return nil
}

// AdvanceToRadius moves forward in time to the next point with separation r.
func (o *Orbit) AdvanceToRadius(r float64) error { return o.toRadius(r, 1) }

// ReturnToRadius moves backward in time to the last point with separation r.
func (o *Orbit) ReturnToRadius(r float64) error { return o.toRadius(r, -1) }

// MoveToOutgoingRadius moves forward or backward, whichever is shorter, to
// the point with separation r on the outgoing branch of the orbit, where
// the bodies recede from each other.
func (o *Orbit) MoveToOutgoingRadius(r float64) error {
	f, _, err := o.anomaliesAt(r)
	if err != nil {
		return err
	}
	dt := o.timeTo(f, 1)
	if o.IsBound() && dt > o.Period()/2 {
		dt -= o.Period()
	}
	o.moveTo(f, dt)
	return nil
}

// AdvanceToPeriastron moves forward to the next periastron passage. An
// unbound orbit past periastron has none.
func (o *Orbit) AdvanceToPeriastron() error {
	dt := o.timeTo(0, 1)
	if dt < 0 {
		return fmt.Errorf("%w: periastron already passed", ErrRadius)
	}
	o.moveTo(0, dt)
	return nil
}

// ReturnToPeriastron moves backward to the last periastron passage.
func (o *Orbit) ReturnToPeriastron() error {
	dt := o.timeTo(0, -1)
	if dt > 0 {
		return fmt.Errorf("%w: periastron not yet reached", ErrRadius)
	}
	o.moveTo(0, dt)
	return nil
}

// AdvanceToApastron moves forward to the next apastron passage.
func (o *Orbit) AdvanceToApastron() error {
	if !o.IsBound() {
		return ErrUnbound
	}
	o.moveTo(math.Pi, o.timeTo(math.Pi, 1))
	return nil
}

// ReturnToApastron moves backward to the last apastron passage.
func (o *Orbit) ReturnToApastron() error {
	if !o.IsBound() {
		return ErrUnbound
	}
	o.moveTo(math.Pi, o.timeTo(math.Pi, -1))
	return nil
}
