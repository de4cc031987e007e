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

package kepler

import (
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/floats"
)

const tol = 1e-10

func approx(t *testing.T, name string, have, want float64) {
	t.Helper()
	if !floats.EqualWithinAbsOrRel(have, want, tol, tol) {
		t.Errorf("%s: have %.15g, want %.15g", name, have, want)
	}
}

func approxVector(t *testing.T, name string, have, want []float64) {
	t.Helper()
	if !floats.EqualApprox(have, want, 1e-9) {
		t.Errorf("%s: have %v, want %v", name, have, want)
	}
}

func energyOf(o *Orbit, mu float64) float64 {
	v := o.Velocity()
	return floats.Dot(v, v)/2 - mu/floats.Norm(o.Position(), 2)
}

// ellipse returns an orbit with a = 1 and e = 0.5 starting at periastron.
func ellipse(t *testing.T) *Orbit {
	o, err := New(1, []float64{0.5, 0, 0}, []float64{0, math.Sqrt(3), 0})
	if err != nil {
		t.Fatal(err)
	}
	return o
}

func TestEllipseElements(t *testing.T) {
	o := ellipse(t)
	approx(t, "a", o.SemimajorAxis(), 1)
	approx(t, "e", o.Eccentricity(), 0.5)
	approx(t, "energy", o.Energy(), -0.5)
	approx(t, "period", o.Period(), 2*math.Pi)
	approx(t, "periastron", o.Periastron(), 0.5)
	approx(t, "apastron", o.Apastron(), 1.5)
	approx(t, "true anomaly", o.TrueAnomaly(), 0)
	approx(t, "mean anomaly", o.MeanAnomaly(), 0)
	if !o.IsBound() {
		t.Error("ellipse should be bound")
	}
	approxVector(t, "position", o.Position(), []float64{0.5, 0, 0})
	approxVector(t, "velocity", o.Velocity(), []float64{0, math.Sqrt(3), 0})
}

func TestEllipseAdvance(t *testing.T) {
	o := ellipse(t)
	o.Advance(math.Pi)
	approxVector(t, "half period", o.Position(), []float64{-1.5, 0, 0})
	approx(t, "separation", o.Separation(), 1.5)

	o.Advance(math.Pi)
	approxVector(t, "full period", o.Position(), []float64{0.5, 0, 0})
	approx(t, "time", o.Time(), 2*math.Pi)

	for _, dt := range []float64{0.3, 2.9, 7.5, -11.2} {
		start, vstart := o.Position(), o.Velocity()
		o.Advance(dt)
		approx(t, "energy", energyOf(o, 1), -0.5)
		o.Advance(-dt)
		approxVector(t, "position back", o.Position(), start)
		approxVector(t, "velocity back", o.Velocity(), vstart)
	}
}

func TestEllipseRadius(t *testing.T) {
	// At r = a the eccentric anomaly is ±π/2.
	wantTime := math.Pi/2 - 0.5

	o := ellipse(t)
	if err := o.AdvanceToRadius(1); err != nil {
		t.Fatal(err)
	}
	approx(t, "separation", o.Separation(), 1)
	approx(t, "anomaly", o.TrueAnomaly(), 2*math.Pi/3)
	approx(t, "time", o.Time(), wantTime)
	if floats.Dot(o.Position(), o.Velocity()) <= 0 {
		t.Error("should be receding after AdvanceToRadius from periastron")
	}

	o = ellipse(t)
	if err := o.ReturnToRadius(1); err != nil {
		t.Fatal(err)
	}
	approx(t, "anomaly", o.TrueAnomaly(), -2*math.Pi/3)
	approx(t, "time", o.Time(), -wantTime)

	// From the outgoing point the next r = 1 is on the way in.
	o = ellipse(t)
	o.Advance(0.1)
	if err := o.AdvanceToRadius(1); err != nil {
		t.Fatal(err)
	}
	if err := o.AdvanceToRadius(1); err != nil {
		t.Fatal(err)
	}
	approx(t, "same radius", o.TrueAnomaly(), 2*math.Pi/3)
	if err := o.AdvanceToRadius(1.2); err != nil {
		t.Fatal(err)
	}
	if err := o.AdvanceToRadius(1); err != nil {
		t.Fatal(err)
	}
	approx(t, "incoming", o.TrueAnomaly(), -2*math.Pi/3)
	approx(t, "incoming time", o.Time(), 2*math.Pi-wantTime)

	if err := o.AdvanceToRadius(0.1); !errors.Is(err, ErrRadius) {
		t.Errorf("inside periastron: have %v, want ErrRadius", err)
	}
	if err := o.AdvanceToRadius(2); !errors.Is(err, ErrRadius) {
		t.Errorf("beyond apastron: have %v, want ErrRadius", err)
	}
}

func TestEllipseExtremes(t *testing.T) {
	o := ellipse(t)
	o.Advance(1)
	if err := o.AdvanceToApastron(); err != nil {
		t.Fatal(err)
	}
	approx(t, "apastron", o.Separation(), 1.5)
	approx(t, "apastron time", o.Time(), math.Pi)
	if err := o.AdvanceToPeriastron(); err != nil {
		t.Fatal(err)
	}
	approx(t, "periastron time", o.Time(), 2*math.Pi)
	if err := o.ReturnToApastron(); err != nil {
		t.Fatal(err)
	}
	approx(t, "returned to apastron", o.Time(), math.Pi)
	if err := o.ReturnToPeriastron(); err != nil {
		t.Fatal(err)
	}
	approx(t, "returned to periastron", o.Time(), 0)
}

// Moving inward and back out along the outgoing branch restores the
// phase-space state, unlike a linear rescaling.
func TestOutgoingRadiusReversible(t *testing.T) {
	o := ellipse(t)
	if err := o.AdvanceToRadius(1); err != nil {
		t.Fatal(err)
	}
	pos, vel := o.Position(), o.Velocity()

	if err := o.MoveToOutgoingRadius(o.Periastron()); err != nil {
		t.Fatal(err)
	}
	approx(t, "compressed", o.Separation(), 0.5)
	if err := o.MoveToOutgoingRadius(1); err != nil {
		t.Fatal(err)
	}
	approxVector(t, "position", o.Position(), pos)
	approxVector(t, "velocity", o.Velocity(), vel)
	approx(t, "time", o.Time(), math.Pi/2-0.5)
}

func TestHyperbola(t *testing.T) {
	o, err := New(1, []float64{1, 0, 0}, []float64{0, 2, 0})
	if err != nil {
		t.Fatal(err)
	}
	approx(t, "e", o.Eccentricity(), 3)
	approx(t, "a", o.SemimajorAxis(), -0.5)
	approx(t, "energy", o.Energy(), 1)
	if o.IsBound() {
		t.Error("hyperbola should not be bound")
	}
	if !math.IsInf(o.Period(), 1) || !math.IsInf(o.Apastron(), 1) {
		t.Errorf("period %g and apastron %g should be infinite", o.Period(), o.Apastron())
	}

	o.Advance(2)
	approx(t, "energy after advance", energyOf(o, 1), 1)
	o.Advance(-2)
	approxVector(t, "position back", o.Position(), []float64{1, 0, 0})

	if err := o.AdvanceToRadius(10); err != nil {
		t.Fatal(err)
	}
	approx(t, "separation", o.Separation(), 10)
	if o.TrueAnomaly() <= 0 {
		t.Errorf("outgoing anomaly %g should be positive", o.TrueAnomaly())
	}
	if err := o.AdvanceToPeriastron(); !errors.Is(err, ErrRadius) {
		t.Errorf("periastron behind: have %v, want ErrRadius", err)
	}
	if err := o.ReturnToPeriastron(); err != nil {
		t.Fatal(err)
	}
	approx(t, "time at periastron", o.Time(), 0)
	if err := o.ReturnToRadius(10); err != nil {
		t.Fatal(err)
	}
	if o.TrueAnomaly() >= 0 {
		t.Errorf("incoming anomaly %g should be negative", o.TrueAnomaly())
	}
	if err := o.AdvanceToApastron(); !errors.Is(err, ErrUnbound) {
		t.Errorf("have %v, want ErrUnbound", err)
	}
}

func TestParabola(t *testing.T) {
	o, err := New(1, []float64{1, 0, 0}, []float64{0, math.Sqrt2, 0})
	if err != nil {
		t.Fatal(err)
	}
	if !math.IsInf(o.SemimajorAxis(), 1) {
		t.Errorf("semimajor axis %g should be infinite", o.SemimajorAxis())
	}
	approx(t, "periastron", o.Periastron(), 1)
	o.Advance(3)
	approx(t, "energy", energyOf(o, 1), 0)
	o.Advance(-3)
	approxVector(t, "position back", o.Position(), []float64{1, 0, 0})
}

func TestCircle(t *testing.T) {
	o, err := New(1, []float64{0, 2, 0}, []float64{-math.Sqrt(0.5), 0, 0})
	if err != nil {
		t.Fatal(err)
	}
	approx(t, "e", o.Eccentricity(), 0)
	o.Advance(o.Period() / 4)
	approxVector(t, "quarter", o.Position(), []float64{-2, 0, 0})
	if err := o.AdvanceToRadius(2); err != nil {
		t.Errorf("circle radius: %v", err)
	}
	if err := o.AdvanceToRadius(3); !errors.Is(err, ErrRadius) {
		t.Errorf("have %v, want ErrRadius", err)
	}
}

func TestNewErrors(t *testing.T) {
	for _, test := range []struct {
		name     string
		mu       float64
		pos, vel []float64
	}{
		{"mu", 0, []float64{1, 0, 0}, []float64{0, 1, 0}},
		{"length", 1, []float64{1, 0}, []float64{0, 1, 0}},
		{"coincident", 1, []float64{0, 0, 0}, []float64{0, 1, 0}},
		{"radial", 1, []float64{1, 0, 0}, []float64{2, 0, 0}},
	} {
		t.Run(test.name, func(t *testing.T) {
			if _, err := New(test.mu, test.pos, test.vel); err == nil {
				t.Error("expected an error")
			}
		})
	}
}
