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

package bridge

import (
	"math"
	"testing"

	"github.com/spatialmodel/amuse/channel"
	"github.com/spatialmodel/amuse/codes/gravity"
	"github.com/spatialmodel/amuse/datamodel"
	"github.com/spatialmodel/amuse/units"
	"gonum.org/v1/gonum/floats"
)

func newCode(t *testing.T) *gravity.Gravity {
	t.Helper()
	ch, w := channel.Pipe()
	go gravity.NewServer().Serve(w)
	g, err := gravity.New(ch, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { g.Stop() })
	return g
}

// bodies returns particles with the given masses on the x axis, moving
// along y, in N-body units.
func bodies(t *testing.T, mass, x, vy []float64) *datamodel.Particles {
	t.Helper()
	n := len(mass)
	p := datamodel.NewParticles(n)
	for _, c := range []struct {
		name string
		u    *units.Unit
		v    []float64
	}{
		{"mass", units.NBodyMass, mass},
		{"x", units.NBodyLength, x},
		{"y", units.NBodyLength, make([]float64, n)},
		{"z", units.NBodyLength, make([]float64, n)},
		{"vx", units.NBodySpeed, make([]float64, n)},
		{"vy", units.NBodySpeed, vy},
		{"vz", units.NBodySpeed, make([]float64, n)},
		{"radius", units.NBodyLength, make([]float64, n)},
	} {
		if err := p.Assign(c.name, units.NewArray(c.v, c.u)); err != nil {
			t.Fatal(err)
		}
	}
	return p
}

// load returns a gravity code holding p.
func load(t *testing.T, p *datamodel.Particles) *gravity.Gravity {
	t.Helper()
	g := newCode(t)
	s, err := g.Particles()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.AddParticles(p); err != nil {
		t.Fatal(err)
	}
	return g
}

func nbt(v float64) units.Quantity { return units.New(v, units.NBodyTime) }

func energy(t *testing.T, e Energetic) float64 {
	t.Helper()
	k, err := e.KineticEnergy()
	if err != nil {
		t.Fatal(err)
	}
	p, err := e.PotentialEnergy()
	if err != nil {
		t.Fatal(err)
	}
	tot, err := k.Add(p)
	if err != nil {
		t.Fatal(err)
	}
	v, err := tot.In(units.NBodyEnergy)
	if err != nil {
		t.Fatal(err)
	}
	return v
}

func TestLeapfrog(t *testing.T) {
	for _, test := range []struct {
		name         string
		start, tend  float64
		dt           float64
		kicks        []float64
		drifts       []float64
		endTimeAfter float64
	}{
		{
			name: "steps", tend: 1, dt: 0.25,
			kicks:        []float64{0.125, 0.25, 0.25, 0.25, 0.125},
			drifts:       []float64{0.25, 0.5, 0.75, 1},
			endTimeAfter: 1,
		},
		{name: "zero timestep", tend: 1, dt: 0},
		{name: "negative timestep", tend: 1, dt: -0.25},
		{name: "end behind", start: 2, tend: 1, dt: 0.25, endTimeAfter: 2},
		{name: "end within half step", start: 1, tend: 1.1, dt: 0.25, endTimeAfter: 1},
		{
			name: "rounds to nearest step", tend: 0.9, dt: 0.25,
			kicks:        []float64{0.125, 0.25, 0.25, 0.25, 0.125},
			drifts:       []float64{0.25, 0.5, 0.75, 1},
			endTimeAfter: 1,
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			now := nbt(test.start)
			var kicks, drifts []float64
			_, err := leapfrog(&now, nbt(test.tend), nbt(test.dt),
				func(dt units.Quantity) error {
					kicks = append(kicks, dt.Value)
					return nil
				},
				func(t units.Quantity) error {
					drifts = append(drifts, t.Value)
					return nil
				})
			if err != nil {
				t.Fatal(err)
			}
			if !floats.EqualApprox(kicks, test.kicks, 1e-12) || len(kicks) != len(test.kicks) {
				t.Errorf("kicks: have %v, want %v", kicks, test.kicks)
			}
			if !floats.EqualApprox(drifts, test.drifts, 1e-12) || len(drifts) != len(test.drifts) {
				t.Errorf("drifts: have %v, want %v", drifts, test.drifts)
			}
			if test.dt > 0 && math.Abs(now.Value-test.endTimeAfter) > 1e-12 {
				t.Errorf("time: have %g, want %g", now.Value, test.endTimeAfter)
			}
		})
	}
}

func TestLeapfrogUnits(t *testing.T) {
	now := units.Zero
	_, err := leapfrog(&now, units.New(1, units.Day), units.New(1, units.M), nil, nil)
	if err == nil {
		t.Error("incompatible timestep and end time should fail")
	}
}

// A bridge of one code without partners is the code itself.
func TestBridgeOneCode(t *testing.T) {
	g := load(t, bodies(t, []float64{0.5, 0.5}, []float64{-0.5, 0.5}, []float64{-0.5, 0.5}))
	b := New(WithTimestep(nbt(1.0 / 64)))
	if err := b.AddSystem(g); err != nil {
		t.Fatal(err)
	}
	e0 := energy(t, b)
	if !floats.EqualWithinAbsOrRel(e0, -0.125, 1e-12, 1e-12) {
		t.Fatalf("initial energy %g", e0)
	}
	tend := nbt(2 * math.Pi)
	if err := b.EvolveModel(tend); err != nil {
		t.Fatal(err)
	}
	e1 := energy(t, b)
	if math.Abs((e1-e0)/e0) > 1e-3 {
		t.Errorf("energy error %g", (e1-e0)/e0)
	}
	now, _ := b.ModelTime()
	if d := math.Abs(now.Value - tend.Value); d > 1.0/64 {
		t.Errorf("model time %v is %g from %v", now, d, tend)
	}
	ct, err := g.ModelTime()
	if err != nil {
		t.Fatal(err)
	}
	if !floats.EqualWithinAbsOrRel(ct.Value, now.Value, 1e-12, 1e-12) {
		t.Errorf("code time %v, bridge time %v", ct, now)
	}
	if b.KickEnergy.Value != 0 {
		t.Errorf("kick energy %v without partners", b.KickEnergy)
	}
}

// Two codes holding one body each orbit each other through the kicks
// alone.
func TestBridgeTwoCodes(t *testing.T) {
	a := load(t, bodies(t, []float64{0.5}, []float64{-0.5}, []float64{-0.5}))
	c := load(t, bodies(t, []float64{0.5}, []float64{0.5}, []float64{0.5}))
	b := New(WithTimestep(nbt(1.0 / 64)))
	if err := b.AddSystem(a, c); err != nil {
		t.Fatal(err)
	}
	if err := b.AddSystem(c, a); err != nil {
		t.Fatal(err)
	}
	e0 := energy(t, b)
	if !floats.EqualWithinAbsOrRel(e0, -0.125, 1e-12, 1e-12) {
		t.Fatalf("initial energy %g", e0)
	}
	if err := b.EvolveModel(nbt(math.Pi)); err != nil {
		t.Fatal(err)
	}
	e1 := energy(t, b)
	if math.Abs((e1-e0)/e0) > 1e-3 {
		t.Errorf("energy error %g", (e1-e0)/e0)
	}

	// Half an orbit swaps the bodies.
	p, err := b.Particles()
	if err != nil {
		t.Fatal(err)
	}
	if p.Len() != 2 {
		t.Fatalf("bridge has %d particles", p.Len())
	}
	x, err := p.Get("x")
	if err != nil {
		t.Fatal(err)
	}
	want := []float64{0.5, -0.5}
	if !floats.EqualApprox(x.Values, want, 0.02) {
		t.Errorf("x after half an orbit: have %v, want %v", x.Values, want)
	}
}

// A bridge is itself a member of another bridge.
func TestNestedBridge(t *testing.T) {
	a := load(t, bodies(t, []float64{0.5}, []float64{-0.5}, []float64{-0.5}))
	c := load(t, bodies(t, []float64{0.5}, []float64{0.5}, []float64{0.5}))
	inner := New(WithTimestep(nbt(1.0 / 64)))
	if err := inner.AddSystem(a); err != nil {
		t.Fatal(err)
	}
	outer := New(WithTimestep(nbt(1.0 / 64)))
	if err := outer.AddSystem(inner, c); err != nil {
		t.Fatal(err)
	}
	if err := outer.AddSystem(c, inner); err != nil {
		t.Fatal(err)
	}
	e0 := energy(t, outer)
	if err := outer.EvolveModel(nbt(1)); err != nil {
		t.Fatal(err)
	}
	e1 := energy(t, outer)
	if math.Abs((e1-e0)/e0) > 1e-3 {
		t.Errorf("energy error %g", (e1-e0)/e0)
	}
	it, _ := inner.ModelTime()
	ot, _ := outer.ModelTime()
	if !floats.EqualWithinAbsOrRel(it.Value, ot.Value, 1e-12, 1e-12) {
		t.Errorf("inner time %v, outer time %v", it, ot)
	}
}

func TestBridgeNoop(t *testing.T) {
	g := load(t, bodies(t, []float64{0.5, 0.5}, []float64{-0.5, 0.5}, []float64{-0.5, 0.5}))
	b := New()
	if err := b.AddSystem(g); err != nil {
		t.Fatal(err)
	}
	if err := b.Evolve(nbt(1), units.Zero); err != nil {
		t.Fatal(err)
	}
	if err := b.Evolve(nbt(1), nbt(0)); err != nil {
		t.Fatal(err)
	}
	if now, _ := b.ModelTime(); !now.IsZero() {
		t.Errorf("time moved to %v with a zero timestep", now)
	}
	if err := b.Evolve(nbt(-1), nbt(0.1)); err != nil {
		t.Fatal(err)
	}
	if now, _ := b.ModelTime(); !now.IsZero() {
		t.Errorf("time moved to %v with the end behind", now)
	}
	ct, err := g.ModelTime()
	if err != nil {
		t.Fatal(err)
	}
	if ct.Value != 0 {
		t.Errorf("code evolved to %v", ct)
	}
}

func TestAddSystemWithoutParticles(t *testing.T) {
	src := bodies(t, []float64{1}, []float64{0}, []float64{0})
	f, err := NewFieldForParticles(src, nil)
	if err != nil {
		t.Fatal(err)
	}
	g := load(t, bodies(t, []float64{1}, []float64{2}, []float64{0}))
	b := New()
	if err := b.AddSystem(f, g); err == nil {
		t.Error("a field without particles cannot have partners")
	}
	if err := b.AddSystem(f); err != nil {
		t.Fatal(err)
	}
	if len(b.Codes()) != 1 {
		t.Errorf("bridge has %d codes", len(b.Codes()))
	}
}

func point(x float64) (eps, px, py, pz units.Array) {
	l := units.NBodyLength
	return units.NewArray([]float64{0}, l), units.NewArray([]float64{x}, l),
		units.NewArray([]float64{0}, l), units.NewArray([]float64{0}, l)
}

func checkField(t *testing.T, f FieldCode) {
	t.Helper()
	acc, err := f.GetGravityAtPoint(point(2))
	if err != nil {
		t.Fatal(err)
	}
	ax, err := acc[0].In(units.NBodyAcceleration)
	if err != nil {
		t.Fatal(err)
	}
	if !floats.EqualWithinAbsOrRel(ax[0], -0.25, 1e-12, 1e-12) {
		t.Errorf("ax = %g, want -0.25", ax[0])
	}
	phi, err := f.GetPotentialAtPoint(point(2))
	if err != nil {
		t.Fatal(err)
	}
	v, err := phi.In(units.NBodyPotential)
	if err != nil {
		t.Fatal(err)
	}
	if !floats.EqualWithinAbsOrRel(v[0], -0.5, 1e-12, 1e-12) {
		t.Errorf("phi = %g, want -0.5", v[0])
	}
}

func TestFieldForParticles(t *testing.T) {
	f, err := NewFieldForParticles(bodies(t, []float64{1}, []float64{0}, []float64{0}), nil)
	if err != nil {
		t.Fatal(err)
	}
	checkField(t, f)

	empty := &FieldForParticles{Particles: datamodel.NewParticles(0)}
	acc, err := empty.GetGravityAtPoint(point(2))
	if err != nil {
		t.Fatal(err)
	}
	if len(acc) != 3 || acc[0].Len() != 1 || acc[0].Values[0] != 0 {
		t.Errorf("empty field: %v", acc)
	}
}

func TestFieldForCodes(t *testing.T) {
	src := load(t, bodies(t, []float64{1}, []float64{0}, []float64{0}))

	started := 0
	f := NewFieldForCodes(func() (Solver, error) {
		started++
		ch, w := channel.Pipe()
		go gravity.NewServer().Serve(w)
		return gravity.New(ch, nil)
	}, src)
	checkField(t, f)
	if started != 2 {
		t.Errorf("started %d solvers, want one per request", started)
	}

	solver := newCode(t)
	r := NewFieldForCodesReusing(solver, src)
	checkField(t, r)
	checkField(t, r)
	p, err := solver.Particles()
	if err != nil {
		t.Fatal(err)
	}
	if p.Len() != 0 {
		t.Errorf("reused solver keeps %d particles", p.Len())
	}
}

func TestEnergyMonitor(t *testing.T) {
	g := load(t, bodies(t, []float64{0.5, 0.5}, []float64{-0.5, 0.5}, []float64{-0.5, 0.5}))
	b := New(WithTimestep(nbt(1.0 / 64)))
	if err := b.AddSystem(g); err != nil {
		t.Fatal(err)
	}
	m, err := NewEnergyMonitor(b, units.NBodyTime)
	if err != nil {
		t.Fatal(err)
	}
	for i := 1; i <= 4; i++ {
		if err := b.EvolveModel(nbt(float64(i) * 0.5)); err != nil {
			t.Fatal(err)
		}
		if _, err := m.Record(); err != nil {
			t.Fatal(err)
		}
	}
	if m.Count() != 4 {
		t.Errorf("count %d", m.Count())
	}
	if m.MaxError() > 1e-3 || m.MeanError() > m.MaxError() {
		t.Errorf("max error %g, mean error %g", m.MaxError(), m.MeanError())
	}
	times, errs := m.Series()
	if len(times) != 4 || len(errs) != 4 || !floats.EqualWithinAbsOrRel(times[3], 2, 1e-9, 1e-9) {
		t.Errorf("series %v %v", times, errs)
	}
	if _, err := m.Plot(); err != nil {
		t.Error(err)
	}
}
