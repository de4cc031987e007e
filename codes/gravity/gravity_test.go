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

package gravity_test

import (
	"math"
	"testing"

	"github.com/spatialmodel/amuse/channel"
	"github.com/spatialmodel/amuse/codes/gravity"
	"github.com/spatialmodel/amuse/datamodel"
	"github.com/spatialmodel/amuse/units"
	"gonum.org/v1/gonum/floats"
)

func newGravity(t *testing.T, conv units.Converter) *gravity.Gravity {
	t.Helper()
	ch, w := channel.Pipe()
	go gravity.NewServer().Serve(w)
	g, err := gravity.New(ch, conv)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { g.Stop() })
	return g
}

// pair returns two equal masses on a circular orbit with a period of 2π
// N-body time units, converted by conv if it is not nil.
func pair(t *testing.T, conv units.Converter) *datamodel.Particles {
	t.Helper()
	p := datamodel.NewParticles(2)
	set := func(name string, u *units.Unit, v ...float64) {
		a := units.NewArray(v, u)
		if conv != nil {
			var err error
			if a, err = units.ArrayToTarget(conv, a); err != nil {
				t.Fatal(err)
			}
		}
		if err := p.Assign(name, a); err != nil {
			t.Fatal(err)
		}
	}
	set("mass", units.NBodyMass, 0.5, 0.5)
	set("x", units.NBodyLength, -0.5, 0.5)
	set("y", units.NBodyLength, 0, 0)
	set("z", units.NBodyLength, 0, 0)
	set("vx", units.NBodySpeed, 0, 0)
	set("vy", units.NBodySpeed, -0.5, 0.5)
	set("vz", units.NBodySpeed, 0, 0)
	set("radius", units.NBodyLength, 0, 0)
	return p
}

func TestIntegrator(t *testing.T) {
	g := gravity.NewIntegrator()
	g.TimeStep = 1.0 / 128
	srv := g.Server()
	ch, w := channel.Pipe()
	go srv.Serve(w)
	defer ch.Stop()
	f := gravity.Table.Bind(ch)

	r, err := f["new_particle"].Invoke(
		[]float64{0.5, 0.5},
		[]float64{-0.5, 0.5}, []float64{0, 0}, []float64{0, 0},
		[]float64{0, 0}, []float64{-0.5, 0.5}, []float64{0, 0})
	if err != nil {
		t.Fatal(err)
	}
	idx := r.Int32s("index_of_the_particle")
	if len(idx) != 2 || idx[0] == idx[1] {
		t.Fatalf("indices %v", idx)
	}
	e0 := g.KineticEnergy() + g.PotentialEnergy()
	if !floats.EqualWithinAbsOrRel(e0, -0.125, 1e-12, 1e-12) {
		t.Fatalf("energy %g, want -0.125", e0)
	}
	if _, err := f["evolve_model"].Invoke(2 * math.Pi); err != nil {
		t.Fatal(err)
	}
	e1 := g.KineticEnergy() + g.PotentialEnergy()
	if d := math.Abs((e1 - e0) / e0); d > 1e-4 {
		t.Errorf("relative energy error %g", d)
	}

	r, err = f["get_position"].Invoke(idx)
	if err != nil {
		t.Fatal(err)
	}
	if x := r.Float64s("x"); !floats.EqualApprox(x, []float64{-0.5, 0.5}, 1e-3) {
		t.Errorf("x after one period = %v", x)
	}
	r, err = f["get_time"].Invoke()
	if err != nil {
		t.Fatal(err)
	}
	if tm := r.Float64s("time")[0]; tm != 2*math.Pi {
		t.Errorf("time = %g, want 2π", tm)
	}

	r, err = f["get_mass"].Invoke([]int32{idx[1], 99})
	if err != nil {
		t.Fatal(err)
	}
	if c := r.Codes(); c[0] != 0 || c[1] != -1 {
		t.Errorf("codes %v", c)
	}
	r, err = f["set_time_step"].Invoke(-1.0)
	if err != nil {
		t.Fatal(err)
	}
	if r.Code() != -1 {
		t.Errorf("negative time step accepted")
	}
}

func TestGravity(t *testing.T) {
	conv, err := units.NewNBodyConverter(units.New(1, units.MSun), units.New(1, units.AU))
	if err != nil {
		t.Fatal(err)
	}
	g := newGravity(t, conv)
	if s := g.State.CurrentState(); s != "UNINITIALIZED" {
		t.Fatalf("state %s", s)
	}
	gp, err := g.Particles()
	if err != nil {
		t.Fatal(err)
	}
	p := pair(t, conv)
	if _, err := gp.AddParticles(p); err != nil {
		t.Fatal(err)
	}
	if s := g.State.CurrentState(); s != "EDIT" {
		t.Errorf("state after adding particles %s, want EDIT", s)
	}
	params, err := g.Params()
	if err != nil {
		t.Fatal(err)
	}
	if err := params.Set("timestep", units.New(1.0/128, units.NBodyTime)); err != nil {
		t.Fatal(err)
	}

	energy := func() float64 {
		k, err := g.KineticEnergy()
		if err != nil {
			t.Fatal(err)
		}
		u, err := g.PotentialEnergy()
		if err != nil {
			t.Fatal(err)
		}
		return k.SI() + u.SI()
	}
	e0 := energy()
	if s := g.State.CurrentState(); s != "RUN" {
		t.Errorf("state %s, want RUN", s)
	}
	period, err := conv.ToSI(units.New(2*math.Pi, units.NBodyTime))
	if err != nil {
		t.Fatal(err)
	}
	want := 2 * math.Pi * math.Sqrt(math.Pow(units.New(1, units.AU).SI(), 3)/
		(units.GravitationalConstant.Value*units.New(1, units.MSun).SI()))
	if !floats.EqualWithinRel(period.SI(), want, 1e-9) {
		t.Fatalf("period %g s, want %g s", period.SI(), want)
	}
	if err := g.EvolveModel(period); err != nil {
		t.Fatal(err)
	}
	if s := g.State.CurrentState(); s != "EVOLVED" {
		t.Errorf("state %s, want EVOLVED", s)
	}
	tm, err := g.ModelTime()
	if err != nil {
		t.Fatal(err)
	}
	if !floats.EqualWithinRel(tm.SI(), period.SI(), 1e-9) {
		t.Errorf("model time %v, want %v", tm, period)
	}
	if e1 := energy(); math.Abs((e1-e0)/e0) > 1e-4 {
		t.Errorf("energy %g J, was %g J", e1, e0)
	}
	x, err := gp.Get("x")
	if err != nil {
		t.Fatal(err)
	}
	au, err := x.In(units.AU)
	if err != nil {
		t.Fatal(err)
	}
	if !floats.EqualApprox(au, []float64{-0.5, 0.5}, 1e-3) {
		t.Errorf("x = %v AU", au)
	}
	m, err := g.TotalMass()
	if err != nil {
		t.Fatal(err)
	}
	if v, _ := m.In(units.MSun); !floats.EqualWithinRel(v, 1, 1e-9) {
		t.Errorf("total mass %v", m)
	}
	com, err := g.CenterOfMass()
	if err != nil {
		t.Fatal(err)
	}
	for _, c := range com {
		if v, _ := c.In(units.AU); math.Abs(v) > 1e-9 {
			t.Errorf("center of mass %v", com)
		}
	}

	if err := g.Cleanup(); err != nil {
		t.Fatal(err)
	}
	if s := g.State.CurrentState(); s != "END" {
		t.Errorf("state %s, want END", s)
	}
}

func TestField(t *testing.T) {
	g := newGravity(t, nil)
	gp, err := g.Particles()
	if err != nil {
		t.Fatal(err)
	}
	p := datamodel.NewParticles(1)
	for _, a := range []struct {
		name string
		v    float64
		u    *units.Unit
	}{
		{"mass", 1, units.NBodyMass}, {"x", 0, units.NBodyLength}, {"y", 0, units.NBodyLength},
		{"z", 0, units.NBodyLength}, {"vx", 0, units.NBodySpeed}, {"vy", 0, units.NBodySpeed},
		{"vz", 0, units.NBodySpeed},
	} {
		if err := p.Assign(a.name, units.New(a.v, a.u)); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := gp.AddParticles(p); err != nil {
		t.Fatal(err)
	}
	l := func(v ...float64) units.Array { return units.NewArray(v, units.NBodyLength) }
	acc, err := g.GetGravityAtPoint(l(0, 0), l(2, 0), l(0, 4), l(0, 0))
	if err != nil {
		t.Fatal(err)
	}
	if len(acc) != 3 {
		t.Fatalf("%d acceleration components", len(acc))
	}
	if ax, _ := acc[0].In(units.NBodyAcceleration); !floats.EqualApprox(ax, []float64{-0.25, 0}, 1e-12) {
		t.Errorf("ax = %v", ax)
	}
	if ay, _ := acc[1].In(units.NBodyAcceleration); !floats.EqualApprox(ay, []float64{0, -1.0 / 16}, 1e-12) {
		t.Errorf("ay = %v", ay)
	}
	phi, err := g.GetPotentialAtPoint(l(0), l(2), l(0), l(0))
	if err != nil {
		t.Fatal(err)
	}
	if v, _ := phi.In(units.NBodyPotential); !floats.EqualApprox(v, []float64{-0.5}, 1e-12) {
		t.Errorf("phi = %v", v)
	}
	none, err := g.GetPotentialAtPoint(l(), l(), l(), l())
	if err != nil {
		t.Fatal(err)
	}
	if none.Len() != 0 {
		t.Errorf("potential at no points: %v", none)
	}
}

func TestWithin(t *testing.T) {
	g := newGravity(t, nil)
	gp, err := g.Particles()
	if err != nil {
		t.Fatal(err)
	}
	p := datamodel.NewParticles(3)
	for name, v := range map[string][]float64{
		"mass": {1, 1, 1}, "x": {0, 1, 2}, "y": {0, 0, 0}, "z": {0, 0, 0},
	} {
		u := units.NBodyLength
		if name == "mass" {
			u = units.NBodyMass
		}
		if err := p.Assign(name, units.NewArray(v, u)); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := gp.AddParticles(p); err != nil {
		t.Fatal(err)
	}
	l := func(v float64) units.Quantity { return units.New(v, units.NBodyLength) }
	v, err := gp.Call("within", l(0), l(0), l(0), l(1.5))
	if err != nil {
		t.Fatal(err)
	}
	near := v.(*datamodel.Particles)
	keys := p.Keys()
	if got := near.Keys(); len(got) != 2 || got[0] != keys[0] || got[1] != keys[1] {
		t.Errorf("within 1.5: %v, want %v", got, keys[:2])
	}

	// A query on a subset only looks at its particles.
	v, err = gp.Subset(keys[1:]).Call("within", l(0), l(0), l(0), l(1.5))
	if err != nil {
		t.Fatal(err)
	}
	if got := v.(*datamodel.Particles).Keys(); len(got) != 1 || got[0] != keys[1] {
		t.Errorf("within 1.5 of subset: %v", got)
	}
}

func TestStoppingConditions(t *testing.T) {
	g := newGravity(t, nil)
	if err := g.Stopping.Escaper.Enable(); err == nil {
		t.Errorf("escaper detection is not supported")
	}
	if err := g.Stopping.Collision.Enable(); err != nil {
		t.Fatal(err)
	}
	gp, err := g.Particles()
	if err != nil {
		t.Fatal(err)
	}
	p := pair(t, nil)
	if err := p.Assign("vy", units.NewArray([]float64{0, 0}, units.NBodySpeed)); err != nil {
		t.Fatal(err)
	}
	if err := p.Assign("radius", units.New(0.1, units.NBodyLength)); err != nil {
		t.Fatal(err)
	}
	if _, err := gp.AddParticles(p); err != nil {
		t.Fatal(err)
	}
	if err := g.EvolveModel(units.New(10, units.NBodyTime)); err != nil {
		t.Fatal(err)
	}
	set, err := g.Stopping.Collision.IsSet()
	if err != nil {
		t.Fatal(err)
	}
	if !set {
		t.Fatal("no collision detected")
	}
	tm, err := g.ModelTime()
	if err != nil {
		t.Fatal(err)
	}
	if tm.Value >= 10 {
		t.Errorf("evolved to %v despite the collision", tm)
	}
	keys := p.Keys()
	for col, want := range keys {
		hit, err := g.Stopping.Collision.Particles(col)
		if err != nil {
			t.Fatal(err)
		}
		if got := hit.Keys(); len(got) != 1 || got[0] != want {
			t.Errorf("column %d: %v, want %v", col, got, want)
		}
	}

	if err := g.Stopping.Collision.Disable(); err != nil {
		t.Fatal(err)
	}
	if err := g.Stopping.NumberOfSteps.Enable(); err != nil {
		t.Fatal(err)
	}
	params, err := g.Params()
	if err != nil {
		t.Fatal(err)
	}
	if err := params.SetValue("stopping_conditions_number_of_steps", 3); err != nil {
		t.Fatal(err)
	}
	start := tm.Value
	if err := g.EvolveModel(units.New(start+1, units.NBodyTime)); err != nil {
		t.Fatal(err)
	}
	if tm, err = g.ModelTime(); err != nil {
		t.Fatal(err)
	}
	if want := start + 3*gravity.DefaultTimeStep; !floats.EqualWithinAbsOrRel(tm.Value, want, 1e-12, 1e-12) {
		t.Errorf("after 3 steps time is %g, want %g", tm.Value, want)
	}
	if set, _ := g.Stopping.NumberOfSteps.IsSet(); !set {
		t.Errorf("number of steps condition not set")
	}
	if set, _ := g.Stopping.Collision.IsSet(); set {
		t.Errorf("collision set while disabled")
	}
}

func TestParameters(t *testing.T) {
	g := newGravity(t, nil)
	params, err := g.Params()
	if err != nil {
		t.Fatal(err)
	}
	if err := params.SetDefaults(); err != nil {
		t.Fatal(err)
	}
	if s := g.State.CurrentState(); s != "INITIALIZED" {
		t.Errorf("state %s, want INITIALIZED", s)
	}
	ts, err := params.Get("timestep")
	if err != nil {
		t.Fatal(err)
	}
	if ts.Value != gravity.DefaultTimeStep {
		t.Errorf("timestep %v", ts)
	}
	if err := params.Set("epsilon_squared", units.New(0.01, units.NBodyLength.Pow(2))); err != nil {
		t.Fatal(err)
	}
	eps2, err := params.Get("epsilon_squared")
	if err != nil {
		t.Fatal(err)
	}
	if eps2.Value != 0.01 {
		t.Errorf("epsilon_squared %v", eps2)
	}
	if err := params.Set("timestep", units.New(-1, units.NBodyTime)); err == nil {
		t.Errorf("negative timestep accepted")
	}
	timeout, err := params.Get("stopping_conditions_timeout")
	if err != nil {
		t.Fatal(err)
	}
	if v, _ := timeout.In(units.S); v != 4 {
		t.Errorf("timeout %v", timeout)
	}
}
