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
	"math"
	"sort"
	"testing"

	"github.com/kr/pretty"
	"github.com/spatialmodel/amuse/datamodel"
	"github.com/spatialmodel/amuse/kepler"
	"github.com/spatialmodel/amuse/units"
	"gonum.org/v1/gonum/floats"
)

type body struct {
	m        float64
	pos, vel [3]float64
}

// set returns the bodies as particles in N-body units.
func set(t *testing.T, bodies ...body) *datamodel.Particles {
	t.Helper()
	n := len(bodies)
	p := datamodel.NewParticles(n)
	col := func(f func(b body) float64) []float64 {
		out := make([]float64, n)
		for i, b := range bodies {
			out[i] = f(b)
		}
		return out
	}
	for _, c := range []struct {
		name string
		u    *units.Unit
		v    []float64
	}{
		{"mass", units.NBodyMass, col(func(b body) float64 { return b.m })},
		{"x", units.NBodyLength, col(func(b body) float64 { return b.pos[0] })},
		{"y", units.NBodyLength, col(func(b body) float64 { return b.pos[1] })},
		{"z", units.NBodyLength, col(func(b body) float64 { return b.pos[2] })},
		{"vx", units.NBodySpeed, col(func(b body) float64 { return b.vel[0] })},
		{"vy", units.NBodySpeed, col(func(b body) float64 { return b.vel[1] })},
		{"vz", units.NBodySpeed, col(func(b body) float64 { return b.vel[2] })},
		{"radius", units.NBodyLength, make([]float64, n)},
	} {
		if err := p.Assign(c.name, units.NewArray(c.v, c.u)); err != nil {
			t.Fatal(err)
		}
	}
	return p
}

func nbl(v float64) units.Quantity { return units.New(v, units.NBodyLength) }

func sortedKeys(p *datamodel.Particles) []datamodel.Key {
	k := p.Keys()
	sort.Slice(k, func(i, j int) bool { return k[i] < k[j] })
	return k
}

func keysOf(p *datamodel.Particles, idx ...int) []datamodel.Key {
	var out []datamodel.Key
	for _, i := range idx {
		out = append(out, p.Particle(i).Key)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func sameKeys(t *testing.T, name string, have, want []datamodel.Key) {
	t.Helper()
	if diff := pretty.Diff(have, want); len(diff) > 0 {
		t.Errorf("%s: %v", name, diff)
	}
}

func totalEnergy(t *testing.T, p *datamodel.Particles) float64 {
	t.Helper()
	k, err := p.KineticEnergy()
	if err != nil {
		t.Fatal(err)
	}
	u, err := p.PotentialEnergy(units.Zero, units.Zero)
	if err != nil {
		t.Fatal(err)
	}
	e, err := k.Add(u)
	if err != nil {
		t.Fatal(err)
	}
	v, err := e.In(units.NBodyEnergy)
	if err != nil {
		t.Fatal(err)
	}
	return v
}

func vector(t *testing.T, p datamodel.Particle, name string) []float64 {
	t.Helper()
	v, err := p.GetVector(name)
	if err != nil {
		t.Fatal(err)
	}
	return v.Values
}

// tightPair returns two bodies of mass 0.5 at apastron of an orbit with
// a = 2/3 and e = 0.5, and a light body receding from them far away.
func tightPair() []body {
	v := math.Sqrt(0.5) / 2
	return []body{
		{m: 0.5, pos: [3]float64{-0.5, 0, 0}, vel: [3]float64{0, -v, 0}},
		{m: 0.5, pos: [3]float64{0.5, 0, 0}, vel: [3]float64{0, v, 0}},
		{m: 0.1, pos: [3]float64{20, 0, 0}, vel: [3]float64{2, 0, 0}},
	}
}

func TestScalesAndNeighbours(t *testing.T) {
	encounter := set(t,
		body{m: 1, pos: [3]float64{0, 0, 0}},
		body{m: 1, pos: [3]float64{1, 0, 0}},
		body{m: 1, pos: [3]float64{4, 0, 0}},
	)
	field := set(t,
		body{m: 1, pos: [3]float64{6, 0, 0}},
		body{m: 1, pos: [3]float64{10, 0, 0}},
	)
	h := NewHandler(encounter, field, nil, nil)
	if err := h.Execute(); err != nil {
		t.Fatal(err)
	}
	for _, c := range []struct {
		name       string
		have, want units.Quantity
	}{
		{"large scale", h.LargeScale, nbl(14.0 / 3)},
		{"small scale", h.SmallScale, nbl(1)},
		{"sphere radius", h.SphereRadius, nbl(3.25)},
	} {
		v, err := c.have.In(units.NBodyLength)
		if err != nil {
			t.Fatal(err)
		}
		if !floats.EqualWithinAbsOrRel(v, c.want.Value, 1e-12, 1e-12) {
			t.Errorf("%s: have %g, want %g", c.name, v, c.want.Value)
		}
	}
	sameKeys(t, "neighbours", sortedKeys(h.Neighbours), keysOf(field, 0))
	if h.Singles.Len() != 4 {
		t.Errorf("have %d singles, want 4", h.Singles.Len())
	}
	if h.NewMultiples.Len() != 0 || h.NewBinaries.Len() != 0 {
		t.Errorf("passthrough made %d multiples and %d binaries", h.NewMultiples.Len(), h.NewBinaries.Len())
	}
	for i, want := range []float64{0, 1, 4} {
		p := encounter.Particle(i)
		have := vector(t, h.Evolved.ParticleWithKey(p.Key), "position")
		if !floats.EqualApprox(have, []float64{want, 0, 0}, 1e-12) {
			t.Errorf("particle %d back at %v, want x = %g", i, have, want)
		}
	}
}

func TestDissolveMultiple(t *testing.T) {
	model := set(t,
		body{m: 1, pos: [3]float64{0, 0, 0}, vel: [3]float64{0, 0.5, 0}},
		body{m: 1, pos: [3]float64{3, 0, 0}},
	)
	components := set(t,
		body{m: 0.5, pos: [3]float64{-0.05, 0, 0}, vel: [3]float64{0, -0.1, 0}},
		body{m: 0.5, pos: [3]float64{0.05, 0, 0}, vel: [3]float64{0, 0.1, 0}},
	)
	multiples := NewMultiples()
	if err := multiples.Add(model.Particle(0), components); err != nil {
		t.Fatal(err)
	}
	h := NewHandler(model, nil, multiples, nil)
	if err := h.Execute(); err != nil {
		t.Fatal(err)
	}
	sameKeys(t, "dissolved", sortedKeys(h.DissolvedMultiples), keysOf(model, 0))
	if multiples.Len() != 0 || len(multiples.Components) != 0 {
		t.Errorf("%d multiples left, want none", multiples.Len())
	}
	want := append(keysOf(components, 0, 1), model.Particle(1).Key)
	sort.Slice(want, func(i, j int) bool { return want[i] < want[j] })
	sameKeys(t, "singles", sortedKeys(h.Singles), want)

	a := h.Evolved.ParticleWithKey(components.Particle(0).Key)
	if have := vector(t, a, "position"); !floats.EqualApprox(have, []float64{-0.05, 0, 0}, 1e-12) {
		t.Errorf("component position %v", have)
	}
	if have := vector(t, a, "velocity"); !floats.EqualApprox(have, []float64{0, 0.4, 0}, 1e-12) {
		t.Errorf("component velocity %v", have)
	}
}

func TestSoftBinaryStripping(t *testing.T) {
	for _, known := range []bool{false, true} {
		name := "new binary"
		if known {
			name = "known binary"
		}
		t.Run(name, func(t *testing.T) {
			encounter := set(t, tightPair()...)
			a, b, c := encounter.Particle(0).Key, encounter.Particle(1).Key, encounter.Particle(2).Key
			binaries := datamodel.NewParticles(0)
			if known {
				binaries = set(t, body{m: 1})
				for attr, k := range map[string]datamodel.Key{datamodel.Child1: b, datamodel.Child2: a} {
					if err := binaries.Assign(attr, datamodel.References([]datamodel.Key{k})); err != nil {
						t.Fatal(err)
					}
				}
			}
			h := NewHandler(encounter, nil, nil, binaries)
			h.Evolver = NewSmallN(GravityCode(nil, units.Quantity{}),
				units.New(1.0/64, units.NBodyTime), units.New(10, units.NBodyTime))
			if err := h.Execute(); err != nil {
				t.Fatal(err)
			}

			if h.NewMultiples.Len() != 1 {
				t.Fatalf("have %d multiples, want 1", h.NewMultiples.Len())
			}
			m := h.NewMultiples.Particle(0)
			sameKeys(t, "components", sortedKeys(h.NewMultiples.Components[m.Key]), []datamodel.Key{a, b})
			mass, err := m.Get("mass")
			if err != nil {
				t.Fatal(err)
			}
			if v, _ := mass.In(units.NBodyMass); !floats.EqualWithinAbsOrRel(v, 1, 1e-12, 1e-12) {
				t.Errorf("multiple mass %g, want 1", v)
			}
			singles, err := h.ResolvedSingles()
			if err != nil {
				t.Fatal(err)
			}
			sameKeys(t, "singles", sortedKeys(singles), []datamodel.Key{c})

			if known {
				if h.NewBinaries.Len() != 0 || h.UpdatedBinaries.Len() != 1 {
					t.Fatalf("have %d new and %d updated binaries, want 0 and 1", h.NewBinaries.Len(), h.UpdatedBinaries.Len())
				}
				u := h.UpdatedBinaries.Particle(0)
				if u.Key != binaries.Particle(0).Key {
					t.Errorf("updated binary %d, want %d", u.Key, binaries.Particle(0).Key)
				}
				c1, _, err := u.Ref(datamodel.Child1)
				if err != nil {
					t.Fatal(err)
				}
				c2, _, err := u.Ref(datamodel.Child2)
				if err != nil {
					t.Fatal(err)
				}
				sameKeys(t, "updated children", []datamodel.Key{c1.Key, c2.Key}, []datamodel.Key{a, b})
				if have, want := vector(t, u, "position"), vector(t, m, "position"); !floats.EqualApprox(have, want, 1e-12) {
					t.Errorf("updated binary at %v, want %v", have, want)
				}
			} else if h.NewBinaries.Len() != 1 || h.UpdatedBinaries.Len() != 0 {
				t.Errorf("have %d new and %d updated binaries, want 1 and 0", h.NewBinaries.Len(), h.UpdatedBinaries.Len())
			}
		})
	}
}

// chain returns an evolver that puts the tight pair of tightPair in a
// tree under a center of mass particle with the far body.
func chain() Evolver {
	return EvolverFunc(func(singles *datamodel.Particles) (*datamodel.Particles, error) {
		out, err := stateCopy(singles)
		if err != nil {
			return nil, err
		}
		if err := clearTree(out); err != nil {
			return nil, err
		}
		s, err := load(out, units.Zero)
		if err != nil {
			return nil, err
		}
		leaf := func(i int) *node {
			return &node{key: s.keys[i], mass: s.mass[i], pos: s.pos[i], vel: s.vel[i]}
		}
		if _, err := s.addNode(out, merge(merge(leaf(0), leaf(1)), leaf(2))); err != nil {
			return nil, err
		}
		return out, nil
	})
}

func TestSoftPairChain(t *testing.T) {
	for _, test := range []struct {
		name      string
		hard      float64
		multiples int
		singles   int
	}{
		{name: "outer pair broken", hard: 1, multiples: 1, singles: 1},
		{name: "all pairs broken", hard: 0.5, multiples: 0, singles: 3},
	} {
		t.Run(test.name, func(t *testing.T) {
			h := NewHandler(set(t, tightPair()...), nil, nil, nil)
			h.HardBinaryFactor = test.hard
			h.Evolver = chain()
			if err := h.Execute(); err != nil {
				t.Fatal(err)
			}
			if h.NewMultiples.Len() != test.multiples {
				t.Errorf("have %d multiples, want %d", h.NewMultiples.Len(), test.multiples)
			}
			singles, err := h.ResolvedSingles()
			if err != nil {
				t.Fatal(err)
			}
			if singles.Len() != test.singles {
				t.Errorf("have %d singles, want %d", singles.Len(), test.singles)
			}
			if want := 3 + test.multiples; h.Evolved.Len() != want {
				t.Errorf("%d particles left in the end state, want %d", h.Evolved.Len(), want)
			}
		})
	}
}

// outgoingPair returns a pair with masses 0.6 and 0.4 on an orbit with
// a = 1 and e = 0.5, separated by 1 and receding, with its center of mass
// moving.
func outgoingPair(t *testing.T) *datamodel.Particles {
	t.Helper()
	o, err := kepler.New(1, []float64{0.5, 0, 0}, []float64{0, math.Sqrt(3), 0})
	if err != nil {
		t.Fatal(err)
	}
	if err := o.AdvanceToRadius(1); err != nil {
		t.Fatal(err)
	}
	r, v := o.Position(), o.Velocity()
	// Each body is at the fraction f of the relative vector from the
	// center of mass.
	at := func(m, f float64) body {
		return body{
			m:   m,
			pos: [3]float64{10 + f*r[0], f * r[1], f * r[2]},
			vel: [3]float64{f * v[0], f * v[1], 1 + f*v[2]},
		}
	}
	return set(t, at(0.6, -0.4), at(0.4, 0.6))
}

func separation(t *testing.T, p *datamodel.Particles) (r, rdot float64) {
	t.Helper()
	a, b := p.Particle(0), p.Particle(1)
	dr, dv := make([]float64, 3), make([]float64, 3)
	floats.SubTo(dr, vector(t, b, "position"), vector(t, a, "position"))
	floats.SubTo(dv, vector(t, b, "velocity"), vector(t, a, "velocity"))
	r = floats.Norm(dr, 2)
	return r, floats.Dot(dr, dv) / r
}

func TestTwoBodyRescaling(t *testing.T) {
	p := outgoingPair(t)
	sc := Scaler{}
	a, e, err := sc.SemimajorAxis(p)
	if err != nil {
		t.Fatal(err)
	}
	if !floats.EqualWithinAbsOrRel(a.Value, 1, 1e-12, 1e-12) || !floats.EqualWithinAbsOrRel(e, 0.5, 1e-12, 1e-12) {
		t.Fatalf("a = %g, e = %g; want 1 and 0.5", a.Value, e)
	}
	start, err := p.Copy()
	if err != nil {
		t.Fatal(err)
	}
	e0 := totalEnergy(t, p)
	com0, err := p.CenterOfMass()
	if err != nil {
		t.Fatal(err)
	}

	dp, dv, err := sc.Compress(p, nbl(0.5))
	if err != nil {
		t.Fatal(err)
	}
	if err := Move(p, dp, dv); err != nil {
		t.Fatal(err)
	}
	r, rdot := separation(t, p)
	if !floats.EqualWithinAbsOrRel(r, 0.51, 1e-9, 1e-9) {
		t.Errorf("compressed to %g, want 0.51", r)
	}
	if rdot < 0 {
		t.Errorf("compressed pair approaching at %g", rdot)
	}
	if e := totalEnergy(t, p); !floats.EqualWithinAbsOrRel(e, e0, 1e-9, 1e-9) {
		t.Errorf("energy %g after compression, want %g", e, e0)
	}
	com, err := p.CenterOfMass()
	if err != nil {
		t.Fatal(err)
	}
	if !floats.EqualApprox(com.Values, com0.Values, 1e-12) {
		t.Errorf("center of mass moved from %v to %v", com0.Values, com.Values)
	}

	if dp, dv, err = sc.Expand(p, nbl(1)); err != nil {
		t.Fatal(err)
	}
	if err := Move(p, dp, dv); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		for _, name := range []string{"position", "velocity"} {
			have, want := vector(t, p.Particle(i), name), vector(t, start.Particle(i), name)
			if !floats.EqualApprox(have, want, 1e-9) {
				t.Errorf("particle %d %s: have %v, want %v", i, name, have, want)
			}
		}
	}

	if dp, dv, err = sc.Expand(p, nbl(5)); err != nil {
		t.Fatal(err)
	}
	if err := Move(p, dp, dv); err != nil {
		t.Fatal(err)
	}
	if r, _ := separation(t, p); !floats.EqualWithinAbsOrRel(r, 1.49, 1e-9, 1e-9) {
		t.Errorf("expanded to %g, want 1.49 just inside apastron", r)
	}
}

func TestScaleToSphere(t *testing.T) {
	t.Run("pair", func(t *testing.T) {
		p := set(t, tightPair()[:2]...)
		e0 := totalEnergy(t, p)
		if err := (Scaler{}).ScaleToSphere(p, nbl(0.4)); err != nil {
			t.Fatal(err)
		}
		if r, _ := separation(t, p); !floats.EqualWithinAbsOrRel(r, 0.8, 1e-9, 1e-9) {
			t.Errorf("separation %g, want 0.8", r)
		}
		if e := totalEnergy(t, p); !floats.EqualWithinAbsOrRel(e, e0, 1e-9, 1e-9) {
			t.Errorf("energy %g, want %g", e, e0)
		}
	})
	t.Run("three bodies", func(t *testing.T) {
		p := set(t,
			body{m: 1, pos: [3]float64{0, 0, 0}, vel: [3]float64{1, 0, 0}},
			body{m: 1, pos: [3]float64{1, 0, 0}, vel: [3]float64{-1, 0, 0}},
			body{m: 1, pos: [3]float64{0, 2, 0}, vel: [3]float64{0, 1, 0}},
		)
		e0 := totalEnergy(t, p)
		com0, err := p.CenterOfMass()
		if err != nil {
			t.Fatal(err)
		}
		if err := (Scaler{}).ScaleToSphere(p, nbl(1)); err != nil {
			t.Fatal(err)
		}
		if e := totalEnergy(t, p); !floats.EqualWithinAbsOrRel(e, e0, 1e-9, 1e-9) {
			t.Errorf("energy %g, want %g", e, e0)
		}
		com, err := p.CenterOfMass()
		if err != nil {
			t.Fatal(err)
		}
		if !floats.EqualApprox(com.Values, com0.Values, 1e-12) {
			t.Errorf("center of mass moved from %v to %v", com0.Values, com.Values)
		}
		d := distance(vector(t, p.Particle(0), "position"), vector(t, p.Particle(1), "position"))
		if !floats.EqualWithinAbsOrRel(d, 2, 1e-12, 1e-12) {
			t.Errorf("closest pair %g apart, want 2", d)
		}
	})
	t.Run("too little kinetic energy", func(t *testing.T) {
		p := set(t,
			body{m: 1, pos: [3]float64{0, 0, 0}, vel: [3]float64{0.01, 0, 0}},
			body{m: 1, pos: [3]float64{1, 0, 0}},
			body{m: 1, pos: [3]float64{0, 1.5, 0}},
		)
		err := (Scaler{}).ScaleToSphere(p, nbl(10))
		if !errors.Is(err, ErrCannotScaleVelocities) {
			t.Errorf("have error %v, want %v", err, ErrCannotScaleVelocities)
		}
	})
}

func TestSmallNNotOver(t *testing.T) {
	singles := set(t,
		body{m: 1, pos: [3]float64{0, 0, 0}},
		body{m: 1, pos: [3]float64{1, 0, 0}},
		body{m: 1, pos: [3]float64{0.5, 0.8, 0}},
	)
	s := NewSmallN(GravityCode(nil, units.Quantity{}),
		units.New(1.0/64, units.NBodyTime), units.New(2.0/64, units.NBodyTime))
	_, err := s.Evolve(singles)
	if !errors.Is(err, ErrNotOver) {
		t.Errorf("have error %v, want %v", err, ErrNotOver)
	}
}

func TestHierarchy(t *testing.T) {
	p := set(t, tightPair()...)
	s, err := load(p, units.Zero)
	if err != nil {
		t.Fatal(err)
	}
	top := s.hierarchy()
	if len(top) != 2 {
		t.Fatalf("have %d top level nodes, want 2", len(top))
	}
	if len(top[0].children) != 2 || top[1].key != p.Particle(2).Key {
		t.Errorf("want the pair first and the far body second, have %# v", pretty.Formatter(top))
	}
	if !s.stable(top[0]) {
		t.Error("a bare pair is always stable")
	}
}
