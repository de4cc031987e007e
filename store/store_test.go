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

package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/kr/pretty"
	"github.com/spatialmodel/amuse/datamodel"
	"github.com/spatialmodel/amuse/units"
)

func testParticles(t *testing.T, keys datamodel.KeyGenerator) *datamodel.Particles {
	t.Helper()
	p := datamodel.NewParticles(3, datamodel.WithKeys(keys))
	if err := p.Assign("mass", units.NewArray([]float64{1, 2, 3}, units.Kg)); err != nil {
		t.Fatal(err)
	}
	if err := p.Assign("x", units.NewArray([]float64{-1, 0, 1.5}, units.M)); err != nil {
		t.Fatal(err)
	}
	if err := p.Assign("eccentricity", units.New(0.25, units.None)); err != nil {
		t.Fatal(err)
	}
	k := p.Keys()
	if err := p.Assign(datamodel.Child1, datamodel.References([]datamodel.Key{0, k[0], 0})); err != nil {
		t.Fatal(err)
	}
	return p
}

func values(t *testing.T, p *datamodel.Particles, name string) []float64 {
	t.Helper()
	a, err := p.Get(name)
	if err != nil {
		t.Fatal(err)
	}
	return a.Values
}

func TestParticlesRoundTrip(t *testing.T) {
	p := testParticles(t, new(datamodel.SequentialKeys))
	for i := 1; i <= 2; i++ {
		if _, err := p.Savepoint(units.New(float64(i), units.Yr)); err != nil {
			t.Fatal(err)
		}
		if err := p.Assign("mass", units.NewArray([]float64{1, 2, 3 + float64(i)}, units.Kg)); err != nil {
			t.Fatal(err)
		}
	}
	path := filepath.Join(t.TempDir(), "particles.nc")
	meta := map[string]units.Quantity{"virial_ratio": units.New(0.5, units.None), "age": units.New(3, units.Yr)}
	if err := SaveParticles(path, p, units.New(3, units.Yr), meta); err != nil {
		t.Fatal(err)
	}

	got, last, err := LoadParticles(path)
	if err != nil {
		t.Fatal(err)
	}
	if diff := pretty.Diff(got.Keys(), p.Keys()); len(diff) > 0 {
		t.Errorf("keys: %v", diff)
	}
	if diff := pretty.Diff(got.StoredAttributeNames(), p.StoredAttributeNames()); len(diff) > 0 {
		t.Errorf("attributes: %v", diff)
	}
	for _, name := range []string{"mass", "x", "eccentricity"} {
		if diff := pretty.Diff(values(t, got, name), values(t, p, name)); len(diff) > 0 {
			t.Errorf("%s: %v", name, diff)
		}
	}
	e, err := got.Get("eccentricity")
	if err != nil {
		t.Fatal(err)
	}
	if !e.Unit.IsNone() {
		t.Errorf("eccentricity unit %s", e.Unit)
	}
	refs, err := got.References(datamodel.Child1)
	if err != nil {
		t.Fatal(err)
	}
	if want := []datamodel.Key{0, p.Keys()[0], 0}; len(pretty.Diff(refs, want)) > 0 {
		t.Errorf("child1 = %v, want %v", refs, want)
	}

	if v, err := last.Time.In(units.Yr); err != nil || v != 3 {
		t.Errorf("time = %v (%v)", last.Time, err)
	}
	if len(last.Attributes) != 2 {
		t.Fatalf("collection attributes: %v", last.Attributes)
	}
	if v := last.Attributes["virial_ratio"]; v.Value != 0.5 || !v.Unit.IsNone() {
		t.Errorf("virial ratio %v", v)
	}
	if v, err := last.Attributes["age"].In(units.Yr); err != nil || v != 3 {
		t.Errorf("age %v (%v)", last.Attributes["age"], err)
	}

	snaps := got.History().Snapshots()
	if len(snaps) != 2 {
		t.Fatalf("history has %d savepoints", len(snaps))
	}
	for i, s := range snaps {
		if v, err := s.Time.In(units.Yr); err != nil || v != float64(i+1) {
			t.Errorf("savepoint %d at %v", i, s.Time)
		}
		if m := values(t, s.Particles, "mass")[2]; m != 3+float64(i) {
			t.Errorf("savepoint %d: mass %g", i, m)
		}
	}
	prev, ok := got.Previous()
	if !ok || values(t, prev, "mass")[2] != 4 {
		t.Errorf("previous is not the newest savepoint")
	}

	// New particles of a loaded set get fresh keys.
	added, err := got.Grow(1)
	if err != nil {
		t.Fatal(err)
	}
	for _, k := range p.Keys() {
		if added.Keys()[0] == k {
			t.Errorf("new key %d already in use", k)
		}
	}
}

func TestRandomKeys(t *testing.T) {
	p := testParticles(t, datamodel.NewRandomKeys(42))
	path := filepath.Join(t.TempDir(), "random.nc")
	if err := SaveParticles(path, p, units.New(0, units.S), nil); err != nil {
		t.Fatal(err)
	}
	got, _, err := LoadParticles(path)
	if err != nil {
		t.Fatal(err)
	}
	if diff := pretty.Diff(got.Keys(), p.Keys()); len(diff) > 0 {
		t.Errorf("keys: %v", diff)
	}
	if got.History().Len() != 0 {
		t.Errorf("history has %d savepoints", got.History().Len())
	}
}

func TestGridRoundTrip(t *testing.T) {
	g, err := datamodel.NewRegularGrid([]int{2, 3}, []units.Quantity{units.New(1, units.M), units.New(3, units.M)})
	if err != nil {
		t.Fatal(err)
	}
	if err := g.Set("rho", units.New(1, units.Kg)); err != nil {
		t.Fatal(err)
	}
	if _, err := g.Savepoint(units.New(1, units.S)); err != nil {
		t.Fatal(err)
	}
	if err := g.Set("rho", units.New(2, units.Kg)); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "grid.nc")
	if err := SaveGrid(path, g, units.New(2, units.S), nil); err != nil {
		t.Fatal(err)
	}

	got, last, err := LoadGrid(path)
	if err != nil {
		t.Fatal(err)
	}
	if diff := pretty.Diff(got.Shape(), []int{2, 3}); len(diff) > 0 {
		t.Errorf("shape: %v", diff)
	}
	for _, name := range []string{"x", "y", "rho"} {
		want, err := g.Get(name)
		if err != nil {
			t.Fatal(err)
		}
		have, err := got.Get(name)
		if err != nil {
			t.Fatal(err)
		}
		if diff := pretty.Diff(have.Values, want.Values); len(diff) > 0 {
			t.Errorf("%s: %v", name, diff)
		}
		if !have.Unit.Equal(want.Unit) {
			t.Errorf("%s: unit %s, want %s", name, have.Unit, want.Unit)
		}
	}
	if v, err := last.Time.In(units.S); err != nil || v != 2 {
		t.Errorf("time = %v (%v)", last.Time, err)
	}
	prev, ok := got.Previous()
	if !ok {
		t.Fatal("no savepoint")
	}
	rho, err := prev.Get("rho")
	if err != nil {
		t.Fatal(err)
	}
	if rho.Values[0] != 1 {
		t.Errorf("saved rho = %g", rho.Values[0])
	}
}

func TestMixedAndEmptyGroups(t *testing.T) {
	g, err := datamodel.NewRegularGrid([]int{4}, []units.Quantity{units.New(2, units.M)})
	if err != nil {
		t.Fatal(err)
	}
	groups := []Group{
		{Time: units.New(0, units.S), Particles: datamodel.NewParticles(0)},
		{Time: units.New(1, units.S), Grid: g},
		{Time: units.New(2, units.S), Grid: datamodel.NewGrid(0, 3)},
		{Time: units.New(3, units.S), Particles: testParticles(t, new(datamodel.SequentialKeys))},
	}
	path := filepath.Join(t.TempDir(), "mixed.nc")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := Write(f, groups); err != nil {
		t.Fatal(err)
	}
	got, err := Read(f)
	if err != nil {
		t.Fatal(err)
	}
	f.Close()

	kinds := make([]string, len(got))
	for i, g := range got {
		kinds[i] = g.Kind()
	}
	if diff := pretty.Diff(kinds, []string{KindParticles, KindGrid, KindGrid, KindParticles}); len(diff) > 0 {
		t.Errorf("kinds: %v", diff)
	}
	if !got[0].Particles.IsEmpty() {
		t.Errorf("first group has %d particles", got[0].Particles.Len())
	}
	if diff := pretty.Diff(got[2].Grid.Shape(), []int{0, 3}); len(diff) > 0 {
		t.Errorf("empty grid shape: %v", diff)
	}
	if got[3].Particles.Len() != 3 {
		t.Errorf("last group has %d particles", got[3].Particles.Len())
	}

	if _, _, err := LoadParticles(path); err == nil {
		t.Error("loaded particles from a file holding grids")
	}
	if _, _, err := LoadGrid(path); err == nil {
		t.Error("loaded a grid from a file holding particles")
	}
}
