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
	"errors"
	"testing"

	"github.com/kr/pretty"
	"github.com/spatialmodel/amuse/units"
)

func TestKeys(t *testing.T) {
	var g SequentialKeys
	if diff := pretty.Diff(g.Next(3), []Key{1, 2, 3}); len(diff) > 0 {
		t.Errorf("sequential: %v", diff)
	}
	if k := g.Next(1)[0]; k != 4 {
		t.Errorf("next key = %d", k)
	}
	r := NewRandomKeys(1)
	keys := r.Next(1000)
	if HasDuplicates(keys) {
		t.Error("random keys repeat")
	}
	for _, k := range keys {
		if k == 0 {
			t.Fatal("random generator returned the null key")
		}
	}
	back, err := ReferencedKeys(References(keys))
	if err != nil {
		t.Fatal(err)
	}
	if diff := pretty.Diff(back, keys); len(diff) > 0 {
		t.Errorf("references: %v", diff)
	}
}

func TestInMemoryStorage(t *testing.T) {
	s := NewInMemoryStorage()
	err := s.Add([]Key{1, 2}, []string{"mass"}, []units.Array{units.NewArray([]float64{1, 2}, units.Kg)})
	if err != nil {
		t.Fatal(err)
	}
	// The second batch has a new attribute and lacks an old one.
	err = s.Add([]Key{3}, []string{"radius"}, []units.Array{units.NewArray([]float64{5}, units.M)})
	if err != nil {
		t.Fatal(err)
	}
	v, err := s.Get(nil, []string{"mass", "radius"})
	if err != nil {
		t.Fatal(err)
	}
	if diff := pretty.Diff(v[0].Values, []float64{1, 2, 0}); len(diff) > 0 {
		t.Errorf("mass: %v", diff)
	}
	if diff := pretty.Diff(v[1].Values, []float64{0, 0, 5}); len(diff) > 0 {
		t.Errorf("radius: %v", diff)
	}

	t.Run("set converts", func(t *testing.T) {
		if err := s.Set([]Key{2}, []string{"mass"}, []units.Array{units.NewArray([]float64{3000}, units.Gram)}); err != nil {
			t.Fatal(err)
		}
		v, _ := s.Get([]Key{2}, []string{"mass"})
		if v[0].Values[0] != 3 || v[0].Unit != units.Kg {
			t.Errorf("mass = %v", v[0])
		}
		err := s.Set([]Key{2}, []string{"mass"}, []units.Array{units.NewArray([]float64{1}, units.S)})
		if err == nil {
			t.Error("setting seconds into kilograms should fail")
		}
	})

	t.Run("failed add changes nothing", func(t *testing.T) {
		err := s.Add([]Key{4, 1}, []string{"mass"}, []units.Array{units.NewArray([]float64{1, 1}, units.Kg)})
		if err == nil {
			t.Fatal("duplicate key should fail")
		}
		if s.Len() != 3 || s.HasKey(4) {
			t.Errorf("storage changed: %v", s.Keys())
		}
		err = s.Add([]Key{4}, []string{"mass"}, []units.Array{units.NewArray([]float64{1}, units.S)})
		if err == nil || s.Len() != 3 {
			t.Error("add with incompatible units should fail without changes")
		}
	})

	t.Run("remove", func(t *testing.T) {
		if err := s.Remove([]Key{2, 9}); err == nil {
			t.Error("removing a missing key should fail")
		}
		if s.Len() != 3 {
			t.Fatal("failed remove changed the storage")
		}
		if err := s.Remove([]Key{2}); err != nil {
			t.Fatal(err)
		}
		if s.HasKey(2) || s.Len() != len(s.Keys()) {
			t.Errorf("keys after remove: %v", s.Keys())
		}
		// Re-adding a removed key must not collide with a live row.
		if err := s.Add([]Key{2}, []string{"mass"}, []units.Array{units.NewArray([]float64{7}, units.Kg)}); err != nil {
			t.Fatal(err)
		}
		v, _ := s.Get([]Key{1, 3, 2}, []string{"mass"})
		if diff := pretty.Diff(v[0].Values, []float64{1, 0, 7}); len(diff) > 0 {
			t.Errorf("mass: %v", diff)
		}
	})

	t.Run("undefined", func(t *testing.T) {
		_, err := s.Get(nil, []string{"spin"})
		var ae *AttributeError
		if !errors.As(err, &ae) || ae.Name != "spin" {
			t.Errorf("want AttributeError for spin, got %v", err)
		}
	})
}

func TestStorageSequence(t *testing.T) {
	s := NewInMemoryStorage()
	var g SequentialKeys
	live := make(map[Key]bool)
	for step := 0; step < 20; step++ {
		keys := g.Next(step%4 + 1)
		vals := units.Zeros(len(keys), units.M)
		for i, k := range keys {
			vals.Values[i] = float64(k)
			live[k] = true
		}
		if err := s.Add(keys, []string{"x"}, []units.Array{vals}); err != nil {
			t.Fatal(err)
		}
		if step%3 == 0 {
			k := s.Keys()[0]
			if err := s.Remove([]Key{k}); err != nil {
				t.Fatal(err)
			}
			delete(live, k)
			if s.HasKey(k) {
				t.Errorf("step %d: key %d still present", step, k)
			}
		}
		if s.Len() != len(s.Keys()) || s.Len() != len(live) {
			t.Fatalf("step %d: len %d, keys %d, live %d", step, s.Len(), len(s.Keys()), len(live))
		}
		v, err := s.Get(s.Keys(), []string{"x"})
		if err != nil {
			t.Fatal(err)
		}
		for i, k := range s.Keys() {
			if v[0].Values[i] != float64(k) {
				t.Errorf("step %d: row of key %d holds %g", step, k, v[0].Values[i])
			}
		}
	}
}
