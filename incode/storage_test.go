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

package incode_test

import (
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/kr/pretty"
	"github.com/spatialmodel/amuse/channel"
	"github.com/spatialmodel/amuse/datamodel"
	"github.com/spatialmodel/amuse/incode"
	"github.com/spatialmodel/amuse/legacy"
	"github.com/spatialmodel/amuse/units"
	"github.com/spatialmodel/amuse/worker"
)

var table = legacy.MustTable("incode_test",
	legacy.NewSpecification("new_particle", 2).
		AddParameter("mass", legacy.Float64, legacy.In, legacy.WithUnit(units.Kg)).
		AddParameter("radius", legacy.Float64, legacy.In, legacy.WithUnit(units.M), legacy.WithDefault(0.5)).
		AddParameter("index_of_the_particle", legacy.Int32, legacy.Out).
		Returns(legacy.Int32, "0").Arrays(false),
	legacy.NewSpecification("delete_particle", 3).
		AddParameter("index_of_the_particle", legacy.Int32, legacy.In).
		Returns(legacy.Int32, "0, or -1 for unknown particles").Arrays(false),
	legacy.NewSpecification("get_state", 4).
		AddParameter("index_of_the_particle", legacy.Int32, legacy.In).
		AddParameter("mass", legacy.Float64, legacy.Out, legacy.WithUnit(units.Kg)).
		AddParameter("radius", legacy.Float64, legacy.Out, legacy.WithUnit(units.M)).
		AddParameter("x", legacy.Float64, legacy.Out, legacy.WithUnit(units.M)).
		AddParameter("y", legacy.Float64, legacy.Out, legacy.WithUnit(units.M)).
		Returns(legacy.Int32, "0, or -1 for unknown particles").Arrays(false),
	legacy.NewSpecification("set_mass", 5).
		AddParameter("index_of_the_particle", legacy.Int32, legacy.In).
		AddParameter("mass", legacy.Float64, legacy.In, legacy.WithUnit(units.Kg)).
		Returns(legacy.Int32, "0").Arrays(false),
	legacy.NewSpecification("set_position", 6).
		AddParameter("index_of_the_particle", legacy.Int32, legacy.In).
		AddParameter("x", legacy.Float64, legacy.In, legacy.WithUnit(units.M)).
		AddParameter("y", legacy.Float64, legacy.In, legacy.WithUnit(units.M)).
		Returns(legacy.Int32, "0").Arrays(false),
	legacy.NewSpecification("get_heavy", 7).
		AddParameter("slot", legacy.Int32, legacy.In).
		AddParameter("index_of_the_particle", legacy.Int32, legacy.Out).
		Returns(legacy.Int32, "0").Arrays(false),
)

type body struct{ mass, radius, x, y float64 }

// code is a worker holding particles in a map. Indices are never reused.
type code struct {
	bodies   map[int32]*body
	next     int32
	getCalls int32
}

func (c *code) server() *worker.Server {
	s := worker.NewServer(table)
	s.MustRegister("new_particle", func(in, out *legacy.Batch) error {
		m, r, idx := in.Float64s("mass"), in.Float64s("radius"), out.Int32s("index_of_the_particle")
		for i := range m {
			c.next += 10
			c.bodies[c.next] = &body{mass: m[i], radius: r[i]}
			idx[i] = c.next
		}
		return nil
	})
	s.MustRegister("delete_particle", func(in, out *legacy.Batch) error {
		code := out.Int32s(legacy.ResultName)
		for i, j := range in.Int32s("index_of_the_particle") {
			if _, ok := c.bodies[j]; !ok {
				code[i] = -1
			}
			delete(c.bodies, j)
		}
		return nil
	})
	s.MustRegister("get_state", func(in, out *legacy.Batch) error {
		atomic.AddInt32(&c.getCalls, 1)
		code := out.Int32s(legacy.ResultName)
		m, r, x, y := out.Float64s("mass"), out.Float64s("radius"), out.Float64s("x"), out.Float64s("y")
		for i, j := range in.Int32s("index_of_the_particle") {
			b, ok := c.bodies[j]
			if !ok {
				code[i] = -1
				continue
			}
			m[i], r[i], x[i], y[i] = b.mass, b.radius, b.x, b.y
		}
		return nil
	})
	s.MustRegister("set_mass", func(in, out *legacy.Batch) error {
		m := in.Float64s("mass")
		for i, j := range in.Int32s("index_of_the_particle") {
			c.bodies[j].mass = m[i]
		}
		return nil
	})
	s.MustRegister("set_position", func(in, out *legacy.Batch) error {
		x, y := in.Float64s("x"), in.Float64s("y")
		for i, j := range in.Int32s("index_of_the_particle") {
			c.bodies[j].x, c.bodies[j].y = x[i], y[i]
		}
		return nil
	})
	s.MustRegister("get_heavy", func(in, out *legacy.Batch) error {
		var heavy []int32
		for j := int32(0); j <= c.next; j++ {
			if b, ok := c.bodies[j]; ok && b.mass > 1 {
				heavy = append(heavy, j)
			}
		}
		idx := out.Int32s("index_of_the_particle")
		for i, slot := range in.Int32s("slot") {
			idx[i] = -1
			if int(slot) < len(heavy) {
				idx[i] = heavy[slot]
			}
		}
		return nil
	})
	return s
}

// counted counts the calls made through a method.
type counted struct {
	incode.Method
	calls int
}

func (c *counted) Call(args []interface{}, kwargs legacy.Kwargs) (*legacy.Result, error) {
	c.calls++
	return c.Method.Call(args, kwargs)
}

type fixture struct {
	code    *code
	storage *incode.Storage
	get     *counted
	fs      map[string]*legacy.Function
	ch      channel.Channel
}

func newFixture(t *testing.T, opts ...channel.Option) *fixture {
	t.Helper()
	c := &code{bodies: make(map[int32]*body)}
	ch, w := channel.Pipe(opts...)
	go c.server().Serve(w)
	t.Cleanup(func() { ch.Stop() })

	fs := table.Bind(ch)
	s, err := incode.NewStorage(fs["new_particle"], fs["delete_particle"])
	if err != nil {
		t.Fatal(err)
	}
	get := &counted{Method: fs["get_state"]}
	g, err := incode.NewGetter(get)
	if err != nil {
		t.Fatal(err)
	}
	s.AddGetter(g)
	for _, name := range []string{"set_mass", "set_position"} {
		st, err := incode.NewSetter(fs[name])
		if err != nil {
			t.Fatal(err)
		}
		s.AddSetter(st)
	}
	return &fixture{code: c, storage: s, get: get, fs: fs, ch: ch}
}

func TestStorage(t *testing.T) {
	f := newFixture(t)
	s := f.storage
	keys := []datamodel.Key{11, 12, 13}
	err := s.Add(keys, []string{"mass", "x"}, []units.Array{
		units.NewArray([]float64{1000, 2000, 3000}, units.Gram),
		units.NewArray([]float64{1, 2, 3}, units.Km),
	})
	if err != nil {
		t.Fatal(err)
	}
	if s.Len() != 3 || !s.HasKey(12) {
		t.Fatalf("keys: %v", s.Keys())
	}
	if i, _ := s.Index(13); i != 30 {
		t.Errorf("index of key 13 = %d", i)
	}

	f.get.calls = 0
	v, err := s.Get([]datamodel.Key{13, 11}, []string{"x", "radius", "mass"})
	if err != nil {
		t.Fatal(err)
	}
	want := [][]float64{{3000, 1000}, {0.5, 0.5}, {3, 1}}
	for i := range want {
		if diff := pretty.Diff(v[i].Values, want[i]); len(diff) > 0 {
			t.Errorf("column %d: %v", i, diff)
		}
	}
	if v[0].Unit != units.M || v[2].Unit != units.Kg {
		t.Errorf("units %v and %v", v[0].Unit, v[2].Unit)
	}
	if f.get.calls != 1 {
		t.Errorf("one getter serves all attributes, got %d calls", f.get.calls)
	}

	t.Run("partial setter", func(t *testing.T) {
		// set_position also takes y, which is read back first.
		if err := s.Set([]datamodel.Key{12}, []string{"y"}, []units.Array{units.NewArray([]float64{7}, units.M)}); err != nil {
			t.Fatal(err)
		}
		v, _ := s.Get([]datamodel.Key{12}, []string{"x", "y"})
		if v[0].Values[0] != 2000 || v[1].Values[0] != 7 {
			t.Errorf("x, y = %v, %v", v[0].Values, v[1].Values)
		}
	})

	t.Run("coverage", func(t *testing.T) {
		_, err := s.Get(nil, []string{"mass", "spin", "colour"})
		if err == nil || !strings.Contains(err.Error(), "Do not have attributes [spin, colour]") {
			t.Errorf("get: %v", err)
		}
		err = s.Set(keys, []string{"radius"}, []units.Array{units.NewArray([]float64{1, 1, 1}, units.M)})
		if err == nil || !strings.Contains(err.Error(), "Cannot set attributes [radius]") {
			t.Errorf("set: %v", err)
		}
	})

	t.Run("query", func(t *testing.T) {
		heavy, err := s.Select(f.fs["get_heavy"], []int32{0, 1, 2})
		if err != nil {
			t.Fatal(err)
		}
		if diff := pretty.Diff(heavy, []datamodel.Key{12, 13}); len(diff) > 0 {
			t.Errorf("heavy: %v", diff)
		}
	})

	t.Run("remove", func(t *testing.T) {
		var mk *datamodel.MissingKeysError
		if err := s.Remove([]datamodel.Key{12, 99}); !errors.As(err, &mk) {
			t.Fatalf("removing an unknown key: %v", err)
		}
		if s.Len() != 3 {
			t.Fatal("failed remove changed the storage")
		}
		if err := s.Remove([]datamodel.Key{12}); err != nil {
			t.Fatal(err)
		}
		if s.HasKey(12) || s.Len() != 2 || len(f.code.bodies) != 2 {
			t.Errorf("after remove: keys %v, worker holds %d", s.Keys(), len(f.code.bodies))
		}
		// The remaining particles keep their indices.
		if err := s.Add([]datamodel.Key{12}, []string{"mass"}, []units.Array{units.NewArray([]float64{9}, units.Kg)}); err != nil {
			t.Fatal(err)
		}
		v, err := s.Get(nil, []string{"mass"})
		if err != nil {
			t.Fatal(err)
		}
		if diff := pretty.Diff(v[0].Values, []float64{1, 3, 9}); len(diff) > 0 {
			t.Errorf("mass after re-adding: %v", diff)
		}
		if i, _ := s.Index(12); i != 40 {
			t.Errorf("re-added particle has index %d", i)
		}
	})

	t.Run("duplicate", func(t *testing.T) {
		err := s.Add([]datamodel.Key{11}, []string{"mass"}, []units.Array{units.NewArray([]float64{1}, units.Kg)})
		if err == nil {
			t.Error("adding an existing key should fail")
		}
	})
}

func TestParticleSet(t *testing.T) {
	f := newFixture(t)
	p := datamodel.NewParticlesWithStorage(f.storage)
	added, err := p.Grow(2)
	if err != nil {
		t.Fatal(err)
	}
	if err := added.Assign("mass", units.NewArray([]float64{2, 4}, units.Kg)); err != nil {
		t.Fatal(err)
	}
	total, err := p.TotalMass()
	if err != nil {
		t.Fatal(err)
	}
	if total.Value != 6 {
		t.Errorf("total mass = %v", total)
	}
	mem, err := p.Copy()
	if err != nil {
		t.Fatal(err)
	}
	mem.Assign("mass", units.New(1, units.Kg))
	if err := mem.NewChannelTo(p).CopyAttributes("mass"); err != nil {
		t.Fatal(err)
	}
	m, _ := p.Get("mass")
	if diff := pretty.Diff(m.Values, []float64{1, 1}); len(diff) > 0 {
		t.Errorf("mass after channel copy: %v", diff)
	}
}

// One oversized call is split by the channel only: the storage makes a
// single getter call and the worker sees one message per chunk.
func TestSplitOnce(t *testing.T) {
	f := newFixture(t, channel.WithMaxMessageLength(4))
	n := 10
	keys := make([]datamodel.Key, n)
	mass := units.Zeros(n, units.Kg)
	for i := range keys {
		keys[i] = datamodel.Key(i + 1)
		mass.Values[i] = float64(i)
	}
	if err := f.storage.Add(keys, []string{"mass"}, []units.Array{mass}); err != nil {
		t.Fatal(err)
	}
	v, err := f.storage.Get(nil, []string{"mass"})
	if err != nil {
		t.Fatal(err)
	}
	if diff := pretty.Diff(v[0].Values, mass.Values); len(diff) > 0 {
		t.Errorf("mass: %v", diff)
	}
	if f.get.calls != 1 {
		t.Errorf("storage made %d getter calls", f.get.calls)
	}
	if n := atomic.LoadInt32(&f.code.getCalls); n != 3 {
		t.Errorf("worker received %d get_state messages, want 3", n)
	}
}
