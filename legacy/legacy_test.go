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

package legacy_test

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/kr/pretty"
	"github.com/spatialmodel/amuse/channel"
	"github.com/spatialmodel/amuse/legacy"
	"github.com/spatialmodel/amuse/worker"
)

var (
	addSpec = legacy.NewSpecification("add", 2).
		AddParameter("a", legacy.Float64, legacy.In).
		AddParameter("b", legacy.Float64, legacy.In, legacy.WithDefault(5.0)).
		AddParameter("c", legacy.Float64, legacy.Out).
		Arrays(false)

	echoSpec = legacy.NewSpecification("echo", 3).
			AddParameter("index", legacy.Int32, legacy.In).
			AddParameter("name", legacy.String, legacy.InOut).
			AddParameter("flag", legacy.Bool, legacy.Out).
			AddParameter("count", legacy.Int64, legacy.Out).
			Returns(legacy.Int32, "0 on success, -1 for negative indices").
			Arrays(false)

	sqrSpec = legacy.NewSpecification("square", 4).
		AddParameter("x", legacy.Float32, legacy.In).
		Returns(legacy.Float32, "x squared")

	missingSpec = legacy.NewSpecification("not_implemented", 5)

	testTable = legacy.MustTable("test", addSpec, echoSpec, sqrSpec, missingSpec)
)

func start(t *testing.T, calls *int32, opts ...channel.Option) map[string]*legacy.Function {
	s := worker.NewServer(testTable)
	s.MustRegister("add", func(in, out *legacy.Batch) error {
		if calls != nil {
			atomic.AddInt32(calls, 1)
		}
		a, b, c := in.Float64s("a"), in.Float64s("b"), out.Float64s("c")
		for i := range c {
			c[i] = a[i] + b[i]
		}
		return nil
	})
	s.MustRegister("echo", func(in, out *legacy.Batch) error {
		idx, name := in.Int32s("index"), out.Strings("name")
		flag, count, code := out.Bools("flag"), out.Int64s("count"), out.Int32s(legacy.ResultName)
		for i := range idx {
			if idx[i] < 0 {
				code[i] = -1
				continue
			}
			name[i] = strings.ToUpper(name[i])
			flag[i] = idx[i]%2 == 0
			count[i] = int64(len(name[i])) << 40
		}
		return nil
	})
	s.MustRegister("square", func(in, out *legacy.Batch) error {
		x, r := in.Float32s("x"), out.Float32s(legacy.ResultName)
		for i := range x {
			r[i] = x[i] * x[i]
		}
		return nil
	})
	c, w := channel.Pipe(opts...)
	go s.Serve(w)
	t.Cleanup(func() { c.Stop() })
	return testTable.Bind(c)
}

func TestDefaultParameter(t *testing.T) {
	f := start(t, nil)
	r, err := f["add"].Call([]interface{}{2.0}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if v, ok := r.Value().(float64); !ok || v != 7 {
		t.Errorf("add(2) = %#v, want 7", r.Value())
	}
	r, err = f["add"].Call(nil, legacy.Kwargs{"a": 1, "b": 2})
	if err != nil {
		t.Fatal(err)
	}
	if r.Value().(float64) != 3 {
		t.Errorf("add(a=1, b=2) = %v", r.Value())
	}
}

func TestMissingParameter(t *testing.T) {
	f := start(t, nil)
	_, err := f["add"].Call(nil, legacy.Kwargs{"b": 1.0})
	var me *legacy.MissingParametersError
	if !errors.As(err, &me) {
		t.Fatalf("want MissingParametersError, got %v", err)
	}
	if diff := pretty.Diff(me.Names, []string{"a"}); len(diff) > 0 {
		t.Errorf("missing: %v", diff)
	}
	_, err = f["echo"].Call(nil, nil)
	if !errors.As(err, &me) {
		t.Fatalf("want MissingParametersError, got %v", err)
	}
	if diff := pretty.Diff(me.Names, []string{"index", "name"}); len(diff) > 0 {
		t.Errorf("missing: %v", diff)
	}
}

func TestArrayCall(t *testing.T) {
	f := start(t, nil)
	r, err := f["add"].Call([]interface{}{[]float64{1, 2, 3}}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if diff := pretty.Diff(r.Float64s("c"), []float64{6, 7, 8}); len(diff) > 0 {
		t.Errorf("c: %v", diff)
	}
	// A batch of one stays wrapped.
	r, err = f["add"].Call([]interface{}{[]float64{1}}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := r.Value().([]float64); !ok {
		t.Errorf("batch of one was unwrapped to %T", r.Value())
	}
	if _, err := f["add"].Call([]interface{}{[]float64{1, 2}, []float64{1, 2, 3}}, nil); err == nil {
		t.Error("mismatched array lengths should fail")
	}
	r, err = f["add"].Call([]interface{}{[]float64{}}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if v := r.Float64s("c"); len(v) != 0 {
		t.Errorf("empty call returned %v", v)
	}
}

func TestOrderedOutputs(t *testing.T) {
	f := start(t, nil)
	r, err := f["echo"].Call([]interface{}{[]int32{2, 3, -1}, []string{"ab", "c", "d"}}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if diff := pretty.Diff(r.Names, []string{"name", "flag", "count", legacy.ResultName}); len(diff) > 0 {
		t.Errorf("names: %v", diff)
	}
	if diff := pretty.Diff(r.Strings("name"), []string{"AB", "C", "d"}); len(diff) > 0 {
		t.Errorf("name: %v", diff)
	}
	if diff := pretty.Diff(r.Bools("flag"), []bool{true, false, false}); len(diff) > 0 {
		t.Errorf("flag: %v", diff)
	}
	if diff := pretty.Diff(r.Int64s("count"), []int64{2 << 40, 1 << 40, 0}); len(diff) > 0 {
		t.Errorf("count: %v", diff)
	}
	if diff := pretty.Diff(r.Codes(), []int32{0, 0, -1}); len(diff) > 0 {
		t.Errorf("codes: %v", diff)
	}

	r, err = f["square"].Invoke(float32(3))
	if err != nil {
		t.Fatal(err)
	}
	if v, ok := r.Value().(float32); !ok || v != 9 {
		t.Errorf("square(3) = %#v", r.Value())
	}
}

func TestSplitOwnedByChannel(t *testing.T) {
	var calls int32
	const max, n = 4, 10
	f := start(t, &calls, channel.WithMaxMessageLength(max))
	a := make([]float64, n)
	for i := range a {
		a[i] = float64(i)
	}
	r, err := f["add"].Call([]interface{}{a, 1.0}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got := atomic.LoadInt32(&calls); got != (n+max-1)/max {
		t.Errorf("worker handled %d messages, want %d", got, (n+max-1)/max)
	}
	c := r.Float64s("c")
	for i := range c {
		if c[i] != a[i]+1 {
			t.Errorf("c[%d] = %g", i, c[i])
		}
	}
}

func TestAsync(t *testing.T) {
	f := start(t, nil)
	p, err := f["add"].Go([]interface{}{[]float64{1, 2}}, legacy.Kwargs{"b": 0.5})
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Wait(); err != nil {
		t.Fatal(err)
	}
	r, err := p.Result()
	if err != nil {
		t.Fatal(err)
	}
	if diff := pretty.Diff(r.Float64s("c"), []float64{1.5, 2.5}); len(diff) > 0 {
		t.Errorf("c: %v", diff)
	}
	again, _ := p.Result()
	if again != r {
		t.Error("result should be memoized")
	}
}

func TestNotUnderstood(t *testing.T) {
	f := start(t, nil)
	_, err := f["not_implemented"].Call(nil, nil)
	var ce *legacy.CallError
	var nu *channel.NotUnderstoodError
	if !errors.As(err, &ce) || !errors.As(err, &nu) {
		t.Fatalf("want CallError wrapping NotUnderstoodError, got %v", err)
	}
	if ce.Function != "not_implemented" {
		t.Errorf("function = %s", ce.Function)
	}
	if _, err := f["add"].Invoke(1.0); err != nil {
		t.Errorf("channel should remain usable: %v", err)
	}
}

func TestTable(t *testing.T) {
	if _, err := legacy.NewTable("bad", legacy.NewSpecification("stop", 0)); err == nil {
		t.Error("reserved tag should fail")
	}
	if _, err := legacy.NewTable("bad", legacy.NewSpecification("a", 2), legacy.NewSpecification("b", 2)); err == nil {
		t.Error("duplicate tag should fail")
	}
	other := legacy.MustTable("other", legacy.NewSpecification("add", 2))
	if other.Fingerprint() == testTable.Fingerprint() {
		t.Error("different tables share a fingerprint")
	}
	// The worker reports the fingerprint of the table it serves.
	host, w := net.Pipe()
	go worker.NewServer(testTable).Serve(w)
	c := channel.NewStreamChannel(host, channel.WithFingerprint(testTable.Fingerprint()))
	if err := c.Start(context.Background()); err != nil {
		t.Error(err)
	}
	c.Stop()
}

func TestSpecificationString(t *testing.T) {
	want := "function: int echo(int index, char * name)\noutput: char * name, bool flag, long long count, int __result"
	if got := echoSpec.String(); got != want {
		t.Errorf("got %q\nwant %q", got, want)
	}
}

func TestParseDataType(t *testing.T) {
	for s, want := range map[string]legacy.DataType{"d": legacy.Float64, "int32": legacy.Int32, "s": legacy.String} {
		got, err := legacy.ParseDataType(s)
		if err != nil || got != want {
			t.Errorf("ParseDataType(%q) = %v, %v", s, got, err)
		}
	}
	if _, err := legacy.ParseDataType("x"); err == nil {
		t.Error("invalid code should fail")
	}
}

func TestLengthParameter(t *testing.T) {
	s := legacy.NewSpecification("sum", 9).
		AddParameter("index", legacy.Int32, legacy.In).
		AddParameter("n", legacy.Int32, legacy.Length).
		AddParameter("x", legacy.Float64, legacy.Out).
		Arrays(true)
	in := legacy.NewBatch(3)
	in.Set("index", []int32{4, 5, 6})
	m, err := legacy.EncodeCall(s, in)
	if err != nil {
		t.Fatal(err)
	}
	got, err := legacy.DecodeCall(s, m)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Has("n") {
		t.Fatal("no value for length parameter")
	}
	if diff := pretty.Diff(got.Int32s("n"), []int32{3, 3, 3}); len(diff) > 0 {
		t.Errorf("n: %v", diff)
	}
	if diff := pretty.Diff(got.Int32s("index"), []int32{4, 5, 6}); len(diff) > 0 {
		t.Errorf("index: %v", diff)
	}
	if got.Has("x") {
		t.Error("output parameter decoded")
	}
}
