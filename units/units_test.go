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

package units

import (
	"testing"

	"gonum.org/v1/gonum/floats"
)

func TestConversion(t *testing.T) {
	q := New(1, Km)
	v, err := q.In(M)
	if err != nil {
		t.Fatal(err)
	}
	if v != 1000 {
		t.Errorf("1 km = %g m, want 1000", v)
	}
	if _, err := q.In(Kg); err == nil {
		t.Error("converting km to kg should fail")
	} else if _, ok := err.(*IncompatibleUnitsError); !ok {
		t.Errorf("wrong error type %T", err)
	}
}

func TestParseString(t *testing.T) {
	for _, u := range []*Unit{M, KmPerS, J, M.Pow(3).Div(Kg).Div(S.Pow(2)), None, ObjectKey, MSun.Mul(AU.Pow(2))} {
		t.Run(u.String(), func(t *testing.T) {
			p, err := Parse(u.String())
			if err != nil {
				t.Fatal(err)
			}
			if !p.Equal(u) {
				t.Errorf("%s != %s", p, u)
			}
		})
	}
	if _, err := Parse("furlong"); err == nil {
		t.Error("unknown symbol should fail")
	}
}

func TestQuantityArithmetic(t *testing.T) {
	sum, err := New(1, Km).Add(New(500, M))
	if err != nil {
		t.Fatal(err)
	}
	if sum.Unit != Km || !floats.EqualWithinAbs(sum.Value, 1.5, 1e-12) {
		t.Errorf("sum = %s", sum)
	}
	z, err := Zero.Add(New(2, S))
	if err != nil {
		t.Fatal(err)
	}
	if z.Value != 2 || z.Unit != S {
		t.Errorf("zero should adopt the unit of the other operand, got %s", z)
	}
	e := New(2, Kg).Mul(New(3, MPerS).Mul(New(3, MPerS)))
	if v, _ := e.In(J); !floats.EqualWithinAbs(v, 18, 1e-12) {
		t.Errorf("energy = %g J, want 18", v)
	}
	r, err := New(16, M.Pow(2)).Sqrt()
	if err != nil {
		t.Fatal(err)
	}
	if v, _ := r.In(M); v != 4 {
		t.Errorf("sqrt = %s", r)
	}
	if _, err := New(2, M).Sqrt(); err == nil {
		t.Error("sqrt of m should fail")
	}
}

func TestArray(t *testing.T) {
	a := NewArray([]float64{1, 2, 3}, Km)
	b := NewArray([]float64{1000, 1000, 1000}, M)
	s, err := a.Add(b)
	if err != nil {
		t.Fatal(err)
	}
	if !floats.Equal(s.Values, []float64{2, 3, 4}) {
		t.Errorf("sum = %v", s.Values)
	}
	if _, err := a.Add(NewArray([]float64{1}, M)); err == nil {
		t.Error("length mismatch should fail")
	}
	c, err := Concatenate(a, b)
	if err != nil {
		t.Fatal(err)
	}
	if !floats.Equal(c.Values, []float64{1, 2, 3, 1, 1, 1}) {
		t.Errorf("concatenate = %v", c.Values)
	}
	if v, _ := a.Sum().In(M); v != 6000 {
		t.Errorf("sum = %g", v)
	}
}

func TestVectors(t *testing.T) {
	x := NewArray([]float64{3, 0}, M)
	y := NewArray([]float64{4, 100}, Cm)
	v, err := StackColumns(x, y)
	if err != nil {
		t.Fatal(err)
	}
	l := v.Lengths()
	if !floats.EqualApprox(l.Values, []float64{3.00026665, 1}, 1e-6) {
		t.Errorf("lengths = %v", l.Values)
	}
	if c := v.Component(1); !floats.EqualApprox(c.Values, []float64{0.04, 1}, 1e-12) {
		t.Errorf("component = %v", c.Values)
	}
}

func TestNBodyConverter(t *testing.T) {
	c, err := NewNBodyConverter(New(1, MSun), New(1, AU))
	if err != nil {
		t.Fatal(err)
	}
	// One N-body time unit for a solar mass at one AU is a year / 2π.
	tm, err := c.ToSI(New(1, NBodyTime))
	if err != nil {
		t.Fatal(err)
	}
	yr, _ := tm.In(Yr)
	if !floats.EqualWithinRel(yr, 1/(2*3.141592653589793), 1e-3) {
		t.Errorf("time unit = %g yr", yr)
	}

	g, err := c.ToNBody(GravitationalConstant)
	if err != nil {
		t.Fatal(err)
	}
	if !floats.EqualWithinRel(g.Value, 1, 1e-10) {
		t.Errorf("G = %s", g)
	}

	in := New(30, KmPerS)
	nb, err := c.FromTargetToSource(in)
	if err != nil {
		t.Fatal(err)
	}
	back, err := c.FromSourceToTarget(nb)
	if err != nil {
		t.Fatal(err)
	}
	if v, _ := back.In(KmPerS); !floats.EqualWithinRel(v, 30, 1e-10) {
		t.Errorf("round trip = %s", back)
	}

	a, err := ArrayToTarget(c, NewArray([]float64{1, 2}, NBodyMass))
	if err != nil {
		t.Fatal(err)
	}
	if v, _ := a.In(MSun); !floats.EqualApprox(v, []float64{1, 2}, 1e-10) {
		t.Errorf("masses = %v", v)
	}

	if _, err := NewNBodyConverter(New(1, MSun), New(2, Kg)); err == nil {
		t.Error("dependent quantities should fail")
	}
	if _, err := c.ToSI(New(1, NBodyLength.Mul(M))); err == nil {
		t.Error("mixed units should fail")
	}
}
