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
	"sort"

	"github.com/ctessum/unit"
)

// Constants and commonly used units.
var (
	// None marks a value without a physical unit.
	None = &Unit{si: unit.New(1, nil), kind: noUnit}

	// ObjectKey is the pseudo-unit of attributes that hold references to
	// other entities.
	ObjectKey = &Unit{si: unit.New(1, nil), kind: objectKey}

	M  = Define("m", 1, unit.Dimensions{unit.LengthDim: 1})
	Cm = Define("cm", 1e-2, unit.Dimensions{unit.LengthDim: 1})
	Km = Define("km", 1e3, unit.Dimensions{unit.LengthDim: 1})
	AU = Define("AU", 149597870691.0, unit.Dimensions{unit.LengthDim: 1})
	Pc = Define("parsec", 3.0856775813057292e16, unit.Dimensions{unit.LengthDim: 1})
	// RSun is the solar radius.
	RSun = Define("RSun", 6.955e8, unit.Dimensions{unit.LengthDim: 1})

	Kg   = Define("kg", 1, unit.Dimensions{unit.MassDim: 1})
	Gram = Define("g", 1e-3, unit.Dimensions{unit.MassDim: 1})
	// MSun is the solar mass.
	MSun = Define("MSun", 1.98892e30, unit.Dimensions{unit.MassDim: 1})

	S   = Define("s", 1, unit.Dimensions{unit.TimeDim: 1})
	Day = Define("day", 86400, unit.Dimensions{unit.TimeDim: 1})
	Yr  = Define("yr", 3.15576e7, unit.Dimensions{unit.TimeDim: 1})
	Myr = Define("Myr", 3.15576e13, unit.Dimensions{unit.TimeDim: 1})

	J   = Define("J", 1, unit.Dimensions{unit.MassDim: 1, unit.LengthDim: 2, unit.TimeDim: -2})
	Erg = Define("erg", 1e-7, unit.Dimensions{unit.MassDim: 1, unit.LengthDim: 2, unit.TimeDim: -2})

	K   = Define("K", 1, unit.Dimensions{unit.TemperatureDim: 1})
	Rad = Define("rad", 1, unit.Dimensions{unit.AngleDim: 1})

	// MPerS and KmPerS are speeds.
	MPerS  = M.Div(S)
	KmPerS = Km.Div(S)
	// MPerS2 is an acceleration.
	MPerS2 = M.Div(S.Pow(2))

	// GravitationalConstant is Newton's constant in SI units.
	GravitationalConstant = New(6.67428e-11, M.Pow(3).Div(Kg).Div(S.Pow(2)))
)

func init() {
	registryMu.Lock()
	registry["none"] = None
	registry["object_key"] = ObjectKey
	registryMu.Unlock()
}

// baseSymbols maps each dimension to the symbol of its base unit.
var baseSymbols = map[unit.Dimension]string{
	unit.LengthDim:      "m",
	unit.MassDim:        "kg",
	unit.TimeDim:        "s",
	unit.TemperatureDim: "K",
	unit.AngleDim:       "rad",
}

func baseUnit(dims unit.Dimensions) *Unit {
	if len(dims) == 0 {
		return None
	}
	ds := make([]unit.Dimension, 0, len(dims))
	for d := range dims {
		ds = append(ds, d)
	}
	// Positive powers first, then by symbol, so the result prints the
	// same way every time.
	sort.Slice(ds, func(i, j int) bool {
		pi, pj := dims[ds[i]] > 0, dims[ds[j]] > 0
		if pi != pj {
			return pi
		}
		return baseSymbols[ds[i]] < baseSymbols[ds[j]]
	})
	var u *Unit
	for _, d := range ds {
		sym, ok := baseSymbols[d]
		if !ok {
			sym = d.String()
		}
		b, ok := Lookup(sym)
		if !ok {
			continue
		}
		b = b.Pow(dims[d])
		if u == nil {
			u = b
		} else {
			u = u.Mul(b)
		}
	}
	return u
}
