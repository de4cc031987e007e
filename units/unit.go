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

// Package units provides the physical quantities exchanged between codes.
// A Unit is a named product of registered symbols backed by a
// github.com/ctessum/unit value holding its SI scale factor and dimensions.
package units

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/ctessum/unit"
)

type kind int

const (
	physical kind = iota
	noUnit
	objectKey
)

type term struct {
	symbol string
	pow    int
}

// Unit is a physical unit. The zero value is not usable; units are
// created with Define or derived from other units with Mul, Div and Pow.
type Unit struct {
	terms []term
	si    *unit.Unit
	kind  kind
}

// IncompatibleUnitsError is returned when two units do not share
// the same dimensions.
type IncompatibleUnitsError struct {
	From, To *Unit
}

func (e *IncompatibleUnitsError) Error() string {
	return fmt.Sprintf("units: incompatible units: %s (%v) cannot be converted to %s (%v)",
		e.From, e.From.si.Dimensions(), e.To, e.To.si.Dimensions())
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]*Unit)
)

// Define registers a new named unit whose value is factor times the SI
// unit with dimensions dims. It panics if the symbol is already taken,
// so it should only be called during initialization.
func Define(symbol string, factor float64, dims unit.Dimensions) *Unit {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, ok := registry[symbol]; ok {
		panic(fmt.Errorf("units: symbol %q already defined", symbol))
	}
	u := &Unit{
		terms: []term{{symbol: symbol, pow: 1}},
		si:    unit.New(factor, dims),
	}
	registry[symbol] = u
	return u
}

// Alias registers an additional symbol for an existing unit.
func Alias(symbol string, u *Unit) *Unit {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, ok := registry[symbol]; ok {
		panic(fmt.Errorf("units: symbol %q already defined", symbol))
	}
	a := &Unit{
		terms: []term{{symbol: symbol, pow: 1}},
		si:    u.si.Clone(),
		kind:  u.kind,
	}
	registry[symbol] = a
	return a
}

// Lookup returns the unit registered under symbol.
func Lookup(symbol string) (*Unit, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	u, ok := registry[symbol]
	return u, ok
}

// Parse reads a unit formatted by Unit.String, for example "kg m^2 s^-2".
func Parse(s string) (*Unit, error) {
	s = strings.TrimSpace(s)
	switch s {
	case "", "none":
		return None, nil
	case "object_key":
		return ObjectKey, nil
	}
	var result *Unit
	for _, f := range strings.Fields(s) {
		symbol, pow := f, 1
		if i := strings.LastIndex(f, "^"); i > 0 {
			p, err := strconv.Atoi(f[i+1:])
			if err != nil {
				return nil, fmt.Errorf("units: parsing %q: invalid power in %q", s, f)
			}
			symbol, pow = f[:i], p
		}
		u, ok := Lookup(symbol)
		if !ok {
			return nil, fmt.Errorf("units: parsing %q: unknown symbol %q", s, symbol)
		}
		u = u.Pow(pow)
		if result == nil {
			result = u
		} else {
			result = result.Mul(u)
		}
	}
	return result, nil
}

// Factor returns the value of one of this unit in SI base units.
func (u *Unit) Factor() float64 { return u.si.Value() }

// Dimensions returns the dimensions of the unit.
func (u *Unit) Dimensions() unit.Dimensions { return u.si.Dimensions() }

// IsNone reports whether u is the "no unit" sentinel.
func (u *Unit) IsNone() bool { return u != nil && u.kind == noUnit }

// IsObjectKey reports whether u is the pseudo-unit used for entity references.
func (u *Unit) IsObjectKey() bool { return u != nil && u.kind == objectKey }

// Mul returns the product of u and v.
func (u *Unit) Mul(v *Unit) *Unit {
	if u.IsNone() {
		return v
	}
	if v.IsNone() {
		return u
	}
	return &Unit{
		terms: mergeTerms(u.terms, v.terms, 1),
		si:    unit.Mul(u.si, v.si),
	}
}

// Div returns u divided by v.
func (u *Unit) Div(v *Unit) *Unit {
	if v.IsNone() {
		return u
	}
	inv := v.Pow(-1)
	if u.IsNone() {
		return inv
	}
	return u.Mul(inv)
}

// Pow returns u raised to the integer power n.
func (u *Unit) Pow(n int) *Unit {
	if n == 1 || u.kind != physical {
		return u
	}
	dims := make(unit.Dimensions)
	for d, p := range u.si.Dimensions() {
		dims[d] = p * n
	}
	return &Unit{
		terms: mergeTerms(nil, u.terms, n),
		si:    unit.New(math.Pow(u.si.Value(), float64(n)), dims),
	}
}

func mergeTerms(a, b []term, pow int) []term {
	out := make([]term, len(a), len(a)+len(b))
	copy(out, a)
	for _, t := range b {
		found := false
		for i := range out {
			if out[i].symbol == t.symbol {
				out[i].pow += t.pow * pow
				found = true
				break
			}
		}
		if !found {
			out = append(out, term{symbol: t.symbol, pow: t.pow * pow})
		}
	}
	j := 0
	for _, t := range out {
		if t.pow != 0 {
			out[j] = t
			j++
		}
	}
	return out[:j]
}

// Compatible reports whether values in u can be converted to v.
func (u *Unit) Compatible(v *Unit) bool {
	if u.kind == objectKey || v.kind == objectKey {
		return u.kind == v.kind
	}
	return unit.DimensionsMatch(u.si, v.si)
}

// ConversionFactor returns the number that values in u must be multiplied
// by to be expressed in v.
func (u *Unit) ConversionFactor(v *Unit) (float64, error) {
	if u == v {
		return 1, nil
	}
	if !u.Compatible(v) {
		return 0, &IncompatibleUnitsError{From: u, To: v}
	}
	if u.kind == objectKey {
		return 1, nil
	}
	return u.si.Value() / v.si.Value(), nil
}

// Equal reports whether u and v describe the same unit, regardless of
// how they are spelled.
func (u *Unit) Equal(v *Unit) bool {
	if u == v {
		return true
	}
	if u == nil || v == nil || !u.Compatible(v) {
		return false
	}
	a, b := u.si.Value(), v.si.Value()
	return math.Abs(a-b) <= 1e-12*math.Max(math.Abs(a), math.Abs(b))
}

// Base returns the SI base unit with the same dimensions as u.
func (u *Unit) Base() *Unit {
	if u.kind != physical {
		return u
	}
	return baseUnit(u.si.Dimensions())
}

func (u *Unit) String() string {
	if u == nil {
		return "<nil>"
	}
	switch u.kind {
	case noUnit:
		return "none"
	case objectKey:
		return "object_key"
	}
	if len(u.terms) == 0 {
		return "none"
	}
	parts := make([]string, len(u.terms))
	for i, t := range u.terms {
		if t.pow == 1 {
			parts[i] = t.symbol
		} else {
			parts[i] = fmt.Sprintf("%s^%d", t.symbol, t.pow)
		}
	}
	return strings.Join(parts, " ")
}
