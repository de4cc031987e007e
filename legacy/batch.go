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

package legacy

import (
	"fmt"
	"sort"
)

// Batch holds one column of values per parameter for Length entities.
// Columns are typed slices: []int32, []float64, []float32, []string,
// []bool or []int64.
type Batch struct {
	Length int
	cols   map[string]interface{}
}

// NewBatch returns an empty batch for n entities.
func NewBatch(n int) *Batch {
	return &Batch{Length: n, cols: make(map[string]interface{})}
}

// Set stores col as the column of name.
func (b *Batch) Set(name string, col interface{}) {
	b.cols[name] = col
}

// Has reports whether the batch has a column called name.
func (b *Batch) Has(name string) bool {
	_, ok := b.cols[name]
	return ok
}

// Column returns the column called name, or nil.
func (b *Batch) Column(name string) interface{} { return b.cols[name] }

// Names returns the names of the columns in lexical order.
func (b *Batch) Names() []string {
	names := make([]string, 0, len(b.cols))
	for n := range b.cols {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Float64s returns the column called name if it holds doubles.
func (b *Batch) Float64s(name string) []float64 {
	v, _ := b.cols[name].([]float64)
	return v
}

// Int32s returns the column called name if it holds int32 values.
func (b *Batch) Int32s(name string) []int32 {
	v, _ := b.cols[name].([]int32)
	return v
}

// Float32s returns the column called name if it holds float32 values.
func (b *Batch) Float32s(name string) []float32 {
	v, _ := b.cols[name].([]float32)
	return v
}

// Strings returns the column called name if it holds strings.
func (b *Batch) Strings(name string) []string {
	v, _ := b.cols[name].([]string)
	return v
}

// Bools returns the column called name if it holds booleans.
func (b *Batch) Bools(name string) []bool {
	v, _ := b.cols[name].([]bool)
	return v
}

// Int64s returns the column called name if it holds int64 values.
func (b *Batch) Int64s(name string) []int64 {
	v, _ := b.cols[name].([]int64)
	return v
}

// zeroColumn returns a column of n zero values of type t.
func zeroColumn(t DataType, n int) interface{} {
	switch t {
	case Int32:
		return make([]int32, n)
	case Float64:
		return make([]float64, n)
	case Float32:
		return make([]float32, n)
	case String:
		return make([]string, n)
	case Bool:
		return make([]bool, n)
	case Int64:
		return make([]int64, n)
	}
	panic(fmt.Errorf("legacy: invalid data type %v", t))
}

// columnLen returns the length of v if it is a slice of a supported type.
func columnLen(v interface{}) (int, bool) {
	switch s := v.(type) {
	case []float64:
		return len(s), true
	case []float32:
		return len(s), true
	case []int:
		return len(s), true
	case []int32:
		return len(s), true
	case []int64:
		return len(s), true
	case []string:
		return len(s), true
	case []bool:
		return len(s), true
	}
	return 0, false
}

// toColumn converts a scalar or slice argument to a column of type t
// with n values. Scalars are repeated n times.
func toColumn(t DataType, v interface{}, n int) (interface{}, error) {
	if l, ok := columnLen(v); ok && l != n {
		return nil, fmt.Errorf("has %d values, want %d", l, n)
	}
	col := zeroColumn(t, n)
	var bad bool
	switch c := col.(type) {
	case []float64:
		bad = !fillFloat64(c, v)
	case []float32:
		f := make([]float64, n)
		bad = !fillFloat64(f, v)
		for i, x := range f {
			c[i] = float32(x)
		}
	case []int32:
		l := make([]int64, n)
		bad = !fillInt64(l, v)
		for i, x := range l {
			c[i] = int32(x)
		}
	case []int64:
		bad = !fillInt64(c, v)
	case []string:
		switch x := v.(type) {
		case string:
			for i := range c {
				c[i] = x
			}
		case []string:
			copy(c, x)
		default:
			bad = true
		}
	case []bool:
		switch x := v.(type) {
		case bool:
			for i := range c {
				c[i] = x
			}
		case []bool:
			copy(c, x)
		default:
			bad = true
		}
	}
	if bad {
		return nil, fmt.Errorf("cannot convert %T to %v", v, t)
	}
	return col, nil
}

func fillFloat64(c []float64, v interface{}) bool {
	switch x := v.(type) {
	case float64:
		for i := range c {
			c[i] = x
		}
	case float32:
		for i := range c {
			c[i] = float64(x)
		}
	case int:
		for i := range c {
			c[i] = float64(x)
		}
	case int32:
		for i := range c {
			c[i] = float64(x)
		}
	case int64:
		for i := range c {
			c[i] = float64(x)
		}
	case []float64:
		copy(c, x)
	case []float32:
		for i, y := range x {
			c[i] = float64(y)
		}
	case []int:
		for i, y := range x {
			c[i] = float64(y)
		}
	case []int32:
		for i, y := range x {
			c[i] = float64(y)
		}
	case []int64:
		for i, y := range x {
			c[i] = float64(y)
		}
	default:
		return false
	}
	return true
}

func fillInt64(c []int64, v interface{}) bool {
	switch x := v.(type) {
	case int:
		for i := range c {
			c[i] = int64(x)
		}
	case int32:
		for i := range c {
			c[i] = int64(x)
		}
	case int64:
		for i := range c {
			c[i] = x
		}
	case []int:
		for i, y := range x {
			c[i] = int64(y)
		}
	case []int32:
		for i, y := range x {
			c[i] = int64(y)
		}
	case []int64:
		copy(c, x)
	default:
		return false
	}
	return true
}

// element returns value i of a column.
func element(col interface{}, i int) interface{} {
	switch c := col.(type) {
	case []float64:
		return c[i]
	case []float32:
		return c[i]
	case []int32:
		return c[i]
	case []int64:
		return c[i]
	case []string:
		return c[i]
	case []bool:
		return c[i]
	}
	return nil
}
