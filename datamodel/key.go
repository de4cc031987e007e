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

// Package datamodel holds particle and grid sets: named, unit-tagged
// attribute columns over a key index, and the views, channels and
// histories built on top of them.
package datamodel

import (
	"fmt"
	"math"
	"math/rand"
	"sync"

	"github.com/spatialmodel/amuse/units"
)

// Key identifies a particle. Keys are never reused; key 0 is the null
// reference.
type Key uint64

// KeyGenerator hands out new particle keys.
type KeyGenerator interface {
	Next(n int) []Key
}

// SequentialKeys generates keys 1, 2, 3, ...
type SequentialKeys struct {
	mu   sync.Mutex
	last Key
}

// NewSequentialKeys returns a generator whose first key is after+1.
func NewSequentialKeys(after Key) *SequentialKeys { return &SequentialKeys{last: after} }

// Next returns the next n keys.
func (g *SequentialKeys) Next(n int) []Key {
	g.mu.Lock()
	defer g.mu.Unlock()
	keys := make([]Key, n)
	for i := range keys {
		g.last++
		keys[i] = g.last
	}
	return keys
}

// RandomKeys generates random 64-bit keys, never 0.
type RandomKeys struct {
	mu sync.Mutex
	r  *rand.Rand
}

// NewRandomKeys returns a generator seeded with seed.
func NewRandomKeys(seed int64) *RandomKeys {
	return &RandomKeys{r: rand.New(rand.NewSource(seed))}
}

// Next returns n random keys.
func (g *RandomKeys) Next(n int) []Key {
	g.mu.Lock()
	defer g.mu.Unlock()
	keys := make([]Key, n)
	for i := range keys {
		for keys[i] == 0 {
			keys[i] = Key(g.r.Uint64())
		}
	}
	return keys
}

// DefaultKeys is the generator used by NewParticles unless another is
// given.
var DefaultKeys KeyGenerator = new(SequentialKeys)

// References returns keys as an attribute column. Reference columns hold
// the bits of each key under the units.ObjectKey unit, so they pass
// through storage unchanged.
func References(keys []Key) units.Array {
	v := make([]float64, len(keys))
	for i, k := range keys {
		v[i] = math.Float64frombits(uint64(k))
	}
	return units.NewArray(v, units.ObjectKey)
}

// ReferencedKeys reads the keys stored in a reference column.
func ReferencedKeys(a units.Array) ([]Key, error) {
	if !a.Unit.IsObjectKey() {
		return nil, fmt.Errorf("datamodel: column in %s does not hold references", a.Unit)
	}
	keys := make([]Key, len(a.Values))
	for i, v := range a.Values {
		keys[i] = Key(math.Float64bits(v))
	}
	return keys, nil
}

// HasDuplicates reports whether any key appears twice.
func HasDuplicates(keys []Key) bool {
	seen := make(map[Key]struct{}, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			return true
		}
		seen[k] = struct{}{}
	}
	return false
}

func keySet(keys []Key) map[Key]struct{} {
	m := make(map[Key]struct{}, len(keys))
	for _, k := range keys {
		m[k] = struct{}{}
	}
	return m
}
