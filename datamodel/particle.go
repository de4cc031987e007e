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
	"fmt"

	"github.com/spatialmodel/amuse/units"
)

// Particle is one particle of a set.
type Particle struct {
	Of  *Particles
	Key Key
}

// IsNull reports whether p refers to no particle.
func (p Particle) IsNull() bool { return p.Key == 0 }

func (p Particle) String() string { return fmt.Sprintf("particle %d", p.Key) }

// Get returns scalar attribute name.
func (p Particle) Get(name string) (units.Quantity, error) {
	a, err := p.Of.column([]Key{p.Key}, name)
	if err != nil {
		return units.Quantity{}, err
	}
	return a.At(0), nil
}

// GetVector returns vector attribute name.
func (p Particle) GetVector(name string) (units.Vector, error) {
	v, err := p.Of.vectors([]Key{p.Key}, name)
	if err != nil {
		return units.Vector{}, err
	}
	return v.At(0), nil
}

// Set sets attribute name to a units.Quantity, a units.Vector or a
// reference to another Particle.
func (p Particle) Set(name string, v interface{}) error {
	switch x := v.(type) {
	case units.Vector:
		return p.AsSet().Assign(name, units.Vectors{Values: [][]float64{x.Values}, Unit: x.Unit})
	case units.Quantity, Particle:
		return p.AsSet().Assign(name, x)
	}
	return &AttributeError{Name: name, Owner: p.String(),
		Reason: fmt.Sprintf("can only be assigned quantities or particles, not %T", v)}
}

// Ref follows reference attribute name. It returns false for a null
// reference.
func (p Particle) Ref(name string) (Particle, bool, error) {
	a, err := p.Of.column([]Key{p.Key}, name)
	if err != nil {
		return Particle{}, false, err
	}
	keys, err := ReferencedKeys(a)
	if err != nil {
		return Particle{}, false, err
	}
	if keys[0] == 0 {
		return Particle{}, false, nil
	}
	return Particle{Of: p.Of, Key: keys[0]}, true, nil
}

// AsSet returns a set holding only p.
func (p Particle) AsSet() *Particles { return p.Of.Subset([]Key{p.Key}) }

// AsParticleInSet returns the particle with the same key in s.
func (p Particle) AsParticleInSet(s *Particles) (Particle, error) {
	if !s.Contains(p.Key) {
		return Particle{}, &MissingKeysError{Keys: []Key{p.Key}}
	}
	return Particle{Of: s, Key: p.Key}, nil
}
