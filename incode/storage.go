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

package incode

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/amuse/datamodel"
	"github.com/spatialmodel/amuse/legacy"
	"github.com/spatialmodel/amuse/units"
)

// Storage is a datamodel.Storage whose attribute values live in a
// worker. It must not be used from several goroutines at once.
type Storage struct {
	// Log receives storage events.
	Log logrus.FieldLogger

	create     *attributeMethod
	indexParam string
	remove     Method
	getters    []*Getter
	setters    []*Setter

	keys  []datamodel.Key
	index map[datamodel.Key]int32
	key   map[int32]datamodel.Key
}

// NewStorage returns an empty storage. newParticle creates particles
// from its inputs and returns their indices in its first output;
// newAttrs name its inputs (the parameter names by default).
// deleteParticle takes the indices of the particles to remove.
func NewStorage(newParticle Method, deleteParticle Method, newAttrs ...string) (*Storage, error) {
	spec := newParticle.Specification()
	out := spec.Outputs()
	if len(out) < 1 || out[0].Type != legacy.Int32 {
		return nil, fmt.Errorf("incode: %s does not return particle indices", spec.Name)
	}
	c, err := newAttributeMethod(newParticle, spec.Inputs(), newAttrs)
	if err != nil {
		return nil, err
	}
	return &Storage{
		Log:        logrus.StandardLogger(),
		create:     c,
		indexParam: out[0].Name,
		remove:     deleteParticle,
		index:      make(map[datamodel.Key]int32),
		key:        make(map[int32]datamodel.Key),
	}, nil
}

// AddGetter registers a getter. Getters registered first are preferred
// for attributes several of them cover.
func (s *Storage) AddGetter(g *Getter) { s.getters = append(s.getters, g) }

// AddSetter registers a setter.
func (s *Storage) AddSetter(st *Setter) { s.setters = append(s.setters, st) }

// Keys implements datamodel.Storage.
func (s *Storage) Keys() []datamodel.Key { return append([]datamodel.Key(nil), s.keys...) }

// HasKey implements datamodel.Storage.
func (s *Storage) HasKey(k datamodel.Key) bool {
	_, ok := s.index[k]
	return ok
}

// Len implements datamodel.Storage.
func (s *Storage) Len() int { return len(s.keys) }

// AttributeNames returns the attributes covered by the getters.
func (s *Storage) AttributeNames() []string {
	var names []string
	seen := make(map[string]bool)
	for _, g := range s.getters {
		for _, n := range g.Attributes {
			if !seen[n] {
				seen[n] = true
				names = append(names, n)
			}
		}
	}
	return names
}

// Index returns the worker index of particle k.
func (s *Storage) Index(k datamodel.Key) (int32, bool) {
	i, ok := s.index[k]
	return i, ok
}

// indices resolves keys to worker indices, or all particles if keys is
// nil.
func (s *Storage) indices(keys []datamodel.Key) ([]int32, error) {
	if keys == nil {
		keys = s.keys
	}
	out := make([]int32, len(keys))
	var missing []datamodel.Key
	for i, k := range keys {
		j, ok := s.index[k]
		if !ok {
			missing = append(missing, k)
			continue
		}
		out[i] = j
	}
	if len(missing) > 0 {
		return nil, &datamodel.MissingKeysError{Keys: missing}
	}
	return out, nil
}

// KeysOf maps worker indices back to particle keys. Indices the storage
// does not know give key 0.
func (s *Storage) KeysOf(index []int32) []datamodel.Key {
	out := make([]datamodel.Key, len(index))
	for i, j := range index {
		out[i] = s.key[j]
	}
	return out
}

// Get implements datamodel.Storage.
func (s *Storage) Get(keys []datamodel.Key, names []string) ([]units.Array, error) {
	idx, err := s.indices(keys)
	if err != nil {
		return nil, err
	}
	groups, err := selectGetters(s.getters, names)
	if err != nil {
		return nil, err
	}
	out := make([]units.Array, len(names))
	if len(idx) == 0 {
		for _, grp := range groups {
			for _, n := range grp.names {
				out[position(names, n)] = units.Zeros(0, grp.getter.unit(grp.getter.position(n)))
			}
		}
		return out, nil
	}
	for _, grp := range groups {
		cols, err := grp.getter.get(idx, grp.names)
		if err != nil {
			return nil, err
		}
		for i, n := range grp.names {
			out[position(names, n)] = cols[i]
		}
	}
	return out, nil
}

func position(names []string, n string) int {
	for i, m := range names {
		if m == n {
			return i
		}
	}
	return -1
}

// Set implements datamodel.Storage. Setters that take attributes not
// in names are given the current values of those attributes.
func (s *Storage) Set(keys []datamodel.Key, names []string, values []units.Array) error {
	if len(names) != len(values) {
		return fmt.Errorf("incode: %d attribute names but %d columns", len(names), len(values))
	}
	idx, err := s.indices(keys)
	if err != nil {
		return err
	}
	for i, v := range values {
		if v.Len() != len(idx) {
			return fmt.Errorf("incode: attribute %q has %d values for %d particles", names[i], v.Len(), len(idx))
		}
	}
	if len(idx) == 0 {
		return nil
	}
	groups, err := selectSetters(s.setters, names)
	if err != nil {
		return err
	}
	for _, grp := range groups {
		st := grp.setter
		cols := make([]units.Array, len(st.Attributes))
		var missing []string
		for i, a := range st.Attributes {
			if j := position(names, a); j >= 0 {
				cols[i] = values[j]
			} else {
				missing = append(missing, a)
			}
		}
		if len(missing) > 0 {
			current, err := s.Get(keys, missing)
			if err != nil {
				return fmt.Errorf("incode: completing the arguments of %s: %v", st.name(), err)
			}
			for i, a := range missing {
				cols[st.position(a)] = current[i]
			}
		}
		if err := st.set(idx, cols); err != nil {
			return err
		}
	}
	return nil
}

// Add creates the particles in the worker with the attributes the
// creation method takes, then sets the remaining ones. Inputs of the
// creation method not in names get their default or zero.
func (s *Storage) Add(keys []datamodel.Key, names []string, values []units.Array) error {
	if len(names) != len(values) {
		return fmt.Errorf("incode: %d attribute names but %d columns", len(names), len(values))
	}
	seen := make(map[datamodel.Key]bool, len(keys))
	for _, k := range keys {
		if seen[k] || s.HasKey(k) {
			return fmt.Errorf("incode: particle %d already exists", k)
		}
		seen[k] = true
	}
	for i, v := range values {
		if v.Len() != len(keys) {
			return fmt.Errorf("incode: attribute %q has %d values for %d particles", names[i], v.Len(), len(keys))
		}
	}
	if len(keys) == 0 {
		return nil
	}

	args := make([]interface{}, len(s.create.Parameters))
	var rest []string
	var restValues []units.Array
	for i, n := range names {
		if s.create.position(n) < 0 {
			rest = append(rest, n)
			restValues = append(restValues, values[i])
		}
	}
	for i, p := range s.create.Parameters {
		j := position(names, s.create.Attributes[i])
		var v units.Array
		switch {
		case j >= 0:
			v = values[j]
		case p.HasDefault:
			args[i] = p.Default
			continue
		default:
			v = units.Zeros(len(keys), s.create.unit(i))
		}
		col, err := columnFor(p, v)
		if err != nil {
			return fmt.Errorf("incode: %s: %s: %v", s.create.name(), s.create.Attributes[i], err)
		}
		args[i] = col
	}
	if len(args) == 0 {
		return fmt.Errorf("incode: %s takes no arguments and cannot create %d particles", s.create.name(), len(keys))
	}
	r, err := s.create.Method.Call(args, nil)
	if err != nil {
		return err
	}
	if err := checkCodes(s.create.name(), r); err != nil {
		return err
	}
	idx := r.Int32s(s.indexParam)
	if len(idx) != len(keys) {
		return fmt.Errorf("incode: %s returned %d indices for %d particles", s.create.name(), len(idx), len(keys))
	}
	for i, k := range keys {
		s.keys = append(s.keys, k)
		s.index[k] = idx[i]
		s.key[idx[i]] = k
	}
	s.Log.WithFields(logrus.Fields{
		"function":  s.create.name(),
		"particles": len(keys),
	}).Debug("created particles in code")

	if len(rest) > 0 {
		if err := s.Set(keys, rest, restValues); err != nil {
			if rerr := s.Remove(keys); rerr != nil {
				s.Log.WithField("error", rerr).Error("removing partially added particles")
			}
			return err
		}
	}
	return nil
}

// Remove implements datamodel.Storage.
func (s *Storage) Remove(keys []datamodel.Key) error {
	if keys == nil {
		keys = s.Keys()
	}
	idx, err := s.indices(keys)
	if err != nil {
		return err
	}
	if len(idx) == 0 {
		return nil
	}
	r, err := s.remove.Call([]interface{}{idx}, nil)
	if err != nil {
		return err
	}
	if err := checkCodes(s.remove.Specification().Name, r); err != nil {
		return err
	}
	gone := make(map[datamodel.Key]bool, len(keys))
	for i, k := range keys {
		gone[k] = true
		delete(s.index, k)
		delete(s.key, idx[i])
	}
	kept := s.keys[:0]
	for _, k := range s.keys {
		if !gone[k] {
			kept = append(kept, k)
		}
	}
	s.keys = kept
	return nil
}

// Select calls query, which returns worker indices, and returns the keys
// of the particles at those indices. Indices below zero mark unused
// slots and are skipped.
func (s *Storage) Select(query Method, args ...interface{}) ([]datamodel.Key, error) {
	r, err := query.Call(args, nil)
	if err != nil {
		return nil, err
	}
	out := query.Specification().Outputs()
	name := legacy.ResultName
	if len(out) > 0 {
		name = out[0].Name
	}
	idx := r.Int32s(name)
	var keys []datamodel.Key
	for _, i := range idx {
		if i < 0 {
			continue
		}
		if k, ok := s.key[i]; ok {
			keys = append(keys, k)
		}
	}
	return keys, nil
}
