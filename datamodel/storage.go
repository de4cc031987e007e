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
	"sort"

	"github.com/spatialmodel/amuse/units"
)

// Storage owns the keys of a set of particles and their attribute
// columns. Calls either succeed for the whole batch or leave the storage
// unchanged.
type Storage interface {
	// Add appends particles. Attributes missing from names are filled
	// with zeros for the new rows.
	Add(keys []Key, names []string, values []units.Array) error

	// Get returns one column per name for the given keys, or for all
	// particles when keys is nil.
	Get(keys []Key, names []string) ([]units.Array, error)

	// Set writes columns for the given keys, converting them to the
	// unit each attribute already has.
	Set(keys []Key, names []string, values []units.Array) error

	// Remove deletes particles.
	Remove(keys []Key) error

	Keys() []Key
	HasKey(k Key) bool
	Len() int

	// AttributeNames returns the stored attributes in definition order.
	AttributeNames() []string
}

// AttributeError reports an attribute that cannot be read or written.
type AttributeError struct {
	Name   string
	Owner  string
	Reason string
}

func (e *AttributeError) Error() string {
	if e.Owner == "" {
		return fmt.Sprintf("datamodel: attribute %q %s", e.Name, e.Reason)
	}
	return fmt.Sprintf("datamodel: attribute %q %s for %s", e.Name, e.Reason, e.Owner)
}

func undefined(name, owner string) error {
	return &AttributeError{Name: name, Owner: owner, Reason: "is not defined"}
}

// MissingKeysError reports keys that are not present in a storage or set.
type MissingKeysError struct {
	Keys []Key
}

func (e *MissingKeysError) Error() string {
	if len(e.Keys) > 10 {
		return fmt.Sprintf("datamodel: %d keys not found, including %v", len(e.Keys), e.Keys[:10])
	}
	return fmt.Sprintf("datamodel: keys %v not found", e.Keys)
}

// InMemoryStorage keeps attribute columns in memory.
type InMemoryStorage struct {
	keys  []Key
	index map[Key]int
	names []string
	cols  map[string]units.Array
}

// NewInMemoryStorage returns an empty storage.
func NewInMemoryStorage() *InMemoryStorage {
	return &InMemoryStorage{
		index: make(map[Key]int),
		cols:  make(map[string]units.Array),
	}
}

func checkColumns(n int, names []string, values []units.Array) error {
	if len(names) != len(values) {
		return fmt.Errorf("datamodel: %d attribute names but %d columns", len(names), len(values))
	}
	for i, v := range values {
		if v.Len() != n {
			return fmt.Errorf("datamodel: attribute %q has %d values for %d particles", names[i], v.Len(), n)
		}
		if v.Unit == nil {
			return &AttributeError{Name: names[i], Reason: "has no unit"}
		}
	}
	return nil
}

// converted returns the values of column name in the unit already
// established for it, or the column unchanged for new attributes.
func (s *InMemoryStorage) converted(name string, v units.Array) (units.Array, error) {
	c, ok := s.cols[name]
	if !ok {
		return v, nil
	}
	out, err := v.As(c.Unit)
	if err != nil {
		return units.Array{}, fmt.Errorf("datamodel: attribute %q: %v", name, err)
	}
	return out, nil
}

// Add implements Storage.
func (s *InMemoryStorage) Add(keys []Key, names []string, values []units.Array) error {
	if err := checkColumns(len(keys), names, values); err != nil {
		return err
	}
	if HasDuplicates(keys) {
		return fmt.Errorf("datamodel: duplicate keys in added particles")
	}
	var dup []Key
	for _, k := range keys {
		if _, ok := s.index[k]; ok {
			dup = append(dup, k)
		}
	}
	if len(dup) > 0 {
		return fmt.Errorf("datamodel: keys %v are already stored", dup)
	}
	in := make(map[string]units.Array, len(names))
	for i, name := range names {
		v, err := s.converted(name, values[i])
		if err != nil {
			return err
		}
		in[name] = v
	}

	old := len(s.keys)
	for _, name := range names {
		if _, ok := s.cols[name]; !ok {
			s.cols[name] = units.Zeros(old, in[name].Unit)
			s.names = append(s.names, name)
		}
	}
	for _, name := range s.names {
		c := s.cols[name]
		if v, ok := in[name]; ok {
			c.Values = append(c.Values, v.Values...)
		} else {
			c.Values = append(c.Values, make([]float64, len(keys))...)
		}
		s.cols[name] = c
	}
	for i, k := range keys {
		s.index[k] = old + i
	}
	s.keys = append(s.keys, keys...)
	return nil
}

func (s *InMemoryStorage) rows(keys []Key) ([]int, error) {
	rows := make([]int, len(keys))
	var missing []Key
	for i, k := range keys {
		r, ok := s.index[k]
		if !ok {
			missing = append(missing, k)
			continue
		}
		rows[i] = r
	}
	if len(missing) > 0 {
		return nil, &MissingKeysError{Keys: missing}
	}
	return rows, nil
}

// Get implements Storage.
func (s *InMemoryStorage) Get(keys []Key, names []string) ([]units.Array, error) {
	var rows []int
	if keys != nil {
		var err error
		if rows, err = s.rows(keys); err != nil {
			return nil, err
		}
	}
	out := make([]units.Array, len(names))
	for i, name := range names {
		c, ok := s.cols[name]
		if !ok {
			return nil, undefined(name, "the storage")
		}
		if rows == nil {
			out[i] = c.Copy()
		} else {
			out[i] = c.Select(rows)
		}
	}
	return out, nil
}

// Set implements Storage. New attributes are created with the unit of
// the incoming column and zeros for the other particles.
func (s *InMemoryStorage) Set(keys []Key, names []string, values []units.Array) error {
	if err := checkColumns(len(keys), names, values); err != nil {
		return err
	}
	rows, err := s.rows(keys)
	if err != nil {
		return err
	}
	in := make([]units.Array, len(names))
	for i, name := range names {
		if in[i], err = s.converted(name, values[i]); err != nil {
			return err
		}
	}
	for i, name := range names {
		c, ok := s.cols[name]
		if !ok {
			c = units.Zeros(len(s.keys), in[i].Unit)
			s.names = append(s.names, name)
		}
		for j, r := range rows {
			c.Values[r] = in[i].Values[j]
		}
		s.cols[name] = c
	}
	return nil
}

// Remove implements Storage. The key index is rebuilt after every call.
func (s *InMemoryStorage) Remove(keys []Key) error {
	if _, err := s.rows(keys); err != nil {
		return err
	}
	drop := keySet(keys)
	keep := make([]int, 0, len(s.keys))
	for i, k := range s.keys {
		if _, ok := drop[k]; !ok {
			keep = append(keep, i)
		}
	}
	for name, c := range s.cols {
		s.cols[name] = c.Select(keep)
	}
	nk := make([]Key, len(keep))
	for i, r := range keep {
		nk[i] = s.keys[r]
	}
	s.keys = nk
	s.index = make(map[Key]int, len(nk))
	for i, k := range nk {
		s.index[k] = i
	}
	return nil
}

// Keys implements Storage.
func (s *InMemoryStorage) Keys() []Key { return append([]Key(nil), s.keys...) }

// HasKey implements Storage.
func (s *InMemoryStorage) HasKey(k Key) bool {
	_, ok := s.index[k]
	return ok
}

// Len implements Storage.
func (s *InMemoryStorage) Len() int { return len(s.keys) }

// AttributeNames implements Storage.
func (s *InMemoryStorage) AttributeNames() []string { return append([]string(nil), s.names...) }

// Unit returns the unit of a stored attribute.
func (s *InMemoryStorage) Unit(name string) (*units.Unit, bool) {
	c, ok := s.cols[name]
	return c.Unit, ok
}

// CopyStorage returns an in-memory copy of all particles and attributes
// of s.
func CopyStorage(s Storage) (*InMemoryStorage, error) {
	names := s.AttributeNames()
	keys := s.Keys()
	values, err := s.Get(nil, names)
	if err != nil {
		return nil, err
	}
	c := NewInMemoryStorage()
	if err := c.Add(keys, names, values); err != nil {
		return nil, err
	}
	return c, nil
}

func sortedNames(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for n := range m {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
