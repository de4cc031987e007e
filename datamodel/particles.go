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

// KeyAttribute is the pseudo-attribute holding the keys of a set.
const KeyAttribute = "key"

// Particles is a set of particles. A set either owns its storage or is a
// view on other sets (a subset or a superset); all of them read and write
// through the same methods.
type Particles struct {
	view     view
	registry *Registry
	keygen   KeyGenerator
	history  *History
}

// Option configures a new particle set.
type Option func(*Particles)

// WithRegistry makes the set look up derived attributes in r instead of
// in a fresh registry on top of DefaultParticles.
func WithRegistry(r *Registry) Option {
	return func(p *Particles) { p.registry = r }
}

// WithKeys sets the generator for the keys of new particles.
func WithKeys(g KeyGenerator) Option {
	return func(p *Particles) { p.keygen = g }
}

// WithHistory attaches h to the set for its savepoints.
func WithHistory(h *History) Option {
	return func(p *Particles) { p.history = h }
}

func newParticles(v view, opts ...Option) *Particles {
	p := &Particles{view: v, keygen: DefaultKeys}
	for _, o := range opts {
		o(p)
	}
	if p.registry == nil {
		p.registry = NewRegistry(DefaultParticles)
	}
	return p
}

// NewParticles returns n particles with new keys and no attributes, kept
// in memory.
func NewParticles(n int, opts ...Option) *Particles {
	p := newParticles(storageView{NewInMemoryStorage()}, opts...)
	if err := p.view.add(p.keygen.Next(n), nil, nil); err != nil {
		panic(err) // fresh keys in an empty storage
	}
	return p
}

// NewParticlesWithStorage returns a set owning s.
func NewParticlesWithStorage(s Storage, opts ...Option) *Particles {
	return newParticles(storageView{s}, opts...)
}

// Storage returns the storage the set owns, or false for subsets and
// supersets.
func (p *Particles) Storage() (Storage, bool) {
	v, ok := p.view.(storageView)
	return v.s, ok
}

// Registry returns the derived attributes of the set. Changes affect this
// set and the views derived from it.
func (p *Particles) Registry() *Registry { return p.registry }

// Keys returns the keys of the particles in set order.
func (p *Particles) Keys() []Key { return p.view.keys() }

// Len returns the number of particles.
func (p *Particles) Len() int {
	if v, ok := p.view.(storageView); ok {
		return v.s.Len()
	}
	return len(p.view.keys())
}

// IsEmpty reports whether the set has no particles.
func (p *Particles) IsEmpty() bool { return p.Len() == 0 }

// Contains reports whether the particle with key k is in the set.
func (p *Particles) Contains(k Key) bool { return p.view.contains(k) }

// HasDuplicates reports whether a key occurs more than once.
func (p *Particles) HasDuplicates() bool { return HasDuplicates(p.Keys()) }

func (p *Particles) String() string {
	return fmt.Sprintf("particle set of %d", p.Len())
}

// StoredAttributeNames returns the attributes held in storage.
func (p *Particles) StoredAttributeNames() []string { return p.view.attributeNames() }

// AttributeNames returns the stored and the derived attributes.
func (p *Particles) AttributeNames() []string {
	names := p.StoredAttributeNames()
	return append(names, p.registry.Names()...)
}

// HasAttribute reports whether name can be read from the set.
func (p *Particles) HasAttribute(name string) bool {
	if name == KeyAttribute {
		return true
	}
	if _, ok := p.registry.Lookup(name); ok {
		return true
	}
	for _, n := range p.StoredAttributeNames() {
		if n == name {
			return true
		}
	}
	return false
}

// column reads a scalar attribute for keys, following calculated
// attributes.
func (p *Particles) column(keys []Key, name string) (units.Array, error) {
	if name == KeyAttribute {
		if keys == nil {
			keys = p.Keys()
		}
		return References(keys), nil
	}
	if d, ok := p.registry.Lookup(name); ok {
		switch d.Kind {
		case CalculatedAttribute:
			in := make([]units.Array, len(d.Attributes))
			for i, a := range d.Attributes {
				var err error
				if in[i], err = p.column(keys, a); err != nil {
					return units.Array{}, err
				}
			}
			return d.Calculate(in)
		default:
			return units.Array{}, &AttributeError{Name: name, Owner: p.String(),
				Reason: fmt.Sprintf("is a %s attribute, not a column", d.Kind)}
		}
	}
	v, err := p.view.get(keys, []string{name})
	if err != nil {
		if ae, ok := err.(*AttributeError); ok {
			ae.Owner = p.String()
		}
		return units.Array{}, err
	}
	return v[0], nil
}

func (p *Particles) vectors(keys []Key, name string) (units.Vectors, error) {
	d, ok := p.registry.Lookup(name)
	if !ok || d.Kind != VectorAttribute {
		return units.Vectors{}, &AttributeError{Name: name, Owner: p.String(), Reason: "is not a vector attribute"}
	}
	cols := make([]units.Array, len(d.Attributes))
	for i, a := range d.Attributes {
		var err error
		if cols[i], err = p.column(keys, a); err != nil {
			return units.Vectors{}, err
		}
	}
	return units.StackColumns(cols...)
}

// Get returns a scalar attribute of every particle.
func (p *Particles) Get(name string) (units.Array, error) { return p.column(nil, name) }

// GetVector returns a vector attribute of every particle.
func (p *Particles) GetVector(name string) (units.Vectors, error) { return p.vectors(nil, name) }

// Value returns attribute name whatever its kind: a units.Array, a
// units.Vectors, or the result of calling a function attribute without
// arguments.
func (p *Particles) Value(name string) (interface{}, error) {
	if d, ok := p.registry.Lookup(name); ok {
		switch d.Kind {
		case VectorAttribute:
			return p.GetVector(name)
		case FunctionAttribute:
			return d.Function(p)
		}
	}
	return p.Get(name)
}

// Call calls the function attribute name.
func (p *Particles) Call(name string, args ...interface{}) (interface{}, error) {
	d, ok := p.registry.Lookup(name)
	if !ok || d.Kind != FunctionAttribute {
		return nil, &AttributeError{Name: name, Owner: p.String(), Reason: "is not a function attribute"}
	}
	return d.Function(p, args...)
}

// GetValues reads stored attributes for keys, or for every particle when
// keys is nil.
func (p *Particles) GetValues(keys []Key, names []string) ([]units.Array, error) {
	return p.view.get(keys, names)
}

// SetValues writes stored attributes for keys.
func (p *Particles) SetValues(keys []Key, names []string, values []units.Array) error {
	return p.view.set(keys, names, values)
}

// Assign sets attribute name for every particle. v may be a units.Array
// with one value per particle, a units.Quantity for all of them, a
// units.Vectors for a vector attribute, or a *Particles or Particle whose
// keys are stored as references.
func (p *Particles) Assign(name string, v interface{}) error {
	if name == KeyAttribute {
		return &AttributeError{Name: name, Owner: p.String(), Reason: "cannot be set"}
	}
	keys := p.Keys()
	if d, ok := p.registry.Lookup(name); ok {
		if d.Kind != VectorAttribute {
			return &AttributeError{Name: name, Owner: p.String(),
				Reason: fmt.Sprintf("is a %s attribute and cannot be set", d.Kind)}
		}
		vs, ok := v.(units.Vectors)
		if !ok {
			return &AttributeError{Name: name, Owner: p.String(),
				Reason: fmt.Sprintf("is a vector attribute and cannot be assigned a %T", v)}
		}
		if vs.Len() != len(keys) {
			return fmt.Errorf("datamodel: assigning %d vectors to %s", vs.Len(), p)
		}
		for i, row := range vs.Values {
			if len(row) != len(d.Attributes) {
				return fmt.Errorf("datamodel: vector %d of %s has %d components, want %d", i, name, len(row), len(d.Attributes))
			}
		}
		return p.view.set(keys, d.Attributes, vs.Columns(len(d.Attributes)))
	}
	var a units.Array
	switch x := v.(type) {
	case units.Array:
		a = x
	case units.Quantity:
		if x.Unit == nil {
			x.Unit = units.None
		}
		a = units.Fill(len(keys), x)
	case *Particles:
		if x.Len() != len(keys) {
			return fmt.Errorf("datamodel: assigning references to %d particles to %s", x.Len(), p)
		}
		a = References(x.Keys())
	case Particle:
		refs := make([]Key, len(keys))
		for i := range refs {
			refs[i] = x.Key
		}
		a = References(refs)
	default:
		return &AttributeError{Name: name, Owner: p.String(),
			Reason: fmt.Sprintf("can only be assigned quantities or particles, not %T", v)}
	}
	return p.view.set(keys, []string{name}, []units.Array{a})
}

// References returns the keys stored in reference attribute name.
func (p *Particles) References(name string) ([]Key, error) {
	a, err := p.Get(name)
	if err != nil {
		return nil, err
	}
	return ReferencedKeys(a)
}

// Grow adds n particles with new keys and returns them as a subset.
// Stored attributes are zero for the new particles.
func (p *Particles) Grow(n int) (*Particles, error) {
	keys := p.keygen.Next(n)
	if err := p.view.add(keys, nil, nil); err != nil {
		return nil, err
	}
	return p.Subset(keys), nil
}

// AddParticles copies the particles of o, with their keys and stored
// attributes, into p and returns them as a subset of p.
func (p *Particles) AddParticles(o *Particles) (*Particles, error) {
	keys := o.Keys()
	names := o.StoredAttributeNames()
	values, err := o.view.get(keys, names)
	if err != nil {
		return nil, err
	}
	if err := p.view.add(keys, names, values); err != nil {
		return nil, err
	}
	return p.Subset(keys), nil
}

// AddParticle copies one particle into p.
func (p *Particles) AddParticle(o Particle) (Particle, error) {
	s, err := p.AddParticles(o.AsSet())
	if err != nil {
		return Particle{}, err
	}
	return Particle{Of: p, Key: s.Keys()[0]}, nil
}

// Remove removes particles. For a subset only the subset changes.
func (p *Particles) Remove(keys ...Key) error { return p.view.remove(keys) }

// RemoveParticles removes the particles of o from p.
func (p *Particles) RemoveParticles(o *Particles) error { return p.view.remove(o.Keys()) }

// Subset returns a view on the particles of p with the given keys.
func (p *Particles) Subset(keys []Key) *Particles {
	return newParticles(newSubsetView(p, keys), WithRegistry(p.registry), WithKeys(p.keygen))
}

// Particle returns particle i in set order.
func (p *Particles) Particle(i int) Particle {
	return Particle{Of: p, Key: p.Keys()[i]}
}

// ParticleWithKey returns the particle with key k, which need not be in
// the set yet.
func (p *Particles) ParticleWithKey(k Key) Particle { return Particle{Of: p, Key: k} }

// Particles returns every particle of the set.
func (p *Particles) Particles() []Particle {
	keys := p.Keys()
	out := make([]Particle, len(keys))
	for i, k := range keys {
		out[i] = Particle{Of: p, Key: k}
	}
	return out
}

// Plus returns the superset of p and o. The sets must not share keys.
func (p *Particles) Plus(o ...*Particles) (*Particles, error) {
	members := append([]*Particles{p}, o...)
	seen := make(map[Key]struct{})
	for _, m := range members {
		for _, k := range m.Keys() {
			if _, ok := seen[k]; ok {
				return nil, fmt.Errorf("datamodel: cannot combine sets sharing particle %d", k)
			}
			seen[k] = struct{}{}
		}
	}
	return newParticles(&supersetView{members: members}, WithRegistry(p.registry), WithKeys(p.keygen)), nil
}

// Minus returns the subset of p without the particles of o. Every
// particle of o must be in p.
func (p *Particles) Minus(o *Particles) (*Particles, error) {
	var missing []Key
	for _, k := range o.Keys() {
		if !p.Contains(k) {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("datamodel: cannot subtract particles not in the set: %v", &MissingKeysError{Keys: missing})
	}
	return p.Difference(o), nil
}

// Difference returns the subset of p of particles not in o.
func (p *Particles) Difference(o *Particles) *Particles {
	var keys []Key
	for _, k := range p.Keys() {
		if !o.Contains(k) {
			keys = append(keys, k)
		}
	}
	return p.Subset(keys)
}

// Select returns the subset of particles for which keep returns true.
// keep is called with the values of the named attributes of each
// particle, in the unit they are stored in.
func (p *Particles) Select(keep func(values ...float64) bool, names ...string) (*Particles, error) {
	keys := p.Keys()
	cols := make([]units.Array, len(names))
	for i, n := range names {
		var err error
		if cols[i], err = p.column(keys, n); err != nil {
			return nil, err
		}
	}
	var out []Key
	row := make([]float64, len(names))
	for j, k := range keys {
		for i := range cols {
			row[i] = cols[i].Values[j]
		}
		if keep(row...) {
			out = append(out, k)
		}
	}
	return p.Subset(out), nil
}

// SortedBy returns a subset ordered by increasing value of name.
func (p *Particles) SortedBy(name string) (*Particles, error) {
	keys := p.Keys()
	col, err := p.column(keys, name)
	if err != nil {
		return nil, err
	}
	idx := make([]int, len(keys))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(i, j int) bool { return col.Values[idx[i]] < col.Values[idx[j]] })
	out := make([]Key, len(keys))
	for i, j := range idx {
		out[i] = keys[j]
	}
	return p.Subset(out), nil
}

// Copy returns an in-memory copy of the set with the same keys and stored
// attributes. Derived attributes of p remain visible in the copy.
func (p *Particles) Copy() (*Particles, error) {
	keys := p.Keys()
	names := p.StoredAttributeNames()
	values, err := p.view.get(keys, names)
	if err != nil {
		return nil, err
	}
	s := NewInMemoryStorage()
	if err := s.Add(keys, names, values); err != nil {
		return nil, err
	}
	return NewParticlesWithStorage(s, WithRegistry(NewRegistry(p.registry)), WithKeys(p.keygen)), nil
}

// CopyValuesOfAttributeTo copies attribute name to the particles of o
// that are also in p.
func (p *Particles) CopyValuesOfAttributeTo(name string, o *Particles) error {
	return p.NewChannelTo(o).CopyAttributes(name)
}

// SynchronizeTo makes the membership of o equal to that of p: particles
// only in p are added to o with all their stored attributes, and
// particles only in o are removed. Particles in both are not changed.
func (p *Particles) SynchronizeTo(o *Particles) error {
	var added, removed []Key
	for _, k := range p.Keys() {
		if !o.Contains(k) {
			added = append(added, k)
		}
	}
	for _, k := range o.Keys() {
		if !p.Contains(k) {
			removed = append(removed, k)
		}
	}
	if len(removed) > 0 {
		if err := o.view.remove(removed); err != nil {
			return err
		}
	}
	if len(added) > 0 {
		names := p.StoredAttributeNames()
		values, err := p.view.get(added, names)
		if err != nil {
			return err
		}
		if err := o.view.add(added, names, values); err != nil {
			return err
		}
	}
	return nil
}
