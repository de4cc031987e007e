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
	"github.com/spatialmodel/amuse/units"
)

// Channel copies attribute values from one set to another for the
// particles both sets contain. The common particles are looked up again
// on every copy.
type Channel struct {
	From, To *Particles
}

// NewChannelTo returns a channel from p to o.
func (p *Particles) NewChannelTo(o *Particles) *Channel {
	return &Channel{From: p, To: o}
}

// Keys returns the keys of the particles in both sets, in the order of
// the source set.
func (c *Channel) Keys() []Key {
	var keys []Key
	for _, k := range c.From.Keys() {
		if c.To.Contains(k) {
			keys = append(keys, k)
		}
	}
	return keys
}

// Copy copies every stored attribute of the source set.
func (c *Channel) Copy() error {
	return c.copy(c.From.StoredAttributeNames(), nil)
}

// CopyAttributes copies the named attributes. Vector attributes are
// copied through their components.
func (c *Channel) CopyAttributes(names ...string) error {
	return c.copy(c.expand(names), nil)
}

// CopyAttributesAs copies attribute from[i] of the source into attribute
// to[i] of the target.
func (c *Channel) CopyAttributesAs(from, to []string) error {
	return c.copy(c.expand(from), c.expand(to))
}

// Transform sets target attributes to f applied to source attributes.
func (c *Channel) Transform(to []string, f func(in []units.Array) ([]units.Array, error), from ...string) error {
	keys := c.Keys()
	if len(keys) == 0 {
		return nil
	}
	in, err := c.From.view.get(keys, c.expand(from))
	if err != nil {
		return err
	}
	out, err := f(in)
	if err != nil {
		return err
	}
	return c.To.view.set(keys, to, out)
}

func (c *Channel) expand(names []string) []string {
	var out []string
	for _, n := range names {
		if d, ok := c.From.registry.Lookup(n); ok && d.Kind == VectorAttribute {
			out = append(out, d.Attributes...)
			continue
		}
		out = append(out, n)
	}
	return out
}

func (c *Channel) copy(from, to []string) error {
	if to == nil {
		to = from
	}
	keys := c.Keys()
	if len(keys) == 0 || len(from) == 0 {
		return nil
	}
	values, err := c.From.view.get(keys, from)
	if err != nil {
		return err
	}
	return c.To.view.set(keys, to, values)
}
