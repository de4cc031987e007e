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

package codeinterface

import (
	"github.com/spatialmodel/amuse/datamodel"
	"github.com/spatialmodel/amuse/units"
)

// ConvertUnitsHandler converts every value crossing the boundary of a
// code between the unit system of the code and the one of its user.
// Without a converter it does nothing.
type ConvertUnitsHandler struct {
	code      *Code
	converter units.Converter
	sets      map[*datamodel.Particles]*datamodel.Particles
}

// Kind implements Handler.
func (h *ConvertUnitsHandler) Kind() string { return "UNIT" }

// Supports implements Handler. It wraps what earlier handlers found.
func (h *ConvertUnitsHandler) Supports(_ string, found bool) bool {
	return found && h.converter != nil
}

// SetConverter sets the converter; the code works in its source system.
func (h *ConvertUnitsHandler) SetConverter(c units.Converter) {
	h.converter = c
	h.sets = make(map[*datamodel.Particles]*datamodel.Particles)
}

// Converter returns the converter, or nil.
func (h *ConvertUnitsHandler) Converter() units.Converter { return h.converter }

// Get implements Handler.
func (h *ConvertUnitsHandler) Get(_ string, prev interface{}) (interface{}, error) {
	switch v := prev.(type) {
	case units.Quantity:
		return h.converter.FromSourceToTarget(v)
	case units.Array:
		return units.ArrayToTarget(h.converter, v)
	case *Parameters:
		return &Parameters{h: v.h, converter: h.converter}, nil
	case *datamodel.Particles:
		return h.particles(v), nil
	case Method:
		return &convertedMethod{f: v, c: h.converter}, nil
	}
	return prev, nil
}

// AttributeNames implements Handler.
func (h *ConvertUnitsHandler) AttributeNames() []string { return nil }

func (h *ConvertUnitsHandler) particles(p *datamodel.Particles) *datamodel.Particles {
	if c, ok := h.sets[p]; ok {
		return c
	}
	st, _ := p.Storage()
	c := datamodel.NewParticlesWithStorage(&convertedStorage{Storage: st, c: h.converter},
		datamodel.WithRegistry(datamodel.NewRegistry(p.Registry())))
	h.sets[p] = c
	return c
}

// convertedMethod converts arguments to the system of the code and
// results back.
type convertedMethod struct {
	f Method
	c units.Converter
}

func (m *convertedMethod) Call(args ...interface{}) ([]interface{}, error) {
	in := make([]interface{}, len(args))
	for i, a := range args {
		var err error
		switch v := a.(type) {
		case units.Quantity:
			in[i], err = m.c.FromTargetToSource(v)
		case units.Array:
			in[i], err = units.ArrayToSource(m.c, v)
		default:
			in[i] = a
		}
		if err != nil {
			return nil, err
		}
	}
	out, err := m.f.Call(in...)
	if err != nil {
		return nil, err
	}
	for i, o := range out {
		switch v := o.(type) {
		case units.Quantity:
			out[i], err = m.c.FromSourceToTarget(v)
		case units.Array:
			out[i], err = units.ArrayToTarget(m.c, v)
		}
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// convertedStorage presents a storage of a code in the units of its
// user.
type convertedStorage struct {
	datamodel.Storage
	c units.Converter
}

func (s *convertedStorage) toSource(values []units.Array) ([]units.Array, error) {
	out := make([]units.Array, len(values))
	for i, v := range values {
		var err error
		if out[i], err = units.ArrayToSource(s.c, v); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *convertedStorage) Add(keys []datamodel.Key, names []string, values []units.Array) error {
	v, err := s.toSource(values)
	if err != nil {
		return err
	}
	return s.Storage.Add(keys, names, v)
}

func (s *convertedStorage) Set(keys []datamodel.Key, names []string, values []units.Array) error {
	v, err := s.toSource(values)
	if err != nil {
		return err
	}
	return s.Storage.Set(keys, names, v)
}

func (s *convertedStorage) Get(keys []datamodel.Key, names []string) ([]units.Array, error) {
	v, err := s.Storage.Get(keys, names)
	if err != nil {
		return nil, err
	}
	for i := range v {
		if v[i], err = units.ArrayToTarget(s.c, v[i]); err != nil {
			return nil, err
		}
	}
	return v, nil
}
