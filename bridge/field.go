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

package bridge

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/amuse/datamodel"
	"github.com/spatialmodel/amuse/units"
)

// GravityCodeInField presents a code with particles as a bridge member
// that drifts with its own dynamics and is kicked by a number of field
// codes.
type GravityCodeInField struct {
	Code   Code
	Fields []FieldCode

	// Timestep is used by EvolveModel.
	Timestep units.Quantity

	time units.Quantity
}

// NewGravityCodeInField returns code kicked by fields, starting at the
// model time of code if it has one.
func NewGravityCodeInField(code Code, fields ...FieldCode) (*GravityCodeInField, error) {
	g := &GravityCodeInField{Code: code, Fields: fields, time: units.Zero}
	if t, ok := code.(Timer); ok {
		mt, err := t.ModelTime()
		if err != nil {
			return nil, fmt.Errorf("bridge: model time of %s: %v", name(code), err)
		}
		g.time = mt
	}
	return g, nil
}

// EvolveModel evolves the code in its field to tend with a
// kick-drift-kick scheme.
func (g *GravityCodeInField) EvolveModel(tend units.Quantity) error {
	_, err := leapfrog(&g.time, tend, g.Timestep, func(dt units.Quantity) error {
		_, err := g.Kick(dt)
		return err
	}, g.Drift)
	return err
}

// ModelTime returns the time the code was last drifted to.
func (g *GravityCodeInField) ModelTime() (units.Quantity, error) { return g.time, nil }

// SynchronizeModel synchronizes the code if it needs it.
func (g *GravityCodeInField) SynchronizeModel() error {
	if s, ok := g.Code.(Synchronizer); ok {
		return s.SynchronizeModel()
	}
	return nil
}

// Particles returns the particles of the code.
func (g *GravityCodeInField) Particles() (*datamodel.Particles, error) { return g.Code.Particles() }

// GetGravityAtPoint returns the gravity of the code alone.
func (g *GravityCodeInField) GetGravityAtPoint(eps, x, y, z units.Array) ([]units.Array, error) {
	return g.Code.GetGravityAtPoint(eps, x, y, z)
}

// GetPotentialAtPoint returns the potential of the code alone.
func (g *GravityCodeInField) GetPotentialAtPoint(eps, x, y, z units.Array) (units.Array, error) {
	return g.Code.GetPotentialAtPoint(eps, x, y, z)
}

// KineticEnergy returns the kinetic energy of the code.
func (g *GravityCodeInField) KineticEnergy() (units.Quantity, error) {
	if e, ok := g.Code.(Energetic); ok {
		return e.KineticEnergy()
	}
	p, err := g.Code.Particles()
	if err != nil {
		return units.Quantity{}, err
	}
	if p.IsEmpty() {
		return units.Zero, nil
	}
	return p.KineticEnergy()
}

// PotentialEnergy returns the potential energy of the code plus half the
// energy of its particles in each field.
func (g *GravityCodeInField) PotentialEnergy() (units.Quantity, error) {
	total := units.Zero
	if e, ok := g.Code.(Energetic); ok {
		var err error
		if total, err = e.PotentialEnergy(); err != nil {
			return units.Quantity{}, err
		}
	}
	p, err := g.Code.Particles()
	if err != nil {
		return units.Quantity{}, err
	}
	if p.IsEmpty() {
		return total, nil
	}
	for _, f := range g.Fields {
		e, err := potentialEnergyInField(p, f)
		if err != nil {
			return units.Quantity{}, fmt.Errorf("bridge: %s in field of %s: %v", name(g.Code), name(f), err)
		}
		if total, err = total.Add(e); err != nil {
			return units.Quantity{}, err
		}
	}
	return total, nil
}

// ThermalEnergy returns the thermal energy of the code, zero if it has
// none.
func (g *GravityCodeInField) ThermalEnergy() (units.Quantity, error) {
	if t, ok := g.Code.(Thermal); ok {
		return t.ThermalEnergy()
	}
	return units.Zero, nil
}

// Drift evolves the code to t.
func (g *GravityCodeInField) Drift(t units.Quantity) error {
	if e, ok := g.Code.(Evolver); ok {
		if err := e.EvolveModel(t); err != nil {
			return err
		}
	}
	g.time = t
	return nil
}

// Kick changes the velocities of the particles of the code by dt times
// the acceleration due to the fields, and returns the change in kinetic
// energy.
func (g *GravityCodeInField) Kick(dt units.Quantity) (units.Quantity, error) {
	if len(g.Fields) == 0 {
		return units.Zero, nil
	}
	target, err := g.Code.Particles()
	if err != nil {
		return units.Quantity{}, err
	}
	if target.IsEmpty() {
		return units.Zero, nil
	}
	p, err := target.Copy()
	if err != nil {
		return units.Quantity{}, err
	}
	before, err := p.KineticEnergy()
	if err != nil {
		return units.Quantity{}, err
	}
	for _, f := range g.Fields {
		if err := kickWithField(p, f, dt); err != nil {
			return units.Quantity{}, fmt.Errorf("bridge: kick of %s by %s: %v", name(g.Code), name(f), err)
		}
	}
	if err := p.NewChannelTo(target).CopyAttributes("vx", "vy", "vz"); err != nil {
		return units.Quantity{}, err
	}
	after, err := p.KineticEnergy()
	if err != nil {
		return units.Quantity{}, err
	}
	return after.Sub(before)
}

// points returns the softening and the position columns of p. Particles
// without a radius are not softened.
func points(p *datamodel.Particles) (eps, x, y, z units.Array, err error) {
	cols := make([]units.Array, 3)
	for i, n := range []string{"x", "y", "z"} {
		if cols[i], err = p.Get(n); err != nil {
			return
		}
	}
	if p.HasAttribute("radius") {
		if eps, err = p.Get("radius"); err != nil {
			return
		}
	} else {
		eps = units.Zeros(p.Len(), cols[0].Unit)
	}
	return eps, cols[0], cols[1], cols[2], nil
}

func kickWithField(p *datamodel.Particles, f FieldCode, dt units.Quantity) error {
	eps, x, y, z, err := points(p)
	if err != nil {
		return err
	}
	acc, err := f.GetGravityAtPoint(eps, x, y, z)
	if err != nil {
		return err
	}
	if len(acc) != 3 {
		return fmt.Errorf("field returned %d acceleration components", len(acc))
	}
	for i, n := range []string{"vx", "vy", "vz"} {
		v, err := p.Get(n)
		if err != nil {
			return err
		}
		if v, err = v.Add(acc[i].MulQuantity(dt)); err != nil {
			return err
		}
		if err := p.Assign(n, v); err != nil {
			return err
		}
	}
	return nil
}

// potentialEnergyInField returns half the energy of the particles of p in
// the potential of f. The other half is counted with the particles of f.
func potentialEnergyInField(p *datamodel.Particles, f FieldCode) (units.Quantity, error) {
	eps, x, y, z, err := points(p)
	if err != nil {
		return units.Quantity{}, err
	}
	phi, err := f.GetPotentialAtPoint(eps, x, y, z)
	if err != nil {
		return units.Quantity{}, err
	}
	m, err := p.Get("mass")
	if err != nil {
		return units.Quantity{}, err
	}
	e, err := phi.Mul(m)
	if err != nil {
		return units.Quantity{}, err
	}
	return e.Sum().Scale(0.5), nil
}

// FieldForParticles is the field of a set of particles, calculated by
// direct summation.
type FieldForParticles struct {
	Particles *datamodel.Particles

	// G is the gravitational constant. Without a unit the constant for
	// the mass unit of the particles is used.
	G units.Quantity

	// Eps2 is the squared smoothing length.
	Eps2 units.Quantity
}

// NewFieldForParticles returns the field of p, in the units of the
// particles. With a converter G is the N-body constant in SI units.
func NewFieldForParticles(p *datamodel.Particles, conv units.Converter) (*FieldForParticles, error) {
	f := &FieldForParticles{Particles: p}
	if conv != nil {
		g, err := conv.FromSourceToTarget(units.NBodyG)
		if err != nil {
			return nil, err
		}
		f.G = g
	}
	return f, nil
}

// fieldUnits returns the units of an empty field at points in unit u.
func fieldUnits(u *units.Unit) (acc, phi *units.Unit) {
	if u != nil && u.Compatible(units.NBodyLength) {
		return units.NBodyAcceleration, units.NBodyPotential
	}
	return units.MPerS2, units.MPerS.Pow(2)
}

// GetGravityAtPoint implements FieldCode. The softening of the points is
// not used; Eps2 smooths the field.
func (f *FieldForParticles) GetGravityAtPoint(_, x, y, z units.Array) ([]units.Array, error) {
	if f.Particles.IsEmpty() || x.Len() == 0 {
		u, _ := fieldUnits(x.Unit)
		return []units.Array{units.Zeros(x.Len(), u), units.Zeros(x.Len(), u), units.Zeros(x.Len(), u)}, nil
	}
	pts, err := units.StackColumns(x, y, z)
	if err != nil {
		return nil, err
	}
	return f.Particles.AccelerationAt(f.Eps2, f.G, pts)
}

// GetPotentialAtPoint implements FieldCode.
func (f *FieldForParticles) GetPotentialAtPoint(_, x, y, z units.Array) (units.Array, error) {
	if f.Particles.IsEmpty() || x.Len() == 0 {
		_, u := fieldUnits(x.Unit)
		return units.Zeros(x.Len(), u), nil
	}
	pts, err := units.StackColumns(x, y, z)
	if err != nil {
		return units.Array{}, err
	}
	return f.Particles.PotentialAt(f.Eps2, f.G, pts)
}

// Solver is a code that can compute the field of particles added to it.
type Solver interface {
	Code
	Stop() error
}

type committer interface {
	CommitParticles() error
}

// FieldForCodes is the field of the particles of a number of codes,
// computed by a solver code loaded with a copy of those particles for
// every request.
type FieldForCodes struct {
	Log   logrus.FieldLogger
	Codes []ParticleCode

	setup   func() (Solver, error)
	cleanup func(Solver) error
	commit  bool
}

// NewFieldForCodes returns a field that starts a new solver from factory
// for every request and stops it afterwards.
func NewFieldForCodes(factory func() (Solver, error), codes ...ParticleCode) *FieldForCodes {
	return &FieldForCodes{
		Log:     logrus.StandardLogger(),
		Codes:   codes,
		setup:   factory,
		cleanup: func(s Solver) error { return s.Stop() },
		commit:  true,
	}
}

// NewFieldForCodesReusing returns a field that loads solver for every
// request and removes the particles from it afterwards.
func NewFieldForCodesReusing(solver Solver, codes ...ParticleCode) *FieldForCodes {
	return &FieldForCodes{
		Log:   logrus.StandardLogger(),
		Codes: codes,
		setup: func() (Solver, error) { return solver, nil },
		cleanup: func(s Solver) error {
			p, err := s.Particles()
			if err != nil {
				return err
			}
			if p.IsEmpty() {
				return nil
			}
			return p.Remove(p.Keys()...)
		},
	}
}

func (f *FieldForCodes) with(use func(Solver) error) (err error) {
	s, err := f.setup()
	if err != nil {
		return fmt.Errorf("bridge: starting field solver: %v", err)
	}
	defer func() {
		if cerr := f.cleanup(s); cerr != nil && err == nil {
			err = fmt.Errorf("bridge: releasing field solver: %v", cerr)
		}
	}()
	sp, err := s.Particles()
	if err != nil {
		return err
	}
	n := 0
	for _, c := range f.Codes {
		p, err := c.Particles()
		if err != nil {
			return fmt.Errorf("bridge: particles of %s: %v", name(c), err)
		}
		if p.IsEmpty() {
			continue
		}
		if _, err := sp.AddParticles(p); err != nil {
			return fmt.Errorf("bridge: loading field solver: %v", err)
		}
		n += p.Len()
	}
	if c, ok := s.(committer); ok && f.commit {
		if err := c.CommitParticles(); err != nil {
			return err
		}
	}
	f.Log.WithFields(logrus.Fields{"solver": name(s), "particles": n}).Debug("field solver loaded")
	return use(s)
}

// GetGravityAtPoint implements FieldCode.
func (f *FieldForCodes) GetGravityAtPoint(eps, x, y, z units.Array) (acc []units.Array, err error) {
	err = f.with(func(s Solver) error {
		acc, err = s.GetGravityAtPoint(eps, x, y, z)
		return err
	})
	return acc, err
}

// GetPotentialAtPoint implements FieldCode.
func (f *FieldForCodes) GetPotentialAtPoint(eps, x, y, z units.Array) (phi units.Array, err error) {
	err = f.with(func(s Solver) error {
		phi, err = s.GetPotentialAtPoint(eps, x, y, z)
		return err
	})
	return phi, err
}
