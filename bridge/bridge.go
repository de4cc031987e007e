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

// Package bridge couples gravitational codes with a kick-drift-kick split
// integrator. Between kicks every code evolves on its own; at a kick the
// particles of each code receive the velocity change due to the gravity
// of its partner codes.
package bridge

import (
	"errors"
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/amuse/datamodel"
	"github.com/spatialmodel/amuse/units"
	"golang.org/x/sync/errgroup"
)

// FieldCode gives the gravity of its mass at arbitrary points. eps is a
// softening length per point.
type FieldCode interface {
	GetGravityAtPoint(eps, x, y, z units.Array) ([]units.Array, error)
	GetPotentialAtPoint(eps, x, y, z units.Array) (units.Array, error)
}

// ParticleCode holds particles.
type ParticleCode interface {
	Particles() (*datamodel.Particles, error)
}

// Code is a gravitational code with particles.
type Code interface {
	FieldCode
	ParticleCode
}

// Evolver advances a code to a model time.
type Evolver interface {
	EvolveModel(t units.Quantity) error
}

// Timer reports the model time of a code.
type Timer interface {
	ModelTime() (units.Quantity, error)
}

// Synchronizer brings a code to a consistent state at its model time,
// for codes that do not stop exactly at a requested time.
type Synchronizer interface {
	SynchronizeModel() error
}

// Energetic reports the mechanical energy of a code.
type Energetic interface {
	KineticEnergy() (units.Quantity, error)
	PotentialEnergy() (units.Quantity, error)
}

// Thermal reports the internal energy of a code.
type Thermal interface {
	ThermalEnergy() (units.Quantity, error)
}

// Drifter evolves a code without outside forces.
type Drifter interface {
	Drift(t units.Quantity) error
}

// Kicker applies outside forces to a code for a time dt and returns the
// change in kinetic energy.
type Kicker interface {
	Kick(dt units.Quantity) (units.Quantity, error)
}

// ErrNoCodes is returned by the field functions of an empty bridge.
var ErrNoCodes = errors.New("bridge: no codes")

// Option configures a Bridge.
type Option func(*Bridge)

// WithTimestep sets the default timestep of EvolveModel.
func WithTimestep(dt units.Quantity) Option {
	return func(b *Bridge) { b.Timestep = dt }
}

// WithLogger sets the logger of the bridge.
func WithLogger(l logrus.FieldLogger) Option {
	return func(b *Bridge) { b.Log = l }
}

// Bridge is a split integrator over a number of codes. A Bridge is itself
// a FieldCode and can be a member of another Bridge.
type Bridge struct {
	Log logrus.FieldLogger

	// Timestep is used when EvolveModel is given none.
	Timestep units.Quantity

	// KickEnergy accumulates the kinetic energy added by kicks.
	KickEnergy units.Quantity

	codes   []FieldCode
	offsets []units.Quantity
	time    units.Quantity
}

// New returns an empty bridge at time zero.
func New(opts ...Option) *Bridge {
	b := &Bridge{Log: logrus.StandardLogger()}
	for _, o := range opts {
		o(b)
	}
	return b
}

// AddSystem adds a code that is kicked by the gravity of partners. A code
// with particles is wrapped in a GravityCodeInField; a code without
// particles cannot have partners.
func (b *Bridge) AddSystem(code FieldCode, partners ...FieldCode) error {
	c, ok := code.(Code)
	if !ok {
		if len(partners) > 0 {
			return fmt.Errorf("bridge: %s has partners but no particles", name(code))
		}
		return b.AddCode(code)
	}
	g, err := NewGravityCodeInField(c, partners...)
	if err != nil {
		return err
	}
	return b.AddCode(g)
}

// AddCode adds a code as it is. Its time offset from the bridge is fixed
// now.
func (b *Bridge) AddCode(code FieldCode) error {
	offset := units.Zero
	if t, ok := code.(Timer); ok {
		mt, err := t.ModelTime()
		if err != nil {
			return fmt.Errorf("bridge: model time of %s: %v", name(code), err)
		}
		if offset, err = b.time.Sub(mt); err != nil {
			return fmt.Errorf("bridge: time offset of %s: %v", name(code), err)
		}
	}
	b.codes = append(b.codes, code)
	b.offsets = append(b.offsets, offset)
	return nil
}

// Codes returns the members of the bridge.
func (b *Bridge) Codes() []FieldCode { return append([]FieldCode(nil), b.codes...) }

// EvolveModel evolves the bridge to tend with the default timestep.
func (b *Bridge) EvolveModel(tend units.Quantity) error {
	return b.Evolve(tend, b.Timestep)
}

// Evolve evolves the bridge to tend in steps of dt. The last step ends
// within dt/2 of tend. A non-positive dt, or a tend at or before the
// model time, does nothing.
func (b *Bridge) Evolve(tend, dt units.Quantity) error {
	steps, err := leapfrog(&b.time, tend, dt, b.kick, b.drift)
	b.Log.WithFields(logrus.Fields{
		"time":  b.time.String(),
		"steps": steps,
		"codes": len(b.codes),
	}).Debug("bridge evolved")
	return err
}

// leapfrog runs kick(dt/2) drift(dt) kick(dt/2) steps from *now towards
// tend, merging the half kicks between steps.
func leapfrog(now *units.Quantity, tend, dt units.Quantity, kick, drift func(units.Quantity) error) (int, error) {
	if dt.Value <= 0 {
		return 0, nil
	}
	half := dt.Scale(0.5)
	limit, err := tend.Sub(half)
	if err != nil {
		return 0, fmt.Errorf("bridge: timestep and end time: %v", err)
	}
	steps := 0
	for {
		c, err := now.Compare(limit)
		if err != nil {
			return steps, fmt.Errorf("bridge: model time and end time: %v", err)
		}
		if c >= 0 {
			break
		}
		k := dt
		if steps == 0 {
			k = half
		}
		if err := kick(k); err != nil {
			return steps, err
		}
		next, err := now.Add(dt)
		if err != nil {
			return steps, err
		}
		if err := drift(next); err != nil {
			return steps, err
		}
		*now = next
		steps++
	}
	if steps > 0 {
		return steps, kick(half)
	}
	return steps, nil
}

// SynchronizeModel synchronizes every code that needs it.
func (b *Bridge) SynchronizeModel() error {
	for _, c := range b.codes {
		if s, ok := c.(Synchronizer); ok {
			if err := s.SynchronizeModel(); err != nil {
				return fmt.Errorf("bridge: synchronizing %s: %v", name(c), err)
			}
		}
	}
	return nil
}

// drift evolves every code to t, each corrected for its time offset, in
// parallel.
func (b *Bridge) drift(t units.Quantity) error {
	if err := b.SynchronizeModel(); err != nil {
		return err
	}
	g := new(errgroup.Group)
	for i, c := range b.codes {
		c := c
		target, err := t.Sub(b.offsets[i])
		if err != nil {
			return err
		}
		var f func(units.Quantity) error
		switch x := c.(type) {
		case Drifter:
			f = x.Drift
		case Evolver:
			f = x.EvolveModel
		default:
			continue
		}
		g.Go(func() error {
			if err := f(target); err != nil {
				return eris.Wrapf(err, "drift of %s to %s", name(c), target)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return eris.Wrap(err, "bridge drift failed")
	}
	return nil
}

// kick kicks every code in turn.
func (b *Bridge) kick(dt units.Quantity) error {
	if err := b.SynchronizeModel(); err != nil {
		return err
	}
	de := units.Zero
	for _, c := range b.codes {
		k, ok := c.(Kicker)
		if !ok {
			continue
		}
		e, err := k.Kick(dt)
		if err != nil {
			return fmt.Errorf("bridge: kick of %s: %v", name(c), err)
		}
		if de, err = de.Add(e); err != nil {
			return err
		}
	}
	var err error
	b.KickEnergy, err = b.KickEnergy.Add(de)
	return err
}

// ModelTime returns the time of the bridge.
func (b *Bridge) ModelTime() (units.Quantity, error) { return b.time, nil }

// PotentialEnergy returns the sum over the codes, including the energy of
// each code in the field of its partners.
func (b *Bridge) PotentialEnergy() (units.Quantity, error) {
	return b.sum(func(c FieldCode) (units.Quantity, bool, error) {
		e, ok := c.(Energetic)
		if !ok {
			return units.Zero, false, nil
		}
		q, err := e.PotentialEnergy()
		return q, true, err
	})
}

// KineticEnergy returns the sum over the codes.
func (b *Bridge) KineticEnergy() (units.Quantity, error) {
	return b.sum(func(c FieldCode) (units.Quantity, bool, error) {
		e, ok := c.(Energetic)
		if !ok {
			return units.Zero, false, nil
		}
		q, err := e.KineticEnergy()
		return q, true, err
	})
}

// ThermalEnergy returns the sum over the codes that have one.
func (b *Bridge) ThermalEnergy() (units.Quantity, error) {
	return b.sum(func(c FieldCode) (units.Quantity, bool, error) {
		e, ok := c.(Thermal)
		if !ok {
			return units.Zero, false, nil
		}
		q, err := e.ThermalEnergy()
		return q, true, err
	})
}

func (b *Bridge) sum(f func(FieldCode) (units.Quantity, bool, error)) (units.Quantity, error) {
	total := units.Zero
	for _, c := range b.codes {
		q, ok, err := f(c)
		if err != nil {
			return units.Quantity{}, fmt.Errorf("bridge: %s: %v", name(c), err)
		}
		if !ok {
			continue
		}
		if total, err = total.Add(q); err != nil {
			return units.Quantity{}, err
		}
	}
	return total, nil
}

// Particles returns the superset of the particles of the codes.
func (b *Bridge) Particles() (*datamodel.Particles, error) {
	var sets []*datamodel.Particles
	for _, c := range b.codes {
		pc, ok := c.(ParticleCode)
		if !ok {
			continue
		}
		p, err := pc.Particles()
		if err != nil {
			return nil, fmt.Errorf("bridge: particles of %s: %v", name(c), err)
		}
		sets = append(sets, p)
	}
	if len(sets) == 0 {
		return datamodel.NewParticles(0), nil
	}
	return sets[0].Plus(sets[1:]...)
}

// GetGravityAtPoint returns the summed acceleration due to all codes.
func (b *Bridge) GetGravityAtPoint(eps, x, y, z units.Array) ([]units.Array, error) {
	if len(b.codes) == 0 {
		return nil, ErrNoCodes
	}
	var total []units.Array
	for _, c := range b.codes {
		a, err := c.GetGravityAtPoint(eps, x, y, z)
		if err != nil {
			return nil, fmt.Errorf("bridge: gravity of %s: %v", name(c), err)
		}
		if total == nil {
			total = a
			continue
		}
		for i := range total {
			if total[i], err = total[i].Add(a[i]); err != nil {
				return nil, err
			}
		}
	}
	return total, nil
}

// GetPotentialAtPoint returns the summed potential of all codes.
func (b *Bridge) GetPotentialAtPoint(eps, x, y, z units.Array) (units.Array, error) {
	if len(b.codes) == 0 {
		return units.Array{}, ErrNoCodes
	}
	var total units.Array
	for i, c := range b.codes {
		phi, err := c.GetPotentialAtPoint(eps, x, y, z)
		if err != nil {
			return units.Array{}, fmt.Errorf("bridge: potential of %s: %v", name(c), err)
		}
		if i == 0 {
			total = phi
			continue
		}
		if total, err = total.Add(phi); err != nil {
			return units.Array{}, err
		}
	}
	return total, nil
}

func name(c interface{}) string {
	if g, ok := c.(*GravityCodeInField); ok {
		return name(g.Code)
	}
	return fmt.Sprintf("%T", c)
}
