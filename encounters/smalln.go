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

package encounters

import (
	"errors"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/amuse/channel"
	"github.com/spatialmodel/amuse/codes/gravity"
	"github.com/spatialmodel/amuse/datamodel"
	"github.com/spatialmodel/amuse/units"
	"gonum.org/v1/gonum/floats"
)

// ErrNotOver is returned when a subsystem is still interacting at the end
// of its time budget.
var ErrNotOver = errors.New("encounters: encounter not over before the end time")

const (
	// maxStepGrowth caps the step of a small-N integration at this
	// multiple of the first step.
	maxStepGrowth = 64

	// StabilityFactor is the ratio of the periastron of an outer orbit to
	// the apastron of the inner orbits above which a hierarchy counts as
	// stable.
	StabilityFactor = 3.0
)

// Evolver resolves the singles of an encounter to an end state. The
// returned set holds the singles and, for bound subsystems, center of
// mass particles linking their components through child1 and child2.
// Evolve must not change singles.
type Evolver interface {
	Evolve(singles *datamodel.Particles) (*datamodel.Particles, error)
}

// EvolverFunc adapts a function to the Evolver interface.
type EvolverFunc func(singles *datamodel.Particles) (*datamodel.Particles, error)

// Evolve implements Evolver.
func (f EvolverFunc) Evolve(singles *datamodel.Particles) (*datamodel.Particles, error) {
	return f(singles)
}

// Passthrough returns the singles as they are, without structure.
type Passthrough struct{}

// Evolve implements Evolver.
func (Passthrough) Evolve(singles *datamodel.Particles) (*datamodel.Particles, error) {
	out, err := stateCopy(singles)
	if err != nil {
		return nil, err
	}
	return out, clearTree(out)
}

// Code is a gravitational code that can integrate a subsystem.
type Code interface {
	Particles() (*datamodel.Particles, error)
	EvolveModel(t units.Quantity) error
	Stop() error
}

// GravityCode returns a function that starts a gravity worker in process
// for every encounter. A positive timestep replaces the default step of
// the worker.
func GravityCode(conv units.Converter, timestep units.Quantity) func() (Code, error) {
	return func() (Code, error) {
		ch, w := channel.Pipe()
		go gravity.NewServer().Serve(w)
		g, err := gravity.New(ch, conv)
		if err != nil {
			ch.Stop()
			return nil, err
		}
		if timestep.Value > 0 {
			params, err := g.Params()
			if err == nil {
				err = params.Set("timestep", timestep)
			}
			if err != nil {
				g.Stop()
				return nil, err
			}
		}
		return g, nil
	}
}

// SmallN integrates the singles of an encounter with a few-body code until
// the encounter is over. The step starts at Step and doubles every few
// steps up to 64 times Step.
type SmallN struct {
	Log logrus.FieldLogger

	// NewCode starts the code for one encounter. The code is stopped
	// when the encounter is resolved.
	NewCode func() (Code, error)

	// G is the gravitational constant for the structure analysis. The
	// zero quantity selects it from the mass unit of the particles.
	G units.Quantity

	Step    units.Quantity
	EndTime units.Quantity

	// FinalScale ends the encounter once the system is larger, whatever
	// its state. Zero disables the limit.
	FinalScale units.Quantity
}

// NewSmallN returns a strategy running codes from newCode.
func NewSmallN(newCode func() (Code, error), step, endTime units.Quantity) *SmallN {
	return &SmallN{Log: logrus.StandardLogger(), NewCode: newCode, Step: step, EndTime: endTime}
}

// Evolve implements Evolver.
func (s *SmallN) Evolve(singles *datamodel.Particles) (*datamodel.Particles, error) {
	code, err := s.NewCode()
	if err != nil {
		return nil, err
	}
	defer code.Stop()
	inCode, err := code.Particles()
	if err != nil {
		return nil, err
	}
	if _, err := inCode.AddParticles(singles); err != nil {
		return nil, err
	}
	local, err := stateCopy(singles)
	if err != nil {
		return nil, err
	}
	ch := inCode.NewChannelTo(local)

	t := units.New(0, s.Step.Unit)
	dt := s.Step
	maxStep := s.Step.Scale(maxStepGrowth)
	for steps := 1; ; steps++ {
		c, err := t.Compare(s.EndTime)
		if err != nil {
			return nil, fmt.Errorf("encounters: step and end time: %v", err)
		}
		if c >= 0 {
			break
		}
		if t, err = t.Add(dt); err != nil {
			return nil, err
		}
		if err := code.EvolveModel(t); err != nil {
			return nil, err
		}
		if err := ch.CopyAttributes("x", "y", "z", "vx", "vy", "vz"); err != nil {
			return nil, err
		}
		sys, err := load(local, s.G)
		if err != nil {
			return nil, err
		}
		top := sys.hierarchy()
		over, err := s.isOver(sys, top)
		if err != nil {
			return nil, err
		}
		if over {
			s.Log.WithFields(logrus.Fields{
				"time":      t.String(),
				"steps":     steps,
				"particles": sys.len(),
				"top_level": len(top),
			}).Debug("encounter over")
			if err := clearTree(local); err != nil {
				return nil, err
			}
			for _, n := range top {
				if _, err := sys.addNode(local, n); err != nil {
					return nil, err
				}
			}
			return local, nil
		}
		if dt.Less(maxStep) && t.Value > 0.999999*4*dt.Value {
			dt = dt.Scale(2)
		}
	}
	return nil, fmt.Errorf("%w (%s)", ErrNotOver, s.EndTime)
}

func (s *SmallN) isOver(sys *system, top []*node) (bool, error) {
	if s.FinalScale.Value > 0 {
		limit, err := s.FinalScale.In(sys.lu)
		if err != nil {
			return false, err
		}
		cp, _ := sys.com()
		for _, n := range top {
			if distance(n.pos, cp) > limit {
				return true, nil
			}
		}
	}
	for i, a := range top {
		if !sys.stable(a) {
			return false, nil
		}
		for _, b := range top[i+1:] {
			dr, dv := make([]float64, 3), make([]float64, 3)
			floats.SubTo(dr, b.pos, a.pos)
			floats.SubTo(dv, b.vel, a.vel)
			if floats.Dot(dr, dv) <= 0 {
				return false, nil
			}
		}
	}
	return true, nil
}

// node is a particle or the center of mass of a bound pair of nodes.
type node struct {
	key      datamodel.Key // leaves only
	mass     float64
	pos, vel []float64
	radius   float64
	children []*node
}

// hierarchy merges the closest bound pair of nodes into their center of
// mass until no bound pair is left, and returns the top level nodes.
func (s *system) hierarchy() []*node {
	nodes := make([]*node, s.len())
	for i := range nodes {
		nodes[i] = &node{key: s.keys[i], mass: s.mass[i], pos: s.pos[i], vel: s.vel[i], radius: s.radius[i]}
	}
	for {
		bi, bj, best := -1, -1, math.Inf(1)
		for i, a := range nodes {
			for j := i + 1; j < len(nodes); j++ {
				r := distance(a.pos, nodes[j].pos)
				if r > 0 && r < best && s.bound(a, nodes[j]) {
					bi, bj, best = i, j, r
				}
			}
		}
		if bi < 0 {
			return nodes
		}
		merged := merge(nodes[bi], nodes[bj])
		nodes = append(nodes[:bj], nodes[bj+1:]...)
		nodes[bi] = merged
	}
}

func (s *system) bound(a, b *node) bool {
	dv := make([]float64, 3)
	floats.SubTo(dv, b.vel, a.vel)
	return 0.5*floats.Dot(dv, dv)-s.g*(a.mass+b.mass)/distance(a.pos, b.pos) < 0
}

func merge(a, b *node) *node {
	m := a.mass + b.mass
	n := &node{mass: m, pos: make([]float64, 3), vel: make([]float64, 3), children: []*node{a, b}}
	floats.AddScaled(n.pos, a.mass/m, a.pos)
	floats.AddScaled(n.pos, b.mass/m, b.pos)
	floats.AddScaled(n.vel, a.mass/m, a.vel)
	floats.AddScaled(n.vel, b.mass/m, b.vel)
	n.radius = distance(a.pos, b.pos)
	return n
}

// apastron returns the largest separation of the pair of n, zero for a
// leaf.
func (s *system) apastron(n *node) (float64, bool) {
	if len(n.children) == 0 {
		return 0, true
	}
	a, b := n.children[0], n.children[1]
	o, err := relativeOrbit(s.g*n.mass, a.pos, a.vel, b.pos, b.vel)
	if err != nil || !o.IsBound() {
		return 0, false
	}
	return o.Apastron(), true
}

// stable reports whether every level below n is well separated from the
// levels under it.
func (s *system) stable(n *node) bool {
	if len(n.children) == 0 {
		return true
	}
	a, b := n.children[0], n.children[1]
	if !s.stable(a) || !s.stable(b) {
		return false
	}
	if len(a.children) == 0 && len(b.children) == 0 {
		return true
	}
	o, err := relativeOrbit(s.g*n.mass, a.pos, a.vel, b.pos, b.vel)
	if err != nil {
		return false
	}
	inner := 0.0
	for _, c := range n.children {
		r, ok := s.apastron(c)
		if !ok {
			return false
		}
		inner = math.Max(inner, r)
	}
	return o.Periastron() > StabilityFactor*inner
}

// addNode adds the center of mass particles below n to p, which holds
// the leaves, and returns the key of n.
func (s *system) addNode(p *datamodel.Particles, n *node) (datamodel.Key, error) {
	if len(n.children) == 0 {
		return n.key, nil
	}
	var kids []datamodel.Key
	for _, c := range n.children {
		k, err := s.addNode(p, c)
		if err != nil {
			return 0, err
		}
		kids = append(kids, k)
	}
	added, err := p.Grow(1)
	if err != nil {
		return 0, err
	}
	k := added.Keys()[0]
	one := func(v float64, u *units.Unit) units.Array { return units.NewArray([]float64{v}, u) }
	names := append(append([]string(nil), state...), datamodel.Child1, datamodel.Child2)
	values := []units.Array{
		one(n.mass, s.mu),
		one(n.pos[0], s.lu), one(n.pos[1], s.lu), one(n.pos[2], s.lu),
		one(n.vel[0], s.vu), one(n.vel[1], s.vu), one(n.vel[2], s.vu),
		one(n.radius, s.lu),
		datamodel.References(kids[:1]), datamodel.References(kids[1:]),
	}
	return k, p.SetValues([]datamodel.Key{k}, names, values)
}
