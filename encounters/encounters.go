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

// Package encounters resolves close encounters between the particles of a
// gravitational model. The particles of an encounter, and their
// neighbours, are split into singles, evolved in isolation until they no
// longer interact, and returned as singles and multiples: center of mass
// particles standing in for bound subsystems.
package encounters

import (
	"fmt"
	"math"
	"sort"

	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/amuse/datamodel"
	"github.com/spatialmodel/amuse/units"
	"gonum.org/v1/gonum/floats"
)

const (
	// NeighboursFactor is the distance from an encounter, in units of its
	// large scale, within which field particles take part in it.
	NeighboursFactor = 1.0

	// HardBinaryFactor is the semimajor axis, in units of the small scale
	// of an encounter, below which a pair is kept as a binary.
	HardBinaryFactor = 1.0
)

// Multiples are center of mass particles, each standing in for the
// subsystem in Components under its key. Component positions and
// velocities are relative to the multiple.
type Multiples struct {
	*datamodel.Particles
	Components map[datamodel.Key]*datamodel.Particles
}

// NewMultiples returns an empty set of multiples.
func NewMultiples() *Multiples {
	return &Multiples{
		Particles:  datamodel.NewParticles(0),
		Components: make(map[datamodel.Key]*datamodel.Particles),
	}
}

// Add stores a copy of p with its components.
func (m *Multiples) Add(p datamodel.Particle, components *datamodel.Particles) error {
	if _, err := m.AddParticle(p); err != nil {
		return err
	}
	m.Components[p.Key] = components
	return nil
}

// Remove drops the multiple with key k.
func (m *Multiples) Remove(k datamodel.Key) error {
	delete(m.Components, k)
	return m.Particles.Remove(k)
}

// Handler resolves one encounter. Fill in the inputs, call Execute, then
// read the results.
type Handler struct {
	Log logrus.FieldLogger

	NeighboursFactor float64
	HardBinaryFactor float64

	// G is the gravitational constant. The zero quantity selects it from
	// the mass unit of the particles.
	G units.Quantity

	Evolver Evolver

	InEncounter *datamodel.Particles
	Field       *datamodel.Particles

	// Multiples and Binaries known in the model. Multiples that take part
	// in the encounter are removed.
	Multiples *Multiples
	Binaries  *datamodel.Particles

	LargeScale, SmallScale units.Quantity

	SpherePosition units.Vector
	SphereVelocity units.Vector
	SphereRadius   units.Quantity

	// Neighbours are the field particles drawn into the encounter.
	Neighbours *datamodel.Particles

	// Singles holds every single taking part, in the frame of the
	// initial sphere after Execute.
	Singles *datamodel.Particles

	// Evolved holds the singles and the center of mass particles of the
	// end state.
	Evolved *datamodel.Particles

	NewMultiples       *Multiples
	DissolvedMultiples *datamodel.Particles
	NewBinaries        *datamodel.Particles
	UpdatedBinaries    *datamodel.Particles

	center units.Vector
}

// NewHandler returns a handler for the encounter of the particles in
// encounter. field, multiples and binaries may be nil.
func NewHandler(encounter, field *datamodel.Particles, multiples *Multiples, binaries *datamodel.Particles) *Handler {
	if field == nil {
		field = datamodel.NewParticles(0)
	}
	if multiples == nil {
		multiples = NewMultiples()
	}
	if binaries == nil {
		binaries = datamodel.NewParticles(0)
	}
	return &Handler{
		Log:              logrus.StandardLogger(),
		NeighboursFactor: NeighboursFactor,
		HardBinaryFactor: HardBinaryFactor,
		Evolver:          Passthrough{},
		InEncounter:      encounter,
		Field:            field,
		Multiples:        multiples,
		Binaries:         binaries,
	}
}

// Execute runs the resolution steps in order.
func (h *Handler) Execute() error {
	h.Neighbours = datamodel.NewParticles(0)
	h.Singles = datamodel.NewParticles(0)
	h.NewMultiples = NewMultiples()
	h.DissolvedMultiples = datamodel.NewParticles(0)
	h.NewBinaries = datamodel.NewParticles(0)
	h.UpdatedBinaries = datamodel.NewParticles(0)

	for _, step := range []struct {
		name string
		run  func() error
	}{
		{"determine scales", h.determineScales},
		{"select neighbours", h.selectNeighbours},
		{"determine singles", h.determineSingles},
		{"determine initial sphere", h.determineInitialSphere},
		{"move to initial sphere", h.moveToSphereFrame},
		{"evolve", h.evolve},
		{"scale to initial sphere", h.scaleToInitialSphere},
		{"remove soft binaries", h.removeSoftBinaries},
		{"move to original frame", h.moveToOriginalFrame},
		{"determine multiples", h.determineMultiples},
	} {
		if err := step.run(); err != nil {
			return fmt.Errorf("encounters: %s: %v", step.name, err)
		}
	}
	h.Log.WithFields(logrus.Fields{
		"particles":           h.InEncounter.Len(),
		"neighbours":          h.Neighbours.Len(),
		"singles":             h.Singles.Len(),
		"new_multiples":       h.NewMultiples.Len(),
		"dissolved_multiples": h.DissolvedMultiples.Len(),
		"new_binaries":        h.NewBinaries.Len(),
		"updated_binaries":    h.UpdatedBinaries.Len(),
	}).Info("encounter resolved")
	return nil
}

// ResolvedSingles returns the particles of the end state that are not
// part of a multiple.
func (h *Handler) ResolvedSingles() (*datamodel.Particles, error) {
	t, err := datamodel.NewTree(h.Evolved)
	if err != nil {
		return nil, err
	}
	var keys []datamodel.Key
	for _, r := range t.Roots() {
		if t.IsLeaf(r) {
			keys = append(keys, r)
		}
	}
	return h.Evolved.Subset(keys), nil
}

// determineScales sets the large scale to twice the largest distance from
// the center of mass and the small scale to the smallest distance between
// two particles.
func (h *Handler) determineScales() error {
	s, err := load(h.InEncounter, h.G)
	if err != nil {
		return err
	}
	if s.len() < 2 {
		return fmt.Errorf("an encounter needs at least 2 particles, have %d", s.len())
	}
	cp, _ := s.com()
	large, small := 0.0, math.Inf(1)
	for i, p := range s.pos {
		large = math.Max(large, distance(p, cp))
		for _, q := range s.pos[i+1:] {
			if d := distance(p, q); d > 0 {
				small = math.Min(small, d)
			}
		}
	}
	if math.IsInf(small, 1) {
		return fmt.Errorf("all %d particles are at the same position", s.len())
	}
	h.center = units.Vector{Values: cp, Unit: s.lu}
	h.LargeScale = units.New(2*large, s.lu)
	h.SmallScale = units.New(small, s.lu)
	return nil
}

func (h *Handler) selectNeighbours() error {
	if h.Field.IsEmpty() {
		return nil
	}
	pos, err := h.Field.GetVector("position")
	if err != nil {
		return err
	}
	c, err := h.center.In(pos.Unit)
	if err != nil {
		return err
	}
	near, err := h.LargeScale.Scale(h.NeighboursFactor).In(pos.Unit)
	if err != nil {
		return err
	}
	var keys []datamodel.Key
	for i, k := range h.Field.Keys() {
		if !h.InEncounter.Contains(k) && distance(pos.Values[i], c) <= near {
			keys = append(keys, k)
		}
	}
	h.Neighbours = h.Field.Subset(keys)
	return nil
}

// determineSingles replaces every multiple among the particles by its
// components.
func (h *Handler) determineSingles() error {
	for _, set := range []*datamodel.Particles{h.InEncounter, h.Neighbours} {
		for _, p := range set.Particles() {
			singles, err := h.singlesOf(p)
			if err != nil {
				return err
			}
			if _, err := h.Singles.AddParticles(singles); err != nil {
				return err
			}
		}
	}
	return nil
}

func (h *Handler) singlesOf(p datamodel.Particle) (*datamodel.Particles, error) {
	if !h.Multiples.Contains(p.Key) {
		return stateCopy(p.AsSet())
	}
	components, ok := h.Multiples.Components[p.Key]
	if !ok {
		return nil, fmt.Errorf("multiple %d has no components", p.Key)
	}
	t, err := datamodel.NewTree(components)
	if err != nil {
		return nil, err
	}
	var leaves []datamodel.Key
	for _, r := range t.Roots() {
		leaves = append(leaves, t.Leaves(r)...)
	}
	out, err := stateCopy(components.Subset(leaves))
	if err != nil {
		return nil, err
	}
	pos, err := p.GetVector("position")
	if err != nil {
		return nil, err
	}
	vel, err := p.GetVector("velocity")
	if err != nil {
		return nil, err
	}
	if err := out.Shift(pos, vel); err != nil {
		return nil, err
	}
	m, err := p.AsParticleInSet(h.Multiples.Particles)
	if err != nil {
		return nil, err
	}
	if _, err := h.DissolvedMultiples.AddParticle(m); err != nil {
		return nil, err
	}
	h.Log.WithFields(logrus.Fields{"multiple": p.Key, "components": out.Len()}).Debug("multiple dissolved")
	return out, h.Multiples.Remove(p.Key)
}

func (h *Handler) determineInitialSphere() error {
	s, err := load(h.Singles, h.G)
	if err != nil {
		return err
	}
	cp, cv := s.com()
	r := 0.0
	for _, p := range s.pos {
		r = math.Max(r, distance(p, cp))
	}
	h.SpherePosition = units.Vector{Values: cp, Unit: s.lu}
	h.SphereVelocity = units.Vector{Values: cv, Unit: s.vu}
	h.SphereRadius = units.New(r, s.lu)
	return nil
}

func (h *Handler) moveToSphereFrame() error {
	return h.Singles.Shift(h.SpherePosition.Scale(-1), h.SphereVelocity.Scale(-1))
}

func (h *Handler) moveToOriginalFrame() error {
	return h.Evolved.Shift(h.SpherePosition, h.SphereVelocity)
}

func (h *Handler) evolve() error {
	ev := h.Evolver
	if ev == nil {
		ev = Passthrough{}
	}
	out, err := ev.Evolve(h.Singles)
	if err != nil {
		return err
	}
	if !out.HasAttribute(datamodel.Child1) {
		if err := clearTree(out); err != nil {
			return err
		}
	}
	h.Evolved = out
	return nil
}

// scaleToInitialSphere brings the top level of the end state back inside
// the initial sphere if it has grown beyond it. Each top level particle
// carries its descendants along.
func (h *Handler) scaleToInitialSphere() error {
	t, err := datamodel.NewTree(h.Evolved)
	if err != nil {
		return err
	}
	roots := t.Roots()
	if len(roots) < 2 {
		return nil
	}
	top := h.Evolved.Subset(roots)
	s, err := load(top, h.G)
	if err != nil {
		return err
	}
	radius, err := h.SphereRadius.In(s.lu)
	if err != nil {
		return err
	}
	cp, cv := s.com()
	size := 0.0
	for _, p := range s.pos {
		size = math.Max(size, distance(p, cp))
	}
	if size <= radius*(1+1e-12) {
		return nil
	}
	before := s.copyState()
	if s.len() == 2 {
		err = scaleToSphere(s, radius)
	} else {
		s.shift(negated(cp), negated(cv))
		err = scaleBy(s, radius/size)
		s.shift(cp, cv)
	}
	if err != nil {
		return err
	}
	h.Log.WithFields(logrus.Fields{"size": size, "radius": radius}).Debug("scaled to initial sphere")
	for i, k := range roots {
		dp, dv := make([]float64, 3), make([]float64, 3)
		floats.SubTo(dp, s.pos[i], before.pos[i])
		floats.SubTo(dv, s.vel[i], before.vel[i])
		moved := h.Evolved.Subset(append([]datamodel.Key{k}, t.Descendants(k)...))
		if err := moved.Shift(units.Vector{Values: dp, Unit: s.lu}, units.Vector{Values: dv, Unit: s.vu}); err != nil {
			return err
		}
	}
	return nil
}

// removeSoftBinaries breaks up every pair in the end state whose
// semimajor axis is not below the hard binary radius, starting at the
// top of each tree. Unbound pairs are always broken.
func (h *Handler) removeSoftBinaries() error {
	t, err := datamodel.NewTree(h.Evolved)
	if err != nil {
		return err
	}
	hard := h.SmallScale.Scale(h.HardBinaryFactor)
	var queue, broken []datamodel.Key
	for _, r := range t.Roots() {
		if !t.IsLeaf(r) {
			queue = append(queue, r)
		}
	}
	sc := Scaler{G: h.G}
	for len(queue) > 0 {
		k := queue[len(queue)-1]
		queue = queue[:len(queue)-1]
		children := t.Children(k)
		if len(children) != 2 {
			return fmt.Errorf("node %d has %d children", k, len(children))
		}
		a, _, err := sc.SemimajorAxis(h.Evolved.Subset(children))
		if err != nil {
			return err
		}
		av, err := a.In(hard.Unit)
		if err != nil {
			return err
		}
		if av > 0 && av < hard.Value {
			continue
		}
		broken = append(broken, k)
		queue = append(queue, t.Branches(k)...)
	}
	if len(broken) == 0 {
		return nil
	}
	h.Log.WithFields(logrus.Fields{"pairs": len(broken), "hard_radius": hard.String()}).Debug("soft pairs broken")
	return h.Evolved.Remove(broken...)
}

// pair identifies a binary by its components, in either order.
type pair [2]datamodel.Key

func pairOf(a, b datamodel.Key) pair {
	if b < a {
		a, b = b, a
	}
	return pair{a, b}
}

// determineMultiples turns every tree of the end state into a multiple
// and records its binaries.
func (h *Handler) determineMultiples() error {
	t, err := datamodel.NewTree(h.Evolved)
	if err != nil {
		return err
	}
	known, err := h.knownBinaries()
	if err != nil {
		return err
	}
	for _, r := range t.Roots() {
		if t.IsLeaf(r) {
			continue
		}
		components, err := h.Evolved.Subset(t.Descendants(r)).Copy()
		if err != nil {
			return err
		}
		root := h.Evolved.ParticleWithKey(r)
		pos, err := root.GetVector("position")
		if err != nil {
			return err
		}
		vel, err := root.GetVector("velocity")
		if err != nil {
			return err
		}
		if err := components.Shift(pos.Scale(-1), vel.Scale(-1)); err != nil {
			return err
		}
		if err := h.NewMultiples.Add(root, components); err != nil {
			return err
		}
		if err := h.updateBinaries(t, r, known); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) knownBinaries() (map[pair]datamodel.Key, error) {
	out := make(map[pair]datamodel.Key)
	if h.Binaries.IsEmpty() {
		return out, nil
	}
	c1, err := h.Binaries.References(datamodel.Child1)
	if err != nil {
		return nil, err
	}
	c2, err := h.Binaries.References(datamodel.Child2)
	if err != nil {
		return nil, err
	}
	for i, k := range h.Binaries.Keys() {
		out[pairOf(c1[i], c2[i])] = k
	}
	return out, nil
}

// isPair reports whether k has two children that are both leaves.
func isPair(t *datamodel.Tree, k datamodel.Key) bool {
	if !t.IsBinary(k) {
		return false
	}
	for _, c := range t.Children(k) {
		if !t.IsLeaf(c) {
			return false
		}
	}
	return true
}

func (h *Handler) updateBinaries(t *datamodel.Tree, root datamodel.Key, known map[pair]datamodel.Key) error {
	nodes := []datamodel.Key{root}
	if !isPair(t, root) {
		nodes = t.InnerNodes(root)
		sort.Slice(nodes, func(i, j int) bool { return nodes[i] < nodes[j] })
	}
	for _, k := range nodes {
		if !isPair(t, k) {
			continue
		}
		found := h.Evolved.ParticleWithKey(k)
		children := t.Children(k)
		old, ok := known[pairOf(children[0], children[1])]
		if !ok {
			if _, err := h.NewBinaries.AddParticle(found); err != nil {
				return err
			}
			continue
		}
		if err := h.updateBinary(found, children, h.Binaries.ParticleWithKey(old)); err != nil {
			return err
		}
	}
	return nil
}

// updateBinary records the known binary old with the components and
// motion of found.
func (h *Handler) updateBinary(found datamodel.Particle, children []datamodel.Key, old datamodel.Particle) error {
	b, err := h.UpdatedBinaries.AddParticle(old)
	if err != nil {
		return err
	}
	for i, name := range []string{datamodel.Child1, datamodel.Child2} {
		if err := b.Set(name, datamodel.Particle{Of: h.Evolved, Key: children[i]}); err != nil {
			return err
		}
	}
	for _, name := range []string{"position", "velocity"} {
		v, err := found.GetVector(name)
		if err != nil {
			return err
		}
		if err := b.Set(name, v); err != nil {
			return err
		}
	}
	return nil
}
