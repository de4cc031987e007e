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
	"math"
	"sync"

	"github.com/golang/groupcache/lru"
	"github.com/spatialmodel/amuse/units"
)

// Snapshot is a frozen copy of a set at a model time.
type Snapshot struct {
	Time      units.Quantity
	Particles *Particles

	seq int
}

// History keeps the savepoints of a set. With MaxDepth > 0 the least
// recently used snapshots beyond MaxDepth are dropped; with MaxDepth 0
// every snapshot is kept until Prune is called.
type History struct {
	MaxDepth int

	mu    sync.Mutex
	cache *lru.Cache
	byseq map[int]*Snapshot
	order []int
	next  int
}

// NewHistory returns an empty history keeping at most maxDepth
// snapshots, or all of them if maxDepth is 0.
func NewHistory(maxDepth int) *History {
	h := &History{
		MaxDepth: maxDepth,
		cache:    lru.New(maxDepth),
		byseq:    make(map[int]*Snapshot),
	}
	h.cache.OnEvicted = func(k lru.Key, _ interface{}) { h.drop(k.(int)) }
	return h
}

func (h *History) drop(seq int) {
	delete(h.byseq, seq)
	for i, s := range h.order {
		if s == seq {
			h.order = append(h.order[:i], h.order[i+1:]...)
			return
		}
	}
}

func (h *History) add(t units.Quantity, p *Particles) *Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	s := &Snapshot{Time: t, Particles: p, seq: h.next}
	h.next++
	h.byseq[s.seq] = s
	h.order = append(h.order, s.seq)
	h.cache.Add(s.seq, s)
	return s
}

// Append adds p to h as the state at time t. p is kept as it is, not
// copied.
func (h *History) Append(t units.Quantity, p *Particles) *Snapshot { return h.add(t, p) }

// Len returns the number of snapshots kept.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.order)
}

// Snapshots returns the snapshots kept, oldest first.
func (h *History) Snapshots() []*Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*Snapshot, len(h.order))
	for i, seq := range h.order {
		out[i] = h.byseq[seq]
	}
	return out
}

// Latest returns the newest snapshot.
func (h *History) Latest() (*Snapshot, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.order) == 0 {
		return nil, false
	}
	return h.byseq[h.order[len(h.order)-1]], true
}

// Prune drops all but the newest n snapshots.
func (h *History) Prune(n int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if n < 0 {
		n = 0
	}
	for len(h.order) > n {
		h.cache.Remove(h.order[0])
	}
}

// Closest returns the snapshot whose time is nearest t.
func (h *History) Closest(t units.Quantity) (*Snapshot, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var best *Snapshot
	bestDist := math.Inf(1)
	for _, seq := range h.order {
		s := h.byseq[seq]
		d, err := s.Time.Sub(t)
		if err != nil {
			return nil, err
		}
		if dist := math.Abs(d.SI()); dist < bestDist {
			best, bestDist = s, dist
		}
	}
	if best == nil {
		return nil, fmt.Errorf("datamodel: history is empty")
	}
	h.cache.Get(best.seq)
	return best, nil
}

// Savepoint stores a copy of p taken at time t in the history of p and
// returns the copy.
func (p *Particles) Savepoint(t units.Quantity) (*Particles, error) {
	c, err := p.Copy()
	if err != nil {
		return nil, err
	}
	if p.history == nil {
		p.history = NewHistory(0)
	}
	p.history.add(t, c)
	return c, nil
}

// History returns the savepoints of p, creating an empty history if p has
// none.
func (p *Particles) History() *History {
	if p.history == nil {
		p.history = NewHistory(0)
	}
	return p.history
}

// Previous returns the newest savepoint of p.
func (p *Particles) Previous() (*Particles, bool) {
	if p.history == nil {
		return nil, false
	}
	s, ok := p.history.Latest()
	if !ok {
		return nil, false
	}
	return s.Particles, true
}

// TimelineOf returns the value of attribute name of particle k in every
// savepoint holding it, oldest first.
func (p *Particles) TimelineOf(k Key, name string) (times, values []units.Quantity, err error) {
	for _, s := range p.History().Snapshots() {
		if !s.Particles.Contains(k) {
			continue
		}
		v, err := s.Particles.ParticleWithKey(k).Get(name)
		if err != nil {
			return nil, nil, err
		}
		times = append(times, s.Time)
		values = append(values, v)
	}
	return times, values, nil
}

// AttributeAt returns attribute name of the particles of p as saved in
// the savepoint closest to t.
func (p *Particles) AttributeAt(name string, t units.Quantity) (units.Array, error) {
	s, err := p.History().Closest(t)
	if err != nil {
		return units.Array{}, err
	}
	return s.Particles.column(p.Keys(), name)
}
