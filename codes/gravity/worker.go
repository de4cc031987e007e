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

package gravity

import (
	"math"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/amuse/legacy"
	"github.com/spatialmodel/amuse/worker"
	"gonum.org/v1/gonum/floats"
)

// DefaultTimeStep is the integration step of a new worker, in N-body
// time.
const DefaultTimeStep = 1.0 / 64

type body struct {
	mass, radius  float64
	pos, vel, acc []float64
}

func newBody() *body {
	return &body{pos: make([]float64, 3), vel: make([]float64, 3), acc: make([]float64, 3)}
}

// Integrator is the worker side of the code: particles in N-body units
// advanced with a fixed-step kick-drift-kick leapfrog. G is one.
type Integrator struct {
	Log logrus.FieldLogger

	// Eps2 is the squared softening length.
	Eps2 float64
	// TimeStep is the integration step.
	TimeStep float64
	// Stopping holds the stopping conditions. Collisions, timeouts
	// and step limits are detected.
	Stopping *worker.StoppingConditions

	time   float64
	bodies map[int32]*body
	next   int32
	// stale is set when the accelerations need recomputing.
	stale bool
}

// NewIntegrator returns an empty integrator.
func NewIntegrator() *Integrator {
	return &Integrator{
		Log:      logrus.StandardLogger(),
		TimeStep: DefaultTimeStep,
		Stopping: worker.NewStoppingConditions(
			legacy.CollisionDetection, legacy.TimeoutDetection, legacy.NumberOfStepsDetection),
		bodies: make(map[int32]*body),
		next:   1,
		stale:  true,
	}
}

// NewServer returns a worker serving a new integrator.
func NewServer() *worker.Server { return NewIntegrator().Server() }

// order returns the particle indices, sorted.
func (g *Integrator) order() []int32 {
	out := make([]int32, 0, len(g.bodies))
	for i := range g.bodies {
		out = append(out, i)
	}
	sort.Slice(out, func(a, b int) bool { return out[a] < out[b] })
	return out
}

func (g *Integrator) accelerate() {
	idx := g.order()
	for _, i := range idx {
		b := g.bodies[i]
		b.acc[0], b.acc[1], b.acc[2] = 0, 0, 0
	}
	d := make([]float64, 3)
	for n, i := range idx {
		bi := g.bodies[i]
		for _, j := range idx[n+1:] {
			bj := g.bodies[j]
			floats.SubTo(d, bj.pos, bi.pos)
			r2 := floats.Dot(d, d) + g.Eps2
			if r2 == 0 {
				continue
			}
			f := 1 / (r2 * math.Sqrt(r2))
			floats.AddScaled(bi.acc, bj.mass*f, d)
			floats.AddScaled(bj.acc, -bi.mass*f, d)
		}
	}
	g.stale = false
}

// step advances every particle by dt.
func (g *Integrator) step(dt float64) {
	if g.stale {
		g.accelerate()
	}
	for _, b := range g.bodies {
		floats.AddScaled(b.vel, dt/2, b.acc)
		floats.AddScaled(b.pos, dt, b.vel)
	}
	g.accelerate()
	for _, b := range g.bodies {
		floats.AddScaled(b.vel, dt/2, b.acc)
	}
}

// collisions records every pair of touching particles and reports
// whether there was one.
func (g *Integrator) collisions() bool {
	idx := g.order()
	d := make([]float64, 3)
	found := false
	for n, i := range idx {
		bi := g.bodies[i]
		for _, j := range idx[n+1:] {
			bj := g.bodies[j]
			r := bi.radius + bj.radius
			if r <= 0 {
				continue
			}
			floats.SubTo(d, bj.pos, bi.pos)
			if floats.Dot(d, d) < r*r {
				g.Stopping.Set(legacy.CollisionDetection, i, j)
				found = true
			}
		}
	}
	return found
}

// Evolve advances the model to tend, or until an enabled stopping
// condition is met.
func (g *Integrator) Evolve(tend float64) {
	g.Stopping.Reset()
	start := time.Now()
	steps := int32(0)
	for tend-g.time > 1e-12*math.Max(1, math.Abs(tend)) {
		dt := math.Min(g.TimeStep, tend-g.time)
		g.step(dt)
		if dt == tend-g.time {
			g.time = tend
		} else {
			g.time += dt
		}
		steps++
		if g.Stopping.IsEnabled(legacy.CollisionDetection) && g.collisions() {
			break
		}
		if g.Stopping.IsEnabled(legacy.TimeoutDetection) && time.Since(start).Seconds() > g.Stopping.Timeout {
			g.Stopping.Set(legacy.TimeoutDetection)
			break
		}
		if g.Stopping.IsEnabled(legacy.NumberOfStepsDetection) && steps >= g.Stopping.NumberOfSteps {
			g.Stopping.Set(legacy.NumberOfStepsDetection)
			break
		}
	}
	g.Log.WithFields(logrus.Fields{
		"time":      g.time,
		"steps":     steps,
		"particles": len(g.bodies),
		"stopped":   g.Stopping.Any(),
	}).Debug("evolved model")
}

// KineticEnergy returns the sum of m v^2 / 2.
func (g *Integrator) KineticEnergy() float64 {
	var e float64
	for _, b := range g.bodies {
		e += 0.5 * b.mass * floats.Dot(b.vel, b.vel)
	}
	return e
}

// PotentialEnergy returns the softened binding energy.
func (g *Integrator) PotentialEnergy() float64 {
	idx := g.order()
	d := make([]float64, 3)
	var e float64
	for n, i := range idx {
		bi := g.bodies[i]
		for _, j := range idx[n+1:] {
			bj := g.bodies[j]
			floats.SubTo(d, bj.pos, bi.pos)
			if r2 := floats.Dot(d, d) + g.Eps2; r2 > 0 {
				e -= bi.mass * bj.mass / math.Sqrt(r2)
			}
		}
	}
	return e
}

// centerOf returns the mass weighted mean of the vectors picked by f.
func (g *Integrator) centerOf(f func(*body) []float64) ([]float64, bool) {
	out := make([]float64, 3)
	var m float64
	for _, b := range g.bodies {
		floats.AddScaled(out, b.mass, f(b))
		m += b.mass
	}
	if m == 0 {
		return out, false
	}
	floats.Scale(1/m, out)
	return out, true
}

// each runs f for every particle addressed by the call and flags
// unknown indices.
func (g *Integrator) each(in, out *legacy.Batch, f func(i int, b *body)) {
	code := out.Int32s(legacy.ResultName)
	for i, j := range in.Int32s("index_of_the_particle") {
		b, ok := g.bodies[j]
		if !ok {
			code[i] = -1
			continue
		}
		f(i, b)
	}
}

var (
	positionNames = []string{"x", "y", "z"}
	velocityNames = []string{"vx", "vy", "vz"}
)

func readVector(b *legacy.Batch, names []string, i int, dst []float64) {
	for k, n := range names {
		dst[k] = b.Float64s(n)[i]
	}
}

func writeVector(b *legacy.Batch, names []string, i int, src []float64) {
	for k, n := range names {
		b.Float64s(n)[i] = src[k]
	}
}

func done(in, out *legacy.Batch) error { return nil }

// Server returns a worker serving g.
func (g *Integrator) Server() *worker.Server {
	s := worker.NewServer(Table)
	s.Log = g.Log

	s.MustRegister("initialize_code", done)
	s.MustRegister("commit_parameters", func(in, out *legacy.Batch) error {
		if g.TimeStep <= 0 {
			out.Int32s(legacy.ResultName)[0] = -1
		}
		return nil
	})
	s.MustRegister("recommit_parameters", done)
	s.MustRegister("commit_particles", func(in, out *legacy.Batch) error {
		g.stale = true
		return nil
	})
	s.MustRegister("recommit_particles", func(in, out *legacy.Batch) error {
		g.stale = true
		return nil
	})
	s.MustRegister("synchronize_model", done)
	s.MustRegister("cleanup_code", func(in, out *legacy.Batch) error {
		g.bodies = make(map[int32]*body)
		g.time = 0
		g.stale = true
		return nil
	})

	s.MustRegister("new_particle", func(in, out *legacy.Batch) error {
		idx := out.Int32s("index_of_the_particle")
		m, r := in.Float64s("mass"), in.Float64s("radius")
		for i := range idx {
			b := newBody()
			b.mass, b.radius = m[i], r[i]
			readVector(in, positionNames, i, b.pos)
			readVector(in, velocityNames, i, b.vel)
			g.bodies[g.next] = b
			idx[i] = g.next
			g.next++
		}
		g.stale = true
		return nil
	})
	s.MustRegister("delete_particle", func(in, out *legacy.Batch) error {
		code := out.Int32s(legacy.ResultName)
		for i, j := range in.Int32s("index_of_the_particle") {
			if _, ok := g.bodies[j]; !ok {
				code[i] = -1
				continue
			}
			delete(g.bodies, j)
		}
		g.stale = true
		return nil
	})
	s.MustRegister("get_state", func(in, out *legacy.Batch) error {
		g.each(in, out, func(i int, b *body) {
			out.Float64s("mass")[i] = b.mass
			out.Float64s("radius")[i] = b.radius
			writeVector(out, positionNames, i, b.pos)
			writeVector(out, velocityNames, i, b.vel)
		})
		return nil
	})
	s.MustRegister("set_state", func(in, out *legacy.Batch) error {
		g.each(in, out, func(i int, b *body) {
			b.mass = in.Float64s("mass")[i]
			b.radius = in.Float64s("radius")[i]
			readVector(in, positionNames, i, b.pos)
			readVector(in, velocityNames, i, b.vel)
		})
		g.stale = true
		return nil
	})
	s.MustRegister("get_mass", func(in, out *legacy.Batch) error {
		g.each(in, out, func(i int, b *body) { out.Float64s("mass")[i] = b.mass })
		return nil
	})
	s.MustRegister("set_mass", func(in, out *legacy.Batch) error {
		g.each(in, out, func(i int, b *body) { b.mass = in.Float64s("mass")[i] })
		g.stale = true
		return nil
	})
	s.MustRegister("get_position", func(in, out *legacy.Batch) error {
		g.each(in, out, func(i int, b *body) { writeVector(out, positionNames, i, b.pos) })
		return nil
	})
	s.MustRegister("set_position", func(in, out *legacy.Batch) error {
		g.each(in, out, func(i int, b *body) { readVector(in, positionNames, i, b.pos) })
		g.stale = true
		return nil
	})
	s.MustRegister("get_velocity", func(in, out *legacy.Batch) error {
		g.each(in, out, func(i int, b *body) { writeVector(out, velocityNames, i, b.vel) })
		return nil
	})
	s.MustRegister("set_velocity", func(in, out *legacy.Batch) error {
		g.each(in, out, func(i int, b *body) { readVector(in, velocityNames, i, b.vel) })
		return nil
	})
	s.MustRegister("get_radius", func(in, out *legacy.Batch) error {
		g.each(in, out, func(i int, b *body) { out.Float64s("radius")[i] = b.radius })
		return nil
	})
	s.MustRegister("set_radius", func(in, out *legacy.Batch) error {
		g.each(in, out, func(i int, b *body) { b.radius = in.Float64s("radius")[i] })
		return nil
	})

	s.MustRegister("evolve_model", func(in, out *legacy.Batch) error {
		g.Evolve(in.Float64s("time")[0])
		return nil
	})
	s.MustRegister("get_time", func(in, out *legacy.Batch) error {
		out.Float64s("time")[0] = g.time
		return nil
	})
	s.MustRegister("get_eps2", func(in, out *legacy.Batch) error {
		out.Float64s("epsilon_squared")[0] = g.Eps2
		return nil
	})
	s.MustRegister("set_eps2", func(in, out *legacy.Batch) error {
		v := in.Float64s("epsilon_squared")[0]
		if v < 0 {
			out.Int32s(legacy.ResultName)[0] = -1
			return nil
		}
		g.Eps2, g.stale = v, true
		return nil
	})
	s.MustRegister("get_time_step", func(in, out *legacy.Batch) error {
		out.Float64s("time_step")[0] = g.TimeStep
		return nil
	})
	s.MustRegister("set_time_step", func(in, out *legacy.Batch) error {
		v := in.Float64s("time_step")[0]
		if v <= 0 {
			out.Int32s(legacy.ResultName)[0] = -1
			return nil
		}
		g.TimeStep = v
		return nil
	})
	s.MustRegister("get_kinetic_energy", func(in, out *legacy.Batch) error {
		out.Float64s("kinetic_energy")[0] = g.KineticEnergy()
		return nil
	})
	s.MustRegister("get_potential_energy", func(in, out *legacy.Batch) error {
		out.Float64s("potential_energy")[0] = g.PotentialEnergy()
		return nil
	})
	s.MustRegister("get_total_mass", func(in, out *legacy.Batch) error {
		var m float64
		for _, b := range g.bodies {
			m += b.mass
		}
		out.Float64s("mass")[0] = m
		return nil
	})
	s.MustRegister("get_center_of_mass_position", func(in, out *legacy.Batch) error {
		c, ok := g.centerOf(func(b *body) []float64 { return b.pos })
		if !ok {
			out.Int32s(legacy.ResultName)[0] = -1
		}
		writeVector(out, positionNames, 0, c)
		return nil
	})
	s.MustRegister("get_center_of_mass_velocity", func(in, out *legacy.Batch) error {
		c, ok := g.centerOf(func(b *body) []float64 { return b.vel })
		if !ok {
			out.Int32s(legacy.ResultName)[0] = -1
		}
		writeVector(out, velocityNames, 0, c)
		return nil
	})
	s.MustRegister("get_number_of_particles", func(in, out *legacy.Batch) error {
		out.Int32s("number_of_particles")[0] = int32(len(g.bodies))
		return nil
	})
	s.MustRegister("get_gravity_at_point", func(in, out *legacy.Batch) error {
		eps := in.Float64s("eps")
		p, d := make([]float64, 3), make([]float64, 3)
		ax, ay, az := out.Float64s("ax"), out.Float64s("ay"), out.Float64s("az")
		for i := range eps {
			readVector(in, positionNames, i, p)
			for _, b := range g.bodies {
				floats.SubTo(d, b.pos, p)
				r2 := floats.Dot(d, d) + eps[i]*eps[i]
				if r2 == 0 {
					continue
				}
				f := b.mass / (r2 * math.Sqrt(r2))
				ax[i] += f * d[0]
				ay[i] += f * d[1]
				az[i] += f * d[2]
			}
		}
		return nil
	})
	s.MustRegister("get_potential_at_point", func(in, out *legacy.Batch) error {
		eps := in.Float64s("eps")
		p, d := make([]float64, 3), make([]float64, 3)
		phi := out.Float64s("phi")
		for i := range eps {
			readVector(in, positionNames, i, p)
			for _, b := range g.bodies {
				floats.SubTo(d, b.pos, p)
				if r2 := floats.Dot(d, d) + eps[i]*eps[i]; r2 > 0 {
					phi[i] -= b.mass / math.Sqrt(r2)
				}
			}
		}
		return nil
	})
	s.MustRegister("get_particles_within", func(in, out *legacy.Batch) error {
		p, d := make([]float64, 3), make([]float64, 3)
		dist, sel := in.Float64s("distance"), out.Int32s("index_of_selected")
		g.each(in, out, func(i int, b *body) {
			readVector(in, positionNames, i, p)
			floats.SubTo(d, b.pos, p)
			sel[i] = -1
			if floats.Dot(d, d) < dist[i]*dist[i] {
				sel[i] = in.Int32s("index_of_the_particle")[i]
			}
		})
		return nil
	})
	if err := g.Stopping.Register(s); err != nil {
		panic(err)
	}
	return s
}
