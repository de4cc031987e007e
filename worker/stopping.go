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

package worker

import (
	"sync"

	"github.com/spatialmodel/amuse/legacy"
)

type stoppingHit struct {
	typ       legacy.StoppingType
	particles []int32
}

// StoppingConditions keeps the stopping condition state of a worker and
// implements the stopping condition functions for it. The integrator of
// the worker checks IsEnabled, records hits with Set and calls Reset at
// the start of every evolve call.
type StoppingConditions struct {
	mu        sync.Mutex
	supported map[legacy.StoppingType]bool
	enabled   map[legacy.StoppingType]bool
	hits      []stoppingHit

	// Timeout is the wall-clock limit of one evolve call in seconds.
	Timeout float64
	// NumberOfSteps limits the steps of one evolve call.
	NumberOfSteps int32
}

// NewStoppingConditions returns the state for a worker that supports
// the given types.
func NewStoppingConditions(supported ...legacy.StoppingType) *StoppingConditions {
	s := &StoppingConditions{
		supported:     make(map[legacy.StoppingType]bool),
		enabled:       make(map[legacy.StoppingType]bool),
		Timeout:       4,
		NumberOfSteps: 1,
	}
	for _, t := range supported {
		s.supported[t] = true
	}
	return s
}

// IsEnabled reports whether condition t is enabled.
func (s *StoppingConditions) IsEnabled(t legacy.StoppingType) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled[t]
}

// Set records that condition t was met for the given particles.
func (s *StoppingConditions) Set(t legacy.StoppingType, particles ...int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hits = append(s.hits, stoppingHit{typ: t, particles: append([]int32(nil), particles...)})
}

// Any reports whether a condition was met since the last Reset.
func (s *StoppingConditions) Any() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.hits) > 0
}

// Reset forgets the conditions met.
func (s *StoppingConditions) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hits = nil
}

func (s *StoppingConditions) isSet(t legacy.StoppingType) bool {
	for _, h := range s.hits {
		if h.typ == t {
			return true
		}
	}
	return false
}

func boolInt(b bool) int32 {
	if b {
		return 1
	}
	return 0
}

// Register implements the stopping condition functions of the table of
// srv, which must contain legacy.StoppingConditionSpecs.
func (s *StoppingConditions) Register(srv *Server) error {
	typed := func(f func(t legacy.StoppingType) (int32, int32)) Func {
		return func(in, out *legacy.Batch) error {
			s.mu.Lock()
			defer s.mu.Unlock()
			typ, res, code := in.Int32s("type"), out.Int32s("result"), out.Int32s(legacy.ResultName)
			for i, t := range typ {
				res[i], code[i] = f(legacy.StoppingType(t))
			}
			return nil
		}
	}
	funcs := map[string]Func{
		"has_stopping_condition": typed(func(t legacy.StoppingType) (int32, int32) {
			return boolInt(s.supported[t]), 0
		}),
		"is_stopping_condition_enabled": typed(func(t legacy.StoppingType) (int32, int32) {
			return boolInt(s.enabled[t]), 0
		}),
		"is_stopping_condition_set": typed(func(t legacy.StoppingType) (int32, int32) {
			return boolInt(s.isSet(t)), 0
		}),
		"enable_stopping_condition": func(in, out *legacy.Batch) error {
			s.mu.Lock()
			defer s.mu.Unlock()
			code := out.Int32s(legacy.ResultName)
			for i, t := range in.Int32s("type") {
				if !s.supported[legacy.StoppingType(t)] {
					code[i] = -1
					continue
				}
				s.enabled[legacy.StoppingType(t)] = true
			}
			return nil
		},
		"disable_stopping_condition": func(in, out *legacy.Batch) error {
			s.mu.Lock()
			defer s.mu.Unlock()
			for _, t := range in.Int32s("type") {
				delete(s.enabled, legacy.StoppingType(t))
			}
			return nil
		},
		"get_number_of_stopping_conditions_set": func(in, out *legacy.Batch) error {
			s.mu.Lock()
			defer s.mu.Unlock()
			res := out.Int32s("result")
			for i := range res {
				res[i] = int32(len(s.hits))
			}
			return nil
		},
		"get_stopping_condition_info": func(in, out *legacy.Batch) error {
			s.mu.Lock()
			defer s.mu.Unlock()
			typ, n, code := out.Int32s("type"), out.Int32s("number_of_particles"), out.Int32s(legacy.ResultName)
			for i, j := range in.Int32s("index") {
				if j < 0 || int(j) >= len(s.hits) {
					code[i] = -1
					continue
				}
				typ[i] = int32(s.hits[j].typ)
				n[i] = int32(len(s.hits[j].particles))
			}
			return nil
		},
		"get_stopping_condition_particle_index": func(in, out *legacy.Batch) error {
			s.mu.Lock()
			defer s.mu.Unlock()
			col, idx, code := in.Int32s("index_of_the_column"), out.Int32s("index_of_particle"), out.Int32s(legacy.ResultName)
			for i, j := range in.Int32s("index") {
				idx[i] = -1
				if j < 0 || int(j) >= len(s.hits) {
					code[i] = -1
					continue
				}
				if p := s.hits[j].particles; col[i] >= 0 && int(col[i]) < len(p) {
					idx[i] = p[col[i]]
				}
			}
			return nil
		},
		"get_stopping_condition_timeout_parameter": func(in, out *legacy.Batch) error {
			s.mu.Lock()
			defer s.mu.Unlock()
			v := out.Float64s("value")
			for i := range v {
				v[i] = s.Timeout
			}
			return nil
		},
		"set_stopping_condition_timeout_parameter": func(in, out *legacy.Batch) error {
			s.mu.Lock()
			defer s.mu.Unlock()
			v := in.Float64s("value")
			code := out.Int32s(legacy.ResultName)
			for i, x := range v {
				if x < 0 {
					code[i] = -1
					continue
				}
				s.Timeout = x
			}
			return nil
		},
		"get_stopping_condition_number_of_steps_parameter": func(in, out *legacy.Batch) error {
			s.mu.Lock()
			defer s.mu.Unlock()
			v := out.Int32s("value")
			for i := range v {
				v[i] = s.NumberOfSteps
			}
			return nil
		},
		"set_stopping_condition_number_of_steps_parameter": func(in, out *legacy.Batch) error {
			s.mu.Lock()
			defer s.mu.Unlock()
			code := out.Int32s(legacy.ResultName)
			for i, x := range in.Int32s("value") {
				if x < 1 {
					code[i] = -1
					continue
				}
				s.NumberOfSteps = x
			}
			return nil
		},
	}
	for name, f := range funcs {
		if err := srv.Register(name, f); err != nil {
			return err
		}
	}
	return nil
}
