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
	"fmt"

	"github.com/spatialmodel/amuse/datamodel"
	"github.com/spatialmodel/amuse/legacy"
	"github.com/spatialmodel/amuse/units"
)

// StoppingConditions are the stopping conditions of a code whose worker
// serves legacy.StoppingConditionSpecs. Particles of a condition are
// looked up in the particle set named by Set.
type StoppingConditions struct {
	code *Code
	Set  string

	Collision     *StoppingCondition
	Pair          *StoppingCondition
	Escaper       *StoppingCondition
	Timeout       *StoppingCondition
	NumberOfSteps *StoppingCondition
}

// NewStoppingConditions returns the stopping conditions of c.
func NewStoppingConditions(c *Code, set string) *StoppingConditions {
	s := &StoppingConditions{code: c, Set: set}
	s.Collision = &StoppingCondition{s: s, Type: legacy.CollisionDetection}
	s.Pair = &StoppingCondition{s: s, Type: legacy.PairDetection}
	s.Escaper = &StoppingCondition{s: s, Type: legacy.EscaperDetection}
	s.Timeout = &StoppingCondition{s: s, Type: legacy.TimeoutDetection}
	s.NumberOfSteps = &StoppingCondition{s: s, Type: legacy.NumberOfStepsDetection}
	return s
}

// All returns every condition.
func (s *StoppingConditions) All() []*StoppingCondition {
	return []*StoppingCondition{s.Collision, s.Pair, s.Escaper, s.Timeout, s.NumberOfSteps}
}

// DefineParameters adds the timeout and number of steps parameters to h.
func (s *StoppingConditions) DefineParameters(h *ParametersHandler) {
	h.AddMethodParameter("get_stopping_condition_timeout_parameter", "set_stopping_condition_timeout_parameter",
		"stopping_conditions_timeout", "max. wall-clock time of one evolve call", units.S, units.New(4, units.S))
	h.AddMethodParameter("get_stopping_condition_number_of_steps_parameter", "set_stopping_condition_number_of_steps_parameter",
		"stopping_conditions_number_of_steps", "max. number of steps of one evolve call", units.None, units.New(1, units.None))
}

// AnySet reports whether any condition is set.
func (s *StoppingConditions) AnySet() (bool, error) {
	n, err := s.call("get_number_of_stopping_conditions_set")
	return n > 0, err
}

// call calls a stopping condition function and returns its first
// output.
func (s *StoppingConditions) call(name string, args ...interface{}) (int32, error) {
	f, err := s.code.function(name)
	if err != nil {
		return 0, err
	}
	r, err := f.Call(args, nil)
	if err != nil {
		return 0, err
	}
	if c := r.Code(); c < 0 {
		desc, _ := s.code.ErrorCodes.Describe(c)
		return 0, &CodeError{Method: name, Code: s.code.Name, ErrorCode: c, Description: desc}
	}
	out := f.Specification().Outputs()
	if len(out) == 0 {
		return 0, nil
	}
	v := r.Int32s(out[0].Name)
	if len(v) == 0 {
		return 0, nil
	}
	return v[0], nil
}

// StoppingCondition is one kind of stopping condition of a code.
type StoppingCondition struct {
	s    *StoppingConditions
	Type legacy.StoppingType
}

func (c *StoppingCondition) String() string { return c.Type.String() }

// IsSupported reports whether the code can detect the condition.
func (c *StoppingCondition) IsSupported() (bool, error) {
	v, err := c.s.call("has_stopping_condition", int32(c.Type))
	return v == 1, err
}

// Enable switches the condition on.
func (c *StoppingCondition) Enable() error {
	ok, err := c.IsSupported()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("codeinterface: Can't enable stopping condition '%v', since '%s' does not support this condition", c, c.s.code.Name)
	}
	_, err = c.s.call("enable_stopping_condition", int32(c.Type))
	return err
}

// Disable switches the condition off.
func (c *StoppingCondition) Disable() error {
	_, err := c.s.call("disable_stopping_condition", int32(c.Type))
	return err
}

// IsEnabled reports whether the condition is on.
func (c *StoppingCondition) IsEnabled() (bool, error) {
	v, err := c.s.call("is_stopping_condition_enabled", int32(c.Type))
	return v == 1, err
}

// IsSet reports whether the condition was met during the last evolve
// call.
func (c *StoppingCondition) IsSet() (bool, error) {
	v, err := c.s.call("is_stopping_condition_set", int32(c.Type))
	return v == 1, err
}

// Particles returns, for every time the condition was met, particle
// column of the hit. For a collision column 0 and 1 are the two colliding
// particles.
func (c *StoppingCondition) Particles(column int) (*datamodel.Particles, error) {
	n, err := c.s.call("get_number_of_stopping_conditions_set")
	if err != nil {
		return nil, err
	}
	st, err := c.s.code.Particles.Storage(c.s.Set)
	if err != nil {
		return nil, err
	}
	p, err := c.s.code.ParticleSet(c.s.Set)
	if err != nil {
		return nil, err
	}
	var keys []datamodel.Key
	for i := int32(0); i < n; i++ {
		t, err := c.s.call("get_stopping_condition_info", i)
		if err != nil {
			return nil, err
		}
		if legacy.StoppingType(t) != c.Type {
			continue
		}
		idx, err := c.s.call("get_stopping_condition_particle_index", i, int32(column))
		if err != nil {
			return nil, err
		}
		if idx < 0 {
			continue
		}
		if k := st.KeysOf([]int32{idx})[0]; k != 0 {
			keys = append(keys, k)
		}
	}
	return p.Subset(keys), nil
}
