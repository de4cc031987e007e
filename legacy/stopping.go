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

package legacy

import "github.com/spatialmodel/amuse/units"

// StoppingType identifies a kind of stopping condition.
type StoppingType int32

// Stopping condition types, as numbered by workers.
const (
	CollisionDetection StoppingType = iota
	PairDetection
	EscaperDetection
	TimeoutDetection
	NumberOfStepsDetection
)

var stoppingNames = [...]string{
	CollisionDetection:     "collision_detection",
	PairDetection:          "pair_detection",
	EscaperDetection:       "escaper_detection",
	TimeoutDetection:       "timeout_detection",
	NumberOfStepsDetection: "number_of_steps_detection",
}

func (t StoppingType) String() string {
	if t < 0 || int(t) >= len(stoppingNames) {
		return "unknown_detection"
	}
	return stoppingNames[t]
}

// StoppingTypes lists every stopping condition type.
var StoppingTypes = []StoppingType{CollisionDetection, PairDetection, EscaperDetection, TimeoutDetection, NumberOfStepsDetection}

// StoppingConditionSpecs returns the functions a worker with stopping
// conditions serves, tagged consecutively from first.
func StoppingConditionSpecs(first int32) []*Specification {
	tag := first
	next := func(name string) *Specification {
		s := NewSpecification(name, tag)
		tag++
		return s
	}
	typed := func(name, doc string) *Specification {
		return next(name).
			AddParameter("type", Int32, In).
			AddParameter("result", Int32, Out).
			Returns(Int32, doc)
	}
	return []*Specification{
		typed("has_stopping_condition", "0 on success"),
		next("enable_stopping_condition").
			AddParameter("type", Int32, In).
			Returns(Int32, "0 on success, -1 if the condition is not supported"),
		next("disable_stopping_condition").
			AddParameter("type", Int32, In).
			Returns(Int32, "0 on success"),
		typed("is_stopping_condition_enabled", "0 on success"),
		typed("is_stopping_condition_set", "0 on success"),
		next("get_number_of_stopping_conditions_set").
			AddParameter("result", Int32, Out).
			Returns(Int32, "0 on success"),
		next("get_stopping_condition_info").
			AddParameter("index", Int32, In).
			AddParameter("type", Int32, Out).
			AddParameter("number_of_particles", Int32, Out).
			Returns(Int32, "0 on success").
			Arrays(false),
		next("get_stopping_condition_particle_index").
			AddParameter("index", Int32, In).
			AddParameter("index_of_the_column", Int32, In).
			AddParameter("index_of_particle", Int32, Out).
			Returns(Int32, "0 on success").
			Arrays(false),
		next("get_stopping_condition_timeout_parameter").
			AddParameter("value", Float64, Out, WithUnit(units.S)).
			Returns(Int32, "0 on success"),
		next("set_stopping_condition_timeout_parameter").
			AddParameter("value", Float64, In, WithUnit(units.S)).
			Returns(Int32, "0 on success"),
		next("get_stopping_condition_number_of_steps_parameter").
			AddParameter("value", Int32, Out).
			Returns(Int32, "0 on success"),
		next("set_stopping_condition_number_of_steps_parameter").
			AddParameter("value", Int32, In).
			Returns(Int32, "0 on success"),
	}
}
