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

// Package gravity is a direct-summation N-body code: a worker that
// integrates particles with a fixed-step leapfrog in N-body units, and the
// binding that presents it to a host with units, parameters, a particle
// set, stopping conditions and the usual gravitational dynamics life
// cycle.
package gravity

import (
	"github.com/spatialmodel/amuse/legacy"
	"github.com/spatialmodel/amuse/units"
)

// Function tags of the code. Host and worker share this table.
const (
	TagInitializeCode int32 = iota + legacy.FirstTag
	TagCommitParameters
	TagRecommitParameters
	TagCommitParticles
	TagRecommitParticles
	TagSynchronizeModel
	TagCleanupCode
	TagNewParticle
	TagDeleteParticle
	TagGetState
	TagSetState
	TagGetMass
	TagSetMass
	TagGetPosition
	TagSetPosition
	TagGetVelocity
	TagSetVelocity
	TagGetRadius
	TagSetRadius
	TagEvolveModel
	TagGetTime
	TagGetEps2
	TagSetEps2
	TagGetTimeStep
	TagSetTimeStep
	TagGetKineticEnergy
	TagGetPotentialEnergy
	TagGetTotalMass
	TagGetCenterOfMassPosition
	TagGetCenterOfMassVelocity
	TagGetNumberOfParticles
	TagGetGravityAtPoint
	TagGetPotentialAtPoint
	TagGetParticlesWithin

	// TagFirstStopping is the tag of the first stopping condition
	// function.
	TagFirstStopping
)

var (
	length   = units.NBodyLength
	mass     = units.NBodyMass
	nbtime   = units.NBodyTime
	speed    = units.NBodySpeed
	energy   = units.NBodyEnergy
	accel    = units.NBodyAcceleration
	length2  = units.NBodyLength.Pow(2)
	phiUnit  = units.NBodyPotential
	unitless = units.None
)

func simple(name string, tag int32, doc string) *legacy.Specification {
	return legacy.NewSpecification(name, tag).Returns(legacy.Int32, "0 on success").Describe(doc)
}

// particle adds the index input of a per-particle function.
func particle(name string, tag int32) *legacy.Specification {
	return legacy.NewSpecification(name, tag).AddParameter("index_of_the_particle", legacy.Int32, legacy.In)
}

func vector(s *legacy.Specification, dir legacy.Direction, u *units.Unit, names ...string) *legacy.Specification {
	for _, n := range names {
		s.AddParameter(n, legacy.Float64, dir, legacy.WithUnit(u))
	}
	return s
}

func scalar(name string, tag int32, param string, dir legacy.Direction, u *units.Unit) *legacy.Specification {
	return legacy.NewSpecification(name, tag).
		AddParameter(param, legacy.Float64, dir, legacy.WithUnit(u)).
		Returns(legacy.Int32, "0 on success")
}

func stateParams(s *legacy.Specification, dir legacy.Direction) *legacy.Specification {
	s.AddParameter("mass", legacy.Float64, dir, legacy.WithUnit(mass))
	vector(s, dir, length, "x", "y", "z")
	vector(s, dir, speed, "vx", "vy", "vz")
	opts := []legacy.ParameterOption{legacy.WithUnit(length)}
	if dir == legacy.In {
		opts = append(opts, legacy.WithDefault(0.0))
	}
	return s.AddParameter("radius", legacy.Float64, dir, opts...)
}

func specifications() []*legacy.Specification {
	ok := "0 on success, -1 if the particle does not exist"
	specs := []*legacy.Specification{
		simple("initialize_code", TagInitializeCode, "Prepares the code for use."),
		simple("commit_parameters", TagCommitParameters, "Applies the parameters set so far."),
		simple("recommit_parameters", TagRecommitParameters, "Applies parameters changed after the commit."),
		simple("commit_particles", TagCommitParticles, "Starts the model from the particles added so far."),
		simple("recommit_particles", TagRecommitParticles, "Applies particles added or removed while running."),
		simple("synchronize_model", TagSynchronizeModel, "Brings every particle to the model time."),
		simple("cleanup_code", TagCleanupCode, "Releases the particles and resets the code."),
		stateParams(legacy.NewSpecification("new_particle", TagNewParticle), legacy.In).
			AddParameter("index_of_the_particle", legacy.Int32, legacy.Out).
			Returns(legacy.Int32, "0 on success").Arrays(false),
		particle("delete_particle", TagDeleteParticle).Returns(legacy.Int32, ok).Arrays(false),
		stateParams(particle("get_state", TagGetState), legacy.Out).Returns(legacy.Int32, ok).Arrays(false),
		stateParams(particle("set_state", TagSetState), legacy.In).Returns(legacy.Int32, ok).Arrays(false),
		particle("get_mass", TagGetMass).
			AddParameter("mass", legacy.Float64, legacy.Out, legacy.WithUnit(mass)).
			Returns(legacy.Int32, ok).Arrays(false),
		particle("set_mass", TagSetMass).
			AddParameter("mass", legacy.Float64, legacy.In, legacy.WithUnit(mass)).
			Returns(legacy.Int32, ok).Arrays(false),
		vector(particle("get_position", TagGetPosition), legacy.Out, length, "x", "y", "z").
			Returns(legacy.Int32, ok).Arrays(false),
		vector(particle("set_position", TagSetPosition), legacy.In, length, "x", "y", "z").
			Returns(legacy.Int32, ok).Arrays(false),
		vector(particle("get_velocity", TagGetVelocity), legacy.Out, speed, "vx", "vy", "vz").
			Returns(legacy.Int32, ok).Arrays(false),
		vector(particle("set_velocity", TagSetVelocity), legacy.In, speed, "vx", "vy", "vz").
			Returns(legacy.Int32, ok).Arrays(false),
		particle("get_radius", TagGetRadius).
			AddParameter("radius", legacy.Float64, legacy.Out, legacy.WithUnit(length)).
			Returns(legacy.Int32, ok).Arrays(false),
		particle("set_radius", TagSetRadius).
			AddParameter("radius", legacy.Float64, legacy.In, legacy.WithUnit(length)).
			Returns(legacy.Int32, ok).Arrays(false),
		scalar("evolve_model", TagEvolveModel, "time", legacy.In, nbtime).
			Describe("Evolves the model until the given time or a stopping condition."),
		scalar("get_time", TagGetTime, "time", legacy.Out, nbtime),
		scalar("get_eps2", TagGetEps2, "epsilon_squared", legacy.Out, length2),
		scalar("set_eps2", TagSetEps2, "epsilon_squared", legacy.In, length2),
		scalar("get_time_step", TagGetTimeStep, "time_step", legacy.Out, nbtime),
		scalar("set_time_step", TagSetTimeStep, "time_step", legacy.In, nbtime),
		scalar("get_kinetic_energy", TagGetKineticEnergy, "kinetic_energy", legacy.Out, energy),
		scalar("get_potential_energy", TagGetPotentialEnergy, "potential_energy", legacy.Out, energy),
		scalar("get_total_mass", TagGetTotalMass, "mass", legacy.Out, mass),
		vector(legacy.NewSpecification("get_center_of_mass_position", TagGetCenterOfMassPosition), legacy.Out, length, "x", "y", "z").
			Returns(legacy.Int32, "0 on success, -1 without mass"),
		vector(legacy.NewSpecification("get_center_of_mass_velocity", TagGetCenterOfMassVelocity), legacy.Out, speed, "vx", "vy", "vz").
			Returns(legacy.Int32, "0 on success, -1 without mass"),
		legacy.NewSpecification("get_number_of_particles", TagGetNumberOfParticles).
			AddParameter("number_of_particles", legacy.Int32, legacy.Out, legacy.WithUnit(unitless)).
			Returns(legacy.Int32, "0 on success"),
		vector(vector(legacy.NewSpecification("get_gravity_at_point", TagGetGravityAtPoint), legacy.In, length, "eps", "x", "y", "z"),
			legacy.Out, accel, "ax", "ay", "az").
			Returns(legacy.Int32, "0 on success").Arrays(false),
		vector(legacy.NewSpecification("get_potential_at_point", TagGetPotentialAtPoint), legacy.In, length, "eps", "x", "y", "z").
			AddParameter("phi", legacy.Float64, legacy.Out, legacy.WithUnit(phiUnit)).
			Returns(legacy.Int32, "0 on success").Arrays(false),
		vector(particle("get_particles_within", TagGetParticlesWithin), legacy.In, length, "x", "y", "z", "distance").
			AddParameter("index_of_selected", legacy.Int32, legacy.Out).
			Returns(legacy.Int32, "0 on success").
			Describe("Returns the index of each particle closer than distance to the point, -1 for the others.").
			Arrays(false),
	}
	return append(specs, legacy.StoppingConditionSpecs(TagFirstStopping)...)
}

// Table holds the functions of the code.
var Table = legacy.MustTable("gravity", specifications()...)
