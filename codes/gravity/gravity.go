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
	"context"
	"fmt"

	"github.com/spatialmodel/amuse/channel"
	"github.com/spatialmodel/amuse/codeinterface"
	"github.com/spatialmodel/amuse/datamodel"
	"github.com/spatialmodel/amuse/units"
)

// Gravity is the host side of the code.
type Gravity struct {
	*codeinterface.Code

	Stopping *codeinterface.StoppingConditions
}

// Launch starts the worker executable command, which must serve the
// gravity table (for example "amuse worker gravity"), and binds it.
func Launch(ctx context.Context, command string, args []string, conv units.Converter, opts ...channel.Option) (*Gravity, error) {
	opts = append([]channel.Option{channel.WithFingerprint(Table.Fingerprint())}, opts...)
	ch := channel.NewProcessChannel(command, args, opts...)
	if err := ch.Start(ctx); err != nil {
		return nil, err
	}
	g, err := New(ch, conv)
	if err != nil {
		ch.Stop()
		return nil, err
	}
	return g, nil
}

// New binds the gravity worker reached over ch. With a converter,
// quantities are given and returned in the target system of conv.
func New(ch channel.Channel, conv units.Converter) (*Gravity, error) {
	c := codeinterface.New("Gravity", Table, ch)
	g := &Gravity{Code: c, Stopping: codeinterface.NewStoppingConditions(c, "particles")}
	for _, name := range []string{
		"evolve_model", "synchronize_model", "commit_particles", "cleanup_code",
		"get_gravity_at_point", "get_potential_at_point",
		"get_center_of_mass_position", "get_center_of_mass_velocity",
	} {
		if err := c.Methods.Add(codeinterface.MethodDefinition{Function: name}); err != nil {
			return nil, err
		}
	}
	c.Properties.Add("get_time", nbtime, "model_time")
	c.Properties.Add("get_kinetic_energy", energy, "")
	c.Properties.Add("get_potential_energy", energy, "")
	c.Properties.Add("get_total_mass", mass, "")
	c.Properties.Add("get_number_of_particles", unitless, "")

	c.Parameters.AddMethodParameter("get_eps2", "set_eps2", "epsilon_squared",
		"smoothing parameter for gravity calculations", length2, units.New(0, length2))
	c.Parameters.AddMethodParameter("get_time_step", "set_time_step", "timestep",
		"constant timestep for iteration", nbtime, units.New(DefaultTimeStep, nbtime))
	g.Stopping.DefineParameters(c.Parameters)

	c.Particles.DefineSet("particles", "").
		SetNew("new_particle").
		SetDelete("delete_particle").
		AddGetter("get_state", "mass", "x", "y", "z", "vx", "vy", "vz", "radius").
		AddSetter("set_mass", "mass").
		AddSetter("set_position", "x", "y", "z").
		AddSetter("set_velocity", "vx", "vy", "vz").
		AddSetter("set_radius", "radius").
		AddQuery("get_particles_within", "within")

	defineState(c.State)
	if conv != nil {
		c.Units.SetConverter(conv)
	}
	return g, nil
}

// defineState declares the life cycle of a gravitational dynamics code.
func defineState(m *codeinterface.StateMachine) {
	m.SetInitialState("UNINITIALIZED")
	m.SetAutomatic(true)
	m.AddTransition("UNINITIALIZED", "INITIALIZED", "initialize_code", true)
	m.AddTransition("INITIALIZED", "EDIT", "commit_parameters", true)
	m.AddTransition("EDIT", "RUN", "commit_particles", true)
	m.AddTransition("RUN", "UPDATE", "new_particle", false)
	m.AddTransition("RUN", "UPDATE", "delete_particle", false)
	m.AddTransition("UPDATE", "RUN", "recommit_particles", true)
	m.AddTransition("RUN", "EVOLVED", "evolve_model", false)
	m.AddTransition("EVOLVED", "RUN", "synchronize_model", true)
	m.AddTransitionToMethod("END", "cleanup_code", false)

	m.AddMethod("EVOLVED", "evolve_model")
	m.AddMethod("RUN", "synchronize_model")
	for _, s := range []string{"EDIT", "UPDATE"} {
		m.AddMethod(s, "new_particle")
		m.AddMethod(s, "delete_particle")
	}
	for _, s := range []string{"EDIT", "UPDATE", "RUN"} {
		for _, f := range []string{
			"get_state", "set_state", "get_mass", "set_mass", "get_position", "set_position",
			"get_velocity", "set_velocity", "get_radius", "set_radius",
			"get_particles_within", "get_number_of_particles", "get_total_mass",
		} {
			m.AddMethod(s, f)
		}
	}
	for _, f := range []string{
		"get_kinetic_energy", "get_potential_energy",
		"get_center_of_mass_position", "get_center_of_mass_velocity",
		"get_gravity_at_point", "get_potential_at_point",
	} {
		m.AddMethod("RUN", f)
	}
	params := []string{"get_eps2", "set_eps2", "get_time_step", "set_time_step"}
	for _, spec := range Table.Specifications() {
		if spec.Tag >= TagFirstStopping {
			params = append(params, spec.Name)
		}
	}
	for _, s := range []string{"INITIALIZED", "EDIT", "UPDATE", "RUN", "EVOLVED"} {
		for _, f := range params {
			m.AddMethod(s, f)
		}
		m.AddMethod(s, "get_time")
	}
}

// Particles returns the particles of the code.
func (g *Gravity) Particles() (*datamodel.Particles, error) {
	return g.ParticleSet("particles")
}

// EvolveModel advances the model to t.
func (g *Gravity) EvolveModel(t units.Quantity) error {
	_, err := g.Call("evolve_model", t)
	return err
}

// SynchronizeModel brings every particle to the model time.
func (g *Gravity) SynchronizeModel() error {
	_, err := g.Call("synchronize_model")
	return err
}

// CommitParticles starts the model from the particles added so far.
func (g *Gravity) CommitParticles() error {
	_, err := g.Call("commit_particles")
	return err
}

// Cleanup removes the particles and ends the life cycle of the code.
func (g *Gravity) Cleanup() error {
	_, err := g.Call("cleanup_code")
	return err
}

// ModelTime returns the time of the model.
func (g *Gravity) ModelTime() (units.Quantity, error) { return g.Property("model_time") }

// KineticEnergy returns the kinetic energy of the particles.
func (g *Gravity) KineticEnergy() (units.Quantity, error) { return g.Property("kinetic_energy") }

// PotentialEnergy returns the softened binding energy of the particles.
func (g *Gravity) PotentialEnergy() (units.Quantity, error) { return g.Property("potential_energy") }

// TotalMass returns the mass of all particles.
func (g *Gravity) TotalMass() (units.Quantity, error) { return g.Property("total_mass") }

// CenterOfMass returns the mass weighted mean position.
func (g *Gravity) CenterOfMass() ([]units.Quantity, error) {
	return g.quantities("get_center_of_mass_position")
}

// CenterOfMassVelocity returns the mass weighted mean velocity.
func (g *Gravity) CenterOfMassVelocity() ([]units.Quantity, error) {
	return g.quantities("get_center_of_mass_velocity")
}

// GetGravityAtPoint returns the acceleration due to the particles at each
// point, one array per axis. eps softens the distances.
func (g *Gravity) GetGravityAtPoint(eps, x, y, z units.Array) ([]units.Array, error) {
	out, err := g.Call("get_gravity_at_point", eps, x, y, z)
	if err != nil {
		return nil, err
	}
	return arrays("get_gravity_at_point", out)
}

// GetPotentialAtPoint returns the potential due to the particles at each
// point.
func (g *Gravity) GetPotentialAtPoint(eps, x, y, z units.Array) (units.Array, error) {
	out, err := g.Call("get_potential_at_point", eps, x, y, z)
	if err != nil {
		return units.Array{}, err
	}
	a, err := arrays("get_potential_at_point", out)
	if err != nil {
		return units.Array{}, err
	}
	return a[0], nil
}

func (g *Gravity) quantities(name string) ([]units.Quantity, error) {
	out, err := g.Call(name)
	if err != nil {
		return nil, err
	}
	q := make([]units.Quantity, len(out))
	for i, v := range out {
		var ok bool
		if q[i], ok = v.(units.Quantity); !ok {
			return nil, fmt.Errorf("gravity: %s returned %T", name, v)
		}
	}
	return q, nil
}

func arrays(name string, out []interface{}) ([]units.Array, error) {
	a := make([]units.Array, len(out))
	for i, v := range out {
		var ok bool
		if a[i], ok = v.(units.Array); !ok {
			return nil, fmt.Errorf("gravity: %s returned %T", name, v)
		}
	}
	if len(a) == 0 {
		return nil, fmt.Errorf("gravity: %s returned nothing", name)
	}
	return a, nil
}
