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

package amuseutil

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spatialmodel/amuse/units"
)

// Scenario describes a coupled run.
type Scenario struct {
	// MassScale and LengthScale, if set, convert between the N-body units
	// of the codes and the units of the particle files, for example
	// "1 MSun" and "1 AU".
	MassScale, LengthScale string

	// TimeUnit is the unit that times are logged and plotted in.
	TimeUnit string

	// EndTime is the model time the run ends at.
	EndTime string

	// Timestep is the bridge timestep.
	Timestep string

	// OutputInterval is the model time between snapshots. By default a
	// snapshot is only taken at the end.
	OutputInterval string

	// SnapshotFile is the netCDF file the snapshots are written to.
	SnapshotFile string

	// EnergyPlot is the file the energy error plot is written to. Its
	// extension gives the image format.
	EnergyPlot string

	// StartupTimeout is how long worker processes may take to connect.
	StartupTimeout string

	Systems []System
}

// System is a code in a scenario.
type System struct {
	// Name identifies the system in Partners and in the log.
	Name string

	// Code is the name of the code. It defaults to "gravity".
	Code string

	// Particles is the file holding the initial particles.
	Particles string

	// Worker is where the code runs: "inprocess" (the default), "process"
	// for a worker process, or "forward" for a forwarding server at
	// Address.
	Worker  string
	Address string

	// Partners are the systems whose gravity kicks this one.
	Partners []string
}

// ReadScenario reads a scenario from TOML.
func ReadScenario(r io.Reader) (*Scenario, error) {
	s := new(Scenario)
	if _, err := toml.DecodeReader(r, s); err != nil {
		return nil, fmt.Errorf("amuse: reading scenario: %v", err)
	}
	return s, s.check()
}

// ReadScenarioFile reads a scenario from a TOML file. Environment
// variables in the file paths it names are expanded.
func ReadScenarioFile(path string) (*Scenario, error) {
	f, err := os.Open(os.ExpandEnv(path))
	if err != nil {
		return nil, fmt.Errorf("amuse: %v", err)
	}
	defer f.Close()
	s, err := ReadScenario(f)
	if err != nil {
		return nil, err
	}
	s.SnapshotFile = os.ExpandEnv(s.SnapshotFile)
	s.EnergyPlot = os.ExpandEnv(s.EnergyPlot)
	for i := range s.Systems {
		s.Systems[i].Particles = os.ExpandEnv(s.Systems[i].Particles)
	}
	return s, nil
}

func (s *Scenario) check() error {
	if len(s.Systems) == 0 {
		return fmt.Errorf("amuse: scenario has no systems")
	}
	if s.EndTime == "" || s.Timestep == "" {
		return fmt.Errorf("amuse: scenario needs EndTime and Timestep")
	}
	if (s.MassScale == "") != (s.LengthScale == "") {
		return fmt.Errorf("amuse: scenario needs both MassScale and LengthScale, or neither")
	}
	names := make(map[string]bool)
	for i, sys := range s.Systems {
		if sys.Name == "" {
			return fmt.Errorf("amuse: system %d has no name", i)
		}
		if names[sys.Name] {
			return fmt.Errorf("amuse: duplicate system %q", sys.Name)
		}
		names[sys.Name] = true
		if sys.Particles == "" {
			return fmt.Errorf("amuse: system %q has no particles", sys.Name)
		}
		if sys.Code == "" {
			s.Systems[i].Code = "gravity"
		}
		if _, err := lookupCode(s.Systems[i].Code); err != nil {
			return err
		}
		switch sys.Worker {
		case "", "inprocess", "process":
		case "forward":
			if sys.Address == "" {
				return fmt.Errorf("amuse: system %q is forwarded but has no address", sys.Name)
			}
		default:
			return fmt.Errorf("amuse: system %q: unknown worker %q", sys.Name, sys.Worker)
		}
	}
	for _, sys := range s.Systems {
		for _, p := range sys.Partners {
			if !names[p] {
				return fmt.Errorf("amuse: system %q has unknown partner %q", sys.Name, p)
			}
			if p == sys.Name {
				return fmt.Errorf("amuse: system %q is its own partner", sys.Name)
			}
		}
	}
	return nil
}

// converter returns the converter of the scenario, or nil.
func (s *Scenario) converter() (units.Converter, error) {
	if s.MassScale == "" {
		return nil, nil
	}
	m, err := parseQuantity(s.MassScale)
	if err != nil {
		return nil, err
	}
	l, err := parseQuantity(s.LengthScale)
	if err != nil {
		return nil, err
	}
	c, err := units.NewNBodyConverter(m, l)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// parseQuantity parses a value followed by a unit, such as "0.5 km s^-1".
// A value without a unit is dimensionless.
func parseQuantity(s string) (units.Quantity, error) {
	f := strings.Fields(s)
	if len(f) == 0 {
		return units.Quantity{}, fmt.Errorf("amuse: empty quantity")
	}
	v, err := strconv.ParseFloat(f[0], 64)
	if err != nil {
		return units.Quantity{}, fmt.Errorf("amuse: quantity %q: %v", s, err)
	}
	u, err := units.Parse(strings.Join(f[1:], " "))
	if err != nil {
		return units.Quantity{}, err
	}
	return units.New(v, u), nil
}
