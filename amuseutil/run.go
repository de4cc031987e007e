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
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/amuse/bridge"
	"github.com/spatialmodel/amuse/channel"
	"github.com/spatialmodel/amuse/codes/gravity"
	"github.com/spatialmodel/amuse/datamodel"
	"github.com/spatialmodel/amuse/store"
	"github.com/spatialmodel/amuse/units"
	"github.com/spf13/cast"
	"github.com/spf13/cobra"
	"gonum.org/v1/plot/vg"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a scenario",
	Long: `run starts the codes of the scenario given with --scenario, loads their
particles, couples them with a bridge and evolves them to the end time,
writing snapshots and the energy error as it goes.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logw, err := checkLogFile(Cfg.GetString("LogFile"))
		if err != nil {
			return err
		}
		defer logw.Close()
		path := Cfg.GetString("scenario")
		if path == "" {
			return fmt.Errorf("amuse: no scenario given")
		}
		s, err := ReadScenarioFile(path)
		if err != nil {
			return err
		}
		if s.StartupTimeout == "" {
			s.StartupTimeout = Cfg.GetString("startup_timeout")
		}
		stopMetrics, err := serveMetrics(Cfg.GetString("metrics"))
		if err != nil {
			return err
		}
		defer stopMetrics()
		r, err := Run(context.Background(), s)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "maximum relative energy error: %g\n", r.MaxEnergyError)
		return nil
	},
	DisableAutoGenTag: true,
}

// Result is the outcome of a run.
type Result struct {
	// Particles are the particles of every system at the end time.
	Particles *datamodel.Particles

	// Snapshots are the snapshots taken, the first at time zero.
	Snapshots []store.Group

	MaxEnergyError, MeanEnergyError float64
}

// runner holds the state of a run.
type runner struct {
	s     *Scenario
	conv  units.Converter
	opts  []channel.Option
	codes map[string]*gravity.Gravity
	keys  *datamodel.SequentialKeys
	log   logrus.FieldLogger
}

// Run runs scenario s.
func Run(ctx context.Context, s *Scenario) (*Result, error) {
	r := &runner{
		s:     s,
		codes: make(map[string]*gravity.Gravity),
		keys:  new(datamodel.SequentialKeys),
		log:   logrus.StandardLogger(),
	}
	var err error
	if r.conv, err = s.converter(); err != nil {
		return nil, err
	}
	end, err := parseQuantity(s.EndTime)
	if err != nil {
		return nil, err
	}
	dt, err := parseQuantity(s.Timestep)
	if err != nil {
		return nil, err
	}
	interval := end
	if s.OutputInterval != "" {
		if interval, err = parseQuantity(s.OutputInterval); err != nil {
			return nil, err
		}
		if interval.Value <= 0 {
			return nil, fmt.Errorf("amuse: OutputInterval must be positive")
		}
	}
	timeUnit := end.Unit
	if s.TimeUnit != "" {
		if timeUnit, err = units.Parse(s.TimeUnit); err != nil {
			return nil, err
		}
	}
	r.opts = []channel.Option{channel.WithLogger(r.log)}
	if s.StartupTimeout != "" {
		d, err := cast.ToDurationE(s.StartupTimeout)
		if err != nil {
			return nil, fmt.Errorf("amuse: StartupTimeout: %v", err)
		}
		r.opts = append(r.opts, channel.WithStartupTimeout(d))
	}

	defer r.stop()
	for _, sys := range s.Systems {
		if err := r.start(ctx, sys); err != nil {
			return nil, err
		}
	}
	b := bridge.New(bridge.WithTimestep(dt), bridge.WithLogger(r.log))
	for _, sys := range s.Systems {
		var partners []bridge.FieldCode
		for _, p := range sys.Partners {
			partners = append(partners, r.codes[p])
		}
		if err := b.AddSystem(r.codes[sys.Name], partners...); err != nil {
			return nil, err
		}
	}
	monitor, err := bridge.NewEnergyMonitor(b, timeUnit)
	if err != nil {
		return nil, err
	}
	monitor.Log = r.log

	res := new(Result)
	if err := r.snapshot(res, b, units.New(0, end.Unit), 0); err != nil {
		return nil, err
	}
	for i := 1; ; i++ {
		t := interval.Scale(float64(i))
		c, err := t.Compare(end)
		if err != nil {
			return nil, err
		}
		if c >= 0 {
			t = end
		}
		start := time.Now()
		if err := b.EvolveModel(t); err != nil {
			return nil, err
		}
		e, err := monitor.Record()
		if err != nil {
			return nil, err
		}
		tt, _ := t.In(timeUnit)
		r.log.WithFields(logrus.Fields{
			"time":         tt,
			"energy error": e,
			"walltime":     time.Since(start),
		}).Info("evolved")
		if err := r.snapshot(res, b, t, e); err != nil {
			return nil, err
		}
		if c >= 0 {
			break
		}
	}
	res.MaxEnergyError = monitor.MaxError()
	res.MeanEnergyError = monitor.MeanError()
	if res.Particles, err = b.Particles(); err != nil {
		return nil, err
	}
	if res.Particles, err = res.Particles.Copy(); err != nil {
		return nil, err
	}

	if s.SnapshotFile != "" {
		if err := writeSnapshots(s.SnapshotFile, res.Snapshots); err != nil {
			return nil, err
		}
	}
	if s.EnergyPlot != "" {
		if err := writeEnergyPlot(s.EnergyPlot, monitor); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// start starts the code of sys and loads its particles.
func (r *runner) start(ctx context.Context, sys System) error {
	var g *gravity.Gravity
	var err error
	c, _ := lookupCode(sys.Code)
	switch sys.Worker {
	case "", "inprocess":
		ch, w := channel.Pipe(r.opts...)
		go c.server().Serve(w)
		g, err = gravity.New(ch, r.conv)
	case "process":
		var exe string
		if exe, err = os.Executable(); err != nil {
			return fmt.Errorf("amuse: %v", err)
		}
		g, err = gravity.Launch(ctx, exe, []string{"worker", sys.Code}, r.conv, r.opts...)
	case "forward":
		opts := append([]channel.Option{channel.WithFingerprint(c.table.Fingerprint())}, r.opts...)
		ch := channel.NewForwardChannel(sys.Address, opts...)
		if err = ch.Start(ctx); err != nil {
			return fmt.Errorf("amuse: system %s: connecting to %s: %v", sys.Name, sys.Address, err)
		}
		g, err = gravity.New(ch, r.conv)
	}
	if err != nil {
		return fmt.Errorf("amuse: system %s: %v", sys.Name, err)
	}
	r.codes[sys.Name] = g

	p, err := readParticles(sys.Particles)
	if err != nil {
		return fmt.Errorf("amuse: system %s: %v", sys.Name, err)
	}
	p, err = r.rekey(p)
	if err != nil {
		return err
	}
	set, err := g.Particles()
	if err != nil {
		return err
	}
	if _, err := set.AddParticles(p); err != nil {
		return fmt.Errorf("amuse: system %s: %v", sys.Name, err)
	}
	r.log.WithFields(logrus.Fields{"system": sys.Name, "particles": p.Len(), "worker": sys.Worker}).Info("started code")
	return nil
}

// rekey copies p into a set with keys from the run's generator, so that
// the particles of different files do not share keys.
func (r *runner) rekey(p *datamodel.Particles) (*datamodel.Particles, error) {
	out := datamodel.NewParticles(p.Len(), datamodel.WithKeys(r.keys))
	for _, name := range p.StoredAttributeNames() {
		a, err := p.Get(name)
		if err != nil {
			return nil, err
		}
		if a.Unit.IsObjectKey() {
			continue
		}
		if err := out.Assign(name, a); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *runner) snapshot(res *Result, b *bridge.Bridge, t units.Quantity, energyError float64) error {
	p, err := b.Particles()
	if err != nil {
		return err
	}
	c, err := p.Copy()
	if err != nil {
		return err
	}
	res.Snapshots = append(res.Snapshots, store.Group{
		Time:       t,
		Particles:  c,
		Attributes: map[string]units.Quantity{"energy_error": units.New(energyError, units.None)},
	})
	return nil
}

func (r *runner) stop() {
	for name, g := range r.codes {
		if err := g.Stop(); err != nil {
			r.log.WithField("system", name).Warnf("stopping code: %v", err)
		}
	}
}

func writeSnapshots(path string, groups []store.Group) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("amuse: %v", err)
	}
	if err := store.Write(f, groups); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writeEnergyPlot(path string, m *bridge.EnergyMonitor) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("amuse: %v", err)
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if err := m.WritePlot(f, 6*vg.Inch, 4*vg.Inch, ext); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
