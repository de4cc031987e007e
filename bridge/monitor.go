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

package bridge

import (
	"fmt"
	"io"
	"math"

	"github.com/GaryBoone/GoStats/stats"
	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/amuse/units"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// EnergySystem is a system whose total energy is monitored.
type EnergySystem interface {
	Energetic
	Timer
}

// EnergyMonitor follows the relative error in the total energy of a
// system over a run.
type EnergyMonitor struct {
	Log    logrus.FieldLogger
	System EnergySystem

	// TimeUnit is the unit of the recorded times.
	TimeUnit *units.Unit

	initial units.Quantity
	times   []float64
	errs    []float64
	stats   stats.Stats
}

// NewEnergyMonitor records the current energy of sys as the reference.
func NewEnergyMonitor(sys EnergySystem, timeUnit *units.Unit) (*EnergyMonitor, error) {
	m := &EnergyMonitor{Log: logrus.StandardLogger(), System: sys, TimeUnit: timeUnit}
	e, err := m.total()
	if err != nil {
		return nil, err
	}
	if e.Value == 0 {
		return nil, fmt.Errorf("bridge: cannot monitor a system with zero energy")
	}
	m.initial = e
	return m, nil
}

func (m *EnergyMonitor) total() (units.Quantity, error) {
	k, err := m.System.KineticEnergy()
	if err != nil {
		return units.Quantity{}, err
	}
	p, err := m.System.PotentialEnergy()
	if err != nil {
		return units.Quantity{}, err
	}
	return k.Add(p)
}

// Initial returns the reference energy.
func (m *EnergyMonitor) Initial() units.Quantity { return m.initial }

// Record samples the energy of the system and returns its relative error.
func (m *EnergyMonitor) Record() (float64, error) {
	e, err := m.total()
	if err != nil {
		return 0, err
	}
	v, err := e.In(m.initial.Unit)
	if err != nil {
		return 0, err
	}
	t, err := m.System.ModelTime()
	if err != nil {
		return 0, err
	}
	tv, err := t.In(m.TimeUnit)
	if err != nil {
		return 0, err
	}
	rel := (v - m.initial.Value) / math.Abs(m.initial.Value)
	m.times = append(m.times, tv)
	m.errs = append(m.errs, rel)
	m.stats.Update(math.Abs(rel))
	m.Log.WithFields(logrus.Fields{
		"time":         tv,
		"energy":       e.String(),
		"energy_error": rel,
	}).Info("energy")
	return rel, nil
}

// Count returns the number of samples.
func (m *EnergyMonitor) Count() int { return m.stats.Count() }

// MaxError returns the largest absolute relative error recorded.
func (m *EnergyMonitor) MaxError() float64 {
	if m.stats.Count() == 0 {
		return 0
	}
	return m.stats.Max()
}

// MeanError returns the mean absolute relative error.
func (m *EnergyMonitor) MeanError() float64 {
	if m.stats.Count() == 0 {
		return 0
	}
	return m.stats.Mean()
}

// Series returns the sampled times and relative errors.
func (m *EnergyMonitor) Series() (times, errs []float64) {
	return append([]float64(nil), m.times...), append([]float64(nil), m.errs...)
}

// Plot returns a plot of the relative energy error against time.
func (m *EnergyMonitor) Plot() (*plot.Plot, error) {
	p, err := plot.New()
	if err != nil {
		return nil, err
	}
	p.Title.Text = "Energy error"
	p.X.Label.Text = fmt.Sprintf("time (%s)", m.TimeUnit)
	p.Y.Label.Text = "(E - E0) / |E0|"
	xy := make(plotter.XYs, len(m.times))
	for i := range m.times {
		xy[i].X = m.times[i]
		xy[i].Y = m.errs[i]
	}
	l, err := plotter.NewLine(xy)
	if err != nil {
		return nil, err
	}
	p.Add(l)
	return p, nil
}

// WritePlot writes the plot in the given image format ("png", "svg",
// "pdf", ...) to w.
func (m *EnergyMonitor) WritePlot(w io.Writer, width, height vg.Length, format string) error {
	p, err := m.Plot()
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(width, height, format)
	if err != nil {
		return err
	}
	_, err = wt.WriteTo(w)
	return err
}
