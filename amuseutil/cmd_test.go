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
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spatialmodel/amuse/codes/gravity"
	"github.com/spatialmodel/amuse/store"
	"github.com/spatialmodel/amuse/textio"
	"github.com/spatialmodel/amuse/units"
)

func TestVersion(t *testing.T) {
	var b bytes.Buffer
	Root.SetOutput(&b)
	defer Root.SetOutput(nil)
	Root.SetArgs([]string{"version"})
	if err := Root.Execute(); err != nil {
		t.Fatal(err)
	}
	if want := "amuse v" + Version + "\n"; b.String() != want {
		t.Errorf("%q != %q", b.String(), want)
	}
}

func TestTags(t *testing.T) {
	var b bytes.Buffer
	Root.SetOutput(&b)
	defer Root.SetOutput(nil)
	Root.SetArgs([]string{"tags", "gravity"})
	if err := Root.Execute(); err != nil {
		t.Fatal(err)
	}
	out := b.String()
	if !strings.Contains(out, "\tnew_particle\n") {
		t.Errorf("new_particle missing from\n%s", out)
	}
	if !strings.HasSuffix(out, "fingerprint\t"+gravity.Table.Fingerprint()+"\n") {
		t.Errorf("fingerprint missing from\n%s", out)
	}

	Root.SetArgs([]string{"tags", "sph"})
	if err := Root.Execute(); err == nil {
		t.Error("listed an unknown code")
	}
}

const binary = `#mass x vy radius
#mass length length*time^-1 length
5.000000000000e-01 -5.000000000000e-01 -5.000000000000e-01 0.000000000000e+00
5.000000000000e-01 5.000000000000e-01 5.000000000000e-01 0.000000000000e+00
`

const planet = `#mass x vy
#mass length length*time^-1
1.000000000000e-03 5.000000000000e+00 4.472135955000e-01
`

func writeFile(t *testing.T, dir, name, contents string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestConvert(t *testing.T) {
	dir := t.TempDir()
	in := writeFile(t, dir, "binary.txt", binary)
	steps := []string{"binary.csv", "binary.xlsx", "binary.nc", "copy.nc", "binary.dat"}
	from := in
	for _, name := range steps {
		to := filepath.Join(dir, name)
		if err := Convert(from, to, textio.Text()); err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		from = to
	}
	got, err := readParticles(from)
	if err != nil {
		t.Fatal(err)
	}
	want, err := readParticles(in)
	if err != nil {
		t.Fatal(err)
	}
	if got.Len() != 2 {
		t.Fatalf("%d particles", got.Len())
	}
	for _, name := range []string{"mass", "x", "vy", "radius"} {
		w, _ := want.Get(name)
		g, err := got.Get(name)
		if err != nil {
			t.Fatal(err)
		}
		if !g.Unit.Equal(w.Unit) {
			t.Errorf("%s: unit %s, want %s", name, g.Unit, w.Unit)
		}
		for i := range w.Values {
			if g.Values[i] != w.Values[i] {
				t.Errorf("%s[%d] = %g, want %g", name, i, g.Values[i], w.Values[i])
			}
		}
	}
}

func TestReadScenario(t *testing.T) {
	for name, in := range map[string]string{
		"no systems": `EndTime = "1 time"
Timestep = "0.1 time"`,
		"unknown partner": `EndTime = "1 time"
Timestep = "0.1 time"
[[Systems]]
Name = "a"
Particles = "a.txt"
Partners = ["b"]`,
		"one scale": `EndTime = "1 time"
Timestep = "0.1 time"
MassScale = "1 MSun"
[[Systems]]
Name = "a"
Particles = "a.txt"`,
		"forward without address": `EndTime = "1 time"
Timestep = "0.1 time"
[[Systems]]
Name = "a"
Particles = "a.txt"
Worker = "forward"`,
		"unknown code": `EndTime = "1 time"
Timestep = "0.1 time"
[[Systems]]
Name = "a"
Code = "sph"
Particles = "a.txt"`,
	} {
		if _, err := ReadScenario(strings.NewReader(in)); err == nil {
			t.Errorf("%s: no error", name)
		}
	}

	s, err := ReadScenario(strings.NewReader(`EndTime = "1 time"
Timestep = "0.1 time"
MassScale = "1 MSun"
LengthScale = "1 AU"
[[Systems]]
Name = "a"
Particles = "a.txt"`))
	if err != nil {
		t.Fatal(err)
	}
	if s.Systems[0].Code != "gravity" {
		t.Errorf("default code %q", s.Systems[0].Code)
	}
	conv, err := s.converter()
	if err != nil {
		t.Fatal(err)
	}
	m, err := conv.FromSourceToTarget(units.New(1, units.NBodyMass))
	if err != nil {
		t.Fatal(err)
	}
	if v, err := m.In(units.MSun); err != nil || v < 0.999999 || v > 1.000001 {
		t.Errorf("unit mass is %v (%v)", m, err)
	}
}

func scenario(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	b := writeFile(t, dir, "binary.txt", binary)
	p := writeFile(t, dir, "planet.csv", strings.Replace(planet, " ", ",", -1))
	return dir, `EndTime = "1 time"
Timestep = "0.01 time"
OutputInterval = "0.25 time"
SnapshotFile = "` + filepath.Join(dir, "snapshots.nc") + `"
EnergyPlot = "` + filepath.Join(dir, "energy.png") + `"

[[Systems]]
Name = "binary"
Particles = "` + b + `"
Partners = ["planet"]

[[Systems]]
Name = "planet"
Particles = "` + p + `"
Partners = ["binary"]
`
}

func TestRunInProcess(t *testing.T) {
	dir, toml := scenario(t)
	s, err := ReadScenario(strings.NewReader(toml))
	if err != nil {
		t.Fatal(err)
	}
	r, err := Run(context.Background(), s)
	if err != nil {
		t.Fatal(err)
	}
	if r.Particles.Len() != 3 {
		t.Errorf("%d particles at the end", r.Particles.Len())
	}
	if len(r.Snapshots) != 5 {
		t.Fatalf("%d snapshots", len(r.Snapshots))
	}
	if r.MaxEnergyError > 1e-2 {
		t.Errorf("energy error %g", r.MaxEnergyError)
	}
	if last, _ := r.Snapshots[4].Time.In(units.NBodyTime); last != 1 {
		t.Errorf("last snapshot at %v", r.Snapshots[4].Time)
	}

	f, err := os.Open(filepath.Join(dir, "snapshots.nc"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	groups, err := store.Read(f)
	if err != nil {
		t.Fatal(err)
	}
	if len(groups) != 5 {
		t.Errorf("%d groups in the snapshot file", len(groups))
	}
	for i, g := range groups {
		if g.Particles == nil || g.Particles.Len() != 3 {
			t.Errorf("group %d does not hold the three particles", i)
		}
		if _, ok := g.Attributes["energy_error"]; !ok {
			t.Errorf("group %d has no energy error", i)
		}
	}
	if fi, err := os.Stat(filepath.Join(dir, "energy.png")); err != nil || fi.Size() == 0 {
		t.Errorf("no energy plot: %v", err)
	}
}

func TestRunCommand(t *testing.T) {
	dir, toml := scenario(t)
	path := writeFile(t, dir, "scenario.toml", toml)
	var b bytes.Buffer
	Root.SetOutput(&b)
	defer Root.SetOutput(nil)
	Cfg.Set("scenario", path)
	defer Cfg.Set("scenario", "")
	Root.SetArgs([]string{"run"})
	if err := Root.Execute(); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(b.String(), "maximum relative energy error: ") {
		t.Errorf("output %q", b.String())
	}
}
