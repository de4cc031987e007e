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
	"os"
	"path/filepath"
	"strings"

	"github.com/spatialmodel/amuse/datamodel"
	"github.com/spatialmodel/amuse/store"
	"github.com/spatialmodel/amuse/textio"
	"github.com/spatialmodel/amuse/units"
	"github.com/spf13/cobra"
)

var convertCmd = &cobra.Command{
	Use:   "convert input output",
	Short: "Convert particle files between formats",
	Long: `convert reads a particle set and writes it in the format given by the
extension of the output path: ".txt" or ".dat" for text tables, ".csv"
for comma separated tables, ".xlsx" for spreadsheets and ".nc" for
netCDF files. The savepoints of a netCDF input are kept if the output is
also netCDF.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		tab := textio.Text()
		tab.Precision = Cfg.GetInt("precision")
		tab.Keys = Cfg.GetBool("keys")
		return Convert(args[0], args[1], tab)
	},
	DisableAutoGenTag: true,
}

// Convert converts the particle file in to out. tab sets the layout of
// text output; its separator is replaced for CSV.
func Convert(in, out string, tab *textio.Table) error {
	if format(in) == "nc" && format(out) == "nc" {
		p, g, err := store.LoadParticles(in)
		if err != nil {
			return err
		}
		return store.SaveParticles(out, p, g.Time, g.Attributes)
	}
	p, err := readParticles(in)
	if err != nil {
		return err
	}
	return writeParticles(out, p, tab)
}

// format returns the file format implied by the extension of path.
func format(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return "csv"
	case ".xlsx":
		return "xlsx"
	case ".nc":
		return "nc"
	default:
		return "text"
	}
}

func readParticles(path string) (*datamodel.Particles, error) {
	if format(path) == "nc" {
		p, _, err := store.LoadParticles(path)
		return p, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("amuse: %v", err)
	}
	defer f.Close()
	switch format(path) {
	case "csv":
		return textio.CSV().Read(f)
	case "xlsx":
		return textio.Text().ReadXLSX(f)
	default:
		return textio.Text().Read(f)
	}
}

func writeParticles(path string, p *datamodel.Particles, tab *textio.Table) error {
	if format(path) == "nc" {
		return store.SaveParticles(path, p, units.New(0, units.S), nil)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("amuse: %v", err)
	}
	t := *tab
	switch format(path) {
	case "csv":
		t.Separator = ","
		err = t.Write(f, p)
	case "xlsx":
		err = t.WriteXLSX(f, p)
	default:
		err = t.Write(f, p)
	}
	if err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
