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

package textio

import (
	"fmt"
	"io"
	"io/ioutil"
	"strconv"

	"github.com/spatialmodel/amuse/datamodel"
	"github.com/spatialmodel/amuse/units"
	"github.com/tealeg/xlsx"
)

// Sheet is the name of the worksheet holding the particles.
const Sheet = "particles"

// WriteXLSX writes p to w as a spreadsheet with the keys in the first
// column, attribute names in the first row and units in the second.
func (t *Table) WriteXLSX(w io.Writer, p *datamodel.Particles) error {
	tt := *t
	tt.Keys = true
	names, values, err := tt.columns(p)
	if err != nil {
		return err
	}
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(Sheet)
	if err != nil {
		return fmt.Errorf("textio: %v", err)
	}
	row := sheet.AddRow()
	for _, n := range names {
		row.AddCell().SetString(n)
	}
	row = sheet.AddRow()
	for _, v := range values {
		row.AddCell().SetString(unitToken(v.Unit))
	}
	for i, n := 0, p.Len(); i < n; i++ {
		row = sheet.AddRow()
		for _, v := range values {
			cell := row.AddCell()
			if v.Unit.IsObjectKey() {
				// Keys are written as decimal integers.
				cell.SetString(t.format(v.Values[i], v.Unit))
			} else {
				cell.SetFloat(v.Values[i])
			}
		}
	}
	return f.Write(w)
}

// ReadXLSX reads a set from a spreadsheet written by WriteXLSX.
func (t *Table) ReadXLSX(r io.Reader) (*datamodel.Particles, error) {
	b, err := ioutil.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("textio: %v", err)
	}
	f, err := xlsx.OpenBinary(b)
	if err != nil {
		return nil, fmt.Errorf("textio: %v", err)
	}
	s, ok := f.Sheet[Sheet]
	if !ok {
		return nil, fmt.Errorf("textio: spreadsheet has no sheet %q", Sheet)
	}
	if len(s.Rows) < 2 {
		return nil, fmt.Errorf("textio: sheet %q has no header", Sheet)
	}
	var names []string
	for _, c := range s.Rows[0].Cells {
		names = append(names, c.Value)
	}
	if len(s.Rows[1].Cells) != len(names) {
		return nil, fmt.Errorf("textio: %d units for %d attributes", len(s.Rows[1].Cells), len(names))
	}
	unitList := make([]*units.Unit, len(names))
	for j, c := range s.Rows[1].Cells {
		if unitList[j], err = parseUnitToken(c.Value); err != nil {
			return nil, fmt.Errorf("textio: units: %v", err)
		}
	}

	var rows []*xlsx.Row
	for _, row := range s.Rows[2:] {
		// Skip blank rows.
		if len(row.Cells) == 0 {
			continue
		}
		rows = append(rows, row)
	}
	values := make([]units.Array, len(names))
	for j := range values {
		values[j] = units.Zeros(len(rows), unitList[j])
	}
	for i, row := range rows {
		if len(row.Cells) != len(names) {
			return nil, fmt.Errorf("textio: %d values on row %d, expected %d", len(row.Cells), i+3, len(names))
		}
		for j, c := range row.Cells {
			var v float64
			if unitList[j].IsObjectKey() {
				v, err = t.parse(c.Value, unitList[j])
			} else {
				v, err = strconv.ParseFloat(c.Value, 64)
			}
			if err != nil {
				return nil, fmt.Errorf("textio: row %d, column %s: %v", i+3, names[j], err)
			}
			values[j].Values[i] = v
		}
	}
	return build(names, values, len(rows))
}
