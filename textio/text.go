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

// Package textio reads and writes particle sets as text tables and
// spreadsheets.
//
// A text table has one particle per line. It starts with a header of
// lines that begin with the comment prefix: the first names the
// attributes, the second gives their units. Other header lines and a
// footer of comment lines after the rows are kept as they are.
package textio

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spatialmodel/amuse/datamodel"
	"github.com/spatialmodel/amuse/units"
)

// Table is the layout of a text table.
type Table struct {
	// Comment starts header and footer lines.
	Comment string

	// Separator separates the columns. A single space splits on any run
	// of white space when reading.
	Separator string

	// Precision is the number of digits after the decimal point.
	Precision int

	// Names selects the attributes to write, in order. Nil writes every
	// stored attribute. When reading, non-nil names replace the names in
	// the header.
	Names []string

	// Units are the units to write Names in. Nil writes the stored units.
	Units []*units.Unit

	// Keys adds a column with the particle keys. When reading, a column
	// named "key" always gives the keys.
	Keys bool
}

// Text returns the layout of whitespace separated tables.
func Text() *Table { return &Table{Comment: "#", Separator: " ", Precision: 12} }

// CSV returns the layout of comma separated tables.
func CSV() *Table { return &Table{Comment: "#", Separator: ",", Precision: 12} }

// Document is a particle set with the extra header and footer lines of
// its table, without the comment prefix.
type Document struct {
	Particles *datamodel.Particles
	Header    []string
	Footer    []string
}

// columns returns the names, units and values to write for p.
func (t *Table) columns(p *datamodel.Particles) ([]string, []units.Array, error) {
	names := t.Names
	if names == nil {
		names = p.StoredAttributeNames()
	}
	if t.Units != nil && len(t.Units) != len(names) {
		return nil, nil, fmt.Errorf("textio: %d units for %d attributes", len(t.Units), len(names))
	}
	values, err := p.GetValues(p.Keys(), names)
	if err != nil {
		return nil, nil, err
	}
	if t.Units != nil {
		for i, u := range t.Units {
			if values[i], err = values[i].As(u); err != nil {
				return nil, nil, fmt.Errorf("textio: attribute %s: %v", names[i], err)
			}
		}
	}
	if t.Keys {
		names = append([]string{datamodel.KeyAttribute}, names...)
		values = append([]units.Array{datamodel.References(p.Keys())}, values...)
	}
	return names, values, nil
}

// unitToken writes u without spaces, so that it fits in one column.
func unitToken(u *units.Unit) string {
	if u == nil {
		return "none"
	}
	return strings.Replace(u.String(), " ", "*", -1)
}

func parseUnitToken(s string) (*units.Unit, error) {
	return units.Parse(strings.Replace(s, "*", " ", -1))
}

func (t *Table) format(v float64, u *units.Unit) string {
	if u.IsObjectKey() {
		k, _ := datamodel.ReferencedKeys(units.NewArray([]float64{v}, u))
		return strconv.FormatUint(uint64(k[0]), 10)
	}
	return strconv.FormatFloat(v, 'e', t.Precision, 64)
}

func (t *Table) parse(s string, u *units.Unit) (float64, error) {
	if u.IsObjectKey() {
		k, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return 0, err
		}
		return datamodel.References([]datamodel.Key{datamodel.Key(k)}).Values[0], nil
	}
	return strconv.ParseFloat(s, 64)
}

// Write writes p to w.
func (t *Table) Write(w io.Writer, p *datamodel.Particles) error {
	return t.WriteDocument(w, &Document{Particles: p})
}

// WriteDocument writes d to w.
func (t *Table) WriteDocument(w io.Writer, d *Document) error {
	names, values, err := t.columns(d.Particles)
	if err != nil {
		return err
	}
	unitNames := make([]string, len(values))
	for i, v := range values {
		unitNames[i] = unitToken(v.Unit)
	}
	b := bufio.NewWriter(w)
	header := append([]string{strings.Join(names, t.Separator), strings.Join(unitNames, t.Separator)}, d.Header...)
	for _, line := range header {
		fmt.Fprintf(b, "%s%s\n", t.Comment, line)
	}
	row := make([]string, len(values))
	for i, n := 0, d.Particles.Len(); i < n; i++ {
		for j, v := range values {
			row[j] = t.format(v.Values[i], v.Unit)
		}
		fmt.Fprintln(b, strings.Join(row, t.Separator))
	}
	for _, line := range d.Footer {
		fmt.Fprintf(b, "%s%s\n", t.Comment, line)
	}
	return b.Flush()
}

func (t *Table) split(line string) []string {
	if t.Separator == " " {
		return strings.Fields(line)
	}
	if strings.TrimSpace(line) == "" {
		return nil
	}
	return strings.Split(line, t.Separator)
}

// Read reads a set from r.
func (t *Table) Read(r io.Reader) (*datamodel.Particles, error) {
	d, err := t.ReadDocument(r)
	if err != nil {
		return nil, err
	}
	return d.Particles, nil
}

// ReadDocument reads a set with its extra header and footer lines from r.
func (t *Table) ReadDocument(r io.Reader) (*Document, error) {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 64*1024), 16*1024*1024)
	var header, footer []string
	var rows [][]string
	lineNo := 0
	for s.Scan() {
		lineNo++
		line := strings.TrimRight(s.Text(), "\r")
		if strings.HasPrefix(line, t.Comment) {
			if rows == nil && footer == nil {
				header = append(header, line[len(t.Comment):])
			} else {
				footer = append(footer, line[len(t.Comment):])
			}
			continue
		}
		if footer != nil {
			return nil, fmt.Errorf("textio: line %d: values after the footer", lineNo)
		}
		if cols := t.split(line); len(cols) > 0 {
			rows = append(rows, cols)
		} else if rows == nil {
			rows = [][]string{}
		}
	}
	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("textio: %v", err)
	}

	var names []string
	var unitList []*units.Unit
	if len(header) > 0 {
		names, header = t.split(header[0]), header[1:]
	}
	if len(header) > 0 {
		for _, tok := range t.split(header[0]) {
			u, err := parseUnitToken(tok)
			if err != nil {
				return nil, fmt.Errorf("textio: units: %v", err)
			}
			unitList = append(unitList, u)
		}
		header = header[1:]
	}
	if t.Names != nil {
		names = t.Names
	}
	if unitList == nil {
		for range names {
			unitList = append(unitList, units.None)
		}
	}
	if len(unitList) != len(names) {
		return nil, fmt.Errorf("textio: %d units for %d attributes", len(unitList), len(names))
	}

	values := make([]units.Array, len(names))
	for j := range values {
		values[j] = units.Zeros(len(rows), unitList[j])
	}
	for i, row := range rows {
		if len(row) != len(names) {
			return nil, fmt.Errorf("textio: %d values on row %d, expected %d", len(row), i+1, len(names))
		}
		for j, s := range row {
			v, err := t.parse(s, unitList[j])
			if err != nil {
				return nil, fmt.Errorf("textio: row %d, column %s: %v", i+1, names[j], err)
			}
			values[j].Values[i] = v
		}
	}
	p, err := build(names, values, len(rows))
	if err != nil {
		return nil, err
	}
	return &Document{Particles: p, Header: header, Footer: footer}, nil
}

// build makes a set of n particles from columns, taking the keys from a
// column named "key" if there is one.
func build(names []string, values []units.Array, n int) (*datamodel.Particles, error) {
	for j, name := range names {
		if name != datamodel.KeyAttribute {
			continue
		}
		keys, err := datamodel.ReferencedKeys(values[j])
		if err != nil {
			return nil, fmt.Errorf("textio: key column: %v", err)
		}
		names = append(append([]string(nil), names[:j]...), names[j+1:]...)
		values = append(append([]units.Array(nil), values[:j]...), values[j+1:]...)
		s := datamodel.NewInMemoryStorage()
		if err := s.Add(keys, names, values); err != nil {
			return nil, fmt.Errorf("textio: %v", err)
		}
		var max datamodel.Key
		for _, k := range keys {
			if k > max {
				max = k
			}
		}
		return datamodel.NewParticlesWithStorage(s, datamodel.WithKeys(datamodel.NewSequentialKeys(max))), nil
	}
	p := datamodel.NewParticles(n)
	for j, name := range names {
		if err := p.Assign(name, values[j]); err != nil {
			return nil, fmt.Errorf("textio: %v", err)
		}
	}
	return p, nil
}
