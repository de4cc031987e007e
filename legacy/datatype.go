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

import (
	"fmt"
	"strings"
)

// DataType is the type of the values of a parameter on the wire.
type DataType int

// Supported data types.
const (
	Int32 DataType = iota
	Float64
	Float32
	String
	Bool
	Int64
)

var dataTypeNames = [...]string{
	Int32:   "int32",
	Float64: "float64",
	Float32: "float32",
	String:  "string",
	Bool:    "bool",
	Int64:   "int64",
}

var dataTypeCodes = map[string]DataType{
	"i": Int32,
	"d": Float64,
	"f": Float32,
	"s": String,
	"b": Bool,
	"l": Int64,
}

func (d DataType) String() string {
	if d < 0 || int(d) >= len(dataTypeNames) {
		return fmt.Sprintf("DataType(%d)", int(d))
	}
	return dataTypeNames[d]
}

// cName returns the name of the type in function signatures.
func (d DataType) cName() string {
	switch d {
	case Int32:
		return "int"
	case Float64:
		return "double"
	case Float32:
		return "float"
	case String:
		return "char *"
	case Bool:
		return "bool"
	case Int64:
		return "long long"
	}
	return d.String()
}

// ParseDataType accepts a canonical type name or its one-letter code
// ("i", "d", "f", "s", "b", "l").
func ParseDataType(s string) (DataType, error) {
	s = strings.TrimSpace(s)
	if d, ok := dataTypeCodes[s]; ok {
		return d, nil
	}
	for i, n := range dataTypeNames {
		if n == s {
			return DataType(i), nil
		}
	}
	return 0, fmt.Errorf("legacy: %q is not a valid typecode", s)
}

// Direction tells whether a parameter is sent to the worker, returned by
// it, or both.
type Direction int

// Parameter directions. A Length parameter is not sent; the worker
// receives the number of entities in the call in its place.
const (
	In Direction = iota
	Out
	InOut
	Length
)

func (d Direction) String() string {
	switch d {
	case In:
		return "IN"
	case Out:
		return "OUT"
	case InOut:
		return "INOUT"
	case Length:
		return "LENGTH"
	}
	return fmt.Sprintf("Direction(%d)", int(d))
}

// IsInput reports whether values travel from the host to the worker.
func (d Direction) IsInput() bool { return d == In || d == InOut }

// IsOutput reports whether values travel from the worker to the host.
func (d Direction) IsOutput() bool { return d == Out || d == InOut }
