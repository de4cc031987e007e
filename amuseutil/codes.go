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
	"sort"
	"strings"

	"github.com/spatialmodel/amuse/codes/gravity"
	"github.com/spatialmodel/amuse/legacy"
	"github.com/spatialmodel/amuse/worker"
)

// code is a code that the command can serve as a worker.
type code struct {
	table  *legacy.Table
	server func() *worker.Server
}

var codes = map[string]code{
	"gravity": {table: gravity.Table, server: gravity.NewServer},
}

func lookupCode(name string) (code, error) {
	c, ok := codes[name]
	if !ok {
		var names []string
		for n := range codes {
			names = append(names, n)
		}
		sort.Strings(names)
		return code{}, fmt.Errorf("amuse: unknown code %q; available codes are %s", name, strings.Join(names, ", "))
	}
	return c, nil
}
