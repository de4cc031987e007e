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

package message

import "fmt"

// Split divides m into consecutive messages addressing at most max
// entities each. Every typed array must hold a whole number of
// parameters of m.Length values each. A message that already fits is
// returned as the only element.
func (m *Message) Split(max int) ([]*Message, error) {
	n := int(m.Length)
	if max <= 0 || n <= max {
		return []*Message{m}, nil
	}
	if err := m.checkShape(); err != nil {
		return nil, err
	}
	var parts []*Message
	for begin := 0; begin < n; begin += max {
		end := begin + max
		if end > n {
			end = n
		}
		parts = append(parts, &Message{
			Tag:      m.Tag,
			Length:   int32(end - begin),
			Doubles:  chunk(m.Doubles, n, begin, end),
			Ints:     chunk(m.Ints, n, begin, end),
			Floats:   chunk(m.Floats, n, begin, end),
			Strings:  chunk(m.Strings, n, begin, end),
			Booleans: chunk(m.Booleans, n, begin, end),
			Longs:    chunk(m.Longs, n, begin, end),
		})
	}
	return parts, nil
}

func (m *Message) checkShape() error {
	n := int(m.Length)
	for _, c := range []struct {
		name string
		len  int
	}{
		{"doubles", len(m.Doubles)},
		{"ints", len(m.Ints)},
		{"floats", len(m.Floats)},
		{"strings", len(m.Strings)},
		{"booleans", len(m.Booleans)},
		{"longs", len(m.Longs)},
	} {
		if n == 0 && c.len != 0 || n != 0 && c.len%n != 0 {
			return fmt.Errorf("message: %d %s is not a multiple of length %d", c.len, c.name, n)
		}
	}
	return nil
}

// chunk returns rows [begin,end) of every parameter in s.
func chunk[T any](s []T, length, begin, end int) []T {
	if len(s) == 0 {
		return nil
	}
	params := len(s) / length
	out := make([]T, 0, params*(end-begin))
	for p := 0; p < params; p++ {
		out = append(out, s[p*length+begin:p*length+end]...)
	}
	return out
}

// Join concatenates the replies to a split call back into one message,
// keeping the values of every parameter together and in order.
func Join(parts []*Message) (*Message, error) {
	if len(parts) == 0 {
		return nil, fmt.Errorf("message: nothing to join")
	}
	if len(parts) == 1 {
		return parts[0], nil
	}
	out := &Message{Tag: parts[0].Tag}
	for _, p := range parts {
		if p.Tag != out.Tag {
			return nil, fmt.Errorf("message: cannot join tags %d and %d", out.Tag, p.Tag)
		}
		if err := p.checkShape(); err != nil {
			return nil, err
		}
		out.Length += p.Length
	}
	var err error
	if out.Doubles, err = join(parts, func(m *Message) []float64 { return m.Doubles }); err != nil {
		return nil, err
	}
	if out.Ints, err = join(parts, func(m *Message) []int32 { return m.Ints }); err != nil {
		return nil, err
	}
	if out.Floats, err = join(parts, func(m *Message) []float32 { return m.Floats }); err != nil {
		return nil, err
	}
	if out.Strings, err = join(parts, func(m *Message) []string { return m.Strings }); err != nil {
		return nil, err
	}
	if out.Booleans, err = join(parts, func(m *Message) []bool { return m.Booleans }); err != nil {
		return nil, err
	}
	if out.Longs, err = join(parts, func(m *Message) []int64 { return m.Longs }); err != nil {
		return nil, err
	}
	return out, nil
}

func join[T any](parts []*Message, get func(*Message) []T) ([]T, error) {
	params := -1
	total := 0
	for _, p := range parts {
		s := get(p)
		total += len(s)
		if p.Length == 0 {
			continue
		}
		np := len(s) / int(p.Length)
		if params >= 0 && np != params {
			return nil, fmt.Errorf("message: parts disagree on the number of %T parameters (%d != %d)", s, params, np)
		}
		params = np
	}
	if total == 0 {
		return nil, nil
	}
	out := make([]T, 0, total)
	for i := 0; i < params; i++ {
		for _, p := range parts {
			n := int(p.Length)
			if n == 0 {
				continue
			}
			out = append(out, get(p)[i*n:(i+1)*n]...)
		}
	}
	return out, nil
}
