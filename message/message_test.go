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

import (
	"bytes"
	"fmt"
	"io"
	"math/rand"
	"testing"

	"github.com/kr/pretty"
)

func randomMessage(r *rand.Rand, length int) *Message {
	m := New(r.Int31(), length)
	m.Doubles = make([]float64, 2*length)
	for i := range m.Doubles {
		m.Doubles[i] = r.NormFloat64()
	}
	m.Ints = make([]int32, length)
	for i := range m.Ints {
		m.Ints[i] = r.Int31() - 1<<30
	}
	m.Floats = make([]float32, length)
	for i := range m.Floats {
		m.Floats[i] = r.Float32()
	}
	m.Strings = make([]string, length)
	for i := range m.Strings {
		b := make([]byte, r.Intn(12))
		for j := range b {
			b[j] = byte('a' + r.Intn(26))
		}
		m.Strings[i] = string(b)
	}
	m.Booleans = make([]bool, 3*length)
	for i := range m.Booleans {
		m.Booleans[i] = r.Intn(2) == 1
	}
	m.Longs = make([]int64, length)
	for i := range m.Longs {
		m.Longs[i] = r.Int63() - 1<<62
	}
	if length == 0 {
		*m = Message{Tag: m.Tag}
	}
	return m
}

func TestRoundTrip(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for _, n := range []int{0, 1, 5, 1000} {
		t.Run(fmt.Sprint(n), func(t *testing.T) {
			want := randomMessage(r, n)
			var buf bytes.Buffer
			written, err := want.WriteTo(&buf)
			if err != nil {
				t.Fatal(err)
			}
			if int(written) != buf.Len() {
				t.Errorf("WriteTo reported %d bytes, wrote %d", written, buf.Len())
			}
			got := new(Message)
			if _, err := got.ReadFrom(&buf); err != nil {
				t.Fatal(err)
			}
			if !got.Equal(want) {
				t.Errorf("round trip mismatch: %v", pretty.Diff(got, want))
			}
			if buf.Len() != 0 {
				t.Errorf("%d bytes left over", buf.Len())
			}
		})
	}
}

func TestEmptyStrings(t *testing.T) {
	want := &Message{Tag: 3, Length: 3, Strings: []string{"", "x", ""}}
	var buf bytes.Buffer
	if _, err := want.WriteTo(&buf); err != nil {
		t.Fatal(err)
	}
	got := new(Message)
	if _, err := got.ReadFrom(&buf); err != nil {
		t.Fatal(err)
	}
	if !got.Equal(want) {
		t.Errorf("got %q, want %q", got.Strings, want.Strings)
	}
}

func TestReadEOF(t *testing.T) {
	m := new(Message)
	if _, err := m.ReadFrom(bytes.NewReader(nil)); err != io.EOF {
		t.Errorf("want io.EOF, got %v", err)
	}
}

func TestMalformedHeader(t *testing.T) {
	var buf bytes.Buffer
	(&Message{Tag: 1, Length: 1, Ints: []int32{1}}).WriteTo(&buf)
	b := buf.Bytes()
	b[12] = 0xff // n_ints becomes negative
	b[13] = 0xff
	b[14] = 0xff
	b[15] = 0xff
	if _, err := new(Message).ReadFrom(bytes.NewReader(b)); err == nil {
		t.Error("expected an error")
	}
}

func TestSplitJoin(t *testing.T) {
	const max = 7
	r := rand.New(rand.NewSource(2))
	for _, n := range []int{max - 1, max, max + 1, 2 * max, 2*max + 1} {
		t.Run(fmt.Sprint(n), func(t *testing.T) {
			m := randomMessage(r, n)
			parts, err := m.Split(max)
			if err != nil {
				t.Fatal(err)
			}
			wantParts := (n + max - 1) / max
			if len(parts) != wantParts {
				t.Errorf("%d parts, want %d", len(parts), wantParts)
			}
			for i, p := range parts {
				if p.Length > max {
					t.Errorf("part %d has length %d", i, p.Length)
				}
				if len(p.Doubles) != 2*int(p.Length) {
					t.Errorf("part %d has %d doubles", i, len(p.Doubles))
				}
			}
			// The first double parameter of the second part starts
			// where the first part stopped.
			if len(parts) > 1 && parts[1].Doubles[0] != m.Doubles[max] {
				t.Errorf("parts are not parameter-major")
			}
			got, err := Join(parts)
			if err != nil {
				t.Fatal(err)
			}
			if !got.Equal(m) {
				t.Errorf("join(split(m)) != m: %v", pretty.Diff(got, m))
			}
		})
	}
}

func TestSplitBadShape(t *testing.T) {
	m := &Message{Tag: 2, Length: 4, Doubles: make([]float64, 5)}
	if _, err := m.Split(2); err == nil {
		t.Error("expected an error")
	}
}
