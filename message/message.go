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

// Package message implements the framing of calls and replies exchanged
// between a host and a worker process.
//
// Every frame starts with a header of eight little-endian int32 values
//
//	[tag, length, n_doubles, n_ints, n_floats, n_strings, n_booleans, n_longs]
//
// followed by the values of each type in header order. Strings are sent
// as an array of cumulative end offsets followed by the string bytes,
// with one zero byte after every string that is not counted in the
// offsets. Booleans are sent as int32.
//
// Within each typed array the values are ordered parameter-major: all
// Length values of the first parameter of that type, then all values of
// the second, and so on.
package message

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Reserved tags.
const (
	// TagStop asks the worker to shut down.
	TagStop int32 = 0
	// TagFingerprint asks the worker for a hash of its function table.
	TagFingerprint int32 = 1
	// TagNotUnderstood is returned by a worker that does not implement
	// the requested function.
	TagNotUnderstood int32 = -1
	// TagFatal is returned by a worker that cannot continue.
	TagFatal int32 = -2
)

// maxCount bounds the number of values of one type in a frame, so that a
// corrupted header is reported instead of exhausting memory.
const maxCount = 1 << 28

var order = binary.LittleEndian

// Message is one call or reply.
type Message struct {
	Tag int32
	// Length is the number of entities addressed by the call.
	Length int32

	Doubles  []float64
	Ints     []int32
	Floats   []float32
	Strings  []string
	Booleans []bool
	Longs    []int64
}

// New returns an empty message for tag addressing length entities.
func New(tag int32, length int) *Message {
	return &Message{Tag: tag, Length: int32(length)}
}

func (m *Message) String() string {
	return fmt.Sprintf("message{tag: %d, length: %d, doubles: %d, ints: %d, floats: %d, strings: %d, booleans: %d, longs: %d}",
		m.Tag, m.Length, len(m.Doubles), len(m.Ints), len(m.Floats), len(m.Strings), len(m.Booleans), len(m.Longs))
}

// Size returns the number of bytes m occupies on the wire.
func (m *Message) Size() int {
	n := 8*4 + 8*len(m.Doubles) + 4*len(m.Ints) + 4*len(m.Floats) + 4*len(m.Booleans) + 8*len(m.Longs)
	for _, s := range m.Strings {
		n += 4 + len(s) + 1
	}
	return n
}

// WriteTo writes m to w as one frame.
func (m *Message) WriteTo(w io.Writer) (int64, error) {
	bw := bufio.NewWriterSize(w, 64*1024)
	header := [8]int32{m.Tag, m.Length,
		int32(len(m.Doubles)), int32(len(m.Ints)), int32(len(m.Floats)),
		int32(len(m.Strings)), int32(len(m.Booleans)), int32(len(m.Longs)),
	}
	if err := binary.Write(bw, order, header[:]); err != nil {
		return 0, fmt.Errorf("message: writing header: %v", err)
	}
	if err := writeValues(bw, m.Doubles); err != nil {
		return 0, err
	}
	if err := writeValues(bw, m.Ints); err != nil {
		return 0, err
	}
	if err := writeValues(bw, m.Floats); err != nil {
		return 0, err
	}
	if len(m.Strings) > 0 {
		offsets := make([]int32, len(m.Strings))
		var end int32
		for i, s := range m.Strings {
			if i > 0 {
				end++ // separator
			}
			end += int32(len(s))
			offsets[i] = end
		}
		if err := writeValues(bw, offsets); err != nil {
			return 0, err
		}
		for _, s := range m.Strings {
			if _, err := bw.WriteString(s); err != nil {
				return 0, fmt.Errorf("message: writing strings: %v", err)
			}
			if err := bw.WriteByte(0); err != nil {
				return 0, fmt.Errorf("message: writing strings: %v", err)
			}
		}
	}
	if len(m.Booleans) > 0 {
		b := make([]int32, len(m.Booleans))
		for i, v := range m.Booleans {
			if v {
				b[i] = 1
			}
		}
		if err := writeValues(bw, b); err != nil {
			return 0, err
		}
	}
	if err := writeValues(bw, m.Longs); err != nil {
		return 0, err
	}
	if err := bw.Flush(); err != nil {
		return 0, fmt.Errorf("message: flushing: %v", err)
	}
	return int64(m.Size()), nil
}

func writeValues(w io.Writer, data interface{}) error {
	if err := binary.Write(w, order, data); err != nil {
		return fmt.Errorf("message: writing %T: %v", data, err)
	}
	return nil
}

// ReadFrom replaces the contents of m with the next frame read from r.
func (m *Message) ReadFrom(r io.Reader) (int64, error) {
	var header [8]int32
	if err := binary.Read(r, order, header[:]); err != nil {
		if err == io.EOF {
			return 0, err
		}
		return 0, fmt.Errorf("message: reading header: %v", err)
	}
	for i, c := range header[2:] {
		if c < 0 || c > maxCount {
			return 0, fmt.Errorf("message: malformed header: count %d of type %d out of range", c, i)
		}
	}
	*m = Message{Tag: header[0], Length: header[1]}

	var err error
	if m.Doubles, err = readFloat64s(r, header[2]); err != nil {
		return 0, err
	}
	if m.Ints, err = readInt32s(r, header[3]); err != nil {
		return 0, err
	}
	if header[4] > 0 {
		m.Floats = make([]float32, header[4])
		if err := readValues(r, m.Floats); err != nil {
			return 0, err
		}
	}
	if header[5] > 0 {
		offsets, err := readInt32s(r, header[5])
		if err != nil {
			return 0, err
		}
		total := offsets[len(offsets)-1] + 1
		if total < 1 || total > maxCount {
			return 0, fmt.Errorf("message: malformed string offsets")
		}
		buf := make([]byte, total)
		if _, err := io.ReadFull(r, buf); err != nil {
			return 0, fmt.Errorf("message: reading strings: %v", err)
		}
		m.Strings = make([]string, len(offsets))
		begin := int32(0)
		for i, end := range offsets {
			if end < begin || end >= total {
				return 0, fmt.Errorf("message: malformed string offsets")
			}
			m.Strings[i] = string(buf[begin:end])
			begin = end + 1
		}
	}
	if header[6] > 0 {
		b, err := readInt32s(r, header[6])
		if err != nil {
			return 0, err
		}
		m.Booleans = make([]bool, len(b))
		for i, v := range b {
			m.Booleans[i] = v != 0
		}
	}
	if header[7] > 0 {
		m.Longs = make([]int64, header[7])
		if err := readValues(r, m.Longs); err != nil {
			return 0, err
		}
	}
	return int64(m.Size()), nil
}

func readFloat64s(r io.Reader, n int32) ([]float64, error) {
	if n == 0 {
		return nil, nil
	}
	v := make([]float64, n)
	return v, readValues(r, v)
}

func readInt32s(r io.Reader, n int32) ([]int32, error) {
	if n == 0 {
		return nil, nil
	}
	v := make([]int32, n)
	return v, readValues(r, v)
}

func readValues(r io.Reader, data interface{}) error {
	if err := binary.Read(r, order, data); err != nil {
		return fmt.Errorf("message: reading %T: %v", data, err)
	}
	return nil
}

// Equal reports whether m and o carry the same tag, length and values.
// NaN doubles compare equal to each other.
func (m *Message) Equal(o *Message) bool {
	if m.Tag != o.Tag || m.Length != o.Length ||
		len(m.Doubles) != len(o.Doubles) || len(m.Ints) != len(o.Ints) ||
		len(m.Floats) != len(o.Floats) || len(m.Strings) != len(o.Strings) ||
		len(m.Booleans) != len(o.Booleans) || len(m.Longs) != len(o.Longs) {
		return false
	}
	for i, v := range m.Doubles {
		if v != o.Doubles[i] && !(math.IsNaN(v) && math.IsNaN(o.Doubles[i])) {
			return false
		}
	}
	for i, v := range m.Ints {
		if v != o.Ints[i] {
			return false
		}
	}
	for i, v := range m.Floats {
		if v != o.Floats[i] {
			return false
		}
	}
	for i, v := range m.Strings {
		if v != o.Strings[i] {
			return false
		}
	}
	for i, v := range m.Booleans {
		if v != o.Booleans[i] {
			return false
		}
	}
	for i, v := range m.Longs {
		if v != o.Longs[i] {
			return false
		}
	}
	return true
}
