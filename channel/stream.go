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

package channel

import (
	"bufio"
	"context"
	"io"
	"net"
	"time"

	"github.com/spatialmodel/amuse/message"
)

// stopTimeout bounds how long a graceful stop waits for the worker.
const stopTimeout = 5 * time.Second

// streamTransport moves frames over a byte stream.
type streamTransport struct {
	rw io.ReadWriteCloser
	r  *bufio.Reader
}

func newStreamTransport(rw io.ReadWriteCloser) *streamTransport {
	return &streamTransport{rw: rw, r: bufio.NewReaderSize(rw, 64*1024)}
}

func (s *streamTransport) send(m *message.Message) error {
	_, err := m.WriteTo(s.rw)
	return err
}

func (s *streamTransport) recv() (*message.Message, error) {
	m := new(message.Message)
	if _, err := m.ReadFrom(s.r); err != nil {
		if err == io.EOF {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return m, nil
}

func (s *streamTransport) stop(graceful bool) error {
	if graceful {
		if c, ok := s.rw.(interface{ SetDeadline(time.Time) error }); ok {
			c.SetDeadline(time.Now().Add(stopTimeout))
		}
		if s.send(message.New(message.TagStop, 1)) == nil {
			s.recv()
		}
	}
	return s.rw.Close()
}

// StreamChannel is a Channel over an established connection, for
// example one end of net.Pipe connected to an in-process worker.
type StreamChannel struct {
	*conn
	rw          io.ReadWriteCloser
	fingerprint string
}

// NewStreamChannel returns a channel that talks to a worker over rw.
func NewStreamChannel(rw io.ReadWriteCloser, opts ...Option) *StreamChannel {
	o := newOptions(opts)
	return &StreamChannel{conn: newConn("stream", o), rw: rw, fingerprint: o.fingerprint}
}

// Start attaches the connection. The worker is expected to be serving it
// already.
func (s *StreamChannel) Start(ctx context.Context) error {
	if s.IsActive() {
		return nil
	}
	s.attach(newStreamTransport(s.rw))
	if err := s.verify(s.fingerprint); err != nil {
		s.fail(err)
		return err
	}
	return nil
}

// Pipe returns a started StreamChannel and the worker end of an
// in-memory connection.
func Pipe(opts ...Option) (*StreamChannel, net.Conn) {
	host, worker := net.Pipe()
	c := NewStreamChannel(host, opts...)
	c.attach(newStreamTransport(host))
	return c, worker
}
