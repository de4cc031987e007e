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

// Package worker serves legacy functions to a host over the message
// protocol. A worker executable dials back to the port its host passed
// as the last argument and serves calls until it receives the stop tag.
package worker

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"runtime/debug"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/amuse/legacy"
	"github.com/spatialmodel/amuse/message"
)

// Func implements a legacy function. It reads its inputs from in and
// writes its outputs and result into out, which already holds columns of
// the right length. A returned error is fatal to the worker; failures the
// host should handle are reported through the result code.
type Func func(in, out *legacy.Batch) error

// Server dispatches calls to the functions of a table.
type Server struct {
	Table *legacy.Table
	Log   logrus.FieldLogger

	funcs map[int32]Func
}

// NewServer returns a server for the functions of t. Functions without a
// registered implementation are answered as not understood.
func NewServer(t *legacy.Table) *Server {
	return &Server{
		Table: t,
		Log:   logrus.StandardLogger(),
		funcs: make(map[int32]Func),
	}
}

// Register sets the implementation of the function called name.
func (s *Server) Register(name string, f Func) error {
	spec, ok := s.Table.Lookup(name)
	if !ok {
		return fmt.Errorf("worker: table %s has no function %s", s.Table.Name, name)
	}
	s.funcs[spec.Tag] = f
	return nil
}

// MustRegister is Register for implementations known to exist. It panics
// on error.
func (s *Server) MustRegister(name string, f Func) {
	if err := s.Register(name, f); err != nil {
		panic(err)
	}
}

// Serve answers calls read from rw until the host sends the stop tag or
// closes the connection.
func (s *Server) Serve(rw io.ReadWriter) error {
	r := bufio.NewReaderSize(rw, 64*1024)
	for {
		m := new(message.Message)
		if _, err := m.ReadFrom(r); err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		reply, fatal := s.handle(m)
		if _, err := reply.WriteTo(rw); err != nil {
			return err
		}
		if fatal != nil {
			return fatal
		}
		if m.Tag == message.TagStop {
			s.Log.WithField("table", s.Table.Name).Info("worker stopped by host")
			return nil
		}
	}
}

// handle computes the reply to m. A non-nil error means the worker must
// exit after sending the reply.
func (s *Server) handle(m *message.Message) (reply *message.Message, fatal error) {
	switch m.Tag {
	case message.TagStop:
		return message.New(message.TagStop, 1), nil
	case message.TagFingerprint:
		r := message.New(message.TagFingerprint, 1)
		r.Strings = []string{s.Table.Fingerprint()}
		return r, nil
	}
	spec, ok := s.Table.ByTag(m.Tag)
	f := s.funcs[m.Tag]
	if !ok || f == nil {
		s.Log.WithFields(logrus.Fields{"table": s.Table.Name, "tag": m.Tag}).Warn("call not understood")
		return &message.Message{Tag: message.TagNotUnderstood}, nil
	}
	log := s.Log.WithFields(logrus.Fields{
		"function": spec.Name,
		"tag":      m.Tag,
		"length":   m.Length,
	})
	defer func() {
		if p := recover(); p != nil {
			log.WithField("panic", p).Errorf("worker function panicked\n%s", debug.Stack())
			reply = &message.Message{Tag: message.TagFatal}
			fatal = fmt.Errorf("worker: %s panicked: %v", spec.Name, p)
		}
	}()
	in, err := legacy.DecodeCall(spec, m)
	if err != nil {
		log.WithField("error", err).Error("malformed call")
		return &message.Message{Tag: message.TagFatal}, err
	}
	out := legacy.NewReply(spec, in)
	if err := f(in, out); err != nil {
		log.WithField("error", err).Error("worker function failed")
		return &message.Message{Tag: message.TagFatal}, err
	}
	reply, err = legacy.EncodeReply(spec, out)
	if err != nil {
		log.WithField("error", err).Error("encoding reply")
		return &message.Message{Tag: message.TagFatal}, err
	}
	return reply, nil
}

// Dial connects to the host listening on the loopback port, retrying
// until timeout passes.
func Dial(ctx context.Context, port string, timeout time.Duration) (net.Conn, error) {
	var c net.Conn
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 10 * time.Millisecond
	b.MaxElapsedTime = timeout
	err := backoff.RetryNotify(
		func() error {
			var d net.Dialer
			var err error
			c, err = d.DialContext(ctx, "tcp", net.JoinHostPort("127.0.0.1", port))
			if ctx.Err() != nil {
				return nil
			}
			return err
		},
		b,
		func(err error, d time.Duration) {
			logrus.WithFields(logrus.Fields{"port": port, "error": err}).Debugf("retrying in %v", d)
		},
	)
	if err == nil && c == nil {
		err = ctx.Err()
	}
	if err != nil {
		return nil, fmt.Errorf("worker: connecting to host on port %s: %v", port, err)
	}
	return c, nil
}

// Run dials the host on port and serves s until the host stops it.
func Run(ctx context.Context, s *Server, port string) error {
	c, err := Dial(ctx, port, time.Minute)
	if err != nil {
		return err
	}
	defer c.Close()
	s.Log.WithFields(logrus.Fields{"table": s.Table.Name, "port": port}).Info("worker connected to host")
	return s.Serve(c)
}
