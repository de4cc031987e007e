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
	"bytes"
	"context"
	"fmt"
	"math"
	"net"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/amuse/message"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding"
)

// Frames are exchanged with the forwarding server as raw bytes, so no
// generated protocol buffer code is needed.
const frameCodecName = "amuse-frame"

// maxFrameSize bounds forwarded frames. Calls are split by entity count,
// not by size, so it is as large as gRPC allows.
const maxFrameSize = math.MaxInt32

type frame struct {
	data []byte
}

type frameCodec struct{}

func (frameCodec) Marshal(v interface{}) ([]byte, error) {
	f, ok := v.(*frame)
	if !ok {
		return nil, fmt.Errorf("channel: cannot encode %T as a frame", v)
	}
	return f.data, nil
}

func (frameCodec) Unmarshal(data []byte, v interface{}) error {
	f, ok := v.(*frame)
	if !ok {
		return fmt.Errorf("channel: cannot decode a frame into %T", v)
	}
	f.data = append(f.data[:0], data...)
	return nil
}

func (frameCodec) Name() string { return frameCodecName }

func init() {
	encoding.RegisterCodec(frameCodec{})
}

func encodeFrame(m *message.Message) (*frame, error) {
	var buf bytes.Buffer
	if _, err := m.WriteTo(&buf); err != nil {
		return nil, err
	}
	return &frame{data: buf.Bytes()}, nil
}

func decodeFrame(f *frame) (*message.Message, error) {
	m := new(message.Message)
	if _, err := m.ReadFrom(bytes.NewReader(f.data)); err != nil {
		return nil, err
	}
	return m, nil
}

// forwarder is the service implemented by ForwardServer.
type forwarder interface {
	start(ctx context.Context, in *frame) (*frame, error)
	call(ctx context.Context, in *frame) (*frame, error)
	stop(ctx context.Context, in *frame) (*frame, error)
}

const forwardService = "amuse.channel.Forward"

func forwardHandler(f func(forwarder, context.Context, *frame) (*frame, error)) func(interface{}, context.Context, func(interface{}) error, grpc.UnaryServerInterceptor) (interface{}, error) {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, _ grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(frame)
		if err := dec(in); err != nil {
			return nil, err
		}
		return f(srv.(forwarder), ctx, in)
	}
}

var forwardServiceDesc = grpc.ServiceDesc{
	ServiceName: forwardService,
	HandlerType: (*forwarder)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Start", Handler: forwardHandler(forwarder.start)},
		{MethodName: "Call", Handler: forwardHandler(forwarder.call)},
		{MethodName: "Stop", Handler: forwardHandler(forwarder.stop)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "channel/forward.go",
}

// ForwardServer relays calls received over gRPC to a downstream channel,
// so the worker lives in the process of the server rather than in the
// process of the host.
type ForwardServer struct {
	Log logrus.FieldLogger

	newChannel func() Channel

	mu   sync.Mutex
	down Channel
	srv  *grpc.Server
	done chan struct{}
}

// NewForwardServer returns a server that creates its downstream channel
// with newChannel when the first client starts it.
func NewForwardServer(newChannel func() Channel) *ForwardServer {
	s := &ForwardServer{
		Log:        logrus.StandardLogger(),
		newChannel: newChannel,
		srv:        grpc.NewServer(grpc.MaxRecvMsgSize(maxFrameSize), grpc.MaxSendMsgSize(maxFrameSize)),
		done:       make(chan struct{}),
	}
	s.srv.RegisterService(&forwardServiceDesc, s)
	return s
}

// Serve accepts connections on l until Shutdown is called or a client
// stops the server.
func (s *ForwardServer) Serve(l net.Listener) error {
	s.Log.WithField("address", l.Addr().String()).Info("forwarding server listening")
	return s.srv.Serve(l)
}

// Shutdown stops the downstream worker and the server.
func (s *ForwardServer) Shutdown() {
	s.mu.Lock()
	down := s.down
	s.down = nil
	s.mu.Unlock()
	if down != nil {
		down.Stop()
	}
	s.srv.Stop()
}

// Done is closed when a client has stopped the server.
func (s *ForwardServer) Done() <-chan struct{} { return s.done }

func (s *ForwardServer) start(ctx context.Context, _ *frame) (*frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down == nil {
		s.down = s.newChannel()
	}
	if err := s.down.Start(ctx); err != nil {
		return nil, err
	}
	return &frame{}, nil
}

func (s *ForwardServer) call(ctx context.Context, in *frame) (*frame, error) {
	s.mu.Lock()
	down := s.down
	s.mu.Unlock()
	if down == nil {
		return nil, ErrNotRunning
	}
	m, err := decodeFrame(in)
	if err != nil {
		return nil, err
	}
	r, err := Call(down, m)
	switch err.(type) {
	case nil:
	case *NotUnderstoodError:
		r = &message.Message{Tag: message.TagNotUnderstood}
	case *FatalError:
		s.Log.WithFields(logrus.Fields{"tag": m.Tag, "error": err}).Error("downstream worker failed")
		r = &message.Message{Tag: message.TagFatal}
	default:
		return nil, err
	}
	return encodeFrame(r)
}

func (s *ForwardServer) stop(ctx context.Context, _ *frame) (*frame, error) {
	s.mu.Lock()
	down := s.down
	s.down = nil
	s.mu.Unlock()
	var err error
	if down != nil {
		err = down.Stop()
	}
	select {
	case <-s.done:
	default:
		close(s.done)
	}
	return &frame{}, err
}

// ForwardChannel is a Channel whose worker is run by a ForwardServer.
type ForwardChannel struct {
	*conn
	addr string
	opts *options
}

// NewForwardChannel returns a channel to the forwarding server at addr.
func NewForwardChannel(addr string, opts ...Option) *ForwardChannel {
	o := newOptions(opts)
	return &ForwardChannel{conn: newConn("forward", o), addr: addr, opts: o}
}

// Start connects to the forwarding server and asks it to start the
// worker. Connection attempts are retried until the startup timeout
// passes.
func (f *ForwardChannel) Start(ctx context.Context) error {
	if f.IsActive() {
		return nil
	}
	cc, err := grpc.Dial(f.addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(
			grpc.CallContentSubtype(frameCodecName),
			grpc.MaxCallRecvMsgSize(maxFrameSize),
			grpc.MaxCallSendMsgSize(maxFrameSize),
		),
	)
	if err != nil {
		return fmt.Errorf("channel: dialing forwarding server %s: %v", f.addr, err)
	}
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = f.opts.startupTimeout
	err = backoff.RetryNotify(
		func() error {
			if err := ctx.Err(); err != nil {
				return nil
			}
			return cc.Invoke(ctx, "/"+forwardService+"/Start", &frame{}, new(frame))
		},
		b,
		func(err error, d time.Duration) {
			f.Log.WithFields(logrus.Fields{"address": f.addr, "error": err}).Warnf("retrying in %v", d)
		},
	)
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		cc.Close()
		return fmt.Errorf("channel: starting forwarded worker at %s: %v", f.addr, err)
	}
	f.attach(&forwardTransport{cc: cc})
	if err := f.verify(f.opts.fingerprint); err != nil {
		f.fail(err)
		return err
	}
	return nil
}

type forwardReply struct {
	f   *frame
	err error
}

type forwardTransport struct {
	cc      *grpc.ClientConn
	pending chan forwardReply
}

func (t *forwardTransport) send(m *message.Message) error {
	in, err := encodeFrame(m)
	if err != nil {
		return err
	}
	t.pending = make(chan forwardReply, 1)
	go func(pending chan forwardReply) {
		out := new(frame)
		err := t.cc.Invoke(context.Background(), "/"+forwardService+"/Call", in, out)
		pending <- forwardReply{out, err}
	}(t.pending)
	return nil
}

func (t *forwardTransport) recv() (*message.Message, error) {
	if t.pending == nil {
		return nil, errNoCall
	}
	r := <-t.pending
	t.pending = nil
	if r.err != nil {
		return nil, r.err
	}
	return decodeFrame(r.f)
}

func (t *forwardTransport) stop(graceful bool) error {
	var err error
	if graceful {
		ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		err = t.cc.Invoke(ctx, "/"+forwardService+"/Stop", &frame{}, new(frame))
		cancel()
	}
	t.cc.Close()
	return err
}
