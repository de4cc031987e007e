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

// Package channel transports messages between a host and a worker that
// holds the state of a numerical code.
//
// A channel carries at most one call at a time. Calls addressing more
// entities than the maximum message length are split into consecutive
// sub-calls whose replies are joined before they are returned, so
// callers never see the split.
package channel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/amuse/message"
)

// DefaultMaxMessageLength is the largest number of entities sent in one
// message unless configured otherwise.
const DefaultMaxMessageLength = 1000000

var (
	// ErrNotRunning is returned when a message is sent to a worker that
	// has not been started or has been stopped.
	ErrNotRunning = errors.New("channel: tried to send a message to a code that is not running")

	// ErrInUse is returned when a message is sent before the reply to the
	// previous one has been received.
	ErrInUse = errors.New("channel: tried to send a message to a code that is already handling a message")

	errNoCall = errors.New("channel: no message in flight")
)

// NotUnderstoodError is returned when the worker does not implement the
// function with the given tag. The channel remains usable.
type NotUnderstoodError struct {
	Tag int32
}

func (e *NotUnderstoodError) Error() string {
	return fmt.Sprintf("channel: not a valid message, message with tag %d is not understood by the worker", e.Tag)
}

// FatalError is returned when the transport failed or the worker exited.
// The channel is dead afterwards and every later call fails with the same
// error without doing any I/O.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string { return "channel: " + e.Err.Error() }

func (e *FatalError) Unwrap() error { return e.Err }

var errWorkerExited = errors.New("fatal error in code, code has exited")

// Channel is a call/reply connection to one worker.
type Channel interface {
	// Start connects to the worker, launching it if necessary.
	Start(ctx context.Context) error
	// Stop disconnects from the worker. It is safe to call more than once.
	Stop() error
	// SendMessage sends a call. It fails if a previous call has not
	// received its reply or if the worker is not running.
	SendMessage(m *message.Message) error
	// RecvMessage blocks until the reply to the last call arrives.
	RecvMessage() (*message.Message, error)
	// NonblockingRecvMessage returns a handle to the reply to the last
	// call without waiting for it.
	NonblockingRecvMessage() *Request
	// IsActive reports whether the worker is running and reachable.
	IsActive() bool
	// IsInUse reports whether a call is waiting for its reply.
	IsInUse() bool
}

// Call sends m over c and waits for the reply.
func Call(c Channel, m *message.Message) (*message.Message, error) {
	if err := c.SendMessage(m); err != nil {
		return nil, err
	}
	return c.RecvMessage()
}

// Go sends m over c and returns a handle to the reply.
func Go(c Channel, m *message.Message) (*Request, error) {
	if err := c.SendMessage(m); err != nil {
		return nil, err
	}
	return c.NonblockingRecvMessage(), nil
}

// transport moves single frames. It does not need to be safe for
// concurrent use.
type transport interface {
	send(m *message.Message) error
	recv() (*message.Message, error)
	// stop shuts the worker down, asking it politely when graceful is
	// true.
	stop(graceful bool) error
}

// Option configures a channel.
type Option func(*options)

type options struct {
	maxMessageLength int
	debugger         string
	stdout, stderr   string
	startupTimeout   time.Duration
	fingerprint      string
	log              logrus.FieldLogger
}

func newOptions(opts []Option) *options {
	o := &options{
		maxMessageLength: DefaultMaxMessageLength,
		debugger:         "none",
		stdout:           "/dev/null",
		stderr:           "/dev/null",
		startupTimeout:   time.Minute,
		log:              logrus.StandardLogger(),
	}
	for _, f := range opts {
		f(o)
	}
	return o
}

// WithMaxMessageLength sets the largest number of entities sent in one
// message. Zero or less disables splitting.
func WithMaxMessageLength(n int) Option {
	return func(o *options) { o.maxMessageLength = n }
}

// WithDebugger launches the worker under the named debugger wrapper.
// See Debuggers for the available names.
func WithDebugger(name string) Option {
	return func(o *options) { o.debugger = name }
}

// WithRedirection sends the standard output and error of the worker to
// the given files. "/dev/null" discards the output and "none" leaves it
// connected to the output of the host.
func WithRedirection(stdout, stderr string) Option {
	return func(o *options) {
		o.stdout = stdout
		o.stderr = stderr
	}
}

// WithStartupTimeout sets how long a worker may take to connect.
func WithStartupTimeout(d time.Duration) Option {
	return func(o *options) { o.startupTimeout = d }
}

// WithFingerprint makes Start check that the worker serves the function
// table with the given fingerprint.
func WithFingerprint(fp string) Option {
	return func(o *options) { o.fingerprint = fp }
}

// WithLogger sets the logger of the channel.
func WithLogger(l logrus.FieldLogger) Option {
	return func(o *options) { o.log = l }
}

// conn implements the Channel contract on top of a transport.
type conn struct {
	// Log receives channel events.
	Log logrus.FieldLogger

	kind      string
	maxLength int

	mu      sync.Mutex
	t       transport
	inUse   bool
	dead    error
	sentTag int32
	sentAt  time.Time
	// Reply to a split call, already received.
	joined    *message.Message
	joinedErr error
}

func newConn(kind string, o *options) *conn {
	return &conn{Log: o.log, kind: kind, maxLength: o.maxMessageLength}
}

func (c *conn) attach(t transport) {
	c.mu.Lock()
	c.t = t
	c.dead = nil
	c.inUse = false
	c.mu.Unlock()
}

// IsActive reports whether the worker is running and reachable.
func (c *conn) IsActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t != nil && c.dead == nil
}

// IsInUse reports whether a call is waiting for its reply.
func (c *conn) IsInUse() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inUse
}

// SendMessage sends m to the worker.
func (c *conn) SendMessage(m *message.Message) error {
	c.mu.Lock()
	if c.dead != nil {
		err := c.dead
		c.mu.Unlock()
		return err
	}
	if c.t == nil {
		c.mu.Unlock()
		return ErrNotRunning
	}
	if c.inUse {
		c.mu.Unlock()
		return ErrInUse
	}
	c.inUse = true
	c.sentTag = m.Tag
	c.sentAt = time.Now()
	t := c.t
	c.mu.Unlock()

	callsTotal.WithLabelValues(c.kind).Inc()

	if c.maxLength > 0 && int(m.Length) > c.maxLength {
		return c.sendSplit(t, m)
	}
	if err := t.send(m); err != nil {
		return c.fail(err)
	}
	bytesTotal.WithLabelValues(c.kind, "sent").Add(float64(m.Size()))
	return nil
}

// sendSplit performs all sub-calls of an oversized call and keeps the
// joined reply for RecvMessage.
func (c *conn) sendSplit(t transport, m *message.Message) error {
	parts, err := m.Split(c.maxLength)
	if err != nil {
		c.release()
		return err
	}
	c.Log.WithFields(logrus.Fields{
		"channel": c.kind,
		"tag":     m.Tag,
		"length":  m.Length,
		"parts":   len(parts),
	}).Debug("splitting message")

	replies := make([]*message.Message, 0, len(parts))
	for _, p := range parts {
		splitCallsTotal.WithLabelValues(c.kind).Inc()
		if err := t.send(p); err != nil {
			return c.fail(err)
		}
		bytesTotal.WithLabelValues(c.kind, "sent").Add(float64(p.Size()))
		r, err := c.recvOne(t)
		if err != nil {
			var nu *NotUnderstoodError
			if errors.As(err, &nu) {
				c.mu.Lock()
				c.joinedErr = err
				c.mu.Unlock()
				return nil
			}
			return err
		}
		replies = append(replies, r)
	}
	joined, err := message.Join(replies)
	c.mu.Lock()
	c.joined, c.joinedErr = joined, err
	c.mu.Unlock()
	return nil
}

// RecvMessage waits for the reply to the last call.
func (c *conn) RecvMessage() (*message.Message, error) {
	c.mu.Lock()
	if !c.inUse {
		dead := c.dead
		c.mu.Unlock()
		if dead != nil {
			return nil, dead
		}
		return nil, errNoCall
	}
	t := c.t
	if c.joined != nil || c.joinedErr != nil {
		r, err := c.joined, c.joinedErr
		c.joined, c.joinedErr = nil, nil
		c.inUse = false
		c.observe()
		c.mu.Unlock()
		return r, err
	}
	c.mu.Unlock()

	r, err := c.recvOne(t)
	c.release()
	return r, err
}

// recvOne reads one reply and interprets the reserved reply tags.
func (c *conn) recvOne(t transport) (*message.Message, error) {
	if t == nil {
		return nil, ErrNotRunning
	}
	r, err := t.recv()
	if err != nil {
		return nil, c.fail(err)
	}
	bytesTotal.WithLabelValues(c.kind, "received").Add(float64(r.Size()))
	c.mu.Lock()
	tag := c.sentTag
	c.mu.Unlock()
	switch {
	case r.Tag == message.TagNotUnderstood:
		notUnderstoodTotal.WithLabelValues(c.kind).Inc()
		return nil, &NotUnderstoodError{Tag: tag}
	case r.Tag == message.TagFatal:
		return nil, c.fail(errWorkerExited)
	case r.Tag != tag:
		return nil, c.fail(fmt.Errorf("reply tag %d does not match call tag %d", r.Tag, tag))
	}
	return r, nil
}

func (c *conn) release() {
	c.mu.Lock()
	if c.inUse {
		c.inUse = false
		c.observe()
	}
	c.mu.Unlock()
}

// observe records the duration of the finished call. c.mu must be held.
func (c *conn) observe() {
	callSeconds.WithLabelValues(c.kind).Observe(time.Since(c.sentAt).Seconds())
}

// fail marks the channel dead and shuts the transport down.
func (c *conn) fail(cause error) error {
	c.mu.Lock()
	if c.dead != nil {
		err := c.dead
		c.inUse = false
		c.mu.Unlock()
		return err
	}
	err := &FatalError{Err: cause}
	c.dead = err
	c.inUse = false
	t := c.t
	c.mu.Unlock()

	failuresTotal.WithLabelValues(c.kind).Inc()
	c.Log.WithFields(logrus.Fields{
		"channel": c.kind,
		"error":   cause,
	}).Error("channel is dead")
	if t != nil {
		t.stop(false)
	}
	return err
}

// NonblockingRecvMessage returns a handle to the reply of the last call.
// The reply is read by a separate goroutine.
func (c *conn) NonblockingRecvMessage() *Request {
	r := newRequest()
	go func() {
		r.complete(c.RecvMessage())
	}()
	return r
}

// Stop shuts the worker down. A dead or stopped channel is left alone.
func (c *conn) Stop() error {
	c.mu.Lock()
	t := c.t
	dead := c.dead != nil
	graceful := !dead && !c.inUse
	c.t = nil
	c.mu.Unlock()
	if t == nil || dead {
		return nil
	}
	c.Log.WithFields(logrus.Fields{"channel": c.kind}).Debug("stopping worker")
	return t.stop(graceful)
}

// verify checks the fingerprint of the function table of the worker.
func (c *conn) verify(fp string) error {
	if fp == "" {
		return nil
	}
	err := c.SendMessage(message.New(message.TagFingerprint, 1))
	var r *message.Message
	if err == nil {
		r, err = c.RecvMessage()
	}
	if err != nil {
		return fmt.Errorf("channel: requesting function table fingerprint: %w", err)
	}
	if len(r.Strings) != 1 || r.Strings[0] != fp {
		return fmt.Errorf("channel: worker function table fingerprint %q does not match %q", r.Strings, fp)
	}
	return nil
}
