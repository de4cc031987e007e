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
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"sort"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

// A debugger wraps the launch of a worker. It receives the value of the
// DISPLAY environment variable, the worker executable and its arguments
// and returns the command to run instead.
type debugger func(display, worker string, args []string) (string, []string)

// debuggers lists the wrappers a worker can be launched under.
var debuggers = map[string]debugger{
	"none": nil,
	"gdb": func(display, worker string, args []string) (string, []string) {
		return "xterm", append([]string{"-hold", "-display", display, "-e", "gdb", "--args", worker}, args...)
	},
	"ddd": func(display, worker string, args []string) (string, []string) {
		return "xterm", append([]string{"-display", display, "-e", "ddd", "--args", worker}, args...)
	},
	"xterm": func(display, worker string, args []string) (string, []string) {
		return "xterm", append([]string{"-hold", "-display", display, "-e", worker}, args...)
	},
	"valgrind": func(_, worker string, args []string) (string, []string) {
		return "valgrind", append([]string{worker}, args...)
	},
	// save runs the worker detached from interrupts of the host and keeps
	// its output in amuse-worker-<pid>.log.
	"save": func(_, worker string, args []string) (string, []string) {
		script := `trap 'echo SIGNAL INT' INT; "$0" "$@" >amuse-worker-$$.log 2>&1`
		return "sh", append([]string{"-c", script, worker}, args...)
	},
}

// needsDisplay lists the debuggers that open a window.
var needsDisplay = map[string]bool{"gdb": true, "ddd": true, "xterm": true}

// Debuggers returns the names accepted by WithDebugger.
func Debuggers() []string {
	names := make([]string, 0, len(debuggers))
	for n := range debuggers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// debugCommand resolves the command that launches worker under the named
// debugger. Debuggers that need a display fall back to launching the
// worker directly when display is empty.
func debugCommand(name, display, worker string, args []string) (cmd string, cmdArgs []string, wrapped bool, err error) {
	d, ok := debuggers[name]
	if !ok {
		return "", nil, false, fmt.Errorf("channel: unknown debugger %q (have %v)", name, Debuggers())
	}
	if d == nil || needsDisplay[name] && display == "" {
		return worker, args, false, nil
	}
	cmd, cmdArgs = d(display, worker, args)
	return cmd, cmdArgs, true, nil
}

// ProcessChannel launches a worker executable and talks to it over a
// loopback TCP connection. The worker receives the port to connect to as
// its last argument.
type ProcessChannel struct {
	*conn

	command string
	args    []string
	opts    *options

	cmd    *exec.Cmd
	exited chan error
	files  []io.Closer
}

// NewProcessChannel returns a channel for the worker executable command,
// launched with args.
func NewProcessChannel(command string, args []string, opts ...Option) *ProcessChannel {
	o := newOptions(opts)
	return &ProcessChannel{
		conn:    newConn("process", o),
		command: command,
		args:    args,
		opts:    o,
	}
}

// Start launches the worker and waits for it to connect.
func (p *ProcessChannel) Start(ctx context.Context) error {
	if p.IsActive() {
		return nil
	}
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("channel: listening for worker: %v", err)
	}
	defer l.Close()
	port := l.Addr().(*net.TCPAddr).Port

	args := append(append([]string(nil), p.args...), strconv.Itoa(port))
	name, args, wrapped, err := debugCommand(p.opts.debugger, os.Getenv("DISPLAY"), p.command, args)
	if err != nil {
		return err
	}
	cmd := exec.Command(name, args...)
	if wrapped {
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
	} else {
		if cmd.Stdout, err = p.redirect(p.opts.stdout, os.Stdout); err != nil {
			return err
		}
		if cmd.Stderr, err = p.redirect(p.opts.stderr, os.Stderr); err != nil {
			p.closeFiles()
			return err
		}
	}
	log := p.Log.WithFields(logrus.Fields{
		"worker":   p.command,
		"port":     port,
		"debugger": p.opts.debugger,
	})
	log.Info("starting worker")
	if err := cmd.Start(); err != nil {
		p.closeFiles()
		return fmt.Errorf("channel: starting worker %s: %v", p.command, err)
	}
	exited := make(chan error, 1)
	go func() { exited <- cmd.Wait() }()

	type accepted struct {
		c   net.Conn
		err error
	}
	acc := make(chan accepted, 1)
	go func() {
		c, err := l.Accept()
		acc <- accepted{c, err}
	}()

	timeout := time.NewTimer(p.opts.startupTimeout)
	defer timeout.Stop()
	select {
	case a := <-acc:
		if a.err != nil {
			cmd.Process.Kill()
			p.closeFiles()
			return fmt.Errorf("channel: accepting worker connection: %v", a.err)
		}
		if tc, ok := a.c.(*net.TCPConn); ok {
			tc.SetNoDelay(true)
		}
		p.cmd, p.exited = cmd, exited
		p.attach(&processTransport{streamTransport: newStreamTransport(a.c), p: p})
	case err := <-exited:
		p.closeFiles()
		return fmt.Errorf("channel: worker %s exited before connecting: %v", p.command, err)
	case <-timeout.C:
		cmd.Process.Kill()
		p.closeFiles()
		return fmt.Errorf("channel: worker %s did not connect within %v", p.command, p.opts.startupTimeout)
	case <-ctx.Done():
		cmd.Process.Kill()
		p.closeFiles()
		return ctx.Err()
	}
	log.WithField("pid", cmd.Process.Pid).Info("worker connected")

	if err := p.verify(p.opts.fingerprint); err != nil {
		p.fail(err)
		return err
	}
	return nil
}

func (p *ProcessChannel) redirect(path string, inherit *os.File) (io.Writer, error) {
	switch path {
	case "none":
		return inherit, nil
	case "", os.DevNull:
		return nil, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("channel: redirecting worker output: %v", err)
	}
	p.files = append(p.files, f)
	return f, nil
}

func (p *ProcessChannel) closeFiles() {
	for _, f := range p.files {
		f.Close()
	}
	p.files = nil
}

// Pid returns the process id of the worker, or 0 if it is not running.
func (p *ProcessChannel) Pid() int {
	if p.cmd == nil || p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

type processTransport struct {
	*streamTransport
	p *ProcessChannel
}

// stop asks the worker to exit and kills it if it does not.
func (t *processTransport) stop(graceful bool) error {
	err := t.streamTransport.stop(graceful)
	wait := time.Duration(0)
	if graceful {
		wait = stopTimeout
	}
	select {
	case <-t.p.exited:
	case <-time.After(wait):
		t.p.cmd.Process.Kill()
		<-t.p.exited
	}
	t.p.closeFiles()
	t.p.Log.WithFields(logrus.Fields{
		"worker": t.p.command,
		"pid":    t.p.cmd.Process.Pid,
	}).Info("worker stopped")
	return err
}
