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

package codeinterface

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/amuse/incode"
	"github.com/spatialmodel/amuse/legacy"
)

// State is a named state of the life cycle of a code.
type State struct {
	Name string
	into []*Transition
}

func (s *State) String() string {
	if s == nil {
		return "no state"
	}
	return fmt.Sprintf("state '%s'", s.Name)
}

// Transition moves a code from one state to another by calling a
// method. A nil From means any state. A transition without a method
// only changes the current state.
type Transition struct {
	From, To *State
	Method   string
	Auto     bool
}

func (t *Transition) String() string {
	if t.From == nil {
		return fmt.Sprintf("transition from any state to %v", t.To)
	}
	return fmt.Sprintf("transition from %v to %v", t.From, t.To)
}

// TransitionRequiredError is returned when a method needs the code in
// another state and automatic transitions are switched off. Transitions
// lists what has to be done, in order.
type TransitionRequiredError struct {
	From, To    *State
	Transitions []*Transition
}

func (e *TransitionRequiredError) Error() string {
	lines := []string{fmt.Sprintf("Interface is not in %v, should transition from %v to %v first.\n", e.To, e.From, e.To)}
	for _, t := range e.Transitions {
		if t.Method == "" {
			lines = append(lines, fmt.Sprintf("%v, automatic", t))
		} else {
			lines = append(lines, fmt.Sprintf("%v, calling '%s'", t, t.Method))
		}
	}
	return strings.Join(lines, "\n")
}

// stateEdge is one (from, to) pair under which a method may run. A nil
// from accepts any state; a nil to leaves the state unchanged.
type stateEdge struct{ from, to *State }

// StateMachine guards the methods of a code by the state the code is in.
// Before a method runs the machine moves the code into a state the
// method accepts, calling the methods of the transitions on the way.
// It must not be used from several goroutines at once.
type StateMachine struct {
	code      *Code
	states    map[string]*State
	methods   map[string][]stateEdge
	current   *State
	automatic bool
}

// NewStateMachine returns a state machine without states that performs
// transitions automatically.
func NewStateMachine(c *Code) *StateMachine {
	return &StateMachine{
		code:      c,
		states:    make(map[string]*State),
		methods:   make(map[string][]stateEdge),
		automatic: true,
	}
}

// Kind implements Handler.
func (m *StateMachine) Kind() string { return "STATE" }

// Supports implements Handler. The machine wraps the names it guards.
func (m *StateMachine) Supports(name string, _ bool) bool {
	_, ok := m.methods[name]
	return ok
}

// Get implements Handler.
func (m *StateMachine) Get(name string, prev interface{}) (interface{}, error) {
	switch f := prev.(type) {
	case Method:
		return &stateMethod{m: m, name: name, f: f}, nil
	case incode.Method:
		return &stateFunction{m: m, name: name, f: f}, nil
	}
	return nil, fmt.Errorf("codeinterface: state guarded %s of a '%s' is not callable", name, m.code.Name)
}

// AttributeNames implements Handler.
func (m *StateMachine) AttributeNames() []string {
	out := make([]string, 0, len(m.methods))
	for n := range m.methods {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func (m *StateMachine) define(name string) *State {
	s, ok := m.states[name]
	if !ok {
		s = &State{Name: name}
		m.states[name] = s
	}
	return s
}

// SetInitialState puts the code in state name.
func (m *StateMachine) SetInitialState(name string) { m.current = m.define(name) }

// SetAutomatic switches automatic transitions on or off.
func (m *StateMachine) SetAutomatic(auto bool) { m.automatic = auto }

// CurrentState returns the name of the current state, or "" before an
// initial state is set.
func (m *StateMachine) CurrentState() string {
	if m.current == nil {
		return ""
	}
	return m.current.Name
}

// AddMethod allows method to run in state without changing it.
func (m *StateMachine) AddMethod(state, method string) {
	m.methods[method] = append(m.methods[method], stateEdge{from: m.define(state)})
}

// AddTransition declares that calling method in state from moves the
// code to state to. Only automatic transitions are used to reach the
// state another method needs.
func (m *StateMachine) AddTransition(from, to, method string, auto bool) {
	t := &Transition{From: m.define(from), To: m.define(to), Method: method, Auto: auto}
	t.To.into = append(t.To.into, t)
	if method != "" {
		m.methods[method] = append(m.methods[method], stateEdge{from: t.From, to: t.To})
	}
}

// AddTransitionToMethod declares that calling method in any state moves
// the code to state.
func (m *StateMachine) AddTransitionToMethod(state, method string, auto bool) {
	t := &Transition{To: m.define(state), Method: method, Auto: auto}
	t.To.into = append(t.To.into, t)
	m.methods[method] = append(m.methods[method], stateEdge{to: t.To})
}

// TransitionTo moves the code to state name, subject to the same rules
// as the transitions done before a method call.
func (m *StateMachine) TransitionTo(name string) error {
	s, ok := m.states[name]
	if !ok {
		return fmt.Errorf("codeinterface: '%s' has no state %s", m.code.Name, name)
	}
	if s == m.current {
		return nil
	}
	return m.transitionTo(s)
}

// path returns the shortest chain of automatic transitions from the
// current state to s that visits no state twice.
func (m *StateMachine) path(s *State) []*Transition {
	var queue [][]*Transition
	for _, t := range s.into {
		if t.Auto {
			queue = append(queue, []*Transition{t})
		}
	}
	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]
		first := p[0]
		if first.From == nil || first.From == m.current {
			return p
		}
	next:
		for _, t := range first.From.into {
			if !t.Auto {
				continue
			}
			for _, u := range p {
				if u.To == t.To {
					continue next
				}
			}
			queue = append(queue, append([]*Transition{t}, p...))
		}
	}
	return nil
}

func (m *StateMachine) transitionTo(s *State) error {
	p := m.path(s)
	if p == nil {
		return fmt.Errorf("codeinterface: No transition from current state %v to %v possible", m.current, s)
	}
	if !m.automatic {
		for _, t := range p {
			if t.Method != "" {
				return &TransitionRequiredError{From: m.current, To: s, Transitions: p}
			}
		}
	}
	for _, t := range p {
		if err := m.do(t); err != nil {
			return err
		}
	}
	return nil
}

// do performs t. The guarded method itself moves the current state.
func (m *StateMachine) do(t *Transition) error {
	m.code.Log.WithFields(logrus.Fields{
		"code":   m.code.Name,
		"from":   t.From.String(),
		"to":     t.To.Name,
		"method": t.Method,
	}).Debug("state transition")
	if t.Method == "" {
		m.current = t.To
		return nil
	}
	v, err := m.code.Attr(t.Method)
	if err != nil {
		return err
	}
	switch f := v.(type) {
	case Method:
		_, err = f.Call()
		return err
	case incode.Method:
		r, err := f.Call(nil, nil)
		if err != nil {
			return err
		}
		if c := r.Code(); c < 0 {
			desc, _ := m.code.ErrorCodes.Describe(c)
			return &CodeError{Method: t.Method, Code: m.code.Name, ErrorCode: c, Description: desc}
		}
		return nil
	}
	return fmt.Errorf("codeinterface: transition method %s of a '%s' is not callable", t.Method, m.code.Name)
}

// precall moves the code into a state in which method may run and
// returns the state the method leads to, or nil.
func (m *StateMachine) precall(method string) (*State, error) {
	edges := m.methods[method]
	for _, e := range edges {
		if e.from == nil || e.from == m.current {
			return e.to, nil
		}
	}
	for _, e := range edges {
		if err := m.transitionTo(e.from); err == nil {
			return e.to, nil
		}
	}
	// Repeat the first attempt for its error.
	return nil, m.transitionTo(edges[0].from)
}

func (m *StateMachine) postcall(to *State) {
	if to != nil {
		m.current = to
	}
}

// stateMethod guards a Method.
type stateMethod struct {
	m    *StateMachine
	name string
	f    Method
}

func (s *stateMethod) Call(args ...interface{}) ([]interface{}, error) {
	to, err := s.m.precall(s.name)
	if err != nil {
		return nil, err
	}
	out, err := s.f.Call(args...)
	if err != nil {
		return nil, err
	}
	s.m.postcall(to)
	return out, nil
}

// stateFunction guards a legacy function.
type stateFunction struct {
	m    *StateMachine
	name string
	f    incode.Method
}

func (s *stateFunction) Call(args []interface{}, kwargs legacy.Kwargs) (*legacy.Result, error) {
	to, err := s.m.precall(s.name)
	if err != nil {
		return nil, err
	}
	r, err := s.f.Call(args, kwargs)
	if err != nil {
		return nil, err
	}
	s.m.postcall(to)
	return r, nil
}

func (s *stateFunction) Specification() *legacy.Specification { return s.f.Specification() }
