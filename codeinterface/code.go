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

// Package codeinterface presents a worker as a domain object: methods
// with units and error codes, properties, parameters, particle sets and a
// life-cycle state machine. Attribute lookups pass through an ordered
// chain of handlers; the first handler that supports a name produces its
// value and later handlers that also support it may wrap that value.
package codeinterface

import (
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/amuse/channel"
	"github.com/spatialmodel/amuse/incode"
	"github.com/spatialmodel/amuse/legacy"
)

// Handler claims a namespace of attribute names of a Code.
type Handler interface {
	// Kind names the handler, for example "LEGACY" or "STATE".
	Kind() string

	// Supports reports whether the handler produces or wraps name.
	// found is true if an earlier handler already produced a value.
	Supports(name string, found bool) bool

	// Get returns the value of name, given the value produced by the
	// earlier handlers (nil if none did).
	Get(name string, prev interface{}) (interface{}, error)

	// AttributeNames returns the names the handler knows of.
	AttributeNames() []string
}

// Method is a callable attribute of a Code that works with quantities.
type Method interface {
	Call(args ...interface{}) ([]interface{}, error)
}

// AttributeError reports a name no handler supports.
type AttributeError struct {
	Code string
	Name string
}

func (e *AttributeError) Error() string {
	return fmt.Sprintf("codeinterface: '%s' object has no attribute '%s'", e.Code, e.Name)
}

// Code wraps the legacy functions of one worker.
type Code struct {
	// Name is the type name of the code, used in error messages.
	Name string

	// Log receives code events.
	Log logrus.FieldLogger

	Channel channel.Channel

	Legacy     *LegacyHandler
	Methods    *MethodsHandler
	Properties *PropertiesHandler
	Parameters *ParametersHandler
	Particles  *ParticlesHandler
	State      *StateMachine
	Units      *ConvertUnitsHandler
	ErrorCodes *ErrorCodesHandler

	handlers []Handler
}

// New returns a Code calling the functions of t over ch, with the
// standard handlers in their standard order and nothing defined yet.
func New(name string, t *legacy.Table, ch channel.Channel) *Code {
	c := &Code{Name: name, Log: logrus.StandardLogger(), Channel: ch}
	c.Legacy = &LegacyHandler{functions: t.Bind(ch)}
	c.Methods = &MethodsHandler{code: c, defs: make(map[string]*MethodDefinition)}
	c.Properties = &PropertiesHandler{code: c, defs: make(map[string]*propertyDefinition)}
	c.Parameters = &ParametersHandler{code: c}
	c.Particles = &ParticlesHandler{code: c, defs: make(map[string]*SetDefinition), sets: make(map[string]*particleSet)}
	c.State = NewStateMachine(c)
	c.Units = &ConvertUnitsHandler{code: c}
	c.ErrorCodes = &ErrorCodesHandler{codes: make(map[int32]string)}
	c.handlers = []Handler{c.Legacy, c.Methods, c.Properties, c.Parameters, c.Particles, c.State, c.Units, c.ErrorCodes}
	return c
}

// Handler returns the handler of the given kind.
func (c *Code) Handler(kind string) (Handler, bool) {
	for _, h := range c.handlers {
		if h.Kind() == kind {
			return h, true
		}
	}
	return nil, false
}

// Attr resolves name through the handler chain.
func (c *Code) Attr(name string) (interface{}, error) {
	return c.resolve(name, nil)
}

// resolve runs the chain, restricted to the handlers use accepts if use
// is not nil.
func (c *Code) resolve(name string, use func(Handler) bool) (interface{}, error) {
	var v interface{}
	found := false
	for _, h := range c.handlers {
		if use != nil && !use(h) {
			continue
		}
		if !h.Supports(name, found) {
			continue
		}
		var err error
		if v, err = h.Get(name, v); err != nil {
			return nil, err
		}
		found = true
	}
	if !found {
		return nil, &AttributeError{Code: c.Name, Name: name}
	}
	return v, nil
}

// Call calls the method or legacy function name.
func (c *Code) Call(name string, args ...interface{}) ([]interface{}, error) {
	v, err := c.Attr(name)
	if err != nil {
		return nil, err
	}
	switch m := v.(type) {
	case Method:
		return m.Call(args...)
	case incode.Method:
		r, err := m.Call(args, nil)
		if err != nil {
			return nil, err
		}
		return r.Values, nil
	}
	return nil, fmt.Errorf("codeinterface: %s of a '%s' is not callable", name, c.Name)
}

// function returns legacy function name, wrapped by the state machine
// but not converted to units.
func (c *Code) function(name string) (incode.Method, error) {
	v, err := c.resolve(name, func(h Handler) bool { return h == c.Legacy || h == c.State })
	if err != nil {
		return nil, err
	}
	m, ok := v.(incode.Method)
	if !ok {
		return nil, fmt.Errorf("codeinterface: %s of a '%s' is not a legacy function", name, c.Name)
	}
	return m, nil
}

// AttributeNames returns every name some handler knows of, sorted.
func (c *Code) AttributeNames() []string {
	seen := make(map[string]bool)
	var out []string
	for _, h := range c.handlers {
		for _, n := range h.AttributeNames() {
			if !seen[n] {
				seen[n] = true
				out = append(out, n)
			}
		}
	}
	sort.Strings(out)
	return out
}

// Stop stops the worker.
func (c *Code) Stop() error {
	c.Log.WithFields(logrus.Fields{"code": c.Name}).Debug("stopping code")
	return c.Channel.Stop()
}

// LegacyHandler exposes the legacy functions of the worker unchanged.
type LegacyHandler struct {
	functions map[string]*legacy.Function
}

// Kind implements Handler.
func (h *LegacyHandler) Kind() string { return "LEGACY" }

// Supports implements Handler.
func (h *LegacyHandler) Supports(name string, _ bool) bool {
	_, ok := h.functions[name]
	return ok
}

// Get implements Handler.
func (h *LegacyHandler) Get(name string, _ interface{}) (interface{}, error) {
	return h.functions[name], nil
}

// AttributeNames implements Handler.
func (h *LegacyHandler) AttributeNames() []string {
	out := make([]string, 0, len(h.functions))
	for n := range h.functions {
		out = append(out, n)
	}
	return out
}

// Function returns the legacy function name.
func (h *LegacyHandler) Function(name string) (*legacy.Function, bool) {
	f, ok := h.functions[name]
	return f, ok
}

// ErrorCodesHandler holds the descriptions of the error codes of a code.
type ErrorCodesHandler struct {
	codes map[int32]string
}

// Kind implements Handler.
func (h *ErrorCodesHandler) Kind() string { return "ERRORCODE" }

// Supports implements Handler.
func (h *ErrorCodesHandler) Supports(name string, _ bool) bool { return name == "errorcodes" }

// Get implements Handler.
func (h *ErrorCodesHandler) Get(string, interface{}) (interface{}, error) {
	out := make(map[int32]string, len(h.codes))
	for k, v := range h.codes {
		out[k] = v
	}
	return out, nil
}

// AttributeNames implements Handler.
func (h *ErrorCodesHandler) AttributeNames() []string { return []string{"errorcodes"} }

// Add registers the description of an error code.
func (h *ErrorCodesHandler) Add(code int32, description string) { h.codes[code] = description }

// Describe returns the description of code.
func (h *ErrorCodesHandler) Describe(code int32) (string, bool) {
	s, ok := h.codes[code]
	return s, ok
}
