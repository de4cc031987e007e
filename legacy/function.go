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

package legacy

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/amuse/channel"
	"github.com/spatialmodel/amuse/message"
)

// MissingParametersError is returned when a call omits input parameters
// that have no default. It names all of them.
type MissingParametersError struct {
	Function string
	Names    []string
}

func (e *MissingParametersError) Error() string {
	return fmt.Sprintf("legacy: not enough parameters in call to %s, missing [%s]", e.Function, strings.Join(e.Names, " "))
}

// CallError wraps a failure of the transport during a call with the name
// of the function.
type CallError struct {
	Function string
	Err      error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("legacy: exception when calling legacy code '%s', exception was '%v'", e.Function, e.Err)
}

func (e *CallError) Unwrap() error { return e.Err }

// Kwargs holds arguments passed by name.
type Kwargs map[string]interface{}

// Function calls one legacy function of a worker over a channel.
type Function struct {
	Spec    *Specification
	Channel channel.Channel
	Log     logrus.FieldLogger
}

// NewFunction binds s to c.
func NewFunction(s *Specification, c channel.Channel) *Function {
	return &Function{Spec: s, Channel: c, Log: logrus.StandardLogger()}
}

// Name returns the name of the function.
func (f *Function) Name() string { return f.Spec.Name }

// Specification returns the signature of the function.
func (f *Function) Specification() *Specification { return f.Spec }

// call is a marshaled call ready to be sent.
type call struct {
	msg   *message.Message
	array bool
	empty bool
}

// bind matches positional and named arguments to the input parameters
// and encodes them. No I/O happens here, so marshaling errors leave the
// channel untouched.
func (f *Function) bind(args []interface{}, kwargs Kwargs) (*call, error) {
	inputs := f.Spec.Inputs()
	if len(args) > len(inputs) {
		return nil, fmt.Errorf("legacy: %s takes %d arguments, got %d", f.Spec.Name, len(inputs), len(args))
	}
	for name := range kwargs {
		if p, ok := f.Spec.Parameter(name); !ok || !p.Direction.IsInput() {
			return nil, fmt.Errorf("legacy: %s has no input parameter %s", f.Spec.Name, name)
		}
	}
	values := make([]interface{}, len(inputs))
	var missing []string
	for i, p := range inputs {
		switch v, named := kwargs[p.Name]; {
		case i < len(args) && named:
			return nil, fmt.Errorf("legacy: %s: parameter %s given by position and by name", f.Spec.Name, p.Name)
		case i < len(args):
			values[i] = args[i]
		case named:
			values[i] = v
		case p.HasDefault:
			values[i] = p.Default
		default:
			missing = append(missing, p.Name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, &MissingParametersError{Function: f.Spec.Name, Names: missing}
	}

	// A call is an array call if any argument is a non-empty slice.
	n, array, sawSlice := 1, false, false
	for _, v := range values {
		if l, ok := columnLen(v); ok {
			sawSlice = true
			if l > 0 {
				array = true
				if l > n || n == 1 {
					n = l
				}
			}
		}
	}
	if sawSlice && !array {
		return &call{empty: true, array: true}, nil
	}
	if array && n > 1 && !f.Spec.CanHandleArray {
		return nil, fmt.Errorf("legacy: %s cannot be called with arrays", f.Spec.Name)
	}

	in := NewBatch(n)
	for i, p := range inputs {
		col, err := toColumn(p.Type, values[i], n)
		if err != nil {
			return nil, fmt.Errorf("legacy: %s: parameter %s: %v", f.Spec.Name, p.Name, err)
		}
		in.Set(p.Name, col)
	}
	m, err := EncodeCall(f.Spec, in)
	if err != nil {
		return nil, err
	}
	return &call{msg: m, array: array || f.Spec.MustHandleArray}, nil
}

// Call invokes the function with positional arguments args and named
// arguments kwargs. Arguments are scalars or slices; a call with at
// least one non-empty slice addresses one entity per element.
func (f *Function) Call(args []interface{}, kwargs Kwargs) (*Result, error) {
	c, err := f.bind(args, kwargs)
	if err != nil {
		return nil, err
	}
	if c.empty {
		return f.emptyResult(), nil
	}
	f.Log.WithFields(logrus.Fields{
		"function": f.Spec.Name,
		"tag":      f.Spec.Tag,
		"length":   c.msg.Length,
	}).Debug("calling legacy function")
	reply, err := channel.Call(f.Channel, c.msg)
	if err != nil {
		return nil, &CallError{Function: f.Spec.Name, Err: err}
	}
	return f.result(reply, c.array)
}

// Invoke is Call with positional arguments only.
func (f *Function) Invoke(args ...interface{}) (*Result, error) {
	return f.Call(args, nil)
}

func (f *Function) result(reply *message.Message, array bool) (*Result, error) {
	out, err := DecodeReply(f.Spec, reply)
	if err != nil {
		return nil, &CallError{Function: f.Spec.Name, Err: err}
	}
	r := &Result{Array: array, Length: out.Length}
	for _, name := range f.Spec.ResultNames() {
		col := out.Column(name)
		var v interface{} = col
		if !array {
			if out.Length < 1 {
				return nil, &CallError{Function: f.Spec.Name, Err: fmt.Errorf("empty reply")}
			}
			v = element(col, 0)
		}
		r.Names = append(r.Names, name)
		r.Values = append(r.Values, v)
	}
	return r, nil
}

func (f *Function) emptyResult() *Result {
	r := &Result{Array: true}
	for _, name := range f.Spec.ResultNames() {
		t := f.Spec.ResultType
		if name != ResultName {
			p, _ := f.Spec.Parameter(name)
			t = p.Type
		}
		r.Names = append(r.Names, name)
		r.Values = append(r.Values, zeroColumn(t, 0))
	}
	return r
}

// Go sends the call and returns without waiting for the reply.
func (f *Function) Go(args []interface{}, kwargs Kwargs) (*Pending, error) {
	c, err := f.bind(args, kwargs)
	if err != nil {
		return nil, err
	}
	if c.empty {
		return &Pending{f: f, done: f.emptyResult()}, nil
	}
	req, err := channel.Go(f.Channel, c.msg)
	if err != nil {
		return nil, &CallError{Function: f.Spec.Name, Err: err}
	}
	req.AddResultHandler(func(v interface{}) (interface{}, error) {
		return f.result(v.(*message.Message), c.array)
	})
	return &Pending{f: f, req: req}, nil
}

// Pending is the handle of an asynchronous call.
type Pending struct {
	f    *Function
	req  *channel.Request
	done *Result
}

// IsResultAvailable reports, without blocking, whether the reply has
// arrived.
func (p *Pending) IsResultAvailable() bool {
	return p.req == nil || p.req.IsResultAvailable()
}

// Wait blocks until the reply has arrived.
func (p *Pending) Wait() error {
	if p.req == nil {
		return nil
	}
	if err := p.req.Wait(); err != nil {
		return &CallError{Function: p.f.Spec.Name, Err: err}
	}
	return nil
}

// Result waits for and decodes the reply. The reply is decoded once.
func (p *Pending) Result() (*Result, error) {
	if p.req == nil {
		return p.done, nil
	}
	v, err := p.req.Result()
	if err != nil {
		if _, ok := err.(*CallError); ok {
			return nil, err
		}
		return nil, &CallError{Function: p.f.Spec.Name, Err: err}
	}
	return v.(*Result), nil
}

// Result holds the values returned by a call in the order of the output
// parameters, followed by the result of the function. In an array call
// every value is a slice with one element per entity; otherwise it is a
// scalar.
type Result struct {
	Names  []string
	Values []interface{}
	Array  bool
	Length int
}

// Get returns the value called name.
func (r *Result) Get(name string) (interface{}, bool) {
	for i, n := range r.Names {
		if n == name {
			return r.Values[i], true
		}
	}
	return nil, false
}

// Value returns the single value of a function with one output or only
// a result. For functions with several outputs it returns nil.
func (r *Result) Value() interface{} {
	if len(r.Values) == 1 {
		return r.Values[0]
	}
	return nil
}

// Float64s returns the named value as doubles. A scalar becomes a slice
// of one element.
func (r *Result) Float64s(name string) []float64 {
	switch v := r.lookup(name).(type) {
	case []float64:
		return v
	case float64:
		return []float64{v}
	case []float32:
		out := make([]float64, len(v))
		for i, x := range v {
			out[i] = float64(x)
		}
		return out
	case float32:
		return []float64{float64(v)}
	}
	return nil
}

// Int32s returns the named value as int32 values.
func (r *Result) Int32s(name string) []int32 {
	switch v := r.lookup(name).(type) {
	case []int32:
		return v
	case int32:
		return []int32{v}
	}
	return nil
}

// Int64s returns the named value as int64 values.
func (r *Result) Int64s(name string) []int64 {
	switch v := r.lookup(name).(type) {
	case []int64:
		return v
	case int64:
		return []int64{v}
	}
	return nil
}

// Strings returns the named value as strings.
func (r *Result) Strings(name string) []string {
	switch v := r.lookup(name).(type) {
	case []string:
		return v
	case string:
		return []string{v}
	}
	return nil
}

// Bools returns the named value as booleans.
func (r *Result) Bools(name string) []bool {
	switch v := r.lookup(name).(type) {
	case []bool:
		return v
	case bool:
		return []bool{v}
	}
	return nil
}

// Code returns the first value of the int32 result of the function, the
// error code by convention. It returns 0 if there is no such result.
func (r *Result) Code() int32 {
	c := r.Int32s(ResultName)
	if len(c) == 0 {
		return 0
	}
	return c[0]
}

// Codes returns the int32 result of the function for every entity.
func (r *Result) Codes() []int32 { return r.Int32s(ResultName) }

// lookup resolves "" to the single value of the result.
func (r *Result) lookup(name string) interface{} {
	if name == "" {
		return r.Value()
	}
	v, _ := r.Get(name)
	return v
}
