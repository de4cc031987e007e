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
	"sync"

	"github.com/spatialmodel/amuse/message"
)

// ResultHandler transforms the value of a Request. Handlers run in the
// order they were added, each receiving the output of the previous one;
// the first receives the reply *message.Message.
type ResultHandler func(v interface{}) (interface{}, error)

// Request is a handle to the reply of an asynchronous call.
type Request struct {
	done chan struct{}
	msg  *message.Message
	err  error

	mu       sync.Mutex
	handlers []ResultHandler

	once   sync.Once
	result interface{}
	resErr error
}

func newRequest() *Request {
	return &Request{done: make(chan struct{})}
}

func (r *Request) complete(m *message.Message, err error) {
	r.msg, r.err = m, err
	close(r.done)
}

// AddResultHandler appends h to the handlers run by Result. Handlers
// added after Result has been called are ignored.
func (r *Request) AddResultHandler(h ResultHandler) {
	r.mu.Lock()
	r.handlers = append(r.handlers, h)
	r.mu.Unlock()
}

// IsResultAvailable reports, without blocking, whether the reply has
// arrived.
func (r *Request) IsResultAvailable() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the reply has arrived and returns the transport
// error, if any.
func (r *Request) Wait() error {
	<-r.done
	return r.err
}

// Result waits for the reply and returns it after passing it through the
// result handlers. The handlers run once; later calls return the same
// value.
func (r *Request) Result() (interface{}, error) {
	<-r.done
	r.once.Do(func() {
		if r.err != nil {
			r.resErr = r.err
			return
		}
		r.mu.Lock()
		handlers := r.handlers
		r.mu.Unlock()
		var v interface{} = r.msg
		for _, h := range handlers {
			var err error
			if v, err = h(v); err != nil {
				r.resErr = err
				return
			}
		}
		r.result = v
	})
	return r.result, r.resErr
}

// Message waits for the reply and returns it without running handlers.
func (r *Request) Message() (*message.Message, error) {
	<-r.done
	return r.msg, r.err
}
