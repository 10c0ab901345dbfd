package server

import (
	"fmt"
	"sync"

	"github.com/chazu/embedrun/vm"
)

// vmRequest is a unit of work to run on the session goroutine.
type vmRequest struct {
	fn   func(*vm.Session) interface{}
	done chan vmResult
}

type vmResult struct {
	value interface{}
	err   error
}

// VMWorker serializes all access to one Session through a single
// goroutine. Sessions are single-threaded and their pending exception
// slot is read-then-clear, so concurrent handlers must go through here.
type VMWorker struct {
	session  *vm.Session
	requests chan vmRequest
	quit     chan struct{}
	stopOnce sync.Once
}

// NewVMWorker creates a VMWorker and starts the processing goroutine.
func NewVMWorker(s *vm.Session) *VMWorker {
	w := &VMWorker{
		session:  s,
		requests: make(chan vmRequest, 64),
		quit:     make(chan struct{}),
	}
	go w.loop()
	return w
}

func (w *VMWorker) loop() {
	for {
		select {
		case req := <-w.requests:
			// both cases may be ready; a stopped worker never runs work
			select {
			case <-w.quit:
				return
			default:
			}
			req.done <- w.execute(req.fn)
		case <-w.quit:
			return
		}
	}
}

// execute runs fn on the session, turning panics into errors. A panic
// may leave an exception pending, so the slot is cleared on that path.
func (w *VMWorker) execute(fn func(*vm.Session) interface{}) (result vmResult) {
	defer func() {
		if r := recover(); r != nil {
			w.session.ClearException()
			result.err = fmt.Errorf("%v", r)
		}
	}()
	result.value = fn(w.session)
	return result
}

// Do submits fn for execution on the session goroutine and blocks until
// it completes.
func (w *VMWorker) Do(fn func(*vm.Session) interface{}) (interface{}, error) {
	req := vmRequest{
		fn:   fn,
		done: make(chan vmResult, 1),
	}
	select {
	case <-w.quit:
		return nil, ErrStopped
	default:
	}
	select {
	case w.requests <- req:
	case <-w.quit:
		return nil, ErrStopped
	}
	select {
	case result := <-req.done:
		return result.value, result.err
	case <-w.quit:
		return nil, ErrStopped
	}
}

// Stop shuts down the worker goroutine. Pending Do calls return
// ErrStopped.
func (w *VMWorker) Stop() {
	w.stopOnce.Do(func() { close(w.quit) })
}
