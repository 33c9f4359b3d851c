package adapter

import (
	"context"
	"sync"
)

// Session is the Token shared by feed implementations. The feed goroutine
// calls Finish exactly once when the connection is gone.
type Session struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
	err    error
}

// NewSession returns a Session whose Unsubscribe invokes cancel.
func NewSession(cancel context.CancelFunc) *Session {
	return &Session{cancel: cancel, done: make(chan struct{})}
}

func (s *Session) Unsubscribe() { s.cancel() }

func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

// Finish records err and closes Done. Later calls are ignored.
func (s *Session) Finish(err error) {
	s.once.Do(func() {
		s.err = err
		close(s.done)
	})
}
