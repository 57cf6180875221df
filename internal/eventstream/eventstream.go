// Package eventstream multiplexes the results of many operations onto one
// long-lived event stream per client token.
//
// A token moves from unreserved to reserved when a client opens the stream
// and to closed when that connection ends. Operations carrying the token
// publish frames onto the stream instead of answering on their own response.
package eventstream

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

var (
	ErrReserved           = errors.New("eventstream: token already reserved")
	ErrUnknownToken       = errors.New("eventstream: unknown token")
	ErrClosed             = errors.New("eventstream: stream closed")
	ErrOperationExists    = errors.New("eventstream: operation id already running")
	ErrOperationIDMissing = errors.New("eventstream: missing operation id")
)

// frameBuffer is the number of frames queued ahead of a slow reader before
// publishers block.
const frameBuffer = 32

// Hub tracks the reserved streams.
type Hub struct {
	mu      sync.Mutex
	streams map[string]*Stream
}

// NewHub returns an empty hub.
func NewHub() *Hub { return &Hub{streams: map[string]*Stream{}} }

// Issue returns a fresh token.
func (h *Hub) Issue() string { return uuid.NewString() }

// Reserve binds token to a new stream. It fails with ErrReserved while
// another connection holds the token.
func (h *Hub) Reserve(token string) (*Stream, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.streams[token]; ok {
		return nil, ErrReserved
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Stream{
		token:  token,
		frames: make(chan []byte, frameBuffer),
		done:   make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
		ops:    map[string]context.CancelFunc{},
	}
	h.streams[token] = s
	return s, nil
}

// Lookup returns the stream reserved for token.
func (h *Hub) Lookup(token string) (*Stream, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.streams[token]
	if !ok {
		return nil, ErrUnknownToken
	}
	return s, nil
}

// Release closes s and frees its token. Publishers get ErrClosed and running
// operations are cancelled.
func (h *Hub) Release(s *Stream) {
	h.mu.Lock()
	if h.streams[s.token] == s {
		delete(h.streams, s.token)
	}
	h.mu.Unlock()
	s.close()
}

// Len returns the number of reserved streams.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.streams)
}

// Stream is one reserved connection.
type Stream struct {
	token  string
	frames chan []byte
	done   chan struct{}
	once   sync.Once

	ctx    context.Context
	cancel context.CancelFunc

	mu  sync.Mutex
	ops map[string]context.CancelFunc
}

// Token returns the token the stream is reserved for.
func (s *Stream) Token() string { return s.token }

// Frames delivers published frames in publish order.
func (s *Stream) Frames() <-chan []byte { return s.frames }

// Done is closed when the stream is released.
func (s *Stream) Done() <-chan struct{} { return s.done }

// Publish queues frame for the stream's reader.
func (s *Stream) Publish(ctx context.Context, frame []byte) error {
	select {
	case <-s.done:
		return ErrClosed
	default:
	}
	select {
	case s.frames <- frame:
		return nil
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Start registers operation id and returns its context. The context keeps
// the values of parent but not its cancellation: it ends when the stream is
// released, when Stop(id) is called or when finish runs.
func (s *Stream) Start(parent context.Context, id string) (ctx context.Context, finish func(), err error) {
	if id == "" {
		return nil, nil, ErrOperationIDMissing
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.done:
		return nil, nil, ErrClosed
	default:
	}
	if _, ok := s.ops[id]; ok {
		return nil, nil, ErrOperationExists
	}
	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	stop := context.AfterFunc(s.ctx, cancel)
	s.ops[id] = cancel
	finish = func() {
		stop()
		cancel()
		s.mu.Lock()
		delete(s.ops, id)
		s.mu.Unlock()
	}
	return ctx, finish, nil
}

// Stop cancels the running operation id and reports whether it existed.
func (s *Stream) Stop(id string) bool {
	s.mu.Lock()
	cancel, ok := s.ops[id]
	s.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

func (s *Stream) close() {
	s.once.Do(func() {
		close(s.done)
		s.cancel()
	})
}
