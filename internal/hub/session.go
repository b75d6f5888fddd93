package hub

import (
	"sync"

	"tracking-svr/internal/auth"
	"tracking-svr/internal/model"
	"tracking-svr/internal/observability"
)

// Event is one message queued for delivery to a session.
type Event struct {
	Type  string      `json:"type"`
	Fix   *model.Fix  `json:"fix,omitempty"`
	Fixes []model.Fix `json:"fixes,omitempty"`
}

const (
	EventFixUpdate      = "fix:update"
	EventActiveSnapshot = "active:snapshot"
)

// Session is the per-connection state: identity, subscriptions and the
// bounded outbound queue. The transport's write pump drains Events().
type Session struct {
	hub *Hub

	send chan Event
	done chan struct{}
	once sync.Once

	// subMu serializes subscribe/unsubscribe for this session so that the
	// one-shot backfill lands before any live event for the same topic.
	subMu sync.Mutex

	mu        sync.Mutex
	principal auth.Principal
}

func newSession(h *Hub, queueSize int) *Session {
	return &Session{
		hub:  h,
		send: make(chan Event, queueSize),
		done: make(chan struct{}),
	}
}

// Events is the outbound queue; closed-session detection is via Done.
func (s *Session) Events() <-chan Event { return s.send }

// Done is closed when the session is disconnected.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) SetPrincipal(p auth.Principal) {
	s.mu.Lock()
	s.principal = p
	s.mu.Unlock()
}

func (s *Session) Principal() auth.Principal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.principal
}

// push enqueues without ever blocking the caller. When the queue is full
// the oldest event is dropped so a slow client cannot stall the publisher.
func (s *Session) push(ev Event) {
	select {
	case <-s.done:
		return
	default:
	}
	for {
		select {
		case s.send <- ev:
			return
		default:
		}
		select {
		case <-s.send:
			observability.EventsDropped.Inc()
		default:
		}
	}
}

func (s *Session) close() {
	s.once.Do(func() { close(s.done) })
}
