// Package hub fans each persisted fix out to every session subscribed to a
// matching topic. One Hub instance is constructed at startup and handed to
// every connection-accepting component; there is no ambient global.
package hub

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"tracking-svr/internal/apperr"
	"tracking-svr/internal/model"
	"tracking-svr/internal/observability"
	"tracking-svr/internal/store"
)

var errShutDown = errors.New("hub is shut down")

type Hub struct {
	store     store.Store
	logger    *slog.Logger
	queueSize int
	freshness time.Duration

	mu       sync.RWMutex
	topics   map[Topic]map[*Session]struct{}
	sessions map[*Session]struct{}
	closed   bool
}

func New(st store.Store, logger *slog.Logger, queueSize int, freshness time.Duration) *Hub {
	if queueSize <= 0 {
		queueSize = 64
	}
	if freshness <= 0 {
		freshness = 5 * time.Minute
	}
	return &Hub{
		store:     st,
		logger:    logger,
		queueSize: queueSize,
		freshness: freshness,
		topics:    map[Topic]map[*Session]struct{}{},
		sessions:  map[*Session]struct{}{},
	}
}

// NewSession registers a fresh session. The caller owns its lifecycle and
// must eventually call Disconnect. After Shutdown the returned session is
// already closed and will never receive events.
func (h *Hub) NewSession() *Session {
	s := newSession(h, h.queueSize)
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		s.close()
		return s
	}
	h.sessions[s] = struct{}{}
	h.mu.Unlock()
	observability.SessionsActive.Inc()
	return s
}

// Subscribe adds the session to a topic's fan-out set. Idempotent. For
// vehicle and all topics the current state is pushed as a one-shot backfill
// before any live update for that topic reaches the session.
func (h *Hub) Subscribe(ctx context.Context, s *Session, topic Topic) error {
	if _, err := ParseTopic(string(topic)); err != nil {
		return err
	}

	s.subMu.Lock()
	defer s.subMu.Unlock()

	h.mu.RLock()
	_, already := h.topics[topic][s]
	h.mu.RUnlock()
	if already {
		return nil
	}

	// Backfill first, then register: a fix published in between is simply
	// one published before the subscription existed.
	h.backfill(ctx, s, topic)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return errShutDown
	}
	set, ok := h.topics[topic]
	if !ok {
		set = map[*Session]struct{}{}
		h.topics[topic] = set
	}
	set[s] = struct{}{}
	h.mu.Unlock()
	return nil
}

func (h *Hub) backfill(ctx context.Context, s *Session, topic Topic) {
	switch {
	case topic == TopicAll:
		fixes, err := h.store.AllActive(ctx, h.freshness)
		if err != nil {
			h.logger.Warn("backfill all failed", "error", err)
			return
		}
		s.push(Event{Type: EventActiveSnapshot, Fixes: fixes})
		observability.Backfills.Inc()
	case strings.HasPrefix(string(topic), "vehicle:"):
		id := strings.TrimPrefix(string(topic), "vehicle:")
		fix, err := h.store.Latest(ctx, id)
		if err != nil {
			// No recent fix is an empty backfill, not an error.
			if !apperr.IsNotFound(err) {
				h.logger.Warn("backfill vehicle failed", "vehicle", id, "error", err)
			}
			return
		}
		s.push(Event{Type: EventFixUpdate, Fix: &fix})
		observability.Backfills.Inc()
	}
}

// Unsubscribe removes the session from a topic. Idempotent.
func (h *Hub) Unsubscribe(s *Session, topic Topic) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	h.mu.Lock()
	if set, ok := h.topics[topic]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(h.topics, topic)
		}
	}
	h.mu.Unlock()
}

// Publish fans a fix out to every matching subscriber. It never blocks on a
// subscriber's queue and never reports delivery failure to the caller;
// persistence has already happened by the time this runs.
func (h *Hub) Publish(fix model.Fix) {
	ev := Event{Type: EventFixUpdate, Fix: &fix}

	h.mu.RLock()
	targets := make(map[*Session]struct{})
	for s := range h.topics[VehicleTopic(fix.VehicleID)] {
		targets[s] = struct{}{}
	}
	if fix.RouteID != "" {
		for s := range h.topics[RouteTopic(fix.RouteID)] {
			targets[s] = struct{}{}
		}
	}
	for s := range h.topics[TopicAll] {
		targets[s] = struct{}{}
	}
	h.mu.RUnlock()

	for s := range targets {
		s.push(ev)
	}
	if len(targets) > 0 {
		observability.EventsPublished.Add(float64(len(targets)))
	}
}

// Disconnect atomically removes all of the session's subscriptions and
// closes it. Safe to call multiple times.
func (h *Hub) Disconnect(s *Session) {
	h.mu.Lock()
	if _, ok := h.sessions[s]; ok {
		delete(h.sessions, s)
		observability.SessionsActive.Dec()
	}
	for topic, set := range h.topics {
		delete(set, s)
		if len(set) == 0 {
			delete(h.topics, topic)
		}
	}
	h.mu.Unlock()
	s.close()
}

// Shutdown closes every session and refuses further subscriptions.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	h.closed = true
	sessions := make([]*Session, 0, len(h.sessions))
	for s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.Unlock()
	for _, s := range sessions {
		h.Disconnect(s)
	}
}
