// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package session keeps the research sessions created by the deep and
// quick research tools so that follow-up calls can find them by id.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/pdiddy/research-mcp/internal/engine"
	"github.com/pdiddy/research-mcp/internal/envelope"
)

// ErrNotFound is returned by Get for ids that are unknown or evicted.
var ErrNotFound = fmt.Errorf("research session %w", envelope.ErrNotFound)

// Session binds a generated id to one query and its research handle.
// ID, Query, Mode and CreatedAt never change after creation.
type Session struct {
	ID         string
	Query      string
	Mode       engine.Mode
	CreatedAt  time.Time
	Researcher engine.Researcher

	// lock is a one-slot semaphore so waiting can honour a context.
	lock chan struct{}
}

// Do runs fn while holding the session's lock. Operations on the same
// session are serialized; Do returns ctx.Err() if ctx ends while waiting.
func (s *Session) Do(ctx context.Context, fn func(engine.Researcher) error) error {
	select {
	case s.lock <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-s.lock }()
	return fn(s.Researcher)
}

// Options bounds the registry. Zero values mean unbounded and no expiry.
type Options struct {
	MaxSessions int
	TTL         time.Duration
}

// Registry maps session ids to sessions. It is safe for concurrent use.
type Registry struct {
	mu       sync.Mutex
	sessions *expirable.LRU[string, *Session]
	newID    func() (string, error)
	now      func() time.Time
}

// New returns an empty registry.
func New(opts Options) *Registry {
	return &Registry{
		sessions: expirable.NewLRU[string, *Session](opts.MaxSessions, nil, opts.TTL),
		newID: func() (string, error) {
			id, err := uuid.NewRandom()
			if err != nil {
				return "", err
			}
			return id.String(), nil
		},
		now: time.Now,
	}
}

// Create stores a new session for query and returns it. It fails only if a
// fresh id cannot be generated.
func (r *Registry) Create(query string, mode engine.Mode, researcher engine.Researcher) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var id string
	for {
		var err error
		id, err = r.newID()
		if err != nil {
			return nil, fmt.Errorf("generating session id: %w", err)
		}
		if !r.sessions.Contains(id) {
			break
		}
	}

	s := &Session{
		ID:         id,
		Query:      query,
		Mode:       mode,
		CreatedAt:  r.now().UTC(),
		Researcher: researcher,
		lock:       make(chan struct{}, 1),
	}
	r.sessions.Add(id, s)
	return s, nil
}

// Get returns the session stored under id or ErrNotFound.
func (r *Registry) Get(id string) (*Session, error) {
	s, ok := r.sessions.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return s, nil
}

// Len reports the number of stored sessions, including any expired ones
// not yet purged.
func (r *Registry) Len() int {
	return r.sessions.Len()
}
