// Package sessions tracks in-flight authorization requests between the
// /authorize redirect out to Google and the callback that returns. Sessions
// live only in memory: a restart mid-consent just means the user signs in
// again.
package sessions

import (
	"sync"
	"time"

	"github.com/veslink/calendar-mcp/pkg/random"
)

const (
	// TTL bounds how long a user can sit on the Google consent screen.
	TTL = 10 * time.Minute

	sweepInterval = 5 * time.Minute
	idBytes       = 24
)

// Session captures everything the callback needs to resume an authorization
// request: the client binding, the PKCE challenge to stamp onto the code, and
// the client's own redirect target and state.
type Session struct {
	ID            string
	ClientID      string
	CodeChallenge string
	RedirectURI   string
	State         string
	Account       string
	CreatedAt     time.Time
}

// Store holds pending sessions keyed by ID.
type Store struct {
	mu        sync.Mutex
	sessions  map[string]*Session
	gen       random.Generator
	stopSweep chan struct{}
	sweepOnce sync.Once
}

func New(gen random.Generator) *Store {
	return &Store{
		sessions:  make(map[string]*Session),
		gen:       gen,
		stopSweep: make(chan struct{}),
	}
}

// Start begins evicting abandoned sessions. Close stops it.
func (s *Store) Start() {
	go func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stopSweep:
				return
			case <-ticker.C:
				s.sweep()
			}
		}
	}()
}

func (s *Store) Close() error {
	s.sweepOnce.Do(func() { close(s.stopSweep) })
	return nil
}

// Create records a new pending session and returns it with a fresh ID.
func (s *Store) Create(clientID, codeChallenge, redirectURI, state, account string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := &Session{
		ID:            s.gen.String(idBytes),
		ClientID:      clientID,
		CodeChallenge: codeChallenge,
		RedirectURI:   redirectURI,
		State:         state,
		Account:       account,
		CreatedAt:     time.Now(),
	}
	s.sessions[sess.ID] = sess
	return sess
}

// Consume removes and returns the session in one step, so a replayed callback
// finds nothing. An expired session is dropped and reported absent.
func (s *Store) Consume(id string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	delete(s.sessions, id)
	if time.Since(sess.CreatedAt) > TTL {
		return nil, false
	}
	return sess, true
}

func (s *Store) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, sess := range s.sessions {
		if time.Since(sess.CreatedAt) > TTL {
			delete(s.sessions, id)
		}
	}
}
