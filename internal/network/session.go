package network

import (
	"fmt"
	"net"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tilewire-project/tilewire/internal/events"
)

// Session is one relayed client: the accepted client connection paired
// with its dedicated upstream connection.
type Session struct {
	id         string
	remoteAddr string
	upstream   string
	openedAt   time.Time

	client net.Conn
	server net.Conn
	logger zerolog.Logger

	mu           sync.Mutex
	state        events.SessionState
	player       uint8
	hasPlayer    bool
	lastActivity time.Time
	closeReason  events.CloseReason

	framesIn  atomic.Uint64
	framesOut atomic.Uint64

	closeOnce sync.Once
	done      chan struct{}
}

// SessionInfo is a JSON-friendly view of a session.
type SessionInfo struct {
	ID           string              `json:"id"`
	RemoteAddr   string              `json:"remote_addr"`
	Upstream     string              `json:"upstream"`
	State        events.SessionState `json:"state"`
	Player       *uint8              `json:"player,omitempty"`
	OpenedAt     time.Time           `json:"opened_at"`
	LastActivity time.Time           `json:"last_activity"`
	FramesIn     uint64              `json:"frames_client_to_server"`
	FramesOut    uint64              `json:"frames_server_to_client"`
}

func newSession(id string, client, server net.Conn) *Session {
	now := time.Now()
	s := &Session{
		id:           id,
		remoteAddr:   client.RemoteAddr().String(),
		upstream:     server.RemoteAddr().String(),
		openedAt:     now,
		client:       client,
		server:       server,
		state:        events.SessionStateConnecting,
		lastActivity: now,
		done:         make(chan struct{}),
	}
	s.logger = log.With().
		Str("component", "session").
		Str("session", id).
		Str("remote", s.remoteAddr).
		Logger()
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// RemoteAddr returns the client address.
func (s *Session) RemoteAddr() string { return s.remoteAddr }

// OpenedAt returns when the client was accepted.
func (s *Session) OpenedAt() time.Time { return s.openedAt }

// Done is closed once the session has been closed.
func (s *Session) Done() <-chan struct{} { return s.done }

// State returns the lifecycle state.
func (s *Session) State() events.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(state events.SessionState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// Player returns the player slot assigned by the server, if any.
func (s *Session) Player() (uint8, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.player, s.hasPlayer
}

// SetPlayer records the player slot the server handed this session.
func (s *Session) SetPlayer(idx uint8) {
	s.mu.Lock()
	s.player = idx
	s.hasPlayer = true
	s.mu.Unlock()
	s.logger.Debug().Uint8("player", idx).Msg("player slot assigned")
}

// Touch marks the session as active now.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

// LastActivity returns the time a frame was last read in either direction.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// CloseReason returns why the session was closed, or "" while it is open.
func (s *Session) CloseReason() events.CloseReason {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeReason
}

// Close tears down both connections. Only the first call has any effect and
// its reason is the one reported.
func (s *Session) Close(reason events.CloseReason) bool {
	closed := false
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.state = events.SessionStateClosing
		s.closeReason = reason
		s.mu.Unlock()

		s.client.Close()
		s.server.Close()
		close(s.done)
		closed = true

		s.logger.Info().Str("reason", string(reason)).Msg("session closed")
	})
	return closed
}

func (s *Session) countFrame(fromClient bool) {
	if fromClient {
		s.framesIn.Add(1)
	} else {
		s.framesOut.Add(1)
	}
}

// Info returns a snapshot of the session.
func (s *Session) Info() SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	info := SessionInfo{
		ID:           s.id,
		RemoteAddr:   s.remoteAddr,
		Upstream:     s.upstream,
		State:        s.state,
		OpenedAt:     s.openedAt,
		LastActivity: s.lastActivity,
		FramesIn:     s.framesIn.Load(),
		FramesOut:    s.framesOut.Load(),
	}
	if s.hasPlayer {
		p := s.player
		info.Player = &p
	}
	return info
}

// SessionRegistry tracks live sessions.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	seq      atomic.Uint64
}

// NewSessionRegistry creates an empty registry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{
		sessions: make(map[string]*Session),
	}
}

// NextID returns a fresh session identifier.
func (r *SessionRegistry) NextID() string {
	return fmt.Sprintf("s-%d", r.seq.Add(1))
}

// Register adds a session to the registry.
func (r *SessionRegistry) Register(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// A reused id replaces the stale entry.
	if existing, ok := r.sessions[s.id]; ok && existing != s {
		existing.Close(events.CloseStale)
	}

	r.sessions[s.id] = s
	log.Debug().Str("session", s.id).Msg("session registered")
}

// Unregister removes a session from the registry.
func (r *SessionRegistry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[id]; ok {
		delete(r.sessions, id)
		log.Debug().Str("session", id).Msg("session unregistered")
	}
}

// Get returns the session with the given id.
func (r *SessionRegistry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// GetAll returns every live session, ordered by open time.
func (r *SessionRegistry) GetAll() []*Session {
	r.mu.RLock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].openedAt.Before(out[j].openedAt)
	})
	return out
}

// Snapshot returns Info for every live session.
func (r *SessionRegistry) Snapshot() []SessionInfo {
	all := r.GetAll()
	out := make([]SessionInfo, len(all))
	for i, s := range all {
		out[i] = s.Info()
	}
	return out
}

// Count returns the number of live sessions.
func (r *SessionRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Kick closes one session by id. It reports false when the id is unknown
// or the session was already closing.
func (r *SessionRegistry) Kick(id string) bool {
	s, ok := r.Get(id)
	if !ok {
		return false
	}
	return s.Close(events.CloseKicked)
}

// CloseAll closes every session. Their relay goroutines unregister them.
func (r *SessionRegistry) CloseAll(reason events.CloseReason) int {
	closed := 0
	for _, s := range r.GetAll() {
		if s.Close(reason) {
			closed++
		}
	}
	if closed > 0 {
		log.Info().Int("count", closed).Str("reason", string(reason)).Msg("closed all sessions")
	}
	return closed
}

// CleanStale closes sessions that have been idle for longer than timeout.
func (r *SessionRegistry) CleanStale(timeout time.Duration) int {
	if timeout <= 0 {
		return 0
	}

	cleaned := 0
	cutoff := time.Now().Add(-timeout)

	for _, s := range r.GetAll() {
		last := s.LastActivity()
		if last.Before(cutoff) && s.Close(events.CloseStale) {
			cleaned++
			log.Warn().
				Str("session", s.id).
				Time("last_activity", last).
				Msg("cleaned stale session")
		}
	}

	return cleaned
}
