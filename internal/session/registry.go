// Package session tracks gateway-owned client sessions: assignment of the
// monotonic sessionId on logon, and per-session client sequence number
// validation. The registry is the one structure in the gateway mutated
// by more than one goroutine - writes from logon/close on a connection's
// own I/O goroutine, reads from the egress router - so it is guarded by
// a single RWMutex; contention is expected to be negligible since only
// logon and disconnect mutate it.
package session

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// SeqResult is the outcome of validating an inbound clientSeqNo against a
// session's lastSeqNo.
type SeqResult int

const (
	SeqAccept SeqResult = iota
	SeqDuplicate
	SeqGap
)

func (r SeqResult) String() string {
	switch r {
	case SeqAccept:
		return "ACCEPT"
	case SeqDuplicate:
		return "DUPLICATE"
	case SeqGap:
		return "GAP"
	default:
		return "UNKNOWN"
	}
}

// Channel is the gateway's non-owning handle to a client's TCP connection,
// used by the egress router to write outbound frames back to the client.
// The session holds a reference only; the gateway's connection handler
// owns the lifetime.
type Channel interface {
	Write(frame []byte) error
}

// Session is one logged-on client. lastSeqNo is only ever mutated by the
// owning connection's I/O goroutine via ValidateAndAdvance, but is read
// from other goroutines (e.g. diagnostics), so it is an atomic value.
type Session struct {
	SessionID uint32
	ClientID  uint64
	Channel   Channel

	lastSeqNo atomic.Uint64
}

// ValidateAndAdvance compares seqNo against lastSeqNo+1. Only a match
// advances lastSeqNo; earlier values are DUPLICATE, later ones are GAP.
func (s *Session) ValidateAndAdvance(seqNo uint64) SeqResult {
	last := s.lastSeqNo.Load()
	switch {
	case seqNo == last+1:
		s.lastSeqNo.Store(seqNo)
		return SeqAccept
	case seqNo <= last:
		return SeqDuplicate
	default:
		return SeqGap
	}
}

// LastSeqNo returns the last accepted clientSeqNo.
func (s *Session) LastSeqNo() uint64 { return s.lastSeqNo.Load() }

// Registry is the gateway-wide sessionId -> Session map. SessionIDs are
// assigned from a monotonic counter starting at 1 and are never reused.
type Registry struct {
	mu       sync.RWMutex
	sessions map[uint32]*Session
	nextID   atomic.Uint32
	logger   *zap.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		sessions: make(map[uint32]*Session),
		logger:   logger,
	}
}

// Register assigns a new sessionId to clientID and stores its channel,
// transitioning the connection from UNAUTH to READY.
func (r *Registry) Register(clientID uint64, ch Channel) *Session {
	id := r.nextID.Add(1)
	s := &Session{SessionID: id, ClientID: clientID, Channel: ch}

	r.mu.Lock()
	r.sessions[id] = s
	r.mu.Unlock()

	r.logger.Debug("session registered",
		zap.Uint32("session_id", id), zap.Uint64("client_id", clientID))
	return s
}

// Get resolves a sessionId, returning ok=false if the session is unknown
// or has been removed (e.g. by a concurrent disconnect).
func (r *Registry) Get(sessionID uint32) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[sessionID]
	return s, ok
}

// Remove deletes a session from the registry, called on TCP close.
func (r *Registry) Remove(sessionID uint32) {
	r.mu.Lock()
	delete(r.sessions, sessionID)
	r.mu.Unlock()

	r.logger.Debug("session removed", zap.Uint32("session_id", sessionID))
}

// Len returns the number of currently registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
