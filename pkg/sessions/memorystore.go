package sessions

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	ErrSessionNotFound = errors.New("no session registered")
	ErrSessionExpired  = errors.New("session has expired")
)

type InMemoryStoreParams struct {
	// Seconds without activity after which a session stops accepting
	// remote control commands. Zero disables expiry.
	ExpireAfterIdleTime int
}

func NewInMemoryStore(params *InMemoryStoreParams, logger *logrus.Logger) SessionStore {
	return &inMemoryStore{
		params:   params,
		sessions: map[string]*internalSessionState{},
		logger:   logger,
		now:      time.Now,
	}
}

type inMemoryStore struct {
	mu       sync.Mutex
	params   *InMemoryStoreParams
	sessions map[string]*internalSessionState
	logger   *logrus.Logger
	now      func() time.Time
}

type internalSessionState struct {
	activeRemote string
	dacpID       string
	handler      CommandHandler
	lastAccessed time.Time
	// Expired sessions are kept as soft deletes so a receiver addressing
	// a stale Active-Remote gets told it expired rather than not found.
	expired bool
}

func (s *inMemoryStore) Register(activeRemote string, dacpID string, handler CommandHandler) (SessionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if activeRemote == "" {
		return SessionState{}, errors.New("active remote must not be empty")
	}

	session := &internalSessionState{
		activeRemote: activeRemote,
		dacpID:       dacpID,
		handler:      handler,
		lastAccessed: s.now(),
	}
	s.sessions[activeRemote] = session
	s.logger.Debug("registered session for active remote ", activeRemote)

	return session.snapshot(), nil
}

func (s *inMemoryStore) Get(activeRemote string) (SessionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session := s.sessions[activeRemote]
	if session == nil {
		return SessionState{}, fmt.Errorf("%w for active remote (%s)", ErrSessionNotFound, activeRemote)
	}

	if s.checkExpiredAndUpdateIfNeeded(session) {
		return SessionState{}, fmt.Errorf("%w for active remote (%s)", ErrSessionExpired, activeRemote)
	}

	return session.snapshot(), nil
}

func (s *inMemoryStore) Remove(activeRemote string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, activeRemote)
}

func (s *inMemoryStore) checkExpiredAndUpdateIfNeeded(session *internalSessionState) bool {
	if session.expired {
		return true
	}

	now := s.now()
	idleLimit := time.Duration(s.params.ExpireAfterIdleTime) * time.Second
	if idleLimit > 0 && session.lastAccessed.Add(idleLimit).Before(now) {
		s.logger.Debug("Setting session to expired ", session.activeRemote, " idle since ", session.lastAccessed)
		session.expired = true
	}
	session.lastAccessed = now

	return session.expired
}

func (s *internalSessionState) snapshot() SessionState {
	return SessionState{
		ActiveRemote: s.activeRemote,
		DACPID:       s.dacpID,
		Handler:      s.handler,
	}
}
