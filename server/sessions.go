package server

import (
	"sync"
	"time"

	"github.com/black-roland/homeassistant-yandexgpt/conversation"
)

type session struct {
	mu       sync.Mutex
	log      *conversation.ChatLog
	lastUsed time.Time
	active   int
}

// Sessions keeps chat logs per conversation id. Turns for one conversation
// are serialised.
type Sessions struct {
	mu   sync.Mutex
	ttl  time.Duration
	now  func() time.Time
	byID map[string]*session
}

func NewSessions(ttl time.Duration) *Sessions {
	return &Sessions{ttl: ttl, now: time.Now, byID: make(map[string]*session)}
}

// Acquire returns the log for id, creating it when unknown or empty, and
// holds the conversation until release is called.
func (s *Sessions) Acquire(id string) (*conversation.ChatLog, func()) {
	s.mu.Lock()
	s.evictLocked()
	sess, ok := s.byID[id]
	if !ok || id == "" {
		log := conversation.NewChatLog(id)
		sess = &session{log: log}
		s.byID[log.ConversationID] = sess
	}
	sess.active++
	s.mu.Unlock()

	sess.mu.Lock()
	return sess.log, func() {
		sess.mu.Unlock()
		s.mu.Lock()
		sess.active--
		sess.lastUsed = s.now()
		s.mu.Unlock()
	}
}

// Len reports the number of live conversations.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}

func (s *Sessions) evictLocked() {
	if s.ttl <= 0 {
		return
	}
	cutoff := s.now().Add(-s.ttl)
	for id, sess := range s.byID {
		if sess.active == 0 && sess.lastUsed.Before(cutoff) {
			delete(s.byID, id)
		}
	}
}
