package service

import (
	"sync"

	"github.com/Wyydra/yacall/internal/core/domain"
)

type presenceMark struct {
	seq    uint64
	online bool
}

// presenceLog numbers every presence change the coordinator applies and
// keeps the latest one per user, so a lookup made outside the loop can be
// checked against what arrived while it was in flight.
type presenceLog struct {
	mu   sync.Mutex
	seq  uint64
	last map[domain.UserID]presenceMark
}

func newPresenceLog() *presenceLog {
	return &presenceLog{last: make(map[domain.UserID]presenceMark)}
}

// Seq is the number of the latest observed change.
func (l *presenceLog) Seq() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.seq
}

func (l *presenceLog) Observe(c domain.PresenceChange) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seq++
	l.last[c.User] = presenceMark{seq: l.seq, online: c.Online}
}

// WentOfflineSince reports whether the latest change for user observed after
// seq says the user is offline.
func (l *presenceLog) WentOfflineSince(user domain.UserID, seq uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	mark, ok := l.last[user]
	return ok && mark.seq > seq && !mark.online
}
