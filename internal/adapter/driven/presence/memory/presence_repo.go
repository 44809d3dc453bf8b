package memory

import (
	"context"
	"sync"

	"github.com/Wyydra/yacall/internal/core/domain"
)

// PresenceRepository keeps presence for a single relay process.
type PresenceRepository struct {
	mu       sync.Mutex
	online   map[domain.UserID]struct{}
	watchers map[int]func(domain.PresenceChange)
	nextID   int
}

func NewPresenceRepository() *PresenceRepository {
	return &PresenceRepository{
		online:   make(map[domain.UserID]struct{}),
		watchers: make(map[int]func(domain.PresenceChange)),
	}
}

func (r *PresenceRepository) SetOnline(ctx context.Context, userID domain.UserID) error {
	r.mu.Lock()
	_, already := r.online[userID]
	r.online[userID] = struct{}{}
	r.mu.Unlock()

	if !already {
		r.notify(domain.PresenceChange{User: userID, Online: true})
	}
	return nil
}

func (r *PresenceRepository) SetOffline(ctx context.Context, userID domain.UserID) error {
	r.mu.Lock()
	_, ok := r.online[userID]
	if !ok {
		r.mu.Unlock()
		return nil
	}
	delete(r.online, userID)
	r.mu.Unlock()

	r.notify(domain.PresenceChange{User: userID, Online: false})
	return nil
}

func (r *PresenceRepository) Refresh(ctx context.Context, userID domain.UserID) error {
	return nil
}

func (r *PresenceRepository) IsOnline(ctx context.Context, userID domain.UserID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.online[userID]
	return ok, nil
}

func (r *PresenceRepository) Online(ctx context.Context) ([]domain.UserID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.UserID, 0, len(r.online))
	for id := range r.online {
		out = append(out, id)
	}
	return out, nil
}

func (r *PresenceRepository) Watch(ctx context.Context, fn func(domain.PresenceChange)) error {
	r.mu.Lock()
	r.nextID++
	id := r.nextID
	r.watchers[id] = fn
	r.mu.Unlock()

	<-ctx.Done()

	r.mu.Lock()
	delete(r.watchers, id)
	r.mu.Unlock()
	return ctx.Err()
}

func (r *PresenceRepository) notify(change domain.PresenceChange) {
	r.mu.Lock()
	fns := make([]func(domain.PresenceChange), 0, len(r.watchers))
	for _, fn := range r.watchers {
		fns = append(fns, fn)
	}
	r.mu.Unlock()

	for _, fn := range fns {
		fn(change)
	}
}
