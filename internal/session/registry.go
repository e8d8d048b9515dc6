package session

import (
	"context"
	"log"
	"sync"
	"time"
)

// Registry 세션 ID → 허브 매핑
type Registry struct {
	mu   sync.RWMutex
	hubs map[string]*Hub
	deps Deps
}

// NewRegistry 레지스트리 생성
func NewRegistry(deps Deps) *Registry {
	return &Registry{
		hubs: make(map[string]*Hub),
		deps: deps,
	}
}

// GetOrCreate returns the hub for the session, creating it on first touch.
func (r *Registry) GetOrCreate(sessionID string) *Hub {
	r.mu.RLock()
	h, ok := r.hubs[sessionID]
	r.mu.RUnlock()
	if ok {
		return h
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.hubs[sessionID]; ok {
		return h
	}
	h = NewHub(sessionID, r.deps)
	r.hubs[sessionID] = h
	return h
}

// Get 존재하는 허브 조회
func (r *Registry) Get(sessionID string) (*Hub, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.hubs[sessionID]
	return h, ok
}

// Remove drops the hub without ending it; used after End has run.
func (r *Registry) Remove(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.hubs, sessionID)
}

// Count 활성 허브 수
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.hubs)
}

// StartSweeper runs the idle-session sweep until ctx is done. A hub with no
// connected participants past the idle timeout is ended and dropped so its
// timers and media rooms do not leak.
func (r *Registry) StartSweeper(ctx context.Context, idleTimeout, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.sweep(ctx, idleTimeout)
			}
		}
	}()
}

func (r *Registry) sweep(ctx context.Context, idleTimeout time.Duration) {
	r.mu.RLock()
	candidates := make([]*Hub, 0)
	for _, h := range r.hubs {
		if h.Empty() && time.Since(h.LastActive()) > idleTimeout {
			candidates = append(candidates, h)
		}
	}
	r.mu.RUnlock()

	for _, h := range candidates {
		log.Printf("[Registry] Sweeping idle session %s", h.ID)
		if err := h.End(ctx, ""); err != nil {
			log.Printf("[Registry] Failed to end idle session %s: %v", h.ID, err)
		}
		r.Remove(h.ID)
	}
}
