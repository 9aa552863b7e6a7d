package cart

import (
	"context"
	"sync"

	"github.com/antoniostano/kirana/internal/order"
)

type InMemoryStore struct {
	mu    sync.RWMutex
	carts map[string]Cart
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{carts: make(map[string]Cart)}
}

func (s *InMemoryStore) Load(_ context.Context, sessionID string) (Cart, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.carts[sessionID]
	if !ok {
		return Cart{SessionID: sessionID, Lines: []order.Line{}}, nil
	}
	return c.clone(), nil
}

func (s *InMemoryStore) Save(_ context.Context, c Cart) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.carts[c.SessionID] = c.clone()
	return nil
}

func (s *InMemoryStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.carts, sessionID)
	return nil
}

func (s *InMemoryStore) Close() error { return nil }
