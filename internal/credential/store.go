package credential

import (
	"context"
	"sync"
	"time"

	"github.com/dkeye/Tandem/internal/domain"
)

// Store persists users and their provider credentials.
type Store interface {
	// Get returns a copy of the user or ErrUnknownUser.
	Get(ctx context.Context, id domain.UserID) (*domain.User, error)
	// Save creates the user or updates name and avatar; credentials are untouched.
	Save(ctx context.Context, u *domain.User) error
	// Link merges c into the user's credential for p; empty fields keep their value.
	Link(ctx context.Context, id domain.UserID, p domain.Provider, c domain.Credential) error
	// Unlink clears every field of p at once.
	Unlink(ctx context.Context, id domain.UserID, p domain.Provider) error
	// UpdateAccessToken stores next only if the current token is still prev.
	UpdateAccessToken(ctx context.Context, id domain.UserID, p domain.Provider, prev, next string, expiry time.Time) (bool, error)
}

// Merge applies the non-empty fields of in over c.
func Merge(c, in domain.Credential) domain.Credential {
	if in.ClientID != "" {
		c.ClientID = in.ClientID
	}
	if in.Username != "" {
		c.Username = in.Username
	}
	if in.Avatar != "" {
		c.Avatar = in.Avatar
	}
	if in.AccessToken != "" {
		c.AccessToken = in.AccessToken
	}
	if in.RefreshToken != "" {
		c.RefreshToken = in.RefreshToken
	}
	if !in.Expiry.IsZero() {
		c.Expiry = in.Expiry
	}
	return c
}

// MemoryStore keeps users in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	users map[domain.UserID]*domain.User
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: make(map[domain.UserID]*domain.User)}
}

func (s *MemoryStore) Get(_ context.Context, id domain.UserID) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrUnknownUser
	}
	return copyUser(u), nil
}

func (s *MemoryStore) Save(_ context.Context, u *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.users[u.ID]; ok {
		cur.Name = u.Name
		cur.Avatar = u.Avatar
		return nil
	}
	cp := copyUser(u)
	s.users[u.ID] = cp
	return nil
}

func (s *MemoryStore) Link(_ context.Context, id domain.UserID, p domain.Provider, c domain.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return ErrUnknownUser
	}
	u.Link(p, Merge(u.Credential(p), c))
	return nil
}

func (s *MemoryStore) Unlink(_ context.Context, id domain.UserID, p domain.Provider) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return ErrUnknownUser
	}
	u.Unlink(p)
	return nil
}

func (s *MemoryStore) UpdateAccessToken(_ context.Context, id domain.UserID, p domain.Provider, prev, next string, expiry time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return false, ErrUnknownUser
	}
	c := u.Credential(p)
	if !c.Linked() || c.AccessToken != prev {
		return false, nil
	}
	c.AccessToken = next
	c.Expiry = expiry
	u.Link(p, c)
	return true, nil
}

func copyUser(u *domain.User) *domain.User {
	cp := *u
	cp.Credentials = make(map[domain.Provider]domain.Credential, len(u.Credentials))
	for p, c := range u.Credentials {
		cp.Credentials[p] = c
	}
	return &cp
}
