package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"identity-link/internal/contact/models"
	"identity-link/pkg/platform/sentinel"
)

// InMemoryStore keeps contacts in a map. It favors clarity over performance
// and backs unit tests and local runs without a database.
type InMemoryStore struct {
	mu       sync.RWMutex
	contacts map[int64]models.Contact
	nextID   int64
	clock    func() time.Time
}

// InMemoryOption configures an InMemoryStore.
type InMemoryOption func(*InMemoryStore)

// WithClock sets the clock function for testability.
func WithClock(clock func() time.Time) InMemoryOption {
	return func(s *InMemoryStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func NewInMemoryStore(opts ...InMemoryOption) *InMemoryStore {
	s := &InMemoryStore{
		contacts: make(map[int64]models.Contact),
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *InMemoryStore) FindMatching(_ context.Context, email, phone string) ([]*models.Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []*models.Contact
	for _, c := range s.contacts {
		if (email != "" && c.Email == email) || (phone != "" && c.PhoneNumber == phone) {
			matched = append(matched, copyOf(c))
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })
	return matched, nil
}

func (s *InMemoryStore) FindByID(_ context.Context, id int64) (*models.Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c, ok := s.contacts[id]; ok {
		return copyOf(c), nil
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryStore) FindByLinkedID(_ context.Context, linkedID int64) ([]*models.Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var linked []*models.Contact
	for _, c := range s.contacts {
		if c.LinkedID != nil && *c.LinkedID == linkedID {
			linked = append(linked, copyOf(c))
		}
	}
	sort.Slice(linked, func(i, j int) bool { return linked[i].ID < linked[j].ID })
	return linked, nil
}

func (s *InMemoryStore) Create(_ context.Context, draft models.ContactDraft) (*models.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	now := s.clock()
	c := models.Contact{
		ID:             s.nextID,
		Email:          draft.Email,
		PhoneNumber:    draft.PhoneNumber,
		LinkedID:       copyID(draft.LinkedID),
		LinkPrecedence: draft.LinkPrecedence,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	s.contacts[c.ID] = c
	return copyOf(c), nil
}

func (s *InMemoryStore) Save(_ context.Context, contact *models.Contact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.contacts[contact.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	updated := *contact
	updated.CreatedAt = existing.CreatedAt
	updated.UpdatedAt = s.clock()
	updated.LinkedID = copyID(contact.LinkedID)
	s.contacts[contact.ID] = updated
	return nil
}

func (s *InMemoryStore) Relink(_ context.Context, ids []int64, newLinkedID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock()
	for _, id := range ids {
		c, ok := s.contacts[id]
		if !ok {
			return sentinel.ErrNotFound
		}
		linked := newLinkedID
		c.LinkedID = &linked
		c.UpdatedAt = now
		s.contacts[id] = c
	}
	return nil
}

func copyOf(c models.Contact) *models.Contact {
	out := c
	out.LinkedID = copyID(c.LinkedID)
	return &out
}

func copyID(id *int64) *int64 {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}
