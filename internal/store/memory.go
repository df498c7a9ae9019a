package store

import (
	"context"
	"errors"
	"sort"
	"sync"

	"secure.vault/internal/models"
)

// Compile-time interface check
var _ Store = (*MemoryStore)(nil)

var errClosed = errors.New("store is closed")

type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]*models.Object
	byName  map[string]map[string]struct{}
	byOwner map[string]map[string]struct{}
	byToken map[string]string
	closed  bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		objects: make(map[string]*models.Object),
		byName:  make(map[string]map[string]struct{}),
		byOwner: make(map[string]map[string]struct{}),
		byToken: make(map[string]string),
	}
}

func (s *MemoryStore) Save(ctx context.Context, obj *models.Object) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errClosed
	}

	if prev, ok := s.objects[obj.ID]; ok {
		s.unindex(prev)
	}

	stored := obj.Clone()
	s.objects[stored.ID] = stored
	s.index(stored)
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*models.Object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, errClosed
	}

	obj, ok := s.objects[id]
	if !ok {
		return nil, ErrNotFound
	}
	return obj.Clone(), nil
}

func (s *MemoryStore) FindByName(ctx context.Context, name string) ([]*models.Object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, errClosed
	}
	return s.collect(s.byName[name]), nil
}

func (s *MemoryStore) FindByToken(ctx context.Context, token string) (*models.Object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, errClosed
	}

	id, ok := s.byToken[token]
	if !ok {
		return nil, ErrNotFound
	}
	return s.objects[id].Clone(), nil
}

func (s *MemoryStore) ListByOwner(ctx context.Context, ownerEmail string) ([]*models.Object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, errClosed
	}
	return s.collect(s.byOwner[ownerEmail]), nil
}

func (s *MemoryStore) ListAll(ctx context.Context) ([]*models.Object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, errClosed
	}

	out := make([]*models.Object, 0, len(s.objects))
	for _, obj := range s.objects {
		out = append(out, obj.Clone())
	}
	sortByID(out)
	return out, nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errClosed
	}

	if obj, ok := s.objects[id]; ok {
		s.unindex(obj)
		delete(s.objects, id)
	}
	return nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return errClosed
	}
	return nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.objects = nil
	s.byName = nil
	s.byOwner = nil
	s.byToken = nil
	return nil
}

// Helpers, called with mu held.

func (s *MemoryStore) index(obj *models.Object) {
	addToSet(s.byName, obj.Name, obj.ID)
	addToSet(s.byOwner, obj.OwnerEmail, obj.ID)
	s.byToken[obj.Token] = obj.ID
}

func (s *MemoryStore) unindex(obj *models.Object) {
	removeFromSet(s.byName, obj.Name, obj.ID)
	removeFromSet(s.byOwner, obj.OwnerEmail, obj.ID)
	if s.byToken[obj.Token] == obj.ID {
		delete(s.byToken, obj.Token)
	}
}

func (s *MemoryStore) collect(ids map[string]struct{}) []*models.Object {
	out := make([]*models.Object, 0, len(ids))
	for id := range ids {
		if obj, ok := s.objects[id]; ok {
			out = append(out, obj.Clone())
		}
	}
	sortByID(out)
	return out
}

func addToSet(m map[string]map[string]struct{}, key, id string) {
	set, ok := m[key]
	if !ok {
		set = make(map[string]struct{})
		m[key] = set
	}
	set[id] = struct{}{}
}

func removeFromSet(m map[string]map[string]struct{}, key, id string) {
	set, ok := m[key]
	if !ok {
		return
	}
	delete(set, id)
	if len(set) == 0 {
		delete(m, key)
	}
}

func sortByID(objs []*models.Object) {
	sort.Slice(objs, func(i, j int) bool { return objs[i].ID < objs[j].ID })
}
