package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/nsyszr/notify/pkg/model"
	"github.com/nsyszr/notify/pkg/storage"
)

type userStore struct {
	store  map[int64]model.User
	nextID int64
	sync.RWMutex
}

func newUserStore() *userStore {
	return &userStore{
		store:  make(map[int64]model.User),
		nextID: 1,
	}
}

func (s *userStore) FetchAll() ([]model.User, error) {
	s.RLock()
	defer s.RUnlock()

	models := make([]model.User, 0, len(s.store))
	for _, m := range s.store {
		models = append(models, m)
	}

	// Default sort by ID
	sort.Slice(models, func(i, j int) bool {
		return models[i].ID < models[j].ID
	})

	return models, nil
}

func (s *userStore) FindByUsername(username string) (*model.User, error) {
	s.RLock()
	defer s.RUnlock()
	for _, m := range s.store {
		if m.Username == username {
			u := m
			return &u, nil
		}
	}

	return nil, storage.ErrNotFound
}

func (s *userStore) Create(m *model.User) error {
	s.Lock()
	defer s.Unlock()

	for _, existing := range s.store {
		if existing.Username == m.Username {
			return storage.ErrExists
		}
	}

	m.ID = s.getNextID()
	m.CreatedAt = time.Now().Round(time.Second).UTC()
	m.UpdatedAt = time.Now().Round(time.Second).UTC()

	s.store[m.ID] = *m

	return nil
}

func (s *userStore) Count() (int64, error) {
	s.RLock()
	defer s.RUnlock()
	return int64(len(s.store)), nil
}

func (s *userStore) getNextID() int64 {
	id := s.nextID
	s.nextID++
	return id
}
