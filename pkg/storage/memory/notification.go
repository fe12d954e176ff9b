package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/nsyszr/notify/pkg/model"
	"github.com/nsyszr/notify/pkg/storage"
)

type notificationStore struct {
	store  map[int64]model.Notification
	nextID int64
	sync.RWMutex
}

func newNotificationStore() *notificationStore {
	return &notificationStore{
		store:  make(map[int64]model.Notification),
		nextID: 1,
	}
}

func (s *notificationStore) FetchAll() ([]model.Notification, error) {
	s.RLock()
	defer s.RUnlock()

	models := make([]model.Notification, 0, len(s.store))
	for _, m := range s.store {
		models = append(models, m)
	}
	sortByTimestampDesc(models)

	return models, nil
}

func (s *notificationStore) FetchByRecipient(username string) ([]model.Notification, error) {
	s.RLock()
	defer s.RUnlock()

	// Targeted notifications plus broadcasts, merged into one timeline.
	models := make([]model.Notification, 0)
	for _, m := range s.store {
		if m.Broadcast() || m.RecipientUsername() == username {
			models = append(models, m)
		}
	}
	sortByTimestampDesc(models)

	return models, nil
}

func (s *notificationStore) FindByID(id int64) (*model.Notification, error) {
	s.RLock()
	defer s.RUnlock()
	if m, ok := s.store[id]; ok {
		return &m, nil
	}

	return nil, storage.ErrNotFound
}

func (s *notificationStore) Create(m *model.Notification) error {
	s.Lock()
	defer s.Unlock()

	m.ID = s.getNextID()
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now().Round(time.Second).UTC()
	}
	m.CreatedAt = time.Now().Round(time.Second).UTC()
	m.UpdatedAt = time.Now().Round(time.Second).UTC()

	s.store[m.ID] = *m

	return nil
}

func (s *notificationStore) Update(m *model.Notification) error {
	s.Lock()
	defer s.Unlock()

	if _, ok := s.store[m.ID]; !ok {
		return storage.ErrNotFound
	}
	m.UpdatedAt = time.Now().Round(time.Second).UTC()
	s.store[m.ID] = *m

	return nil
}

func (s *notificationStore) Delete(id int64) error {
	s.Lock()
	defer s.Unlock()

	if _, ok := s.store[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.store, id)

	return nil
}

func (s *notificationStore) Count() (int64, error) {
	s.RLock()
	defer s.RUnlock()
	return int64(len(s.store)), nil
}

func (s *notificationStore) getNextID() int64 {
	id := s.nextID
	s.nextID++
	return id
}

func sortByTimestampDesc(models []model.Notification) {
	sort.SliceStable(models, func(i, j int) bool {
		if models[i].Timestamp.Equal(models[j].Timestamp) {
			return models[i].ID > models[j].ID
		}
		return models[i].Timestamp.After(models[j].Timestamp)
	})
}
