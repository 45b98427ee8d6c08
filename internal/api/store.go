package api

import (
	"sync"

	"github.com/google/uuid"
)

// DefaultStoreCapacity bounds how many predictions are kept for retrieval.
const DefaultStoreCapacity = 256

// PredictionStore keeps recent predictions in memory, evicting the oldest
// once capacity is reached.
type PredictionStore struct {
	mu       sync.Mutex
	capacity int
	order    []string
	records  map[string]PredictionResponse
}

func NewPredictionStore(capacity int) *PredictionStore {
	if capacity <= 0 {
		capacity = DefaultStoreCapacity
	}
	return &PredictionStore{
		capacity: capacity,
		records:  make(map[string]PredictionResponse),
	}
}

func (s *PredictionStore) Save(resp PredictionResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[resp.ID]; !ok {
		s.order = append(s.order, resp.ID)
	}
	s.records[resp.ID] = resp
	for len(s.order) > s.capacity {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.records, oldest)
	}
}

func (s *PredictionStore) Get(id string) (PredictionResponse, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	resp, ok := s.records[id]
	return resp, ok
}

func (s *PredictionStore) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return false
	}
	delete(s.records, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

func (s *PredictionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func newPredictionID() string {
	return "cif_" + uuid.NewString()
}
