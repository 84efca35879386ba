package evolution

import (
	"context"
	"sort"
	"sync"
	"time"

	apperrors "github.com/Jenola344/EvoNFT/internal/errors"
)

// MemoryRequestStore is an in-process RequestStore.
type MemoryRequestStore struct {
	mu       sync.Mutex
	requests map[string]Request
}

var _ RequestStore = (*MemoryRequestStore)(nil)

// NewMemoryRequestStore creates an empty store.
func NewMemoryRequestStore() *MemoryRequestStore {
	return &MemoryRequestStore{requests: make(map[string]Request)}
}

// Put implements RequestStore.
func (s *MemoryRequestStore) Put(_ context.Context, req Request) error {
	if req.ID == "" {
		return apperrors.New(apperrors.CodeInvalidArgument, "request id is empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.requests[req.ID]; exists {
		return duplicate(req.ID)
	}
	s.requests[req.ID] = req
	return nil
}

// Get implements RequestStore.
func (s *MemoryRequestStore) Get(_ context.Context, id string) (Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	if !ok {
		return Request{}, unknownRequest(id)
	}
	return req, nil
}

// MarkFulfilled implements RequestStore.
func (s *MemoryRequestStore) MarkFulfilled(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	if !ok {
		return unknownRequest(id)
	}
	if req.Fulfilled {
		return alreadyFulfilled(id)
	}
	req.Fulfilled = true
	req.FulfilledAt = at
	s.requests[id] = req
	return nil
}

// Reopen implements RequestStore.
func (s *MemoryRequestStore) Reopen(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	if !ok {
		return unknownRequest(id)
	}
	req.Fulfilled = false
	req.FulfilledAt = time.Time{}
	s.requests[id] = req
	return nil
}

// Pending implements RequestStore.
func (s *MemoryRequestStore) Pending(_ context.Context) ([]Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Request
	for _, req := range s.requests {
		if !req.Fulfilled {
			out = append(out, req)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func unknownRequest(id string) error {
	return apperrors.WithMetadata(apperrors.CodeNotFound, "evolution request "+id+" not found",
		map[string]string{"request_id": id})
}

func alreadyFulfilled(id string) error {
	return apperrors.WithMetadata(apperrors.CodeAlreadyFulfilled, "evolution request "+id+" already fulfilled",
		map[string]string{"request_id": id})
}

func duplicate(id string) error {
	return apperrors.WithMetadata(apperrors.CodeDuplicateRequest, "evolution request "+id+" already exists",
		map[string]string{"request_id": id})
}
