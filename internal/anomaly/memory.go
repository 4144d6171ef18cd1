package anomaly

import (
	"context"
	"sync"
	"time"

	"github.com/dvloznov/statement-insights/internal/domain"
)

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu        sync.Mutex
	anomalies map[string]*domain.Anomaly
	byKey     map[domain.AnomalyKey]string
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		anomalies: make(map[string]*domain.Anomaly),
		byKey:     make(map[domain.AnomalyKey]string),
	}
}

func (s *MemoryStore) SaveNew(ctx context.Context, anomalies []domain.Anomaly) ([]domain.Anomaly, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inserted := make([]domain.Anomaly, 0, len(anomalies))
	for _, a := range anomalies {
		if _, ok := s.byKey[a.Key()]; ok {
			continue
		}
		if a.ID == "" {
			a.ID = AnomalyID(a.TransactionID, a.RuleName)
		}
		if a.Status == "" {
			a.Status = domain.StatusOpen
		}
		stored := a
		s.anomalies[a.ID] = &stored
		s.byKey[a.Key()] = a.ID
		inserted = append(inserted, a)
	}
	return inserted, nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (domain.Anomaly, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.anomalies[id]
	if !ok {
		return domain.Anomaly{}, domain.NewNotFound("anomaly", id)
	}
	return *a, nil
}

func (s *MemoryStore) ListByUpload(ctx context.Context, uploadID string) ([]domain.Anomaly, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Anomaly
	for _, a := range s.anomalies {
		if a.UploadID == uploadID {
			out = append(out, *a)
		}
	}
	SortForReview(out)
	return out, nil
}

func (s *MemoryStore) Resolve(ctx context.Context, id string, decision domain.AnomalyStatus, at time.Time) (domain.Anomaly, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.anomalies[id]
	if !ok {
		return domain.Anomaly{}, domain.NewNotFound("anomaly", id)
	}
	next := *a
	if err := next.Resolve(decision, at); err != nil {
		return domain.Anomaly{}, err
	}
	*a = next
	return next, nil
}
