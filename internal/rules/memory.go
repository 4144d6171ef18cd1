package rules

import (
	"context"
	"sync"
	"time"

	"github.com/dvloznov/statement-insights/internal/domain"
)

// MemoryStore is an in-memory Store, safe for concurrent use.
// Data is lost on restart; the postgres package provides the durable store.
type MemoryStore struct {
	mu         sync.RWMutex
	rules      map[int64]*domain.Rule
	nextID     int64
	categories CategoryLookup
	now        func() time.Time
}

// NewMemoryStore creates an empty rule store validating categories against lookup.
func NewMemoryStore(lookup CategoryLookup) *MemoryStore {
	return &MemoryStore{
		rules:      make(map[int64]*domain.Rule),
		nextID:     1,
		categories: lookup,
		now:        time.Now,
	}
}

// List implements Store.
func (s *MemoryStore) List(ctx context.Context) ([]domain.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Rule, 0, len(s.rules))
	for _, r := range s.rules {
		out = append(out, *r)
	}
	domain.SortRules(out)
	return out, nil
}

// Get implements Store.
func (s *MemoryStore) Get(ctx context.Context, id int64) (domain.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rules[id]
	if !ok {
		return domain.Rule{}, domain.NewNotFound("rule", id)
	}
	return *r, nil
}

// Add implements Store.
func (s *MemoryStore) Add(ctx context.Context, keyword string, categoryID int64, priority *int) (domain.Rule, error) {
	kw, err := ValidateInput(ctx, s.categories, keyword, categoryID)
	if err != nil {
		return domain.Rule{}, err
	}
	p := DefaultPriority
	if priority != nil {
		p = *priority
	}
	return s.insert(domain.Rule{Keyword: kw, CategoryID: categoryID, Priority: p}), nil
}

// AddSystem installs a protected rule. It is used by seeding only.
func (s *MemoryStore) AddSystem(ctx context.Context, keyword string, categoryID int64, priority int) (domain.Rule, error) {
	kw, err := ValidateInput(ctx, s.categories, keyword, categoryID)
	if err != nil {
		return domain.Rule{}, err
	}
	return s.insert(domain.Rule{Keyword: kw, CategoryID: categoryID, Priority: priority, System: true}), nil
}

func (s *MemoryStore) insert(r domain.Rule) domain.Rule {
	s.mu.Lock()
	defer s.mu.Unlock()

	r.ID = s.nextID
	s.nextID++
	r.CreatedAt = s.now().UTC()
	s.rules[r.ID] = &r
	return r
}

// Update implements Store.
func (s *MemoryStore) Update(ctx context.Context, id int64, keyword string, categoryID int64, priority *int) (domain.Rule, error) {
	if err := s.checkMutable(id); err != nil {
		return domain.Rule{}, err
	}
	kw, err := ValidateInput(ctx, s.categories, keyword, categoryID)
	if err != nil {
		return domain.Rule{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Re-check under the write lock; the rule may have gone since checkMutable.
	r, ok := s.rules[id]
	if !ok {
		return domain.Rule{}, domain.NewNotFound("rule", id)
	}
	r.Keyword = kw
	r.CategoryID = categoryID
	if priority != nil {
		r.Priority = *priority
	}
	return *r, nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rules[id]
	if !ok {
		return domain.NewNotFound("rule", id)
	}
	if r.System {
		return &domain.ProtectedRuleError{RuleID: id}
	}
	delete(s.rules, id)
	return nil
}

// IncrementMatchCounts implements Store. Unknown ids are ignored: a rule
// deleted mid-batch simply loses its pending increments.
func (s *MemoryStore) IncrementMatchCounts(ctx context.Context, counts map[int64]int64) error {
	if len(counts) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, n := range counts {
		if r, ok := s.rules[id]; ok {
			r.MatchCount += n
		}
	}
	return nil
}

func (s *MemoryStore) checkMutable(id int64) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rules[id]
	if !ok {
		return domain.NewNotFound("rule", id)
	}
	if r.System {
		return &domain.ProtectedRuleError{RuleID: id}
	}
	return nil
}

// Ensure MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)
