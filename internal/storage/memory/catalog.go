package memory

import (
	"context"
	"sync"

	"github.com/xenking/campus-eats/internal/domain/catalog"
)

var (
	_ catalog.Repository = (*CatalogRepository)(nil)
	_ catalog.Writer     = (*CatalogRepository)(nil)
)

// CatalogRepository keeps meals in insertion order.
type CatalogRepository struct {
	mu    sync.RWMutex
	meals []catalog.Meal
	byID  map[string]int
}

// NewCatalogRepository creates a repository holding meals.
func NewCatalogRepository(meals ...catalog.Meal) *CatalogRepository {
	r := &CatalogRepository{byID: make(map[string]int)}
	_ = r.Upsert(context.Background(), meals)
	return r
}

func (r *CatalogRepository) List(_ context.Context) ([]catalog.Meal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]catalog.Meal, len(r.meals))
	copy(out, r.meals)
	return out, nil
}

func (r *CatalogRepository) GetByID(_ context.Context, id string) (*catalog.Meal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.byID[id]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	m := r.meals[i]
	return &m, nil
}

func (r *CatalogRepository) Upsert(_ context.Context, meals []catalog.Meal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range meals {
		if i, ok := r.byID[m.ID]; ok {
			r.meals[i] = m
			continue
		}
		r.byID[m.ID] = len(r.meals)
		r.meals = append(r.meals, m)
	}
	return nil
}
