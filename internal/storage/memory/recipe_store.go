package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/JakeFAU/recipe-image-enricher/internal/enrichment"
)

// Recipe is one row of the in-memory recipe table. A nil ImageURL is an
// absent image.
type Recipe struct {
	ID        int64
	Name      string
	SourceURL string
	ImageURL  *string
}

// Attempt mirrors a row of the attempts table.
type Attempt struct {
	Count      int
	LastAt     time.Time
	LastReason enrichment.MissReason
}

// RecipeStore implements enrichment.Store over a map.
type RecipeStore struct {
	mu          sync.RWMutex
	recipes     map[int64]Recipe
	attempts    map[int64]Attempt
	maxAttempts int
	updates     int
}

var _ enrichment.Store = (*RecipeStore)(nil)

// NewRecipeStore creates a store seeded with recipes. maxAttempts > 0 enables
// attempt tracking.
func NewRecipeStore(maxAttempts int, recipes ...Recipe) *RecipeStore {
	s := &RecipeStore{
		recipes:     make(map[int64]Recipe, len(recipes)),
		attempts:    make(map[int64]Attempt),
		maxAttempts: maxAttempts,
	}
	s.Seed(recipes...)
	return s
}

// Seed inserts or replaces recipes.
func (s *RecipeStore) Seed(recipes ...Recipe) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range recipes {
		if r.ImageURL != nil {
			v := *r.ImageURL
			r.ImageURL = &v
		}
		s.recipes[r.ID] = r
	}
}

// Image returns the image of a recipe and whether one is set.
func (s *RecipeStore) Image(id int64) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.recipes[id]
	if !ok || r.ImageURL == nil {
		return "", false
	}
	return *r.ImageURL, true
}

// Attempts returns the recorded attempts of a recipe.
func (s *RecipeStore) Attempts(id int64) Attempt {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.attempts[id]
}

// Updates counts successful UpdateImage calls.
func (s *RecipeStore) Updates() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updates
}

// Ping always succeeds.
func (s *RecipeStore) Ping(context.Context) error { return nil }

func (s *RecipeStore) eligibleLocked() []Recipe {
	out := make([]Recipe, 0, len(s.recipes))
	for _, r := range s.recipes {
		if r.ImageURL != nil {
			continue
		}
		if s.maxAttempts > 0 && s.attempts[r.ID].Count >= s.maxAttempts {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SelectMissingImage returns eligible recipes ordered by id.
func (s *RecipeStore) SelectMissingImage(ctx context.Context, limit, offset int) ([]enrichment.Candidate, error) {
	if limit <= 0 || offset < 0 {
		return nil, fmt.Errorf("select limit=%d offset=%d: %w", limit, offset, enrichment.ErrInvalidBatch)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	eligible := s.eligibleLocked()
	s.mu.RUnlock()

	if offset >= len(eligible) {
		return []enrichment.Candidate{}, nil
	}
	end := min(offset+limit, len(eligible))
	out := make([]enrichment.Candidate, 0, end-offset)
	for _, r := range eligible[offset:end] {
		out = append(out, enrichment.Candidate{ID: r.ID, Name: r.Name, SourceURL: r.SourceURL})
	}
	return out, nil
}

// CountMissingImage counts eligible recipes.
func (s *RecipeStore) CountMissingImage(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.eligibleLocked())), nil
}

// UpdateImage sets the image of one recipe.
func (s *RecipeStore) UpdateImage(ctx context.Context, id int64, imageURL string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.recipes[id]
	if !ok {
		return fmt.Errorf("update image for recipe %d: %w", id, enrichment.ErrRecordNotFound)
	}
	v := imageURL
	r.ImageURL = &v
	s.recipes[id] = r
	s.updates++
	return nil
}

// RecordMiss increments the attempt counter when tracking is enabled.
func (s *RecipeStore) RecordMiss(ctx context.Context, id int64, reason enrichment.MissReason, at time.Time) error {
	if s.maxAttempts <= 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.attempts[id]
	a.Count++
	a.LastAt = at
	a.LastReason = reason
	s.attempts[id] = a
	return nil
}

// ImageStats aggregates over every recipe.
func (s *RecipeStore) ImageStats(ctx context.Context, placeholder string) (enrichment.ImageStats, error) {
	if err := ctx.Err(); err != nil {
		return enrichment.ImageStats{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var st enrichment.ImageStats
	for _, r := range s.recipes {
		st.Total++
		if r.ImageURL == nil {
			continue
		}
		st.WithImage++
		if *r.ImageURL == placeholder {
			st.Placeholders++
		}
	}
	st.WithoutImage = st.Total - st.WithImage
	return st, nil
}
