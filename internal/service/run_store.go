package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/noah-isme/sma-timetable-api/internal/models"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
)

// RunStore persists generation runs. Get returns appErrors.ErrNotFound for
// unknown or expired runs.
type RunStore interface {
	Save(ctx context.Context, run *models.GenerationRun) error
	Get(ctx context.Context, id string) (*models.GenerationRun, error)
	List(ctx context.Context) ([]models.GenerationRun, error)
}

// MemoryRunStore keeps runs in process. Terminal runs expire ttl after they finish.
type MemoryRunStore struct {
	ttl   time.Duration
	now   func() time.Time
	mu    sync.RWMutex
	items map[string]models.GenerationRun
}

// NewMemoryRunStore constructs an in-memory store.
func NewMemoryRunStore(ttl time.Duration) *MemoryRunStore {
	if ttl <= 0 {
		ttl = 6 * time.Hour
	}
	return &MemoryRunStore{
		ttl:   ttl,
		now:   time.Now,
		items: make(map[string]models.GenerationRun),
	}
}

func (s *MemoryRunStore) Save(_ context.Context, run *models.GenerationRun) error {
	if run == nil || run.ID == "" {
		return fmt.Errorf("run id required")
	}
	s.mu.Lock()
	s.items[run.ID] = *run
	s.mu.Unlock()
	return nil
}

func (s *MemoryRunStore) Get(_ context.Context, id string) (*models.GenerationRun, error) {
	s.mu.RLock()
	run, ok := s.items[id]
	s.mu.RUnlock()
	if !ok {
		return nil, appErrors.ErrNotFound
	}
	if s.expired(run) {
		s.mu.Lock()
		delete(s.items, id)
		s.mu.Unlock()
		return nil, appErrors.ErrNotFound
	}
	return &run, nil
}

// List returns live runs, newest first.
func (s *MemoryRunStore) List(_ context.Context) ([]models.GenerationRun, error) {
	s.mu.Lock()
	out := make([]models.GenerationRun, 0, len(s.items))
	for id, run := range s.items {
		if s.expired(run) {
			delete(s.items, id)
			continue
		}
		out = append(out, run)
	}
	s.mu.Unlock()
	sortNewestFirst(out)
	return out, nil
}

func sortNewestFirst(runs []models.GenerationRun) {
	sort.Slice(runs, func(i, j int) bool {
		if runs[i].CreatedAt.Equal(runs[j].CreatedAt) {
			return runs[i].ID < runs[j].ID
		}
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})
}

func (s *MemoryRunStore) expired(run models.GenerationRun) bool {
	return run.Terminal() && run.FinishedAt != nil && s.now().Sub(*run.FinishedAt) > s.ttl
}

const runCachePrefix = "timetable:run:"

// CachedRunStore keeps runs in the cache service, normally Redis.
type CachedRunStore struct {
	cache *CacheService
	ttl   time.Duration
}

// NewCachedRunStore constructs a cache-backed store.
func NewCachedRunStore(cache *CacheService, ttl time.Duration) *CachedRunStore {
	if ttl <= 0 {
		ttl = 6 * time.Hour
	}
	return &CachedRunStore{cache: cache, ttl: ttl}
}

func (s *CachedRunStore) Save(ctx context.Context, run *models.GenerationRun) error {
	if run == nil || run.ID == "" {
		return fmt.Errorf("run id required")
	}
	if !s.cache.Enabled() {
		return appErrors.Clone(appErrors.ErrUnavailable, "run store cache disabled")
	}
	return s.cache.Set(ctx, runCachePrefix+run.ID, run, s.ttl)
}

func (s *CachedRunStore) Get(ctx context.Context, id string) (*models.GenerationRun, error) {
	var run models.GenerationRun
	hit, err := s.cache.Get(ctx, runCachePrefix+id, &run)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "failed to load run")
	}
	if !hit {
		return nil, appErrors.ErrNotFound
	}
	return &run, nil
}

// List scans the cached runs, newest first. Runs expiring between the scan
// and the read are skipped.
func (s *CachedRunStore) List(ctx context.Context) ([]models.GenerationRun, error) {
	keys, err := s.cache.Keys(ctx, runCachePrefix+"*")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "failed to list runs")
	}
	out := make([]models.GenerationRun, 0, len(keys))
	for _, key := range keys {
		run, err := s.Get(ctx, strings.TrimPrefix(key, runCachePrefix))
		if isNotFound(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, *run)
	}
	sortNewestFirst(out)
	return out, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, appErrors.ErrNotFound)
}
