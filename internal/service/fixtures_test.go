package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-api/internal/dto"
	"github.com/noah-isme/sma-timetable-api/pkg/config"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
	"github.com/noah-isme/sma-timetable-api/pkg/jobs"
)

// testScheduler keeps searches short.
func testScheduler() config.SchedulerConfig {
	return config.SchedulerConfig{
		Profile:        "steady-state",
		PopulationSize: 12,
		MaxIterations:  300,
		Workers:        1,
		RunTimeout:     30 * time.Second,
	}
}

// catalogInput is two sections, two theory subjects and a single-instructor lab.
func catalogInput() dto.CatalogInput {
	return dto.CatalogInput{
		Faculty: []dto.FacultyInput{
			{ID: "F1", Name: "Alice", TotalCredits: 16, ResearchCredits: 2, Subjects: []string{"MATH", "UNIX_L"}},
			{ID: "F2", Name: "Bob", TotalCredits: 16, Subjects: []string{"PHY", "UNIX_L"}},
		},
		Subjects: []dto.SubjectInput{
			{Code: "MATH", Name: "Maths", Credits: 3},
			{Code: "PHY", Name: "Physics", Credits: 2},
			{Code: "UNIX_L", Name: "Unix Lab", Lab: true, Credits: 1},
		},
		Sections: []dto.SectionInput{{ID: "S1", Name: "A"}, {ID: "S2", Name: "B"}},
	}
}

func newTimetableServiceForTest(t *testing.T) (*TimetableService, *MemoryRunStore) {
	t.Helper()
	store := NewMemoryRunStore(time.Hour)
	svc, err := NewTimetableService(testScheduler(), store, NewMetricsService(), nil, zap.NewNop())
	require.NoError(t, err)
	return svc, store
}

// queueStub records enqueued jobs.
type queueStub struct {
	mu   sync.Mutex
	jobs []jobs.Job
	err  error
}

func (q *queueStub) Enqueue(job jobs.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *queueStub) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

// memoryCache is a CacheRepository keeping JSON payloads in a map.
type memoryCache struct {
	mu    sync.Mutex
	items map[string][]byte
	ttls  map[string]time.Duration
}

func newMemoryCache() *memoryCache {
	return &memoryCache{items: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (m *memoryCache) Get(_ context.Context, key string, dest interface{}) error {
	m.mu.Lock()
	raw, ok := m.items[key]
	m.mu.Unlock()
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memoryCache) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	m.mu.Lock()
	m.items[key] = raw
	m.ttls[key] = ttl
	m.mu.Unlock()
	return nil
}

func (m *memoryCache) Keys(_ context.Context, pattern string) ([]string, error) {
	prefix := strings.TrimSuffix(pattern, "*")
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for k := range m.items {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (m *memoryCache) Ping(context.Context) error { return nil }
