package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"trove/catalog/internal/domain"
	"trove/catalog/internal/domain/task"
)

type fakeClient struct {
	mu      sync.Mutex
	results []fakeResult
	calls   int
}

type fakeResult struct {
	catalog *domain.Catalog
	err     error
}

func (f *fakeClient) FetchClassifiers(context.Context) (*domain.Catalog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.results) == 0 {
		return nil, errors.New("no scripted result")
	}
	r := f.results[0]
	if len(f.results) > 1 {
		f.results = f.results[1:]
	}
	return r.catalog, r.err
}

func (f *fakeClient) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeRepository struct {
	mu       sync.Mutex
	stored   *domain.Catalog
	replaces int
	listErr  error
	saveErr  error
}

func (f *fakeRepository) EnsureSchema(context.Context) error { return nil }

func (f *fakeRepository) ReplaceCatalog(_ context.Context, c *domain.Catalog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.replaces++
	f.stored = c
	return nil
}

func (f *fakeRepository) StoredDigest(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stored == nil {
		return "", f.listErr
	}
	return f.stored.Digest(), f.listErr
}

func (f *fakeRepository) ListCatalog(context.Context) (*domain.Catalog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stored, f.listErr
}

type fakeCache struct {
	mu      sync.Mutex
	catalog *domain.Catalog
	cooling bool
	stores  int
	loadErr error
}

func (f *fakeCache) Load(context.Context) (*domain.Catalog, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loadErr != nil {
		return nil, false, f.loadErr
	}
	return f.catalog, f.cooling, nil
}

func (f *fakeCache) Store(_ context.Context, c *domain.Catalog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c.Len() == 0 {
		return domain.ErrEmptyCatalog
	}
	f.catalog = c
	f.cooling = true
	f.stores++
	return nil
}

func (f *fakeCache) InCooldown(context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cooling, nil
}

// fakeQueue keeps one in-memory list of messages per stream.
type fakeQueue struct {
	mu      sync.Mutex
	seq     int
	pending map[string][]redis.XMessage
	added   []task.Task
	acked   []string
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{pending: map[string][]redis.XMessage{}}
}

func (f *fakeQueue) StreamName(taskType string) string {
	return "test:stream:" + taskType
}

func (f *fakeQueue) AddTask(_ context.Context, t task.Task) (string, error) {
	data, err := t.TaskValue()
	if err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	id := fmt.Sprintf("%d-0", f.seq)
	stream := f.StreamName(t.TaskType())
	f.pending[stream] = append(f.pending[stream], redis.XMessage{
		ID:     id,
		Values: map[string]interface{}{"task_type": t.TaskType(), "task_data": string(data)},
	})
	f.added = append(f.added, t)
	return id, nil
}

func (f *fakeQueue) GetTask(ctx context.Context, _, _, stream string) (*redis.XMessage, error) {
	f.mu.Lock()
	if msgs := f.pending[stream]; len(msgs) > 0 {
		msg := msgs[0]
		f.pending[stream] = msgs[1:]
		f.mu.Unlock()
		return &msg, nil
	}
	f.mu.Unlock()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(5 * time.Millisecond):
		return nil, nil
	}
}

func (f *fakeQueue) AckTask(_ context.Context, _, _, msgID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acked = append(f.acked, msgID)
	return nil
}

func (f *fakeQueue) CreateGroup(context.Context, string, string) error { return nil }

func (f *fakeQueue) AutoClaim(context.Context, string, string, string, time.Duration) ([]redis.XMessage, error) {
	return nil, nil
}

func (f *fakeQueue) EnsureStreamsExist(context.Context) error { return nil }

func (f *fakeQueue) Added() []task.Task {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]task.Task(nil), f.added...)
}

func (f *fakeQueue) Acked() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.acked...)
}
