package scheduler

import (
	"context"
	"errors"
	"sync"

	"github.com/MrSnakeDoc/listingd/internal/domain"
	"github.com/MrSnakeDoc/listingd/internal/reconciler"
	redisstore "github.com/MrSnakeDoc/listingd/internal/store/redis"
)

type enqueued struct {
	steamid  string
	op       domain.Operation
	priority int
}

type fakeJobs struct {
	mu      sync.Mutex
	calls   []enqueued
	reaped  int
	pending int64
}

func (f *fakeJobs) Enqueue(_ context.Context, steamid string, op domain.Operation, priority int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, enqueued{steamid: steamid, op: op, priority: priority})
	return nil
}

func (f *fakeJobs) Reap(context.Context) (int, error) { return f.reaped, nil }

func (f *fakeJobs) Pending(context.Context) (int64, error) { return f.pending, nil }

type fakeStore struct {
	running map[string]bool
	sizes   map[string]redisstore.QueueSizes
	desired map[string][]*domain.DesiredListing
}

func (f *fakeStore) RunningAgents(context.Context) ([]string, error) {
	var out []string
	for id, ok := range f.running {
		if ok {
			out = append(out, id)
		}
	}
	return out, nil
}

func (f *fakeStore) QueueSizes(_ context.Context, steamid string) (redisstore.QueueSizes, error) {
	sizes, ok := f.sizes[steamid]
	if !ok {
		return redisstore.QueueSizes{}, errors.New("unknown account")
	}
	return sizes, nil
}

func (f *fakeStore) AllDesired(_ context.Context, steamid string) ([]*domain.DesiredListing, error) {
	return f.desired[steamid], nil
}

func (f *fakeStore) AgentRunning(_ context.Context, steamid string) (bool, error) {
	return f.running[steamid], nil
}

type fakeService struct {
	added   map[string][]reconciler.AddRequest
	removed map[string][]string
}

func newFakeService() *fakeService {
	return &fakeService{
		added:   map[string][]reconciler.AddRequest{},
		removed: map[string][]string{},
	}
}

func (f *fakeService) AddDesired(_ context.Context, steamid string, reqs []reconciler.AddRequest) (reconciler.Result, error) {
	f.added[steamid] = append(f.added[steamid], reqs...)
	return reconciler.Result{}, nil
}

func (f *fakeService) RemoveDesired(_ context.Context, steamid string, hashes []string) ([]*domain.DesiredListing, error) {
	f.removed[steamid] = append(f.removed[steamid], hashes...)
	return nil, nil
}

type fakeAgents struct {
	started []string
	stopped []string
}

func (f *fakeAgents) OnAgentStart(_ context.Context, steamid string) error {
	f.started = append(f.started, steamid)
	return nil
}

func (f *fakeAgents) OnAgentStop(_ context.Context, steamid string) error {
	f.stopped = append(f.stopped, steamid)
	return nil
}
