package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"coderank/internal/admission"
	"coderank/internal/execution/language"
	"coderank/internal/execution/runner"
	"coderank/internal/execution/validator"
	"coderank/internal/submission/model"
	"coderank/internal/submission/repository"
)

type fakeRunner struct {
	mu      sync.Mutex
	calls   []runner.Request
	result  runner.Result
	err     error
	panics  bool
	release chan struct{}
	started chan struct{}
}

func (f *fakeRunner) Run(ctx context.Context, req runner.Request) (runner.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return runner.Result{}, ctx.Err()
		}
	}
	if f.panics {
		panic("runner exploded")
	}
	return f.result, f.err
}

func (f *fakeRunner) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// recordingStore keeps every status written per id so tests can check lifecycle order.
type recordingStore struct {
	*repository.MemorySubmissionStore
	mu         sync.Mutex
	history    map[string][]model.Status
	createErr  error
	failUpdate func(s *model.Submission) error
}

func newRecordingStore() *recordingStore {
	return &recordingStore{
		MemorySubmissionStore: repository.NewMemorySubmissionStore(),
		history:               make(map[string][]model.Status),
	}
}

func (r *recordingStore) Create(ctx context.Context, s *model.Submission) error {
	if r.createErr != nil {
		return r.createErr
	}
	if err := r.MemorySubmissionStore.Create(ctx, s); err != nil {
		return err
	}
	r.record(s)
	return nil
}

func (r *recordingStore) Update(ctx context.Context, s *model.Submission) error {
	r.mu.Lock()
	hook := r.failUpdate
	r.mu.Unlock()
	if hook != nil {
		if err := hook(s); err != nil {
			return err
		}
	}
	if err := r.MemorySubmissionStore.Update(ctx, s); err != nil {
		return err
	}
	r.record(s)
	return nil
}

func (r *recordingStore) record(s *model.Submission) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.history[s.ID] = append(r.history[s.ID], s.Status)
}

func (r *recordingStore) statuses(id string) []model.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.Status(nil), r.history[id]...)
}

func (r *recordingStore) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.history)
}

type fakeGate struct {
	admit bool
	err   error
}

func (f fakeGate) TryAdmit(context.Context, string, admission.Role) (bool, error) {
	return f.admit, f.err
}

type fakePublisher struct {
	mu     sync.Mutex
	events []model.Status
}

func (f *fakePublisher) PublishFinalStatus(_ context.Context, s *model.Submission) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, s.Status)
	return nil
}

func (f *fakePublisher) published() []model.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Status(nil), f.events...)
}

type fakeArchiver struct {
	mu  sync.Mutex
	ids []string
	err error
}

func (f *fakeArchiver) Archive(_ context.Context, s *model.Submission) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids = append(f.ids, s.ID)
	return f.err
}

type harness struct {
	svc       *SubmissionService
	store     *recordingStore
	runner    *fakeRunner
	publisher *fakePublisher
	archiver  *fakeArchiver
}

func newHarness(t *testing.T, mutate func(cfg *Config)) *harness {
	t.Helper()
	h := &harness{
		store:     newRecordingStore(),
		runner:    &fakeRunner{},
		publisher: &fakePublisher{},
		archiver:  &fakeArchiver{},
	}
	cfg := Config{
		Store:          h.store,
		Languages:      language.NewDefaultRegistry(),
		Validator:      validator.New(nil, 0),
		Runner:         h.runner,
		Events:         h.publisher,
		Archiver:       h.archiver,
		WorkerPoolSize: 2,
		QueueSize:      4,
		StoreTimeout:   time.Second,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	svc, err := NewSubmissionService(cfg)
	if err != nil {
		t.Fatalf("new service failed: %v", err)
	}
	h.svc = svc
	t.Cleanup(func() {
		if h.runner.release != nil {
			select {
			case <-h.runner.release:
			default:
				close(h.runner.release)
			}
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = svc.Shutdown(ctx)
	})
	return h
}

// waitTerminal polls the store until id reaches a terminal status.
func (h *harness) waitTerminal(t *testing.T, id string) *model.Submission {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		rec, err := h.store.Get(context.Background(), id)
		if err == nil && rec.Status.Terminal() {
			return rec
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("submission %s did not reach a terminal status", id)
	return nil
}

func statusesEqual(a, b []model.Status) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

var errStoreDown = errors.New("store unavailable")
