// Package service owns the submission lifecycle: intake, dispatch to the
// worker pool and the status transitions applied by each worker.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"coderank/internal/admission"
	"coderank/internal/execution/language"
	"coderank/internal/execution/observer"
	"coderank/internal/execution/runner"
	"coderank/internal/submission/archive"
	"coderank/internal/submission/event"
	"coderank/internal/submission/model"
	"coderank/internal/submission/repository"
	appErr "coderank/pkg/errors"
	"coderank/pkg/utils/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultWorkerPoolSize = 4
	defaultQueueSize      = 100
	defaultPageSize       = 10
	defaultMaxPageSize    = 100
	defaultStoreTimeout   = 3 * time.Second
	defaultEventTimeout   = 2 * time.Second
)

// SourceValidator screens source code before a record is queued.
type SourceValidator interface {
	Validate(source string, lang language.Language) error
}

// Config holds service dependencies and settings.
type Config struct {
	Store     repository.SubmissionStore
	Languages *language.Registry
	Validator SourceValidator
	Runner    runner.Runner

	// Optional collaborators.
	Prober   runner.Prober
	Gate     admission.Gate
	Events   event.StatusEventPublisher
	Archiver archive.Archiver
	Recorder observer.Recorder

	WorkerPoolSize   int
	QueueSize        int
	ExecutionTimeout time.Duration
	StoreTimeout     time.Duration
	EventTimeout     time.Duration
	MaxPageSize      int

	Now   func() time.Time
	NewID func() string
}

// SubmissionService accepts submissions and runs them on a bounded worker pool.
type SubmissionService struct {
	store     repository.SubmissionStore
	languages *language.Registry
	validator SourceValidator
	runner    runner.Runner
	prober    runner.Prober
	gate      admission.Gate
	events    event.StatusEventPublisher
	archiver  archive.Archiver
	recorder  observer.Recorder

	poolSize         int
	executionTimeout time.Duration
	storeTimeout     time.Duration
	eventTimeout     time.Duration
	maxPageSize      int
	now              func() time.Time
	newID            func() string

	// slots holds one token per record that is queued or running.
	slots chan struct{}
	tasks chan task

	mu        sync.RWMutex
	closed    bool
	startOnce sync.Once
	wg        sync.WaitGroup
	baseCtx   context.Context
	cancel    context.CancelFunc
}

// SubmitInput describes a submission request.
type SubmitInput struct {
	OwnerID  string
	Role     admission.Role
	Language string
	Source   string
	Stdin    string
}

// NewSubmissionService creates a submission service. Call Start to launch the workers.
func NewSubmissionService(cfg Config) (*SubmissionService, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("submission store is required")
	}
	if cfg.Languages == nil {
		return nil, fmt.Errorf("language registry is required")
	}
	if cfg.Validator == nil {
		return nil, fmt.Errorf("validator is required")
	}
	if cfg.Runner == nil {
		return nil, fmt.Errorf("runner is required")
	}
	poolSize := cfg.WorkerPoolSize
	if poolSize <= 0 {
		poolSize = defaultWorkerPoolSize
	}
	queueSize := cfg.QueueSize
	if queueSize < 0 {
		queueSize = 0
	} else if queueSize == 0 {
		queueSize = defaultQueueSize
	}
	storeTimeout := cfg.StoreTimeout
	if storeTimeout <= 0 {
		storeTimeout = defaultStoreTimeout
	}
	eventTimeout := cfg.EventTimeout
	if eventTimeout <= 0 {
		eventTimeout = defaultEventTimeout
	}
	maxPageSize := cfg.MaxPageSize
	if maxPageSize <= 0 {
		maxPageSize = defaultMaxPageSize
	}
	gate := cfg.Gate
	if gate == nil {
		gate = admission.AllowAll{}
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	newID := cfg.NewID
	if newID == nil {
		newID = uuid.NewString
	}

	baseCtx, cancel := context.WithCancel(context.Background())
	capacity := poolSize + queueSize
	return &SubmissionService{
		store:            cfg.Store,
		languages:        cfg.Languages,
		validator:        cfg.Validator,
		runner:           cfg.Runner,
		prober:           cfg.Prober,
		gate:             gate,
		events:           cfg.Events,
		archiver:         cfg.Archiver,
		recorder:         observer.OrNop(cfg.Recorder),
		poolSize:         poolSize,
		executionTimeout: cfg.ExecutionTimeout,
		storeTimeout:     storeTimeout,
		eventTimeout:     eventTimeout,
		maxPageSize:      maxPageSize,
		now:              now,
		newID:            newID,
		slots:            make(chan struct{}, capacity),
		tasks:            make(chan task, capacity),
		baseCtx:          baseCtx,
		cancel:           cancel,
	}, nil
}

// Submit validates and records a submission. An accepted submission comes back
// PENDING and runs asynchronously; a rejected one comes back SECURITY_VIOLATION
// with a nil error.
func (s *SubmissionService) Submit(ctx context.Context, in SubmitInput) (*model.Submission, error) {
	owner := strings.TrimSpace(in.OwnerID)
	if owner == "" {
		return nil, appErr.New(appErr.Unauthorized).WithMessage("owner is required")
	}
	desc, err := s.languages.Resolve(in.Language)
	if err != nil {
		return nil, err
	}
	lang := desc.ID()

	admitted, err := s.gate.TryAdmit(ctx, owner, in.Role)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.ServiceUnavailable, "admission check failed")
	}
	if !admitted {
		s.recorder.ObserveAdmissionDenied(ctx, string(in.Role))
		return nil, appErr.New(appErr.TooManyRequests).WithMessagef("submission rate limit exceeded for role %s", in.Role)
	}

	now := s.now().UTC()
	record := model.NewPending(s.newID(), owner, lang, in.Source, now)

	if verr := s.validator.Validate(in.Source, lang); verr != nil {
		return s.reject(ctx, record, verr, now)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, appErr.New(appErr.ServiceUnavailable).WithMessage("service is shutting down")
	}
	if !s.tryReserveSlot() {
		return nil, appErr.New(appErr.JudgeQueueFull)
	}

	ctxDB := withTimeout(ctx, s.storeTimeout)
	err = s.store.Create(ctxDB.ctx, record)
	ctxDB.cancel()
	if err != nil {
		s.releaseSlot()
		return nil, appErr.Wrapf(err, appErr.SubmissionCreateFailed, "create submission failed")
	}
	s.recorder.ObserveSubmission(ctx, string(lang), string(record.Status))

	s.tasks <- newTask(ctx, record.Clone(), desc, in.Stdin)
	s.recorder.SetQueueDepth(len(s.tasks))
	logger.Info(ctx, "submission queued",
		zap.String("submission_id", record.ID),
		zap.String("language", string(lang)),
	)
	return record, nil
}

func (s *SubmissionService) reject(ctx context.Context, record *model.Submission, verr error, now time.Time) (*model.Submission, error) {
	reason := appErr.GetError(verr).Message
	if err := record.Reject(reason, now); err != nil {
		return nil, appErr.Wrap(err, appErr.InternalServerError)
	}

	ctxDB := withTimeout(ctx, s.storeTimeout)
	err := s.store.Create(ctxDB.ctx, record)
	ctxDB.cancel()
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.SubmissionCreateFailed, "create submission failed")
	}

	logger.Warn(ctx, "submission rejected by validator",
		zap.String("submission_id", record.ID),
		zap.String("language", string(record.Language)),
		zap.Any("details", appErr.GetError(verr).Details),
	)
	s.finish(ctx, record)
	return record, nil
}

// Get returns a submission owned by requester.
func (s *SubmissionService) Get(ctx context.Context, id, requester string) (*model.Submission, error) {
	if strings.TrimSpace(id) == "" {
		return nil, appErr.ValidationError("id", "required")
	}
	ctxDB := withTimeout(ctx, s.storeTimeout)
	defer ctxDB.cancel()
	record, err := s.store.Get(ctxDB.ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrSubmissionNotFound) {
			return nil, appErr.New(appErr.SubmissionNotFound)
		}
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "get submission failed")
	}
	if record.OwnerID != requester {
		return nil, appErr.New(appErr.SubmissionAccessDenied)
	}
	return record, nil
}

// List returns one page of owner's submissions, newest first. Page is zero based.
func (s *SubmissionService) List(ctx context.Context, owner string, page, size int) (repository.Page, error) {
	if page < 0 {
		page = 0
	}
	if size <= 0 {
		size = defaultPageSize
	}
	if size > s.maxPageSize {
		size = s.maxPageSize
	}
	ctxDB := withTimeout(ctx, s.storeTimeout)
	defer ctxDB.cancel()
	result, err := s.store.FindByOwner(ctxDB.ctx, owner, page, size)
	if err != nil {
		return repository.Page{}, appErr.Wrapf(err, appErr.DatabaseError, "list submissions failed")
	}
	return result, nil
}

// CountSince returns how many submissions owner made after since.
func (s *SubmissionService) CountSince(ctx context.Context, owner string, since time.Time) (int64, error) {
	ctxDB := withTimeout(ctx, s.storeTimeout)
	defer ctxDB.cancel()
	count, err := s.store.CountByOwnerSince(ctxDB.ctx, owner, since)
	if err != nil {
		return 0, appErr.Wrapf(err, appErr.DatabaseError, "count submissions failed")
	}
	return count, nil
}

// LanguageInfo describes a registered language and whether this host can run it.
type LanguageInfo struct {
	ID           language.Language   `json:"id"`
	Name         string              `json:"name"`
	Availability runner.Availability `json:"availability"`
}

// Languages lists registered languages with their toolchain availability.
func (s *SubmissionService) Languages(ctx context.Context) []LanguageInfo {
	ids := s.languages.Languages()
	out := make([]LanguageInfo, 0, len(ids))
	for _, id := range ids {
		desc, err := s.languages.Describe(id)
		if err != nil {
			continue
		}
		info := LanguageInfo{ID: id, Name: desc.Name()}
		if s.prober != nil {
			info.Availability = s.prober.Probe(ctx, desc)
		} else {
			info.Availability = runner.Availability{Available: true, Details: "not probed"}
		}
		out = append(out, info)
	}
	return out
}

func (s *SubmissionService) tryReserveSlot() bool {
	select {
	case s.slots <- struct{}{}:
		return true
	default:
		return false
	}
}

func (s *SubmissionService) releaseSlot() {
	select {
	case <-s.slots:
	default:
	}
}

type timeoutCtx struct {
	ctx    context.Context
	cancel context.CancelFunc
}

func withTimeout(ctx context.Context, timeout time.Duration) timeoutCtx {
	if timeout <= 0 {
		return timeoutCtx{ctx: ctx, cancel: func() {}}
	}
	ctxTimeout, cancel := context.WithTimeout(ctx, timeout)
	return timeoutCtx{ctx: ctxTimeout, cancel: cancel}
}
