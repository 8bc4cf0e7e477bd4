package service

import (
	"context"
	"fmt"

	"coderank/internal/execution/language"
	"coderank/internal/execution/runner"
	"coderank/internal/submission/model"
	"coderank/pkg/utils/contextkey"
	"coderank/pkg/utils/logger"

	"go.uber.org/zap"
)

const internalErrorMessage = "Execution failed due to an internal error"

// task is owned by exactly one worker. record is that worker's private copy.
type task struct {
	record  *model.Submission
	desc    language.Descriptor
	stdin   string
	traceID interface{}
}

func newTask(ctx context.Context, record *model.Submission, desc language.Descriptor, stdin string) task {
	return task{record: record, desc: desc, stdin: stdin, traceID: ctx.Value(contextkey.TraceID)}
}

func (t task) context(base context.Context) context.Context {
	ctx := context.WithValue(base, contextkey.SubmissionID, t.record.ID)
	ctx = context.WithValue(ctx, contextkey.UserID, t.record.OwnerID)
	if t.traceID != nil {
		ctx = context.WithValue(ctx, contextkey.TraceID, t.traceID)
	}
	return ctx
}

// Start launches the worker pool. Calling it more than once has no effect.
func (s *SubmissionService) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		for i := 0; i < s.poolSize; i++ {
			s.wg.Add(1)
			go s.worker(i)
		}
		logger.Info(ctx, "submission workers started", zap.Int("workers", s.poolSize), zap.Int("capacity", cap(s.slots)))
	})
}

// Shutdown stops intake and waits for queued and running executions. When ctx
// ends first the running processes are killed and their records end FAILED.
func (s *SubmissionService) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.tasks)
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.cancel()
		return nil
	case <-ctx.Done():
		s.cancel()
		logger.Warn(ctx, "shutdown deadline reached, canceling running executions")
		return ctx.Err()
	}
}

func (s *SubmissionService) worker(id int) {
	defer s.wg.Done()
	for t := range s.tasks {
		s.recorder.SetQueueDepth(len(s.tasks))
		s.execute(t)
	}
	logger.Debug(s.baseCtx, "submission worker stopped", zap.Int("worker", id))
}

func (s *SubmissionService) execute(t task) {
	ctx := t.context(s.baseCtx)
	record := t.record

	s.recorder.AddActiveWorkers(1)
	defer s.recorder.AddActiveWorkers(-1)
	defer s.releaseSlot()
	defer func() {
		if r := recover(); r != nil {
			logger.Error(ctx, "execution panicked", zap.Any("panic", r), zap.Stack("stack"))
			s.onExecutionFault(ctx, record, fmt.Errorf("panic: %v", r))
		}
	}()

	if err := s.onExecutionStart(ctx, record); err != nil {
		logger.Warn(ctx, "mark submission running failed, retrying", zap.Error(err))
		if err := s.onExecutionStart(ctx, record); err != nil {
			s.onExecutionFault(ctx, record, fmt.Errorf("mark running: %w", err))
			return
		}
	}

	res, err := s.runner.Run(ctx, runner.Request{
		Language: t.desc,
		Source:   record.Source,
		Stdin:    t.stdin,
		Timeout:  s.executionTimeout,
	})
	if err != nil {
		s.onExecutionFault(ctx, record, err)
		return
	}
	s.onExecutionComplete(ctx, record, res)
}

// onExecutionStart moves record to RUNNING with one store write.
func (s *SubmissionService) onExecutionStart(ctx context.Context, record *model.Submission) error {
	next := record.Clone()
	if err := next.Start(); err != nil {
		return err
	}
	if err := s.update(ctx, next); err != nil {
		return err
	}
	*record = *next
	return nil
}

// onExecutionComplete records the runner outcome with one store write.
func (s *SubmissionService) onExecutionComplete(ctx context.Context, record *model.Submission, res runner.Result) {
	next := record.Clone()
	if err := next.Complete(model.OutcomeFor(res), s.now().UTC()); err != nil {
		s.onExecutionFault(ctx, record, err)
		return
	}
	if err := s.update(ctx, next); err != nil {
		s.onExecutionFault(ctx, record, fmt.Errorf("persist result: %w", err))
		return
	}
	*record = *next
	logger.Info(ctx, "submission finished",
		zap.String("status", string(record.Status)),
		zap.Int64("execution_time_ms", record.ExecutionTimeMs),
		zap.Bool("truncated", res.Truncated),
	)
	s.finish(ctx, record)
}

// onExecutionFault ends record FAILED with the generic message. The cause is only logged.
func (s *SubmissionService) onExecutionFault(ctx context.Context, record *model.Submission, cause error) {
	if record.Status.Terminal() {
		logger.Warn(ctx, "fault after terminal status ignored", zap.String("status", string(record.Status)), zap.Error(cause))
		return
	}
	logger.Error(ctx, "execution fault", zap.Error(cause))

	next := record.Clone()
	if next.Status == model.StatusPending {
		if err := next.Start(); err != nil {
			logger.Error(ctx, "fault transition failed", zap.Error(err))
			return
		}
	}
	if err := next.Fail(internalErrorMessage, s.now().UTC()); err != nil {
		logger.Error(ctx, "fault transition failed", zap.Error(err))
		return
	}

	err := s.update(ctx, next)
	if err != nil {
		err = s.update(ctx, next)
	}
	if err != nil {
		logger.Error(ctx, "persist fault status failed", zap.Error(err))
		return
	}
	*record = *next
	s.finish(ctx, record)
}

// update writes record even after the worker context was canceled.
func (s *SubmissionService) update(ctx context.Context, record *model.Submission) error {
	ctxDB := withTimeout(context.WithoutCancel(ctx), s.storeTimeout)
	defer ctxDB.cancel()
	return s.store.Update(ctxDB.ctx, record)
}

// finish announces a terminal record. Delivery is best effort.
func (s *SubmissionService) finish(ctx context.Context, record *model.Submission) {
	s.recorder.ObserveSubmission(ctx, string(record.Language), string(record.Status))
	detached := context.WithoutCancel(ctx)

	if s.events != nil {
		ctxMQ := withTimeout(detached, s.eventTimeout)
		if err := s.events.PublishFinalStatus(ctxMQ.ctx, record); err != nil {
			logger.Warn(ctx, "publish final status failed", zap.Error(err))
		}
		ctxMQ.cancel()
	}
	if s.archiver != nil {
		ctxStorage := withTimeout(detached, s.eventTimeout)
		if err := s.archiver.Archive(ctxStorage.ctx, record); err != nil {
			logger.Warn(ctx, "archive submission failed", zap.Error(err))
		}
		ctxStorage.cancel()
	}
}
