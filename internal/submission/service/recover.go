package service

import (
	"context"
	"time"

	"coderank/internal/submission/model"
	appErr "coderank/pkg/errors"
	"coderank/pkg/utils/logger"

	"go.uber.org/zap"
)

const (
	recoverBatchSize   = 100
	interruptedMessage = "execution interrupted"
)

// Recover fails records left PENDING or RUNNING by a previous process that
// were created more than olderThan ago. It returns how many were failed.
// Run it before Start so work queued by this process is never swept.
func (s *SubmissionService) Recover(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := s.now().UTC().Add(-olderThan)
	recovered := 0
	for _, status := range []model.Status{model.StatusRunning, model.StatusPending} {
		for {
			ctxDB := withTimeout(ctx, s.storeTimeout)
			stale, err := s.store.FindByStatus(ctxDB.ctx, status, cutoff, recoverBatchSize)
			ctxDB.cancel()
			if err != nil {
				return recovered, appErr.Wrapf(err, appErr.DatabaseError, "find stale submissions failed")
			}
			for _, record := range stale {
				if err := s.interrupt(ctx, record); err != nil {
					return recovered, err
				}
				recovered++
			}
			if len(stale) < recoverBatchSize {
				break
			}
		}
	}
	if recovered > 0 {
		logger.Warn(ctx, "recovered interrupted submissions", zap.Int("count", recovered), zap.Time("cutoff", cutoff))
	}
	return recovered, nil
}

func (s *SubmissionService) interrupt(ctx context.Context, record *model.Submission) error {
	if record.Status == model.StatusPending {
		if err := record.Start(); err != nil {
			return appErr.Wrap(err, appErr.InternalServerError)
		}
	}
	if err := record.Fail(interruptedMessage, s.now().UTC()); err != nil {
		return appErr.Wrap(err, appErr.InternalServerError)
	}
	if err := s.update(ctx, record); err != nil {
		return appErr.Wrapf(err, appErr.DatabaseError, "fail interrupted submission %s failed", record.ID)
	}
	s.finish(ctx, record)
	return nil
}
