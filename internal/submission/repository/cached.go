package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"coderank/internal/common/cache"
	"coderank/internal/submission/model"
	"coderank/pkg/utils/logger"

	"go.uber.org/zap"
)

const (
	defaultSubmissionCacheTTL      = 30 * time.Minute
	defaultSubmissionCacheEmptyTTL = 5 * time.Minute
	submissionCacheKeyPrefix       = "submission:"
)

var errNotCacheable = errors.New("submission is not terminal")

// CachedStore serves Get from cache for terminal records. Non-terminal
// records always come from the backing store so readers never see a status
// older than what the store holds.
type CachedStore struct {
	SubmissionStore
	cache    cache.Cache
	ttl      time.Duration
	emptyTTL time.Duration
}

// NewCachedStore wraps store with a read-through cache.
func NewCachedStore(store SubmissionStore, cacheClient cache.Cache, ttl, emptyTTL time.Duration) *CachedStore {
	if ttl <= 0 {
		ttl = defaultSubmissionCacheTTL
	}
	if emptyTTL <= 0 {
		emptyTTL = defaultSubmissionCacheEmptyTTL
	}
	return &CachedStore{
		SubmissionStore: store,
		cache:           cacheClient,
		ttl:             ttl,
		emptyTTL:        emptyTTL,
	}
}

func (r *CachedStore) Create(ctx context.Context, submission *model.Submission) error {
	return cache.UpdateCached(ctx, r.cache, submissionCacheKey(submission), func(ctx context.Context) error {
		return r.SubmissionStore.Create(ctx, submission)
	})
}

func (r *CachedStore) Update(ctx context.Context, submission *model.Submission) error {
	return cache.UpdateCached(ctx, r.cache, submissionCacheKey(submission), func(ctx context.Context) error {
		return r.SubmissionStore.Update(ctx, submission)
	})
}

func (r *CachedStore) Get(ctx context.Context, id string) (*model.Submission, error) {
	submission, err := cache.GetWithCached[*model.Submission](
		ctx,
		r.cache,
		submissionCacheKeyPrefix+id,
		r.ttl,
		r.emptyTTL,
		func(s *model.Submission) bool { return s == nil },
		marshalSubmission,
		unmarshalSubmission,
		func(ctx context.Context) (*model.Submission, error) {
			s, err := r.SubmissionStore.Get(ctx, id)
			if errors.Is(err, ErrSubmissionNotFound) {
				return nil, nil
			}
			return s, err
		},
	)
	if err != nil {
		return nil, err
	}
	if submission == nil {
		return nil, ErrSubmissionNotFound
	}
	return submission, nil
}

func submissionCacheKey(submission *model.Submission) string {
	if submission == nil {
		return submissionCacheKeyPrefix
	}
	return submissionCacheKeyPrefix + submission.ID
}

// marshalSubmission refuses non-terminal records so they are never cached.
func marshalSubmission(submission *model.Submission) (string, error) {
	if !submission.Status.Terminal() {
		return "", errNotCacheable
	}
	data, err := json.Marshal(submission)
	if err != nil {
		logger.Warn(context.Background(), "marshal submission for cache failed", zap.String("submission_id", submission.ID), zap.Error(err))
		return "", err
	}
	return string(data), nil
}

func unmarshalSubmission(data string) (*model.Submission, error) {
	var submission model.Submission
	if err := json.Unmarshal([]byte(data), &submission); err != nil {
		return nil, err
	}
	return &submission, nil
}
