// Package repository holds auth state shared across replicas.
package repository

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"coderank/internal/common/cache"
)

const tokenBlacklistKeyPrefix = "auth:revoked:"

// TokenBlacklistRepository records revoked tokens in Redis by hash.
type TokenBlacklistRepository struct {
	cache        cache.Cache
	redisTimeout time.Duration
}

func NewTokenBlacklistRepository(cacheClient cache.Cache, redisTimeout time.Duration) *TokenBlacklistRepository {
	if redisTimeout <= 0 {
		redisTimeout = 200 * time.Millisecond
	}
	return &TokenBlacklistRepository{cache: cacheClient, redisTimeout: redisTimeout}
}

// IsBlacklisted reports whether the raw token was revoked.
func (r *TokenBlacklistRepository) IsBlacklisted(ctx context.Context, rawToken string) (bool, error) {
	if rawToken == "" {
		return false, nil
	}
	if r.cache == nil {
		return false, errors.New("cache is nil")
	}
	ctxCache, cancel := context.WithTimeout(ctx, r.redisTimeout)
	defer cancel()
	val, err := r.cache.Get(ctxCache, tokenBlacklistKey(rawToken))
	if err != nil {
		return false, err
	}
	return val != "", nil
}

// Revoke blacklists the raw token until ttl, normally the token's remaining lifetime.
func (r *TokenBlacklistRepository) Revoke(ctx context.Context, rawToken string, ttl time.Duration) error {
	if rawToken == "" {
		return errors.New("token is empty")
	}
	if r.cache == nil {
		return errors.New("cache is nil")
	}
	ctxCache, cancel := context.WithTimeout(ctx, r.redisTimeout)
	defer cancel()
	return r.cache.Set(ctxCache, tokenBlacklistKey(rawToken), "1", ttl)
}

func tokenBlacklistKey(rawToken string) string {
	sum := sha256.Sum256([]byte(rawToken))
	return tokenBlacklistKeyPrefix + hex.EncodeToString(sum[:])
}
