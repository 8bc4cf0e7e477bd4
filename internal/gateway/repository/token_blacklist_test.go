package repository

import (
	"context"
	"testing"
	"time"

	"coderank/internal/common/cache"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestTokenBlacklistRevoke(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	c, err := cache.NewRedisCacheWithClient(client)
	if err != nil {
		t.Fatalf("new cache failed: %v", err)
	}
	repo := NewTokenBlacklistRepository(c, time.Second)
	ctx := context.Background()

	if revoked, err := repo.IsBlacklisted(ctx, "tok"); err != nil || revoked {
		t.Fatalf("expected fresh token to be allowed, got revoked=%v err=%v", revoked, err)
	}
	if err := repo.Revoke(ctx, "tok", time.Minute); err != nil {
		t.Fatalf("revoke failed: %v", err)
	}
	if revoked, err := repo.IsBlacklisted(ctx, "tok"); err != nil || !revoked {
		t.Fatalf("expected revoked token, got revoked=%v err=%v", revoked, err)
	}

	mr.FastForward(2 * time.Minute)
	if revoked, _ := repo.IsBlacklisted(ctx, "tok"); revoked {
		t.Fatalf("expected revocation to expire with the token")
	}
}
