package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/PipeOpsHQ/financeira-functions/store"
	"github.com/PipeOpsHQ/financeira-functions/store/storetest"
)

func newTestRedisStore(t *testing.T) *Store {
	t.Helper()

	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		addr = "127.0.0.1:6379"
	}
	prefix := "fnfin-test-" + uuid.NewString()

	s, err := New(addr, WithPrefix(prefix))
	if err != nil {
		t.Skipf("redis unavailable at %s: %v", addr, err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		keys, _ := s.client.Keys(ctx, prefix+":*").Result()
		if len(keys) > 0 {
			_ = s.client.Del(ctx, keys...).Err()
		}
		_ = s.Close()
	})
	return s
}

func TestRedisStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		return newTestRedisStore(t)
	})
}

func TestRedisStore_RequiresAddr(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty addr")
	}
}
