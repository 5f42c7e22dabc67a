package testutil

import (
	"context"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// SetupTestRedis returns a client for session-store tests. The miniredis
// handle is nil when REDIS_ADDR selects a live server, whose TEST_REDIS_DB
// (default 1) is flushed first.
func SetupTestRedis(t TB) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	env := loadInfraEnv()

	if env.redisAddr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			t.Fatalf("start miniredis: %v", err)
		}
		t.Cleanup(mr.Close)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { closeQuietly(t, "redis client", client) })
		return client, mr
	}

	client := redis.NewClient(&redis.Options{Addr: env.redisAddr, DB: env.redisDB})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		closeQuietly(t, "redis client", client)
		skipOrFail(t, env.requireRedis, "redis unavailable at", env.redisAddr+":", err)
		return nil, nil
	}
	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("flush redis db %d: %v", env.redisDB, err)
	}
	t.Cleanup(func() { closeQuietly(t, "redis client", client) })
	return client, nil
}
