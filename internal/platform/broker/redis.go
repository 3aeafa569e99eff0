package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/phrazzld/filepipe/internal/config"
)

// minPoolSize is the smallest connection pool Connect creates.
const minPoolSize = 10

// reservedConns are pool connections kept free of blocking receives for acks,
// job records and event publishes.
const reservedConns = 4

// PoolSize returns the connection pool size for a process running
// workerCount blocking receivers.
func PoolSize(workerCount int) int {
	return max(workerCount+reservedConns, minPoolSize)
}

// Connect creates a Redis client sized for workerCount concurrent receivers
// and verifies the connection.
func Connect(ctx context.Context, cfg config.RedisConfig, workerCount int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     PoolSize(workerCount),
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Addr, err)
	}

	return client, nil
}

// EventChannel returns the pub/sub channel carrying events for queue name.
func EventChannel(name string) string {
	return name + ":events"
}
