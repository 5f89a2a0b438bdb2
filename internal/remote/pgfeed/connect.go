package pgfeed

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const maxConnectBackoff = 30 * time.Second

// connectPool dials Postgres, retrying with doubling backoff until maxWait
// has passed or ctx is done.
func connectPool(ctx context.Context, url string, maxWait time.Duration, logger *zap.Logger) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("pgfeed: parse postgres url: %w", err)
	}
	deadline := time.Now().Add(maxWait)
	backoff := 2 * time.Second
	for {
		pool, err := dialPool(ctx, cfg)
		if err == nil {
			return pool, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("pgfeed: connect postgres (gave up after %v): %w", maxWait, err)
		}
		logger.Warn("postgres connect failed, retrying", zap.Duration("backoff", backoff), zap.Error(err))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxConnectBackoff)
	}
}

func dialPool(ctx context.Context, cfg *pgxpool.Config) (*pgxpool.Pool, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(dialCtx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(dialCtx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func connectRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("pgfeed: parse redis url: %w", err)
	}
	cli := redis.NewClient(opts)
	if err := cli.Ping(ctx).Err(); err != nil {
		if closeErr := cli.Close(); closeErr != nil {
			return nil, fmt.Errorf("pgfeed: redis ping: %w (close: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("pgfeed: redis ping: %w", err)
	}
	return cli, nil
}
