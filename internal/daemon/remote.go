package daemon

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/messageai/tacsync/internal/config"
	"github.com/messageai/tacsync/internal/remote"
	"github.com/messageai/tacsync/internal/remote/pgfeed"
)

const connectTimeout = time.Minute

// Remote bundles the feed roles the daemon needs from one backend.
type Remote struct {
	Feed   remote.Feed
	Chats  remote.ChatFeed
	Pinger remote.Pinger
	// Mem is set when the in-memory feed is in use.
	Mem   *remote.MemFeed
	close func()
}

// Close releases the backend connections.
func (r *Remote) Close() {
	if r.close != nil {
		r.close()
	}
}

func provideRemote(p Params, cfg *config.Profile, logger *zap.Logger) (*Remote, error) {
	if cfg.Remote.Mode == config.ModeMemory {
		logger.Info("using in-memory feed", zap.Bool("dev", p.Dev))
		mem := remote.NewMemFeed()
		return &Remote{Feed: mem, Chats: mem, Pinger: mem, Mem: mem}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	feed, err := pgfeed.Open(ctx, pgfeed.Options{
		PostgresURL: cfg.Remote.PostgresURL,
		RedisURL:    cfg.Remote.RedisURL,
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("connected to postgres feed")
	return &Remote{Feed: feed, Chats: feed, Pinger: feed, close: feed.Close}, nil
}
