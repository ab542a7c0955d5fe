package main

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/dd0wney/cluso-host/pkg/config"
	"github.com/dd0wney/cluso-host/pkg/kvstore"
	"github.com/dd0wney/cluso-host/pkg/kvstore/pgstore"
	"github.com/dd0wney/cluso-host/pkg/kvstore/redisstore"
	"github.com/dd0wney/cluso-host/pkg/logging"
)

// backend is an opened distributed store plus what the process needs to
// check and release it
type backend struct {
	store kvstore.Store
	ping  func(ctx context.Context) error
	close func() error
}

func openStore(ctx context.Context, cfg config.StoreConfig, logger logging.Logger) (*backend, error) {
	logger = logger.With(logging.Component("store"), logging.String("backend", cfg.Backend))

	switch cfg.Backend {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		s := redisstore.New(client, redisstore.WithLogger(logger))
		if err := s.Ping(ctx); err != nil {
			// Not fatal: publish retries and the subscription recover once
			// Redis is reachable
			logger.Warn("redis unreachable at startup", logging.Error(err))
		}
		return &backend{store: s, ping: s.Ping, close: client.Close}, nil

	case "postgres":
		s, err := pgstore.Open(ctx, cfg.PostgresURL, pgstore.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		return &backend{store: s, ping: s.Ping, close: s.Close}, nil

	case "memory", "":
		logger.Warn("using in-process store; the cluster id is not shared with other hosts")
		s := kvstore.NewMemory()
		return &backend{
			store: s,
			ping:  func(context.Context) error { return nil },
			close: s.Close,
		}, nil

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}
