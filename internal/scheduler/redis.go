package scheduler

import (
	"crypto/tls"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"lead_protection_backend/platform/config"
)

const defaultQueue = "default"

// redisOptions parses REDIS_URL. rediss:// URLs keep their TLS settings;
// REDIS_TLS_INSECURE only relaxes certificate checks.
func redisOptions(cfg config.SchedulerConfig) (*redis.Options, error) {
	if cfg.GetRedisURL() == "" {
		return nil, errors.New("redis url not configured")
	}
	opt, err := redis.ParseURL(cfg.GetRedisURL())
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if cfg.GetRedisTLSInsecure() {
		if opt.TLSConfig == nil {
			opt.TLSConfig = &tls.Config{}
		}
		opt.TLSConfig.InsecureSkipVerify = true
	}
	return opt, nil
}

// NewRedisClient opens the go-redis client used for the sweep lock.
func NewRedisClient(cfg config.SchedulerConfig) (*redis.Client, error) {
	opt, err := redisOptions(cfg)
	if err != nil {
		return nil, err
	}
	return redis.NewClient(opt), nil
}

func asynqRedisOpt(cfg config.SchedulerConfig) (asynq.RedisClientOpt, error) {
	opt, err := redisOptions(cfg)
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}
	return asynq.RedisClientOpt{
		Addr:      opt.Addr,
		Username:  opt.Username,
		Password:  opt.Password,
		DB:        opt.DB,
		TLSConfig: opt.TLSConfig,
	}, nil
}

func queueName(cfg config.SchedulerConfig) string {
	if q := cfg.GetAsynqQueueName(); q != "" {
		return q
	}
	return defaultQueue
}
