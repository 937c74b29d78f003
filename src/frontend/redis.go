// Copyright 2018 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"time"

	redisotel "github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const redisMaxRetries = 10

// initRedis connects to Redis in sentinel or single-node mode. It returns nil
// when Redis is not configured or never answers; the frontend then runs
// without caching, rate limiting or persistent sessions.
func initRedis(ctx context.Context, cfg config, log logrus.FieldLogger) *redis.Client {
	if !cfg.redisEnabled() {
		log.Info("Redis not configured, running without cache and rate limiter")
		return nil
	}

	var rdb *redis.Client
	if len(cfg.redisSentinelAddrs) > 0 {
		log.Infof("Initializing Redis in Sentinel Mode. Master: %s, Sentinels: %v", cfg.redisMasterName, cfg.redisSentinelAddrs)
		rdb = redis.NewFailoverClient(&redis.FailoverOptions{
			MasterName:    cfg.redisMasterName,
			SentinelAddrs: cfg.redisSentinelAddrs,
			DB:            cfg.redisDB,
		})
	} else {
		log.Infof("Initializing Redis in Single Node Mode. Addr: %s, DB: %d", cfg.redisAddr, cfg.redisDB)
		rdb = redis.NewClient(&redis.Options{
			Addr: cfg.redisAddr,
			DB:   cfg.redisDB,
		})
	}

	if err := redisotel.InstrumentTracing(rdb); err != nil {
		log.Warnf("failed to instrument redis tracing: %v", err)
	}
	if err := redisotel.InstrumentMetrics(rdb); err != nil {
		log.Warnf("failed to instrument redis metrics: %v", err)
	}

	for i := 0; i < redisMaxRetries; i++ {
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()

		if err == nil {
			log.Info("connected to redis")
			return rdb
		}

		if i == redisMaxRetries-1 {
			log.Warnf("failed to connect to redis after %d retries: %v, continuing without redis", redisMaxRetries, err)
			_ = rdb.Close()
			return nil
		}

		backoff := time.Duration(1<<i) * time.Second
		if backoff > 30*time.Second {
			backoff = 30 * time.Second
		}
		log.Warnf("redis not ready, retry in %v... (%d/%d)", backoff, i+1, redisMaxRetries)
		select {
		case <-ctx.Done():
			_ = rdb.Close()
			return nil
		case <-time.After(backoff):
		}
	}
	return nil
}
