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
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/nordic-editorial/storefront/src/frontend/money"
	"github.com/nordic-editorial/storefront/src/frontend/search"
)

// config is read once at startup and handed to constructors.
type config struct {
	port string

	storeURL    string
	routesRoot  string
	moneyFormat string
	currency    string

	searchLimit    int
	searchTypes    []string
	searchMinQuery int

	requestTimeout     time.Duration
	sessionIdleTimeout time.Duration
	sessionTTL         time.Duration

	redisAddr          string
	redisSentinelAddrs []string
	redisMasterName    string
	redisDB            int

	enableTracing   bool
	collectorAddr   string
	disableProfiler bool

	globalRate  float64
	globalBurst int
	ipRate      float64
	ipBurst     int
}

func loadConfig() (config, error) {
	cfg := config{
		port:               getEnv("PORT", "8080"),
		storeURL:           strings.TrimRight(getEnv("SHOPIFY_STORE_URL", ""), "/"),
		routesRoot:         getEnv("SHOPIFY_ROUTES_ROOT", "/"),
		moneyFormat:        getEnv("MONEY_FORMAT", money.DefaultFormat),
		currency:           strings.ToUpper(getEnv("SHOP_CURRENCY", "USD")),
		searchLimit:        getEnvInt("SEARCH_LIMIT", 10),
		searchTypes:        getEnvList("SEARCH_TYPES", []string{"product", "collection", "article"}),
		searchMinQuery:     getEnvInt("SEARCH_MIN_QUERY", search.DefaultMinQueryLength),
		requestTimeout:     getEnvDuration("REQUEST_TIMEOUT", 10*time.Second),
		sessionIdleTimeout: getEnvDuration("SESSION_IDLE_TIMEOUT", 30*time.Minute),
		sessionTTL:         getEnvDuration("SESSION_TTL", 14*24*time.Hour),
		redisAddr:          getEnv("REDIS_ADDR", ""),
		redisSentinelAddrs: getEnvList("REDIS_SENTINEL_ADDRS", nil),
		redisMasterName:    getEnv("REDIS_MASTER_NAME", "mymaster"),
		redisDB:            getEnvInt("REDIS_DB", 0),
		enableTracing:      os.Getenv("ENABLE_TRACING") == "1",
		collectorAddr:      getEnv("COLLECTOR_SERVICE_ADDR", ""),
		disableProfiler:    os.Getenv("DISABLE_PROFILER") != "",
		globalRate:         getEnvFloat("RATELIMIT_GLOBAL_RPS", 1000.0),
		globalBurst:        getEnvInt("RATELIMIT_GLOBAL_BURST", 1000),
		ipRate:             getEnvFloat("RATELIMIT_IP_RPS", 5.0),
		ipBurst:            getEnvInt("RATELIMIT_IP_BURST", 10),
	}
	if cfg.storeURL == "" {
		return cfg, errors.New("SHOPIFY_STORE_URL must be set")
	}
	if cfg.enableTracing && cfg.collectorAddr == "" {
		return cfg, errors.New("COLLECTOR_SERVICE_ADDR must be set when ENABLE_TRACING=1")
	}
	if cfg.searchLimit <= 0 || cfg.searchLimit > 10 {
		return cfg, errors.Errorf("SEARCH_LIMIT must be between 1 and 10, got %d", cfg.searchLimit)
	}
	return cfg, nil
}

// redisEnabled reports whether any Redis endpoint is configured.
func (c config) redisEnabled() bool {
	return c.redisAddr != "" || len(c.redisSentinelAddrs) > 0
}

func getEnv(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok && strings.TrimSpace(val) != "" {
		return strings.TrimSpace(val)
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func getEnvList(key string, defaultVal []string) []string {
	val := getEnv(key, "")
	if val == "" {
		return defaultVal
	}
	var out []string
	for _, s := range strings.Split(val, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
