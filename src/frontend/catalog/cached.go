// Package catalog caches product definitions fetched from the store.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	redis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/singleflight"

	"github.com/nordic-editorial/storefront/src/frontend/model"
)

const (
	baseTTL   = 10 * time.Minute
	jitterTTL = 60

	originTimeout = 30 * time.Second
)

// ProductSource loads a product by handle.
type ProductSource interface {
	GetProduct(ctx context.Context, handle string) (*model.Product, error)
}

// CachedSource keeps product JSON in Redis. Redis trouble never fails a read;
// the origin is asked instead.
type CachedSource struct {
	next ProductSource
	rdb  *redis.Client
	sf   singleflight.Group
	cb   *gobreaker.CircuitBreaker
	log  logrus.FieldLogger

	hitTotal    uint64
	missTotal   uint64
	bypassTotal uint64
	sharedTotal uint64
}

// NewCachedSource wraps next. A nil rdb disables caching but keeps miss
// coalescing.
func NewCachedSource(next ProductSource, rdb *redis.Client, log logrus.FieldLogger, meter metric.Meter) *CachedSource {
	st := gobreaker.Settings{
		Name:        "CatalogCacheBreaker",
		MaxRequests: 1,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warnf("CircuitBreaker state changed from %s to %s", from, to)
		},
	}
	c := &CachedSource{
		next: next,
		rdb:  rdb,
		cb:   gobreaker.NewCircuitBreaker(st),
		log:  log,
	}
	if meter != nil {
		c.registerMetrics(meter)
	}
	return c
}

func (c *CachedSource) registerMetrics(meter metric.Meter) {
	gauges := map[string]*uint64{
		"catalog_cache_hit_total":    &c.hitTotal,
		"catalog_cache_miss_total":   &c.missTotal,
		"catalog_cache_bypass_total": &c.bypassTotal,
		"catalog_cache_shared_total": &c.sharedTotal,
	}
	for name, v := range gauges {
		v := v
		_, err := meter.Int64ObservableGauge(
			name,
			metric.WithUnit("{requests}"),
			metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
				obs.Observe(int64(atomic.LoadUint64(v)))
				return nil
			}),
		)
		if err != nil {
			c.log.Warnf("failed to register metric %s: %v", name, err)
		}
	}
}

func productKey(handle string) string { return fmt.Sprintf("product:%s", handle) }

func (c *CachedSource) GetProduct(ctx context.Context, handle string) (*model.Product, error) {
	key := productKey(handle)

	if p, ok := c.lookup(ctx, key); ok {
		atomic.AddUint64(&c.hitTotal, 1)
		return p, nil
	}
	atomic.AddUint64(&c.missTotal, 1)

	// The load outlives any single caller; each caller only stops waiting.
	ch := c.sf.DoChan(key, func() (interface{}, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), originTimeout)
		defer cancel()
		product, err := c.next.GetProduct(loadCtx, handle)
		if err != nil {
			return nil, err
		}
		c.store(loadCtx, key, product)
		return product, nil
	})
	select {
	case <-ctx.Done():
		return nil, errors.Wrapf(ctx.Err(), "get product %s", handle)
	case res := <-ch:
		if res.Err != nil {
			return nil, errors.Wrapf(res.Err, "get product %s", handle)
		}
		if res.Shared {
			atomic.AddUint64(&c.sharedTotal, 1)
			c.log.Debugf("shared product load for handle: %s", handle)
		}
		return res.Val.(*model.Product), nil
	}
}

// Invalidate drops a cached product.
func (c *CachedSource) Invalidate(ctx context.Context, handle string) error {
	if c.rdb == nil {
		return nil
	}
	return errors.Wrap(c.rdb.Del(ctx, productKey(handle)).Err(), "invalidate product")
}

func (c *CachedSource) lookup(ctx context.Context, key string) (*model.Product, bool) {
	if c.rdb == nil {
		return nil, false
	}
	val, err := c.cb.Execute(func() (interface{}, error) {
		res, err := c.rdb.Get(ctx, key).Result()
		if err == redis.Nil {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return res, nil
	})
	if err != nil {
		atomic.AddUint64(&c.bypassTotal, 1)
		c.log.Warnf("[GetProduct] circuit breaker open or redis error, reading origin: %v", err)
		return nil, false
	}
	if val == nil {
		return nil, false
	}
	var product model.Product
	if err := json.Unmarshal([]byte(val.(string)), &product); err != nil {
		c.log.Errorf("[GetProduct] failed to unmarshal %s from redis: %v", key, err)
		return nil, false
	}
	return &product, true
}

func (c *CachedSource) store(ctx context.Context, key string, product *model.Product) {
	if c.rdb == nil {
		return
	}
	data, err := json.Marshal(product)
	if err != nil {
		c.log.Errorf("[GetProduct] failed to marshal %s: %v", key, err)
		return
	}
	ttl := baseTTL + time.Duration(rand.Intn(jitterTTL))*time.Second
	if _, err := c.cb.Execute(func() (interface{}, error) {
		return nil, c.rdb.Set(ctx, key, data, ttl).Err()
	}); err != nil {
		c.log.Errorf("[GetProduct] failed to write cache for redis key %s: %v", key, err)
	}
}
