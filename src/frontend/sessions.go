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
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/nordic-editorial/storefront/src/frontend/cart"
	"github.com/nordic-editorial/storefront/src/frontend/search"
)

// shopper is the per-session state: one cart drawer and one search box.
type shopper struct {
	drawer    *cart.Drawer
	suggester *search.Suggester
	lastSeen  int64
}

func (s *shopper) touch(now time.Time) { atomic.StoreInt64(&s.lastSeen, now.UnixNano()) }

func (s *shopper) idleSince(now time.Time) time.Duration {
	return now.Sub(time.Unix(0, atomic.LoadInt64(&s.lastSeen)))
}

type shopperFactory func(ctx context.Context, sessionID string) (*shopper, error)

// shopperRegistry owns every live shopper. Idle shoppers are dropped by the
// janitor; their cart stays with the store and is found again through the
// session store.
type shopperRegistry struct {
	build shopperFactory
	idle  time.Duration
	log   logrus.FieldLogger
	now   func() time.Time

	mu       sync.Mutex
	shoppers map[string]*shopper

	createdTotal uint64
	evictedTotal uint64
}

func newShopperRegistry(build shopperFactory, idle time.Duration, log logrus.FieldLogger) *shopperRegistry {
	return &shopperRegistry{
		build:    build,
		idle:     idle,
		log:      log,
		now:      time.Now,
		shoppers: map[string]*shopper{},
	}
}

func (r *shopperRegistry) registerMetrics(meter metric.Meter) {
	_, err := meter.Int64ObservableGauge("frontend_shoppers",
		metric.WithInt64Callback(func(_ context.Context, obs metric.Int64Observer) error {
			obs.Observe(int64(r.len()), metric.WithAttributes(attribute.String("state", "live")))
			obs.Observe(int64(atomic.LoadUint64(&r.createdTotal)), metric.WithAttributes(attribute.String("state", "created")))
			obs.Observe(int64(atomic.LoadUint64(&r.evictedTotal)), metric.WithAttributes(attribute.String("state", "evicted")))
			return nil
		}),
	)
	if err != nil {
		r.log.Warnf("failed to register shopper metrics: %v", err)
	}
}

// get returns the shopper for a session, building it on first use.
func (r *shopperRegistry) get(ctx context.Context, sessionID string) (*shopper, error) {
	if sessionID == "" {
		return nil, errors.New("missing session id")
	}
	now := r.now()

	r.mu.Lock()
	s, ok := r.shoppers[sessionID]
	r.mu.Unlock()
	if ok {
		s.touch(now)
		return s, nil
	}

	built, err := r.build(ctx, sessionID)
	if err != nil {
		return nil, errors.Wrap(err, "could not create shopper")
	}
	built.touch(now)

	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.shoppers[sessionID]; ok {
		return s, nil
	}
	r.shoppers[sessionID] = built
	atomic.AddUint64(&r.createdTotal, 1)
	return built, nil
}

func (r *shopperRegistry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.shoppers)
}

// evictIdle drops shoppers not seen for longer than the idle timeout. Busy
// drawers are kept.
func (r *shopperRegistry) evictIdle() int {
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, s := range r.shoppers {
		if s.idleSince(now) <= r.idle || s.drawer.Busy() {
			continue
		}
		s.suggester.Cancel()
		delete(r.shoppers, id)
		n++
	}
	atomic.AddUint64(&r.evictedTotal, uint64(n))
	return n
}

// runJanitor evicts idle shoppers until ctx is done.
func (r *shopperRegistry) runJanitor(ctx context.Context, wg *sync.WaitGroup, every time.Duration) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(every)
		defer ticker.Stop()

		r.log.Infof("[ShopperJanitor] Started (every %v, idle after %v)", every, r.idle)
		for {
			select {
			case <-ctx.Done():
				r.log.Info("[ShopperJanitor] Stopping...")
				return
			case <-ticker.C:
				if n := r.evictIdle(); n > 0 {
					r.log.Debugf("[ShopperJanitor] evicted %d idle shoppers", n)
				}
			}
		}
	}()
}
