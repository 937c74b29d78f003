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
	"net/http"

	"github.com/gorilla/mux"
	redis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/metric"

	"github.com/nordic-editorial/storefront/src/frontend/cart"
	"github.com/nordic-editorial/storefront/src/frontend/cartview"
	"github.com/nordic-editorial/storefront/src/frontend/catalog"
	"github.com/nordic-editorial/storefront/src/frontend/search"
	"github.com/nordic-editorial/storefront/src/frontend/session"
	"github.com/nordic-editorial/storefront/src/frontend/shopify"
)

type frontendServer struct {
	cfg config
	log *logrus.Logger

	// transport is used for every store call; nil means otelhttp over the
	// default transport.
	transport http.RoundTripper
	breaker   *gobreaker.CircuitBreaker

	products catalog.ProductSource
	sessions session.Store
	shoppers *shopperRegistry
	metrics  *cart.Metrics

	drawerView *cartview.View
	searchView *search.Renderer
}

func newFrontendServer(cfg config, rdb *redis.Client, log *logrus.Logger, meter metric.Meter) (*frontendServer, error) {
	fe := &frontendServer{
		cfg:        cfg,
		log:        log,
		breaker:    shopify.NewBreaker("ShopifyStorefront", log),
		metrics:    cart.NewMetrics(meter, log),
		drawerView: cartview.New(cfg.currency, cfg.moneyFormat),
		searchView: search.NewRenderer(cfg.moneyFormat),
	}

	if rdb != nil {
		fe.sessions = session.NewRedisStore(rdb, cfg.sessionTTL)
	} else {
		fe.sessions = session.NewMemoryStore(cfg.sessionTTL)
	}

	// Product pages need no cart, so one client serves every shopper.
	storeClient, err := fe.newStoreClient("", nil)
	if err != nil {
		return nil, err
	}
	fe.products = catalog.NewCachedSource(storeClient, rdb, log, meter)

	fe.shoppers = newShopperRegistry(fe.newShopper, cfg.sessionIdleTimeout, log)
	fe.shoppers.registerMetrics(meter)
	return fe, nil
}

func (fe *frontendServer) newStoreClient(token string, onToken func(string)) (*shopify.Client, error) {
	return shopify.New(shopify.Config{
		StoreURL:    fe.cfg.storeURL,
		RoutesRoot:  fe.cfg.routesRoot,
		Timeout:     fe.cfg.requestTimeout,
		CartToken:   token,
		OnCartToken: onToken,
		Transport:   fe.transport,
		Breaker:     fe.breaker,
		Logger:      fe.log,
	})
}

// newShopper binds a session to its store cart. The cart token is looked up
// in the session store and written back whenever the store issues a new one.
func (fe *frontendServer) newShopper(ctx context.Context, sessionID string) (*shopper, error) {
	log := fe.log.WithField("session", sessionID)

	token, err := fe.sessions.CartToken(ctx, sessionID)
	if err != nil {
		log.Warnf("could not load cart token, starting a new cart: %v", err)
	}
	client, err := fe.newStoreClient(token, func(tok string) {
		if err := fe.sessions.SetCartToken(context.Background(), sessionID, tok); err != nil {
			log.Warnf("could not save cart token: %v", err)
		}
	})
	if err != nil {
		return nil, err
	}
	return &shopper{
		drawer: cart.NewDrawer(client, log, fe.metrics),
		suggester: search.NewSuggester(client, search.Config{
			MinQueryLength: fe.cfg.searchMinQuery,
			Types:          fe.cfg.searchTypes,
			Limit:          fe.cfg.searchLimit,
		}, log),
	}, nil
}

// handler builds the routed, instrumented HTTP handler. limiter may be nil.
func (fe *frontendServer) handler(limiter *Limiter) http.Handler {
	limit := func(h http.HandlerFunc) http.Handler {
		if limiter == nil {
			return h
		}
		return limiter.GlobalAndIPLimiter(h)
	}

	r := mux.NewRouter()
	r.HandleFunc("/products/{handle}", fe.productHandler).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/products/{handle}/variant", fe.variantHandler).Methods(http.MethodGet)
	r.Handle("/cart/add", limit(fe.addToCartHandler)).Methods(http.MethodPost)
	r.Handle("/cart/change", limit(fe.changeCartHandler)).Methods(http.MethodPost)
	r.Handle("/cart/clear", limit(fe.clearCartHandler)).Methods(http.MethodPost)
	r.HandleFunc("/cart", fe.cartHandler).Methods(http.MethodGet)
	r.HandleFunc("/cart.json", fe.cartJSONHandler).Methods(http.MethodGet)
	r.HandleFunc("/search/suggest", fe.searchHandler).Methods(http.MethodGet)
	r.HandleFunc("/_healthz", func(w http.ResponseWriter, _ *http.Request) { w.Write([]byte("ok")) })

	var handler http.Handler = r
	handler = &logHandler{log: fe.log, next: handler}
	handler = ensureSessionID(handler)
	handler = otelhttp.NewHandler(handler, "frontend")
	return handler
}
