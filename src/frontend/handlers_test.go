package main

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/nordic-editorial/storefront/src/frontend/money"
	"github.com/nordic-editorial/storefront/src/frontend/shopify/shopifytest"
)

func testConfig(storeURL string) config {
	return config{
		storeURL:           storeURL,
		routesRoot:         "/",
		moneyFormat:        money.DefaultFormat,
		currency:           "USD",
		searchLimit:        10,
		searchTypes:        []string{"product", "collection"},
		searchMinQuery:     2,
		requestTimeout:     5 * time.Second,
		sessionIdleTimeout: time.Minute,
		sessionTTL:         time.Hour,
	}
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type testFrontend struct {
	fe      *frontendServer
	store   *shopifytest.Store
	handler http.Handler
}

func newTestFrontend(t *testing.T, opts ...func(*config)) *testFrontend {
	t.Helper()
	store := shopifytest.Seeded()
	srv := shopifytest.NewServer(store)
	t.Cleanup(srv.Close)

	cfg := testConfig(srv.URL)
	for _, o := range opts {
		o(&cfg)
	}
	fe, err := newFrontendServer(cfg, nil, quietLogger(), noop.NewMeterProvider().Meter("test"))
	require.NoError(t, err)
	return &testFrontend{fe: fe, store: store, handler: fe.handler(nil)}
}

const testSession = "6f1c2b1e-8a53-4a8e-9a57-0c5d3b2e4f10"

func (tf *testFrontend) do(t *testing.T, method, target string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req := httptest.NewRequest(method, target, body)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	req.AddCookie(&http.Cookie{Name: cookieSessionID, Value: testSession})
	rec := httptest.NewRecorder()
	tf.handler.ServeHTTP(rec, req)
	return rec
}

func decodeCart(t *testing.T, rec *httptest.ResponseRecorder) cartResponse {
	t.Helper()
	var out cartResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var out ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

func TestProductPage(t *testing.T) {
	tf := newTestFrontend(t)

	rec := tf.do(t, http.MethodGet, "/products/linen-armchair", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Linen Armchair")
	assert.Contains(t, body, "$10.99")
	assert.Contains(t, body, `name="id" value="1"`)
	assert.Contains(t, body, "Add to Cart")
	assert.Contains(t, body, "armchair_1024x1024.jpg")
	assert.Contains(t, body, "Your cart is empty")
}

func TestProductPageSoldOutVariant(t *testing.T) {
	tf := newTestFrontend(t)

	rec := tf.do(t, http.MethodGet, "/products/linen-armchair?variant=3", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Sold Out")
	assert.Contains(t, body, " disabled>")
}

func TestProductPageSaleVariant(t *testing.T) {
	tf := newTestFrontend(t)

	rec := tf.do(t, http.MethodGet, "/products/linen-armchair?variant=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `<s class="product__compare-price">$14.99</s>`)
	assert.Contains(t, body, "armchair-red_1024x1024.jpg")
}

func TestProductPageNotFound(t *testing.T) {
	tf := newTestFrontend(t)

	rec := tf.do(t, http.MethodGet, "/products/no-such-thing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Not Found")
}

func TestVariantLookup(t *testing.T) {
	tf := newTestFrontend(t)

	rec := tf.do(t, http.MethodGet, "/products/linen-armchair/variant?Color=Red&Size=M", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got variantResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, int64(2), got.VariantID)
	assert.Equal(t, "$11.99", got.Price)
	assert.Equal(t, "$14.99", got.CompareAtPrice)
	assert.True(t, got.OnSale)
	assert.True(t, got.CanAddToCart)
	assert.Equal(t, int64(900), got.ImageID)
	assert.Equal(t, "/products/linen-armchair?variant=2", got.URL)
}

func TestVariantLookupUnavailableCombination(t *testing.T) {
	tf := newTestFrontend(t)

	rec := tf.do(t, http.MethodGet, "/products/linen-armchair/variant?Color=Blue&Size=M", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got variantResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Zero(t, got.VariantID)
	assert.False(t, got.CanAddToCart)
	assert.Equal(t, "Unavailable", got.Label)
}

func TestVariantLookupIgnoresOtherParams(t *testing.T) {
	tf := newTestFrontend(t)

	for _, target := range []string{
		"/products/linen-armchair/variant?Color=Red&Size=M&utm_source=mail",
		"/products/linen-armchair/variant?color=Red&size=M&_=1712345678",
		"/products/linen-armchair/variant?Color=Red&color=Blue&Size=M",
	} {
		rec := tf.do(t, http.MethodGet, target, nil)
		require.Equal(t, http.StatusOK, rec.Code, target)
		var got variantResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
		assert.Equal(t, int64(2), got.VariantID, target)
	}
}

func TestVariantLookupUnknownOption(t *testing.T) {
	tf := newTestFrontend(t)

	rec := tf.do(t, http.MethodGet, "/products/linen-armchair/variant?Material=Oak", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got variantResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Zero(t, got.VariantID)
	assert.Equal(t, "Unavailable", got.Label)
}

func TestShopMoneyFormatMatchesAcrossViews(t *testing.T) {
	tf := newTestFrontend(t, func(cfg *config) {
		cfg.moneyFormat = "{{amount_with_comma_separator}} €"
		cfg.currency = "EUR"
	})

	rec := tf.do(t, http.MethodGet, "/products/linen-armchair", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "10,99 €")
	assert.Contains(t, rec.Body.String(), "0,00 €")

	rec = tf.do(t, http.MethodPost, "/cart/add", url.Values{"id": {"1"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	out := decodeCart(t, rec)
	assert.Equal(t, "10,99 €", out.Total)
	assert.Equal(t, "10,99 €", out.Badge.Total)
	assert.Contains(t, out.Drawer, "10,99 €")
	assert.NotContains(t, out.Drawer, "$")
}

func TestCartFlow(t *testing.T) {
	tf := newTestFrontend(t)

	rec := tf.do(t, http.MethodPost, "/cart/add", url.Values{"id": {"2"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	out := decodeCart(t, rec)
	assert.Equal(t, "Item added to cart", out.Message)
	assert.Equal(t, 1, out.ItemCount)
	assert.Equal(t, "$11.99", out.Total)
	assert.False(t, out.Badge.Hidden)
	assert.Contains(t, out.Drawer, "Linen Armchair")

	rec = tf.do(t, http.MethodPost, "/cart/change", url.Values{"line": {"1"}, "quantity": {"3"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	out = decodeCart(t, rec)
	assert.Equal(t, "Cart updated", out.Message)
	assert.Equal(t, 3, out.ItemCount)

	rec = tf.do(t, http.MethodPost, "/cart/change", url.Values{"line": {"1"}, "delta": {"-1"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 2, decodeCart(t, rec).ItemCount)

	rec = tf.do(t, http.MethodPost, "/cart/add", url.Values{"id": {"10"}, "quantity": {"2"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	out = decodeCart(t, rec)
	assert.Equal(t, 4, out.ItemCount)
	assert.Equal(t, "$73.98", out.Total)

	key := tf.fe.mustShopper(t).drawer.Snapshot().Items[1].Key
	rec = tf.do(t, http.MethodPost, "/cart/change", url.Values{"id": {key}, "quantity": {"0"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	out = decodeCart(t, rec)
	assert.Equal(t, "Item removed from cart", out.Message)
	assert.Equal(t, 2, out.ItemCount)

	rec = tf.do(t, http.MethodPost, "/cart/clear", url.Values{})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	out = decodeCart(t, rec)
	assert.Equal(t, "Cart cleared", out.Message)
	assert.Zero(t, out.ItemCount)
	assert.True(t, out.Badge.Hidden)
	assert.Contains(t, out.Drawer, "Your cart is empty")
}

func (fe *frontendServer) mustShopper(t *testing.T) *shopper {
	t.Helper()
	fe.shoppers.mu.Lock()
	defer fe.shoppers.mu.Unlock()
	s, ok := fe.shoppers.shoppers[testSession]
	require.True(t, ok)
	return s
}

func TestAddToCartValidation(t *testing.T) {
	tf := newTestFrontend(t)

	for _, form := range []url.Values{
		{},
		{"id": {"abc"}},
		{"id": {"2"}, "quantity": {"0"}},
		{"id": {"2"}, "quantity": {"500"}},
	} {
		rec := tf.do(t, http.MethodPost, "/cart/add", form)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, form.Encode())
	}
	assert.Zero(t, tf.store.Hits("/cart/add.js"))
}

func TestAddToCartRejected(t *testing.T) {
	tf := newTestFrontend(t)

	rec := tf.do(t, http.MethodPost, "/cart/add", url.Values{"id": {"3"}})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	got := decodeError(t, rec)
	assert.Equal(t, "rejected", got.Code)
	assert.Equal(t, "The product 'Linen Armchair - Blue / S' is already sold out.", got.Error)
}

func TestAddToCartStoreDown(t *testing.T) {
	tf := newTestFrontend(t)
	tf.store.BeforeServe = func(w http.ResponseWriter, r *http.Request) bool {
		if r.URL.Path == "/cart/add.js" {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return false
		}
		return true
	}

	rec := tf.do(t, http.MethodPost, "/cart/add", url.Values{"id": {"1"}})
	require.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "Error adding to cart", decodeError(t, rec).Error)
}

func TestChangeUnknownLine(t *testing.T) {
	tf := newTestFrontend(t)

	rec := tf.do(t, http.MethodPost, "/cart/change", url.Values{"line": {"4"}, "quantity": {"1"}})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "unknown_line", decodeError(t, rec).Code)

	rec = tf.do(t, http.MethodPost, "/cart/change", url.Values{"id": {"nope"}, "delta": {"1"}})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "unknown_line", decodeError(t, rec).Code)
}

func TestCartMutationWhileBusy(t *testing.T) {
	tf := newTestFrontend(t)
	release := make(chan struct{})
	tf.store.BeforeServe = func(w http.ResponseWriter, r *http.Request) bool {
		if r.URL.Path == "/cart/add.js" {
			<-release
		}
		return true
	}

	var wg sync.WaitGroup
	wg.Add(1)
	var first *httptest.ResponseRecorder
	go func() {
		defer wg.Done()
		first = tf.do(t, http.MethodPost, "/cart/add", url.Values{"id": {"1"}})
	}()
	require.Eventually(t, func() bool { return tf.store.Hits("/cart/add.js") == 1 }, 2*time.Second, 5*time.Millisecond)

	rec := tf.do(t, http.MethodPost, "/cart/add", url.Values{"id": {"1"}})
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec = tf.do(t, http.MethodPost, "/cart/clear", url.Values{})
	assert.Equal(t, http.StatusConflict, rec.Code)

	close(release)
	wg.Wait()
	require.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, 1, decodeCart(t, first).ItemCount)
	assert.Equal(t, 1, tf.store.Hits("/cart/add.js"))
}

func TestCartEndpoints(t *testing.T) {
	tf := newTestFrontend(t)
	require.Equal(t, http.StatusOK, tf.do(t, http.MethodPost, "/cart/add", url.Values{"id": {"10"}}).Code)

	rec := tf.do(t, http.MethodGet, "/cart", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Stoneware Mug")
	assert.Empty(t, rec.Header().Get("X-Cart-Stale"))

	rec = tf.do(t, http.MethodGet, "/cart.json", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got struct {
		Cart struct {
			ItemCount int `json:"item_count"`
		} `json:"cart"`
		Badge struct {
			Count int    `json:"count"`
			Total string `json:"total"`
		} `json:"badge"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, 1, got.Cart.ItemCount)
	assert.Equal(t, 1, got.Badge.Count)
	assert.Equal(t, "$25.00", got.Badge.Total)
}

func TestCartServesLastKnownWhenStoreFails(t *testing.T) {
	tf := newTestFrontend(t)
	require.Equal(t, http.StatusOK, tf.do(t, http.MethodPost, "/cart/add", url.Values{"id": {"10"}}).Code)

	tf.store.BeforeServe = func(w http.ResponseWriter, r *http.Request) bool {
		http.Error(w, "boom", http.StatusInternalServerError)
		return false
	}
	rec := tf.do(t, http.MethodGet, "/cart", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("X-Cart-Stale"))
	assert.Contains(t, rec.Body.String(), "Stoneware Mug")
}

func TestCartTokenSurvivesEviction(t *testing.T) {
	tf := newTestFrontend(t)
	require.Equal(t, http.StatusOK, tf.do(t, http.MethodPost, "/cart/add", url.Values{"id": {"10"}}).Code)

	tf.fe.shoppers.now = func() time.Time { return time.Now().Add(time.Hour) }
	require.Equal(t, 1, tf.fe.shoppers.evictIdle())
	require.Zero(t, tf.fe.shoppers.len())
	tf.fe.shoppers.now = time.Now

	rec := tf.do(t, http.MethodGet, "/cart.json", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"item_count":1`)
}

func TestSearchSuggest(t *testing.T) {
	tf := newTestFrontend(t)

	rec := tf.do(t, http.MethodGet, "/search/suggest?q=arm", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Linen Armchair")

	rec = tf.do(t, http.MethodGet, "/search/suggest?q=living", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/collections/living-room")

	rec = tf.do(t, http.MethodGet, "/search/suggest?q=zzz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "No results found")
}

func TestSearchShortQuery(t *testing.T) {
	tf := newTestFrontend(t)

	rec := tf.do(t, http.MethodGet, "/search/suggest?q=a", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
	assert.Zero(t, tf.store.Hits("/search/suggest.json"))
}

func TestSearchSupersededQuery(t *testing.T) {
	tf := newTestFrontend(t)
	release := make(chan struct{})
	tf.store.BeforeServe = func(w http.ResponseWriter, r *http.Request) bool {
		if r.URL.Query().Get("q") == "arm" {
			<-release
		}
		return true
	}
	t.Cleanup(func() { close(release) })

	done := make(chan *httptest.ResponseRecorder, 1)
	go func() { done <- tf.do(t, http.MethodGet, "/search/suggest?q=arm", nil) }()
	require.Eventually(t, func() bool { return tf.store.Hits("/search/suggest.json") == 1 }, 2*time.Second, 5*time.Millisecond)

	rec := tf.do(t, http.MethodGet, "/search/suggest?q=mug", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Stoneware Mug")

	select {
	case first := <-done:
		assert.Equal(t, http.StatusNoContent, first.Code)
	case <-time.After(2 * time.Second):
		t.Fatal("superseded search did not return")
	}
}

func TestHealthz(t *testing.T) {
	tf := newTestFrontend(t)
	rec := tf.do(t, http.MethodGet, "/_healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestRespondJSONLogsThroughRequestLogger(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	rec := httptest.NewRecorder()
	respondJSON(logger.WithField("http.req.id", "r1"), rec, http.StatusOK, map[string]interface{}{"bad": make(chan int)})

	require.Len(t, hook.AllEntries(), 1)
	entry := hook.LastEntry()
	assert.Equal(t, logrus.WarnLevel, entry.Level)
	assert.Equal(t, "r1", entry.Data["http.req.id"])
}
