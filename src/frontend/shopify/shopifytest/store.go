// Package shopifytest is an in-memory storefront AJAX API for tests.
package shopifytest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/nordic-editorial/storefront/src/frontend/model"
	"github.com/nordic-editorial/storefront/src/frontend/money"
)

// Store holds products and carts. Carts are keyed by the cart cookie.
type Store struct {
	// BeforeServe, when set, runs ahead of every request. Tests use it to
	// hold requests in flight or fail them.
	BeforeServe func(w http.ResponseWriter, r *http.Request) bool

	mu          sync.Mutex
	products    map[string]*model.Product
	stock       map[int64]int
	collections []model.SuggestLink
	carts       map[string]*model.Snapshot
	hits        map[string]int
	currency    string
}

func NewStore() *Store {
	return &Store{
		products: map[string]*model.Product{},
		stock:    map[int64]int{},
		carts:    map[string]*model.Snapshot{},
		hits:     map[string]int{},
		currency: "USD",
	}
}

// NewServer starts a server for s. It is closed by the caller.
func NewServer(s *Store) *httptest.Server { return httptest.NewServer(s) }

func (s *Store) AddProduct(p model.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := p
	s.products[p.Handle] = &cp
}

func (s *Store) AddCollection(c model.SuggestLink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collections = append(s.collections, c)
}

// SetStock caps how many units of a variant may sit in one cart.
func (s *Store) SetStock(variantID int64, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stock[variantID] = n
}

// Hits counts requests per path.
func (s *Store) Hits(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

// Cart returns a copy of the cart behind token.
func (s *Store) Cart(token string) *model.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.carts[token]
	if !ok {
		return nil
	}
	cp := *c
	cp.Items = append([]model.LineItem(nil), c.Items...)
	return &cp
}

func (s *Store) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.hits[r.URL.Path]++
	s.mu.Unlock()

	if s.BeforeServe != nil && !s.BeforeServe(w, r) {
		return
	}

	path := r.URL.Path
	switch {
	case path == "/cart/add.js" && r.Method == http.MethodPost:
		s.add(w, r)
	case path == "/cart/change.js" && r.Method == http.MethodPost:
		s.change(w, r)
	case path == "/cart/clear.js" && r.Method == http.MethodPost:
		cart := s.cartFor(w, r)
		s.mu.Lock()
		cart.Items = nil
		s.recount(cart)
		out := *cart
		s.mu.Unlock()
		writeJSON(w, http.StatusOK, out)
	case path == "/cart.js" && r.Method == http.MethodGet:
		cart := s.cartFor(w, r)
		s.mu.Lock()
		out := *cart
		out.Items = append([]model.LineItem{}, cart.Items...)
		s.mu.Unlock()
		writeJSON(w, http.StatusOK, out)
	case strings.HasPrefix(path, "/products/") && strings.HasSuffix(path, ".js"):
		handle := strings.TrimSuffix(strings.TrimPrefix(path, "/products/"), ".js")
		s.mu.Lock()
		p, ok := s.products[handle]
		s.mu.Unlock()
		if !ok {
			http.Error(w, "<html>Not found</html>", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, p)
	case path == "/search/suggest.json":
		s.suggest(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (s *Store) cartFor(w http.ResponseWriter, r *http.Request) *model.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ck, err := r.Cookie("cart"); err == nil {
		if c, ok := s.carts[ck.Value]; ok {
			return c
		}
	}
	token := uuid.New().String()
	c := &model.Snapshot{Token: token, Currency: s.currency, Items: []model.LineItem{}}
	s.carts[token] = c
	http.SetCookie(w, &http.Cookie{Name: "cart", Value: token, Path: "/"})
	return c
}

func (s *Store) add(w http.ResponseWriter, r *http.Request) {
	var in struct {
		ID       int64 `json:"id"`
		Quantity int   `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		reject(w, http.StatusBadRequest, "Parameter Missing or Invalid", "Required parameter missing or invalid: items")
		return
	}
	if in.Quantity == 0 {
		in.Quantity = 1
	}
	cart := s.cartFor(w, r)

	s.mu.Lock()
	defer s.mu.Unlock()
	p, v := s.variant(in.ID)
	if v == nil {
		reject(w, http.StatusNotFound, "Cart Error", "Cannot find variant")
		return
	}
	if !v.Available {
		reject(w, http.StatusUnprocessableEntity, "Cart Error", fmt.Sprintf("The product '%s' is already sold out.", title(p, v)))
		return
	}
	var line *model.LineItem
	for i := range cart.Items {
		if cart.Items[i].VariantID == v.ID {
			line = &cart.Items[i]
		}
	}
	have := 0
	if line != nil {
		have = line.Quantity
	}
	if n, ok := s.stock[v.ID]; ok && have+in.Quantity > n {
		reject(w, http.StatusUnprocessableEntity, "Cart Error", fmt.Sprintf("You can't add more %s to the cart.", title(p, v)))
		return
	}
	if line == nil {
		cart.Items = append(cart.Items, model.LineItem{
			ID:           v.ID,
			Key:          fmt.Sprintf("%d:%s", v.ID, strings.ReplaceAll(uuid.New().String(), "-", "")[:12]),
			VariantID:    v.ID,
			ProductID:    p.ID,
			ProductTitle: p.Title,
			Title:        title(p, v),
			VariantTitle: v.Title,
			Price:        v.Price,
			URL:          fmt.Sprintf("/products/%s?variant=%d", p.Handle, v.ID),
			Handle:       p.Handle,
		})
		line = &cart.Items[len(cart.Items)-1]
		if v.FeaturedImage != nil {
			line.Image = v.FeaturedImage.Src
		} else if len(p.Images) > 0 {
			line.Image = p.Images[0]
		}
	}
	line.Quantity += in.Quantity
	s.recount(cart)
	writeJSON(w, http.StatusOK, *line)
}

func (s *Store) change(w http.ResponseWriter, r *http.Request) {
	var in struct {
		ID       string `json:"id"`
		Quantity int    `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Quantity < 0 {
		reject(w, http.StatusBadRequest, "Parameter Missing or Invalid", "Required parameter missing or invalid: quantity")
		return
	}
	cart := s.cartFor(w, r)

	s.mu.Lock()
	defer s.mu.Unlock()
	idx := -1
	for i, it := range cart.Items {
		if it.Key == in.ID || strconv.FormatInt(it.VariantID, 10) == in.ID {
			idx = i
			break
		}
	}
	if idx < 0 {
		reject(w, http.StatusBadRequest, "no valid id or line parameter", "no valid id or line parameter")
		return
	}
	if in.Quantity == 0 {
		cart.Items = append(cart.Items[:idx], cart.Items[idx+1:]...)
	} else {
		if n, ok := s.stock[cart.Items[idx].VariantID]; ok && in.Quantity > n {
			reject(w, http.StatusUnprocessableEntity, "Cart Error", fmt.Sprintf("You can only add %d %s to the cart.", n, cart.Items[idx].Title))
			return
		}
		cart.Items[idx].Quantity = in.Quantity
	}
	s.recount(cart)
	out := *cart
	out.Items = append([]model.LineItem(nil), cart.Items...)
	writeJSON(w, http.StatusOK, out)
}

func (s *Store) suggest(w http.ResponseWriter, r *http.Request) {
	q := strings.ToLower(r.URL.Query().Get("q"))
	types := strings.Split(r.URL.Query().Get("resources[type]"), ",")
	limit, err := strconv.Atoi(r.URL.Query().Get("resources[limit]"))
	if err != nil || limit <= 0 {
		limit = 10
	}
	wants := func(t string) bool {
		for _, x := range types {
			if x == t {
				return true
			}
		}
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	type product struct {
		ID        int64  `json:"id"`
		Title     string `json:"title"`
		Handle    string `json:"handle"`
		URL       string `json:"url"`
		Image     string `json:"image"`
		Price     string `json:"price"`
		Available bool   `json:"available"`
	}
	products := []product{}
	collections := []model.SuggestLink{}
	if wants("product") {
		for _, p := range s.products {
			if len(products) >= limit || !strings.Contains(strings.ToLower(p.Title), q) {
				continue
			}
			out := product{ID: p.ID, Title: p.Title, Handle: p.Handle, URL: "/products/" + p.Handle, Available: p.Available}
			if len(p.Images) > 0 {
				out.Image = p.Images[0]
			}
			if len(p.Variants) > 0 {
				out.Price = fmt.Sprintf("%d.%02d", p.Variants[0].Price/100, p.Variants[0].Price%100)
			}
			products = append(products, out)
		}
	}
	if wants("collection") {
		for _, c := range s.collections {
			if len(collections) < limit && strings.Contains(strings.ToLower(c.Title), q) {
				collections = append(collections, c)
			}
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"resources": map[string]interface{}{
			"results": map[string]interface{}{
				"products":    products,
				"collections": collections,
				"articles":    []model.SuggestLink{},
				"pages":       []model.SuggestLink{},
			},
		},
	})
}

func (s *Store) variant(id int64) (*model.Product, *model.Variant) {
	for _, p := range s.products {
		if v, ok := p.VariantByID(id); ok {
			return p, v
		}
	}
	return nil, nil
}

func (s *Store) recount(c *model.Snapshot) {
	c.ItemCount, c.TotalPrice, c.OriginalTotalPrice = 0, 0, 0
	for i := range c.Items {
		it := &c.Items[i]
		it.FinalLinePrice = it.Price * money.Cents(it.Quantity)
		it.OriginalLinePrice = it.FinalLinePrice
		c.ItemCount += it.Quantity
		c.TotalPrice += it.FinalLinePrice
		c.OriginalTotalPrice += it.OriginalLinePrice
	}
	if c.Items == nil {
		c.Items = []model.LineItem{}
	}
}

func title(p *model.Product, v *model.Variant) string {
	if v.Title == "" || v.Title == "Default Title" {
		return p.Title
	}
	return p.Title + " - " + v.Title
}

func reject(w http.ResponseWriter, status int, message, description string) {
	writeJSON(w, status, map[string]interface{}{
		"status":      status,
		"message":     message,
		"description": description,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
