package model

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/nordic-editorial/storefront/src/frontend/money"
)

// Product mirrors the storefront `/products/{handle}.js` payload.
type Product struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Handle      string    `json:"handle"`
	Description string    `json:"description"`
	URL         string    `json:"url"`
	Vendor      string    `json:"vendor,omitempty"`
	Options     []Option  `json:"options"`
	Variants    []Variant `json:"variants"`
	Images      []string  `json:"images,omitempty"`
	Available   bool      `json:"available"`
}

// Option is one option axis of a product. The `.js` endpoints send the bare
// name while the `.json` endpoints send an object with the values.
type Option struct {
	Name     string   `json:"name"`
	Position int      `json:"position,omitempty"`
	Values   []string `json:"values,omitempty"`
}

func (o *Option) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		return json.Unmarshal(b, &o.Name)
	}
	type plain Option
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*o = Option(p)
	return nil
}

// Variant is one purchasable combination of option values.
type Variant struct {
	ID             int64       `json:"id"`
	Title          string      `json:"title"`
	Options        []string    `json:"options"`
	Price          money.Cents `json:"price"`
	CompareAtPrice money.Cents `json:"compare_at_price"`
	Available      bool        `json:"available"`
	SKU            string      `json:"sku,omitempty"`
	FeaturedImage  *Image      `json:"featured_image,omitempty"`
}

// Image is a product image reference.
type Image struct {
	ID  int64  `json:"id"`
	Src string `json:"src"`
	Alt string `json:"alt,omitempty"`
}

// Axes returns the option names in axis order.
func (p *Product) Axes() []string {
	axes := make([]string, len(p.Options))
	for i, o := range p.Options {
		axes[i] = o.Name
	}
	return axes
}

// OptionValues returns the distinct values of axis i in first-seen order,
// preferring the values sent with the option when present.
func (p *Product) OptionValues(i int) []string {
	if i < 0 || i >= len(p.Options) {
		return nil
	}
	if len(p.Options[i].Values) > 0 {
		return p.Options[i].Values
	}
	seen := make(map[string]bool)
	var out []string
	for _, v := range p.Variants {
		if i >= len(v.Options) || seen[v.Options[i]] {
			continue
		}
		seen[v.Options[i]] = true
		out = append(out, v.Options[i])
	}
	return out
}

// VariantByID finds a variant by its id.
func (p *Product) VariantByID(id int64) (*Variant, bool) {
	for i := range p.Variants {
		if p.Variants[i].ID == id {
			return &p.Variants[i], true
		}
	}
	return nil, false
}

// HasOnlyDefaultVariant reports whether the product has a single
// "Default Title" variant and no real options to pick.
func (p *Product) HasOnlyDefaultVariant() bool {
	return len(p.Variants) == 1 && strings.EqualFold(p.Variants[0].Title, "Default Title")
}

// Selection maps an option name to the chosen value.
type Selection map[string]string

// Get looks up the value chosen for an option. The exact name wins; otherwise
// the lexically first case-insensitive match is used.
func (s Selection) Get(name string) (string, bool) {
	if v, ok := s[name]; ok {
		return v, true
	}
	var keys []string
	for k := range s {
		if strings.EqualFold(k, name) {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return "", false
	}
	sort.Strings(keys)
	return s[keys[0]], true
}
