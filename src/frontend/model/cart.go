package model

import "github.com/nordic-editorial/storefront/src/frontend/money"

// LineItem is one entry of a cart snapshot. It is owned by the store and only
// displayed here.
type LineItem struct {
	ID                int64       `json:"id"`
	Key               string      `json:"key"`
	VariantID         int64       `json:"variant_id"`
	ProductID         int64       `json:"product_id"`
	ProductTitle      string      `json:"product_title"`
	Title             string      `json:"title"`
	VariantTitle      string      `json:"variant_title"`
	Quantity          int         `json:"quantity"`
	Price             money.Cents `json:"price"`
	FinalLinePrice    money.Cents `json:"final_line_price"`
	OriginalLinePrice money.Cents `json:"original_line_price"`
	Image             string      `json:"image"`
	URL               string      `json:"url"`
	Handle            string      `json:"handle"`
}

// Snapshot is the full cart as last reported by the store.
type Snapshot struct {
	Token              string      `json:"token"`
	ItemCount          int         `json:"item_count"`
	TotalPrice         money.Cents `json:"total_price"`
	OriginalTotalPrice money.Cents `json:"original_total_price"`
	Currency           string      `json:"currency"`
	Items              []LineItem  `json:"items"`
}

// Line returns the line item with the given key.
func (s *Snapshot) Line(key string) (*LineItem, bool) {
	if s == nil {
		return nil, false
	}
	for i := range s.Items {
		if s.Items[i].Key == key {
			return &s.Items[i], true
		}
	}
	return nil, false
}

// IsEmpty reports whether the cart holds no lines.
func (s *Snapshot) IsEmpty() bool { return s == nil || len(s.Items) == 0 }
