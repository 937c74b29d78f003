package model

import "github.com/nordic-editorial/storefront/src/frontend/money"

// SuggestResults groups predictive search matches by resource type.
type SuggestResults struct {
	Products    []SuggestProduct `json:"products"`
	Collections []SuggestLink    `json:"collections"`
	Articles    []SuggestLink    `json:"articles"`
	Pages       []SuggestLink    `json:"pages"`
}

type SuggestProduct struct {
	ID        int64       `json:"id"`
	Title     string      `json:"title"`
	Handle    string      `json:"handle"`
	URL       string      `json:"url"`
	Image     string      `json:"image"`
	Price     money.Cents `json:"price"`
	Available bool        `json:"available"`
}

type SuggestLink struct {
	Title string `json:"title"`
	URL   string `json:"url"`
	Image string `json:"image,omitempty"`
}

// IsEmpty reports whether no group has a match.
func (r *SuggestResults) IsEmpty() bool {
	return r == nil || (len(r.Products) == 0 && len(r.Collections) == 0 &&
		len(r.Articles) == 0 && len(r.Pages) == 0)
}
