package shopify

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/nordic-editorial/storefront/src/frontend/model"
)

// SuggestOptions narrows a predictive search.
type SuggestOptions struct {
	Types []string
	Limit int
}

var defaultSuggestTypes = []string{"product", "collection", "article"}

type suggestResponse struct {
	Resources struct {
		Results model.SuggestResults `json:"results"`
	} `json:"resources"`
}

// Suggest runs a predictive search.
func (c *Client) Suggest(ctx context.Context, query string, opts SuggestOptions) (*model.SuggestResults, error) {
	types := opts.Types
	if len(types) == 0 {
		types = defaultSuggestTypes
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}
	q := url.Values{}
	q.Set("q", query)
	q.Set("resources[type]", strings.Join(types, ","))
	q.Set("resources[limit]", strconv.Itoa(limit))

	var res suggestResponse
	if err := c.do(ctx, OpSuggest, http.MethodGet, "search/suggest.json", q, nil, &res); err != nil {
		return nil, err
	}
	return &res.Resources.Results, nil
}
