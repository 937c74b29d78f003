package shopify

import (
	"context"
	"net/http"

	"github.com/nordic-editorial/storefront/src/frontend/model"
)

type addRequest struct {
	ID       int64 `json:"id"`
	Quantity int   `json:"quantity"`
}

type changeRequest struct {
	ID       string `json:"id"`
	Quantity int    `json:"quantity"`
}

// AddItem adds quantity units of a variant and returns the resulting line.
func (c *Client) AddItem(ctx context.Context, variantID int64, quantity int) (*model.LineItem, error) {
	var line model.LineItem
	if err := c.do(ctx, OpAdd, http.MethodPost, "cart/add.js", nil, addRequest{ID: variantID, Quantity: quantity}, &line); err != nil {
		return nil, err
	}
	return &line, nil
}

// SetQuantity sets the absolute quantity of a line. Zero removes it.
func (c *Client) SetQuantity(ctx context.Context, key string, quantity int) (*model.Snapshot, error) {
	var snap model.Snapshot
	if err := c.do(ctx, OpChange, http.MethodPost, "cart/change.js", nil, changeRequest{ID: key, Quantity: quantity}, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// FetchSnapshot reads the whole cart.
func (c *Client) FetchSnapshot(ctx context.Context) (*model.Snapshot, error) {
	var snap model.Snapshot
	if err := c.do(ctx, OpFetch, http.MethodGet, "cart.js", nil, nil, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// Clear empties the cart.
func (c *Client) Clear(ctx context.Context) (*model.Snapshot, error) {
	var snap model.Snapshot
	if err := c.do(ctx, OpClear, http.MethodPost, "cart/clear.js", nil, struct{}{}, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}
