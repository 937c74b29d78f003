package shopify

import (
	"context"
	"net/http"
	"strings"

	"github.com/nordic-editorial/storefront/src/frontend/model"
)

// GetProduct loads a product with its full variant list.
func (c *Client) GetProduct(ctx context.Context, handle string) (*model.Product, error) {
	if handle == "" || strings.ContainsAny(handle, "/?#") {
		return nil, &Error{Op: OpProduct, Kind: KindRejected, Status: http.StatusNotFound, Message: "Not found"}
	}
	var p model.Product
	path := "products/" + handle + ".js"
	if err := c.do(ctx, OpProduct, http.MethodGet, path, nil, nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}
