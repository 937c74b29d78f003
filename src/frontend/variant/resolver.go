// Package variant matches a shopper's option selection against a product's
// variant list and derives the add-to-cart state from the result.
package variant

import "github.com/nordic-editorial/storefront/src/frontend/model"

// Resolve returns the variant whose option tuple equals the selection, taking
// the selection's values in axis order. A selection that leaves any axis
// unset or empty never matches.
func Resolve(variants []model.Variant, axes []string, sel model.Selection) (*model.Variant, bool) {
	if len(axes) == 0 {
		return nil, false
	}
	values := make([]string, len(axes))
	for i, axis := range axes {
		v, ok := sel.Get(axis)
		if !ok || v == "" {
			return nil, false
		}
		values[i] = v
	}
	return ResolveTuple(variants, values)
}

// ResolveTuple matches a positional option tuple exactly.
func ResolveTuple(variants []model.Variant, values []string) (*model.Variant, bool) {
	for i := range variants {
		if sameTuple(variants[i].Options, values) {
			return &variants[i], true
		}
	}
	return nil, false
}

func sameTuple(opts, values []string) bool {
	if len(opts) == 0 || len(opts) != len(values) {
		return false
	}
	for i := range opts {
		if values[i] == "" || opts[i] != values[i] {
			return false
		}
	}
	return true
}
