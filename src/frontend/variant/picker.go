package variant

import (
	"fmt"
	"sort"
	"strings"

	"github.com/nordic-editorial/storefront/src/frontend/model"
	"github.com/nordic-editorial/storefront/src/frontend/money"
)

const (
	LabelAddToCart   = "Add to Cart"
	LabelSoldOut     = "Sold Out"
	LabelUnavailable = "Unavailable"
)

// Picker holds the option selection for one product.
type Picker struct {
	product   *model.Product
	selection model.Selection
}

func NewPicker(p *model.Product) *Picker {
	return &Picker{product: p, selection: model.Selection{}}
}

// Select records value for the named option axis.
func (p *Picker) Select(name, value string) error {
	axis, ok := p.axis(name)
	if !ok {
		return fmt.Errorf("product %q has no option %q", p.product.Handle, name)
	}
	p.selection[axis] = value
	return nil
}

// SelectAll applies sel axis by axis. Any unknown option name fails the whole
// call and leaves the selection untouched.
func (p *Picker) SelectAll(sel model.Selection) error {
	names := make([]string, 0, len(sel))
	for name := range sel {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, ok := p.axis(name); !ok {
			return fmt.Errorf("product %q has no option %q", p.product.Handle, name)
		}
	}
	for _, axis := range p.product.Axes() {
		if value, ok := sel.Get(axis); ok {
			p.selection[axis] = value
		}
	}
	return nil
}

// SelectVariant seeds the selection from an existing variant.
func (p *Picker) SelectVariant(id int64) bool {
	v, ok := p.product.VariantByID(id)
	if !ok {
		return false
	}
	axes := p.product.Axes()
	p.selection = model.Selection{}
	for i, axis := range axes {
		if i < len(v.Options) {
			p.selection[axis] = v.Options[i]
		}
	}
	return true
}

// SelectFirstAvailable seeds the selection from the first variant in stock,
// or the first variant when everything is sold out.
func (p *Picker) SelectFirstAvailable() bool {
	if len(p.product.Variants) == 0 {
		return false
	}
	for _, v := range p.product.Variants {
		if v.Available {
			return p.SelectVariant(v.ID)
		}
	}
	return p.SelectVariant(p.product.Variants[0].ID)
}

func (p *Picker) Clear(name string) {
	if axis, ok := p.axis(name); ok {
		delete(p.selection, axis)
	}
}

// Selection returns a copy of the current selection.
func (p *Picker) Selection() model.Selection {
	out := make(model.Selection, len(p.selection))
	for k, v := range p.selection {
		out[k] = v
	}
	return out
}

// Selected returns the chosen value of an axis, or "".
func (p *Picker) Selected(name string) string {
	v, _ := p.selection.Get(name)
	return v
}

func (p *Picker) Current() (*model.Variant, bool) {
	return Resolve(p.product.Variants, p.product.Axes(), p.selection)
}

func (p *Picker) State() State {
	v, _ := p.Current()
	return StateOf(v)
}

// Availability reports, for each value of the named axis, whether some
// in-stock variant carries it together with the values already chosen on the
// other axes.
func (p *Picker) Availability(name string) map[string]bool {
	axis, ok := p.axis(name)
	if !ok {
		return nil
	}
	axes := p.product.Axes()
	idx := -1
	for i, a := range axes {
		if a == axis {
			idx = i
		}
	}
	out := map[string]bool{}
	for _, value := range p.product.OptionValues(idx) {
		out[value] = false
	}
	for _, v := range p.product.Variants {
		if !v.Available || idx >= len(v.Options) {
			continue
		}
		fits := true
		for i, a := range axes {
			if i == idx || i >= len(v.Options) {
				continue
			}
			if chosen, ok := p.selection[a]; ok && chosen != "" && chosen != v.Options[i] {
				fits = false
				break
			}
		}
		if fits {
			out[v.Options[idx]] = true
		}
	}
	return out
}

func (p *Picker) axis(name string) (string, bool) {
	for _, o := range p.product.Options {
		if o.Name == name || strings.EqualFold(o.Name, name) {
			return o.Name, true
		}
	}
	return "", false
}

// State is what the product form shows for the current selection.
type State struct {
	Variant        *model.Variant
	Price          money.Cents
	CompareAtPrice money.Cents
	OnSale         bool
	Available      bool
	CanAddToCart   bool
	Label          string
	ImageID        int64
}

// StateOf derives the add-to-cart state for a resolved variant. A nil variant
// means the selection matched nothing and the form must stay disabled.
func StateOf(v *model.Variant) State {
	if v == nil {
		return State{Label: LabelUnavailable}
	}
	s := State{
		Variant:        v,
		Price:          v.Price,
		CompareAtPrice: v.CompareAtPrice,
		OnSale:         v.CompareAtPrice > v.Price,
		Available:      v.Available,
		CanAddToCart:   v.Available,
		Label:          LabelAddToCart,
	}
	if !v.Available {
		s.Label = LabelSoldOut
	}
	if v.FeaturedImage != nil {
		s.ImageID = v.FeaturedImage.ID
	}
	return s
}
