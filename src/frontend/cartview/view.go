// Package cartview renders the cart drawer and its badges from a snapshot.
package cartview

import (
	"embed"
	"html/template"
	"io"
	"regexp"
	"strings"

	"github.com/pkg/errors"

	"github.com/nordic-editorial/storefront/src/frontend/model"
	"github.com/nordic-editorial/storefront/src/frontend/money"
)

//go:embed templates/*.html
var templateFS embed.FS

const defaultTitle = "Default Title"

var extension = regexp.MustCompile(`(\.[^./]+)$`)

// View renders snapshots. It holds no cart state; every render rebuilds the
// whole list.
type View struct {
	tmpl     *template.Template
	currency string
	format   string
}

// Badge is the header count and total.
type Badge struct {
	Count  int    `json:"count"`
	Total  string `json:"total"`
	Hidden bool   `json:"hidden"`
}

type drawerData struct {
	Empty      bool
	Items      []model.LineItem
	TotalPrice money.Cents
	Currency   string
}

// New returns a View that formats prices through the shop money format, the
// same one product pages use. With no format, prices are rendered in
// currency (or the snapshot's own currency) instead.
func New(currency, moneyFormat string) *View {
	if currency == "" {
		currency = "USD"
	}
	v := &View{currency: currency, format: moneyFormat}
	v.tmpl = template.Must(template.New("").
		Funcs(template.FuncMap{
			"formatMoney":  v.formatMoney,
			"resize":       ResizeImage,
			"variantLabel": VariantLabel,
		}).ParseFS(templateFS, "templates/*.html"))
	return v
}

// Render writes the drawer body for snap. A nil snapshot renders as empty.
func (v *View) Render(w io.Writer, snap *model.Snapshot) error {
	data := drawerData{Empty: snap.IsEmpty(), Currency: v.currencyOf(snap)}
	if snap != nil {
		data.Items = snap.Items
		data.TotalPrice = snap.TotalPrice
	}
	if err := v.tmpl.ExecuteTemplate(w, "drawer", data); err != nil {
		return errors.Wrap(err, "render cart drawer")
	}
	return nil
}

// RenderString is Render into a string, for JSON responses.
func (v *View) RenderString(snap *model.Snapshot) (string, error) {
	var b strings.Builder
	if err := v.Render(&b, snap); err != nil {
		return "", err
	}
	return b.String(), nil
}

func (v *View) Badge(snap *model.Snapshot) Badge {
	if snap == nil {
		return Badge{Total: v.formatMoney(0, v.currency), Hidden: true}
	}
	return Badge{
		Count:  snap.ItemCount,
		Total:  v.formatMoney(snap.TotalPrice, v.currencyOf(snap)),
		Hidden: snap.ItemCount == 0,
	}
}

func (v *View) currencyOf(snap *model.Snapshot) string {
	if snap != nil && snap.Currency != "" {
		return snap.Currency
	}
	return v.currency
}

func (v *View) formatMoney(c money.Cents, currency string) string {
	if v.format == "" {
		return money.FormatCurrency(int64(c), currency)
	}
	return c.Format(v.format)
}

// ResizeImage inserts a Shopify CDN size suffix ahead of the file extension:
// "a/b.jpg" becomes "a/b_200x200.jpg". Query strings are kept.
func ResizeImage(src, size string) string {
	if src == "" {
		return ""
	}
	path, query, hasQuery := strings.Cut(src, "?")
	if !extension.MatchString(path) {
		return src
	}
	path = extension.ReplaceAllString(path, "_"+size+"$1")
	if hasQuery {
		return path + "?" + query
	}
	return path
}

// VariantLabel hides the placeholder title of single-variant products.
func VariantLabel(title string) string {
	if title == defaultTitle {
		return ""
	}
	return title
}
