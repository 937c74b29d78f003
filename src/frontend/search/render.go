package search

import (
	"embed"
	"html/template"
	"io"

	"github.com/pkg/errors"

	"github.com/nordic-editorial/storefront/src/frontend/cartview"
	"github.com/nordic-editorial/storefront/src/frontend/model"
	"github.com/nordic-editorial/storefront/src/frontend/money"
)

//go:embed templates/*.html
var templateFS embed.FS

type Renderer struct {
	tmpl *template.Template
}

type linkGroup struct {
	Type    string
	Heading string
	Links   []model.SuggestLink
}

type resultsData struct {
	Empty bool
	*model.SuggestResults
}

// NewRenderer formats product prices with the shop money format.
func NewRenderer(moneyFormat string) *Renderer {
	tmpl := template.Must(template.New("").
		Funcs(template.FuncMap{
			"formatMoney": func(c money.Cents) string { return money.Format(int64(c), moneyFormat) },
			"resize":      cartview.ResizeImage,
			"group": func(typ, heading string, links []model.SuggestLink) linkGroup {
				return linkGroup{Type: typ, Heading: heading, Links: links}
			},
		}).ParseFS(templateFS, "templates/*.html"))
	return &Renderer{tmpl: tmpl}
}

func (r *Renderer) Render(w io.Writer, res *model.SuggestResults) error {
	if res == nil {
		res = &model.SuggestResults{}
	}
	if err := r.tmpl.ExecuteTemplate(w, "suggest", resultsData{Empty: res.IsEmpty(), SuggestResults: res}); err != nil {
		return errors.Wrap(err, "render suggestions")
	}
	return nil
}
