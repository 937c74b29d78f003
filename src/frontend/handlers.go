// Copyright 2018 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/nordic-editorial/storefront/src/frontend/cart"
	"github.com/nordic-editorial/storefront/src/frontend/cartview"
	"github.com/nordic-editorial/storefront/src/frontend/model"
	"github.com/nordic-editorial/storefront/src/frontend/money"
	"github.com/nordic-editorial/storefront/src/frontend/search"
	"github.com/nordic-editorial/storefront/src/frontend/shopify"
	"github.com/nordic-editorial/storefront/src/frontend/validator"
	"github.com/nordic-editorial/storefront/src/frontend/variant"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.New("").ParseFS(templateFS, "templates/*.html"))

type optionValueView struct {
	Value     string
	Selected  bool
	Available bool
}

type optionView struct {
	Name   string
	Values []optionValueView
}

func (fe *frontendServer) productHandler(w http.ResponseWriter, r *http.Request) {
	log := requestLog(r)
	payload := validator.HandlePayload{Handle: mux.Vars(r)["handle"]}
	if err := payload.Validate(); err != nil {
		renderHTTPError(log, r, w, validator.ValidationErrorResponse(err), http.StatusNotFound)
		return
	}
	log = log.WithField("product", payload.Handle)

	p, err := fe.products.GetProduct(r.Context(), payload.Handle)
	if errors.Is(err, shopify.ErrProductNotFound) {
		renderHTTPError(log, r, w, errors.Wrap(err, "product not found"), http.StatusNotFound)
		return
	}
	if err != nil {
		renderHTTPError(log, r, w, errors.Wrap(err, "could not retrieve product"), http.StatusBadGateway)
		return
	}

	picker := variant.NewPicker(p)
	preselected := false
	if v := r.URL.Query().Get("variant"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			preselected = picker.SelectVariant(id)
		}
	}
	if !preselected {
		picker.SelectFirstAvailable()
	}
	state := picker.State()

	options := make([]optionView, 0, len(p.Options))
	if !p.HasOnlyDefaultVariant() {
		for i, axis := range p.Axes() {
			avail := picker.Availability(axis)
			ov := optionView{Name: axis}
			for _, value := range p.OptionValues(i) {
				ov.Values = append(ov.Values, optionValueView{
					Value:     value,
					Selected:  picker.Selected(axis) == value,
					Available: avail[value],
				})
			}
			options = append(options, ov)
		}
	}

	var snap *model.Snapshot
	if sh, err := fe.shoppers.get(r.Context(), sessionID(r)); err != nil {
		log.WithError(err).Warn("could not load shopper")
	} else if snap = sh.drawer.Snapshot(); snap == nil {
		if snap, err = sh.drawer.Refresh(r.Context()); err != nil {
			log.WithError(err).Warn("could not load cart")
		}
	}
	drawer, err := fe.drawerView.RenderString(snap)
	if err != nil {
		log.WithError(err).Warn("could not render cart drawer")
	}

	var variantID int64
	if state.Variant != nil {
		variantID = state.Variant.ID
	}
	log.WithField("variant", variantID).Debug("serving product page")

	if err := templates.ExecuteTemplate(w, "product", injectCommonTemplateData(r, map[string]interface{}{
		"title":            p.Title,
		"product":          p,
		"description":      template.HTML(p.Description),
		"options":          options,
		"state":            state,
		"variant_id":       variantID,
		"price":            fe.formatPrice(state.Price, state.Variant != nil),
		"compare_at_price": fe.formatPrice(state.CompareAtPrice, state.OnSale),
		"image":            productImage(p, state.Variant),
		"badge":            fe.drawerView.Badge(snap),
		"drawer":           template.HTML(drawer),
	})); err != nil {
		log.Error(err)
	}
}

type variantResponse struct {
	VariantID      int64  `json:"variant_id,omitempty"`
	Title          string `json:"title,omitempty"`
	Price          string `json:"price,omitempty"`
	CompareAtPrice string `json:"compare_at_price,omitempty"`
	OnSale         bool   `json:"on_sale"`
	Available      bool   `json:"available"`
	CanAddToCart   bool   `json:"can_add_to_cart"`
	Label          string `json:"label"`
	ImageID        int64  `json:"image_id,omitempty"`
	Image          string `json:"image,omitempty"`
	URL            string `json:"url,omitempty"`
}

// variantHandler resolves an option selection given as query parameters,
// e.g. ?Color=Red&Size=M.
func (fe *frontendServer) variantHandler(w http.ResponseWriter, r *http.Request) {
	log := requestLog(r)
	payload := validator.HandlePayload{Handle: mux.Vars(r)["handle"]}
	if err := payload.Validate(); err != nil {
		respondError(log, w, http.StatusNotFound, "not_found", validator.ValidationErrorResponse(err).Error())
		return
	}
	p, err := fe.products.GetProduct(r.Context(), payload.Handle)
	if errors.Is(err, shopify.ErrProductNotFound) {
		respondError(log, w, http.StatusNotFound, "not_found", "product not found")
		return
	}
	if err != nil {
		log.WithError(err).Error("could not retrieve product")
		respondError(log, w, http.StatusBadGateway, "store_unavailable", shopify.UserMessage(err))
		return
	}

	picker := variant.NewPicker(p)
	if err := picker.SelectAll(optionSelection(p, r.URL.Query())); err != nil {
		respondError(log, w, http.StatusUnprocessableEntity, "invalid_option", err.Error())
		return
	}

	state := picker.State()
	resp := variantResponse{
		OnSale:       state.OnSale,
		Available:    state.Available,
		CanAddToCart: state.CanAddToCart,
		Label:        state.Label,
		ImageID:      state.ImageID,
	}
	if v := state.Variant; v != nil {
		resp.VariantID = v.ID
		resp.Title = v.Title
		resp.Price = fe.formatPrice(state.Price, true)
		resp.CompareAtPrice = fe.formatPrice(state.CompareAtPrice, state.OnSale)
		resp.Image = productImage(p, v)
		resp.URL = fmt.Sprintf("/products/%s?variant=%d", p.Handle, v.ID)
	}
	respondJSON(log, w, http.StatusOK, resp)
}

type cartResponse struct {
	Message   string         `json:"message"`
	ItemCount int            `json:"item_count"`
	Total     string         `json:"total"`
	Drawer    string         `json:"drawer"`
	Badge     cartview.Badge `json:"badge"`
	Stale     bool           `json:"stale,omitempty"`
}

func (fe *frontendServer) addToCartHandler(w http.ResponseWriter, r *http.Request) {
	log := requestLog(r)
	id, _ := strconv.ParseInt(r.FormValue("id"), 10, 64)
	quantity := 1
	if q := r.FormValue("quantity"); q != "" {
		quantity, _ = strconv.Atoi(q)
	}
	payload := validator.AddToCartPayload{VariantID: id, Quantity: quantity}
	if err := payload.Validate(); err != nil {
		respondError(log, w, http.StatusUnprocessableEntity, "invalid_request", validator.ValidationErrorResponse(err).Error())
		return
	}
	log.WithField("variant", payload.VariantID).WithField("quantity", payload.Quantity).Debug("adding to cart")

	sh, err := fe.shoppers.get(r.Context(), sessionID(r))
	if err != nil {
		fe.respondCartError(log, w, err)
		return
	}
	out, err := sh.drawer.Add(r.Context(), payload.VariantID, payload.Quantity)
	if err != nil {
		fe.respondCartError(log, w, err)
		return
	}
	fe.respondCart(log, w, out)
}

// changeCartHandler accepts the line key as id (or a 1-based line number as
// line) and either an absolute quantity or a delta.
func (fe *frontendServer) changeCartHandler(w http.ResponseWriter, r *http.Request) {
	log := requestLog(r)
	sh, err := fe.shoppers.get(r.Context(), sessionID(r))
	if err != nil {
		fe.respondCartError(log, w, err)
		return
	}

	key := r.FormValue("id")
	if key == "" && r.FormValue("line") != "" {
		n, _ := strconv.Atoi(r.FormValue("line"))
		if key, err = fe.lineKey(r.Context(), sh.drawer, n); err != nil {
			fe.respondCartError(log, w, err)
			return
		}
	}

	var out *cart.Outcome
	if d := r.FormValue("delta"); d != "" {
		delta, _ := strconv.Atoi(d)
		payload := validator.StepCartPayload{Key: key, Delta: delta}
		if err := payload.Validate(); err != nil {
			respondError(log, w, http.StatusUnprocessableEntity, "invalid_request", validator.ValidationErrorResponse(err).Error())
			return
		}
		out, err = sh.drawer.Step(r.Context(), payload.Key, payload.Delta)
	} else {
		quantity, convErr := strconv.Atoi(r.FormValue("quantity"))
		if convErr != nil {
			quantity = -1
		}
		payload := validator.ChangeCartPayload{Key: key, Quantity: quantity}
		if err := payload.Validate(); err != nil {
			respondError(log, w, http.StatusUnprocessableEntity, "invalid_request", validator.ValidationErrorResponse(err).Error())
			return
		}
		out, err = sh.drawer.SetQuantity(r.Context(), payload.Key, payload.Quantity)
	}
	if err != nil {
		fe.respondCartError(log, w, err)
		return
	}
	fe.respondCart(log, w, out)
}

func (fe *frontendServer) clearCartHandler(w http.ResponseWriter, r *http.Request) {
	log := requestLog(r)
	sh, err := fe.shoppers.get(r.Context(), sessionID(r))
	if err != nil {
		fe.respondCartError(log, w, err)
		return
	}
	out, err := sh.drawer.Clear(r.Context())
	if err != nil {
		fe.respondCartError(log, w, err)
		return
	}
	fe.respondCart(log, w, out)
}

// cartHandler serves the drawer fragment. When the store cannot be reached
// the last known snapshot is served and marked stale.
func (fe *frontendServer) cartHandler(w http.ResponseWriter, r *http.Request) {
	log := requestLog(r)
	snap, stale, err := fe.currentCart(r)
	if err != nil {
		log.WithError(err).Warn("could not load cart")
		respondError(log, w, http.StatusBadGateway, "store_unavailable", shopify.UserMessage(err))
		return
	}
	if stale {
		w.Header().Set("X-Cart-Stale", "1")
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := fe.drawerView.Render(w, snap); err != nil {
		log.Error(err)
	}
}

func (fe *frontendServer) cartJSONHandler(w http.ResponseWriter, r *http.Request) {
	log := requestLog(r)
	snap, stale, err := fe.currentCart(r)
	if err != nil {
		log.WithError(err).Warn("could not load cart")
		respondError(log, w, http.StatusBadGateway, "store_unavailable", shopify.UserMessage(err))
		return
	}
	respondJSON(log, w, http.StatusOK, map[string]interface{}{
		"cart":  snap,
		"badge": fe.drawerView.Badge(snap),
		"stale": stale,
	})
}

func (fe *frontendServer) currentCart(r *http.Request) (*model.Snapshot, bool, error) {
	sh, err := fe.shoppers.get(r.Context(), sessionID(r))
	if err != nil {
		return nil, false, err
	}
	snap, err := sh.drawer.Refresh(r.Context())
	if err == nil {
		return snap, false, nil
	}
	if last := sh.drawer.Snapshot(); last != nil {
		requestLog(r).WithError(err).Warn("serving last known cart")
		return last, true, nil
	}
	return nil, false, err
}

func (fe *frontendServer) searchHandler(w http.ResponseWriter, r *http.Request) {
	log := requestLog(r)
	payload := validator.SearchPayload{Query: strings.TrimSpace(r.FormValue("q"))}
	if err := payload.Validate(); err != nil {
		respondError(log, w, http.StatusUnprocessableEntity, "invalid_request", validator.ValidationErrorResponse(err).Error())
		return
	}
	sh, err := fe.shoppers.get(r.Context(), sessionID(r))
	if err != nil {
		respondError(log, w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if sh.suggester.TooShort(payload.Query) {
		sh.suggester.Cancel()
		return
	}
	res, err := sh.suggester.Suggest(r.Context(), payload.Query)
	switch {
	case errors.Is(err, search.ErrSuperseded):
		w.WriteHeader(http.StatusNoContent)
		return
	case errors.Is(err, context.Canceled):
		log.Debug("search aborted by client")
		return
	case err != nil:
		log.WithError(err).Warn("search failed")
		respondError(log, w, http.StatusBadGateway, "store_unavailable", shopify.UserMessage(err))
		return
	}
	if err := fe.searchView.Render(w, res); err != nil {
		log.Error(err)
	}
}

func (fe *frontendServer) respondCart(log logrus.FieldLogger, w http.ResponseWriter, out *cart.Outcome) {
	drawer, err := fe.drawerView.RenderString(out.Snapshot)
	if err != nil {
		log.WithError(err).Error("could not render cart drawer")
	}
	badge := fe.drawerView.Badge(out.Snapshot)
	respondJSON(log, w, http.StatusOK, cartResponse{
		Message:   out.Message,
		ItemCount: badge.Count,
		Total:     badge.Total,
		Drawer:    drawer,
		Badge:     badge,
		Stale:     out.Stale,
	})
}

// respondCartError maps drawer and store failures to status codes. The
// message is always one the shopper can read.
func (fe *frontendServer) respondCartError(log logrus.FieldLogger, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, cart.ErrBusy):
		respondError(log, w, http.StatusConflict, "busy", "Your cart is being updated, please wait")
	case errors.Is(err, cart.ErrInvalidQuantity):
		respondError(log, w, http.StatusUnprocessableEntity, "invalid_quantity", "Quantity is not valid")
	case errors.Is(err, cart.ErrUnknownLine):
		respondError(log, w, http.StatusUnprocessableEntity, "unknown_line", "That item is no longer in your cart")
	case errors.Is(err, shopify.ErrRejectedByStore):
		log.WithError(err).Info("cart change rejected by store")
		respondError(log, w, http.StatusUnprocessableEntity, "rejected", shopify.UserMessage(err))
	default:
		log.WithError(err).Error("cart change failed")
		msg := cart.MsgFailed
		if errors.Is(err, shopify.ErrAddFailed) {
			msg = shopify.UserMessage(err)
		}
		respondError(log, w, http.StatusBadGateway, "store_unavailable", msg)
	}
}

// lineKey turns a 1-based line number into the line key.
func (fe *frontendServer) lineKey(ctx context.Context, d *cart.Drawer, line int) (string, error) {
	snap := d.Snapshot()
	if snap == nil {
		var err error
		if snap, err = d.Refresh(ctx); err != nil {
			return "", err
		}
	}
	if line < 1 || line > len(snap.Items) {
		return "", cart.ErrUnknownLine
	}
	return snap.Items[line-1].Key, nil
}

func (fe *frontendServer) formatPrice(c money.Cents, show bool) string {
	if !show {
		return ""
	}
	return c.Format(fe.cfg.moneyFormat)
}

// productImage picks the variant image, falling back to the first product
// image.
func productImage(p *model.Product, v *model.Variant) string {
	src := ""
	if v != nil && v.FeaturedImage != nil {
		src = v.FeaturedImage.Src
	} else if len(p.Images) > 0 {
		src = p.Images[0]
	}
	return cartview.ResizeImage(src, "1024x1024")
}

// optionSelection keeps the query parameters that name an option axis.
// Anything else (tracking, cache busting) is ignored.
func optionSelection(p *model.Product, query url.Values) model.Selection {
	params := model.Selection{}
	for name, values := range query {
		if len(values) > 0 {
			params[name] = values[0]
		}
	}
	sel := model.Selection{}
	for _, axis := range p.Axes() {
		if value, ok := params.Get(axis); ok {
			sel[axis] = value
		}
	}
	return sel
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

func respondJSON(log logrus.FieldLogger, w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Warnf("failed to encode response: %v", err)
	}
}

func respondError(log logrus.FieldLogger, w http.ResponseWriter, status int, code, message string) {
	respondJSON(log, w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

func renderHTTPError(log logrus.FieldLogger, r *http.Request, w http.ResponseWriter, err error, code int) {
	log.WithField("error", err).Error("request error")
	errMsg := fmt.Sprintf("%+v", err)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(code)

	if templateErr := templates.ExecuteTemplate(w, "error", injectCommonTemplateData(r, map[string]interface{}{
		"error":       errMsg,
		"status_code": code,
		"status":      http.StatusText(code),
	})); templateErr != nil {
		log.Println(templateErr)
	}
}

func injectCommonTemplateData(r *http.Request, payload map[string]interface{}) map[string]interface{} {
	data := map[string]interface{}{
		"session_id":  sessionID(r),
		"request_id":  r.Context().Value(ctxKeyRequestID{}),
		"currentYear": time.Now().Year(),
		"badge":       cartview.Badge{Hidden: true},
	}

	for k, v := range payload {
		data[k] = v
	}

	return data
}

func sessionID(r *http.Request) string {
	v := r.Context().Value(ctxKeySessionID{})
	if v != nil {
		return v.(string)
	}
	return ""
}
