package http

import (
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/safar/go-tienda/internal/models"
	"github.com/safar/go-tienda/internal/service"
	"github.com/safar/go-tienda/internal/store"
	"github.com/shopspring/decimal"
)

type ProductHandler struct {
	products *service.ProductService
	logger   *slog.Logger
}

func NewProductHandler(products *service.ProductService, logger *slog.Logger) *ProductHandler {
	return &ProductHandler{products: products, logger: logger}
}

// GET /api/productos
func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	q, err := parseProductQuery(r.URL.Query())
	if err != nil {
		respondFailure(w, r, h.logger, productFailures["list"], err)
		return
	}

	products, page, err := h.products.List(r.Context(), q)
	if err != nil {
		respondFailure(w, r, h.logger, productFailures["list"], err)
		return
	}

	if products == nil {
		products = []models.Product{}
	}
	respondPage(w, products, page)
}

func parseProductQuery(v url.Values) (service.ProductQuery, error) {
	q := service.ProductQuery{Query: v.Get("q")}

	if s := v.Get("activo"); s != "" {
		b, err := strconv.ParseBool(s)
		if err != nil {
			return q, models.NewValidationError("activo", "debe ser true o false")
		}
		q.Active = &b
	}

	var err error
	if q.MinPrice, err = parseDecimal(v, "minPrecio"); err != nil {
		return q, err
	}
	if q.MaxPrice, err = parseDecimal(v, "maxPrecio"); err != nil {
		return q, err
	}

	if q.Sort, err = store.ParseSort(v.Get("sort")); err != nil {
		return q, models.NewValidationError("sort", err.Error())
	}

	if q.Limit, err = parsePositive(v, "limit"); err != nil {
		return q, err
	}
	if q.Page, err = parsePositive(v, "page"); err != nil {
		return q, err
	}

	return q, nil
}

func parseDecimal(v url.Values, key string) (*decimal.Decimal, error) {
	s := v.Get(key)
	if s == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, models.NewValidationError(key, "debe ser un número")
	}
	return &d, nil
}

// parsePositive reads an optional integer parameter that must be at least 1.
// An absent parameter reads as zero.
func parsePositive(v url.Values, key string) (int, error) {
	s := v.Get(key)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, models.NewValidationError(key, "debe ser un entero positivo")
	}
	return n, nil
}

// GET /api/productos/{id}
func (h *ProductHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, err := h.products.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondFailure(w, r, h.logger, productFailures["get"], err)
		return
	}

	respondData(w, http.StatusOK, p)
}

// POST /api/productos
func (h *ProductHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in service.ProductInput
	if !decodeJSON(w, r, &in) {
		return
	}

	p, err := h.products.Create(r.Context(), in)
	if err != nil {
		respondFailure(w, r, h.logger, productFailures["create"], err)
		return
	}

	w.Header().Set("Location", "/api/productos/"+p.ID)
	respondData(w, http.StatusCreated, p)
}

// PUT and PATCH /api/productos/{id}. Both merge the supplied fields.
func (h *ProductHandler) Update(w http.ResponseWriter, r *http.Request) {
	var in service.ProductInput
	if !decodeJSON(w, r, &in) {
		return
	}

	p, err := h.products.Update(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		respondFailure(w, r, h.logger, productFailures["update"], err)
		return
	}

	respondData(w, http.StatusOK, p)
}

// DELETE /api/productos/{id}
func (h *ProductHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.products.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondFailure(w, r, h.logger, productFailures["delete"], err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
