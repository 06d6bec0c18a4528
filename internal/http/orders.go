package http

import (
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/safar/go-tienda/internal/models"
	"github.com/safar/go-tienda/internal/service"
	"github.com/safar/go-tienda/internal/store"
)

type OrderHandler struct {
	orders *service.OrderService
	logger *slog.Logger
}

func NewOrderHandler(orders *service.OrderService, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{orders: orders, logger: logger}
}

// GET /api/pedidos
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	q, err := parseOrderQuery(r.URL.Query())
	if err != nil {
		respondFailure(w, r, h.logger, orderFailures["list"], err)
		return
	}

	orders, page, err := h.orders.List(r.Context(), q)
	if err != nil {
		respondFailure(w, r, h.logger, orderFailures["list"], err)
		return
	}

	if orders == nil {
		orders = []models.PopulatedOrder{}
	}
	respondPage(w, orders, page)
}

func parseOrderQuery(v url.Values) (service.OrderQuery, error) {
	var q service.OrderQuery

	if s := v.Get("estado"); s != "" {
		st, err := models.ParseStatus(s)
		if err != nil {
			return q, models.NewValidationError("estado", "estado no válido")
		}
		q.Status = st
	}

	var err error
	if q.Limit, err = parsePositive(v, "limit"); err != nil {
		return q, err
	}

	if q.After, err = store.DecodeCursor(v.Get("cursor")); err != nil {
		return q, models.NewValidationError("cursor", "no es válido")
	}

	return q, nil
}

// GET /api/pedidos/{id}
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondFailure(w, r, h.logger, orderFailures["get"], err)
		return
	}

	respondData(w, http.StatusOK, o)
}

// POST /api/pedidos
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in service.OrderInput
	if !decodeJSON(w, r, &in) {
		return
	}

	o, err := h.orders.Create(r.Context(), in)
	if err != nil {
		respondFailure(w, r, h.logger, orderFailures["create"], err)
		return
	}

	w.Header().Set("Location", "/api/pedidos/"+o.ID)
	respondData(w, http.StatusCreated, o)
}

// PATCH /api/pedidos/{id}
func (h *OrderHandler) Update(w http.ResponseWriter, r *http.Request) {
	var in service.OrderInput
	if !decodeJSON(w, r, &in) {
		return
	}

	o, err := h.orders.Update(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		respondFailure(w, r, h.logger, orderFailures["update"], err)
		return
	}

	respondData(w, http.StatusOK, o)
}

// DELETE /api/pedidos/{id}
func (h *OrderHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.orders.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondFailure(w, r, h.logger, orderFailures["delete"], err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
