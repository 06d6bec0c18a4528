package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/lib/pq"
	"github.com/safar/go-tienda/internal/config"
	"github.com/safar/go-tienda/internal/service"
	"github.com/safar/go-tienda/internal/store/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type response struct {
	Status  string          `json:"status"`
	Data    json.RawMessage `json:"data"`
	Meta    json.RawMessage `json:"meta"`
	Message string          `json:"message"`
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("connection refused") }

func newTestRouter(t *testing.T, strict bool) http.Handler {
	t.Helper()
	s := memstore.New()
	return NewRouter(Deps{
		Products: service.NewProductService(s, discard),
		Orders:   service.NewOrderService(s, strict, discard),
		Store:    s,
		Logger:   discard,
		Server: config.ServerConfig{
			MaxBodyBytes:   1 << 10,
			AllowedOrigins: []string{"*"},
		},
	})
}

func do(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, response) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var res response
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res), rec.Body.String())
	}
	return rec, res
}

func decodeData(t *testing.T, res response) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(res.Data, &m))
	return m
}

func createProduct(t *testing.T, h http.Handler, body string) string {
	t.Helper()
	rec, res := do(t, h, http.MethodPost, "/api/productos", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeData(t, res)["_id"].(string)
}

func TestCheckoutFlow(t *testing.T) {
	h := newTestRouter(t, true)

	rec, res := do(t, h, http.MethodPost, "/api/productos", `{"nombre":"Mouse","precio":10,"stock":5}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "ok", res.Status)

	product := decodeData(t, res)
	assert.Equal(t, "Mouse", product["nombre"])
	assert.Equal(t, float64(10), product["precio"])
	id := product["_id"].(string)
	assert.Equal(t, "/api/productos/"+id, rec.Header().Get("Location"))

	rec, res = do(t, h, http.MethodPost, "/api/pedidos",
		`{"cliente":"Ana","productos":[{"producto":"`+id+`","cantidad":2}],"total":20}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	order := decodeData(t, res)
	assert.Equal(t, "pendiente", order["estado"])
	assert.Equal(t, float64(20), order["total"])
	assert.Equal(t, "Ana", order["cliente"])
	orderID := order["_id"].(string)

	rec, res = do(t, h, http.MethodGet, "/api/productos/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(3), decodeData(t, res)["stock"])

	rec, res = do(t, h, http.MethodGet, "/api/pedidos/"+orderID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	lines := decodeData(t, res)["productos"].([]any)
	require.Len(t, lines, 1)
	line := lines[0].(map[string]any)
	assert.Equal(t, "Mouse", line["producto"].(map[string]any)["nombre"])
	assert.Equal(t, float64(2), line["cantidad"])

	rec, res = do(t, h, http.MethodPatch, "/api/pedidos/"+orderID, `{"estado":"cancelado"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "cancelado", decodeData(t, res)["estado"])

	_, res = do(t, h, http.MethodGet, "/api/productos/"+id, "")
	assert.Equal(t, float64(5), decodeData(t, res)["stock"])
}

func TestOrderErrors(t *testing.T) {
	h := newTestRouter(t, true)
	id := createProduct(t, h, `{"nombre":"Teclado","precio":25.5,"stock":1}`)

	tests := []struct {
		name    string
		body    string
		status  int
		message string
	}{
		{
			name:    "stock shortage",
			body:    `{"cliente":"Ana","productos":[{"producto":"` + id + `","cantidad":2}]}`,
			status:  http.StatusBadRequest,
			message: "stock insuficiente para Teclado",
		},
		{
			name:    "total mismatch",
			body:    `{"cliente":"Ana","productos":[{"producto":"` + id + `","cantidad":1}],"total":3}`,
			status:  http.StatusBadRequest,
			message: "validación fallida: total: no coincide con el importe de los productos (25.50)",
		},
		{
			name:   "missing cliente",
			body:   `{"productos":[{"producto":"` + id + `"}]}`,
			status: http.StatusBadRequest,
		},
		{
			name:   "malformed json",
			body:   `{"cliente":`,
			status: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, res := do(t, h, http.MethodPost, "/api/pedidos", tt.body)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, "error", res.Status)
			if tt.message != "" {
				assert.Equal(t, tt.message, res.Message)
			}
		})
	}
}

func TestNotFound(t *testing.T) {
	h := newTestRouter(t, true)

	paths := []struct {
		method  string
		path    string
		message string
	}{
		{http.MethodGet, "/api/productos/not-an-id", "Producto no encontrado"},
		{http.MethodDelete, "/api/productos/not-an-id", "Producto no encontrado"},
		{http.MethodGet, "/api/pedidos/507f1f77bcf86cd799439011", "Pedido no encontrado"},
		{http.MethodGet, "/api/nada", "Ruta no encontrada"},
	}

	for _, p := range paths {
		rec, res := do(t, h, p.method, p.path, "")
		assert.Equal(t, http.StatusNotFound, rec.Code, p.path)
		assert.Equal(t, p.message, res.Message, p.path)
	}

	rec, res := do(t, h, http.MethodPut, "/api/pedidos/x", `{}`)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "error", res.Status)
}

func TestProductEndpoints(t *testing.T) {
	h := newTestRouter(t, true)
	a := createProduct(t, h, `{"nombre":"Alfombrilla","precio":5,"stock":10}`)
	createProduct(t, h, `{"nombre":"Monitor","precio":150,"stock":2,"activo":false}`)

	rec, res := do(t, h, http.MethodGet, "/api/productos?activo=true", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []map[string]any
	require.NoError(t, json.Unmarshal(res.Data, &list))
	require.Len(t, list, 1)
	assert.Equal(t, "Alfombrilla", list[0]["nombre"])
	assert.Empty(t, res.Meta)

	rec, res = do(t, h, http.MethodGet, "/api/productos?limit=1&page=2&sort=-precio", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(res.Data, &list))
	require.Len(t, list, 1)
	assert.Equal(t, "Alfombrilla", list[0]["nombre"])
	assert.JSONEq(t, `{"total":2,"page":2,"limit":1,"total_pages":2}`, string(res.Meta))

	for _, q := range []string{"activo=quizas", "minPrecio=abc", "limit=0", "sort=color"} {
		rec, res = do(t, h, http.MethodGet, "/api/productos?"+q, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
		assert.Equal(t, "error", res.Status, q)
	}

	rec, res = do(t, h, http.MethodPut, "/api/productos/"+a, `{"precio":6.25}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decodeData(t, res)
	assert.Equal(t, 6.25, updated["precio"])
	assert.Equal(t, "Alfombrilla", updated["nombre"])

	rec, res = do(t, h, http.MethodPatch, "/api/productos/"+a, `{"stock":-1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "error", res.Status)

	rec, _ = do(t, h, http.MethodDelete, "/api/productos/"+a, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Zero(t, rec.Body.Len())
}

func TestOrderListCursor(t *testing.T) {
	h := newTestRouter(t, false)

	for _, c := range []string{"Ana", "Luis", "Marta"} {
		rec, _ := do(t, h, http.MethodPost, "/api/pedidos", `{"cliente":"`+c+`","productos":[],"total":0}`)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	rec, res := do(t, h, http.MethodGet, "/api/pedidos?limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var page struct {
		NextCursor string `json:"next_cursor"`
		HasMore    bool   `json:"has_more"`
	}
	require.NoError(t, json.Unmarshal(res.Meta, &page))
	assert.True(t, page.HasMore)
	require.NotEmpty(t, page.NextCursor)

	var orders []map[string]any
	require.NoError(t, json.Unmarshal(res.Data, &orders))
	assert.Len(t, orders, 2)

	rec, res = do(t, h, http.MethodGet, "/api/pedidos?limit=2&cursor="+page.NextCursor, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(res.Data, &orders))
	assert.Len(t, orders, 1)

	rec, res = do(t, h, http.MethodGet, "/api/pedidos?cursor=not-a-cursor", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validación fallida: cursor: no es válido", res.Message)

	rec, _ = do(t, h, http.MethodGet, "/api/pedidos?estado=volando", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBodyTooLarge(t *testing.T) {
	h := newTestRouter(t, true)

	body := `{"nombre":"` + strings.Repeat("a", 2048) + `","precio":1}`
	rec, res := do(t, h, http.MethodPost, "/api/productos", body)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, "error", res.Status)
}

func TestHealth(t *testing.T) {
	h := newTestRouter(t, true)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())

	rec, res := do(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", res.Status)

	down := NewRouter(Deps{Store: failingPinger{}, Logger: discard})
	rec, res = do(t, down, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "error", res.Status)
}

func TestRequestID(t *testing.T) {
	h := newTestRouter(t, true)

	rec, _ := do(t, h, http.MethodGet, "/health", "")
	assert.NotEmpty(t, rec.Header().Get(HeaderRequestID))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-Id", "abc-123")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get(HeaderRequestID))
}

func TestRecoverer(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, nil))

	h := recoverer(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec, res := do(t, h, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Error interno del servidor", res.Message)
	assert.Contains(t, logs.String(), `"panic":"boom"`)
}

func TestEmptyBodyIsEmptyPatch(t *testing.T) {
	h := newTestRouter(t, true)
	id := createProduct(t, h, `{"nombre":"Cable","precio":3,"stock":4}`)

	for _, method := range []string{http.MethodPatch, http.MethodPut} {
		rec, res := do(t, h, method, "/api/productos/"+id, "")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		product := decodeData(t, res)
		assert.Equal(t, "Cable", product["nombre"])
		assert.Equal(t, float64(4), product["stock"])
	}

	rec, res := do(t, h, http.MethodPost, "/api/productos", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validación fallida: precio: es obligatorio", res.Message)
}

func TestRespondFailureInvalidInput(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/productos", nil)
	rec := httptest.NewRecorder()

	respondFailure(rec, req, discard, productFailures["create"],
		fmt.Errorf("create product: %w", &pq.Error{Code: "22003", Message: "numeric field overflow"}))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var res response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, "Valor fuera de rango o con formato no válido", res.Message)
}
