package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/safar/go-tienda/internal/database"
	"github.com/safar/go-tienda/internal/models"
	"github.com/safar/go-tienda/internal/service"
)

const (
	statusOK    = "ok"
	statusError = "error"
)

// envelope wraps every JSON response.
type envelope struct {
	Status  string `json:"status"`
	Data    any    `json:"data,omitempty"`
	Meta    any    `json:"meta,omitempty"`
	Message string `json:"message,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func respondData(w http.ResponseWriter, status int, data any) {
	respondJSON(w, status, envelope{Status: statusOK, Data: data})
}

// respondPage is respondData with pagination metadata. A nil meta is left
// out of the body.
func respondPage[M any](w http.ResponseWriter, data any, meta *M) {
	env := envelope{Status: statusOK, Data: data}
	if meta != nil {
		env.Meta = meta
	}
	respondJSON(w, http.StatusOK, env)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, envelope{Status: statusError, Message: message})
}

// decodeJSON reads the request body into dst and answers the client itself
// when the body is unusable.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil || errors.Is(err, io.EOF) {
		// An empty body decodes as an empty object.
		return true
	}

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		respondError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("El cuerpo de la petición supera %d bytes", tooLarge.Limit))
		return false
	}
	respondError(w, http.StatusBadRequest, "Cuerpo JSON no válido: "+err.Error())
	return false
}

// failure names the messages a handler answers with when an operation fails.
type failure struct {
	notFound string
	internal string
}

var (
	productFailures = map[string]failure{
		"list":   {internal: "Error al listar productos"},
		"get":    {notFound: "Producto no encontrado", internal: "Error al obtener producto"},
		"create": {internal: "Error al crear producto"},
		"update": {notFound: "Producto no encontrado", internal: "Error al actualizar producto"},
		"delete": {notFound: "Producto no encontrado", internal: "Error al eliminar producto"},
	}
	orderFailures = map[string]failure{
		"list":   {internal: "Error al listar pedidos"},
		"get":    {notFound: "Pedido no encontrado", internal: "Error al obtener pedido"},
		"create": {internal: "Error al crear pedido"},
		"update": {notFound: "Pedido no encontrado", internal: "Error al actualizar pedido"},
		"delete": {notFound: "Pedido no encontrado", internal: "Error al eliminar pedido"},
	}
)

// respondFailure maps err to a status code. Client errors carry their own
// message; anything else is logged and answered with f.internal.
func respondFailure(w http.ResponseWriter, r *http.Request, logger *slog.Logger, f failure, err error) {
	var (
		ve    *models.ValidationError
		short *service.StockShortageError
	)

	switch {
	case errors.As(err, &ve):
		respondError(w, http.StatusBadRequest, ve.Error())
	case errors.As(err, &short):
		respondError(w, http.StatusBadRequest, short.Error())
	case f.notFound != "" && (errors.Is(err, database.ErrProductNotFound) || errors.Is(err, database.ErrOrderNotFound)):
		respondError(w, http.StatusNotFound, f.notFound)
	case database.IsInvalidInput(err):
		respondError(w, http.StatusBadRequest, "Valor fuera de rango o con formato no válido")
	case errors.Is(err, database.ErrOptimisticLockFailed):
		respondError(w, http.StatusConflict, "El documento cambió mientras se actualizaba, inténtalo de nuevo")
	default:
		logger.ErrorContext(r.Context(), f.internal,
			slog.String("request_id", middleware.GetReqID(r.Context())),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		respondError(w, http.StatusInternalServerError, f.internal)
	}
}
