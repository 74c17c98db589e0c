// Package handler exposes the item service over HTTP.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/Adithya-Monish-Kumar-K/item-enrichment-service/internal/items"
	"github.com/Adithya-Monish-Kumar-K/item-enrichment-service/internal/items/service"
	"github.com/Adithya-Monish-Kumar-K/item-enrichment-service/internal/items/validator"
	apperrors "github.com/Adithya-Monish-Kumar-K/item-enrichment-service/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/item-enrichment-service/pkg/logger"
)

// CacheHeader tells clients whether a read was served from the cache.
const CacheHeader = "X-Cache"

const maxBodyBytes = 1 << 20

type Handler struct {
	svc    *service.Service
	logger *slog.Logger
}

func New(svc *service.Service) *Handler {
	return &Handler{
		svc:    svc,
		logger: slog.Default().With("component", "items-handler"),
	}
}

// Register mounts the item routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /items", h.Create)
	mux.HandleFunc("GET /items/{id}", h.Get)
	mux.HandleFunc("GET /health", h.Health)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)
	var req items.CreateItem
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	res, err := h.svc.Write(ctx, req)
	if err != nil {
		var validationErr *validator.ValidationError
		if errors.As(err, &validationErr) {
			h.writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":  "validation failed",
				"fields": validationErr.Fields,
			})
			return
		}
		statusCode := apperrors.HTTPStatusCode(err)
		log.Error("item create failed",
			"error", err,
			"status_code", statusCode,
		)
		h.writeError(w, statusCode, "item create failed")
		return
	}
	h.writeJSON(w, http.StatusOK, res.Item)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	res, err := h.svc.Read(ctx, r.PathValue("id"))
	if err != nil {
		statusCode := apperrors.HTTPStatusCode(err)
		switch {
		case errors.Is(err, apperrors.ErrInvalidInput):
			h.writeError(w, statusCode, "invalid item id")
		case errors.Is(err, apperrors.ErrItemNotFound):
			h.writeError(w, statusCode, "item not found")
		default:
			logger.FromContext(ctx).Error("item read failed",
				"error", err,
				"status_code", statusCode,
			)
			h.writeError(w, statusCode, "item read failed")
		}
		return
	}

	if res.Cached {
		w.Header().Set(CacheHeader, "HIT")
	} else {
		w.Header().Set(CacheHeader, "MISS")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(res.Body); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
