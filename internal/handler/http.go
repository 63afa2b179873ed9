// Package handler exposes the crypto operation engine over a thin JSON HTTP
// surface. Authentication happens upstream; requests arriving here are
// assumed already authorized.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/devrev/cryptgate/internal/backend"
	"github.com/devrev/cryptgate/internal/crypto"
	"github.com/devrev/cryptgate/internal/scheduler"
	"github.com/devrev/cryptgate/internal/service"
	"go.uber.org/zap"
)

// response is the generic envelope returned by every endpoint
type response struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// batchItem is the wire form of one positional batch result
type batchItem struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Handler wires the crypto service to HTTP routes
type Handler struct {
	svc    *service.CryptoService
	logger *zap.Logger
}

// New creates an HTTP handler over the crypto service
func New(svc *service.CryptoService, logger *zap.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// Register installs the API routes on the mux
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/encrypt", h.encrypt)
	mux.HandleFunc("POST /api/decrypt", h.decrypt)
	mux.HandleFunc("POST /api/encrypt/batch", h.batchEncrypt)
	mux.HandleFunc("POST /api/decrypt/batch", h.batchDecrypt)
	mux.HandleFunc("GET /api/status", h.status)
}

func (h *Handler) encrypt(w http.ResponseWriter, r *http.Request) {
	var req service.EncryptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, response{Message: "invalid request body"})
		return
	}

	resp, err := h.svc.Encrypt(r.Context(), &req)
	if err != nil {
		h.writeError(w, "encrypt", err)
		return
	}
	writeJSON(w, http.StatusOK, response{Success: true, Message: "ok", Data: resp})
}

func (h *Handler) decrypt(w http.ResponseWriter, r *http.Request) {
	var req service.DecryptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, response{Message: "invalid request body"})
		return
	}

	resp, err := h.svc.Decrypt(r.Context(), &req)
	if err != nil {
		h.writeError(w, "decrypt", err)
		return
	}
	writeJSON(w, http.StatusOK, response{Success: true, Message: "ok", Data: resp})
}

func (h *Handler) batchEncrypt(w http.ResponseWriter, r *http.Request) {
	var reqs []service.EncryptRequest
	if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
		writeJSON(w, http.StatusBadRequest, response{Message: "invalid request body"})
		return
	}

	items, err := h.svc.BatchEncrypt(r.Context(), reqs)
	if err != nil {
		h.writeError(w, "batch_encrypt", err)
		return
	}

	out := make([]batchItem, len(items))
	for i, item := range items {
		if item.Err != nil {
			out[i] = batchItem{Error: item.Err.Error()}
			continue
		}
		out[i] = batchItem{Success: true, Data: item.Response}
	}
	// Per-item failures do not fail the batch call itself
	writeJSON(w, http.StatusOK, response{Success: true, Message: "ok", Data: out})
}

func (h *Handler) batchDecrypt(w http.ResponseWriter, r *http.Request) {
	var reqs []service.DecryptRequest
	if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
		writeJSON(w, http.StatusBadRequest, response{Message: "invalid request body"})
		return
	}

	items, err := h.svc.BatchDecrypt(r.Context(), reqs)
	if err != nil {
		h.writeError(w, "batch_decrypt", err)
		return
	}

	out := make([]batchItem, len(items))
	for i, item := range items {
		if item.Err != nil {
			out[i] = batchItem{Error: item.Err.Error()}
			continue
		}
		out[i] = batchItem{Success: true, Data: item.Response}
	}
	writeJSON(w, http.StatusOK, response{Success: true, Message: "ok", Data: out})
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	st := h.svc.Status()
	code := http.StatusOK
	if st.State == scheduler.StateEmergency {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, response{Success: code == http.StatusOK, Message: string(st.State), Data: st})
}

// writeError maps the error taxonomy to HTTP status codes
func (h *Handler) writeError(w http.ResponseWriter, op string, err error) {
	var code int
	switch {
	case errors.Is(err, service.ErrRoleNotPermitted):
		code = http.StatusForbidden
	case errors.Is(err, service.ErrInvalidRequest), errors.Is(err, crypto.ErrInvalidCredential):
		code = http.StatusBadRequest
	case errors.Is(err, crypto.ErrAuthenticationFailed):
		code = http.StatusUnprocessableEntity
	case errors.Is(err, backend.ErrResourceNotFound):
		code = http.StatusNotFound
	case errors.Is(err, scheduler.ErrBackendUnavailable):
		code = http.StatusServiceUnavailable
	default:
		code = http.StatusInternalServerError
	}

	h.logger.Warn("Operation failed",
		zap.String("operation", op),
		zap.Int("status", code),
		zap.Error(err))
	writeJSON(w, code, response{Message: err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, body response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}
