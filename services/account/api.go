package account

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
)

// NewHandler exposes the service as a plain JSON endpoint. Every GET
// /account triggers a fresh extraction run against the live portal.
func NewHandler(service Service) http.Handler {
	router := mux.NewRouter()
	router.HandleFunc("/account", func(w http.ResponseWriter, r *http.Request) {
		result, err := service.Extract(r.Context())
		if errors.Is(err, ErrBusy) {
			writeJson(w, http.StatusServiceUnavailable, map[string]string{
				"error": err.Error(),
			})
			return
		}
		if err != nil {
			slog.ErrorContext(r.Context(), "extraction failed", "err", err)
			writeJson(w, http.StatusInternalServerError, map[string]string{
				"error": err.Error(),
			})
			return
		}
		writeJson(w, http.StatusOK, result)
	}).Methods(http.MethodGet)
	return router
}

func writeJson(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	err := json.NewEncoder(w).Encode(body)
	if err != nil {
		slog.Error("failed to encode response body", "err", err)
	}
}
