package health

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewServer exposes the liveness stub.
func NewServer(addr string) *http.Server {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]bool{"ok": true})
	})
	return &http.Server{Addr: addr, Handler: r}
}
