// SPDX-License-Identifier: GPL-3.0-or-later

package isup

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
)

// HealthPath is the path of the liveness endpoint.
const HealthPath = "/healthz"

// NewRouter returns the [http.Handler] serving the oracle API at [Path]
// and a liveness endpoint at [HealthPath].
//
// Cross-origin requests are allowed, since the oracle is queried by
// browser extensions running on arbitrary origins.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet},
		MaxAge:         300,
	}))
	r.Get(HealthPath, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, Path, h)
	return r
}
