package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/phrazzld/vendorflow/internal/api"
	apiMiddleware "github.com/phrazzld/vendorflow/internal/api/middleware"
	"github.com/phrazzld/vendorflow/internal/app"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// newRouter mounts the health and metrics endpoints and the authenticated
// operator API.
func newRouter(a *app.Application) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(apiMiddleware.Trace(a.Logger))
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			a.Logger.Error("failed to write health check response", "error", err)
		}
	})
	r.Handle("/metrics", promhttp.Handler())

	auth := apiMiddleware.NewAuthMiddleware(a.JWT)
	vendors := api.NewVendorHandler(a.Vendors)
	r.Route("/api", func(r chi.Router) {
		r.Use(auth.Authenticate)
		vendors.Routes(r)
	})

	return r
}
