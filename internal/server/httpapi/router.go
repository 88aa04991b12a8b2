// Package httpapi is the public HTTP surface of the auth server.
package httpapi

import (
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/metrics"
)

type RouterOptions struct {
	Users          UserAPI
	Metrics        *metrics.Metrics
	Logger         logging.Logger
	AllowedOrigins []string
}

// NewRouter builds the router with the authorization routes, health and
// metrics.
func NewRouter(opts RouterOptions) http.Handler {
	h := &handlers{users: opts.Users, logger: opts.Logger}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(opts.AllowedOrigins) > 0 {
		r.Use(cors.Handler(corsOptions(opts.AllowedOrigins)))
	}
	r.Use(observe(opts.Metrics, opts.Logger))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics.Handler())
	}

	r.Route("/authorization", func(r chi.Router) {
		r.Get("/signup/reserve_uuid", h.reserveUUID)
		r.Post("/signup/", h.signup)

		r.Post("/login/", h.login)
		r.Post("/login/get_access_token", h.getAccessToken)
		r.Get("/login/get_uuid", h.getUUID)

		r.Post("/logout", h.logout)

		r.With(requireAccessToken(opts.Users)).Get("/me", h.me)
	})

	return otelhttp.NewHandler(r, "authkeeper-http")
}

// corsOptions allows credentials only for an explicit origin list. With a
// "*" entry any origin may call the API, but without cookies or auth.
func corsOptions(origins []string) cors.Options {
	return cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: !slices.Contains(origins, "*"),
		MaxAge:           int((10 * time.Minute).Seconds()),
	}
}
