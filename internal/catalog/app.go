package catalog

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"VapeShelf/pkg/kit"
)

type HTTPDeps struct {
	Log      *zap.Logger
	Service  string
	Registry *prometheus.Registry

	MetricsEnabled bool
	MetricsToken   string

	// APIKey guards every catalog route; nil or empty leaves them open.
	APIKey *kit.APIKey

	// WriteLimitPerMin caps mutating requests per client IP; 0 disables.
	WriteLimitPerMin int
}

const writeLimitWindow = time.Minute

func NewHandler(s *Server, deps HTTPDeps) http.Handler {
	r := chi.NewRouter()

	setupMiddleware(r, deps)
	setupMetrics(r, deps)
	setupRoutes(r, s, deps)

	return r
}

func setupMiddleware(r *chi.Mux, deps HTTPDeps) {
	r.Use(chimw.RequestID)
	r.Use(kit.Recoverer)
	r.Use(kit.Logging(deps.Log))
}

func setupMetrics(r *chi.Mux, deps HTTPDeps) {
	if deps.Registry == nil {
		return
	}

	metrics := kit.NewMetrics(deps.Registry)
	r.Use(metrics.Middleware(deps.Service))

	if !deps.MetricsEnabled {
		return
	}

	r.With(kit.MetricsAuth(deps.MetricsToken)).
		Handle("/metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))
}

func setupRoutes(r *chi.Mux, s *Server, deps HTTPDeps) {
	r.Get("/health", s.health)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/readyz", s.ready)

	writes := kit.NewIPRateLimiter(deps.WriteLimitPerMin, writeLimitWindow)

	r.Group(func(api chi.Router) {
		api.Use(kit.RequireAPIKey(deps.APIKey))

		api.Get("/products", s.listProducts)

		api.Group(func(w chi.Router) {
			w.Use(writes.Middleware)

			w.Post("/products", s.createProduct)
			w.Patch("/products/{productID}", s.updateProduct)
			w.Delete("/products/{productID}", s.deleteProduct)
			w.Post("/products/{productID}/flavors", s.addFlavor)

			w.Patch("/flavors/{flavorID}", s.updateFlavor)
			w.Delete("/flavors/{flavorID}", s.deleteFlavor)
		})
	})
}
