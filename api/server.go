/*
server.go - HTTP router and middleware configuration

PURPOSE:

	Configures the HTTP router (chi), middleware stack, and route definitions.
	This is the wiring layer that connects URLs to handlers.

ROUTER: chi

	Chi was chosen for:
	- Lightweight and fast
	- Context-based
	- Middleware support
	- RESTful route patterns

MIDDLEWARE STACK:
 1. RequestID:  Unique ID per request for tracing
 2. RealIP:     Client IP behind proxies
 3. Logger:     Request logging
 4. Recoverer:  Panic recovery (500 instead of crash)
 5. CORS:       Cross-origin requests for operator dashboards

SECURITY NOTE:

	No authentication middleware. Auth is handled by the gateway in front of
	this service.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Pure calculator routes, no state
		r.Route("/calc", func(r chi.Router) {
			r.Post("/eua-cost", h.EUACost)
			r.Post("/fueleu-settlement", h.FuelEUSettlement)
			r.Post("/penalty-vs-pool", h.PenaltyVsPool)
			r.Post("/tcc", h.TCC)
		})

		// Position and transition routes
		r.Route("/ships/{shipId}/positions/{year}", func(r chi.Router) {
			r.Post("/", h.OpenPosition)
			r.Get("/", h.GetPosition)
			r.Post("/bank", h.Bank)
			r.Post("/use-bank", h.UseBank)
			r.Post("/borrow", h.Borrow)
			r.Post("/roll-forward", h.RollForward)
		})

		// Pooling routes
		r.Route("/pools/rfqs", func(r chi.Router) {
			r.Post("/", h.CreateRFQ)
			r.Get("/", h.ListRFQs)
			r.Get("/{rfqId}", h.GetRFQ)
			r.Post("/{rfqId}/offers", h.SubmitOffer)
			r.Post("/{rfqId}/offers/{offerId}/accept", h.AcceptOffer)
		})

		// Hedge routes
		r.Post("/hedges", h.ExecuteHedge)

		// Audit routes
		r.Route("/decisions", func(r chi.Router) {
			r.Get("/", h.ListDecisions)
			r.Get("/{id}", h.GetDecision)
		})

		// Report routes
		r.Get("/reports/compliance", h.ComplianceReport)

		// Policy routes
		r.Get("/policies", h.ListPolicies)
	})

	return r
}
