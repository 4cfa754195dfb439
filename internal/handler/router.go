package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/time/rate"

	custommiddleware "github.com/rgo-organic/storefront-system/internal/middleware"
)

// Rate limits follow the storefront policy: 100 requests per 15 minutes on
// the API, 5 per 15 minutes on authentication.
const rateWindow = 15 * time.Minute

// SetupRouter wires the HTTP routes and middleware of the storefront API.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.Logger(h.logger))

	apiLimiter := custommiddleware.NewRateLimiter(rate.Every(rateWindow/100), 100)
	authLimiter := custommiddleware.NewRateLimiter(rate.Every(rateWindow/5), 5)

	r.Use(apiLimiter.Middleware)

	// The webhook stays outside the gzip group: signature verification
	// needs the raw request body.
	r.Post("/api/payments/webhook", h.Webhook)

	r.Group(func(r chi.Router) {
		r.Use(custommiddleware.GzipMiddleware)

		r.Get("/api/health", h.Health)
		r.Get("/api/reviews", h.GetReviews)

		// The auth paths are registered flat: the public half shares the
		// stricter limiter, the profile half lives behind the token check.
		r.Group(func(r chi.Router) {
			r.Use(authLimiter.Middleware)

			r.Post("/api/auth/register", h.Register)
			r.Post("/api/auth/login", h.Login)
			r.Post("/api/auth/forgot-password", h.ForgotPassword)
			r.Post("/api/auth/reset-password", h.ResetPassword)
		})

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Get("/api/auth/profile", h.GetProfile)
			r.Put("/api/auth/profile", h.UpdateProfile)
			r.Put("/api/auth/change-password", h.ChangePassword)

			r.Route("/api/orders", func(r chi.Router) {
				r.Post("/prepare", h.PrepareOrder)
				r.Post("/", h.CreateOrder)
				r.Get("/", h.GetOrders)
				r.Get("/{id}", h.GetOrder)
				// The path parameter carries the order number here, not
				// the internal id; chi requires one name per position.
				r.Put("/{id}/mark-paid", h.MarkPaid)

				r.With(h.authMiddleware.RequireAdmin).Put("/{id}/status", h.UpdateOrderStatus)
			})

			r.Post("/api/payments/create-intent", h.CreateIntent)
			r.Post("/api/reviews", h.CreateReview)

			r.Route("/api/admin", func(r chi.Router) {
				r.Use(h.authMiddleware.RequireAdmin)

				r.Get("/orders", h.AdminOrders)
				r.Get("/dashboard", h.AdminDashboard)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		h.writeError(w, http.StatusNotFound, "route not found")
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		h.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	return r
}
