package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	custommiddleware "github.com/mmeshcher/pos-ledger/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware кассового сервиса.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.Logger(h.logger))
	r.Use(custommiddleware.GzipMiddleware)

	r.Route("/api", func(r chi.Router) {
		r.Use(h.authMiddleware.Middleware)

		r.Route("/sales", func(r chi.Router) {
			r.Post("/", h.CreateSale)
			r.Get("/{saleID}", h.GetSale)
		})

		r.Route("/inventory", func(r chi.Router) {
			r.Post("/movements", h.CreateMovement)
			r.Get("/articles", h.ListArticles)
			r.Post("/articles", h.CreateArticle)
			r.Patch("/articles/{articleID}", h.UpdateArticle)
			r.Get("/articles/{articleID}/movements", h.ListMovements)
		})

		r.Post("/customers", h.CreateCustomer)

		r.Route("/loyalty", func(r chi.Router) {
			r.Get("/campaigns", h.ListCampaigns)
			r.Post("/campaigns", h.CreateCampaign)
			r.Patch("/campaigns/{campaignID}", h.UpdateCampaign)
			r.Get("/customers/{customerID}/campaigns/{campaignID}", h.GetEligibility)
			r.Post("/customers/{customerID}/campaigns/{campaignID}/redeem", h.Redeem)
		})

		r.Get("/gamification/profile", h.GetProfile)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
