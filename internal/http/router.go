package http

import (
	"net/http"
	"time"

	"github.com/arabiperfum/perfume-store-website/internal/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type RouterConfig struct {
	RequestTimeout time.Duration
	CORSOrigins    []string
	RateLimitRPS   float64
	RateLimitBurst int
}

type Services struct {
	Catalog   CatalogService
	Carts     CartService
	Favorites FavoritesSessions
	Checkout  CheckoutSessions
	Orders    OrderLedger
	Auth      *Authenticator
	Metrics   *metrics.ServerMetrics
	Gatherer  prometheus.Gatherer
}

func NewRouter(cfg RouterConfig, svc Services) http.Handler {
	catalogHandler := NewCatalogHandler(svc.Catalog, cfg.RequestTimeout)
	cartHandler := NewCartHandler(svc.Carts, cfg.RequestTimeout)
	favoritesHandler := NewFavoritesHandler(svc.Favorites, cfg.RequestTimeout)
	checkoutHandler := NewCheckoutHandler(svc.Checkout, cfg.RequestTimeout)
	ordersHandler := NewOrdersHandler(svc.Orders, svc.Catalog, cfg.RequestTimeout)
	authHandler := NewAuthHandler(svc.Favorites, svc.Checkout)
	limiter := NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	if svc.Metrics != nil {
		r.Use(svc.Metrics.Middleware)
	}
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.Use(middleware.Compress(5))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if svc.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(svc.Gatherer))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(limiter.Limit)
		r.Use(svc.Auth.Middleware)

		r.Get("/products", catalogHandler.ListProducts)
		r.Get("/products/{product_id}", catalogHandler.GetProduct)
		r.Get("/categories", catalogHandler.ListCategories)

		r.Group(func(r chi.Router) {
			r.Use(RequireUser)

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", cartHandler.GetCart)
				r.Delete("/", cartHandler.ClearCart)
				r.Post("/items", cartHandler.AddItem)
				r.Put("/items/{product_id}", cartHandler.UpdateQuantity)
				r.Delete("/items/{product_id}", cartHandler.RemoveItem)
			})

			r.Route("/favorites", func(r chi.Router) {
				r.Get("/", favoritesHandler.List)
				r.Post("/{product_id}/toggle", favoritesHandler.Toggle)
			})

			r.Route("/checkout", func(r chi.Router) {
				r.Get("/", checkoutHandler.GetState)
				r.Post("/shipping", checkoutHandler.SubmitShipping)
				r.Post("/payment", checkoutHandler.SubmitPayment)
				r.Post("/back", checkoutHandler.Back)
				r.Post("/confirm", checkoutHandler.Confirm)
			})

			r.Route("/orders", func(r chi.Router) {
				r.Get("/", ordersHandler.ListOrders)
				r.Get("/{order_id}", ordersHandler.GetOrder)
			})

			r.Post("/auth/signout", authHandler.SignOut)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(RequireAdmin)

			r.Get("/overview", ordersHandler.Overview)
			r.Put("/orders/{order_id}/status", ordersHandler.UpdateStatus)
			r.Post("/products", catalogHandler.CreateProduct)
			r.Put("/products/{product_id}", catalogHandler.UpdateProduct)
			r.Delete("/products/{product_id}", catalogHandler.DeleteProduct)
		})
	})

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-Request-ID"},
		AllowCredentials: true,
	}).Handler(r)

	return otelhttp.NewHandler(corsHandler, "storefront")
}
