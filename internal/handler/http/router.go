package http

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/LinhDev610/LilaShop/pkg/health"
	"github.com/LinhDev610/LilaShop/pkg/middleware"

	"github.com/LinhDev610/LilaShop/internal/service"
)

// NewRouter creates a chi router with all promotion service routes registered.
func NewRouter(
	promotionService *service.PromotionService,
	voucherService *service.VoucherService,
	healthHandler *health.Handler,
	corsConfig middleware.CORSConfig,
	logger *slog.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CORS(corsConfig))
	r.Use(middleware.Recovery(logger))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(middleware.Tracing("promotion"))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.PrometheusMetrics("promotion"))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	promotionHandler := NewPromotionHandler(promotionService, logger)
	voucherHandler := NewVoucherHandler(voucherService, logger)

	r.Route("/api/v1/promotions", func(r chi.Router) {
		r.Use(ContentTypeJSON)

		r.Post("/", promotionHandler.CreatePromotion)
		r.Get("/", promotionHandler.ListPromotions)
		r.Get("/active", promotionHandler.ListActivePromotions)
		r.Get("/mine", promotionHandler.ListMyPromotions)

		r.Get("/{id}", promotionHandler.GetPromotion)
		r.Put("/{id}", promotionHandler.UpdatePromotion)
		r.Delete("/{id}", promotionHandler.DeletePromotion)
		r.Post("/{id}/decision", promotionHandler.DecidePromotion)
	})

	r.Route("/api/v1/vouchers", func(r chi.Router) {
		r.Use(ContentTypeJSON)

		r.Post("/", voucherHandler.CreateVoucher)
		r.Get("/", voucherHandler.ListVouchers)
		r.Get("/redeemable", voucherHandler.ListRedeemableVouchers)
		r.Post("/redeem", voucherHandler.RedeemVoucher)

		r.Get("/{id}", voucherHandler.GetVoucher)
		r.Put("/{id}", voucherHandler.UpdateVoucher)
		r.Delete("/{id}", voucherHandler.DeleteVoucher)
		r.Post("/{id}/decision", voucherHandler.DecideVoucher)
	})

	return r
}

// ContentTypeJSON rejects write requests whose body is not JSON.
func ContentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
			ct := r.Header.Get("Content-Type")
			if ct != "" && !strings.HasPrefix(ct, "application/json") {
				writeJSON(w, http.StatusUnsupportedMediaType, response{
					Error: &errorResponse{Code: "UNSUPPORTED_MEDIA_TYPE", Message: "Content-Type must be application/json"},
				})
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
