// Package handler wires the HTTP surface: route registration, request
// binding and the mapping of domain errors onto status codes. Business
// logic stays in the domain services.
package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/farisdwi28/petneeds/internal/domain/cart"
	"github.com/farisdwi28/petneeds/internal/domain/order"
	"github.com/farisdwi28/petneeds/internal/domain/payment"
	"github.com/farisdwi28/petneeds/internal/domain/product"
	"github.com/farisdwi28/petneeds/internal/metrics"
)

// Config holds non-dependency configuration for the Handler.
type Config struct {
	// JWTSecret verifies bearer tokens on the authenticated routes.
	JWTSecret string
	// GatewayServerKey is used to verify webhook signatures when
	// VerifySignature is set.
	GatewayServerKey string
	// VerifySignature enables signature checking on incoming gateway
	// notifications.
	VerifySignature bool
}

// Handler exposes the API over gin, delegating to the domain services.
type Handler struct {
	cfg Config

	products       product.Repository
	carts          cart.Repository
	orderService   *order.Service
	paymentService *payment.Service
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(
	cfg Config,
	products product.Repository,
	carts cart.Repository,
	orderService *order.Service,
	paymentService *payment.Service,
) *Handler {
	return &Handler{
		cfg:            cfg,
		products:       products,
		carts:          carts,
		orderService:   orderService,
		paymentService: paymentService,
	}
}

// Router builds the gin engine with all routes registered. Recovery and
// request logging are handled by the outer middleware chain; gin runs
// bare except for metrics.
func (h *Handler) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(metrics.HTTPMiddleware())

	api := r.Group("/api")

	api.GET("/products", h.ListProducts)
	api.GET("/products/:id", h.GetProduct)
	api.POST("/webhooks/payment", h.PaymentWebhook)

	customer := api.Group("", Authenticate(h.cfg.JWTSecret))
	{
		customer.GET("/cart", h.GetCart)
		customer.POST("/cart", h.AddToCart)
		customer.PUT("/cart/:productID", h.UpdateCartLine)
		customer.DELETE("/cart/:productID", h.RemoveCartLine)

		customer.POST("/checkout", h.Checkout)
		customer.GET("/orders", h.ListOrders)
		customer.GET("/orders/:number", h.GetOrder)
		customer.POST("/orders/:number/cancel", h.CancelOrder)

		customer.POST("/payments", h.CreatePayment)
		customer.GET("/payments/:orderNumber", h.GetPayment)
	}

	admin := api.Group("/admin", Authenticate(h.cfg.JWTSecret), RequireRole(RoleAdmin))
	{
		admin.GET("/orders", h.AdminListOrders)
		admin.PATCH("/orders/:number/status", h.AdminUpdateOrderStatus)
		admin.POST("/payments/:orderNumber/sync", h.AdminSyncPayment)
	}

	return r
}
