package router

import (
	_ "github.com/erp/fulfillment/docs"
	"github.com/erp/fulfillment/internal/interfaces/http/handler"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Handlers are the endpoints served under /api/{version}
type Handlers struct {
	Orders    *handler.OrderHandler
	Payments  *handler.PaymentHandler
	Callbacks *handler.CallbackHandler
}

// FulfillmentGroups lays out the order, payment and gateway callback routes
func FulfillmentGroups(h Handlers) []*DomainGroup {
	orders := NewDomainGroup("orders", "/orders").
		POST("", h.Orders.Create).
		GET("/:orderId", h.Orders.GetByID)

	payments := NewDomainGroup("payments", "/payments").
		POST("", h.Payments.Ready)

	callbacks := NewDomainGroup("callbacks", "/callback")
	callbacks.Group("payments", "/payments").
		POST("/:orderId", h.Callbacks.Handle)

	return []*DomainGroup{orders, payments, callbacks}
}

// Mount registers the fulfillment API and the health probe on engine.
// apiMiddleware runs for /api routes only.
func Mount(engine *gin.Engine, h Handlers, health *handler.HealthHandler, apiMiddleware ...gin.HandlerFunc) {
	engine.GET("/health", health.Check)

	r := NewRouter(engine, WithMiddleware(apiMiddleware...))
	for _, g := range FulfillmentGroups(h) {
		r.Register(g)
	}
	r.Setup()
}

// MountDocs serves the OpenAPI description and Swagger UI under /swagger
func MountDocs(engine *gin.Engine) {
	engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
}
