package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// SetupRouter wires the HTTP surface.
func SetupRouter(h *Handler, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(RecoveryMiddleware(logger))
	r.Use(LoggerMiddleware(logger))
	r.Use(CORSMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")
	{
		catalog := api.Group("/catalog")
		{
			catalog.GET("/plans", h.ListPlans)
			catalog.GET("/plan", h.GetPlan)
			catalog.POST("/plan/create", h.CreatePlan)
			catalog.POST("/plan/update", h.UpdatePlan)
			catalog.GET("/device", h.GetDevice)
			catalog.POST("/device/create", h.CreateDevice)
			catalog.POST("/device/update", h.UpdateDevice)
			catalog.POST("/number/create", h.CreateNumber)
			catalog.GET("/numbers/available", h.ListAvailableNumbers)
		}

		number := api.Group("/number")
		{
			number.GET("/detail", h.GetNumber)
			number.POST("/reserve", h.ReserveNumber)
			number.POST("/release", h.ReleaseNumber)
		}

		order := api.Group("/order")
		{
			order.POST("/create", h.CreateOrder)
			order.GET("/detail", h.GetOrder)
			order.GET("/list", h.ListOrders)
			order.GET("/history", h.GetOrderHistory)
			order.POST("/status", h.UpdateOrderStatus)
			order.POST("/cancel", h.CancelOrder)
		}

		payment := api.Group("/payment")
		{
			payment.POST("/create", h.CreatePayment)
			payment.POST("/process", h.ProcessPayment)
			payment.GET("/detail", h.GetPayment)
			payment.POST("/refund", h.RefundPayment)
		}

		api.POST("/webhook/payment/:provider", h.PaymentWebhook)
	}

	return r
}
