package http

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// NewRouter builds the echo instance serving the payment API
func NewRouter(handler *PaymentHandler, jwtSecret string) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Validator = NewRequestValidator()

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	api := e.Group("/api", AuthMiddleware(jwtSecret))
	api.POST("/reservations/:id/payments", handler.CreatePayment)
	api.GET("/reservations/:id/payments", handler.ListPayments)
	api.GET("/payments/status/:reference", handler.GetStatus)
	api.POST("/payments/cancel", handler.CancelPayment)
	api.GET("/payments/:reference", handler.GetPayment)

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	return e
}
