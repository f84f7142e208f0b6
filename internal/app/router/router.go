// Package router assembles the gin engine and its routes.
package router

import (
	accounthandler "breeze_backend/internal/feature/accounts/transport/handler"
	authhandler "breeze_backend/internal/feature/auth/transport/handler"
	candlehandler "breeze_backend/internal/feature/candles/transport/handler"
	instrumenthandler "breeze_backend/internal/feature/instruments/transport/handler"
	streamhandler "breeze_backend/internal/feature/stream/transport/handler"
	"breeze_backend/internal/platform/http/handler"
	jwtmw "breeze_backend/internal/platform/jwt"

	"github.com/gin-gonic/gin"
)

// NewRouter builds the HTTP routing table. /healthz, /signup and /login are
// open; everything else requires a bearer token.
func NewRouter(
	authH *authhandler.AuthHandler,
	candlesH *candlehandler.CandlesHandler,
	instrumentsH *instrumenthandler.InstrumentsHandler,
	streamH *streamhandler.StreamHandler,
	accountsH *accounthandler.AccountsHandler,
) *gin.Engine {
	r := gin.Default()

	r.GET("/healthz", handler.Health)
	r.POST("/signup", authH.Signup)
	r.POST("/login", authH.Login)

	auth := r.Group("/")
	auth.Use(jwtmw.AuthRequired())
	{
		auth.GET("/candles/:id", candlesH.GetCandlesHandler)

		auth.GET("/instruments", instrumentsH.Search)
		auth.GET("/subscriptions", instrumentsH.ListSubscriptions)
		auth.GET("/subscriptions/:id", instrumentsH.GetSubscription)
		auth.POST("/subscriptions", instrumentsH.Subscribe)
		auth.DELETE("/subscriptions/:id", instrumentsH.Unsubscribe)

		auth.POST("/feed/start", streamH.Start)
		auth.POST("/feed/refresh", streamH.Refresh)
		auth.GET("/feed/status", streamH.Status)

		auth.GET("/accounts", accountsH.List)
		auth.POST("/accounts", accountsH.Create)
		auth.PUT("/accounts/:id", accountsH.Update)
	}

	return r
}
