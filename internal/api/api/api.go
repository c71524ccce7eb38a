package api

import (
	"github.com/gin-contrib/cors"
	"github.com/wb-go/wbf/ginext"

	"regflow/cmd/middleware"
	"regflow/internal/metrics"
	"regflow/internal/service"
)

type Routers struct {
	Service service.Service
}

func NewRouters(r *Routers) *ginext.Engine {
	app := ginext.New("release")

	app.Use(middleware.LoggingMiddleware())
	app.Use(cors.Default())
	apiGroup := app.Group("/v1")

	apiGroup.POST("/events", r.Service.CreateEvent)
	apiGroup.GET("/events", r.Service.GetAllEvents)
	apiGroup.GET("/events/:id", r.Service.GetInfo)
	apiGroup.POST("/events/:id/forms", r.Service.CreateForm)
	apiGroup.POST("/forms/:id/submit", r.Service.Submit)
	apiGroup.POST("/events/:id/payments/:txid/link", r.Service.CreatePaymentLink)
	apiGroup.POST("/events/:id/payments/:txid/free", r.Service.MarkFree)
	apiGroup.GET("/participants/:email", r.Service.GetParticipant)
	apiGroup.POST("/passes/verify", r.Service.VerifyPass)

	metricsHandler := metrics.Handler()
	app.GET("/metrics", func(c *ginext.Context) {
		metricsHandler.ServeHTTP(c.Writer, c.Request)
	})

	return app
}
