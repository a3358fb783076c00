package router

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iliyamo/studyroom-reservation/internal/handler"
)

// RegisterRoutes registers the operational endpoints.  /healthz is used by
// load balancers and reports the admission queue depth; /metrics exposes
// the collectors of gatherer in the Prometheus text format.
func RegisterRoutes(e *echo.Echo, queue handler.QueueReporter, gatherer prometheus.Gatherer) {
	e.GET("/healthz", handler.Health(queue))
	if gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
}
