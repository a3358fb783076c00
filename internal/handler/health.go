package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// QueueReporter exposes the admission queue depth for the health check.
type QueueReporter interface {
	QueueDepth() int
}

// Health is used by load balancers and monitoring systems to verify that
// the service is running.  It reports "ok" together with the current
// queue depth so that a backed-up pipeline is visible without scraping
// metrics.
func Health(queue QueueReporter) echo.HandlerFunc {
	return func(c echo.Context) error {
		body := echo.Map{"status": "ok"}
		if queue != nil {
			body["queueDepth"] = queue.QueueDepth()
		}
		return c.JSON(http.StatusOK, body)
	}
}
