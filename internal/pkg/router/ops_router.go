package router

import (
	"os"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ManuelReschke/CollectFox/internal/pkg/env"
)

// OpsRouter serves Prometheus metrics, the fiber monitor and the API docs.
type OpsRouter struct {
	gatherer prometheus.Gatherer
	docsFile string
}

func (h OpsRouter) InstallRouter(app *fiber.App) {
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})))

	app.Get("/monitor", basicauth.New(basicauth.Config{
		Users: map[string]string{
			env.GetEnv("MONITOR_USER", "admin"): env.GetEnv("MONITOR_PASSWORD", "collectfox"),
		},
	}), monitor.New(monitor.Config{Title: "CollectFox"}))

	// SWAGGER / OPENAPI
	if _, err := os.Stat(h.docsFile); err == nil {
		app.Use(swagger.New(swagger.Config{
			BasePath: "/docs/api/",
			FilePath: h.docsFile,
			Path:     "v1",
		}))
	}
}

func NewOpsRouter(gatherer prometheus.Gatherer, docsFile string) *OpsRouter {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &OpsRouter{gatherer: gatherer, docsFile: docsFile}
}
