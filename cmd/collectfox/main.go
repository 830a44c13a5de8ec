package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ManuelReschke/CollectFox/app/controllers"
	"github.com/ManuelReschke/CollectFox/app/repository"
	"github.com/ManuelReschke/CollectFox/internal/pkg/alerts"
	"github.com/ManuelReschke/CollectFox/internal/pkg/cache"
	"github.com/ManuelReschke/CollectFox/internal/pkg/collections"
	"github.com/ManuelReschke/CollectFox/internal/pkg/compliance"
	"github.com/ManuelReschke/CollectFox/internal/pkg/database"
	"github.com/ManuelReschke/CollectFox/internal/pkg/docstore"
	"github.com/ManuelReschke/CollectFox/internal/pkg/dunning"
	"github.com/ManuelReschke/CollectFox/internal/pkg/env"
	"github.com/ManuelReschke/CollectFox/internal/pkg/gateway"
	"github.com/ManuelReschke/CollectFox/internal/pkg/jobqueue"
	"github.com/ManuelReschke/CollectFox/internal/pkg/mail"
	"github.com/ManuelReschke/CollectFox/internal/pkg/metrics"
	"github.com/ManuelReschke/CollectFox/internal/pkg/middleware"
	"github.com/ManuelReschke/CollectFox/internal/pkg/notify"
	"github.com/ManuelReschke/CollectFox/internal/pkg/paymentplan"
	"github.com/ManuelReschke/CollectFox/internal/pkg/risk"
	"github.com/ManuelReschke/CollectFox/internal/pkg/router"
	"github.com/ManuelReschke/CollectFox/internal/pkg/suspension"
)

func main() {
	app, jobs, err := NewApplication()
	if err != nil {
		log.Fatalf("[Main] Startup failed: %v", err)
	}

	jobs.Start()

	go func() {
		addr := fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000"))
		if err := app.Listen(addr); err != nil {
			log.Errorf("[Main] Listen failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("[Main] Shutting down")
	jobs.Stop()
	if err := app.ShutdownWithTimeout(30 * time.Second); err != nil {
		log.Errorf("[Main] Shutdown error: %v", err)
	}
}

// NewApplication wires storage, collaborators and services into the fiber app
// and returns the job manager so the caller controls its lifecycle.
func NewApplication() (*fiber.App, *jobqueue.Manager, error) {
	env.SetupEnvFile()

	db, err := database.SetupDatabase()
	if err != nil {
		return nil, nil, err
	}
	cache.SetupCache()

	repos := repository.NewRepositories(db)
	m := metrics.Collections()

	riskCfg, err := risk.LoadConfig()
	if err != nil {
		return nil, nil, err
	}
	engine := risk.NewEngine(repos.Account, repos.Invoice, *riskCfg).WithMetrics(m)

	renderer, err := compliance.NewRenderer()
	if err != nil {
		return nil, nil, err
	}
	gate := compliance.NewGate(repos, compliance.DefaultRegistry(), renderer).WithMetrics(m)

	docCfg, err := docstore.LoadConfig()
	if err != nil {
		return nil, nil, err
	}
	if docCfg.IsEnabled() {
		archive, err := docstore.NewClient(context.Background(), docCfg)
		if err != nil {
			return nil, nil, err
		}
		gate = gate.WithArchive(archive)
	}

	notifyCfg := notify.LoadConfig()
	var sms notify.SMSSender
	if notifyCfg.SMSEnabled() {
		sms = notify.NewHTTPSMSSender(notifyCfg)
	}
	dispatcher, err := notify.NewDispatcher(mail.NewFromEnv(), sms, repos.Notification, notifyCfg)
	if err != nil {
		return nil, nil, err
	}

	dunningCfg, err := dunning.LoadConfig()
	if err != nil {
		return nil, nil, err
	}
	executor := dunning.NewExecutor(repos, engine, gate, dispatcher, *dunningCfg).
		WithAlerts(alerts.New(alerts.LoadConfig())).
		WithMetrics(m)

	suspensionCfg, err := suspension.LoadConfig()
	if err != nil {
		return nil, nil, err
	}
	holds := suspension.NewController(repos, suspension.NewProvisioner(suspensionCfg), gate).WithMetrics(m)

	planCfg, err := paymentplan.LoadConfig()
	if err != nil {
		return nil, nil, err
	}
	plans := paymentplan.NewGenerator(repos, engine, gate, *planCfg)

	gatewayCfg, err := gateway.LoadConfig()
	if err != nil {
		return nil, nil, err
	}
	payments := collections.NewService(repos, gateway.New(gatewayCfg), holds).WithMetrics(m)

	queue := jobqueue.NewQueue(cache.GetClient(), env.GetEnvInt("JOB_WORKERS", 3))
	queue.Register(jobqueue.JobTypeExecuteCampaign, jobqueue.CampaignHandler(executor))
	queue.Register(jobqueue.JobTypeMarkOverdue, jobqueue.MarkOverdueHandler(repos.Invoice, time.Now))
	jobs := jobqueue.NewManager(queue, repos.Campaign, dunningCfg.ScheduleInterval)

	api := controllers.NewAPI(controllers.API{
		Risk:        engine,
		Compliance:  gate,
		Plans:       plans,
		Holds:       holds,
		Collections: payments,
		Campaigns:   executor,
		Jobs:        queue,
	})

	app := fiber.New(fiber.Config{
		AppName:   "CollectFox",
		BodyLimit: 1 << 20,
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	rateLimit := middleware.LoadRateLimitConfig()
	rateLimit.Storage = middleware.NewRedisLimiterStorage(cache.GetClient())

	router.InstallRouter(app,
		router.NewOpsRouter(prometheus.DefaultGatherer, docsFile()),
		router.NewApiRouter(api, repos.Tenant, rateLimit),
	)

	return app, jobs, nil
}

// docsFile locates the OpenAPI document from the repo root or from cmd/collectfox.
func docsFile() string {
	for _, base := range []string{"./", "../../"} {
		path := base + "public/docs/v1/openapi.yml"
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
