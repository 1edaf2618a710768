package main

import (
	"context"
	"log"
	"net"
	"os"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/likexian/whois"

	"verihunt/config"
	"verihunt/internal/ippool"
	"verihunt/internal/mxresolve"
	"verihunt/internal/repository"
	"verihunt/internal/smtpprobe"
	"verihunt/internal/verify"
	"verihunt/logging"
	"verihunt/middleware"
	"verihunt/routes"
	"verihunt/worker"
)

func main() {
	logger := log.New(os.Stdout, "VERIHUNT: ", log.Ldate|log.Ltime|log.Lshortfile)

	if err := config.LoadConfig(); err != nil {
		logger.Fatalf("failed to load configuration: %v", err)
	}

	if err := config.ConnectDB(); err != nil {
		logger.Fatalf("failed to connect to database: %v", err)
	}

	if err := logging.InitSentry(config.AppConfig.SentryDSN, config.AppConfig.Environment); err != nil {
		logger.Printf("sentry disabled: %v", err)
	}
	router := logging.NewRouter(config.AppConfig.LogDir)

	companies := repository.NewCompanyRepository(config.DB)
	patterns := repository.NewPatternRepository(config.DB)
	people := repository.NewPersonRepository(config.DB)
	catchAlls := repository.NewCatchAllDomainRepository(config.DB)

	resolver := mxresolve.New()
	pool := ippool.NewWithConfig(sourceAddrs(config.AppConfig.SourceIPs), ippool.Config{
		EarlyExit: config.AppConfig.VerifyEarlyExit,
	})

	probeConfig := smtpprobe.Config{
		HeloHostname: config.AppConfig.HeloHostname,
		Sender:       config.AppConfig.SenderAddress,
		IdleTimeout:  config.AppConfig.SMTPIdleTime,
	}

	var catchAllCache verify.CatchAllCache
	if config.AppConfig.Redis.Enabled {
		storage := middleware.NewRedisStorage(config.AppConfig.Redis)
		catchAllCache = middleware.NewCatchAllCache(storage, 6*time.Hour)
	}

	orchestrator := &verify.Orchestrator{
		Resolver:    resolver,
		Pool:        pool,
		Companies:   companies,
		Patterns:    patterns,
		People:      people,
		CatchAlls:   catchAlls,
		ProbeConfig: probeConfig,
		Sink:        router,
		WhoisLookup: func(domain string) (string, error) { return whois.Whois(domain) },
		Cache:       catchAllCache,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	catchAllWorker := worker.NewCatchAllWorker(catchAlls, resolver, pool, probeConfig,
		log.New(os.Stdout, "CATCHALL: ", log.Ldate|log.Ltime))
	go catchAllWorker.Start(ctx)

	app := fiber.New()
	app.Use(middleware.CORS())

	routes.SetupRoutes(app, config.DB, orchestrator, logger, router)

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "running",
			"version": "1.0.0",
		})
	})

	logger.Printf("server starting on port %s", config.AppConfig.ServerPort)
	if err := app.Listen(":" + config.AppConfig.ServerPort); err != nil {
		logger.Fatalf("failed to start server: %v", err)
	}
}

// sourceAddrs turns the configured source IP strings into net.Addr
// values for internal/ippool. Port 0 lets net.Dialer pick an ephemeral
// port while still binding the given local IP.
func sourceAddrs(ips []string) []net.Addr {
	out := make([]net.Addr, 0, len(ips))
	for _, ip := range ips {
		out = append(out, &net.TCPAddr{IP: net.ParseIP(ip)})
	}
	return out
}
