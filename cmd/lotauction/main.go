package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bsm/redislock"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"lotauction/internal/config"
	"lotauction/internal/domain"
	"lotauction/internal/events"
	"lotauction/internal/governance"
	"lotauction/internal/http/handlers"
	"lotauction/internal/ledger"
	applog "lotauction/internal/log"
	"lotauction/internal/monitor"
	"lotauction/internal/repos"
	"lotauction/internal/services"
)

func main() {
	cfg := config.Load()

	// Optional file logging
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			applog.Warn("log.file.open", map[string]any{"path": cfg.LogFile, "err": err.Error()})
		} else {
			defer f.Close()
			applog.SetOutput(io.MultiWriter(os.Stdout, f))
		}
	}
	applog.SetLevel(cfg.LogLevel)
	applog.Event("config.loaded", cfg.Fields())

	seed := repos.DefaultGovernance()
	seed.DefaultBidIncrement = cfg.MinBidIncrement
	db, err := repos.OpenDB(cfg.DBDriver, cfg.DBDSN, seed)
	if err != nil {
		applog.Fail("db.open", err, map[string]any{"driver": cfg.DBDriver})
		os.Exit(1)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Shared cache and sweep lock when redis is configured
	var cache governance.Cache
	var locker monitor.Locker
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			applog.Warn("redis.unavailable", map[string]any{"addr": cfg.RedisAddr, "err": err.Error()})
		} else {
			defer rdb.Close()
			cache = governance.NewRedisCache(rdb, 5*time.Minute)
			locker = monitor.NewRedisLocker(redislock.New(rdb))
		}
	}

	var publisher events.Publisher = events.Nop{}
	if cfg.NATSURL != "" {
		nc, err := nats.Connect(cfg.NATSURL, nats.Name("lotauction"), nats.MaxReconnects(-1))
		if err != nil {
			applog.Warn("nats.unavailable", map[string]any{"url": cfg.NATSURL, "err": err.Error()})
		} else {
			defer nc.Drain()
			publisher = events.NewNATSPublisher(nc)
		}
	}

	// The simulated ledger stands in for the external chain client.
	coord := ledger.NewCoordinator(ledger.NewSimulated(), cfg.LedgerSigner, cfg.LedgerTimeout)

	svcs := services.New(services.Options{
		DB:      db,
		Ledger:  coord,
		Events:  publisher,
		Cache:   cache,
		FeeRate: cfg.PlatformFeeRate,
	})

	mon := monitor.New(svcs.Auctions, locker, domain.SystemClock{}, cfg.MonitorInterval)
	go mon.Start(ctx)

	app := fiber.New(fiber.Config{
		ErrorHandler: handlers.ErrorHandler,
		BodyLimit:    1 << 20, // 1 MiB
	})

	// ---------- Middlewares ----------
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(logger.New(logger.Config{Output: applog.Logger().Out}))
	app.Use(helmet.New())
	app.Use(limiter.New(limiter.Config{
		Max:        120,
		Expiration: time.Minute,
		LimitReached: func(c *fiber.Ctx) error {
			applog.Security(c, "rate.global.hit", nil)
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "rate limit exceeded, retry soon"})
		},
	}))

	// ---------- App handlers ----------
	handlers.Routes(app, handlers.NewDeps(svcs, coord, mon, nil), cfg.AdminTokenHash)
	app.Use(handlers.NotFound)

	go func() {
		<-ctx.Done()
		applog.Event("server.shutdown", nil)
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			applog.Fail("server.shutdown", err, nil)
		}
	}()

	applog.Event("server.start", map[string]any{"port": cfg.Port})
	if err := app.Listen(":" + cfg.Port); err != nil {
		applog.Fail("server.listen", err, nil)
	}
}
