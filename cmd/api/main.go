package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/invorya/inventory-core/internal/application/alerts"
	"github.com/invorya/inventory-core/internal/application/forecast"
	"github.com/invorya/inventory-core/internal/application/inventory"
	"github.com/invorya/inventory-core/internal/application/ports"
	"github.com/invorya/inventory-core/internal/domain/ledger"
	"github.com/invorya/inventory-core/internal/infrastructure/mailer"
	"github.com/invorya/inventory-core/internal/infrastructure/postgres"
	"github.com/invorya/inventory-core/internal/infrastructure/redisx"
	httpRouter "github.com/invorya/inventory-core/internal/interfaces/http"
	"github.com/invorya/inventory-core/pkg/config"
	"github.com/invorya/inventory-core/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("cargar configuración: " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:   cfg.App.Env,
		Level: "info",
	})
	log.Info().
		Str("env", cfg.App.Env).
		Str("app", cfg.App.Name).
		Msg("iniciando aplicación")

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("conexión a PostgreSQL")
	}
	defer pool.Close()
	repo := postgres.NewInventoryRepository(pool)

	// Redis es opcional: sin él no hay cache de lectura ni canal realtime.
	var cache ports.Cache
	var channel ports.Channel
	if rdb, err := redisx.NewClient(ctx, cfg.Redis); err != nil {
		log.Warn().Err(err).Msg("Redis no disponible, cache y realtime desactivados")
	} else {
		defer func() { _ = rdb.Close() }()
		cache = redisx.NewCache(rdb, log.Component("cache"))
		channel = redisx.NewChannel(rdb, log.Component("realtime"))
	}

	var urgent ports.CriticalDispatcher
	if cfg.SMTP.Host != "" && len(cfg.SMTP.To) > 0 {
		urgent = mailer.NewDispatcher(cfg.SMTP)
	} else {
		log.Warn().Msg("SMTP sin configurar, alertas críticas solo por log")
	}

	engine := ledger.New(ledger.NewStore())
	monitor := alerts.New(cfg.Inventory.Alerts, engine, repo, channel, urgent, log.Component("alerts"))
	forecaster := forecast.New(cfg.Inventory.Forecast)
	service := inventory.NewService(
		cfg.Inventory, repo, engine, monitor, forecaster, cache, channel, log.Component("inventory"),
	)

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  time.Second * 10,
		WriteTimeout: time.Second * 10,
		IdleTimeout:  time.Second * 60,
	})
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "service": cfg.App.Name})
	})

	httpRouter.Router(app, httpRouter.RouterDeps{
		InventoryService: service,
		AlertMonitor:     monitor,
	})

	go func() {
		if err := app.Listen(cfg.HTTP.Addr()); err != nil {
			log.Error().Err(err).Msg("servidor HTTP finalizado")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("señal de apagado recibida, cerrando servidor...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("apagado del servidor")
	}

	log.Info().Msg("aplicación detenida")
}
