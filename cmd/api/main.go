package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/jhoicas/almacen-sync/internal/application/connectivity"
	"github.com/jhoicas/almacen-sync/internal/application/custody"
	"github.com/jhoicas/almacen-sync/internal/application/ledger"
	"github.com/jhoicas/almacen-sync/internal/application/replica"
	"github.com/jhoicas/almacen-sync/internal/application/report"
	"github.com/jhoicas/almacen-sync/internal/application/syncqueue"
	"github.com/jhoicas/almacen-sync/internal/infrastructure/localstore"
	"github.com/jhoicas/almacen-sync/internal/infrastructure/metrics"
	"github.com/jhoicas/almacen-sync/internal/infrastructure/postgres"
	httpRouter "github.com/jhoicas/almacen-sync/internal/interfaces/http"
	"github.com/jhoicas/almacen-sync/pkg/config"
	"github.com/jhoicas/almacen-sync/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("cargar configuración: " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:   cfg.App.Env,
		Level: cfg.App.LogLevel,
		Name:  cfg.App.Name,
	})
	log.Info().
		Str("env", cfg.App.Env).
		Str("app", cfg.App.Name).
		Msg("iniciando aplicación")

	if cfg.JWT.Secret == "" {
		log.Fatal().Msg("JWT_SECRET es obligatorio")
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Almacén local: caché + cola de sincronización
	store, err := localstore.Open(localstore.Config{
		Path:        cfg.Local.DBPath,
		BusyTimeout: cfg.Local.BusyTimeout,
	}, log.Component("localstore"))
	if err != nil {
		log.Fatal().Err(err).Msg("abrir almacén local")
	}
	defer store.Close()
	repos := store.Repositories()
	txRunner := localstore.NewTxRunner(store)

	// Sistema de registro remoto. El pool no conecta hasta el primer uso: si el remoto no
	// responde, el servicio arranca sin conexión y el prober avisa cuando vuelva.
	pool, err := postgres.NewPool(ctx, cfg.DB, postgres.PoolOptions{
		ConnectTimeout: cfg.Sync.RemoteTimeout,
		Logger:         log.Component("postgres"),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("configurar pool de PostgreSQL")
	}
	defer pool.Close()
	remote := postgres.NewRemoteStore(pool)
	go migrate(ctx, pool, cfg.Sync.ProbeInterval, log)

	collector := metrics.NewCollector("almacen")

	queue := syncqueue.NewManager(txRunner, repos, remote, syncqueue.Options{
		RemoteTimeout: cfg.Sync.RemoteTimeout,
		Logger:        log.Component("syncqueue"),
		Metrics:       collector,
	})
	rep := replica.New(txRunner, remote, queue, cfg.Sync.RemoteTimeout, log.Component("replica"))
	monitor := connectivity.NewMonitor(replica.SyncThenRefresh{
		Queue:   queue,
		Replica: rep,
		Log:     log.Component("replica"),
	}, connectivity.Options{
		Interval: cfg.Sync.Interval,
		Logger:   log.Component("connectivity"),
		Metrics:  collector,
	})
	prober := connectivity.NewProber(remote, monitor, cfg.Sync.ProbeInterval, cfg.Sync.RemoteTimeout, nil, log.Component("prober"))

	ledgerSvc := ledger.New(txRunner, repos, queue, monitor, remote, ledger.Options{
		RemoteTimeout: cfg.Sync.RemoteTimeout,
		Logger:        log.Component("ledger"),
		Metrics:       collector,
	})
	custodySvc := custody.NewService(txRunner, repos, queue, monitor, custody.Options{
		WarningDays: cfg.Sync.WarningDays,
		Logger:      log.Component("custody"),
	})
	exporter := report.NewMovementExporter(repos.Movements, repos.Collaborators, time.Local)

	queue.RefreshDepth()
	go monitor.Run(ctx)
	go prober.Run(ctx)

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  time.Second * 10,
		WriteTimeout: time.Second * 30,
		IdleTimeout:  time.Second * 60,
	})
	app.Use(recover.New())

	httpRouter.Router(app, httpRouter.RouterDeps{
		Ledger:    ledgerSvc,
		Custody:   custodySvc,
		Exporter:  exporter,
		Queue:     queue,
		Monitor:   monitor,
		Replica:   rep,
		Metrics:   collector.Handler(),
		JWTSecret: cfg.JWT.Secret,
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
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("apagado del servidor")
	}

	log.Info().Msg("aplicación detenida")
}

// migrate aplica el esquema remoto en cuanto el servidor responde.
func migrate(ctx context.Context, q postgres.Querier, retry time.Duration, log *logger.Logger) {
	for {
		mctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		err := postgres.Migrate(mctx, q)
		cancel()
		if err == nil {
			log.Info().Msg("esquema remoto aplicado")
			return
		}
		log.Warn().Err(err).Msg("no se pudo aplicar el esquema remoto, se reintentará")
		select {
		case <-ctx.Done():
			return
		case <-time.After(retry):
		}
	}
}
