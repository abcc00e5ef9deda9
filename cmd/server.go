package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/example/land-scheduler/internal/analytics"
	"github.com/example/land-scheduler/internal/areas"
	"github.com/example/land-scheduler/internal/auth"
	"github.com/example/land-scheduler/internal/booking"
	"github.com/example/land-scheduler/internal/cache"
	"github.com/example/land-scheduler/internal/config"
	"github.com/example/land-scheduler/internal/customers"
	"github.com/example/land-scheduler/internal/db"
	"github.com/example/land-scheduler/internal/dispatch"
	"github.com/example/land-scheduler/internal/ledger"
	"github.com/example/land-scheduler/internal/migrate"
	"github.com/example/land-scheduler/internal/processor"
	"github.com/example/land-scheduler/internal/slots"
	"github.com/example/land-scheduler/internal/watcher"
	"github.com/example/land-scheduler/internal/web"
)

func newServerCmd() *cobra.Command {
	var migrateUp bool

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Run the API server and the reservation dispatch engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}

			log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
			slog.SetDefault(log)

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			d, err := db.Open(ctx, cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer d.Close()

			if err := d.Ping(ctx); err != nil {
				return fmt.Errorf("db ping: %w", err)
			}

			if migrateUp {
				if err := migrate.Up(ctx, d); err != nil {
					return err
				}
			}

			authStore := auth.NewStore(d, cfg.TokenHashKey, cfg.TokenBlockKey, cfg.TokenTTL)
			areaRepo := areas.NewRepo(d)
			customerRepo := customers.NewRepo(d)
			slotRepo := slots.NewRepo(d)
			ledgerRepo := ledger.NewRepo(d)

			pool := &dispatch.Pool{
				Ledger:    ledgerRepo,
				Customers: customerRepo,
				Client:    booking.New(cfg.BookingURL, cfg.BookingAPIKey, cfg.BookingTimeout),
				Workers:   cfg.WorkerCount,
				Retry: dispatch.Backoff{
					MaxAttempts: cfg.RetryMax,
					Base:        cfg.RetryBaseDelay,
					Cap:         8 * cfg.RetryBaseDelay,
				},
				Log: log,
			}

			proc := &processor.Processor{
				Slots:     slotRepo,
				Customers: customerRepo,
				Pool:      pool,
				Timeout:   cfg.DispatchTimeout,
				Log:       log,
			}

			w := &watcher.Watcher{
				Slots:      slotRepo,
				Processor:  proc,
				Interval:   cfg.PollInterval,
				StaleAfter: cfg.ClaimStaleAfter,
				Log:        log,
			}
			go func() { _ = w.Run(ctx) }()

			svc := &analytics.Service{
				Store:    analytics.NewPostgresStore(d),
				CacheTTL: cfg.SummaryCacheTTL,
				Log:      log,
			}
			if cfg.RedisAddr != "" {
				rc, err := cache.NewRedisCache(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
				if err != nil {
					return fmt.Errorf("redis: %w", err)
				}
				defer rc.Close()
				svc.Cache = rc
			}

			ws := &web.Server{
				Auth:      authStore,
				Areas:     areaRepo,
				Customers: customerRepo,
				Slots:     slotRepo,
				Attempts:  ledgerRepo,
				Analytics: svc,
				Log:       log,
			}

			log.Info("starting", "addr", cfg.ListenAddr, "workers", cfg.WorkerCount)
			return web.Start(ctx, cfg.ListenAddr, ws.Routes())
		},
	}

	cmd.Flags().BoolVar(&migrateUp, "migrate", true, "run database migrations on startup")
	cmd.Flags().Lookup("migrate").NoOptDefVal = "true"
	return cmd
}
