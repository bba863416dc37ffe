package cli

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"booklisting/internal/api"
	"booklisting/internal/config"
	"booklisting/internal/identity"
	"booklisting/internal/listing"
	"booklisting/internal/metrics"
	"booklisting/internal/models"
	"booklisting/internal/objectstore"
	"booklisting/internal/questions"
	"booklisting/internal/ratelimit"
	"booklisting/internal/redis"
	"booklisting/internal/session"
	"booklisting/internal/staging"
	"booklisting/internal/storage"
)

func ServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the wizard HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, opts.dbType)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, dbType string) error {
	log.Printf("dbType: %s", dbType)
	db, err := storage.Open(dbType, cfg)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	if err := storage.Migrate(db, dbType); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rdb, err = redis.NewRedisClient(cfg)
		if err != nil {
			return fmt.Errorf("create redis client: %w", err)
		}
		defer rdb.Close()
	}

	schema, err := questions.Load(cfg.BasicConfig.QuestionsFile)
	if err != nil {
		return fmt.Errorf("load questions: %w", err)
	}
	previews, err := staging.NewDiskPreviews(cfg.BasicConfig.StagingDir, "/api/previews")
	if err != nil {
		return err
	}
	if err := previews.Purge(); err != nil {
		log.Printf("purge stale previews: %v", err)
	}
	objects, err := objectstore.Open(ctx, cfg.ObjectStore)
	if err != nil {
		return fmt.Errorf("open object store: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	pipeline := listing.NewPipeline(objects, storage.NewDocumentStore(db), listing.Config{
		Collection:    models.ListingsCollection,
		Concurrency:   cfg.BasicConfig.UploadConcurrency,
		UploadTimeout: cfg.BasicConfig.UploadTimeout(),
	}, m)
	sessions := session.NewManager(schema, previews, pipeline, session.Options{
		IdleTimeout: cfg.BasicConfig.SessionIdle(),
		Limiter:     ratelimit.PerMinute(cfg.BasicConfig.SubmitRatePerMinute, cfg.BasicConfig.SubmitBurst),
		Metrics:     m,
		Cache:       rdb,
	})
	defer sessions.Close()
	sessions.StartSweeper(ctx, cfg.BasicConfig.SessionSweep())
	sessions.ListenInvalidations(ctx)

	handlerOpts := api.Options{
		Previews:     previews,
		Gatherer:     reg,
		CookieMaxAge: int(cfg.BasicConfig.SessionIdle().Seconds()),
	}
	if cfg.ObjectStore.Driver == "file" {
		handlerOpts.ObjectsDir = cfg.ObjectStore.BaseDir
	}
	handlers := api.NewHandler(sessions, identity.NewGuard(), handlerOpts)

	router := gin.Default()
	handlers.RegisterRoutes(router)

	srv := &http.Server{Addr: cfg.BasicConfig.ServerAddress, Handler: router}
	errCh := make(chan error, 1)
	go func() {
		log.Printf("listening on %s", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server stopped: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Printf("server stopped")
	return nil
}
