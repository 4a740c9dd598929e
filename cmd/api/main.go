package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	firebase "firebase.google.com/go/v4"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"screenplay/api/internal/app"
	"screenplay/api/internal/auth"
	"screenplay/api/internal/config"
	"screenplay/api/internal/email"
	"screenplay/api/internal/export"
	"screenplay/api/internal/gitrepo"
	"screenplay/api/internal/logger"
	"screenplay/api/internal/search"
	"screenplay/api/internal/session"
	"screenplay/api/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.New(logger.Config{Level: cfg.LogLevel, Encoding: cfg.LogEncoding})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	ctx := context.Background()
	log.Info("starting screenplay api", cfg.LogFields()...)

	var fbApp *firebase.App
	if cfg.FirebaseProjectID != "" {
		var opts []option.ClientOption
		if cfg.FirebaseCredentialsFile != "" {
			opts = append(opts, option.WithCredentialsFile(cfg.FirebaseCredentialsFile))
		}
		created, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.FirebaseProjectID}, opts...)
		if err != nil {
			return fmt.Errorf("init firebase: %w", err)
		}
		fbApp = created
	}

	deps := app.Dependencies{Logger: log}

	switch cfg.Store {
	case config.StorePostgres:
		pool := store.DefaultPoolConfig()
		pool.MaxOpenConns = cfg.DBMaxConns
		db, err := store.Open(ctx, cfg.DatabaseURL, pool)
		if err != nil {
			return fmt.Errorf("database connection failed: %w", err)
		}
		defer db.Close()
		applied, err := store.ApplyMigrations(ctx, db, os.DirFS(cfg.MigrationsDir))
		if err != nil {
			return fmt.Errorf("migrations failed: %w", err)
		}
		log.Info("migrations applied", zap.Strings("versions", applied))
		deps.Store = store.NewPostgresStore(db)
	case config.StoreFirestore:
		client, err := fbApp.Firestore(ctx)
		if err != nil {
			return fmt.Errorf("firestore client: %w", err)
		}
		fs := store.NewFirestoreStore(client)
		defer fs.Close()
		deps.Store = fs
	default:
		log.Warn("using in-memory document store; data is lost on restart")
		deps.Store = store.NewMemoryStore()
	}

	if fbApp != nil && cfg.FirebaseAuth {
		client, err := fbApp.Auth(ctx)
		if err != nil {
			return fmt.Errorf("firebase auth client: %w", err)
		}
		deps.Verifier = auth.NewFirebaseVerifier(client)
	}

	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisStore, err := session.NewRedisStore(cfg.RedisURL, cfg.UnlockTTL)
		if err != nil {
			return fmt.Errorf("redis connection failed: %w", err)
		}
		defer redisStore.Close()
		deps.Unlocks = redisStore
		log.Info("using redis for viewer unlocks")
	}

	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meili := search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, log)
		defer meili.Close()
		deps.Index = meili
	}

	if cfg.ArchiveDir != "" {
		if err := os.MkdirAll(cfg.ArchiveDir, 0o755); err != nil {
			return fmt.Errorf("create archive dir: %w", err)
		}
		deps.Archive = gitrepo.New(cfg.ArchiveDir, log)
	}

	exportOpts := []export.Option{export.WithLogger(log)}
	if cfg.MinioEndpoint != "" {
		artifacts, err := export.NewMinioArtifacts(ctx, export.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
			LinkTTL:   cfg.MinioLinkTTL,
		})
		if err != nil {
			return fmt.Errorf("minio: %w", err)
		}
		exportOpts = append(exportOpts, export.WithArtifacts(artifacts))
	}
	deps.Exporter = export.NewService(exportOpts...)

	deps.Mailer = email.NewService(email.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
		AppURL:   cfg.AppURL,
	})

	service := app.New(app.Config{
		AdminEmail:       cfg.AdminEmail,
		FallbackPassword: cfg.FallbackPassword,
		JWTSecret:        cfg.JWTSecret,
		AccessTTL:        cfg.AccessTTL,
		UnlockTTL:        cfg.UnlockTTL,
	}, deps)

	if deps.Index != nil && cfg.AdminEmail != "" {
		go func() {
			system := auth.WithIdentity(context.Background(), auth.Identity{UID: "system", Email: cfg.AdminEmail})
			if err := service.Reindex(system); err != nil {
				log.Warn("startup reindex failed", zap.Error(err))
			}
		}()
	}

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin, log)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("screenplay api listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case sig := <-sigCh:
		log.Info("shutting down", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
