package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"securesign/internal/authclient"
	"securesign/internal/config"
	"securesign/internal/cryptoclient"
	"securesign/internal/docclient"
	"securesign/internal/ledger"
	"securesign/internal/ledgerclient"
	"securesign/internal/lifecycle"
	"securesign/internal/registry"
	"securesign/internal/server"
	"securesign/internal/session"
	"securesign/internal/standalone"
	"securesign/internal/util"
	"securesign/pkg/queue"
	"securesign/pkg/storage"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	jwtLeeway, err := config.ParseJWTLeeway(cfg.JWTLeeway)
	if err != nil {
		log.Fatalf("failed to parse JWT leeway: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)

	trustedProxies, err := util.NewTrustedProxies(cfg.TrustedProxyCIDRs)
	if err != nil {
		log.Fatalf("failed to parse trusted proxies: %v", err)
	}

	store, err := buildRegistryStore(cfg)
	if err != nil {
		log.Fatalf("failed to init registry store: %v", err)
	}
	reg := registry.New(store)

	payloads, err := buildPayloadStore(cfg)
	if err != nil {
		log.Fatalf("failed to init payload store: %v", err)
	}

	var (
		auth      session.Authenticator
		docs      lifecycle.DocumentStore
		signer    lifecycle.Signer
		ledgerCap lifecycle.Ledger
	)
	if cfg.Mode == "standalone" {
		if cfg.JWTSecret == "" {
			log.Fatalf("standalone mode requires jwtSecret")
		}
		secret := []byte(cfg.JWTSecret)
		auth = standalone.NewAuth(secret, cfg.DemoUserEmail, cfg.DemoUserBcryptHash)
		docs = standalone.NewStorage()
		signer = standalone.NewSigner(secret)
		ledgerCap = standalone.NewLedger()
	} else {
		auth = session.RemoteAuth{Client: authclient.NewClient(cfg.AuthServiceURL)}
		docs = lifecycle.RemoteDocumentStore{Client: docclient.NewClient(cfg.DocumentServiceURL)}
		signer = lifecycle.RemoteSigner{Client: cryptoclient.NewClient(cfg.CryptoServiceURL)}
		ledgerCap = lifecycle.RemoteLedger{Client: ledgerclient.NewClient(cfg.LedgerServiceURL)}
	}

	tokens, err := session.NewTokenStore(cfg.StateDir)
	if err != nil {
		log.Fatalf("failed to init token store: %v", err)
	}
	sessions := session.NewManager(auth, tokens, []byte(cfg.JWTSecret), jwtLeeway)
	state := sessions.Restore()
	slog.Info("session restored", "state", string(state))

	q, err := buildLedgerQueue(cfg)
	if err != nil {
		log.Fatalf("failed to init ledger queue: %v", err)
	}
	recorder := ledger.NewRecorder(q, ledgerCap, logger, cfg.LedgerWorkers)

	orchestrator := lifecycle.New(reg, payloads, docs, signer, ledgerCap, recorder, logger)

	httpServer, err := server.New(server.Config{
		Sessions:                   sessions,
		Lifecycle:                  orchestrator,
		RedisAddr:                  cfg.RedisAddr,
		RedisPassword:              cfg.RedisPassword,
		RegisterRateLimitPerMinute: cfg.RegisterRateLimitPerMinute,
		LoginRateLimitPerMinute:    cfg.LoginRateLimitPerMinute,
		UploadRateLimitPerMinute:   cfg.UploadRateLimitPerMinute,
		MaxUploadBytes:             cfg.MaxUploadBytes,
		AllowedExtensions:          cfg.AllowedExtensions,
		TrustedProxies:             trustedProxies,
	})
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := recorder.Run(ctx); err != nil {
			logger.Error("ledger recorder stopped", "err", err)
		}
	}()

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		_ = recorder.Close()
	}()

	slog.Info("securesign listening", "addr", addr, "mode", cfg.Mode)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}

func buildRegistryStore(cfg config.FileConfig) (registry.Store, error) {
	switch cfg.RegistryBackend {
	case "postgres":
		return registry.NewGormStore(cfg.DatabaseURL)
	case "file":
		return registry.NewFileStore(cfg.StateDir)
	default:
		return registry.NewMemoryStore(), nil
	}
}

func buildPayloadStore(cfg config.FileConfig) (storage.PayloadStore, error) {
	switch cfg.PayloadBackend {
	case "minio":
		return storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
	case "dir":
		dir := cfg.PayloadDir
		if dir == "" {
			dir = filepath.Join(cfg.StateDir, "payloads")
		}
		return storage.NewFileStore(dir)
	default:
		return storage.NewMemoryStore(), nil
	}
}

func buildLedgerQueue(cfg config.FileConfig) (queue.Queue, error) {
	switch cfg.LedgerQueueBackend {
	case "redis":
		return queue.NewRedisQueue(queue.RedisQueueConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			Stream:   cfg.LedgerQueueStream,
			Group:    cfg.LedgerQueueGroup,
		})
	case "amqp":
		return queue.NewAMQPQueue(cfg.AMQPURL, cfg.LedgerQueueStream)
	default:
		return nil, nil
	}
}
