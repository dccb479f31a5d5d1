package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"staffdesk.org/internal/audit"
	"staffdesk.org/internal/auth"
	"staffdesk.org/internal/config"
	"staffdesk.org/internal/directory"
	"staffdesk.org/internal/httpapi"
	"staffdesk.org/internal/identity"
	"staffdesk.org/internal/obs"
	"staffdesk.org/internal/store/pg"
	"staffdesk.org/internal/users"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	configPath := flag.String("config", os.Getenv("STAFFDESK_CONFIG"), "path to YAML config")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "staffdesk-api: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	log, err := obs.InitLogger(cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	obs.Init()
	obs.InitBuildInfo(version, commit)

	store, err := pg.Open(cfg.PG.DSN)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer store.Close()

	verifier, err := newVerifier(cfg.Auth)
	if err != nil {
		return err
	}

	dir, err := directory.NewService(store)
	if err != nil {
		return err
	}
	gate, err := auth.NewGate(verifier, dir)
	if err != nil {
		return err
	}
	userSvc, err := users.NewService(store, dir)
	if err != nil {
		return err
	}

	var profiles identity.ProfileLookup = store
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password})
		defer rdb.Close()
		profiles = identity.NewCachedProfiles(rdb, identity.Chain(store), cfg.Redis.ProfileTTL)
	}
	recorder := audit.NewRecorder(store, audit.WithProfiles(profiles), audit.WithLogger(log))
	query, err := audit.NewQuery(gate, store)
	if err != nil {
		return err
	}

	ready := httpapi.ReadyProbe{DB: store.DB()}
	api, err := httpapi.New(httpapi.Deps{
		Gate:      gate,
		Directory: dir,
		Users:     userSvc,
		Recorder:  recorder,
		Audit:     query,
		Ready:     ready,
	}, httpapi.Options{
		Version:       version,
		RateBurst:     cfg.HTTP.RateBurst,
		RatePerSec:    cfg.HTTP.RatePerSec,
		MaxBodyBytes:  cfg.HTTP.MaxBodyBytes,
		CORSOrigins:   cfg.HTTP.CORSOrigins,
		DetachedAudit: cfg.Audit.Detached,
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 2)

	var grpcSrv *grpc.Server
	if cfg.GRPC.Addr != "" {
		lis, err := net.Listen("tcp", cfg.GRPC.Addr)
		if err != nil {
			return fmt.Errorf("listen grpc: %w", err)
		}
		grpcSrv = grpc.NewServer()
		health := httpapi.NewHealthServer(ready)
		health.Register(grpcSrv)
		go health.Run(ctx, 5*time.Second)
		go func() {
			log.Info("grpc health listening", zap.String("addr", cfg.GRPC.Addr))
			if err := grpcSrv.Serve(lis); err != nil {
				errCh <- fmt.Errorf("grpc serve: %w", err)
			}
		}()
	}

	go func() {
		log.Info("starting staffdesk-api",
			zap.String("version", version),
			zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("listen: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		log.Error("server failed", zap.Error(err))
		stop()
	}
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}
	if err := recorder.Wait(shutdownCtx); err != nil {
		log.Warn("pending audit writes abandoned", zap.Error(err))
	}
	log.Info("stopped")
	return nil
}

func newVerifier(cfg config.AuthConfig) (*identity.JWTVerifier, error) {
	opts := []identity.VerifierOption{
		identity.WithIssuer(cfg.Issuer),
		identity.WithAudience(cfg.Audience),
	}
	if cfg.RSAPublicKeyFile != "" {
		pemData, err := os.ReadFile(cfg.RSAPublicKeyFile)
		if err != nil {
			return nil, fmt.Errorf("read rsa public key: %w", err)
		}
		opts = append(opts, identity.WithRSAPublicKeyPEM(pemData))
	}
	if cfg.HMACSecret != "" {
		opts = append(opts, identity.WithHMACSecret(cfg.HMACSecret))
	}
	return identity.NewJWTVerifier(opts...)
}
