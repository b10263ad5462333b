package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/0gfoundation/0g-vault-2fa/internal/api"
	"github.com/0gfoundation/0g-vault-2fa/internal/authz"
	"github.com/0gfoundation/0g-vault-2fa/internal/bot"
	"github.com/0gfoundation/0g-vault-2fa/internal/config"
	"github.com/0gfoundation/0g-vault-2fa/internal/health"
	"github.com/0gfoundation/0g-vault-2fa/internal/identity"
	"github.com/0gfoundation/0g-vault-2fa/internal/signer"
	"github.com/0gfoundation/0g-vault-2fa/internal/telegram"
	"github.com/0gfoundation/0g-vault-2fa/internal/transfer"
)

func main() {
	os.Exit(run())
}

func run() int {
	log, _ := zap.NewProduction()
	defer log.Sync() //nolint:errcheck

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("config load failed", zap.Error(err))
	}
	if cfg.Log.Development {
		log, _ = zap.NewDevelopment()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── Signing key ───────────────────────────────────────────────────────────
	key, err := signer.Load(cfg.Signer)
	if err != nil {
		log.Fatal("signing key unavailable", zap.Error(err))
	}
	log.Info("signing key loaded",
		zap.String("address", key.Address.Hex()),
		zap.String("source", key.Source),
	)

	// ── Identity store ────────────────────────────────────────────────────────
	store, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Fatal("identity store init failed", zap.String("backend", cfg.Store.Backend), zap.Error(err))
	}
	defer store.Close() //nolint:errcheck
	dir := identity.NewDirectory(store, log)

	// ── Issuer ────────────────────────────────────────────────────────────────
	domain := transfer.Domain{
		Name:              cfg.Domain.Name,
		Version:           cfg.Domain.Version,
		ChainID:           cfg.ChainID(),
		VerifyingContract: cfg.VaultAddress(),
	}
	issuer, err := authz.NewIssuer(dir, key.Private, domain, cfg.Asset.Decimals, log)
	if err != nil {
		log.Fatal("issuer init failed", zap.Error(err))
	}
	log.Info("signing domain",
		zap.String("name", domain.Name),
		zap.String("version", domain.Version),
		zap.String("chain_id", domain.ChainID.String()),
		zap.String("verifying_contract", domain.VerifyingContract.Hex()),
	)

	// ── Telegram ──────────────────────────────────────────────────────────────
	var tg *telegram.Transport
	botUsername := cfg.Telegram.Username
	if cfg.Telegram.Enabled {
		token, err := telegram.LoadToken(cfg.Telegram)
		if err != nil {
			log.Fatal("telegram token unavailable", zap.Error(err))
		}
		tg, err = telegram.New(token, log)
		if err != nil {
			log.Fatal("telegram init failed", zap.Error(err))
		}
		if botUsername == "" {
			botUsername = tg.Username()
		}
	}

	// ── Dispatcher ────────────────────────────────────────────────────────────
	hs := health.New(log)
	halted := make(chan error, 1)
	disp := bot.NewDispatcher(dir, issuer, bot.Options{
		BotUsername:  botUsername,
		Vault:        domain.VerifyingContract,
		RequireProof: cfg.Identity.RequireProof,
		Limiter:      bot.NewLimiter(cfg.Limits.PerMinute, cfg.Limits.Burst),
		OnHalt: func(err error) {
			hs.SetServing(false)
			halted <- err
		},
	}, log)

	var wg sync.WaitGroup
	if tg != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tg.Run(ctx, disp)
		}()
	}

	// ── gRPC health ───────────────────────────────────────────────────────────
	if cfg.Server.GRPCPort != 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := hs.Serve(ctx, cfg.Server.GRPCPort); err != nil {
				log.Error("grpc health server error", zap.Error(err))
			}
		}()
	}

	// ── HTTP server ───────────────────────────────────────────────────────────
	var srv *http.Server
	if cfg.Server.Port != 0 {
		r := gin.New()
		r.Use(gin.Recovery())
		api.NewHandler(disp, issuer, dir, log).Register(r, cfg.Server.APIToken)

		srv = &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			log.Info("HTTP server starting", zap.Int("port", cfg.Server.Port))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Fatal("HTTP server error", zap.Error(err))
			}
		}()
	}

	hs.SetServing(true)

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)

	exitCode := 0
	select {
	case sig := <-quit:
		log.Info("shutting down...", zap.String("signal", sig.String()))
	case err := <-halted:
		log.Error("signing failure; stopping service", zap.Error(err))
		exitCode = 1
	}

	hs.SetServing(false)
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server shutdown error", zap.Error(err))
		}
	}
	wg.Wait()
	log.Info("shutdown complete")
	return exitCode
}
