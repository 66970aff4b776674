// Command balota-server starts the ballot session and receipt verification HTTP server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lmoreno/balota/internal/config"
	pkgcrypto "github.com/lmoreno/balota/internal/crypto"
	"github.com/lmoreno/balota/internal/limiter"
	"github.com/lmoreno/balota/internal/migrate"
	"github.com/lmoreno/balota/internal/receipt"
	"github.com/lmoreno/balota/internal/repository/postgres"
	httpserver "github.com/lmoreno/balota/internal/server/http"
	"github.com/lmoreno/balota/internal/service"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// main parses configuration, runs migrations, and starts the HTTP server.
func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(2)
	}

	logger, _ := zap.NewProduction()
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", cfg.Addr),
	)

	signer, err := loadSigner(cfg, logger)
	if err != nil {
		logger.Fatal("load signing key", zap.Error(err))
	}

	// Context with OS signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := migrate.Up(ctx, cfg.DSN); err != nil {
		logger.Fatal("migrate up", zap.Error(err))
	}

	// DB pool
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		logger.Fatal("pgxpool.New", zap.Error(err))
	}
	defer pool.Close()

	// Repositories
	db := &postgres.DB{Pool: pool}
	voterRepo := postgres.NewVoterRepo(db)
	ballotRepo := postgres.NewBallotRepo(db)
	sessionRepo := postgres.NewSessionRepo(db)

	loginLim := limiter.NewPG(pool, 15*time.Minute, 5, 15*time.Minute)
	openLim := limiter.NewOpenPG(pool, time.Hour, cfg.OpensPerHour)

	// Services
	receipts := receipt.New(signer)
	authSvc := service.NewAuthService(voterRepo, []byte(cfg.JWTKey), cfg.AccessTTL, loginLim)
	sessionSvc := service.NewSessionManager(sessionRepo, ballotRepo, receipts, openLim, service.Policy{
		Duration:      cfg.SessionDuration,
		Extension:     cfg.SessionExtension,
		MaxExtensions: cfg.MaxExtensions,
		Warning:       cfg.WarningThreshold,
		Critical:      cfg.CriticalThreshold,
		EnforceIP:     cfg.EnforceIP,
	})
	verifierSvc := service.NewVerifier(receipts, ballotRepo)

	app := httpserver.New(authSvc, sessionSvc, verifierSvc, signer, []byte(cfg.JWTKey), logger)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           app.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// Background sweep closes sessions whose deadline passed without a vote.
	go sweepExpired(ctx, sessionRepo, cfg.SweepInterval, logger)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.Addr))
		errCh <- srv.ListenAndServe()
	}()

	// Wait for stop
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown", zap.Error(err))
		}
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}

	logger.Info("shutdown complete")
}

// loadSigner loads the receipt signing key, or generates an ephemeral one in
// dev mode. Receipts signed with an ephemeral key stop verifying on restart.
func loadSigner(cfg config.Config, logger *zap.Logger) (*pkgcrypto.Signer, error) {
	if cfg.SigningKeyFile != "" {
		return pkgcrypto.LoadSignerFile(cfg.SigningKeyFile)
	}
	logger.Warn("no signing key configured, generating an ephemeral one (dev only)")
	return pkgcrypto.GenerateSigner(2048)
}

func sweepExpired(ctx context.Context, repo *postgres.SessionRepo, interval time.Duration, logger *zap.Logger) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := repo.ExpireDue(ctx, time.Now())
			if err != nil {
				logger.Error("expiry sweep", zap.Error(err))
				continue
			}
			if n > 0 {
				logger.Info("expired stale sessions", zap.Int64("count", n))
			}
		}
	}
}
