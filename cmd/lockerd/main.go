// Command lockerd runs the locker rental server: an HTTP API that rents
// physical lockers for single-use sessions paid per elapsed time through an
// external Lightning wallet daemon.
package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/satslock/lockerd"
	wallethttp "github.com/satslock/lockerd/http"
	ginapi "github.com/satslock/lockerd/pkg/gin"
)

const startupPingTimeout = 10 * time.Second

// defaultLayout seeds two lockers when no layout file is configured
const defaultLayout = `{"lockers": [{"id": "A1"}, {"id": "A2"}]}`

type config struct {
	listen         string
	walletURL      string
	walletPassword string
	sessionKey     []byte
	tariff         lockerd.Tariff
	maxSession     time.Duration
	reaperInterval time.Duration
	layout         []byte
}

func loadConfig() (*config, error) {
	cfg := &config{
		listen:    envOr("LOCKERD_LISTEN", ":8080"),
		walletURL: envOr("WALLET_URL", wallethttp.DefaultWalletURL),
		layout:    []byte(defaultLayout),
	}

	cfg.walletPassword = os.Getenv("WALLET_PASSWORD")
	if cfg.walletPassword == "" {
		return nil, errors.New("WALLET_PASSWORD is required")
	}

	keyHex := os.Getenv("SESSION_KEY")
	if keyHex == "" {
		return nil, errors.New("SESSION_KEY is required")
	}
	key, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, fmt.Errorf("SESSION_KEY must be hex: %w", err)
	}
	cfg.sessionKey = key

	unitSeconds, err := envInt("TARIFF_UNIT_SECONDS", 60)
	if err != nil {
		return nil, err
	}
	rateSats, err := envInt("TARIFF_RATE_SATS", 10)
	if err != nil {
		return nil, err
	}
	if unitSeconds <= 0 || rateSats <= 0 {
		return nil, errors.New("tariff unit and rate must be positive")
	}
	cfg.tariff = lockerd.Tariff{UnitSeconds: unitSeconds, RateSats: rateSats}

	maxSessionSeconds, err := envInt("MAX_SESSION_SECONDS", 3600)
	if err != nil {
		return nil, err
	}
	cfg.maxSession = time.Duration(maxSessionSeconds) * time.Second

	reaperSeconds, err := envInt("REAPER_INTERVAL_SECONDS", 60)
	if err != nil {
		return nil, err
	}
	cfg.reaperInterval = time.Duration(reaperSeconds) * time.Second

	if path := os.Getenv("LOCKER_LAYOUT"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read locker layout: %w", err)
		}
		cfg.layout = data
	}

	return cfg, nil
}

func envOr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

func envInt(name string, fallback int64) (int64, error) {
	v := os.Getenv(name)
	if v == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", name, err)
	}
	return parsed, nil
}

func run(ctx context.Context, logger *slog.Logger) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ids, err := lockerd.ParseLayout(cfg.layout)
	if err != nil {
		return err
	}

	registry, err := lockerd.NewLockerRegistry(ids)
	if err != nil {
		return err
	}

	authority, err := lockerd.NewSessionAuthority(cfg.sessionKey)
	if err != nil {
		return err
	}

	wallet := wallethttp.NewHTTPWalletClient(&wallethttp.WalletConfig{
		URL:      cfg.walletURL,
		Password: cfg.walletPassword,
	})

	pingCtx, cancel := context.WithTimeout(ctx, startupPingTimeout)
	defer cancel()
	if err := wallet.Ping(pingCtx); err != nil {
		return fmt.Errorf("wallet service check failed: %w", err)
	}
	logger.Info("wallet service reachable", "url", cfg.walletURL)

	service := lockerd.NewReconciliationService(registry, authority, wallet, cfg.tariff,
		lockerd.WithLogger(logger))

	reaper := lockerd.NewExpiryReaper(registry, cfg.maxSession,
		lockerd.WithReaperInterval(cfg.reaperInterval),
		lockerd.WithReaperLogger(logger))
	go reaper.Run(ctx)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	ginapi.Register(router, service)

	server := &http.Server{
		Addr:    cfg.listen,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("lockerd listening", "addr", cfg.listen, "lockers", len(ids))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger); err != nil {
		logger.Error("lockerd failed", "err", err)
		os.Exit(1)
	}
}
