package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	clts "whalewatch/clients"
	"whalewatch/config"
	"whalewatch/internal/app"
)

const (
	// startupTimeout bounds the initial API calls at boot.
	startupTimeout = 30 * time.Second

	// wsMarketLimit is how many top volume markets to subscribe to.
	wsMarketLimit = 20

	// wsRetryDelay is the pause between websocket reconnect attempts.
	wsRetryDelay = 10 * time.Second
)

func main() {
	// Optional .env for local development.
	_ = godotenv.Load()

	cfg := config.Load()

	var logger *zap.Logger
	var err error
	if cfg.IsProd {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid config", zap.Error(err))
	}
	logger.Info("starting whalewatch", zap.Bool("isProd", cfg.IsProd))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("instantiating clients")
	clients := clts.NewClients(logger, cfg)
	defer clients.Notifier.Close()

	tracker := app.NewTracker(logger, cfg, clients.Polymarket, clients.PolymarketEvents, clients.Notifier)
	if err := tracker.Start(ctx); err != nil {
		logger.Fatal("tracker start failed", zap.Error(err))
	}
	defer tracker.Stop()

	go runMarketStream(ctx, logger, clients, tracker)

	if cfg.HealthServer.Enabled {
		statsServer := app.NewStatsServer(logger, tracker, cfg.HealthServer.Port)
		go func() {
			if err := statsServer.Start(); err != nil {
				logger.Error("stats server exited", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = statsServer.Shutdown(shutdownCtx)
		}()
	}

	<-ctx.Done()
	logger.Info("shutting down")
}

// runMarketStream keeps the market websocket alive, resubscribing to the
// current top volume markets after every drop.
func runMarketStream(ctx context.Context, logger *zap.Logger, clients *clts.Clients, tracker *app.Tracker) {
	for {
		if ctx.Err() != nil {
			return
		}

		assetIDs, err := fetchTopAssetIDs(ctx, clients)
		if err != nil {
			logger.Warn("fetching top markets failed", zap.Error(err))
		}
		if len(assetIDs) == 0 {
			if !sleepCtx(ctx, wsRetryDelay) {
				return
			}
			continue
		}

		if err := clients.PolymarketEvents.ConnectMarket(ctx, assetIDs); err != nil {
			logger.Warn("market ws connect failed", zap.Error(err))
			if !sleepCtx(ctx, wsRetryDelay) {
				return
			}
			continue
		}
		logger.Info("market ws connected", zap.Int("assets", len(assetIDs)))

		// Block until the connection drops, then loop to reconnect.
		select {
		case <-ctx.Done():
			_ = clients.PolymarketEvents.Close()
			return
		case err, ok := <-clients.PolymarketEvents.Errors():
			if ok && err != nil {
				logger.Warn("market ws error, reconnecting", zap.Error(err))
			}
			_ = clients.PolymarketEvents.Close()
		}

		if !sleepCtx(ctx, wsRetryDelay) {
			return
		}
	}
}

func fetchTopAssetIDs(ctx context.Context, clients *clts.Clients) ([]string, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, startupTimeout)
	defer cancel()

	markets, err := clients.Polymarket.GetTopMarketsByVolume(fetchCtx, wsMarketLimit)
	if err != nil {
		return nil, err
	}
	var assetIDs []string
	for _, m := range markets {
		assetIDs = append(assetIDs, m.GetTokenIDs()...)
	}
	return assetIDs, nil
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
