package clients

import (
	"whalewatch/clients/discord"
	"whalewatch/clients/notifier"
	"whalewatch/clients/polymarketapi"
	"whalewatch/clients/polymarketevents"
	"whalewatch/config"

	"go.uber.org/zap"
)

// Clients bundles the external collaborators. Constructed once at process
// start and injected into the tracker; no ambient global state.
type Clients struct {
	Logger *zap.Logger

	Discord          *discord.DiscordClient
	Notifier         notifier.Notifier
	Polymarket       *polymarketapi.PolymarketApiClient
	PolymarketEvents *polymarketevents.PolymarketEventsClient
}

func NewClients(logger *zap.Logger, cfg *config.Config) *Clients {
	discordClient := discord.NewDiscordClient(logger, cfg)

	var notifiers []notifier.Notifier
	notifiers = append(notifiers, notifier.NewLogNotifier(logger))
	if discordClient.IsEnabled() {
		notifiers = append(notifiers, discordClient)
	}

	return &Clients{
		Logger:           logger,
		Discord:          discordClient,
		Notifier:         notifier.NewMultiNotifier(notifiers...),
		Polymarket:       polymarketapi.NewPolymarketApiClient(logger, cfg),
		PolymarketEvents: polymarketevents.NewPolymarketEventsClient(logger, cfg.Polymarket.MarketWSURL),
	}
}
