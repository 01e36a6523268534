package discord

import (
	"fmt"
	"strings"
	"time"

	"whalewatch/clients/notifier"
	"whalewatch/config"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// DiscordClient sends whale trade signals to a Discord channel.
// Implements notifier.Notifier.
type DiscordClient struct {
	logger    *zap.Logger
	session   *discordgo.Session
	channelID string
}

func NewDiscordClient(logger *zap.Logger, cfg *config.Config) *DiscordClient {
	if logger == nil {
		logger = zap.NewNop()
	}

	token := cfg.Discord.BotToken
	channelID := cfg.Discord.ChannelID
	if token == "" || channelID == "" {
		logger.Warn("discord not configured, whale alerts limited to log output")
		return &DiscordClient{
			logger:    logger,
			channelID: channelID,
		}
	}

	session, err := discordgo.New("Bot " + token)
	if err != nil {
		logger.Error("failed to create discord session", zap.Error(err))
		return &DiscordClient{
			logger:    logger,
			channelID: channelID,
		}
	}

	logger.Info("discord bot initialized", zap.String("channelID", channelID))

	return &DiscordClient{
		logger:    logger,
		session:   session,
		channelID: channelID,
	}
}

// IsEnabled reports whether the client has a live session to send through.
func (dc *DiscordClient) IsEnabled() bool {
	return dc.session != nil
}

// SendWhaleTradeAlert sends a rich embedded whale trade signal.
func (dc *DiscordClient) SendWhaleTradeAlert(alert notifier.WhaleTradeAlert) {
	if dc.session == nil {
		return
	}

	embed := dc.buildWhaleTradeEmbed(alert)
	_, err := dc.session.ChannelMessageSendEmbed(dc.channelID, embed)
	if err != nil {
		dc.logger.Error("failed to send discord alert", zap.Error(err))
		return
	}

	dc.logger.Debug("sent discord whale alert",
		zap.String("whale", alert.WhaleAddress),
		zap.Float64("notional", alert.Notional),
	)
}

func (dc *DiscordClient) buildWhaleTradeEmbed(alert notifier.WhaleTradeAlert) *discordgo.MessageEmbed {
	color := 0x2ecc71 // green for buys
	if strings.EqualFold(alert.Side, "SELL") {
		color = 0xe74c3c
	}

	name := alert.WhaleName
	if name == "" {
		name = shortAddress(alert.WhaleAddress)
	}

	title := fmt.Sprintf("🐋 %s %s %s", tierBadge(alert.Tier), name, strings.ToUpper(alert.Side))

	fields := []*discordgo.MessageEmbedField{
		{
			Name:   "Market",
			Value:  nz(alert.MarketTitle, alert.ConditionID),
			Inline: false,
		},
		{
			Name:   "Outcome",
			Value:  nz(alert.Outcome, "—"),
			Inline: true,
		},
		{
			Name:   "Size",
			Value:  fmt.Sprintf("%.0f @ %.2f¢ ($%.0f)", alert.Shares, alert.Price*100, alert.Notional),
			Inline: true,
		},
	}

	if alert.PriceAtAlert > 0 {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name:   "Mark",
			Value:  fmt.Sprintf("%.2f¢", alert.PriceAtAlert*100),
			Inline: true,
		})
	}

	embed := &discordgo.MessageEmbed{
		Title:  title,
		Color:  color,
		Fields: fields,
		Footer: &discordgo.MessageEmbedFooter{
			Text: shortAddress(alert.WhaleAddress),
		},
		Timestamp: alert.Timestamp.UTC().Format(time.RFC3339),
	}

	if alert.MarketSlug != "" {
		embed.URL = "https://polymarket.com/event/" + alert.MarketSlug
	}

	return embed
}

// Close shuts down the Discord session.
func (dc *DiscordClient) Close() error {
	if dc.session == nil {
		return nil
	}
	return dc.session.Close()
}

func tierBadge(tier string) string {
	switch tier {
	case "top10":
		return "[TOP 10]"
	case "top50":
		return "[TOP 50]"
	default:
		return "[TRACKED]"
	}
}

func shortAddress(s string) string {
	if len(s) <= 12 {
		return s
	}
	return s[:6] + "…" + s[len(s)-4:]
}

func nz(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}
