package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"wavebot/internal/bot"
	"wavebot/internal/command"
	"wavebot/internal/config"
	"wavebot/internal/continuation"
	"wavebot/internal/dispatch"
	"wavebot/internal/event"
	"wavebot/internal/logging"
	"wavebot/internal/permission"
	"wavebot/internal/plugins"
	"wavebot/internal/storage"
	"wavebot/internal/transport"
)

func main() {
	cfg, err := config.New()
	if err != nil {
		logging.Setup("info", "")
		log.Fatal().Err(err).Msg("configuration failed")
	}
	logging.Setup(cfg.LogLevel, cfg.LogFile)

	store, err := storage.New(cfg.StoragePath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.StoragePath).Msg("storage init failed")
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn().Err(err).Msg("storage close failed")
		}
	}()

	var whitelist []string
	if cfg.WhitelistEnabled {
		whitelist = cfg.Whitelist
	}
	resolver := permission.NewResolver(cfg.BotAdmins, cfg.AdminOnly, whitelist)

	commands := command.NewRegistry()
	cooldowns := command.NewCooldownLedger()
	events := event.NewRegistry()
	replies := continuation.NewRegistry("reply", cfg.ReplyTTL)
	reactions := continuation.NewRegistry("reaction", cfg.ReactionTTL)

	if err := plugins.Install(commands, events); err != nil {
		log.Fatal().Err(err).Msg("plugin install failed")
	}

	bridge := transport.NewBridge(cfg.BridgeURL, cfg.BridgeToken, cfg.SendRate)

	dispatcher := dispatch.New(bridge, store, resolver, commands, cooldowns, events, replies, reactions,
		dispatch.Options{
			Prefix:                  cfg.Prefix,
			BotID:                   cfg.BotID,
			AutoRead:                cfg.AutoRead,
			DeleteCommandMessages:   cfg.DeleteCommandMessages,
			EventsAfterContinuation: cfg.EventsAfterContinuation,
		})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go command.RunCooldownCleaner(ctx, cooldowns)

	go func() {
		if err := bridge.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("bridge stopped")
			cancel()
		}
	}()

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		s := <-sig
		log.Info().Str("signal", s.String()).Msg("shutting down")
		cancel()
	}()

	log.Info().Str("bot_id", cfg.BotID).Str("prefix", cfg.Prefix).
		Int("commands", len(commands.All())).Msg("wavebot started")

	if err := bot.New(bridge.Events(), dispatcher).Run(ctx); err != nil && ctx.Err() == nil {
		log.Error().Err(err).Msg("event loop stopped")
	}
	log.Info().Msg("wavebot stopped")
}
