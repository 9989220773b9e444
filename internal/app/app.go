package app

import (
	"context"
	"fmt"
	"time"

	"github.com/NasaVasa/coinwatch/internal/config"
	"github.com/NasaVasa/coinwatch/internal/delivery/telegram"
	"github.com/NasaVasa/coinwatch/internal/delivery/web"
	"github.com/NasaVasa/coinwatch/internal/domain"
	"github.com/NasaVasa/coinwatch/internal/infra/cache"
	"github.com/NasaVasa/coinwatch/internal/infra/coingecko"
	"github.com/NasaVasa/coinwatch/internal/infra/db"
	"github.com/NasaVasa/coinwatch/internal/infra/log"
	"github.com/NasaVasa/coinwatch/internal/infra/netprobe"
	"github.com/NasaVasa/coinwatch/internal/usecase"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

type App struct {
	loop     *usecase.RefreshLoop
	server   *web.Server
	probe    *netprobe.Monitor
	bot      *telegram.Bot
	notifier *telegram.Notifier
	store    domain.KeyValueStore
	logger   *zap.Logger
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := log.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	client := coingecko.NewClient(coingecko.Options{
		BaseURL:   cfg.CoinGeckoBaseURL,
		APIKey:    cfg.CoinGeckoAPIKey,
		Timeout:   cfg.CoinGeckoTimeout,
		Sparkline: cfg.Sparkline,
		PerPage:   cfg.PerPage,
	}, logger)
	probe := netprobe.NewMonitor(cfg.ProbeAddr, cfg.ProbeInterval, cfg.ProbeTimeout, logger)
	broadcaster := web.NewBroadcaster(nil, logger)

	notifiers := usecase.MultiNotifier{broadcaster, usecase.NewLogNotifier(logger)}
	var tgNotifier *telegram.Notifier
	var api *tgbotapi.BotAPI
	if cfg.TelegramBotToken != "" {
		botAPI, err := telegram.NewAPI(cfg.TelegramBotToken)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("telegram: %w", err)
		}
		api = botAPI
		tgNotifier = telegram.NewNotifier(botAPI, cfg.TelegramChatID, logger)
		notifiers = append(notifiers, tgNotifier)
	}

	prefs := usecase.NewPreferenceStore(store, cfg.StoreTimeout, logger)
	loop := usecase.NewRefreshLoop(client, prefs, notifiers, broadcaster, probe, usecase.LoopConfig{
		Interval:      cfg.RefreshInterval,
		CommandBuffer: cfg.CommandBuffer,
	}, logger)
	broadcaster.SetSubmitter(loop)
	probe.OnChange(func(online bool) {
		submitCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := loop.Submit(submitCtx, usecase.ConnectivityChanged{Online: online}); err != nil {
			logger.Warn("connectivity change not delivered", zap.Bool("online", online), zap.Error(err))
		}
	})

	a := &App{
		loop:     loop,
		server:   web.NewServer(cfg.HTTPAddr, loop, client, broadcaster, logger),
		probe:    probe,
		notifier: tgNotifier,
		store:    store,
		logger:   logger,
	}
	if api != nil {
		handlers := telegram.NewHandlers(api, loop, tgNotifier, logger)
		a.bot = telegram.NewBot(api, handlers, cfg.TelegramPollTimeout)
	}
	return a, nil
}

func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (domain.KeyValueStore, error) {
	switch cfg.StoreDriver {
	case config.DriverRedis:
		store, err := cache.NewRedisStore(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisPrefix)
		if err != nil {
			return nil, fmt.Errorf("redis store: %w", err)
		}
		return store, nil
	default:
		conn, err := db.Open(cfg, logger)
		if err != nil {
			return nil, err
		}
		return db.NewPreferenceRepository(conn), nil
	}
}

func (a *App) Run(ctx context.Context) error {
	a.logger.Info("coinwatch service starting")
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return a.loop.Run(ctx) })
	g.Go(func() error {
		a.probe.Run(ctx)
		return nil
	})
	g.Go(a.server.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return a.server.Shutdown(shutdownCtx)
	})
	if a.bot != nil {
		g.Go(func() error {
			a.notifier.Run(ctx)
			return nil
		})
		g.Go(func() error { return a.bot.Start(ctx) })
	}

	a.logger.Info("coinwatch service started")
	return g.Wait()
}

func (a *App) Shutdown() {
	a.logger.Info("coinwatch service shutting down")
	if err := a.store.Close(); err != nil {
		a.logger.Warn("failed to close preference store", zap.Error(err))
	}
	_ = a.logger.Sync()
}
