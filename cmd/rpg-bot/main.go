package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/vinzz/vinzz-rpg-bot/internal/api"
	appcfg "github.com/vinzz/vinzz-rpg-bot/internal/config"
	"github.com/vinzz/vinzz-rpg-bot/internal/dispatcher"
	"github.com/vinzz/vinzz-rpg-bot/internal/msgcat"
	"github.com/vinzz/vinzz-rpg-bot/internal/obslog"
	"github.com/vinzz/vinzz-rpg-bot/internal/ratelimit"
	"github.com/vinzz/vinzz-rpg-bot/internal/rpg"
	"github.com/vinzz/vinzz-rpg-bot/internal/store"
	"github.com/vinzz/vinzz-rpg-bot/internal/subbot"
	"github.com/vinzz/vinzz-rpg-bot/internal/tictactoe"
	"github.com/vinzz/vinzz-rpg-bot/internal/wagate"
)

func main() {
	_ = godotenv.Load()

	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	logger := obslog.L()

	cfg, err := appcfg.Load()
	if err != nil {
		logger.Fatal("config_error", zap.Error(err))
	}

	users, err := store.New(cfg.RedisURL, logger.Named("store"))
	if err != nil {
		logger.Fatal("store_init_error", zap.Error(err))
	}
	defer users.Close()

	catalog, err := users.Catalog(context.Background())
	if err != nil {
		logger.Fatal("catalog_init_error", zap.Error(err))
	}
	engine := rpg.NewEngine(rpg.DefaultConfig(), catalog)

	limiter := ratelimit.New(users.Client(), ratelimit.DefaultConfig(), ratelimit.RealClock{}, logger.Named("ratelimit"))

	games := tictactoe.NewManager(users, logger.Named("ttt"))
	if cfg.DatabaseURL != "" {
		repo, err := tictactoe.NewRepository(cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("ttt_repo_init_error", zap.Error(err))
		}
		defer repo.Close()
		games.AttachRepository(repo)
	}

	bots := subbot.NewManager(users, engine, subbot.Config{
		CreationCost: cfg.SubbotCost,
		MaxPerUser:   cfg.SubbotMax,
	}, logger.Named("subbot"))

	messages, err := msgcat.New(cfg.MessageDir)
	if err != nil {
		logger.Fatal("msgcat_init_error", zap.Error(err))
	}

	headers := func() map[string]string {
		h := map[string]string{}
		if cfg.GateToken != "" {
			h["Authorization"] = "Bearer " + cfg.GateToken
		}
		return h
	}
	client := wagate.NewClient(cfg.GateBaseURL, wagate.WithHeaderProvider(headers))

	disp := dispatcher.New(dispatcher.Options{
		Prefixes:     cfg.BotPrefixes,
		Admins:       cfg.Admins,
		AllowedChats: cfg.AllowedChats,
	}, users, engine, limiter, games, bots, messages, client, logger.Named("dispatcher"))

	ws := wagate.NewWebSocket(cfg.GateWSURL, 5, time.Second)
	ws.SetHeaderProvider(headers)
	ws.OnStateChange(func(state wagate.WebSocketState) {
		logger.Info("ws_state", zap.String("state", string(state)))
	})
	ws.OnMessage(func(msg *wagate.Message) {
		// keep the read loop free
		go disp.HandleMessage(context.Background(), msg)
	})

	cctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	err = ws.Connect(cctx)
	cancel()
	if err != nil {
		logger.Fatal("ws_connect_error", zap.Error(err))
	}

	if len(cfg.APIKeys) > 0 {
		keys := make(map[string]api.Key, len(cfg.APIKeys))
		for _, k := range cfg.APIKeys {
			keys[k.Key] = api.Key{Name: k.Name, Admin: k.Admin}
		}
		srv := api.NewServer(users, engine, limiter, keys, logger.Named("api"))
		go func() {
			if err := srv.Run(cfg.APIAddr); err != nil {
				logger.Error("api_error", zap.Error(err))
			}
		}()
	}

	logger.Info("bot_started", zap.Strings("prefixes", cfg.BotPrefixes))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	_ = ws.Close(context.Background())
	logger.Info("bot_stopped")
}
