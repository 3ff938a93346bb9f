package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/0xHamad/polymarket-copy-bot/api"
	"github.com/0xHamad/polymarket-copy-bot/config"
	"github.com/0xHamad/polymarket-copy-bot/handlers"
	"github.com/0xHamad/polymarket-copy-bot/ledger"
	"github.com/0xHamad/polymarket-copy-bot/middleware"
	"github.com/0xHamad/polymarket-copy-bot/models"
	"github.com/0xHamad/polymarket-copy-bot/notify"
	"github.com/0xHamad/polymarket-copy-bot/storage"
	"github.com/0xHamad/polymarket-copy-bot/syncer"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using defaults")
	}

	cfgPath := os.Getenv("COPYBOT_CONFIG")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if wallet := os.Getenv("TARGET_WALLET"); wallet != "" {
		cfg.Copy.TargetWallet = wallet
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	auth, err := api.NewAuth()
	if err != nil {
		log.Fatalf("failed to load signing key: %v", err)
	}
	log.Printf("[main] Trading wallet: %s", auth.GetAddress().Hex())

	clobClient, err := api.NewClobClient(os.Getenv("CLOB_API_URL"), auth)
	if err != nil {
		log.Fatalf("failed to init CLOB client: %v", err)
	}
	if _, err := clobClient.DeriveAPICreds(ctx); err != nil {
		log.Fatalf("failed to derive API credentials: %v", err)
	}

	dataClient := api.NewDataClient(os.Getenv("DATA_API_URL"), cfg.Chain.RPCEndpoint)

	journal, err := openJournal(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to init journal: %v", err)
	}
	defer journal.Close()

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Printf("[main] Redis unreachable, metrics disabled: %v", err)
			redisClient = nil
		}
	}
	metrics := syncer.NewMetricsStore(redisClient)

	var notifier syncer.Notifier
	if cfg.Telegram.Token != "" {
		telegram, err := notify.NewTelegram(cfg.Telegram.Token, cfg.Telegram.ChatID)
		if err != nil {
			log.Printf("[main] Telegram disabled: %v", err)
		} else {
			notifier = telegram
		}
	}

	trader, err := syncer.NewCopyTrader(
		syncer.NewLiveExchange(dataClient, clobClient),
		ledger.New(),
		journal,
		notifier,
		metrics,
		syncer.CopyTraderConfig{
			TargetWallet: cfg.Copy.TargetWallet,
			OwnWallet:    auth.GetAddress().Hex(),
			Sizing: syncer.SizingConfig{
				CopyPct:  cfg.Trading.CopyPct,
				MinTrade: cfg.Trading.MinTrade,
				MaxTrade: cfg.Trading.MaxTrade,
			},
			PollInterval:    cfg.PollInterval(),
			TradeBatchLimit: cfg.Copy.TradeBatchLimit,
			SnapshotTTL:     cfg.SnapshotTTL(),
		},
	)
	if err != nil {
		log.Fatalf("failed to init copy trader: %v", err)
	}

	if err := trader.Start(ctx); err != nil {
		log.Fatalf("failed to start copy trader: %v", err)
	}
	defer trader.Stop()

	if cfg.WebSocket.Enabled {
		liveWS := api.NewLiveWSClient(cfg.Copy.TargetWallet, func(trade models.Trade) {
			trader.Submit(ctx, trade)
		})
		if err := liveWS.Start(ctx); err != nil {
			log.Printf("[main] Live feed unavailable, polling only: %v", err)
		} else {
			defer liveWS.Stop()
			log.Println("[main] Live trade feed connected")
		}
	}

	// Status API
	r := gin.Default()
	r.Use(middleware.BasicAuth())

	h := handlers.NewHandler(cfg, trader, journal, metrics)
	apiGroup := r.Group("/api", middleware.ValidateQueryParams())
	apiGroup.GET("/status", h.GetStatus)
	apiGroup.GET("/positions", h.GetPositions)
	apiGroup.GET("/trades", h.GetTrades)
	apiGroup.GET("/metrics", h.GetMetrics)

	port := os.Getenv("PORT")
	if port == "" {
		port = strconv.Itoa(cfg.Server.Port)
	}

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutMS) * time.Millisecond,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutMS) * time.Millisecond,
	}

	go func() {
		log.Printf("[main] Status API on http://localhost:%s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[main] Server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("[main] Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.Server.ShutdownTimeoutMS)*time.Millisecond)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("[main] Server shutdown: %v", err)
	}
}

func openJournal(ctx context.Context, cfg *config.Config) (storage.Journal, error) {
	switch cfg.Storage.Driver {
	case "postgres":
		return storage.NewPostgres(ctx, cfg.Storage.PostgresURL)
	default:
		return storage.New(cfg.Storage.DBPath)
	}
}
