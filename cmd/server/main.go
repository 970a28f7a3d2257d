package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/mestreprognosticos/chatbot/internal/accesslog"
	"github.com/mestreprognosticos/chatbot/internal/ai"
	"github.com/mestreprognosticos/chatbot/internal/auth"
	"github.com/mestreprognosticos/chatbot/internal/chat"
	"github.com/mestreprognosticos/chatbot/internal/config"
	"github.com/mestreprognosticos/chatbot/internal/db"
	"github.com/mestreprognosticos/chatbot/internal/history"
	"github.com/mestreprognosticos/chatbot/internal/httpapi"
	"github.com/mestreprognosticos/chatbot/internal/httpapi/handlers"
	"github.com/mestreprognosticos/chatbot/internal/logging"
	"github.com/mestreprognosticos/chatbot/internal/ranking"
	"github.com/mestreprognosticos/chatbot/internal/settings"
	"github.com/mestreprognosticos/chatbot/internal/store/rabbitmq"
	"github.com/mestreprognosticos/chatbot/internal/store/redisstore"
	"github.com/mestreprognosticos/chatbot/internal/weather"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	log := logging.New(os.Stdout, cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(log)
	if err := cfg.Validate(); err != nil {
		log.Error("invalid config", "err", err)
		os.Exit(1)
	}
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		primary  history.Store
		st       settings.Store
		dbLog    accesslog.Recorder
		recorder accesslog.Recorder
		throttle handlers.LoginThrottle
		checks   []handlers.StatusCheck
	)

	// primary store: MongoDB when configured, else the SQL database
	switch {
	case cfg.MongoURI != "":
		client, err := db.ConnectMongo(ctx, cfg.MongoURI)
		if err != nil {
			log.Error("invalid mongodb uri", "err", err)
			os.Exit(1)
		}
		defer func() { _ = client.Disconnect(context.Background()) }()
		if err := db.PingMongo(ctx, client); err != nil {
			log.Warn("mongodb not reachable yet, history falls back to local file per call", "err", err)
		}

		mdb := client.Database(cfg.HistoriaDBName)
		primary = history.NewMongoStore(mdb)
		st = settings.NewMongoRepo(mdb)
		dbLog = accesslog.NewMongoRepo(mdb)
		checks = append(checks, handlers.StatusCheck{Name: "mongodb", Check: func(ctx context.Context) error {
			return client.Ping(ctx, readpref.Primary())
		}})
		log.Info("mongodb configured", "db", cfg.HistoriaDBName)

	case cfg.DBDSN != "":
		gdb, err := db.Connect(cfg.DBDSN)
		if err != nil {
			log.Warn("database unavailable, history uses local file only", "err", err)
			checks = append(checks, handlers.StatusCheck{Name: "database", Check: func(context.Context) error { return err }})
			break
		}
		if err := gdb.AutoMigrate(&history.Record{}, &settings.Entry{}, &accesslog.Entry{}); err != nil {
			log.Error("automigrate failed", "err", err)
			os.Exit(1)
		}
		primary = history.NewGormStore(gdb)
		st = settings.NewRepo(gdb)
		dbLog = accesslog.NewRepo(gdb)
		checks = append(checks, handlers.StatusCheck{Name: "database", Check: func(ctx context.Context) error {
			sqlDB, err := gdb.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}})
		log.Info("database connected", "driver", db.Name(gdb))

	default:
		log.Warn("no primary store configured: history uses local file, admin is disabled")
		checks = append(checks, handlers.StatusCheck{Name: "database"})
	}

	recorder = dbLog
	if cfg.RabbitURL != "" {
		pub, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
		if err != nil {
			log.Warn("rabbitmq unavailable, access logs written directly", "err", err)
		} else {
			defer pub.Close()
			recorder = accesslog.NewQueueRecorder(pub)
			checks = append(checks, handlers.StatusCheck{Name: "rabbitmq", Check: func(context.Context) error {
				if !pub.Ready() {
					return errors.New("connection closed")
				}
				return nil
			}})
		}
	} else {
		checks = append(checks, handlers.StatusCheck{Name: "rabbitmq"})
	}

	if cfg.RedisAddr != "" {
		rds := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		defer rds.Close()
		if err := rds.Ping(ctx); err != nil {
			log.Warn("redis ping failed, login throttling may be unavailable", "err", err)
		}
		throttle = rds
		checks = append(checks, handlers.StatusCheck{Name: "redis", Check: rds.Ping})
	} else {
		checks = append(checks, handlers.StatusCheck{Name: "redis"})
	}

	reg := ai.NewDefaultRegistry(ai.Options{
		GeminiAPIKey:      cfg.GeminiAPIKey,
		GeminiModel:       cfg.GeminiModel,
		GeminiBaseURL:     cfg.GeminiBaseURL,
		OllamaBaseURL:     cfg.OllamaBaseURL,
		OllamaModel:       cfg.OllamaModel,
		OpenRouterBaseURL: cfg.OpenRouterBaseURL,
		OpenRouterAPIKey:  cfg.OpenRouterAPIKey,
		OpenRouterModel:   cfg.OpenRouterModel,
		OpenRouterSiteURL: cfg.OpenRouterSiteURL,
		OpenRouterAppName: cfg.OpenRouterAppName,
	})
	provider, err := reg.Get(ctx, cfg.AIProvider, "")
	if err != nil {
		log.Error("ai provider", "err", err)
		os.Exit(1)
	}

	var ws weather.Source
	if cfg.OpenWeatherAPIKey != "" {
		ws = weather.NewClient(cfg.OpenWeatherAPIKey)
	}

	orch := chat.NewOrchestrator(provider, st, ws, log)
	orch.WeatherLocation = cfg.WeatherLocation
	orch.ContextWindow = cfg.ChatContextWindowSize
	orch.CompletionTimeout = cfg.CompletionTimeout

	file := history.NewFileStore(cfg.HistoryFile, cfg.HistoryFileMax)
	hist := history.NewService(history.NewFailover(primary, file, cfg.DBTimeout, log), provider, log)
	hist.CompletionTimeout = cfg.CompletionTimeout

	gate := auth.NewGate(st, log)
	h := &handlers.Handler{
		Cfg:       cfg,
		Log:       log,
		Chat:      orch,
		History:   hist,
		Settings:  st,
		Gate:      gate,
		Ranking:   ranking.NewBoard(),
		AccessLog: recorder,
		Throttle:  throttle,
		Checks:    checks,
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           httpapi.NewRouter(h, gate, log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("server started", "addr", srv.Addr, "ai_provider", cfg.AIProvider, "history_file", cfg.HistoryFile)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("listen", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("server shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown", "err", err)
	}
}
