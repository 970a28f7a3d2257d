package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mestreprognosticos/chatbot/internal/accesslog"
	"github.com/mestreprognosticos/chatbot/internal/config"
	"github.com/mestreprognosticos/chatbot/internal/db"
	"github.com/mestreprognosticos/chatbot/internal/logging"
	"github.com/mestreprognosticos/chatbot/internal/store/rabbitmq"
	amqp "github.com/rabbitmq/amqp091-go"
)

const recordTimeout = 5 * time.Second

func workerConcurrency(n int) int {
	if n <= 0 {
		return 2
	}
	if n > 50 {
		return 50
	}
	return n
}

// openSink picks the same primary store as the server.
func openSink(ctx context.Context, cfg config.Config) (accesslog.Recorder, func(), error) {
	if cfg.MongoURI != "" {
		client, err := db.ConnectMongo(ctx, cfg.MongoURI)
		if err != nil {
			return nil, nil, err
		}
		// deliveries would go straight to the DLQ, so refuse to start instead
		if err := db.PingMongo(ctx, client); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, nil, err
		}
		return accesslog.NewMongoRepo(client.Database(cfg.HistoriaDBName)),
			func() { _ = client.Disconnect(context.Background()) }, nil
	}

	gdb, err := db.Connect(cfg.DBDSN)
	if err != nil {
		return nil, nil, err
	}
	if err := gdb.AutoMigrate(&accesslog.Entry{}); err != nil {
		return nil, nil, err
	}
	return accesslog.NewRepo(gdb), func() {
		if sqlDB, err := gdb.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}, nil
}

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	log := logging.New(os.Stdout, cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(log)

	if cfg.RabbitURL == "" {
		log.Error("RABBIT_URL is required for the worker")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sink, closeSink, err := openSink(ctx, cfg)
	if err != nil {
		log.Error("open access log store", "err", err)
		os.Exit(1)
	}
	defer closeSink()

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Error("rabbit dial", "err", err)
		os.Exit(1)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		log.Error("rabbit channel", "err", err)
		os.Exit(1)
	}
	defer ch.Close()

	if err := rabbitmq.DeclareTopology(ch, cfg.RabbitQueue); err != nil {
		log.Error("queue declare", "err", err)
		os.Exit(1)
	}

	//  strict concurrency control
	concurrency := workerConcurrency(cfg.WorkerConcurrency)
	if err := ch.Qos(concurrency, 0, false); err != nil {
		log.Error("qos", "err", err)
		os.Exit(1)
	}

	msgs, err := ch.Consume(cfg.RabbitQueue, "", false, false, false, false, nil)
	if err != nil {
		log.Error("consume", "err", err)
		os.Exit(1)
	}

	log.Info("worker started", "queue", cfg.RabbitQueue, "concurrency", concurrency)

	// worker pool
	jobs := make(chan amqp.Delivery, concurrency*2)

	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			for d := range jobs {
				handleDelivery(ctx, log.With("worker", workerID), sink, d)
			}
		}(i)
	}

	// dispatcher
	for {
		select {
		case <-ctx.Done():
			log.Info("worker shutting down")
			close(jobs)
			wg.Wait()
			return

		case d, ok := <-msgs:
			if !ok {
				log.Error("delivery channel closed")
				close(jobs)
				wg.Wait()
				os.Exit(1)
			}
			jobs <- d
		}
	}
}

func handleDelivery(ctx context.Context, log *slog.Logger, sink accesslog.Recorder, d amqp.Delivery) {
	var e accesslog.Entry
	if err := json.Unmarshal(d.Body, &e); err != nil || e.ID == "" {
		log.Warn("bad message", "err", err)
		_ = d.Nack(false, false)
		return
	}

	start := time.Now()
	rctx, cancel := context.WithTimeout(ctx, recordTimeout)
	err := sink.Record(rctx, e)
	cancel()
	if err != nil {
		log.Error("record access log failed", "id", e.ID, "cost", time.Since(start), "err", err)
		_ = d.Nack(false, false)
		return
	}

	if err := d.Ack(false); err != nil {
		log.Warn("ack failed", "id", e.ID, "err", err)
	}
}
