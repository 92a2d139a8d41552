package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"Distributed-Order-Saga/pkg/config"
	"Distributed-Order-Saga/pkg/eventbus"
	"Distributed-Order-Saga/pkg/events"
	"Distributed-Order-Saga/pkg/httpapi"
	"Distributed-Order-Saga/pkg/order"
	"Distributed-Order-Saga/pkg/outbox"
	"Distributed-Order-Saga/pkg/store"
)

var (
	natsURL       = config.GetEnv("NATS_URL", "nats://localhost:4222")
	port          = config.GetEnv("PORT", "8080")
	dbPath        = config.GetEnv("DB_PATH", "orders.db")
	consumerGroup = config.GetEnv("CONSUMER_GROUP", "ORDER_SERVICE")
	log           = logrus.WithFields(logrus.Fields{
		"service": "orderservice",
		"version": "1.0.0",
	})
)

func main() {
	// Set log format to JSON for structured logging.
	logrus.SetFormatter(&logrus.JSONFormatter{})
	logrus.SetLevel(logrus.InfoLevel)

	log.Info("Starting OrderService...")

	db, err := store.Open(dbPath, store.MigrationOrders, store.MigrationOutbox)
	if err != nil {
		log.WithError(err).Fatalf("Failed to open order database at %s", dbPath)
	}
	defer db.Close()

	svc := order.NewService(store.NewOrderStore(db), log)

	// Connect to NATS server.
	nc, err := nats.Connect(natsURL)
	if err != nil {
		log.WithError(err).Fatalf("Failed to connect to NATS at %s", natsURL)
	}
	defer nc.Close()
	log.Infof("Connected to NATS server at %s", natsURL)

	js, err := nc.JetStream()
	if err != nil {
		log.WithError(err).Fatal("Failed to get JetStream context")
	}

	bus := eventbus.NewJetStreamBus(js, log, eventbus.JetStreamConfig{
		AckWait:    config.GetEnvDuration("ACK_WAIT", 30*time.Second),
		MaxDeliver: config.GetEnvInt("MAX_DELIVER", 3),
		NakDelay:   config.GetEnvDuration("NAK_DELAY", 5*time.Second),
	})

	// The order owner publishes to ORDERS and consumes PAYMENTS/INVENTORY.
	for _, stream := range []string{"ORDERS", "PAYMENTS", "INVENTORY"} {
		if err := bus.EnsureStream(stream); err != nil {
			log.WithError(err).Fatalf("Failed to ensure stream %s", stream)
		}
	}

	paymentSub, err := bus.Subscribe(events.TopicPaymentProcessed, consumerGroup, svc.PaymentProcessedHandler())
	if err != nil {
		log.WithError(err).Fatal("Failed to subscribe to payment outcomes")
	}
	inventorySub, err := bus.Subscribe(events.TopicInventoryUpdated, consumerGroup, svc.InventoryUpdatedHandler())
	if err != nil {
		log.WithError(err).Fatal("Failed to subscribe to inventory outcomes")
	}

	relay := outbox.NewRelay(store.NewOutboxStore(db), bus, log, outbox.RelayConfig{
		PollInterval:   config.GetEnvDuration("OUTBOX_POLL_INTERVAL", 250*time.Millisecond),
		BatchSize:      config.GetEnvInt("OUTBOX_BATCH_SIZE", 64),
		MaxRetries:     config.GetEnvInt("MAX_PUBLISH_RETRIES", 3),
		BackoffBase:    config.GetEnvDuration("RETRY_BACKOFF_BASE", 250*time.Millisecond),
		PublishTimeout: config.GetEnvDuration("DEFAULT_PUBLISH_TIMEOUT", 5*time.Second),
	})
	relay.Start()

	httpSrv := &http.Server{
		Addr:    ":" + port,
		Handler: httpapi.NewOrderRouter(svc, log),
	}

	go func() {
		log.Infof("OrderService HTTP server starting on port %s", port)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("OrderService HTTP server ListenAndServe error")
		}
	}()

	// Shutdown handling.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("OrderService shutting down...")

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()

	if err := httpSrv.Shutdown(ctxShutdown); err != nil {
		log.WithError(err).Error("OrderService HTTP server shutdown error")
	}

	if err := paymentSub.Unsubscribe(); err != nil {
		log.WithError(err).Error("Error during NATS Unsubscribe")
	}
	if err := inventorySub.Unsubscribe(); err != nil {
		log.WithError(err).Error("Error during NATS Unsubscribe")
	}

	// Stop the relay after the HTTP server so events from the last accepted
	// commands still go out.
	relay.Stop()

	log.Info("Draining NATS connection...")
	if err := nc.Drain(); err != nil {
		log.WithError(err).Error("Error draining NATS connection")
	}

	log.Info("OrderService shut down.")
}
