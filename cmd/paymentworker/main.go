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
	"Distributed-Order-Saga/pkg/outbox"
	"Distributed-Order-Saga/pkg/payment"
	"Distributed-Order-Saga/pkg/store"
)

var (
	natsURL       = config.GetEnv("NATS_URL", "nats://localhost:4222")
	port          = config.GetEnv("PORT", "8081")
	dbPath        = config.GetEnv("DB_PATH", "payments.db")
	consumerGroup = config.GetEnv("CONSUMER_GROUP", "PAYMENT_WORKER")
	log           = logrus.WithFields(logrus.Fields{
		"service": "paymentworker",
		"version": "1.0.0",
	})
)

func main() {
	// Set log format to JSON for structured logging.
	logrus.SetFormatter(&logrus.JSONFormatter{})
	logrus.SetLevel(logrus.InfoLevel)

	log.Info("Starting PaymentWorker...")

	db, err := store.Open(dbPath, store.MigrationPayments, store.MigrationOutbox)
	if err != nil {
		log.WithError(err).Fatalf("Failed to open payment database at %s", dbPath)
	}
	defer db.Close()

	svc := payment.NewService(store.NewPaymentStore(db), log)

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

	// The payment owner consumes ORDERS and publishes to PAYMENTS.
	for _, stream := range []string{"ORDERS", "PAYMENTS"} {
		if err := bus.EnsureStream(stream); err != nil {
			log.WithError(err).Fatalf("Failed to ensure stream %s", stream)
		}
	}

	orderSub, err := bus.Subscribe(events.TopicOrderCreated, consumerGroup, svc.OrderCreatedHandler())
	if err != nil {
		log.WithError(err).Fatal("Failed to subscribe to order events")
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
		Handler: httpapi.NewPaymentRouter(svc, log),
	}

	go func() {
		log.Infof("PaymentWorker HTTP server starting on port %s", port)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("PaymentWorker HTTP server ListenAndServe error")
		}
	}()

	// Shutdown handling.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("PaymentWorker shutting down...")

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()

	if err := httpSrv.Shutdown(ctxShutdown); err != nil {
		log.WithError(err).Error("PaymentWorker HTTP server shutdown error")
	}

	if err := orderSub.Unsubscribe(); err != nil {
		log.WithError(err).Error("Error during NATS Unsubscribe")
	}

	// Stop the relay after the consumer so settled payments still publish
	// their outcome events.
	relay.Stop()

	log.Info("Draining NATS connection...")
	if err := nc.Drain(); err != nil {
		log.WithError(err).Error("Error draining NATS connection")
	}

	log.Info("PaymentWorker shut down.")
}
