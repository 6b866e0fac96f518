package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mahaj/roomchat/pkg/config"
	"github.com/mahaj/roomchat/pkg/journal"
)

func main() {
	cfg, err := config.Load[config.Auditor]()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, closeLog, err := config.SetupLogging("[AUDITOR] ", cfg.Common)
	if err != nil {
		log.Fatalf("logging: %v", err)
	}
	defer closeLog()

	if !cfg.Kafka.Enabled() {
		log.Fatal("KAFKA_BROKERS is required")
	}

	f, err := os.OpenFile(cfg.AuditLog, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		log.Fatalf("Failed to open audit log: %v", err)
	}
	defer f.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reader := journal.NewReader(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.GroupID)
	defer reader.Close()

	consumer := NewConsumer(f)
	log.Printf("Starting Kafka Consumer on %s (group %s)...", cfg.Kafka.Topic, cfg.Kafka.GroupID)
	if err := journal.Consume(ctx, reader, consumer.Handle, time.Second, logger); err != nil {
		log.Fatalf("consume: %v", err)
	}
	log.Println("Auditor stopped")
}
