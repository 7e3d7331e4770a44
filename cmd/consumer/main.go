package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/mealbridge/mealbridge/internal/config"
	"github.com/mealbridge/mealbridge/internal/logger"
	"github.com/mealbridge/mealbridge/internal/storage"
)

const groupID = "notification-consumer-group"

// This consumer stands in for the notification collaborator: it tails the
// listing and claim event topics and would fan out push/SMS/WhatsApp from
// here. Delivery never feeds back into the core.
func main() {
	log := logger.New("mealbridge-notifier")
	defer func() { _ = log.Sync() }()

	cfg := config.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	topics := []string{storage.ListingEventsTopic, storage.ClaimEventsTopic, cfg.AuditTopic}
	for _, topic := range topics {
		go consumeTopic(ctx, log, cfg.KafkaBrokers, topic)
	}

	<-ctx.Done()
	log.Info("shutdown signal received, stopping consumer")
}

func consumeTopic(ctx context.Context, log *zap.Logger, brokers []string, topic string) {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        groupID,
		Topic:          topic,
		MinBytes:       10e3,
		MaxBytes:       10e6,
		CommitInterval: time.Second,
		MaxWait:        3 * time.Second,
	})
	defer func() {
		if err := r.Close(); err != nil {
			log.Error("error closing kafka reader", zap.String("topic", topic), zap.Error(err))
		}
	}()

	log.Info("consumer connected", zap.String("topic", topic), zap.Strings("brokers", brokers))

	for {
		m, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error("error reading message", zap.String("topic", topic), zap.Error(err))
			time.Sleep(5 * time.Second)
			continue
		}

		log.Info("event received",
			zap.String("topic", topic),
			zap.Int("partition", m.Partition),
			zap.Int64("offset", m.Offset),
			zap.ByteString("key", m.Key),
			zap.ByteString("value", m.Value))
	}
}
