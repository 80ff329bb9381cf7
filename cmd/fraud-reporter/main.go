// Command fraud-reporter consumes payment events from Kafka and records flagged payments in
// ClickHouse for analysis.
package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/twmb/franz-go/pkg/kgo"

	"payflow/internal/adapters/analytics/clickhouse"
	"payflow/internal/config"
	"payflow/internal/fraudreport"
	"payflow/internal/observability"
)

func main() {
	cfg, err := config.Load(config.Path())
	if err != nil {
		observability.SetupLogger("development").Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	logger := observability.SetupLogger(cfg.App.Env)
	logger.Info("fraud reporter starting", "env", cfg.App.Env, "topic", cfg.Kafka.Topic)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	kafkaBrokers := strings.Split(cfg.Kafka.BootstrapServers, ",")

	// Kafka Producer (for sending to DLQ)
	dlqProducer, err := kgo.NewClient(
		kgo.SeedBrokers(kafkaBrokers...),
		kgo.AllowAutoTopicCreation(),
	)
	if err != nil {
		logger.Error("failed to create Kafka producer for DLQ", "error", err)
		os.Exit(1)
	}
	defer dlqProducer.Close()

	sink, err := clickhouse.Open(ctx, cfg.ClickHouse)
	if err != nil {
		logger.Error("failed to connect to ClickHouse", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := sink.Close(); err != nil {
			logger.Error("Failed to close ClickHouse connection", "error", err)
		}
	}()
	if err := sink.Migrate(ctx); err != nil {
		logger.Error("failed to prepare fraud_reports table", "error", err)
		os.Exit(1)
	}

	processor := fraudreport.NewProcessor(sink, cfg.Kafka.DLQTopic, func(ctx context.Context, rec *kgo.Record) {
		dlqProducer.Produce(context.WithoutCancel(ctx), rec, func(r *kgo.Record, err error) {
			if err != nil {
				logger.Error("failed to send record to DLQ", "topic", r.Topic, "error", err)
			}
		})
	}, logger)

	consumerClient, err := kgo.NewClient(
		kgo.SeedBrokers(kafkaBrokers...),
		kgo.ConsumerGroup(cfg.Kafka.ConsumerGroup),
		kgo.ConsumeTopics(cfg.Kafka.Topic),
		kgo.DisableAutoCommit(),
	)
	if err != nil {
		logger.Error("failed to create Kafka consumer", "error", err)
		os.Exit(1)
	}
	defer consumerClient.Close()

	logger.Info("fraud reporter ready")

	for {
		fetches := consumerClient.PollFetches(ctx)
		if fetches.IsClientClosed() || ctx.Err() != nil {
			break
		}
		fetches.EachError(func(t string, p int32, err error) {
			logger.Error("error reading from kafka", "topic", t, "partition", p, "error", err)
		})

		records := fetches.Records()
		if len(records) == 0 {
			continue
		}
		stored, err := processor.Process(ctx, records)
		if err != nil {
			// Offsets stay uncommitted so the batch is redelivered after a restart.
			logger.Error("batch failed", "records", len(records), "error", err)
			continue
		}
		if err := consumerClient.CommitRecords(ctx, records...); err != nil {
			logger.Error("error committing offsets", "error", err)
		}
		logger.Debug("batch processed", "records", len(records), "reports", stored)
	}

	if err := dlqProducer.Flush(context.Background()); err != nil {
		logger.Warn("failed to flush DLQ producer", "error", err)
	}
	logger.Info("fraud reporter stopping")
}
