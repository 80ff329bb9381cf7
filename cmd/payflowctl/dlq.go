package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/twmb/franz-go/pkg/kgo"

	"payflow/internal/adapters/messaging/kafka"
)

func (c *cli) dlqCmd() *cobra.Command {
	var brokers, dlqTopic string

	cmd := &cobra.Command{
		Use:   "dlq",
		Short: "Inspect and replay dead-lettered events",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := cmd.Root().PersistentPreRunE(cmd, args); err != nil {
				return err
			}
			if brokers == "" {
				brokers = c.cfg.Kafka.BootstrapServers
			}
			if dlqTopic == "" {
				dlqTopic = c.cfg.Kafka.DLQTopic
			}
			if brokers == "" {
				return errors.New("no kafka brokers configured")
			}
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&brokers, "brokers", "", "Kafka broker addresses (default from config)")
	cmd.PersistentFlags().StringVar(&dlqTopic, "dlq-topic", "", "DLQ topic name (default from config)")

	viewCmd := &cobra.Command{
		Use:   "view",
		Short: "Show messages in the DLQ",
		RunE: func(cmd *cobra.Command, _ []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			c.logger.Info("viewing DLQ", "topic", dlqTopic, "limit", limit)

			client, err := kgo.NewClient(
				kgo.SeedBrokers(strings.Split(brokers, ",")...),
				kgo.ConsumeTopics(dlqTopic),
				kgo.FetchMaxWait(5*time.Second),
				kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
			)
			if err != nil {
				return fmt.Errorf("create consumer: %w", err)
			}
			defer client.Close()

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "PARTITION:OFFSET\tKEY\tORIGINAL TOPIC\tERROR_TYPE\tERROR_STRING")

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			count := 0
			for count < limit {
				fetches := client.PollFetches(ctx)
				if fetches.IsClientClosed() || ctx.Err() != nil || len(fetches.Records()) == 0 {
					break
				}
				fetches.EachRecord(func(rec *kgo.Record) {
					if count >= limit {
						return
					}
					errType, errString := kafka.ErrorHeaders(rec.Headers)
					fmt.Fprintf(w, "%d:%d\t%s\t%s\t%s\t%s\n",
						rec.Partition, rec.Offset, rec.Key, originalTopic(rec.Headers), errType, errString)
					count++
				})
			}
			return w.Flush()
		},
	}
	viewCmd.Flags().Int("limit", 10, "number of messages to show")

	retryCmd := &cobra.Command{
		Use:   "retry [partition:offset]",
		Short: "Re-publish one DLQ message to its original topic",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			partition, offset, err := kafka.ParsePartitionOffset(args[0])
			if err != nil {
				return err
			}
			seeds := kgo.SeedBrokers(strings.Split(brokers, ",")...)

			consumer, err := kgo.NewClient(seeds,
				kgo.ConsumePartitions(map[string]map[int32]kgo.Offset{
					dlqTopic: {partition: kgo.NewOffset().At(offset)},
				}),
			)
			if err != nil {
				return fmt.Errorf("create consumer: %w", err)
			}
			defer consumer.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			fetches := consumer.PollRecords(ctx, 1)
			if err := fetches.Err(); err != nil {
				return fmt.Errorf("read message: %w", err)
			}
			records := fetches.Records()
			if len(records) == 0 || records[0].Offset != offset {
				return fmt.Errorf("no message at %s in %s", args[0], dlqTopic)
			}
			record := records[0]

			target, _ := cmd.Flags().GetString("target-topic")
			if target == "" {
				target = originalTopic(record.Headers)
			}
			if target == "" {
				target = c.cfg.Kafka.Topic
			}

			producer, err := kgo.NewClient(seeds)
			if err != nil {
				return fmt.Errorf("create producer: %w", err)
			}
			defer producer.Close()

			retry := &kgo.Record{Topic: target, Key: record.Key, Value: record.Value}
			if err := producer.ProduceSync(ctx, retry).FirstErr(); err != nil {
				return fmt.Errorf("re-publish message: %w", err)
			}
			c.logger.Info("message re-published", "from_topic", dlqTopic, "partition", partition, "offset", offset, "to_topic", target)
			return nil
		},
	}
	retryCmd.Flags().String("target-topic", "", "topic to re-publish to (default original_topic header)")

	cmd.AddCommand(viewCmd, retryCmd)
	return cmd
}

func originalTopic(headers []kgo.RecordHeader) string {
	for _, h := range headers {
		if h.Key == kafka.HeaderOriginalTopic {
			return string(h.Value)
		}
	}
	return ""
}
