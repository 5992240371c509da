// Package kafka publishes feature records to a Kafka topic so downstream
// trainers can consume a run without reading the output directory.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/couchcryptid/openaq-forecast-etl/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// Message header keys.
const (
	HeaderDataset = "dataset"
	HeaderCutoff  = "cutoff"
	HeaderRunID   = "run_id"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Publisher produces one message per feature record, for every dataset of a
// run. It implements pipeline.Sink.
type Publisher struct {
	writer messageWriter
	topic  string
	logger *slog.Logger
}

// NewPublisher creates a Kafka producer for the features topic.
func NewPublisher(brokers []string, topic string, logger *slog.Logger) *Publisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Publisher{writer: w, topic: topic, logger: logger}
}

// Name identifies the sink in logs.
func (p *Publisher) Name() string { return "kafka" }

// Load publishes all, train and test records in a single WriteMessages call
// per dataset.
func (p *Publisher) Load(ctx context.Context, out domain.Output) error {
	for _, d := range domain.Datasets {
		records := out.Records(d)
		if len(records) == 0 {
			continue
		}
		msgs := make([]kafkago.Message, len(records))
		for i := range records {
			msg, err := serializeToMessage(records[i], d, out)
			if err != nil {
				return err
			}
			msgs[i] = msg
		}
		if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
			return fmt.Errorf("publish %s records: %w", d, err)
		}
		p.logger.Debug("published dataset", "topic", p.topic, "dataset", d, "records", len(msgs))
	}
	return nil
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

// serializeToMessage marshals a FeatureRecord into a Kafka message keyed by
// record id, so every piece of one entity lands on the same partition.
func serializeToMessage(r domain.FeatureRecord, d domain.Dataset, out domain.Output) (kafkago.Message, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize feature record %d: %w", r.ID, err)
	}
	return kafkago.Message{
		Key:   []byte(strconv.Itoa(r.ID)),
		Value: data,
		Headers: []kafkago.Header{
			{Key: HeaderDataset, Value: []byte(d)},
			{Key: HeaderCutoff, Value: []byte(out.Cutoff.UTC().Format(time.RFC3339))},
			{Key: HeaderRunID, Value: []byte(out.RunID)},
		},
	}, nil
}
