// Package kafka publishes survey tallies to a Kafka topic so downstream
// dashboards can pick up each analysis run.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/ltn-survey/internal/config"
	"github.com/couchcryptid/ltn-survey/internal/survey"
)

// TallyMessage is the JSON value of one published tally.
type TallyMessage struct {
	RunID       string        `json:"run_id"`
	QuestionID  string        `json:"question_id"`
	Label       string        `json:"label"`
	Total       int           `json:"total"`
	Answers     []AnswerCount `json:"answers"`
	ProcessedAt time.Time     `json:"processed_at"`
}

// AnswerCount is one bucket of a published tally.
type AnswerCount struct {
	Answer  string  `json:"answer"`
	Count   int     `json:"count"`
	Percent float64 `json:"percent"`
}

// Writer produces tally messages to the configured topic.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the tally topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// PublishTallies writes one message per tally in a single WriteMessages
// call. Messages are keyed by question ID so a question's history stays on
// one partition.
func (w *Writer) PublishTallies(ctx context.Context, runID string, tables []survey.Table, at time.Time) error {
	if len(tables) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(tables))
	for i := range tables {
		msg, err := serializeToMessage(runID, tables[i], at)
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish tallies: %w", err)
	}
	w.logger.Info("tallies published", "topic", w.writer.Topic, "messages", len(msgs), "run_id", runID)
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a tally into a Kafka message.
func serializeToMessage(runID string, t survey.Table, at time.Time) (kafkago.Message, error) {
	m := TallyMessage{
		RunID:       runID,
		QuestionID:  t.QuestionID,
		Label:       t.Label,
		Total:       t.Total,
		Answers:     make([]AnswerCount, len(t.Rows)),
		ProcessedAt: at.UTC(),
	}
	for i, r := range t.Rows {
		m.Answers[i] = AnswerCount{Answer: r.Answer, Count: r.Count, Percent: r.Percent}
	}

	data, err := json.Marshal(m)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize tally %s: %w", t.QuestionID, err)
	}
	return kafkago.Message{
		Key:   []byte(t.QuestionID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "run_id", Value: []byte(runID)},
			{Key: "processed_at", Value: []byte(m.ProcessedAt.Format(time.RFC3339))},
		},
	}, nil
}
