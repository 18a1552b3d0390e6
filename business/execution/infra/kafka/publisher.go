// Package kafka publishes executed trades to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/fd1az/arbitrage-scanner/business/execution/domain"
	"github.com/fd1az/arbitrage-scanner/internal/apperror"
)

type writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher writes one message per executed trade, keyed by candidate id
// so every record of a candidate lands on the same partition.
type Publisher struct {
	w   writer
	now func() time.Time
}

func NewPublisher(brokers []string, topic string) *Publisher {
	return &Publisher{
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			BatchTimeout: 50 * time.Millisecond,
		},
		now: time.Now,
	}
}

func (p *Publisher) PublishTrade(ctx context.Context, t *domain.ExecutedTrade) error {
	data, err := json.Marshal(t)
	if err != nil {
		return apperror.New(apperror.CodePublishFailed, apperror.WithCause(err),
			apperror.WithContext("encode trade "+t.ID))
	}

	err = p.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(t.CandidateID),
		Value: data,
		Time:  p.now(),
		Headers: []kafka.Header{
			{Key: "status", Value: []byte(t.Status)},
			{Key: "strategy", Value: []byte(t.Strategy.String())},
		},
	})
	if err != nil {
		return apperror.New(apperror.CodePublishFailed, apperror.WithCause(err),
			apperror.WithContext("write trade "+t.ID))
	}
	return nil
}

func (p *Publisher) Close() error { return p.w.Close() }
