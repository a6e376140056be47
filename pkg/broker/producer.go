package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/samandr77/microservices/identity/internal/entity"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Producer struct {
	l                  *slog.Logger
	w                  messageWriter
	notificationsTopic string
	now                func() time.Time
}

// NewProducer writes synchronously: Deliver must know whether the event
// reached the broker before the challenge is reported as sent.
func NewProducer(l *slog.Logger, brokers []string, topic string) *Producer {
	l = l.WithGroup("kafka").With("topic", topic)

	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  "",
		Balancer:               &kafka.Hash{},
		Async:                  false,
		RequiredAcks:           kafka.RequireOne,
		Compression:            0,
		Logger:                 &infoLogger{l: l},
		ErrorLogger:            &errorLogger{l: l},
		AllowAutoTopicCreation: true,
	}

	return &Producer{
		l:                  l,
		w:                  w,
		notificationsTopic: topic,
		now:                time.Now,
	}
}

type SendEmailVerificationCodeEvent struct {
	Type        string         `json:"type"`
	Subject     string         `json:"subject"`
	Message     string         `json:"message"`
	Recipients  []string       `json:"recipients"`
	ChallengeID string         `json:"challengeId"`
	Purpose     entity.Purpose `json:"purpose"`
}

func (p *Producer) Deliver(ctx context.Context, d entity.Delivery) error {
	event := SendEmailVerificationCodeEvent{
		Type:        "email",
		Subject:     d.Subject(),
		Message:     d.Body(p.now()),
		Recipients:  []string{d.Email},
		ChallengeID: d.ChallengeID.String(),
		Purpose:     d.Purpose,
	}

	b, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	err = p.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(entity.EmailKey(d.Email)),
		Value: b,
		Topic: p.notificationsTopic,
	})
	if err != nil {
		return fmt.Errorf("write kafka message: %w", err)
	}

	return nil
}

func (p *Producer) Close() {
	err := p.w.Close()
	if err != nil {
		p.l.Error(fmt.Sprintf("close kafka writer: %s", err))
	}
}
