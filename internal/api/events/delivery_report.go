package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/samandr77/microservices/identity/internal/entity"
)

type OTP interface {
	HandleDeliveryReport(ctx context.Context, r entity.DeliveryReport) error
}

type EventHandler struct {
	otp OTP
}

func NewEventHandler(otp OTP) *EventHandler {
	return &EventHandler{otp: otp}
}

// DeliveryReport rolls back a challenge whose code the notification service
// could not deliver.
func (h *EventHandler) DeliveryReport(ctx context.Context, msg kafka.Message) error {
	var report entity.DeliveryReport

	err := json.Unmarshal(msg.Value, &report)
	if err != nil {
		return fmt.Errorf("unmarshal event: %w", err)
	}

	if !report.Purpose.Valid() {
		return fmt.Errorf("delivery report for challenge %s: %w", report.ChallengeID, entity.ErrInvalidPurpose)
	}

	err = h.otp.HandleDeliveryReport(ctx, report)
	if err != nil {
		return fmt.Errorf("handle delivery report: %w", err)
	}

	return nil
}
