package service

import (
	"context"
	"fmt"
	"time"

	"berserk/internal/domain"
	"berserk/internal/events"
	"berserk/internal/models"
)

// SubscribeSheetSync mirrors every booking lifecycle event into a sheet_upsert job.
func SubscribeSheetSync(bus *events.EventBus, queue domain.JobQueue) {
	handler := func(ev *events.Event) error {
		var payload events.BookingEventPayload
		if err := ev.Decode(&payload); err != nil {
			return fmt.Errorf("decode %s: %w", ev.Type, err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return queue.Enqueue(ctx, models.JobSheetUpsert, payload.BookingID, nil)
	}
	for _, t := range []string{events.EventBookingCreated, events.EventBookingConfirmed, events.EventBookingPaymentFailed} {
		bus.Subscribe(t, handler)
	}
}
