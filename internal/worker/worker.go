// Package worker turns payment lifecycle events into user-facing
// notifications and receipt emails.
package worker

import (
	"context"
	"fmt"

	"biashara-service/internal/broker"
	"biashara-service/internal/mailer"
	"biashara-service/internal/models"
	"biashara-service/internal/store"
	"biashara-service/internal/util"

	"go.uber.org/zap"
)

// NotificationWorker consumes payment events and records notifications.
// Consumption is idempotent through the processed_events table, so replayed
// events never produce duplicate notifications.
type NotificationWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	store        *store.Store
	mailer       *mailer.Mailer
	logger       *zap.Logger
}

// NewNotificationWorker creates a new notification worker. mailer may be
// nil; receipts are then skipped.
func NewNotificationWorker(consumer *broker.Consumer, store *store.Store, mailer *mailer.Mailer) *NotificationWorker {
	w := &NotificationWorker{
		consumer: consumer,
		store:    store,
		mailer:   mailer,
		logger:   util.GetLogger(),
	}

	eventHandler := broker.NewEventHandler()
	eventHandler.OnPaymentCompleted(w.handlePaymentCompleted)
	eventHandler.OnPaymentFailed(w.handlePaymentFailed)
	w.eventHandler = eventHandler

	return w
}

// Start starts the worker
func (w *NotificationWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting notification worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *NotificationWorker) Stop() error {
	w.logger.Info("Stopping notification worker")
	return w.consumer.Close()
}

func (w *NotificationWorker) handlePaymentCompleted(ctx context.Context, event *models.PaymentCompletedEvent) error {
	processed, err := w.store.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return fmt.Errorf("failed to check event processed: %w", err)
	}
	if processed {
		w.logger.Info("Event already processed", zap.String("event_id", event.EventID))
		return nil
	}

	if event.UserID != 0 {
		n := &models.Notification{
			UserID:   event.UserID,
			Type:     models.NotificationTypePayment,
			Title:    "Payment Received",
			Message:  fmt.Sprintf("Payment of KES %.2f completed (ref %s)", event.Amount, event.TransactionID),
			Priority: models.PriorityMedium,
		}
		if err := w.store.CreateNotification(ctx, n); err != nil {
			return fmt.Errorf("failed to create payment notification: %w", err)
		}
	}

	if w.mailer != nil {
		customer, err := w.store.GetCustomer(ctx, event.BusinessID, event.CustomerID)
		if err != nil {
			w.logger.Error("Failed to load customer for receipt", zap.Error(err))
		} else if customer.Email != "" {
			if err := w.mailer.SendReceipt(customer.Email, customer.Name,
				event.Amount, event.TransactionID, event.MpesaReceipt); err != nil {
				w.logger.Error("Failed to send receipt email",
					zap.String("email", customer.Email), zap.Error(err))
			}
		}
	}

	if err := w.store.MarkEventProcessed(ctx, event.EventID, event.EventType); err != nil {
		w.logger.Error("Failed to mark event processed", zap.Error(err))
	}
	return nil
}

func (w *NotificationWorker) handlePaymentFailed(ctx context.Context, event *models.PaymentFailedEvent) error {
	processed, err := w.store.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return fmt.Errorf("failed to check event processed: %w", err)
	}
	if processed {
		w.logger.Info("Event already processed", zap.String("event_id", event.EventID))
		return nil
	}

	if event.UserID != 0 {
		n := &models.Notification{
			UserID:   event.UserID,
			Type:     models.NotificationTypePayment,
			Title:    "Payment Failed",
			Message:  fmt.Sprintf("Payment of KES %.2f failed: %s", event.Amount, event.Reason),
			Priority: models.PriorityHigh,
		}
		if err := w.store.CreateNotification(ctx, n); err != nil {
			return fmt.Errorf("failed to create payment notification: %w", err)
		}
	}

	if err := w.store.MarkEventProcessed(ctx, event.EventID, event.EventType); err != nil {
		w.logger.Error("Failed to mark event processed", zap.Error(err))
	}
	return nil
}
