package service

import (
	"context"
	"sync"
	"time"

	"biashara-service/internal/models"
	"biashara-service/internal/util"

	"go.uber.org/zap"
)

// STKJob is one push initiation, queued after the transaction that created
// the pending sale has committed.
type STKJob struct {
	PaymentID  int64
	BusinessID int64
	UserID     int64
	CustomerID int64
	Phone      string
	Amount     float64
	Reference  string
	Desc       string
}

// STKDispatcher runs push initiations off the request path. Enqueue is
// at-most-once and delivery is best-effort: a gateway failure is not
// retried, it moves the sale to failed through the store.
type STKDispatcher struct {
	jobs    chan STKJob
	store   SaleStore
	gateway Gateway
	events  Events
	logger  *zap.Logger
	wg      sync.WaitGroup

	// Timeout for one gateway round trip. The sale's transaction is long
	// committed by the time a job runs, so a slow push blocks nobody.
	pushTimeout time.Duration
}

// NewSTKDispatcher creates a dispatcher with a bounded queue
func NewSTKDispatcher(store SaleStore, gateway Gateway, events Events, queueSize int) *STKDispatcher {
	return &STKDispatcher{
		jobs:        make(chan STKJob, queueSize),
		store:       store,
		gateway:     gateway,
		events:      events,
		logger:      util.GetLogger(),
		pushTimeout: 30 * time.Second,
	}
}

// Start launches the worker goroutines. They drain the queue until ctx is
// cancelled, then exit.
func (d *STKDispatcher) Start(ctx context.Context, workers int) {
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case job := <-d.jobs:
					d.process(job)
				}
			}
		}()
	}
}

// Stop waits for the workers to finish. Call after cancelling the context
// passed to Start.
func (d *STKDispatcher) Stop() {
	d.wg.Wait()
}

// Enqueue submits a job without blocking. Returns false when the queue is
// full; the job is then dropped and the caller decides what that means for
// the sale.
func (d *STKDispatcher) Enqueue(job STKJob) bool {
	select {
	case d.jobs <- job:
		return true
	default:
		return false
	}
}

func (d *STKDispatcher) process(job STKJob) {
	ctx, cancel := context.WithTimeout(context.Background(), d.pushTimeout)
	defer cancel()

	start := time.Now()
	resp, err := d.gateway.STKPush(ctx, job.Phone, job.Amount, job.Reference, job.Desc)
	util.STKPushLatency.Observe(time.Since(start).Seconds())

	if err != nil {
		util.STKPushTotal.WithLabelValues("error").Inc()
		d.logger.Error("STK push initiation failed",
			zap.Int64("payment_id", job.PaymentID),
			zap.Error(err))
		d.failSale(ctx, job, err.Error())
		return
	}

	util.STKPushTotal.WithLabelValues("initiated").Inc()
	d.logger.Info("STK push initiated",
		zap.Int64("payment_id", job.PaymentID),
		zap.String("checkout_request_id", resp.CheckoutRequestID))

	if err := d.store.SetCheckoutRequestID(ctx, job.PaymentID, resp.CheckoutRequestID); err != nil {
		d.logger.Error("Failed to store checkout request ID",
			zap.Int64("payment_id", job.PaymentID),
			zap.Error(err))
	}
}

func (d *STKDispatcher) failSale(ctx context.Context, job STKJob, reason string) {
	if err := d.store.FailSale(ctx, job.PaymentID); err != nil {
		d.logger.Error("Failed to mark sale failed",
			zap.Int64("payment_id", job.PaymentID),
			zap.Error(err))
		return
	}

	util.SalesFailedTotal.WithLabelValues("gateway_error").Inc()

	if d.events != nil {
		event := &models.PaymentFailedEvent{
			BaseEvent:  newBaseEvent(models.EventTypePaymentFailed),
			PaymentID:  job.PaymentID,
			BusinessID: job.BusinessID,
			UserID:     job.UserID,
			CustomerID: job.CustomerID,
			Amount:     job.Amount,
			Reason:     reason,
		}
		if err := d.events.PublishPaymentFailed(ctx, event); err != nil {
			d.logger.Error("Failed to publish PaymentFailed event", zap.Error(err))
		}
	}
}
