// Package reconciler runs the recurring sweep that aligns internally
// recorded payment statuses with the gateway's ground truth: pending
// payments past the grace window expire locally, pending payments with an
// order reference are polled, and aggregate pairs that drifted apart are
// converged toward the more-terminal status.
package reconciler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"regflow/internal/dto"
	"regflow/internal/gateway"
	"regflow/internal/metrics"
	"regflow/internal/model"
	"regflow/internal/payment"
	"regflow/internal/repo"
)

// GraceWindow is how long a pending payment may wait for the gateway before
// it expires locally, measured from the link-creation timestamp.
const GraceWindow = 3 * 24 * time.Hour

type Store interface {
	ListOpenEvents(ctx context.Context, now time.Time) ([]model.Event, error)
	GetParticipantByEmail(ctx context.Context, email string) (*model.Participant, error)
	UpdateEventPaymentTx(ctx context.Context, eventID int64, transactionID string, mutate repo.MutatePayment) error
	UpdateParticipantPaymentTx(ctx context.Context, email string, eventID int64, transactionID string, mutate repo.MutatePayment) error
}

type Gateways interface {
	ForCurrency(currency string) (gateway.PaymentGateway, error)
	Confirmable(currency string) bool
}

type Notifier interface {
	Notify(intent dto.NotificationIntent) error
}

type Reconciler struct {
	store    Store
	gateways Gateways
	notifier Notifier
	log      *zerolog.Logger

	interval       time.Duration
	grace          time.Duration
	gatewayTimeout time.Duration

	// TryLock guards against overlapping sweeps; an overdue tick is
	// skipped, never queued.
	running sync.Mutex

	now func() time.Time
}

func New(store Store, gateways Gateways, notifier Notifier, interval time.Duration, log *zerolog.Logger) *Reconciler {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Reconciler{
		store:          store,
		gateways:       gateways,
		notifier:       notifier,
		log:            log,
		interval:       interval,
		grace:          GraceWindow,
		gatewayTimeout: 10 * time.Second,
		now:            time.Now,
	}
}

// Start runs the sweep on a fixed interval until the context is cancelled.
func (r *Reconciler) Start(ctx context.Context) {
	r.log.Info().Dur("interval", r.interval).Msg("reconciler started")

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info().Msg("reconciler stopping")
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep processes every open event once. A sweep already in progress makes
// this call a no-op.
func (r *Reconciler) Sweep(ctx context.Context) {
	if !r.running.TryLock() {
		r.log.Warn().Msg("previous sweep still running, skipping")
		return
	}
	defer r.running.Unlock()

	now := r.now()
	events, err := r.store.ListOpenEvents(ctx, now)
	if err != nil {
		r.log.Error().Err(err).Msg("failed to list open events")
		return
	}

	for i := range events {
		r.sweepEvent(ctx, &events[i], now)
	}
}

func (r *Reconciler) sweepEvent(ctx context.Context, event *model.Event, now time.Time) {
	for i := range event.Payments {
		// Terminal payments still pass through the divergence check: a
		// partial dual-write can leave the event copy terminal while the
		// participant copy lags behind.
		p := event.Payments[i]
		if err := r.reconcilePayment(ctx, event, p, now); err != nil {
			// One payment's failure never aborts the sweep.
			r.log.Error().Err(err).
				Int64("event_id", event.ID).
				Str("transaction_id", p.TransactionID).
				Msg("failed to reconcile payment")
		}
	}
}

func (r *Reconciler) reconcilePayment(ctx context.Context, event *model.Event, p model.Payment, now time.Time) error {
	status, err := r.repairDivergence(ctx, event, p)
	if err != nil {
		return err
	}
	p.Status = status
	if p.Status != model.StatusPending {
		return nil
	}

	// Expiry is a local clock decision and takes precedence over whatever
	// the gateway might say.
	if now.Sub(p.Time) > r.grace {
		return r.expire(ctx, event, p)
	}

	if p.OrderRef == "" || !r.gateways.Confirmable(p.Currency) {
		return nil
	}

	gw, err := r.gateways.ForCurrency(p.Currency)
	if err != nil {
		return err
	}
	qctx, cancel := context.WithTimeout(ctx, r.gatewayTimeout)
	code, err := gw.GetOrderStatus(qctx, p.OrderRef)
	cancel()
	if err != nil {
		// A timed-out or failed query is "no information this sweep".
		metrics.GatewayErrorsTotal.Inc()
		return err
	}
	if code != gateway.StatusSuccessful {
		return nil
	}
	return r.markPaid(ctx, event, p)
}

// repairDivergence converges the two copies of a payment when they disagree,
// preferring the more-terminal status, and returns the agreed status.
func (r *Reconciler) repairDivergence(ctx context.Context, event *model.Event, p model.Payment) (string, error) {
	participant, err := r.store.GetParticipantByEmail(ctx, p.Email)
	if err != nil {
		if errors.Is(err, repo.ErrParticipantNotFound) {
			return p.Status, nil
		}
		return "", err
	}
	entry := participant.EventEntry(event.ID)
	if entry == nil {
		return p.Status, nil
	}
	var other *model.Payment
	for i := range entry.Payments {
		if entry.Payments[i].TransactionID == p.TransactionID {
			other = &entry.Payments[i]
			break
		}
	}
	if other == nil || other.Status == p.Status {
		return p.Status, nil
	}

	winner := p
	if payment.Rank(other.Status) > payment.Rank(p.Status) {
		winner = *other
	}
	overwrite := func(target *model.Payment) error {
		target.Status = winner.Status
		target.OrderRef = winner.OrderRef
		target.PaidAt = winner.PaidAt
		return nil
	}
	if err := r.store.UpdateEventPaymentTx(ctx, event.ID, p.TransactionID, overwrite); err != nil {
		return "", err
	}
	if err := r.store.UpdateParticipantPaymentTx(ctx, p.Email, event.ID, p.TransactionID, overwrite); err != nil {
		return "", err
	}
	metrics.SweepTransitionsTotal.WithLabelValues("repaired").Inc()
	r.log.Warn().
		Str("transaction_id", p.TransactionID).
		Str("status", winner.Status).
		Msg("aggregate copies diverged, repaired")
	return winner.Status, nil
}

func (r *Reconciler) expire(ctx context.Context, event *model.Event, p model.Payment) error {
	toExpired := func(target *model.Payment) error {
		if target.Status == model.StatusExpired {
			return nil
		}
		return payment.Transition(target, model.StatusExpired)
	}
	if err := r.store.UpdateEventPaymentTx(ctx, event.ID, p.TransactionID, toExpired); err != nil {
		return err
	}
	if err := r.store.UpdateParticipantPaymentTx(ctx, p.Email, event.ID, p.TransactionID, toExpired); err != nil {
		return err
	}
	metrics.SweepTransitionsTotal.WithLabelValues("expired").Inc()
	r.log.Info().
		Int64("event_id", event.ID).
		Str("transaction_id", p.TransactionID).
		Msg("pending payment expired")
	return nil
}

func (r *Reconciler) markPaid(ctx context.Context, event *model.Event, p model.Payment) error {
	paidAt := r.now()
	toPaid := func(target *model.Payment) error {
		if target.Status == model.StatusPaid {
			return nil
		}
		if err := payment.Transition(target, model.StatusPaid); err != nil {
			return err
		}
		target.PaidAt = &paidAt
		return nil
	}
	if err := r.store.UpdateEventPaymentTx(ctx, event.ID, p.TransactionID, toPaid); err != nil {
		return err
	}
	if err := r.store.UpdateParticipantPaymentTx(ctx, p.Email, event.ID, p.TransactionID, toPaid); err != nil {
		return err
	}
	metrics.SweepTransitionsTotal.WithLabelValues("paid").Inc()

	// Best effort only: the transition above is already persisted and a
	// failed mail must not undo it.
	if err := r.notifier.Notify(dto.NotificationIntent{
		Email:     p.Email,
		Kind:      dto.NotifyPaid,
		EventName: event.Name,
		Package:   p.Package,
		Amount:    p.Amount,
		Currency:  p.Currency,
		SentAt:    paidAt,
	}); err != nil {
		metrics.NotificationsTotal.WithLabelValues("error").Inc()
		r.log.Warn().Err(err).Str("email", p.Email).Msg("failed to publish paid notification")
	} else {
		metrics.NotificationsTotal.WithLabelValues("ok").Inc()
	}

	r.log.Info().
		Int64("event_id", event.ID).
		Str("transaction_id", p.TransactionID).
		Msg("payment confirmed by gateway")
	return nil
}
