// Package registration owns the submission flow: it validates a submitted
// form, runs the pricing rules, and performs the dual-write that mirrors a
// new payment into the participant aggregate and the event aggregate. The
// two appends are deliberate saga steps over two independently locked rows;
// the failure path compensates rather than assuming a cross-row transaction.
package registration

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"regflow/internal/dto"
	"regflow/internal/gateway"
	"regflow/internal/metrics"
	"regflow/internal/model"
	"regflow/internal/payment"
	"regflow/internal/repo"
	"regflow/internal/rules"
)

var (
	ErrUnknownQuestion    = errors.New("answer references unknown question")
	ErrFormEventMismatch  = errors.New("form does not belong to event")
	ErrLinkAlreadyCreated = errors.New("payment link already created")
)

// Store is the slice of the repository the coordinator needs.
type Store interface {
	GetEventByID(ctx context.Context, id int64) (*model.Event, error)
	GetFormByID(ctx context.Context, id int64) (*model.Form, error)
	GetParticipantByEmail(ctx context.Context, email string) (*model.Participant, error)
	InsertSubmission(ctx context.Context, s *model.Submission) error
	DeleteSubmission(ctx context.Context, id string) error
	NextInvoiceNumberTx(ctx context.Context, eventID int64) (int64, error)
	AppendEventPaymentTx(ctx context.Context, eventID int64, p model.Payment) error
	RemoveEventPaymentTx(ctx context.Context, eventID int64, transactionID string) error
	UpdateEventPaymentTx(ctx context.Context, eventID int64, transactionID string, mutate repo.MutatePayment) error
	AppendParticipantPaymentTx(ctx context.Context, email string, eventID, formID int64, p model.Payment) error
	AppendParticipantPassTx(ctx context.Context, email string, eventID int64, pass model.EventPass) error
	UpdateParticipantPaymentTx(ctx context.Context, email string, eventID int64, transactionID string, mutate repo.MutatePayment) error
}

// Gateways dispatches a currency to its payment provider.
type Gateways interface {
	ForCurrency(currency string) (gateway.PaymentGateway, error)
}

// PassIssuer signs event passes.
type PassIssuer interface {
	Issue(email string, eventID, formID int64) (string, error)
}

// Notifier publishes fire-and-forget notification intents.
type Notifier interface {
	Notify(intent dto.NotificationIntent) error
}

// Config carries the coordinator's injected settings; there is no
// module-level state.
type Config struct {
	ReturnURL string
	FailURL   string
}

type Result struct {
	SubmissionID string
	Payment      *model.Payment
}

type Coordinator struct {
	store    Store
	gateways Gateways
	passes   PassIssuer
	notifier Notifier
	cfg      Config
	log      *zerolog.Logger

	now   func() time.Time
	newID func() string
}

func NewCoordinator(store Store, gateways Gateways, passes PassIssuer, notifier Notifier, cfg Config, log *zerolog.Logger) *Coordinator {
	return &Coordinator{
		store:    store,
		gateways: gateways,
		passes:   passes,
		notifier: notifier,
		cfg:      cfg,
		log:      log,
		now:      time.Now,
		newID:    newTransactionID,
	}
}

// Submit persists a submission and, when the form prices it, mirrors a new
// payment into both aggregates. The submission write happens before either
// payment append; pass issuance and notification are non-fatal side effects.
func (c *Coordinator) Submit(ctx context.Context, formID, eventID int64, email string, answers []model.Answer) (*Result, error) {
	form, err := c.store.GetFormByID(ctx, formID)
	if err != nil {
		return nil, err
	}
	if form.EventID != eventID {
		return nil, ErrFormEventMismatch
	}
	if err := validateAnswers(form, answers); err != nil {
		return nil, err
	}

	event, err := c.store.GetEventByID(ctx, eventID)
	if err != nil {
		return nil, err
	}

	sub := &model.Submission{
		ID:        uuid.NewString(),
		FormID:    formID,
		EventID:   eventID,
		Email:     email,
		Answers:   answers,
		CreatedAt: c.now(),
	}
	if err := c.store.InsertSubmission(ctx, sub); err != nil {
		return nil, fmt.Errorf("persist submission: %w", err)
	}
	metrics.SubmissionsTotal.Inc()

	result := &Result{SubmissionID: sub.ID}
	if !form.UsedForRegistration {
		return result, nil
	}

	invoicing := rules.InvoicingAnswers(form, answers)
	item := rules.Evaluate(invoicing, event.Rules, event.Items)
	if item == nil {
		// No rule matched: the submission stands, no pricing applies.
		return result, nil
	}

	if _, err := c.store.GetParticipantByEmail(ctx, email); err != nil {
		if errors.Is(err, repo.ErrParticipantNotFound) {
			c.log.Warn().Str("email", email).Int64("event_id", eventID).
				Msg("no participant account, skipping payment creation")
			return result, nil
		}
		c.compensateSubmission(ctx, sub.ID)
		return nil, fmt.Errorf("load participant: %w", err)
	}

	invoiceNo, err := c.store.NextInvoiceNumberTx(ctx, eventID)
	if err != nil {
		c.compensateSubmission(ctx, sub.ID)
		return nil, fmt.Errorf("allocate invoice number: %w", err)
	}

	pay := model.Payment{
		TransactionID: c.newID(),
		Package:       item.Name,
		Amount:        item.Amount,
		Currency:      item.Currency,
		Status:        model.StatusNotCreated,
		Time:          c.now(),
		InvoiceNo:     invoiceNo,
	}

	// Saga step one: the event-side copy carries the participant email
	// because the event aggregate has no other back-reference.
	eventCopy := pay
	eventCopy.Email = email
	if err := c.store.AppendEventPaymentTx(ctx, eventID, eventCopy); err != nil {
		c.compensateSubmission(ctx, sub.ID)
		return nil, fmt.Errorf("append event payment: %w", err)
	}

	// Saga step two; on failure the event-side copy is removed again.
	if err := c.store.AppendParticipantPaymentTx(ctx, email, eventID, formID, pay); err != nil {
		if rmErr := c.store.RemoveEventPaymentTx(ctx, eventID, pay.TransactionID); rmErr != nil {
			c.log.Error().Err(rmErr).Str("transaction_id", pay.TransactionID).
				Msg("compensation failed, aggregates left divergent for repair sweep")
		}
		c.compensateSubmission(ctx, sub.ID)
		return nil, fmt.Errorf("append participant payment: %w", err)
	}
	metrics.PaymentsCreatedTotal.Inc()
	result.Payment = &pay

	c.issuePass(ctx, email, eventID, formID)
	c.notify(dto.NotificationIntent{
		Email:     email,
		Kind:      dto.NotifySubmission,
		Category:  participationCategory(form, invoicing),
		EventName: event.Name,
		Package:   pay.Package,
		Amount:    pay.Amount,
		Currency:  pay.Currency,
		SentAt:    c.now(),
	})

	return result, nil
}

// CreatePaymentLink asks the currency's provider for a payment URL and moves
// both copies of the payment to Pending, stamping the order reference and the
// link-creation time the expiry window is measured from.
func (c *Coordinator) CreatePaymentLink(ctx context.Context, eventID int64, transactionID, email string) (string, error) {
	event, err := c.store.GetEventByID(ctx, eventID)
	if err != nil {
		return "", err
	}

	var pay *model.Payment
	for i := range event.Payments {
		if event.Payments[i].TransactionID == transactionID && event.Payments[i].Email == email {
			pay = &event.Payments[i]
			break
		}
	}
	if pay == nil {
		return "", repo.ErrPaymentNotFound
	}
	if pay.Status != model.StatusNotCreated {
		return "", ErrLinkAlreadyCreated
	}

	gw, err := c.gateways.ForCurrency(pay.Currency)
	if err != nil {
		return "", err
	}
	order, err := gw.CreateOrder(ctx, gateway.OrderRequest{
		Amount:    pay.Amount,
		Currency:  pay.Currency,
		ReturnURL: c.cfg.ReturnURL,
		FailURL:   c.cfg.FailURL,
		Email:     email,
	})
	if err != nil {
		return "", fmt.Errorf("create gateway order: %w", err)
	}

	linkedAt := c.now()
	toPending := func(p *model.Payment) error {
		if err := payment.Transition(p, model.StatusPending); err != nil {
			return err
		}
		p.OrderRef = order.OrderRef
		p.Time = linkedAt
		return nil
	}
	if err := c.store.UpdateEventPaymentTx(ctx, eventID, transactionID, toPending); err != nil {
		return "", fmt.Errorf("mark event payment pending: %w", err)
	}
	if err := c.store.UpdateParticipantPaymentTx(ctx, email, eventID, transactionID, toPending); err != nil {
		// The event-side copy is already Pending; the repair sweep
		// converges the pair.
		c.log.Error().Err(err).Str("transaction_id", transactionID).
			Msg("participant copy not updated, aggregates divergent")
	}

	c.notify(dto.NotificationIntent{
		Email:     email,
		Kind:      dto.NotifyPaymentLink,
		EventName: event.Name,
		Package:   pay.Package,
		Amount:    pay.Amount,
		Currency:  pay.Currency,
		PayURL:    order.PaymentURL,
		SentAt:    c.now(),
	})

	return order.PaymentURL, nil
}

// MarkFree applies the administrative free override to both copies. It is
// idempotent: re-applying to an already-free payment changes nothing and
// sends no second notification.
func (c *Coordinator) MarkFree(ctx context.Context, eventID int64, transactionID, email string) error {
	event, err := c.store.GetEventByID(ctx, eventID)
	if err != nil {
		return err
	}

	changed := false
	toFree := func(p *model.Payment) error {
		if p.Status == model.StatusFree {
			return nil
		}
		if err := payment.Transition(p, model.StatusFree); err != nil {
			return err
		}
		changed = true
		return nil
	}
	if err := c.store.UpdateEventPaymentTx(ctx, eventID, transactionID, toFree); err != nil {
		return err
	}
	if err := c.store.UpdateParticipantPaymentTx(ctx, email, eventID, transactionID, func(p *model.Payment) error {
		if p.Status == model.StatusFree {
			return nil
		}
		return payment.Transition(p, model.StatusFree)
	}); err != nil {
		c.log.Error().Err(err).Str("transaction_id", transactionID).
			Msg("participant copy not updated, aggregates divergent")
	}

	if changed {
		c.notify(dto.NotificationIntent{
			Email:     email,
			Kind:      dto.NotifyFree,
			EventName: event.Name,
			SentAt:    c.now(),
		})
	}
	return nil
}

func (c *Coordinator) compensateSubmission(ctx context.Context, submissionID string) {
	if err := c.store.DeleteSubmission(ctx, submissionID); err != nil {
		c.log.Error().Err(err).Str("submission_id", submissionID).Msg("failed to compensate submission")
	}
}

func (c *Coordinator) issuePass(ctx context.Context, email string, eventID, formID int64) {
	tok, err := c.passes.Issue(email, eventID, formID)
	if err != nil {
		c.log.Warn().Err(err).Str("email", email).Msg("failed to issue event pass")
		return
	}
	pass := model.EventPass{EventID: eventID, FormID: formID, Token: tok, IssuedAt: c.now()}
	if err := c.store.AppendParticipantPassTx(ctx, email, eventID, pass); err != nil {
		c.log.Warn().Err(err).Str("email", email).Msg("failed to record event pass")
	}
}

func (c *Coordinator) notify(intent dto.NotificationIntent) {
	if err := c.notifier.Notify(intent); err != nil {
		metrics.NotificationsTotal.WithLabelValues("error").Inc()
		c.log.Warn().Err(err).Str("email", intent.Email).Str("kind", intent.Kind).
			Msg("failed to publish notification intent")
		return
	}
	metrics.NotificationsTotal.WithLabelValues("ok").Inc()
}

func validateAnswers(form *model.Form, answers []model.Answer) error {
	known := make(map[string]bool, len(form.Questions))
	for _, q := range form.Questions {
		known[q.ID] = true
	}
	for _, a := range answers {
		if !known[a.QuestionID] {
			return fmt.Errorf("%w: %s", ErrUnknownQuestion, a.QuestionID)
		}
	}
	return nil
}

// participationCategory picks the value of the first invoicing answer in
// form question order; it keys the notification template.
func participationCategory(form *model.Form, invoicing map[string]string) string {
	for _, q := range form.Questions {
		if !q.UsedForInvoicing {
			continue
		}
		if v, ok := invoicing[q.ID]; ok {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// newTransactionID returns 6 random digits. Collisions across the whole
// system are possible but accepted; the ID is only unique per
// submission-derived charge in practice.
func newTransactionID() string {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return fmt.Sprintf("%06d", time.Now().UnixNano()%1000000)
	}
	return fmt.Sprintf("%06d", n.Int64()+100000)
}
