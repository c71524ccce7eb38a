package reconciler

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"regflow/internal/dto"
	"regflow/internal/gateway"
	"regflow/internal/model"
	"regflow/internal/repo"
)

type fakeStore struct {
	events       []model.Event
	participants map[string]*model.Participant
}

func (s *fakeStore) ListOpenEvents(_ context.Context, now time.Time) ([]model.Event, error) {
	var open []model.Event
	for _, e := range s.events {
		if e.EndTime.After(now) {
			open = append(open, e)
		}
	}
	return open, nil
}

func (s *fakeStore) GetParticipantByEmail(_ context.Context, email string) (*model.Participant, error) {
	p, ok := s.participants[email]
	if !ok {
		return nil, repo.ErrParticipantNotFound
	}
	return p, nil
}

func (s *fakeStore) UpdateEventPaymentTx(_ context.Context, eventID int64, txID string, mutate repo.MutatePayment) error {
	for i := range s.events {
		if s.events[i].ID != eventID {
			continue
		}
		for j := range s.events[i].Payments {
			if s.events[i].Payments[j].TransactionID == txID {
				return mutate(&s.events[i].Payments[j])
			}
		}
	}
	return repo.ErrPaymentNotFound
}

func (s *fakeStore) UpdateParticipantPaymentTx(_ context.Context, email string, eventID int64, txID string, mutate repo.MutatePayment) error {
	p, ok := s.participants[email]
	if !ok {
		return repo.ErrParticipantNotFound
	}
	entry := p.EventEntry(eventID)
	if entry == nil {
		return repo.ErrPaymentNotFound
	}
	for i := range entry.Payments {
		if entry.Payments[i].TransactionID == txID {
			return mutate(&entry.Payments[i])
		}
	}
	return repo.ErrPaymentNotFound
}

type stubGateway struct {
	calls    int
	statuses map[string]int
	errs     map[string]error
}

func (g *stubGateway) CreateOrder(context.Context, gateway.OrderRequest) (gateway.CreatedOrder, error) {
	return gateway.CreatedOrder{}, fmt.Errorf("not used")
}

func (g *stubGateway) GetOrderStatus(_ context.Context, ref string) (int, error) {
	g.calls++
	if err := g.errs[ref]; err != nil {
		return 0, err
	}
	return g.statuses[ref], nil
}

type stubGateways struct{ gw *stubGateway }

func (s *stubGateways) ForCurrency(string) (gateway.PaymentGateway, error) { return s.gw, nil }
func (s *stubGateways) Confirmable(string) bool                           { return true }

type fakeNotifier struct {
	intents []dto.NotificationIntent
}

func (n *fakeNotifier) Notify(intent dto.NotificationIntent) error {
	n.intents = append(n.intents, intent)
	return nil
}

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// pairedPayment installs the same payment on both aggregate sides.
func pairedPayment(store *fakeStore, eventIdx int, p model.Payment) {
	event := &store.events[eventIdx]
	eventCopy := p
	event.Payments = append(event.Payments, eventCopy)

	part, ok := store.participants[p.Email]
	if !ok {
		part = &model.Participant{Email: p.Email}
		store.participants[p.Email] = part
	}
	entry := part.EventEntry(event.ID)
	if entry == nil {
		part.Events = append(part.Events, model.ParticipantEvent{EventID: event.ID})
		entry = &part.Events[len(part.Events)-1]
	}
	partCopy := p
	partCopy.Email = ""
	entry.Payments = append(entry.Payments, partCopy)
}

func newTestReconciler(store *fakeStore, gw *stubGateway, notifier *fakeNotifier) *Reconciler {
	log := zerolog.Nop()
	r := New(store, &stubGateways{gw: gw}, notifier, time.Minute, &log)
	r.now = func() time.Time { return testNow }
	return r
}

func openEvent(id int64) model.Event {
	return model.Event{ID: id, Name: fmt.Sprintf("Event %d", id), EndTime: testNow.Add(24 * time.Hour)}
}

func TestSweep_ExpiresStalePendingWithoutGatewayCall(t *testing.T) {
	store := &fakeStore{events: []model.Event{openEvent(1)}, participants: map[string]*model.Participant{}}
	pairedPayment(store, 0, model.Payment{
		TransactionID: "111111", Email: "a@x.com", Status: model.StatusPending,
		OrderRef: "ord-1", Time: testNow.Add(-4 * 24 * time.Hour),
	})
	gw := &stubGateway{statuses: map[string]int{"ord-1": gateway.StatusSuccessful}}
	r := newTestReconciler(store, gw, &fakeNotifier{})

	r.Sweep(context.Background())

	if got := store.events[0].Payments[0].Status; got != model.StatusExpired {
		t.Errorf("event copy: got %q, want Expired", got)
	}
	if got := store.participants["a@x.com"].EventEntry(1).Payments[0].Status; got != model.StatusExpired {
		t.Errorf("participant copy: got %q, want Expired", got)
	}
	if gw.calls != 0 {
		t.Errorf("expiry is a local decision, gateway called %d times", gw.calls)
	}
}

func TestSweep_SuccessfulGatewayStatusMarksPaidOnBothSides(t *testing.T) {
	store := &fakeStore{events: []model.Event{openEvent(1)}, participants: map[string]*model.Participant{}}
	pairedPayment(store, 0, model.Payment{
		TransactionID: "222222", Email: "b@x.com", Status: model.StatusPending,
		Package: "Tier1", Amount: 100, Currency: "INR",
		OrderRef: "ord-2", Time: testNow.Add(-1 * time.Hour),
	})
	gw := &stubGateway{statuses: map[string]int{"ord-2": gateway.StatusSuccessful}}
	notifier := &fakeNotifier{}
	r := newTestReconciler(store, gw, notifier)

	r.Sweep(context.Background())

	eventCopy := store.events[0].Payments[0]
	partCopy := store.participants["b@x.com"].EventEntry(1).Payments[0]
	if eventCopy.Status != model.StatusPaid || partCopy.Status != model.StatusPaid {
		t.Errorf("both copies must be Paid, got %q/%q", eventCopy.Status, partCopy.Status)
	}
	if eventCopy.PaidAt == nil || !eventCopy.PaidAt.Equal(testNow) {
		t.Errorf("paid timestamp missing or wrong: %v", eventCopy.PaidAt)
	}
	if len(notifier.intents) != 1 || notifier.intents[0].Kind != dto.NotifyPaid {
		t.Errorf("expected exactly one paid notification, got %+v", notifier.intents)
	}
}

func TestSweep_NonSuccessCodeLeavesPaymentPending(t *testing.T) {
	store := &fakeStore{events: []model.Event{openEvent(1)}, participants: map[string]*model.Participant{}}
	pairedPayment(store, 0, model.Payment{
		TransactionID: "333333", Email: "c@x.com", Status: model.StatusPending,
		OrderRef: "ord-3", Time: testNow.Add(-1 * time.Hour),
	})
	gw := &stubGateway{statuses: map[string]int{"ord-3": 0}}
	notifier := &fakeNotifier{}
	r := newTestReconciler(store, gw, notifier)

	r.Sweep(context.Background())

	if got := store.events[0].Payments[0].Status; got != model.StatusPending {
		t.Errorf("got %q, want Pending", got)
	}
	if len(notifier.intents) != 0 {
		t.Errorf("no notification expected, got %+v", notifier.intents)
	}
}

func TestSweep_GatewayErrorDoesNotAbortSweep(t *testing.T) {
	store := &fakeStore{events: []model.Event{openEvent(1)}, participants: map[string]*model.Participant{}}
	pairedPayment(store, 0, model.Payment{
		TransactionID: "444444", Email: "d@x.com", Status: model.StatusPending,
		OrderRef: "ord-4", Time: testNow.Add(-1 * time.Hour),
	})
	pairedPayment(store, 0, model.Payment{
		TransactionID: "555555", Email: "e@x.com", Status: model.StatusPending,
		OrderRef: "ord-5", Time: testNow.Add(-1 * time.Hour),
	})
	gw := &stubGateway{
		errs:     map[string]error{"ord-4": fmt.Errorf("gateway timeout")},
		statuses: map[string]int{"ord-5": gateway.StatusSuccessful},
	}
	r := newTestReconciler(store, gw, &fakeNotifier{})

	r.Sweep(context.Background())

	if got := store.events[0].Payments[0].Status; got != model.StatusPending {
		t.Errorf("failed payment must stay Pending, got %q", got)
	}
	if got := store.events[0].Payments[1].Status; got != model.StatusPaid {
		t.Errorf("later payment must still be processed, got %q", got)
	}
}

func TestSweep_TerminalStatusesAreMonotonic(t *testing.T) {
	store := &fakeStore{events: []model.Event{openEvent(1)}, participants: map[string]*model.Participant{}}
	for i, status := range []string{model.StatusPaid, model.StatusExpired, model.StatusFree} {
		pairedPayment(store, 0, model.Payment{
			TransactionID: fmt.Sprintf("66666%d", i), Email: "f@x.com", Status: status,
			OrderRef: "ord-x", Time: testNow.Add(-10 * 24 * time.Hour),
		})
	}
	gw := &stubGateway{statuses: map[string]int{"ord-x": gateway.StatusSuccessful}}
	r := newTestReconciler(store, gw, &fakeNotifier{})

	for i := 0; i < 3; i++ {
		r.Sweep(context.Background())
	}

	want := []string{model.StatusPaid, model.StatusExpired, model.StatusFree}
	for i, p := range store.events[0].Payments {
		if p.Status != want[i] {
			t.Errorf("payment %d left %q, became %q", i, want[i], p.Status)
		}
	}
	if gw.calls != 0 {
		t.Errorf("terminal payments must not be polled, gateway called %d times", gw.calls)
	}
}

func TestSweep_RepairsDivergentAggregatePair(t *testing.T) {
	store := &fakeStore{events: []model.Event{openEvent(1)}, participants: map[string]*model.Participant{}}
	pairedPayment(store, 0, model.Payment{
		TransactionID: "777777", Email: "g@x.com", Status: model.StatusPending,
		OrderRef: "ord-7", Time: testNow.Add(-1 * time.Hour),
	})
	// Participant side already observed the terminal state.
	paidAt := testNow.Add(-10 * time.Minute)
	partCopy := &store.participants["g@x.com"].EventEntry(1).Payments[0]
	partCopy.Status = model.StatusPaid
	partCopy.PaidAt = &paidAt

	gw := &stubGateway{}
	r := newTestReconciler(store, gw, &fakeNotifier{})

	r.Sweep(context.Background())

	eventCopy := store.events[0].Payments[0]
	if eventCopy.Status != model.StatusPaid {
		t.Errorf("event copy must converge to Paid, got %q", eventCopy.Status)
	}
	if eventCopy.PaidAt == nil || !eventCopy.PaidAt.Equal(paidAt) {
		t.Errorf("paid timestamp must be copied, got %v", eventCopy.PaidAt)
	}
	if gw.calls != 0 {
		t.Errorf("repaired terminal payment must not be polled, gateway called %d times", gw.calls)
	}
}

func TestSweep_RepairsLaggingParticipantCopyBehindTerminalEventCopy(t *testing.T) {
	store := &fakeStore{events: []model.Event{openEvent(1)}, participants: map[string]*model.Participant{}}
	pairedPayment(store, 0, model.Payment{
		TransactionID: "999999", Email: "i@x.com", Status: model.StatusPending,
		OrderRef: "ord-9", Time: testNow.Add(-1 * time.Hour),
	})
	// A partial dual-write persisted the event copy but not the participant's.
	paidAt := testNow.Add(-5 * time.Minute)
	eventCopy := &store.events[0].Payments[0]
	eventCopy.Status = model.StatusPaid
	eventCopy.PaidAt = &paidAt

	gw := &stubGateway{}
	r := newTestReconciler(store, gw, &fakeNotifier{})

	r.Sweep(context.Background())

	partCopy := store.participants["i@x.com"].EventEntry(1).Payments[0]
	if partCopy.Status != model.StatusPaid {
		t.Errorf("participant copy must converge to Paid, got %q", partCopy.Status)
	}
	if partCopy.PaidAt == nil || !partCopy.PaidAt.Equal(paidAt) {
		t.Errorf("paid timestamp must be copied, got %v", partCopy.PaidAt)
	}
	if gw.calls != 0 {
		t.Errorf("terminal payment must not be polled, gateway called %d times", gw.calls)
	}
}

func TestSweep_CompletedEventsAreNotReconciled(t *testing.T) {
	ended := model.Event{ID: 2, Name: "Done", EndTime: testNow.Add(-time.Hour)}
	store := &fakeStore{events: []model.Event{ended}, participants: map[string]*model.Participant{}}
	pairedPayment(store, 0, model.Payment{
		TransactionID: "888888", Email: "h@x.com", Status: model.StatusPending,
		OrderRef: "ord-8", Time: testNow.Add(-10 * 24 * time.Hour),
	})
	gw := &stubGateway{}
	r := newTestReconciler(store, gw, &fakeNotifier{})

	r.Sweep(context.Background())

	if got := store.events[0].Payments[0].Status; got != model.StatusPending {
		t.Errorf("completed event payment must be untouched, got %q", got)
	}
}
