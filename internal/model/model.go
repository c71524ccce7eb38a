package model

import "time"

// Payment status values. Terminal statuses never change again.
const (
	StatusNotCreated = "Not created"
	StatusPending    = "Pending"
	StatusPaid       = "Paid"
	StatusFailed     = "Failed"
	StatusExpired    = "Expired"
	StatusFree       = "free"
)

// Condition operators. OR means "submitted answer differs from the expected
// value" — it is not a disjunction across conditions.
const (
	OperatorAnd = "AND"
	OperatorOr  = "OR"
)

type Item struct {
	Name     string `json:"name"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

type Condition struct {
	QuestionID string `json:"question_id"`
	Answer     string `json:"answer"`
	Operator   string `json:"operator"`
}

type Rule struct {
	FormID     int64       `json:"form_id"`
	Conditions []Condition `json:"conditions"`
	ItemName   string      `json:"item_name"`
}

type Event struct {
	ID         int64     `db:"id" json:"id"`
	Name       string    `db:"name" json:"name"`
	StartTime  time.Time `db:"start_time" json:"start_time"`
	EndTime    time.Time `db:"end_time" json:"end_time"`
	Items      []Item    `db:"items" json:"items"`
	Rules      []Rule    `db:"rules" json:"rules"`
	Payments   []Payment `db:"payments" json:"payments"`
	InvoiceSeq int64     `db:"invoice_seq" json:"invoice_seq"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

type Question struct {
	ID               string `json:"id"`
	Text             string `json:"text"`
	UsedForInvoicing bool   `json:"used_for_invoicing"`
}

type Form struct {
	ID                  int64      `db:"id" json:"id"`
	EventID             int64      `db:"event_id" json:"event_id"`
	Name                string     `db:"name" json:"name"`
	UsedForRegistration bool       `db:"used_for_registration" json:"used_for_registration"`
	Questions           []Question `db:"questions" json:"questions"`
}

type Answer struct {
	QuestionID string `json:"question_id"`
	Value      string `json:"value"`
}

type Submission struct {
	ID        string    `db:"id" json:"id"`
	FormID    int64     `db:"form_id" json:"form_id"`
	EventID   int64     `db:"event_id" json:"event_id"`
	Email     string    `db:"email" json:"email"`
	Answers   []Answer  `db:"answers" json:"answers"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Payment exists twice: once inside the participant aggregate and once inside
// the owning event aggregate. Both copies carry the same transaction ID and
// must converge to the same status.
type Payment struct {
	TransactionID string     `json:"transaction_id"`
	Email         string     `json:"email,omitempty"`
	Package       string     `json:"package"`
	Amount        int64      `json:"amount"`
	Currency      string     `json:"currency"`
	OrderRef      string     `json:"order_ref,omitempty"`
	Status        string     `json:"status"`
	Time          time.Time  `json:"time"`
	PaidAt        *time.Time `json:"paid_at,omitempty"`
	InvoiceNo     int64      `json:"invoice_no"`
}

// EventPass is the scannable artifact handed to a participant after a
// registration submission.
type EventPass struct {
	EventID  int64     `json:"event_id"`
	FormID   int64     `json:"form_id"`
	Token    string    `json:"token"`
	IssuedAt time.Time `json:"issued_at"`
}

// ParticipantEvent is the per-event entry inside a participant aggregate.
type ParticipantEvent struct {
	EventID  int64       `json:"event_id"`
	Forms    []int64     `json:"forms"`
	Payments []Payment   `json:"payments"`
	Passes   []EventPass `json:"passes"`
}

type Participant struct {
	ID        int64              `db:"id" json:"id"`
	Email     string             `db:"email" json:"email"`
	FullName  string             `db:"full_name" json:"full_name"`
	Events    []ParticipantEvent `db:"events" json:"events"`
	CreatedAt time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt time.Time          `db:"updated_at" json:"updated_at"`
}

// ItemByName resolves a rule's linked item against the event's item list.
func (e *Event) ItemByName(name string) (Item, bool) {
	for _, it := range e.Items {
		if it.Name == name {
			return it, true
		}
	}
	return Item{}, false
}

// EventEntry returns the participant's entry for the given event, if any.
func (p *Participant) EventEntry(eventID int64) *ParticipantEvent {
	for i := range p.Events {
		if p.Events[i].EventID == eventID {
			return &p.Events[i]
		}
	}
	return nil
}
