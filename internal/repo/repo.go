package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/dbpg"

	"regflow/internal/model"
)

var (
	ErrEventNotFound       = errors.New("event not found")
	ErrFormNotFound        = errors.New("form not found")
	ErrParticipantNotFound = errors.New("participant not found")
	ErrPaymentNotFound     = errors.New("payment not found")
	ErrSubmissionNotFound  = errors.New("submission not found")
)

// MutatePayment edits one payment copy in place inside a locked aggregate
// row. Returning an error aborts the enclosing transaction.
type MutatePayment func(p *model.Payment) error

type Repository interface {
	CreateEvent(ctx context.Context, e *model.Event) (int64, error)
	GetEventByID(ctx context.Context, id int64) (*model.Event, error)
	GetAllEvents(ctx context.Context) ([]model.Event, error)
	ListOpenEvents(ctx context.Context, now time.Time) ([]model.Event, error)
	NextInvoiceNumberTx(ctx context.Context, eventID int64) (int64, error)

	CreateForm(ctx context.Context, f *model.Form) (int64, error)
	GetFormByID(ctx context.Context, id int64) (*model.Form, error)

	CreateParticipant(ctx context.Context, p *model.Participant) (int64, error)
	GetParticipantByEmail(ctx context.Context, email string) (*model.Participant, error)

	InsertSubmission(ctx context.Context, s *model.Submission) error
	DeleteSubmission(ctx context.Context, id string) error

	AppendEventPaymentTx(ctx context.Context, eventID int64, p model.Payment) error
	RemoveEventPaymentTx(ctx context.Context, eventID int64, transactionID string) error
	UpdateEventPaymentTx(ctx context.Context, eventID int64, transactionID string, mutate MutatePayment) error

	AppendParticipantPaymentTx(ctx context.Context, email string, eventID, formID int64, p model.Payment) error
	AppendParticipantPassTx(ctx context.Context, email string, eventID int64, pass model.EventPass) error
	UpdateParticipantPaymentTx(ctx context.Context, email string, eventID int64, transactionID string, mutate MutatePayment) error

	MigrateUp(migrationsDir string) error
	MigrateDown(migrationsDir string) error
}

type repository struct {
	db  *dbpg.DB
	log *zerolog.Logger
}

func NewRepository(db *dbpg.DB, log *zerolog.Logger) (Repository, error) {
	if db == nil {
		return nil, fmt.Errorf("db cannot be nil")
	}
	if err := db.Master.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping DB: %w", err)
	}
	return &repository{db: db, log: log}, nil
}

func (r *repository) MigrateUp(migrationsDir string) error {
	return r.applyMigrations(migrationsDir, "*.up.sql")
}

func (r *repository) MigrateDown(migrationsDir string) error {
	return r.applyMigrations(migrationsDir, "*.down.sql")
}

func (r *repository) applyMigrations(migrationsDir, pattern string) error {
	files, err := filepath.Glob(filepath.Join(migrationsDir, pattern))
	if err != nil {
		return fmt.Errorf("failed to read migration files: %w", err)
	}

	for _, file := range files {
		sqlBytes, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read migration file %s: %w", file, err)
		}
		if _, err := r.db.ExecContext(context.Background(), string(sqlBytes)); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", file, err)
		}
	}

	r.log.Info().Msgf("Migrations %s applied from %s", pattern, migrationsDir)
	return nil
}

func (r *repository) CreateEvent(ctx context.Context, e *model.Event) (int64, error) {
	items, err := json.Marshal(e.Items)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal items: %w", err)
	}
	rules, err := json.Marshal(e.Rules)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal rules: %w", err)
	}

	query := `
		INSERT INTO events (name, start_time, end_time, items, rules, payments, invoice_seq)
		VALUES ($1, $2, $3, $4, $5, '[]'::jsonb, 0)
		RETURNING id
	`
	var id int64
	if err := r.db.QueryRowContext(ctx, query, e.Name, e.StartTime, e.EndTime, items, rules).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to insert event: %w", err)
	}
	return id, nil
}

func (r *repository) GetEventByID(ctx context.Context, id int64) (*model.Event, error) {
	query := `
		SELECT id, name, start_time, end_time, items, rules, payments, invoice_seq, created_at, updated_at
		FROM events WHERE id = $1
	`
	return scanEvent(r.db.QueryRowContext(ctx, query, id))
}

func (r *repository) GetAllEvents(ctx context.Context) ([]model.Event, error) {
	query := `
		SELECT id, name, start_time, end_time, items, rules, payments, invoice_seq, created_at, updated_at
		FROM events
		ORDER BY created_at DESC
	`
	return r.queryEvents(ctx, query)
}

// ListOpenEvents returns events whose end boundary is still in the future;
// completed events are never reconciled.
func (r *repository) ListOpenEvents(ctx context.Context, now time.Time) ([]model.Event, error) {
	query := `
		SELECT id, name, start_time, end_time, items, rules, payments, invoice_seq, created_at, updated_at
		FROM events
		WHERE end_time > $1
		ORDER BY id ASC
	`
	return r.queryEvents(ctx, query, now)
}

func (r *repository) queryEvents(ctx context.Context, query string, args ...any) ([]model.Event, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*model.Event, error) {
	var (
		e        model.Event
		items    []byte
		rules    []byte
		payments []byte
	)
	if err := row.Scan(
		&e.ID, &e.Name, &e.StartTime, &e.EndTime,
		&items, &rules, &payments, &e.InvoiceSeq, &e.CreatedAt, &e.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("failed to scan event: %w", err)
	}
	if err := json.Unmarshal(items, &e.Items); err != nil {
		return nil, fmt.Errorf("failed to unmarshal items: %w", err)
	}
	if err := json.Unmarshal(rules, &e.Rules); err != nil {
		return nil, fmt.Errorf("failed to unmarshal rules: %w", err)
	}
	if err := json.Unmarshal(payments, &e.Payments); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payments: %w", err)
	}
	return &e, nil
}

// NextInvoiceNumberTx increments and returns the event's invoice counter.
func (r *repository) NextInvoiceNumberTx(ctx context.Context, eventID int64) (int64, error) {
	query := `
		UPDATE events SET invoice_seq = invoice_seq + 1, updated_at = NOW()
		WHERE id = $1
		RETURNING invoice_seq
	`
	var n int64
	if err := r.db.QueryRowContext(ctx, query, eventID).Scan(&n); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrEventNotFound
		}
		return 0, fmt.Errorf("failed to advance invoice counter: %w", err)
	}
	return n, nil
}

func (r *repository) CreateForm(ctx context.Context, f *model.Form) (int64, error) {
	questions, err := json.Marshal(f.Questions)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal questions: %w", err)
	}

	query := `
		INSERT INTO forms (event_id, name, used_for_registration, questions)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`
	var id int64
	if err := r.db.QueryRowContext(ctx, query, f.EventID, f.Name, f.UsedForRegistration, questions).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to insert form: %w", err)
	}
	return id, nil
}

func (r *repository) GetFormByID(ctx context.Context, id int64) (*model.Form, error) {
	query := `
		SELECT id, event_id, name, used_for_registration, questions
		FROM forms WHERE id = $1
	`
	var (
		f         model.Form
		questions []byte
	)
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&f.ID, &f.EventID, &f.Name, &f.UsedForRegistration, &questions,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrFormNotFound
		}
		return nil, fmt.Errorf("failed to scan form: %w", err)
	}
	if err := json.Unmarshal(questions, &f.Questions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal questions: %w", err)
	}
	return &f, nil
}

func (r *repository) CreateParticipant(ctx context.Context, p *model.Participant) (int64, error) {
	events := p.Events
	if events == nil {
		events = []model.ParticipantEvent{}
	}
	eventsJSON, err := json.Marshal(events)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal participant events: %w", err)
	}

	query := `
		INSERT INTO participants (email, full_name, events)
		VALUES ($1, $2, $3)
		RETURNING id
	`
	var id int64
	if err := r.db.QueryRowContext(ctx, query, p.Email, p.FullName, eventsJSON).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to insert participant: %w", err)
	}
	return id, nil
}

func (r *repository) GetParticipantByEmail(ctx context.Context, email string) (*model.Participant, error) {
	query := `
		SELECT id, email, full_name, events, created_at, updated_at
		FROM participants WHERE email = $1
	`
	var (
		p      model.Participant
		events []byte
	)
	err := r.db.QueryRowContext(ctx, query, email).Scan(
		&p.ID, &p.Email, &p.FullName, &events, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrParticipantNotFound
		}
		return nil, fmt.Errorf("failed to scan participant: %w", err)
	}
	if err := json.Unmarshal(events, &p.Events); err != nil {
		return nil, fmt.Errorf("failed to unmarshal participant events: %w", err)
	}
	return &p, nil
}

func (r *repository) InsertSubmission(ctx context.Context, s *model.Submission) error {
	answers, err := json.Marshal(s.Answers)
	if err != nil {
		return fmt.Errorf("failed to marshal answers: %w", err)
	}

	query := `
		INSERT INTO submissions (id, form_id, event_id, email, answers, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := r.db.ExecContext(ctx, query, s.ID, s.FormID, s.EventID, s.Email, answers, s.CreatedAt); err != nil {
		return fmt.Errorf("failed to insert submission: %w", err)
	}
	return nil
}

func (r *repository) DeleteSubmission(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM submissions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete submission: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrSubmissionNotFound
	}
	return nil
}

// withEventPayments locks one event row, hands its payment list to mutate,
// and writes the result back. The whole edit is one document-scoped
// transaction.
func (r *repository) withEventPayments(ctx context.Context, eventID int64, mutate func([]model.Payment) ([]model.Payment, error)) error {
	tx, err := r.db.Master.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	var raw []byte
	err = tx.QueryRowContext(ctx, `SELECT payments FROM events WHERE id = $1 FOR UPDATE`, eventID).Scan(&raw)
	if err != nil {
		_ = tx.Rollback()
		if errors.Is(err, sql.ErrNoRows) {
			return ErrEventNotFound
		}
		return fmt.Errorf("failed to lock event row: %w", err)
	}

	var payments []model.Payment
	if err := json.Unmarshal(raw, &payments); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to unmarshal event payments: %w", err)
	}

	payments, err = mutate(payments)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	if payments == nil {
		payments = []model.Payment{}
	}

	updated, err := json.Marshal(payments)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to marshal event payments: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE events SET payments = $1, updated_at = NOW() WHERE id = $2`, updated, eventID); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to update event payments: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *repository) AppendEventPaymentTx(ctx context.Context, eventID int64, p model.Payment) error {
	return r.withEventPayments(ctx, eventID, func(payments []model.Payment) ([]model.Payment, error) {
		return append(payments, p), nil
	})
}

func (r *repository) RemoveEventPaymentTx(ctx context.Context, eventID int64, transactionID string) error {
	return r.withEventPayments(ctx, eventID, func(payments []model.Payment) ([]model.Payment, error) {
		kept := payments[:0]
		for _, p := range payments {
			if p.TransactionID != transactionID {
				kept = append(kept, p)
			}
		}
		return kept, nil
	})
}

func (r *repository) UpdateEventPaymentTx(ctx context.Context, eventID int64, transactionID string, mutate MutatePayment) error {
	return r.withEventPayments(ctx, eventID, func(payments []model.Payment) ([]model.Payment, error) {
		for i := range payments {
			if payments[i].TransactionID == transactionID {
				if err := mutate(&payments[i]); err != nil {
					return nil, err
				}
				return payments, nil
			}
		}
		return nil, ErrPaymentNotFound
	})
}

// withParticipant is the participant-side counterpart of withEventPayments.
func (r *repository) withParticipant(ctx context.Context, email string, mutate func(*model.Participant) error) error {
	tx, err := r.db.Master.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	var (
		p   model.Participant
		raw []byte
	)
	err = tx.QueryRowContext(ctx, `SELECT id, email, full_name, events FROM participants WHERE email = $1 FOR UPDATE`, email).
		Scan(&p.ID, &p.Email, &p.FullName, &raw)
	if err != nil {
		_ = tx.Rollback()
		if errors.Is(err, sql.ErrNoRows) {
			return ErrParticipantNotFound
		}
		return fmt.Errorf("failed to lock participant row: %w", err)
	}
	if err := json.Unmarshal(raw, &p.Events); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to unmarshal participant events: %w", err)
	}

	if err := mutate(&p); err != nil {
		_ = tx.Rollback()
		return err
	}
	if p.Events == nil {
		p.Events = []model.ParticipantEvent{}
	}

	updated, err := json.Marshal(p.Events)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to marshal participant events: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE participants SET events = $1, updated_at = NOW() WHERE id = $2`, updated, p.ID); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to update participant events: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *repository) AppendParticipantPaymentTx(ctx context.Context, email string, eventID, formID int64, p model.Payment) error {
	return r.withParticipant(ctx, email, func(participant *model.Participant) error {
		entry := participant.EventEntry(eventID)
		if entry == nil {
			participant.Events = append(participant.Events, model.ParticipantEvent{EventID: eventID})
			entry = &participant.Events[len(participant.Events)-1]
		}
		if formID != 0 && !containsForm(entry.Forms, formID) {
			entry.Forms = append(entry.Forms, formID)
		}
		entry.Payments = append(entry.Payments, p)
		return nil
	})
}

func (r *repository) AppendParticipantPassTx(ctx context.Context, email string, eventID int64, pass model.EventPass) error {
	return r.withParticipant(ctx, email, func(participant *model.Participant) error {
		entry := participant.EventEntry(eventID)
		if entry == nil {
			participant.Events = append(participant.Events, model.ParticipantEvent{EventID: eventID})
			entry = &participant.Events[len(participant.Events)-1]
		}
		entry.Passes = append(entry.Passes, pass)
		return nil
	})
}

func (r *repository) UpdateParticipantPaymentTx(ctx context.Context, email string, eventID int64, transactionID string, mutate MutatePayment) error {
	return r.withParticipant(ctx, email, func(participant *model.Participant) error {
		entry := participant.EventEntry(eventID)
		if entry == nil {
			return ErrPaymentNotFound
		}
		for i := range entry.Payments {
			if entry.Payments[i].TransactionID == transactionID {
				return mutate(&entry.Payments[i])
			}
		}
		return ErrPaymentNotFound
	})
}

func containsForm(forms []int64, formID int64) bool {
	for _, f := range forms {
		if f == formID {
			return true
		}
	}
	return false
}
