package dto

import (
	"time"

	"github.com/wb-go/wbf/ginext"

	"regflow/internal/model"
)

const (
	FieldBadFormat     = "FIELD_BADFORMAT"
	FieldIncorrect     = "FIELD_INCORRECT"
	ServiceUnavailable = "SERVICE_UNAVAILABLE"
	InternalError      = "Service is currently unavailable. Please try again later."

	EventNotFound       = "EVENT_NOT_FOUND"
	FormNotFound        = "FORM_NOT_FOUND"
	ParticipantNotFound = "PARTICIPANT_NOT_FOUND"
	PaymentNotFound     = "PAYMENT_NOT_FOUND"
	Unauthorized        = "UNAUTHORIZED"
)

// Notification kinds — the closed set of templates the mailer knows.
const (
	NotifySubmission  = "submission"
	NotifyPaymentLink = "payment_link"
	NotifyPaid        = "paid"
	NotifyFree        = "free"
)

// NotificationIntent is the fire-and-forget message published for the mail
// worker. Category is the participation category taken from the invoicing
// answer and selects the template wording.
type NotificationIntent struct {
	Email     string    `json:"email"`
	Kind      string    `json:"kind"`
	Category  string    `json:"category,omitempty"`
	EventName string    `json:"event_name"`
	Package   string    `json:"package,omitempty"`
	Amount    int64     `json:"amount,omitempty"`
	Currency  string    `json:"currency,omitempty"`
	PayURL    string    `json:"pay_url,omitempty"`
	SentAt    time.Time `json:"sent_at"`
}

type CreateEventRequest struct {
	Name      string       `json:"name" validate:"required"`
	StartTime time.Time    `json:"start_time" validate:"required"`
	EndTime   time.Time    `json:"end_time" validate:"required"`
	Items     []model.Item `json:"items"`
	Rules     []model.Rule `json:"rules"`
}

type CreateFormRequest struct {
	Name                string           `json:"name" validate:"required"`
	UsedForRegistration bool             `json:"used_for_registration"`
	Questions           []model.Question `json:"questions" validate:"required,min=1"`
}

type SubmitRequest struct {
	EventID int64          `json:"event_id" validate:"required"`
	Email   string         `json:"email" validate:"required,email"`
	Answers []model.Answer `json:"answers" validate:"required,min=1"`
}

type PaymentActionRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type VerifyPassRequest struct {
	Token string `json:"token" validate:"required"`
}

type PassClaimsResponse struct {
	Email    string    `json:"email"`
	EventID  int64     `json:"event_id"`
	FormID   int64     `json:"form_id"`
	IssuedAt time.Time `json:"issued_at"`
}

type SubmitResponse struct {
	SubmissionID string         `json:"submission_id"`
	Payment      *model.Payment `json:"payment,omitempty"`
}

type PaymentLinkResponse struct {
	TransactionID string `json:"transaction_id"`
	PaymentURL    string `json:"payment_url"`
}

type EventResponse struct {
	ID        int64        `json:"id"`
	Name      string       `json:"name"`
	StartTime time.Time    `json:"start_time"`
	EndTime   time.Time    `json:"end_time"`
	Items     []model.Item `json:"items"`
	CreatedAt time.Time    `json:"created_at"`
}

type EventInfoResponse struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	StartTime time.Time       `json:"start_time"`
	EndTime   time.Time       `json:"end_time"`
	Items     []model.Item    `json:"items"`
	Payments  []model.Payment `json:"payments,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type Response struct {
	Status string `json:"status"`
	Error  *Error `json:"error,omitempty"`
	Data   any    `json:"data,omitempty"`
}

type Error struct {
	Code string `json:"code"`
	Desc string `json:"desc"`
}

func BadResponseError(c *ginext.Context, code, desc string) {
	c.JSON(400, Response{
		Status: "error",
		Error: &Error{
			Code: code,
			Desc: desc,
		},
	})
}

func InternalServerError(c *ginext.Context) {
	c.JSON(500, Response{
		Status: "error",
		Error: &Error{
			Code: ServiceUnavailable,
			Desc: InternalError,
		},
	})
}

func UnauthorizedError(c *ginext.Context) {
	c.JSON(401, Response{
		Status: "error",
		Error: &Error{
			Code: Unauthorized,
			Desc: "Admin token missing or invalid",
		},
	})
}

func EventNotFoundError(c *ginext.Context) {
	BadResponseError(c, EventNotFound, "Event not found")
}

func FormNotFoundError(c *ginext.Context) {
	BadResponseError(c, FormNotFound, "Form not found")
}

func ParticipantNotFoundError(c *ginext.Context) {
	BadResponseError(c, ParticipantNotFound, "Participant not found")
}

func PaymentNotFoundError(c *ginext.Context) {
	BadResponseError(c, PaymentNotFound, "Payment not found")
}

func SuccessResponse(c *ginext.Context, data any) {
	c.JSON(200, Response{
		Status: "ok",
		Data:   data,
	})
}

func SuccessCreatedResponse(c *ginext.Context, data any) {
	c.JSON(201, Response{
		Status: "ok",
		Data:   data,
	})
}
