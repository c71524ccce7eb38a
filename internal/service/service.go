package service

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/ginext"

	"regflow/internal/dto"
	"regflow/internal/gateway"
	"regflow/internal/model"
	"regflow/internal/payment"
	"regflow/internal/registration"
	"regflow/internal/repo"
	"regflow/internal/token"
	"regflow/pkg/validator"
)

type Service interface {
	CreateEvent(ctx *ginext.Context)
	CreateForm(ctx *ginext.Context)
	GetAllEvents(ctx *ginext.Context)
	GetInfo(ctx *ginext.Context)
	GetParticipant(ctx *ginext.Context)
	Submit(ctx *ginext.Context)
	CreatePaymentLink(ctx *ginext.Context)
	MarkFree(ctx *ginext.Context)
	VerifyPass(ctx *ginext.Context)
	IsAdmin(ctx *ginext.Context) bool
}

// PassVerifier checks a scanned event pass.
type PassVerifier interface {
	Verify(raw string) (token.PassClaims, error)
}

// AdminConfig is the injected admin credential; there is no global admin
// list anywhere in the process.
type AdminConfig struct {
	Token string
}

type service struct {
	repo   repo.Repository
	coord  *registration.Coordinator
	passes PassVerifier
	admin  AdminConfig
	log    *zerolog.Logger
}

func NewService(repository repo.Repository, coord *registration.Coordinator, passes PassVerifier, admin AdminConfig, logger *zerolog.Logger) Service {
	return &service{
		repo:   repository,
		coord:  coord,
		passes: passes,
		admin:  admin,
		log:    logger,
	}
}

func (s *service) IsAdmin(ctx *ginext.Context) bool {
	return s.admin.Token != "" && ctx.GetHeader("X-Admin-Token") == s.admin.Token
}

func (s *service) requireAdmin(ctx *ginext.Context) bool {
	if !s.IsAdmin(ctx) {
		dto.UnauthorizedError(ctx)
		return false
	}
	return true
}

func (s *service) CreateEvent(ctx *ginext.Context) {
	if !s.requireAdmin(ctx) {
		return
	}

	var req dto.CreateEventRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		s.log.Error().Err(err).Msg("failed to parse create event request")
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}
	if verr := validator.Validate(ctx, req); verr != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, fmt.Sprintf("%v", verr))
		return
	}

	event := &model.Event{
		Name:      req.Name,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		Items:     req.Items,
		Rules:     req.Rules,
	}
	id, err := s.repo.CreateEvent(ctx, event)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to create event in DB")
		dto.InternalServerError(ctx)
		return
	}

	s.log.Info().Int64("event_id", id).Msg("event created")
	dto.SuccessCreatedResponse(ctx, dto.EventResponse{
		ID:        id,
		Name:      req.Name,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		Items:     req.Items,
		CreatedAt: time.Now(),
	})
}

func (s *service) CreateForm(ctx *ginext.Context) {
	if !s.requireAdmin(ctx) {
		return
	}

	eventID, err := strconv.ParseInt(ctx.Param("id"), 10, 64)
	if err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid event ID")
		return
	}

	var req dto.CreateFormRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}
	if verr := validator.Validate(ctx, req); verr != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, fmt.Sprintf("%v", verr))
		return
	}

	if _, err := s.repo.GetEventByID(ctx, eventID); err != nil {
		dto.EventNotFoundError(ctx)
		return
	}

	form := &model.Form{
		EventID:             eventID,
		Name:                req.Name,
		UsedForRegistration: req.UsedForRegistration,
		Questions:           req.Questions,
	}
	id, err := s.repo.CreateForm(ctx, form)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to create form in DB")
		dto.InternalServerError(ctx)
		return
	}

	form.ID = id
	s.log.Info().Int64("form_id", id).Int64("event_id", eventID).Msg("form created")
	dto.SuccessCreatedResponse(ctx, form)
}

func (s *service) GetAllEvents(ctx *ginext.Context) {
	events, err := s.repo.GetAllEvents(ctx)
	if err != nil {
		dto.InternalServerError(ctx)
		return
	}

	isAdmin := s.IsAdmin(ctx)
	resp := make([]dto.EventInfoResponse, 0, len(events))
	for _, e := range events {
		item := dto.EventInfoResponse{
			ID:        e.ID,
			Name:      e.Name,
			StartTime: e.StartTime,
			EndTime:   e.EndTime,
			Items:     e.Items,
			CreatedAt: e.CreatedAt,
			UpdatedAt: e.UpdatedAt,
		}
		if isAdmin {
			item.Payments = e.Payments
		}
		resp = append(resp, item)
	}
	dto.SuccessResponse(ctx, resp)
}

func (s *service) GetInfo(ctx *ginext.Context) {
	eventID, err := strconv.ParseInt(ctx.Param("id"), 10, 64)
	if err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid event ID")
		return
	}

	event, err := s.repo.GetEventByID(ctx, eventID)
	if err != nil {
		dto.EventNotFoundError(ctx)
		return
	}

	resp := dto.EventInfoResponse{
		ID:        event.ID,
		Name:      event.Name,
		StartTime: event.StartTime,
		EndTime:   event.EndTime,
		Items:     event.Items,
		CreatedAt: event.CreatedAt,
		UpdatedAt: event.UpdatedAt,
	}
	if s.IsAdmin(ctx) {
		resp.Payments = event.Payments
	}
	dto.SuccessResponse(ctx, resp)
}

func (s *service) GetParticipant(ctx *ginext.Context) {
	if !s.requireAdmin(ctx) {
		return
	}

	participant, err := s.repo.GetParticipantByEmail(ctx, ctx.Param("email"))
	if err != nil {
		if errors.Is(err, repo.ErrParticipantNotFound) {
			dto.ParticipantNotFoundError(ctx)
			return
		}
		dto.InternalServerError(ctx)
		return
	}
	dto.SuccessResponse(ctx, participant)
}

func (s *service) Submit(ctx *ginext.Context) {
	formID, err := strconv.ParseInt(ctx.Param("id"), 10, 64)
	if err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid form ID")
		return
	}

	var req dto.SubmitRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}
	if verr := validator.Validate(ctx, req); verr != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, fmt.Sprintf("%v", verr))
		return
	}

	res, err := s.coord.Submit(ctx.Request.Context(), formID, req.EventID, req.Email, req.Answers)
	if err != nil {
		switch {
		case errors.Is(err, repo.ErrFormNotFound):
			dto.FormNotFoundError(ctx)
		case errors.Is(err, repo.ErrEventNotFound):
			dto.EventNotFoundError(ctx)
		case errors.Is(err, registration.ErrUnknownQuestion),
			errors.Is(err, registration.ErrFormEventMismatch):
			dto.BadResponseError(ctx, dto.FieldIncorrect, err.Error())
		default:
			s.log.Error().Err(err).Msg("failed to process submission")
			dto.InternalServerError(ctx)
		}
		return
	}

	s.log.Info().Str("submission_id", res.SubmissionID).Str("email", req.Email).Msg("submission accepted")
	dto.SuccessCreatedResponse(ctx, dto.SubmitResponse{
		SubmissionID: res.SubmissionID,
		Payment:      res.Payment,
	})
}

func (s *service) CreatePaymentLink(ctx *ginext.Context) {
	eventID, err := strconv.ParseInt(ctx.Param("id"), 10, 64)
	if err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid event ID")
		return
	}
	txID := ctx.Param("txid")

	var req dto.PaymentActionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}
	if verr := validator.Validate(ctx, req); verr != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, fmt.Sprintf("%v", verr))
		return
	}

	payURL, err := s.coord.CreatePaymentLink(ctx.Request.Context(), eventID, txID, req.Email)
	if err != nil {
		switch {
		case errors.Is(err, repo.ErrEventNotFound):
			dto.EventNotFoundError(ctx)
		case errors.Is(err, repo.ErrPaymentNotFound):
			dto.PaymentNotFoundError(ctx)
		case errors.Is(err, registration.ErrLinkAlreadyCreated),
			errors.Is(err, gateway.ErrNoGateway):
			dto.BadResponseError(ctx, dto.FieldIncorrect, err.Error())
		default:
			s.log.Error().Err(err).Str("transaction_id", txID).Msg("failed to create payment link")
			dto.InternalServerError(ctx)
		}
		return
	}

	dto.SuccessResponse(ctx, dto.PaymentLinkResponse{
		TransactionID: txID,
		PaymentURL:    payURL,
	})
}

func (s *service) MarkFree(ctx *ginext.Context) {
	if !s.requireAdmin(ctx) {
		return
	}

	eventID, err := strconv.ParseInt(ctx.Param("id"), 10, 64)
	if err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid event ID")
		return
	}
	txID := ctx.Param("txid")

	var req dto.PaymentActionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}
	if verr := validator.Validate(ctx, req); verr != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, fmt.Sprintf("%v", verr))
		return
	}

	if err := s.coord.MarkFree(ctx.Request.Context(), eventID, txID, req.Email); err != nil {
		switch {
		case errors.Is(err, repo.ErrEventNotFound):
			dto.EventNotFoundError(ctx)
		case errors.Is(err, repo.ErrPaymentNotFound):
			dto.PaymentNotFoundError(ctx)
		case errors.Is(err, payment.ErrIllegalTransition):
			dto.BadResponseError(ctx, dto.FieldIncorrect, err.Error())
		default:
			s.log.Error().Err(err).Str("transaction_id", txID).Msg("failed to apply free override")
			dto.InternalServerError(ctx)
		}
		return
	}

	s.log.Info().Str("transaction_id", txID).Msg("free override applied")
	dto.SuccessResponse(ctx, map[string]string{"transaction_id": txID, "status": model.StatusFree})
}

// VerifyPass checks a scanned event pass and returns who it was issued to.
func (s *service) VerifyPass(ctx *ginext.Context) {
	if !s.requireAdmin(ctx) {
		return
	}

	var req dto.VerifyPassRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}
	if verr := validator.Validate(ctx, req); verr != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, fmt.Sprintf("%v", verr))
		return
	}

	claims, err := s.passes.Verify(req.Token)
	if err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Pass is invalid")
		return
	}
	dto.SuccessResponse(ctx, dto.PassClaimsResponse{
		Email:    claims.Email,
		EventID:  claims.EventID,
		FormID:   claims.FormID,
		IssuedAt: claims.IssuedAt,
	})
}
