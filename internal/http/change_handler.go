package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/example/event-board/internal/application"
	"github.com/example/event-board/internal/changes"
)

type changeService interface {
	Propose(ctx context.Context, principal application.Principal, req changes.Request) (changes.Proposal, error)
	GetProposal(ctx context.Context, principal application.Principal, id string) (changes.Proposal, error)
	Confirm(ctx context.Context, principal application.Principal, id string) (changes.Proposal, error)
	Discard(ctx context.Context, principal application.Principal, id string) (changes.Proposal, error)
}

// ChangeHandler serves the propose and confirm flow for event updates.
type ChangeHandler struct {
	service   changeService
	responder responder
	logger    *slog.Logger
}

func NewChangeHandler(service changeService, logger *slog.Logger) *ChangeHandler {
	base := defaultLogger(logger)
	return &ChangeHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *ChangeHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return handlerLogger(ctx, h.logger, "ChangeHandler", operation, attrs...)
}

// Propose handles POST /events/{id}/changes.
func (h *ChangeHandler) Propose(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	eventID := r.PathValue("id")
	logger := h.log(r.Context(), "Propose", "principal_id", principal.UserID, "event_id", eventID)

	var req proposeRequest
	if err := decodeRequest(w, r, &req); err != nil {
		logger.WarnContext(r.Context(), "invalid change request", "error", err)
		writeDecodeError(h.responder, w, r, err)
		return
	}

	proposal, err := h.service.Propose(r.Context(), principal, changes.Request{
		HeaderID: eventID,
		Header:   req.Header,
		Lines:    req.Lines,
		Rates:    req.Rates,
	})
	if err != nil {
		logger.ErrorContext(r.Context(), "failed to propose changes", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	w.Header().Set("Location", "/changes/"+proposal.ID)
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, toProposalDTO(proposal))
}

// Get handles GET /changes/{id}.
func (h *ChangeHandler) Get(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, "Get", func(ctx context.Context, principal application.Principal, id string) (changes.Proposal, error) {
		return h.service.GetProposal(ctx, principal, id)
	})
}

// Confirm handles POST /changes/{id}/confirm.
func (h *ChangeHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, "Confirm", func(ctx context.Context, principal application.Principal, id string) (changes.Proposal, error) {
		return h.service.Confirm(ctx, principal, id)
	})
}

// Discard handles POST /changes/{id}/discard.
func (h *ChangeHandler) Discard(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, "Discard", func(ctx context.Context, principal application.Principal, id string) (changes.Proposal, error) {
		return h.service.Discard(ctx, principal, id)
	})
}

func (h *ChangeHandler) resolve(w http.ResponseWriter, r *http.Request, operation string, call func(context.Context, application.Principal, string) (changes.Proposal, error)) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	id := r.PathValue("id")
	proposal, err := call(r.Context(), principal, id)
	if err != nil {
		h.log(r.Context(), operation, "principal_id", principal.UserID, "proposal_id", id).ErrorContext(r.Context(), "proposal request failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toProposalDTO(proposal))
}

type proposeRequest struct {
	Header changes.Fields       `json:"header"`
	Lines  []changes.LineUpdate `json:"lines" validate:"omitempty,dive"`
	Rates  []changes.RateUpdate `json:"rates" validate:"omitempty,dive"`
}

type proposalDTO struct {
	ID         string           `json:"id"`
	EventID    string           `json:"event_id"`
	State      changes.State    `json:"state"`
	Records    []changes.Record `json:"records"`
	Summary    changes.Summary  `json:"summary"`
	CreatedAt  string           `json:"created_at"`
	ExpiresAt  string           `json:"expires_at"`
	ResolvedAt *string          `json:"resolved_at"`
}

func toProposalDTO(p changes.Proposal) proposalDTO {
	dto := proposalDTO{
		ID:        p.ID,
		EventID:   p.HeaderID,
		State:     p.State,
		Records:   p.Records,
		Summary:   p.Summary(),
		CreatedAt: p.CreatedAt.UTC().Format(time.RFC3339),
		ExpiresAt: p.ExpiresAt.UTC().Format(time.RFC3339),
	}
	if dto.Records == nil {
		dto.Records = []changes.Record{}
	}
	if p.ResolvedAt != nil {
		resolved := p.ResolvedAt.UTC().Format(time.RFC3339)
		dto.ResolvedAt = &resolved
	}
	return dto
}
