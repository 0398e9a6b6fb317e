package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"clientpin/auth"
	"clientpin/check"
	"clientpin/crm"
	"clientpin/dispute"
)

// CheckEvaluator runs the evaluation pipeline for a contact.
type CheckEvaluator interface {
	EvaluateCheck(ctx context.Context, contact check.ContactInput, actor check.Actor) (check.CheckResult, error)
}

// DisputeCoordinator drives the dispute lifecycle.
type DisputeCoordinator interface {
	RaiseDispute(ctx context.Context, checkID, raisedBy, comment string) (dispute.Record, error)
	ResolveDispute(ctx context.Context, disputeID, resolvedBy, finalStatus string, accept bool) (dispute.Record, error)
}

// HistoryBrowser serves the admin history view.
type HistoryBrowser interface {
	ListHistory(ctx context.Context, filters check.HistoryFilters) ([]check.HistoryEntry, int, error)
}

// Handler bundles the HTTP surface's dependencies.
type Handler struct {
	auth     *auth.Service
	checks   CheckEvaluator
	disputes DisputeCoordinator
	history  HistoryBrowser
	validate *validator.Validate
	log      zerolog.Logger
}

func NewHandler(authSvc *auth.Service, checks CheckEvaluator, disputes DisputeCoordinator, history HistoryBrowser, log zerolog.Logger) *Handler {
	return &Handler{
		auth:     authSvc,
		checks:   checks,
		disputes: disputes,
		history:  history,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		log:      log,
	}
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string  `json:"email" validate:"required,email"`
		Password string  `json:"password" validate:"required"`
		FullName string  `json:"full_name" validate:"required"`
		Role     string  `json:"role"`
		AgencyID *string `json:"agency_id"`
	}
	if err := h.decodeValid(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", validationMessage(err))
		return
	}

	user, err := h.auth.Register(r.Context(), auth.RegisterRequest{
		Email:    req.Email,
		Password: req.Password,
		FullName: req.FullName,
		Role:     auth.Role(req.Role),
		AgencyID: req.AgencyID,
	})
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrDuplicateEmail):
			writeError(w, http.StatusConflict, "duplicate_email", "email already registered")
		case errors.Is(err, auth.ErrWeakPassword):
			writeError(w, http.StatusBadRequest, "weak_password", err.Error())
		default:
			h.internal(w, err, "register failed")
		}
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"id":        user.ID,
		"email":     user.Email,
		"full_name": user.FullName,
		"role":      user.Role,
		"agency_id": user.AgencyID,
	})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}
	if err := h.decodeValid(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", validationMessage(err))
		return
	}

	result, err := h.auth.Login(r.Context(), auth.LoginRequest{Email: req.Email, Password: req.Password})
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid_credentials", "wrong email or password")
			return
		}
		h.internal(w, err, "login failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"token": result.Token,
		"user": map[string]any{
			"id":        result.User.ID,
			"email":     result.User.Email,
			"full_name": result.User.FullName,
			"role":      result.User.Role,
			"agency_id": result.User.AgencyID,
		},
	})
}

func (h *Handler) handleEvaluateCheck(w http.ResponseWriter, r *http.Request) {
	ident, _ := identityFrom(r.Context())

	var req struct {
		Phone    string  `json:"phone" validate:"required"`
		FullName *string `json:"full_name"`
		Email    *string `json:"email" validate:"omitempty,email"`
	}
	if err := h.decodeValid(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", validationMessage(err))
		return
	}

	actor := check.Actor{
		Kind:     actorKind(ident.Role),
		ID:       ident.UserID,
		AgencyID: ident.AgencyID,
	}
	result, err := h.checks.EvaluateCheck(r.Context(), check.ContactInput{
		Phone:    req.Phone,
		FullName: req.FullName,
		Email:    req.Email,
	}, actor)
	if err != nil {
		switch {
		case errors.Is(err, check.ErrInvalidContact):
			writeError(w, http.StatusUnprocessableEntity, "invalid_contact", "phone number is not valid")
		case errors.Is(err, check.ErrClientNotFound):
			writeError(w, http.StatusNotFound, "client_not_found", "no client matches the contact data")
		case errors.Is(err, crm.ErrLookupFailed):
			writeError(w, http.StatusBadGateway, "external_lookup_failed", "external contact lookup failed")
		default:
			h.internal(w, err, "check evaluation failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"check_id":         result.CheckID,
		"status":           result.Status,
		"status_title":     result.StatusTitle,
		"button_slug":      result.ButtonSlug,
		"fixed":            result.Fixed,
		"dispute_eligible": result.DisputeEligible,
	})
}

func (h *Handler) handleRaiseDispute(w http.ResponseWriter, r *http.Request) {
	ident, _ := identityFrom(r.Context())

	var req struct {
		CheckID string `json:"check_id" validate:"required"`
		Comment string `json:"comment" validate:"required"`
	}
	if err := h.decodeValid(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", validationMessage(err))
		return
	}

	d, err := h.disputes.RaiseDispute(r.Context(), req.CheckID, ident.UserID, req.Comment)
	if err != nil {
		switch {
		case errors.Is(err, check.ErrCheckNotFound):
			writeError(w, http.StatusNotFound, "check_not_found", "check does not exist")
		case errors.Is(err, dispute.ErrAlreadyOpen):
			writeError(w, http.StatusConflict, "dispute_already_open", "an active dispute already exists for this check")
		default:
			h.internal(w, err, "raise dispute failed")
		}
		return
	}

	writeJSON(w, http.StatusCreated, disputeJSON(d))
}

func (h *Handler) handleResolveDispute(w http.ResponseWriter, r *http.Request) {
	ident, _ := identityFrom(r.Context())
	disputeID := chi.URLParam(r, "dispute_id")

	var req struct {
		FinalStatus string `json:"final_status" validate:"required"`
		Accept      bool   `json:"accept"`
	}
	if err := h.decodeValid(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", validationMessage(err))
		return
	}

	d, err := h.disputes.ResolveDispute(r.Context(), disputeID, ident.UserID, req.FinalStatus, req.Accept)
	if err != nil {
		switch {
		case errors.Is(err, dispute.ErrNotFound):
			writeError(w, http.StatusNotFound, "dispute_not_found", "dispute does not exist")
		case errors.Is(err, check.ErrCheckNotFound):
			writeError(w, http.StatusNotFound, "check_not_found", "check does not exist")
		case errors.Is(err, dispute.ErrInvalidTransition):
			writeError(w, http.StatusConflict, "invalid_transition", "dispute is not in a resolvable state")
		default:
			h.internal(w, err, "resolve dispute failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, disputeJSON(d))
}

func (h *Handler) handleListHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters := check.HistoryFilters{
		Phone:    strings.TrimSpace(q.Get("phone")),
		Page:     atoiDefault(q.Get("page"), 1),
		PageSize: atoiDefault(q.Get("page_size"), 20),
	}
	if raw := strings.TrimSpace(q.Get("status")); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			if s = strings.TrimSpace(s); s != "" {
				filters.StatusSlugs = append(filters.StatusSlugs, s)
			}
		}
	}
	if t, ok := parseTime(q.Get("from")); ok {
		filters.From = &t
	}
	if t, ok := parseTime(q.Get("to")); ok {
		filters.To = &t
	}

	entries, total, err := h.history.ListHistory(r.Context(), filters)
	if err != nil {
		h.internal(w, err, "list history failed")
		return
	}

	items := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		items = append(items, map[string]any{
			"id":                 e.ID,
			"check_id":           e.CheckID,
			"client_id":          e.ClientID,
			"client_phone":       e.ClientPhone,
			"agent_id":           e.AgentID,
			"agency_id":          e.AgencyID,
			"result_status":      e.ResultStatus,
			"matched_term_id":    e.MatchedTermID,
			"matched_contact_id": e.MatchedContactID,
			"facts":              e.Facts,
			"created_at":         e.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": items,
		"total": total,
		"page":  filters.Page,
	})
}

func (h *Handler) internal(w http.ResponseWriter, err error, msg string) {
	h.log.Error().Err(err).Msg(msg)
	writeError(w, http.StatusInternalServerError, "internal", "internal server error")
}

func disputeJSON(d dispute.Record) map[string]any {
	return map[string]any{
		"id":              d.ID,
		"check_id":        d.CheckID,
		"raised_by":       d.RaisedBy,
		"comment":         d.Comment,
		"state":           d.State,
		"accepted":        d.Accepted,
		"resolved_status": d.ResolvedStatus,
		"resolved_by":     d.ResolvedBy,
		"created_at":      d.CreatedAt,
		"resolved_at":     d.ResolvedAt,
	}
}

func actorKind(role auth.Role) check.ActorKind {
	switch role {
	case auth.RoleRepresentative:
		return check.ActorRepresentative
	case auth.RoleAdmin:
		return check.ActorAdmin
	default:
		return check.ActorAgent
	}
}

func atoiDefault(raw string, def int) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def
	}
	n := 0
	for _, c := range raw {
		if c < '0' || c > '9' {
			return def
		}
		n = n*10 + int(c-'0')
	}
	if n == 0 {
		return def
	}
	return n
}

func parseTime(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, true
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t, true
	}
	return time.Time{}, false
}
