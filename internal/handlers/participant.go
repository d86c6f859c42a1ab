package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/phishrange/apiserver/internal/services"
	"github.com/phishrange/apiserver/internal/store"
)

// ParticipantHandler exposes the four participant-facing operations:
// register, lookup, dispatch, submit. Authorization on every operation is
// knowledge of the correct (email, username) pair; there are no sessions.
type ParticipantHandler struct {
	users    *services.UserService
	dispatch *services.DispatchService
	flags    *services.FlagService
}

// NewParticipantHandler constructs a handler with the provided services.
func NewParticipantHandler(
	users *services.UserService,
	dispatch *services.DispatchService,
	flags *services.FlagService,
) *ParticipantHandler {
	return &ParticipantHandler{
		users:    users,
		dispatch: dispatch,
		flags:    flags,
	}
}

// ParticipantRouter registers the participant routes on the given router.
func ParticipantRouter(
	r chi.Router,
	users *services.UserService,
	dispatch *services.DispatchService,
	flags *services.FlagService,
) {
	handler := NewParticipantHandler(users, dispatch, flags)

	r.Post("/participants/register", handler.Register)
	r.Post("/participants/lookup", handler.Lookup)
	r.Post("/challenges/{challengeNumber}/dispatch", handler.Dispatch)
	r.Post("/challenges/{challengeNumber}/submit", handler.Submit)
}

type IdentityRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
}

type SubmitRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Flag     string `json:"flag"`
}

// Register creates the account on first call and is idempotent for the same
// pair afterwards. A different username for a known email is a conflict.
func (h *ParticipantHandler) Register(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeIdentity(w, r)
	if !ok {
		return
	}

	user, err := h.users.Register(r.Context(), req.Email, req.Username)
	if err != nil {
		if errors.Is(err, services.ErrIdentityConflict) {
			writeError(w, http.StatusConflict, "email is already bound to a different username")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to register participant")
		return
	}

	writeJSON(w, http.StatusCreated, user)
}

// Lookup returns the participant record with the full progress map.
func (h *ParticipantHandler) Lookup(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeIdentity(w, r)
	if !ok {
		return
	}

	user, err := h.users.Lookup(r.Context(), req.Email, req.Username)
	if err != nil {
		writeIdentityError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// Dispatch sends (or re-sends) challenge material to the participant's email
// address and records the dispatch.
func (h *ParticipantHandler) Dispatch(w http.ResponseWriter, r *http.Request) {
	number, err := parseChallengeNumber(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req, ok := decodeIdentity(w, r)
	if !ok {
		return
	}

	if err := h.dispatch.SendChallenge(r.Context(), req.Email, req.Username, number); err != nil {
		if errors.Is(err, services.ErrChallengeNotFound) {
			writeError(w, http.StatusNotFound, "challenge not found")
			return
		}
		if isIdentityError(err) {
			writeIdentityError(w, err)
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to dispatch challenge")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "dispatched"})
}

// Submit verifies a flag candidate. An incorrect flag is a 200 with
// correct=false, not an error — the caller retries with a new candidate.
func (h *ParticipantHandler) Submit(w http.ResponseWriter, r *http.Request) {
	number, err := parseChallengeNumber(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if strings.TrimSpace(req.Email) == "" || strings.TrimSpace(req.Username) == "" {
		writeError(w, http.StatusBadRequest, "email and username are required")
		return
	}

	result, err := h.flags.Submit(r.Context(), req.Email, req.Username, number, req.Flag)
	if err != nil {
		if errors.Is(err, services.ErrChallengeNotFound) {
			writeError(w, http.StatusNotFound, "challenge not found")
			return
		}
		if isIdentityError(err) {
			writeIdentityError(w, err)
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to verify flag")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func decodeIdentity(w http.ResponseWriter, r *http.Request) (IdentityRequest, bool) {
	var req IdentityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return IdentityRequest{}, false
	}
	if strings.TrimSpace(req.Email) == "" || strings.TrimSpace(req.Username) == "" {
		writeError(w, http.StatusBadRequest, "email and username are required")
		return IdentityRequest{}, false
	}
	return req, true
}

func isIdentityError(err error) bool {
	return errors.Is(err, store.ErrNotFound) || errors.Is(err, services.ErrIdentityMismatch)
}

func writeIdentityError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "unknown participant")
	case errors.Is(err, services.ErrIdentityMismatch):
		writeError(w, http.StatusForbidden, "username does not match the registered email")
	default:
		writeError(w, http.StatusInternalServerError, "failed to look up participant")
	}
}

func parseChallengeNumber(r *http.Request) (int, error) {
	raw := chi.URLParam(r, "challengeNumber")
	number, err := strconv.Atoi(raw)
	if err != nil || number < 1 {
		return 0, errors.New("invalid challenge number")
	}
	return number, nil
}
