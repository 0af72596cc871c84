package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"game-activation-ledger/internal/domain"
	"game-activation-ledger/internal/domain/model"
	"game-activation-ledger/internal/infra/api"
	"game-activation-ledger/internal/infra/logging"
)

// maxBodyBytes caps JSON request bodies; the largest is a 1000-id delete list.
const maxBodyBytes = 64 << 10

type redeemRequest struct {
	Code string `json:"code"`
}

type redeemResponse struct {
	GameID      string             `json:"game_id"`
	Message     string             `json:"message"`
	Entitlement *model.Entitlement `json:"entitlement"`
}

type entitlementsResponse struct {
	Data  []*model.Entitlement `json:"data"`
	Count int                  `json:"count"`
}

type grantRequest struct {
	GameID string `json:"game_id"`
}

type deleteManyRequest struct {
	IDs []string `json:"ids"`
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		api.WriteError(w, http.StatusBadRequest, "INVALID_BODY", "invalid request body")
		return false
	}
	return true
}

// writeUseCaseError maps domain errors onto HTTP. Rejections are expected
// outcomes and keep their reason code; unknown errors are 500 and retryable.
func (s *Server) writeUseCaseError(w http.ResponseWriter, r *http.Request, err error) {
	if rej, ok := domain.AsRejection(err); ok {
		status := http.StatusConflict
		if rej.Reason == domain.ReasonNotFound {
			status = http.StatusNotFound
		}
		api.WriteError(w, status, string(rej.Reason), s.message(r, rej.Error(), "reason."+string(rej.Reason)))
		return
	}
	switch {
	case errors.Is(err, domain.ErrInvalidArgument), errors.Is(err, domain.ErrBatchTooLarge):
		api.WriteError(w, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error())
	case errors.Is(err, domain.ErrGameNotFound):
		api.WriteError(w, http.StatusNotFound, "GAME_NOT_FOUND", err.Error())
	case errors.Is(err, domain.ErrCodeNotFound), errors.Is(err, domain.ErrEntitlementNotFound), errors.Is(err, domain.ErrNotFound):
		api.WriteError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, domain.ErrCodeAlreadyUsed):
		api.WriteError(w, http.StatusConflict, string(domain.ReasonAlreadyUsed), err.Error())
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		api.WriteError(w, http.StatusServiceUnavailable, "TIMEOUT", "request did not complete in time")
	default:
		logging.With(r.Context(), s.log).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		api.WriteError(w, http.StatusInternalServerError, "INTERNAL", "internal error, retry later")
	}
}

func mustPrincipal(r *http.Request) model.Principal {
	p, _ := principalFrom(r.Context())
	return p
}

// ---- user routes ----

func (s *Server) handleRedeem(w http.ResponseWriter, r *http.Request) {
	var req redeemRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	ent, err := s.redeem.Redeem(r.Context(), req.Code, mustPrincipal(r).UserID)
	if errors.Is(err, domain.ErrInvalidArgument) {
		api.WriteError(w, http.StatusBadRequest, "INVALID_CODE", s.message(r, err.Error(), "error.invalid_code"))
		return
	}
	if err != nil {
		s.writeUseCaseError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, redeemResponse{
		GameID:      ent.GameID,
		Message:     s.message(r, "redeemed", "redeem.success", ent.GameID),
		Entitlement: ent,
	})
}

func (s *Server) handleMyEntitlements(w http.ResponseWriter, r *http.Request) {
	s.listUserEntitlements(w, r, mustPrincipal(r).UserID)
}

func (s *Server) handleAccess(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "gameID")
	ok, err := s.ledger.CheckAccess(r.Context(), mustPrincipal(r), gameID)
	if err != nil {
		s.writeUseCaseError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]interface{}{"game_id": gameID, "access": ok})
}

// ---- admin: codes ----

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req model.GenerateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.ActorID = mustPrincipal(r).UserID
	res, err := s.codes.Generate(r.Context(), req)
	if err != nil {
		s.writeUseCaseError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusCreated, res)
}

func (s *Server) handleListCodes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	status, err := model.ParseCodeStatus(q.Get("status"))
	if err != nil {
		api.WriteError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "status must be UNUSED or ACTIVATED")
		return
	}
	page, _ := strconv.Atoi(q.Get("page"))
	size, _ := strconv.Atoi(q.Get("page_size"))

	res, err := s.codes.List(r.Context(), model.CodeFilter{
		GameID:   q.Get("game_id"),
		Status:   status,
		BatchTag: q.Get("batch_tag"),
		Keyword:  q.Get("keyword"),
	}, model.PageRequest{Page: page, PageSize: size})
	if err != nil {
		s.writeUseCaseError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, res)
}

func (s *Server) handleDeleteCode(w http.ResponseWriter, r *http.Request) {
	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))
	if err := s.codes.Delete(r.Context(), chi.URLParam(r, "codeID"), force, mustPrincipal(r).UserID); err != nil {
		s.writeUseCaseError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteMany(w http.ResponseWriter, r *http.Request) {
	var req deleteManyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := s.codes.DeleteMany(r.Context(), req.IDs, mustPrincipal(r).UserID)
	if err != nil {
		s.writeUseCaseError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, res)
}

func (s *Server) handleDeleteBatch(w http.ResponseWriter, r *http.Request) {
	res, err := s.codes.DeleteBatch(r.Context(), chi.URLParam(r, "batchTag"), mustPrincipal(r).UserID)
	if err != nil {
		s.writeUseCaseError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, res)
}

// ---- admin: ledger ----

func (s *Server) handleUserEntitlements(w http.ResponseWriter, r *http.Request) {
	s.listUserEntitlements(w, r, chi.URLParam(r, "userID"))
}

func (s *Server) listUserEntitlements(w http.ResponseWriter, r *http.Request, userID string) {
	ents, err := s.ledger.ListByUser(r.Context(), userID)
	if err != nil {
		s.writeUseCaseError(w, r, err)
		return
	}
	count, _, err := s.ledger.Counters(r.Context(), userID, "")
	if err != nil {
		s.writeUseCaseError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, entitlementsResponse{Data: ents, Count: count})
}

func (s *Server) handleGameEntitlements(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "gameID")
	ents, err := s.ledger.ListByGame(r.Context(), gameID)
	if err != nil {
		s.writeUseCaseError(w, r, err)
		return
	}
	_, count, err := s.ledger.Counters(r.Context(), "", gameID)
	if err != nil {
		s.writeUseCaseError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, entitlementsResponse{Data: ents, Count: count})
}

func (s *Server) handleGrant(w http.ResponseWriter, r *http.Request) {
	var req grantRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	ent, err := s.ledger.Grant(r.Context(), chi.URLParam(r, "userID"), req.GameID, mustPrincipal(r).UserID)
	if err != nil {
		s.writeUseCaseError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusCreated, ent)
}

func (s *Server) handleRevoke(w http.ResponseWriter, r *http.Request) {
	err := s.ledger.Revoke(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "gameID"), mustPrincipal(r).UserID)
	if err != nil {
		s.writeUseCaseError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleConsistency(w http.ResponseWriter, r *http.Request) {
	report, err := s.ledger.Verify(r.Context())
	if err != nil {
		s.writeUseCaseError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, report)
}
