package api

import (
	"fmt"
	"net/http"

	"github.com/hackgods/dental-clinic-portal/internal/account"
	"github.com/hackgods/dental-clinic-portal/internal/apperr"
)

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAppError(w, r, s.logger, err)
		return
	}

	acc, err := s.dir.Register(r.Context(), account.AccountDraft{
		FullName:       req.FullName,
		Email:          req.Email,
		Phone:          req.Phone,
		Password:       req.Password,
		Role:           req.Role,
		Specialty:      req.Specialty,
		IssuanceSecret: req.AdminSecret,
	})
	if err != nil {
		writeAppError(w, r, s.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, acc.Public())
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAppError(w, r, s.logger, err)
		return
	}

	acc, err := s.dir.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		writeAppError(w, r, s.logger, err)
		return
	}

	sess, err := s.sessionsFor(r.Context()).Start(r.Context(), acc)
	if err != nil {
		writeAppError(w, r, s.logger, err)
		return
	}

	s.logger.Info("login", "account_id", acc.ID, "role", acc.Role.String(), "request_id", GetRequestID(r.Context()))
	writeJSON(w, http.StatusOK, SessionResponse{
		Token:     sess.Token,
		IssuedAt:  sess.IssuedAt,
		ExpiresAt: sess.ExpiresAt,
		Account:   acc.Public(),
	})
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	sessions := s.sessionsFor(r.Context())
	if token, ok := bearerToken(r); ok {
		if err := sessions.Revoke(r.Context(), token); err != nil {
			writeAppError(w, r, s.logger, err)
			return
		}
	}
	if err := sessions.End(r.Context()); err != nil {
		writeAppError(w, r, s.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) currentSession(w http.ResponseWriter, r *http.Request) {
	sess, _ := sessionFrom(r.Context())
	acc, ok, err := s.dir.Lookup(r.Context(), sess.AccountID)
	if err != nil {
		writeAppError(w, r, s.logger, err)
		return
	}
	if !ok {
		writeAppError(w, r, s.logger, fmt.Errorf("%w: account %s", apperr.ErrNotFound, sess.AccountID))
		return
	}

	writeJSON(w, http.StatusOK, SessionResponse{
		Token:     sess.Token,
		IssuedAt:  sess.IssuedAt,
		ExpiresAt: sess.ExpiresAt,
		Account:   acc.Public(),
	})
}
