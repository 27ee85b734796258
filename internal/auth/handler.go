package auth

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// Handler exposes HTTP endpoints for login, registration and the current session.
type Handler struct {
	svc    *Service
	logger *zap.SugaredLogger
}

func NewHandler(svc *Service, logger *zap.SugaredLogger) *Handler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Handler{svc: svc, logger: logger}
}

// LoginRequest login payload.
type LoginRequest struct {
	UsernameOrEmail string `json:"usernameOrEmail"`
	Password        string `json:"password"`
}

// LoginResponse is returned with 200 for both success and business failure.
type LoginResponse struct {
	Success              bool   `json:"success"`
	SessionToken         string `json:"sessionToken,omitempty"`
	ErrorMessage         string `json:"errorMessage,omitempty"`
	SecondFactorRequired bool   `json:"secondFactorRequired"`
}

// RegistrationRequest request body for registration endpoint.
type RegistrationRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RegistrationResponse struct {
	Success      bool   `json:"success"`
	SessionToken string `json:"sessionToken,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Debugw("invalid login payload", "err", err)
		writeJSON(w, http.StatusBadRequest, LoginResponse{ErrorMessage: "invalid payload"})
		return
	}
	res, err := h.svc.Login(r.Context(), req.UsernameOrEmail, req.Password)
	if err != nil {
		if msg, ok := businessMessage(err); ok {
			h.logger.Debugw("login failed", "err", err)
			writeJSON(w, http.StatusOK, LoginResponse{ErrorMessage: msg})
			return
		}
		h.logger.Warnw("login error", "err", err)
		writeJSON(w, http.StatusInternalServerError, LoginResponse{ErrorMessage: "login failed"})
		return
	}
	writeJSON(w, http.StatusOK, LoginResponse{
		Success:              true,
		SessionToken:         res.Token,
		SecondFactorRequired: res.SecondFactorRequired,
	})
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegistrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Debugw("invalid registration payload", "err", err)
		writeJSON(w, http.StatusBadRequest, RegistrationResponse{ErrorMessage: "invalid payload"})
		return
	}
	token, err := h.svc.Register(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		if msg, ok := businessMessage(err); ok {
			h.logger.Debugw("registration refused", "err", err)
			writeJSON(w, http.StatusOK, RegistrationResponse{ErrorMessage: msg})
			return
		}
		h.logger.Warnw("registration error", "err", err)
		writeJSON(w, http.StatusInternalServerError, RegistrationResponse{ErrorMessage: "registration failed"})
		return
	}
	writeJSON(w, http.StatusOK, RegistrationResponse{Success: true, SessionToken: token})
}

// MeResponse describes the authenticated session.
type MeResponse struct {
	ID          string   `json:"id"`
	Username    string   `json:"username"`
	Email       string   `json:"email"`
	Authorities []string `json:"authorities"`
	MFA         bool     `json:"mfa"`
	ExpiresAt   int64    `json:"expiresAt"`
}

// Me returns the principal attached by the gateway.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	p, ok := PrincipalFrom(r.Context())
	if !ok {
		writeUnauthorized(w, ErrMissingToken)
		return
	}
	writeJSON(w, http.StatusOK, MeResponse{
		ID:          p.User.ID,
		Username:    p.User.Username,
		Email:       p.User.Email,
		Authorities: p.Authorities,
		MFA:         p.MFASatisfied(),
		ExpiresAt:   p.Claims.Expires,
	})
}
