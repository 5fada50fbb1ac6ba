package function

import (
	"context"
	"net/http"
	"time"

	"github.com/dmitrijs2005/eventhub/internal/common"
	"github.com/dmitrijs2005/eventhub/internal/server/services"
)

type messageBody struct {
	Message string `json:"message"`
}

type sendSMSBody struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type requestResetBody struct {
	Message    string `json:"message"`
	ResetToken string `json:"reset_token,omitempty"`
}

type verifyBody struct {
	Valid       bool      `json:"valid"`
	UserID      string    `json:"user_id"`
	ExpiresAt   time.Time `json:"expires_at"`
	AccessToken string    `json:"access_token"`
}

func (h *Handler) register(ctx context.Context, _ Request, p payload) (int, any, error) {
	res, err := h.auth.Register(ctx, p.RegisterInput)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusCreated, newAuthBody("registration successful", res), nil
}

func (h *Handler) login(ctx context.Context, _ Request, p payload) (int, any, error) {
	res, err := h.auth.Login(ctx, services.LoginInput{Phone: p.Phone, Email: p.Email, Password: p.Password})
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, newAuthBody("login successful", res), nil
}

func (h *Handler) sendSMS(ctx context.Context, _ Request, p payload) (int, any, error) {
	code, err := h.auth.SendSMS(ctx, p.Phone)
	if err != nil {
		return 0, nil, err
	}
	out := sendSMSBody{Message: "code sent"}
	if h.debug {
		out.Code = code
	}
	return http.StatusOK, out, nil
}

func (h *Handler) verifySMS(ctx context.Context, _ Request, p payload) (int, any, error) {
	res, err := h.auth.VerifySMS(ctx, p.Phone, p.Code)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, newAuthBody("login successful", res), nil
}

func (h *Handler) requestReset(ctx context.Context, _ Request, p payload) (int, any, error) {
	token, err := h.auth.RequestReset(ctx, p.Email)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, requestResetBody{
		Message:    "if an account with this email exists, a reset link has been sent",
		ResetToken: token,
	}, nil
}

func (h *Handler) resetPassword(ctx context.Context, _ Request, p payload) (int, any, error) {
	if err := h.auth.ResetPassword(ctx, p.Token, p.Password); err != nil {
		return 0, nil, err
	}
	return http.StatusOK, messageBody{"password updated"}, nil
}

func (h *Handler) verify(ctx context.Context, req Request, _ payload) (int, any, error) {
	token := req.BearerToken()
	if token == "" {
		return http.StatusUnauthorized, errorBody{"token not provided"}, nil
	}
	res, err := h.auth.Verify(ctx, token)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, verifyBody{Valid: true, UserID: res.UserID, ExpiresAt: res.ExpiresAt, AccessToken: res.AccessToken}, nil
}

func (h *Handler) logout(ctx context.Context, req Request, _ payload) (int, any, error) {
	token := req.BearerToken()
	if token == "" {
		return 0, nil, common.ErrorUnauthorized
	}
	if err := h.auth.Logout(ctx, token); err != nil {
		return 0, nil, err
	}
	return http.StatusOK, messageBody{"logged out"}, nil
}
