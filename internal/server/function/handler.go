package function

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/eventhub/internal/common"
	"github.com/dmitrijs2005/eventhub/internal/logging"
	"github.com/dmitrijs2005/eventhub/internal/server/metrics"
	"github.com/dmitrijs2005/eventhub/internal/server/models"
	"github.com/dmitrijs2005/eventhub/internal/server/services"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// AuthService is the business logic behind the actions.
type AuthService interface {
	Register(ctx context.Context, in services.RegisterInput) (*services.AuthResult, error)
	Login(ctx context.Context, in services.LoginInput) (*services.AuthResult, error)
	SendSMS(ctx context.Context, phone string) (string, error)
	VerifySMS(ctx context.Context, phone, code string) (*services.AuthResult, error)
	RequestReset(ctx context.Context, email string) (string, error)
	ResetPassword(ctx context.Context, token, password string) error
	Verify(ctx context.Context, token string) (*services.VerifyResult, error)
	Logout(ctx context.Context, token string) error
}

// payload is the union of all action fields.
type payload struct {
	Action string `json:"action"`
	services.RegisterInput
	Code  string `json:"code"`
	Token string `json:"token"`
}

type action func(ctx context.Context, req Request, p payload) (int, any, error)

// Handler dispatches requests to AuthService by action name.
type Handler struct {
	auth    AuthService
	metrics *metrics.Metrics
	tracer  trace.Tracer
	logger  logging.Logger
	debug   bool

	actions map[string]action
	now     func() time.Time
}

// NewHandler builds a Handler. In debug mode SMS codes and undeliverable
// reset tokens are echoed to the caller and 500 responses carry the raw error.
func NewHandler(auth AuthService, m *metrics.Metrics, tracer trace.Tracer, logger logging.Logger, debug bool) *Handler {
	h := &Handler{
		auth:    auth,
		metrics: m,
		tracer:  tracer,
		logger:  logger.With("module", "function"),
		debug:   debug,
		now:     time.Now,
	}
	h.actions = map[string]action{
		"register":       h.register,
		"login":          h.login,
		"send_sms":       h.sendSMS,
		"verify_sms":     h.verifySMS,
		"request_reset":  h.requestReset,
		"reset_password": h.resetPassword,
		"verify":         h.verify,
		"logout":         h.logout,
	}
	return h
}

// Handle processes one invocation. It never panics on bad input and always
// returns a structured response.
func (h *Handler) Handle(ctx context.Context, req Request) Response {
	method := strings.ToUpper(req.HTTPMethod)
	if method == "" {
		method = http.MethodPost
	}
	if method == http.MethodOptions {
		return preflight()
	}

	start := h.now()

	body, err := req.decodedBody()
	if err != nil {
		return h.finish(ctx, "invalid", start, http.StatusBadRequest, errorBody{"invalid request body"})
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		body = []byte("{}")
	}

	var p payload
	if err := json.Unmarshal(body, &p); err != nil {
		return h.finish(ctx, "invalid", start, http.StatusBadRequest, errorBody{"invalid request body"})
	}

	act, ok := h.actions[p.Action]
	if !ok {
		return h.finish(ctx, "unknown", start, http.StatusBadRequest, errorBody{"unknown action"})
	}

	ctx, span := h.tracer.Start(ctx, "auth."+p.Action,
		trace.WithAttributes(attribute.String("auth.action", p.Action)))
	defer span.End()
	ctx = logging.ContextWith(ctx, "action", p.Action)

	status, out, err := act(ctx, req, p)
	if err != nil {
		span.RecordError(err)
		status, out = h.mapError(ctx, p.Action, err)
	}
	span.SetAttributes(attribute.Int("http.status_code", status))
	if status >= http.StatusInternalServerError {
		span.SetStatus(codes.Error, "internal error")
	}

	return h.finish(ctx, p.Action, start, status, out)
}

func (h *Handler) finish(ctx context.Context, action string, start time.Time, status int, out any) Response {
	if h.metrics != nil {
		h.metrics.Observe(action, metrics.StatusFor(status), h.now().Sub(start))
	}
	h.logger.Debug(ctx, "action handled", "action", action, "status", status)
	return jsonResponse(status, out)
}

// mapError turns a service error into a status and a client-facing body.
// Messages of authentication failures are fixed so they reveal nothing.
func (h *Handler) mapError(ctx context.Context, action string, err error) (int, any) {
	switch {
	case errors.Is(err, common.ErrValidation):
		msg := strings.TrimPrefix(err.Error(), common.ErrValidation.Error()+": ")
		return http.StatusBadRequest, errorBody{msg}
	case errors.Is(err, common.ErrInvalidCredentials):
		return http.StatusUnauthorized, errorBody{common.ErrInvalidCredentials.Error()}
	case errors.Is(err, common.ErrorUnauthorized):
		return http.StatusUnauthorized, errorBody{"invalid token"}
	case errors.Is(err, common.ErrTokenExpired) && action == "verify":
		return http.StatusUnauthorized, errorBody{"token expired"}
	case errors.Is(err, common.ErrCodeNotFound),
		errors.Is(err, common.ErrCodeExpired),
		errors.Is(err, common.ErrCodeMismatch),
		errors.Is(err, common.ErrTokenNotFound),
		errors.Is(err, common.ErrTokenExpired):
		return http.StatusBadRequest, errorBody{err.Error()}
	case errors.Is(err, common.ErrorNotFound):
		return http.StatusNotFound, errorBody{"not found"}
	case errors.Is(err, common.ErrAlreadyExists):
		return http.StatusConflict, errorBody{"account already exists"}
	case errors.Is(err, common.ErrRateLimited):
		return http.StatusTooManyRequests, errorBody{"code was sent recently, try again later"}
	}

	h.logger.Error(ctx, "action failed", "action", action, "error", err)
	if h.debug {
		return http.StatusInternalServerError, errorBody{err.Error()}
	}
	return http.StatusInternalServerError, errorBody{"internal server error"}
}

type userView struct {
	ID        string    `json:"id"`
	Phone     string    `json:"phone,omitempty"`
	Email     string    `json:"email,omitempty"`
	FullName  string    `json:"full_name"`
	CreatedAt time.Time `json:"created_at"`
}

func newUserView(u *models.User) userView {
	return userView{ID: u.ID, Phone: u.Phone, Email: u.Email, FullName: u.FullName, CreatedAt: u.CreatedAt}
}

type authBody struct {
	Message   string    `json:"message"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      userView  `json:"user"`
}

func newAuthBody(msg string, res *services.AuthResult) authBody {
	return authBody{Message: msg, Token: res.Token, ExpiresAt: res.ExpiresAt, User: newUserView(res.User)}
}
