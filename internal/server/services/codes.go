package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/eventhub/internal/common"
	"github.com/dmitrijs2005/eventhub/internal/dbx"
	"github.com/dmitrijs2005/eventhub/internal/logging"
	"github.com/dmitrijs2005/eventhub/internal/server/auth"
	"github.com/dmitrijs2005/eventhub/internal/server/config"
	"github.com/dmitrijs2005/eventhub/internal/server/models"
	"github.com/dmitrijs2005/eventhub/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// CodeService issues and checks one-time SMS codes. The phone number is the
// only correlation key between the send and verify steps.
type CodeService struct {
	store       dbx.Transactor
	repomanager repomanager.RepositoryManager
	sms         SMSSender
	limiter     SendLimiter
	validity    time.Duration
	logger      logging.Logger

	now      func() time.Time
	generate func() (string, error)
}

// NewCodeService builds a CodeService. limiter may be nil to disable throttling.
func NewCodeService(store dbx.Transactor, m repomanager.RepositoryManager, sms SMSSender, limiter SendLimiter,
	cfg *config.Config, logger logging.Logger) *CodeService {
	return &CodeService{
		store:       store,
		repomanager: m,
		sms:         sms,
		limiter:     limiter,
		validity:    cfg.SMSCodeValidityDuration,
		logger:      logger.With("module", "codes"),
		now:         time.Now,
		generate:    auth.GenerateCode,
	}
}

// Issue generates a code for phone, stores it as the phone's only pending
// code and sends it out. The code is returned so callers may echo it in
// debug mode.
func (s *CodeService) Issue(ctx context.Context, phone string) (string, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return "", fmt.Errorf("%w: field phone is required", common.ErrValidation)
	}

	claimed, err := s.claim(ctx, phone)
	if err != nil {
		return "", err
	}

	code, err := s.send(ctx, phone)
	if err != nil && claimed {
		if rerr := s.limiter.Release(ctx, phone); rerr != nil {
			s.logger.Warn(ctx, "send limiter release failed", "error", rerr)
		}
	}
	return code, err
}

// claim takes the send slot of phone. It reports whether a slot is now held.
func (s *CodeService) claim(ctx context.Context, phone string) (bool, error) {
	if s.limiter == nil {
		return false, nil
	}
	ok, err := s.limiter.Allow(ctx, phone)
	switch {
	case err != nil:
		// throttle backend trouble must not block logins
		s.logger.Warn(ctx, "send limiter unavailable", "error", err)
		return false, nil
	case !ok:
		return false, common.ErrRateLimited
	}
	return true, nil
}

func (s *CodeService) send(ctx context.Context, phone string) (string, error) {
	code, err := s.generate()
	if err != nil {
		return "", fmt.Errorf("error generating code: %w", err)
	}

	now := s.now()
	rec := &models.SMSCode{
		Phone:     phone,
		Code:      code,
		ExpiresAt: now.Add(s.validity),
		CreatedAt: now,
	}
	if err := s.repomanager.SMSCodes(s.store.Conn()).Replace(ctx, rec); err != nil {
		return "", fmt.Errorf("error storing code: %w", err)
	}

	text := fmt.Sprintf("Your EventHub code: %s. It is valid for %d minutes.", code, int(s.validity.Minutes()))
	if err := s.sms.SendSMS(ctx, phone, text); err != nil {
		return "", fmt.Errorf("error sending code: %w", err)
	}

	s.logger.Info(ctx, "sms code issued", "expires_at", rec.ExpiresAt)
	return code, nil
}

// Verify checks candidate against the pending code of phone. Expiry is
// checked before equality. On success the code is consumed and the user
// owning phone is returned, created as a code-only account if needed.
func (s *CodeService) Verify(ctx context.Context, phone, candidate string) (*models.User, error) {
	phone, candidate = strings.TrimSpace(phone), strings.TrimSpace(candidate)
	if phone == "" || candidate == "" {
		return nil, fmt.Errorf("%w: phone and code are required", common.ErrValidation)
	}

	var user *models.User
	err := s.store.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		codes := s.repomanager.SMSCodes(tx)

		rec, err := codes.GetForUpdate(ctx, phone)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return common.ErrCodeNotFound
			}
			return fmt.Errorf("error loading code: %w", err)
		}

		if rec.IsExpired(s.now()) {
			return common.ErrCodeExpired
		}
		if subtle.ConstantTimeCompare([]byte(rec.Code), []byte(candidate)) != 1 {
			return common.ErrCodeMismatch
		}

		users := s.repomanager.Users(tx)
		user, err = users.GetByPhone(ctx, phone)
		if errors.Is(err, common.ErrorNotFound) {
			user, err = users.Create(ctx, &models.User{ID: uuid.NewString(), Phone: phone})
			if err == nil {
				s.logger.Info(ctx, "code-only user created", "user_id", user.ID)
			}
		}
		if err != nil {
			return fmt.Errorf("error resolving user: %w", err)
		}

		if err := codes.Delete(ctx, phone); err != nil {
			return fmt.Errorf("error consuming code: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return user, nil
}
