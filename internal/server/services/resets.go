package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/dmitrijs2005/eventhub/internal/common"
	"github.com/dmitrijs2005/eventhub/internal/dbx"
	"github.com/dmitrijs2005/eventhub/internal/logging"
	"github.com/dmitrijs2005/eventhub/internal/server/auth"
	"github.com/dmitrijs2005/eventhub/internal/server/config"
	"github.com/dmitrijs2005/eventhub/internal/server/models"
	"github.com/dmitrijs2005/eventhub/internal/server/repositories/repomanager"
)

const resetEmailSubject = "EventHub password reset"

// ResetService is the password reset token ledger.
type ResetService struct {
	store       dbx.Transactor
	repomanager repomanager.RepositoryManager
	hasher      auth.PasswordHasher
	sessions    *SessionService
	email       EmailSender
	validity    time.Duration
	urlBase     string
	debug       bool
	logger      logging.Logger

	now        func() time.Time
	issueToken func() (string, error)
}

func NewResetService(store dbx.Transactor, m repomanager.RepositoryManager, hasher auth.PasswordHasher,
	sessions *SessionService, email EmailSender, cfg *config.Config, logger logging.Logger) *ResetService {
	return &ResetService{
		store:       store,
		repomanager: m,
		hasher:      hasher,
		sessions:    sessions,
		email:       email,
		validity:    cfg.ResetTokenValidityDuration,
		urlBase:     cfg.ResetURLBase,
		debug:       cfg.DebugMode,
		logger:      logger.With("module", "resets"),
		now:         time.Now,
		issueToken:  auth.IssueToken,
	}
}

// Request starts a reset for email. Unknown addresses succeed silently so
// the response never reveals whether an account exists. The raw token is
// returned only in debug mode when the email could not be delivered;
// otherwise the result is always "".
func (s *ResetService) Request(ctx context.Context, email string) (string, error) {
	email = normalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return "", err
	}

	user, err := s.repomanager.Users(s.store.Conn()).GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.logger.Debug(ctx, "reset requested for unknown email")
			return "", nil
		}
		return "", fmt.Errorf("error looking up user: %w", err)
	}

	token, err := s.issueToken()
	if err != nil {
		return "", fmt.Errorf("error issuing token: %w", err)
	}

	now := s.now()
	rec := &models.ResetToken{
		TokenHash: auth.HashToken(token),
		UserID:    user.ID,
		ExpiresAt: now.Add(s.validity),
		CreatedAt: now,
	}
	if err := s.repomanager.ResetTokens(s.store.Conn()).Create(ctx, rec); err != nil {
		return "", fmt.Errorf("error storing token: %w", err)
	}

	if err := s.email.SendEmail(ctx, email, resetEmailSubject, s.resetMessage(token)); err != nil {
		s.logger.Error(ctx, "reset email delivery failed", "user_id", user.ID, "error", err)
		if s.debug {
			return token, nil
		}
		return "", nil
	}

	s.logger.Info(ctx, "reset token issued", "user_id", user.ID, "expires_at", rec.ExpiresAt)
	return "", nil
}

func (s *ResetService) resetMessage(token string) string {
	var b strings.Builder
	b.WriteString("Someone asked to reset the password of your EventHub account.\n\n")
	if s.urlBase != "" {
		fmt.Fprintf(&b, "Open %s?token=%s to choose a new password.\n", s.urlBase, url.QueryEscape(token))
	} else {
		fmt.Fprintf(&b, "Your reset token: %s\n", token)
	}
	fmt.Fprintf(&b, "The link expires in %d minutes. If it was not you, ignore this message.\n", int(s.validity.Minutes()))
	return b.String()
}

// Redeem sets newPassword for the owner of token. A successful redemption
// deletes every reset token of that user and revokes all of their sessions.
func (s *ResetService) Redeem(ctx context.Context, token, newPassword string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("%w: field token is required", common.ErrValidation)
	}
	if err := validatePassword(newPassword); err != nil {
		return err
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("error hashing password: %w", err)
	}

	return s.store.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		tokens := s.repomanager.ResetTokens(tx)

		rec, err := tokens.GetForUpdate(ctx, auth.HashToken(token))
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return common.ErrTokenNotFound
			}
			return fmt.Errorf("error loading token: %w", err)
		}
		if rec.IsExpired(s.now()) {
			return common.ErrTokenExpired
		}

		if err := s.repomanager.Users(tx).UpdatePassword(ctx, rec.UserID, hash); err != nil {
			return fmt.Errorf("error updating password: %w", err)
		}
		if _, err := tokens.DeleteByUser(ctx, rec.UserID); err != nil {
			return fmt.Errorf("error deleting reset tokens: %w", err)
		}
		revoked, err := s.sessions.RevokeUser(ctx, tx, rec.UserID)
		if err != nil {
			return err
		}

		s.logger.Info(ctx, "password reset", "user_id", rec.UserID, "sessions_revoked", revoked)
		return nil
	})
}
