package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/eventhub/internal/common"
	"github.com/dmitrijs2005/eventhub/internal/dbx"
	"github.com/dmitrijs2005/eventhub/internal/server/auth"
	"github.com/dmitrijs2005/eventhub/internal/server/config"
	"github.com/dmitrijs2005/eventhub/internal/server/models"
	"github.com/dmitrijs2005/eventhub/internal/server/repositories/repomanager"
)

// SessionService keeps track of issued bearer tokens so they can be verified
// and revoked. Only token hashes are persisted.
type SessionService struct {
	store       dbx.Transactor
	repomanager repomanager.RepositoryManager
	validity    time.Duration

	now        func() time.Time
	issueToken func() (string, error)
}

func NewSessionService(store dbx.Transactor, m repomanager.RepositoryManager, cfg *config.Config) *SessionService {
	return &SessionService{
		store:       store,
		repomanager: m,
		validity:    cfg.SessionTokenValidityDuration,
		now:         time.Now,
		issueToken:  auth.IssueToken,
	}
}

// Issue mints a session token for userID.
func (s *SessionService) Issue(ctx context.Context, userID string) (string, *models.Session, error) {
	token, err := s.issueToken()
	if err != nil {
		return "", nil, fmt.Errorf("error issuing token: %w", err)
	}

	now := s.now()
	session := &models.Session{
		TokenHash: auth.HashToken(token),
		UserID:    userID,
		ExpiresAt: now.Add(s.validity),
		CreatedAt: now,
	}
	if err := s.repomanager.Sessions(s.store.Conn()).Create(ctx, session); err != nil {
		return "", nil, fmt.Errorf("error storing session: %w", err)
	}

	return token, session, nil
}

// Verify resolves token to its session. Blank and unknown tokens are
// unauthorized, expired ones yield common.ErrTokenExpired.
func (s *SessionService) Verify(ctx context.Context, token string) (*models.Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, common.ErrorUnauthorized
	}

	session, err := s.repomanager.Sessions(s.store.Conn()).Find(ctx, auth.HashToken(token))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUnauthorized
		}
		return nil, fmt.Errorf("error loading session: %w", err)
	}
	if session.IsExpired(s.now()) {
		return nil, common.ErrTokenExpired
	}

	return session, nil
}

// Revoke ends the session identified by token. Unknown tokens are ignored.
func (s *SessionService) Revoke(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return common.ErrorUnauthorized
	}
	if err := s.repomanager.Sessions(s.store.Conn()).Delete(ctx, auth.HashToken(token)); err != nil {
		return fmt.Errorf("error revoking session: %w", err)
	}
	return nil
}

// RevokeUser drops every session of userID using db, which may be a transaction.
func (s *SessionService) RevokeUser(ctx context.Context, db dbx.DBTX, userID string) (int64, error) {
	n, err := s.repomanager.Sessions(db).DeleteByUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("error revoking sessions: %w", err)
	}
	return n, nil
}
