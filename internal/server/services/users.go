package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
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

// RegisterInput is a password registration request. Either Phone or Email
// identifies the account; both may be given.
type RegisterInput struct {
	Phone             string `json:"phone" validate:"required_without=Email"`
	Email             string `json:"email" validate:"omitempty,email"`
	Password          string `json:"password" validate:"required,min=6"`
	FullName          string `json:"full_name" validate:"required"`
	PassportSeries    string `json:"passport_series" validate:"required"`
	PassportNumber    string `json:"passport_number" validate:"required"`
	PassportIssuedBy  string `json:"passport_issued_by" validate:"required"`
	PassportIssueDate string `json:"passport_issue_date" validate:"required"`
	DateOfBirth       string `json:"date_of_birth" validate:"required"`
}

// LoginInput identifies the account by phone, or by email when phone is empty.
type LoginInput struct {
	Phone    string
	Email    string
	Password string
}

// AuthResult is what a successful authentication hands back to the client.
type AuthResult struct {
	User      *models.User
	Token     string
	ExpiresAt time.Time
}

// VerifyResult describes a valid session token.
type VerifyResult struct {
	UserID      string
	ExpiresAt   time.Time
	AccessToken string
}

// UserService orchestrates registration, login, SMS code login, password
// reset and token verification.
type UserService struct {
	store       dbx.Transactor
	repomanager repomanager.RepositoryManager
	hasher      auth.PasswordHasher
	codes       *CodeService
	resets      *ResetService
	sessions    *SessionService
	logger      logging.Logger

	policy                      string
	jwtSecret                   []byte
	accessTokenValidityDuration time.Duration

	dummyOnce sync.Once
	dummyHash string
}

func NewUserService(store dbx.Transactor, m repomanager.RepositoryManager, hasher auth.PasswordHasher,
	codes *CodeService, resets *ResetService, sessions *SessionService,
	cfg *config.Config, logger logging.Logger) *UserService {
	return &UserService{
		store:                       store,
		repomanager:                 m,
		hasher:                      hasher,
		codes:                       codes,
		resets:                      resets,
		sessions:                    sessions,
		logger:                      logger.With("module", "users"),
		policy:                      cfg.RegistrationPolicy,
		jwtSecret:                   []byte(cfg.SecretKey),
		accessTokenValidityDuration: cfg.AccessTokenValidityDuration,
	}
}

// Register creates a password account and signs it in. When the phone or
// email is already taken the configured policy applies: PolicyReject fails
// with common.ErrAlreadyExists, PolicyReplace deletes the existing account
// (with its sessions and reset tokens) and stores the new one. Nothing from
// the replaced account is carried over.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	in.Phone = strings.TrimSpace(in.Phone)
	in.Email = normalizeEmail(in.Email)
	if err := validateStruct(in); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("error hashing password: %w", err)
	}

	user := &models.User{
		ID:                uuid.NewString(),
		Phone:             in.Phone,
		Email:             in.Email,
		PasswordHash:      hash,
		FullName:          in.FullName,
		PassportSeries:    in.PassportSeries,
		PassportNumber:    in.PassportNumber,
		PassportIssuedBy:  in.PassportIssuedBy,
		PassportIssueDate: in.PassportIssueDate,
		DateOfBirth:       in.DateOfBirth,
	}

	// Under the replace policy an account for the same identity committed
	// between the delete and the insert is replaced by one more pass.
	attempts := 1
	if s.policy != config.PolicyReject {
		attempts = 2
	}
	for i := 1; ; i++ {
		err = s.createUser(ctx, user)
		if i < attempts && errors.Is(err, common.ErrAlreadyExists) {
			s.logger.Warn(ctx, "concurrent registration of the same identity, retrying", "user_id", user.ID)
			continue
		}
		break
	}
	if err != nil {
		return nil, err
	}

	return s.signIn(ctx, user)
}

func (s *UserService) createUser(ctx context.Context, user *models.User) error {
	return s.store.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		users := s.repomanager.Users(tx)

		if s.policy != config.PolicyReject {
			replaced, err := users.DeleteByIdentity(ctx, user.Phone, user.Email)
			if err != nil {
				return fmt.Errorf("error replacing user: %w", err)
			}
			if replaced > 0 {
				s.logger.Info(ctx, "existing account replaced", "user_id", user.ID, "replaced", replaced)
			}
		}

		if _, err := users.Create(ctx, user); err != nil {
			if errors.Is(err, common.ErrAlreadyExists) {
				return common.ErrAlreadyExists
			}
			return fmt.Errorf("error creating user: %w", err)
		}
		return nil
	})
}

// Login checks a password. Unknown accounts, code-only accounts and wrong
// passwords all fail with common.ErrInvalidCredentials.
func (s *UserService) Login(ctx context.Context, in LoginInput) (*AuthResult, error) {
	phone, email := strings.TrimSpace(in.Phone), normalizeEmail(in.Email)
	if (phone == "" && email == "") || in.Password == "" {
		return nil, fmt.Errorf("%w: phone or email and password are required", common.ErrValidation)
	}

	users := s.repomanager.Users(s.store.Conn())

	var (
		user *models.User
		err  error
	)
	if phone != "" {
		user, err = users.GetByPhone(ctx, phone)
	} else {
		user, err = users.GetByEmail(ctx, email)
	}
	if err != nil && !errors.Is(err, common.ErrorNotFound) {
		return nil, fmt.Errorf("error looking up user: %w", err)
	}

	if user == nil || !user.HasPassword() {
		// keep the response time of unknown accounts close to a real check
		s.hasher.Verify(s.dummyCredential(), in.Password)
		return nil, common.ErrInvalidCredentials
	}
	if !s.hasher.Verify(user.PasswordHash, in.Password) {
		return nil, common.ErrInvalidCredentials
	}

	return s.signIn(ctx, user)
}

func (s *UserService) dummyCredential() string {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = s.hasher.Hash(uuid.NewString())
	})
	return s.dummyHash
}

// SendSMS issues a one-time code for phone and returns it.
func (s *UserService) SendSMS(ctx context.Context, phone string) (string, error) {
	return s.codes.Issue(ctx, phone)
}

// VerifySMS exchanges a valid code for a session.
func (s *UserService) VerifySMS(ctx context.Context, phone, code string) (*AuthResult, error) {
	user, err := s.codes.Verify(ctx, phone, code)
	if err != nil {
		return nil, err
	}
	return s.signIn(ctx, user)
}

// RequestReset starts a password reset. See ResetService.Request for the
// meaning of the returned token.
func (s *UserService) RequestReset(ctx context.Context, email string) (string, error) {
	return s.resets.Request(ctx, email)
}

// ResetPassword redeems a reset token.
func (s *UserService) ResetPassword(ctx context.Context, token, password string) error {
	if err := validatePassword(password); err != nil {
		return err
	}
	return s.resets.Redeem(ctx, token, password)
}

// Verify checks a session token and mints a short-lived access JWT for it.
func (s *UserService) Verify(ctx context.Context, token string) (*VerifyResult, error) {
	session, err := s.sessions.Verify(ctx, token)
	if err != nil {
		return nil, err
	}

	access, err := auth.GenerateToken(session.UserID, s.jwtSecret, s.accessTokenValidityDuration)
	if err != nil {
		return nil, fmt.Errorf("error generating access token: %w", err)
	}

	return &VerifyResult{UserID: session.UserID, ExpiresAt: session.ExpiresAt, AccessToken: access}, nil
}

// Logout revokes the presented session token.
func (s *UserService) Logout(ctx context.Context, token string) error {
	return s.sessions.Revoke(ctx, token)
}

func (s *UserService) signIn(ctx context.Context, user *models.User) (*AuthResult, error) {
	token, session, err := s.sessions.Issue(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	return &AuthResult{User: user, Token: token, ExpiresAt: session.ExpiresAt}, nil
}
