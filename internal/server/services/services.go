// Package services contains the authentication business logic: one-time SMS
// codes, password reset tokens, session tokens and the AuthService that
// orchestrates them. Services talk to storage only through the repository
// manager and run read-check-write sequences inside dbx transactions.
package services

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/dmitrijs2005/eventhub/internal/common"
	"github.com/go-playground/validator/v10"
)

// SMSSender delivers a text message to a phone number.
type SMSSender interface {
	SendSMS(ctx context.Context, phone, text string) error
}

// EmailSender delivers a plain text email.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// SendLimiter decides whether another code may be sent to key right now.
// Release gives back a slot taken by Allow when the send did not happen.
type SendLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateStruct runs the struct tags of s and turns the first failure into
// a common.ErrValidation with a client-facing message.
func validateStruct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("%w: %v", common.ErrValidation, err)
	}

	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return fmt.Errorf("%w: field %s is required", common.ErrValidation, fe.Field())
	case "required_without":
		return fmt.Errorf("%w: phone or email is required", common.ErrValidation)
	case "email":
		return fmt.Errorf("%w: field %s must be a valid email address", common.ErrValidation, fe.Field())
	case "min":
		return fmt.Errorf("%w: field %s must be at least %s characters long", common.ErrValidation, fe.Field(), fe.Param())
	default:
		return fmt.Errorf("%w: field %s is invalid", common.ErrValidation, fe.Field())
	}
}

func validateEmail(email string) error {
	if err := validate.Var(email, "required,email"); err != nil {
		return fmt.Errorf("%w: a valid email is required", common.ErrValidation)
	}
	return nil
}

func validatePassword(password string) error {
	if err := validate.Var(password, fmt.Sprintf("min=%d", common.MinPasswordLength)); err != nil {
		return fmt.Errorf("%w: password must be at least %d characters long", common.ErrValidation, common.MinPasswordLength)
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
