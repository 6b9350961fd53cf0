package services

import (
	"errors"
	"net/http"

	"github.com/ahmetcoskunkizilkaya/rsk-backend/internal/apperr"
	"github.com/ahmetcoskunkizilkaya/rsk-backend/internal/tokens"
)

// ToAppError classifies service and token errors into the HTTP taxonomy.
// Errors that are already classified, and unknown errors, pass through.
func ToAppError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := apperr.As(err); ok {
		return err
	}
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return apperr.InvalidCredentials()
	case errors.Is(err, ErrAccountLocked):
		return apperr.Forbidden("Account is locked")
	case errors.Is(err, ErrAccountInactive):
		return apperr.Forbidden("Account is inactive")
	case errors.Is(err, ErrInvalidToken), errors.Is(err, tokens.ErrTypeMismatch), errors.Is(err, tokens.ErrInvalid):
		if errors.Is(err, tokens.ErrExpired) {
			return apperr.TokenExpired().Wrap(err)
		}
		return apperr.TokenInvalid().Wrap(err)
	case errors.Is(err, tokens.ErrExpired):
		return apperr.TokenExpired().Wrap(err)
	case errors.Is(err, ErrEmailTaken):
		return apperr.Conflict("Email already registered")
	case errors.Is(err, ErrEmailAlreadyVerified):
		return apperr.Conflict("Email already verified")
	case errors.Is(err, ErrUserNotFound):
		return apperr.NotFound("User", "")
	case errors.Is(err, ErrAlreadyExists):
		return apperr.Conflict(err.Error()).Wrap(err)
	case errors.Is(err, ErrProtected):
		return apperr.Forbidden(err.Error()).Wrap(err)
	case errors.Is(err, ErrNotFound):
		return apperr.New(http.StatusNotFound, apperr.CodeNotFound, err.Error()).Wrap(err)
	case errors.Is(err, ErrInvalidInput):
		return apperr.BadRequest(err.Error()).Wrap(err)
	}
	return err
}
