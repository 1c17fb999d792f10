package app

import (
	"errors"
	"fmt"
	"net/http"

	"formboard/api/internal/identity"
	"formboard/api/internal/store"
	"formboard/api/internal/validate"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

var authStatus = map[string]int{
	identity.ErrNotAdmin.Code:        http.StatusForbidden,
	identity.ErrAlreadyClaimed.Code:  http.StatusConflict,
	identity.ErrWrongSecret.Code:     http.StatusUnauthorized,
	identity.ErrSecretMismatch.Code:  http.StatusBadRequest,
	identity.ErrEmptySecret.Code:     http.StatusBadRequest,
	identity.ErrNoCredentialSet.Code: http.StatusConflict,
	identity.ErrNoIdentity.Code:      http.StatusServiceUnavailable,
	identity.ErrRemoteDisabled.Code:  http.StatusServiceUnavailable,
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	var validationErr *validate.Error
	if errors.As(err, &validationErr) {
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Please correct the highlighted fields", validationErr.Result
	}
	var authErr *identity.AuthError
	if errors.As(err, &authErr) {
		status, ok := authStatus[authErr.Code]
		if !ok {
			status = http.StatusForbidden
		}
		return status, authErr.Code, authErr.Message, nil
	}
	if errors.Is(err, store.ErrNotFound) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
