package app

import (
	"fmt"
	"net/http"
)

// Error codes returned in API error bodies. Clients branch on these, so
// they are part of the wire contract.
const (
	codeValidation  = "VALIDATION_ERROR"
	codeNoStages    = "NO_STAGES"
	codeRemoteError = "REMOTE_ERROR"
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

// validationError is the 422 shape shared by lead and stage input checks.
func validationError(message string) *DomainError {
	return domainError(http.StatusUnprocessableEntity, codeValidation, message, nil)
}
