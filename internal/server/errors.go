// Package server provides the HTTP REST API for the prospector service.
package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/jonathan/prospector/internal/scheduler"
	"github.com/jonathan/prospector/internal/types"
)

// ErrJobNotFound indicates the job ID is unknown
type ErrJobNotFound struct {
	JobID uuid.UUID
}

func (e *ErrJobNotFound) Error() string {
	return fmt.Sprintf("job not found: %s", e.JobID)
}

// ErrRunNotFound indicates the scheduler run ID is unknown
type ErrRunNotFound struct {
	RunID uuid.UUID
}

func (e *ErrRunNotFound) Error() string {
	return fmt.Sprintf("scheduler run not found: %s", e.RunID)
}

// ErrInvalidCredentials indicates an invalid admin password
type ErrInvalidCredentials struct{}

func (e *ErrInvalidCredentials) Error() string {
	return "invalid credentials"
}

// ErrAuthNotConfigured indicates no admin credential has been provisioned
type ErrAuthNotConfigured struct{}

func (e *ErrAuthNotConfigured) Error() string {
	return "admin authentication is not configured"
}

// ErrSchedulerUnavailable indicates the scheduler component is not wired
type ErrSchedulerUnavailable struct{}

func (e *ErrSchedulerUnavailable) Error() string {
	return "scheduler is not available"
}

// HTTPStatus returns the appropriate HTTP status code for an error
func HTTPStatus(err error) int {
	if errors.Is(err, scheduler.ErrRunInFlight) || errors.Is(err, scheduler.ErrTooSoon) {
		return http.StatusConflict
	}

	var invalid *types.InvalidRequestError
	if errors.As(err, &invalid) {
		return http.StatusBadRequest
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		return http.StatusBadRequest
	}

	switch err.(type) {
	case *ErrJobNotFound, *ErrRunNotFound:
		return http.StatusNotFound
	case *ErrInvalidCredentials:
		return http.StatusUnauthorized
	case *ErrAuthNotConfigured, *ErrSchedulerUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
