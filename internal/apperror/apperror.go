// Package apperror defines the application's error taxonomy.
//
// Every error a client can observe is an *AppError carrying a stable wire code
// (e.g. "auth/invalid-session-id"). The mobile app switches on those strings, so
// they must never change. Each error also wraps one category sentinel, which
// lets callers branch with errors.Is without comparing strings:
//
//	if errors.Is(err, apperror.ErrAuth) { ... }
package apperror

import (
	"errors"
	"fmt"
)

// Category sentinels. Every AppError wraps exactly one of them.
var (
	ErrAuth       = errors.New("auth")
	ErrInfra      = errors.New("app")
	ErrValidation = errors.New("request")
	ErrProfile    = errors.New("profile")
	ErrNote       = errors.New("note")
	ErrConnection = errors.New("connection")

	// ErrNotFound is wrapped in addition to the category when the error means
	// "the thing you asked for does not exist".
	ErrNotFound = errors.New("not found")
)

// Code is a wire-compatible error code.
type Code string

// Auth codes.
const (
	CodeInvalidEmail            Code = "auth/invalid-email"
	CodeInvalidPhoneNumber      Code = "auth/invalid-phone-number"
	CodeUserNotFound            Code = "auth/user-not-found"
	CodeWrongPassword           Code = "auth/wrong-password"
	CodeUIDAlreadyExists        Code = "auth/uid-already-exists"
	CodeEmailAlreadyExists      Code = "auth/email-already-exists"
	CodePhoneAlreadyExists      Code = "auth/phone-number-already-exists"
	CodePhoneNotCached          Code = "auth/phone-number-not-cached"
	CodeVerificationMismatch    Code = "auth/phone-verification-code-mismatch"
	CodeInvalidSessionID        Code = "auth/invalid-session-id"
	CodeInvalidPageToken        Code = "auth/invalid-page-token"
	CodeInvalidResetToken       Code = "auth/invalid-reset-token"
	CodeUnauthorizedAccess      Code = "auth/unauthorized-access-into-api"
	CodeNoSessionInAuthHeader   Code = "auth/unable-to-extract-session-id-from-auth-header"
	CodeTwitterRequestTokenFail Code = "auth/twitter-request-token-failure"
)

// App (infrastructure) codes.
const (
	CodeNetworkError       Code = "app/network-error"
	CodeNetworkTimeout     Code = "app/network-timeout"
	CodeUnparsableResponse Code = "app/unable-to-parse-response"
	CodeDatabaseError      Code = "app/firebase-database-error"
	CodeStorageError       Code = "app/firebase-storage-error"
)

// Request, profile, note and connection codes.
const (
	CodeMissingBodyAttributes Code = "request/missing-body-attributes"
	CodeMaxProfilesReached    Code = "profile/max-number-of-profiles-are-being-used"
	CodeNoProfileForNumber    Code = "profile/no-profile-was-found-for-the-profile-number-passed"
	CodeNoteNotFound          Code = "note/note-not-found"
	CodeRequestNotFound       Code = "connection/request-not-found"
)

// AppError is the concrete error type returned by the service layer.
type AppError struct {
	Err     error  // category sentinel (ErrAuth, ErrInfra, ...)
	Code    Code   // wire code sent to clients
	Message string // human-readable detail, never sent for infra errors
	Field   string // optional: request field that caused the error
	cause   error  // optional: provider error kept for logs
}

func (e *AppError) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes both the category and, when present, the underlying cause.
func (e *AppError) Unwrap() []error {
	errs := []error{e.Err}
	if e.cause != nil {
		errs = append(errs, e.cause)
	}
	return errs
}

// Cause returns the provider error that was re-signaled, if any.
func (e *AppError) Cause() error {
	return e.cause
}

// Is matches another *AppError by wire code so callers can compare against the
// package-level values below with errors.Is.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	return ok && t.Code == e.Code
}

// New builds an AppError for a category and code.
func New(category error, code Code, message string) *AppError {
	return &AppError{Err: category, Code: code, Message: message}
}

// Comparable values for errors.Is.
var (
	InvalidSession   = New(ErrAuth, CodeInvalidSessionID, "")
	PhoneNotCached   = New(ErrAuth, CodePhoneNotCached, "")
	UserNotFound     = New(ErrAuth, CodeUserNotFound, "")
	WrongPassword    = New(ErrAuth, CodeWrongPassword, "")
	InvalidPageToken = New(ErrAuth, CodeInvalidPageToken, "")
	RequestNotFound  = New(ErrConnection, CodeRequestNotFound, "")
)

// Auth returns an auth-category error.
func Auth(code Code, message string) *AppError {
	return New(ErrAuth, code, message)
}

// NotFound returns an error that matches both the category and ErrNotFound.
func NotFound(category error, code Code, resource, id string) *AppError {
	return &AppError{
		Err:     category,
		Code:    code,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
		cause:   ErrNotFound,
	}
}

// ValidationFailed reports a missing or malformed request attribute.
func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Code:    CodeMissingBodyAttributes,
		Message: message,
		Field:   field,
	}
}

// InvalidProfileNumber reports a slot outside 1..4.
func InvalidProfileNumber(n int) *AppError {
	return &AppError{
		Err:     ErrProfile,
		Code:    CodeNoProfileForNumber,
		Message: fmt.Sprintf("profile number %d is out of range", n),
		Field:   "profileN",
	}
}

// Database re-signals a storage failure under the generic database code.
// The provider error is kept for logging only.
func Database(cause error) *AppError {
	return &AppError{Err: ErrInfra, Code: CodeDatabaseError, cause: cause}
}

// Storage re-signals a blob storage failure.
func Storage(cause error) *AppError {
	return &AppError{Err: ErrInfra, Code: CodeStorageError, cause: cause}
}

// Network re-signals a failure talking to a third-party HTTP API.
func Network(cause error) *AppError {
	return &AppError{Err: ErrInfra, Code: CodeNetworkError, cause: cause}
}

// CodeOf extracts the wire code from err, defaulting to the database code for
// errors that never went through this package.
func CodeOf(err error) Code {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeDatabaseError
}
