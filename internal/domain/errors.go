// Package domain defines core types, interfaces, and errors for the tenant gate.
package domain

import "fmt"

// NotFoundError indicates a resource was not found.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// AccessDeniedError indicates insufficient permissions.
type AccessDeniedError struct {
	Message string
}

func (e *AccessDeniedError) Error() string { return e.Message }

// ValidationError indicates invalid input.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// ConflictError indicates a conflict (e.g., duplicate resource).
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

// ErrNotFound creates a NotFoundError with a formatted message.
func ErrNotFound(format string, args ...interface{}) *NotFoundError {
	return &NotFoundError{Message: fmt.Sprintf(format, args...)}
}

// ErrAccessDenied creates an AccessDeniedError with a formatted message.
func ErrAccessDenied(format string, args ...interface{}) *AccessDeniedError {
	return &AccessDeniedError{Message: fmt.Sprintf(format, args...)}
}

// ErrValidation creates a ValidationError with a formatted message.
func ErrValidation(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// ErrConflict creates a ConflictError with a formatted message.
func ErrConflict(format string, args ...interface{}) *ConflictError {
	return &ConflictError{Message: fmt.Sprintf(format, args...)}
}

// CredentialErrorCode classifies why a bearer credential was rejected.
type CredentialErrorCode string

// Credential error codes. All are terminal for the request.
const (
	CredentialMalformed          CredentialErrorCode = "MALFORMED"
	CredentialExpired            CredentialErrorCode = "EXPIRED"
	CredentialSignatureInvalid   CredentialErrorCode = "SIGNATURE_INVALID"
	CredentialNoVerificationPath CredentialErrorCode = "NO_VERIFICATION_PATH_CONFIGURED"
	CredentialIssuerInvalid      CredentialErrorCode = "ISSUER_INVALID"
	CredentialAudienceInvalid    CredentialErrorCode = "AUDIENCE_INVALID"
	CredentialKeyUnavailable     CredentialErrorCode = "KEY_UNAVAILABLE"
	CredentialRevoked            CredentialErrorCode = "REVOKED"
	CredentialMissing            CredentialErrorCode = "UNAUTHENTICATED"
)

// CredentialError reports a failed credential verification.
type CredentialError struct {
	Code    CredentialErrorCode
	Message string
	Err     error
}

func (e *CredentialError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *CredentialError) Unwrap() error { return e.Err }

// ErrCredential creates a CredentialError wrapping cause (which may be nil).
func ErrCredential(code CredentialErrorCode, cause error, format string, args ...interface{}) *CredentialError {
	return &CredentialError{Code: code, Message: fmt.Sprintf(format, args...), Err: cause}
}

// ResolutionErrorCode classifies principal resolution failures.
type ResolutionErrorCode string

// ResolutionReferenceDataMissing means configured reference data (the default
// plan) does not exist. It is a configuration fault and never retried.
const ResolutionReferenceDataMissing ResolutionErrorCode = "REFERENCE_DATA_MISSING"

// ResolutionError reports a failure to resolve a principal or its plan.
type ResolutionError struct {
	Code    ResolutionErrorCode
	Message string
}

func (e *ResolutionError) Error() string { return fmt.Sprintf("%s: %s", e.Code, e.Message) }

// ErrReferenceDataMissing creates a ResolutionError for missing reference data.
func ErrReferenceDataMissing(format string, args ...interface{}) *ResolutionError {
	return &ResolutionError{Code: ResolutionReferenceDataMissing, Message: fmt.Sprintf(format, args...)}
}

// AuthorizationErrorCode classifies impersonation and privilege failures.
type AuthorizationErrorCode string

// Authorization error codes.
const (
	AuthorizationNotAuthorized        AuthorizationErrorCode = "NOT_AUTHORIZED"
	AuthorizationTenantNotFound       AuthorizationErrorCode = "TENANT_NOT_FOUND"
	AuthorizationAlreadyImpersonating AuthorizationErrorCode = "ALREADY_IMPERSONATING"
)

// AuthorizationError reports a rejected privileged operation.
type AuthorizationError struct {
	Code    AuthorizationErrorCode
	Message string
}

func (e *AuthorizationError) Error() string { return fmt.Sprintf("%s: %s", e.Code, e.Message) }

// ErrAuthorization creates an AuthorizationError with a formatted message.
func ErrAuthorization(code AuthorizationErrorCode, format string, args ...interface{}) *AuthorizationError {
	return &AuthorizationError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// QuotaLimitExceeded is the only QuotaError reason code.
const QuotaLimitExceeded = "LIMIT_EXCEEDED"

// QuotaError reports a denied metered operation together with the exact
// usage and limit so callers can render an upgrade prompt.
type QuotaError struct {
	Message      string
	CurrentUsage int64
	Limit        int64
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("%s: %s (usage %d of %d)", QuotaLimitExceeded, e.Message, e.CurrentUsage, e.Limit)
}

// StoreError marks a persistent-store failure that forced a fail-closed
// denial. It lets callers attribute the denial to infrastructure.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string { return fmt.Sprintf("store %s: %v", e.Op, e.Err) }

func (e *StoreError) Unwrap() error { return e.Err }
