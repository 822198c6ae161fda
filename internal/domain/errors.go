package domain

import "errors"

// Kind is the stable, machine-readable category of an error.
type Kind string

const (
	KindValidation          Kind = "validation"
	KindDuplicateIdentity   Kind = "duplicate_identity"
	KindNotFound            Kind = "not_found"
	KindInvalidCredential   Kind = "invalid_credential"
	KindMissingEmail        Kind = "missing_email"
	KindAllocationExhausted Kind = "allocation_exhausted"
	KindGenerationFailed    Kind = "generation_failed"
	KindStorageUnavailable  Kind = "storage_unavailable"
	KindUnauthorized        Kind = "unauthorized"
	KindRateLimited         Kind = "rate_limited"
	KindConflict            Kind = "conflict"
	KindInternal            Kind = "internal"
)

// Error is a business error carrying its kind and a caller-facing message.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds an error of the given kind.
func NewError(kind Kind, msg string) error {
	return &Error{Kind: kind, Message: msg}
}

// WrapError builds an error of the given kind around a cause.
func WrapError(kind Kind, msg string, err error) error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

// MessageOf returns the caller-facing message of err. Errors without a kind get a generic message
// so storage details never leak.
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return "internal error"
}

var (
	// ErrUserNotFound is returned when no user matches an email or id.
	ErrUserNotFound = NewError(KindNotFound, "user not found")
	// ErrEmailTaken is returned by stores when the unique email index rejects an insert.
	ErrEmailTaken = NewError(KindDuplicateIdentity, "email already registered")
	// ErrInvalidPassword indicates a failed password comparison.
	ErrInvalidPassword = NewError(KindInvalidCredential, "invalid password")
	// ErrMissingEmail indicates the identity provider did not share an email.
	ErrMissingEmail = NewError(KindMissingEmail, "identity provider did not supply an email")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = NewError(KindNotFound, "quiz not found")
	// ErrQuizExists is returned when a quiz id is inserted twice.
	ErrQuizExists = NewError(KindConflict, "quiz already exists")
	// ErrSessionNotFound is returned when a game session does not exist.
	ErrSessionNotFound = NewError(KindNotFound, "game session not found")
	// ErrJoinCodeTaken is returned by stores when a live session already holds the pin.
	ErrJoinCodeTaken = NewError(KindConflict, "join code already in use")
	// ErrAllocationExhausted means no unique join code was found within the attempt bound.
	ErrAllocationExhausted = NewError(KindAllocationExhausted, "could not allocate a unique join code, try again")
	// ErrInvalidTransition is returned for a backward or repeated status change.
	ErrInvalidTransition = NewError(KindConflict, "invalid session status transition")
	// ErrExchangeCodeInvalid is returned for unknown, expired or already redeemed exchange codes.
	ErrExchangeCodeInvalid = NewError(KindUnauthorized, "login code is invalid or expired")
	// ErrUnauthorized is returned when a route needs a signed-in caller.
	ErrUnauthorized = NewError(KindUnauthorized, "authentication required")
	// ErrRateLimited is returned when a caller exceeded its request budget.
	ErrRateLimited = NewError(KindRateLimited, "too many requests, slow down")
)
