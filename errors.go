package accounts

import (
	"strings"

	"github.com/goliatone/go-errors"
)

const (
	// TextCodeTokenExpired marks expired action or session tokens.
	TextCodeTokenExpired = "TOKEN_EXPIRED"
	// TextCodeTokenMalformed marks tokens that fail signature or shape checks.
	TextCodeTokenMalformed = "TOKEN_MALFORMED"
	// TextCodeInvalidCredentials is shared by unknown-email and bad-password
	// failures so responses do not leak which accounts exist.
	TextCodeInvalidCredentials = "INVALID_CREDENTIALS"
)

// ErrInvalidCredentials is the uniform login failure for a missing account or
// a password mismatch.
var ErrInvalidCredentials = errors.New("invalid email or password", errors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(errors.CodeUnauthorized)

// ErrAccountNotVerified rejects logins before the verification link was used.
var ErrAccountNotVerified = errors.New("account email has not been verified", errors.CategoryAuth).
	WithTextCode("ACCOUNT_NOT_VERIFIED").
	WithCode(errors.CodeUnauthorized)

// ErrEmailTaken is returned when registering an email that already exists.
var ErrEmailTaken = errors.New("an account with this email already exists", errors.CategoryConflict).
	WithTextCode("EMAIL_TAKEN").
	WithCode(errors.CodeConflict)

// ErrAccountNotFound is returned when no account matches the given id or email.
var ErrAccountNotFound = errors.New("account not found", errors.CategoryNotFound).
	WithTextCode("ACCOUNT_NOT_FOUND").
	WithCode(errors.CodeNotFound)

// ErrVerificationTokenNotFound covers unknown and already consumed tokens.
var ErrVerificationTokenNotFound = errors.New("invalid or already used verification token", errors.CategoryNotFound).
	WithTextCode("VERIFICATION_TOKEN_NOT_FOUND").
	WithCode(errors.CodeNotFound)

// ErrResetTokenExpired covers unknown reset tokens and tokens past expiry.
var ErrResetTokenExpired = errors.New("password reset token is invalid or has expired", errors.CategoryValidation).
	WithTextCode(TextCodeTokenExpired).
	WithCode(errors.CodeBadRequest)

// ErrTokenExpired is returned when a session token is past its validity window
var ErrTokenExpired = errors.New("session token has expired", errors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(errors.CodeUnauthorized)

// ErrTokenMalformed is returned when a session token fails decoding or
// signature validation
var ErrTokenMalformed = errors.New("session token is malformed", errors.CategoryAuth).
	WithTextCode(TextCodeTokenMalformed).
	WithCode(errors.CodeUnauthorized)

// ErrNoEmptyString rejects empty password input before hashing
var ErrNoEmptyString = errors.New("value must be a non empty string", errors.CategoryBadInput).
	WithCode(errors.CodeBadRequest)

// ErrMismatchedHashAndPassword is the normalized bcrypt mismatch error
var ErrMismatchedHashAndPassword = errors.New("password does not match", errors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(errors.CodeUnauthorized)

// IsTokenExpiredError will check for expired tokens
func IsTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}

	var rich *errors.Error
	if errors.As(err, &rich) && rich.TextCode == TextCodeTokenExpired {
		return true
	}

	return strings.Contains(err.Error(), "token is expired")
}

// IsMalformedError will check for error message
func IsMalformedError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "token is malformed") ||
		strings.Contains(err.Error(), "missing or malformed JWT")
}

// HTTPStatus maps a rich error category to the HTTP status the transport
// should answer with. Unknown categories are treated as internal failures.
func HTTPStatus(err error) int {
	var rich *errors.Error
	if !errors.As(err, &rich) {
		return 500
	}

	switch rich.Category {
	case errors.CategoryValidation, errors.CategoryBadInput:
		return 400
	case errors.CategoryAuth, errors.CategoryAuthz:
		return 401
	case errors.CategoryNotFound:
		return 404
	case errors.CategoryConflict:
		return 409
	default:
		return 500
	}
}
