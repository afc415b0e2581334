package accounts

import (
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeEmailTaken          = "EMAIL_TAKEN"
	TextCodeTokenInvalid        = "TOKEN_INVALID"
	TextCodeTokenExpired        = "TOKEN_EXPIRED"
	TextCodeEmailNotVerified    = "EMAIL_NOT_VERIFIED"
	TextCodeInvalidCreds        = "INVALID_CREDENTIALS"
	TextCodeRefreshInvalid      = "REFRESH_TOKEN_INVALID"
	TextCodeUnauthorized        = "UNAUTHORIZED"
	TextCodeForbidden           = "FORBIDDEN"
	TextCodeAccountNotFound     = "ACCOUNT_NOT_FOUND"
	TextCodeAlreadyVerified     = "EMAIL_ALREADY_VERIFIED"
	TextCodeEmptyPassword       = "EMPTY_PASSWORD"
	TextCodeSessionExpired      = "SESSION_EXPIRED"
	TextCodeSessionMalformed    = "SESSION_MALFORMED"
	TextCodeSessionNotFound     = "SESSION_NOT_FOUND"
	TextCodeRateLimited         = "RATE_LIMITED"
	TextCodeValidationFailed    = "VALIDATION_FAILED"
	TextCodeInternalServerError = "INTERNAL_ERROR"
)

// ErrConflictEmail is returned when an account already uses the email
var ErrConflictEmail = goerrors.New("email already registered", goerrors.CategoryConflict).
	WithCode(goerrors.CodeConflict).
	WithTextCode(TextCodeEmailTaken)

// ErrInvalidToken is returned when no account holds the opaque token
var ErrInvalidToken = goerrors.New("invalid token", goerrors.CategoryBadInput).
	WithCode(goerrors.CodeBadRequest).
	WithTextCode(TextCodeTokenInvalid)

// ErrExpiredToken is returned when the opaque token expiry is in the past
var ErrExpiredToken = goerrors.New("token expired", goerrors.CategoryBadInput).
	WithCode(goerrors.CodeBadRequest).
	WithTextCode(TextCodeTokenExpired)

// ErrEmailNotVerified blocks login of unverified accounts
var ErrEmailNotVerified = goerrors.New("email not verified, check your inbox", goerrors.CategoryAuth).
	WithCode(goerrors.CodeUnauthorized).
	WithTextCode(TextCodeEmailNotVerified)

// ErrInvalidCredentials is returned for unknown emails and wrong passwords alike
var ErrInvalidCredentials = goerrors.New("the credentials provided are invalid", goerrors.CategoryAuth).
	WithCode(goerrors.CodeUnauthorized).
	WithTextCode(TextCodeInvalidCreds)

// ErrInvalidRefreshToken covers bad signature, expiry and revocation
var ErrInvalidRefreshToken = goerrors.New("invalid or expired refresh token", goerrors.CategoryAuth).
	WithCode(goerrors.CodeUnauthorized).
	WithTextCode(TextCodeRefreshInvalid)

// ErrUnauthorized is returned by the session guard
var ErrUnauthorized = goerrors.New("authentication required", goerrors.CategoryAuth).
	WithCode(goerrors.CodeUnauthorized).
	WithTextCode(TextCodeUnauthorized)

// ErrForbidden is returned when the account role is not allowed
var ErrForbidden = goerrors.New("insufficient permissions", goerrors.CategoryAuthz).
	WithCode(goerrors.CodeForbidden).
	WithTextCode(TextCodeForbidden)

// ErrAccountNotFound is returned where disclosing absence is safe
var ErrAccountNotFound = goerrors.New("account not found", goerrors.CategoryNotFound).
	WithCode(goerrors.CodeNotFound).
	WithTextCode(TextCodeAccountNotFound)

// ErrAlreadyVerified is returned when resending to a verified account
var ErrAlreadyVerified = goerrors.New("email already verified", goerrors.CategoryBadInput).
	WithCode(goerrors.CodeBadRequest).
	WithTextCode(TextCodeAlreadyVerified)

// ErrNoEmptyString rejects empty passwords before hashing
var ErrNoEmptyString = goerrors.New("password must not be empty", goerrors.CategoryValidation).
	WithCode(goerrors.CodeBadRequest).
	WithTextCode(TextCodeEmptyPassword)

// ErrPasswordTooLong rejects passwords bcrypt would refuse to hash
var ErrPasswordTooLong = goerrors.New("password must be at most 72 bytes", goerrors.CategoryValidation).
	WithCode(goerrors.CodeBadRequest).
	WithTextCode(TextCodeValidationFailed)

// ErrTokenExpired is returned by TokenService when a JWT is past its exp
var ErrTokenExpired = goerrors.New("session token is expired", goerrors.CategoryAuth).
	WithCode(goerrors.CodeUnauthorized).
	WithTextCode(TextCodeSessionExpired)

// ErrTokenMalformed is returned by TokenService for any other JWT failure
var ErrTokenMalformed = goerrors.New("session token is malformed", goerrors.CategoryAuth).
	WithCode(goerrors.CodeUnauthorized).
	WithTextCode(TextCodeSessionMalformed)

// ErrUnableToFindSession is returned when a request carries no token
var ErrUnableToFindSession = goerrors.New("unable to find session", goerrors.CategoryAuth).
	WithCode(goerrors.CodeUnauthorized).
	WithTextCode(TextCodeSessionNotFound)

// ErrRateLimited is returned when a client exceeds its request budget
var ErrRateLimited = goerrors.New("too many requests, try again later", goerrors.CategoryRateLimit).
	WithCode(http.StatusTooManyRequests).
	WithTextCode(TextCodeRateLimited)

// IsTokenExpiredError will check for expired tokens
func IsTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}
	if goerrors.Is(err, ErrTokenExpired) || goerrors.Is(err, ErrExpiredToken) {
		return true
	}
	return strings.Contains(err.Error(), "token is expired")
}

// IsMalformedError will check for error message
func IsMalformedError(err error) bool {
	if err == nil {
		return false
	}
	if goerrors.Is(err, ErrTokenMalformed) {
		return true
	}
	return strings.Contains(err.Error(), "token is malformed") ||
		strings.Contains(err.Error(), "missing or malformed")
}

// AsRichError returns err as a *goerrors.Error, wrapping anything
// unstructured as an internal error.
func AsRichError(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr
	}
	return goerrors.Wrap(err, goerrors.CategoryInternal, "an unexpected server error occurred").
		WithCode(goerrors.CodeInternal).
		WithTextCode(TextCodeInternalServerError)
}
