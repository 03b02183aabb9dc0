package authcore

import (
	"errors"
	"net/http"
)

// ErrorKind classifies a failed flow. Kinds are stable and safe to expose.
type ErrorKind string

const (
	KindInvalidCredentials         ErrorKind = "invalid_credentials"
	KindEmailNotConfirmed          ErrorKind = "email_not_confirmed"
	KindAlreadyConfirmed           ErrorKind = "already_confirmed"
	KindAccountNotFound            ErrorKind = "account_not_found"
	KindAlreadyRegistered          ErrorKind = "already_registered"
	KindEmailInUse                 ErrorKind = "email_in_use"
	KindExternalVerificationFailed ErrorKind = "external_verification_failed"
	KindInvalidToken               ErrorKind = "invalid_token"
	KindConfirmationSendFailed     ErrorKind = "confirmation_send_failed"
	KindRecoverySendFailed         ErrorKind = "recovery_send_failed"
	KindUnsupportedProvider        ErrorKind = "unsupported_provider"
	KindRegistrationFailed         ErrorKind = "registration_failed"
	KindWeakPassword               ErrorKind = "weak_password"
	KindInvalidRequest             ErrorKind = "invalid_request"
	KindInternal                   ErrorKind = "internal"
)

var kindMessages = map[ErrorKind]string{
	KindInvalidCredentials:         "Invalid username or password",
	KindEmailNotConfirmed:          "Please confirm your email address first",
	KindAlreadyConfirmed:           "Your email was confirmed before. Please login to your account",
	KindAccountNotFound:            "Unable to find your account",
	KindAlreadyRegistered:          "You have an account already. Please login with your provider",
	KindEmailInUse:                 "An existing account is using this email address. Please try with another email address",
	KindExternalVerificationFailed: "Unable to verify your external login",
	KindInvalidToken:               "Invalid token. Please try again",
	KindConfirmationSendFailed:     "Failed to send email. Please contact admin",
	KindRecoverySendFailed:         "Failed to send email. Please contact admin",
	KindUnsupportedProvider:        "Invalid provider",
	KindRegistrationFailed:         "Unable to create your account",
	KindWeakPassword:               "Password does not meet the requirements",
	KindInvalidRequest:             "Invalid request",
	KindInternal:                   "Something went wrong. Please try again later",
}

// AuthError is the only error type returned by Authenticator flows. Message
// is fixed per kind; internal causes are logged, never attached.
type AuthError struct {
	Kind    ErrorKind `json:"code"`
	Message string    `json:"error"`
}

// NewAuthError creates an AuthError carrying the standard message for kind
func NewAuthError(kind ErrorKind) *AuthError {
	msg, ok := kindMessages[kind]
	if !ok {
		msg = string(kind)
	}
	return &AuthError{Kind: kind, Message: msg}
}

func (e *AuthError) Error() string {
	return e.Message
}

// Is matches any *AuthError of the same kind, so callers can write
// errors.Is(err, NewAuthError(KindInvalidToken)).
func (e *AuthError) Is(target error) bool {
	var t *AuthError
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// HTTPStatus maps the kind onto the status code the API responds with
func (e *AuthError) HTTPStatus() int {
	switch e.Kind {
	case KindInvalidCredentials, KindEmailNotConfirmed, KindAccountNotFound, KindExternalVerificationFailed:
		return http.StatusUnauthorized
	case KindInternal:
		return http.StatusInternalServerError
	}
	return http.StatusBadRequest
}

// KindOf returns the kind of err, or "" if err is not an *AuthError
func KindOf(err error) ErrorKind {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return ""
}

// IsKind reports whether err is an *AuthError of the given kind
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}
