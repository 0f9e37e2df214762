package core

import "errors"

var (
	ErrNameRequired     = errors.New("name_required")
	ErrInvalidEmail     = errors.New("invalid_email")
	ErrPasswordTooShort = errors.New("password_too_short")
	ErrMissingFields    = errors.New("missing_fields")

	ErrAlreadyActivated    = errors.New("already_activated")
	ErrPendingConfirmation = errors.New("pending_confirmation")

	ErrOTPInvalid   = errors.New("invalid_otp")
	ErrOTPExpired   = errors.New("otp_expired")
	ErrOTPLocked    = errors.New("otp_locked")
	ErrTokenInvalid = errors.New("invalid_token")
	ErrTokenExpired = errors.New("token_expired")

	ErrStore         = errors.New("store_error")
	ErrEmailDelivery = errors.New("email_delivery_failed")

	// Returned by Store implementations.
	ErrNotFound  = errors.New("not_found")
	ErrDuplicate = errors.New("duplicate")
)

// ErrorKind groups errors by how callers should react to them.
type ErrorKind int

const (
	KindServer ErrorKind = iota
	KindValidation
	KindConflict
	KindInvalid
	KindExpired
	KindLocked
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindInvalid:
		return "invalid"
	case KindExpired:
		return "expired"
	case KindLocked:
		return "locked"
	default:
		return "server"
	}
}

// KindOf classifies err. Anything unrecognised is KindServer.
func KindOf(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrNameRequired), errors.Is(err, ErrInvalidEmail),
		errors.Is(err, ErrPasswordTooShort), errors.Is(err, ErrMissingFields):
		return KindValidation
	case errors.Is(err, ErrAlreadyActivated), errors.Is(err, ErrPendingConfirmation):
		return KindConflict
	case errors.Is(err, ErrOTPInvalid), errors.Is(err, ErrTokenInvalid):
		return KindInvalid
	case errors.Is(err, ErrOTPExpired), errors.Is(err, ErrTokenExpired):
		return KindExpired
	case errors.Is(err, ErrOTPLocked):
		return KindLocked
	default:
		return KindServer
	}
}

// Code returns the stable snake_case code for err, "server_error" when unknown.
func Code(err error) string {
	for _, known := range publicErrors {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return "server_error"
}

// ErrMessage returns the user-facing text for err. Raw store errors map to a
// generic message.
func ErrMessage(err error) string {
	for _, known := range publicErrors {
		if errors.Is(err, known) {
			return messages[known]
		}
	}
	return messages[ErrStore]
}

var publicErrors = []error{
	ErrNameRequired, ErrInvalidEmail, ErrPasswordTooShort, ErrMissingFields,
	ErrAlreadyActivated, ErrPendingConfirmation,
	ErrOTPInvalid, ErrOTPExpired, ErrOTPLocked, ErrTokenInvalid, ErrTokenExpired,
	ErrStore, ErrEmailDelivery,
}

var messages = map[error]string{
	ErrNameRequired:        "Name is required",
	ErrInvalidEmail:        "Invalid email address",
	ErrPasswordTooShort:    "Password must be at least 6 characters",
	ErrMissingFields:       "Missing required fields",
	ErrAlreadyActivated:    "Account already activated, please log in",
	ErrPendingConfirmation: "Registration already pending confirmation, check your email",
	ErrOTPInvalid:          "Invalid OTP",
	ErrOTPExpired:          "OTP expired",
	ErrOTPLocked:           "OTP locked, request a new one",
	ErrTokenInvalid:        "Invalid token",
	ErrTokenExpired:        "Token expired",
	ErrStore:               "Internal server error",
	ErrEmailDelivery:       "Could not send email, try again later",
}
