package fraud

import (
	"errors"
	"net/http"
)

var (
	// Evidence errors
	ErrUnknownCheckType = errors.New("unknown check type")
	ErrMissingEvidence  = errors.New("missing risk evidence")

	// Block state errors
	ErrBlockStateNotFound = errors.New("user block state not found")

	// Scoring errors
	ErrSubCheckPanicked = errors.New("risk sub-check panicked")
)

// Kind classifies errors by how the caller must react to them
type Kind string

const (
	// KindConfiguration is a missing secret or key. Fatal at startup, 500 at request time.
	KindConfiguration Kind = "configuration"
	// KindValidation is malformed input such as a bad signature encoding.
	KindValidation Kind = "validation"
	// KindTransientScoring is a failed sub-check. Recovered locally, never surfaced.
	KindTransientScoring Kind = "transient_scoring"
	// KindSecurityViolation is an explicit rejection: bad signature, revoked token, blocked user.
	KindSecurityViolation Kind = "security_violation"
)

// Stable machine-readable codes returned to clients
const (
	CodeWebhookSecretMissing     = "WEBHOOK_SECRET_MISSING"
	CodeWebhookSignatureMissing  = "WEBHOOK_SIGNATURE_MISSING"
	CodeWebhookSignatureInvalid  = "WEBHOOK_SIGNATURE_INVALID"
	CodeWebhookSignatureEncoding = "WEBHOOK_SIGNATURE_MALFORMED"
	CodeWebhookPayloadInvalid    = "WEBHOOK_PAYLOAD_INVALID"
	CodeWebhookProviderUnknown   = "WEBHOOK_PROVIDER_UNKNOWN"
	CodeWebhookInProgress        = "WEBHOOK_IN_PROGRESS"

	CodeTokenMissing     = "TOKEN_MISSING"
	CodeTokenMalformed   = "TOKEN_MALFORMED"
	CodeTokenInvalid     = "TOKEN_INVALID"
	CodeTokenExpired     = "TOKEN_EXPIRED"
	CodeTokenRevoked     = "TOKEN_REVOKED"
	CodeForbiddenRole    = "FORBIDDEN_ROLE"
	CodeJWTSecretMissing = "JWT_SECRET_MISSING"

	CodeUserBlocked     = "USER_BLOCKED"
	CodeRiskBlocked     = "RISK_BLOCKED"
	CodeInvalidEvidence = "INVALID_EVIDENCE"
	CodeScoringFailed   = "SCORING_FAILED"
)

// Error is a classified error with a stable code
type Error struct {
	Kind    Kind
	Code    string
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Code + ": " + e.Message + ": " + e.Err.Error()
	}
	return e.Code + ": " + e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ConfigurationError reports a missing or unusable secret/key
func ConfigurationError(code, message string) *Error {
	return &Error{Kind: KindConfiguration, Code: code, Status: http.StatusInternalServerError, Message: message}
}

// ValidationError reports malformed input. status is 400 or 401.
func ValidationError(code string, status int, message string, err error) *Error {
	return &Error{Kind: KindValidation, Code: code, Status: status, Message: message, Err: err}
}

// SecurityViolation reports an explicit rejection. status is 401 or 403.
func SecurityViolation(code string, status int, message string) *Error {
	return &Error{Kind: KindSecurityViolation, Code: code, Status: status, Message: message}
}

// TransientScoringError wraps a failed sub-check
func TransientScoringError(check string, err error) *Error {
	return &Error{Kind: KindTransientScoring, Code: CodeScoringFailed, Message: check, Err: err}
}

// KindOf returns the kind of err, or "" when err is not classified
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// CodeOf returns the code of err, or "" when err is not classified
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// HTTPStatus maps err onto a response status. Unclassified errors are 500.
func HTTPStatus(err error) int {
	var e *Error
	if !errors.As(err, &e) {
		return http.StatusInternalServerError
	}
	if e.Status != 0 {
		return e.Status
	}
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindSecurityViolation:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
