package kmeclient

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/ruteri/etsi014-conformance/interfaces"
)

// ErrNotExpressible is returned when the selected style cannot carry the request.
var ErrNotExpressible = errors.New("request cannot be expressed in the selected protocol style")

// Outcome classifies the result of a single exchange.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeValidationRejected
	OutcomeAuthorizationRejected
	OutcomeServerError
	OutcomeTransportFailure
	OutcomeSchemaViolation
	OutcomePreconditionFailed
)

var outcomeNames = map[Outcome]string{
	OutcomeSuccess:               "success",
	OutcomeValidationRejected:    "validation-rejected",
	OutcomeAuthorizationRejected: "authorization-rejected",
	OutcomeServerError:           "server-error",
	OutcomeTransportFailure:      "transport-failure",
	OutcomeSchemaViolation:       "schema-violation",
	OutcomePreconditionFailed:    "precondition-failed",
}

func (o Outcome) String() string {
	if name, ok := outcomeNames[o]; ok {
		return name
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// Fatal reports whether the outcome aborts a scenario instead of being a
// result the scenario can assert on.
func (o Outcome) Fatal() bool {
	switch o {
	case OutcomeTransportFailure, OutcomeSchemaViolation, OutcomePreconditionFailed:
		return true
	default:
		return false
	}
}

// RejectedError is a non-success response carrying a well-formed error envelope.
type RejectedError struct {
	Method     string
	URL        string
	StatusCode int
	Message    interfaces.ErrorMessage
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("%s %s rejected with %d: %s", e.Method, e.URL, e.StatusCode, e.Message.Message)
}

// Outcome maps the status code to a rejection class.
func (e *RejectedError) Outcome() Outcome {
	switch {
	case e.StatusCode == http.StatusUnauthorized:
		return OutcomeAuthorizationRejected
	case e.StatusCode >= 500:
		return OutcomeServerError
	default:
		return OutcomeValidationRejected
	}
}

// TransportError wraps connection, TLS handshake and timeout failures.
type TransportError struct {
	Method string
	URL    string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s failed: %v", e.Method, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// SchemaViolationError reports a body that does not match the document required
// for its status class.
type SchemaViolationError struct {
	Method     string
	URL        string
	StatusCode int
	Body       []byte
	Err        error
}

func (e *SchemaViolationError) Error() string {
	return fmt.Sprintf("%s %s returned %d with a malformed body: %v", e.Method, e.URL, e.StatusCode, e.Err)
}

func (e *SchemaViolationError) Unwrap() error {
	return e.Err
}

// Classify maps an error returned by Client to its outcome.
func Classify(err error) Outcome {
	if err == nil {
		return OutcomeSuccess
	}

	var rejected *RejectedError
	if errors.As(err, &rejected) {
		return rejected.Outcome()
	}

	var schema *SchemaViolationError
	if errors.As(err, &schema) {
		return OutcomeSchemaViolation
	}

	if errors.Is(err, ErrNotExpressible) {
		return OutcomePreconditionFailed
	}

	// Anything else failed before a response could be read.
	return OutcomeTransportFailure
}

// StatusCode returns the HTTP status carried by err, or 0 when no response was read.
func StatusCode(err error) int {
	var rejected *RejectedError
	if errors.As(err, &rejected) {
		return rejected.StatusCode
	}

	var schema *SchemaViolationError
	if errors.As(err, &schema) {
		return schema.StatusCode
	}

	return 0
}
