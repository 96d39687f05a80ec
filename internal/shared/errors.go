package shared

import "errors"

// Error taxonomy shared across modules. Domain packages wrap these sentinels
// so handlers can map any failure to a transport response with errors.Is.
var (
	// ErrNotFound indicates an absent entity.
	ErrNotFound = errors.New("not found")
	// ErrInsufficientStock indicates an operation that would drive stock negative.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrValidation indicates malformed input.
	ErrValidation = errors.New("validation failed")
	// ErrConflict indicates a duplicate business key.
	ErrConflict = errors.New("duplicate entry")
	// ErrRemote indicates an external system failure.
	ErrRemote = errors.New("remote api error")
	// ErrPartialTransfer indicates a cross-ledger operation that was partially applied.
	ErrPartialTransfer = errors.New("transfer partially applied")
	// ErrUnauthorized indicates a missing or invalid API credential.
	ErrUnauthorized = errors.New("unauthorized")
)

// UserSafeMessage returns a message suitable for API consumers. Internal
// errors outside the taxonomy collapse to a generic message.
func UserSafeMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrInsufficientStock),
		errors.Is(err, ErrValidation),
		errors.Is(err, ErrConflict),
		errors.Is(err, ErrRemote),
		errors.Is(err, ErrPartialTransfer),
		errors.Is(err, ErrUnauthorized):
		return err.Error()
	default:
		return "internal error"
	}
}
