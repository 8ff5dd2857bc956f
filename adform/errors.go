package adform

import "errors"

var (
	ErrUnknownField = errors.New("unknown draft field")
	ErrInvalidValue = errors.New("invalid field value")
	ErrBusy         = errors.New("another operation is in flight for this draft")
	ErrNotReady     = errors.New("draft is not ready for this action")
	ErrClosed       = errors.New("authoring session is closed")
	ErrStale        = errors.New("result discarded: session was reset or closed")
)

// DefaultRejectionReason is shown when moderation rejects without a reason.
const DefaultRejectionReason = "This listing violated our safety standards."
