package activitypub

import (
	"errors"
	"net/http"

	"github.com/davecheney/agora/internal/httpx"
)

var (
	// ErrSignatureInvalid is returned when the request signature does not verify
	// against the claimed actor's key.
	ErrSignatureInvalid = errors.New("signature invalid")

	// ErrActorUnresolvable is returned when the claimed actor cannot be resolved.
	ErrActorUnresolvable = errors.New("actor unresolvable")

	// ErrResolution is returned when an identifier is malformed, or the document
	// fetched for it is not the actor or object that was asked for.
	ErrResolution = errors.New("resolution failed")

	// ErrMalformed is returned when an activity cannot be decoded.
	ErrMalformed = errors.New("malformed activity")

	// ErrUnsupportedType is returned for activity or object types outside the
	// vocabulary of the receiving inbox.
	ErrUnsupportedType = errors.New("unsupported activity type")

	// ErrNotAddressedHere is returned when the activity's to and cc do not
	// include the receiving actor.
	ErrNotAddressedHere = errors.New("activity not addressed to recipient")

	// ErrForeignActivity is returned when a remote server delivers an activity
	// whose id belongs to this server.
	ErrForeignActivity = errors.New("activity id claims local origin")

	// ErrDomainMismatch is returned when an id is not under the domain it must belong to.
	ErrDomainMismatch = errors.New("domain mismatch")

	// ErrActorBanned is returned when the sender is banned from the community or the site.
	ErrActorBanned = errors.New("actor banned")

	// ErrContentRejected is returned when content fails the content filter.
	ErrContentRejected = errors.New("content rejected")

	// ErrNotFound is returned when the addressed local actor does not exist.
	ErrNotFound = errors.New("not found")

	// ErrTooLarge is returned when the request body exceeds the configured limit.
	ErrTooLarge = errors.New("activity too large")
)

// statusError attaches the HTTP status for err. Errors outside the
// taxonomy are collaborator failures, they become 500 so the sender retries.
func statusError(err error) error {
	switch {
	case errors.Is(err, ErrSignatureInvalid), errors.Is(err, ErrActorUnresolvable):
		return httpx.Error(http.StatusUnauthorized, err)
	case errors.Is(err, ErrNotFound):
		return httpx.Error(http.StatusNotFound, err)
	case errors.Is(err, ErrTooLarge):
		return httpx.Error(http.StatusRequestEntityTooLarge, err)
	case errors.Is(err, ErrMalformed),
		errors.Is(err, ErrResolution),
		errors.Is(err, ErrUnsupportedType),
		errors.Is(err, ErrNotAddressedHere),
		errors.Is(err, ErrForeignActivity),
		errors.Is(err, ErrDomainMismatch),
		errors.Is(err, ErrContentRejected):
		return httpx.Error(http.StatusBadRequest, err)
	default:
		return err
	}
}
