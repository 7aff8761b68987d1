package activitypub

import (
	"fmt"
	"slices"

	"github.com/go-json-experiment/json"
)

// Type is an activity type tag. Only the tags declared below decode,
// anything else is a decoding error.
type Type string

const (
	Follow   Type = "Follow"
	Undo     Type = "Undo"
	Create   Type = "Create"
	Update   Type = "Update"
	Like     Type = "Like"
	Dislike  Type = "Dislike"
	Delete   Type = "Delete"
	Remove   Type = "Remove"
	Accept   Type = "Accept"
	Reject   Type = "Reject"
	Announce Type = "Announce"
)

var (
	// CommunityVocabulary is accepted by community inboxes.
	CommunityVocabulary = []Type{Follow, Undo, Create, Update, Like, Dislike, Delete, Remove}

	// PersonVocabulary is accepted by person inboxes.
	PersonVocabulary = []Type{Accept, Reject, Announce}

	// SharedVocabulary is accepted by the shared inbox.
	SharedVocabulary = append(slices.Clip(CommunityVocabulary), PersonVocabulary...)
)

func (t *Type) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	switch typ := Type(s); typ {
	case Follow, Undo, Create, Update, Like, Dislike, Delete, Remove, Accept, Reject, Announce:
		*t = typ
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedType, s)
	}
}

// Activity is the envelope of an inbound activity.
type Activity struct {
	Context any    `json:"'@context',omitempty"`
	ID      string `json:"id"`
	Type    Type   `json:"type"`
	Actor   any    `json:"actor"`
	Object  any    `json:"object"`
	To      any    `json:"to,omitempty"`
	CC      any    `json:"cc,omitempty"`

	// raw is the document as received.
	raw []byte
}

// Decode parses body as an activity whose type is one of allowed.
func Decode(body []byte, allowed []Type) (*Activity, error) {
	var a Activity
	if err := json.Unmarshal(body, &a); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	a.raw = body
	if err := a.validate(allowed); err != nil {
		return nil, err
	}
	return &a, nil
}

func (a *Activity) validate(allowed []Type) error {
	switch {
	case !validURI(a.ID):
		return fmt.Errorf("%w: invalid id %q", ErrMalformed, a.ID)
	case !validURI(a.ActorURI()):
		return fmt.Errorf("%w: invalid actor %q", ErrMalformed, a.ActorURI())
	case !slices.Contains(allowed, a.Type):
		return fmt.Errorf("%w: %s", ErrUnsupportedType, a.Type)
	}
	return nil
}

// ActorURI returns the id of the actor that performed the activity.
func (a *Activity) ActorURI() string {
	return idFromAny(a.Actor)
}

// ObjectID returns the id of the object, which may be embedded or a reference.
func (a *Activity) ObjectID() string {
	return idFromAny(a.Object)
}

// Recipients returns the ids in to and cc.
func (a *Activity) Recipients() []string {
	return append(idsFromAny(a.To), idsFromAny(a.CC)...)
}

// AddressedTo reports whether any of uris appears in to or cc.
func (a *Activity) AddressedTo(uris ...string) bool {
	for _, r := range a.Recipients() {
		if slices.Contains(uris, r) {
			return true
		}
	}
	return false
}

// IsPublic reports whether the activity is addressed to the public collection.
func (a *Activity) IsPublic() bool {
	return a.AddressedTo(Public, "as:Public", "Public")
}

// Inner decodes the embedded object as an activity of one of the allowed types.
func (a *Activity) Inner(allowed []Type) (*Activity, error) {
	obj := mapFromAny(a.Object)
	if obj == nil {
		return nil, fmt.Errorf("%w: %s object is not an embedded activity", ErrMalformed, a.Type)
	}
	body, err := json.Marshal(obj)
	if err != nil {
		return nil, err
	}
	return Decode(body, allowed)
}

// Map returns the activity as a generic document, suitable for embedding
// in another activity.
func (a *Activity) Map() (map[string]any, error) {
	var m map[string]any
	if err := json.Unmarshal(a.raw, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return m, nil
}

// Raw returns the activity as received.
func (a *Activity) Raw() []byte {
	return a.raw
}
