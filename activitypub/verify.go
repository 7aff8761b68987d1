package activitypub

import (
	"context"
	"fmt"
	"net/http"

	"github.com/davecheney/agora/internal/httpsig"
)

// Verifier authenticates inbound requests.
type Verifier struct {
	resolver *Resolver
}

// Verify resolves the activity's actor and checks the request signature
// against that actor's public key. The returned actor is the authenticated sender.
func (v *Verifier) Verify(ctx context.Context, r *http.Request, body []byte, activity *Activity) (Actor, error) {
	ctx, span := tracer.Start(ctx, "Verifier.Verify")
	defer span.End()

	keyID, err := httpsig.KeyID(r)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}
	// a key hosted elsewhere cannot speak for the actor.
	if !sameHost(keyID, activity.ActorURI()) {
		return nil, fmt.Errorf("%w: key %s does not belong to %s", ErrSignatureInvalid, keyID, activity.ActorURI())
	}

	actor, err := v.resolver.Resolve(ctx, activity.ActorURI())
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: %s: %v", ErrActorUnresolvable, activity.ActorURI(), err)
	}
	pub, err := actor.PubKey()
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: %s: %v", ErrActorUnresolvable, activity.ActorURI(), err)
	}
	if err := httpsig.Verify(r, body, pub); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: key %s: %v", ErrSignatureInvalid, keyID, err)
	}
	return actor, nil
}
