package activitypub

import (
	"context"
	"fmt"

	"github.com/davecheney/agora/models"
	"gorm.io/gorm"
)

// FollowHandler runs the Follow / Undo(Follow) handshake for local communities.
type FollowHandler struct {
	db     *gorm.DB
	outbox *Outbox
}

// HandleFollow subscribes person to community and replies with an Accept.
// A repeated Follow leaves the single existing subscription in place.
func (f *FollowHandler) HandleFollow(ctx context.Context, follow *Activity, person *models.Person, community *models.Community) error {
	ctx, span := tracer.Start(ctx, "FollowHandler.HandleFollow")
	defer span.End()

	if err := checkFollow(follow, person, community); err != nil {
		return err
	}
	if err := models.NewFollowers(f.db).Follow(ctx, community.ID, person.ID, false); err != nil {
		return err
	}
	object, err := follow.Map()
	if err != nil {
		return err
	}
	accept := map[string]any{
		"@context": ContextURL,
		"id":       activityID(community, Accept),
		"type":     Accept,
		"actor":    community.URI,
		"to":       []string{person.URI},
		"object":   object,
	}
	return f.outbox.Deliver(ctx, community, accept, person.InboxURL())
}

// HandleUndoFollow removes person's subscription to community, if any.
func (f *FollowHandler) HandleUndoFollow(ctx context.Context, undo, follow *Activity, person *models.Person, community *models.Community) error {
	ctx, span := tracer.Start(ctx, "FollowHandler.HandleUndoFollow")
	defer span.End()

	if !sameHost(undo.ID, person.URI) {
		return fmt.Errorf("%w: undo %s is not from %s", ErrDomainMismatch, undo.ID, person.URI)
	}
	if err := checkFollow(follow, person, community); err != nil {
		return err
	}
	return models.NewFollowers(f.db).Unfollow(ctx, community.ID, person.ID)
}

// checkFollow verifies follow was minted by person's server, was performed by
// person, and targets community.
func checkFollow(follow *Activity, person *models.Person, community *models.Community) error {
	switch {
	case !sameHost(follow.ID, person.URI):
		return fmt.Errorf("%w: follow %s is not from %s", ErrDomainMismatch, follow.ID, person.URI)
	case follow.ActorURI() != person.URI:
		return fmt.Errorf("%w: follow actor %s is not %s", ErrDomainMismatch, follow.ActorURI(), person.URI)
	case follow.ObjectID() != community.URI:
		return fmt.Errorf("%w: follow object %s is not %s", ErrDomainMismatch, follow.ObjectID(), community.URI)
	}
	return nil
}
