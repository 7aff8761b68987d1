package activitypub

import (
	"context"
	"fmt"

	"github.com/davecheney/agora/models"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Decision reports whether a handled activity should be announced to the
// community's followers.
type Decision int

const (
	NoAnnounce Decision = iota
	ShouldAnnounce
)

// Router dispatches verified activities addressed to a community.
type Router struct {
	bans       *models.Bans
	follows    *FollowHandler
	translator *Translator
}

// Dispatch applies activity, sent by sender, to community.
func (rt *Router) Dispatch(ctx context.Context, activity *Activity, sender Actor, community *models.Community) (Decision, error) {
	ctx, span := tracer.Start(ctx, "Router.Dispatch", trace.WithAttributes(
		attribute.String("activity.id", activity.ID),
		attribute.String("activity.type", string(activity.Type)),
		attribute.String("community", community.URI),
	))
	defer span.End()

	decision, err := rt.dispatch(ctx, activity, sender, community, false)
	if err != nil {
		span.RecordError(err)
	}
	return decision, err
}

func (rt *Router) dispatch(ctx context.Context, activity *Activity, sender Actor, community *models.Community, undo bool) (Decision, error) {
	if !sameHost(activity.ID, sender.ActorURI()) {
		return NoAnnounce, fmt.Errorf("%w: %s is not from %s", ErrDomainMismatch, activity.ID, sender.ActorURI())
	}
	if activity.Type == Remove {
		// moderation actions by remote communities are not mirrored.
		return NoAnnounce, nil
	}
	person, ok := sender.(*models.Person)
	if !ok {
		return NoAnnounce, fmt.Errorf("%w: %s from non person actor %s", ErrUnsupportedType, activity.Type, sender.ActorURI())
	}

	switch activity.Type {
	case Follow:
		if undo {
			return NoAnnounce, fmt.Errorf("%w: undo of follow must embed the follow", ErrUnsupportedType)
		}
		return NoAnnounce, rt.follows.HandleFollow(ctx, activity, person, community)
	case Undo:
		if undo {
			return NoAnnounce, fmt.Errorf("%w: nested undo", ErrUnsupportedType)
		}
		return rt.undo(ctx, activity, person, community)
	case Create, Update, Like, Dislike, Delete:
		if err := rt.checkBanned(ctx, person, community); err != nil {
			return NoAnnounce, err
		}
		if err := rt.translator.Apply(ctx, activity, person, community, undo); err != nil {
			return NoAnnounce, err
		}
		return ShouldAnnounce, nil
	default:
		return NoAnnounce, fmt.Errorf("%w: %s", ErrUnsupportedType, activity.Type)
	}
}

// undo reverses the activity embedded in the Undo.
func (rt *Router) undo(ctx context.Context, undo *Activity, person *models.Person, community *models.Community) (Decision, error) {
	inner, err := undo.Inner(CommunityVocabulary)
	if err != nil {
		return NoAnnounce, err
	}
	if inner.Type == Follow {
		return NoAnnounce, rt.follows.HandleUndoFollow(ctx, undo, inner, person, community)
	}
	if inner.ActorURI() != person.URI {
		return NoAnnounce, fmt.Errorf("%w: undo of %s performed by %s", ErrDomainMismatch, inner.ActorURI(), person.URI)
	}
	return rt.dispatch(ctx, inner, person, community, true)
}

func (rt *Router) checkBanned(ctx context.Context, person *models.Person, community *models.Community) error {
	banned, err := rt.bans.IsBanned(ctx, person, community.ID)
	if err != nil {
		return err
	}
	if banned {
		return fmt.Errorf("%w: %s in %s", ErrActorBanned, person.URI, community.URI)
	}
	return nil
}
