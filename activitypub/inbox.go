package activitypub

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/davecheney/agora/internal/httpx"
	"github.com/davecheney/agora/models"
	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"
)

// pipeline holds the inbox components, all bound to one database handle.
type pipeline struct {
	resolver  *Resolver
	verifier  *Verifier
	dedup     *Deduplicator
	router    *Router
	announcer *Announcer
	followers *models.Followers
	persons   *models.Persons
}

func (env *Env) pipeline(db *gorm.DB) *pipeline {
	cfg := env.Config
	resolver := NewResolver(db, env.Fetcher, cfg.Domain, cfg.ActorRefreshTTL, env.Logger)
	outbox := NewOutbox(db)
	activities := models.NewActivities(db)
	return &pipeline{
		resolver: resolver,
		verifier: &Verifier{resolver: resolver},
		dedup:    &Deduplicator{activities: activities, domain: resolver.domain},
		router: &Router{
			bans:    models.NewBans(db),
			follows: &FollowHandler{db: db, outbox: outbox},
			translator: &Translator{
				db:       db,
				resolver: resolver,
				fetcher:  env.Fetcher,
				links:    env.Links,
				filter:   env.Filter(),
				domain:   resolver.domain,
				logger:   env.Logger,
			},
		},
		announcer: &Announcer{activities: activities, outbox: outbox, logger: env.Logger},
		followers: models.NewFollowers(db),
		persons:   models.NewPersons(db),
	}
}

// CommunityInbox receives activities addressed to a local community.
func CommunityInbox(env *Env, w http.ResponseWriter, r *http.Request) error {
	ctx, span := tracer.Start(r.Context(), "CommunityInbox")
	defer span.End()

	community, err := models.NewCommunities(env.DB).FindLocal(ctx, chi.URLParam(r, "name"))
	if models.IsNotFound(err) {
		return statusError(fmt.Errorf("%w: community %q", ErrNotFound, chi.URLParam(r, "name")))
	}
	if err != nil {
		return err
	}
	body, err := env.readBody(w, r)
	if err != nil {
		return statusError(err)
	}
	activity, err := Decode(body, CommunityVocabulary)
	if err != nil {
		return env.reject(nil, err)
	}
	if err := env.receiveCommunity(ctx, r, body, activity, community); err != nil {
		return env.reject(activity, err)
	}
	w.WriteHeader(http.StatusOK)
	return nil
}

// PersonInbox receives activities addressed to a local person.
func PersonInbox(env *Env, w http.ResponseWriter, r *http.Request) error {
	ctx, span := tracer.Start(r.Context(), "PersonInbox")
	defer span.End()

	person, err := models.NewPersons(env.DB).FindLocal(ctx, chi.URLParam(r, "name"))
	if models.IsNotFound(err) {
		return statusError(fmt.Errorf("%w: person %q", ErrNotFound, chi.URLParam(r, "name")))
	}
	if err != nil {
		return err
	}
	body, err := env.readBody(w, r)
	if err != nil {
		return statusError(err)
	}
	activity, err := Decode(body, PersonVocabulary)
	if err != nil {
		return env.reject(nil, err)
	}
	if err := env.receivePerson(ctx, r, body, activity, person); err != nil {
		return env.reject(activity, err)
	}
	w.WriteHeader(http.StatusOK)
	return nil
}

// SharedInbox receives activities for any local actor. Activities for a
// local community take the community path, the rest take the person path.
func SharedInbox(env *Env, w http.ResponseWriter, r *http.Request) error {
	ctx, span := tracer.Start(r.Context(), "SharedInbox")
	defer span.End()

	body, err := env.readBody(w, r)
	if err != nil {
		return statusError(err)
	}
	activity, err := Decode(body, SharedVocabulary)
	if err != nil {
		return env.reject(nil, err)
	}
	switch activity.Type {
	case Accept, Reject, Announce:
		err = env.receivePerson(ctx, r, body, activity, nil)
	default:
		var community *models.Community
		community, err = models.NewCommunities(env.DB).FindLocalByURIs(ctx, activity.Recipients())
		switch {
		case models.IsNotFound(err):
			err = fmt.Errorf("%w: no local community among %v", ErrNotAddressedHere, activity.Recipients())
		case err == nil:
			err = env.receiveCommunity(ctx, r, body, activity, community)
		}
	}
	if err != nil {
		return env.reject(activity, err)
	}
	w.WriteHeader(http.StatusOK)
	return nil
}

// receiveCommunity authenticates activity and applies it to community.
// Everything after authentication runs in one transaction, an activity that
// fails is not recorded as seen and can be redelivered.
func (env *Env) receiveCommunity(ctx context.Context, r *http.Request, body []byte, activity *Activity, community *models.Community) error {
	p := env.pipeline(env.DB)
	sender, err := p.verifier.Verify(ctx, r, body, activity)
	if err != nil {
		return err
	}
	if err := CheckAddressed(activity, community.URI); err != nil {
		return err
	}
	if err := p.dedup.AssertNotLocal(activity); err != nil {
		return err
	}
	if !sameHost(activity.ID, sender.ActorURI()) {
		return fmt.Errorf("%w: %s is not from %s", ErrDomainMismatch, activity.ID, sender.ActorURI())
	}

	ctx = withFetchBudget(ctx, env.Config.MaxFetches)
	ctx = env.prefetch(ctx, activity)
	return env.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p := env.pipeline(tx)
		seen, err := p.dedup.CheckAndRecord(ctx, activity)
		if err != nil {
			return err
		}
		if seen == AlreadySeen {
			env.Logger.Debug("duplicate activity", "id", activity.ID)
			return nil
		}
		decision, err := p.router.Dispatch(ctx, activity, sender, community)
		if errors.Is(err, ErrActorBanned) {
			env.Logger.Info("ignoring activity from banned actor", "id", activity.ID, "actor", sender.ActorURI(), "community", community.URI)
			return nil
		}
		if err != nil {
			return err
		}
		return p.announcer.AnnounceIfNeeded(ctx, decision, activity, community)
	})
}

// receivePerson authenticates an activity sent by a community to a local
// person, or to the shared inbox when person is nil.
func (env *Env) receivePerson(ctx context.Context, r *http.Request, body []byte, activity *Activity, person *models.Person) error {
	p := env.pipeline(env.DB)
	sender, err := p.verifier.Verify(ctx, r, body, activity)
	if err != nil {
		return err
	}
	community, ok := sender.(*models.Community)
	if !ok {
		return fmt.Errorf("%w: %s from non community actor %s", ErrUnsupportedType, activity.Type, sender.ActorURI())
	}
	if person != nil && !activity.IsPublic() {
		if err := CheckAddressed(activity, person.URI); err != nil {
			return err
		}
	}
	if err := p.dedup.AssertNotLocal(activity); err != nil {
		return err
	}
	if !sameHost(activity.ID, community.URI) {
		return fmt.Errorf("%w: %s is not from %s", ErrDomainMismatch, activity.ID, community.URI)
	}

	ctx = withFetchBudget(ctx, env.Config.MaxFetches)
	ctx = env.prefetch(ctx, activity)
	return env.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p := env.pipeline(tx)
		seen, err := p.dedup.CheckAndRecord(ctx, activity)
		if err != nil {
			return err
		}
		if seen == AlreadySeen {
			env.Logger.Debug("duplicate activity", "id", activity.ID)
			return nil
		}
		switch activity.Type {
		case Accept, Reject:
			return p.followResponse(ctx, activity, community, person)
		default:
			err := p.announced(ctx, activity, community)
			if errors.Is(err, ErrActorBanned) {
				env.Logger.Info("ignoring announced activity from banned actor", "id", activity.ID, "community", community.URI)
				return nil
			}
			return err
		}
	})
}

// followResponse settles a pending follow of community by a local person.
func (p *pipeline) followResponse(ctx context.Context, response *Activity, community *models.Community, person *models.Person) error {
	follow, err := response.Inner([]Type{Follow})
	if err != nil {
		return err
	}
	if follow.ObjectID() != community.URI {
		return fmt.Errorf("%w: %s answered a follow of %s", ErrDomainMismatch, community.URI, follow.ObjectID())
	}
	follower, err := p.persons.FindByURI(ctx, follow.ActorURI())
	switch {
	case models.IsNotFound(err) || (err == nil && !follower.Local):
		return fmt.Errorf("%w: %s is not a local person", ErrNotAddressedHere, follow.ActorURI())
	case err != nil:
		return err
	case person != nil && follower.ID != person.ID:
		return fmt.Errorf("%w: follow by %s delivered to %s", ErrNotAddressedHere, follower.URI, person.URI)
	}
	if response.Type == Reject {
		return p.followers.Reject(ctx, community.ID, follower.ID)
	}
	_, err = p.followers.Accept(ctx, community.ID, follower.ID)
	return err
}

// announcedVocabulary is the set of activities a remote community may announce.
var announcedVocabulary = []Type{Undo, Create, Update, Like, Dislike, Delete, Remove}

// announced applies an activity relayed by a remote community. The relayed
// activity is not announced again, the community has done that.
func (p *pipeline) announced(ctx context.Context, announce *Activity, community *models.Community) error {
	inner, err := announce.Inner(announcedVocabulary)
	if err != nil {
		return err
	}
	if !sameHost(inner.ID, inner.ActorURI()) {
		return fmt.Errorf("%w: %s is not from %s", ErrDomainMismatch, inner.ID, inner.ActorURI())
	}
	if hostOf(inner.ID) == p.resolver.domain {
		// our own activity, relayed back to us.
		return nil
	}
	seen, err := p.dedup.CheckAndRecord(ctx, inner)
	if err != nil || seen == AlreadySeen {
		return err
	}
	sender, err := p.resolver.Resolve(ctx, inner.ActorURI())
	if err != nil {
		return err
	}
	_, err = p.router.Dispatch(ctx, inner, sender, community)
	return err
}

// readBody reads the request body, up to the configured limit.
func (env *Env) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, env.Config.MaxInboxBytes))
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return nil, fmt.Errorf("%w: limit is %d bytes", ErrTooLarge, tooLarge.Limit)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrMalformed, err)
	}
	return body, nil
}

// reject logs why activity was refused and returns err with its HTTP status.
func (env *Env) reject(activity *Activity, err error) error {
	err = statusError(err)
	if activity == nil {
		return err
	}
	attrs := []any{"id", activity.ID, "type", activity.Type, "actor", activity.ActorURI(), "error", err}
	if httpx.StatusOf(err) >= http.StatusInternalServerError {
		env.Logger.Error("activity failed", attrs...)
	} else {
		env.Logger.Info("activity rejected", attrs...)
	}
	return err
}
