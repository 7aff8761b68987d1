package activitypub

import (
	"fmt"
	"net/http"

	"github.com/davecheney/agora/internal/to"
	"github.com/davecheney/agora/models"
	"github.com/go-chi/chi/v5"
)

// securityContext adds the publicKey vocabulary.
const securityContext = "https://w3id.org/security/v1"

// CommunityShow serves the Group document of a local community.
func CommunityShow(env *Env, w http.ResponseWriter, r *http.Request) error {
	community, err := models.NewCommunities(env.DB).FindLocal(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		return notFound("community", chi.URLParam(r, "name"), err)
	}
	doc := newActorDocument("Group", &community.Actor)
	doc.Name = community.Title
	doc.Summary = community.Description
	doc.Followers = community.Followers()
	doc.Sensitive = community.Nsfw
	return to.ActivityJSON(w, doc)
}

// PersonShow serves the Person document of a local person.
func PersonShow(env *Env, w http.ResponseWriter, r *http.Request) error {
	person, err := models.NewPersons(env.DB).FindLocal(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		return notFound("person", chi.URLParam(r, "name"), err)
	}
	doc := newActorDocument("Person", &person.Actor)
	doc.Name = person.DisplayName
	doc.Summary = person.Bio
	return to.ActivityJSON(w, doc)
}

// CommunityFollowers serves the size of a local community's followers collection.
// Members are not listed.
func CommunityFollowers(env *Env, w http.ResponseWriter, r *http.Request) error {
	community, err := models.NewCommunities(env.DB).FindLocal(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		return notFound("community", chi.URLParam(r, "name"), err)
	}
	n, err := models.NewFollowers(env.DB).Count(r.Context(), community.ID)
	if err != nil {
		return err
	}
	return to.ActivityJSON(w, map[string]any{
		"@context":   ContextURL,
		"id":         community.Followers(),
		"type":       "OrderedCollection",
		"totalItems": n,
	})
}

// ActorOutbox serves an empty outbox for a local community or person,
// activities are delivered to followers rather than polled.
func ActorOutbox(env *Env, w http.ResponseWriter, r *http.Request) error {
	return to.ActivityJSON(w, map[string]any{
		"@context":     ContextURL,
		"id":           fmt.Sprintf("https://%s%s", env.Config.Domain, r.URL.Path),
		"type":         "OrderedCollection",
		"totalItems":   0,
		"orderedItems": []any{},
	})
}

func newActorDocument(typ string, actor *models.Actor) *actorDocument {
	doc := &actorDocument{
		Context:           []any{ContextURL, securityContext},
		ID:                actor.URI,
		Type:              typ,
		PreferredUsername: actor.Name,
		Inbox:             actor.Inbox,
		Outbox:            actor.URI + "/outbox",
	}
	doc.Endpoints.SharedInbox = actor.SharedInbox
	doc.PublicKey.ID = actor.PublicKeyID()
	doc.PublicKey.Owner = actor.URI
	doc.PublicKey.PublicKeyPem = string(actor.PublicKey)
	return doc
}

func notFound(kind, name string, err error) error {
	if models.IsNotFound(err) {
		return statusError(fmt.Errorf("%w: %s %q", ErrNotFound, kind, name))
	}
	return err
}
