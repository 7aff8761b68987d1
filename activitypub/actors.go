package activitypub

import (
	"context"
	"crypto"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/davecheney/agora/models"
	"gorm.io/gorm"

	ic "github.com/davecheney/agora/internal/crypto"
	iap "github.com/davecheney/agora/internal/activitypub"
)

// Actor is a person or community, local or remote.
type Actor interface {
	ActorURI() string
	PublicKeyID() string
	PubKey() (crypto.PublicKey, error)
	InboxURL() string
	SharedInboxURL() string
	DeliveryInbox() string
	IsLocal() bool
}

var (
	_ Actor = (*models.Person)(nil)
	_ Actor = (*models.Community)(nil)
)

// actorDocument is the wire form of a person or community.
type actorDocument struct {
	Context           any    `json:"'@context',omitempty"`
	ID                string `json:"id"`
	Type              string `json:"type"`
	PreferredUsername string `json:"preferredUsername"`
	Name              string `json:"name,omitempty"`
	Summary           string `json:"summary,omitempty"`
	Inbox             string `json:"inbox"`
	Outbox            string `json:"outbox,omitempty"`
	Followers         string `json:"followers,omitempty"`
	Sensitive         bool   `json:"sensitive,omitempty"`
	Endpoints         struct {
		SharedInbox string `json:"sharedInbox,omitempty"`
	} `json:"endpoints"`
	PublicKey struct {
		ID           string `json:"id"`
		Owner        string `json:"owner"`
		PublicKeyPem string `json:"publicKeyPem"`
	} `json:"publicKey"`
}

// Resolver maps actor identifiers to stored actors, fetching and caching
// remote actors on demand.
type Resolver struct {
	db      *gorm.DB
	fetcher iap.Fetcher
	domain  string
	ttl     time.Duration
	logger  *slog.Logger
}

// NewResolver returns a Resolver which stores actors in db.
func NewResolver(db *gorm.DB, fetcher iap.Fetcher, domain string, ttl time.Duration, logger *slog.Logger) *Resolver {
	return &Resolver{
		db:      db,
		fetcher: fetcher,
		domain:  strings.ToLower(domain),
		ttl:     ttl,
		logger:  logger,
	}
}

// Resolve returns the actor identified by uri.
func (r *Resolver) Resolve(ctx context.Context, uri string) (Actor, error) {
	ctx, span := tracer.Start(ctx, "Resolver.Resolve")
	defer span.End()

	actor, err := r.resolve(ctx, uri)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return actor, nil
}

// ResolvePerson returns the person identified by uri.
func (r *Resolver) ResolvePerson(ctx context.Context, uri string) (*models.Person, error) {
	actor, err := r.Resolve(ctx, uri)
	if err != nil {
		return nil, err
	}
	person, ok := actor.(*models.Person)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a person", ErrResolution, uri)
	}
	return person, nil
}

// ResolveCommunity returns the community identified by uri.
func (r *Resolver) ResolveCommunity(ctx context.Context, uri string) (*models.Community, error) {
	actor, err := r.Resolve(ctx, uri)
	if err != nil {
		return nil, err
	}
	community, ok := actor.(*models.Community)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a community", ErrResolution, uri)
	}
	return community, nil
}

func (r *Resolver) resolve(ctx context.Context, uri string) (Actor, error) {
	if !validURI(uri) {
		return nil, fmt.Errorf("%w: malformed actor id %q", ErrResolution, uri)
	}
	cached, err := r.lookup(ctx, uri)
	switch {
	case err == nil:
		if !stale(cached, r.ttl) {
			return cached, nil
		}
		fresh, err := r.fetch(ctx, uri)
		if err != nil {
			r.logger.Warn("actor refresh failed, using cached copy", "uri", uri, "error", err)
			return cached, nil
		}
		return fresh, nil
	case !models.IsNotFound(err):
		return nil, err
	}
	if hostOf(uri) == r.domain {
		return nil, fmt.Errorf("%w: no local actor %s", ErrResolution, uri)
	}
	return r.fetch(ctx, uri)
}

func (r *Resolver) lookup(ctx context.Context, uri string) (Actor, error) {
	person, err := models.NewPersons(r.db).FindByURI(ctx, uri)
	if err == nil {
		return person, nil
	}
	if !models.IsNotFound(err) {
		return nil, err
	}
	community, err := models.NewCommunities(r.db).FindByURI(ctx, uri)
	if err != nil {
		return nil, err
	}
	return community, nil
}

func stale(a Actor, ttl time.Duration) bool {
	switch a := a.(type) {
	case *models.Person:
		return a.Stale(ttl)
	case *models.Community:
		return a.Stale(ttl)
	default:
		return false
	}
}

// fetch retrieves the actor document for uri and stores it.
func (r *Resolver) fetch(ctx context.Context, uri string) (Actor, error) {
	var doc actorDocument
	if err := iap.Fetch(ctx, r.fetcher, uri, &doc); err != nil {
		return nil, fmt.Errorf("fetch actor %s: %w", uri, err)
	}
	if doc.ID != uri {
		return nil, fmt.Errorf("%w: fetched %s but document claims to be %s", ErrResolution, uri, doc.ID)
	}
	if _, err := ic.ParsePublicKey([]byte(doc.PublicKey.PublicKeyPem)); err != nil {
		return nil, fmt.Errorf("%w: %s: public key: %v", ErrResolution, uri, err)
	}
	if !validURI(doc.Inbox) {
		return nil, fmt.Errorf("%w: %s: invalid inbox %q", ErrResolution, uri, doc.Inbox)
	}
	base := models.Actor{
		URI:             uri,
		Name:            doc.PreferredUsername,
		Domain:          hostOf(uri),
		PublicKey:       []byte(doc.PublicKey.PublicKeyPem),
		Inbox:           doc.Inbox,
		SharedInbox:     doc.Endpoints.SharedInbox,
		LastRefreshedAt: time.Now(),
	}
	if base.Name == "" {
		base.Name = lastSegment(uri)
	}

	switch doc.Type {
	case "Person", "Service", "Application":
		person, err := models.NewPersons(r.db).Upsert(ctx, &models.Person{
			Actor:       base,
			DisplayName: doc.Name,
			Bio:         doc.Summary,
		})
		if err != nil {
			return nil, err
		}
		return person, nil
	case "Group", "Organization":
		title := doc.Name
		if title == "" {
			title = base.Name
		}
		community, err := models.NewCommunities(r.db).Upsert(ctx, &models.Community{
			Actor:        base,
			Title:        title,
			Description:  doc.Summary,
			FollowersURL: doc.Followers,
			Nsfw:         doc.Sensitive,
		})
		if err != nil {
			return nil, err
		}
		return community, nil
	default:
		return nil, fmt.Errorf("%w: %s has unsupported actor type %q", ErrResolution, uri, doc.Type)
	}
}
