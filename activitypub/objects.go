package activitypub

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/davecheney/agora/internal/snowflake"
	"github.com/davecheney/agora/models"
	"gorm.io/gorm"

	iap "github.com/davecheney/agora/internal/activitypub"
)

// removed replaces text that matches the content filter.
const removed = "*removed*"

// DomainForm is the local form of a wire object. Exactly one field is set.
type DomainForm struct {
	Post    *models.Post
	Comment *models.Comment
}

// URI returns the id of the object.
func (f *DomainForm) URI() string {
	if f.Post != nil {
		return f.Post.URI
	}
	return f.Comment.URI
}

// Translator converts posts and comments between their wire and stored forms
// and applies content activities to them.
type Translator struct {
	db       *gorm.DB
	resolver *Resolver
	fetcher  iap.Fetcher
	links    LinkFetcher
	filter   *ContentFilter
	domain   string
	logger   *slog.Logger
}

// Apply performs a Create, Update, Like, Dislike, or Delete by person in
// community. When undo is set the effect is reversed instead.
func (t *Translator) Apply(ctx context.Context, activity *Activity, person *models.Person, community *models.Community, undo bool) error {
	switch activity.Type {
	case Create, Update:
		if undo {
			return fmt.Errorf("%w: undo of %s", ErrUnsupportedType, activity.Type)
		}
		return t.createOrUpdate(ctx, activity, person, community)
	case Like, Dislike:
		return t.vote(ctx, activity, person, community, undo)
	case Delete:
		return t.delete(ctx, activity, person, community, undo)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedType, activity.Type)
	}
}

func (t *Translator) createOrUpdate(ctx context.Context, activity *Activity, person *models.Person, community *models.Community) error {
	obj := mapFromAny(activity.Object)
	if obj == nil {
		return fmt.Errorf("%w: %s must embed its object", ErrMalformed, activity.Type)
	}
	if attributedTo := idFromAny(obj["attributedTo"]); attributedTo != person.URI {
		return fmt.Errorf("%w: object attributed to %q, sent by %s", ErrDomainMismatch, attributedTo, person.URI)
	}
	form, err := t.FromWire(ctx, obj, hostOf(person.URI), community)
	if err != nil {
		return err
	}
	_, err = t.save(ctx, form)
	return err
}

// FromWire converts obj, a Page or a Note, to its local form. The object's id
// must be under expectedDomain. If community is not nil the object must
// belong to it.
func (t *Translator) FromWire(ctx context.Context, obj map[string]any, expectedDomain string, community *models.Community) (*DomainForm, error) {
	ctx, span := tracer.Start(ctx, "Translator.FromWire")
	defer span.End()

	id := stringFromAny(obj["id"])
	if !validURI(id) {
		return nil, fmt.Errorf("%w: invalid object id %q", ErrMalformed, id)
	}
	if hostOf(id) != expectedDomain {
		return nil, fmt.Errorf("%w: object %s is not under %s", ErrDomainMismatch, id, expectedDomain)
	}
	creator, err := t.resolver.ResolvePerson(ctx, idFromAny(obj["attributedTo"]))
	if err != nil {
		return nil, err
	}
	switch typ := stringFromAny(obj["type"]); typ {
	case "Page":
		post, err := t.postFromWire(ctx, obj, creator, community)
		if err != nil {
			return nil, err
		}
		return &DomainForm{Post: post}, nil
	case "Note":
		comment, err := t.commentFromWire(ctx, obj, creator, community)
		if err != nil {
			return nil, err
		}
		return &DomainForm{Comment: comment}, nil
	default:
		return nil, fmt.Errorf("%w: object type %q", ErrUnsupportedType, typ)
	}
}

func (t *Translator) postFromWire(ctx context.Context, obj map[string]any, creator *models.Person, community *models.Community) (*models.Post, error) {
	target, err := t.postCommunity(ctx, obj, community)
	if err != nil {
		return nil, err
	}
	if err := t.checkBanned(ctx, creator, target); err != nil {
		return nil, err
	}

	name := stringFromAny(obj["name"])
	if name == "" {
		name = stringFromAny(obj["summary"])
	}
	if name == "" {
		return nil, fmt.Errorf("%w: post has no name", ErrMalformed)
	}
	if err := t.filter.Check(name); err != nil {
		return nil, err
	}
	published, updated := timestamps(obj)
	post := &models.Post{
		URI:         stringFromAny(obj["id"]),
		Name:        name,
		URL:         urlFromAny(obj["url"]),
		Body:        t.filter.Strip(sourceOrContent(obj)),
		CreatorID:   creator.ID,
		CommunityID: target.ID,
		Locked:      commentsDisabled(obj),
		Nsfw:        boolFromAny(obj["sensitive"]),
		Stickied:    boolFromAny(obj["stickied"]),
		Published:   published,
		Updated:     updated,
	}
	if image := mapFromAny(obj["image"]); image != nil {
		post.ThumbnailURL = urlFromAny(image["url"])
	}
	if post.URL != "" && t.links != nil {
		preview, err := t.preview(ctx, post.URL)
		if err != nil {
			t.logger.Debug("link preview failed", "url", post.URL, "error", err)
		} else {
			post.EmbedTitle = preview.Title
			post.EmbedDescription = preview.Description
			if post.ThumbnailURL == "" {
				post.ThumbnailURL = preview.Image
			}
		}
	}
	return post, nil
}

// preview returns the link preview for url. When the activity's documents
// were prefetched only the prefetched previews are used.
func (t *Translator) preview(ctx context.Context, url string) (*LinkPreview, error) {
	pf := prefetchedFrom(ctx)
	if pf == nil {
		return t.links.Preview(ctx, url)
	}
	if preview, ok := pf.previews[url]; ok {
		return preview, nil
	}
	return nil, fmt.Errorf("preview: no preview of %s", url)
}

// postCommunity finds the community a post is addressed to.
func (t *Translator) postCommunity(ctx context.Context, obj map[string]any, community *models.Community) (*models.Community, error) {
	recipients := append(idsFromAny(obj["to"]), idsFromAny(obj["cc"])...)
	if community != nil {
		for _, r := range recipients {
			if r == community.URI {
				return community, nil
			}
		}
		return nil, fmt.Errorf("%w: post is not addressed to %s", ErrNotAddressedHere, community.URI)
	}
	for _, r := range recipients {
		if r == Public || !validURI(r) {
			continue
		}
		if c, err := t.resolver.ResolveCommunity(ctx, r); err == nil {
			return c, nil
		}
	}
	return nil, fmt.Errorf("%w: post is not addressed to a community", ErrResolution)
}

func (t *Translator) commentFromWire(ctx context.Context, obj map[string]any, creator *models.Person, community *models.Community) (*models.Comment, error) {
	content := sourceOrContent(obj)
	if content == "" {
		return nil, fmt.Errorf("%w: comment has no content", ErrMalformed)
	}
	replyTo := idsFromAny(obj["inReplyTo"])
	if len(replyTo) == 0 {
		return nil, fmt.Errorf("%w: comment is not a reply", ErrMalformed)
	}
	// the last entry is the most specific, the parent comment if there is one.
	parent, err := t.lookupObject(ctx, replyTo[len(replyTo)-1])
	if err != nil {
		return nil, err
	}
	comment := &models.Comment{
		URI:       stringFromAny(obj["id"]),
		CreatorID: creator.ID,
		Content:   t.filter.Strip(content),
	}
	comment.Published, comment.Updated = timestamps(obj)
	post := parent.Post
	if parent.Comment != nil {
		comment.ParentID = &parent.Comment.ID
		if post, err = models.NewPosts(t.db).FindByID(ctx, parent.Comment.PostID); err != nil {
			return nil, err
		}
	}
	if community != nil && post.CommunityID != community.ID {
		return nil, fmt.Errorf("%w: comment belongs to another community", ErrNotAddressedHere)
	}
	if post.Locked {
		return nil, fmt.Errorf("%w: post %s is locked", ErrContentRejected, post.URI)
	}
	target := community
	if target == nil {
		if target, err = t.communityByID(ctx, post.CommunityID); err != nil {
			return nil, err
		}
	}
	if err := t.checkBanned(ctx, creator, target); err != nil {
		return nil, err
	}
	comment.PostID = post.ID
	return comment, nil
}

func (t *Translator) communityByID(ctx context.Context, id snowflake.ID) (*models.Community, error) {
	var c models.Community
	if err := t.db.WithContext(ctx).Where("id = ?", id).Take(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// save stores form. An existing object may only be replaced by its creator.
func (t *Translator) save(ctx context.Context, form *DomainForm) (*DomainForm, error) {
	if form.Post != nil {
		posts := models.NewPosts(t.db)
		existing, err := posts.FindByURI(ctx, form.Post.URI)
		switch {
		case err == nil && existing.CreatorID != form.Post.CreatorID:
			return nil, fmt.Errorf("%w: %s belongs to another creator", ErrDomainMismatch, existing.URI)
		case err != nil && !models.IsNotFound(err):
			return nil, err
		}
		post, err := posts.Upsert(ctx, form.Post)
		if err != nil {
			return nil, err
		}
		return &DomainForm{Post: post}, nil
	}
	comments := models.NewComments(t.db)
	existing, err := comments.FindByURI(ctx, form.Comment.URI)
	switch {
	case err == nil && existing.CreatorID != form.Comment.CreatorID:
		return nil, fmt.Errorf("%w: %s belongs to another creator", ErrDomainMismatch, existing.URI)
	case err != nil && !models.IsNotFound(err):
		return nil, err
	}
	comment, err := comments.Upsert(ctx, form.Comment)
	if err != nil {
		return nil, err
	}
	return &DomainForm{Comment: comment}, nil
}

// find returns the stored post or comment with uri.
func (t *Translator) find(ctx context.Context, uri string) (*DomainForm, error) {
	post, err := models.NewPosts(t.db).FindByURI(ctx, uri)
	if err == nil {
		return &DomainForm{Post: post}, nil
	}
	if !models.IsNotFound(err) {
		return nil, err
	}
	comment, err := models.NewComments(t.db).FindByURI(ctx, uri)
	if err != nil {
		return nil, err
	}
	return &DomainForm{Comment: comment}, nil
}

// lookupObject returns the stored post or comment with uri, fetching it from
// its origin if it is not known.
func (t *Translator) lookupObject(ctx context.Context, uri string) (*DomainForm, error) {
	form, err := t.find(ctx, uri)
	if err == nil || !models.IsNotFound(err) {
		return form, err
	}
	return t.fetchObject(ctx, uri)
}

func (t *Translator) fetchObject(ctx context.Context, uri string) (*DomainForm, error) {
	ctx, span := tracer.Start(ctx, "Translator.fetchObject")
	defer span.End()

	if !validURI(uri) || hostOf(uri) == t.domain {
		return nil, fmt.Errorf("%w: unknown object %q", ErrResolution, uri)
	}
	obj, ok, err := prefetchedFrom(ctx).object(uri)
	if err != nil {
		return nil, fmt.Errorf("fetch object %s: %w", uri, err)
	}
	if !ok {
		if err := spendFetch(ctx); err != nil {
			return nil, err
		}
		if err := iap.Fetch(ctx, t.fetcher, uri, &obj); err != nil {
			return nil, fmt.Errorf("fetch object %s: %w", uri, err)
		}
	}
	if id := stringFromAny(obj["id"]); id != uri {
		return nil, fmt.Errorf("%w: fetched %s, got %q", ErrResolution, uri, id)
	}
	form, err := t.FromWire(ctx, obj, hostOf(uri), nil)
	if err != nil {
		return nil, err
	}
	return t.save(ctx, form)
}

func (t *Translator) vote(ctx context.Context, activity *Activity, person *models.Person, community *models.Community, undo bool) error {
	score := int8(1)
	if activity.Type == Dislike {
		score = -1
	}
	form, err := t.lookupObject(ctx, activity.ObjectID())
	if err != nil {
		return err
	}
	if err := t.checkCommunity(ctx, form, community); err != nil {
		return err
	}
	likes := models.NewLikes(t.db)
	switch {
	case form.Post != nil && undo:
		return likes.UnvotePost(ctx, form.Post.ID, person.ID)
	case form.Post != nil:
		return likes.VotePost(ctx, form.Post.ID, person.ID, score)
	case undo:
		return likes.UnvoteComment(ctx, form.Comment.ID, person.ID)
	default:
		return likes.VoteComment(ctx, form.Comment.ID, person.ID, score)
	}
}

// delete marks the object deleted, or restores it when undo is set.
// Deleting an object that was never seen is not an error.
func (t *Translator) delete(ctx context.Context, activity *Activity, person *models.Person, community *models.Community, undo bool) error {
	form, err := t.find(ctx, activity.ObjectID())
	if models.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := t.checkCommunity(ctx, form, community); err != nil {
		return err
	}
	if form.Post != nil {
		if form.Post.CreatorID != person.ID {
			return fmt.Errorf("%w: %s is not the creator of %s", ErrDomainMismatch, person.URI, form.Post.URI)
		}
		return models.NewPosts(t.db).SetDeleted(ctx, form.Post.ID, !undo)
	}
	if form.Comment.CreatorID != person.ID {
		return fmt.Errorf("%w: %s is not the creator of %s", ErrDomainMismatch, person.URI, form.Comment.URI)
	}
	return models.NewComments(t.db).SetDeleted(ctx, form.Comment.ID, !undo)
}

// checkCommunity returns ErrNotAddressedHere if form does not belong to community.
func (t *Translator) checkCommunity(ctx context.Context, form *DomainForm, community *models.Community) error {
	post := form.Post
	if post == nil {
		var err error
		if post, err = models.NewPosts(t.db).FindByID(ctx, form.Comment.PostID); err != nil {
			return err
		}
	}
	if post.CommunityID != community.ID {
		return fmt.Errorf("%w: %s is not in %s", ErrNotAddressedHere, form.URI(), community.URI)
	}
	return nil
}

func (t *Translator) checkBanned(ctx context.Context, person *models.Person, community *models.Community) error {
	banned, err := models.NewBans(t.db).IsBanned(ctx, person, community.ID)
	if err != nil {
		return err
	}
	if banned {
		return fmt.Errorf("%w: %s in %s", ErrActorBanned, person.URI, community.URI)
	}
	return nil
}

// sourceOrContent prefers the markdown source over the rendered content.
func sourceOrContent(obj map[string]any) string {
	if source := mapFromAny(obj["source"]); source != nil {
		if s := stringFromAny(source["content"]); s != "" {
			return s
		}
	}
	return stringFromAny(obj["content"])
}

// urlFromAny returns v if it is a string, or its href if it is a Link.
func urlFromAny(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case map[string]any:
		return stringFromAny(v["href"])
	case []any:
		if len(v) > 0 {
			return urlFromAny(v[0])
		}
	}
	return ""
}

// commentsDisabled reports whether obj explicitly disables comments.
func commentsDisabled(obj map[string]any) bool {
	enabled, ok := obj["commentsEnabled"].(bool)
	return ok && !enabled
}

func timestamps(obj map[string]any) (time.Time, *time.Time) {
	published := timeFromAnyOrZero(obj["published"])
	if published.IsZero() {
		published = time.Now()
	}
	var updated *time.Time
	if u := timeFromAnyOrZero(obj["updated"]); !u.IsZero() {
		updated = &u
	}
	return published, updated
}

type fetchBudgetKey struct{}

// withFetchBudget limits the number of objects fetched on demand while
// handling one activity.
func withFetchBudget(ctx context.Context, n int) context.Context {
	budget := new(atomic.Int32)
	budget.Store(int32(n))
	return context.WithValue(ctx, fetchBudgetKey{}, budget)
}

func spendFetch(ctx context.Context) error {
	budget, ok := ctx.Value(fetchBudgetKey{}).(*atomic.Int32)
	if !ok {
		return nil
	}
	if budget.Add(-1) < 0 {
		return fmt.Errorf("%w: fetch limit reached", ErrResolution)
	}
	return nil
}
