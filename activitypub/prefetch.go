package activitypub

import (
	"context"

	"github.com/davecheney/agora/models"

	iap "github.com/davecheney/agora/internal/activitypub"
)

// prefetched holds the remote documents an activity refers to, fetched
// before the activity's transaction opens so that no network round trip
// happens while a database connection is held.
type prefetched struct {
	previews map[string]*LinkPreview
	objects  map[string]map[string]any
	failed   map[string]error
}

type prefetchKey struct{}

func prefetchedFrom(ctx context.Context) *prefetched {
	pf, _ := ctx.Value(prefetchKey{}).(*prefetched)
	return pf
}

// object returns the document prefetched for uri. ok is false if uri was
// never fetched.
func (pf *prefetched) object(uri string) (obj map[string]any, ok bool, err error) {
	if pf == nil {
		return nil, false, nil
	}
	if err, ok := pf.failed[uri]; ok {
		return nil, true, err
	}
	obj, ok = pf.objects[uri]
	return obj, ok, nil
}

// prefetch fetches, outside of any transaction, the link preview of an
// embedded post, the objects a vote or reply refers to, and the
// actors behind them. Failures are left for the transaction to report.
// ctx should carry the activity's fetch budget.
func (env *Env) prefetch(ctx context.Context, activity *Activity) context.Context {
	pf := &prefetched{
		previews: make(map[string]*LinkPreview),
		objects:  make(map[string]map[string]any),
		failed:   make(map[string]error),
	}
	ctx = context.WithValue(ctx, prefetchKey{}, pf)
	if _, err := models.NewActivities(env.DB).FindByURI(ctx, activity.ID); err == nil {
		// a redelivery, it is acknowledged without being applied.
		return ctx
	}
	pf.activity(ctx, env, env.pipeline(env.DB), activity)
	return ctx
}

func (pf *prefetched) activity(ctx context.Context, env *Env, p *pipeline, activity *Activity) {
	switch activity.Type {
	case Announce, Undo:
		inner, err := activity.Inner(announcedVocabulary)
		if err != nil {
			return
		}
		if activity.Type == Announce {
			if _, err := p.resolver.Resolve(ctx, inner.ActorURI()); err != nil {
				env.Logger.Debug("prefetch actor failed", "uri", inner.ActorURI(), "error", err)
			}
		}
		pf.activity(ctx, env, p, inner)
	case Create, Update:
		if obj := mapFromAny(activity.Object); obj != nil {
			pf.document(ctx, env, p, obj, false)
		}
	case Like, Dislike:
		pf.reference(ctx, env, p, activity.ObjectID())
	}
}

// document prefetches what translating obj will need. fetched is set when
// obj itself came from a fetch, its community then has to be resolved too.
func (pf *prefetched) document(ctx context.Context, env *Env, p *pipeline, obj map[string]any, fetched bool) {
	switch stringFromAny(obj["type"]) {
	case "Page":
		if fetched {
			if _, err := p.router.translator.postCommunity(ctx, obj, nil); err != nil {
				env.Logger.Debug("prefetch community failed", "id", obj["id"], "error", err)
			}
		}
		url := urlFromAny(obj["url"])
		if url == "" || env.Links == nil {
			return
		}
		if _, ok := pf.previews[url]; ok {
			return
		}
		preview, err := env.Links.Preview(ctx, url)
		if err != nil {
			env.Logger.Debug("link preview failed", "url", url, "error", err)
			return
		}
		pf.previews[url] = preview
	case "Note":
		if replyTo := idsFromAny(obj["inReplyTo"]); len(replyTo) > 0 {
			pf.reference(ctx, env, p, replyTo[len(replyTo)-1])
		}
	}
}

// reference fetches the post or comment at uri unless it is already stored.
func (pf *prefetched) reference(ctx context.Context, env *Env, p *pipeline, uri string) {
	if !validURI(uri) || hostOf(uri) == env.Config.Domain {
		return
	}
	if _, ok, _ := pf.object(uri); ok {
		return
	}
	if _, err := p.router.translator.find(ctx, uri); !models.IsNotFound(err) {
		return
	}
	if err := spendFetch(ctx); err != nil {
		pf.failed[uri] = err
		return
	}
	var obj map[string]any
	if err := iap.Fetch(ctx, env.Fetcher, uri, &obj); err != nil {
		pf.failed[uri] = err
		return
	}
	pf.objects[uri] = obj
	if creator := idFromAny(obj["attributedTo"]); validURI(creator) {
		if _, err := p.resolver.Resolve(ctx, creator); err != nil {
			env.Logger.Debug("prefetch actor failed", "uri", creator, "error", err)
		}
	}
	pf.document(ctx, env, p, obj, true)
}
