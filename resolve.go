package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/davecheney/agora/activitypub"
	"github.com/davecheney/agora/internal/webfinger"

	iap "github.com/davecheney/agora/internal/activitypub"
)

type ResolveCmd struct {
	Actor string `arg:"" help:"actor to resolve, either a URL or user@domain"`
}

func (r *ResolveCmd) Run(ctx *Context) error {
	db, err := openDB(ctx)
	if err != nil {
		return err
	}
	c := context.Background()
	uri, err := actorURI(c, r.Actor)
	if err != nil {
		return err
	}
	resolver := activitypub.NewResolver(db, new(iap.Client), ctx.Settings.Domain, ctx.Settings.ActorRefreshTTL, ctx.Logger)
	actor, err := resolver.Resolve(c, uri)
	if err != nil {
		return err
	}
	fmt.Printf("%s inbox=%s shared_inbox=%s local=%v\n", actor.ActorURI(), actor.InboxURL(), actor.SharedInboxURL(), actor.IsLocal())
	return nil
}

// actorURI returns s if it is a URL, otherwise it looks s up with webfinger.
func actorURI(ctx context.Context, s string) (string, error) {
	if strings.HasPrefix(s, "https://") || strings.HasPrefix(s, "http://") {
		return s, nil
	}
	acct, err := webfinger.Parse(s)
	if err != nil {
		return "", err
	}
	wf, err := acct.Fetch(ctx)
	if err != nil {
		return "", err
	}
	return wf.ActivityPub()
}
