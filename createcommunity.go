package main

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/davecheney/agora/activitypub"
	"github.com/davecheney/agora/internal/config"
	"github.com/davecheney/agora/internal/crypto"
	"github.com/davecheney/agora/models"
)

type CreateCommunityCmd struct {
	Name        string `arg:"" help:"name of the community, as it appears in its URL"`
	Title       string `help:"display title, defaults to the name"`
	Description string `help:"description of the community"`
	Nsfw        bool   `help:"mark the community as not safe for work"`
}

func (c *CreateCommunityCmd) Run(ctx *Context) error {
	db, err := openDB(ctx)
	if err != nil {
		return err
	}
	title := c.Title
	if title == "" {
		title = c.Name
	}
	if err := checkNames(ctx.Settings, c.Name, title); err != nil {
		return err
	}
	actor, err := newLocalActor(ctx.Settings, "c", c.Name)
	if err != nil {
		return err
	}
	community := &models.Community{
		Actor:        *actor,
		Title:        title,
		Description:  c.Description,
		FollowersURL: actor.URI + "/followers",
		Nsfw:         c.Nsfw,
	}
	if err := models.NewCommunities(db).Create(context.Background(), community); err != nil {
		return err
	}
	ctx.Logger.Info("created community", "uri", community.URI)
	return nil
}

var validName = regexp.MustCompile(`^[a-z0-9_]{3,64}$`)

// checkNames rejects malformed names and names caught by the content filter.
// Local names are checked eagerly, remote ones when they arrive.
func checkNames(cfg *config.Config, name string, titles ...string) error {
	if cfg.Domain == "" {
		return errors.New("domain is not configured")
	}
	if !validName.MatchString(name) {
		return fmt.Errorf("invalid name %q: must match %s", name, validName)
	}
	slurs, err := cfg.Slurs()
	if err != nil {
		return err
	}
	filter := activitypub.NewContentFilter(slurs)
	for _, s := range append([]string{name}, titles...) {
		if err := filter.Check(s); err != nil {
			return err
		}
	}
	return nil
}

// newLocalActor mints the identity of a local actor under /kind/name.
func newLocalActor(cfg *config.Config, kind, name string) (*models.Actor, error) {
	keypair, err := crypto.GenerateRSAKeypair()
	if err != nil {
		return nil, err
	}
	uri := fmt.Sprintf("https://%s/%s/%s", cfg.Domain, kind, name)
	return &models.Actor{
		URI:         uri,
		Name:        name,
		Domain:      cfg.Domain,
		Local:       true,
		PublicKey:   keypair.PublicKey,
		PrivateKey:  keypair.PrivateKey,
		Inbox:       uri + "/inbox",
		SharedInbox: fmt.Sprintf("https://%s/inbox", cfg.Domain),
	}, nil
}

