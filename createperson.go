package main

import (
	"context"

	"github.com/davecheney/agora/models"
)

type CreatePersonCmd struct {
	Name        string `arg:"" help:"name of the person, as it appears in their URL"`
	DisplayName string `help:"display name, defaults to the name"`
	Bio         string `help:"short biography"`
}

func (c *CreatePersonCmd) Run(ctx *Context) error {
	db, err := openDB(ctx)
	if err != nil {
		return err
	}
	displayName := c.DisplayName
	if displayName == "" {
		displayName = c.Name
	}
	if err := checkNames(ctx.Settings, c.Name, displayName); err != nil {
		return err
	}
	actor, err := newLocalActor(ctx.Settings, "u", c.Name)
	if err != nil {
		return err
	}
	person := &models.Person{
		Actor:       *actor,
		DisplayName: displayName,
		Bio:         c.Bio,
	}
	if err := models.NewPersons(db).Create(context.Background(), person); err != nil {
		return err
	}
	ctx.Logger.Info("created person", "uri", person.URI)
	return nil
}
