package main

import (
	"github.com/davecheney/agora/models"
	"gorm.io/gorm"
)

type AutoMigrateCmd struct {
}

func (a *AutoMigrateCmd) Run(ctx *Context) error {
	db, err := openDB(ctx)
	if err != nil {
		return err
	}
	return db.AutoMigrate(models.AllTables()...)
}

// openDB opens and configures the database named by the global flags.
func openDB(ctx *Context) (*gorm.DB, error) {
	db, err := gorm.Open(ctx.Dialector, &ctx.Config)
	if err != nil {
		return nil, err
	}
	if err := configureDB(db); err != nil {
		return nil, err
	}
	return db, nil
}
