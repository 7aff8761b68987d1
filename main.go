package main

import (
	"log/slog"
	"os"

	"github.com/alecthomas/kong"
	"github.com/davecheney/agora/internal/config"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Context struct {
	Debug     bool
	Logger    *slog.Logger
	Settings  *config.Config
	Dialector gorm.Dialector

	gorm.Config
}

var cli struct {
	Debug  bool   `help:"Enable debug mode."`
	DSN    string `help:"data source name" default:"agora:agora@tcp(localhost:3306)/agora" env:"AGORA_DSN"`
	Config string `help:"path to the YAML configuration file" type:"path" env:"AGORA_CONFIG"`

	AutoMigrate     AutoMigrateCmd     `cmd:"" help:"Automatically migrate the database."`
	CreateCommunity CreateCommunityCmd `cmd:"" help:"Create a local community."`
	CreatePerson    CreatePersonCmd    `cmd:"" help:"Create a local person."`
	Resolve         ResolveCmd         `cmd:"" help:"Resolve a remote actor and store it."`
	Serve           ServeCmd           `cmd:"" help:"Serve a local web server."`
}

func main() {
	ctx := kong.Parse(&cli)

	level := slog.LevelInfo
	if cli.Debug {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(log)

	cfg, err := config.Load(cli.Config)
	ctx.FatalIfErrorf(err)

	gormLogLevel := logger.Warn
	if cli.Debug {
		gormLogLevel = logger.Info
	}
	err = ctx.Run(&Context{
		Debug:     cli.Debug,
		Logger:    log,
		Settings:  cfg,
		Dialector: newDialector(cli.DSN),
		Config: gorm.Config{
			Logger: logger.Default.LogMode(gormLogLevel),
		},
	})
	ctx.FatalIfErrorf(err)
}
