package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/davecheney/agora/activitypub"
	"github.com/davecheney/agora/internal/group"
	"github.com/davecheney/agora/internal/httpx"
	"github.com/davecheney/agora/wellknown"
	"github.com/davecheney/agora/workers"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"gorm.io/plugin/opentelemetry/tracing"

	iap "github.com/davecheney/agora/internal/activitypub"
)

type ServeCmd struct {
	Addr string `help:"address to listen" default:"127.0.0.1:9999"`
}

func (s *ServeCmd) Run(ctx *Context) error {
	cfg := ctx.Settings
	if cfg.Domain == "" {
		return errors.New("domain is not configured")
	}
	db, err := openDB(ctx)
	if err != nil {
		return err
	}
	if err := db.Use(tracing.NewPlugin(tracing.WithDBName(db.Dialector.Name()))); err != nil {
		return err
	}

	var fetcher iap.Fetcher = new(iap.Client)
	if len(cfg.Memcache.Servers) > 0 {
		fetcher = iap.NewCachingFetcher(fetcher, memcache.New(cfg.Memcache.Servers...), cfg.Memcache.TTL)
	}
	env, err := activitypub.NewEnv(db, ctx.Logger, cfg, fetcher)
	if err != nil {
		return err
	}
	getEnv := func(r *http.Request) *activitypub.Env {
		return env
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Post("/inbox", httpx.HandlerFunc(getEnv, activitypub.SharedInbox))
	r.Route("/c/{name}", func(r chi.Router) {
		r.Get("/", httpx.HandlerFunc(getEnv, activitypub.CommunityShow))
		r.Post("/inbox", httpx.HandlerFunc(getEnv, activitypub.CommunityInbox))
		r.Get("/outbox", httpx.HandlerFunc(getEnv, activitypub.ActorOutbox))
		r.Get("/followers", httpx.HandlerFunc(getEnv, activitypub.CommunityFollowers))
	})
	r.Route("/u/{name}", func(r chi.Router) {
		r.Get("/", httpx.HandlerFunc(getEnv, activitypub.PersonShow))
		r.Post("/inbox", httpx.HandlerFunc(getEnv, activitypub.PersonInbox))
		r.Get("/outbox", httpx.HandlerFunc(getEnv, activitypub.ActorOutbox))
	})
	r.Route("/.well-known", func(r chi.Router) {
		r.Get("/webfinger", httpx.HandlerFunc(getEnv, wellknown.WebfingerShow))
		r.Get("/host-meta", httpx.HandlerFunc(getEnv, wellknown.HostMeta))
		r.Get("/nodeinfo", httpx.HandlerFunc(getEnv, wellknown.NodeInfoIndex))
	})
	r.Get("/nodeinfo/{version}", httpx.HandlerFunc(getEnv, wellknown.NodeInfoShow))
	r.Get("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		io.WriteString(w, "User-agent: *\nDisallow: /")
	})

	if ctx.Debug {
		walkFunc := func(method string, route string, handler http.Handler, middlewares ...func(http.Handler) http.Handler) error {
			route = strings.Replace(route, "/*/", "/", -1)
			fmt.Printf("%s %s\n", method, route)
			return nil
		}
		if err := chi.Walk(r, walkFunc); err != nil {
			ctx.Logger.Warn("walk routes", "error", err)
		}
	}

	svr := &http.Server{
		Addr:         s.Addr,
		Handler:      r,
		WriteTimeout: 15 * time.Second,
		ReadTimeout:  15 * time.Second,
	}

	signalCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	g := group.New(signalCtx)
	g.Add(func(ctx context.Context) error {
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			svr.Shutdown(shutdownCtx)
		}()
		env.Logger.Info("http server listening", "addr", svr.Addr, "domain", cfg.Domain)
		if err := svr.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Add(workers.NewDeliveryProcessor(db, cfg, ctx.Logger))
	return g.Wait()
}
