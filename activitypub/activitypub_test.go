package activitypub

import (
	"bytes"
	"context"
	"crypto/rsa"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/davecheney/agora/internal/config"
	"github.com/davecheney/agora/internal/crypto"
	"github.com/davecheney/agora/internal/httpsig"
	"github.com/davecheney/agora/internal/httpx"
	"github.com/davecheney/agora/models"
	"github.com/go-chi/chi/v5"
	"github.com/go-json-experiment/json"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	iap "github.com/davecheney/agora/internal/activitypub"
)

const localDomain = "a.example"

// remote is a federated server serving static actor and object documents.
type remote struct {
	*httptest.Server

	mu   sync.Mutex
	docs map[string]any
	// hook, if set, is called before each request is served.
	hook func(*http.Request)
}

func newRemote(t *testing.T) *remote {
	r := &remote{docs: make(map[string]any)}
	r.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		r.mu.Lock()
		doc, ok := r.docs[req.URL.Path]
		hook := r.hook
		r.mu.Unlock()
		if hook != nil {
			hook(req)
		}
		if !ok {
			http.NotFound(w, req)
			return
		}
		w.Header().Set("Content-Type", "application/activity+json")
		json.MarshalFull(w, doc)
	}))
	t.Cleanup(r.Close)
	return r
}

func (r *remote) onRequest(fn func(*http.Request)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hook = fn
}

func (r *remote) serve(path string, doc any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs[path] = doc
}

// remoteActor is a person or community hosted by a remote.
type remoteActor struct {
	URI    string
	key    *rsa.PrivateKey
	remote *remote
}

// actor publishes a new actor of type typ at /u/name, or /c/name for groups.
func (r *remote) actor(t *testing.T, typ, name string) *remoteActor {
	t.Helper()
	kp, err := crypto.GenerateRSAKeypair()
	require.NoError(t, err)
	_, key, err := crypto.ParseRSAPrivateKey(kp.PrivateKey)
	require.NoError(t, err)

	path := "/u/" + name
	if typ == "Group" {
		path = "/c/" + name
	}
	uri := r.URL + path
	r.serve(path, map[string]any{
		"@context":          []any{ContextURL, securityContext},
		"id":                uri,
		"type":              typ,
		"preferredUsername": name,
		"inbox":             uri + "/inbox",
		"followers":         uri + "/followers",
		"endpoints":         map[string]any{"sharedInbox": r.URL + "/inbox"},
		"publicKey": map[string]any{
			"id":           uri + "#main-key",
			"owner":        uri,
			"publicKeyPem": string(kp.PublicKey),
		},
	})
	return &remoteActor{URI: uri, key: key, remote: r}
}

// id mints an activity or object id on the actor's server.
func (a *remoteActor) id(kind, name string) string {
	return a.remote.URL + "/" + kind + "/" + name
}

func (a *remoteActor) follow(name string, community *models.Community) map[string]any {
	return map[string]any{
		"@context": ContextURL,
		"id":       a.id("activities/follow", name),
		"type":     "Follow",
		"actor":    a.URI,
		"to":       []any{community.URI},
		"object":   community.URI,
	}
}

func (a *remoteActor) undo(name string, inner map[string]any, community *models.Community) map[string]any {
	return map[string]any{
		"@context": ContextURL,
		"id":       a.id("activities/undo", name),
		"type":     "Undo",
		"actor":    a.URI,
		"to":       []any{community.URI},
		"object":   inner,
	}
}

func (a *remoteActor) page(name, title, content string, community *models.Community) map[string]any {
	return map[string]any{
		"id":           a.id("post", name),
		"type":         "Page",
		"attributedTo": a.URI,
		"name":         title,
		"content":      content,
		"to":           []any{community.URI, Public},
		"published":    time.Now().UTC().Format(time.RFC3339),
	}
}

func (a *remoteActor) note(name, content string, inReplyTo ...any) map[string]any {
	return map[string]any{
		"id":           a.id("comment", name),
		"type":         "Note",
		"attributedTo": a.URI,
		"content":      content,
		"to":           []any{Public},
		"inReplyTo":    inReplyTo,
		"published":    time.Now().UTC().Format(time.RFC3339),
	}
}

// activity wraps object in an activity of type typ addressed publicly to community.
func (a *remoteActor) activity(typ Type, name string, object any, community *models.Community) map[string]any {
	return map[string]any{
		"@context": ContextURL,
		"id":       a.id("activities/"+strings.ToLower(string(typ)), name),
		"type":     typ,
		"actor":    a.URI,
		"to":       []any{community.URI, Public},
		"cc":       []any{community.Followers()},
		"object":   object,
	}
}

type fixture struct {
	t   *testing.T
	db  *gorm.DB
	env *Env
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := setupTestDB(t)
	cfg := config.Default()
	cfg.Domain = localDomain
	cfg.SlurFilter = `(?i)\bfrobnicate\b`
	cfg.LinkPreview.Enabled = false
	env, err := NewEnv(db, slog.New(slog.NewTextHandler(io.Discard, nil)), cfg, new(iap.Client))
	require.NoError(t, err)
	return &fixture{t: t, db: db, env: env}
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	require := require.New(t)
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.NewReplacer("/", "_", " ", "_").Replace(t.Name()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(err)

	sqlDB, err := db.DB()
	require.NoError(err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(db.AutoMigrate(models.AllTables()...))
	require.NoError(db.Exec("PRAGMA foreign_keys = ON").Error)
	return db
}

func (f *fixture) localActor(kind, name string) models.Actor {
	kp, err := crypto.GenerateRSAKeypair()
	require.NoError(f.t, err)
	uri := fmt.Sprintf("https://%s/%s/%s", localDomain, kind, name)
	return models.Actor{
		URI:         uri,
		Name:        name,
		Domain:      localDomain,
		Local:       true,
		PublicKey:   kp.PublicKey,
		PrivateKey:  kp.PrivateKey,
		Inbox:       uri + "/inbox",
		SharedInbox: "https://" + localDomain + "/inbox",
	}
}

func (f *fixture) localCommunity(name string) *models.Community {
	f.t.Helper()
	actor := f.localActor("c", name)
	c := &models.Community{
		Actor:        actor,
		Title:        strings.ToUpper(name),
		FollowersURL: actor.URI + "/followers",
	}
	require.NoError(f.t, models.NewCommunities(f.db).Create(context.Background(), c))
	return c
}

func (f *fixture) localPerson(name string) *models.Person {
	f.t.Helper()
	p := &models.Person{Actor: f.localActor("u", name), DisplayName: name}
	require.NoError(f.t, models.NewPersons(f.db).Create(context.Background(), p))
	return p
}

type inboxHandler func(*Env, http.ResponseWriter, *http.Request) error

// deliver posts activity to the inbox at path, signed by from.
// name is the {name} route parameter, if any.
func (f *fixture) deliver(h inboxHandler, path, name string, from *remoteActor, activity any) *httptest.ResponseRecorder {
	f.t.Helper()
	body, err := json.Marshal(activity)
	require.NoError(f.t, err)
	return f.deliverSigned(h, path, name, from.URI+"#main-key", from.key, body)
}

func (f *fixture) deliverSigned(h inboxHandler, path, name, keyID string, key *rsa.PrivateKey, body []byte) *httptest.ResponseRecorder {
	f.t.Helper()
	return f.do(h, f.newRequest(path, name, keyID, key, body))
}

// newRequest returns a signed POST of body to path.
func (f *fixture) newRequest(path, name, keyID string, key *rsa.PrivateKey, body []byte) *http.Request {
	f.t.Helper()
	req := httptest.NewRequest(http.MethodPost, "https://"+localDomain+path, bytes.NewReader(body))
	req.Header.Set("Content-Type", iap.ContentType)
	require.NoError(f.t, httpsig.Sign(req, keyID, key, body))
	if name != "" {
		rctx := chi.NewRouteContext()
		rctx.URLParams.Add("name", name)
		req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	}
	return req
}

// do serves req with h. It is safe to call from any goroutine.
func (f *fixture) do(h inboxHandler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	httpx.HandlerFunc(func(*http.Request) *Env { return f.env }, h)(w, req)
	return w
}

// toCommunity delivers activity to community's inbox.
func (f *fixture) toCommunity(community *models.Community, from *remoteActor, activity any) *httptest.ResponseRecorder {
	f.t.Helper()
	return f.deliver(CommunityInbox, "/c/"+community.Name+"/inbox", community.Name, from, activity)
}

func (f *fixture) count(model any, query string, args ...any) int64 {
	f.t.Helper()
	var n int64
	tx := f.db.Model(model)
	if query != "" {
		tx = tx.Where(query, args...)
	}
	require.NoError(f.t, tx.Count(&n).Error)
	return n
}
