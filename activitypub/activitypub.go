// Package activitypub implements the inbound half of ActivityPub federation
// for communities and persons: signature verification, replay protection,
// activity dispatch, the follow handshake, and announce fan-out.
package activitypub

import (
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/davecheney/agora/internal/config"
	"go.opentelemetry.io/otel"
	"gorm.io/gorm"

	iap "github.com/davecheney/agora/internal/activitypub"
)

const (
	// Public is the special collection addressing every actor.
	Public = "https://www.w3.org/ns/activitystreams#Public"

	// ContextURL is the JSON-LD context of outbound documents.
	ContextURL = "https://www.w3.org/ns/activitystreams"
)

var tracer = otel.Tracer("activitypub")

// Env holds the dependencies shared by the inbox handlers.
type Env struct {
	DB     *gorm.DB
	Logger *slog.Logger
	Config *config.Config

	// Fetcher retrieves remote documents.
	Fetcher iap.Fetcher

	// Links resolves link previews for posts, nil disables them.
	Links LinkFetcher

	filter *ContentFilter
}

// NewEnv returns an Env for the local server described by cfg.
func NewEnv(db *gorm.DB, logger *slog.Logger, cfg *config.Config, fetcher iap.Fetcher) (*Env, error) {
	slurs, err := cfg.Slurs()
	if err != nil {
		return nil, err
	}
	env := &Env{
		DB:      db,
		Logger:  logger,
		Config:  cfg,
		Fetcher: fetcher,
		filter:  NewContentFilter(slurs),
	}
	if cfg.LinkPreview.Enabled {
		env.Links = &HTMLPreviewer{Timeout: cfg.LinkPreview.Timeout}
	}
	return env, nil
}

// Filter returns the content filter applied to incoming text.
func (env *Env) Filter() *ContentFilter {
	if env.filter == nil {
		return NewContentFilter(nil)
	}
	return env.filter
}

func boolFromAny(v any) bool {
	b, _ := v.(bool)
	return b
}

func stringFromAny(v any) string {
	s, _ := v.(string)
	return s
}

func mapFromAny(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func anyToSlice(v any) []any {
	switch v := v.(type) {
	case []any:
		return v
	case nil:
		return nil
	default:
		return []any{v}
	}
}

// idFromAny returns v if it is a string, or v's id if it is an object.
func idFromAny(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case map[string]any:
		return stringFromAny(v["id"])
	default:
		return ""
	}
}

// idsFromAny returns the ids of a single or multi valued property.
func idsFromAny(v any) []string {
	var ids []string
	for _, item := range anyToSlice(v) {
		if id := idFromAny(item); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

func timeFromAnyOrZero(v any) time.Time {
	switch v := v.(type) {
	case string:
		t, _ := time.Parse(time.RFC3339, v)
		return t
	case time.Time:
		return v
	default:
		return time.Time{}
	}
}

// hostOf returns the lower cased host, including any port, of uri.
func hostOf(uri string) string {
	u, err := url.Parse(uri)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Host)
}

func sameHost(a, b string) bool {
	h := hostOf(a)
	return h != "" && h == hostOf(b)
}

// validURI reports whether uri is an absolute http or https URL.
func validURI(uri string) bool {
	u, err := url.Parse(uri)
	if err != nil {
		return false
	}
	return (u.Scheme == "https" || u.Scheme == "http") && u.Host != ""
}

var nonWord = regexp.MustCompile(`[^\w-]+`)

// lastSegment returns the final path element of uri, used when a remote
// actor omits preferredUsername.
func lastSegment(uri string) string {
	u, err := url.Parse(uri)
	if err != nil {
		return ""
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	return nonWord.ReplaceAllString(parts[len(parts)-1], "")
}
