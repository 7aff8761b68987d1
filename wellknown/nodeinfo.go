package wellknown

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/davecheney/agora/activitypub"
	"github.com/davecheney/agora/internal/httpx"
	"github.com/davecheney/agora/internal/to"
	"github.com/davecheney/agora/models"
	"github.com/go-chi/chi/v5"
)

func NodeInfoIndex(env *activitypub.Env, w http.ResponseWriter, r *http.Request) error {
	w.Header().Set("cache-control", "max-age=259200, public")
	return to.JSON(w, map[string]any{
		"links": []any{
			map[string]any{
				"rel":  "http://nodeinfo.diaspora.software/ns/schema/2.0",
				"href": fmt.Sprintf("https://%s/nodeinfo/2.0", env.Config.Domain),
			},
			map[string]any{
				"rel":  "http://nodeinfo.diaspora.software/ns/schema/2.1",
				"href": fmt.Sprintf("https://%s/nodeinfo/2.1", env.Config.Domain),
			},
		},
	})
}

func NodeInfoShow(env *activitypub.Env, w http.ResponseWriter, r *http.Request) error {
	u, err := usage(env, r)
	if err != nil {
		return err
	}
	software := map[string]any{
		"name":    "agora",
		"version": "0.0.0-devel",
	}
	switch version := chi.URLParam(r, "version"); version {
	case "2.0":
	case "2.1":
		software["repository"] = "https://github.com/davecheney/agora"
	default:
		return httpx.Error(http.StatusNotFound, errors.New("unsupported version: "+version))
	}
	w.Header().Set("cache-control", "max-age=259200, public")
	return to.JSON(w, map[string]any{
		"version":           chi.URLParam(r, "version"),
		"software":          software,
		"protocols":         []any{"activitypub"},
		"services":          map[string]any{"inbound": []any{}, "outbound": []any{}},
		"usage":             u,
		"openRegistrations": false,
		"metadata":          map[string]any{},
	})
}

// usage counts the local persons, posts and comments.
func usage(env *activitypub.Env, r *http.Request) (map[string]any, error) {
	db := env.DB.WithContext(r.Context())
	var users, posts, comments int64
	if err := db.Model(&models.Person{}).Where("local = ?", true).Count(&users).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.Post{}).Where("local = ?", true).Count(&posts).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.Comment{}).Where("local = ?", true).Count(&comments).Error; err != nil {
		return nil, err
	}
	return map[string]any{
		"users":         map[string]any{"total": users},
		"localPosts":    posts,
		"localComments": comments,
	}, nil
}
