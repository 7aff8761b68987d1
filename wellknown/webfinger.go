package wellknown

import (
	"errors"
	"net/http"
	"strings"

	"github.com/davecheney/agora/activitypub"
	"github.com/davecheney/agora/internal/httpx"
	"github.com/davecheney/agora/internal/to"
	"github.com/davecheney/agora/internal/webfinger"
	"github.com/davecheney/agora/models"
)

// WebfingerShow maps acct:name@domain to the local community or person of
// that name. Communities take precedence.
func WebfingerShow(env *activitypub.Env, w http.ResponseWriter, r *http.Request) error {
	var params struct {
		Resource string `schema:"resource"`
	}
	if err := httpx.Params(r, &params); err != nil {
		return err
	}
	acct, err := webfinger.Parse(params.Resource)
	if err != nil {
		return httpx.Error(http.StatusBadRequest, err)
	}
	if !strings.EqualFold(acct.Host, env.Config.Domain) {
		return httpx.Error(http.StatusNotFound, errors.New("unknown domain: "+acct.Host))
	}

	ctx := r.Context()
	var self string
	community, err := models.NewCommunities(env.DB).FindLocal(ctx, acct.User)
	switch {
	case err == nil:
		self = community.URI
	case models.IsNotFound(err):
		person, err := models.NewPersons(env.DB).FindLocal(ctx, acct.User)
		if models.IsNotFound(err) {
			return httpx.Error(http.StatusNotFound, errors.New("unknown actor: "+acct.String()))
		}
		if err != nil {
			return err
		}
		self = person.URI
	default:
		return err
	}

	w.Header().Set("cache-control", "max-age=3600, public")
	return to.JSON(w, webfinger.Webfinger{
		Subject: acct.String(),
		Aliases: []string{self},
		Links: []webfinger.Link{{
			Rel:  "self",
			Type: "application/activity+json",
			Href: self,
		}},
	})
}
