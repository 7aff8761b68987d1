// Package activitypub provides an HTTP client for fetching and delivering
// ActivityPub documents.
package activitypub

import (
	"bytes"
	"context"
	"crypto"
	"crypto/rsa"
	"fmt"
	"net/http"

	"github.com/carlmjohnson/requests"
	"github.com/davecheney/agora/internal/httpsig"
	"github.com/go-json-experiment/json"
)

// ContentType is the media type used for outbound activities.
const ContentType = `application/ld+json; profile="https://www.w3.org/ns/activitystreams"`

// Fetcher retrieves the raw document at uri.
type Fetcher interface {
	FetchBytes(ctx context.Context, uri string) ([]byte, error)
}

// Signer represents an object that can sign HTTP requests.
type Signer interface {
	PublicKeyID() string
	PrivKey() (*rsa.PrivateKey, error)
}

// Client is an ActivityPub client which can be used to fetch remote
// ActivityPub resources and deliver activities to remote inboxes.
// The zero value makes unsigned requests.
type Client struct {
	keyID      string
	privateKey crypto.PrivateKey

	// Transport is the underlying round tripper, http.DefaultTransport if nil.
	Transport http.RoundTripper
}

// NewClient returns a new ActivityPub client which signs requests as signAs.
func NewClient(signAs Signer) (*Client, error) {
	privateKey, err := signAs.PrivKey()
	if err != nil {
		return nil, err
	}
	return &Client{
		keyID:      signAs.PublicKeyID(),
		privateKey: privateKey,
	}, nil
}

func (c *Client) transport(body []byte) requests.RoundTripFunc {
	return func(req *http.Request) (*http.Response, error) {
		if c.privateKey != nil {
			if err := httpsig.Sign(req, c.keyID, c.privateKey, body); err != nil {
				return nil, fmt.Errorf("failed to sign request: %w", err)
			}
		}
		rt := c.Transport
		if rt == nil {
			rt = http.DefaultTransport
		}
		return rt.RoundTrip(req)
	}
}

// FetchBytes returns the body of the ActivityPub resource at uri.
func (c *Client) FetchBytes(ctx context.Context, uri string) ([]byte, error) {
	var buf bytes.Buffer
	err := requests.URL(uri).
		Accept(ContentType).
		Transport(c.transport(nil)).
		CheckContentType(
			"application/ld+json",
			"application/activity+json",
			"application/json",
			"application/octet-stream", // sigh
		).
		CheckStatus(http.StatusOK).
		ToBytesBuffer(&buf).
		Fetch(ctx)
	return buf.Bytes(), err
}

// Fetch fetches the ActivityPub resource at the given URL and decodes it into the given object.
func (c *Client) Fetch(ctx context.Context, uri string, obj any) error {
	return Fetch(ctx, c, uri, obj)
}

// Post delivers body to the inbox at url.
func (c *Client) Post(ctx context.Context, url string, body []byte) error {
	return requests.URL(url).
		BodyBytes(body).
		ContentType(ContentType).
		Transport(c.transport(body)).
		CheckStatus(http.StatusOK, http.StatusCreated, http.StatusAccepted, http.StatusNoContent).
		Fetch(ctx)
}

// Fetch retrieves uri through f and decodes it into obj.
func Fetch(ctx context.Context, f Fetcher, uri string, obj any) error {
	body, err := f.FetchBytes(ctx, uri)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, obj); err != nil {
		return fmt.Errorf("decode %s: %w", uri, err)
	}
	return nil
}
