package activitypub

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/carlmjohnson/requests"
	"golang.org/x/net/html"
)

// maxPreviewBytes bounds how much of a linked page is read.
const maxPreviewBytes = 1 << 20

// LinkPreview is the title, description and image of a linked page.
type LinkPreview struct {
	Title       string
	Description string
	Image       string
}

// LinkFetcher produces previews for linked pages.
type LinkFetcher interface {
	Preview(ctx context.Context, url string) (*LinkPreview, error)
}

// HTMLPreviewer builds previews from a page's OpenGraph tags, falling back
// to its title and meta description.
type HTMLPreviewer struct {
	Timeout   time.Duration
	Transport http.RoundTripper
}

func (p *HTMLPreviewer) Preview(ctx context.Context, url string) (*LinkPreview, error) {
	if !validURI(url) {
		return nil, fmt.Errorf("preview: invalid url %q", url)
	}
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}
	var doc *html.Node
	rb := requests.URL(url).
		Accept("text/html").
		CheckStatus(http.StatusOK).
		CheckContentType("text/html").
		Handle(func(res *http.Response) error {
			var err error
			doc, err = html.Parse(io.LimitReader(res.Body, maxPreviewBytes))
			return err
		})
	if p.Transport != nil {
		rb = rb.Transport(p.Transport)
	}
	if err := rb.Fetch(ctx); err != nil {
		return nil, err
	}
	preview := extractPreview(doc)
	if preview.Title == "" {
		return nil, fmt.Errorf("preview: %s has no title", url)
	}
	return preview, nil
}

func extractPreview(doc *html.Node) *LinkPreview {
	var preview LinkPreview
	var title, description string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "title":
				if title == "" && n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
					title = strings.TrimSpace(n.FirstChild.Data)
				}
			case "meta":
				key := attr(n, "property")
				if key == "" {
					key = attr(n, "name")
				}
				content := strings.TrimSpace(attr(n, "content"))
				switch key {
				case "og:title":
					preview.Title = content
				case "og:description":
					preview.Description = content
				case "og:image":
					preview.Image = content
				case "description":
					description = content
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	if preview.Title == "" {
		preview.Title = title
	}
	if preview.Description == "" {
		preview.Description = description
	}
	return &preview
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
