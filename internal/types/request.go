package types

import (
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Page tags used by spiders to tell listing pages from item pages.
const (
	TagListing = "listing"
	TagItem    = "item"
)

// Request represents a page to be fetched by a spider.
type Request struct {
	// URL is the target URL to fetch.
	URL *url.URL

	// Method is the HTTP method. Defaults to GET.
	Method string

	// Headers are custom HTTP headers to send with the request.
	Headers http.Header

	// Timeout overrides the fetcher's default timeout for this request.
	Timeout time.Duration

	// WaitSelector makes browser fetchers wait for a CSS selector before
	// capturing the page.
	WaitSelector string

	// Tag categorizes this request ("listing" or "item").
	Tag string

	// Spider names the spider that issued the request.
	Spider string
}

// NewRequest creates a new GET Request.
func NewRequest(rawURL string) (*Request, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL %q: %w", rawURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}

	return &Request{
		URL:     u,
		Method:  http.MethodGet,
		Headers: make(http.Header),
	}, nil
}

// URLString returns the string representation of the request URL.
func (r *Request) URLString() string {
	if r.URL == nil {
		return ""
	}
	return r.URL.String()
}

// Domain returns the hostname of the request URL.
func (r *Request) Domain() string {
	if r.URL == nil {
		return ""
	}
	return r.URL.Hostname()
}

// Resolve turns a possibly relative href into an absolute URL against the
// request URL.
func (r *Request) Resolve(href string) (string, error) {
	ref, err := url.Parse(href)
	if err != nil {
		return "", err
	}
	if r.URL == nil {
		return ref.String(), nil
	}
	return r.URL.ResolveReference(ref).String(), nil
}
