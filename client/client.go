// Package client calls services that sit behind a redirecting edge.
//
//	Resolve: GET edge/path ──► 307 Location ──► destination URL (not followed)
//	Do:      req ──► edge ──► 307 ──► req replayed at Location ──► response
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

var (
	ErrNotRedirected = errors.New("client: edge did not redirect")
	ErrTooManyHops   = errors.New("client: too many redirects")
)

const DefaultMaxHops = 3

type Client struct {
	http    *http.Client
	maxHops int
}

type Option func(*Client)

// WithMaxHops bounds how many redirects Do follows.
func WithMaxHops(n int) Option {
	return func(c *Client) { c.maxHops = n }
}

// WithTimeout bounds each hop.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// NewClient keeps up to poolSize idle connections per destination.
func NewClient(poolSize int, opts ...Option) *Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConnsPerHost = poolSize

	c := &Client{
		http: &http.Client{
			Transport: transport,
			// Redirects are handled by Do so the body can be replayed
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		maxHops: DefaultMaxHops,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Resolve asks the edge at rawURL where the call should go and returns the
// Location it answered with.
func (c *Client) Resolve(ctx context.Context, method, rawURL string) (*url.URL, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer drain(resp)

	if !isRedirect(resp.StatusCode) {
		return nil, fmt.Errorf("%w: %s %s answered %s", ErrNotRedirected, method, rawURL, resp.Status)
	}
	return resp.Location()
}

// Do sends the request and follows temporary redirects, replaying the
// method and body at each Location. The last response is returned as is.
func (c *Client) Do(ctx context.Context, method, rawURL string, body []byte, header http.Header) (*http.Response, error) {
	target := rawURL
	for hop := 0; ; hop++ {
		req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		for k, v := range header {
			req.Header[k] = v
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		if !isRedirect(resp.StatusCode) {
			return resp, nil
		}

		loc, err := resp.Location()
		drain(resp)
		if err != nil {
			return nil, err
		}
		if hop >= c.maxHops {
			return nil, fmt.Errorf("%w: gave up at %s", ErrTooManyHops, loc)
		}
		target = loc.String()
	}
}

func isRedirect(code int) bool {
	return code == http.StatusTemporaryRedirect || code == http.StatusPermanentRedirect
}

func drain(resp *http.Response) {
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}
