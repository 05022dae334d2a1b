// Package mls talks to the upstream MLS (RESO Web API style): the OAuth2
// client-credentials token endpoint and the paginated Property resource.
package mls

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mrlokans/mlssync/internal/metrics"
)

const (
	defaultTimeout     = 30 * time.Second
	defaultPageSize    = 100
	defaultMaxPages    = 1000
	maxRetries         = 3
	initialRetryDelay  = 1 * time.Second
	maxRetryDelay      = 30 * time.Second
	retryBackoffFactor = 2

	// watermarkLayout is the ModificationTimestamp format used in filters.
	watermarkLayout = "2006-01-02T15:04:05.000Z"
)

// ErrTooManyPages is returned when pagination does not terminate within the page limit.
var ErrTooManyPages = errors.New("listing pagination exceeded the page limit")

// Client retrieves listings from the MLS Property endpoint.
type Client struct {
	baseURL    string
	tokens     TokenSource
	httpClient *http.Client

	pageSize   int
	maxPages   int
	retryDelay time.Duration
}

// ClientOption configures a Client
type ClientOption func(*Client)

// WithHTTPClient sets the HTTP client used for listing requests
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// WithPageSize sets the number of records requested per page
func WithPageSize(n int) ClientOption {
	return func(cl *Client) {
		if n > 0 {
			cl.pageSize = n
		}
	}
}

// WithMaxPages bounds the number of pages a single fetch may request
func WithMaxPages(n int) ClientOption {
	return func(cl *Client) {
		if n > 0 {
			cl.maxPages = n
		}
	}
}

// WithRetryDelay sets the first backoff delay; later delays double it
func WithRetryDelay(d time.Duration) ClientOption {
	return func(cl *Client) {
		cl.retryDelay = d
	}
}

// NewClient creates a listing client for the API rooted at baseURL.
func NewClient(baseURL string, tokens TokenSource, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		tokens:     tokens,
		httpClient: &http.Client{Timeout: defaultTimeout},
		pageSize:   defaultPageSize,
		maxPages:   defaultMaxPages,
		retryDelay: initialRetryDelay,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// FetchAll returns every Active listing, newest modification first. With a
// non-nil since only listings modified strictly after it are requested.
// A server-provided @odata.nextLink is followed; otherwise pages are
// requested by offset until one comes back short or empty.
func (c *Client) FetchAll(ctx context.Context, since *time.Time) ([]Listing, error) {
	var all []Listing
	pageURL := c.pageURL(since, 0)

	for page := 0; ; page++ {
		if page >= c.maxPages {
			return nil, &FetchError{Page: page, Err: ErrTooManyPages}
		}

		result, err := c.fetchPage(ctx, pageURL, page)
		if err != nil {
			return nil, &FetchError{Page: page, Err: err}
		}

		for _, raw := range result.Value {
			// An undecodable record is kept; the mapper reports it.
			listing, _ := DecodeListing(raw)
			all = append(all, listing)
		}

		if len(result.Value) == 0 {
			break
		}
		if result.NextLink != "" {
			pageURL, err = c.resolveNextLink(result.NextLink)
			if err != nil {
				return nil, &FetchError{Page: page, Err: err}
			}
			continue
		}
		if len(result.Value) < c.pageSize {
			break
		}
		pageURL = c.pageURL(since, len(all))
	}

	if since != nil {
		log.Printf("MLS client: fetched %d listings modified after %s", len(all), since.UTC().Format(watermarkLayout))
	} else {
		log.Printf("MLS client: fetched %d listings", len(all))
	}
	return all, nil
}

// pageURL builds the Property query starting at the given offset.
func (c *Client) pageURL(since *time.Time, skip int) string {
	filter := "StandardStatus eq 'Active'"
	if since != nil {
		filter += " and ModificationTimestamp gt " + since.UTC().Format(watermarkLayout)
	}

	q := url.Values{}
	q.Set("$top", strconv.Itoa(c.pageSize))
	q.Set("$skip", strconv.Itoa(skip))
	q.Set("$filter", filter)
	q.Set("$orderby", "ModificationTimestamp desc")

	// OData servers expect %20, not '+', for spaces.
	return c.baseURL + "/Property?" + strings.ReplaceAll(q.Encode(), "+", "%20")
}

// resolveNextLink turns an @odata.nextLink into an absolute URL. The bearer
// token is sent along, so the link must stay on the API host.
func (c *Client) resolveNextLink(link string) (string, error) {
	base, err := url.Parse(c.baseURL + "/")
	if err != nil {
		return "", fmt.Errorf("invalid API URL: %w", err)
	}
	ref, err := url.Parse(link)
	if err != nil {
		return "", fmt.Errorf("invalid next link %q: %w", link, err)
	}

	next := base.ResolveReference(ref)
	if next.Scheme != base.Scheme || next.Host != base.Host {
		return "", fmt.Errorf("next link %q leaves API host %s", link, base.Host)
	}
	return next.String(), nil
}

// fetchPage requests one page, retrying rate limits and server errors with
// backoff and re-authenticating once when the token is rejected.
func (c *Client) fetchPage(ctx context.Context, pageURL string, page int) (*PropertyPage, error) {
	reauthenticated := false

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.calculateRetryDelay(attempt)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		token, err := c.tokens.Token(ctx)
		if err != nil {
			return nil, err
		}

		result, err := c.doPageRequest(ctx, pageURL, token)
		if errors.Is(err, ErrUnauthorized) && !reauthenticated {
			log.Printf("MLS client: access token rejected on page %d, re-authenticating", page)
			reauthenticated = true
			c.tokens.Invalidate()

			token, err = c.tokens.Token(ctx)
			if err != nil {
				return nil, err
			}
			result, err = c.doPageRequest(ctx, pageURL, token)
		}
		if err == nil {
			return result, nil
		}
		lastErr = err

		// Only retry on rate limits or server errors
		if !isRetryableError(err) {
			return nil, err
		}
		log.Printf("MLS client: page %d attempt %d failed: %v", page, attempt+1, err)
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (c *Client) doPageRequest(ctx context.Context, pageURL, token string) (*PropertyPage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordUpstreamRequest("property", "error", time.Since(start).Seconds())
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	metrics.RecordUpstreamRequest("property", strconv.Itoa(resp.StatusCode), time.Since(start).Seconds())

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, ErrUnauthorized
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, ErrRateLimited
	}
	if resp.StatusCode >= 500 {
		return nil, &ServerError{StatusCode: resp.StatusCode}
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var pageResp PropertyPage
	if err := json.NewDecoder(resp.Body).Decode(&pageResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &pageResp, nil
}

func (c *Client) calculateRetryDelay(attempt int) time.Duration {
	delay := c.retryDelay
	for i := 1; i < attempt; i++ {
		delay *= time.Duration(retryBackoffFactor)
	}
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}
	return delay
}
