// Package krooster talks to the Krooster roster store: it resolves handles
// through the phonebook and downloads account rosters.
package krooster

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PeterYR/krooster-stats/internal/domain/model"
	"github.com/PeterYR/krooster-stats/pkg/logger"
	"github.com/PeterYR/krooster-stats/pkg/metrics"
)

const (
	DefaultBaseURL   = "https://ak-roster-default-rtdb.firebaseio.com"
	defaultTimeout   = 15 * time.Second
	maxBodyBytes     = 32 << 20
)

// Resolver maps a handle to an account id.
type Resolver interface {
	Resolve(ctx context.Context, handle string) (model.AccountID, bool, error)
}

// RosterFetcher downloads one account's roster.
type RosterFetcher interface {
	FetchRoster(ctx context.Context, id model.AccountID) (model.Roster, error)
}

// Client is an HTTP client for the roster store.
type Client struct {
	baseURL string
	http    *http.Client
	logger  logger.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at another store, e.g. an httptest server.
func WithBaseURL(base string) Option {
	return func(c *Client) {
		if base != "" {
			c.baseURL = strings.TrimRight(base, "/")
		}
	}
}

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// New creates a Client for the public store.
func New(opts ...Option) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		http:    &http.Client{Timeout: defaultTimeout},
		logger:  logger.Get().Named("krooster"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Resolve looks a handle up in the phonebook. Handles are case-insensitive.
// An unknown handle returns ok=false and no error.
func (c *Client) Resolve(ctx context.Context, handle string) (model.AccountID, bool, error) {
	key := normalizeHandle(handle)
	if key == "" {
		metrics.RecordResolve("not_found")
		return "", false, nil
	}

	var id *string
	if err := c.getJSON(ctx, "/phonebook/"+url.PathEscape(key)+".json", &id); err != nil {
		metrics.RecordResolve("error")
		return "", false, fmt.Errorf("resolve %q: %w", handle, err)
	}
	if id == nil || *id == "" {
		metrics.RecordResolve("not_found")
		c.logger.Debug(ctx, "handle not in phonebook", logger.String("handle", handle))
		return "", false, nil
	}
	metrics.RecordResolve("ok")
	return model.AccountID(*id), true, nil
}

// FetchRoster downloads the roster of account id. A missing roster is empty.
// Entries that fail to decode are kept with their DecodeErr set.
func (c *Client) FetchRoster(ctx context.Context, id model.AccountID) (model.Roster, error) {
	var roster model.Roster
	if err := c.getJSON(ctx, "/users/"+url.PathEscape(string(id))+"/roster.json", &roster); err != nil {
		return nil, fmt.Errorf("roster %s: %w", id, err)
	}
	if roster == nil {
		roster = model.Roster{}
	}
	return roster, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, http.NoBody)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return fmt.Errorf("%w: GET %s: status %d", ErrUpstream, path, resp.StatusCode)
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrUpstream, path, err)
	}
	return nil
}

func normalizeHandle(handle string) string {
	return strings.ToLower(strings.TrimSpace(handle))
}
