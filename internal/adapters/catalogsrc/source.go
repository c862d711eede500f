// Package catalogsrc loads the operator catalog document from a URL or a
// local file, optionally through a cache.
package catalogsrc

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/PeterYR/krooster-stats/internal/domain/catalog"
	"github.com/PeterYR/krooster-stats/pkg/logger"
	"github.com/PeterYR/krooster-stats/pkg/metrics"
)

const (
	DefaultURL      = "https://raw.githubusercontent.com/neeia/ak-roster/main/src/data/operators.json"
	defaultTTL      = time.Hour
	defaultTimeout  = 30 * time.Second
	maxCatalogBytes = 64 << 20
	cacheKeyPrefix  = "krooster:catalog:"
)

// Source fetches the raw catalog.
type Source struct {
	location string
	http     *http.Client
	cache    Cache
	ttl      time.Duration
	logger   logger.Logger
}

// Option configures a Source.
type Option func(*Source)

// WithCache enables caching of the raw document for ttl.
func WithCache(c Cache, ttl time.Duration) Option {
	return func(s *Source) {
		s.cache = c
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithHTTPClient replaces the http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(s *Source) {
		if hc != nil {
			s.http = hc
		}
	}
}

// New creates a Source. location is an http(s) URL, a file:// URL or a path.
func New(location string, opts ...Option) *Source {
	if location == "" {
		location = DefaultURL
	}
	s := &Source{
		location: location,
		http:     &http.Client{Timeout: defaultTimeout},
		ttl:      defaultTTL,
		logger:   logger.Get().Named("catalogsrc"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Fetch returns the raw catalog document. Cache failures are logged and
// fall through to the origin.
func (s *Source) Fetch(ctx context.Context) ([]byte, error) {
	key := cacheKey(s.location)
	if s.cache != nil {
		val, ok, err := s.cache.Get(ctx, key)
		switch {
		case err != nil:
			metrics.RecordCatalogCache("error")
			s.logger.Warn(ctx, "catalog cache read failed", logger.Error(err))
		case ok:
			metrics.RecordCatalogCache("hit")
			return val, nil
		default:
			metrics.RecordCatalogCache("miss")
		}
	}

	data, err := s.fetchOrigin(ctx)
	if err != nil {
		return nil, err
	}
	// Only documents that decode are cached.
	if _, err := catalog.Decode(data); err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, data, s.ttl); err != nil {
			s.logger.Warn(ctx, "catalog cache write failed", logger.Error(err))
		}
	}
	return data, nil
}

// Raw fetches and decodes the document.
func (s *Source) Raw(ctx context.Context) (map[string]catalog.RawOperator, error) {
	data, err := s.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	return catalog.Decode(data)
}

func (s *Source) fetchOrigin(ctx context.Context) ([]byte, error) {
	if !strings.HasPrefix(s.location, "http://") && !strings.HasPrefix(s.location, "https://") {
		path := strings.TrimPrefix(s.location, "file://")
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read catalog %s: %w", path, err)
		}
		return data, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.location, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("build catalog request: %w", err)
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch catalog: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch catalog: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxCatalogBytes))
	if err != nil {
		return nil, fmt.Errorf("read catalog body: %w", err)
	}
	return data, nil
}

func cacheKey(location string) string {
	sum := sha1.Sum([]byte(location))
	return cacheKeyPrefix + hex.EncodeToString(sum[:8])
}
